package normalize

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"

	"lagflode/canonical"
	"lagflode/textproc"
)

// Unterhalb dieses Anteils am Quelltext gilt eine Normalisierung als verlustbehaftet
// und der tolerante Pfad übernimmt.
const minRetainedRatio = 0.2

// SFSLawNormalizer verarbeitet Gesetze und Verordnungen aus Riksdagen und Notisum.
type SFSLawNormalizer struct{}

func (SFSLawNormalizer) Normalize(rawHTML string, p DetectedPattern, meta Metadata) (*canonical.Document, error) {
	v, ok := p.Variant()
	if !ok {
		return GenericNormalizer{}.Normalize(rawHTML, p, meta)
	}
	switch v {
	case SFSAnchorLayout, SFSClassLayout, SFSNotisumLayout:
		return normalizeFlow(rawHTML, v, meta)
	default:
		return GenericNormalizer{}.Normalize(rawHTML, Unknown(), meta)
	}
}

// SFSAmendmentNormalizer verarbeitet Ändringsförfattningar.
type SFSAmendmentNormalizer struct{}

func (SFSAmendmentNormalizer) Normalize(rawHTML string, p DetectedPattern, meta Metadata) (*canonical.Document, error) {
	v, ok := p.Variant()
	if !ok {
		return GenericNormalizer{}.Normalize(rawHTML, p, meta)
	}
	switch v {
	case AmendmentNotisumLayout, SFSNotisumLayout, SFSAnchorLayout:
		return normalizeFlow(rawHTML, v, meta)
	case AmendmentTextLayout:
		return normalizeAmendmentText(rawHTML, meta)
	default:
		return GenericNormalizer{}.Normalize(rawHTML, Unknown(), meta)
	}
}

func normalizeFlow(rawHTML string, v Variant, meta Metadata) (*canonical.Document, error) {
	doc, err := load(rawHTML)
	if err != nil {
		return nil, err
	}
	resolveTitle(doc, &meta)

	var root *goquery.Selection
	switch v {
	case SFSAnchorLayout:
		root = riksdagenContainer(doc)
	case SFSNotisumLayout, AmendmentNotisumLayout:
		doc.Find(boilerplate).Remove()
		root = firstOf(doc, "div.body", "article", "body")
		if body := doc.Find("div.body").First(); body.Length() > 0 {
			// Övergångsbestämmelser stehen in footer.back neben div.body
			root = body.Parent()
		}
	default:
		doc.Find(boilerplate).Remove()
		root = firstOf(doc, "body")
	}

	sourceLen := len(textproc.CollapseInline(root.Text()))
	a := newAssembler(meta)
	f := flow{a: a}
	f.walk(root)
	out, err := a.finish(string(v))

	if sourceLen > 100 && (err != nil || float64(retainedLen(out))/float64(sourceLen) < minRetainedRatio) {
		return GenericNormalizer{}.Normalize(rawHTML, Unknown(), meta)
	}
	return out, err
}

// riksdagenContainer entfernt Metadatenkopf und Inhaltsverzeichnis und liefert
// den div mit dem Gesetzestext.
func riksdagenContainer(doc *goquery.Document) *goquery.Selection {
	doc.Find("body > h2").First().Remove()
	doc.Find("body > hr").Remove()
	doc.Find(boilerplate).Remove()

	content := doc.Find("body > div").FilterFunction(func(_ int, s *goquery.Selection) bool {
		return s.Find("a.paragraf, a[name^='K'], a[name='overgang']").Length() > 0
	})
	if content.Length() == 0 {
		content = doc.Find("body > div")
	}
	if content.Length() > 0 {
		return content.First()
	}

	body := doc.Find("body")
	body.Children().Filter("b, br").Remove()
	body.Contents().Each(func(_ int, s *goquery.Selection) {
		if s.Get(0).Type != html.TextNode {
			return
		}
		t := strings.TrimSpace(s.Text())
		if t != "" && len(t) < 100 && !strings.Contains(t, "§") && !strings.Contains(t, "kap.") {
			s.Remove()
		}
	})
	return body
}

func normalizeAmendmentText(rawHTML string, meta Metadata) (*canonical.Document, error) {
	doc, err := load(rawHTML)
	if err != nil {
		return nil, err
	}
	resolveTitle(doc, &meta)
	doc.Find(boilerplate).Remove()
	doc.Find("h1").First().Remove()

	root := firstOf(doc, "div.document, div.content, main, article, body")
	a := newAssembler(meta)
	lp := lineParser{a: a}
	for _, l := range leafLines(root, "") {
		lp.line(l)
	}
	return a.finish(string(AmendmentTextLayout))
}

func firstOf(doc *goquery.Document, selectors ...string) *goquery.Selection {
	for _, sel := range selectors {
		if s := doc.Find(sel).First(); s.Length() > 0 {
			return s
		}
	}
	return doc.Selection
}

func retainedLen(doc *canonical.Document) int {
	if doc == nil {
		return 0
	}
	n := 0
	for _, b := range doc.Blocks {
		n += len(canonical.BlockText(b)) + 1
	}
	return n
}
