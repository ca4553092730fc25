package normalize

import (
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"

	"lagflode/canonical"
	"lagflode/textproc"
)

// Metadata sind die vom Aufrufer bekannten Angaben zum Dokument.
type Metadata struct {
	DocumentNumber string
	Title          string
	ContentType    canonical.ContentType
	EffectiveDate  string
	// Hyphen sind die Allow-Listen der Silbentrennungs-Reparatur; leer = Standardlisten.
	Hyphen textproc.HyphenRules
}

// Normalizer überführt Roh-HTML einer Quellart in ein kanonisches Dokument.
type Normalizer interface {
	Normalize(rawHTML string, p DetectedPattern, meta Metadata) (*canonical.Document, error)
}

var normalizers = map[canonical.ContentType]Normalizer{
	canonical.SFSLaw:           SFSLawNormalizer{},
	canonical.SFSAmendment:     SFSAmendmentNormalizer{},
	canonical.EURegulation:     EUNormalizer{},
	canonical.EUDirective:      EUNormalizer{},
	canonical.AgencyRegulation: AgencyNormalizer{},
}

// For liefert den Normalizer der Quellart; Gerichtsentscheidungen und
// unbekannte Typen laufen über den GenericNormalizer.
func For(ct canonical.ContentType) Normalizer {
	if n, ok := normalizers[ct]; ok {
		return n
	}
	return GenericNormalizer{}
}

// Result enthält das Dokument und das erkannte Layout.
type Result struct {
	Document *canonical.Document
	Pattern  DetectedPattern
}

// NormalizeDocument: Detect -> For -> Normalize. Bereits kanonisches HTML wird
// unverändert eingelesen, damit erneutes Normalisieren dieselben Blöcke ergibt.
func NormalizeDocument(rawHTML string, meta Metadata) (*Result, error) {
	if meta.ContentType == "" {
		meta.ContentType = canonical.SFSLaw
	}
	if isCanonical(rawHTML) {
		doc, err := canonical.ParseCanonicalHTML(rawHTML)
		if err != nil {
			return nil, err
		}
		if doc.Title == "" {
			doc.Title = meta.Title
		}
		if doc.DocumentNumber == "" {
			doc.DocumentNumber = meta.DocumentNumber
		}
		return &Result{Document: doc, Pattern: Unknown()}, nil
	}
	p := Detect(rawHTML, meta.ContentType)
	doc, err := For(meta.ContentType).Normalize(rawHTML, p, meta)
	if err != nil {
		return nil, err
	}
	return &Result{Document: doc, Pattern: p}, nil
}

func isCanonical(raw string) bool {
	return strings.Contains(raw, `class="legal-document"`) &&
		strings.Contains(raw, `class="paragraf"`) &&
		!strings.Contains(raw, "annzone") &&
		!strings.Contains(raw, `class="N2"`)
}

func load(rawHTML string) (*goquery.Document, error) {
	if strings.TrimSpace(rawHTML) == "" {
		return nil, &canonical.MalformedSourceError{Source: "html", Reason: "empty input"}
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(rawHTML))
	if err != nil {
		return nil, fmt.Errorf("parse source html: %w", err)
	}
	return doc, nil
}

// boilerplate wird vor jeder Extraktion entfernt (Navigation, CMS-Reste, Kopfdaten).
const boilerplate = "script, style, nav, noscript, iframe, form, header, " +
	"div.sfstoc, div.lovhead, ul.legislative-references, " +
	"span.provisioncmsurl, button.provision__closedialog, div.provision__table-overlay, " +
	"button.provision__table, .cookie-banner, .breadcrumbs, #sidebar, .sidebar"

// resolveTitle nimmt den Titel aus den Metadaten oder aus dem Dokument
// (h1, title, EUR-Lex-Titel).
func resolveTitle(doc *goquery.Document, meta *Metadata) {
	if strings.TrimSpace(meta.Title) != "" {
		return
	}
	for _, sel := range []string{"p.oj-doc-ti", "div.lovhead h1 p.text:last-child", "h1", "body > h2", "title"} {
		var parts []string
		doc.Find(sel).Each(func(_ int, s *goquery.Selection) {
			if t := textproc.CollapseInline(s.Text()); t != "" {
				parts = append(parts, t)
			}
		})
		if len(parts) > 0 {
			if sel != "p.oj-doc-ti" {
				parts = parts[:1]
			}
			meta.Title = strings.Join(parts, " ")
			return
		}
	}
}

// GenericNormalizer ist der tolerante Pfad für Unknown: das Block-Element, das am
// häufigsten mit "N §", "N kap." oder "Artikel N" beginnt, markiert die Paragrafengrenzen.
type GenericNormalizer struct{}

func (GenericNormalizer) Normalize(rawHTML string, _ DetectedPattern, meta Metadata) (*canonical.Document, error) {
	doc, err := load(rawHTML)
	if err != nil {
		return nil, err
	}
	doc.Find(boilerplate).Remove()
	resolveTitle(doc, &meta)
	a := newAssembler(meta)

	root := doc.Find("body").First()
	if c := doc.Find("main, article, #content, .content, .document").First(); c.Length() > 0 {
		root = c
	}

	tag := boundaryTag(root)
	lp := lineParser{a: a, sectionsOnly: tag != ""}
	for _, l := range leafLines(root, tag) {
		lp.line(l)
	}
	return a.finish("generic")
}

var candidateTags = []string{"p", "div", "li", "h2", "h3", "h4", "h5", "h6", "dt", "b", "strong", "span"}

// boundaryTag wählt das Element mit den meisten Nummerierungsanfängen; "" wenn keines.
func boundaryTag(root *goquery.Selection) string {
	best, bestCount := "", 0
	for _, tag := range candidateTags {
		n := 0
		root.Find(tag).Each(func(_ int, s *goquery.Selection) {
			if isNumberedStart(textproc.CollapseInline(s.Text())) && len(s.Text()) < 4000 {
				n++
			}
		})
		if n > bestCount {
			best, bestCount = tag, n
		}
	}
	return best
}

func isNumberedStart(text string) bool {
	if _, ok := canonical.ParseSectionLabel(text); ok {
		return true
	}
	_, ok := canonical.ParseChapterLabel(text)
	return ok
}

type line struct {
	text     string
	boundary bool
	rows     [][]string
}

// leafLines sammelt Blöcke ohne weitere Block-Kinder in Dokumentreihenfolge;
// lose Textknoten zwischen Blöcken werden eigene Zeilen.
func leafLines(root *goquery.Selection, boundary string) []line {
	var out []line
	nested := "p, div, li, h1, h2, h3, h4, h5, h6, table, dt, dd, " + boundaryOr(boundary)
	var visit func(s *goquery.Selection)
	visit = func(s *goquery.Selection) {
		s.Contents().Each(func(_ int, c *goquery.Selection) {
			if c.Get(0).Type == html.TextNode {
				if t := textproc.CollapseInline(c.Text()); t != "" {
					out = append(out, line{text: t})
				}
				return
			}
			tag := goquery.NodeName(c)
			switch {
			case skipTags[tag] || tag == "br":
				return
			case tag == "table":
				out = append(out, line{rows: tableRows(c)})
				return
			case tag == boundary:
				out = append(out, line{text: textproc.CollapseInline(c.Text()), boundary: true})
				return
			case c.Find(nested).Length() > 0:
				visit(c)
				return
			}
			if t := textproc.CollapseInline(c.Text()); t != "" {
				out = append(out, line{text: t})
			}
		})
	}
	visit(root)
	return out
}

func boundaryOr(tag string) string {
	if tag == "" {
		return "section"
	}
	return tag
}
