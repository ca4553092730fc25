package canonical

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"lagflode/textproc"
)

var (
	amendmentRefRE    = regexp.MustCompile(`^(?:Lag|Förordning)\s+\(\d{4}:\d+[a-z]?\)\.?$`)
	chapterIDSuffixRE = regexp.MustCompile(`_K(\d+[a-z]?)$`)
	agencyPrefixRE    = regexp.MustCompile(`^(?:MSBFS|NFS|AFS|ELSÄK-FS|BFS|SKVFS|KIFS|SSMFS|STAFS|SRVFS|SCB-FS|MCFFS|TSFS|FFFS|HSLF-FS)`)
	headingTagRE      = regexp.MustCompile(`^h([1-6])$`)
)

// IsAmendmentRef erkennt Änderungsvermerke wie "Lag (2022:1109)." am Ende eines Paragrafen.
func IsAmendmentRef(s string) bool {
	return amendmentRefRE.MatchString(strings.TrimSpace(s))
}

// ParseCanonicalHTML liest kanonisches HTML (RenderHTML oder die ältere
// section.kapitel/h3.paragraph-Form) in ein Document ein.
func ParseCanonicalHTML(src string) (*Document, error) {
	gq, err := goquery.NewDocumentFromReader(strings.NewReader(src))
	if err != nil {
		return nil, fmt.Errorf("parse canonical html: %w", err)
	}
	article := gq.Find("article.legal-document").First()
	if article.Length() == 0 {
		return nil, &MalformedSourceError{Source: "canonical-html", Reason: "no article.legal-document element"}
	}

	p := &htmlParser{
		doc:      &Document{SchemaVersion: SchemaVersion},
		ordinals: map[BlockKind]int{},
		pending:  -1,
	}
	p.docID = article.AttrOr("id", "")
	if v := article.AttrOr("data-schema-version", ""); v != "" {
		p.doc.SchemaVersion = v
	}
	p.doc.EffectiveDate = article.AttrOr("data-effective-date", "")
	p.doc.ContentType = ContentType(article.AttrOr("data-content-type", ""))
	if p.doc.ContentType == "" {
		p.doc.ContentType = inferContentType(p.docID, article.AttrOr("class", ""))
	}

	head := article.Find("div.lovhead p.text")
	if head.Length() > 0 {
		p.doc.DocumentNumber = textproc.CollapseInline(head.Eq(0).Text())
	}
	if head.Length() > 1 {
		p.doc.Title = textproc.CollapseInline(head.Eq(1).Text())
	}
	if p.docID == "" {
		p.docID = DocID(p.doc.DocumentNumber)
	}
	article.Find("ul.legislative-references li").Each(func(_ int, li *goquery.Selection) {
		if ref := textproc.CollapseInline(li.Text()); ref != "" {
			p.doc.LegislativeReferences = append(p.doc.LegislativeReferences, ref)
		}
	})
	article.Find("div.lovhead, ul.legislative-references").Remove()

	body := article.Find("div.body").First()
	if body.Length() == 0 {
		body = article
	}
	p.walk(body)
	if tail := article.Find("footer.back"); tail.Length() > 0 && body != article {
		p.chapter = ""
		p.pending = -1
		p.walk(tail)
	}
	return p.doc, nil
}

type htmlParser struct {
	doc      *Document
	docID    string
	ordinals map[BlockKind]int
	chapter  string
	pending  int // Index eines offenen Paragrafen der Altform, sonst -1
}

func (p *htmlParser) walk(sel *goquery.Selection) {
	sel.Children().Each(func(_ int, el *goquery.Selection) {
		p.element(el)
	})
}

func (p *htmlParser) element(el *goquery.Selection) {
	tag := goquery.NodeName(el)
	switch {
	case tag == "section" && el.HasClass("paragraf"):
		p.pending = -1
		p.section(el)

	case tag == "section":
		if m := chapterIDSuffixRE.FindStringSubmatch(el.AttrOr("id", "")); m != nil {
			p.chapter = m[1]
		}
		p.pending = -1
		p.walk(el)

	case headingTagRE.MatchString(tag):
		if el.HasClass("paragraph") {
			p.legacySection(el)
			return
		}
		p.pending = -1
		p.heading(el, tag)

	case tag == "p":
		refs := p.extractRefs(el)
		text := textproc.CollapseInline(el.Text())
		if text == "" {
			return
		}
		if p.pending >= 0 {
			sec := &p.doc.Blocks[p.pending]
			if amendmentRefRE.MatchString(text) {
				sec.AmendedBy = text
				return
			}
			sec.Text = joinStycke(sec.Text, text)
			sec.FootnoteRefs = append(sec.FootnoteRefs, refs...)
			return
		}
		p.add(Block{Kind: KindParagraph, ID: el.AttrOr("id", ""), Text: text, FootnoteRefs: refs})

	case tag == "table":
		if rows := tableRows(el); len(rows) > 0 {
			p.add(Block{Kind: KindTable, ID: el.AttrOr("id", ""), Rows: rows})
		}

	case tag == "aside" && el.HasClass("footnote"):
		b := Block{
			Kind:  KindFootnote,
			ID:    el.AttrOr("id", ""),
			Label: el.AttrOr("data-label", ""),
			Text:  textproc.CollapseInline(el.Text()),
		}
		if refs := strings.Fields(el.AttrOr("data-refs", "")); len(refs) > 0 {
			b.Refs = refs
		}
		if b.ID == "" && b.Label != "" {
			b.ID = FootnoteID(p.docID, b.Label)
		}
		p.add(b)

	case tag == "ul" || tag == "ol":
		el.Children().Each(func(_ int, li *goquery.Selection) {
			text := textproc.CollapseInline(li.Text())
			if text == "" {
				return
			}
			if p.pending >= 0 {
				p.doc.Blocks[p.pending].Text = joinStycke(p.doc.Blocks[p.pending].Text, text)
				return
			}
			p.add(Block{Kind: KindParagraph, Text: text})
		})

	case tag == "footer":
		p.chapter = ""
		p.pending = -1
		p.walk(el)

	case tag == "div" || tag == "details" || tag == "article" || tag == "main":
		p.walk(el)

	case tag == "summary" || tag == "script" || tag == "style":
		return

	default:
		if text := textproc.CollapseInline(el.Text()); text != "" {
			p.add(Block{Kind: KindParagraph, Text: text})
		}
	}
}

func (p *htmlParser) heading(el *goquery.Selection, tag string) {
	level, _ := strconv.Atoi(tag[1:])
	text := textproc.CollapseInline(el.Text())
	if text == "" {
		return
	}
	b := Block{Kind: KindHeading, ID: el.AttrOr("id", ""), Level: level, Text: text}
	chapter := el.AttrOr("data-chapter", "")
	if chapter == "" && el.HasClass("kapitel-rubrik") {
		chapter, _ = ParseChapterLabel(text)
	}
	if chapter != "" {
		b.Chapter = chapter
		p.chapter = chapter
	} else if strings.HasPrefix(strings.ToLower(text), "övergångsbestämmelser") {
		p.chapter = ""
	}
	p.add(b)
}

func (p *htmlParser) section(el *goquery.Selection) {
	refs := p.extractRefs(el)
	label := el.Find("a.paragraf").First()
	number := el.AttrOr("data-number", "")
	if number == "" {
		number, _ = ParseSectionLabel(label.Text())
	}
	chapter, ok := el.Attr("data-chapter")
	if !ok {
		chapter = p.chapter
	}

	b := Block{
		Kind:         KindSection,
		ID:           el.AttrOr("id", ""),
		Chapter:      chapter,
		Number:       number,
		Repealed:     el.AttrOr("data-repealed", "") == "true",
		AmendedBy:    el.AttrOr("data-amended-by", ""),
		FootnoteRefs: refs,
	}
	var stycken []string
	el.Find("p").Each(func(_ int, para *goquery.Selection) {
		text := textproc.CollapseInline(para.Text())
		if text == "" {
			return
		}
		if b.AmendedBy == "" && amendmentRefRE.MatchString(text) {
			b.AmendedBy = text
			return
		}
		stycken = append(stycken, text)
	})
	b.Text = strings.Join(stycken, "\n\n")
	p.add(b)

	el.Find("table").Each(func(_ int, t *goquery.Selection) {
		if rows := tableRows(t); len(rows) > 0 {
			p.add(Block{Kind: KindTable, ID: t.AttrOr("id", ""), Rows: rows})
		}
	})
}

// legacySection öffnet einen Paragrafen aus h3.paragraph; folgende p-Geschwister gehören dazu.
func (p *htmlParser) legacySection(el *goquery.Selection) {
	refs := p.extractRefs(el)
	anchor := el.Find("a.paragraf").First()
	number, ok := ParseSectionLabel(el.Text())
	if !ok {
		p.pending = -1
		p.heading(el, goquery.NodeName(el))
		return
	}
	id := anchor.AttrOr("id", anchor.AttrOr("name", el.AttrOr("id", "")))
	p.add(Block{Kind: KindSection, ID: id, Chapter: p.chapter, Number: number, FootnoteRefs: refs})
	p.pending = len(p.doc.Blocks) - 1
}

func (p *htmlParser) extractRefs(el *goquery.Selection) []string {
	var refs []string
	el.Find("sup.footnote-ref").Each(func(_ int, s *goquery.Selection) {
		if a := s.Find("a[href^='#']").First(); a.Length() > 0 {
			refs = appendUnique(refs, strings.TrimPrefix(a.AttrOr("href", ""), "#"))
		} else if note := s.AttrOr("data-note", strings.TrimSpace(s.Text())); note != "" {
			refs = appendUnique(refs, FootnoteID(p.docID, note))
		}
		s.Remove()
	})
	return refs
}

// add vergibt fehlende IDs deterministisch nach Art und Ordinalzahl.
func (p *htmlParser) add(b Block) {
	p.ordinals[b.Kind]++
	if b.ID == "" {
		switch b.Kind {
		case KindSection:
			b.ID = SectionID(p.docID, b.Chapter, b.Number)
		case KindHeading:
			if b.Chapter != "" {
				b.ID = ChapterID(p.docID, b.Chapter)
			} else {
				b.ID = BlockID(p.docID, b.Kind, p.ordinals[b.Kind])
			}
		default:
			b.ID = BlockID(p.docID, b.Kind, p.ordinals[b.Kind])
		}
	}
	p.doc.Blocks = append(p.doc.Blocks, b)
}

func tableRows(t *goquery.Selection) [][]string {
	var rows [][]string
	t.Find("tr").Each(func(_ int, tr *goquery.Selection) {
		var row []string
		tr.Find("td, th").Each(func(_ int, cell *goquery.Selection) {
			row = append(row, textproc.CollapseInline(cell.Text()))
		})
		if len(row) > 0 {
			rows = append(rows, row)
		}
	})
	return rows
}

func joinStycke(existing, text string) string {
	if existing == "" {
		return text
	}
	return existing + "\n\n" + text
}

func inferContentType(id, class string) ContentType {
	switch {
	case strings.HasPrefix(strings.ToLower(id), "eu-"):
		return EURegulation
	case strings.HasPrefix(id, "SFS"):
		if strings.Contains(class, "amendment") {
			return SFSAmendment
		}
		return SFSLaw
	case agencyPrefixRE.MatchString(id):
		return AgencyRegulation
	}
	return SFSLaw
}
