package normalize

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"

	"lagflode/canonical"
	"lagflode/textproc"
)

var (
	anchorChapterRE  = regexp.MustCompile(`^K(\d+[a-z]?)$`)
	anchorSectionRE  = regexp.MustCompile(`^(?:K(\d+[a-z]?))?P(\d+[a-z]?)(?:S\d+)?$`)
	canonicalIDRE    = regexp.MustCompile(`_K(\d+[a-z]?)_P(\d+[a-z]?)$`)
	chapterIDRE      = regexp.MustCompile(`_K(\d+[a-z]?)$`)
	styckeAnchorRE   = regexp.MustCompile(`(?:^|P\d+[a-z]?)S\d+$`)
	footnoteLabelRE  = regexp.MustCompile(`^\(?([0-9]+[a-z]?|[*†]+)\)?$`)
	footnoteDLIDRE   = regexp.MustCompile(`(?i)(?:FOOTNOTE\.?|_FN)(\d+)`)
	footnoteDTRE     = regexp.MustCompile(`^\(?(\d+[a-z]?)\)?`)
	headingLevelRE   = regexp.MustCompile(`^h([1-6])$`)
	footnoteMarkerCS = "sup.footnote, sup.footnote-ref, button.footnote, a[id^='ntc'], span.oj-note-tag, a.oj-note-tag"
)

// flow läuft in Dokumentreihenfolge über den Inhaltscontainer und übersetzt
// die Strukturanker aller HTML-Layouts in assembler-Ereignisse.
type flow struct {
	a      *assembler
	lastBr bool
}

func (f *flow) walk(sel *goquery.Selection) {
	sel.Contents().Each(func(_ int, s *goquery.Selection) {
		f.node(s)
	})
}

func (f *flow) node(s *goquery.Selection) {
	n := s.Get(0)
	switch n.Type {
	case html.TextNode:
		if strings.TrimSpace(n.Data) != "" {
			f.lastBr = false
		}
		f.a.text(n.Data)
		return
	case html.ElementNode:
	default:
		return
	}

	tag := n.Data
	if tag != "br" {
		f.lastBr = false
	}
	if s.Is(footnoteMarkerCS) {
		f.marker(s)
		return
	}

	switch {
	case skipTags[tag]:
		return

	case tag == "br":
		if f.lastBr {
			f.a.breakStycke()
		} else {
			f.a.text(" ")
		}
		f.lastBr = true

	case s.Is("dl.footnote-content, dl[id*='FOOTNOTE']"):
		f.footnoteList(s)

	case tag == "a":
		f.anchor(s)

	case s.Is("span.section-sign"):
		if num, ok := canonical.ParseSectionLabel(s.Text()); ok {
			f.a.section("", num)
			return
		}
		f.walk(s)

	case s.Is("p.LedKapitel"):
		text := textproc.CollapseInline(s.Text())
		if ch, ok := canonical.ParseChapterLabel(text); ok {
			f.a.chapter(ch, text)
			return
		}
		f.a.heading(3, text)

	case s.Is("p.LedParagraf"):
		text := textproc.CollapseInline(s.Text())
		if num, ok := canonical.ParseSectionLabel(text); ok {
			f.a.section("", num)
			// Text hinter "N §" auf derselben Zeile gehört zum Paragrafen
			if rest := strings.TrimSpace(labelPrefixRE.ReplaceAllString(text, "")); rest != "" {
				f.a.text(rest)
			}
			return
		}
		f.block(s)

	case headingLevelRE.MatchString(tag):
		level, _ := strconv.Atoi(tag[1:])
		f.heading(s, level)

	case s.Is("div.general-recommendation"):
		title := textproc.CollapseInline(s.Find("div.h2").First().Text())
		if title == "" {
			title = "Allmänna råd"
		}
		s.Find("div.h2").Remove()
		f.a.heading(4, title)
		f.walk(s)
		f.a.close()

	case tag == "i" || tag == "em":
		text := textproc.CollapseInline(s.Text())
		if canonical.IsAmendmentRef(text) {
			f.a.breakStycke()
			f.a.text(text)
			f.a.breakStycke()
			return
		}
		f.walk(s)

	case tag == "p" || tag == "dd" || tag == "blockquote" || tag == "pre":
		f.block(s)

	case tag == "table":
		f.a.table(tableRows(s))

	case tag == "ul" || tag == "ol" || tag == "dl":
		s.Children().Each(func(_ int, li *goquery.Selection) {
			f.block(li)
		})

	case blockTags[tag]:
		f.block(s)

	default:
		f.walk(s)
	}
}

var skipTags = map[string]bool{
	"script": true, "style": true, "nav": true, "hr": true, "noscript": true,
	"head": true, "button": true, "form": true, "input": true, "iframe": true,
	"header": true, "svg": true, "img": true,
}

var blockTags = map[string]bool{
	"div": true, "section": true, "article": true, "main": true, "li": true,
	"dt": true, "footer": true, "aside": true, "figure": true, "details": true,
}

func (f *flow) block(s *goquery.Selection) {
	f.a.breakStycke()
	f.walk(s)
	f.a.breakStycke()
}

func (f *flow) anchor(s *goquery.Selection) {
	name := s.AttrOr("name", s.AttrOr("id", ""))
	switch {
	case s.HasClass("paragraf"):
		chapter, number := "", ""
		if m := anchorSectionRE.FindStringSubmatch(name); m != nil {
			chapter, number = m[1], m[2]
		}
		if m := canonicalIDRE.FindStringSubmatch(name); m != nil {
			chapter, number = m[1], m[2]
		}
		if num, ok := canonical.ParseSectionLabel(s.Text()); ok {
			number = num
		}
		if number == "" {
			f.walk(s)
			return
		}
		f.a.section(chapter, number)

	case name == "overgang":
		f.a.transition()

	case anchorChapterRE.MatchString(name) && strings.TrimSpace(s.Text()) == "":
		// Kapitelanker ohne Text, Überschrift folgt separat

	case styckeAnchorRE.MatchString(name):
		f.a.breakStycke()

	default:
		f.walk(s)
	}
}

func (f *flow) heading(s *goquery.Selection, level int) {
	text := textproc.CollapseInline(s.Text())

	// Notisum/Kanonisch: h3.paragraph trägt den Paragrafen
	if s.Find("a.paragraf").Length() > 0 {
		f.walk(s)
		return
	}
	if s.HasClass("paragraph") {
		chapter := ""
		if k := s.Find("span.kapitel"); k.Length() > 0 {
			chapter, _ = canonical.ParseChapterLabel(k.Text())
			k.Remove()
		}
		if m := canonicalIDRE.FindStringSubmatch(s.AttrOr("id", "")); m != nil && chapter == "" {
			chapter = m[1]
		}
		marks := f.markers(s)
		text = textproc.CollapseInline(s.Text())
		if num, ok := canonical.ParseSectionLabel(text); ok {
			f.a.section(chapter, num)
			f.a.text(marks)
			return
		}
		f.a.text(marks)
	}

	if ch := chapterOfHeading(s, text); ch != "" {
		f.a.chapter(ch, text)
		return
	}
	if level == 1 {
		// Titel steht bereits im Kopf; alles andere in h1 ist Fließtext
		if f.a.isPreamble(text) {
			return
		}
	}
	f.a.heading(level, text)
}

func chapterOfHeading(s *goquery.Selection, text string) string {
	for _, name := range []string{s.AttrOr("name", ""), s.Find("a[name^='K']").AttrOr("name", "")} {
		if m := anchorChapterRE.FindStringSubmatch(name); m != nil {
			return m[1]
		}
	}
	if v := s.AttrOr("data-chapter", ""); v != "" {
		return v
	}
	if len(text) > 200 {
		return ""
	}
	if ch, ok := canonical.ParseChapterLabel(text); ok {
		return ch
	}
	if m := chapterIDRE.FindStringSubmatch(s.AttrOr("id", "")); m != nil && s.HasClass("kapitel-rubrik") {
		return m[1]
	}
	return ""
}

// markers entfernt Fußnotenmarker aus s und liefert sie kodiert zurück.
func (f *flow) markers(s *goquery.Selection) string {
	var sb strings.Builder
	s.Find(footnoteMarkerCS).Each(func(_ int, m *goquery.Selection) {
		if label, raw := markerLabel(m); label != "" {
			sb.WriteString(canonical.FootnoteMarker(label, raw))
		}
		m.Remove()
	})
	return sb.String()
}

func (f *flow) marker(s *goquery.Selection) {
	label, raw := markerLabel(s)
	if label == "" {
		f.walk(s)
		return
	}
	f.a.text(canonical.FootnoteMarker(label, raw))
}

func markerLabel(s *goquery.Selection) (label, raw string) {
	raw = strings.TrimSpace(s.Text())
	for _, attr := range []string{"data-footnote", "data-note"} {
		if v := strings.TrimSpace(s.AttrOr(attr, "")); v != "" {
			return v, raw
		}
	}
	if m := footnoteLabelRE.FindStringSubmatch(raw); m != nil {
		return m[1], raw
	}
	return "", raw
}

// footnoteList liest dl.footnote-content (dt "1)" + dd Text).
func (f *flow) footnoteList(s *goquery.Selection) {
	label := ""
	if m := footnoteDLIDRE.FindStringSubmatch(s.AttrOr("id", "")); m != nil {
		label = m[1]
	}
	if label == "" {
		if m := footnoteDTRE.FindStringSubmatch(strings.TrimSpace(s.Find("dt").First().Text())); m != nil {
			label = m[1]
		}
	}
	f.a.footnote(label, s.Find("dd").Text())
}

func tableRows(t *goquery.Selection) [][]string {
	var rows [][]string
	t.Find("tr").Each(func(_ int, tr *goquery.Selection) {
		var row []string
		tr.Find("td, th").Each(func(_ int, cell *goquery.Selection) {
			row = append(row, cell.Text())
		})
		if len(row) > 0 {
			rows = append(rows, row)
		}
	})
	return rows
}
