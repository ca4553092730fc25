package normalize

import (
	"html"
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"lagflode/canonical"
	"lagflode/textproc"
)

var (
	euNoteTextRE  = regexp.MustCompile(`^\(\s*(\d+)\s*\)\s*(.+)$`)
	euOJHeaderRE  = regexp.MustCompile(`officiella tidning|Official Journal|EUT |EGT `)
	euRomanRE     = regexp.MustCompile(`^[IVXLC]+$`)
	euArtTitleRE  = regexp.MustCompile(`(?i)^Art(?:ikel|icle)\s+(\d+\s*[a-z]?)`)
	euChapterNoRE = regexp.MustCompile(`^(?:cpt|chp)_([IVXLC]+|\d+)$`)
	euPointRE     = regexp.MustCompile(`^(?:\(?[a-z0-9]{1,4}\)|[a-z0-9]{1,4}\.|[-\x{2013}\x{2014}])$`)
)

// EUNormalizer verarbeitet EUR-Lex-HTML von Verordnungen und Richtlinien.
// Artikel werden zu Paragrafen mit Nummer "artN".
type EUNormalizer struct{}

func (EUNormalizer) Normalize(rawHTML string, p DetectedPattern, meta Metadata) (*canonical.Document, error) {
	v, ok := p.Variant()
	if !ok || (v != EUChaptered && v != EUFlat) {
		return GenericNormalizer{}.Normalize(rawHTML, Unknown(), meta)
	}
	doc, err := load(rawHTML)
	if err != nil {
		return nil, err
	}
	resolveTitle(doc, &meta)
	doc.Find(boilerplate).Remove()
	doc.Find("hr.oj-separator").Remove()
	doc.Find("table").FilterFunction(func(_ int, s *goquery.Selection) bool {
		return euOJHeaderRE.MatchString(s.Text())
	}).First().Remove()

	a := newAssembler(meta)
	euFootnotes(doc, a)

	recitals(doc, a)
	pointTables(doc.Selection)

	articles := doc.Find("[id^='art_']").FilterFunction(func(_ int, s *goquery.Selection) bool {
		return euArticleIDRE.MatchString(s.AttrOr("id", ""))
	})
	if articles.Length() > 0 {
		euArticles(articles, a, v == EUChaptered)
	} else {
		euFlatHeadings(doc, a)
	}
	return a.finish(string(v))
}

// euFootnotes sammelt die Fußnotentexte ("(1) ...") und entfernt sie aus dem Fließtext.
func euFootnotes(doc *goquery.Document, a *assembler) {
	doc.Find("[id^='ntr']").Each(func(_ int, s *goquery.Selection) {
		text := textproc.CollapseInline(s.Parent().Text())
		if m := euNoteTextRE.FindStringSubmatch(text); m != nil {
			a.footnote(m[1], m[2])
		}
		s.Parent().Remove()
	})
	doc.Find("div.oj-final p").Each(func(_ int, s *goquery.Selection) {
		if m := euNoteTextRE.FindStringSubmatch(textproc.CollapseInline(s.Text())); m != nil {
			a.footnote(m[1], m[2])
		}
	})
	doc.Find("div.oj-final").Remove()
}

// recitals: Bezugsvermerke und Erwägungsgründe werden Absätze vor dem ersten Artikel.
func recitals(doc *goquery.Document, a *assembler) {
	doc.Find("[id^='cit_'], [id^='rct_']").Each(func(_ int, s *goquery.Selection) {
		f := flow{a: a}
		if s.Find("table").Length() > 0 {
			// "(1)" | Text als zweispaltige Tabelle
			var parts []string
			s.Find("td").Each(func(_ int, td *goquery.Selection) {
				parts = append(parts, td.Text())
			})
			a.text(strings.Join(parts, " "))
			a.breakStycke()
			return
		}
		f.block(s)
	})
	doc.Find("[id^='pbl_'], [id^='cit_'], [id^='rct_']").Remove()
}

func euArticles(articles *goquery.Selection, a *assembler, chaptered bool) {
	current := ""
	articles.Each(func(_ int, art *goquery.Selection) {
		if chaptered {
			if ch, heading := euChapterOf(art); ch != "" && ch != current {
				current = ch
				a.chapter(ch, heading)
			}
		}
		euArticle(art, a, current)
	})
}

// euChapterOf sucht das äußerste Kapitel-Element oberhalb des Artikels.
func euChapterOf(art *goquery.Selection) (string, string) {
	var chapter *goquery.Selection
	art.ParentsFiltered("[id]").Each(func(_ int, s *goquery.Selection) {
		if euChapterIDRE.MatchString(s.AttrOr("id", "")) {
			chapter = s
		}
	})
	if chapter == nil {
		return "", ""
	}
	m := euChapterNoRE.FindStringSubmatch(chapter.AttrOr("id", ""))
	if m == nil {
		return "", ""
	}
	num := m[1]
	if euRomanRE.MatchString(num) {
		num = strconv.Itoa(canonical.RomanToArabic(num))
	}

	title := textproc.CollapseInline(chapter.ChildrenFiltered("p.oj-ti-section-1, p.oj-ti-grseq-1").First().Text())
	sub := textproc.CollapseInline(chapter.Find("p.oj-ti-section-2, p.oj-sti-grseq-1").First().Text())
	if title == "" {
		title = "KAPITEL " + m[1]
	}
	if sub != "" {
		title += " " + sub
	}
	return num, title
}

func euArticle(art *goquery.Selection, a *assembler, chapter string) {
	id := art.AttrOr("id", "")
	num := strings.TrimPrefix(id, "art_")
	title := art.Find("p.oj-ti-art").First()
	if m := euArtTitleRE.FindStringSubmatch(textproc.CollapseInline(title.Text())); m != nil {
		num = strings.ReplaceAll(m[1], " ", "")
	}
	if sub := textproc.CollapseInline(art.Find("p.oj-sti-art").First().Text()); sub != "" {
		a.heading(4, sub)
	}
	art.Find("p.oj-ti-art, p.oj-sti-art").Remove()

	a.section(chapter, "art"+num)
	f := flow{a: a}
	art.Children().Each(func(_ int, c *goquery.Selection) {
		f.node(c)
	})
	a.breakStycke()
}

// pointTables: EUR-Lex setzt Aufzählungen ("a)", "1.", "–") als zweispaltige
// Tabellen; sie werden zu Stycken des Artikels.
func pointTables(root *goquery.Selection) {
	root.Find("table").Each(func(_ int, t *goquery.Selection) {
		rows := t.Find("tr")
		if rows.Length() == 0 {
			return
		}
		var lines []string
		points := true
		rows.Each(func(_ int, tr *goquery.Selection) {
			cells := tr.ChildrenFiltered("td")
			label := textproc.CollapseInline(cells.First().Text())
			if cells.Length() != 2 || !euPointRE.MatchString(label) {
				points = false
				return
			}
			lines = append(lines, "<p>"+html.EscapeString(label+" "+textproc.CollapseInline(cells.Last().Text()))+"</p>")
		})
		if points {
			t.ReplaceWithHtml(strings.Join(lines, ""))
		}
	})
}

// euFlatHeadings: ohne art_-Container folgen die Artikel als p.oj-ti-art-Überschriften
// mit Geschwister-Absätzen bis zur nächsten Überschrift.
func euFlatHeadings(doc *goquery.Document, a *assembler) {
	doc.Find("p.oj-ti-art").Each(func(_ int, h *goquery.Selection) {
		m := euArtTitleRE.FindStringSubmatch(textproc.CollapseInline(h.Text()))
		if m == nil {
			return
		}
		body := h.NextUntil("p.oj-ti-art")
		if sub := body.First(); sub.Is("p.oj-sti-art") {
			a.heading(4, sub.Text())
			body = body.Not("p.oj-sti-art")
		}
		a.section("", "art"+strings.ReplaceAll(m[1], " ", ""))
		f := flow{a: a}
		body.Each(func(_ int, c *goquery.Selection) {
			f.node(c)
		})
		a.breakStycke()
	})
}
