package markdown

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/yuin/goldmark"
	gast "github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/extension"
	extast "github.com/yuin/goldmark/extension/ast"
	"github.com/yuin/goldmark/parser"
	"github.com/yuin/goldmark/text"
	"github.com/yuin/goldmark/util"

	"lagflode/canonical"
)

var (
	chapterIDRE    = regexp.MustCompile(`_K(\d+[a-z]?)$`)
	chapterLabelRE = regexp.MustCompile(`^(\d+\s*[a-z]?)\s*kap\.\s+`)
)

// Meta sind die Angaben, die im Markdown nicht enthalten sind.
type Meta struct {
	DocumentNumber string
	Title          string // leer: erste #-Überschrift
	ContentType    canonical.ContentType
	EffectiveDate  string
}

var md = goldmark.New(
	goldmark.WithExtensions(extension.Table, extension.Footnote),
	goldmark.WithParserOptions(parser.WithAttribute()),
)

// MarkdownToDocument liest Markdown im Format von HTMLToMarkdown und baut die
// Blöcke mit demselben ID-Schema wieder auf.
func MarkdownToDocument(src string, meta Meta) (*canonical.Document, error) {
	if strings.TrimSpace(meta.DocumentNumber) == "" {
		return nil, fmt.Errorf("markdown: document number required")
	}
	if meta.ContentType == "" {
		meta.ContentType = canonical.SFSLaw
	}
	source := []byte(src)
	root := md.Parser().Parse(text.NewReader(source))

	c := &converter{src: source, labels: map[int]string{}}
	start := root.FirstChild()
	if h, ok := start.(*gast.Heading); ok && h.Level == 1 {
		if meta.Title == "" {
			meta.Title = c.inline(h)
		}
		start = start.NextSibling()
	}
	if strings.TrimSpace(meta.Title) == "" {
		return nil, &canonical.MalformedSourceError{Source: "markdown", Reason: "no title"}
	}
	c.collectFootnotes(root)

	c.b = canonical.NewBuilder(meta.DocumentNumber, meta.Title, meta.ContentType)
	c.b.SetEffectiveDate(meta.EffectiveDate)
	for n := start; n != nil; n = n.NextSibling() {
		c.block(n)
	}
	for _, fn := range c.notes {
		c.b.Footnote(fn.label, fn.text)
	}
	return c.b.Build(), nil
}

type note struct {
	label, text string
	pos         int
}

type converter struct {
	src    []byte
	b      *canonical.Builder
	labels map[int]string
	notes  []note
}

// collectFootnotes liest die Fußnotendefinitionen in Quelltextreihenfolge.
func (c *converter) collectFootnotes(root gast.Node) {
	_ = gast.Walk(root, func(n gast.Node, entering bool) (gast.WalkStatus, error) {
		if !entering {
			return gast.WalkContinue, nil
		}
		fn, ok := n.(*extast.Footnote)
		if !ok {
			return gast.WalkContinue, nil
		}
		label := string(fn.Ref)
		c.labels[fn.Index] = label
		var parts []string
		pos := 0
		for p := fn.FirstChild(); p != nil; p = p.NextSibling() {
			if pos == 0 && p.Lines().Len() > 0 {
				pos = p.Lines().At(0).Start
			}
			if t := c.inline(p); t != "" {
				parts = append(parts, t)
			}
		}
		c.notes = append(c.notes, note{label: label, text: strings.Join(parts, "\n\n"), pos: pos})
		return gast.WalkSkipChildren, nil
	})
	sort.SliceStable(c.notes, func(i, j int) bool { return c.notes[i].pos < c.notes[j].pos })
}

func (c *converter) block(n gast.Node) {
	switch v := n.(type) {
	case *gast.Heading:
		c.heading(v)
	case *gast.List:
		for item := v.FirstChild(); item != nil; item = item.NextSibling() {
			c.listItem(item)
		}
	case *gast.Paragraph, *gast.TextBlock:
		c.b.Paragraph(c.inline(v))
	case *extast.Table:
		c.table(v)
	case *extast.FootnoteList:
		// bereits in collectFootnotes gelesen
	case *gast.Blockquote:
		for ch := v.FirstChild(); ch != nil; ch = ch.NextSibling() {
			c.block(ch)
		}
	}
}

func (c *converter) heading(h *gast.Heading) {
	text := c.inline(h)
	chapter := ""
	if id, ok := h.AttributeString("id"); ok {
		if b, ok := id.([]byte); ok {
			if m := chapterIDRE.FindStringSubmatch(string(b)); m != nil {
				chapter = m[1]
			}
		}
	}
	if chapter == "" && h.Level == 2 {
		chapter, _ = canonical.ParseChapterLabel(text)
	}
	switch {
	case chapter != "":
		c.b.ChapterHeading(chapter, text)
	case h.Level <= 2:
		c.b.CloseChapter()
		c.b.Heading(h.Level, text)
	default:
		c.b.Heading(h.Level, text)
	}
}

// listItem: "**N §**" bzw. "**N kap. N §**" am Anfang macht aus dem Eintrag einen Paragrafen.
func (c *converter) listItem(item gast.Node) {
	first := item.FirstChild()
	if first == nil {
		return
	}
	chapter, number, rest, ok := c.sectionHead(first)
	if !ok {
		for ch := item.FirstChild(); ch != nil; ch = ch.NextSibling() {
			c.block(ch)
		}
		return
	}

	repealed := false
	if r, found := strings.CutPrefix(rest, "(upphävd)"); found {
		repealed = true
		rest = strings.TrimSpace(r)
	}
	if chapter == "" {
		chapter = c.b.Chapter()
	}
	sec := c.b.SectionIn(chapter, number, "")
	sec.Repealed = repealed
	c.b.AppendText(rest)

	for ch := first.NextSibling(); ch != nil; ch = ch.NextSibling() {
		t := c.inline(ch)
		if isEmphasisOnly(ch) && canonical.IsAmendmentRef(t) {
			if last := c.b.LastSection(); last != nil {
				last.AmendedBy = t
			}
			continue
		}
		c.b.AppendText(t)
	}
}

func (c *converter) sectionHead(n gast.Node) (chapter, number, rest string, ok bool) {
	strong, isEmph := n.FirstChild().(*gast.Emphasis)
	if !isEmph || strong.Level != 2 {
		return "", "", "", false
	}
	label := c.inline(strong)
	if m := chapterLabelRE.FindStringSubmatch(label); m != nil {
		chapter = strings.ReplaceAll(m[1], " ", "")
		label = label[len(m[0]):]
	}
	number, ok = canonical.ParseSectionLabel(label)
	if !ok {
		return "", "", "", false
	}
	var sb strings.Builder
	c.inlineFrom(strong.NextSibling(), &sb)
	return chapter, number, strings.TrimSpace(sb.String()), true
}

func isEmphasisOnly(n gast.Node) bool {
	e, ok := n.FirstChild().(*gast.Emphasis)
	return ok && e.Level == 1 && n.FirstChild() == n.LastChild()
}

func (c *converter) table(t *extast.Table) {
	var rows [][]string
	for r := t.FirstChild(); r != nil; r = r.NextSibling() {
		var row []string
		for cell := r.FirstChild(); cell != nil; cell = cell.NextSibling() {
			row = append(row, c.inline(cell))
		}
		rows = append(rows, row)
	}
	c.b.Table(rows)
}

// inline sammelt den Text aller Inline-Kinder von n; Fußnotenverweise werden Marker.
func (c *converter) inline(n gast.Node) string {
	var sb strings.Builder
	c.inlineFrom(n.FirstChild(), &sb)
	return strings.TrimSpace(sb.String())
}

func (c *converter) inlineFrom(first gast.Node, sb *strings.Builder) {
	for n := first; n != nil; n = n.NextSibling() {
		switch v := n.(type) {
		case *gast.Text:
			sb.Write(unescape(v.Value(c.src)))
			if v.SoftLineBreak() || v.HardLineBreak() {
				sb.WriteByte(' ')
			}
		case *gast.String:
			sb.Write(v.Value)
		case *gast.AutoLink:
			sb.Write(v.URL(c.src))
		case *extast.FootnoteLink:
			if label, ok := c.labels[v.Index]; ok {
				sb.WriteString(canonical.FootnoteMarker(label, ""))
			}
		case *extast.FootnoteBacklink, *gast.RawHTML:
		default:
			c.inlineFrom(n.FirstChild(), sb)
		}
	}
}

func unescape(b []byte) []byte {
	return util.ResolveNumericReferences(util.ResolveEntityNames(util.UnescapePunctuations(b)))
}
