// Package markdown wandelt kanonisches HTML in Markdown um und Markdown zurück
// in ein canonical.Document.
package markdown

import (
	"fmt"
	"regexp"
	"strings"

	"golang.org/x/net/html"

	"lagflode/canonical"
)

const repealedMark = "*(upphävd)*"

var (
	mdSpecialRE   = regexp.MustCompile("([\\\\`*_\\[\\]|<>])")
	listStartRE   = regexp.MustCompile(`^(\d+)([.)])(\s|$)`)
	blockStartRE  = regexp.MustCompile(`^([#+>=-])`)
	footnoteIDRE  = regexp.MustCompile(`_fn([^_]+)$`)
	whitespaceRun = regexp.MustCompile(`\s+`)
)

// HTMLToMarkdown rendert die Ausgabe von canonical.RenderHTML als Markdown.
// Paragrafen werden Listeneinträge "- **N §** Text", weitere Stycken eingerückt.
func HTMLToMarkdown(canonicalHTML string) (string, error) {
	root, err := html.Parse(strings.NewReader(canonicalHTML))
	if err != nil {
		return "", fmt.Errorf("parse canonical html: %w", err)
	}
	article := findElement(root, func(n *html.Node) bool {
		return n.Data == "article" && hasClass(n, "legal-document")
	})
	if article == nil {
		return "", &canonical.MalformedSourceError{Source: "canonical-html", Reason: "no article.legal-document"}
	}

	w := &writer{}
	if head := findElement(article, func(n *html.Node) bool { return hasClass(n, "lovhead") }); head != nil {
		var texts []string
		eachElement(head, func(n *html.Node) bool {
			if n.Data == "p" {
				texts = append(texts, textOf(n))
				return false
			}
			return true
		})
		if len(texts) > 0 && texts[len(texts)-1] != "" {
			w.block("# " + escape(texts[len(texts)-1]))
		}
	}

	body := findElement(article, func(n *html.Node) bool { return n.Data == "div" && hasClass(n, "body") })
	if body == nil {
		body = article
	}
	for c := body.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.ElementNode {
			w.node(c)
		}
	}
	w.footnotes()
	return w.String(), nil
}

type writer struct {
	sb      strings.Builder
	chapter string
	notes   []string
}

func (w *writer) String() string {
	return strings.TrimRight(w.sb.String(), "\n") + "\n"
}

func (w *writer) block(s string) {
	w.sb.WriteString(s)
	w.sb.WriteString("\n\n")
}

func (w *writer) node(n *html.Node) {
	switch {
	case len(n.Data) == 2 && n.Data[0] == 'h' && n.Data[1] >= '1' && n.Data[1] <= '6':
		w.heading(n, int(n.Data[1]-'0'))
	case n.Data == "section" && hasClass(n, "paragraf"):
		w.section(n)
	case n.Data == "p":
		text := escape(textOf(n)) + noteRefs(n)
		if strings.TrimSpace(text) != "" {
			w.block(text)
		}
	case n.Data == "table":
		w.table(n)
	case n.Data == "aside" && hasClass(n, "footnote"):
		w.notes = append(w.notes, fmt.Sprintf("[^%s]: %s", attr(n, "data-label"), escape(textOf(n))))
	}
}

func (w *writer) heading(n *html.Node, level int) {
	text := textOf(n)
	line := strings.Repeat("#", level) + " " + escape(text)
	if ch := attr(n, "data-chapter"); ch != "" {
		w.chapter = ch
		if parsed, ok := canonical.ParseChapterLabel(text); !ok || parsed != ch {
			// Kapitelnummer nicht aus dem Text ableitbar (EU: "KAPITEL II")
			line += " {#" + attr(n, "id") + "}"
		}
	} else if level <= 2 {
		w.chapter = ""
	}
	w.block(line)
}

func (w *writer) section(n *html.Node) {
	number := attr(n, "data-number")
	chapter := attr(n, "data-chapter")
	label := canonical.SectionLabel(number)
	if chapter != "" && chapter != w.chapter {
		label = canonical.ChapterLabel(chapter) + " " + label
	}

	var refs string
	var stycken []string
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type != html.ElementNode {
			continue
		}
		switch c.Data {
		case "h3":
			refs = noteRefs(c)
		case "p":
			if t := textOf(c); t != "" {
				stycken = append(stycken, t)
			}
		}
	}

	first := "- **" + label + "**"
	if attr(n, "data-repealed") == "true" {
		first += " " + repealedMark
	}
	if len(stycken) > 0 {
		first += " " + escape(stycken[0])
	}
	first += refs

	var sb strings.Builder
	sb.WriteString(first)
	for _, s := range stycken[min(1, len(stycken)):] {
		sb.WriteString("\n\n  ")
		sb.WriteString(escape(s))
	}
	if by := attr(n, "data-amended-by"); by != "" {
		sb.WriteString("\n\n  *")
		sb.WriteString(escape(by))
		sb.WriteString("*")
	}
	w.block(sb.String())
}

func (w *writer) table(n *html.Node) {
	var rows [][]string
	width := 0
	eachElement(n, func(c *html.Node) bool {
		if c.Data != "tr" {
			return true
		}
		var row []string
		for td := c.FirstChild; td != nil; td = td.NextSibling {
			if td.Type == html.ElementNode && (td.Data == "td" || td.Data == "th") {
				row = append(row, escape(textOf(td)))
			}
		}
		width = max(width, len(row))
		rows = append(rows, row)
		return false
	})
	if len(rows) == 0 {
		return
	}
	line := func(cells []string) string {
		for len(cells) < width {
			cells = append(cells, "")
		}
		return "| " + strings.Join(cells, " | ") + " |"
	}
	lines := []string{line(rows[0]), line(repeat("---", width))}
	for _, r := range rows[1:] {
		lines = append(lines, line(r))
	}
	w.block(strings.Join(lines, "\n"))
}

func (w *writer) footnotes() {
	if len(w.notes) > 0 {
		w.block(strings.Join(w.notes, "\n\n"))
	}
}

func repeat(s string, n int) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = s
	}
	return out
}

// noteRefs wandelt sup.footnote-ref in Markdown-Fußnotenverweise.
func noteRefs(n *html.Node) string {
	var sb strings.Builder
	eachElement(n, func(c *html.Node) bool {
		if c.Data == "sup" && hasClass(c, "footnote-ref") {
			if a := findElement(c, func(x *html.Node) bool { return x.Data == "a" }); a != nil {
				if m := footnoteIDRE.FindStringSubmatch(strings.TrimPrefix(attr(a, "href"), "#")); m != nil {
					sb.WriteString("[^" + m[1] + "]")
				}
			}
			return false
		}
		return true
	})
	return sb.String()
}

// escape maskiert Markdown-Syntax in Fließtext, auch Listenanfänge wie "1." am Zeilenanfang.
func escape(s string) string {
	s = whitespaceRun.ReplaceAllString(strings.TrimSpace(s), " ")
	s = mdSpecialRE.ReplaceAllString(s, `\$1`)
	if listStartRE.MatchString(s) {
		s = listStartRE.ReplaceAllString(s, `$1\$2$3`)
	}
	if blockStartRE.MatchString(s) {
		s = `\` + s
	}
	return s
}

// textOf sammelt den Text eines Elements ohne Fußnotenverweise.
func textOf(n *html.Node) string {
	var sb strings.Builder
	var walk func(*html.Node)
	walk = func(c *html.Node) {
		switch c.Type {
		case html.TextNode:
			sb.WriteString(c.Data)
		case html.ElementNode:
			if c.Data == "sup" && hasClass(c, "footnote-ref") {
				return
			}
			fallthrough
		default:
			for x := c.FirstChild; x != nil; x = x.NextSibling {
				walk(x)
			}
		}
	}
	walk(n)
	return strings.TrimSpace(whitespaceRun.ReplaceAllString(sb.String(), " "))
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

func hasClass(n *html.Node, class string) bool {
	for _, c := range strings.Fields(attr(n, "class")) {
		if c == class {
			return true
		}
	}
	return false
}

func findElement(n *html.Node, match func(*html.Node) bool) *html.Node {
	var found *html.Node
	eachElement(n, func(c *html.Node) bool {
		if found != nil {
			return false
		}
		if match(c) {
			found = c
			return false
		}
		return true
	})
	return found
}

// eachElement besucht alle Element-Nachfahren in Dokumentreihenfolge; gibt fn
// false zurück, wird der Teilbaum übersprungen.
func eachElement(n *html.Node, fn func(*html.Node) bool) {
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type != html.ElementNode {
			continue
		}
		if fn(c) {
			eachElement(c, fn)
		}
	}
}
