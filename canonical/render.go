package canonical

import (
	"fmt"
	"strings"

	"golang.org/x/net/html"
)

// RenderHTML erzeugt das kanonische HTML (htmlContent). Blöcke werden als flache
// Geschwister in div.body ausgegeben; Paragrafen tragen data-chapter/data-number.
func RenderHTML(doc *Document) string {
	var sb strings.Builder
	esc := html.EscapeString
	docID := DocID(doc.DocumentNumber)

	fmt.Fprintf(&sb, `<article class="legal-document" id="%s" data-content-type="%s" data-schema-version="%s"`,
		esc(docID), esc(string(doc.ContentType)), esc(doc.SchemaVersion))
	if doc.EffectiveDate != "" {
		fmt.Fprintf(&sb, ` data-effective-date="%s"`, esc(doc.EffectiveDate))
	}
	sb.WriteString(">\n")

	sb.WriteString("  <div class=\"lovhead\">\n    <h1>\n")
	fmt.Fprintf(&sb, "      <p class=\"text\">%s</p>\n", esc(doc.DocumentNumber))
	fmt.Fprintf(&sb, "      <p class=\"text\">%s</p>\n", esc(doc.Title))
	sb.WriteString("    </h1>\n  </div>\n")

	if len(doc.LegislativeReferences) > 0 {
		sb.WriteString("  <ul class=\"legislative-references\">\n")
		for _, ref := range doc.LegislativeReferences {
			fmt.Fprintf(&sb, "    <li>%s</li>\n", esc(ref))
		}
		sb.WriteString("  </ul>\n")
	}

	sb.WriteString("  <div class=\"body\">\n")
	for _, b := range doc.Blocks {
		renderBlock(&sb, b)
	}
	sb.WriteString("  </div>\n</article>\n")
	return sb.String()
}

func renderBlock(sb *strings.Builder, b Block) {
	esc := html.EscapeString
	switch b.Kind {
	case KindHeading:
		class := "heading"
		chapterAttr := ""
		if b.Chapter != "" {
			class += " kapitel-rubrik"
			chapterAttr = fmt.Sprintf(` data-chapter="%s"`, esc(b.Chapter))
		}
		fmt.Fprintf(sb, "    <h%d class=\"%s\" id=\"%s\"%s>%s</h%d>\n", b.Level, class, esc(b.ID), chapterAttr, esc(b.Text), b.Level)

	case KindSection:
		fmt.Fprintf(sb, `    <section class="paragraf" id="%s" data-chapter="%s" data-number="%s"`, esc(b.ID), esc(b.Chapter), esc(b.Number))
		if b.Repealed {
			sb.WriteString(` data-repealed="true"`)
		}
		if b.AmendedBy != "" {
			fmt.Fprintf(sb, ` data-amended-by="%s"`, esc(b.AmendedBy))
		}
		sb.WriteString(">\n")
		fmt.Fprintf(sb, "      <h3 class=\"paragraph\"><a class=\"paragraf\" name=\"%s\">%s</a>%s</h3>\n",
			esc(b.ID), esc(SectionLabel(b.Number)), footnoteRefs(b.FootnoteRefs))
		for _, p := range splitStycken(b.Text) {
			fmt.Fprintf(sb, "      <p class=\"text\">%s</p>\n", esc(p))
		}
		sb.WriteString("    </section>\n")

	case KindParagraph:
		fmt.Fprintf(sb, "    <p class=\"text\" id=\"%s\">%s%s</p>\n", esc(b.ID), esc(b.Text), footnoteRefs(b.FootnoteRefs))

	case KindTable:
		fmt.Fprintf(sb, "    <table class=\"legal-table\" id=\"%s\">\n", esc(b.ID))
		for _, row := range b.Rows {
			sb.WriteString("      <tr>")
			for _, cell := range row {
				fmt.Fprintf(sb, "<td>%s</td>", esc(cell))
			}
			sb.WriteString("</tr>\n")
		}
		sb.WriteString("    </table>\n")

	case KindFootnote:
		fmt.Fprintf(sb, "    <aside class=\"footnote\" id=\"%s\" data-label=\"%s\"", esc(b.ID), esc(b.Label))
		if len(b.Refs) > 0 {
			fmt.Fprintf(sb, ` data-refs="%s"`, esc(strings.Join(b.Refs, " ")))
		}
		fmt.Fprintf(sb, ">%s</aside>\n", esc(b.Text))
	}
}

func footnoteRefs(ids []string) string {
	var sb strings.Builder
	for _, id := range ids {
		label := id
		if i := strings.LastIndex(id, "_fn"); i >= 0 {
			label = id[i+3:]
		}
		fmt.Fprintf(&sb, `<sup class="footnote-ref"><a href="#%s">%s</a></sup>`, html.EscapeString(id), html.EscapeString(label))
	}
	return sb.String()
}

func splitStycken(text string) []string {
	var out []string
	for _, p := range strings.Split(text, "\n\n") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
