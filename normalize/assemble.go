package normalize

import (
	"regexp"
	"strings"

	"lagflode/canonical"
	"lagflode/textproc"
)

var (
	repealedRE   = regexp.MustCompile(`(?i)^\[?(?:har upphävts|upphävd|har upphört att gälla)\b`)
	transitionRE = regexp.MustCompile(`(?i)^(?:ikraftträdande-? och )?övergångsbestämmelser|^ikraftträdande(?:bestämmelser)?$`)
	parenRE      = regexp.MustCompile(`\s*\(.*\)`)
)

type footnote struct {
	label, text string
}

// assembler nimmt die Ereignisse der Layout-Walker entgegen (Kapitel, Paragraf,
// Text, Absatzende ...) und baut daraus über canonical.Builder das Dokument.
type assembler struct {
	b     *canonical.Builder
	meta  Metadata
	rules textproc.HyphenRules

	buf          strings.Builder
	open         bool   // letzter Block ist ein Paragraf, Text wird angehängt
	pendingMarks string // Fußnotenmarker aus der Paragrafenüberschrift
	inTransition bool
	footnotes    []footnote
	seenNotes    map[string]bool
	hyphenFixes  int
}

func newAssembler(meta Metadata) *assembler {
	rules := meta.Hyphen
	if rules.IsZero() {
		rules = textproc.DefaultHyphenRules()
	}
	b := canonical.NewBuilder(meta.DocumentNumber, meta.Title, meta.ContentType)
	b.SetEffectiveDate(meta.EffectiveDate)
	return &assembler{b: b, meta: meta, rules: rules, seenNotes: map[string]bool{}}
}

func (a *assembler) text(s string) {
	a.buf.WriteString(s)
}

// breakStycke schließt den gepufferten Text als eigenes Stycke ab.
func (a *assembler) breakStycke() {
	raw := a.buf.String()
	a.buf.Reset()
	text := a.clean(raw)
	if text == "" || isMarkerOnly(text) {
		if text != "" {
			a.pendingMarks += text
		}
		return
	}
	if a.pendingMarks != "" {
		text = a.pendingMarks + " " + text
		a.pendingMarks = ""
	}

	if a.open {
		sec := a.b.LastSection()
		if sec != nil {
			if canonical.IsAmendmentRef(text) {
				sec.AmendedBy = text
				return
			}
			if sec.Text == "" && repealedRE.MatchString(text) {
				sec.Repealed = true
			}
		}
		if a.b.AppendText(text) {
			return
		}
	}
	if a.isPreamble(text) {
		return
	}
	// Stycken außerhalb von Paragrafen bleiben eigene Blöcke
	a.b.Paragraph(text)
	a.open = false
}

func (a *assembler) clean(raw string) string {
	text := textproc.CollapseInline(textproc.NormalizeUnicode(raw))
	text, n := textproc.RepairHyphenation(text, a.rules)
	a.hyphenFixes += n
	return text
}

func (a *assembler) close() {
	a.breakStycke()
	a.open = false
}

// chapter öffnet ein Kapitel. text ist die vollständige Überschrift.
func (a *assembler) chapter(ch, text string) {
	a.close()
	if a.inTransition {
		a.b.Paragraph(a.clean(text))
		return
	}
	a.b.ChapterHeading(ch, a.clean(text))
}

// section beginnt einen Paragrafen; chapter "" übernimmt das offene Kapitel.
func (a *assembler) section(chapter, number string) {
	a.close()
	if a.inTransition {
		// Paragrafen in Övergångsbestämmelser sind Fließtext
		a.text(canonical.SectionLabel(number) + " ")
		return
	}
	if chapter == "" {
		chapter = a.b.Chapter()
	}
	a.b.SectionIn(chapter, number, "")
	a.open = true
}

func (a *assembler) heading(level int, text string) {
	a.close()
	text = a.clean(text)
	if text == "" || a.isPreamble(text) {
		return
	}
	if transitionRE.MatchString(text) {
		a.transition()
		return
	}
	if level < 3 {
		level = 3
	}
	a.b.Heading(level, text)
}

func (a *assembler) transition() {
	a.close()
	if a.inTransition {
		return
	}
	a.inTransition = true
	a.b.CloseChapter()
	a.b.Heading(2, "Övergångsbestämmelser")
}

func (a *assembler) table(rows [][]string) {
	a.close()
	var clean [][]string
	for _, r := range rows {
		row := make([]string, 0, len(r))
		empty := true
		for _, c := range r {
			c = a.clean(c)
			if c != "" {
				empty = false
			}
			row = append(row, c)
		}
		if !empty {
			clean = append(clean, row)
		}
	}
	a.b.Table(clean)
}

func (a *assembler) footnote(label, text string) {
	label = strings.TrimSpace(label)
	text = a.clean(text)
	if label == "" || text == "" || a.seenNotes[label] {
		return
	}
	a.seenNotes[label] = true
	a.footnotes = append(a.footnotes, footnote{label: label, text: text})
}

func (a *assembler) reference(ref string) {
	a.b.AddReference(ref)
}

// finish hängt die Fußnoten an und prüft die Mindeststruktur.
func (a *assembler) finish(source string) (*canonical.Document, error) {
	a.close()
	if a.pendingMarks != "" {
		a.b.Paragraph(a.pendingMarks)
		a.pendingMarks = ""
	}
	if strings.TrimSpace(a.meta.Title) == "" {
		return nil, &canonical.MalformedSourceError{Source: source, Reason: "no title"}
	}
	if a.b.CountKind(canonical.KindSection)+a.b.CountKind(canonical.KindParagraph) == 0 {
		return nil, &canonical.MalformedSourceError{Source: source, Reason: "no section or paragraph content"}
	}
	for _, fn := range a.footnotes {
		a.b.Footnote(fn.label, fn.text)
	}
	return a.b.Build(), nil
}

// isPreamble: Titel, "utfärdad den ...", "Regeringen föreskriver ..." stehen bereits im Kopf.
func (a *assembler) isPreamble(text string) bool {
	lower := strings.ToLower(strings.TrimSpace(text))
	title := strings.ToLower(strings.TrimSpace(parenRE.ReplaceAllString(a.meta.Title, "")))
	switch {
	case lower == "":
		return true
	case title != "" && (lower == title || lower == strings.ToLower(a.meta.Title)):
		return true
	case strings.HasPrefix(lower, "utfärdad den "), strings.HasPrefix(lower, "utfärdad:"):
		return true
	case strings.HasPrefix(lower, "regeringen föreskriver"):
		return true
	case strings.HasPrefix(strings.TrimPrefix(lower, "/"), "träder i kraft"):
		return true
	}
	return false
}

func isMarkerOnly(s string) bool {
	return s != "" && strings.TrimSpace(canonical.StripFootnoteMarkers(s)) == ""
}
