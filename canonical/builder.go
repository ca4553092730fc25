package canonical

import (
	"fmt"
	"regexp"
	"strings"
)

// Fußnotenmarker werden während der Extraktion als Platzhalter in den Text geschrieben
// und erst in Build aufgelöst. Private-Use-Zeichen kommen in Quelltexten nicht vor.
const (
	markerOpen  = "\ue000"
	markerSep   = "\ue001"
	markerClose = "\ue002"
)

var markerRE = regexp.MustCompile("\ue000([^\ue001]*)\ue001([^\ue002]*)\ue002")

// FootnoteMarker kodiert einen Verweis auf die Fußnote label; raw ist der Originaltext
// des Markers, der stehen bleibt, falls die Fußnote nicht existiert.
func FootnoteMarker(label, raw string) string {
	return markerOpen + label + markerSep + raw + markerClose
}

// StripFootnoteMarkers entfernt alle Marker samt Rohtext.
func StripFootnoteMarkers(s string) string {
	return markerRE.ReplaceAllString(s, "")
}

// Builder setzt ein Document mit deterministischen IDs zusammen.
type Builder struct {
	doc      Document
	docID    string
	ordinals map[BlockKind]int
	used     map[string]int
	chapter  string
}

// NewBuilder beginnt ein neues Dokument.
func NewBuilder(documentNumber, title string, contentType ContentType) *Builder {
	return &Builder{
		doc: Document{
			SchemaVersion:  SchemaVersion,
			DocumentNumber: documentNumber,
			Title:          title,
			ContentType:    contentType,
		},
		docID:    DocID(documentNumber),
		ordinals: map[BlockKind]int{},
		used:     map[string]int{},
	}
}

// DocID liefert das Anker-Präfix des Dokuments.
func (b *Builder) DocID() string { return b.docID }

// SetEffectiveDate setzt das Inkrafttreten (YYYY-MM-DD).
func (b *Builder) SetEffectiveDate(date string) *Builder {
	b.doc.EffectiveDate = date
	return b
}

// AddReference fügt eine Gesetzesmaterial-Referenz hinzu (Prop., bet., rskr.).
func (b *Builder) AddReference(ref string) *Builder {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return b
	}
	for _, r := range b.doc.LegislativeReferences {
		if r == ref {
			return b
		}
	}
	b.doc.LegislativeReferences = append(b.doc.LegislativeReferences, ref)
	return b
}

// Chapter liefert das aktuell offene Kapitel ("" ohne Kapitel).
func (b *Builder) Chapter() string { return b.chapter }

func (b *Builder) uniqueID(id string) string {
	n := b.used[id]
	b.used[id] = n + 1
	if n == 0 {
		return id
	}
	return fmt.Sprintf("%s-%d", id, n+1)
}

func (b *Builder) nextID(kind BlockKind) string {
	b.ordinals[kind]++
	return b.uniqueID(BlockID(b.docID, kind, b.ordinals[kind]))
}

// Heading fügt eine Überschrift hinzu.
func (b *Builder) Heading(level int, text string) *Block {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	if level < 1 {
		level = 1
	}
	if level > 6 {
		level = 6
	}
	b.doc.Blocks = append(b.doc.Blocks, Block{Kind: KindHeading, ID: b.nextID(KindHeading), Level: level, Text: text})
	return &b.doc.Blocks[len(b.doc.Blocks)-1]
}

// ChapterHeading öffnet ein Kapitel; folgende Paragrafen erben die Nummer.
func (b *Builder) ChapterHeading(chapter, text string) *Block {
	b.chapter = chapter
	text = strings.TrimSpace(text)
	if text == "" {
		text = ChapterLabel(chapter)
	}
	id := b.uniqueID(ChapterID(b.docID, chapter))
	b.doc.Blocks = append(b.doc.Blocks, Block{Kind: KindHeading, ID: id, Level: 2, Chapter: chapter, Text: text})
	return &b.doc.Blocks[len(b.doc.Blocks)-1]
}

// CloseChapter beendet die Kapitelzuordnung (z.B. vor Övergångsbestämmelser).
func (b *Builder) CloseChapter() { b.chapter = "" }

// Section fügt einen Paragrafen im aktuellen Kapitel hinzu.
func (b *Builder) Section(number, text string) *Block {
	return b.SectionIn(b.chapter, number, text)
}

// SectionIn fügt einen Paragrafen mit explizitem Kapitel hinzu.
func (b *Builder) SectionIn(chapter, number, text string) *Block {
	id := b.uniqueID(SectionID(b.docID, chapter, number))
	b.doc.Blocks = append(b.doc.Blocks, Block{
		Kind:    KindSection,
		ID:      id,
		Chapter: chapter,
		Number:  number,
		Text:    strings.TrimSpace(text),
	})
	return &b.doc.Blocks[len(b.doc.Blocks)-1]
}

// AppendText hängt ein weiteres Stycke an den letzten Paragrafen bzw. Absatz an.
func (b *Builder) AppendText(text string) bool {
	text = strings.TrimSpace(text)
	if text == "" || len(b.doc.Blocks) == 0 {
		return false
	}
	last := &b.doc.Blocks[len(b.doc.Blocks)-1]
	if last.Kind != KindSection && last.Kind != KindParagraph {
		return false
	}
	if last.Text == "" {
		last.Text = text
	} else {
		last.Text += "\n\n" + text
	}
	return true
}

// LastSection liefert den zuletzt hinzugefügten Block, falls es ein Paragraf ist.
func (b *Builder) LastSection() *Block {
	if len(b.doc.Blocks) == 0 {
		return nil
	}
	last := &b.doc.Blocks[len(b.doc.Blocks)-1]
	if last.Kind != KindSection {
		return nil
	}
	return last
}

// Paragraph fügt Fließtext außerhalb von Paragrafen hinzu.
func (b *Builder) Paragraph(text string) *Block {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	b.doc.Blocks = append(b.doc.Blocks, Block{Kind: KindParagraph, ID: b.nextID(KindParagraph), Text: text})
	return &b.doc.Blocks[len(b.doc.Blocks)-1]
}

// Table fügt eine Tabelle hinzu; leere Tabellen werden ignoriert.
func (b *Builder) Table(rows [][]string) *Block {
	if len(rows) == 0 {
		return nil
	}
	b.doc.Blocks = append(b.doc.Blocks, Block{Kind: KindTable, ID: b.nextID(KindTable), Rows: rows})
	return &b.doc.Blocks[len(b.doc.Blocks)-1]
}

// Footnote fügt eine Fußnote mit Label hinzu.
func (b *Builder) Footnote(label, text string) *Block {
	label = strings.TrimSpace(label)
	text = strings.TrimSpace(text)
	if label == "" || text == "" {
		return nil
	}
	id := b.uniqueID(FootnoteID(b.docID, label))
	b.doc.Blocks = append(b.doc.Blocks, Block{Kind: KindFootnote, ID: id, Label: label, Text: text})
	return &b.doc.Blocks[len(b.doc.Blocks)-1]
}

// Len liefert die Anzahl bisheriger Blöcke.
func (b *Builder) Len() int { return len(b.doc.Blocks) }

// CountKind zählt Blöcke einer Art.
func (b *Builder) CountKind(kind BlockKind) int {
	n := 0
	for _, blk := range b.doc.Blocks {
		if blk.Kind == kind {
			n++
		}
	}
	return n
}

// Build löst Fußnotenmarker auf und gibt das fertige Dokument zurück. Marker ohne
// passende Fußnote bleiben als Klartext stehen.
func (b *Builder) Build() *Document {
	byLabel := map[string]int{}
	for i, blk := range b.doc.Blocks {
		if blk.Kind == KindFootnote {
			if _, ok := byLabel[blk.Label]; !ok {
				byLabel[blk.Label] = i
			}
		}
	}
	for i := range b.doc.Blocks {
		blk := &b.doc.Blocks[i]
		if blk.Kind == KindFootnote || !strings.Contains(blk.Text, markerOpen) {
			continue
		}
		blk.Text = markerRE.ReplaceAllStringFunc(blk.Text, func(m string) string {
			parts := markerRE.FindStringSubmatch(m)
			idx, ok := byLabel[parts[1]]
			if !ok {
				return parts[2]
			}
			fn := &b.doc.Blocks[idx]
			blk.FootnoteRefs = appendUnique(blk.FootnoteRefs, fn.ID)
			fn.Refs = appendUnique(fn.Refs, blk.ID)
			return ""
		})
		blk.Text = tidySpaces(blk.Text)
	}
	out := b.doc
	out.Blocks = append([]Block(nil), b.doc.Blocks...)
	return &out
}

func appendUnique(list []string, v string) []string {
	for _, x := range list {
		if x == v {
			return list
		}
	}
	return append(list, v)
}

var (
	doubleSpaceRE   = regexp.MustCompile(`[ \t]{2,}`)
	spaceBeforeRE   = regexp.MustCompile(`[ \t]+([.,;:])`)
	trailingSpaceRE = regexp.MustCompile(`[ \t]+\n`)
)

func tidySpaces(s string) string {
	s = doubleSpaceRE.ReplaceAllString(s, " ")
	s = spaceBeforeRE.ReplaceAllString(s, "$1")
	s = trailingSpaceRE.ReplaceAllString(s, "\n")
	return strings.TrimSpace(s)
}
