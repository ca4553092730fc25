// Package canonical beschreibt das quellenunabhängige Dokumentmodell aller Rechtsakte:
// eine flache, geordnete Folge typisierter Blöcke plus Metadaten.
package canonical

import (
	"strings"
)

// SchemaVersion wird in jedes jsonContent geschrieben, damit ältere Dokumente lesbar bleiben.
const SchemaVersion = "1.0"

// ContentType klassifiziert ein LegalDocument.
type ContentType string

const (
	SFSLaw           ContentType = "SFS_LAW"
	SFSAmendment     ContentType = "SFS_AMENDMENT"
	EURegulation     ContentType = "EU_REGULATION"
	EUDirective      ContentType = "EU_DIRECTIVE"
	AgencyRegulation ContentType = "AGENCY_REGULATION"
	CourtCaseAD      ContentType = "COURT_CASE_AD"
	CourtCaseHD      ContentType = "COURT_CASE_HD"
	CourtCaseHFD     ContentType = "COURT_CASE_HFD"
	CourtCaseMOD     ContentType = "COURT_CASE_MOD"
	CourtCaseMIG     ContentType = "COURT_CASE_MIG"
)

var contentTypeLabels = map[ContentType]string{
	SFSLaw:           "Lag",
	SFSAmendment:     "Ändringsförfattning",
	EURegulation:     "EU-förordning",
	EUDirective:      "EU-direktiv",
	AgencyRegulation: "Myndighetsföreskrift",
	CourtCaseAD:      "Arbetsdomstolen",
	CourtCaseHD:      "Högsta domstolen",
	CourtCaseHFD:     "Högsta förvaltningsdomstolen",
	CourtCaseMOD:     "Mark- och miljööverdomstolen",
	CourtCaseMIG:     "Migrationsöverdomstolen",
}

// Valid prüft, ob der Typ bekannt ist.
func (c ContentType) Valid() bool {
	_, ok := contentTypeLabels[c]
	return ok
}

// Label liefert die schwedische Anzeigebezeichnung.
func (c ContentType) Label() string {
	if l, ok := contentTypeLabels[c]; ok {
		return l
	}
	return string(c)
}

func (c ContentType) IsSfs() bool { return c == SFSLaw || c == SFSAmendment }

func (c ContentType) IsEu() bool { return c == EURegulation || c == EUDirective }

func (c ContentType) IsCourtCase() bool { return strings.HasPrefix(string(c), "COURT_CASE_") }

// IsStatutory: vom Gesetzgeber erlassene Rechtsakte (SFS und EU), im Gegensatz zu
// Behördenvorschriften und Urteilen.
func (c ContentType) IsStatutory() bool { return c.IsSfs() || c.IsEu() }

// BlockKind ist das Tag der Block-Union.
type BlockKind string

const (
	KindHeading   BlockKind = "HEADING"
	KindSection   BlockKind = "SECTION"
	KindParagraph BlockKind = "PARAGRAPH"
	KindFootnote  BlockKind = "FOOTNOTE"
	KindTable     BlockKind = "TABLE"
)

// Block ist ein typisierter Baustein. Welche Felder belegt sind, hängt von Kind ab:
//
//	HEADING   Level, Text, ID (Chapter bei Kapitelüberschriften)
//	SECTION   Chapter?, Number, Text, ID, Repealed, AmendedBy, FootnoteRefs
//	PARAGRAPH Text, ID, FootnoteRefs
//	FOOTNOTE  ID, Label, Text, Refs (IDs der verweisenden Blöcke)
//	TABLE     ID, Rows
type Block struct {
	Kind         BlockKind  `json:"kind"`
	ID           string     `json:"id"`
	Level        int        `json:"level,omitempty"`
	Chapter      string     `json:"chapter,omitempty"`
	Number       string     `json:"number,omitempty"`
	Label        string     `json:"label,omitempty"`
	Text         string     `json:"text,omitempty"`
	Repealed     bool       `json:"repealed,omitempty"`
	AmendedBy    string     `json:"amendedBy,omitempty"`
	FootnoteRefs []string   `json:"footnoteRefs,omitempty"`
	Refs         []string   `json:"refs,omitempty"`
	Rows         [][]string `json:"rows,omitempty"`
}

// Document ist das kanonische JSON (jsonContent).
type Document struct {
	SchemaVersion         string      `json:"schemaVersion"`
	DocumentNumber        string      `json:"documentNumber"`
	Title                 string      `json:"title"`
	ContentType           ContentType `json:"contentType"`
	EffectiveDate         string      `json:"effectiveDate,omitempty"`
	LegislativeReferences []string    `json:"legislativeReferences,omitempty"`
	Blocks                []Block     `json:"blocks"`
}

// Sections liefert alle SECTION-Blöcke in Dokumentreihenfolge.
func (d *Document) Sections() []Block {
	var out []Block
	for _, b := range d.Blocks {
		if b.Kind == KindSection {
			out = append(out, b)
		}
	}
	return out
}

// BlockByID sucht einen Block; nil, wenn keiner existiert.
func (d *Document) BlockByID(id string) *Block {
	for i := range d.Blocks {
		if d.Blocks[i].ID == id {
			return &d.Blocks[i]
		}
	}
	return nil
}

// PlainText erzeugt den Volltext (fullText) eines Dokuments.
func (d *Document) PlainText() string {
	parts := make([]string, 0, len(d.Blocks)+1)
	if d.Title != "" {
		parts = append(parts, d.Title)
	}
	for _, b := range d.Blocks {
		if t := BlockText(b); t != "" {
			parts = append(parts, t)
		}
	}
	return strings.Join(parts, "\n\n")
}

// BlockText ist die Textdarstellung eines einzelnen Blocks (auch für Chunks).
func BlockText(b Block) string {
	switch b.Kind {
	case KindSection:
		label := SectionLabel(b.Number)
		switch {
		case b.Repealed && strings.TrimSpace(b.Text) == "":
			return label + " har upphävts."
		case b.Text == "":
			return label
		}
		return label + " " + b.Text
	case KindFootnote:
		return b.Label + ") " + b.Text
	case KindTable:
		rows := make([]string, 0, len(b.Rows))
		for _, r := range b.Rows {
			rows = append(rows, strings.Join(r, " | "))
		}
		return strings.Join(rows, "\n")
	default:
		return b.Text
	}
}
