package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"lagflode/canonical"
	"lagflode/models"
)

var (
	// ErrSectionNotFound: REPLACE oder REPEAL eines Paragrafen, den die Fassung nicht enthält.
	ErrSectionNotFound = errors.New("paragraf in der fassung nicht vorhanden")
	// ErrSectionExists: INSERT eines Paragrafen, der bereits gilt.
	ErrSectionExists = errors.New("paragraf existiert bereits")
	// ErrNotApplicable: die Författning ist nicht verarbeitet oder hat keine Grundförfattning.
	ErrNotApplicable = errors.New("författning nicht anwendbar")
)

// ApplySectionChanges erzeugt aus base die nächste Fassung. Die Änderungen werden in
// der gegebenen Reihenfolge angewendet; base bleibt unverändert. Das Ergebnis wird
// erneut validiert.
func ApplySectionChanges(base *canonical.Document, changes []models.SectionChange) (*canonical.Document, error) {
	if base == nil {
		return nil, errors.New("kein ausgangsdokument")
	}
	doc := *base
	doc.Blocks = append([]canonical.Block(nil), base.Blocks...)
	doc.LegislativeReferences = append([]string(nil), base.LegislativeReferences...)
	docID := canonical.DocID(base.DocumentNumber)

	for _, c := range changes {
		chapter := ""
		if c.Chapter != nil {
			chapter = *c.Chapter
		}
		i := sectionIndex(doc.Blocks, chapter, c.Section)

		switch c.ChangeType {
		case models.SectionReplace:
			if i < 0 || doc.Blocks[i].Repealed {
				return nil, fmt.Errorf("%w: %s", ErrSectionNotFound, c.Label())
			}
			doc.Blocks[i].Text = c.NewText
		case models.SectionRepeal:
			if i < 0 || doc.Blocks[i].Repealed {
				return nil, fmt.Errorf("%w: %s", ErrSectionNotFound, c.Label())
			}
			doc.Blocks[i].Repealed = true
			doc.Blocks[i].Text = ""
			doc.Blocks[i].FootnoteRefs = nil
		case models.SectionInsert:
			if i >= 0 {
				// ein aufgehobener Paragraf darf neu eingefügt werden
				if !doc.Blocks[i].Repealed {
					return nil, fmt.Errorf("%w: %s", ErrSectionExists, c.Label())
				}
				doc.Blocks[i].Repealed = false
				doc.Blocks[i].Text = c.NewText
				continue
			}
			block := canonical.Block{
				Kind:    canonical.KindSection,
				ID:      canonical.SectionID(docID, chapter, c.Section),
				Chapter: chapter,
				Number:  c.Section,
				Text:    c.NewText,
			}
			at := insertPosition(doc.Blocks, chapter, c.Section)
			doc.Blocks = append(doc.Blocks[:at], append([]canonical.Block{block}, doc.Blocks[at:]...)...)
		default:
			return nil, fmt.Errorf("unbekannte änderungsart %q für %s", c.ChangeType, c.Label())
		}
	}

	if err := canonical.ValidateOrError(&doc); err != nil {
		return nil, err
	}
	return &doc, nil
}

func sectionIndex(blocks []canonical.Block, chapter, number string) int {
	for i, b := range blocks {
		if b.Kind == canonical.KindSection && b.Chapter == chapter && b.Number == number {
			return i
		}
	}
	return -1
}

// insertPosition liefert den Index hinter dem letzten Paragrafen, der vor (chapter, number)
// einzuordnen ist. Steht davor nur ein anderes Kapitel, kommt der neue Paragraf vor den
// ersten Paragrafen seines Kapitels, damit er nicht vor dessen Überschrift landet.
func insertPosition(blocks []canonical.Block, chapter, number string) int {
	after, first, firstInChapter := -1, -1, -1
	for i, b := range blocks {
		if b.Kind != canonical.KindSection {
			continue
		}
		if first < 0 {
			first = i
		}
		if firstInChapter < 0 && b.Chapter == chapter {
			firstInChapter = i
		}
		if precedes(b, chapter, number) {
			after = i
		}
	}
	switch {
	case after >= 0 && blocks[after].Chapter == chapter:
		return after + 1
	case firstInChapter >= 0:
		return firstInChapter
	case after >= 0:
		return after + 1
	case first >= 0:
		return first
	}
	return len(blocks)
}

func precedes(b canonical.Block, chapter, number string) bool {
	if b.Chapter != chapter {
		if b.Chapter == "" || chapter == "" {
			return b.Chapter == ""
		}
		return canonical.CompareChapter(b.Chapter, chapter) < 0
	}
	return canonical.CompareSection(b.Number, number) < 0
}

// PreviewAmendment wendet die Änderungen einer verarbeiteten Författning auf das
// gespeicherte Dokument ihrer Grundförfattning an. Nichts wird gespeichert.
func PreviewAmendment(ctx context.Context, amendments AmendmentStore, docs DocumentStore, sfsNumber string) (*canonical.Document, error) {
	a, err := amendments.GetAmendment(ctx, sfsNumber)
	if err != nil {
		return nil, err
	}
	if a.ParseStatus != models.ParseCompleted || a.BaseLawSfs == nil {
		return nil, fmt.Errorf("%w: %s (%s)", ErrNotApplicable, a.SfsNumber, a.ParseStatus)
	}
	ld, err := docs.GetDocument(ctx, *a.BaseLawSfs)
	if err != nil {
		return nil, err
	}
	if len(ld.JSONContent) == 0 {
		return nil, fmt.Errorf("%w: %s hat keinen kanonischen inhalt", ErrNotApplicable, ld.DocumentNumber)
	}
	var base canonical.Document
	if err := json.Unmarshal(ld.JSONContent, &base); err != nil {
		return nil, fmt.Errorf("jsonContent von %s: %w", ld.DocumentNumber, err)
	}

	doc, err := ApplySectionChanges(&base, a.SectionChanges)
	if err != nil {
		return nil, err
	}
	for _, c := range a.SectionChanges {
		chapter := ""
		if c.Chapter != nil {
			chapter = *c.Chapter
		}
		if i := sectionIndex(doc.Blocks, chapter, c.Section); i >= 0 {
			doc.Blocks[i].AmendedBy = a.SfsNumber
		}
	}
	if a.EffectiveDate != nil {
		doc.EffectiveDate = a.EffectiveDate.Format("2006-01-02")
	}
	doc.LegislativeReferences = appendMissing(doc.LegislativeReferences, a.SfsNumber)
	return doc, nil
}

func appendMissing(list []string, v string) []string {
	for _, s := range list {
		if s == v {
			return list
		}
	}
	return append(list, v)
}
