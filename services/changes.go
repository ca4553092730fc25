package services

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/pmezard/go-difflib/difflib"
	"gorm.io/datatypes"

	"lagflode/canonical"
	"lagflode/models"
)

// maxDiffChars begrenzt den gespeicherten Unified Diff.
const maxDiffChars = 50000

// Paragraf im konsolidierten Text, der mit "Lag (2025:732)." endet
var amendedSectionRE = regexp.MustCompile(`(?i)(?:(\d+\s*[a-z]?)\s*kap\.\s*)?(\d+\s*[a-z]?)\s*§([^§]*?)(?:Lag|Förordning)\s*\((\d{4}:\d+)\)\.`)

// DiffStats sind die Zeilenzahlen eines Diffs.
type DiffStats struct {
	Added     int
	Removed   int
	Unchanged int
}

// Summary: "+3 lines, -1 lines (12.5% changed)".
func (s DiffStats) Summary() string {
	var parts []string
	if s.Added > 0 {
		parts = append(parts, fmt.Sprintf("+%d lines", s.Added))
	}
	if s.Removed > 0 {
		parts = append(parts, fmt.Sprintf("-%d lines", s.Removed))
	}
	if len(parts) == 0 {
		return "No text changes detected"
	}
	pct := 0.0
	if total := s.Added + s.Removed + s.Unchanged; total > 0 {
		pct = float64(s.Added+s.Removed) / float64(total) * 100
	}
	return fmt.Sprintf("%s (%.1f%% changed)", strings.Join(parts, ", "), pct)
}

// ComputeDiff zählt hinzugefügte, entfernte und unveränderte Zeilen.
func ComputeDiff(oldText, newText string) DiffStats {
	a, b := difflib.SplitLines(oldText), difflib.SplitLines(newText)
	var s DiffStats
	for _, op := range difflib.NewMatcher(a, b).GetOpCodes() {
		switch op.Tag {
		case 'e':
			s.Unchanged += op.I2 - op.I1
		case 'r':
			s.Removed += op.I2 - op.I1
			s.Added += op.J2 - op.J1
		case 'd':
			s.Removed += op.I2 - op.I1
		case 'i':
			s.Added += op.J2 - op.J1
		}
	}
	return s
}

// UnifiedDiff erzeugt einen Diff im git-Format mit drei Kontextzeilen.
func UnifiedDiff(oldText, newText string) (string, error) {
	return difflib.GetUnifiedDiffString(difflib.UnifiedDiff{
		A:        difflib.SplitLines(oldText),
		B:        difflib.SplitLines(newText),
		FromFile: "old",
		ToFile:   "new",
		Context:  3,
	})
}

// HasSubstantiveChanges vergleicht mit zusammengefassten Leerzeichen.
func HasSubstantiveChanges(oldText, newText string) bool {
	return strings.Join(strings.Fields(oldText), " ") != strings.Join(strings.Fields(newText), " ")
}

// FindChangedSections liefert die Paragrafen, deren Änderungsvermerk auf
// amendmentSfs zeigt, z.B. ["3 kap. 2 a §", "7 §"].
func FindChangedSections(fullText, amendmentSfs string) []string {
	want, err := ExtractSfsNumericPart(amendmentSfs)
	if err != nil {
		return nil
	}
	var out []string
	seen := map[string]bool{}
	for _, m := range amendedSectionRE.FindAllStringSubmatch(fullText, -1) {
		got, err := ExtractSfsNumericPart(m[4])
		if err != nil || got != want {
			continue
		}
		label := canonical.SectionLabel(compactNumber(m[2]))
		if m[1] != "" {
			label = canonical.ChapterLabel(compactNumber(m[1])) + " " + label
		}
		if !seen[label] {
			seen[label] = true
			out = append(out, label)
		}
	}
	return out
}

// DetectChanges vergleicht zwei Fassungen eines Dokuments. Ohne inhaltliche
// Änderung (nur Leerzeichen) ist das Ergebnis nil. Dokumentfelder setzt der Aufrufer.
func DetectChanges(oldText, newText, amendmentSfs string) (*models.ChangeEvent, error) {
	if !HasSubstantiveChanges(oldText, newText) {
		return nil, nil
	}
	diff, err := UnifiedDiff(oldText, newText)
	if err != nil {
		return nil, fmt.Errorf("diff erstellen: %w", err)
	}
	if len(diff) > maxDiffChars {
		diff = diff[:maxDiffChars] + "\n... [truncated]"
	}

	ev := &models.ChangeEvent{
		ChangeType:  models.ChangeAmendment,
		DiffSummary: diff,
		DiffStats:   ComputeDiff(oldText, newText).Summary(),
	}
	if amendmentSfs != "" {
		ev.AmendmentSfs = NormalizeSfsNumber(amendmentSfs)
		if sections := FindChangedSections(newText, amendmentSfs); len(sections) > 0 {
			raw, err := json.Marshal(sections)
			if err != nil {
				return nil, err
			}
			ev.ChangedSections = datatypes.JSON(raw)
		}
	}
	return ev, nil
}

// NewLawEvent ist das Ereignis für ein erstmals aufgenommenes Dokument.
func NewLawEvent(doc *models.LegalDocument) *models.ChangeEvent {
	return eventFor(doc, models.ChangeNewLaw, "")
}

// RepealEvent ist das Ereignis für ein aufgehobenes Dokument.
func RepealEvent(doc *models.LegalDocument, repealedBy string) *models.ChangeEvent {
	if repealedBy != "" {
		repealedBy = NormalizeSfsNumber(repealedBy)
	}
	return eventFor(doc, models.ChangeRepeal, repealedBy)
}

func eventFor(doc *models.LegalDocument, ct models.ChangeType, ref string) *models.ChangeEvent {
	return &models.ChangeEvent{
		DocumentID:     doc.ID,
		DocumentNumber: doc.DocumentNumber,
		ContentType:    doc.ContentType,
		ChangeType:     ct,
		AmendmentSfs:   ref,
	}
}

// ApplyChange schreibt die Änderungsfelder auf das Dokument und setzt die
// abgeleitete Priorität am Ereignis.
func ApplyChange(doc *models.LegalDocument, ev *models.ChangeEvent, at time.Time) {
	ev.DocumentID = doc.ID
	ev.DocumentNumber = doc.DocumentNumber
	ev.ContentType = doc.ContentType
	ev.Priority = DerivePriority(ChangeInput{ChangeType: ev.ChangeType, ContentType: ev.ContentType})

	doc.LastChangeType = ev.ChangeType
	doc.LastChangeRef = ev.AmendmentSfs
	doc.LastChangeAt = &at
}
