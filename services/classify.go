package services

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"lagflode/models"
)

var (
	amendmentCues = []string{"om ändring i", "om ändring av", "om ändringar i", "om ändrad lydelse av"}
	repealCues    = []string{"om upphävande av", "om upphörande av", "upphävs"}

	// Titel einer Författning: "Lag (2024:1) om ...", "Förordning om ...", "Brottsbalk (1962:700)"
	statuteTitleRE = regexp.MustCompile(`(?i)^(?:lag|förordning|kungörelse|tillkännagivande|instruktion|reglemente|stadga)\b|(?:lag|förordning|balk)\s*\(|balk$`)

	cueDesignationRE = regexp.MustCompile(`(?i)om\s+(?:ändring(?:ar)?\s+i|ändring\s+av|ändrad\s+lydelse\s+av|upphävande\s+av|upphörande\s+av)[^(]*\((?:SFS\s*)?(\d{4}:\d+\s?[a-z]?)\)`)
	parenDesignationRE = regexp.MustCompile(`\((?:SFS\s*)?(\d{4}:\d+\s?[a-z]?)\)`)
	sfsDesignationRE   = regexp.MustCompile(`(?i)\bSFS\s*(\d{4}:\d+)`)
	bareDesignationRE  = regexp.MustCompile(`\b(\d{4}:\d+)\b`)
	// Beginn der Änderungsformulierung; davor steht nur die eigene Nummer
	cueStartRE = regexp.MustCompile(`(?i)\bom\s+(?:ändring|ändrad|upphävande|upphörande)|\bupphävs\b`)
	// "Lag (2025:50) ..." am Titelanfang ist die Nummer der Författning selbst
	selfDesignationRE = regexp.MustCompile(`^[\p{L} ]+\((?:SFS\s*)?\d{4}:\d+\s?[a-z]?\)`)

	sfsNumberRE = regexp.MustCompile(`(?i)^(?:SFS\s*)?(\d{4}):(\d+)(?:\s*([a-z]))?$`)
)

// ClassificationAmbiguous markiert einen Titel, der keinem bekannten
// Författningsmuster entspricht. Das Dokument wird als NEW_LAW geführt und zur
// Prüfung vorgemerkt.
type ClassificationAmbiguous struct {
	Title string
}

func (e *ClassificationAmbiguous) Error() string {
	return fmt.Sprintf("titel nicht eindeutig klassifizierbar: %q", e.Title)
}

// Classification ist das Ergebnis von ClassifyDocument.
type Classification struct {
	Type       models.DocumentType      `json:"type"`
	Confidence float64                  `json:"confidence"`
	BaseLawSfs string                   `json:"base_law_sfs,omitempty"`
	Ambiguous  *ClassificationAmbiguous `json:"-"`
}

// NeedsReview meldet, ob das Dokument manuell geprüft werden soll.
func (c Classification) NeedsReview() bool {
	return c.Ambiguous != nil
}

// ClassifyDocument ordnet ein SFS-Dokument nach seinem schwedischen Titel ein:
// "ändring i" ergibt AMENDMENT, "upphävande av" ergibt REPEAL, sonst NEW_LAW.
func ClassifyDocument(title string) Classification {
	t := strings.Join(strings.Fields(title), " ")
	lower := strings.ToLower(t)
	if lower == "" {
		return Classification{Type: models.DocumentNewLaw, Ambiguous: &ClassificationAmbiguous{Title: title}}
	}

	c := Classification{Type: models.DocumentNewLaw, Confidence: 0.9}
	switch {
	case containsAny(lower, repealCues):
		c.Type, c.Confidence = models.DocumentRepeal, 0.95
	case containsAny(lower, amendmentCues):
		c.Type, c.Confidence = models.DocumentAmendment, 0.95
	}
	if c.Type != models.DocumentNewLaw {
		c.BaseLawSfs = ExtractBaseLawSfs(t)
	}
	if !statuteTitleRE.MatchString(t) {
		c.Confidence = 0.5
		c.Ambiguous = &ClassificationAmbiguous{Title: title}
	}
	return c
}

func containsAny(s string, cues []string) bool {
	for _, cue := range cues {
		if strings.Contains(s, cue) {
			return true
		}
	}
	return false
}

// ExtractBaseLawSfs liest die Nummer der geänderten Grundförfattning aus einem
// Titel ("Lag om ändring i lagen (2023:875) om tilläggsskatt" -> "2023:875").
// Die eigene Nummer vor der Änderungsformulierung zählt nicht; ohne erkennbare
// Nummer ist das Ergebnis leer.
func ExtractBaseLawSfs(title string) string {
	if m := cueDesignationRE.FindStringSubmatch(title); m != nil {
		return compactDesignation(m[1])
	}
	if loc := cueStartRE.FindStringIndex(title); loc != nil {
		title = title[loc[0]:]
	} else if loc := selfDesignationRE.FindStringIndex(title); loc != nil {
		title = title[loc[1]:]
	}
	if m := parenDesignationRE.FindStringSubmatch(title); m != nil {
		return compactDesignation(m[1])
	}
	if m := sfsDesignationRE.FindStringSubmatch(title); m != nil {
		return m[1]
	}
	if m := bareDesignationRE.FindStringSubmatch(title); m != nil {
		return m[1]
	}
	return ""
}

func compactDesignation(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// SfsNumber ist die zerlegte Nummer "YYYY:NNN" mit optionalem Buchstaben.
type SfsNumber struct {
	Year   int
	Number int
	Suffix string
}

func (n SfsNumber) String() string {
	s := fmt.Sprintf("%d:%d", n.Year, n.Number)
	if n.Suffix != "" {
		s += " " + n.Suffix
	}
	return s
}

// Less ordnet nach Jahr, Nummer und Buchstabe.
func (n SfsNumber) Less(o SfsNumber) bool {
	if n.Year != o.Year {
		return n.Year < o.Year
	}
	if n.Number != o.Number {
		return n.Number < o.Number
	}
	return n.Suffix < o.Suffix
}

// ExtractSfsNumericPart zerlegt "SFS 2024:1", "2024:1" oder "2024:1 a".
func ExtractSfsNumericPart(designation string) (SfsNumber, error) {
	m := sfsNumberRE.FindStringSubmatch(strings.TrimSpace(designation))
	if m == nil {
		return SfsNumber{}, fmt.Errorf("ungültige SFS-Nummer %q", designation)
	}
	year, _ := strconv.Atoi(m[1])
	num, _ := strconv.Atoi(m[2])
	return SfsNumber{Year: year, Number: num, Suffix: strings.ToLower(m[3])}, nil
}

// NormalizeSfsNumber: "2024:1" -> "SFS 2024:1". Ungültige Eingaben bleiben unverändert.
func NormalizeSfsNumber(designation string) string {
	n, err := ExtractSfsNumericPart(designation)
	if err != nil {
		return strings.TrimSpace(designation)
	}
	return "SFS " + n.String()
}
