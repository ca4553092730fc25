package canonical

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"unicode"
)

var (
	docIDCleanRE   = regexp.MustCompile(`[^\p{L}\p{N}_-]+`)
	sectionLabelRE = regexp.MustCompile(`^(\d+)\s*([a-z])?\s*§`)
	articleLabelRE = regexp.MustCompile(`(?i)^Art(?:ikel|icle)?\.?\s+(\d+)\s*([a-z])?\b`)
	chapterLabelRE = regexp.MustCompile(`^(\d+)\s*([a-z])?\s*kap\.?`)
	chapterNumRE   = regexp.MustCompile(`^(\d+)([a-z]?)$`)
)

// DocID leitet das Anker-Präfix aus der Dokumentnummer ab: "SFS 1977:1160" -> "SFS1977-1160".
func DocID(documentNumber string) string {
	id := strings.Join(strings.Fields(documentNumber), "")
	id = strings.NewReplacer(":", "-", "/", "-").Replace(id)
	return docIDCleanRE.ReplaceAllString(id, "")
}

// SectionID: "{docId}_K{ch}_P{num}", ohne Kapitel "{docId}_P{num}".
func SectionID(docID, chapter, number string) string {
	if chapter != "" && chapter != "0" {
		return fmt.Sprintf("%s_K%s_P%s", docID, chapter, number)
	}
	return fmt.Sprintf("%s_P%s", docID, number)
}

// ChapterID ist der Anker einer Kapitelüberschrift.
func ChapterID(docID, chapter string) string {
	return fmt.Sprintf("%s_K%s", docID, chapter)
}

var kindPrefix = map[BlockKind]string{
	KindHeading:   "h",
	KindParagraph: "p",
	KindTable:     "t",
	KindFootnote:  "fn",
	KindSection:   "s",
}

// BlockID: "{docId}_{kind}{ordinal}" für Blöcke ohne strukturelle Nummer.
func BlockID(docID string, kind BlockKind, ordinal int) string {
	return fmt.Sprintf("%s_%s%d", docID, kindPrefix[kind], ordinal)
}

// FootnoteID: "{docId}_fn{label}".
func FootnoteID(docID, label string) string {
	return fmt.Sprintf("%s_fn%s", docID, label)
}

// SectionLabel formatiert eine Paragrafennummer für die Anzeige: "2a" -> "2 a §", "art5" -> "Artikel 5".
func SectionLabel(number string) string {
	if rest, ok := strings.CutPrefix(number, "art"); ok {
		return "Artikel " + rest
	}
	return spacedNumber(number) + " §"
}

// ChapterLabel: "2a" -> "2 a kap.".
func ChapterLabel(chapter string) string {
	return spacedNumber(chapter) + " kap."
}

func spacedNumber(n string) string {
	i := strings.IndexFunc(n, unicode.IsLetter)
	if i <= 0 {
		return n
	}
	return n[:i] + " " + n[i:]
}

// ParseSectionLabel erkennt "2 a §" (-> "2a") und "Artikel 5" (-> "art5") am Textanfang.
func ParseSectionLabel(s string) (string, bool) {
	s = strings.TrimSpace(strings.ReplaceAll(s, "\u00a0", " "))
	if m := sectionLabelRE.FindStringSubmatch(s); m != nil {
		return m[1] + m[2], true
	}
	if m := articleLabelRE.FindStringSubmatch(s); m != nil {
		return "art" + m[1] + strings.ToLower(m[2]), true
	}
	return "", false
}

// ParseChapterLabel erkennt "3 kap." / "3 a kap." am Textanfang.
func ParseChapterLabel(s string) (string, bool) {
	s = strings.TrimSpace(strings.ReplaceAll(s, "\u00a0", " "))
	if m := chapterLabelRE.FindStringSubmatch(s); m != nil {
		return m[1] + m[2], true
	}
	return "", false
}

// CompareChapter vergleicht Kapitelnummern numerisch, dann nach Buchstabensuffix ("2" < "2a" < "3").
func CompareChapter(a, b string) int {
	na, sa := splitChapter(a)
	nb, sb := splitChapter(b)
	switch {
	case na < nb:
		return -1
	case na > nb:
		return 1
	}
	return strings.Compare(sa, sb)
}

// CompareSection ordnet Paragrafennummern: "4" < "4a" < "5", "art2" < "art10".
func CompareSection(a, b string) int {
	return CompareChapter(strings.TrimPrefix(a, "art"), strings.TrimPrefix(b, "art"))
}

func splitChapter(c string) (int, string) {
	m := chapterNumRE.FindStringSubmatch(strings.TrimSpace(c))
	if m == nil {
		if n := RomanToArabic(c); n > 0 {
			return n, ""
		}
		return 0, c
	}
	n, _ := strconv.Atoi(m[1])
	return n, m[2]
}

// RomanToArabic wandelt "IV" in 4; 0 bei ungültiger Eingabe.
func RomanToArabic(roman string) int {
	values := map[rune]int{'I': 1, 'V': 5, 'X': 10, 'L': 50, 'C': 100, 'D': 500, 'M': 1000}
	roman = strings.ToUpper(strings.TrimSpace(roman))
	if roman == "" {
		return 0
	}
	total, prev := 0, 0
	for i := len(roman) - 1; i >= 0; i-- {
		v, ok := values[rune(roman[i])]
		if !ok {
			return 0
		}
		if v < prev {
			total -= v
		} else {
			total += v
			prev = v
		}
	}
	return total
}
