package textproc

import (
	"math"
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// CleanOptions steuern die Heuristiken für die Bereinigung extrahierter Quelltexte (PDF/HTML)
type CleanOptions struct {
	NormalizeUnicode      bool        `json:"normalize_unicode"`
	FixHyphenation        bool        `json:"fix_hyphenation"`
	CollapseWhitespace    bool        `json:"collapse_whitespace"`
	HeaderFooterDetection bool        `json:"header_footer_detection"`
	HeaderFooterThreshold float64     `json:"header_footer_threshold"`
	Hyphen                HyphenRules `json:"-"`
}

// DefaultCleanOptions aktiviert alle Heuristiken mit den Standardlisten.
func DefaultCleanOptions() CleanOptions {
	return CleanOptions{
		NormalizeUnicode:      true,
		FixHyphenation:        true,
		CollapseWhitespace:    true,
		HeaderFooterDetection: true,
		HeaderFooterThreshold: 0.6,
		Hyphen:                DefaultHyphenRules(),
	}
}

// CleanStats enthält Kennzahlen zur Bereinigung
type CleanStats struct {
	NumPages         int `json:"num_pages"`
	NumWords         int `json:"num_words"`
	HyphenFixes      int `json:"hyphen_fixes"`
	HeadersRemoved   int `json:"headers_removed"`
	FootersRemoved   int `json:"footers_removed"`
	PublisherRemoved int `json:"publisher_removed"`
	DroppedLines     int `json:"dropped_lines"`
}

var (
	publisherPatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)Wolters Kluwer\s*`),
		regexp.MustCompile(`(?i)Elanders Sverige AB,?\s*\d{4}\s*`),
		regexp.MustCompile(`(?i)Norstedts Juridik\s*`),
		regexp.MustCompile(`(?i)Thomson Reuters\s*`),
		regexp.MustCompile(`(?i)Karnov Group\s*`),
	}
	// Laufende Kopfzeile "SFS 2025:1461 Publicerad den 10 december 2025"
	publishedHeaderRE = regexp.MustCompile(`(?i)SFS\s+\d{4}:\d+\s+Publicerad\s+den\s+\d+\s+\p{L}+\s+\d{4}\s*`)
	sfsHeaderLineRE   = regexp.MustCompile(`^SFS\s+\d{4}:\d+(?:\s+\d+)?$`)
	pageNumberRE      = regexp.MustCompile(`^(?:(?:[Ss]ida|[Pp]age)\s*)?[–-]?\s*\d+\s*[–-]?(?:\s*/\s*\d+)?$`)
	rulerRE           = regexp.MustCompile(`^[─━═—–-]{3,}$`)
	spaceRE           = regexp.MustCompile("[\t\v\u00A0 ]+")
	multiSpaceRE      = regexp.MustCompile(` {2,}`)
	multiNewlinesRE   = regexp.MustCompile(`\n{3,}`)
)

// CleanSourceText bereinigt extrahierten Text eines Rechtsakts. Seiten werden durch
// Form-Feeds (\f) getrennt erwartet; ohne Seiten wird nur zeilenweise bereinigt.
func CleanSourceText(raw string, opts CleanOptions) (string, CleanStats) {
	if opts.HeaderFooterThreshold <= 0 {
		opts.HeaderFooterThreshold = 0.6
	}
	var stats CleanStats

	text := raw
	if opts.NormalizeUnicode {
		text = NormalizeUnicode(text)
	}
	pages := strings.Split(text, "\f")
	stats.NumPages = len(pages)

	headerLines, footerLines := map[string]int{}, map[string]int{}
	if opts.HeaderFooterDetection && len(pages) > 1 {
		headerLines, footerLines = detectHeaderFooterLines(pages)
	}
	thresholdCount := int(math.Ceil(opts.HeaderFooterThreshold * float64(len(pages))))
	if thresholdCount < 2 {
		thresholdCount = 2
	}

	cleaned := make([]string, 0, len(pages))
	for _, page := range pages {
		lines := splitLines(page)
		headerSet := map[string]bool{}
		footerSet := map[string]bool{}
		for _, l := range firstNNonEmpty(lines, 3) {
			if headerLines[strings.TrimSpace(l)] >= thresholdCount {
				headerSet[strings.TrimSpace(l)] = true
			}
		}
		for _, l := range lastNNonEmpty(lines, 3) {
			if footerLines[strings.TrimSpace(l)] >= thresholdCount {
				footerSet[strings.TrimSpace(l)] = true
			}
		}

		var kept []string
		for _, l := range lines {
			trimmed := strings.TrimSpace(l)
			switch {
			case headerSet[trimmed]:
				stats.HeadersRemoved++
				continue
			case footerSet[trimmed]:
				stats.FootersRemoved++
				continue
			case trimmed != "" && (isLikelyPageNumber(trimmed) || sfsHeaderLineRE.MatchString(trimmed) || rulerRE.MatchString(trimmed)):
				stats.DroppedLines++
				continue
			}
			kept = append(kept, l)
		}
		cleaned = append(cleaned, strings.Join(kept, "\n"))
	}
	text = strings.Join(cleaned, "\n")

	for _, re := range append([]*regexp.Regexp{publishedHeaderRE}, publisherPatterns...) {
		if n := len(re.FindAllStringIndex(text, -1)); n > 0 {
			stats.PublisherRemoved += n
			text = re.ReplaceAllString(text, "")
		}
	}

	if opts.FixHyphenation {
		var n int
		text, n = RepairHyphenation(text, opts.Hyphen)
		stats.HyphenFixes = n
	}
	if opts.CollapseWhitespace {
		text = CollapseWhitespace(text)
	}
	stats.NumWords = WordCount(text)
	return strings.TrimSpace(text), stats
}

// detectHeaderFooterLines sammelt Top/Bottom-Zeilen über Seiten und zählt Häufigkeiten
func detectHeaderFooterLines(pages []string) (map[string]int, map[string]int) {
	headerCounts := map[string]int{}
	footerCounts := map[string]int{}
	for _, text := range pages {
		lines := splitLines(text)
		for _, l := range firstNNonEmpty(lines, 3) {
			if key := strings.TrimSpace(l); key != "" {
				headerCounts[key]++
			}
		}
		for _, l := range lastNNonEmpty(lines, 3) {
			if key := strings.TrimSpace(l); key != "" {
				footerCounts[key]++
			}
		}
	}
	return headerCounts, footerCounts
}

var ligatures = strings.NewReplacer(
	"ﬁ", "fi",
	"ﬂ", "fl",
	"ﬀ", "ff",
	"ﬃ", "ffi",
	"ﬄ", "ffl",
	"ﬆ", "st",
	"\u00ad", "",
)

// NormalizeUnicode führt NFC-Normalisierung durch, ersetzt Ligaturen und entfernt weiche Trennstriche.
// å/ä/ö aus zerlegten Sequenzen (a + U+030A) werden dabei zu einem Zeichen.
func NormalizeUnicode(s string) string {
	s = ligatures.Replace(s)
	normalized, _, err := transform.String(norm.NFC, s)
	if err != nil {
		return s
	}
	return normalized
}

// CollapseWhitespace fasst Leerraum zusammen und begrenzt Leerzeilen auf eine.
func CollapseWhitespace(s string) string {
	s = spaceRE.ReplaceAllString(s, " ")
	s = multiSpaceRE.ReplaceAllString(s, " ")
	s = strings.ReplaceAll(s, "\r\n", "\n")
	lines := splitLines(s)
	for i := range lines {
		lines[i] = strings.TrimRightFunc(lines[i], unicode.IsSpace)
	}
	s = strings.Join(lines, "\n")
	s = multiNewlinesRE.ReplaceAllString(s, "\n\n")
	return strings.TrimSpace(s)
}

// CollapseInline macht aus beliebigem Leerraum einzelne Leerzeichen (für Zellen, Titel).
func CollapseInline(s string) string {
	return strings.Join(strings.Fields(strings.ReplaceAll(s, "\u00a0", " ")), " ")
}

func isLikelyPageNumber(s string) bool {
	trimmed := strings.TrimSpace(s)
	if trimmed == "" {
		return false
	}
	return pageNumberRE.MatchString(trimmed)
}

func splitLines(s string) []string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	return strings.Split(s, "\n")
}

func firstNNonEmpty(lines []string, n int) []string {
	var out []string
	for _, l := range lines {
		if strings.TrimSpace(l) == "" {
			continue
		}
		out = append(out, l)
		if len(out) == n {
			break
		}
	}
	return out
}

func lastNNonEmpty(lines []string, n int) []string {
	var out []string
	for i := len(lines) - 1; i >= 0; i-- {
		if strings.TrimSpace(lines[i]) == "" {
			continue
		}
		out = append(out, lines[i])
		if len(out) == n {
			break
		}
	}
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out
}
