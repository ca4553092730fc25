package textproc

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRepairHyphenation(t *testing.T) {
	rules := DefaultHyphenRules()

	tests := []struct {
		name  string
		in    string
		want  string
		fixes int
	}{
		{"space after hyphen", "arbets- miljösynpunkter", "arbetsmiljösynpunkter", 1},
		{"line break after hyphen", "med hänsyn till arbets-\nmiljösynpunkter ska", "med hänsyn till arbetsmiljösynpunkter ska", 1},
		{"conjunction och", "detta gäller arbets- och miljöfrågor", "detta gäller arbets- och miljöfrågor", 0},
		{"conjunction eller", "hälso- eller sjukvård", "hälso- eller sjukvård", 0},
		{"conjunction samt", "bygg- samt rivningsavfall", "bygg- samt rivningsavfall", 0},
		{"conjunction respektive", "köp- respektive säljsidan", "köp- respektive säljsidan", 0},
		{"conjunction after line break", "arbets-\noch miljöfrågor", "arbets-\noch miljöfrågor", 0},
		{"prefix kept", "EU- förordningen", "EU- förordningen", 0},
		{"uppercase continuation kept", "Sverige- Norge", "Sverige- Norge", 0},
		{"hyphen without space untouched", "EU-förordning", "EU-förordning", 0},
		{"several", "skatte- verket och social- försäkringen", "skatteverket och socialförsäkringen", 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, n := RepairHyphenation(tt.in, rules)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.fixes, n)
		})
	}
}

func TestRepairHyphenationCustomLists(t *testing.T) {
	rules := NewHyphenRules([]string{"och"}, []string{"icke-"})

	got, n := RepairHyphenation("icke- statliga och hälso- eller sjukvård", rules)
	assert.Equal(t, "icke- statliga och hälsoeller sjukvård", got)
	assert.Equal(t, 1, n)

	// Zero-Value-Regeln funktionieren ohne Konstruktor
	got, _ = RepairHyphenation("arbets- och miljö", HyphenRules{Conjunctions: []string{"och"}})
	assert.Equal(t, "arbets- och miljö", got)
}

// Token-Schätzung ist approximativ: nur Monotonie und Determinismus werden geprüft.
func TestEstimateTokensApproximate(t *testing.T) {
	assert.Equal(t, 0, EstimateTokens(""))
	assert.Equal(t, 0, EstimateTokens("   \n"))
	assert.Equal(t, 2, EstimateTokens("ett"))       // ceil(1 × 1.3)
	assert.Equal(t, 4, EstimateTokens("ett två tre")) // ceil(3 × 1.3)
	assert.Equal(t, 13, EstimateTokens(strings.Repeat("ord ", 10)))
	assert.Equal(t, 10, EstimateTokensWith(strings.Repeat("ord ", 10), 1))

	a := EstimateTokens("Denna lag gäller för arbetsgivare")
	b := EstimateTokens("Denna lag gäller för arbetsgivare och arbetstagare")
	assert.Less(t, a, b)
	assert.Equal(t, a, EstimateTokens("Denna lag gäller för arbetsgivare"))
}

func TestNormalizeUnicode(t *testing.T) {
	assert.Equal(t, "\u00e5ngest", NormalizeUnicode("a\u030angest"))
	assert.Equal(t, "definition", NormalizeUnicode("de\ufb01nition"))
	assert.Equal(t, "avtal", NormalizeUnicode("av\u00adtal"))
}

func TestCleanSourceTextPages(t *testing.T) {
	page := func(body string) string {
		return "SFS 2025:732 Publicerad den 10 juni 2025\nSvensk författningssamling\n" + body + "\nElanders Sverige AB, 2025\n"
	}
	raw := strings.Join([]string{
		page("1 § Denna lag gäller arbets-\nmiljön.\n1"),
		page("2 § Lagen träder i kraft.\n2"),
		page("3 § Övrigt.\n3"),
	}, "\f")

	text, stats := CleanSourceText(raw, DefaultCleanOptions())
	require.NotEmpty(t, text)

	assert.NotContains(t, text, "Svensk författningssamling")
	assert.NotContains(t, text, "Elanders")
	assert.NotContains(t, text, "Publicerad den")
	assert.Contains(t, text, "1 § Denna lag gäller arbetsmiljön.")
	assert.Contains(t, text, "2 § Lagen träder i kraft.")
	assert.Equal(t, 3, stats.NumPages)
	assert.Equal(t, 1, stats.HyphenFixes)
	assert.Equal(t, 6, stats.HeadersRemoved)
	assert.Equal(t, 3, stats.FootersRemoved)
	assert.Equal(t, 3, stats.DroppedLines)
}

func TestCleanSourceTextPublisherLines(t *testing.T) {
	text, stats := CleanSourceText("Lag om ändring\nWolters Kluwer\nText", DefaultCleanOptions())
	assert.Equal(t, "Lag om ändring\nText", text)
	assert.Equal(t, 1, stats.PublisherRemoved)
	assert.Equal(t, 1, stats.NumPages)
}

func TestCollapseWhitespace(t *testing.T) {
	assert.Equal(t, "a b\n\nc", CollapseWhitespace("a   b\u00a0 \n\n\n\nc  "))
	assert.Equal(t, "a b c", CollapseInline(" a\n b\u00a0\tc "))
}
