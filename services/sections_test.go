package services

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lagflode/models"
)

func TestExtractSectionChangesSingleReplace(t *testing.T) {
	text := "3 § ska ha följande lydelse.\n\nArbetsgivaren ska se till att arbetet planeras.\n"

	changes, err := ExtractSectionChanges(text)
	require.NoError(t, err)
	require.Len(t, changes, 1)

	c := changes[0]
	assert.Equal(t, "3", c.Section)
	assert.Nil(t, c.Chapter)
	assert.Equal(t, models.SectionReplace, c.ChangeType)
	assert.Equal(t, "Arbetsgivaren ska se till att arbetet planeras.", c.NewText)
	assert.Equal(t, 0, c.SortOrder)
}

func TestExtractSectionChangesDelsIntro(t *testing.T) {
	text := "Härigenom föreskrivs i fråga om arbetsmiljölagen (1977:1160)\n" +
		"dels att 3 kap. 4 § ska upphöra att gälla,\n" +
		"dels att 3 kap. 2 a och 5 §§ ska ha följande lydelse,\n" +
		"dels att det ska införas en ny paragraf, 3 kap. 2 b §, av följande lydelse.\n\n" +
		"3 kap. Arbetsgivarens skyldigheter\n\n" +
		"2 a § Arbetsgivaren ska vidta åtgärder.\n\n" +
		"2 b § Arbetstagaren ska medverka.\n\n" +
		"5 § Skyddsombud utses.\n\n" +
		"Denna lag träder i kraft den 1 juli 2025.\n"

	changes, err := ExtractSectionChanges(text)
	require.NoError(t, err)
	require.Len(t, changes, 4)

	type row struct {
		section string
		kind    models.SectionChangeType
		text    string
	}
	want := []row{
		{"4", models.SectionRepeal, ""},
		{"2a", models.SectionReplace, "Arbetsgivaren ska vidta åtgärder."},
		{"5", models.SectionReplace, "Skyddsombud utses."},
		{"2b", models.SectionInsert, "Arbetstagaren ska medverka."},
	}
	for i, w := range want {
		c := changes[i]
		require.NotNil(t, c.Chapter, "paragraf %s", w.section)
		assert.Equal(t, "3", *c.Chapter)
		assert.Equal(t, w.section, c.Section)
		assert.Equal(t, w.kind, c.ChangeType)
		assert.Equal(t, w.text, c.NewText)
		assert.Equal(t, i, c.SortOrder)
	}
	assert.Equal(t, "3 kap. 2 a §", changes[1].Label())
}

func TestExtractSectionChangesMixedIntroClause(t *testing.T) {
	text := "Härigenom föreskrivs att 3 § ska upphöra att gälla och att 4 § ska ha följande lydelse.\n\n" +
		"4 § Ny lydelse av paragrafen.\n"

	changes, err := ExtractSectionChanges(text)
	require.NoError(t, err)
	require.Len(t, changes, 2)
	assert.Equal(t, "3", changes[0].Section)
	assert.Equal(t, models.SectionRepeal, changes[0].ChangeType)
	assert.Empty(t, changes[0].NewText)
	assert.Equal(t, "4", changes[1].Section)
	assert.Equal(t, models.SectionReplace, changes[1].ChangeType)
	assert.Equal(t, "Ny lydelse av paragrafen.", changes[1].NewText)
}

func TestExtractSectionChangesInsertThenReplace(t *testing.T) {
	text := "Härigenom föreskrivs att det ska införas en ny paragraf, 4 a §, och att 5 § ska ha följande lydelse.\n\n" +
		"4 a § Tillsyn utövas av kommunen.\n\n" +
		"5 § Avgift tas ut.\n"

	changes, err := ExtractSectionChanges(text)
	require.NoError(t, err)
	require.Len(t, changes, 2)
	assert.Equal(t, "4a", changes[0].Section)
	assert.Equal(t, models.SectionInsert, changes[0].ChangeType)
	assert.Equal(t, "Tillsyn utövas av kommunen.", changes[0].NewText)
	assert.Equal(t, "5", changes[1].Section)
	assert.Equal(t, models.SectionReplace, changes[1].ChangeType)
}

func TestExtractSectionChangesSkipsInlineReferences(t *testing.T) {
	text := "4 § ska ha följande lydelse.\n\n" +
		"4 § Den som bryter mot föreskrifter enligt 2 § döms till böter. Se även 3 kap. 1 § i samma lag.\n"

	changes, err := ExtractSectionChanges(text)
	require.NoError(t, err)
	require.Len(t, changes, 1)
	assert.Equal(t, "4", changes[0].Section)
	assert.Contains(t, changes[0].NewText, "enligt 2 § döms till böter")
}

func TestExtractSectionChangesRepealOnly(t *testing.T) {
	text := "Härigenom föreskrivs att 12 § förordningen (2001:100) ska upphöra att gälla.\n"

	changes, err := ExtractSectionChanges(text)
	require.NoError(t, err)
	require.Len(t, changes, 1)
	assert.Equal(t, "12", changes[0].Section)
	assert.Equal(t, models.SectionRepeal, changes[0].ChangeType)
	assert.Empty(t, changes[0].NewText)
}

func TestExtractSectionChangesWithoutMarkers(t *testing.T) {
	changes, err := ExtractSectionChanges("   \n")
	assert.NoError(t, err)
	assert.Nil(t, changes)

	_, err = ExtractSectionChanges("Denna text saknar paragrafer helt.")
	assert.ErrorIs(t, err, ErrNoSectionMarkers)
}

func TestExpandSections(t *testing.T) {
	assert.Equal(t, []string{"3", "4", "5"}, expandSections("3–5"))
	assert.Equal(t, []string{"29a", "29b", "29c"}, expandSections("29 a–29 c"))
	assert.Equal(t, []string{"1", "2", "4"}, expandSections("1, 2 och 4"))
	assert.Equal(t, []string{"7a"}, expandSections("7 a"))
}

func TestParseTransitionalProvisions(t *testing.T) {
	text := "5 § Skyddsombud utses.\n\n" +
		"1. Denna lag träder i kraft den 1 juli 2025.\n" +
		"2. Äldre föreskrifter gäller fortfarande för ärenden som inletts före ikraftträdandet.\n\n" +
		"På regeringens vägnar\nJOHAN PEHRSON\n"

	tp := ParseTransitionalProvisions(text)
	require.NotNil(t, tp.EffectiveDate)
	assert.Equal(t, time.Date(2025, time.July, 1, 0, 0, 0, 0, time.UTC), *tp.EffectiveDate)
	assert.Equal(t, []string{
		"1. Denna lag träder i kraft den 1 juli 2025.",
		"2. Äldre föreskrifter gäller fortfarande för ärenden som inletts före ikraftträdandet.",
	}, tp.Items)
}

func TestParseTransitionalProvisionsWithoutDate(t *testing.T) {
	tp := ParseTransitionalProvisions("Denna förordning träder i kraft den dag regeringen bestämmer.")
	assert.Nil(t, tp.EffectiveDate)
	assert.Equal(t, []string{"Denna förordning träder i kraft den dag regeringen bestämmer."}, tp.Items)

	assert.Empty(t, ParseTransitionalProvisions("3 § Text utan ikraftträdande.").Items)
}
