package services

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"

	"lagflode/canonical"
	"lagflode/models"
)

func chapterDoc() *canonical.Document {
	b := canonical.NewBuilder("SFS 1977:1160", "Arbetsmiljölag (1977:1160)", canonical.SFSLaw)
	b.ChapterHeading("1", "Lagens ändamål")
	b.Section("1", "Lagens ändamål är att förebygga ohälsa.")
	b.Section("2", "Lagen gäller varje verksamhet.")
	b.ChapterHeading("2", "Arbetsmiljöns beskaffenhet")
	b.Section("1", "Arbetsmiljön ska vara tillfredsställande.")
	b.Section("3", "Arbetet ska planeras.")
	b.CloseChapter()
	b.Paragraph("Övergångsbestämmelser")
	return b.Build()
}

func chapterRef(c string) *string { return &c }

func sectionNumbers(doc *canonical.Document) []string {
	var out []string
	for _, s := range doc.Sections() {
		out = append(out, s.Chapter+":"+s.Number)
	}
	return out
}

func TestApplySectionChanges(t *testing.T) {
	base := chapterDoc()
	changes := []models.SectionChange{
		{Chapter: chapterRef("1"), Section: "2", ChangeType: models.SectionReplace, NewText: "Lagen gäller all verksamhet.", SortOrder: 0},
		{Chapter: chapterRef("2"), Section: "2", ChangeType: models.SectionInsert, NewText: "Arbetstiden ska anpassas.", SortOrder: 1},
		{Chapter: chapterRef("2"), Section: "0a", ChangeType: models.SectionInsert, NewText: "Inledande bestämmelse.", SortOrder: 2},
		{Chapter: chapterRef("2"), Section: "3", ChangeType: models.SectionRepeal, SortOrder: 3},
	}

	doc, err := ApplySectionChanges(base, changes)
	require.NoError(t, err)
	assert.Equal(t, []string{"1:1", "1:2", "2:0a", "2:1", "2:2", "2:3"}, sectionNumbers(doc))

	replaced := doc.BlockByID("SFS1977-1160_K1_P2")
	require.NotNil(t, replaced)
	assert.Equal(t, "Lagen gäller all verksamhet.", replaced.Text)

	inserted := doc.BlockByID("SFS1977-1160_K2_P2")
	require.NotNil(t, inserted)
	assert.Equal(t, "Arbetstiden ska anpassas.", inserted.Text)

	repealed := doc.BlockByID("SFS1977-1160_K2_P3")
	require.NotNil(t, repealed)
	assert.True(t, repealed.Repealed)
	assert.Empty(t, repealed.Text)

	// die Kapitelüberschrift bleibt vor dem ersten Paragrafen des Kapitels
	heading := -1
	for i, b := range doc.Blocks {
		if b.ID == "SFS1977-1160_K2" {
			heading = i
		}
		if b.ID == "SFS1977-1160_K2_P0a" {
			assert.Equal(t, heading+1, i)
		}
	}
	assert.Equal(t, "Övergångsbestämmelser", doc.Blocks[len(doc.Blocks)-1].Text)
	assert.True(t, canonical.Validate(doc).Valid)

	// Ausgangsfassung unverändert
	assert.Equal(t, "Lagen gäller varje verksamhet.", base.BlockByID("SFS1977-1160_K1_P2").Text)
	assert.Len(t, base.Sections(), 4)
	assert.False(t, base.BlockByID("SFS1977-1160_K2_P3").Repealed)
}

func TestApplySectionChangesWithoutChapters(t *testing.T) {
	b := canonical.NewBuilder("SFS 2020:1", "Förordning (2020:1) om skydd", canonical.SFSLaw)
	b.Section("1", "Denna förordning gäller skydd.")
	b.Section("4", "Kommunen ansvarar.")
	base := b.Build()

	doc, err := ApplySectionChanges(base, []models.SectionChange{
		{Section: "4a", ChangeType: models.SectionInsert, NewText: "Tillsyn utövas av kommunen."},
		{Section: "2", ChangeType: models.SectionInsert, NewText: "Med skydd avses åtgärder."},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{":1", ":2", ":4", ":4a"}, sectionNumbers(doc))
}

func TestApplySectionChangesRepealOfMissingSection(t *testing.T) {
	base := chapterDoc()
	_, err := ApplySectionChanges(base, []models.SectionChange{
		{Chapter: chapterRef("2"), Section: "9", ChangeType: models.SectionRepeal},
	})
	assert.ErrorIs(t, err, ErrSectionNotFound)
	assert.ErrorContains(t, err, "2 kap. 9 §")
}

func TestApplySectionChangesRejectsInvalidSequences(t *testing.T) {
	base := chapterDoc()

	_, err := ApplySectionChanges(base, []models.SectionChange{
		{Chapter: chapterRef("1"), Section: "7", ChangeType: models.SectionReplace, NewText: "Text."},
	})
	assert.ErrorIs(t, err, ErrSectionNotFound)

	_, err = ApplySectionChanges(base, []models.SectionChange{
		{Chapter: chapterRef("1"), Section: "1", ChangeType: models.SectionInsert, NewText: "Text."},
	})
	assert.ErrorIs(t, err, ErrSectionExists)

	// zweimal aufheben
	_, err = ApplySectionChanges(base, []models.SectionChange{
		{Chapter: chapterRef("1"), Section: "1", ChangeType: models.SectionRepeal, SortOrder: 0},
		{Chapter: chapterRef("1"), Section: "1", ChangeType: models.SectionRepeal, SortOrder: 1},
	})
	assert.ErrorIs(t, err, ErrSectionNotFound)

	_, err = ApplySectionChanges(nil, nil)
	assert.Error(t, err)
}

func TestApplySectionChangesRevalidates(t *testing.T) {
	_, err := ApplySectionChanges(chapterDoc(), []models.SectionChange{
		{Chapter: chapterRef("1"), Section: "1", ChangeType: models.SectionReplace, NewText: "  "},
	})
	var verr *canonical.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.True(t, verr.Has(canonical.ViolationEmptySection))
}

func TestApplySectionChangesReinsertsRepealedSection(t *testing.T) {
	repealed, err := ApplySectionChanges(chapterDoc(), []models.SectionChange{
		{Chapter: chapterRef("2"), Section: "3", ChangeType: models.SectionRepeal},
	})
	require.NoError(t, err)

	doc, err := ApplySectionChanges(repealed, []models.SectionChange{
		{Chapter: chapterRef("2"), Section: "3", ChangeType: models.SectionInsert, NewText: "Arbetet ska planeras och följas upp."},
	})
	require.NoError(t, err)
	s := doc.BlockByID("SFS1977-1160_K2_P3")
	require.NotNil(t, s)
	assert.False(t, s.Repealed)
	assert.Equal(t, "Arbetet ska planeras och följas upp.", s.Text)
	assert.Len(t, doc.Sections(), 4)
}

func seedCompleted(t *testing.T, store *memStore, number string, effective *time.Time, changes ...models.SectionChange) {
	t.Helper()
	ctx := context.Background()
	base := "SFS 1977:1160"
	a := &models.AmendmentDocument{
		SfsNumber:     number,
		Title:         "Lag om ändring i arbetsmiljölagen (1977:1160)",
		DocumentType:  models.DocumentAmendment,
		BaseLawSfs:    &base,
		EffectiveDate: effective,
		ParseStatus:   models.ParseCompleted,
	}
	require.NoError(t, store.SaveAmendment(ctx, a))
	for i := range changes {
		changes[i].SortOrder = i
	}
	require.NoError(t, store.CompleteAmendment(ctx, a, changes))
}

func TestSectionHistoryOrderedByEffectiveDate(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	jul := time.Date(2025, 7, 1, 0, 0, 0, 0, time.UTC)
	jan := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	seedCompleted(t, store, "SFS 2025:10", &jul,
		models.SectionChange{Chapter: chapterRef("2"), Section: "3", ChangeType: models.SectionRepeal})
	seedCompleted(t, store, "SFS 2025:20", nil,
		models.SectionChange{Chapter: chapterRef("2"), Section: "3", ChangeType: models.SectionInsert, NewText: "Ny lydelse."})
	seedCompleted(t, store, "SFS 2023:900", &jan,
		models.SectionChange{Chapter: chapterRef("2"), Section: "3", ChangeType: models.SectionReplace, NewText: "Arbetet ska planeras noga."},
		models.SectionChange{Chapter: chapterRef("1"), Section: "2", ChangeType: models.SectionReplace, NewText: "Lagen gäller all verksamhet."})
	seedAmendment(t, store, "SFS 2025:30", models.DocumentAmendment, replaceText)

	hist, err := store.SectionHistory(ctx, "1977:1160", "2", "3")
	require.NoError(t, err)
	require.Len(t, hist, 3)
	assert.Equal(t, "SFS 2023:900", hist[0].SfsNumber)
	assert.Equal(t, models.SectionReplace, hist[0].ChangeType)
	assert.Equal(t, "SFS 2025:10", hist[1].SfsNumber)
	assert.Equal(t, models.SectionRepeal, hist[1].ChangeType)
	assert.Equal(t, "SFS 2025:20", hist[2].SfsNumber)
	assert.Nil(t, hist[2].EffectiveDate)

	all, err := store.SectionHistory(ctx, "SFS 1977:1160", "", "")
	require.NoError(t, err)
	assert.Len(t, all, 4)

	none, err := store.SectionHistory(ctx, "SFS 1977:1160", "", "3")
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestHistoryReplaysIntoVersion(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	jan := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	jul := time.Date(2025, 7, 1, 0, 0, 0, 0, time.UTC)
	seedCompleted(t, store, "SFS 2025:10", &jul,
		models.SectionChange{Chapter: chapterRef("2"), Section: "3", ChangeType: models.SectionRepeal})
	seedCompleted(t, store, "SFS 2023:900", &jan,
		models.SectionChange{Chapter: chapterRef("2"), Section: "3", ChangeType: models.SectionReplace, NewText: "Arbetet ska planeras noga."})

	hist, err := store.SectionHistory(ctx, "SFS 1977:1160", "", "")
	require.NoError(t, err)
	changes := make([]models.SectionChange, 0, len(hist))
	for _, h := range hist {
		changes = append(changes, h.Change())
	}

	// in umgekehrter Reihenfolge würde die Aufhebung vor der Neufassung scheitern
	doc, err := ApplySectionChanges(chapterDoc(), changes)
	require.NoError(t, err)
	assert.True(t, doc.BlockByID("SFS1977-1160_K2_P3").Repealed)
}

func TestPreviewAmendment(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	raw, err := json.Marshal(chapterDoc())
	require.NoError(t, err)
	require.NoError(t, store.UpsertDocument(ctx, &models.LegalDocument{
		DocumentNumber: "SFS 1977:1160",
		Title:          "Arbetsmiljölag (1977:1160)",
		ContentType:    canonical.SFSLaw,
		JSONContent:    datatypes.JSON(raw),
	}))

	jul := time.Date(2025, 7, 1, 0, 0, 0, 0, time.UTC)
	seedCompleted(t, store, "SFS 2025:732", &jul,
		models.SectionChange{Chapter: chapterRef("2"), Section: "1", ChangeType: models.SectionReplace, NewText: "Arbetsmiljön ska vara god."},
		models.SectionChange{Chapter: chapterRef("2"), Section: "1a", ChangeType: models.SectionInsert, NewText: "Arbetsgivaren ska utreda risker."})

	doc, err := PreviewAmendment(ctx, store, store, "2025:732")
	require.NoError(t, err)
	assert.Equal(t, "2025-07-01", doc.EffectiveDate)
	assert.Contains(t, doc.LegislativeReferences, "SFS 2025:732")
	assert.Equal(t, "SFS 2025:732", doc.BlockByID("SFS1977-1160_K2_P1").AmendedBy)
	assert.Equal(t, "SFS 2025:732", doc.BlockByID("SFS1977-1160_K2_P1a").AmendedBy)
	assert.Empty(t, doc.BlockByID("SFS1977-1160_K1_P1").AmendedBy)

	stored, err := store.GetDocument(ctx, "SFS 1977:1160")
	require.NoError(t, err)
	assert.NotContains(t, string(stored.JSONContent), "Arbetsmiljön ska vara god.")
}

func TestPreviewAmendmentRequiresCompletedAmendment(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	seedAmendment(t, store, "SFS 2025:40", models.DocumentAmendment, replaceText)

	_, err := PreviewAmendment(ctx, store, store, "SFS 2025:40")
	assert.ErrorIs(t, err, ErrNotApplicable)

	_, err = PreviewAmendment(ctx, store, store, "SFS 2025:41")
	assert.ErrorIs(t, err, ErrNotFound)
}
