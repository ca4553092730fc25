package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"lagflode/config"
	"lagflode/models"
	"lagflode/providers"
	"lagflode/providers/sfs"
)

type fakeSource struct {
	fakePages
	pdfs    map[string][]byte
	pdfFail error
}

func (f *fakeSource) FetchPDF(_ context.Context, url string) ([]byte, error) {
	if f.pdfFail != nil {
		return nil, f.pdfFail
	}
	return f.pdfs[url], nil
}

type fakeArchive struct {
	stored map[string][]byte
}

func (a *fakeArchive) StoreSourcePDF(_ context.Context, sfsNumber string, pdf []byte) (string, error) {
	key := "sfs-pdfs/" + sfsNumber + ".pdf"
	a.stored[key] = pdf
	return key, nil
}

const replaceText = "Härigenom föreskrivs att 3 § arbetsmiljölagen (1977:1160) ska ha följande lydelse.\n\n" +
	"3 § Arbetsgivaren ska se till att arbetet planeras.\n\n" +
	"Denna lag träder i kraft den 1 juli 2025."

func newProcessor(store *memStore, src *fakeSource, archive PDFArchive) *AmendmentProcessor {
	cfg := &config.Config{MaxParseAttempts: 3, AmendmentBatchSize: 10}
	p := NewAmendmentProcessor(cfg, store, src, archive, zap.NewNop())
	p.now = func() time.Time { return time.Date(2025, 6, 2, 8, 0, 0, 0, time.UTC) }
	return p
}

func seedAmendment(t *testing.T, store *memStore, number string, typ models.DocumentType, text string) {
	t.Helper()
	a := &models.AmendmentDocument{
		SfsNumber:    number,
		Title:        "Lag om ändring i arbetsmiljölagen (1977:1160)",
		DocumentType: typ,
		ParseStatus:  models.ParsePending,
	}
	if text != "" {
		a.FullText = &text
	}
	require.NoError(t, store.SaveAmendment(context.Background(), a))
}

func newSource() *fakeSource {
	return &fakeSource{
		fakePages: fakePages{pages: map[string]*sfs.DocumentPage{}, fail: map[string]error{}},
		pdfs:      map[string][]byte{},
	}
}

func TestProcessStoredText(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	seedAmendment(t, store, "SFS 2025:100", models.DocumentAmendment, replaceText)

	p := newProcessor(store, newSource(), nil)
	sum, err := p.ProcessPending(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, 1, sum.Completed)

	a, err := store.GetAmendment(ctx, "2025:100")
	require.NoError(t, err)
	assert.Equal(t, models.ParseCompleted, a.ParseStatus)
	require.Len(t, a.SectionChanges, 1)
	assert.Equal(t, "3", a.SectionChanges[0].Section)
	assert.Equal(t, models.SectionReplace, a.SectionChanges[0].ChangeType)
	assert.Equal(t, "Arbetsgivaren ska se till att arbetet planeras.", a.SectionChanges[0].NewText)

	require.NotNil(t, a.EffectiveDate)
	assert.Equal(t, time.Date(2025, 7, 1, 0, 0, 0, 0, time.UTC), *a.EffectiveDate)
	require.NotNil(t, a.ParsedAt)
	assert.Contains(t, a.MarkdownContent, "Arbetsgivaren ska se till att arbetet planeras.")
	assert.Equal(t, 0, p.Pages.(*fakeSource).calls)
}

func TestProcessFetchesPageAndArchivesPDF(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	seedAmendment(t, store, "SFS 2025:101", models.DocumentAmendment, "")

	src := newSource()
	src.pages["SFS 2025:101"] = &sfs.DocumentPage{
		SfsNumber: "SFS 2025:101",
		Text:      replaceText,
		PDFURL:    "https://example.test/sfs/2025-06/SFS2025-101.pdf",
	}
	src.pdfs["https://example.test/sfs/2025-06/SFS2025-101.pdf"] = []byte("%PDF-1.7")
	archive := &fakeArchive{stored: map[string][]byte{}}

	p := newProcessor(store, src, archive)
	a, err := store.GetAmendment(ctx, "SFS 2025:101")
	require.NoError(t, err)
	require.NoError(t, p.Process(ctx, a))

	saved, err := store.GetAmendment(ctx, "SFS 2025:101")
	require.NoError(t, err)
	assert.Equal(t, models.ParseCompleted, saved.ParseStatus)
	assert.Equal(t, "sfs-pdfs/SFS 2025:101.pdf", saved.StoragePath)
	assert.Equal(t, []byte("%PDF-1.7"), archive.stored[saved.StoragePath])
	require.NotNil(t, saved.FullText)
	assert.Contains(t, *saved.FullText, "3 § Arbetsgivaren")
}

func TestProcessArchiveFailureIsNotFatal(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	seedAmendment(t, store, "SFS 2025:102", models.DocumentAmendment, replaceText)

	src := newSource()
	src.pdfFail = &providers.FetchError{URL: "x", StatusCode: 404}
	p := newProcessor(store, src, &fakeArchive{stored: map[string][]byte{}})

	a, _ := store.GetAmendment(ctx, "SFS 2025:102")
	a.PDFURL = "https://example.test/missing.pdf"
	require.NoError(t, p.Process(ctx, a))

	saved, _ := store.GetAmendment(ctx, "SFS 2025:102")
	assert.Equal(t, models.ParseCompleted, saved.ParseStatus)
	assert.Empty(t, saved.StoragePath)
}

func TestProcessPendingContinuesAfterFailure(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	seedAmendment(t, store, "SFS 2025:1", models.DocumentAmendment, "Text helt utan paragrafer.")
	seedAmendment(t, store, "SFS 2025:2", models.DocumentAmendment, replaceText)

	p := newProcessor(store, newSource(), nil)
	sum, err := p.ProcessPending(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, 2, sum.Processed)
	assert.Equal(t, 1, sum.Completed)
	assert.Equal(t, 1, sum.Failed)

	failed, _ := store.GetAmendment(ctx, "SFS 2025:1")
	assert.Equal(t, models.ParseFailed, failed.ParseStatus)
	assert.Equal(t, 1, failed.ParseAttempts)
	assert.Equal(t, ErrNoSectionMarkers.Error(), failed.ParseError)

	ok, _ := store.GetAmendment(ctx, "SFS 2025:2")
	assert.Equal(t, models.ParseCompleted, ok.ParseStatus)
}

func TestProcessTextEmptyAfterCleaning(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	seedAmendment(t, store, "SFS 2025:20", models.DocumentAmendment, "SFS 2025:20\nSida 1\n──────")
	seedAmendment(t, store, "SFS 2025:21", models.DocumentNewLaw, "SFS 2025:21\n- 2 -")

	p := newProcessor(store, newSource(), nil)
	sum, err := p.ProcessPending(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, 0, sum.Completed)
	assert.Equal(t, 2, sum.Failed)

	for _, number := range []string{"SFS 2025:20", "SFS 2025:21"} {
		a, err := store.GetAmendment(ctx, number)
		require.NoError(t, err)
		assert.Equal(t, models.ParseFailed, a.ParseStatus, number)
		assert.Equal(t, ErrEmptyText.Error(), a.ParseError, number)
		assert.Empty(t, a.SectionChanges, number)
		assert.Nil(t, a.ParsedAt, number)
	}
}

func TestProcessFailedBelowMaxAttemptsIsRetried(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	seedAmendment(t, store, "SFS 2025:3", models.DocumentAmendment, "Text helt utan paragrafer.")
	p := newProcessor(store, newSource(), nil)

	for i := 0; i < 5; i++ {
		_, err := p.ProcessPending(ctx, 10)
		require.NoError(t, err)
	}
	a, _ := store.GetAmendment(ctx, "SFS 2025:3")
	assert.Equal(t, 3, a.ParseAttempts)

	// manueller Retry setzt den Zähler zurück
	_, err := p.Retry(ctx, "2025:3")
	assert.ErrorIs(t, err, ErrNoSectionMarkers)
	a, _ = store.GetAmendment(ctx, "SFS 2025:3")
	assert.Equal(t, 1, a.ParseAttempts)
}

func TestProcessNewLawAndRepeal(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	seedAmendment(t, store, "SFS 2025:10", models.DocumentNewLaw, "1 § Denna lag gäller arbete.\n\n2 § Med arbetsgivare avses den som anställer.")
	seedAmendment(t, store, "SFS 2025:11", models.DocumentRepeal, "Härigenom föreskrivs att lagen (2002:3) om tillfälligt stöd ska upphöra att gälla vid utgången av juni 2025.")

	p := newProcessor(store, newSource(), nil)
	sum, err := p.ProcessPending(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, 2, sum.Completed)

	newLaw, _ := store.GetAmendment(ctx, "SFS 2025:10")
	assert.Equal(t, models.ParseCompleted, newLaw.ParseStatus)
	assert.Empty(t, newLaw.SectionChanges)
	assert.Contains(t, newLaw.MarkdownContent, "Med arbetsgivare avses")

	repeal, _ := store.GetAmendment(ctx, "SFS 2025:11")
	assert.Equal(t, models.ParseCompleted, repeal.ParseStatus)
	assert.Empty(t, repeal.SectionChanges)
}

func TestProcessMissingDocumentFails(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	seedAmendment(t, store, "SFS 2025:20", models.DocumentAmendment, "")

	src := newSource()
	src.fail["SFS 2025:20"] = &providers.FetchError{URL: "x", StatusCode: 503}
	p := newProcessor(store, src, nil)

	a, _ := store.GetAmendment(ctx, "SFS 2025:20")
	err := p.Process(ctx, a)
	assert.True(t, providers.IsRecoverable(err))

	var fe *providers.FetchError
	assert.True(t, errors.As(err, &fe))
	saved, _ := store.GetAmendment(ctx, "SFS 2025:20")
	assert.Equal(t, models.ParseFailed, saved.ParseStatus)
}
