package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"lagflode/canonical"
	"lagflode/config"
	"lagflode/models"
)

const skyddHTML = `<html><body><h1>Förordning (2020:1) om skydd</h1>
<p class="LedKapitel">1 kap. Inledande bestämmelser</p>
<p class="LedParagraf">1 § Denna förordning gäller skydd mot olyckor.</p>
<p class="LedParagraf">2 § Med olycka avses i denna förordning en plötslig händelse.</p>
</body></html>`

func newDocumentService(store *memStore) *DocumentService {
	cfg := &config.Config{ChunkMaxTokens: 512, TokensPerWord: 1.3}
	s := NewDocumentService(cfg, store, zap.NewNop())
	s.now = func() time.Time { return time.Date(2025, 5, 1, 12, 0, 0, 0, time.UTC) }
	return s
}

func TestIngestNewDocument(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	svc := newDocumentService(store)

	res, err := svc.Ingest(ctx, skyddHTML, IngestMeta{
		DocumentNumber: "SFS 2020:1",
		Title:          "Förordning (2020:1) om skydd",
		ContentType:    canonical.SFSLaw,
		SourceURL:      "https://example.test/2020-1",
	})
	require.NoError(t, err)
	assert.Equal(t, "SFS_CLASS", res.Pattern)
	assert.Positive(t, res.Chunks)

	doc, err := store.GetDocument(ctx, "SFS 2020:1")
	require.NoError(t, err)
	assert.Equal(t, "forordning-2020-1-om-skydd-2020-1", doc.Slug)
	require.NotNil(t, doc.FullText)
	assert.Contains(t, *doc.FullText, "Denna förordning gäller skydd mot olyckor.")
	assert.Contains(t, doc.HTMLContent, `class="legal-document"`)
	assert.Contains(t, doc.MarkdownContent, "# Förordning (2020:1) om skydd")
	assert.NotEmpty(t, doc.JSONContent)
	assert.Equal(t, models.ChangeNewLaw, doc.LastChangeType)

	require.Len(t, store.events, 1)
	ev := store.events[0]
	assert.Equal(t, models.ChangeNewLaw, ev.ChangeType)
	assert.Equal(t, doc.ID, ev.DocumentID)
	assert.Equal(t, models.PriorityMedium, ev.Priority)

	chunks := store.chunks[doc.ID]
	require.NotEmpty(t, chunks)
	assert.Equal(t, 0, chunks[0].ChunkIndex)
	assert.NotEmpty(t, chunks[0].ChunkSetID)
	assert.Contains(t, chunks[0].BlockIDs, "SFS2020-1_K1_P1")
}

func TestIngestDetectsAmendment(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	svc := newDocumentService(store)
	meta := IngestMeta{DocumentNumber: "SFS 2020:2", Title: "Lag (2020:2) om prov", Format: FormatMarkdown}

	_, err := svc.Ingest(ctx, "- **1 §** Lagen gäller prov.\n- **2 §** Prov görs årligen.\n", meta)
	require.NoError(t, err)

	// gleiche Fassung: kein Ereignis
	res, err := svc.Ingest(ctx, "- **1 §** Lagen gäller prov.\n- **2 §** Prov görs årligen.\n", meta)
	require.NoError(t, err)
	assert.Nil(t, res.Event)
	require.Len(t, store.events, 1)

	meta.AmendmentSfs = "2025:5"
	res, err = svc.Ingest(ctx, "- **1 §** Lagen gäller prov.\n- **2 §** Prov görs varje kvartal.\n", meta)
	require.NoError(t, err)
	require.NotNil(t, res.Event)
	assert.Equal(t, models.ChangeAmendment, res.Event.ChangeType)
	assert.Equal(t, "SFS 2025:5", res.Event.AmendmentSfs)
	assert.NotEmpty(t, res.Event.DiffStats)

	doc, err := store.GetDocument(ctx, "SFS 2020:2")
	require.NoError(t, err)
	assert.Equal(t, models.ChangeAmendment, doc.LastChangeType)
	assert.Equal(t, "SFS 2025:5", doc.LastChangeRef)
	assert.Len(t, store.events, 2)
}

func TestIngestValidationErrorBlocksPersistence(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	svc := newDocumentService(store)

	_, err := svc.Ingest(ctx, "- **1 §** Text.\n- **2 §**\n", IngestMeta{
		DocumentNumber: "SFS 2020:3",
		Title:          "Lag (2020:3)",
		Format:         FormatMarkdown,
	})
	var verr *canonical.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.True(t, verr.Has(canonical.ViolationEmptySection))

	_, err = store.GetDocument(ctx, "SFS 2020:3")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Empty(t, store.events)
}

func TestIngestUnknownFormat(t *testing.T) {
	_, err := newDocumentService(newMemStore()).Ingest(context.Background(), "x", IngestMeta{DocumentNumber: "SFS 2020:4", Format: "pdf"})
	assert.Error(t, err)
}

func TestStubsAreHiddenFromPublicListing(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	svc := newDocumentService(store)

	stub, err := svc.CreateStub(ctx, "AFS 2023:1", "Systematiskt arbetsmiljöarbete")
	require.NoError(t, err)
	assert.True(t, stub.IsStub())
	assert.Equal(t, canonical.AgencyRegulation, stub.ContentType)

	_, err = svc.Ingest(ctx, skyddHTML, IngestMeta{DocumentNumber: "SFS 2020:1", Title: "Förordning (2020:1) om skydd"})
	require.NoError(t, err)

	public, err := svc.ListPublic(ctx, 0)
	require.NoError(t, err)
	require.Len(t, public, 1)
	assert.Equal(t, "SFS 2020:1", public[0].DocumentNumber)

	all, err := store.ListDocuments(ctx, true, 0)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	// ein vorhandenes Dokument wird nicht zum Stub
	again, err := svc.CreateStub(ctx, "SFS 2020:1", "egal")
	require.NoError(t, err)
	assert.False(t, again.IsStub())

	_, err = svc.CreateStub(ctx, "  ", "")
	assert.Error(t, err)
}

func TestIngestReplacesStub(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	svc := newDocumentService(store)

	_, err := svc.CreateStub(ctx, "SFS 2020:1", "Förordning (2020:1) om skydd")
	require.NoError(t, err)
	res, err := svc.Ingest(ctx, skyddHTML, IngestMeta{DocumentNumber: "SFS 2020:1", Title: "Förordning (2020:1) om skydd", ContentType: canonical.SFSLaw})
	require.NoError(t, err)
	require.NotNil(t, res.Event)
	assert.Equal(t, models.ChangeNewLaw, res.Event.ChangeType)
	assert.False(t, res.Document.IsStub())
}
