package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/datatypes"

	"lagflode/canonical"
	"lagflode/chunking"
	"lagflode/config"
	"lagflode/markdown"
	"lagflode/models"
	"lagflode/normalize"
)

// Eingabeformate für Ingest.
const (
	FormatHTML     = "html"
	FormatMarkdown = "markdown"
)

// IngestMeta beschreibt ein aufzunehmendes Dokument.
type IngestMeta struct {
	DocumentNumber string                `json:"document_number" binding:"required"`
	Title          string                `json:"title"`
	ContentType    canonical.ContentType `json:"content_type"`
	EffectiveDate  string                `json:"effective_date"`
	SourceURL      string                `json:"source_url"`
	// AmendmentSfs ist die Författning, die zur neuen Fassung geführt hat.
	AmendmentSfs string `json:"amendment_sfs"`
	Format       string `json:"format"`
}

// IngestResult ist das Ergebnis einer Aufnahme.
type IngestResult struct {
	Document *models.LegalDocument `json:"document"`
	Pattern  string                `json:"pattern"`
	Chunks   int                   `json:"chunks"`
	Event    *models.ChangeEvent   `json:"event,omitempty"`
}

// DocumentService nimmt Rohdokumente auf und hält LegalDocuments, Chunks und
// ChangeEvents aktuell.
type DocumentService struct {
	Config *config.Config
	Store  DocumentStore
	Logger *zap.Logger
	now    func() time.Time
}

func NewDocumentService(cfg *config.Config, store DocumentStore, logger *zap.Logger) *DocumentService {
	return &DocumentService{Config: cfg, Store: store, Logger: logger, now: time.Now}
}

// Canonicalize überführt HTML oder Markdown in ein validiertes kanonisches Dokument.
func (s *DocumentService) Canonicalize(raw string, meta IngestMeta) (*canonical.Document, string, error) {
	var (
		doc     *canonical.Document
		pattern = normalize.Unknown().String()
	)
	switch strings.ToLower(meta.Format) {
	case FormatMarkdown:
		d, err := markdown.MarkdownToDocument(raw, markdown.Meta{
			DocumentNumber: meta.DocumentNumber,
			Title:          meta.Title,
			ContentType:    meta.ContentType,
			EffectiveDate:  meta.EffectiveDate,
		})
		if err != nil {
			return nil, "", err
		}
		doc = d
	case "", FormatHTML:
		res, err := normalize.NormalizeDocument(raw, normalize.Metadata{
			DocumentNumber: meta.DocumentNumber,
			Title:          meta.Title,
			ContentType:    meta.ContentType,
			EffectiveDate:  meta.EffectiveDate,
			Hyphen:         s.Config.HyphenRules(),
		})
		if err != nil {
			return nil, "", err
		}
		doc, pattern = res.Document, res.Pattern.String()
	default:
		return nil, "", fmt.Errorf("unbekanntes format %q", meta.Format)
	}
	if err := canonical.ValidateOrError(doc); err != nil {
		return nil, pattern, err
	}
	return doc, pattern, nil
}

// Ingest normalisiert, validiert und speichert ein Dokument. Ein ValidationError
// verhindert jede Persistierung.
func (s *DocumentService) Ingest(ctx context.Context, raw string, meta IngestMeta) (*IngestResult, error) {
	meta.DocumentNumber = strings.TrimSpace(meta.DocumentNumber)
	log := s.Logger.With(zap.String("document", meta.DocumentNumber))

	doc, pattern, err := s.Canonicalize(raw, meta)
	if err != nil {
		log.Warn("Dokument abgelehnt", zap.Error(err))
		return nil, err
	}

	html := canonical.RenderHTML(doc)
	md, err := markdown.HTMLToMarkdown(html)
	if err != nil {
		return nil, fmt.Errorf("markdown: %w", err)
	}
	jsonContent, err := json.Marshal(doc)
	if err != nil {
		return nil, err
	}
	fullText := doc.PlainText()

	existing, err := s.Store.GetDocument(ctx, doc.DocumentNumber)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return nil, fmt.Errorf("dokument laden: %w", err)
	}

	ld := &models.LegalDocument{}
	if existing != nil {
		*ld = *existing
	}
	ld.DocumentNumber = doc.DocumentNumber
	ld.Title = doc.Title
	ld.ContentType = doc.ContentType
	ld.Pattern = pattern
	ld.HTMLContent = html
	ld.FullText = &fullText
	ld.MarkdownContent = md
	ld.JSONContent = datatypes.JSON(jsonContent)
	if meta.SourceURL != "" {
		ld.SourceURL = meta.SourceURL
	}
	if t, err := time.Parse("2006-01-02", doc.EffectiveDate); err == nil {
		ld.EffectiveDate = &t
	}

	var ev *models.ChangeEvent
	switch {
	case existing == nil || existing.FullText == nil:
		ev = NewLawEvent(ld)
	default:
		ev, err = DetectChanges(*existing.FullText, fullText, meta.AmendmentSfs)
		if err != nil {
			return nil, err
		}
	}
	if ev != nil {
		ApplyChange(ld, ev, s.now())
	}

	if err := s.Store.UpsertDocument(ctx, ld); err != nil {
		return nil, fmt.Errorf("dokument speichern: %w", err)
	}
	if ev != nil {
		ev.DocumentID = ld.ID
		if err := s.Store.SaveChangeEvent(ctx, ev); err != nil {
			return nil, fmt.Errorf("änderung speichern: %w", err)
		}
	}

	chunks, err := s.chunk(ctx, ld.ID, doc)
	if err != nil {
		return nil, err
	}
	log.Info("Dokument aufgenommen",
		zap.String("pattern", pattern),
		zap.Int("blocks", len(doc.Blocks)),
		zap.Int("chunks", chunks))
	return &IngestResult{Document: ld, Pattern: pattern, Chunks: chunks, Event: ev}, nil
}

// chunk ersetzt die Chunks des Dokuments durch einen neuen Satz.
func (s *DocumentService) chunk(ctx context.Context, documentID uint, doc *canonical.Document) (int, error) {
	chunks, err := chunking.ChunkDocument(chunking.Input{
		Doc:           doc,
		MaxTokens:     s.Config.ChunkMaxTokens,
		TokensPerWord: s.Config.TokensPerWord,
	})
	if err != nil {
		return 0, fmt.Errorf("chunking: %w", err)
	}
	setID := uuid.NewString()
	rows := make([]models.DocumentChunk, 0, len(chunks))
	for _, c := range chunks {
		rows = append(rows, models.DocumentChunk{
			DocumentID: documentID,
			ChunkSetID: setID,
			ChunkIndex: c.Index,
			Text:       c.Text,
			Header:     c.ContextHeader,
			BlockIDs:   strings.Join(c.BlockIDs, ","),
			TokenCount: c.TokenCount,
			Oversized:  c.Oversized,
		})
	}
	if err := s.Store.ReplaceChunks(ctx, documentID, rows); err != nil {
		return 0, fmt.Errorf("chunks speichern: %w", err)
	}
	return len(rows), nil
}

// CreateStub legt eine Myndighetsföreskrift ohne Volltext an. Ein vorhandenes
// Dokument bleibt unverändert.
func (s *DocumentService) CreateStub(ctx context.Context, documentNumber, title string) (*models.LegalDocument, error) {
	documentNumber = strings.TrimSpace(documentNumber)
	if documentNumber == "" {
		return nil, errors.New("documentNumber fehlt")
	}
	existing, err := s.Store.GetDocument(ctx, documentNumber)
	switch {
	case err == nil:
		return existing, nil
	case !errors.Is(err, ErrNotFound):
		return nil, err
	}
	stub := &models.LegalDocument{
		DocumentNumber: documentNumber,
		Title:          strings.TrimSpace(title),
		ContentType:    canonical.AgencyRegulation,
	}
	if err := s.Store.UpsertDocument(ctx, stub); err != nil {
		return nil, err
	}
	s.Logger.Info("Stub angelegt", zap.String("document", documentNumber))
	return stub, nil
}

// ListPublic liefert alle Dokumente ohne Stubs.
func (s *DocumentService) ListPublic(ctx context.Context, limit int) ([]models.LegalDocument, error) {
	return s.Store.ListDocuments(ctx, false, limit)
}
