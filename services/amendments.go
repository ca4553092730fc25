package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"lagflode/canonical"
	"lagflode/config"
	"lagflode/markdown"
	"lagflode/models"
	"lagflode/providers/sfs"
	"lagflode/textproc"
)

// ErrEmptyText: nach der Bereinigung blieb kein Text übrig.
var ErrEmptyText = errors.New("dokumenttext nach bereinigung leer")

// AmendmentSource liefert Dokumentseite und PDF einer Författning.
type AmendmentSource interface {
	DocumentSource
	FetchPDF(ctx context.Context, pdfURL string) ([]byte, error)
}

// PDFArchive legt Quell-PDFs ab und liefert den storagePath.
type PDFArchive interface {
	StoreSourcePDF(ctx context.Context, sfsNumber string, pdf []byte) (string, error)
}

// ProcessSummary fasst einen Lauf über die Warteschlange zusammen.
type ProcessSummary struct {
	Processed int      `json:"processed"`
	Completed int      `json:"completed"`
	Failed    int      `json:"failed"`
	Errors    []string `json:"errors,omitempty"`
}

// AmendmentProcessor extrahiert die Paragrafenänderungen gespeicherter Författningar.
type AmendmentProcessor struct {
	Config  *config.Config
	Store   AmendmentStore
	Pages   AmendmentSource
	Archive PDFArchive // nil: PDFs werden nicht archiviert
	Logger  *zap.Logger
	now     func() time.Time
}

func NewAmendmentProcessor(cfg *config.Config, store AmendmentStore, pages AmendmentSource, archive PDFArchive, logger *zap.Logger) *AmendmentProcessor {
	return &AmendmentProcessor{Config: cfg, Store: store, Pages: pages, Archive: archive, Logger: logger, now: time.Now}
}

// ProcessPending verarbeitet PENDING und wiederholbare FAILED-Einträge.
// Fehler einzelner Dokumente brechen den Lauf nicht ab.
func (p *AmendmentProcessor) ProcessPending(ctx context.Context, limit int) (*ProcessSummary, error) {
	if limit <= 0 {
		limit = p.Config.AmendmentBatchSize
	}
	queue, err := p.Store.PendingAmendments(ctx, limit, p.Config.MaxParseAttempts)
	if err != nil {
		return nil, fmt.Errorf("warteschlange laden: %w", err)
	}
	p.Logger.Info("Verarbeite Änderungsförfattningar", zap.Int("count", len(queue)))

	sum := &ProcessSummary{}
	for _, a := range queue {
		if ctx.Err() != nil {
			return sum, ctx.Err()
		}
		sum.Processed++
		if err := p.Process(ctx, a); err != nil {
			sum.Failed++
			sum.Errors = append(sum.Errors, fmt.Sprintf("%s: %v", a.SfsNumber, err))
			continue
		}
		sum.Completed++
	}
	p.Logger.Info("Verarbeitung abgeschlossen",
		zap.Int("completed", sum.Completed),
		zap.Int("failed", sum.Failed))
	return sum, nil
}

// Retry setzt einen Eintrag zurück und verarbeitet ihn sofort.
func (p *AmendmentProcessor) Retry(ctx context.Context, sfsNumber string) (*models.AmendmentDocument, error) {
	a, err := p.Store.GetAmendment(ctx, NormalizeSfsNumber(sfsNumber))
	if err != nil {
		return nil, err
	}
	a.ParseStatus = models.ParsePending
	a.ParseAttempts = 0
	a.ParseError = ""
	err = p.Process(ctx, a)
	return a, err
}

// Process durchläuft PENDING → PROCESSING → COMPLETED|FAILED für einen Eintrag.
func (p *AmendmentProcessor) Process(ctx context.Context, a *models.AmendmentDocument) error {
	log := p.Logger.With(zap.String("sfs", a.SfsNumber))

	a.ParseStatus = models.ParseProcessing
	if err := p.Store.SaveAmendment(ctx, a); err != nil {
		return fmt.Errorf("status speichern: %w", err)
	}

	text, err := p.sourceText(ctx, a, log)
	if err != nil {
		return p.fail(ctx, a, err, log)
	}

	opts := textproc.DefaultCleanOptions()
	opts.Hyphen = p.Config.HyphenRules()
	cleaned, stats := textproc.CleanSourceText(text, opts)
	log.Debug("Text bereinigt", zap.Int("words", stats.NumWords), zap.Int("hyphen_fixes", stats.HyphenFixes))
	if cleaned == "" {
		return p.fail(ctx, a, ErrEmptyText, log)
	}

	var changes []models.SectionChange
	switch a.DocumentType {
	case models.DocumentNewLaw:
		// Grundförfattningar haben keine Paragrafenänderungen
	case models.DocumentRepeal:
		changes, err = ExtractSectionChanges(cleaned)
		if errors.Is(err, ErrNoSectionMarkers) {
			changes, err = nil, nil
		}
	default:
		changes, err = ExtractSectionChanges(cleaned)
	}
	if err != nil {
		return p.fail(ctx, a, err, log)
	}

	if tp := ParseTransitionalProvisions(cleaned); tp.EffectiveDate != nil {
		a.EffectiveDate = tp.EffectiveDate
	}

	md, err := amendmentMarkdown(a, changes, cleaned)
	if err != nil {
		return p.fail(ctx, a, fmt.Errorf("markdown: %w", err), log)
	}
	a.FullText = &cleaned
	a.MarkdownContent = md
	a.ParseStatus = models.ParseCompleted
	a.ParseError = ""
	a.ParsedAt = timePtr(p.now())

	if err := p.Store.CompleteAmendment(ctx, a, changes); err != nil {
		return p.fail(ctx, a, fmt.Errorf("änderungen speichern: %w", err), log)
	}
	log.Info("Författning verarbeitet", zap.Int("changes", len(changes)))
	return nil
}

// sourceText liefert den gespeicherten Volltext oder lädt die Dokumentseite.
// Das PDF wird archiviert, wenn noch kein storagePath existiert.
func (p *AmendmentProcessor) sourceText(ctx context.Context, a *models.AmendmentDocument, log *zap.Logger) (string, error) {
	var page *sfs.DocumentPage
	if a.FullText == nil || strings.TrimSpace(*a.FullText) == "" {
		var err error
		page, err = p.Pages.FetchDocument(ctx, a.SfsNumber)
		if err != nil {
			return "", err
		}
		if page == nil || strings.TrimSpace(page.Text) == "" {
			return "", fmt.Errorf("kein dokumenttext für %s", a.SfsNumber)
		}
		a.FullText = &page.Text
		if a.PDFURL == "" {
			a.PDFURL = page.PDFURL
		}
	}

	if p.Archive != nil && a.StoragePath == "" && a.PDFURL != "" {
		pdf, err := p.Pages.FetchPDF(ctx, a.PDFURL)
		if err == nil {
			a.StoragePath, err = p.Archive.StoreSourcePDF(ctx, a.SfsNumber, pdf)
		}
		if err != nil {
			log.Warn("PDF nicht archiviert", zap.String("url", a.PDFURL), zap.Error(err))
		}
	}
	return *a.FullText, nil
}

func (p *AmendmentProcessor) fail(ctx context.Context, a *models.AmendmentDocument, cause error, log *zap.Logger) error {
	a.ParseStatus = models.ParseFailed
	a.ParseError = cause.Error()
	a.ParseAttempts++
	log.Error("Verarbeitung fehlgeschlagen", zap.Int("attempt", a.ParseAttempts), zap.Error(cause))
	if err := p.Store.SaveAmendment(ctx, a); err != nil {
		log.Error("Fehlerstatus nicht gespeichert", zap.Error(err))
	}
	return cause
}

// amendmentMarkdown rendert die Änderungen über das kanonische HTML nach Markdown.
// Ohne Änderungen wird der bereinigte Text absatzweise übernommen.
func amendmentMarkdown(a *models.AmendmentDocument, changes []models.SectionChange, text string) (string, error) {
	b := canonical.NewBuilder(NormalizeSfsNumber(a.SfsNumber), a.Title, canonical.SFSAmendment)
	if a.EffectiveDate != nil {
		b.SetEffectiveDate(a.EffectiveDate.Format("2006-01-02"))
	}
	if len(changes) == 0 {
		for _, para := range strings.Split(text, "\n\n") {
			b.Paragraph(para)
		}
	}
	for _, c := range changes {
		chapter := ""
		if c.Chapter != nil {
			chapter = *c.Chapter
		}
		if chapter != b.Chapter() {
			if chapter == "" {
				b.CloseChapter()
			} else {
				b.ChapterHeading(chapter, "")
			}
		}
		blk := b.Section(c.Section, c.NewText)
		if c.ChangeType == models.SectionRepeal {
			blk.Repealed = true
		}
	}
	return markdown.HTMLToMarkdown(canonical.RenderHTML(b.Build()))
}
