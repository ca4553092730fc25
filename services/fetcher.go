package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"lagflode/config"
	"lagflode/models"
	"lagflode/providers"
	"lagflode/providers/sfs"
)

// CrawlState sind die Zustände eines Crawl-Laufs.
type CrawlState string

const (
	StateInit          CrawlState = "INIT"
	StateListingPage   CrawlState = "LISTING_PAGE"
	StateDocumentFetch CrawlState = "DOCUMENT_FETCH"
	StateClassify      CrawlState = "CLASSIFY"
	StatePersist       CrawlState = "PERSIST"
	StateSkip          CrawlState = "SKIP"
	StateDone          CrawlState = "DONE"
)

// DocumentSource liefert Dokumentseiten; (nil, nil) bei Lücken in der Nummerierung.
type DocumentSource interface {
	FetchDocument(ctx context.Context, sfsNumber string) (*sfs.DocumentPage, error)
}

// CrawlOptions steuern einen Lauf über den Jahresindex.
type CrawlOptions struct {
	Year      int
	Watermark models.CrawlWatermark
	Delay     time.Duration // Mindestabstand zwischen zwei Requests
	Force     bool          // bekannte Nummern erneut verarbeiten
	MaxPages  int           // 0 = unbegrenzt
}

// DiscoveredDocument beschreibt ein im Index gefundenes Dokument.
type DiscoveredDocument struct {
	SfsNumber  string              `json:"sfs_number"`
	Title      string              `json:"title"`
	Type       models.DocumentType `json:"type"`
	BaseLawSfs string              `json:"base_law_sfs,omitempty"`
	Published  time.Time           `json:"published"`
	PDFURL     string              `json:"pdf_url,omitempty"`
	State      CrawlState          `json:"state"` // PERSIST oder SKIP
}

// DocumentFailure ist ein Dokument, dessen Seite nicht geladen werden konnte.
type DocumentFailure struct {
	SfsNumber string `json:"sfs_number"`
	Error     string `json:"error"`
}

// CrawlResult ist das Ergebnis eines Laufs. Watermark ist immer der zuletzt
// festgeschriebene Cursor, auch wenn der Lauf mit Fehler endet.
type CrawlResult struct {
	RunID      string                      `json:"run_id"`
	Year       int                         `json:"year"`
	State      CrawlState                  `json:"state"`
	Pages      int                         `json:"pages"`
	Documents  []DiscoveredDocument        `json:"documents"`
	Persisted  int                         `json:"persisted"`
	Skipped    int                         `json:"skipped"`
	ByType     map[models.DocumentType]int `json:"by_type"`
	Failures   []DocumentFailure           `json:"failures,omitempty"`
	Watermark  models.CrawlWatermark       `json:"watermark"`
	StartedAt  time.Time                   `json:"started_at"`
	FinishedAt time.Time                   `json:"finished_at"`
}

// Crawler entdeckt neue SFS-Författningar über den Jahresindex.
type Crawler struct {
	Config *config.Config
	Store  CrawlStore
	Index  providers.IndexProvider
	Pages  DocumentSource
	Logger *zap.Logger

	now func() time.Time
}

// NewCrawler erstellt eine neue Instanz des Crawlers. pages darf nil sein; dann
// werden nur die Angaben aus dem Index gespeichert.
func NewCrawler(cfg *config.Config, store CrawlStore, index providers.IndexProvider, pages DocumentSource, logger *zap.Logger) *Crawler {
	return &Crawler{Config: cfg, Store: store, Index: index, Pages: pages, Logger: logger, now: time.Now}
}

// CrawlCurrentYear lädt den Cursor des laufenden Jahres und setzt den Lauf dort fort.
func (c *Crawler) CrawlCurrentYear(ctx context.Context, force bool) (*CrawlResult, error) {
	return c.CrawlYear(ctx, c.now().Year(), force)
}

// CrawlYear setzt den Lauf für ein Jahr am gespeicherten Cursor fort.
func (c *Crawler) CrawlYear(ctx context.Context, year int, force bool) (*CrawlResult, error) {
	wm, err := c.Store.LoadWatermark(ctx, models.JobCrawlSFS, year)
	if err != nil {
		return nil, fmt.Errorf("watermark laden: %w", err)
	}
	return c.CrawlYearIndex(ctx, CrawlOptions{
		Year:      year,
		Watermark: wm,
		Delay:     c.Config.CrawlDelay(),
		Force:     force,
		MaxPages:  c.Config.DebugMaxRecords,
	})
}

// startPage: nach einer vollen Seite geht es mit der nächsten weiter, eine
// unvollständige letzte Seite wird erneut gelesen.
func startPage(wm models.CrawlWatermark) int {
	switch {
	case wm.LastPage < 1:
		return 1
	case wm.LastPageFull:
		return wm.LastPage + 1
	}
	return wm.LastPage
}

// CrawlYearIndex läuft Seite für Seite durch den Index eines Jahres. Jede Seite
// wird zusammen mit dem neuen Cursor atomar gespeichert. Schlägt das Laden einer
// Indexseite fehl, endet der Lauf mit dem letzten gespeicherten Cursor und dem
// *providers.FetchError; der nächste Lauf setzt dort wieder an.
func (c *Crawler) CrawlYearIndex(ctx context.Context, opts CrawlOptions) (*CrawlResult, error) {
	runID := uuid.NewString()
	wm := opts.Watermark
	wm.JobType = models.JobCrawlSFS
	wm.Year = opts.Year

	res := &CrawlResult{
		RunID:     runID,
		Year:      opts.Year,
		State:     StateInit,
		ByType:    map[models.DocumentType]int{},
		Watermark: wm,
		StartedAt: c.now(),
	}
	log := c.Logger.With(zap.String("run_id", runID), zap.Int("year", opts.Year))
	log.Info("Starte Crawl des Jahresindex",
		zap.Int("last_page", wm.LastPage), zap.Bool("force", opts.Force))

	limit := rate.Inf
	if opts.Delay > 0 {
		limit = rate.Every(opts.Delay)
	}
	limiter := rate.NewLimiter(limit, 1)

	finish := func(err error) (*CrawlResult, error) {
		res.FinishedAt = c.now()
		return res, err
	}

	for page := startPage(wm); ; page++ {
		if err := ctx.Err(); err != nil {
			log.Warn("Crawl zwischen zwei Seiten abgebrochen", zap.Int("page", page))
			return finish(err)
		}
		if opts.MaxPages > 0 && res.Pages >= opts.MaxPages {
			log.Info("Seitenlimit erreicht", zap.Int("max_pages", opts.MaxPages))
			break
		}

		res.State = StateListingPage
		if err := limiter.Wait(ctx); err != nil {
			return finish(err)
		}
		listing, err := c.Index.ListPage(ctx, opts.Year, page)
		if err != nil {
			log.Error("Indexseite konnte nicht geladen werden, Lauf endet am letzten Cursor",
				zap.Int("page", page), zap.Error(err))
			var fe *providers.FetchError
			if !errors.As(err, &fe) {
				err = &providers.FetchError{URL: c.Index.Name(), Err: err}
			}
			return finish(err)
		}

		docs, err := c.processListing(ctx, listing, opts, limiter, res, log)
		if err != nil {
			return finish(err)
		}

		next := nextWatermark(res.Watermark, listing, runID)
		res.State = StatePersist
		if err := c.Store.PersistPage(ctx, docs, next); err != nil {
			log.Error("Seite konnte nicht gespeichert werden", zap.Int("page", page), zap.Error(err))
			return finish(fmt.Errorf("seite %d speichern: %w", page, err))
		}
		res.Watermark = next
		res.Persisted += len(docs)
		res.Pages++
		log.Info("Indexseite verarbeitet",
			zap.Int("page", page),
			zap.Int("persisted", len(docs)),
			zap.Int("pages", listing.Pages))

		if listing.Last() {
			break
		}
	}

	res.State = StateDone
	log.Info("Crawl abgeschlossen",
		zap.Int("pages", res.Pages),
		zap.Int("persisted", res.Persisted),
		zap.Int("skipped", res.Skipped),
		zap.Int("failures", len(res.Failures)))
	return finish(nil)
}

// processListing klassifiziert die neuen Dokumente einer Seite. Ein
// fehlgeschlagener Seitenabruf wird vermerkt, das Dokument aber aus den
// Indexangaben gespeichert.
func (c *Crawler) processListing(ctx context.Context, listing *providers.IndexPage, opts CrawlOptions, limiter *rate.Limiter, res *CrawlResult, log *zap.Logger) ([]*models.AmendmentDocument, error) {
	numbers := make([]string, 0, len(listing.Documents))
	for _, d := range listing.Documents {
		numbers = append(numbers, NormalizeSfsNumber(d.Designation))
	}
	existing := map[string]bool{}
	if !opts.Force {
		var err error
		if existing, err = c.Store.ExistingSfsNumbers(ctx, numbers); err != nil {
			return nil, fmt.Errorf("bekannte nummern laden: %w", err)
		}
	}

	var docs []*models.AmendmentDocument
	seen := map[string]bool{}
	for i, entry := range listing.Documents {
		sfsNumber := numbers[i]
		if existing[sfsNumber] || seen[sfsNumber] {
			res.Skipped++
			res.Documents = append(res.Documents, DiscoveredDocument{SfsNumber: sfsNumber, Title: entry.Title, State: StateSkip})
			continue
		}
		seen[sfsNumber] = true

		var page *sfs.DocumentPage
		if c.Pages != nil {
			res.State = StateDocumentFetch
			if err := limiter.Wait(ctx); err != nil {
				return nil, err
			}
			p, err := c.Pages.FetchDocument(ctx, sfsNumber)
			if err != nil {
				log.Warn("Dokumentseite nicht geladen, verwende Indexangaben",
					zap.String("sfs", sfsNumber), zap.Error(err))
				res.Failures = append(res.Failures, DocumentFailure{SfsNumber: sfsNumber, Error: err.Error()})
			}
			page = p
		}

		res.State = StateClassify
		doc := buildAmendment(sfsNumber, entry, page, log)
		docs = append(docs, doc)
		res.ByType[doc.DocumentType]++

		d := DiscoveredDocument{
			SfsNumber: sfsNumber,
			Title:     doc.Title,
			Type:      doc.DocumentType,
			PDFURL:    doc.PDFURL,
			State:     StatePersist,
		}
		if doc.BaseLawSfs != nil {
			d.BaseLawSfs = *doc.BaseLawSfs
		}
		if doc.PublishedAt != nil {
			d.Published = *doc.PublishedAt
		}
		res.Documents = append(res.Documents, d)
	}
	return docs, nil
}

func buildAmendment(sfsNumber string, entry providers.IndexDocument, page *sfs.DocumentPage, log *zap.Logger) *models.AmendmentDocument {
	title := entry.Title
	doc := &models.AmendmentDocument{
		SfsNumber:   sfsNumber,
		SourceURL:   entry.HTMLURL,
		ParseStatus: models.ParsePending,
	}
	if !entry.Published.IsZero() {
		doc.PublishedAt = timePtr(entry.Published)
	}
	if page != nil {
		if page.Title != "" {
			title = page.Title
		}
		doc.SourceURL = page.HTMLURL
		doc.PDFURL = page.PDFURL
		if doc.PublishedAt == nil && !page.Published.IsZero() {
			doc.PublishedAt = timePtr(page.Published)
		}
		if page.Text != "" {
			text := page.Text
			doc.FullText = &text
		}
	}
	doc.Title = title

	cls := ClassifyDocument(title)
	doc.DocumentType = cls.Type
	doc.Confidence = cls.Confidence
	if cls.BaseLawSfs != "" {
		base := NormalizeSfsNumber(cls.BaseLawSfs)
		doc.BaseLawSfs = &base
	}
	if cls.NeedsReview() {
		doc.NeedsReview = true
		flags, err := json.Marshal([]string{cls.Ambiguous.Error()})
		if err != nil {
			log.Warn("Review-Flags nicht serialisierbar", zap.String("sfs", sfsNumber), zap.Error(err))
		} else {
			doc.ReviewFlags = flags
		}
	}
	return doc
}

// nextWatermark rückt den Cursor auf die gerade gelesene Seite vor.
func nextWatermark(prev models.CrawlWatermark, listing *providers.IndexPage, runID string) models.CrawlWatermark {
	next := prev
	next.LastPage = listing.Page
	next.LastPageFull = listing.Full()
	next.LastRunID = runID
	next.Total = listing.Total
	for _, d := range listing.Documents {
		if d.SystemDate > next.LastSystemDate {
			next.LastSystemDate = d.SystemDate
		}
		n, err := ExtractSfsNumericPart(d.Designation)
		if err != nil {
			continue
		}
		if last, err := ExtractSfsNumericPart(next.LastSfsNumber); err != nil || last.Less(n) {
			next.LastSfsNumber = n.String()
		}
	}
	return next
}

// timePtr gibt einen Pointer auf eine time.Time zurück.
func timePtr(t time.Time) *time.Time {
	return &t
}
