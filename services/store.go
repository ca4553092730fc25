package services

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"lagflode/canonical"
	"lagflode/models"
)

// ErrNotFound wird von allen Stores für fehlende Datensätze geliefert.
var ErrNotFound = gorm.ErrRecordNotFound

// CrawlStore ist die Persistenz des Crawlers.
type CrawlStore interface {
	// LoadWatermark liefert den gespeicherten Cursor oder einen leeren für (jobType, year).
	LoadWatermark(ctx context.Context, jobType string, year int) (models.CrawlWatermark, error)
	// ExistingSfsNumbers liefert die bereits bekannten Nummern aus sfsNumbers.
	ExistingSfsNumbers(ctx context.Context, sfsNumbers []string) (map[string]bool, error)
	// PersistPage schreibt die Dokumente einer Seite und den neuen Cursor in einer Transaktion.
	PersistPage(ctx context.Context, docs []*models.AmendmentDocument, wm models.CrawlWatermark) error
	ListWatermarks(ctx context.Context) ([]models.CrawlWatermark, error)
}

// AmendmentStore ist die Persistenz der Änderungsverarbeitung.
type AmendmentStore interface {
	GetAmendment(ctx context.Context, sfsNumber string) (*models.AmendmentDocument, error)
	ListAmendments(ctx context.Context, status models.ParseStatus, limit int) ([]models.AmendmentDocument, error)
	// PendingAmendments liefert PENDING und FAILED unter maxAttempts, älteste zuerst.
	PendingAmendments(ctx context.Context, limit, maxAttempts int) ([]*models.AmendmentDocument, error)
	SaveAmendment(ctx context.Context, a *models.AmendmentDocument) error
	// CompleteAmendment ersetzt die SectionChanges und speichert den Status in einer Transaktion.
	CompleteAmendment(ctx context.Context, a *models.AmendmentDocument, changes []models.SectionChange) error
	// SectionHistory liefert die Änderungen verarbeiteter Författningar an baseLawSfs,
	// nach Ikraftträdande aufsteigend (ohne Datum zuletzt). Leeres section: alle Paragrafen.
	SectionHistory(ctx context.Context, baseLawSfs, chapter, section string) ([]models.SectionHistoryEntry, error)
}

// DocumentStore ist die Persistenz der kanonischen Dokumente.
type DocumentStore interface {
	GetDocument(ctx context.Context, documentNumber string) (*models.LegalDocument, error)
	ListDocuments(ctx context.Context, includeStubs bool, limit int) ([]models.LegalDocument, error)
	// UpsertDocument speichert per documentNumber und setzt doc.ID.
	UpsertDocument(ctx context.Context, doc *models.LegalDocument) error
	SaveChangeEvent(ctx context.Context, ev *models.ChangeEvent) error
	ListChangeEvents(ctx context.Context, limit int) ([]models.ChangeEvent, error)
	ReplaceChunks(ctx context.Context, documentID uint, chunks []models.DocumentChunk) error
}

// GormStore implementiert alle Stores auf PostgreSQL.
type GormStore struct {
	DB *gorm.DB
}

func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{DB: db}
}

// AutoMigrate legt alle Tabellen an.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&models.LegalDocument{},
		&models.AmendmentDocument{},
		&models.SectionChange{},
		&models.ChangeEvent{},
		&models.CrawlWatermark{},
		&models.DocumentChunk{},
	)
}

func (s *GormStore) LoadWatermark(ctx context.Context, jobType string, year int) (models.CrawlWatermark, error) {
	var wm models.CrawlWatermark
	err := s.DB.WithContext(ctx).Where("job_type = ? AND year = ?", jobType, year).First(&wm).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return models.CrawlWatermark{JobType: jobType, Year: year}, nil
	}
	return wm, err
}

func (s *GormStore) ListWatermarks(ctx context.Context) ([]models.CrawlWatermark, error) {
	var wms []models.CrawlWatermark
	err := s.DB.WithContext(ctx).Order("job_type, year desc").Find(&wms).Error
	return wms, err
}

func (s *GormStore) ExistingSfsNumbers(ctx context.Context, sfsNumbers []string) (map[string]bool, error) {
	found := make(map[string]bool, len(sfsNumbers))
	if len(sfsNumbers) == 0 {
		return found, nil
	}
	var existing []string
	if err := s.DB.WithContext(ctx).Model(&models.AmendmentDocument{}).
		Where("sfs_number IN ?", sfsNumbers).
		Pluck("sfs_number", &existing).Error; err != nil {
		return nil, err
	}
	for _, n := range existing {
		found[n] = true
	}
	return found, nil
}

// Spalten, die ein erneuter Crawl (Force) überschreibt.
var crawlUpdateColumns = []string{
	"title", "document_type", "base_law_sfs", "confidence", "needs_review", "review_flags",
	"published_at", "source_url", "pdf_url", "full_text", "parse_status", "updated_at",
}

func (s *GormStore) PersistPage(ctx context.Context, docs []*models.AmendmentDocument, wm models.CrawlWatermark) error {
	return s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if len(docs) > 0 {
			if err := tx.Clauses(clause.OnConflict{
				Columns:   []clause.Column{{Name: "sfs_number"}},
				DoUpdates: clause.AssignmentColumns(crawlUpdateColumns),
			}).Omit("SectionChanges").Create(&docs).Error; err != nil {
				return err
			}
		}
		return tx.Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "job_type"}, {Name: "year"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"last_page", "last_page_full", "last_system_date", "last_sfs_number", "last_run_id", "total", "updated_at",
			}),
		}).Create(&wm).Error
	})
}

func (s *GormStore) GetAmendment(ctx context.Context, sfsNumber string) (*models.AmendmentDocument, error) {
	var a models.AmendmentDocument
	err := s.DB.WithContext(ctx).
		Preload("SectionChanges", func(db *gorm.DB) *gorm.DB { return db.Order("sort_order") }).
		Where("sfs_number = ?", NormalizeSfsNumber(sfsNumber)).
		First(&a).Error
	if err != nil {
		return nil, err
	}
	return &a, nil
}

func (s *GormStore) ListAmendments(ctx context.Context, status models.ParseStatus, limit int) ([]models.AmendmentDocument, error) {
	q := s.DB.WithContext(ctx).Model(&models.AmendmentDocument{}).Omit("full_text")
	if status != "" {
		q = q.Where("parse_status = ?", status)
	}
	if limit > 0 {
		q = q.Limit(limit)
	}
	var out []models.AmendmentDocument
	err := q.Order("updated_at desc").Find(&out).Error
	return out, err
}

func (s *GormStore) PendingAmendments(ctx context.Context, limit, maxAttempts int) ([]*models.AmendmentDocument, error) {
	q := s.DB.WithContext(ctx).
		Where("parse_status = ?", models.ParsePending)
	if maxAttempts > 0 {
		q = q.Or("parse_status = ? AND parse_attempts < ?", models.ParseFailed, maxAttempts)
	} else {
		q = q.Or("parse_status = ?", models.ParseFailed)
	}
	if limit > 0 {
		q = q.Limit(limit)
	}
	var out []*models.AmendmentDocument
	err := q.Order("published_at asc, id asc").Find(&out).Error
	return out, err
}

func (s *GormStore) SaveAmendment(ctx context.Context, a *models.AmendmentDocument) error {
	return s.DB.WithContext(ctx).Omit("SectionChanges").Save(a).Error
}

func (s *GormStore) CompleteAmendment(ctx context.Context, a *models.AmendmentDocument, changes []models.SectionChange) error {
	return s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("amendment_id = ?", a.ID).Delete(&models.SectionChange{}).Error; err != nil {
			return err
		}
		for i := range changes {
			changes[i].AmendmentID = a.ID
		}
		if len(changes) > 0 {
			if err := tx.Create(&changes).Error; err != nil {
				return err
			}
		}
		a.SectionChanges = changes
		return tx.Omit("SectionChanges").Save(a).Error
	})
}

func (s *GormStore) SectionHistory(ctx context.Context, baseLawSfs, chapter, section string) ([]models.SectionHistoryEntry, error) {
	q := s.DB.WithContext(ctx).Table("section_changes AS sc").
		Select("ad.sfs_number, ad.title, ad.effective_date, sc.chapter, sc.section, sc.change_type, sc.new_text, sc.sort_order").
		Joins("JOIN amendment_documents ad ON ad.id = sc.amendment_id").
		Where("ad.base_law_sfs = ? AND ad.parse_status = ?", NormalizeSfsNumber(baseLawSfs), models.ParseCompleted)
	if section != "" {
		q = q.Where("sc.section = ?", section)
		if chapter == "" {
			q = q.Where("(sc.chapter IS NULL OR sc.chapter = '')")
		} else {
			q = q.Where("sc.chapter = ?", chapter)
		}
	}
	var out []models.SectionHistoryEntry
	err := q.Order("ad.effective_date ASC NULLS LAST, ad.published_at ASC, ad.id ASC, sc.sort_order ASC").
		Scan(&out).Error
	return out, err
}

func (s *GormStore) GetDocument(ctx context.Context, documentNumber string) (*models.LegalDocument, error) {
	var doc models.LegalDocument
	if err := s.DB.WithContext(ctx).Where("document_number = ?", documentNumber).First(&doc).Error; err != nil {
		return nil, err
	}
	return &doc, nil
}

func (s *GormStore) ListDocuments(ctx context.Context, includeStubs bool, limit int) ([]models.LegalDocument, error) {
	q := s.DB.WithContext(ctx).Model(&models.LegalDocument{}).
		Select("id", "created_at", "updated_at", "document_number", "slug", "title", "content_type", "effective_date", "last_change_type", "last_change_at")
	if !includeStubs {
		q = q.Where("NOT (content_type = ? AND full_text IS NULL)", canonical.AgencyRegulation)
	}
	if limit > 0 {
		q = q.Limit(limit)
	}
	var docs []models.LegalDocument
	err := q.Order("document_number").Find(&docs).Error
	return docs, err
}

var documentUpdateColumns = []string{
	"title", "slug", "content_type", "effective_date", "pattern", "source_url", "html_content",
	"full_text", "markdown_content", "json_content", "last_change_type", "last_change_ref", "last_change_at", "updated_at",
}

func (s *GormStore) UpsertDocument(ctx context.Context, doc *models.LegalDocument) error {
	db := s.DB.WithContext(ctx)
	if err := db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "document_number"}},
		DoUpdates: clause.AssignmentColumns(documentUpdateColumns),
	}).Create(doc).Error; err != nil {
		return err
	}
	if doc.ID == 0 {
		// Postgres liefert bei DO UPDATE die ID zurück; zur Sicherheit nachladen
		return db.Model(&models.LegalDocument{}).Where("document_number = ?", doc.DocumentNumber).Pluck("id", &doc.ID).Error
	}
	return nil
}

func (s *GormStore) SaveChangeEvent(ctx context.Context, ev *models.ChangeEvent) error {
	if ev.CreatedAt.IsZero() {
		ev.CreatedAt = time.Now()
	}
	return s.DB.WithContext(ctx).Create(ev).Error
}

func (s *GormStore) ListChangeEvents(ctx context.Context, limit int) ([]models.ChangeEvent, error) {
	q := s.DB.WithContext(ctx).Order("created_at desc")
	if limit > 0 {
		q = q.Limit(limit)
	}
	var evs []models.ChangeEvent
	err := q.Find(&evs).Error
	return evs, err
}

func (s *GormStore) ReplaceChunks(ctx context.Context, documentID uint, chunks []models.DocumentChunk) error {
	return s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("document_id = ?", documentID).Delete(&models.DocumentChunk{}).Error; err != nil {
			return err
		}
		if len(chunks) == 0 {
			return nil
		}
		for i := range chunks {
			chunks[i].DocumentID = documentID
		}
		return tx.CreateInBatches(&chunks, 200).Error
	})
}
