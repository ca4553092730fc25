package models

import (
	"time"

	"gorm.io/datatypes"

	"lagflode/canonical"
)

// ParseStatus ist der Verarbeitungsstand einer Ändringsförfattning.
type ParseStatus string

const (
	ParsePending    ParseStatus = "PENDING"
	ParseProcessing ParseStatus = "PROCESSING"
	ParseCompleted  ParseStatus = "COMPLETED"
	ParseFailed     ParseStatus = "FAILED"
)

func (s ParseStatus) Valid() bool {
	switch s {
	case ParsePending, ParseProcessing, ParseCompleted, ParseFailed:
		return true
	}
	return false
}

// DocumentType ist die Einordnung eines SFS-Dokuments nach seinem Titel.
type DocumentType string

const (
	DocumentNewLaw    DocumentType = "NEW_LAW"
	DocumentAmendment DocumentType = "AMENDMENT"
	DocumentRepeal    DocumentType = "REPEAL"
)

func (t DocumentType) Valid() bool {
	return t == DocumentNewLaw || t == DocumentAmendment || t == DocumentRepeal
}

// SectionChangeType beschreibt, was eine Ändringsförfattning mit einem Paragrafen macht.
type SectionChangeType string

const (
	SectionInsert  SectionChangeType = "INSERT"
	SectionReplace SectionChangeType = "REPLACE"
	SectionRepeal  SectionChangeType = "REPEAL"
)

func (t SectionChangeType) Valid() bool {
	return t == SectionInsert || t == SectionReplace || t == SectionRepeal
}

// AmendmentDocument ist eine entdeckte SFS-Författning mit ihren Paragrafenänderungen.
type AmendmentDocument struct {
	ID        uint      `json:"id" gorm:"primaryKey"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	SfsNumber    string       `json:"sfs_number" gorm:"uniqueIndex;not null"` // "SFS 2025:732"
	Title        string       `json:"title" gorm:"not null"`
	DocumentType DocumentType `json:"document_type" gorm:"type:varchar(16);index"`
	BaseLawSfs   *string      `json:"base_law_sfs,omitempty" gorm:"index"`
	Confidence   float64      `json:"confidence"`
	NeedsReview  bool         `json:"needs_review" gorm:"index;default:false"`

	PublishedAt   *time.Time `json:"published_at,omitempty"`
	EffectiveDate *time.Time `json:"effective_date,omitempty"`
	SourceURL     string     `json:"source_url,omitempty"`
	PDFURL        string     `json:"pdf_url,omitempty"`
	StoragePath   string     `json:"storage_path,omitempty"`

	FullText        *string `json:"full_text,omitempty" gorm:"type:text"`
	MarkdownContent string  `json:"markdown_content,omitempty" gorm:"type:text"`

	ParseStatus   ParseStatus    `json:"parse_status" gorm:"type:varchar(16);index;default:'PENDING'"`
	ParseError    string         `json:"parse_error,omitempty" gorm:"type:text"`
	ParseAttempts int            `json:"parse_attempts" gorm:"default:0"`
	ParsedAt      *time.Time     `json:"parsed_at,omitempty"`
	ReviewFlags   datatypes.JSON `json:"review_flags,omitempty" gorm:"type:jsonb"`

	SectionChanges []SectionChange `json:"section_changes,omitempty" gorm:"foreignKey:AmendmentID;constraint:OnDelete:CASCADE"`
}

// TableName gibt explizit den Tabellennamen an.
func (AmendmentDocument) TableName() string {
	return "amendment_documents"
}

// Retriable: FAILED mit weniger als maxAttempts Versuchen oder noch PENDING.
func (a *AmendmentDocument) Retriable(maxAttempts int) bool {
	switch a.ParseStatus {
	case ParsePending:
		return true
	case ParseFailed:
		return maxAttempts <= 0 || a.ParseAttempts < maxAttempts
	}
	return false
}

// SectionChange ist die Änderung eines einzelnen Paragrafen.
type SectionChange struct {
	ID          uint              `json:"id" gorm:"primaryKey"`
	CreatedAt   time.Time         `json:"created_at"`
	AmendmentID uint              `json:"amendment_id" gorm:"not null;uniqueIndex:idx_section_change_order"`
	Chapter     *string           `json:"chapter,omitempty"`
	Section     string            `json:"section" gorm:"not null"`
	ChangeType  SectionChangeType `json:"change_type" gorm:"type:varchar(16);not null"`
	NewText     string            `json:"new_text,omitempty" gorm:"type:text"`
	SortOrder   int               `json:"sort_order" gorm:"not null;uniqueIndex:idx_section_change_order"`
}

// TableName gibt explizit den Tabellennamen an.
func (SectionChange) TableName() string {
	return "section_changes"
}

// Label: "3 kap. 2 a §" bzw. "2 a §".
func (c SectionChange) Label() string {
	if c.Chapter != nil && *c.Chapter != "" {
		return canonical.ChapterLabel(*c.Chapter) + " " + canonical.SectionLabel(c.Section)
	}
	return canonical.SectionLabel(c.Section)
}

// SectionHistoryEntry ist eine Paragrafenänderung zusammen mit ihrer Författning.
type SectionHistoryEntry struct {
	SfsNumber     string            `json:"sfs_number"`
	Title         string            `json:"title"`
	EffectiveDate *time.Time        `json:"effective_date,omitempty"`
	Chapter       *string           `json:"chapter,omitempty"`
	Section       string            `json:"section"`
	ChangeType    SectionChangeType `json:"change_type"`
	NewText       string            `json:"new_text,omitempty"`
	SortOrder     int               `json:"sort_order"`
}

// Change liefert die Änderung ohne Angaben zur Författning.
func (e SectionHistoryEntry) Change() SectionChange {
	return SectionChange{Chapter: e.Chapter, Section: e.Section, ChangeType: e.ChangeType, NewText: e.NewText, SortOrder: e.SortOrder}
}
