package models

import (
	"time"

	"gorm.io/datatypes"

	"lagflode/canonical"
)

// ChangeType ist die Art einer erkannten Änderung an einem Dokument.
type ChangeType string

const (
	ChangeNewLaw    ChangeType = "NEW_LAW"
	ChangeAmendment ChangeType = "AMENDMENT"
	ChangeRepeal    ChangeType = "REPEAL"
	ChangeInsert    ChangeType = "INSERT"
	ChangeReplace   ChangeType = "REPLACE"
)

func (t ChangeType) Valid() bool {
	switch t {
	case ChangeNewLaw, ChangeAmendment, ChangeRepeal, ChangeInsert, ChangeReplace:
		return true
	}
	return false
}

// Priority ist die abgeleitete Dringlichkeit einer Änderung.
type Priority string

const (
	PriorityLow      Priority = "LOW"
	PriorityMedium   Priority = "MEDIUM"
	PriorityHigh     Priority = "HIGH"
	PriorityCritical Priority = "CRITICAL"
)

func (p Priority) Valid() bool {
	switch p {
	case PriorityLow, PriorityMedium, PriorityHigh, PriorityCritical:
		return true
	}
	return false
}

// ChangeEvent verknüpft eine erkannte Änderung mit dem betroffenen Dokument.
type ChangeEvent struct {
	ID        uint      `json:"id" gorm:"primaryKey"`
	CreatedAt time.Time `json:"created_at" gorm:"index"`

	DocumentID      uint                  `json:"document_id" gorm:"index"`
	DocumentNumber  string                `json:"document_number" gorm:"index"`
	ContentType     canonical.ContentType `json:"content_type" gorm:"type:varchar(32)"`
	ChangeType      ChangeType            `json:"change_type" gorm:"type:varchar(16);not null"`
	AmendmentSfs    string                `json:"amendment_sfs,omitempty"`
	DiffSummary     string                `json:"diff_summary,omitempty" gorm:"type:text"`
	DiffStats       string                `json:"diff_stats,omitempty"`
	ChangedSections datatypes.JSON        `json:"changed_sections,omitempty" gorm:"type:jsonb"`
	// Priority wird beim Speichern abgeleitet und nur für Abfragen mitgeschrieben.
	Priority Priority `json:"priority" gorm:"type:varchar(16);index"`
	Notified bool     `json:"notified" gorm:"default:false"`
}

// TableName gibt explizit den Tabellennamen an.
func (ChangeEvent) TableName() string {
	return "change_events"
}
