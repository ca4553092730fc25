package models

import "time"

// JobCrawlSFS ist der Jobtyp des SFS-Jahresindex.
const JobCrawlSFS = "sfs_index"

// CrawlWatermark ist der persistierte Cursor eines Crawl-Jobs. Jedes Paar
// (JobType, Year) hat genau eine Zeile.
type CrawlWatermark struct {
	ID        uint      `json:"id" gorm:"primaryKey"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	JobType        string `json:"job_type" gorm:"not null;uniqueIndex:idx_watermark_job_year"`
	Year           int    `json:"year" gorm:"not null;uniqueIndex:idx_watermark_job_year"`
	LastPage       int    `json:"last_page"`
	LastPageFull   bool   `json:"last_page_full"`
	LastSystemDate string `json:"last_system_date,omitempty"`
	LastSfsNumber  string `json:"last_sfs_number,omitempty"`
	LastRunID      string `json:"last_run_id,omitempty"`
	Total          int    `json:"total"`
}

// TableName gibt explizit den Tabellennamen an.
func (CrawlWatermark) TableName() string {
	return "crawl_watermarks"
}

// DocumentChunk ist ein gespeicherter Chunk eines Dokuments.
type DocumentChunk struct {
	ID         uint      `json:"id" gorm:"primaryKey"`
	CreatedAt  time.Time `json:"created_at"`
	DocumentID uint      `json:"document_id" gorm:"not null;uniqueIndex:idx_chunk_doc_index"`
	ChunkSetID string    `json:"chunk_set_id" gorm:"index"`
	ChunkIndex int       `json:"chunk_index" gorm:"not null;uniqueIndex:idx_chunk_doc_index"`
	Text       string    `json:"text" gorm:"type:text"`
	Header     string    `json:"header"`
	BlockIDs   string    `json:"block_ids" gorm:"type:text"` // kommagetrennt
	TokenCount int       `json:"token_count"`
	Oversized  bool      `json:"oversized"`
}

// TableName gibt explizit den Tabellennamen an.
func (DocumentChunk) TableName() string {
	return "document_chunks"
}
