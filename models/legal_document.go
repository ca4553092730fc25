package models

import (
	"regexp"
	"strings"
	"time"

	"golang.org/x/text/unicode/norm"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"lagflode/canonical"
)

// LegalDocument ist der dauerhafte Speicher für normalisierte Rechtsakte jeder Quellart.
type LegalDocument struct {
	ID        uint      `json:"id" gorm:"primaryKey"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	DocumentNumber string                `json:"document_number" gorm:"uniqueIndex;not null"`
	Slug           string                `json:"slug" gorm:"uniqueIndex"`
	Title          string                `json:"title" gorm:"not null"`
	ContentType    canonical.ContentType `json:"content_type" gorm:"type:varchar(32);index;not null"`
	EffectiveDate  *time.Time            `json:"effective_date,omitempty"`
	Pattern        string                `json:"pattern,omitempty"`
	SourceURL      string                `json:"source_url,omitempty"`

	HTMLContent     string         `json:"html_content,omitempty" gorm:"type:text"`
	FullText        *string        `json:"full_text,omitempty" gorm:"type:text"` // nil: noch kein Text
	MarkdownContent string         `json:"markdown_content,omitempty" gorm:"type:text"`
	JSONContent     datatypes.JSON `json:"json_content,omitempty" gorm:"type:jsonb"`

	// Letzte erkannte Änderung
	LastChangeType ChangeType `json:"last_change_type,omitempty" gorm:"type:varchar(16)"`
	LastChangeRef  string     `json:"last_change_ref,omitempty"`
	LastChangeAt   *time.Time `json:"last_change_at,omitempty"`
}

// TableName gibt explizit den Tabellennamen an.
func (LegalDocument) TableName() string {
	return "legal_documents"
}

// IsStub: Myndighetsföreskrift ohne Text. Stubs erscheinen nicht in öffentlichen
// Listen (gleiche Bedingung wie GormStore.ListDocuments).
func (d *LegalDocument) IsStub() bool {
	return d.ContentType == canonical.AgencyRegulation && d.FullText == nil
}

// BeforeSave füllt den Slug aus Titel und Nummer.
func (d *LegalDocument) BeforeSave(tx *gorm.DB) error {
	if d.Slug == "" {
		d.Slug = Slugify(d.Title, d.DocumentNumber)
	}
	return nil
}

var (
	slugSepRE  = regexp.MustCompile(`[^a-z0-9]+`)
	slugFolder = strings.NewReplacer("å", "a", "ä", "a", "ö", "o", "é", "e", "ü", "u")
)

// Slugify: ("Arbetsmiljölag", "SFS 1977:1160") -> "arbetsmiljolag-1977-1160".
func Slugify(title, documentNumber string) string {
	s := strings.ToLower(norm.NFC.String(title))
	s = slugFolder.Replace(s)
	s = strings.Trim(slugSepRE.ReplaceAllString(s, "-"), "-")
	if len(s) > 80 {
		s = strings.TrimRight(s[:80], "-")
	}
	num := strings.ToLower(strings.TrimPrefix(strings.TrimSpace(documentNumber), "SFS "))
	num = strings.Trim(slugSepRE.ReplaceAllString(slugFolder.Replace(num), "-"), "-")
	if num != "" && !strings.HasSuffix(s, num) {
		if s == "" {
			return num
		}
		s += "-" + num
	}
	return s
}
