package canonical

import (
	"fmt"
	"strings"
)

// ValidationResult ist das Ergebnis von Validate.
type ValidationResult struct {
	Valid  bool        `json:"valid"`
	Errors []Violation `json:"errors"`
}

// Validate prüft alle Invarianten in einem Durchlauf und verändert das Dokument nicht.
func Validate(doc *Document) ValidationResult {
	var errs []Violation
	add := func(code ViolationCode, id, format string, args ...any) {
		errs = append(errs, Violation{Code: code, BlockID: id, Message: fmt.Sprintf(format, args...)})
	}

	if doc == nil {
		add(ViolationMissingMetadata, "", "document is nil")
		return ValidationResult{Valid: false, Errors: errs}
	}

	if doc.SchemaVersion != SchemaVersion {
		add(ViolationSchemaVersion, "", "unsupported schema version %q", doc.SchemaVersion)
	}
	if strings.TrimSpace(doc.DocumentNumber) == "" {
		add(ViolationMissingMetadata, "", "documentNumber is empty")
	}
	if strings.TrimSpace(doc.Title) == "" {
		add(ViolationMissingMetadata, "", "title is empty")
	}
	if doc.ContentType != "" && !doc.ContentType.Valid() {
		add(ViolationMissingMetadata, "", "unknown contentType %q", doc.ContentType)
	}

	seen := make(map[string]int, len(doc.Blocks))
	footnotes := map[string]bool{}
	for _, b := range doc.Blocks {
		if b.Kind == KindFootnote && b.ID != "" {
			footnotes[b.ID] = true
		}
	}

	lastChapter := ""
	for i, b := range doc.Blocks {
		if b.ID == "" {
			add(ViolationInvalidBlock, "", "block %d (%s) has no id", i, b.Kind)
		} else if first, dup := seen[b.ID]; dup {
			add(ViolationDuplicateID, b.ID, "id used by blocks %d and %d", first, i)
		} else {
			seen[b.ID] = i
		}

		switch b.Kind {
		case KindHeading:
			if b.Level < 1 || b.Level > 6 {
				add(ViolationInvalidBlock, b.ID, "heading level %d out of range", b.Level)
			}
			if strings.TrimSpace(b.Text) == "" {
				add(ViolationInvalidBlock, b.ID, "heading without text")
			}
		case KindSection:
			if b.Number == "" {
				add(ViolationInvalidBlock, b.ID, "section without number")
			}
			if b.Chapter != "" {
				if lastChapter != "" && CompareChapter(b.Chapter, lastChapter) < 0 {
					add(ViolationChapterOrder, b.ID, "chapter %s follows chapter %s", b.Chapter, lastChapter)
				}
				lastChapter = b.Chapter
			}
			if strings.TrimSpace(b.Text) == "" && !b.Repealed {
				add(ViolationEmptySection, b.ID, "section %s has no text and is not repealed", SectionLabel(b.Number))
			}
		case KindParagraph, KindFootnote:
			if strings.TrimSpace(b.Text) == "" {
				add(ViolationInvalidBlock, b.ID, "%s without text", strings.ToLower(string(b.Kind)))
			}
		case KindTable:
			if len(b.Rows) == 0 {
				add(ViolationInvalidBlock, b.ID, "table without rows")
			}
		default:
			add(ViolationInvalidBlock, b.ID, "unknown block kind %q", b.Kind)
		}

		for _, ref := range b.FootnoteRefs {
			if !footnotes[ref] {
				add(ViolationUnresolvedFootnote, b.ID, "footnote reference %q does not resolve", ref)
			}
		}
	}

	return ValidationResult{Valid: len(errs) == 0, Errors: errs}
}

// ValidateOrError liefert einen *ValidationError, wenn das Dokument ungültig ist.
func ValidateOrError(doc *Document) error {
	res := Validate(doc)
	if res.Valid {
		return nil
	}
	num := ""
	if doc != nil {
		num = doc.DocumentNumber
	}
	return &ValidationError{DocumentNumber: num, Violations: res.Errors}
}
