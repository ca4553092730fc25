package canonical

import (
	"fmt"
	"strings"
)

// MalformedSourceError: dem Quell-HTML fehlen zwingende Strukturanker (Titel, Container).
// Der Fehler ist dauerhaft, bis sich die Quelle ändert; ein Retry ohne neue Quelle ist zwecklos.
type MalformedSourceError struct {
	Source string
	Reason string
}

func (e *MalformedSourceError) Error() string {
	if e.Source == "" {
		return "malformed source: " + e.Reason
	}
	return fmt.Sprintf("malformed source %s: %s", e.Source, e.Reason)
}

// ViolationCode benennt die Art einer Invariantenverletzung.
type ViolationCode string

const (
	ViolationDuplicateID        ViolationCode = "DUPLICATE_ID"
	ViolationChapterOrder       ViolationCode = "CHAPTER_ORDER"
	ViolationEmptySection       ViolationCode = "EMPTY_SECTION"
	ViolationUnresolvedFootnote ViolationCode = "UNRESOLVED_FOOTNOTE"
	ViolationMissingMetadata    ViolationCode = "MISSING_METADATA"
	ViolationSchemaVersion      ViolationCode = "SCHEMA_VERSION"
	ViolationInvalidBlock       ViolationCode = "INVALID_BLOCK"
)

// Violation ist ein einzelner Befund der Validierung.
type Violation struct {
	Code    ViolationCode `json:"code"`
	BlockID string        `json:"blockId,omitempty"`
	Message string        `json:"message"`
}

func (v Violation) String() string {
	if v.BlockID == "" {
		return fmt.Sprintf("%s: %s", v.Code, v.Message)
	}
	return fmt.Sprintf("%s [%s]: %s", v.Code, v.BlockID, v.Message)
}

// ValidationError trägt die vollständige Liste der Verletzungen und blockiert die Persistierung.
type ValidationError struct {
	DocumentNumber string
	Violations     []Violation
}

func (e *ValidationError) Error() string {
	msgs := make([]string, 0, len(e.Violations))
	for _, v := range e.Violations {
		msgs = append(msgs, v.String())
	}
	return fmt.Sprintf("canonical document %q invalid (%d violations): %s",
		e.DocumentNumber, len(e.Violations), strings.Join(msgs, "; "))
}

// Has prüft, ob eine Verletzung mit dem Code enthalten ist.
func (e *ValidationError) Has(code ViolationCode) bool {
	for _, v := range e.Violations {
		if v.Code == code {
			return true
		}
	}
	return false
}
