package providers

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"
)

// IndexProvider ist das Interface, das jede Quelle für das SFS-Register implementieren muss.
type IndexProvider interface {
	// ListPage liefert eine Seite des Registers für ein Jahr. Seiten beginnen bei 1.
	ListPage(ctx context.Context, year, page int) (*IndexPage, error)

	// Name gibt den eindeutigen Namen des Providers zurück (z.B. "riksdagen").
	Name() string
}

// IndexDocument ist ein Eintrag der Dokumentliste.
type IndexDocument struct {
	Designation string    // "2024:1"
	Title       string
	Published   time.Time // Nullwert, wenn die Quelle kein Datum liefert
	SystemDate  string
	HTMLURL     string
}

// IndexPage ist eine Seite der Dokumentliste.
type IndexPage struct {
	Total     int
	Pages     int
	Page      int
	PageSize  int
	Documents []IndexDocument
}

// Full meldet, ob die Seite die volle Seitengröße erreicht hat.
func (p *IndexPage) Full() bool {
	return p.PageSize > 0 && len(p.Documents) >= p.PageSize
}

// Last meldet, ob nach dieser Seite keine weitere folgt.
func (p *IndexPage) Last() bool {
	return p.Page >= p.Pages || len(p.Documents) == 0
}

// FetchError beschreibt einen fehlgeschlagenen Abruf bei einer externen Quelle.
type FetchError struct {
	URL        string
	StatusCode int // 0 bei Netzwerk- oder Dekodierfehlern
	Err        error
}

func (e *FetchError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("abruf von %s fehlgeschlagen: status %d", e.URL, e.StatusCode)
	}
	return fmt.Sprintf("abruf von %s fehlgeschlagen: %v", e.URL, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// Recoverable meldet, ob ein späterer Lauf Erfolg haben kann.
func (e *FetchError) Recoverable() bool {
	switch {
	case e.StatusCode == http.StatusTooManyRequests, e.StatusCode >= 500:
		return true
	case e.StatusCode != 0:
		return false
	}
	var netErr net.Error
	if errors.As(e.Err, &netErr) {
		return true
	}
	return errors.Is(e.Err, context.DeadlineExceeded)
}

// IsRecoverable prüft err auf einen wiederholbaren FetchError.
func IsRecoverable(err error) bool {
	var fe *FetchError
	return errors.As(err, &fe) && fe.Recoverable()
}
