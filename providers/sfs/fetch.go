// Package sfs holt Dokumentseiten und PDFs von svenskforfattningssamling.se.
package sfs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"lagflode/config"
	"lagflode/providers"
	"lagflode/textproc"
)

var (
	httpClient = &http.Client{Timeout: 60 * time.Second}
	pdfPathRE  = regexp.MustCompile(`/sfs/(\d{4}-\d{2})/`)
	sfsNumRE   = regexp.MustCompile(`^(?:SFS\s*)?(\d{4}):(\d+)$`)
)

const (
	userAgent   = "lagflode/1.0 (+https://github.com/lagflode)"
	maxPDFBytes = 50 << 20
)

// ErrBodyTooLarge: die Antwort überschreitet die maximale Größe.
var ErrBodyTooLarge = errors.New("antwort zu groß")

// DocumentPage sind die Angaben einer Dokumentseite.
type DocumentPage struct {
	SfsNumber string // "2024:1"
	Title     string
	HTMLURL   string
	PDFURL    string
	Published time.Time // Monat aus dem PDF-Pfad, sonst 1. Januar des Jahres
	BodyHTML  string
	Text      string
}

// Fetcher kapselt den Zugriff auf svenskforfattningssamling.se.
type Fetcher struct {
	Config *config.Config
	Logger *zap.Logger
	client *http.Client
	limit  int64
}

// NewFetcher erstellt eine neue Instanz des SFS-Fetchers.
func NewFetcher(cfg *config.Config, logger *zap.Logger) *Fetcher {
	client := httpClient
	if cfg.HTTPTimeoutSeconds > 0 {
		client = &http.Client{Timeout: cfg.HTTPTimeout()}
	}
	return &Fetcher{Config: cfg, Logger: logger, client: client, limit: maxPDFBytes}
}

// Name gibt den Namen des Providers zurück.
func (f *Fetcher) Name() string {
	return "sfs"
}

func (f *Fetcher) baseURL() string {
	return strings.TrimRight(f.Config.SFSBaseURL, "/")
}

// DocumentURL: "2024:1" -> "{base}/doc/20241.html".
func (f *Fetcher) DocumentURL(sfsNumber string) (string, error) {
	m := sfsNumRE.FindStringSubmatch(strings.TrimSpace(sfsNumber))
	if m == nil {
		return "", fmt.Errorf("ungültige SFS-Nummer %q", sfsNumber)
	}
	return fmt.Sprintf("%s/doc/%s%s.html", f.baseURL(), m[1], m[2]), nil
}

// FetchDocument lädt die Dokumentseite einer SFS-Nummer. Eine fehlende Seite
// (Lücke in der Nummerierung) ergibt (nil, nil).
func (f *Fetcher) FetchDocument(ctx context.Context, sfsNumber string) (*DocumentPage, error) {
	docURL, err := f.DocumentURL(sfsNumber)
	if err != nil {
		return nil, err
	}
	log := f.Logger.With(zap.String("sfs", sfsNumber))
	log.Debug("Rufe Dokumentseite auf", zap.String("url", docURL))

	body, status, err := f.get(ctx, docURL, "text/html")
	if err != nil {
		log.Warn("Dokumentseite konnte nicht geladen werden", zap.Error(err))
		return nil, err
	}
	if status == http.StatusNotFound {
		log.Debug("Dokumentseite existiert nicht")
		return nil, nil
	}

	page, err := ParseDocumentPage(string(body), strings.TrimPrefix(strings.TrimSpace(sfsNumber), "SFS "), docURL)
	if err != nil {
		return nil, &providers.FetchError{URL: docURL, Err: err}
	}
	if page == nil {
		log.Warn("Dokumentseite ohne Titel")
		return nil, nil
	}
	return page, nil
}

// FetchPDF lädt ein Quell-PDF.
func (f *Fetcher) FetchPDF(ctx context.Context, pdfURL string) ([]byte, error) {
	body, status, err := f.get(ctx, pdfURL, "application/pdf")
	if err != nil {
		return nil, err
	}
	if status == http.StatusNotFound {
		return nil, &providers.FetchError{URL: pdfURL, StatusCode: status}
	}
	return body, nil
}

// get liefert den Body bei 200 und den Status bei 404; alles andere ist ein FetchError.
func (f *Fetcher) get(ctx context.Context, target, accept string) ([]byte, int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, 0, err
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", accept)

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, 0, &providers.FetchError{URL: target, Err: err}
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusNotFound:
		return nil, resp.StatusCode, nil
	default:
		return nil, resp.StatusCode, &providers.FetchError{URL: target, StatusCode: resp.StatusCode}
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, f.limit+1))
	if err != nil {
		return nil, resp.StatusCode, &providers.FetchError{URL: target, Err: err}
	}
	if int64(len(body)) > f.limit {
		return nil, resp.StatusCode, &providers.FetchError{URL: target, Err: fmt.Errorf("%w: mehr als %d bytes", ErrBodyTooLarge, f.limit)}
	}
	return body, resp.StatusCode, nil
}

// ParseDocumentPage liest Titel, PDF-Link, Veröffentlichungsmonat und Text einer
// Dokumentseite. Ohne Titel ist das Ergebnis nil.
func ParseDocumentPage(rawHTML, sfsNumber, pageURL string) (*DocumentPage, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(rawHTML))
	if err != nil {
		return nil, fmt.Errorf("html parsen: %w", err)
	}

	title := doc.Find("title").First().Text()
	if i := strings.Index(title, "|"); i >= 0 {
		title = title[:i]
	}
	title = textproc.CollapseInline(title)
	if title == "" {
		title = textproc.CollapseInline(doc.Find("h1").First().Text())
	}
	if title == "" {
		return nil, nil
	}

	page := &DocumentPage{SfsNumber: sfsNumber, Title: title, HTMLURL: pageURL}

	doc.Find("a[href$='.pdf'], a[href$='.PDF']").EachWithBreak(func(_ int, a *goquery.Selection) bool {
		href, _ := a.Attr("href")
		if !strings.Contains(href, "/sfs/") {
			return true
		}
		page.PDFURL = resolve(pageURL, href)
		return false
	})

	if year, _, ok := strings.Cut(sfsNumber, ":"); ok {
		page.Published, _ = time.Parse("2006", year)
	}
	if m := pdfPathRE.FindStringSubmatch(page.PDFURL); m != nil {
		if t, err := time.Parse("2006-01", m[1]); err == nil {
			page.Published = t
		}
	}

	content := doc.Find("div.content, main, article").First()
	if content.Length() == 0 {
		content = doc.Find("body")
	}
	content.Find("script, style, nav, header, footer").Remove()
	if h, err := content.Html(); err == nil {
		page.BodyHTML = strings.TrimSpace(h)
	}
	page.Text = blockText(content)
	return page, nil
}

// blockText verbindet die Textblöcke mit Leerzeilen, damit Paragrafenanfänge
// am Zeilenanfang stehen.
func blockText(root *goquery.Selection) string {
	var parts []string
	root.Find("h1, h2, h3, h4, h5, h6, p, li, pre, td").Each(func(_ int, s *goquery.Selection) {
		if s.Find("p, li").Length() > 0 {
			return
		}
		if t := textproc.CollapseInline(s.Text()); t != "" {
			parts = append(parts, t)
		}
	})
	if len(parts) == 0 {
		return textproc.CollapseWhitespace(root.Text())
	}
	return strings.Join(parts, "\n\n")
}

func resolve(base, href string) string {
	b, err := url.Parse(base)
	if err != nil {
		return href
	}
	ref, err := url.Parse(href)
	if err != nil {
		return href
	}
	return b.ResolveReference(ref).String()
}
