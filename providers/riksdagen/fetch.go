package riksdagen

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"lagflode/config"
	"lagflode/providers"
)

var httpClient = &http.Client{Timeout: 30 * time.Second}

const userAgent = "lagflode/1.0 (+https://github.com/lagflode)"

// Fetcher kapselt die Abfrage der SFS-Dokumentliste bei data.riksdagen.se.
type Fetcher struct {
	Config *config.Config
	Logger *zap.Logger
	client *http.Client
}

// NewFetcher erstellt eine neue Instanz des Riksdagen-Fetchers.
func NewFetcher(cfg *config.Config, logger *zap.Logger) *Fetcher {
	client := httpClient
	if cfg.HTTPTimeoutSeconds > 0 {
		client = &http.Client{Timeout: cfg.HTTPTimeout()}
	}
	return &Fetcher{Config: cfg, Logger: logger, client: client}
}

// Name gibt den Namen des Providers zurück.
func (f *Fetcher) Name() string {
	return "riksdagen"
}

func (f *Fetcher) pageSize() int {
	if f.Config.RiksdagenPageSize > 0 {
		return f.Config.RiksdagenPageSize
	}
	return 100
}

func (f *Fetcher) buildListURL(year, page int) string {
	q := url.Values{}
	q.Set("doktyp", "sfs")
	q.Set("rm", "")
	q.Set("from", fmt.Sprintf("%d-01-01", year))
	q.Set("tom", fmt.Sprintf("%d-12-31", year))
	q.Set("utformat", "json")
	q.Set("sz", fmt.Sprint(f.pageSize()))
	q.Set("p", fmt.Sprint(page))
	q.Set("sort", "datum")
	q.Set("sortorder", "asc")
	return strings.TrimRight(f.Config.RiksdagenBaseURL, "/") + "/dokumentlista/?" + q.Encode()
}

// ListPage holt eine Seite der SFS-Dokumentliste für ein Jahr.
func (f *Fetcher) ListPage(ctx context.Context, year, page int) (*providers.IndexPage, error) {
	if page < 1 {
		page = 1
	}
	listURL := f.buildListURL(year, page)
	log := f.Logger.With(zap.Int("year", year), zap.Int("page", page))
	log.Debug("Rufe Dokumentliste auf", zap.String("url", listURL))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, listURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := f.client.Do(req)
	if err != nil {
		log.Error("Anfrage an die Dokumentliste fehlgeschlagen", zap.Error(err))
		return nil, &providers.FetchError{URL: listURL, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		log.Error("Dokumentliste hat nicht-200-Status zurückgegeben",
			zap.Int("status", resp.StatusCode),
			zap.String("body", string(body)))
		return nil, &providers.FetchError{URL: listURL, StatusCode: resp.StatusCode}
	}

	var listResp DokumentlistaResponse
	if err := json.NewDecoder(resp.Body).Decode(&listResp); err != nil {
		log.Error("Fehler beim Parsen der Dokumentliste", zap.Error(err))
		return nil, &providers.FetchError{URL: listURL, Err: fmt.Errorf("decode: %w", err)}
	}
	docs, err := listResp.Dokumentlista.Documents()
	if err != nil {
		return nil, &providers.FetchError{URL: listURL, Err: fmt.Errorf("decode dokument: %w", err)}
	}

	result := &providers.IndexPage{
		Total:    atoi(listResp.Dokumentlista.Traffar),
		Pages:    atoi(listResp.Dokumentlista.Sidor),
		Page:     atoi(listResp.Dokumentlista.Sida),
		PageSize: f.pageSize(),
	}
	if result.Page == 0 {
		result.Page = page
	}
	for _, d := range docs {
		result.Documents = append(result.Documents, mapDokument(d))
	}
	log.Info("Dokumentliste geladen",
		zap.Int("documents", len(result.Documents)),
		zap.Int("total", result.Total),
		zap.Int("pages", result.Pages))
	return result, nil
}

func mapDokument(d Dokument) providers.IndexDocument {
	doc := providers.IndexDocument{
		Designation: strings.TrimSpace(d.Beteckning),
		Title:       strings.Join(strings.Fields(d.Titel), " "),
		SystemDate:  d.Systemdatum,
		HTMLURL:     d.DokumentURLHTML,
	}
	if strings.HasPrefix(doc.HTMLURL, "//") {
		doc.HTMLURL = "https:" + doc.HTMLURL
	}
	for _, s := range []string{d.Publicerad, d.Datum} {
		if t, ok := parseDate(s); ok {
			doc.Published = t
			break
		}
	}
	return doc
}

func parseDate(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	for _, layout := range []string{"2006-01-02 15:04:05", "2006-01-02"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}
