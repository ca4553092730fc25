// Package riksdagen enthält die Logik für die Dokumentliste der Riksdagens öppna data.
package riksdagen

import (
	"encoding/json"
	"strconv"
	"strings"
)

// DokumentlistaResponse repräsentiert die JSON-Antwort von /dokumentlista/.
type DokumentlistaResponse struct {
	Dokumentlista Dokumentlista `json:"dokumentlista"`
}

// Dokumentlista enthält die Trefferzahlen als Strings, so wie die API sie liefert.
type Dokumentlista struct {
	Traffar  string          `json:"@traffar"`
	Sidor    string          `json:"@sidor"`
	Sida     string          `json:"@sida"`
	Dokument json.RawMessage `json:"dokument"`
}

// Dokument ist ein einzelner Eintrag der Liste.
type Dokument struct {
	DokID           string `json:"dok_id"`
	Beteckning      string `json:"beteckning"`
	Titel           string `json:"titel"`
	Datum           string `json:"datum"`
	Publicerad      string `json:"publicerad"`
	Systemdatum     string `json:"systemdatum"`
	DokumentURLHTML string `json:"dokument_url_html"`
}

// Documents dekodiert "dokument". Bei genau einem Treffer liefert die API ein
// Objekt statt eines Arrays, bei keinem Treffer fehlt das Feld oder ist null.
func (l Dokumentlista) Documents() ([]Dokument, error) {
	raw := strings.TrimSpace(string(l.Dokument))
	if raw == "" || raw == "null" {
		return nil, nil
	}
	if strings.HasPrefix(raw, "{") {
		var single Dokument
		if err := json.Unmarshal(l.Dokument, &single); err != nil {
			return nil, err
		}
		return []Dokument{single}, nil
	}
	var docs []Dokument
	if err := json.Unmarshal(l.Dokument, &docs); err != nil {
		return nil, err
	}
	return docs, nil
}

func atoi(s string) int {
	n, _ := strconv.Atoi(strings.TrimSpace(s))
	return n
}
