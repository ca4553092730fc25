// Package chunking zerlegt kanonische Dokumente in Abschnitte für die Suche.
package chunking

import (
	"errors"
	"strings"

	"lagflode/canonical"
	"lagflode/textproc"
)

// ErrInvalidMaxTokens: MaxTokens muss mindestens 1 sein.
var ErrInvalidMaxTokens = errors.New("chunking: maxTokens must be >= 1")

// Input für ChunkDocument. TokensPerWord 0 verwendet textproc.DefaultTokensPerWord.
type Input struct {
	Doc           *canonical.Document
	MaxTokens     int
	TokensPerWord float64
}

// Chunk ist eine Folge ganzer Blöcke. TokenCount ist eine Schätzung über den
// Text ohne Kontextkopf.
type Chunk struct {
	Index         int      `json:"index"`
	Text          string   `json:"text"`
	BlockIDs      []string `json:"blockIds"`
	TokenCount    int      `json:"tokenCount"`
	Oversized     bool     `json:"oversized,omitempty"`
	Path          []string `json:"path,omitempty"`
	ContextHeader string   `json:"contextHeader"`
}

type pathEntry struct {
	level int
	text  string
}

type packer struct {
	in     Input
	header string
	path   []pathEntry
	chunks []Chunk

	ids    []string
	texts  []string
	tokens int
}

// ChunkDocument packt die Blöcke in Dokumentreihenfolge gierig in Chunks bis
// MaxTokens. Kein Block wird geteilt; ein Block über dem Limit wird ein eigener
// Chunk mit Oversized. Überschriften beginnen einen neuen Chunk.
func ChunkDocument(in Input) ([]Chunk, error) {
	if in.MaxTokens < 1 {
		return nil, ErrInvalidMaxTokens
	}
	if in.Doc == nil {
		return nil, errors.New("chunking: document is nil")
	}
	if in.TokensPerWord <= 0 {
		in.TokensPerWord = textproc.DefaultTokensPerWord
	}
	p := &packer{in: in, header: titleHeader(in.Doc)}

	for _, b := range in.Doc.Blocks {
		text := canonical.BlockText(b)
		if strings.TrimSpace(text) == "" {
			continue
		}
		n := textproc.EstimateTokensWith(text, in.TokensPerWord)

		if b.Kind == canonical.KindHeading {
			p.flush(false)
			p.enter(b)
		}
		if n > in.MaxTokens {
			p.flush(false)
			p.add(b.ID, text, n)
			p.flush(true)
			continue
		}
		if len(p.ids) > 0 && p.tokens+n > in.MaxTokens {
			p.flush(false)
		}
		p.add(b.ID, text, n)
	}
	p.flush(false)
	return p.chunks, nil
}

func (p *packer) enter(b canonical.Block) {
	level := b.Level
	for len(p.path) > 0 && p.path[len(p.path)-1].level >= level {
		p.path = p.path[:len(p.path)-1]
	}
	p.path = append(p.path, pathEntry{level: level, text: b.Text})
}

func (p *packer) add(id, text string, n int) {
	p.ids = append(p.ids, id)
	p.texts = append(p.texts, text)
	p.tokens += n
}

func (p *packer) flush(oversized bool) {
	if len(p.ids) == 0 {
		return
	}
	path := make([]string, len(p.path))
	for i, e := range p.path {
		path[i] = e.text
	}
	header := strings.Join(append([]string{p.header}, path...), " > ")
	body := strings.Join(p.texts, "\n\n")
	p.chunks = append(p.chunks, Chunk{
		Index:         len(p.chunks),
		Text:          header + "\n\n" + body,
		BlockIDs:      p.ids,
		TokenCount:    p.tokens,
		Oversized:     oversized,
		Path:          path,
		ContextHeader: header,
	})
	p.ids, p.texts, p.tokens = nil, nil, 0
}

// titleHeader: "Arbetsmiljölag (1977:1160)" bzw. "Titel (SFS 2020:1)", wenn die Nummer fehlt.
func titleHeader(doc *canonical.Document) string {
	title := strings.TrimSpace(doc.Title)
	num := strings.TrimSpace(doc.DocumentNumber)
	bare := strings.TrimPrefix(num, "SFS ")
	switch {
	case num == "":
		return title
	case title == "":
		return num
	case strings.Contains(title, bare):
		return title
	}
	return title + " (" + num + ")"
}
