package services

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"lagflode/models"
)

// memStore hält alle Tabellen im Speicher und bildet die Upsert-Semantik des GormStore nach.
type memStore struct {
	mu          sync.Mutex
	amendments  map[string]*models.AmendmentDocument
	watermarks  map[string]models.CrawlWatermark
	documents   map[string]*models.LegalDocument
	events      []models.ChangeEvent
	chunks      map[uint][]models.DocumentChunk
	nextID      uint
	persistErr  error
	persistCall int
}

func newMemStore() *memStore {
	return &memStore{
		amendments: map[string]*models.AmendmentDocument{},
		watermarks: map[string]models.CrawlWatermark{},
		documents:  map[string]*models.LegalDocument{},
		chunks:     map[uint][]models.DocumentChunk{},
	}
}

func wmKey(jobType string, year int) string {
	return fmt.Sprintf("%s/%d", jobType, year)
}

func (m *memStore) id() uint {
	m.nextID++
	return m.nextID
}

func (m *memStore) LoadWatermark(_ context.Context, jobType string, year int) (models.CrawlWatermark, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if wm, ok := m.watermarks[wmKey(jobType, year)]; ok {
		return wm, nil
	}
	return models.CrawlWatermark{JobType: jobType, Year: year}, nil
}

func (m *memStore) ListWatermarks(context.Context) ([]models.CrawlWatermark, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.CrawlWatermark
	for _, wm := range m.watermarks {
		out = append(out, wm)
	}
	return out, nil
}

func (m *memStore) ExistingSfsNumbers(_ context.Context, numbers []string) (map[string]bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	found := map[string]bool{}
	for _, n := range numbers {
		if _, ok := m.amendments[n]; ok {
			found[n] = true
		}
	}
	return found, nil
}

func (m *memStore) PersistPage(_ context.Context, docs []*models.AmendmentDocument, wm models.CrawlWatermark) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.persistCall++
	if m.persistErr != nil {
		return m.persistErr
	}
	for _, d := range docs {
		cp := *d
		if old, ok := m.amendments[d.SfsNumber]; ok {
			cp.ID = old.ID
		} else {
			cp.ID = m.id()
		}
		m.amendments[d.SfsNumber] = &cp
	}
	m.watermarks[wmKey(wm.JobType, wm.Year)] = wm
	return nil
}

func (m *memStore) GetAmendment(_ context.Context, sfsNumber string) (*models.AmendmentDocument, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.amendments[NormalizeSfsNumber(sfsNumber)]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *a
	return &cp, nil
}

func (m *memStore) ListAmendments(_ context.Context, status models.ParseStatus, limit int) ([]models.AmendmentDocument, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.AmendmentDocument
	for _, a := range m.amendments {
		if status == "" || a.ParseStatus == status {
			out = append(out, *a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SfsNumber < out[j].SfsNumber })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *memStore) PendingAmendments(_ context.Context, limit, maxAttempts int) ([]*models.AmendmentDocument, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*models.AmendmentDocument
	for _, a := range m.amendments {
		if a.Retriable(maxAttempts) {
			cp := *a
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *memStore) SaveAmendment(_ context.Context, a *models.AmendmentDocument) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if a.ID == 0 {
		a.ID = m.id()
	}
	cp := *a
	if old, ok := m.amendments[a.SfsNumber]; ok {
		cp.SectionChanges = old.SectionChanges
	}
	m.amendments[a.SfsNumber] = &cp
	return nil
}

func (m *memStore) CompleteAmendment(_ context.Context, a *models.AmendmentDocument, changes []models.SectionChange) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	seen := map[int]bool{}
	for i := range changes {
		if seen[changes[i].SortOrder] {
			return errors.New("duplicate key value violates unique constraint \"idx_section_change_order\"")
		}
		seen[changes[i].SortOrder] = true
		changes[i].AmendmentID = a.ID
	}
	a.SectionChanges = changes
	cp := *a
	m.amendments[a.SfsNumber] = &cp
	return nil
}

func (m *memStore) SectionHistory(_ context.Context, baseLawSfs, chapter, section string) ([]models.SectionHistoryEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	base := NormalizeSfsNumber(baseLawSfs)
	var docs []*models.AmendmentDocument
	for _, a := range m.amendments {
		if a.BaseLawSfs != nil && *a.BaseLawSfs == base && a.ParseStatus == models.ParseCompleted {
			docs = append(docs, a)
		}
	}
	sort.Slice(docs, func(i, j int) bool {
		di, dj := docs[i].EffectiveDate, docs[j].EffectiveDate
		switch {
		case di == nil && dj == nil:
			return docs[i].ID < docs[j].ID
		case di == nil || dj == nil:
			return dj == nil
		case !di.Equal(*dj):
			return di.Before(*dj)
		}
		return docs[i].ID < docs[j].ID
	})

	var out []models.SectionHistoryEntry
	for _, a := range docs {
		for _, c := range a.SectionChanges {
			ch := ""
			if c.Chapter != nil {
				ch = *c.Chapter
			}
			if section != "" && (c.Section != section || ch != chapter) {
				continue
			}
			out = append(out, models.SectionHistoryEntry{
				SfsNumber:     a.SfsNumber,
				Title:         a.Title,
				EffectiveDate: a.EffectiveDate,
				Chapter:       c.Chapter,
				Section:       c.Section,
				ChangeType:    c.ChangeType,
				NewText:       c.NewText,
				SortOrder:     c.SortOrder,
			})
		}
	}
	return out, nil
}

func (m *memStore) GetDocument(_ context.Context, number string) (*models.LegalDocument, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.documents[number]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *d
	return &cp, nil
}

func (m *memStore) ListDocuments(_ context.Context, includeStubs bool, limit int) ([]models.LegalDocument, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.LegalDocument
	for _, d := range m.documents {
		if !includeStubs && d.IsStub() {
			continue
		}
		out = append(out, *d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].DocumentNumber < out[j].DocumentNumber })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *memStore) UpsertDocument(_ context.Context, doc *models.LegalDocument) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if old, ok := m.documents[doc.DocumentNumber]; ok {
		doc.ID = old.ID
		doc.CreatedAt = old.CreatedAt
	} else {
		doc.ID = m.id()
	}
	if err := doc.BeforeSave(nil); err != nil {
		return err
	}
	cp := *doc
	m.documents[doc.DocumentNumber] = &cp
	return nil
}

func (m *memStore) SaveChangeEvent(_ context.Context, ev *models.ChangeEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	ev.ID = m.id()
	m.events = append(m.events, *ev)
	return nil
}

func (m *memStore) ListChangeEvents(_ context.Context, limit int) ([]models.ChangeEvent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := append([]models.ChangeEvent(nil), m.events...)
	if limit > 0 && len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out, nil
}

func (m *memStore) ReplaceChunks(_ context.Context, documentID uint, chunks []models.DocumentChunk) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range chunks {
		chunks[i].DocumentID = documentID
	}
	m.chunks[documentID] = append([]models.DocumentChunk(nil), chunks...)
	return nil
}

var (
	_ CrawlStore     = (*memStore)(nil)
	_ AmendmentStore = (*memStore)(nil)
	_ DocumentStore  = (*memStore)(nil)
	_ CrawlStore     = (*GormStore)(nil)
	_ AmendmentStore = (*GormStore)(nil)
	_ DocumentStore  = (*GormStore)(nil)
)
