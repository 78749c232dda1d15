package vectorstore

import (
	"context"
	"sync"

	"github.com/dgallion1/docrag/internal/ragerr"
)

type memEntry struct {
	rec Record
	seq int64
}

// Memory is an in-process store. Searches scan every record.
type Memory struct {
	mu      sync.RWMutex
	entries []memEntry
	dim     int
	seq     int64
}

func NewMemory() *Memory {
	return &Memory{}
}

func (m *Memory) Upsert(ctx context.Context, records []Record) error {
	if len(records) == 0 {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	dim, err := batchDimension("memory upsert", m.dim, records)
	if err != nil {
		return err
	}
	index := make(map[string]int, len(m.entries))
	for i, e := range m.entries {
		index[e.rec.ID] = i
	}
	for _, r := range records {
		if i, ok := index[r.ID]; ok {
			m.entries[i].rec = cloneRecord(r)
			continue
		}
		m.seq++
		index[r.ID] = len(m.entries)
		m.entries = append(m.entries, memEntry{rec: cloneRecord(r), seq: m.seq})
	}
	m.dim = dim
	return nil
}

func (m *Memory) ReplaceDocument(ctx context.Context, docID string, records []Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	kept := make([]memEntry, 0, len(m.entries))
	for _, e := range m.entries {
		if e.rec.DocID != docID {
			kept = append(kept, e)
		}
	}
	want := m.dim
	if len(kept) == 0 {
		want = 0
	}
	dim, err := batchDimension("memory replace", want, records)
	if err != nil {
		return err
	}
	for _, r := range records {
		m.seq++
		rec := cloneRecord(r)
		rec.DocID = docID
		kept = append(kept, memEntry{rec: rec, seq: m.seq})
	}
	m.entries = kept
	m.dim = dim
	return nil
}

func (m *Memory) DeleteDocument(ctx context.Context, docID string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	kept := m.entries[:0]
	removed := 0
	for _, e := range m.entries {
		if e.rec.DocID == docID {
			removed++
			continue
		}
		kept = append(kept, e)
	}
	clear(m.entries[len(kept):])
	m.entries = kept
	if len(m.entries) == 0 {
		m.dim = 0
	}
	return removed, nil
}

func (m *Memory) Search(ctx context.Context, vector []float32, k int) ([]Result, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if len(m.entries) == 0 {
		return []Result{}, nil
	}
	if len(vector) != m.dim {
		return nil, ragerr.SpaceMismatch("memory search", m.dim, len(vector))
	}
	cands := make([]scored, 0, len(m.entries))
	for _, e := range m.entries {
		cands = append(cands, scored{
			res: Result{Record: cloneRecord(e.rec), Score: Cosine(vector, e.rec.Vector)},
			seq: e.seq,
		})
	}
	return topK(cands, k), nil
}

func (m *Memory) Count(ctx context.Context) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries), nil
}

func (m *Memory) Documents(ctx context.Context) ([]DocumentInfo, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := []DocumentInfo{}
	pos := make(map[string]int)
	for _, e := range m.entries {
		i, ok := pos[e.rec.DocID]
		if !ok {
			i = len(out)
			pos[e.rec.DocID] = i
			out = append(out, DocumentInfo{DocID: e.rec.DocID, Filename: e.rec.Metadata.Filename})
		}
		out[i].Chunks++
	}
	return out, nil
}

func (m *Memory) Dimension() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.dim
}

func (m *Memory) Close() error { return nil }

func cloneRecord(r Record) Record {
	r.Vector = append([]float32(nil), r.Vector...)
	r.Metadata.PageNumbers = append([]int{}, r.Metadata.PageNumbers...)
	return r
}
