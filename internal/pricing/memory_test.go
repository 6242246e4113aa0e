package pricing

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

type memoryRepo struct {
	mu      sync.Mutex
	records map[uuid.UUID]Record
	lists   int
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{records: make(map[uuid.UUID]Record)}
}

func (m *memoryRepo) Insert(ctx context.Context, rec Record) (*Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.records {
		if existing.Key == rec.Key && existing.EffectiveFrom.Equal(rec.EffectiveFrom) {
			return nil, ErrDuplicateEffective
		}
	}
	m.records[rec.ID] = rec
	out := rec
	return &out, nil
}

func (m *memoryRepo) lineage(key DimensionKey) []Record {
	var out []Record
	for _, rec := range m.records {
		if rec.Key == key {
			out = append(out, rec)
		}
	}
	return Chain(out)
}

func (m *memoryRepo) Latest(ctx context.Context, key DimensionKey, at time.Time, inclusive bool) (*Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var best *Record
	for _, rec := range m.lineage(key) {
		rec := rec
		if rec.EffectiveFrom.After(at) || (!inclusive && rec.EffectiveFrom.Equal(at)) {
			continue
		}
		rec.Previous = nil
		best = &rec
	}
	return best, nil
}

func (m *memoryRepo) ListByKey(ctx context.Context, key DimensionKey) ([]Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lists++
	out := m.lineage(key)
	for i := range out {
		out[i].Previous = nil
	}
	return out, nil
}

func (m *memoryRepo) Get(ctx context.Context, id uuid.UUID) (*Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.records[id]
	if !ok {
		return nil, ErrRecordNotFound
	}
	return &rec, nil
}

func (m *memoryRepo) CountReferencing(ctx context.Context, id uuid.UUID) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.records[id]
	if !ok {
		return 0, nil
	}
	if Referenced(m.lineage(rec.Key), rec) {
		return 1, nil
	}
	return 0, nil
}

func (m *memoryRepo) DeleteIfHead(ctx context.Context, id uuid.UUID) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.records[id]
	if !ok || Referenced(m.lineage(rec.Key), rec) {
		return false, nil
	}
	delete(m.records, id)
	return true, nil
}
