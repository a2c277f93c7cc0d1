package projection

import (
	"context"
	"sync"
)

// MemoryStore is an in-process Store. Put replaces the whole record under
// one lock, which gives the atomicity Apply relies on.
type MemoryStore[S any] struct {
	mu      sync.RWMutex
	records map[string]Record[S]
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore[S any]() *MemoryStore[S] {
	return &MemoryStore[S]{records: make(map[string]Record[S])}
}

func (s *MemoryStore[S]) Get(_ context.Context, entityID string) (Record[S], bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	record, ok := s.records[entityID]
	return record, ok, nil
}

func (s *MemoryStore[S]) Put(_ context.Context, record Record[S]) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[record.EntityID] = record
	return nil
}

// Len reports the number of records, tombstones included.
func (s *MemoryStore[S]) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}

// Snapshot returns a copy of all records for inspection.
func (s *MemoryStore[S]) Snapshot() map[string]Record[S] {
	s.mu.RLock()
	defer s.mu.RUnlock()
	clone := make(map[string]Record[S], len(s.records))
	for id, record := range s.records {
		clone[id] = record
	}
	return clone
}
