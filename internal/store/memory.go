package store

import (
	"context"
	"sync"

	"github.com/nhle/workcal/internal/model"
)

// MemoryStore keeps the record table in process memory. It is used by tests
// and by the "memory" backend; its contents do not survive a restart.
type MemoryStore struct {
	mu      sync.RWMutex
	records []model.Record
	index   map[string]int
	version uint64
	newID   IDGenerator
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore(opts ...Option) *MemoryStore {
	o := buildOptions(opts)
	return &MemoryStore{
		index: make(map[string]int),
		newID: o.newID,
	}
}

// Create appends a new open record.
func (s *MemoryStore) Create(ctx context.Context, date, content string) (model.Record, error) {
	if err := ctx.Err(); err != nil {
		return model.Record{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var id string
	for attempt := 0; ; attempt++ {
		if attempt == maxIDAttempts {
			return model.Record{}, errIDExhausted
		}
		id = s.newID()
		if _, taken := s.index[id]; !taken {
			break
		}
	}

	rec := model.Record{ID: id, Date: date, Content: content}
	s.index[id] = len(s.records)
	s.records = append(s.records, rec)
	s.version++
	return rec, nil
}

// Update sets the completion flag of an existing record.
func (s *MemoryStore) Update(ctx context.Context, id string, completed bool) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	i, ok := s.index[id]
	if !ok {
		return false, nil
	}
	s.records[i].Completed = completed
	s.version++
	return true, nil
}

// Delete removes a record, keeping the remaining records in insertion order.
func (s *MemoryStore) Delete(ctx context.Context, id string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	i, ok := s.index[id]
	if !ok {
		return false, nil
	}
	s.records = append(s.records[:i], s.records[i+1:]...)
	delete(s.index, id)
	for j := i; j < len(s.records); j++ {
		s.index[s.records[j].ID] = j
	}
	s.version++
	return true, nil
}

// Snapshot copies the current table under the read lock.
func (s *MemoryStore) Snapshot(ctx context.Context, order model.SortOrder) (model.Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return model.Snapshot{}, err
	}

	s.mu.RLock()
	snap := model.Snapshot{
		Version: s.version,
		Records: make([]model.Record, len(s.records)),
	}
	copy(snap.Records, s.records)
	s.mu.RUnlock()

	model.SortRecords(snap.Records, order)
	return snap, nil
}

// Ping always succeeds.
func (s *MemoryStore) Ping(context.Context) error { return nil }

// Close is a no-op.
func (s *MemoryStore) Close() error { return nil }
