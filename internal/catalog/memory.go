package catalog

import (
	"fmt"
	"sort"
	"sync"

	"cfgvault/internal/backup"
)

// MemoryStore is an in-memory implementation of backup.Catalog.
// Records are cloned on the way in and out.
// This implementation is safe for concurrent use.
type MemoryStore struct {
	records map[string]*backup.Record
	mu      sync.RWMutex
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[string]*backup.Record)}
}

func (s *MemoryStore) Save(rec *backup.Record) error {
	if err := ValidateID(rec.ID); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.records[rec.ID] = rec.Clone()
	return nil
}

func (s *MemoryStore) Load(id string) (*backup.Record, error) {
	if err := ValidateID(id); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.records[id]
	if !ok {
		return nil, fmt.Errorf("%w: record %s", backup.ErrNotFound, id)
	}
	return rec.Clone(), nil
}

func (s *MemoryStore) Delete(id string) error {
	if err := ValidateID(id); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.records, id)
	return nil
}

func (s *MemoryStore) ListAll() ([]*backup.Record, []error, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	records := make([]*backup.Record, 0, len(s.records))
	for _, rec := range s.records {
		records = append(records, rec.Clone())
	}
	sort.Slice(records, func(i, j int) bool { return records[i].ID < records[j].ID })
	return records, nil, nil
}

// IDs returns the stored record ids in sorted order.
func (s *MemoryStore) IDs() ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := make([]string, 0, len(s.records))
	for id := range s.records {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

var _ backup.Catalog = (*MemoryStore)(nil)
