package mirror

import (
	"maps"
	"slices"
	"sync"

	"cfgvault/internal/backup"
)

// MemoryMirror is an in-memory backup.Mirror keyed like S3Mirror.
type MemoryMirror struct {
	mu      sync.Mutex
	prefix  string
	objects map[string][]byte
	// Err, when set, is returned by every call instead of mirroring.
	Err error
}

var _ backup.Mirror = (*MemoryMirror)(nil)

// NewMemoryMirror creates an empty in-memory mirror.
func NewMemoryMirror(prefix string) *MemoryMirror {
	return &MemoryMirror{
		prefix:  prefix,
		objects: make(map[string][]byte),
	}
}

func (m *MemoryMirror) Push(rec *backup.Record, payload []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return m.Err
	}

	meta, err := encodeRecord(rec)
	if err != nil {
		return err
	}
	m.objects[PayloadKey(m.prefix, rec)] = slices.Clone(payload)
	m.objects[RecordKey(m.prefix, rec)] = meta
	return nil
}

func (m *MemoryMirror) Remove(rec *backup.Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return m.Err
	}

	delete(m.objects, PayloadKey(m.prefix, rec))
	delete(m.objects, RecordKey(m.prefix, rec))
	return nil
}

// Get returns a copy of the object stored under key.
func (m *MemoryMirror) Get(key string) ([]byte, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.objects[key]
	return slices.Clone(data), ok
}

// Keys returns every stored key in sorted order.
func (m *MemoryMirror) Keys() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Sorted(maps.Keys(m.objects))
}
