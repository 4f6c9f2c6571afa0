package vault

import (
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"cfgvault/internal/backup"
)

// MemoryVault is an in-memory implementation of backup.Vault.
// Payload paths are root/name, mirroring the filesystem layout.
// This implementation is safe for concurrent use.
type MemoryVault struct {
	root     string
	payloads map[string]memoryPayload
	now      func() time.Time
	mu       sync.RWMutex
}

type memoryPayload struct {
	data    []byte
	perm    fs.FileMode
	modTime time.Time
}

// NewMemoryVault creates an empty in-memory vault whose payload paths
// live under root.
func NewMemoryVault(root string) *MemoryVault {
	return &MemoryVault{
		root:     filepath.Clean(root),
		payloads: make(map[string]memoryPayload),
		now:      time.Now,
	}
}

func (m *MemoryVault) Put(name string, data []byte, perm fs.FileMode) (string, error) {
	if err := validateName(name); err != nil {
		return "", err
	}
	path := filepath.Join(m.root, name)

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.payloads[path]; ok {
		return "", fmt.Errorf("%w: payload already exists: %s", backup.ErrInvalidArgument, path)
	}
	m.payloads[path] = memoryPayload{
		data:    append([]byte(nil), data...),
		perm:    perm,
		modTime: m.now(),
	}
	return path, nil
}

func (m *MemoryVault) Get(path string) ([]byte, error) {
	if err := m.contains(path); err != nil {
		return nil, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	p, ok := m.payloads[path]
	if !ok {
		return nil, fmt.Errorf("%w: payload %s", backup.ErrNotFound, path)
	}
	return append([]byte(nil), p.data...), nil
}

func (m *MemoryVault) Delete(path string) error {
	if err := m.contains(path); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.payloads, path)
	return nil
}

func (m *MemoryVault) List() ([]backup.StoredPayload, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	payloads := make([]backup.StoredPayload, 0, len(m.payloads))
	for path, p := range m.payloads {
		payloads = append(payloads, backup.StoredPayload{Path: path, Size: int64(len(p.data)), ModTime: p.modTime})
	}
	sort.Slice(payloads, func(i, j int) bool { return payloads[i].Path < payloads[j].Path })
	return payloads, nil
}

// Perm returns the permissions a payload was stored with.
func (m *MemoryVault) Perm(path string) (fs.FileMode, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	p, ok := m.payloads[path]
	if !ok {
		return 0, fmt.Errorf("%w: payload %s", backup.ErrNotFound, path)
	}
	return p.perm, nil
}

// Replace overwrites a stored payload in place, keeping its metadata.
// Tests use it to simulate on-disk corruption.
func (m *MemoryVault) Replace(path string, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	p, ok := m.payloads[path]
	if !ok {
		return errors.New("payload not found: " + path)
	}
	p.data = append([]byte(nil), data...)
	m.payloads[path] = p
	return nil
}

// SetModTime changes a payload's modification time.
func (m *MemoryVault) SetModTime(path string, t time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if p, ok := m.payloads[path]; ok {
		p.modTime = t
		m.payloads[path] = p
	}
}

func (m *MemoryVault) contains(path string) error {
	if filepath.Dir(filepath.Clean(path)) != m.root {
		return fmt.Errorf("%w: path outside vault: %s", backup.ErrInvalidArgument, path)
	}
	return nil
}

var _ backup.Vault = (*MemoryVault)(nil)
