package testutil

import (
	"fmt"
	"io/fs"
	"path/filepath"
	"sync"
	"time"

	"cfgvault/internal/backup"
)

// MockFile represents a file in the mock filesystem.
type MockFile struct {
	Content     []byte
	Permissions fs.FileMode
	ModTime     time.Time
	IsDirectory bool
}

// MockFilesystemManager is an in-memory backup.FilesystemManager.
// Safe for concurrent use.
type MockFilesystemManager struct {
	mu    sync.Mutex
	files map[string]*MockFile

	// WriteErr, when set, makes WriteFile fail without touching the file.
	WriteErr error
	// ChmodErr, when set, makes Chmod fail.
	ChmodErr error
}

// NewMockFilesystemManager creates a new mock filesystem.
func NewMockFilesystemManager() *MockFilesystemManager {
	return &MockFilesystemManager{
		files: make(map[string]*MockFile),
	}
}

// AddFile adds a regular file with mode 0644.
func (m *MockFilesystemManager) AddFile(path string, content []byte) {
	m.AddFileWithMode(path, content, 0644)
}

// AddFileWithMode adds a regular file with the given permissions.
func (m *MockFilesystemManager) AddFileWithMode(path string, content []byte, perm fs.FileMode) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.files[path] = &MockFile{
		Content:     append([]byte(nil), content...),
		Permissions: perm,
		ModTime:     time.Now(),
	}
}

// AddDirectory adds a directory to the mock filesystem.
func (m *MockFilesystemManager) AddDirectory(path string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.files[path] = &MockFile{
		Permissions: 0755,
		ModTime:     time.Now(),
		IsDirectory: true,
	}
}

// Remove deletes a file from the mock filesystem.
func (m *MockFilesystemManager) Remove(path string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.files, path)
}

// Content returns the content of path and whether it exists.
func (m *MockFilesystemManager) Content(path string) ([]byte, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	f, ok := m.files[path]
	if !ok {
		return nil, false
	}
	return append([]byte(nil), f.Content...), true
}

// Mode returns the permissions of path.
func (m *MockFilesystemManager) Mode(path string) fs.FileMode {
	m.mu.Lock()
	defer m.mu.Unlock()
	if f, ok := m.files[path]; ok {
		return f.Permissions
	}
	return 0
}

func (m *MockFilesystemManager) Resolve(rawPath string) (*backup.Path, error) {
	absPath, err := filepath.Abs(rawPath)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	file, ok := m.files[absPath]
	if !ok {
		return nil, fmt.Errorf("stat %s: %w", absPath, fs.ErrNotExist)
	}

	mode := file.Permissions
	if file.IsDirectory {
		mode |= fs.ModeDir
	}
	info := &mockFileInfo{
		name:    filepath.Base(absPath),
		size:    int64(len(file.Content)),
		mode:    mode,
		modTime: file.ModTime,
	}
	return backup.NewPath(absPath, file.IsDirectory, info), nil
}

func (m *MockFilesystemManager) ReadFile(path *backup.Path) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	file, ok := m.files[path.String()]
	if !ok {
		return nil, fmt.Errorf("open %s: %w", path.String(), fs.ErrNotExist)
	}
	if file.IsDirectory {
		return nil, fmt.Errorf("cannot read directory: %s", path.String())
	}
	return append([]byte(nil), file.Content...), nil
}

func (m *MockFilesystemManager) WriteFile(absPath string, data []byte, perm fs.FileMode) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.WriteErr != nil {
		return m.WriteErr
	}
	if f, ok := m.files[absPath]; ok && f.IsDirectory {
		return fmt.Errorf("write %s: is a directory", absPath)
	}
	m.files[absPath] = &MockFile{
		Content:     append([]byte(nil), data...),
		Permissions: perm,
		ModTime:     time.Now(),
	}
	return nil
}

func (m *MockFilesystemManager) Chmod(absPath string, mode fs.FileMode) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.ChmodErr != nil {
		return m.ChmodErr
	}
	f, ok := m.files[absPath]
	if !ok {
		return fmt.Errorf("chmod %s: %w", absPath, fs.ErrNotExist)
	}
	f.Permissions = mode
	return nil
}

// mockFileInfo implements fs.FileInfo
type mockFileInfo struct {
	name    string
	size    int64
	mode    fs.FileMode
	modTime time.Time
}

func (m *mockFileInfo) Name() string       { return m.name }
func (m *mockFileInfo) Size() int64        { return m.size }
func (m *mockFileInfo) Mode() fs.FileMode  { return m.mode }
func (m *mockFileInfo) ModTime() time.Time { return m.modTime }
func (m *mockFileInfo) IsDir() bool        { return m.mode.IsDir() }
func (m *mockFileInfo) Sys() any           { return nil }

// Compile-time check
var _ backup.FilesystemManager = (*MockFilesystemManager)(nil)
