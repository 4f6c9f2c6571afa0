package fs

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"cfgvault/internal/backup"
	"cfgvault/internal/staging"
)

// OSFilesystemManager is the real filesystem implementation of
// backup.FilesystemManager.
type OSFilesystemManager struct{}

// NewOSFilesystemManager creates a new filesystem manager that operates on the real filesystem.
func NewOSFilesystemManager() *OSFilesystemManager {
	return &OSFilesystemManager{}
}

// Resolve makes rawPath absolute and stats it. Symlinks are followed for
// the stat but the returned path keeps the name the caller used, so a
// config file reached through a link is backed up and restored under that
// name.
func (m *OSFilesystemManager) Resolve(rawPath string) (*backup.Path, error) {
	if rawPath == "" {
		return nil, fmt.Errorf("%w: empty path", backup.ErrInvalidArgument)
	}
	absPath, err := filepath.Abs(rawPath)
	if err != nil {
		return nil, fmt.Errorf("resolving absolute path: %w", err)
	}

	info, err := os.Stat(absPath)
	if err != nil {
		return nil, fmt.Errorf("stat path: %w", err)
	}

	mode := info.Mode()
	if mode&os.ModeDevice != 0 {
		return nil, fmt.Errorf("%w: device files not supported: %s", backup.ErrInvalidArgument, absPath)
	}
	if mode&os.ModeNamedPipe != 0 {
		return nil, fmt.Errorf("%w: named pipes not supported: %s", backup.ErrInvalidArgument, absPath)
	}
	if mode&os.ModeSocket != 0 {
		return nil, fmt.Errorf("%w: sockets not supported: %s", backup.ErrInvalidArgument, absPath)
	}

	return backup.NewPath(absPath, info.IsDir(), info), nil
}

// ReadFile reads a regular file in full.
func (m *OSFilesystemManager) ReadFile(path *backup.Path) ([]byte, error) {
	if path.IsDir() {
		return nil, fmt.Errorf("%w: cannot read directory as file: %s", backup.ErrInvalidArgument, path.String())
	}
	data, err := os.ReadFile(path.String())
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path.String(), err)
	}
	return data, nil
}

// WriteFile atomically replaces absPath with data. When absPath is a
// symlink the file it points to is replaced, staged in that file's own
// directory, and the link is left in place. A missing target, or a link
// whose target is missing, is written at absPath.
func (m *OSFilesystemManager) WriteFile(absPath string, data []byte, perm fs.FileMode) error {
	dest := absPath
	resolved, err := filepath.EvalSymlinks(absPath)
	switch {
	case err == nil:
		dest = resolved
	case !errors.Is(err, fs.ErrNotExist):
		return fmt.Errorf("resolving %s: %w", absPath, err)
	}
	return staging.WriteFileAtomic(dest, data, perm)
}

// Chmod sets the permission bits of absPath.
func (m *OSFilesystemManager) Chmod(absPath string, mode fs.FileMode) error {
	if err := os.Chmod(absPath, mode); err != nil {
		return fmt.Errorf("chmod %s: %w", absPath, err)
	}
	return nil
}

// Compile-time check that OSFilesystemManager implements backup.FilesystemManager interface
var _ backup.FilesystemManager = (*OSFilesystemManager)(nil)
