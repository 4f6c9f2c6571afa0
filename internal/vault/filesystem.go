package vault

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"cfgvault/internal/backup"
	"cfgvault/internal/staging"
)

// FileSystemVault stores payloads as files in a single directory,
// conventionally <root>/settings. Writes go through the staging area and
// are renamed into place.
type FileSystemVault struct {
	dir  string
	area *staging.Area
}

// NewFileSystemVault creates a vault storing payloads in dir.
func NewFileSystemVault(dir string, area *staging.Area) (*FileSystemVault, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("resolving vault directory: %w", err)
	}
	if err := os.MkdirAll(abs, 0o700); err != nil {
		return nil, fmt.Errorf("failed to create vault directory: %w", err)
	}
	return &FileSystemVault{dir: abs, area: area}, nil
}

// Dir returns the payload directory.
func (v *FileSystemVault) Dir() string { return v.dir }

// Put stores data as dir/name. Existing payloads are never overwritten.
func (v *FileSystemVault) Put(name string, data []byte, perm fs.FileMode) (string, error) {
	if err := validateName(name); err != nil {
		return "", err
	}

	dest := filepath.Join(v.dir, name)
	if _, err := os.Lstat(dest); err == nil {
		return "", fmt.Errorf("%w: payload already exists: %s", backup.ErrInvalidArgument, dest)
	}

	if err := v.area.Write(dest, data, perm); err != nil {
		return "", fmt.Errorf("storing payload %s: %w", name, err)
	}
	return dest, nil
}

// Get returns the payload stored at path.
func (v *FileSystemVault) Get(path string) ([]byte, error) {
	if err := v.contains(path); err != nil {
		return nil, err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: payload %s", backup.ErrNotFound, path)
		}
		return nil, fmt.Errorf("failed to read payload: %w", err)
	}
	return data, nil
}

// Delete removes the payload at path. Missing payloads are not an error.
func (v *FileSystemVault) Delete(path string) error {
	if err := v.contains(path); err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to delete payload: %w", err)
	}
	return nil
}

// List returns every payload file. Hidden files are skipped.
func (v *FileSystemVault) List() ([]backup.StoredPayload, error) {
	entries, err := os.ReadDir(v.dir)
	if err != nil {
		return nil, fmt.Errorf("reading vault directory: %w", err)
	}

	var payloads []backup.StoredPayload
	for _, entry := range entries {
		if !entry.Type().IsRegular() || strings.HasPrefix(entry.Name(), ".") {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return nil, fmt.Errorf("stat %s: %w", entry.Name(), err)
		}
		payloads = append(payloads, backup.StoredPayload{
			Path:    filepath.Join(v.dir, entry.Name()),
			Size:    info.Size(),
			ModTime: info.ModTime(),
		})
	}
	return payloads, nil
}

// ValidateSetup verifies that the vault directory is accessible.
func (v *FileSystemVault) ValidateSetup() error {
	info, err := os.Stat(v.dir)
	if err != nil {
		return fmt.Errorf("vault directory not accessible: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("vault path is not a directory: %s", v.dir)
	}
	return nil
}

// contains rejects paths that are not directly inside the vault directory,
// so a tampered record can never make the vault read or delete other files.
func (v *FileSystemVault) contains(path string) error {
	if !filepath.IsAbs(path) || filepath.Dir(filepath.Clean(path)) != v.dir {
		return fmt.Errorf("%w: path outside vault: %s", backup.ErrInvalidArgument, path)
	}
	return nil
}

// validateName rejects names that are empty, hidden or contain separators.
func validateName(name string) error {
	if name == "" || strings.HasPrefix(name, ".") || strings.ContainsAny(name, `/\`) {
		return fmt.Errorf("%w: invalid payload name %q", backup.ErrInvalidArgument, name)
	}
	return nil
}

var _ backup.Vault = (*FileSystemVault)(nil)
