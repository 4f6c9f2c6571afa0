// Package staging implements stage-then-rename writes. Content is written
// to a temporary file, synced, and renamed over its destination, so a reader
// never observes a partially written file.
package staging

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"cfgvault/internal/backup"
)

// tempPattern names staged files. Sweep only removes names with this prefix.
const tempPattern = ".stage-*"

const tempPrefix = ".stage-"

// Area is a staging directory for atomic writes to destinations on the same
// filesystem. A write interrupted before its rename leaves a temp file in
// the area and nothing at the destination; Sweep removes such leftovers.
type Area struct {
	dir       string
	minFree   int64
	freeSpace func(dir string) (uint64, error)
}

// NewArea creates the staging directory if needed.
// minFree is the number of bytes that must remain free after a write.
func NewArea(dir string, minFree int64) (*Area, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("creating staging directory: %w", err)
	}
	return &Area{dir: dir, minFree: minFree, freeSpace: freeSpace}, nil
}

// Dir returns the staging directory.
func (a *Area) Dir() string { return a.dir }

// Staged is content written to the staging area but not yet committed.
type Staged struct {
	path string
}

// Path returns the temp file's location.
func (s *Staged) Path() string { return s.path }

// Stage writes data to a new temp file with the given permissions.
// It fails with backup.ErrInsufficientStorage when the write would leave
// less than the area's minimum free space.
func (a *Area) Stage(data []byte, perm fs.FileMode) (*Staged, error) {
	if err := a.checkSpace(int64(len(data))); err != nil {
		return nil, err
	}
	path, err := writeTemp(a.dir, data, perm)
	if err != nil {
		return nil, err
	}
	return &Staged{path: path}, nil
}

// Commit renames the staged file to dest, replacing any existing file.
// On failure the staged file is removed.
func (s *Staged) Commit(dest string) error {
	if err := os.Rename(s.path, dest); err != nil {
		os.Remove(s.path)
		return fmt.Errorf("committing staged file: %w", err)
	}
	return nil
}

// Discard removes the staged file.
func (s *Staged) Discard() {
	os.Remove(s.path)
}

// Write stages data and commits it to dest in one step.
func (a *Area) Write(dest string, data []byte, perm fs.FileMode) error {
	staged, err := a.Stage(data, perm)
	if err != nil {
		return err
	}
	return staged.Commit(dest)
}

// Sweep removes staged files last modified before now minus grace.
// Files younger than grace may belong to a write still in progress.
func (a *Area) Sweep(grace time.Duration, now time.Time) (int, error) {
	entries, err := os.ReadDir(a.dir)
	if err != nil {
		return 0, fmt.Errorf("reading staging directory: %w", err)
	}

	cutoff := now.Add(-grace)
	removed := 0
	var errs []error
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasPrefix(entry.Name(), tempPrefix) {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			errs = append(errs, err)
			continue
		}
		if info.ModTime().After(cutoff) {
			continue
		}
		if err := os.Remove(filepath.Join(a.dir, entry.Name())); err != nil && !errors.Is(err, fs.ErrNotExist) {
			errs = append(errs, err)
			continue
		}
		removed++
	}
	return removed, errors.Join(errs...)
}

// checkSpace fails when writing size bytes would leave less than minFree
// bytes available. Platforms without a free space query skip the check.
func (a *Area) checkSpace(size int64) error {
	if a.freeSpace == nil {
		return nil
	}
	avail, err := a.freeSpace(a.dir)
	if err != nil {
		return nil
	}
	need := uint64(size)
	if a.minFree > 0 {
		need += uint64(a.minFree)
	}
	if avail < need {
		return fmt.Errorf("%w: %d bytes available in %s, need %d", backup.ErrInsufficientStorage, avail, a.dir, need)
	}
	return nil
}

// WriteFileAtomic replaces dest with data, staging the write in dest's own
// directory so the final rename never crosses filesystems. Missing parent
// directories are created.
func WriteFileAtomic(dest string, data []byte, perm fs.FileMode) error {
	dir := filepath.Dir(dest)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating parent directory: %w", err)
	}

	tmpPath, err := writeTemp(dir, data, perm)
	if err != nil {
		return err
	}
	if err := os.Rename(tmpPath, dest); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("renaming temp file: %w", err)
	}
	return nil
}

// writeTemp writes data to a new synced temp file in dir and returns its path.
func writeTemp(dir string, data []byte, perm fs.FileMode) (string, error) {
	tmpFile, err := os.CreateTemp(dir, tempPattern)
	if err != nil {
		return "", fmt.Errorf("creating temp file: %w", err)
	}
	tmpPath := tmpFile.Name()

	success := false
	defer func() {
		if !success {
			os.Remove(tmpPath)
		}
	}()

	if _, err := tmpFile.Write(data); err != nil {
		tmpFile.Close()
		return "", fmt.Errorf("writing temp file: %w", err)
	}
	if err := tmpFile.Chmod(perm); err != nil {
		tmpFile.Close()
		return "", fmt.Errorf("setting temp file permissions: %w", err)
	}
	if err := tmpFile.Sync(); err != nil {
		tmpFile.Close()
		return "", fmt.Errorf("syncing temp file: %w", err)
	}
	if err := tmpFile.Close(); err != nil {
		return "", fmt.Errorf("closing temp file: %w", err)
	}

	success = true
	return tmpPath, nil
}
