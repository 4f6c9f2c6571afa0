package catalog

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/goccy/go-json"

	"cfgvault/internal/backup"
	"cfgvault/internal/staging"
)

// metadataPerm keeps records private: they reveal paths and digests.
const metadataPerm fs.FileMode = 0o600

// FileStore keeps each record in <dir>/<id>.json. Writes go through the
// staging area, so a record file is either absent or complete.
type FileStore struct {
	dir  string
	area *staging.Area
}

// NewFileStore creates a store in dir, creating the directory if needed.
func NewFileStore(dir string, area *staging.Area) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("failed to create metadata directory: %w", err)
	}
	return &FileStore{dir: dir, area: area}, nil
}

// Dir returns the metadata directory.
func (s *FileStore) Dir() string { return s.dir }

// ModTime returns the metadata directory's modification time. Every save
// renames a file into the directory and every delete removes one, so the
// time moves whenever the set of records or any record changes.
func (s *FileStore) ModTime() (time.Time, error) {
	info, err := os.Stat(s.dir)
	if err != nil {
		return time.Time{}, fmt.Errorf("stat metadata directory: %w", err)
	}
	return info.ModTime(), nil
}

func (s *FileStore) path(id string) string {
	return filepath.Join(s.dir, id+".json")
}

// Save writes rec to <dir>/<id>.json, replacing any previous version.
func (s *FileStore) Save(rec *backup.Record) error {
	if err := ValidateID(rec.ID); err != nil {
		return err
	}

	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding record %s: %w", rec.ID, err)
	}
	if err := s.area.Write(s.path(rec.ID), data, metadataPerm); err != nil {
		return fmt.Errorf("writing record %s: %w", rec.ID, err)
	}
	return nil
}

// Load reads the record with the given id.
func (s *FileStore) Load(id string) (*backup.Record, error) {
	if err := ValidateID(id); err != nil {
		return nil, err
	}

	rec, err := s.read(s.path(id))
	if err != nil {
		return nil, err
	}
	if rec.ID != id {
		return nil, fmt.Errorf("%w: record file %s.json holds id %q", backup.ErrIntegrity, id, rec.ID)
	}
	return rec, nil
}

// Delete removes the record file. Missing records are not an error.
func (s *FileStore) Delete(id string) error {
	if err := ValidateID(id); err != nil {
		return err
	}
	if err := os.Remove(s.path(id)); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("deleting record %s: %w", id, err)
	}
	return nil
}

// ListAll reads every record file. Unreadable or malformed files are
// reported as problems and skipped.
func (s *FileStore) ListAll() ([]*backup.Record, []error, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, nil, fmt.Errorf("reading metadata directory: %w", err)
	}

	var (
		records  []*backup.Record
		problems []error
	)
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || strings.HasPrefix(name, ".") || filepath.Ext(name) != ".json" {
			continue
		}

		rec, err := s.read(filepath.Join(s.dir, name))
		if err != nil {
			if errors.Is(err, backup.ErrNotFound) {
				continue // deleted while listing
			}
			problems = append(problems, err)
			continue
		}
		records = append(records, rec)
	}
	return records, problems, nil
}

// IDs returns the ids of all record files without decoding them.
func (s *FileStore) IDs() ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("reading metadata directory: %w", err)
	}
	var ids []string
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || strings.HasPrefix(name, ".") || filepath.Ext(name) != ".json" {
			continue
		}
		ids = append(ids, strings.TrimSuffix(name, ".json"))
	}
	return ids, nil
}

func (s *FileStore) read(path string) (*backup.Record, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: record %s", backup.ErrNotFound, strings.TrimSuffix(filepath.Base(path), ".json"))
		}
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}

	var rec backup.Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("%w: decoding %s: %w", backup.ErrIntegrity, path, err)
	}
	return &rec, nil
}

var _ backup.Catalog = (*FileStore)(nil)
