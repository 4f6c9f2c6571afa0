package backup

import (
	"fmt"
	"path/filepath"
	"sort"
)

// sortNewestFirst orders records by creation time, newest first.
// Ties are broken by id so the order is stable across runs.
func sortNewestFirst(records []*Record) []*Record {
	sort.SliceStable(records, func(i, j int) bool {
		a, b := records[i], records[j]
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.After(b.CreatedAt)
		}
		return a.ID > b.ID
	})
	return records
}

// recordsFor lists the records of one source file, using the catalog's
// per-source listing when it has one.
func (e *Engine) recordsFor(sourcePath string) ([]*Record, []error, error) {
	if lister, ok := e.catalog.(SourceLister); ok {
		return lister.ListBySource(sourcePath)
	}

	all, problems, err := e.catalog.ListAll()
	if err != nil {
		return nil, nil, err
	}
	var records []*Record
	for _, rec := range all {
		if rec.SourcePath == sourcePath {
			records = append(records, rec)
		}
	}
	return records, problems, nil
}

// ListBackups returns the records matching filter, newest first.
// Unreadable records are skipped and returned as problems.
func (e *Engine) ListBackups(filter Filter) ([]*Record, []error, error) {
	var (
		records  []*Record
		problems []error
		err      error
	)
	if filter.SourcePath != "" {
		filter.SourcePath, err = filepath.Abs(filter.SourcePath)
		if err != nil {
			return nil, nil, opError("list", filter.SourcePath, "", fmt.Errorf("%w: %w", ErrInvalidArgument, err))
		}
		records, problems, err = e.recordsFor(filter.SourcePath)
	} else {
		records, problems, err = e.catalog.ListAll()
	}
	if err != nil {
		return nil, nil, opError("list", filter.SourcePath, "", err)
	}

	matched := make([]*Record, 0, len(records))
	for _, rec := range records {
		if filter.Match(rec) {
			matched = append(matched, rec)
		}
	}
	return sortNewestFirst(matched), problems, nil
}

// GetBackup returns the record with the given id.
func (e *Engine) GetBackup(id string) (*Record, error) {
	rec, err := e.catalog.Load(id)
	if err != nil {
		return nil, opError("get", "", id, err)
	}
	return rec, nil
}

// LatestBackup returns the newest restorable record of sourcePath.
func (e *Engine) LatestBackup(sourcePath string) (*Record, error) {
	records, _, err := e.ListBackups(Filter{SourcePath: sourcePath})
	if err != nil {
		return nil, err
	}
	for _, rec := range records {
		if rec.Status.Restorable() {
			return rec, nil
		}
	}
	return nil, opError("restore", sourcePath, "", fmt.Errorf("%w: no restorable backup", ErrNotFound))
}
