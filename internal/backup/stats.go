package backup

import (
	"fmt"
	"sort"
	"time"
)

// Statistics summarizes the catalog.
type Statistics struct {
	TotalBackups      int            `json:"total_backups"`
	TotalSize         int64          `json:"total_size"`
	TotalOriginalSize int64          `json:"total_original_size"`
	ByType            map[Type]int   `json:"by_type"`
	ByStatus          map[Status]int `json:"by_status"`
	OldestBackup      *time.Time     `json:"oldest_backup"`
	NewestBackup      *time.Time     `json:"newest_backup"`
	UniqueFiles       []string       `json:"unique_files"`
	UniqueFilesCount  int            `json:"unique_files_count"`
	// Skipped counts records that could not be read.
	Skipped int `json:"skipped_records"`
}

// GetStatistics aggregates every readable record. Unreadable records are
// counted in Skipped.
func (e *Engine) GetStatistics() (*Statistics, error) {
	records, problems, err := e.catalog.ListAll()
	if err != nil {
		return nil, opError("statistics", "", "", fmt.Errorf("listing records: %w", err))
	}
	for _, p := range problems {
		e.logger.Warn("skipping unreadable record", "error", p)
	}

	stats := &Statistics{
		ByType:      make(map[Type]int),
		ByStatus:    make(map[Status]int),
		UniqueFiles: []string{},
		Skipped:     len(problems),
	}

	files := make(map[string]bool)
	for _, rec := range records {
		stats.TotalBackups++
		stats.TotalSize += rec.BackupSize
		stats.TotalOriginalSize += rec.OriginalSize
		stats.ByType[rec.Type]++
		stats.ByStatus[rec.Status]++

		created := rec.CreatedAt
		if stats.OldestBackup == nil || created.Before(*stats.OldestBackup) {
			stats.OldestBackup = &created
		}
		if stats.NewestBackup == nil || created.After(*stats.NewestBackup) {
			newest := created
			stats.NewestBackup = &newest
		}

		if !files[rec.SourcePath] {
			files[rec.SourcePath] = true
			stats.UniqueFiles = append(stats.UniqueFiles, rec.SourcePath)
		}
	}

	sort.Strings(stats.UniqueFiles)
	stats.UniqueFilesCount = len(stats.UniqueFiles)
	return stats, nil
}
