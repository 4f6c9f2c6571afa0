// Package mirror copies backup payloads and records to secondary storage.
// Both objects for a record are stored under one prefix:
//
//	<prefix>/settings/<payload file name>
//	<prefix>/metadata/<id>.json
package mirror

import (
	"fmt"
	"path"
	"path/filepath"

	"github.com/goccy/go-json"

	"cfgvault/internal/backup"
	"cfgvault/internal/config"
)

// PayloadKey returns the object key of rec's payload.
func PayloadKey(prefix string, rec *backup.Record) string {
	return path.Join(prefix, "settings", filepath.Base(rec.BackupPath))
}

// RecordKey returns the object key of rec's metadata.
func RecordKey(prefix string, rec *backup.Record) string {
	return path.Join(prefix, "metadata", rec.ID+".json")
}

func encodeRecord(rec *backup.Record) ([]byte, error) {
	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encoding record %s: %w", rec.ID, err)
	}
	return data, nil
}

// NewMirrorFromConfig creates a Mirror based on the mirror config type.
// It returns nil when mirroring is disabled.
func NewMirrorFromConfig(cfg config.MirrorConfig) (backup.Mirror, error) {
	switch cfg.Type {
	case "", "none":
		return nil, nil
	case "memory":
		return NewMemoryMirror(cfg.S3Prefix), nil
	case "s3":
		m, err := NewS3Mirror(cfg)
		if err != nil {
			return nil, err
		}
		return m, nil
	default:
		return nil, fmt.Errorf("unknown mirror type: %s", cfg.Type)
	}
}
