package database

import (
	"fmt"

	"cfgvault/internal/backup"
	"cfgvault/internal/config"
)

// NewCatalogFromConfig returns primary, or primary behind a SQLite index,
// depending on the catalog config's index type.
func NewCatalogFromConfig(cfg config.CatalogConfig, primary Primary) (backup.Catalog, error) {
	switch cfg.Index {
	case "", "none":
		return primary, nil
	case "sqlite":
		if cfg.IndexPath == "" {
			return nil, fmt.Errorf("sqlite index requires index_path to be set")
		}
		return openIndex(cfg.IndexPath, primary)
	case "memory":
		return openIndex(":memory:", primary)
	default:
		return nil, fmt.Errorf("unknown catalog index type: %s", cfg.Index)
	}
}

// openIndex keeps a failed open from returning a non-nil interface.
func openIndex(path string, primary Primary) (backup.Catalog, error) {
	idx, err := NewSQLiteIndex(path, primary)
	if err != nil {
		return nil, err
	}
	return idx, nil
}
