package database

import (
	"path/filepath"
	"testing"

	"cfgvault/internal/config"
)

func TestNewCatalogFromConfig(t *testing.T) {
	tests := []struct {
		name      string
		cfg       config.CatalogConfig
		wantIndex bool
		wantErr   bool
	}{
		{name: "no index", cfg: config.CatalogConfig{Index: "none"}},
		{name: "empty index type", cfg: config.CatalogConfig{}},
		{name: "memory index", cfg: config.CatalogConfig{Index: "memory"}, wantIndex: true},
		{name: "sqlite index", cfg: config.CatalogConfig{Index: "sqlite", IndexPath: "index.db"}, wantIndex: true},
		{name: "sqlite without path", cfg: config.CatalogConfig{Index: "sqlite"}, wantErr: true},
		{name: "unknown type", cfg: config.CatalogConfig{Index: "postgres"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			primary := newTestPrimary(t)
			if tt.cfg.IndexPath != "" {
				tt.cfg.IndexPath = filepath.Join(t.TempDir(), tt.cfg.IndexPath)
			}

			got, err := NewCatalogFromConfig(tt.cfg, primary)
			if (err != nil) != tt.wantErr {
				t.Fatalf("NewCatalogFromConfig() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				if got != nil {
					t.Error("NewCatalogFromConfig() should return nil on error")
				}
				return
			}

			idx, isIndex := got.(*SQLiteIndex)
			if isIndex != tt.wantIndex {
				t.Errorf("NewCatalogFromConfig() returned %T", got)
			}
			if isIndex {
				idx.Close()
			}
		})
	}
}
