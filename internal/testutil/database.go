package testutil

import (
	"testing"

	"cfgvault/internal/catalog"
	"cfgvault/internal/database"
)

// NewTestIndex creates an in-memory SQLite catalog index over an in-memory
// record store. The index is automatically closed when the test completes.
func NewTestIndex(t *testing.T) *database.SQLiteIndex {
	t.Helper()

	idx, err := database.NewSQLiteIndex(":memory:", catalog.NewMemoryStore())
	if err != nil {
		t.Fatalf("failed to open catalog index: %v", err)
	}
	t.Cleanup(func() {
		idx.Close()
	})
	return idx
}
