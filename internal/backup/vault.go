package backup

import (
	"io/fs"
	"time"
)

// StoredPayload describes a payload file found in a Vault.
type StoredPayload struct {
	Path    string
	Size    int64
	ModTime time.Time
}

// Vault stores backup payloads. Payloads are addressed by the absolute
// path returned from Put, which is what records keep in BackupPath.
type Vault interface {
	// Put stores data under name and returns the payload's absolute path.
	// The write is atomic: a reader never observes a partially written payload.
	Put(name string, data []byte, perm fs.FileMode) (string, error)

	// Get returns the payload stored at path.
	// Missing payloads fail with an error matching ErrNotFound.
	Get(path string) ([]byte, error)

	// Delete removes the payload at path. Deleting a missing payload succeeds.
	// Paths outside the vault are rejected with ErrInvalidArgument.
	Delete(path string) error

	// List returns every payload currently stored.
	List() ([]StoredPayload, error)
}
