package backup

// Catalog is the Metadata Store: it persists one Record per backup id.
type Catalog interface {
	// Save creates or replaces the record with rec.ID.
	Save(rec *Record) error

	// Load returns the record with the given id.
	// Unknown ids fail with an error matching ErrNotFound; malformed ids
	// fail with ErrInvalidArgument.
	Load(id string) (*Record, error)

	// Delete removes the record. Deleting a missing record succeeds.
	Delete(id string) error

	// ListAll returns every readable record. Records that cannot be read are
	// reported in problems and skipped; err is reserved for failures that
	// prevent listing at all.
	ListAll() (records []*Record, problems []error, err error)
}

// SourceLister is implemented by catalogs that can list the records of one
// source file without scanning the whole catalog.
type SourceLister interface {
	ListBySource(sourcePath string) (records []*Record, problems []error, err error)
}

// Mirror copies records and payloads to secondary storage.
// Mirror failures never affect local state.
type Mirror interface {
	Push(rec *Record, payload []byte) error
	Remove(rec *Record) error
}
