// Package database provides the SQLite catalog index. The index answers
// list queries without scanning every record file; the record files stay
// authoritative and the index can always be rebuilt from them.
package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/goccy/go-json"

	"cfgvault/internal/backup"
	"cfgvault/internal/database/migrations"

	_ "github.com/mattn/go-sqlite3" // SQLite driver
)

// Primary is the authoritative record store the index mirrors.
type Primary interface {
	backup.Catalog
	// IDs lists record ids without decoding the records.
	IDs() ([]string, error)
}

// modTimer is implemented by primaries that can report when their contents
// last changed. The index stores that time after every sync and rebuilds on
// open when it differs, which catches edits made while the index was off.
type modTimer interface {
	ModTime() (time.Time, error)
}

// SQLiteIndex implements backup.Catalog by pairing a primary store with a
// SQLite table of the same records. Writes go to the primary first and then
// to the index; Load always reads the primary.
type SQLiteIndex struct {
	db      *sql.DB
	primary Primary
	path    string
}

var (
	_ backup.Catalog      = (*SQLiteIndex)(nil)
	_ backup.SourceLister = (*SQLiteIndex)(nil)
)

// NewSQLiteIndex opens (creating if needed) the index at path, migrates it
// and rebuilds it from primary when the two disagree on the record count.
// path can be a file path or ":memory:".
func NewSQLiteIndex(path string, primary Primary) (*SQLiteIndex, error) {
	db, err := OpenConnection(path)
	if err != nil {
		return nil, err
	}

	if err := migrations.Up(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrating catalog index: %w", err)
	}

	idx := &SQLiteIndex{db: db, primary: primary, path: path}
	if err := idx.syncIfStale(); err != nil {
		db.Close()
		return nil, err
	}
	return idx, nil
}

// OpenConnection opens and configures a SQLite database connection with appropriate PRAGMAs.
// path can be a file path or ":memory:" for in-memory database.
func OpenConnection(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// One connection: SQLite has a single writer, and an in-memory database
	// exists per connection.
	db.SetMaxOpenConns(1)

	pragmas := []string{
		"PRAGMA foreign_keys = ON",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to apply %q: %w", p, err)
		}
	}

	return db, nil
}

// CheckMigrations verifies the index schema is at the latest version.
func (s *SQLiteIndex) CheckMigrations() error {
	return migrations.Check(s.db)
}

// syncIfStale rebuilds the index when its row count differs from the
// number of record files, or when the primary changed after the index last
// synced with it. Both happen after a crash between the two writes, after
// a run with the index turned off, or when record files are edited by hand.
func (s *SQLiteIndex) syncIfStale() error {
	ids, err := s.primary.IDs()
	if err != nil {
		return fmt.Errorf("listing primary records: %w", err)
	}
	n, err := s.Count()
	if err != nil {
		return err
	}
	stale := n != len(ids)
	if !stale {
		current, ok, err := s.primaryStamp()
		if err != nil {
			return err
		}
		if ok {
			stored, found, err := s.storedStamp()
			if err != nil {
				return err
			}
			stale = !found || stored != current
		}
	}
	if !stale {
		return nil
	}
	if _, err := s.Rebuild(); err != nil {
		return fmt.Errorf("rebuilding catalog index: %w", err)
	}
	return nil
}

// primaryStamp returns the primary's modification time in nanoseconds, or
// false when the primary cannot report one.
func (s *SQLiteIndex) primaryStamp() (int64, bool, error) {
	mt, ok := s.primary.(modTimer)
	if !ok {
		return 0, false, nil
	}
	t, err := mt.ModTime()
	if err != nil {
		return 0, false, fmt.Errorf("reading primary modification time: %w", err)
	}
	return t.UnixNano(), true, nil
}

func (s *SQLiteIndex) storedStamp() (int64, bool, error) {
	var stamp int64
	err := s.db.QueryRowContext(context.Background(), "SELECT primary_mtime FROM index_state WHERE id = 1").Scan(&stamp)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("reading index watermark: %w", err)
	}
	return stamp, true, nil
}

func (s *SQLiteIndex) storeStamp(ctx context.Context, db execer, stamp int64) error {
	_, err := db.ExecContext(ctx, `
		INSERT INTO index_state (id, primary_mtime) VALUES (1, ?)
		ON CONFLICT(id) DO UPDATE SET primary_mtime = excluded.primary_mtime`, stamp)
	if err != nil {
		return fmt.Errorf("writing index watermark: %w", err)
	}
	return nil
}

// markSynced records that the index reflects the primary as of now.
func (s *SQLiteIndex) markSynced() error {
	stamp, ok, err := s.primaryStamp()
	if err != nil || !ok {
		return err
	}
	return s.storeStamp(context.Background(), s.db, stamp)
}

// Count returns the number of indexed records.
func (s *SQLiteIndex) Count() (int, error) {
	var n int
	if err := s.db.QueryRowContext(context.Background(), "SELECT COUNT(*) FROM records").Scan(&n); err != nil {
		return 0, fmt.Errorf("counting indexed records: %w", err)
	}
	return n, nil
}

// Rebuild replaces the index contents with the primary's records and
// returns the primary's unreadable records.
func (s *SQLiteIndex) Rebuild() ([]error, error) {
	// Taken before listing, so a write racing the rebuild leaves the
	// watermark behind and triggers another rebuild on the next open.
	stamp, hasStamp, err := s.primaryStamp()
	if err != nil {
		return nil, err
	}
	records, problems, err := s.primary.ListAll()
	if err != nil {
		return nil, fmt.Errorf("listing primary records: %w", err)
	}

	ctx := context.Background()
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "DELETE FROM records"); err != nil {
		return nil, fmt.Errorf("clearing index: %w", err)
	}
	for _, rec := range records {
		if err := upsert(ctx, tx, rec); err != nil {
			return nil, err
		}
	}
	if hasStamp {
		if err := s.storeStamp(ctx, tx, stamp); err != nil {
			return nil, err
		}
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing index rebuild: %w", err)
	}
	return problems, nil
}

// Save writes rec to the primary, then indexes it. A failed index write
// leaves the index stale until the next open or Rebuild.
func (s *SQLiteIndex) Save(rec *backup.Record) error {
	if err := s.primary.Save(rec); err != nil {
		return err
	}
	if err := upsert(context.Background(), s.db, rec); err != nil {
		return err
	}
	return s.markSynced()
}

// Load reads the record from the primary store.
func (s *SQLiteIndex) Load(id string) (*backup.Record, error) {
	return s.primary.Load(id)
}

// Delete removes the record from the primary, then from the index.
func (s *SQLiteIndex) Delete(id string) error {
	if err := s.primary.Delete(id); err != nil {
		return err
	}
	if _, err := s.db.ExecContext(context.Background(), "DELETE FROM records WHERE id = ?", id); err != nil {
		return fmt.Errorf("unindexing record %s: %w", id, err)
	}
	return s.markSynced()
}

// ListAll returns every indexed record. Primary records that cannot be
// read and rows that fail to decode are reported as problems.
func (s *SQLiteIndex) ListAll() ([]*backup.Record, []error, error) {
	return s.query("SELECT body FROM records ORDER BY created_at DESC, id DESC")
}

// ListBySource returns the indexed records of one source file. An
// unreadable primary record is reported here too, since its source is
// unknown.
func (s *SQLiteIndex) ListBySource(sourcePath string) ([]*backup.Record, []error, error) {
	return s.query("SELECT body FROM records WHERE source_path = ? ORDER BY created_at DESC, id DESC", sourcePath)
}

// ListByStatus returns the indexed records in the given state.
func (s *SQLiteIndex) ListByStatus(status backup.Status) ([]*backup.Record, []error, error) {
	return s.query("SELECT body FROM records WHERE status = ? ORDER BY created_at DESC, id DESC", string(status))
}

// reconcile aligns the index rows with the primary's ids. Ids missing from
// the index are loaded and indexed; rows whose id the primary no longer has
// are dropped. A primary record that cannot be loaded is returned as a
// problem so callers see it just as they would without the index.
func (s *SQLiteIndex) reconcile(ctx context.Context) ([]error, error) {
	ids, err := s.primary.IDs()
	if err != nil {
		return nil, fmt.Errorf("listing primary records: %w", err)
	}

	indexed := make(map[string]bool)
	rows, err := s.db.QueryContext(ctx, "SELECT id FROM records")
	if err != nil {
		return nil, fmt.Errorf("listing indexed ids: %w", err)
	}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scanning indexed id: %w", err)
		}
		indexed[id] = true
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating indexed ids: %w", err)
	}

	var problems []error
	for _, id := range ids {
		if indexed[id] {
			delete(indexed, id)
			continue
		}
		rec, err := s.primary.Load(id)
		if errors.Is(err, backup.ErrNotFound) {
			continue
		}
		if err != nil {
			problems = append(problems, fmt.Errorf("record %s: %w", id, err))
			continue
		}
		if err := upsert(ctx, s.db, rec); err != nil {
			return nil, err
		}
	}
	for id := range indexed {
		if _, err := s.db.ExecContext(ctx, "DELETE FROM records WHERE id = ?", id); err != nil {
			return nil, fmt.Errorf("unindexing record %s: %w", id, err)
		}
	}
	return problems, nil
}

func (s *SQLiteIndex) query(q string, args ...any) ([]*backup.Record, []error, error) {
	ctx := context.Background()
	problems, err := s.reconcile(ctx)
	if err != nil {
		return nil, nil, err
	}

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, nil, fmt.Errorf("querying index: %w", err)
	}
	defer rows.Close()

	var records []*backup.Record
	for rows.Next() {
		var body string
		if err := rows.Scan(&body); err != nil {
			return nil, nil, fmt.Errorf("scanning index row: %w", err)
		}
		var rec backup.Record
		if err := json.Unmarshal([]byte(body), &rec); err != nil {
			problems = append(problems, fmt.Errorf("%w: decoding indexed record: %w", backup.ErrIntegrity, err))
			continue
		}
		records = append(records, &rec)
	}
	if err := rows.Err(); err != nil {
		return nil, nil, fmt.Errorf("iterating index rows: %w", err)
	}
	return records, problems, nil
}

// Close closes the database connection.
func (s *SQLiteIndex) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("closing catalog index: %w", err)
	}
	return nil
}

// execer is satisfied by *sql.DB and *sql.Tx.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func upsert(ctx context.Context, db execer, rec *backup.Record) error {
	body, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encoding record %s: %w", rec.ID, err)
	}

	_, err = db.ExecContext(ctx, `
		INSERT INTO records (id, source_path, backup_type, status, created_at, body)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			source_path = excluded.source_path,
			backup_type = excluded.backup_type,
			status      = excluded.status,
			created_at  = excluded.created_at,
			body        = excluded.body`,
		rec.ID, rec.SourcePath, string(rec.Type), string(rec.Status), rec.CreatedAt.UnixNano(), string(body))
	if err != nil {
		return fmt.Errorf("indexing record %s: %w", rec.ID, err)
	}
	return nil
}
