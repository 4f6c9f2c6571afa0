// Package migrations holds the catalog index schema and applies it with
// golang-migrate.
package migrations

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

//go:embed files/*.sql
var schemaFiles embed.FS

const schemaDir = "files"

// ErrNoSchema means the index was never migrated.
var ErrNoSchema = errors.New("index has no schema version")

// State describes an index database relative to the embedded schema.
type State struct {
	Current uint
	Latest  uint
	Dirty   bool
}

// Inspect reports the schema version of db and the newest embedded version.
func Inspect(db *sql.DB) (State, error) {
	m, err := open(db)
	if err != nil {
		return State{}, err
	}
	// m is not closed: that would close db, which the caller owns.

	current, dirty, err := m.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		return State{}, ErrNoSchema
	}
	if err != nil {
		return State{}, fmt.Errorf("reading index schema version: %w", err)
	}

	src, err := iofs.New(schemaFiles, schemaDir)
	if err != nil {
		return State{}, fmt.Errorf("reading embedded schema: %w", err)
	}
	defer src.Close()

	latest, err := newest(src)
	if err != nil {
		return State{}, fmt.Errorf("finding newest schema version: %w", err)
	}
	return State{Current: current, Latest: latest, Dirty: dirty}, nil
}

// Check returns nil when db is exactly at the embedded schema version.
func Check(db *sql.DB) error {
	st, err := Inspect(db)
	if err != nil {
		return err
	}
	switch {
	case st.Dirty:
		return fmt.Errorf("index schema version %d is dirty, a previous migration failed", st.Current)
	case st.Current < st.Latest:
		return fmt.Errorf("index schema version %d is behind %d", st.Current, st.Latest)
	case st.Current > st.Latest:
		return fmt.Errorf("index schema version %d is newer than this binary supports (%d)", st.Current, st.Latest)
	}
	return nil
}

// Up applies pending migrations. It is a no-op on a current database.
func Up(db *sql.DB) error {
	m, err := open(db)
	if err != nil {
		return err
	}
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migrating index schema: %w", err)
	}
	return nil
}

func open(db *sql.DB) (*migrate.Migrate, error) {
	src, err := iofs.New(schemaFiles, schemaDir)
	if err != nil {
		return nil, fmt.Errorf("reading embedded schema: %w", err)
	}

	driver, err := sqlite3.WithInstance(db, &sqlite3.Config{})
	if err != nil {
		src.Close()
		return nil, fmt.Errorf("wrapping index database: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", src, "sqlite3", driver)
	if err != nil {
		src.Close()
		return nil, fmt.Errorf("preparing index migrations: %w", err)
	}
	return m, nil
}

// newest walks the source from its first version to the last.
func newest(src source.Driver) (uint, error) {
	v, err := src.First()
	if err != nil {
		return 0, err
	}
	for {
		next, err := src.Next(v)
		if err != nil {
			return v, nil
		}
		v = next
	}
}
