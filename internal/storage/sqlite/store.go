// Package sqlite implements the storage port on SQLite via the pure-Go
// modernc.org/sqlite driver. It is the reference backend: a single
// file (or shared-cache memory database) holding the vertex tables and
// one edge table.
//
// File layout:
//   - store.go: Store struct, New, lifecycle, time helpers
//   - schema.go: DDL
//   - entities.go, assertions.go, events.go, runs.go, sources.go:
//     one file per vertex family
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/weftdb/weft/internal/idgen"
	"github.com/weftdb/weft/internal/storage"
)

// Store implements storage.Storage on SQLite.
type Store struct {
	db    *sql.DB
	path  string
	clock idgen.Clock
}

var _ storage.Storage = (*Store)(nil)

// New opens (and initializes) the database at path. ":memory:" opens a
// process-shared in-memory database, used heavily in tests.
func New(ctx context.Context, path string) (*Store, error) {
	if path != ":memory:" && !strings.HasPrefix(path, "file:") {
		if dir := filepath.Dir(path); dir != "." {
			if err := os.MkdirAll(dir, 0o750); err != nil {
				return nil, fmt.Errorf("create database directory: %w", err)
			}
		}
	}

	db, err := sql.Open("sqlite", storage.SQLiteConnString(path))
	if err != nil {
		return nil, storage.Unavailable("open sqlite", err)
	}

	// In-memory databases are isolated per connection unless the cache
	// is shared; a single connection keeps writes visible everywhere.
	if path == ":memory:" || strings.Contains(path, "mode=memory") {
		db.SetMaxOpenConns(1)
		db.SetMaxIdleConns(1)
	} else {
		// WAL supports one writer plus concurrent readers; bound the
		// pool so write contention doesn't pile up goroutines.
		db.SetMaxOpenConns(runtime.NumCPU() + 1)
	}

	s := &Store{db: db, path: path, clock: idgen.WallClock{}}
	if err := s.init(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) init(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return storage.Unavailable("apply schema", err)
	}
	return nil
}

// SetClock overrides the timestamp source, for tests.
func (s *Store) SetClock(c idgen.Clock) { s.clock = c }

// Path returns the database path the store was opened with.
func (s *Store) Path() string { return s.path }

// Ping verifies the database answers.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return storage.Unavailable("ping", err)
	}
	return nil
}

// Close releases the connection pool.
func (s *Store) Close() error { return s.db.Close() }

// Timestamps are stored as RFC 3339 text in UTC; lexicographic order
// matches chronological order, which the run listing relies on.
const timeLayout = time.RFC3339Nano

func fmtTime(t time.Time) string { return t.UTC().Format(timeLayout) }

func fmtNullTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return fmtTime(*t)
}

func parseTime(s string) (time.Time, error) {
	return time.Parse(timeLayout, s)
}

func parseNullTime(ns sql.NullString) (*time.Time, error) {
	if !ns.Valid {
		return nil, nil
	}
	t, err := parseTime(ns.String)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func nullStr(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func strOrEmpty(ns sql.NullString) string {
	if !ns.Valid {
		return ""
	}
	return ns.String
}
