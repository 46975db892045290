// Package mysql implements the storage port on MySQL 8 via
// go-sql-driver/mysql. Timestamps are DATETIME(6) in UTC and the DSN
// is forced to parseTime so rows scan straight into time.Time.
//
// Transient connection errors retry with exponential backoff; a
// freshly started MySQL container answers the TCP dial long before it
// accepts queries.
package mysql

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	gomysql "github.com/go-sql-driver/mysql"

	"github.com/weftdb/weft/internal/idgen"
	"github.com/weftdb/weft/internal/storage"
)

// Store implements storage.Storage on MySQL.
type Store struct {
	db    *sql.DB
	clock idgen.Clock
}

var _ storage.Storage = (*Store)(nil)

// New connects to the database named in dsn, waits for it to answer,
// and applies the schema.
func New(ctx context.Context, dsn string) (*Store, error) {
	cfg, err := gomysql.ParseDSN(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse mysql dsn: %w", err)
	}
	cfg.ParseTime = true
	if cfg.Loc == nil || cfg.Loc == time.Local {
		cfg.Loc = time.UTC
	}

	db, err := sql.Open("mysql", cfg.FormatDSN())
	if err != nil {
		return nil, storage.Unavailable("open mysql", err)
	}
	db.SetMaxOpenConns(16)
	db.SetConnMaxLifetime(5 * time.Minute)

	s := &Store{db: db, clock: idgen.WallClock{}}
	if err := s.withRetry(ctx, func() error { return db.PingContext(ctx) }); err != nil {
		db.Close()
		return nil, storage.Unavailable("ping mysql", err)
	}
	if err := s.init(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) init(ctx context.Context) error {
	for _, stmt := range schemaStatements {
		if _, err := s.execContext(ctx, stmt); err != nil {
			return storage.Unavailable("apply schema", err)
		}
	}
	return nil
}

// SetClock overrides the timestamp source, for tests.
func (s *Store) SetClock(c idgen.Clock) { s.clock = c }

// Ping verifies the database answers.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return storage.Unavailable("ping", err)
	}
	return nil
}

// Close releases the connection pool.
func (s *Store) Close() error { return s.db.Close() }

func nullStr(v string) any {
	if v == "" {
		return nil
	}
	return v
}

func strOrEmpty(ns sql.NullString) string {
	if !ns.Valid {
		return ""
	}
	return ns.String
}

func nullTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC()
}

func timePtr(nt sql.NullTime) *time.Time {
	if !nt.Valid {
		return nil
	}
	t := nt.Time.UTC()
	return &t
}

type rowScanner interface {
	Scan(dest ...any) error
}
