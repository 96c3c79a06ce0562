// Package audit persists security sentence outcomes to SQLite.
package audit

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"aegis/internal/security"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS outcomes (
	id       INTEGER PRIMARY KEY AUTOINCREMENT,
	run_id   TEXT NOT NULL,
	at       INTEGER NOT NULL,
	mode     TEXT NOT NULL,
	phrase   TEXT NOT NULL,
	ok       INTEGER NOT NULL,
	stub     INTEGER NOT NULL,
	result   TEXT NOT NULL DEFAULT '',
	error    TEXT NOT NULL DEFAULT '',
	line     INTEGER NOT NULL DEFAULT 0,
	col      INTEGER NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS outcomes_run ON outcomes(run_id);
`

// Entry is one stored outcome.
type Entry struct {
	ID     int64
	RunID  string
	At     time.Time
	security.AuditRecord
}

// Store records outcomes for a single run. Each Open gets a fresh run id.
type Store struct {
	db    *sql.DB
	runID string
	now   func() time.Time
}

type Option func(*Store)

func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// Open opens (or creates) the database at path. ":memory:" works for tests.
func Open(ctx context.Context, path string, opts ...Option) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open audit database: %w", err)
	}
	// one connection keeps ":memory:" databases intact and serializes writes
	db.SetMaxOpenConns(1)
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping audit database: %w", err)
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create audit schema: %w", err)
	}
	s := &Store{db: db, runID: uuid.NewString(), now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

func (s *Store) RunID() string { return s.runID }

func (s *Store) Close() error { return s.db.Close() }

var _ security.Auditor = (*Store)(nil)

func (s *Store) Record(ctx context.Context, rec security.AuditRecord) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO outcomes (run_id, at, mode, phrase, ok, stub, result, error, line, col)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		s.runID, s.now().UnixNano(), string(rec.Mode), rec.Phrase,
		boolInt(rec.OK), boolInt(rec.Stub), rec.Result, rec.Error, rec.Line, rec.Column)
	if err != nil {
		return fmt.Errorf("audit insert failed: %w", err)
	}
	return nil
}

// Recent returns up to limit entries across all runs, newest first.
func (s *Store) Recent(ctx context.Context, limit int) ([]Entry, error) {
	return s.query(ctx,
		`SELECT id, run_id, at, mode, phrase, ok, stub, result, error, line, col
		 FROM outcomes ORDER BY id DESC LIMIT ?`, limit)
}

// Run returns the entries of one run in the order they were recorded.
func (s *Store) Run(ctx context.Context, runID string) ([]Entry, error) {
	return s.query(ctx,
		`SELECT id, run_id, at, mode, phrase, ok, stub, result, error, line, col
		 FROM outcomes WHERE run_id = ? ORDER BY id`, runID)
}

func (s *Store) query(ctx context.Context, q string, args ...any) ([]Entry, error) {
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("audit query failed: %w", err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var (
			e        Entry
			at       int64
			mode     string
			ok, stub int
		)
		if err := rows.Scan(&e.ID, &e.RunID, &at, &mode, &e.Phrase, &ok, &stub,
			&e.Result, &e.Error, &e.Line, &e.Column); err != nil {
			return nil, err
		}
		e.At = time.Unix(0, at)
		e.Mode = security.Mode(mode)
		e.OK = ok != 0
		e.Stub = stub != 0
		out = append(out, e)
	}
	return out, rows.Err()
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
