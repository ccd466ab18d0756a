// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package history

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite" // Pure Go driver
)

// timeLayout has fixed width so started_at sorts as text.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// ErrClosed is returned by operations on a closed store.
var ErrClosed = errors.New("history: store closed")

// Store persists session reports in SQLite.
type Store struct {
	db   *sql.DB
	keep int
}

// Open creates or opens the database at path. keep bounds the number of
// retained sessions; zero keeps everything.
func Open(path string, keep int) (*Store, error) {
	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(%d)&_pragma=synchronous(NORMAL)",
		path, (5 * time.Second).Milliseconds())

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open history database: %w", err)
	}
	// A single writer keeps SQLite from reporting busy under WAL.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping history database: %w", err)
	}

	s := &Store{db: db, keep: keep}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return s, nil
}

// Ping checks that the database still answers.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS sessions (
		session_id TEXT PRIMARY KEY,
		stream_id TEXT NOT NULL,
		direction TEXT NOT NULL CHECK(direction IN ('input', 'output')),
		driver TEXT NOT NULL,
		format TEXT NOT NULL,
		started_at TEXT NOT NULL,
		duration_ns INTEGER NOT NULL,
		frames INTEGER NOT NULL DEFAULT 0,
		bytes INTEGER NOT NULL DEFAULT 0,
		commands INTEGER NOT NULL DEFAULT 0,
		reopens INTEGER NOT NULL DEFAULT 0,
		final_state TEXT NOT NULL,
		error TEXT NOT NULL DEFAULT ''
	);

	CREATE INDEX IF NOT EXISTS idx_sessions_started_at ON sessions(started_at);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Record stores r and prunes sessions beyond the retention limit.
func (s *Store) Record(ctx context.Context, r Report) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return s.wrap("begin", err)
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO sessions (session_id, stream_id, direction, driver, format, started_at,
			duration_ns, frames, bytes, commands, reopens, final_state, error)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(session_id) DO UPDATE SET
			stream_id = excluded.stream_id,
			duration_ns = excluded.duration_ns,
			frames = excluded.frames,
			bytes = excluded.bytes,
			commands = excluded.commands,
			reopens = excluded.reopens,
			final_state = excluded.final_state,
			error = excluded.error`,
		r.SessionID, r.StreamID, r.Direction, r.Driver, r.Format,
		r.StartedAt.UTC().Format(timeLayout), int64(r.Duration),
		r.Frames, r.Bytes, r.Commands, r.Reopens, r.FinalState, r.Error)
	if err != nil {
		return s.wrap("insert session", err)
	}

	if s.keep > 0 {
		_, err = tx.ExecContext(ctx, `
			DELETE FROM sessions WHERE session_id NOT IN (
				SELECT session_id FROM sessions ORDER BY started_at DESC LIMIT ?
			)`, s.keep)
		if err != nil {
			return s.wrap("prune sessions", err)
		}
	}
	return s.wrap("commit", tx.Commit())
}

// List returns up to limit sessions, newest first.
func (s *Store) List(ctx context.Context, limit int) ([]Report, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT session_id, stream_id, direction, driver, format, started_at,
			duration_ns, frames, bytes, commands, reopens, final_state, error
		FROM sessions ORDER BY started_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, s.wrap("query sessions", err)
	}
	defer rows.Close()

	var out []Report
	for rows.Next() {
		var (
			r        Report
			started  string
			duration int64
		)
		if err := rows.Scan(&r.SessionID, &r.StreamID, &r.Direction, &r.Driver, &r.Format, &started,
			&duration, &r.Frames, &r.Bytes, &r.Commands, &r.Reopens, &r.FinalState, &r.Error); err != nil {
			return nil, fmt.Errorf("scan session row: %w", err)
		}
		if r.StartedAt, err = time.Parse(timeLayout, started); err != nil {
			return nil, fmt.Errorf("parse started_at %q: %w", started, err)
		}
		r.Duration = time.Duration(duration)
		out = append(out, r)
	}
	return out, rows.Err()
}

// Count returns the number of stored sessions.
func (s *Store) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM sessions`).Scan(&n); err != nil {
		return 0, s.wrap("count sessions", err)
	}
	return n, nil
}

func (s *Store) wrap(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrConnDone) || err.Error() == "sql: database is closed" {
		return fmt.Errorf("%s: %w", op, ErrClosed)
	}
	return fmt.Errorf("%s: %w", op, err)
}
