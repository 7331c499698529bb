// Package history keeps an operator-facing SQLite journal of agent sessions.
// The loop writes to it; nothing reads it back to make decisions.
package history

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"
	"unicode/utf8"

	_ "modernc.org/sqlite"
)

// StatusRunning marks a session that has started but not finished.
const StatusRunning = "RUNNING"

// excerptRunes bounds the stored payload.
const excerptRunes = 500

const schema = `
CREATE TABLE IF NOT EXISTS sessions (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	iteration   INTEGER NOT NULL,
	mode        TEXT    NOT NULL,
	status      TEXT    NOT NULL,
	payload     TEXT    NOT NULL DEFAULT '',
	started_at  INTEGER NOT NULL,
	ended_at    INTEGER
)`

// DefaultPath returns the journal location inside a project.
func DefaultPath(projectDir string) string {
	return filepath.Join(projectDir, ".loopwatch", "history.db")
}

// Record is one journaled session.
type Record struct {
	ID        int64
	Iteration int
	Mode      string
	Status    string
	Payload   string
	StartedAt time.Time
	EndedAt   time.Time // zero while running
}

// Duration is how long the session ran, or zero while running.
func (r Record) Duration() time.Duration {
	if r.EndedAt.IsZero() {
		return 0
	}
	return r.EndedAt.Sub(r.StartedAt)
}

// DB is an open journal.
type DB struct {
	db  *sql.DB
	now func() time.Time
}

// Open opens or creates the journal at path.
func Open(ctx context.Context, path string) (*DB, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return nil, fmt.Errorf("history: create directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("history: open: %w", err)
	}
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close() //nolint:errcheck // best-effort cleanup on error
		return nil, fmt.Errorf("history: create table: %w", err)
	}
	return &DB{db: db, now: time.Now}, nil
}

// Close closes the journal.
func (d *DB) Close() error {
	return d.db.Close()
}

// Start records a session that is about to run and returns its id.
func (d *DB) Start(ctx context.Context, iteration int, mode string) (int64, error) {
	res, err := d.db.ExecContext(ctx,
		"INSERT INTO sessions (iteration, mode, status, started_at) VALUES (?, ?, ?, ?)",
		iteration, mode, StatusRunning, d.now().UnixMilli(),
	)
	if err != nil {
		return 0, fmt.Errorf("history: start session: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("history: session id: %w", err)
	}
	return id, nil
}

// Finish records how session id ended.
func (d *DB) Finish(ctx context.Context, id int64, status, payload string) error {
	res, err := d.db.ExecContext(ctx,
		"UPDATE sessions SET status = ?, payload = ?, ended_at = ? WHERE id = ?",
		status, excerpt(payload), d.now().UnixMilli(), id,
	)
	if err != nil {
		return fmt.Errorf("history: finish session: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("history: session %d not found", id)
	}
	return nil
}

// Recent returns up to limit sessions, newest first.
func (d *DB) Recent(ctx context.Context, limit int) ([]Record, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := d.db.QueryContext(ctx,
		"SELECT id, iteration, mode, status, payload, started_at, ended_at FROM sessions ORDER BY id DESC LIMIT ?",
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("history: query: %w", err)
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		var (
			r       Record
			started int64
			ended   sql.NullInt64
		)
		if err := rows.Scan(&r.ID, &r.Iteration, &r.Mode, &r.Status, &r.Payload, &started, &ended); err != nil {
			return nil, fmt.Errorf("history: scan: %w", err)
		}
		r.StartedAt = time.UnixMilli(started)
		if ended.Valid {
			r.EndedAt = time.UnixMilli(ended.Int64)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("history: query: %w", err)
	}
	return out, nil
}

func excerpt(s string) string {
	if utf8.RuneCountInString(s) <= excerptRunes {
		return s
	}
	return string([]rune(s)[:excerptRunes]) + "..."
}
