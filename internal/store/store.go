// Package store persists reminders and notes in a local SQLite file.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

// ErrEmptyText is returned when a reminder or note has no content.
var ErrEmptyText = errors.New("text must not be empty")

// Reminder is one scheduled announcement. Times are UTC, second precision.
type Reminder struct {
	ID        int64
	Text      string
	Due       time.Time
	CreatedAt time.Time
	Done      bool
}

// Store wraps a *sql.DB. Each operation is a single self-contained statement,
// so the scanner and command handler can interleave freely.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

// Open creates the parent directory, opens the database, and runs migrations.
func Open(ctx context.Context, path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("store path is empty")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("create store directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping store: %w", err)
	}

	// One connection serializes writers.
	db.SetMaxOpenConns(1)

	s := &Store{db: db, now: time.Now}
	if err := s.migrate(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrate store: %w", err)
	}
	return s, nil
}

func (s *Store) migrate(ctx context.Context) error {
	schema := `
	PRAGMA journal_mode=WAL;
	PRAGMA busy_timeout=5000;

	CREATE TABLE IF NOT EXISTS reminders (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		text TEXT NOT NULL,
		time_utc INTEGER NOT NULL,
		created_at INTEGER NOT NULL,
		done INTEGER NOT NULL DEFAULT 0
	);

	CREATE INDEX IF NOT EXISTS idx_reminders_due ON reminders(done, time_utc);

	CREATE TABLE IF NOT EXISTS notes (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		content TEXT NOT NULL,
		created_at INTEGER NOT NULL
	);
	`
	_, err := s.db.ExecContext(ctx, schema)
	return err
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Ping verifies the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// AddReminder stores a reminder due at the given instant and returns its id.
func (s *Store) AddReminder(ctx context.Context, text string, due time.Time) (int64, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return 0, ErrEmptyText
	}

	res, err := s.db.ExecContext(ctx,
		"INSERT INTO reminders(text, time_utc, created_at, done) VALUES(?, ?, ?, 0)",
		text, due.UTC().Unix(), s.now().UTC().Unix(),
	)
	if err != nil {
		return 0, fmt.Errorf("add reminder: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("add reminder: %w", err)
	}
	return id, nil
}

// DueReminders returns not-done reminders due at or before now, oldest first.
func (s *Store) DueReminders(ctx context.Context, now time.Time) ([]Reminder, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT id, text, time_utc, created_at FROM reminders WHERE done = 0 AND time_utc <= ? ORDER BY time_utc ASC, id ASC",
		now.UTC().Unix(),
	)
	if err != nil {
		return nil, fmt.Errorf("query due reminders: %w", err)
	}
	defer rows.Close()

	var out []Reminder
	for rows.Next() {
		var (
			r         Reminder
			due       int64
			createdAt int64
		)
		if err := rows.Scan(&r.ID, &r.Text, &due, &createdAt); err != nil {
			return nil, fmt.Errorf("scan reminder: %w", err)
		}
		r.Due = time.Unix(due, 0).UTC()
		r.CreatedAt = time.Unix(createdAt, 0).UTC()
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate reminders: %w", err)
	}
	return out, nil
}

// MarkReminderDone retires a reminder. Unknown ids are a no-op.
func (s *Store) MarkReminderDone(ctx context.Context, id int64) error {
	if _, err := s.db.ExecContext(ctx, "UPDATE reminders SET done = 1 WHERE id = ?", id); err != nil {
		return fmt.Errorf("mark reminder %d done: %w", id, err)
	}
	return nil
}

// AddNote stores a free-form note and returns its id.
func (s *Store) AddNote(ctx context.Context, content string) (int64, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return 0, ErrEmptyText
	}

	res, err := s.db.ExecContext(ctx,
		"INSERT INTO notes(content, created_at) VALUES(?, ?)",
		content, s.now().UTC().Unix(),
	)
	if err != nil {
		return 0, fmt.Errorf("add note: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("add note: %w", err)
	}
	return id, nil
}

// PendingReminderCount reports reminders not yet announced.
func (s *Store) PendingReminderCount(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM reminders WHERE done = 0").Scan(&n); err != nil {
		return 0, fmt.Errorf("count reminders: %w", err)
	}
	return n, nil
}
