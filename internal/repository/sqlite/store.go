// Package sqlite implements the repository interfaces on an embedded SQLite
// database. It backs local development and tests.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/spec-kit/helpdesk-service/internal/repository"
)

// timeLayout sorts lexicographically, which the opened_at range queries rely on.
const timeLayout = "2006-01-02 15:04:05.000000000"

// DB wraps the SQLite handle shared by every repository.
type DB struct {
	db *sql.DB
}

// Open opens (or creates) a SQLite database and runs migrations.
func Open(path string) (*DB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("sqlite store: open: %w", err)
	}
	// A single connection serializes writers and avoids SQLITE_BUSY.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite store: wal: %w", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite store: foreign keys: %w", err)
	}

	s := &DB{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// Close releases the database handle.
func (s *DB) Close() error {
	return s.db.Close()
}

// Ping verifies the database is reachable.
func (s *DB) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Store returns every repository backed by this database.
func (s *DB) Store() *repository.Store {
	return &repository.Store{
		Tickets:    &TicketRepository{db: s.db},
		Users:      &UserRepository{db: s.db},
		Contacts:   &ContactRepository{db: s.db},
		Activities: &ActivityRepository{db: s.db},
		Scheduled:  &ScheduledActivityRepository{db: s.db},
		History:    &HistoryRepository{db: s.db},
	}
}

func (s *DB) migrate() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS contacts (
			id         TEXT PRIMARY KEY,
			name       TEXT NOT NULL,
			email      TEXT NOT NULL DEFAULT '',
			created_at TEXT NOT NULL
		);

		CREATE TABLE IF NOT EXISTS users (
			id            TEXT PRIMARY KEY,
			name          TEXT NOT NULL,
			email         TEXT NOT NULL UNIQUE,
			password_hash TEXT NOT NULL,
			contact_id    TEXT REFERENCES contacts(id),
			created_at    TEXT NOT NULL,
			updated_at    TEXT NOT NULL
		);

		CREATE TABLE IF NOT EXISTS tickets (
			id                TEXT PRIMARY KEY,
			reference         TEXT NOT NULL UNIQUE,
			reference_pending INTEGER NOT NULL DEFAULT 0,
			subject           TEXT NOT NULL,
			description       TEXT NOT NULL DEFAULT '',
			customer_id       TEXT,
			assignee_id       TEXT,
			creator_id        TEXT NOT NULL,
			priority          TEXT NOT NULL DEFAULT 'normal',
			state             TEXT NOT NULL DEFAULT 'new',
			opened_at         TEXT NOT NULL,
			closed_at         TEXT,
			updated_at        TEXT NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_tickets_state_opened ON tickets(state, opened_at);

		CREATE TABLE IF NOT EXISTS ticket_activity_entries (
			id              TEXT PRIMARY KEY,
			ticket_id       TEXT NOT NULL REFERENCES tickets(id),
			body            TEXT NOT NULL,
			notify_contacts TEXT NOT NULL DEFAULT '',
			created_at      TEXT NOT NULL
		);

		CREATE TABLE IF NOT EXISTS ticket_scheduled_activities (
			id          TEXT PRIMARY KEY,
			ticket_id   TEXT NOT NULL REFERENCES tickets(id),
			assignee_id TEXT NOT NULL,
			note        TEXT NOT NULL,
			due_date    TEXT NOT NULL,
			created_at  TEXT NOT NULL
		);

		CREATE TABLE IF NOT EXISTS ticket_history (
			id            TEXT PRIMARY KEY,
			ticket_id     TEXT NOT NULL REFERENCES tickets(id),
			changed_by_id TEXT,
			change_type   TEXT NOT NULL,
			old_value     TEXT NOT NULL DEFAULT '',
			new_value     TEXT NOT NULL DEFAULT '',
			created_at    TEXT NOT NULL
		);
	`)
	if err != nil {
		return fmt.Errorf("sqlite store: migrate: %w", err)
	}
	return nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) (time.Time, error) {
	return time.ParseInLocation(timeLayout, s, time.UTC)
}

func nullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func stringPtr(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	v := ns.String
	return &v
}

func mapError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return repository.ErrNotFound
	}
	if strings.Contains(err.Error(), "UNIQUE constraint failed") {
		return repository.ErrDuplicate
	}
	return err
}
