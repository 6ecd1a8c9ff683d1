// Package store provides the durable SQLite-backed store shared by the
// context cache, the task queue, and the announcement channel.
package store

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	_ "modernc.org/sqlite" // pure-Go SQLite driver
)

// ErrNotFound is returned when a row does not exist.
var ErrNotFound = errors.New("not found")

// Store serializes all access to the three tables behind one lock so
// concurrent producers, the processor, and the announcer never observe a
// half-written row.
type Store struct {
	mu sync.Mutex
	db *sql.DB
}

// Open opens (creating if needed) the database at path and ensures the
// schema exists. Schema initialization is idempotent and safe to run on
// every process start.
func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create store directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// Single connection: the coarse mutex is the serialization boundary,
	// keep the driver from opening more underneath it.
	db.SetMaxOpenConns(1)

	s := &Store{db: db}
	if err := s.init(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) init() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS context_entries (
			key         TEXT PRIMARY KEY,
			value       TEXT NOT NULL,
			metadata    TEXT,
			updated_at  INTEGER NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS tasks (
			id           TEXT PRIMARY KEY,
			task_type    TEXT NOT NULL,
			status       TEXT NOT NULL,
			params       TEXT,
			result       TEXT,
			error        TEXT NOT NULL DEFAULT '',
			retry_count  INTEGER NOT NULL DEFAULT 0,
			max_retries  INTEGER NOT NULL DEFAULT 0,
			created_at   INTEGER NOT NULL,
			started_at   INTEGER,
			completed_at INTEGER
		)`,
		`CREATE TABLE IF NOT EXISTS announcements (
			id           TEXT PRIMARY KEY,
			task_id      TEXT,
			message      TEXT NOT NULL,
			title        TEXT NOT NULL DEFAULT '',
			priority     INTEGER NOT NULL DEFAULT 0,
			announced    INTEGER NOT NULL DEFAULT 0,
			announced_at INTEGER,
			created_at   INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_tasks_status ON tasks(status)`,
		`CREATE INDEX IF NOT EXISTS idx_announcements_pending ON announcements(announced)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("init schema: %w", err)
		}
	}
	return nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db.Close()
}
