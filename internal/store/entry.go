package store

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// Entry is a persisted context entry. The value and metadata blobs are
// opaque to the store.
type Entry struct {
	Key       string          `json:"key"`
	Value     json.RawMessage `json:"value"`
	Metadata  json.RawMessage `json:"metadata,omitempty"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// PutEntry stores or replaces the entry for key with the current timestamp.
// The replacement is atomic: readers see either the old row or the new one.
func (s *Store) PutEntry(key string, value, metadata json.RawMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(`
		INSERT OR REPLACE INTO context_entries (key, value, metadata, updated_at)
		VALUES (?, ?, ?, ?)`,
		key, string(value), nullableBlob(metadata), time.Now().UnixNano())
	if err != nil {
		return fmt.Errorf("put entry %q: %w", key, err)
	}
	return nil
}

// GetEntry returns the entry for key, or ErrNotFound.
func (s *Store) GetEntry(key string) (*Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	row := s.db.QueryRow(`
		SELECT key, value, metadata, updated_at
		FROM context_entries WHERE key = ?`, key)

	var e Entry
	var value string
	var metadata sql.NullString
	var updatedAt int64
	if err := row.Scan(&e.Key, &value, &metadata, &updatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get entry %q: %w", key, err)
	}

	e.Value = json.RawMessage(value)
	if metadata.Valid {
		e.Metadata = json.RawMessage(metadata.String)
	}
	e.UpdatedAt = time.Unix(0, updatedAt)
	return &e, nil
}

// DeleteEntry removes the entry for key. Deleting a missing key is not an
// error.
func (s *Store) DeleteEntry(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.db.Exec(`DELETE FROM context_entries WHERE key = ?`, key); err != nil {
		return fmt.Errorf("delete entry %q: %w", key, err)
	}
	return nil
}

// DeleteAllEntries removes every context entry.
func (s *Store) DeleteAllEntries() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.db.Exec(`DELETE FROM context_entries`); err != nil {
		return fmt.Errorf("delete all entries: %w", err)
	}
	return nil
}

// ListEntryKeys returns all stored keys, sorted.
func (s *Store) ListEntryKeys() ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.db.Query(`SELECT key FROM context_entries ORDER BY key`)
	if err != nil {
		return nil, fmt.Errorf("list entry keys: %w", err)
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, fmt.Errorf("list entry keys: %w", err)
		}
		keys = append(keys, k)
	}
	return keys, rows.Err()
}

func nullableBlob(b json.RawMessage) any {
	if len(b) == 0 {
		return nil
	}
	return string(b)
}
