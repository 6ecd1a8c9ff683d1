package store

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Announcement is a queued notification for the live session. TaskID is
// empty for announcements that did not originate from a task.
type Announcement struct {
	ID          string     `json:"id"`
	TaskID      string     `json:"task_id,omitempty"`
	Message     string     `json:"message"`
	Title       string     `json:"title,omitempty"`
	Priority    int        `json:"priority"`
	Announced   bool       `json:"announced"`
	AnnouncedAt *time.Time `json:"announced_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
}

// GenerateAnnouncementID creates a unique announcement identifier.
func GenerateAnnouncementID() string {
	u := uuid.New().String()
	return "ann_" + strings.ReplaceAll(u[:8], "-", "")
}

// InsertAnnouncement persists a new undelivered announcement. If a.ID is
// empty an id is generated. CreatedAt is always stamped.
func (s *Store) InsertAnnouncement(a *Announcement) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if a.ID == "" {
		a.ID = GenerateAnnouncementID()
	}
	a.CreatedAt = time.Now()
	a.Announced = false

	_, err := s.db.Exec(`
		INSERT INTO announcements (id, task_id, message, title, priority, announced, created_at)
		VALUES (?, ?, ?, ?, ?, 0, ?)`,
		a.ID, nullableText(a.TaskID), a.Message, a.Title, a.Priority, a.CreatedAt.UnixNano())
	if err != nil {
		return fmt.Errorf("insert announcement %s: %w", a.ID, err)
	}
	return nil
}

// GetAnnouncement returns the announcement with id, or ErrNotFound.
func (s *Store) GetAnnouncement(id string) (*Announcement, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	row := s.db.QueryRow(`
		SELECT id, task_id, message, title, priority, announced, announced_at, created_at
		FROM announcements WHERE id = ?`, id)

	a, err := scanAnnouncement(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get announcement %s: %w", id, err)
	}
	return a, nil
}

// ListUnannounced returns all undelivered announcements in creation order.
func (s *Store) ListUnannounced() ([]*Announcement, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.db.Query(`
		SELECT id, task_id, message, title, priority, announced, announced_at, created_at
		FROM announcements WHERE announced = 0 ORDER BY created_at ASC`)
	if err != nil {
		return nil, fmt.Errorf("list unannounced: %w", err)
	}
	defer rows.Close()

	return collectAnnouncements(rows)
}

// ListAnnouncements returns the most recent announcements, newest first.
// limit <= 0 means no limit.
func (s *Store) ListAnnouncements(limit int) ([]*Announcement, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	q := `SELECT id, task_id, message, title, priority, announced, announced_at, created_at
	      FROM announcements ORDER BY created_at DESC`
	var rows *sql.Rows
	var err error
	if limit > 0 {
		rows, err = s.db.Query(q+` LIMIT ?`, limit)
	} else {
		rows, err = s.db.Query(q)
	}
	if err != nil {
		return nil, fmt.Errorf("list announcements: %w", err)
	}
	defer rows.Close()

	return collectAnnouncements(rows)
}

// MarkAnnounced flags an announcement as delivered. Marking twice is a
// no-op: announced stays true and announced_at keeps its first value.
func (s *Store) MarkAnnounced(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.Exec(`
		UPDATE announcements
		SET announced = 1, announced_at = COALESCE(announced_at, ?)
		WHERE id = ?`, time.Now().UnixNano(), id)
	if err != nil {
		return fmt.Errorf("mark announced %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("mark announced %s: %w", id, err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// CountUnannounced returns the number of undelivered announcements.
func (s *Store) CountUnannounced() (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var n int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM announcements WHERE announced = 0`).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count unannounced: %w", err)
	}
	return n, nil
}

func scanAnnouncement(row rowScanner) (*Announcement, error) {
	var a Announcement
	var taskID sql.NullString
	var announced int
	var announcedAt sql.NullInt64
	var createdAt int64

	err := row.Scan(&a.ID, &taskID, &a.Message, &a.Title, &a.Priority,
		&announced, &announcedAt, &createdAt)
	if err != nil {
		return nil, err
	}

	a.TaskID = taskID.String
	a.Announced = announced != 0
	if announcedAt.Valid {
		ts := time.Unix(0, announcedAt.Int64)
		a.AnnouncedAt = &ts
	}
	a.CreatedAt = time.Unix(0, createdAt)
	return &a, nil
}

func collectAnnouncements(rows *sql.Rows) ([]*Announcement, error) {
	var list []*Announcement
	for rows.Next() {
		a, err := scanAnnouncement(rows)
		if err != nil {
			return nil, fmt.Errorf("scan announcement: %w", err)
		}
		list = append(list, a)
	}
	return list, rows.Err()
}

func nullableText(s string) any {
	if s == "" {
		return nil
	}
	return s
}
