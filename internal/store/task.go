package store

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// TaskStatus is the lifecycle state of a task.
type TaskStatus string

const (
	TaskPending   TaskStatus = "pending"
	TaskRunning   TaskStatus = "running"
	TaskCompleted TaskStatus = "completed"
	TaskFailed    TaskStatus = "failed"
)

// Task is a persisted unit of background work.
type Task struct {
	ID          string          `json:"id"`
	Type        string          `json:"task_type"`
	Status      TaskStatus      `json:"status"`
	Params      json.RawMessage `json:"params,omitempty"`
	Result      json.RawMessage `json:"result,omitempty"`
	Error       string          `json:"error,omitempty"`
	RetryCount  int             `json:"retry_count"`
	MaxRetries  int             `json:"max_retries"`
	CreatedAt   time.Time       `json:"created_at"`
	StartedAt   *time.Time      `json:"started_at,omitempty"`
	CompletedAt *time.Time      `json:"completed_at,omitempty"`
}

// GenerateTaskID creates a unique task identifier.
func GenerateTaskID() string {
	u := uuid.New().String()
	return "task_" + strings.ReplaceAll(u[:8], "-", "")
}

// InsertTask persists a new task. If t.ID is empty an id is generated; if
// t.Status is empty the task starts pending. CreatedAt is always stamped.
func (s *Store) InsertTask(t *Task) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if t.ID == "" {
		t.ID = GenerateTaskID()
	}
	if t.Status == "" {
		t.Status = TaskPending
	}
	t.CreatedAt = time.Now()

	_, err := s.db.Exec(`
		INSERT INTO tasks (id, task_type, status, params, retry_count, max_retries, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		t.ID, t.Type, string(t.Status), nullableBlob(t.Params),
		t.RetryCount, t.MaxRetries, t.CreatedAt.UnixNano())
	if err != nil {
		return fmt.Errorf("insert task %s: %w", t.ID, err)
	}
	return nil
}

// GetTask returns the full current row for id, or ErrNotFound.
func (s *Store) GetTask(id string) (*Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	row := s.db.QueryRow(`
		SELECT id, task_type, status, params, result, error,
		       retry_count, max_retries, created_at, started_at, completed_at
		FROM tasks WHERE id = ?`, id)

	t, err := scanTask(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get task %s: %w", id, err)
	}
	return t, nil
}

// ListTasksByStatus returns all tasks with the given status, ordered by
// creation time ascending (FIFO for the processor's next sweep).
func (s *Store) ListTasksByStatus(status TaskStatus) ([]*Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.db.Query(`
		SELECT id, task_type, status, params, result, error,
		       retry_count, max_retries, created_at, started_at, completed_at
		FROM tasks WHERE status = ? ORDER BY created_at ASC`, string(status))
	if err != nil {
		return nil, fmt.Errorf("list tasks by status %s: %w", status, err)
	}
	defer rows.Close()

	return collectTasks(rows)
}

// ListTasks returns the most recent tasks, newest first. limit <= 0 means
// no limit.
func (s *Store) ListTasks(limit int) ([]*Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	q := `SELECT id, task_type, status, params, result, error,
	             retry_count, max_retries, created_at, started_at, completed_at
	      FROM tasks ORDER BY created_at DESC`
	var rows *sql.Rows
	var err error
	if limit > 0 {
		rows, err = s.db.Query(q+` LIMIT ?`, limit)
	} else {
		rows, err = s.db.Query(q)
	}
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	defer rows.Close()

	return collectTasks(rows)
}

// UpdateTaskStatus moves a task to the given status, but only when its
// current status is one of from; the caller decides legality, the store
// applies it atomically. started_at is stamped when entering running,
// completed_at when entering a terminal state. Returns ErrNotFound when the
// task does not exist or is not in an admissible from-state.
func (s *Store) UpdateTaskStatus(id string, from []TaskStatus, to TaskStatus, result json.RawMessage, errMsg string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UnixNano()
	set := `status = ?`
	args := []any{string(to)}

	switch to {
	case TaskRunning:
		set += `, started_at = ?`
		args = append(args, now)
	case TaskCompleted:
		set += `, completed_at = ?, result = ?`
		args = append(args, now, nullableBlob(result))
	case TaskFailed:
		set += `, completed_at = ?, error = ?`
		args = append(args, now, errMsg)
	}

	args = append(args, id)
	placeholders := make([]string, len(from))
	for i, st := range from {
		placeholders[i] = "?"
		args = append(args, string(st))
	}

	query := fmt.Sprintf(`UPDATE tasks SET %s WHERE id = ? AND status IN (%s)`,
		set, strings.Join(placeholders, ", "))

	res, err := s.db.Exec(query, args...)
	if err != nil {
		return fmt.Errorf("update task %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update task %s: %w", id, err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// CountTasksByStatus returns the number of tasks in the given status.
func (s *Store) CountTasksByStatus(status TaskStatus) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var n int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM tasks WHERE status = ?`, string(status)).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count tasks by status %s: %w", status, err)
	}
	return n, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTask(row rowScanner) (*Task, error) {
	var t Task
	var status string
	var params, result sql.NullString
	var createdAt int64
	var startedAt, completedAt sql.NullInt64

	err := row.Scan(&t.ID, &t.Type, &status, &params, &result, &t.Error,
		&t.RetryCount, &t.MaxRetries, &createdAt, &startedAt, &completedAt)
	if err != nil {
		return nil, err
	}

	t.Status = TaskStatus(status)
	if params.Valid {
		t.Params = json.RawMessage(params.String)
	}
	if result.Valid {
		t.Result = json.RawMessage(result.String)
	}
	t.CreatedAt = time.Unix(0, createdAt)
	if startedAt.Valid {
		ts := time.Unix(0, startedAt.Int64)
		t.StartedAt = &ts
	}
	if completedAt.Valid {
		ts := time.Unix(0, completedAt.Int64)
		t.CompletedAt = &ts
	}
	return &t, nil
}

func collectTasks(rows *sql.Rows) ([]*Task, error) {
	var tasks []*Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("scan task: %w", err)
		}
		tasks = append(tasks, t)
	}
	return tasks, rows.Err()
}
