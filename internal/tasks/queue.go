// Package tasks provides the durable background task queue and the polling
// processor that drains it.
package tasks

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/vesper-agent/vesper/internal/events"
	"github.com/vesper-agent/vesper/internal/store"
)

// ErrIllegalTransition is returned for a status change the state machine
// does not allow.
var ErrIllegalTransition = errors.New("illegal task status transition")

// legalFrom maps a target status to the states a task may leave from.
// pending → running → {completed | failed}, plus pending → failed for
// unknown task types. Terminal states are never left.
var legalFrom = map[store.TaskStatus][]store.TaskStatus{
	store.TaskRunning:   {store.TaskPending},
	store.TaskCompleted: {store.TaskRunning},
	store.TaskFailed:    {store.TaskRunning, store.TaskPending},
}

// Queue is the producer/consumer surface over persisted tasks. Any tool
// handler may create tasks; only the processor mutates them afterwards.
type Queue struct {
	store *store.Store
	bus   *events.Bus // nil-safe: events are optional
}

// NewQueue creates a Queue. bus may be nil.
func NewQueue(s *store.Store, bus *events.Bus) *Queue {
	return &Queue{store: s, bus: bus}
}

// Create persists a new pending task and returns its id immediately; the
// caller does not wait for execution.
func (q *Queue) Create(taskType string, params json.RawMessage) (string, error) {
	t := &store.Task{Type: taskType, Params: params}
	if err := q.store.InsertTask(t); err != nil {
		return "", err
	}
	q.publish(events.TaskCreatedPayload{TaskID: t.ID, TaskType: taskType})
	return t.ID, nil
}

// Get returns the full current row for id, or store.ErrNotFound.
func (q *Queue) Get(id string) (*store.Task, error) {
	return q.store.GetTask(id)
}

// ListPending returns all pending tasks in creation order.
func (q *Queue) ListPending() ([]*store.Task, error) {
	return q.store.ListTasksByStatus(store.TaskPending)
}

// List returns recent tasks, newest first.
func (q *Queue) List(limit int) ([]*store.Task, error) {
	return q.store.ListTasks(limit)
}

// UpdateStatus applies exactly one legal transition. Entering running
// stamps started_at; entering a terminal state stamps completed_at and
// persists result or error.
func (q *Queue) UpdateStatus(id string, to store.TaskStatus, result json.RawMessage, errMsg string) error {
	from, ok := legalFrom[to]
	if !ok {
		return fmt.Errorf("%w: cannot enter %s", ErrIllegalTransition, to)
	}
	if err := q.store.UpdateTaskStatus(id, from, to, result, errMsg); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			// Distinguish "no such task" from "wrong state".
			if _, getErr := q.store.GetTask(id); getErr == nil {
				return fmt.Errorf("%w: task %s cannot enter %s", ErrIllegalTransition, id, to)
			}
			return err
		}
		return err
	}
	return nil
}

func (q *Queue) publish(p events.EventPayload) {
	if q.bus != nil {
		q.bus.Publish(events.NewTypedEvent(events.SourceProcessor, p))
	}
}
