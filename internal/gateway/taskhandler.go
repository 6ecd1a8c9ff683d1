package gateway

import (
	"encoding/json"

	"github.com/vesper-agent/vesper/internal/tasks"
)

// QueueTaskHandler adapts the task queue to the WS task methods.
type QueueTaskHandler struct {
	queue *tasks.Queue
}

// NewQueueTaskHandler wraps a task queue for WS clients.
func NewQueueTaskHandler(q *tasks.Queue) *QueueTaskHandler {
	return &QueueTaskHandler{queue: q}
}

func (h *QueueTaskHandler) Create(taskType string, params json.RawMessage) (string, error) {
	return h.queue.Create(taskType, params)
}

func (h *QueueTaskHandler) Check(taskID string) (any, error) {
	return h.queue.Get(taskID)
}

func (h *QueueTaskHandler) List() (any, error) {
	list, err := h.queue.List(50)
	if err != nil {
		return nil, err
	}
	return map[string]any{"tasks": list}, nil
}
