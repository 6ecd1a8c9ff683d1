package tasks

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
)

// Handler executes one task type. Handlers receive the task's params and
// must be safe to invoke concurrently with other handlers. The returned
// value is encoded and stored as the task result.
type Handler func(ctx context.Context, params json.RawMessage) (any, error)

// Registry maps task type names to handlers. It is populated explicitly at
// startup before the processor loop begins; registration order is
// irrelevant since type names are unique. Registering a name twice replaces
// the earlier handler.
type Registry struct {
	mu       sync.RWMutex
	handlers map[string]Handler
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{handlers: make(map[string]Handler)}
}

// Register adds a handler for taskType.
func (r *Registry) Register(taskType string, h Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[taskType] = h
}

// Lookup returns the handler for taskType, or false when none is registered.
func (r *Registry) Lookup(taskType string) (Handler, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.handlers[taskType]
	return h, ok
}

// Types returns the registered type names, sorted.
func (r *Registry) Types() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	types := make([]string, 0, len(r.handlers))
	for name := range r.handlers {
		types = append(types, name)
	}
	sort.Strings(types)
	return types
}
