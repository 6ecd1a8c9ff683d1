package tasks

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/vesper-agent/vesper/internal/events"
	"github.com/vesper-agent/vesper/internal/store"
)

const (
	// DefaultPollInterval is how often the processor sweeps pending tasks.
	DefaultPollInterval = 2 * time.Second
	// DefaultHandlerTimeout bounds a single handler invocation. Feed
	// preloads are the slowest workload and stay under four minutes.
	DefaultHandlerTimeout = 240 * time.Second
	// DefaultErrorBackoff is the pause after a store-access failure.
	DefaultErrorBackoff = 5 * time.Second

	// maxErrorAnnouncement caps the error text spoken to the user.
	maxErrorAnnouncement = 100
)

// Processor drains pending tasks. Each sweep runs the whole batch
// concurrently; one task's failure or timeout never blocks its siblings.
type Processor struct {
	queue    *Queue
	store    *store.Store
	registry *Registry
	bus      *events.Bus

	interval time.Duration
	timeout  time.Duration
	backoff  time.Duration
}

// ProcessorConfig holds dependencies for creating a Processor.
type ProcessorConfig struct {
	Queue    *Queue
	Store    *store.Store
	Registry *Registry
	Bus      *events.Bus // optional

	PollInterval   time.Duration // 0 = DefaultPollInterval
	HandlerTimeout time.Duration // 0 = DefaultHandlerTimeout
	ErrorBackoff   time.Duration // 0 = DefaultErrorBackoff
}

// NewProcessor creates a Processor.
func NewProcessor(cfg ProcessorConfig) *Processor {
	p := &Processor{
		queue:    cfg.Queue,
		store:    cfg.Store,
		registry: cfg.Registry,
		bus:      cfg.Bus,
		interval: cfg.PollInterval,
		timeout:  cfg.HandlerTimeout,
		backoff:  cfg.ErrorBackoff,
	}
	if p.interval <= 0 {
		p.interval = DefaultPollInterval
	}
	if p.timeout <= 0 {
		p.timeout = DefaultHandlerTimeout
	}
	if p.backoff <= 0 {
		p.backoff = DefaultErrorBackoff
	}
	return p
}

// Run polls until ctx is cancelled. Per-task failures are recorded as data
// and never stop the loop; only store-access failures pause it briefly.
func (p *Processor) Run(ctx context.Context) {
	slog.Info("task processor started", "interval", p.interval, "handlers", p.registry.Types())

	for {
		pending, err := p.queue.ListPending()
		if err != nil {
			slog.Error("list pending tasks", "error", err)
			if !sleepCtx(ctx, p.backoff) {
				return
			}
			continue
		}

		if len(pending) > 0 {
			slog.Info("processing pending tasks", "count", len(pending))
			var wg sync.WaitGroup
			for _, t := range pending {
				wg.Add(1)
				go func() {
					defer wg.Done()
					p.process(ctx, t)
				}()
			}
			wg.Wait()
		}

		if !sleepCtx(ctx, p.interval) {
			slog.Info("task processor stopped")
			return
		}
	}
}

// RunOnce performs a single sweep of the pending queue. Used by tests and
// the CLI drain path.
func (p *Processor) RunOnce(ctx context.Context) error {
	pending, err := p.queue.ListPending()
	if err != nil {
		return err
	}
	var wg sync.WaitGroup
	for _, t := range pending {
		wg.Add(1)
		go func() {
			defer wg.Done()
			p.process(ctx, t)
		}()
	}
	wg.Wait()
	return nil
}

// process executes one task to a terminal state.
func (p *Processor) process(ctx context.Context, t *store.Task) {
	log := slog.With("task_id", t.ID, "task_type", t.Type)
	log.Info("processing task")

	handler, ok := p.registry.Lookup(t.Type)
	if !ok {
		log.Error("no handler for task type", "available", p.registry.Types())
		p.fail(t, fmt.Errorf("unknown task type: %s", t.Type))
		return
	}

	if err := p.queue.UpdateStatus(t.ID, store.TaskRunning, nil, ""); err != nil {
		log.Error("claim task", "error", err)
		return
	}
	p.publish(events.TaskStartedPayload{TaskID: t.ID, TaskType: t.Type})
	started := time.Now()

	result, err := p.invoke(ctx, handler, t.Params)
	if err != nil {
		log.Error("task failed", "error", err)
		p.fail(t, err)
		return
	}

	encoded, err := json.Marshal(result)
	if err != nil {
		log.Error("encode task result", "error", err)
		p.fail(t, fmt.Errorf("encode result: %w", err))
		return
	}

	if err := p.queue.UpdateStatus(t.ID, store.TaskCompleted, encoded, ""); err != nil {
		log.Error("mark task completed", "error", err)
		return
	}
	log.Info("task completed", "duration", time.Since(started).Truncate(time.Millisecond))
	p.publish(events.TaskCompletedPayload{TaskID: t.ID, TaskType: t.Type, Duration: time.Since(started)})

	message := announcementText(t.Type, encoded, t.Params)
	p.announce(t, message, t.Type+" complete")
}

// invoke runs a handler bounded by the configured timeout. A handler that
// never returns is abandoned; its task fails once the deadline passes.
func (p *Processor) invoke(ctx context.Context, handler Handler, params json.RawMessage) (any, error) {
	tctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	type outcome struct {
		result any
		err    error
	}
	done := make(chan outcome, 1)

	go func() {
		result, err := handler(tctx, params)
		done <- outcome{result, err}
	}()

	select {
	case out := <-done:
		return out.result, out.err
	case <-tctx.Done():
		if ctx.Err() != nil {
			return nil, fmt.Errorf("task canceled: %w", ctx.Err())
		}
		return nil, fmt.Errorf("task execution timed out after %s", p.timeout)
	}
}

// fail marks the task failed and queues the "task failed" announcement. The
// user is always told something happened, success or failure.
func (p *Processor) fail(t *store.Task, cause error) {
	if err := p.queue.UpdateStatus(t.ID, store.TaskFailed, nil, cause.Error()); err != nil {
		slog.Error("mark task failed", "task_id", t.ID, "error", err)
		return
	}
	p.publish(events.TaskFailedPayload{TaskID: t.ID, TaskType: t.Type, Error: cause.Error()})
	p.announce(t, "Task failed: "+truncate(cause.Error(), maxErrorAnnouncement), "Task failed")
}

func (p *Processor) announce(t *store.Task, message, title string) {
	a := &store.Announcement{TaskID: t.ID, Message: message, Title: title}
	if err := p.store.InsertAnnouncement(a); err != nil {
		slog.Error("create announcement", "task_id", t.ID, "error", err)
		return
	}
	slog.Info("created announcement", "announcement_id", a.ID, "task_id", t.ID)
	p.publish(events.AnnouncementCreatedPayload{AnnouncementID: a.ID, TaskID: t.ID, Title: title})
}

func (p *Processor) publish(payload events.EventPayload) {
	if p.bus != nil {
		p.bus.Publish(events.NewTypedEvent(events.SourceProcessor, payload))
	}
}

// sleepCtx sleeps for d, returning false when ctx is cancelled first.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	select {
	case <-time.After(d):
		return true
	case <-ctx.Done():
		return false
	}
}

// truncate cuts s to at most n bytes without splitting a rune, since the
// result ends up in a spoken announcement.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	cut := s[:n]
	for !utf8.ValidString(cut) {
		cut = cut[:len(cut)-1]
	}
	return cut
}
