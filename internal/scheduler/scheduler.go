// Package scheduler triggers recurring background tasks from cron or
// interval schedules persisted in schedules.yaml.
package scheduler

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/vesper-agent/vesper/internal/events"
	"github.com/vesper-agent/vesper/internal/tasks"
)

// DefaultCooldown is the minimum interval between two triggers of the same entry.
const DefaultCooldown = 60 * time.Second

// tickEvery is the scheduler's clock resolution. Cron entries have minute
// precision so a shorter tick only helps interval entries.
const tickEvery = 10 * time.Second

// Config holds dependencies for the scheduler.
type Config struct {
	Queue *tasks.Queue
	Bus   *events.Bus    // nil-safe
	Store *ScheduleStore // nil-safe: entries are not persisted without a store
	Log   *slog.Logger
}

// runtimeEntry pairs a persisted entry with its parsed cron schedule.
type runtimeEntry struct {
	entry   *ScheduleEntry
	cron    *CronExpr
	lastRun time.Time
}

// Scheduler manages cron-based and interval-based task creation.
type Scheduler struct {
	queue *tasks.Queue
	bus   *events.Bus
	store *ScheduleStore
	log   *slog.Logger

	mu      sync.Mutex
	entries map[string]*runtimeEntry

	done     chan struct{}
	stopOnce sync.Once
}

// New creates a new Scheduler.
func New(cfg Config) *Scheduler {
	log := cfg.Log
	if log == nil {
		log = slog.Default()
	}
	return &Scheduler{
		queue:   cfg.Queue,
		bus:     cfg.Bus,
		store:   cfg.Store,
		log:     log.With("component", "scheduler"),
		entries: make(map[string]*runtimeEntry),
		done:    make(chan struct{}),
	}
}

// Start loads persisted entries and begins the tick loop.
func (s *Scheduler) Start() error {
	if s.store != nil {
		persisted, err := s.store.Load()
		if err != nil {
			return fmt.Errorf("load schedules: %w", err)
		}
		for _, e := range persisted {
			if err := s.track(e); err != nil {
				s.log.Warn("skipping schedule", "id", e.ID, "error", err)
			}
		}
	}

	s.log.Info("scheduler started", "entries", len(s.entries))
	go s.loop()
	return nil
}

// Stop halts the scheduler.
func (s *Scheduler) Stop() {
	s.stopOnce.Do(func() {
		close(s.done)
		s.log.Info("scheduler stopped")
	})
}

// Add validates, persists, and activates a new entry.
func (s *Scheduler) Add(entry *ScheduleEntry) error {
	if entry.TaskType == "" {
		return fmt.Errorf("schedule needs a task_type")
	}
	if entry.CronSpec == "" && entry.IntervalSec <= 0 {
		return fmt.Errorf("schedule needs a cron expression or an interval")
	}
	if entry.ID == "" {
		entry.ID = GenerateScheduleID()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now()
	}

	if err := s.track(entry); err != nil {
		return err
	}
	if s.store != nil {
		return s.store.Add(entry)
	}
	return nil
}

// Remove deactivates and deletes an entry.
func (s *Scheduler) Remove(id string) error {
	s.mu.Lock()
	_, ok := s.entries[id]
	delete(s.entries, id)
	s.mu.Unlock()

	if !ok {
		return fmt.Errorf("schedule not found: %s", id)
	}
	if s.store != nil {
		return s.store.Remove(id)
	}
	return nil
}

// Entries returns a snapshot of all schedule entries.
func (s *Scheduler) Entries() []*ScheduleEntry {
	s.mu.Lock()
	defer s.mu.Unlock()

	result := make([]*ScheduleEntry, 0, len(s.entries))
	for _, r := range s.entries {
		e := *r.entry
		result = append(result, &e)
	}
	return result
}

// track parses the entry's cron spec and adds it to the active set.
func (s *Scheduler) track(entry *ScheduleEntry) error {
	var expr *CronExpr
	if entry.CronSpec != "" {
		parsed, err := ParseCron(entry.CronSpec)
		if err != nil {
			return err
		}
		expr = parsed
	}

	r := &runtimeEntry{entry: entry, cron: expr}
	if entry.LastRunAt != nil {
		r.lastRun = *entry.LastRunAt
	}

	s.mu.Lock()
	s.entries[entry.ID] = r
	s.mu.Unlock()
	return nil
}

func (s *Scheduler) loop() {
	ticker := time.NewTicker(tickEvery)
	defer ticker.Stop()

	for {
		select {
		case <-s.done:
			return
		case now := <-ticker.C:
			s.sweep(now)
		}
	}
}

// sweep fires every entry due at now.
func (s *Scheduler) sweep(now time.Time) {
	s.mu.Lock()
	var due []*runtimeEntry
	for _, r := range s.entries {
		if s.isDue(r, now) {
			due = append(due, r)
		}
	}
	s.mu.Unlock()

	for _, r := range due {
		s.fire(r, now)
	}
}

func (s *Scheduler) isDue(r *runtimeEntry, now time.Time) bool {
	e := r.entry
	if !e.Enabled {
		return false
	}
	if e.MaxRuns > 0 && e.RunCount >= e.MaxRuns {
		return false
	}

	cooldown := DefaultCooldown
	if e.CooldownSec > 0 {
		cooldown = time.Duration(e.CooldownSec) * time.Second
	}
	if !r.lastRun.IsZero() && now.Sub(r.lastRun) < cooldown {
		return false
	}

	switch {
	case r.cron != nil:
		return r.cron.Matches(now)
	case e.IntervalSec > 0:
		if r.lastRun.IsZero() {
			return true
		}
		return now.Sub(r.lastRun) >= time.Duration(e.IntervalSec)*time.Second
	default:
		return false
	}
}

// fire enqueues the entry's task and records the run.
func (s *Scheduler) fire(r *runtimeEntry, now time.Time) {
	e := r.entry

	var params json.RawMessage
	if len(e.Params) > 0 {
		data, err := json.Marshal(e.Params)
		if err != nil {
			s.log.Error("schedule params not encodable", "id", e.ID, "error", err)
			return
		}
		params = data
	}

	taskID, err := s.queue.Create(e.TaskType, params)
	if err != nil {
		s.log.Error("schedule trigger failed", "id", e.ID, "task_type", e.TaskType, "error", err)
		return
	}

	// Entries() copies entries under the lock, so the bookkeeping writes
	// must hold it too.
	s.mu.Lock()
	r.lastRun = now
	e.RunCount++
	lastRun := now
	e.LastRunAt = &lastRun
	snapshot := *e
	s.mu.Unlock()

	s.log.Info("schedule triggered", "id", e.ID, "task_id", taskID, "task_type", e.TaskType)

	if s.bus != nil {
		s.bus.Publish(events.NewTypedEvent(events.SourceScheduler, events.ScheduleTriggerPayload{
			EntryID:  e.ID,
			TaskID:   taskID,
			TaskType: e.TaskType,
		}))
	}

	if s.store != nil {
		if err := s.store.Update(&snapshot); err != nil {
			s.log.Warn("schedule state not persisted", "id", e.ID, "error", err)
		}
	}
}
