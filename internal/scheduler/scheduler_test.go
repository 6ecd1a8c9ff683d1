package scheduler

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/vesper-agent/vesper/internal/store"
	"github.com/vesper-agent/vesper/internal/tasks"
)

func newTestQueue(t *testing.T) *tasks.Queue {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return tasks.NewQueue(s, nil)
}

func TestParseCron(t *testing.T) {
	expr, err := ParseCron("0 8 * * *")
	if err != nil {
		t.Fatalf("ParseCron: %v", err)
	}

	at8 := time.Date(2026, 8, 30, 8, 0, 30, 0, time.UTC)
	if !expr.Matches(at8) {
		t.Error("08:00 should match '0 8 * * *'")
	}
	at9 := time.Date(2026, 8, 30, 9, 0, 0, 0, time.UTC)
	if expr.Matches(at9) {
		t.Error("09:00 should not match '0 8 * * *'")
	}
}

func TestParseCron_Invalid(t *testing.T) {
	if _, err := ParseCron("not a cron"); err == nil {
		t.Fatal("expected error for invalid expression")
	}
}

func TestScheduleStore_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "schedules.yaml")
	st := NewScheduleStore(path)

	entry := &ScheduleEntry{
		Title:    "morning email check",
		CronSpec: "0 8 * * *",
		TaskType: "email_check",
		Params:   map[string]any{"filter": "unread"},
		Enabled:  true,
	}
	if err := st.Add(entry); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if entry.ID == "" {
		t.Fatal("Add should assign an ID")
	}

	loaded, err := st.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(loaded) != 1 {
		t.Fatalf("entries: got %d, want 1", len(loaded))
	}
	got := loaded[0]
	if got.TaskType != "email_check" || got.CronSpec != "0 8 * * *" {
		t.Errorf("round trip: got %+v", got)
	}
	if got.Params["filter"] != "unread" {
		t.Errorf("params: got %v", got.Params)
	}
}

func TestScheduleStore_UpdateAndRemove(t *testing.T) {
	st := NewScheduleStore(filepath.Join(t.TempDir(), "schedules.yaml"))

	entry := &ScheduleEntry{TaskType: "email_check", IntervalSec: 300, Enabled: true}
	if err := st.Add(entry); err != nil {
		t.Fatalf("Add: %v", err)
	}

	entry.RunCount = 3
	if err := st.Update(entry); err != nil {
		t.Fatalf("Update: %v", err)
	}
	loaded, _ := st.Load()
	if loaded[0].RunCount != 3 {
		t.Errorf("run count: got %d, want 3", loaded[0].RunCount)
	}

	if err := st.Remove(entry.ID); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	loaded, _ = st.Load()
	if len(loaded) != 0 {
		t.Errorf("entries after remove: got %d", len(loaded))
	}

	if err := st.Remove("sched_missing"); err == nil {
		t.Error("removing a missing entry should fail")
	}
}

func TestScheduleStore_LoadMissingFile(t *testing.T) {
	st := NewScheduleStore(filepath.Join(t.TempDir(), "nope.yaml"))
	entries, err := st.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(entries) != 0 {
		t.Errorf("expected no entries, got %d", len(entries))
	}
}

func TestScheduler_AddValidation(t *testing.T) {
	s := New(Config{Queue: newTestQueue(t)})

	if err := s.Add(&ScheduleEntry{CronSpec: "* * * * *"}); err == nil {
		t.Error("entry without task_type should be rejected")
	}
	if err := s.Add(&ScheduleEntry{TaskType: "email_check"}); err == nil {
		t.Error("entry without trigger should be rejected")
	}
	if err := s.Add(&ScheduleEntry{TaskType: "email_check", CronSpec: "bogus"}); err == nil {
		t.Error("entry with invalid cron should be rejected")
	}
	if err := s.Add(&ScheduleEntry{TaskType: "email_check", IntervalSec: 60, Enabled: true}); err != nil {
		t.Errorf("valid entry rejected: %v", err)
	}
	if len(s.Entries()) != 1 {
		t.Errorf("entries: got %d, want 1", len(s.Entries()))
	}
}

func TestScheduler_IntervalFiresAndCreatesTask(t *testing.T) {
	q := newTestQueue(t)
	s := New(Config{Queue: q})

	entry := &ScheduleEntry{
		TaskType:    "email_check",
		IntervalSec: 1,
		CooldownSec: 1,
		Enabled:     true,
		Params:      map[string]any{"filter": "unread"},
	}
	if err := s.Add(entry); err != nil {
		t.Fatalf("Add: %v", err)
	}

	now := time.Now()
	s.sweep(now)

	pending, err := q.ListPending()
	if err != nil {
		t.Fatalf("ListPending: %v", err)
	}
	if len(pending) != 1 {
		t.Fatalf("pending: got %d, want 1", len(pending))
	}
	if pending[0].Type != "email_check" {
		t.Errorf("task type: got %q", pending[0].Type)
	}

	// Within the cooldown the entry must not fire again.
	s.sweep(now.Add(500 * time.Millisecond))
	pending, _ = q.ListPending()
	if len(pending) != 1 {
		t.Errorf("cooldown ignored: %d pending", len(pending))
	}

	// Past the cooldown it fires again.
	s.sweep(now.Add(2 * time.Second))
	pending, _ = q.ListPending()
	if len(pending) != 2 {
		t.Errorf("second fire missing: %d pending", len(pending))
	}
}

func TestScheduler_EntriesConcurrentWithSweep(t *testing.T) {
	q := newTestQueue(t)
	s := New(Config{Queue: q})

	entry := &ScheduleEntry{
		TaskType:    "email_check",
		IntervalSec: 1,
		CooldownSec: 1,
		Enabled:     true,
	}
	if err := s.Add(entry); err != nil {
		t.Fatalf("Add: %v", err)
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 50; i++ {
			s.Entries()
		}
	}()

	now := time.Now()
	for i := 0; i < 50; i++ {
		s.sweep(now.Add(time.Duration(i*2) * time.Second))
	}
	<-done

	got := s.Entries()
	if len(got) != 1 {
		t.Fatalf("entries: got %d, want 1", len(got))
	}
	if got[0].RunCount != 50 {
		t.Errorf("run count: got %d, want 50", got[0].RunCount)
	}
}

func TestScheduler_MaxRuns(t *testing.T) {
	q := newTestQueue(t)
	s := New(Config{Queue: q})

	entry := &ScheduleEntry{
		TaskType:    "email_check",
		IntervalSec: 1,
		CooldownSec: 1,
		MaxRuns:     1,
		Enabled:     true,
	}
	if err := s.Add(entry); err != nil {
		t.Fatalf("Add: %v", err)
	}

	now := time.Now()
	s.sweep(now)
	s.sweep(now.Add(5 * time.Second))

	pending, _ := q.ListPending()
	if len(pending) != 1 {
		t.Errorf("max_runs ignored: %d pending", len(pending))
	}
}

func TestScheduler_DisabledEntryNeverFires(t *testing.T) {
	q := newTestQueue(t)
	s := New(Config{Queue: q})

	if err := s.Add(&ScheduleEntry{TaskType: "email_check", IntervalSec: 1, Enabled: false}); err != nil {
		t.Fatalf("Add: %v", err)
	}

	s.sweep(time.Now())
	pending, _ := q.ListPending()
	if len(pending) != 0 {
		t.Errorf("disabled entry fired: %d pending", len(pending))
	}
}

func TestScheduler_PersistsRunState(t *testing.T) {
	path := filepath.Join(t.TempDir(), "schedules.yaml")
	st := NewScheduleStore(path)
	q := newTestQueue(t)
	s := New(Config{Queue: q, Store: st})

	if err := s.Add(&ScheduleEntry{TaskType: "email_check", IntervalSec: 1, Enabled: true}); err != nil {
		t.Fatalf("Add: %v", err)
	}

	s.sweep(time.Now())

	loaded, err := st.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if loaded[0].RunCount != 1 || loaded[0].LastRunAt == nil {
		t.Errorf("run state not persisted: %+v", loaded[0])
	}
}
