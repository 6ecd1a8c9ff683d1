package announce

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/vesper-agent/vesper/internal/store"
)

func openTestStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), "vesper.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

type recordingSink struct {
	mu     sync.Mutex
	spoken []string
	fail   map[string]bool // messages whose delivery should fail
}

func (r *recordingSink) Speak(_ context.Context, text string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.fail[text] {
		return errors.New("tts unavailable")
	}
	r.spoken = append(r.spoken, text)
	return nil
}

func (r *recordingSink) messages() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.spoken...)
}

func TestDeliverInOrderAndMark(t *testing.T) {
	s := openTestStore(t)
	sink := &recordingSink{}
	a := New(Config{Store: s, Sink: sink})

	messages := []string{"first", "second", "third"}
	var ids []string
	for _, m := range messages {
		ann := &store.Announcement{Message: m}
		if err := s.InsertAnnouncement(ann); err != nil {
			t.Fatalf("InsertAnnouncement: %v", err)
		}
		ids = append(ids, ann.ID)
	}

	if err := a.RunOnce(context.Background()); err != nil {
		t.Fatalf("RunOnce: %v", err)
	}

	got := sink.messages()
	if len(got) != 3 {
		t.Fatalf("spoken: got %d, want 3", len(got))
	}
	for i, m := range messages {
		if got[i] != m {
			t.Errorf("spoken[%d]: got %q, want %q (creation order)", i, got[i], m)
		}
	}
	for _, id := range ids {
		ann, err := s.GetAnnouncement(id)
		if err != nil {
			t.Fatalf("GetAnnouncement: %v", err)
		}
		if !ann.Announced {
			t.Errorf("announcement %s not marked announced", id)
		}
	}
}

func TestDeliveryFailureSkipsNotBlocks(t *testing.T) {
	s := openTestStore(t)
	sink := &recordingSink{fail: map[string]bool{"bad": true}}
	a := New(Config{Store: s, Sink: sink})

	for _, m := range []string{"good one", "bad", "good two"} {
		if err := s.InsertAnnouncement(&store.Announcement{Message: m}); err != nil {
			t.Fatalf("InsertAnnouncement: %v", err)
		}
	}

	if err := a.RunOnce(context.Background()); err != nil {
		t.Fatalf("RunOnce: %v", err)
	}

	got := sink.messages()
	if len(got) != 2 || got[0] != "good one" || got[1] != "good two" {
		t.Fatalf("spoken: got %v, want the two deliverable messages", got)
	}

	// The failed one stays queued for the next poll.
	pending, err := s.ListUnannounced()
	if err != nil {
		t.Fatalf("ListUnannounced: %v", err)
	}
	if len(pending) != 1 || pending[0].Message != "bad" {
		t.Fatalf("unannounced: got %+v, want just the failed message", pending)
	}

	// Next cycle retries it naturally.
	sink.mu.Lock()
	sink.fail = nil
	sink.mu.Unlock()
	if err := a.RunOnce(context.Background()); err != nil {
		t.Fatalf("second RunOnce: %v", err)
	}
	pending, err = s.ListUnannounced()
	if err != nil {
		t.Fatalf("ListUnannounced: %v", err)
	}
	if len(pending) != 0 {
		t.Fatalf("unannounced after retry: got %d, want 0", len(pending))
	}
}

func TestRedeliveryIsIdempotent(t *testing.T) {
	s := openTestStore(t)
	sink := &recordingSink{}
	a := New(Config{Store: s, Sink: sink})

	ann := &store.Announcement{Message: "once"}
	if err := s.InsertAnnouncement(ann); err != nil {
		t.Fatalf("InsertAnnouncement: %v", err)
	}

	// Two sweeps: the second sees nothing undelivered.
	for range 2 {
		if err := a.RunOnce(context.Background()); err != nil {
			t.Fatalf("RunOnce: %v", err)
		}
	}
	if got := sink.messages(); len(got) != 1 {
		t.Fatalf("spoken: got %d, want 1", len(got))
	}

	// Simulate a crash between deliver and mark: marking again is harmless.
	if err := s.MarkAnnounced(ann.ID); err != nil {
		t.Fatalf("MarkAnnounced again: %v", err)
	}
}

func TestRunStopsOnCancel(t *testing.T) {
	s := openTestStore(t)
	a := New(Config{Store: s, Sink: &recordingSink{}, PollInterval: 10 * time.Millisecond})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		a.Run(ctx)
		close(done)
	}()

	time.Sleep(30 * time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(3 * time.Second):
		t.Fatal("announcer did not stop after cancellation")
	}
}
