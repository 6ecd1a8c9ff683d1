// Package announce delivers queued announcements to the live session.
package announce

import (
	"context"
	"log/slog"
	"time"

	"github.com/vesper-agent/vesper/internal/events"
	"github.com/vesper-agent/vesper/internal/store"
)

const (
	// DefaultPollInterval is how often undelivered announcements are checked.
	DefaultPollInterval = 5 * time.Second
	// DefaultErrorBackoff is the pause after a store listing failure.
	DefaultErrorBackoff = 10 * time.Second
)

// Sink speaks text to whatever output surface the hosting session provides.
// Delivery is at-least-once: a crash between delivery and marking replays
// the message on the next run, so sinks must tolerate a duplicate utterance.
type Sink interface {
	Speak(ctx context.Context, text string) error
}

// SinkFunc adapts a function to the Sink interface.
type SinkFunc func(ctx context.Context, text string) error

func (f SinkFunc) Speak(ctx context.Context, text string) error { return f(ctx, text) }

// Announcer polls for undelivered announcements and speaks them in creation
// order.
type Announcer struct {
	store *store.Store
	sink  Sink
	bus   *events.Bus

	interval time.Duration
	backoff  time.Duration
}

// Config holds dependencies for creating an Announcer.
type Config struct {
	Store *store.Store
	Sink  Sink
	Bus   *events.Bus // optional

	PollInterval time.Duration // 0 = DefaultPollInterval
	ErrorBackoff time.Duration // 0 = DefaultErrorBackoff
}

// New creates an Announcer.
func New(cfg Config) *Announcer {
	a := &Announcer{
		store:    cfg.Store,
		sink:     cfg.Sink,
		bus:      cfg.Bus,
		interval: cfg.PollInterval,
		backoff:  cfg.ErrorBackoff,
	}
	if a.interval <= 0 {
		a.interval = DefaultPollInterval
	}
	if a.backoff <= 0 {
		a.backoff = DefaultErrorBackoff
	}
	return a
}

// Run polls until ctx is cancelled. A delivery failure for one announcement
// is logged and does not block the next one in the same cycle.
func (a *Announcer) Run(ctx context.Context) {
	slog.Info("announcer started", "interval", a.interval)

	for {
		if err := a.RunOnce(ctx); err != nil {
			slog.Error("list announcements", "error", err)
			if !sleepCtx(ctx, a.backoff) {
				return
			}
			continue
		}

		if !sleepCtx(ctx, a.interval) {
			slog.Info("announcer stopped")
			return
		}
	}
}

// RunOnce delivers every currently undelivered announcement in creation
// order. It returns an error only when the listing itself fails.
func (a *Announcer) RunOnce(ctx context.Context) error {
	pending, err := a.store.ListUnannounced()
	if err != nil {
		return err
	}

	for _, ann := range pending {
		if ctx.Err() != nil {
			return nil
		}
		a.deliver(ctx, ann)
	}
	return nil
}

// deliver speaks one announcement, then marks it delivered. The two steps
// are intentionally separate: interruption between them re-delivers on the
// next run rather than losing the message.
func (a *Announcer) deliver(ctx context.Context, ann *store.Announcement) {
	log := slog.With("announcement_id", ann.ID, "task_id", ann.TaskID)

	if err := a.sink.Speak(ctx, ann.Message); err != nil {
		log.Error("deliver announcement", "error", err)
		return // stays unannounced, retried next poll
	}

	if err := a.store.MarkAnnounced(ann.ID); err != nil {
		log.Error("mark announced", "error", err)
		return
	}
	log.Info("announcement delivered")

	if a.bus != nil {
		a.bus.Publish(events.NewTypedEvent(events.SourceAnnouncer, events.AnnouncementDeliveredPayload{
			AnnouncementID: ann.ID,
			Message:        ann.Message,
		}))
	}
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	select {
	case <-time.After(d):
		return true
	case <-ctx.Done():
		return false
	}
}
