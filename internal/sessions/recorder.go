package sessions

import (
	"log/slog"
	"time"

	"github.com/vesper-agent/vesper/internal/events"
)

// Recorder mirrors spoken output from the event bus into session
// transcripts. Speech and delivered announcements carrying a session ID are
// appended as transcript turns, so a session's file reads in spoken order.
type Recorder struct {
	store Store
	log   *slog.Logger
}

// NewRecorder creates a transcript recorder over the given store.
func NewRecorder(store Store, log *slog.Logger) *Recorder {
	if log == nil {
		log = slog.Default()
	}
	return &Recorder{store: store, log: log.With("component", "sessions")}
}

// Attach subscribes the recorder to the bus. The returned function
// unsubscribes.
func (r *Recorder) Attach(bus *events.Bus) func() {
	return bus.Subscribe(r.handle, events.EventSpeech, events.EventAnnouncementDelivered, events.EventSessionClosed)
}

func (r *Recorder) handle(e events.Event) {
	if e.SessionID == "" {
		return
	}

	switch e.Type {
	case events.EventSpeech:
		p, ok := events.ExtractPayload[events.SpeechPayload](e)
		if !ok {
			return
		}
		r.append(e.SessionID, Message{Role: "assistant", Content: p.Text, Ts: time.Now()})

	case events.EventAnnouncementDelivered:
		p, ok := events.ExtractPayload[events.AnnouncementDeliveredPayload](e)
		if !ok {
			return
		}
		r.append(e.SessionID, Message{Role: "announcement", Content: p.Message, Ts: time.Now()})

	case events.EventSessionClosed:
		if err := r.store.Close(e.SessionID); err != nil {
			r.log.Warn("close session failed", "session_id", e.SessionID, "error", err)
		}
	}
}

func (r *Recorder) append(sessionID string, msg Message) {
	if err := r.store.AppendMessage(sessionID, msg); err != nil {
		r.log.Warn("transcript append failed", "session_id", sessionID, "error", err)
	}
}
