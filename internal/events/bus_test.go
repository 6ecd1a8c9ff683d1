package events

import (
	"sync"
	"testing"
	"time"
)

func TestBusPublishSubscribe(t *testing.T) {
	bus := NewBus(64)
	defer bus.Close()

	var mu sync.Mutex
	var received []Event

	bus.Subscribe(func(e Event) {
		mu.Lock()
		received = append(received, e)
		mu.Unlock()
	}, EventTaskCompleted)

	bus.Publish(NewTypedEvent(SourceProcessor, TaskCompletedPayload{TaskID: "task_1", TaskType: "email_check"}))
	bus.Publish(NewTypedEvent(SourceAnnouncer, SpeechPayload{Text: "hello"}))

	time.Sleep(50 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()

	if len(received) != 1 {
		t.Fatalf("expected 1 event, got %d", len(received))
	}
	if received[0].Type != EventTaskCompleted {
		t.Errorf("expected task.completed, got %s", received[0].Type)
	}
}

func TestBusSubscribeAll(t *testing.T) {
	bus := NewBus(64)
	defer bus.Close()

	var mu sync.Mutex
	count := 0

	bus.Subscribe(func(e Event) {
		mu.Lock()
		count++
		mu.Unlock()
	})

	bus.Publish(NewTypedEvent(SourceProcessor, TaskStartedPayload{TaskID: "task_1"}))
	bus.Publish(NewTypedEvent(SourceAnnouncer, SpeechPayload{Text: "hi"}))

	time.Sleep(50 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()

	if count != 2 {
		t.Errorf("expected 2 events, got %d", count)
	}
}

func TestRingBuffer(t *testing.T) {
	rb := NewRingBuffer(3)

	for i := 0; i < 5; i++ {
		rb.Add(NewTypedEvent(SourceGateway, SpeechPayload{Text: "x"}))
	}

	events := rb.Get(10)
	if len(events) != 3 {
		t.Fatalf("expected 3 events, got %d", len(events))
	}
}

func TestExtractPayload(t *testing.T) {
	e := NewTypedEventWithSession(SourceProcessor, TaskFailedPayload{
		TaskID:   "task_42",
		TaskType: "feed_preload",
		Error:    "timed out",
	}, "sess_1")

	if e.SessionID != "sess_1" {
		t.Errorf("SessionID: got %q, want %q", e.SessionID, "sess_1")
	}

	p, ok := ExtractPayload[TaskFailedPayload](e)
	if !ok {
		t.Fatal("ExtractPayload failed")
	}
	if p.TaskID != "task_42" || p.Error != "timed out" {
		t.Errorf("payload roundtrip: got %+v", p)
	}
}
