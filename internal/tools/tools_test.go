package tools

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/vesper-agent/vesper/internal/config"
	"github.com/vesper-agent/vesper/internal/events"
	"github.com/vesper-agent/vesper/internal/memory"
	"github.com/vesper-agent/vesper/internal/store"
	"github.com/vesper-agent/vesper/internal/tasks"
)

func newTestCache(t *testing.T) *memory.Cache {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return memory.New(s, time.Hour)
}

func newTestTools(t *testing.T, srvURL string) *Tools {
	t.Helper()
	client := NewWorkflowClient(config.WorkflowsConfig{
		BaseURL: srvURL,
		APIKey:  "test-key",
	}, slog.Default())
	bus := events.NewBus(64)
	t.Cleanup(bus.Close)
	return New(client, newTestCache(t), bus, "read-calendar", slog.Default())
}

func TestWorkflowClient_Call(t *testing.T) {
	var gotHeader, gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotHeader = r.Header.Get("X-Vesper-API-Key")
		gotPath = r.URL.Path
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"speech":"done","artifact":{"type":"email_list","data":[1,2]}}`))
	}))
	defer srv.Close()

	client := NewWorkflowClient(config.WorkflowsConfig{BaseURL: srv.URL, APIKey: "test-key"}, nil)
	resp, err := client.Call(context.Background(), "read-emails", map[string]any{"count": 2})
	if err != nil {
		t.Fatalf("Call: %v", err)
	}

	if gotHeader != "test-key" {
		t.Errorf("api key header: got %q", gotHeader)
	}
	if gotPath != "/read-emails" {
		t.Errorf("path: got %q", gotPath)
	}
	if resp.Speech != "done" {
		t.Errorf("speech: got %q", resp.Speech)
	}
	if resp.Artifact == nil || resp.Artifact.Type != "email_list" {
		t.Errorf("artifact: got %+v", resp.Artifact)
	}
}

func TestWorkflowClient_ErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(500)
		w.Write([]byte("workflow exploded"))
	}))
	defer srv.Close()

	client := NewWorkflowClient(config.WorkflowsConfig{BaseURL: srv.URL}, nil)
	_, err := client.Call(context.Background(), "read-emails", nil)
	if err == nil {
		t.Fatal("expected error for 500 response")
	}
	if !strings.Contains(err.Error(), "500") {
		t.Errorf("error should carry status: %v", err)
	}
}

func TestWebhookIDRouting(t *testing.T) {
	client := NewWorkflowClient(config.WorkflowsConfig{
		BaseURL:     "http://localhost:5678/webhook",
		ExternalURL: "https://hub.example.com/webhook",
	}, nil)

	webhookID := "8e8472c0-6c4e-47b9-9602-0a0cc2221453"
	if got := client.resolveURL(webhookID); got != "https://hub.example.com/webhook/"+webhookID {
		t.Errorf("webhook id url: got %q", got)
	}
	if got := client.resolveURL("read-emails"); got != "http://localhost:5678/webhook/read-emails" {
		t.Errorf("path url: got %q", got)
	}
	if isWebhookID("read-emails") {
		t.Error("read-emails should not look like a webhook id")
	}
	if !isWebhookID(webhookID) {
		t.Error("uuid should look like a webhook id")
	}
}

func TestReadEmails_CachesArtifact(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"speech":"You have 2 unread emails.","artifact":{"type":"email_list","data":[{"subject":"a"},{"subject":"b"}]}}`))
	}))
	defer srv.Close()

	tl := newTestTools(t, srv.URL)
	speech, err := tl.ReadEmails(context.Background(), 5, "unread")
	if err != nil {
		t.Fatalf("ReadEmails: %v", err)
	}
	if speech != "You have 2 unread emails." {
		t.Errorf("speech: got %q", speech)
	}

	cached, err := tl.cache.Get("emails")
	if err != nil {
		t.Fatalf("cache get: %v", err)
	}
	var items []json.RawMessage
	if err := json.Unmarshal(cached, &items); err != nil || len(items) != 2 {
		t.Errorf("cached emails: got %s", cached)
	}
}

func TestReadCalendar_CachesEvents(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var payload map[string]any
		json.NewDecoder(r.Body).Decode(&payload)
		if payload["numberOfDays"] != float64(7) {
			t.Errorf("numberOfDays: got %v", payload["numberOfDays"])
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"summary":"You have 1 event.","eventCount":1,"events":[{"title":"standup"}]}`))
	}))
	defer srv.Close()

	tl := newTestTools(t, srv.URL)
	summary, err := tl.ReadCalendar(context.Background(), 0) // 0 falls back to default 7
	if err != nil {
		t.Fatalf("ReadCalendar: %v", err)
	}
	if summary != "You have 1 event." {
		t.Errorf("summary: got %q", summary)
	}

	cached, err := tl.cache.Get("calendar")
	if err != nil || cached == nil {
		t.Fatalf("cached calendar: %s err=%v", cached, err)
	}
}

func TestRecallContext(t *testing.T) {
	tl := newTestTools(t, "http://127.0.0.1:1")

	out, err := tl.RecallContext(context.Background(), "emails")
	if err != nil {
		t.Fatalf("RecallContext absent: %v", err)
	}
	if !strings.Contains(out, "No emails data in memory") {
		t.Errorf("absent message: got %q", out)
	}

	if err := tl.cache.Save("emails", []map[string]string{{"subject": "hi"}}, nil); err != nil {
		t.Fatalf("seed cache: %v", err)
	}

	out, err = tl.RecallContext(context.Background(), "emails")
	if err != nil {
		t.Fatalf("RecallContext: %v", err)
	}
	var recalled struct {
		ContextType string `json:"context_type"`
		Count       int    `json:"count"`
	}
	if err := json.Unmarshal([]byte(out), &recalled); err != nil {
		t.Fatalf("decode recall output: %v", err)
	}
	if recalled.ContextType != "emails" || recalled.Count != 1 {
		t.Errorf("recall: got %+v", recalled)
	}
}

func TestEmailCheckHandler(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"speech":"ok","artifact":{"type":"email_list","data":[{},{},{}]}}`))
	}))
	defer srv.Close()

	tl := newTestTools(t, srv.URL)
	reg := tasks.NewRegistry()
	tl.RegisterHandlers(reg)

	handler, ok := reg.Lookup("email_check")
	if !ok {
		t.Fatal("email_check handler not registered")
	}

	result, err := handler(context.Background(), json.RawMessage(`{"filter":"unread","count":5}`))
	if err != nil {
		t.Fatalf("handler: %v", err)
	}
	m, ok := result.(map[string]any)
	if !ok {
		t.Fatalf("result type: %T", result)
	}
	if m["count"] != 3 {
		t.Errorf("count: got %v, want 3 (items in artifact)", m["count"])
	}
}

func TestCalendarReminderHandler_Defaults(t *testing.T) {
	tl := newTestTools(t, "http://127.0.0.1:1")
	reg := tasks.NewRegistry()
	tl.RegisterHandlers(reg)

	handler, _ := reg.Lookup("calendar_reminder")
	result, err := handler(context.Background(), nil)
	if err != nil {
		t.Fatalf("handler: %v", err)
	}
	m := result.(map[string]any)
	if m["title"] != "event" || m["minutes_until"] != 10 {
		t.Errorf("defaults: got %+v", m)
	}
}

func TestFeedPreloadHandler(t *testing.T) {
	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"speech":"loaded","artifact":{"type":"feed","data":[{}]}}`))
	}))
	defer srv.Close()

	tl := newTestTools(t, srv.URL)
	reg := tasks.NewRegistry()
	tl.RegisterHandlers(reg)

	handler, _ := reg.Lookup("feed_preload")
	result, err := handler(context.Background(), json.RawMessage(`{"profile_names":["alpha","beta"]}`))
	if err != nil {
		t.Fatalf("handler: %v", err)
	}
	m := result.(map[string]any)
	if m["success_count"] != 2 || m["total_count"] != 2 {
		t.Errorf("counts: got %+v", m)
	}
	if calls != 2 {
		t.Errorf("workflow calls: got %d, want 2", calls)
	}
}
