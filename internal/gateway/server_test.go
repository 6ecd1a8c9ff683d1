package gateway

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/vesper-agent/vesper/internal/events"
	"github.com/vesper-agent/vesper/internal/memory"
	"github.com/vesper-agent/vesper/internal/sessions"
	"github.com/vesper-agent/vesper/internal/store"
	"github.com/vesper-agent/vesper/internal/tasks"
)

func newTestServer(t *testing.T) (*Server, *store.Store, *events.Bus) {
	t.Helper()

	dir := t.TempDir()
	st, err := store.Open(filepath.Join(dir, "vesper.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	bus := events.NewBus(64)
	t.Cleanup(bus.Close)

	srv := NewServer(Config{
		Port:     0,
		Bus:      bus,
		Sessions: sessions.NewFileStore(filepath.Join(dir, "sessions")),
		Cache:    memory.New(st, time.Hour),
		Queue:    tasks.NewQueue(st, bus),
		Store:    st,
	})
	return srv, st, bus
}

func doRequest(t *testing.T, srv *Server, method, path string, body []byte) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != nil {
		req = httptest.NewRequest(method, path, bytes.NewReader(body))
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	return rec
}

func TestHealth(t *testing.T) {
	srv, _, _ := newTestServer(t)

	rec := doRequest(t, srv, http.MethodGet, "/api/health", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var resp map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if resp["status"] != "ok" {
		t.Errorf("expected status ok, got %v", resp["status"])
	}
}

func TestCreateAndGetTask(t *testing.T) {
	srv, _, _ := newTestServer(t)

	body := []byte(`{"task_type":"email_check","params":{"count":5}}`)
	rec := doRequest(t, srv, http.MethodPost, "/api/tasks", body)
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}

	var created map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &created); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	taskID := created["task_id"]
	if taskID == "" {
		t.Fatal("expected task_id in response")
	}

	rec = doRequest(t, srv, http.MethodGet, "/api/tasks/"+taskID, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var task store.Task
	if err := json.Unmarshal(rec.Body.Bytes(), &task); err != nil {
		t.Fatalf("unmarshal task: %v", err)
	}
	if task.Type != "email_check" {
		t.Errorf("expected type email_check, got %q", task.Type)
	}
	if task.Status != store.TaskPending {
		t.Errorf("expected pending, got %q", task.Status)
	}
}

func TestCreateTaskRequiresType(t *testing.T) {
	srv, _, _ := newTestServer(t)

	rec := doRequest(t, srv, http.MethodPost, "/api/tasks", []byte(`{"params":{}}`))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestGetTaskNotFound(t *testing.T) {
	srv, _, _ := newTestServer(t)

	rec := doRequest(t, srv, http.MethodGet, "/api/tasks/task_nope", nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

func TestListTasks(t *testing.T) {
	srv, _, _ := newTestServer(t)

	for i := 0; i < 3; i++ {
		doRequest(t, srv, http.MethodPost, "/api/tasks", []byte(`{"task_type":"feed_preload"}`))
	}

	rec := doRequest(t, srv, http.MethodGet, "/api/tasks?limit=2", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var resp struct {
		Tasks []*store.Task `json:"tasks"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(resp.Tasks) != 2 {
		t.Errorf("expected 2 tasks with limit=2, got %d", len(resp.Tasks))
	}
}

func TestContextRoundTrip(t *testing.T) {
	srv, _, _ := newTestServer(t)

	rec := doRequest(t, srv, http.MethodPut, "/api/context/emails", []byte(`{"emails":[{"subject":"hi"}]}`))
	if rec.Code != http.StatusOK {
		t.Fatalf("put: expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	rec = doRequest(t, srv, http.MethodGet, "/api/context/emails", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("get: expected 200, got %d", rec.Code)
	}

	var resp struct {
		Key        string          `json:"key"`
		Value      json.RawMessage `json:"value"`
		AgeSeconds int             `json:"age_seconds"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if resp.Key != "emails" {
		t.Errorf("expected key emails, got %q", resp.Key)
	}
	if len(resp.Value) == 0 {
		t.Error("expected value in response")
	}

	rec = doRequest(t, srv, http.MethodGet, "/api/context", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("list: expected 200, got %d", rec.Code)
	}
	var keys struct {
		Keys []string `json:"keys"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &keys); err != nil {
		t.Fatalf("unmarshal keys: %v", err)
	}
	if len(keys.Keys) != 1 || keys.Keys[0] != "emails" {
		t.Errorf("expected [emails], got %v", keys.Keys)
	}

	rec = doRequest(t, srv, http.MethodDelete, "/api/context/emails", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("delete: expected 200, got %d", rec.Code)
	}

	rec = doRequest(t, srv, http.MethodGet, "/api/context/emails", nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("after delete: expected 404, got %d", rec.Code)
	}
}

func TestPutContextRejectsInvalidJSON(t *testing.T) {
	srv, _, _ := newTestServer(t)

	rec := doRequest(t, srv, http.MethodPut, "/api/context/bad", []byte(`not json`))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestListAnnouncements(t *testing.T) {
	srv, st, _ := newTestServer(t)

	ann := &store.Announcement{
		ID:      store.GenerateAnnouncementID(),
		Message: "Your email check finished.",
		Title:   "Email Check",
	}
	if err := st.InsertAnnouncement(ann); err != nil {
		t.Fatalf("insert announcement: %v", err)
	}

	rec := doRequest(t, srv, http.MethodGet, "/api/announcements", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var resp struct {
		Announcements []*store.Announcement `json:"announcements"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(resp.Announcements) != 1 {
		t.Fatalf("expected 1 announcement, got %d", len(resp.Announcements))
	}
	if resp.Announcements[0].Message != "Your email check finished." {
		t.Errorf("unexpected message %q", resp.Announcements[0].Message)
	}
}

func TestEventsEndpoint(t *testing.T) {
	srv, _, bus := newTestServer(t)

	bus.Publish(events.NewTypedEvent(events.SourceProcessor, events.TaskCreatedPayload{
		TaskID:   "task_1",
		TaskType: "email_check",
	}))
	time.Sleep(50 * time.Millisecond)

	rec := doRequest(t, srv, http.MethodGet, "/api/events", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var resp struct {
		Events []events.Event `json:"events"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(resp.Events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(resp.Events))
	}
	if resp.Events[0].Type != events.EventTaskCreated {
		t.Errorf("unexpected event type %q", resp.Events[0].Type)
	}
}

func TestSessionsEndpoint(t *testing.T) {
	srv, _, _ := newTestServer(t)

	sess, err := srv.cfg.Sessions.Create()
	if err != nil {
		t.Fatalf("create session: %v", err)
	}
	if err := srv.cfg.Sessions.AppendMessage(sess.ID, sessions.Message{
		Role:    "assistant",
		Content: "Good morning.",
		Ts:      time.Now(),
	}); err != nil {
		t.Fatalf("append message: %v", err)
	}

	rec := doRequest(t, srv, http.MethodGet, "/api/sessions", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("list: expected 200, got %d", rec.Code)
	}

	rec = doRequest(t, srv, http.MethodGet, "/api/sessions/"+sess.ID, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("get: expected 200, got %d", rec.Code)
	}

	var resp struct {
		Session  *sessions.Session  `json:"session"`
		Messages []sessions.Message `json:"messages"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if resp.Session == nil || resp.Session.ID != sess.ID {
		t.Fatalf("unexpected session %+v", resp.Session)
	}
	if len(resp.Messages) != 1 || resp.Messages[0].Content != "Good morning." {
		t.Errorf("unexpected messages %+v", resp.Messages)
	}
}
