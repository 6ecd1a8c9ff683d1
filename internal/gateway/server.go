// Package gateway provides the local HTTP and WebSocket surface for
// frontends and debug tooling.
package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/vesper-agent/vesper/internal/events"
	"github.com/vesper-agent/vesper/internal/gateway/ws"
	"github.com/vesper-agent/vesper/internal/memory"
	"github.com/vesper-agent/vesper/internal/sessions"
	"github.com/vesper-agent/vesper/internal/store"
	"github.com/vesper-agent/vesper/internal/tasks"
)

// Config holds the gateway server dependencies.
type Config struct {
	Host     string
	Port     int
	Bus      *events.Bus
	Sessions sessions.Store
	Cache    *memory.Cache
	Queue    *tasks.Queue
	Store    *store.Store
	Log      *slog.Logger
}

// Server is the gateway HTTP server.
type Server struct {
	cfg        Config
	hub        *ws.Hub
	httpServer *http.Server
	log        *slog.Logger
}

// NewServer creates a gateway server with all routes mounted.
func NewServer(cfg Config) *Server {
	log := cfg.Log
	if log == nil {
		log = slog.Default()
	}

	hub := ws.NewHub(cfg.Bus, cfg.Sessions)
	if cfg.Queue != nil {
		hub.SetTaskHandler(NewQueueTaskHandler(cfg.Queue))
	}

	s := &Server{
		cfg: cfg,
		hub: hub,
		log: log,
	}

	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Get("/api/health", s.handleHealth)
	r.Get("/api/ws", hub.ServeWS)
	r.Get("/api/events", s.handleEvents)
	r.Get("/api/sessions", s.handleListSessions)
	r.Get("/api/sessions/{id}", s.handleGetSession)
	r.Get("/api/context", s.handleListContext)
	r.Get("/api/context/{key}", s.handleGetContext)
	r.Put("/api/context/{key}", s.handlePutContext)
	r.Delete("/api/context/{key}", s.handleDeleteContext)
	r.Get("/api/tasks", s.handleListTasks)
	r.Post("/api/tasks", s.handleCreateTask)
	r.Get("/api/tasks/{id}", s.handleGetTask)
	r.Get("/api/announcements", s.handleListAnnouncements)

	host := cfg.Host
	if host == "" {
		host = "127.0.0.1"
	}

	s.httpServer = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", host, cfg.Port),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	return s
}

// Handler returns the HTTP handler, for tests.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Start begins listening. Blocks until the server stops.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.httpServer.Addr)
	if err != nil {
		return fmt.Errorf("gateway listen: %w", err)
	}
	s.log.Info("gateway listening", "addr", s.httpServer.Addr)
	if err := s.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown gracefully stops the server and disconnects WS clients.
func (s *Server) Shutdown(ctx context.Context) error {
	s.hub.Close()
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ok",
		"time":   time.Now().UTC().Format(time.RFC3339),
	})
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	limit := queryInt(r, "limit", 50)
	history := s.cfg.Bus.History(limit)
	if history == nil {
		history = []events.Event{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"events": history})
}

func (s *Server) handleListSessions(w http.ResponseWriter, r *http.Request) {
	list, err := s.cfg.Sessions.List()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"sessions": list})
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	sess, err := s.cfg.Sessions.Get(id)
	if err != nil {
		writeError(w, http.StatusNotFound, err)
		return
	}
	msgs, err := s.cfg.Sessions.LoadMessages(id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"session":  sess,
		"messages": msgs,
	})
}

func (s *Server) handleListContext(w http.ResponseWriter, r *http.Request) {
	keys, err := s.cfg.Cache.Keys()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	if keys == nil {
		keys = []string{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"keys": keys})
}

func (s *Server) handleGetContext(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")
	rec, err := s.cfg.Cache.GetWithMetadata(key)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	if rec == nil {
		writeError(w, http.StatusNotFound, fmt.Errorf("no context entry for %q", key))
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"key":         key,
		"value":       rec.Value,
		"metadata":    rec.Metadata,
		"age_seconds": rec.AgeSeconds(),
	})
}

func (s *Server) handlePutContext(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")
	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if !json.Valid(body) {
		writeError(w, http.StatusBadRequest, errors.New("body must be valid JSON"))
		return
	}
	if err := s.cfg.Cache.SaveRaw(key, body, nil); err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "saved", "key": key})
}

func (s *Server) handleDeleteContext(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")
	if err := s.cfg.Cache.Clear(key); err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted", "key": key})
}

func (s *Server) handleListTasks(w http.ResponseWriter, r *http.Request) {
	limit := queryInt(r, "limit", 50)
	list, err := s.cfg.Queue.List(limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	if list == nil {
		list = []*store.Task{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"tasks": list})
}

func (s *Server) handleCreateTask(w http.ResponseWriter, r *http.Request) {
	var req struct {
		TaskType string          `json:"task_type"`
		Params   json.RawMessage `json:"params"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if req.TaskType == "" {
		writeError(w, http.StatusBadRequest, errors.New("task_type is required"))
		return
	}
	id, err := s.cfg.Queue.Create(req.TaskType, req.Params)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"task_id": id})
}

func (s *Server) handleGetTask(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	task, err := s.cfg.Queue.Get(id)
	if err != nil {
		writeError(w, http.StatusNotFound, err)
		return
	}
	writeJSON(w, http.StatusOK, task)
}

func (s *Server) handleListAnnouncements(w http.ResponseWriter, r *http.Request) {
	limit := queryInt(r, "limit", 50)
	list, err := s.cfg.Store.ListAnnouncements(limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	if list == nil {
		list = []*store.Announcement{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"announcements": list})
}

func queryInt(r *http.Request, name string, def int) int {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return def
	}
	return n
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("write response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}
