// Package ws bridges the event bus to frontend WebSocket clients.
package ws

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"

	"github.com/vesper-agent/vesper/internal/events"
	"github.com/vesper-agent/vesper/internal/sessions"
)

// TaskHandler exposes the task queue to WS clients.
type TaskHandler interface {
	Create(taskType string, params json.RawMessage) (string, error)
	Check(taskID string) (any, error)
	List() (any, error)
}

// Client represents a connected WebSocket client.
type Client struct {
	conn *websocket.Conn
	send chan []byte
	hub  *Hub
}

// Hub manages WebSocket clients and bridges them to the event bus.
type Hub struct {
	mu          sync.RWMutex
	clients     map[*Client]struct{}
	bus         *events.Bus
	store       sessions.Store
	tasks       TaskHandler
	unsubscribe func()
}

// NewHub creates a new WebSocket hub connected to an event bus.
func NewHub(bus *events.Bus, store sessions.Store) *Hub {
	h := &Hub{
		clients: make(map[*Client]struct{}),
		bus:     bus,
		store:   store,
	}

	// Subscribe to all events and bridge to WS clients
	h.unsubscribe = bus.Subscribe(func(e events.Event) {
		frame, err := NewEventFrame(string(e.Type), e.SessionID, e.Payload)
		if err != nil {
			slog.Error("marshal event frame", "error", err)
			return
		}
		data, err := MarshalFrame(frame)
		if err != nil {
			slog.Error("marshal frame", "error", err)
			return
		}
		h.broadcast(data)
	})

	return h
}

// SetTaskHandler wires the task queue into the hub.
func (h *Hub) SetTaskHandler(th TaskHandler) {
	h.tasks = th
}

// broadcast sends data to all connected clients.
func (h *Hub) broadcast(data []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for c := range h.clients {
		select {
		case c.send <- data:
		default:
			// Client too slow, skip
		}
	}
}

// register adds a client to the hub.
func (h *Hub) register(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[c] = struct{}{}
	slog.Info("ws client connected", "clients", len(h.clients))
}

// unregister removes a client from the hub.
func (h *Hub) unregister(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
		slog.Info("ws client disconnected", "clients", len(h.clients))
	}
}

// ServeWS handles a WebSocket upgrade and manages the client lifecycle.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		InsecureSkipVerify: true, // Allow any origin for dev
	})
	if err != nil {
		slog.Error("ws accept", "error", err)
		return
	}

	client := &Client{
		conn: conn,
		send: make(chan []byte, 256),
		hub:  h,
	}

	h.register(client)

	ctx := r.Context()
	go client.writePump(ctx)
	client.readPump(ctx)
}

// readPump reads frames from the WS connection and dispatches them.
func (c *Client) readPump(ctx context.Context) {
	defer func() {
		c.hub.unregister(c)
		c.conn.Close(websocket.StatusNormalClosure, "")
	}()

	for {
		_, data, err := c.conn.Read(ctx)
		if err != nil {
			if websocket.CloseStatus(err) != -1 {
				slog.Debug("ws read closed", "status", websocket.CloseStatus(err))
			} else {
				slog.Debug("ws read error", "error", err)
			}
			return
		}

		frame, err := UnmarshalFrame(data)
		if err != nil {
			slog.Error("ws unmarshal frame", "error", err)
			continue
		}

		if frame.Type == FrameTypeRequest {
			c.handleRequest(frame)
		} else {
			slog.Debug("ws unknown frame type", "type", frame.Type)
		}
	}
}

// handleRequest processes a request frame (method dispatch).
func (c *Client) handleRequest(frame Frame) {
	switch Method(frame.Method) {
	case MethodOpenSession:
		s, err := c.hub.store.Create()
		if err != nil {
			c.sendError(frame.ID, err.Error())
			return
		}
		c.hub.bus.Publish(events.NewTypedEventWithSession(events.SourceGateway, events.SessionPayload{
			SessionID: s.ID,
		}, s.ID))
		c.sendOK(frame.ID, s)

	case MethodCloseSession:
		if frame.SessionID == "" {
			c.sendError(frame.ID, "session_id required")
			return
		}
		c.hub.bus.Publish(events.NewTypedEventWithSession(events.SourceGateway, events.SessionClosedPayload{
			SessionID: frame.SessionID,
		}, frame.SessionID))
		c.sendOK(frame.ID, map[string]string{"status": "closed"})

	case MethodUserMessage:
		var params struct {
			Content string `json:"content"`
		}
		if err := json.Unmarshal(frame.Params, &params); err != nil {
			c.sendError(frame.ID, "invalid params")
			return
		}
		if params.Content == "" {
			c.sendError(frame.ID, "content required")
			return
		}
		if frame.SessionID != "" {
			if err := c.hub.store.AppendMessage(frame.SessionID, sessions.Message{
				Role:    "user",
				Content: params.Content,
				Ts:      time.Now(),
			}); err != nil {
				c.sendError(frame.ID, err.Error())
				return
			}
		}
		c.hub.bus.Publish(events.NewTypedEventWithSession(events.SourceGateway, events.UserMessagePayload{
			SessionID: frame.SessionID,
			Content:   params.Content,
		}, frame.SessionID))
		c.sendOK(frame.ID, map[string]string{"status": "received"})

	case MethodCreateTask:
		if c.hub.tasks == nil {
			c.sendError(frame.ID, "task system not available")
			return
		}
		var params struct {
			TaskType string          `json:"task_type"`
			Params   json.RawMessage `json:"params"`
		}
		if err := json.Unmarshal(frame.Params, &params); err != nil {
			c.sendError(frame.ID, "invalid params")
			return
		}
		id, err := c.hub.tasks.Create(params.TaskType, params.Params)
		if err != nil {
			c.sendError(frame.ID, err.Error())
			return
		}
		c.sendOK(frame.ID, map[string]string{"task_id": id})

	case MethodCheckTask:
		if c.hub.tasks == nil {
			c.sendError(frame.ID, "task system not available")
			return
		}
		var params struct {
			TaskID string `json:"task_id"`
		}
		if err := json.Unmarshal(frame.Params, &params); err != nil {
			c.sendError(frame.ID, "invalid params")
			return
		}
		result, err := c.hub.tasks.Check(params.TaskID)
		if err != nil {
			c.sendError(frame.ID, err.Error())
			return
		}
		c.sendOK(frame.ID, result)

	case MethodListTasks:
		if c.hub.tasks == nil {
			c.sendError(frame.ID, "task system not available")
			return
		}
		result, err := c.hub.tasks.List()
		if err != nil {
			c.sendError(frame.ID, err.Error())
			return
		}
		c.sendOK(frame.ID, result)

	default:
		c.sendError(frame.ID, "unknown method: "+frame.Method)
	}
}

// writePump writes queued messages to the WS connection.
func (c *Client) writePump(ctx context.Context) {
	for {
		select {
		case msg, ok := <-c.send:
			if !ok {
				return
			}
			if err := c.conn.Write(ctx, websocket.MessageText, msg); err != nil {
				return
			}
		case <-ctx.Done():
			return
		}
	}
}

func (c *Client) sendOK(id string, payload any) {
	f, err := NewResponseFrame(id, true, payload, "")
	if err != nil {
		return
	}
	c.enqueue(f)
}

func (c *Client) sendError(id string, errMsg string) {
	f, err := NewResponseFrame(id, false, nil, errMsg)
	if err != nil {
		return
	}
	c.enqueue(f)
}

func (c *Client) enqueue(f Frame) {
	data, err := MarshalFrame(f)
	if err != nil {
		return
	}
	select {
	case c.send <- data:
	default:
	}
}

// Close shuts down the hub and all client connections.
func (h *Hub) Close() {
	if h.unsubscribe != nil {
		h.unsubscribe()
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		c.conn.Close(websocket.StatusGoingAway, "server shutdown")
		delete(h.clients, c)
	}
}
