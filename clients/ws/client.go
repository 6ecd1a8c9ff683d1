// Package ws provides a WebSocket client for the Vesper gateway.
package ws

import (
	"context"
	"encoding/json"
	"fmt"
	"sync/atomic"

	"github.com/coder/websocket"

	wsprotocol "github.com/vesper-agent/vesper/internal/gateway/ws"
	"github.com/vesper-agent/vesper/internal/sessions"
)

// Client is a WebSocket client for the Vesper gateway.
type Client struct {
	conn   *websocket.Conn
	reqSeq uint64
	ctx    context.Context
	cancel context.CancelFunc
}

// Dial connects to the gateway WebSocket endpoint.
func Dial(ctx context.Context, url string) (*Client, error) {
	conn, _, err := websocket.Dial(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("ws dial: %w", err)
	}

	clientCtx, cancel := context.WithCancel(ctx)

	return &Client{
		conn:   conn,
		ctx:    clientCtx,
		cancel: cancel,
	}, nil
}

// OpenSession starts a new voice session and returns its metadata.
func (c *Client) OpenSession() (*sessions.Session, error) {
	resp, err := c.request(wsprotocol.MethodOpenSession, "", nil)
	if err != nil {
		return nil, err
	}

	var sess sessions.Session
	if err := json.Unmarshal(resp.Payload, &sess); err != nil {
		return nil, fmt.Errorf("decode session: %w", err)
	}
	return &sess, nil
}

// CloseSession closes a session by id.
func (c *Client) CloseSession(sessionID string) error {
	_, err := c.request(wsprotocol.MethodCloseSession, sessionID, nil)
	return err
}

// SendMessage delivers a user utterance into a session.
func (c *Client) SendMessage(sessionID, content string) error {
	params, err := json.Marshal(map[string]string{"content": content})
	if err != nil {
		return err
	}
	_, err = c.request(wsprotocol.MethodUserMessage, sessionID, params)
	return err
}

// CreateTask queues a background task and returns its id.
func (c *Client) CreateTask(taskType string, taskParams json.RawMessage) (string, error) {
	params, err := json.Marshal(map[string]any{
		"task_type": taskType,
		"params":    taskParams,
	})
	if err != nil {
		return "", err
	}

	resp, err := c.request(wsprotocol.MethodCreateTask, "", params)
	if err != nil {
		return "", err
	}

	var payload map[string]string
	if err := json.Unmarshal(resp.Payload, &payload); err != nil {
		return "", fmt.Errorf("decode response: %w", err)
	}
	return payload["task_id"], nil
}

// request sends a request frame and waits for its matching response,
// discarding unrelated event frames along the way.
func (c *Client) request(method wsprotocol.Method, sessionID string, params json.RawMessage) (wsprotocol.Frame, error) {
	seq := atomic.AddUint64(&c.reqSeq, 1)
	id := fmt.Sprintf("req-%d", seq)

	frame := wsprotocol.Frame{
		Type:      wsprotocol.FrameTypeRequest,
		ID:        id,
		Method:    string(method),
		SessionID: sessionID,
		Params:    params,
	}

	data, err := wsprotocol.MarshalFrame(frame)
	if err != nil {
		return wsprotocol.Frame{}, err
	}
	if err := c.conn.Write(c.ctx, websocket.MessageText, data); err != nil {
		return wsprotocol.Frame{}, err
	}

	for {
		resp, err := c.ReadFrame()
		if err != nil {
			return wsprotocol.Frame{}, err
		}
		if resp.Type != wsprotocol.FrameTypeResponse || resp.ID != id {
			continue
		}
		if resp.OK == nil || !*resp.OK {
			return resp, fmt.Errorf("%s: %s", method, resp.Error)
		}
		return resp, nil
	}
}

// ReadFrame reads the next frame from the connection.
func (c *Client) ReadFrame() (wsprotocol.Frame, error) {
	_, data, err := c.conn.Read(c.ctx)
	if err != nil {
		return wsprotocol.Frame{}, err
	}
	return wsprotocol.UnmarshalFrame(data)
}

// Close gracefully closes the connection.
func (c *Client) Close() error {
	c.cancel()
	return c.conn.Close(websocket.StatusNormalClosure, "bye")
}
