package tools

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/vesper-agent/vesper/internal/config"
)

const apiKeyHeader = "X-Vesper-API-Key"

// Artifact carries display data returned by a workflow, forwarded to the
// frontend panel alongside the spoken response.
type Artifact struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// WorkflowResponse is the common shape webhook workflows return.
type WorkflowResponse struct {
	Speech   string          `json:"speech"`
	Artifact *Artifact       `json:"artifact"`
	Raw      json.RawMessage `json:"-"`
}

// WorkflowClient proxies tool calls to remote automation webhooks.
type WorkflowClient struct {
	baseURL     string
	externalURL string
	apiKey      string
	httpc       *http.Client
	log         *slog.Logger
}

// NewWorkflowClient creates a webhook proxy client from config.
func NewWorkflowClient(cfg config.WorkflowsConfig, log *slog.Logger) *WorkflowClient {
	timeout := cfg.Timeout.Duration()
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	if log == nil {
		log = slog.Default()
	}
	return &WorkflowClient{
		baseURL:     strings.TrimRight(cfg.BaseURL, "/"),
		externalURL: strings.TrimRight(cfg.ExternalURL, "/"),
		apiKey:      cfg.APIKey,
		httpc:       &http.Client{Timeout: timeout},
		log:         log.With("component", "workflows"),
	}
}

// isWebhookID reports whether endpoint is a raw webhook id rather than a
// path segment. Webhook ids are 36-char UUIDs.
func isWebhookID(endpoint string) bool {
	return len(endpoint) == 36 && strings.Contains(endpoint, "-")
}

// resolveURL picks the local instance for path endpoints and the external
// host for raw webhook ids.
func (c *WorkflowClient) resolveURL(endpoint string) string {
	if isWebhookID(endpoint) && c.externalURL != "" {
		return c.externalURL + "/" + endpoint
	}
	return c.baseURL + "/" + endpoint
}

// Call posts payload to the named workflow and decodes the JSON response.
func (c *WorkflowClient) Call(ctx context.Context, endpoint string, payload any) (*WorkflowResponse, error) {
	raw, err := c.CallRaw(ctx, endpoint, payload)
	if err != nil {
		return nil, err
	}

	resp := &WorkflowResponse{Raw: raw}
	if err := json.Unmarshal(raw, resp); err != nil {
		return nil, fmt.Errorf("decode workflow response: %w", err)
	}
	return resp, nil
}

// CallRaw posts payload to the named workflow and returns the raw JSON body.
func (c *WorkflowClient) CallRaw(ctx context.Context, endpoint string, payload any) (json.RawMessage, error) {
	url := c.resolveURL(endpoint)

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode workflow payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build workflow request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set(apiKeyHeader, c.apiKey)
	}

	c.log.Info("calling workflow", "endpoint", endpoint, "url", url)

	resp, err := c.httpc.Do(req)
	if err != nil {
		return nil, fmt.Errorf("call workflow %s: %w", endpoint, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, fmt.Errorf("read workflow response: %w", err)
	}

	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("workflow %s returned %d: %s", endpoint, resp.StatusCode, truncateBody(data))
	}

	c.log.Debug("workflow complete", "endpoint", endpoint, "status", resp.StatusCode)
	return data, nil
}

func truncateBody(b []byte) string {
	s := strings.TrimSpace(string(b))
	if len(s) > 200 {
		return s[:200]
	}
	return s
}
