package models

import (
	"context"
	"io"
	"net/http"
	"strings"
	"time"

	einoollama "github.com/cloudwego/eino-ext/components/model/ollama"
	"github.com/cloudwego/eino/components/model"

	"github.com/vesper-agent/vesper/internal/config"
)

const (
	defaultOllamaBaseURL = "http://localhost:11434"
	defaultOllamaTimeout = 300 * time.Second
	errorBodyLimit       = 512
)

// NewOllama creates a new Ollama ChatModel.
func NewOllama(ctx context.Context, cfg config.ProviderConfig) (model.ToolCallingChatModel, error) {
	timeout := cfg.Timeout.Duration()
	if timeout <= 0 {
		timeout = defaultOllamaTimeout
	}

	modelConfig := &einoollama.ChatModelConfig{
		BaseURL: defaultOllamaBaseURL,
		Model:   cfg.Model,
		Timeout: timeout,
		Options: ollamaOptions(cfg),
		// Local Ollama often sits behind a reverse proxy; guard against
		// proxies answering with a plain text error page instead of the API.
		HTTPClient: &http.Client{
			Timeout:   timeout,
			Transport: &jsonGuard{next: http.DefaultTransport, provider: "ollama"},
		},
	}
	if cfg.BaseURL != "" {
		modelConfig.BaseURL = cfg.BaseURL
	}

	return einoollama.NewChatModel(ctx, modelConfig)
}

func ollamaOptions(cfg config.ProviderConfig) *einoollama.Options {
	opts := &einoollama.Options{}
	if cfg.MaxTokens > 0 {
		opts.NumPredict = cfg.MaxTokens
	}
	if temp, ok := cfg.Options["temperature"].(float64); ok {
		opts.Temperature = float32(temp)
	}
	if numCtx, ok := cfg.Options["num_ctx"].(float64); ok {
		opts.NumCtx = int(numCtx)
	}
	if numPredict, ok := cfg.Options["num_predict"].(float64); ok {
		opts.NumPredict = int(numPredict)
	}
	if topP, ok := cfg.Options["top_p"].(float64); ok {
		opts.TopP = float32(topP)
	}
	if topK, ok := cfg.Options["top_k"].(float64); ok {
		opts.TopK = int(topK)
	}
	return opts
}

// jsonGuard rejects responses that cannot have come from the Ollama API.
// Transport failures, HTTP errors, and bodies without a JSON content type
// all become ErrModelUnavailable so the registry can report cleanly.
type jsonGuard struct {
	next     http.RoundTripper
	provider string
}

func (g *jsonGuard) RoundTrip(req *http.Request) (*http.Response, error) {
	resp, err := g.next.RoundTrip(req)
	if err != nil {
		return nil, &ErrModelUnavailable{Provider: g.provider, Cause: err}
	}

	if resp.StatusCode >= 400 {
		return nil, g.unavailable(resp)
	}

	// Streaming responses carry application/x-ndjson, everything else
	// application/json. Anything else is a proxy error page.
	ct := resp.Header.Get("Content-Type")
	if ct != "" && !strings.Contains(ct, "json") {
		return nil, g.unavailable(resp)
	}

	return resp, nil
}

func (g *jsonGuard) unavailable(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, errorBodyLimit))
	resp.Body.Close()
	return &ErrModelUnavailable{Provider: g.provider, Body: strings.TrimSpace(string(body))}
}
