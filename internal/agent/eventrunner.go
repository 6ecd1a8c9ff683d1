package agent

import (
	"context"
	"io"
	"log/slog"
	"sync"

	"github.com/cloudwego/eino/adk"
	"github.com/cloudwego/eino/schema"
	"github.com/google/uuid"

	"github.com/vesper-agent/vesper/internal/events"
)

// EventRunner drives the agent from bus events. Each user utterance runs
// one agent turn; the final assistant text is published as speech so the
// voice surface and the session recorder both pick it up.
type EventRunner struct {
	runner *adk.Runner
	bus    *events.Bus

	mu      sync.Mutex
	history map[string][]*schema.Message
	running bool

	ctx         context.Context
	cancel      context.CancelFunc
	unsubscribe func()
}

// EventRunnerConfig holds dependencies for the EventRunner.
type EventRunnerConfig struct {
	Runner   *adk.Runner
	EventBus *events.Bus
}

// NewEventRunner subscribes an agent runner to user message events.
func NewEventRunner(cfg EventRunnerConfig) *EventRunner {
	ctx, cancel := context.WithCancel(context.Background())

	er := &EventRunner{
		runner:  cfg.Runner,
		bus:     cfg.EventBus,
		history: make(map[string][]*schema.Message),
		ctx:     ctx,
		cancel:  cancel,
	}

	er.unsubscribe = cfg.EventBus.Subscribe(er.handleEvent, events.EventUserMessage)
	return er
}

func (er *EventRunner) handleEvent(event events.Event) {
	payload, ok := events.ExtractPayload[events.UserMessagePayload](event)
	if !ok || payload.Content == "" {
		return
	}
	go er.processMessage(payload.SessionID, payload.Content)
}

func (er *EventRunner) processMessage(sessionID, content string) {
	er.mu.Lock()
	if er.running {
		er.mu.Unlock()
		return
	}
	er.running = true
	er.history[sessionID] = append(er.history[sessionID], &schema.Message{
		Role:    schema.User,
		Content: content,
	})
	msgs := er.history[sessionID]
	er.mu.Unlock()

	defer func() {
		er.mu.Lock()
		er.running = false
		er.mu.Unlock()
	}()

	reply := er.runTurn(msgs)
	if reply == "" {
		return
	}

	er.mu.Lock()
	er.history[sessionID] = append(er.history[sessionID], &schema.Message{
		Role:    schema.Assistant,
		Content: reply,
	})
	er.mu.Unlock()

	er.bus.Publish(events.NewTypedEventWithSession(events.SourceAgent, events.SpeechPayload{
		Text: reply,
	}, sessionID))
}

func (er *EventRunner) runTurn(msgs []*schema.Message) string {
	iter := er.runner.Run(er.ctx, msgs, adk.WithCheckPointID(uuid.New().String()))

	var reply string
	for {
		event, ok := iter.Next()
		if !ok {
			break
		}
		if event.Err != nil {
			slog.Error("agent turn", "error", event.Err)
			return ""
		}
		if event.Output == nil || event.Output.MessageOutput == nil {
			continue
		}

		mv := event.Output.MessageOutput

		// Intermediate tool results are not spoken.
		if mv.Role == schema.Tool {
			if mv.IsStreaming && mv.MessageStream != nil {
				mv.MessageStream.Close()
			}
			continue
		}

		if mv.IsStreaming {
			if content := drainStream(mv.MessageStream); content != "" {
				reply = content
			}
		} else if mv.Message != nil {
			if len(mv.Message.ToolCalls) > 0 && mv.Message.Content == "" {
				continue
			}
			if mv.Message.Content != "" {
				reply = mv.Message.Content
			}
		}
	}
	return reply
}

func drainStream(stream *schema.StreamReader[*schema.Message]) string {
	var full string
	for {
		chunk, err := stream.Recv()
		if err == io.EOF {
			break
		}
		if err != nil {
			slog.Error("agent stream", "error", err)
			break
		}
		if chunk != nil && chunk.Content != "" {
			full += chunk.Content
		}
	}
	return full
}

// Close stops the runner and detaches it from the bus.
func (er *EventRunner) Close() {
	er.cancel()
	if er.unsubscribe != nil {
		er.unsubscribe()
	}
}
