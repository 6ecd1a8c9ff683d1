// Package tools implements the agent's callable tools. Each tool proxies a
// remote automation workflow, mirrors its display artifact onto the event
// bus, and stores the fetched data in context memory for follow-up queries.
package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/vesper-agent/vesper/internal/events"
	"github.com/vesper-agent/vesper/internal/memory"
)

const (
	maxEmailCount  = 20
	maxCalendarDay = 30

	defaultEmailCount  = 5
	defaultEmailFilter = "unread"
	defaultCalendarDay = 7
)

// artifactTypes maps context keys to the artifact panel type used to
// re-display recalled data.
var artifactTypes = map[string]string{
	"emails":   "email_list",
	"calendar": "calendar_events",
}

// Tools bundles the workflow client with the context cache and event bus.
type Tools struct {
	workflows        *WorkflowClient
	cache            *memory.Cache
	bus              *events.Bus
	calendarEndpoint string
	log              *slog.Logger
}

// New creates the tool service.
func New(workflows *WorkflowClient, cache *memory.Cache, bus *events.Bus, calendarEndpoint string, log *slog.Logger) *Tools {
	if log == nil {
		log = slog.Default()
	}
	if calendarEndpoint == "" {
		calendarEndpoint = "read-calendar"
	}
	return &Tools{
		workflows:        workflows,
		cache:            cache,
		bus:              bus,
		calendarEndpoint: calendarEndpoint,
		log:              log.With("component", "tools"),
	}
}

// ReadEmails fetches the user's inbox via the read-emails workflow and
// returns a spoken summary. The fetched list is cached under "emails".
func (t *Tools) ReadEmails(ctx context.Context, count int, filter string) (string, error) {
	if count <= 0 {
		count = defaultEmailCount
	}
	if count > maxEmailCount {
		count = maxEmailCount
	}
	if filter == "" {
		filter = defaultEmailFilter
	}

	resp, err := t.workflows.Call(ctx, "read-emails", map[string]any{
		"count":  count,
		"filter": filter,
	})
	if err != nil {
		t.log.Error("read emails failed", "error", err)
		return "", err
	}

	if resp.Artifact != nil && len(resp.Artifact.Data) > 0 {
		t.sendArtifact(ctx, resp.Artifact.Type, resp.Artifact.Data)
		t.saveContext("emails", resp.Artifact.Data, map[string]any{
			"count":  count,
			"filter": filter,
		})
	}

	if resp.Speech == "" {
		return "I couldn't retrieve your emails right now.", nil
	}
	return resp.Speech, nil
}

// calendarResult is the shape the calendar workflow returns.
type calendarResult struct {
	Summary    string          `json:"summary"`
	EventCount int             `json:"eventCount"`
	Events     json.RawMessage `json:"events"`
}

// ReadCalendar fetches upcoming calendar events and returns a spoken
// summary. Events are cached under "calendar".
func (t *Tools) ReadCalendar(ctx context.Context, days int) (string, error) {
	if days <= 0 {
		days = defaultCalendarDay
	}
	if days > maxCalendarDay {
		days = maxCalendarDay
	}

	raw, err := t.workflows.CallRaw(ctx, t.calendarEndpoint, map[string]any{
		"numberOfDays": days,
	})
	if err != nil {
		t.log.Error("read calendar failed", "error", err)
		return "", err
	}

	var result calendarResult
	if err := json.Unmarshal(raw, &result); err != nil {
		return "I couldn't retrieve your calendar events right now.", nil
	}

	if len(result.Events) > 0 && string(result.Events) != "null" && string(result.Events) != "[]" {
		t.sendArtifact(ctx, "calendar_events", result.Events)
		t.saveContext("calendar", result.Events, map[string]any{"days": days})
	}

	if result.Summary == "" {
		return "No events found.", nil
	}
	return result.Summary, nil
}

// RecallContext retrieves previously fetched data from context memory so
// follow-up questions can be answered without re-fetching. It also
// re-displays the data in the artifact panel.
func (t *Tools) RecallContext(ctx context.Context, contextType string) (string, error) {
	recalled, err := t.cache.GetWithMetadata(contextType)
	if err != nil {
		return "", fmt.Errorf("recall %s: %w", contextType, err)
	}
	if recalled == nil {
		return fmt.Sprintf("No %s data in memory. Fetch fresh data first.", contextType), nil
	}

	if artifactType, ok := artifactTypes[contextType]; ok {
		t.sendArtifact(ctx, artifactType, recalled.Value)
	}

	count := 1
	var items []json.RawMessage
	if err := json.Unmarshal(recalled.Value, &items); err == nil {
		count = len(items)
	}

	t.log.Info("recalled context", "key", contextType, "items", count, "age_seconds", recalled.AgeSeconds())

	out, err := json.Marshal(map[string]any{
		"context_type": contextType,
		"data":         recalled.Value,
		"age_seconds":  recalled.AgeSeconds(),
		"count":        count,
	})
	if err != nil {
		return "", fmt.Errorf("encode recalled context: %w", err)
	}
	return string(out), nil
}

func (t *Tools) sendArtifact(ctx context.Context, artifactType string, data json.RawMessage) {
	if t.bus == nil {
		return
	}
	t.bus.Publish(events.NewTypedEventWithSession(events.SourceTools, events.ArtifactPayload{
		ArtifactType: artifactType,
		Data:         data,
	}, events.SessionIDFromContext(ctx)))
}

func (t *Tools) saveContext(key string, data json.RawMessage, metadata map[string]any) {
	meta, err := json.Marshal(metadata)
	if err != nil {
		meta = nil
	}
	if err := t.cache.SaveRaw(key, data, meta); err != nil {
		t.log.Warn("context save failed", "key", key, "error", err)
		return
	}
	if t.bus != nil {
		t.bus.Publish(events.NewTypedEvent(events.SourceTools, events.ContextSavedPayload{Key: key}))
	}
}
