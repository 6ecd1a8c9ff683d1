package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/vesper-agent/vesper/internal/tasks"
)

// RegisterHandlers wires the background task handlers onto the registry.
// Handlers run off-session: they fetch data through the same workflows the
// live tools use, and their results feed the announcement templates.
func (t *Tools) RegisterHandlers(reg *tasks.Registry) {
	reg.Register("email_check", t.handleEmailCheck)
	reg.Register("feed_preload", t.handleFeedPreload)
	reg.Register("calendar_reminder", t.handleCalendarReminder)
}

type emailCheckParams struct {
	Filter string `json:"filter"`
	Count  int    `json:"count"`
}

// handleEmailCheck fetches the inbox and reports how many emails were found.
func (t *Tools) handleEmailCheck(ctx context.Context, params json.RawMessage) (any, error) {
	p := emailCheckParams{Filter: defaultEmailFilter, Count: defaultEmailCount}
	if len(params) > 0 {
		if err := json.Unmarshal(params, &p); err != nil {
			return nil, fmt.Errorf("email_check params: %w", err)
		}
	}

	if _, err := t.ReadEmails(ctx, p.Count, p.Filter); err != nil {
		return nil, err
	}

	// ReadEmails cached the fetched list; count what actually arrived.
	count := 0
	if data, err := t.cache.Get("emails"); err == nil && data != nil {
		var items []json.RawMessage
		if json.Unmarshal(data, &items) == nil {
			count = len(items)
		}
	}

	return map[string]any{
		"count":  count,
		"filter": p.Filter,
	}, nil
}

type feedPreloadParams struct {
	ProfileNames []string `json:"profile_names"`
}

// handleFeedPreload warms the feed cache for each configured profile so
// follow-up questions answer instantly.
func (t *Tools) handleFeedPreload(ctx context.Context, params json.RawMessage) (any, error) {
	var p feedPreloadParams
	if len(params) > 0 {
		if err := json.Unmarshal(params, &p); err != nil {
			return nil, fmt.Errorf("feed_preload params: %w", err)
		}
	}

	start := time.Now()
	successCount := 0
	for _, profile := range p.ProfileNames {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		resp, err := t.workflows.Call(ctx, "preload-feed", map[string]any{"profile": profile})
		if err != nil {
			t.log.Warn("feed preload failed", "profile", profile, "error", err)
			continue
		}
		if resp.Artifact != nil && len(resp.Artifact.Data) > 0 {
			t.saveContext("feed:"+profile, resp.Artifact.Data, map[string]any{"profile": profile})
		}
		successCount++
	}

	return map[string]any{
		"success_count": successCount,
		"total_count":   len(p.ProfileNames),
		"elapsed":       time.Since(start).Seconds(),
	}, nil
}

type calendarReminderParams struct {
	Title        string `json:"title"`
	MinutesUntil int    `json:"minutes_until"`
}

// handleCalendarReminder surfaces an upcoming event. The event details ride
// in the params; the handler validates them and passes them through so the
// announcement template can speak them.
func (t *Tools) handleCalendarReminder(_ context.Context, params json.RawMessage) (any, error) {
	p := calendarReminderParams{Title: "event", MinutesUntil: 10}
	if len(params) > 0 {
		if err := json.Unmarshal(params, &p); err != nil {
			return nil, fmt.Errorf("calendar_reminder params: %w", err)
		}
	}
	if p.Title == "" {
		p.Title = "event"
	}

	return map[string]any{
		"title":         p.Title,
		"minutes_until": p.MinutesUntil,
	}, nil
}
