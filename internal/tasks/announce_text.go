package tasks

import (
	"encoding/json"
	"fmt"
)

// announcementText renders the spoken summary of a completed task using a
// per-type template, falling back to a generic message for unrecognized
// types.
func announcementText(taskType string, result, params json.RawMessage) string {
	res := decodeFields(result)

	switch taskType {
	case "feed_preload":
		success := intField(res, "success_count")
		total := intField(res, "total_count")
		elapsed := floatField(res, "elapsed")
		return fmt.Sprintf(
			"All feeds are loaded! Pre-loaded %d of %d profiles in %.1f seconds. You can now ask about trending topics.",
			success, total, elapsed)

	case "email_check":
		count := intField(res, "count")
		if count > 0 {
			return fmt.Sprintf("You have %d new emails. Say 'check my emails' to see them.", count)
		}
		return "No new emails."

	case "calendar_reminder":
		title := stringField(res, "title")
		if title == "" {
			title = "event"
		}
		minutes := intField(res, "minutes_until")
		if minutes == 0 {
			minutes = 10
		}
		return fmt.Sprintf("Reminder: %s starts in %d minutes.", title, minutes)

	default:
		return fmt.Sprintf("Task %s completed successfully.", taskType)
	}
}

func decodeFields(raw json.RawMessage) map[string]any {
	if len(raw) == 0 {
		return nil
	}
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil
	}
	return m
}

func intField(m map[string]any, key string) int {
	if f, ok := m[key].(float64); ok {
		return int(f)
	}
	return 0
}

func floatField(m map[string]any, key string) float64 {
	if f, ok := m[key].(float64); ok {
		return f
	}
	return 0
}

func stringField(m map[string]any, key string) string {
	if s, ok := m[key].(string); ok {
		return s
	}
	return ""
}
