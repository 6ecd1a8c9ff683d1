package events

import (
	"encoding/json"
	"time"
)

// EventPayload is the interface all typed payloads implement.
type EventPayload interface {
	EventType() EventType
}

type TaskCreatedPayload struct {
	TaskID   string `json:"task_id"`
	TaskType string `json:"task_type"`
}

func (TaskCreatedPayload) EventType() EventType { return EventTaskCreated }

type TaskStartedPayload struct {
	TaskID   string `json:"task_id"`
	TaskType string `json:"task_type"`
}

func (TaskStartedPayload) EventType() EventType { return EventTaskStarted }

type TaskCompletedPayload struct {
	TaskID   string        `json:"task_id"`
	TaskType string        `json:"task_type"`
	Duration time.Duration `json:"duration,omitempty"`
}

func (TaskCompletedPayload) EventType() EventType { return EventTaskCompleted }

type TaskFailedPayload struct {
	TaskID   string `json:"task_id"`
	TaskType string `json:"task_type"`
	Error    string `json:"error"`
}

func (TaskFailedPayload) EventType() EventType { return EventTaskFailed }

type AnnouncementCreatedPayload struct {
	AnnouncementID string `json:"announcement_id"`
	TaskID         string `json:"task_id,omitempty"`
	Title          string `json:"title,omitempty"`
}

func (AnnouncementCreatedPayload) EventType() EventType { return EventAnnouncementCreated }

type AnnouncementDeliveredPayload struct {
	AnnouncementID string `json:"announcement_id"`
	Message        string `json:"message"`
}

func (AnnouncementDeliveredPayload) EventType() EventType { return EventAnnouncementDelivered }

// UserMessagePayload carries a transcribed user utterance into the agent.
type UserMessagePayload struct {
	SessionID string `json:"session_id,omitempty"`
	Content   string `json:"content"`
}

func (UserMessagePayload) EventType() EventType { return EventUserMessage }

// SpeechPayload asks the live session's voice surface to speak text.
type SpeechPayload struct {
	Text string `json:"text"`
}

func (SpeechPayload) EventType() EventType { return EventSpeech }

// ArtifactPayload carries display data (email lists, calendar events) for
// the frontend panel.
type ArtifactPayload struct {
	ArtifactType string          `json:"artifact_type"`
	Data         json.RawMessage `json:"data"`
}

func (ArtifactPayload) EventType() EventType { return EventArtifact }

type ContextSavedPayload struct {
	Key string `json:"key"`
}

func (ContextSavedPayload) EventType() EventType { return EventContextSaved }

type SessionPayload struct {
	SessionID string `json:"session_id"`
}

func (SessionPayload) EventType() EventType { return EventSessionStarted }

type SessionClosedPayload struct {
	SessionID string `json:"session_id"`
}

func (SessionClosedPayload) EventType() EventType { return EventSessionClosed }

// ToolStatus tracks a tool call through its lifecycle.
type ToolStatus string

const (
	ToolStatusStarted   ToolStatus = "started"
	ToolStatusCompleted ToolStatus = "completed"
	ToolStatusFailed    ToolStatus = "failed"
)

// ToolCallPayload reports agent tool call progress to listeners.
type ToolCallPayload struct {
	Status    ToolStatus     `json:"status"`
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments,omitempty"`
	Result    string         `json:"result,omitempty"`
	Error     string         `json:"error,omitempty"`
}

func (ToolCallPayload) EventType() EventType { return EventToolCall }

// LLMCallPayload reports model request/response phases and token usage.
type LLMCallPayload struct {
	Phase        string `json:"phase"` // "request", "response", "error"
	Model        string `json:"model"`
	MessageCount int    `json:"message_count,omitempty"`
	TokensInput  int    `json:"tokens_input,omitempty"`
	TokensOutput int    `json:"tokens_output,omitempty"`
	Error        string `json:"error,omitempty"`
}

func (LLMCallPayload) EventType() EventType { return EventLLMCall }

type ScheduleTriggerPayload struct {
	EntryID  string `json:"entry_id"`
	TaskID   string `json:"task_id"`
	TaskType string `json:"task_type"`
}

func (ScheduleTriggerPayload) EventType() EventType { return EventScheduleTrigger }

// NewTypedEvent builds an Event from a typed payload.
func NewTypedEvent(source EventSource, payload EventPayload) Event {
	return Event{
		ID:        generateEventID(),
		Type:      payload.EventType(),
		Timestamp: time.Now(),
		Source:    source,
		Payload:   toMap(payload),
	}
}

// NewTypedEventWithSession builds an Event scoped to a session.
func NewTypedEventWithSession(source EventSource, payload EventPayload, sessionID string) Event {
	e := NewTypedEvent(source, payload)
	e.SessionID = sessionID
	return e
}

func toMap(v any) map[string]any {
	var result map[string]any
	data, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	if err := json.Unmarshal(data, &result); err != nil {
		return nil
	}
	return result
}

// ExtractPayload decodes an event's payload back into a typed struct.
func ExtractPayload[T EventPayload](e Event) (T, bool) {
	var result T
	data, err := json.Marshal(e.Payload)
	if err != nil {
		return result, false
	}
	if err := json.Unmarshal(data, &result); err != nil {
		return result, false
	}
	return result, true
}
