package message

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/sudocode-ai/Roo-Code-server/errors"
)

// Stream Event type discriminators generated by this subsystem. Task
// lifecycle event names (taskCreated, taskStarted, ...) are defined by
// the host boundary and pass through as-is.
const (
	// EventTypeMessage wraps a Content Envelope
	EventTypeMessage = "message"
	// EventTypeHeartbeat is the periodic liveness ping
	EventTypeHeartbeat = "heartbeat"
	// EventTypeError describes a failure that affected event production
	EventTypeError = "error"
)

// StreamEvent is the unit actually broadcast to connected clients, one
// JSON frame per transport write.
//
// Exactly one of Content/Data is semantically primary per Type; both may
// be simultaneously absent only for pure lifecycle pings that carry no
// payload.
type StreamEvent struct {
	// EventID is globally unique per emission: unix milliseconds plus a
	// random suffix. Uniqueness, not orderability, is the invariant.
	EventID   string `json:"event_id"`
	Timestamp int64  `json:"timestamp"`
	// TaskID identifies which agent task produced the event; absent for
	// server-lifecycle events such as heartbeats.
	TaskID  string           `json:"task_id,omitempty"`
	Type    string           `json:"type"`
	Content *ContentEnvelope `json:"content,omitempty"`
	Data    map[string]any   `json:"data,omitempty"`
}

// Marshal serializes the event to its wire form.
func (e StreamEvent) Marshal() ([]byte, error) {
	data, err := json.Marshal(e)
	if err != nil {
		return nil, errors.WrapInvalid(err, "StreamEvent", "Marshal", "encode event")
	}
	return data, nil
}

// NewEventID returns a fresh event identifier. Time-based prefix for
// display ordering plus a random suffix for uniqueness.
func NewEventID() string {
	return fmt.Sprintf("%d-%s", time.Now().UnixMilli(), uuid.NewString()[:8])
}

// NewMessageEvent wraps a Content Envelope in a broadcastable event.
func NewMessageEvent(taskID string, content ContentEnvelope) StreamEvent {
	return StreamEvent{
		EventID:   NewEventID(),
		Timestamp: time.Now().UnixMilli(),
		TaskID:    taskID,
		Type:      EventTypeMessage,
		Content:   &content,
	}
}

// NewErrorEvent reports a transformation or server failure to clients.
func NewErrorEvent(taskID, description string) StreamEvent {
	return StreamEvent{
		EventID:   NewEventID(),
		Timestamp: time.Now().UnixMilli(),
		TaskID:    taskID,
		Type:      EventTypeError,
		Data:      map[string]any{"message": description},
	}
}

// NewHeartbeatEvent lets clients detect a silently-dead transport even
// when no agent activity is occurring.
func NewHeartbeatEvent(now time.Time) StreamEvent {
	return StreamEvent{
		EventID:   NewEventID(),
		Timestamp: now.UnixMilli(),
		Type:      EventTypeHeartbeat,
		Data:      map[string]any{"serverTime": now.UnixMilli()},
	}
}

// NewTaskEvent builds a task-lifecycle event. Data is optional and
// depends on the event name.
func NewTaskEvent(taskID, name string, data map[string]any) StreamEvent {
	return StreamEvent{
		EventID:   NewEventID(),
		Timestamp: time.Now().UnixMilli(),
		TaskID:    taskID,
		Type:      name,
		Data:      data,
	}
}
