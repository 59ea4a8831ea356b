package host

import (
	"context"
	"encoding/json"
)

// TaskEventName identifies a task-lifecycle notification from the host.
type TaskEventName string

const (
	// TaskCreated fires when a task is created
	TaskCreated TaskEventName = "taskCreated"
	// TaskStarted fires when a task begins executing
	TaskStarted TaskEventName = "taskStarted"
	// TaskCompleted fires when a task finishes
	TaskCompleted TaskEventName = "taskCompleted"
	// TaskPaused fires when a task is paused
	TaskPaused TaskEventName = "taskPaused"
	// TaskUnpaused fires when a paused task resumes
	TaskUnpaused TaskEventName = "taskUnpaused"
	// TaskAborted fires when a task is cancelled
	TaskAborted TaskEventName = "taskAborted"
	// TaskModeSwitched fires when a task changes operating mode
	TaskModeSwitched TaskEventName = "taskModeSwitched"
	// TaskTokenUsageUpdated carries updated token counts
	TaskTokenUsageUpdated TaskEventName = "taskTokenUsageUpdated"
	// TaskToolFailed carries a failed tool invocation
	TaskToolFailed TaskEventName = "taskToolFailed"
)

// TokenUsage is the payload of TaskTokenUsageUpdated.
type TokenUsage struct {
	TokensIn   int64   `json:"tokensIn"`
	TokensOut  int64   `json:"tokensOut"`
	CacheReads int64   `json:"cacheReads,omitempty"`
	TotalCost  float64 `json:"totalCost,omitempty"`
}

// ToolFailure is the payload of TaskToolFailed.
type ToolFailure struct {
	Tool  string `json:"tool"`
	Error string `json:"error"`
}

// TaskCommandHandler is the callback the host registers to receive
// inbound client commands. The data payload is opaque to the streaming
// subsystem. A non-nil error is reported back to the originating
// connection only, never broadcast.
type TaskCommandHandler func(ctx context.Context, commandName string, data json.RawMessage) error
