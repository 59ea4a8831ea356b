package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/sudocode-ai/Roo-Code-server/host"
	"github.com/sudocode-ai/Roo-Code-server/message"
	"github.com/sudocode-ai/Roo-Code-server/stream"
	"github.com/sudocode-ai/Roo-Code-server/transform"
)

// loopbackHandler services task commands when no real agent host is
// embedded. It keeps an in-memory task table and replays command
// activity through the transformer, so connected clients see the same
// event shapes a real host would produce.
type loopbackHandler struct {
	logger      *slog.Logger
	transformer *transform.Transformer

	mu     sync.Mutex
	server *stream.Server
	tasks  map[string]struct{}
}

func newLoopbackHandler(logger *slog.Logger) *loopbackHandler {
	return &loopbackHandler{
		logger:      logger,
		transformer: transform.New(transform.WithLogger(logger)),
		tasks:       make(map[string]struct{}),
	}
}

// attach wires the broadcast target. Separate from construction because
// the handler and the server reference each other.
func (h *loopbackHandler) attach(server *stream.Server) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.server = server
}

func (h *loopbackHandler) handle(_ context.Context, commandName string, data json.RawMessage) error {
	switch commandName {
	case message.CommandStartNewTask:
		return h.startNewTask(data)
	case message.CommandCancelTask:
		return h.cancelTask(data)
	default:
		return fmt.Errorf("unknown command %q", commandName)
	}
}

func (h *loopbackHandler) startNewTask(data json.RawMessage) error {
	var payload struct {
		Text   string `json:"text"`
		TaskID string `json:"taskId"`
	}
	if len(data) > 0 {
		if err := json.Unmarshal(data, &payload); err != nil {
			return fmt.Errorf("invalid StartNewTask payload: %w", err)
		}
	}
	if payload.Text == "" {
		return fmt.Errorf("StartNewTask requires a text field")
	}

	taskID := payload.TaskID
	if taskID == "" {
		taskID = uuid.NewString()
	}

	h.mu.Lock()
	h.tasks[taskID] = struct{}{}
	server := h.server
	h.mu.Unlock()

	h.logger.Info("loopback task started", "taskId", taskID)
	server.BroadcastEvent(h.transformer.TransformTaskEvent(taskID, host.TaskCreated, nil))
	server.BroadcastEvent(h.transformer.TransformTaskEvent(taskID, host.TaskStarted, nil))

	taskMsg := host.Message{
		Ts:   time.Now().UnixMilli(),
		Kind: host.KindSay,
		Say:  host.SayTask,
		Text: payload.Text,
	}
	for _, ev := range h.transformer.TransformMessage(taskID, taskMsg) {
		server.BroadcastEvent(ev)
	}
	return nil
}

func (h *loopbackHandler) cancelTask(data json.RawMessage) error {
	var payload struct {
		TaskID string `json:"taskId"`
	}
	if len(data) > 0 {
		if err := json.Unmarshal(data, &payload); err != nil {
			return fmt.Errorf("invalid CancelTask payload: %w", err)
		}
	}
	if payload.TaskID == "" {
		return fmt.Errorf("CancelTask requires a taskId field")
	}

	h.mu.Lock()
	_, exists := h.tasks[payload.TaskID]
	if exists {
		delete(h.tasks, payload.TaskID)
	}
	server := h.server
	h.mu.Unlock()

	if !exists {
		return fmt.Errorf("unknown task %q", payload.TaskID)
	}

	h.logger.Info("loopback task cancelled", "taskId", payload.TaskID)
	server.BroadcastEvent(h.transformer.TransformTaskEvent(payload.TaskID, host.TaskAborted, nil))
	return nil
}
