package message

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/sudocode-ai/Roo-Code-server/errors"
)

// Inbound and outbound control frame type discriminators.
const (
	// FrameTypeTaskCommand is the only recognized inbound frame kind
	FrameTypeTaskCommand = "taskCommand"
	// FrameTypeTaskCommandAck acknowledges a successfully handled command
	FrameTypeTaskCommandAck = "taskCommandAck"
	// FrameTypeError reports a command failure to the originating client
	FrameTypeError = "error"
)

// Task command names accepted from clients.
const (
	CommandStartNewTask = "StartNewTask"
	CommandCancelTask   = "CancelTask"
)

// InboundFrame is the structured record clients send to the server.
// Unrecognized Type values are logged and ignored; invalid JSON is
// dropped with a log line. Data is opaque to the server and forwarded
// to the host's command handler untouched.
type InboundFrame struct {
	Type        string          `json:"type"`
	CommandName string          `json:"commandName,omitempty"`
	Data        json.RawMessage `json:"data,omitempty"`
}

// ParseInboundFrame decodes one client frame. Invalid JSON yields a
// classified parse error; the caller decides whether to drop or reply.
func ParseInboundFrame(data []byte) (InboundFrame, error) {
	var frame InboundFrame
	if err := json.Unmarshal(data, &frame); err != nil {
		return InboundFrame{}, errors.WrapInvalid(
			fmt.Errorf("%w: %v", errors.ErrMalformedFrame, err),
			"InboundFrame", "Parse", "decode frame")
	}
	return frame, nil
}

// AckFrame is sent back to the originating connection only, never
// broadcast, after its task command was handled successfully.
type AckFrame struct {
	Type        string `json:"type"`
	CommandName string `json:"commandName"`
	Timestamp   int64  `json:"timestamp"`
}

// NewAckFrame builds an acknowledgment for a handled command.
func NewAckFrame(commandName string) AckFrame {
	return AckFrame{
		Type:        FrameTypeTaskCommandAck,
		CommandName: commandName,
		Timestamp:   time.Now().UnixMilli(),
	}
}

// ErrorFrame is sent back to the originating connection only when its
// command could not be handled.
type ErrorFrame struct {
	Type      string `json:"type"`
	Message   string `json:"message"`
	Timestamp int64  `json:"timestamp"`
}

// NewErrorFrame builds an error reply for the originating connection.
func NewErrorFrame(msg string) ErrorFrame {
	return ErrorFrame{
		Type:      FrameTypeError,
		Message:   msg,
		Timestamp: time.Now().UnixMilli(),
	}
}
