package transform

import (
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/sudocode-ai/Roo-Code-server/host"
	"github.com/sudocode-ai/Roo-Code-server/message"
)

// AskPolicy governs how interactive-request messages are handled. The
// host historically shipped both behaviors, so the choice is explicit
// configuration rather than a fixed default buried in the mapping.
type AskPolicy int

const (
	// AskPolicyMap fully maps interactive-request messages to Content
	// Envelopes (the default)
	AskPolicyMap AskPolicy = iota
	// AskPolicyIgnore discards interactive-request messages entirely
	AskPolicyIgnore
)

// Transformer maps internal agent activity to broadcastable Stream
// Events. The zero value is not usable; construct with New.
type Transformer struct {
	logger    *slog.Logger
	askPolicy AskPolicy
}

// Option configures a Transformer.
type Option func(*Transformer)

// WithLogger sets the diagnostic logger.
func WithLogger(logger *slog.Logger) Option {
	return func(t *Transformer) {
		if logger != nil {
			t.logger = logger
		}
	}
}

// WithAskPolicy selects the interactive-request handling policy.
func WithAskPolicy(policy AskPolicy) Option {
	return func(t *Transformer) {
		t.askPolicy = policy
	}
}

// New creates a Transformer with the given options.
func New(opts ...Option) *Transformer {
	t := &Transformer{
		logger:    slog.Default(),
		askPolicy: AskPolicyMap,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// TransformMessage maps one internal agent message to zero or more
// Stream Events in emission order, all sharing taskID with distinct
// event ids. It never fails: any error or panic inside the mapping is
// logged and collapsed into a single error-typed event.
func (t *Transformer) TransformMessage(taskID string, msg host.Message) []message.StreamEvent {
	envelopes, err := t.mapMessage(msg)
	if err != nil {
		t.logger.Error("message transformation failed",
			"task_id", taskID, "kind", msg.Kind, "error", err)
		return []message.StreamEvent{
			message.NewErrorEvent(taskID, fmt.Sprintf("message transformation failed: %v", err)),
		}
	}

	events := make([]message.StreamEvent, 0, len(envelopes))
	for _, env := range envelopes {
		if len(env.Parts) == 0 {
			continue
		}
		events = append(events, message.NewMessageEvent(taskID, env))
	}
	return events
}

// mapMessage dispatches on the message kind. The error return keeps the
// inner mapping declarative; it is collapsed to an error event only at
// the TransformMessage call site.
func (t *Transformer) mapMessage(msg host.Message) (envelopes []message.ContentEnvelope, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic during transformation: %v", r)
		}
	}()

	// Partial text is never broadcast: only the finalized message
	// produces output.
	if msg.Partial {
		return nil, nil
	}

	switch msg.Kind {
	case host.KindSay:
		return t.mapSay(msg)
	case host.KindAsk:
		if t.askPolicy == AskPolicyIgnore {
			return nil, nil
		}
		return t.mapAsk(msg)
	default:
		t.logger.Warn("unrecognized message kind", "kind", msg.Kind)
		return []message.ContentEnvelope{
			message.NewEnvelope(message.RoleModel, message.TextPart(taggedText(string(msg.Kind), msg.Text))),
		}, nil
	}
}

// TransformTaskEvent maps one task-lifecycle notification to a Stream
// Event. Unrecognized event names still produce a valid bare event, and
// failures collapse to an error-typed event, mirroring the message path.
func (t *Transformer) TransformTaskEvent(taskID string, name host.TaskEventName, payload any) message.StreamEvent {
	ev, err := t.mapTaskEvent(taskID, name, payload)
	if err != nil {
		t.logger.Error("task event transformation failed",
			"task_id", taskID, "event", name, "error", err)
		return message.NewErrorEvent(taskID, fmt.Sprintf("task event transformation failed: %v", err))
	}
	return ev
}

func (t *Transformer) mapTaskEvent(taskID string, name host.TaskEventName, payload any) (ev message.StreamEvent, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic during transformation: %v", r)
		}
	}()

	switch name {
	case host.TaskTokenUsageUpdated, host.TaskToolFailed:
		data, derr := dataMap(payload)
		if derr != nil {
			return message.StreamEvent{}, derr
		}
		return message.NewTaskEvent(taskID, string(name), data), nil
	case host.TaskCreated, host.TaskStarted, host.TaskCompleted,
		host.TaskPaused, host.TaskUnpaused, host.TaskAborted,
		host.TaskModeSwitched:
		return message.NewTaskEvent(taskID, string(name), nil), nil
	default:
		// The default case must never fail: unknown lifecycle names
		// still yield a valid type+task_id event.
		t.logger.Warn("unrecognized task event name", "event", name)
		return message.NewTaskEvent(taskID, string(name), nil), nil
	}
}

// dataMap converts a structured payload to the free-form data shape of
// a Stream Event.
func dataMap(payload any) (map[string]any, error) {
	if payload == nil {
		return nil, nil
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal payload: %w", err)
	}
	var data map[string]any
	if err := json.Unmarshal(raw, &data); err != nil {
		return nil, fmt.Errorf("payload is not a structured record: %w", err)
	}
	return data, nil
}

// taggedText renders the bracketed placeholder used for categories not
// present in either mapping table.
func taggedText(category, text string) string {
	if text == "" {
		return fmt.Sprintf("[%s]", category)
	}
	return fmt.Sprintf("[%s] %s", category, text)
}

// correlationID derives the call/response correlation id from the
// originating message timestamp, so repeated transformation of the same
// message is idempotent. Two distinct messages sharing a millisecond
// timestamp would collide; the derivation is kept for wire
// compatibility.
func correlationID(ts int64) string {
	return fmt.Sprintf("tool-%d", ts)
}
