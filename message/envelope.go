package message

import (
	"fmt"

	"github.com/sudocode-ai/Roo-Code-server/errors"
)

// Role identifies the author of a Content Envelope.
type Role string

const (
	// RoleModel marks agent-authored content
	RoleModel Role = "model"
	// RoleUser marks external-result or feedback-authored content
	RoleUser Role = "user"
)

// FunctionCall describes an action the agent initiated (command execution,
// browser action, tool invocation).
type FunctionCall struct {
	Name string         `json:"name"`
	Args map[string]any `json:"args"`
	// ID correlates this call with its FunctionResponse. Derived
	// deterministically from the originating message timestamp so
	// repeated transformation of the same message yields the same id.
	ID string `json:"id,omitempty"`
}

// FunctionResponse carries the result of a previously initiated action.
type FunctionResponse struct {
	Name     string         `json:"name"`
	Response map[string]any `json:"response"`
	ID       string         `json:"id,omitempty"`
}

// Part is one element of a Content Envelope. It is a tagged union:
// exactly one of the text / functionCall / functionResponse cases is
// populated.
type Part struct {
	Text string `json:"text,omitempty"`
	// Thought marks internal reasoning rather than user-facing narration.
	// Only meaningful on text parts.
	Thought          bool              `json:"thought,omitempty"`
	FunctionCall     *FunctionCall     `json:"functionCall,omitempty"`
	FunctionResponse *FunctionResponse `json:"functionResponse,omitempty"`
}

// TextPart returns a plain narration part.
func TextPart(text string) Part {
	return Part{Text: text}
}

// ThoughtPart returns a text part flagged as internal reasoning.
func ThoughtPart(text string) Part {
	return Part{Text: text, Thought: true}
}

// FunctionCallPart returns a part carrying an action initiation.
func FunctionCallPart(name string, args map[string]any, id string) Part {
	if args == nil {
		args = map[string]any{}
	}
	return Part{FunctionCall: &FunctionCall{Name: name, Args: args, ID: id}}
}

// FunctionResponsePart returns a part carrying an action result.
func FunctionResponsePart(name string, response map[string]any, id string) Part {
	if response == nil {
		response = map[string]any{}
	}
	return Part{FunctionResponse: &FunctionResponse{Name: name, Response: response, ID: id}}
}

// Validate checks that exactly one union case is populated.
func (p Part) Validate() error {
	populated := 0
	if p.Text != "" {
		populated++
	}
	if p.FunctionCall != nil {
		populated++
	}
	if p.FunctionResponse != nil {
		populated++
	}

	switch {
	case populated == 0:
		return errors.WrapInvalid(
			fmt.Errorf("empty part"), "Part", "Validate", "check union case")
	case populated > 1:
		return errors.WrapInvalid(
			fmt.Errorf("%d union cases populated", populated),
			"Part", "Validate", "check union case")
	}

	if p.Thought && p.Text == "" {
		return errors.WrapInvalid(
			fmt.Errorf("thought flag on non-text part"),
			"Part", "Validate", "check thought flag")
	}

	return nil
}

// ContentEnvelope is the normalized unit of transformed agent output.
type ContentEnvelope struct {
	Role  Role   `json:"role"`
	Parts []Part `json:"parts"`
}

// NewEnvelope builds a Content Envelope from one or more parts.
func NewEnvelope(role Role, parts ...Part) ContentEnvelope {
	return ContentEnvelope{Role: role, Parts: parts}
}

// Validate checks the envelope invariants: a known role and at least
// one valid part. Envelopes with zero parts are discarded upstream and
// never reach the wire.
func (e ContentEnvelope) Validate() error {
	if e.Role != RoleModel && e.Role != RoleUser {
		return errors.WrapInvalid(
			fmt.Errorf("unknown role %q", e.Role), "ContentEnvelope", "Validate", "check role")
	}
	if len(e.Parts) == 0 {
		return errors.WrapInvalid(
			fmt.Errorf("envelope has no parts"), "ContentEnvelope", "Validate", "check parts")
	}
	for i, p := range e.Parts {
		if err := p.Validate(); err != nil {
			return errors.Wrap(err, "ContentEnvelope", "Validate", fmt.Sprintf("validate part %d", i))
		}
	}
	return nil
}
