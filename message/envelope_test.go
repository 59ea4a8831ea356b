package message

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestEnvelopeWireShape pins the JSON shape consumed by the external
// generative-content client. Field names and optionality are a
// compatibility contract and must not drift.
func TestEnvelopeWireShape(t *testing.T) {
	tests := []struct {
		name string
		env  ContentEnvelope
		want string
	}{
		{
			name: "plain text",
			env:  NewEnvelope(RoleModel, TextPart("hello")),
			want: `{"role":"model","parts":[{"text":"hello"}]}`,
		},
		{
			name: "thought text",
			env:  NewEnvelope(RoleModel, ThoughtPart("thinking")),
			want: `{"role":"model","parts":[{"text":"thinking","thought":true}]}`,
		},
		{
			name: "function call with id",
			env: NewEnvelope(RoleModel,
				FunctionCallPart("execute_command", map[string]any{"command": "ls"}, "tool-42")),
			want: `{"role":"model","parts":[{"functionCall":{"name":"execute_command","args":{"command":"ls"},"id":"tool-42"}}]}`,
		},
		{
			name: "function call without id",
			env: NewEnvelope(RoleModel,
				FunctionCallPart("browser_action", map[string]any{"action": "click"}, "")),
			want: `{"role":"model","parts":[{"functionCall":{"name":"browser_action","args":{"action":"click"}}}]}`,
		},
		{
			name: "function response",
			env: NewEnvelope(RoleUser,
				FunctionResponsePart("execute_command", map[string]any{"output": "ok"}, "tool-42")),
			want: `{"role":"user","parts":[{"functionResponse":{"name":"execute_command","response":{"output":"ok"},"id":"tool-42"}}]}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, err := json.Marshal(tt.env)
			require.NoError(t, err)
			assert.JSONEq(t, tt.want, string(data))
		})
	}
}

func TestPartValidate(t *testing.T) {
	tests := []struct {
		name    string
		part    Part
		wantErr bool
	}{
		{"text", TextPart("hi"), false},
		{"thought", ThoughtPart("hm"), false},
		{"call", FunctionCallPart("tool", nil, ""), false},
		{"response", FunctionResponsePart("tool", nil, ""), false},
		{"empty", Part{}, true},
		{"thought without text", Part{Thought: true}, true},
		{
			"two cases populated",
			Part{Text: "hi", FunctionCall: &FunctionCall{Name: "tool"}},
			true,
		},
		{
			"call and response populated",
			Part{
				FunctionCall:     &FunctionCall{Name: "tool"},
				FunctionResponse: &FunctionResponse{Name: "tool"},
			},
			true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.part.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestEnvelopeValidate(t *testing.T) {
	assert.NoError(t, NewEnvelope(RoleModel, TextPart("hi")).Validate())
	assert.Error(t, NewEnvelope(RoleModel).Validate(), "zero parts")
	assert.Error(t, NewEnvelope(Role("assistant"), TextPart("hi")).Validate(), "unknown role")
	assert.Error(t, NewEnvelope(RoleUser, Part{}).Validate(), "invalid part")
}

func TestNilArgsBecomeEmptyObjects(t *testing.T) {
	data, err := json.Marshal(FunctionCallPart("tool", nil, ""))
	require.NoError(t, err)
	assert.JSONEq(t, `{"functionCall":{"name":"tool","args":{}}}`, string(data))

	data, err = json.Marshal(FunctionResponsePart("tool", nil, ""))
	require.NoError(t, err)
	assert.JSONEq(t, `{"functionResponse":{"name":"tool","response":{}}}`, string(data))
}
