package transform

import (
	"encoding/json"
	"fmt"

	"github.com/sudocode-ai/Roo-Code-server/errors"
	"github.com/sudocode-ai/Roo-Code-server/host"
	"github.com/sudocode-ai/Roo-Code-server/message"
)

// askFallbacks supplies a human-readable text per interactive-request
// category when the message itself carries none.
var askFallbacks = map[host.AskCategory]string{
	host.AskFollowup:               "The agent has a follow-up question",
	host.AskCommand:                "Permission request to execute command",
	host.AskCommandOutput:          "Permission request to read command output",
	host.AskTool:                   "Permission request to use a tool",
	host.AskBrowserActionLaunch:    "Permission request to launch browser",
	host.AskUseMcpServer:           "Permission request to use MCP server",
	host.AskAPIReqFailed:           "API request failed and needs attention",
	host.AskMistakeLimitReached:    "The agent is having trouble and needs guidance",
	host.AskResumeTask:             "Task is paused and can be resumed",
	host.AskResumeCompletedTask:    "Completed task can be resumed",
	host.AskAutoApprovalMaxReached: "Auto-approval request limit reached",
}

// mapAsk maps an interactive-request message through the parallel
// category table.
func (t *Transformer) mapAsk(msg host.Message) ([]message.ContentEnvelope, error) {
	switch msg.Ask {
	case host.AskTool:
		return t.mapAskTool(msg), nil

	case host.AskFollowup, host.AskCommand, host.AskCommandOutput,
		host.AskBrowserActionLaunch, host.AskUseMcpServer,
		host.AskAPIReqFailed, host.AskMistakeLimitReached,
		host.AskResumeTask, host.AskResumeCompletedTask,
		host.AskAutoApprovalMaxReached:
		return modelEnvelope(message.TextPart(askText(msg))), nil

	default:
		t.logger.Warn("unhandled interactive-request category", "category", msg.Ask)
		return modelEnvelope(message.TextPart(taggedText(string(msg.Ask), msg.Text))), nil
	}
}

// askText returns the literal message text or the per-category fallback.
func askText(msg host.Message) string {
	if msg.Text != "" {
		return msg.Text
	}
	if fallback, ok := askFallbacks[msg.Ask]; ok {
		return fallback
	}
	return taggedText(string(msg.Ask), "")
}

// toolPayload is the serialized structured payload carried by
// tool-category interactive requests.
type toolPayload struct {
	name   string
	args   map[string]any
	result string
}

// mapAskTool performs the secondary parse of a tool permission request.
// When the payload carries inline result content, a functionCall /
// functionResponse pair is emitted as two envelopes sharing one
// correlation id derived from the message timestamp. A parse failure
// falls back to a plain text part and is logged, never propagated.
func (t *Transformer) mapAskTool(msg host.Message) []message.ContentEnvelope {
	payload, err := parseToolPayload(msg.Text)
	if err != nil {
		t.logger.Warn("tool payload parse failed, falling back to text",
			"error", err)
		return modelEnvelope(message.TextPart(askText(msg)))
	}

	id := correlationID(msg.Ts)
	envelopes := modelEnvelope(message.FunctionCallPart(payload.name, payload.args, id))

	if payload.result != "" {
		envelopes = append(envelopes, message.NewEnvelope(message.RoleUser,
			message.FunctionResponsePart(payload.name, map[string]any{"result": payload.result}, id)))
	}

	return envelopes
}

// parseToolPayload decodes the serialized tool descriptor: a JSON object
// with the tool name under "tool", optional inline result content under
// "content" or "result", and every remaining field treated as an
// argument.
func parseToolPayload(text string) (toolPayload, error) {
	var raw map[string]any
	if err := json.Unmarshal([]byte(text), &raw); err != nil {
		return toolPayload{}, fmt.Errorf("%w: decode tool payload: %v", errors.ErrParsingFailed, err)
	}
	if raw == nil {
		return toolPayload{}, fmt.Errorf("%w: tool payload is not an object", errors.ErrParsingFailed)
	}

	name, _ := raw["tool"].(string)
	if name == "" {
		return toolPayload{}, fmt.Errorf("%w: tool payload has no tool name", errors.ErrParsingFailed)
	}
	delete(raw, "tool")

	var result string
	for _, key := range []string{"content", "result"} {
		if v, ok := raw[key].(string); ok && v != "" {
			result = v
			delete(raw, key)
			break
		}
	}

	return toolPayload{name: name, args: raw, result: result}, nil
}
