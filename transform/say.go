package transform

import (
	"encoding/json"

	"github.com/sudocode-ai/Roo-Code-server/host"
	"github.com/sudocode-ai/Roo-Code-server/message"
)

// Tool names used for functionCall/functionResponse parts produced from
// informational categories.
const (
	toolExecuteCommand = "execute_command"
	toolBrowserAction  = "browser_action"
	toolUseMcpServer   = "use_mcp_server"
	toolCodebaseSearch = "codebase_search"
	toolNewTask        = "new_task"
)

// mapSay maps an informational message through the category table.
// Every category is an explicit arm; the default arm emits the
// bracketed placeholder so no category is ever silently dropped unless
// the table says so.
func (t *Transformer) mapSay(msg host.Message) ([]message.ContentEnvelope, error) {
	switch msg.Say {
	case host.SayAPIReqStarted, host.SayAPIReqFinished, host.SayAPIReqRetried,
		host.SayCheckpointSaved, host.SayShellIntegrationWarning, host.SayDiffError:
		// Pure bookkeeping, nothing for external consumers.
		return nil, nil

	case host.SayReasoning:
		if msg.Text == "" {
			return nil, nil
		}
		return modelEnvelope(message.ThoughtPart(msg.Text)), nil

	case host.SayTask, host.SayText, host.SayError, host.SayCompletionResult:
		if msg.Text == "" {
			return nil, nil
		}
		return modelEnvelope(message.TextPart(msg.Text)), nil

	case host.SayUserFeedback, host.SayUserFeedbackDiff:
		if msg.Text == "" {
			return nil, nil
		}
		return userEnvelope(message.TextPart(msg.Text)), nil

	case host.SayCommand:
		return modelEnvelope(message.FunctionCallPart(
			toolExecuteCommand, map[string]any{"command": msg.Text}, "")), nil

	case host.SayBrowserAction:
		return modelEnvelope(message.FunctionCallPart(
			toolBrowserAction, t.structuredArgs(msg.Text, "action"), "")), nil

	case host.SayMcpServerRequestStarted:
		return modelEnvelope(message.FunctionCallPart(
			toolUseMcpServer, t.structuredArgs(msg.Text, "request"), "")), nil

	case host.SayCommandOutput:
		return userEnvelope(message.FunctionResponsePart(
			toolExecuteCommand, map[string]any{"output": msg.Text}, "")), nil

	case host.SayBrowserActionResult:
		return userEnvelope(message.FunctionResponsePart(
			toolBrowserAction, t.structuredArgs(msg.Text, "result"), "")), nil

	case host.SayMcpServerResponse:
		return userEnvelope(message.FunctionResponsePart(
			toolUseMcpServer, map[string]any{"response": msg.Text}, "")), nil

	case host.SayCodebaseSearchResult:
		return userEnvelope(message.FunctionResponsePart(
			toolCodebaseSearch, t.structuredArgs(msg.Text, "result"), "")), nil

	case host.SaySubtaskResult:
		return userEnvelope(message.FunctionResponsePart(
			toolNewTask, map[string]any{"result": msg.Text}, "")), nil

	default:
		// Unhandled category: emit the placeholder rather than dropping.
		t.logger.Warn("unhandled informational category", "category", msg.Say)
		return modelEnvelope(message.TextPart(taggedText(string(msg.Say), msg.Text))), nil
	}
}

// structuredArgs parses serialized JSON object text into an args map.
// Non-JSON text falls back to a single-key map so the original payload
// is never lost.
func (t *Transformer) structuredArgs(text, fallbackKey string) map[string]any {
	var args map[string]any
	if err := json.Unmarshal([]byte(text), &args); err != nil || args == nil {
		if text == "" {
			return map[string]any{}
		}
		t.logger.Debug("non-structured action payload, using raw text", "key", fallbackKey)
		return map[string]any{fallbackKey: text}
	}
	return args
}

func modelEnvelope(parts ...message.Part) []message.ContentEnvelope {
	return []message.ContentEnvelope{message.NewEnvelope(message.RoleModel, parts...)}
}

func userEnvelope(parts ...message.Part) []message.ContentEnvelope {
	return []message.ContentEnvelope{message.NewEnvelope(message.RoleUser, parts...)}
}
