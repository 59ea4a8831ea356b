package host

// MessageKind is the outer dispatch of an internal agent message.
type MessageKind string

const (
	// KindSay is an informational message narrating agent activity
	KindSay MessageKind = "say"
	// KindAsk is an interactive request: the agent asking the external
	// operator something (permission prompts, follow-up questions, error
	// conditions needing intervention)
	KindAsk MessageKind = "ask"
)

// SayCategory classifies informational messages.
type SayCategory string

const (
	// SayTask is the initial task statement
	SayTask SayCategory = "task"
	// SayText is plain narration from the agent
	SayText SayCategory = "text"
	// SayReasoning is internal reasoning, not user-facing narration
	SayReasoning SayCategory = "reasoning"
	// SayError is an error the agent surfaced in its narration
	SayError SayCategory = "error"
	// SayCompletionResult is the agent's final result statement
	SayCompletionResult SayCategory = "completion_result"
	// SayUserFeedback is feedback the operator typed back to the agent
	SayUserFeedback SayCategory = "user_feedback"
	// SayUserFeedbackDiff is an edit the operator made to agent output
	SayUserFeedbackDiff SayCategory = "user_feedback_diff"

	// Request-lifecycle bookkeeping, dropped by the transformer
	SayAPIReqStarted  SayCategory = "api_req_started"
	SayAPIReqFinished SayCategory = "api_req_finished"
	SayAPIReqRetried  SayCategory = "api_req_retried"
	// SayCheckpointSaved marks a checkpoint, dropped by the transformer
	SayCheckpointSaved SayCategory = "checkpoint_saved"
	// SayShellIntegrationWarning is an integration warning, dropped
	SayShellIntegrationWarning SayCategory = "shell_integration_warning"
	// SayDiffError is a diff-computation error, dropped
	SayDiffError SayCategory = "diff_error"

	// Action-initiation categories
	SayCommand                 SayCategory = "command"
	SayBrowserAction           SayCategory = "browser_action"
	SayMcpServerRequestStarted SayCategory = "mcp_server_request_started"

	// Action-result categories
	SayCommandOutput        SayCategory = "command_output"
	SayBrowserActionResult  SayCategory = "browser_action_result"
	SayMcpServerResponse    SayCategory = "mcp_server_response"
	SayCodebaseSearchResult SayCategory = "codebase_search_result"
	SaySubtaskResult        SayCategory = "subtask_result"
)

// AskCategory classifies interactive-request messages.
type AskCategory string

const (
	// AskFollowup is a follow-up question to the operator
	AskFollowup AskCategory = "followup"
	// AskCommand requests permission to execute a command
	AskCommand AskCategory = "command"
	// AskCommandOutput requests permission to read command output
	AskCommandOutput AskCategory = "command_output"
	// AskTool requests permission for a tool invocation. Its text is a
	// serialized structured payload describing the tool name and
	// arguments, possibly with inline result content.
	AskTool AskCategory = "tool"
	// AskBrowserActionLaunch requests permission to launch the browser
	AskBrowserActionLaunch AskCategory = "browser_action_launch"
	// AskUseMcpServer requests permission to call an MCP server
	AskUseMcpServer AskCategory = "use_mcp_server"
	// AskAPIReqFailed signals a failed API request needing intervention
	AskAPIReqFailed AskCategory = "api_req_failed"
	// AskMistakeLimitReached signals the agent is stuck and needs guidance
	AskMistakeLimitReached AskCategory = "mistake_limit_reached"
	// AskResumeTask offers to resume a paused task
	AskResumeTask AskCategory = "resume_task"
	// AskResumeCompletedTask offers to resume a completed task
	AskResumeCompletedTask AskCategory = "resume_completed_task"
	// AskAutoApprovalMaxReached signals the auto-approval budget is spent
	AskAutoApprovalMaxReached AskCategory = "auto_approval_max_req_reached"
)

// Message is an internal agent message as emitted by the host's
// orchestration layer. Exactly one of Say/Ask is meaningful, selected
// by Kind.
type Message struct {
	// Ts is the message creation time in milliseconds since epoch. It
	// also seeds correlation-id derivation, so it must be stable across
	// repeated emissions of the same message.
	Ts   int64       `json:"ts"`
	Kind MessageKind `json:"kind"`
	Say  SayCategory `json:"say,omitempty"`
	Ask  AskCategory `json:"ask,omitempty"`
	Text string      `json:"text,omitempty"`
	// Partial marks a message that is still streaming and not yet
	// finalized. Partial messages are never broadcast.
	Partial bool `json:"partial,omitempty"`
}
