package compat

// StreamEventType tags the canonical events every compat's
// ParseStreamChunk produces, regardless of wire format (spec.md §4.4
// "Tool-call state machines for streaming").
type StreamEventType string

const (
	EventDelta                StreamEventType = "DELTA"
	EventReasoningDelta       StreamEventType = "REASONING_DELTA"
	EventToolCallStart        StreamEventType = "TOOL_CALL_START"
	EventToolCallArgsDelta    StreamEventType = "TOOL_CALL_ARGUMENTS_DELTA"
	EventToolCallEnd          StreamEventType = "TOOL_CALL_END"
	EventFinishedWithToolCalls StreamEventType = "FINISHED_WITH_TOOL_CALLS"
	EventUsage                StreamEventType = "USAGE"
	EventDone                 StreamEventType = "DONE"
)

// StreamEvent is one canonical event yielded from a provider's raw
// stream, after passing through a compat's ParseStreamChunk and internal
// tool-call state machine.
type StreamEvent struct {
	Type StreamEventType

	// DELTA / REASONING_DELTA
	Text string

	// TOOL_CALL_*
	CallID         string
	ToolName       string
	ArgumentsDelta string
	Arguments      string

	// USAGE
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
	ReasoningTokens  int
}
