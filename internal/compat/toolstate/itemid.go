package toolstate

import "github.com/compresr/llm-gateway/internal/compat"

type itemCall struct {
	callID string
	name   string
	args   string
}

// ItemID tracks tool calls the way the Responses API stream does: START
// arrives as output_item.added{type=function_call}, and deltas/done
// events reference item_id rather than call_id.
type ItemID struct {
	byItem     map[string]*itemCall
	sawToolCall bool
}

// NewItemID returns an empty state machine.
func NewItemID() *ItemID {
	return &ItemID{byItem: make(map[string]*itemCall)}
}

// Start begins tracking a function_call output item and emits
// TOOL_CALL_START.
func (s *ItemID) Start(itemID, callID, name string) compat.StreamEvent {
	s.byItem[itemID] = &itemCall{callID: callID, name: name}
	s.sawToolCall = true
	return compat.StreamEvent{Type: compat.EventToolCallStart, CallID: callID, ToolName: name}
}

// Delta folds an arguments fragment into itemID's buffer.
func (s *ItemID) Delta(itemID, argsFragment string) (compat.StreamEvent, bool) {
	c, ok := s.byItem[itemID]
	if !ok {
		return compat.StreamEvent{}, false
	}
	c.args += argsFragment
	return compat.StreamEvent{
		Type:           compat.EventToolCallArgsDelta,
		CallID:         c.callID,
		ArgumentsDelta: argsFragment,
	}, true
}

// Done finalizes itemID on output_item.done and emits TOOL_CALL_END.
func (s *ItemID) Done(itemID string) (compat.StreamEvent, bool) {
	c, ok := s.byItem[itemID]
	if !ok {
		return compat.StreamEvent{}, false
	}
	delete(s.byItem, itemID)
	return compat.StreamEvent{
		Type:      compat.EventToolCallEnd,
		CallID:    c.callID,
		ToolName:  c.name,
		Arguments: c.args,
	}, true
}

// FinishedWithToolCalls reports whether any tool call was observed during
// this response, evaluated on response.completed.
func (s *ItemID) FinishedWithToolCalls() bool {
	return s.sawToolCall
}

// Reset clears all state for a new response.
func (s *ItemID) Reset() {
	s.byItem = make(map[string]*itemCall)
	s.sawToolCall = false
}
