package toolstate

import (
	"sort"

	"github.com/compresr/llm-gateway/internal/compat"
)

type indexedCall struct {
	callID string
	name   string
	args   string
	seen   bool
}

// IndexFirst tracks tool calls the way OpenAI's Chat Completions stream
// does: the first delta for a call carries both id and index; subsequent
// deltas for the same call may carry only the index. END is synthesized
// on finish_reason=tool_calls rather than any explicit terminator, and
// all state resets unconditionally on any terminal finish reason so it
// can't leak across a reused struct between streams.
type IndexFirst struct {
	byIndex map[int]*indexedCall
}

// NewIndexFirst returns an empty state machine.
func NewIndexFirst() *IndexFirst {
	return &IndexFirst{byIndex: make(map[int]*indexedCall)}
}

// Delta records a tool-call delta at index. When id/name are non-empty
// this is the first delta for that index and emits TOOL_CALL_START;
// otherwise it folds argsFragment into the running buffer and emits
// TOOL_CALL_ARGUMENTS_DELTA.
func (s *IndexFirst) Delta(index int, id, name, argsFragment string) compat.StreamEvent {
	c, ok := s.byIndex[index]
	if !ok {
		c = &indexedCall{callID: id, name: name}
		s.byIndex[index] = c
	}
	if id != "" && !c.seen {
		c.seen = true
		return compat.StreamEvent{Type: compat.EventToolCallStart, CallID: c.callID, ToolName: c.name}
	}
	c.args += argsFragment
	return compat.StreamEvent{
		Type:           compat.EventToolCallArgsDelta,
		CallID:         c.callID,
		ArgumentsDelta: argsFragment,
	}
}

// FinishToolCalls synthesizes TOOL_CALL_END for every call tracked so
// far, in index order, on finish_reason=tool_calls.
func (s *IndexFirst) FinishToolCalls() []compat.StreamEvent {
	events := make([]compat.StreamEvent, 0, len(s.byIndex))
	for _, idx := range sortedIndices(s.byIndex) {
		c := s.byIndex[idx]
		events = append(events, compat.StreamEvent{
			Type:      compat.EventToolCallEnd,
			CallID:    c.callID,
			ToolName:  c.name,
			Arguments: c.args,
		})
	}
	return events
}

// Reset clears all state; called on any terminal finish reason.
func (s *IndexFirst) Reset() {
	s.byIndex = make(map[int]*indexedCall)
}

func sortedIndices(m map[int]*indexedCall) []int {
	out := make([]int, 0, len(m))
	for idx := range m {
		out = append(out, idx)
	}
	sort.Ints(out)
	return out
}
