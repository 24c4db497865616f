// Package toolstate implements the three tool-call streaming state
// machines named in spec.md §4.4: block-indexed (Anthropic-like),
// index-first (OpenAI Chat Completions-like), and item-id (Responses
// API-like). Each owns a private map from the provider's own correlation
// key to the call it is assembling and returns the canonical
// START/ARGUMENTS_DELTA/END events from its per-transition methods.
package toolstate

import "github.com/compresr/llm-gateway/internal/compat"

type blockCall struct {
	callID string
	name   string
	args   string
}

// BlockIndexed tracks tool calls keyed by contentBlockIndex, as Anthropic
// does: START carries the index plus id/name, deltas carry only the
// index plus a partial_json fragment, END arrives as a block-stop.
type BlockIndexed struct {
	byIndex map[int]*blockCall
}

// NewBlockIndexed returns an empty state machine.
func NewBlockIndexed() *BlockIndexed {
	return &BlockIndexed{byIndex: make(map[int]*blockCall)}
}

// Start begins tracking a tool_use block at index with the given call id
// and tool name, emitting TOOL_CALL_START.
func (b *BlockIndexed) Start(index int, callID, name string) compat.StreamEvent {
	b.byIndex[index] = &blockCall{callID: callID, name: name}
	return compat.StreamEvent{Type: compat.EventToolCallStart, CallID: callID, ToolName: name}
}

// Delta folds a partial_json fragment into the buffer for index and
// emits TOOL_CALL_ARGUMENTS_DELTA. A delta for an unknown index is
// ignored (defensive against malformed streams).
func (b *BlockIndexed) Delta(index int, partialJSON string) (compat.StreamEvent, bool) {
	c, ok := b.byIndex[index]
	if !ok {
		return compat.StreamEvent{}, false
	}
	c.args += partialJSON
	return compat.StreamEvent{
		Type:           compat.EventToolCallArgsDelta,
		CallID:         c.callID,
		ArgumentsDelta: partialJSON,
	}, true
}

// Stop finalizes the block at index on content_block_stop and emits
// TOOL_CALL_END. The block is removed from tracking afterward.
func (b *BlockIndexed) Stop(index int) (compat.StreamEvent, bool) {
	c, ok := b.byIndex[index]
	if !ok {
		return compat.StreamEvent{}, false
	}
	delete(b.byIndex, index)
	return compat.StreamEvent{
		Type:      compat.EventToolCallEnd,
		CallID:    c.callID,
		ToolName:  c.name,
		Arguments: c.args,
	}, true
}

// Reset flushes all tracked calls, invoked on message_start/message_stop.
func (b *BlockIndexed) Reset() {
	b.byIndex = make(map[int]*blockCall)
}

// HasOpenCalls reports whether any block is still being assembled.
func (b *BlockIndexed) HasOpenCalls() bool {
	return len(b.byIndex) > 0
}
