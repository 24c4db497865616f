package budget

import "strconv"

// Progress carries the per-call telemetry fields threaded into dispatcher
// context (spec.md §4.2 "Progress fields"). Zero value for an unbounded
// budget: callers check Bounded before using the numeric fields.
type Progress struct {
	Bounded            bool
	ToolCallNumber     int
	ToolCallTotal      int
	ToolCallsRemaining int
	FinalToolCall      bool
}

// ProgressFor computes the progress fields for consuming the callIndex'th
// (1-based) call out of a batch of batchSize against budget b, as of
// immediately before that call is attempted.
func ProgressFor(b *ToolCallBudget, callIndex, batchSize int) Progress {
	if b.IsUnbounded() {
		return Progress{Bounded: false}
	}
	used := b.UsedCalls() + callIndex
	remaining := b.MaxCalls() - used
	if remaining < 0 {
		remaining = 0
	}
	return Progress{
		Bounded:            true,
		ToolCallNumber:     used,
		ToolCallTotal:      b.MaxCalls(),
		ToolCallsRemaining: remaining,
		FinalToolCall:      remaining == 0,
	}
}

// CountdownText formats the strict countdown/final-prompt string required
// by spec.md §4.2: "Tool calls used {used} of {max} - {remaining}
// remaining."
func CountdownText(b *ToolCallBudget) string {
	return "Tool calls used " + strconv.Itoa(b.UsedCalls()) + " of " +
		strconv.Itoa(b.MaxCalls()) + " - " + strconv.Itoa(max(b.Remaining(), 0)) +
		" remaining."
}
