// Package pruner redacts historical tool results and reasoning from a
// message history down to a window of the most recent cycles (spec.md
// §4.2), without altering message order or count.
package pruner

import "github.com/compresr/llm-gateway/internal/model"

// Cycle is an assistant message with toolCalls together with the
// immediately following tool messages that answer those calls.
type Cycle struct {
	AssistantIndex int
	ToolIndices    []int
}

// FindCycles scans msgs for tool cycles. An assistant message starts a
// cycle iff model.Message.IsToolCycleStart reports true; the cycle
// extends forward through consecutive tool messages whose ToolCallID
// matches one of the assistant's calls. Tool messages with no matching
// call are orphaned and belong to no cycle.
func FindCycles(msgs []model.Message) []Cycle {
	var cycles []Cycle
	for i, m := range msgs {
		if !m.IsToolCycleStart() {
			continue
		}
		wanted := make(map[string]bool, len(m.ToolCalls))
		for _, tc := range m.ToolCalls {
			wanted[tc.ID] = true
		}
		cycle := Cycle{AssistantIndex: i}
		for j := i + 1; j < len(msgs); j++ {
			tm := msgs[j]
			if tm.Role != model.RoleTool || !wanted[tm.ToolCallID] {
				break
			}
			cycle.ToolIndices = append(cycle.ToolIndices, j)
		}
		cycles = append(cycles, cycle)
	}
	return cycles
}
