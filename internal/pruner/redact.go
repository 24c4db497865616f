package pruner

import "github.com/compresr/llm-gateway/internal/model"

// RedactedReason is the constant reason attached to a redacted
// tool_result part (spec.md §4.2: "a tool_result part carries
// {redacted: true, reason: <constant>}").
const RedactedReason = "pruned_older_tool_cycle"

const redactedPlaceholder = "[tool result removed from context]"

// PruneToolResults rewrites the tool messages of all but the last N
// cycles found in msgs, in place, per the "all"/"none"/N policy in
// model.PreservePolicy. msgs is mutated and also returned for chaining.
func PruneToolResults(msgs []model.Message, policy model.PreservePolicy) []model.Message {
	if policy.All {
		return msgs
	}
	cycles := FindCycles(msgs)
	keep := policy.Count
	if policy.None {
		keep = 0
	}
	cutoff := len(cycles) - keep
	for i, c := range cycles {
		if i >= cutoff {
			continue
		}
		for _, idx := range c.ToolIndices {
			redactToolMessage(&msgs[idx])
		}
	}
	return msgs
}

func redactToolMessage(m *model.Message) {
	if len(m.Content) == 0 {
		return
	}
	if alreadyRedacted(m) {
		return
	}
	if i := m.FirstTextIndex(); i >= 0 {
		m.Content[i].Text = redactedPlaceholder
	} else {
		m.Content = append([]model.ContentPart{model.TextPart(redactedPlaceholder)}, m.Content...)
	}
	for i := range m.Content {
		if m.Content[i].Type == model.ContentToolResult && m.Content[i].ToolResult != nil {
			m.Content[i].ToolResult.Redacted = true
			m.Content[i].ToolResult.Reason = RedactedReason
		}
	}
}

func alreadyRedacted(m *model.Message) bool {
	for _, c := range m.Content {
		if c.Type == model.ContentToolResult && c.ToolResult != nil && c.ToolResult.Redacted {
			return true
		}
	}
	return false
}

// PruneReasoning sets reasoning.redacted = true on all but the last N
// reasoning-bearing assistant messages, using the same "all"/"none"/N
// semantics as PruneToolResults. System and user messages are never
// touched (they carry no reasoning).
func PruneReasoning(msgs []model.Message, policy model.PreservePolicy) []model.Message {
	if policy.All {
		return msgs
	}
	var bearing []int
	for i, m := range msgs {
		if m.Reasoning != nil {
			bearing = append(bearing, i)
		}
	}
	keep := policy.Count
	if policy.None {
		keep = 0
	}
	cutoff := len(bearing) - keep
	for i, idx := range bearing {
		if i >= cutoff {
			continue
		}
		msgs[idx].Reasoning.Redacted = true
	}
	return msgs
}
