package pruner

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/compresr/llm-gateway/internal/model"
)

func assistantWithCall(id string) model.Message {
	return model.Message{
		Role:      model.RoleAssistant,
		Content:   []model.ContentPart{model.TextPart("calling tool")},
		ToolCalls: []model.ToolCall{{ID: id, Name: "t"}},
	}
}

func toolResult(id, text string) model.Message {
	return model.Message{
		Role:       model.RoleTool,
		ToolCallID: id,
		Content: []model.ContentPart{
			model.TextPart(text),
			model.ToolResultPart("t", text, false),
		},
	}
}

func threeCycleHistory() []model.Message {
	return []model.Message{
		{Role: model.RoleUser, Content: []model.ContentPart{model.TextPart("hi")}},
		assistantWithCall("a1"),
		toolResult("a1", "result one"),
		assistantWithCall("a2"),
		toolResult("a2", "result two"),
		assistantWithCall("a3"),
		toolResult("a3", "result three"),
	}
}

func TestFindCyclesDetectsThreeCycles(t *testing.T) {
	msgs := threeCycleHistory()
	cycles := FindCycles(msgs)
	require.Len(t, cycles, 3)
	assert.Equal(t, []int{2}, cycles[0].ToolIndices)
	assert.Equal(t, []int{4}, cycles[1].ToolIndices)
	assert.Equal(t, []int{6}, cycles[2].ToolIndices)
}

func TestFindCyclesIgnoresOrphanToolMessages(t *testing.T) {
	msgs := []model.Message{
		{Role: model.RoleTool, ToolCallID: "orphan", Content: []model.ContentPart{model.TextPart("x")}},
	}
	assert.Empty(t, FindCycles(msgs))
}

func TestPruneToolResultsKeepsLastN(t *testing.T) {
	msgs := threeCycleHistory()
	out := PruneToolResults(msgs, model.PreservePolicy{Count: 1})

	assert.True(t, out[2].Content[1].ToolResult.Redacted)
	assert.Equal(t, RedactedReason, out[2].Content[1].ToolResult.Reason)
	assert.True(t, out[4].Content[1].ToolResult.Redacted)
	assert.False(t, out[6].Content[1].ToolResult.Redacted, "last cycle must be untouched")
	assert.Len(t, out, 7, "pruning never changes message count")
}

func TestPruneToolResultsAllIsNoop(t *testing.T) {
	msgs := threeCycleHistory()
	out := PruneToolResults(msgs, model.PreservePolicy{All: true})
	assert.False(t, out[2].Content[1].ToolResult.Redacted)
}

func TestPruneToolResultsNoneRedactsEverything(t *testing.T) {
	msgs := threeCycleHistory()
	out := PruneToolResults(msgs, model.PreservePolicy{None: true})
	for _, idx := range []int{2, 4, 6} {
		assert.True(t, out[idx].Content[1].ToolResult.Redacted)
	}
}

func TestPruneToolResultsIdempotent(t *testing.T) {
	msgs := threeCycleHistory()
	once := PruneToolResults(msgs, model.PreservePolicy{None: true})
	firstText := once[2].Content[0].Text
	twice := PruneToolResults(once, model.PreservePolicy{None: true})
	assert.Equal(t, firstText, twice[2].Content[0].Text)
}

func TestPruneReasoningKeepsLastN(t *testing.T) {
	msgs := []model.Message{
		{Role: model.RoleAssistant, Reasoning: &model.Reasoning{Text: "r1"}},
		{Role: model.RoleAssistant, Reasoning: &model.Reasoning{Text: "r2"}},
	}
	out := PruneReasoning(msgs, model.PreservePolicy{Count: 1})
	assert.True(t, out[0].Reasoning.Redacted)
	assert.False(t, out[1].Reasoning.Redacted)
}
