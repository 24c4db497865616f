package toolloop

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/compresr/llm-gateway/internal/budget"
	"github.com/compresr/llm-gateway/internal/dispatch"
	"github.com/compresr/llm-gateway/internal/model"
	"github.com/compresr/llm-gateway/internal/sanitize"
)

func echoDispatcher() *dispatch.Dispatcher {
	return &dispatch.Dispatcher{
		Routes: []*model.ProcessRoute{
			{
				ID:     "echo",
				Match:  model.RouteMatch{Type: model.MatchExact, Pattern: "echo"},
				Invoke: model.RouteInvoke{Kind: model.InvokeModule, Module: "echo"},
			},
			{
				ID:     "boom",
				Match:  model.RouteMatch{Type: model.MatchExact, Pattern: "boom"},
				Invoke: model.RouteInvoke{Kind: model.InvokeModule, Module: "boom"},
			},
		},
		Modules: map[string]dispatch.ModuleHandler{
			"echo": func(_ context.Context, tc dispatch.ToolContext) (any, error) {
				return map[string]any{"echoed": tc.Arguments["text"]}, nil
			},
			"boom": func(_ context.Context, tc dispatch.ToolContext) (any, error) {
				return nil, errors.New("boom failed")
			},
		},
	}
}

func toolCall(id, name string, args map[string]any) model.ToolCall {
	return model.ToolCall{ID: id, Name: name, Arguments: args}
}

func TestRunReturnsImmediatelyWithoutToolCalls(t *testing.T) {
	l := &Loop{
		Dispatcher: echoDispatcher(),
		AliasMap:   sanitize.NewAliasMap(),
		Budget:     budget.New(budget.Unbounded),
		Flags:      FlagsFromSettings(nil),
	}
	last := &model.LLMResponse{Message: model.Message{Role: model.RoleAssistant, Content: []model.ContentPart{model.TextPart("hi")}}}

	resp, msgs, err := l.Run(context.Background(), nil, last)
	require.NoError(t, err)
	assert.Equal(t, last, resp)
	require.Len(t, msgs, 1)
	assert.Equal(t, model.RoleAssistant, msgs[0].Role)
}

func TestRunExecutesToolCallAndLoopsOnce(t *testing.T) {
	calls := 0
	turn := func(_ context.Context, messages []model.Message, tools []model.UnifiedTool) (*model.LLMResponse, error) {
		calls++
		return &model.LLMResponse{
			FinishReason: model.FinishStop,
			Message:      model.Message{Role: model.RoleAssistant, Content: []model.ContentPart{model.TextPart("done")}},
		}, nil
	}
	l := &Loop{
		Dispatcher: echoDispatcher(),
		Turn:       turn,
		AliasMap:   sanitize.NewAliasMap(),
		Budget:     budget.New(budget.Unbounded),
		Flags:      FlagsFromSettings(nil),
	}
	first := &model.LLMResponse{
		Message: model.Message{
			Role:      model.RoleAssistant,
			ToolCalls: []model.ToolCall{toolCall("c1", "echo", map[string]any{"text": "hi"})},
		},
	}

	resp, msgs, err := l.Run(context.Background(), nil, first)
	require.NoError(t, err)
	assert.Equal(t, 1, calls)
	assert.Equal(t, "done", resp.Message.Text())

	// assistant (tool calls) -> tool message -> assistant (final)
	require.Len(t, msgs, 3)
	assert.Equal(t, model.RoleTool, msgs[1].Role)
	assert.Equal(t, "c1", msgs[1].ToolCallID)
}

func TestRunBudgetExhaustionWithFinalPrompt(t *testing.T) {
	turn := func(_ context.Context, messages []model.Message, tools []model.UnifiedTool) (*model.LLMResponse, error) {
		assert.Nil(t, tools, "final-prompt call must clear tools")
		return &model.LLMResponse{Message: model.Message{Role: model.RoleAssistant, Content: []model.ContentPart{model.TextPart("summary")}}}, nil
	}
	l := &Loop{
		Dispatcher: echoDispatcher(),
		Turn:       turn,
		AliasMap:   sanitize.NewAliasMap(),
		Budget:     budget.New(0),
		Flags:      FlagsFromSettings(&model.LLMCallSettings{ToolFinalPromptEnabled: true}),
	}
	first := &model.LLMResponse{
		Message: model.Message{
			Role:      model.RoleAssistant,
			ToolCalls: []model.ToolCall{toolCall("c1", "echo", nil)},
		},
	}

	resp, msgs, err := l.Run(context.Background(), nil, first)
	require.NoError(t, err)
	assert.Equal(t, "summary", resp.Message.Text())

	var sawFinalPrompt, sawBudgetError bool
	for _, m := range msgs {
		if m.Role == model.RoleUser && len(m.Content) > 0 && m.Content[0].Text == finalPromptText {
			sawFinalPrompt = true
		}
		if m.Role == model.RoleTool {
			for _, c := range m.Content {
				if c.Type == model.ContentToolResult && c.ToolResult != nil {
					if errVal, ok := c.ToolResult.Result.(map[string]any)["error"]; ok && errVal == budgetExhaustedError {
						sawBudgetError = true
					}
				}
			}
		}
	}
	assert.True(t, sawFinalPrompt, "expected synthesized final prompt message")
	assert.True(t, sawBudgetError, "expected tool_call_budget_exhausted tool message")
}

func TestRunToolExecutionErrorIsRecovered(t *testing.T) {
	turn := func(_ context.Context, messages []model.Message, tools []model.UnifiedTool) (*model.LLMResponse, error) {
		return &model.LLMResponse{Message: model.Message{Role: model.RoleAssistant, Content: []model.ContentPart{model.TextPart("ok")}}}, nil
	}
	l := &Loop{
		Dispatcher: echoDispatcher(),
		Turn:       turn,
		AliasMap:   sanitize.NewAliasMap(),
		Budget:     budget.New(budget.Unbounded),
		Flags:      FlagsFromSettings(nil),
	}
	first := &model.LLMResponse{
		Message: model.Message{
			Role:      model.RoleAssistant,
			ToolCalls: []model.ToolCall{toolCall("c1", "boom", nil)},
		},
	}

	_, msgs, err := l.Run(context.Background(), nil, first)
	require.NoError(t, err)
	require.Len(t, msgs, 3)
	toolMsg := msgs[1]
	require.Len(t, toolMsg.Content, 2)
	result := toolMsg.Content[1].ToolResult
	require.NotNil(t, result)
	assert.True(t, result.IsError)
	payload, ok := result.Result.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, toolExecutionFailedErr, payload["error"])
}

func TestFormatToolMessageTruncatesLongResults(t *testing.T) {
	o := callOutcome{call: model.ToolCall{ID: "c1", Name: "echo"}, result: "0123456789"}
	msg := formatToolMessage(o, 4)
	require.Len(t, msg.Content, 3)
	assert.Equal(t, "0123…", msg.Content[0].Text)
	assert.Equal(t, truncationMarker, msg.Content[1].Text)
}

func TestAliasMapResolvesSanitizedNameForDispatch(t *testing.T) {
	aliases := sanitize.NewAliasMap()
	sanitized := aliases.Add("weird name!")

	turn := func(_ context.Context, messages []model.Message, tools []model.UnifiedTool) (*model.LLMResponse, error) {
		return &model.LLMResponse{Message: model.Message{Role: model.RoleAssistant, Content: []model.ContentPart{model.TextPart("done")}}}, nil
	}
	d := &dispatch.Dispatcher{
		Routes: []*model.ProcessRoute{
			{ID: "named", Match: model.RouteMatch{Type: model.MatchExact, Pattern: "weird name!"}, Invoke: model.RouteInvoke{Kind: model.InvokeModule, Module: "named"}},
		},
		Modules: map[string]dispatch.ModuleHandler{
			"named": func(_ context.Context, tc dispatch.ToolContext) (any, error) {
				assert.Equal(t, "weird name!", tc.ToolName)
				return "ok", nil
			},
		},
	}
	l := &Loop{
		Dispatcher: d,
		Turn:       turn,
		AliasMap:   aliases,
		Budget:     budget.New(budget.Unbounded),
		Flags:      FlagsFromSettings(nil),
	}
	first := &model.LLMResponse{
		Message: model.Message{
			Role:      model.RoleAssistant,
			ToolCalls: []model.ToolCall{toolCall("c1", sanitized, nil)},
		},
	}

	_, _, err := l.Run(context.Background(), nil, first)
	require.NoError(t, err)
}
