package toolloop

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/compresr/llm-gateway/internal/budget"
	"github.com/compresr/llm-gateway/internal/compat"
	"github.com/compresr/llm-gateway/internal/model"
	"github.com/compresr/llm-gateway/internal/sanitize"
)

func fakeOpenStream(turns [][]compat.StreamEvent) OpenStream {
	i := 0
	return func(_ context.Context, _ []model.Message, _ []model.UnifiedTool) (<-chan compat.StreamEvent, <-chan error, error) {
		events := turns[i]
		i++
		ch := make(chan compat.StreamEvent, len(events))
		for _, e := range events {
			ch <- e
		}
		close(ch)
		errCh := make(chan error)
		close(errCh)
		return ch, errCh, nil
	}
}

func drainEvents(ch <-chan StreamEvent) []StreamEvent {
	var out []StreamEvent
	for ev := range ch {
		out = append(out, ev)
	}
	return out
}

func TestStreamRunNoToolCalls(t *testing.T) {
	open := fakeOpenStream([][]compat.StreamEvent{
		{
			{Type: compat.EventDelta, Text: "hello "},
			{Type: compat.EventDelta, Text: "world"},
			{Type: compat.EventUsage, TotalTokens: 10},
		},
	})
	l := &Loop{
		Dispatcher: echoDispatcher(),
		AliasMap:   sanitize.NewAliasMap(),
		Budget:     budget.New(budget.Unbounded),
		Flags:      FlagsFromSettings(nil),
	}

	out, finish := l.StreamRun(context.Background(), nil, open)
	events := drainEvents(out)
	resp, msgs, err := finish()
	require.NoError(t, err)

	assert.Equal(t, "hello world", resp.Message.Text())
	require.Len(t, msgs, 1)
	assert.Equal(t, StreamDone, events[len(events)-1].Type)
}

func TestStreamRunExecutesToolAndContinues(t *testing.T) {
	open := fakeOpenStream([][]compat.StreamEvent{
		{
			{Type: compat.EventToolCallStart, CallID: "c1", ToolName: "echo"},
			{Type: compat.EventToolCallArgsDelta, CallID: "c1", ArgumentsDelta: `{"text":"hi"}`},
			{Type: compat.EventToolCallEnd, CallID: "c1"},
		},
		{
			{Type: compat.EventDelta, Text: "final answer"},
		},
	})
	l := &Loop{
		Dispatcher: echoDispatcher(),
		AliasMap:   sanitize.NewAliasMap(),
		Budget:     budget.New(budget.Unbounded),
		Flags:      FlagsFromSettings(nil),
	}

	out, finish := l.StreamRun(context.Background(), nil, open)
	events := drainEvents(out)
	resp, msgs, err := finish()
	require.NoError(t, err)

	assert.Equal(t, "final answer", resp.Message.Text())
	require.Len(t, msgs, 3) // assistant(tool calls), tool result, assistant(final)

	var sawToolResult bool
	for _, ev := range events {
		if ev.Type == StreamToolResult {
			sawToolResult = true
			assert.Equal(t, "c1", ev.CallID)
		}
	}
	assert.True(t, sawToolResult)
}
