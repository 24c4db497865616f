package toolstate

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/compresr/llm-gateway/internal/compat"
)

func TestBlockIndexedFullCycle(t *testing.T) {
	b := NewBlockIndexed()
	start := b.Start(0, "x", "t")
	assert.Equal(t, compat.EventToolCallStart, start.Type)

	d1, ok := b.Delta(0, `{"a":1`)
	assert.True(t, ok)
	assert.Equal(t, compat.EventToolCallArgsDelta, d1.Type)

	d2, ok := b.Delta(0, `}`)
	assert.True(t, ok)
	assert.Equal(t, `}`, d2.ArgumentsDelta)

	end, ok := b.Stop(0)
	assert.True(t, ok)
	assert.Equal(t, compat.EventToolCallEnd, end.Type)
	assert.Equal(t, `{"a":1}`, end.Arguments)
	assert.False(t, b.HasOpenCalls())
}

func TestBlockIndexedDeltaOnUnknownIndexIgnored(t *testing.T) {
	b := NewBlockIndexed()
	_, ok := b.Delta(5, "x")
	assert.False(t, ok)
}

func TestIndexFirstFirstDeltaEmitsStart(t *testing.T) {
	s := NewIndexFirst()
	ev := s.Delta(0, "call_1", "getWeather", "")
	assert.Equal(t, compat.EventToolCallStart, ev.Type)
	assert.Equal(t, "call_1", ev.CallID)
}

func TestIndexFirstSubsequentDeltasCarryOnlyIndex(t *testing.T) {
	s := NewIndexFirst()
	s.Delta(0, "call_1", "getWeather", "")
	ev := s.Delta(0, "", "", `{"city":`)
	assert.Equal(t, compat.EventToolCallArgsDelta, ev.Type)
	assert.Equal(t, "call_1", ev.CallID)
}

func TestIndexFirstFinishSynthesizesEnd(t *testing.T) {
	s := NewIndexFirst()
	s.Delta(0, "call_1", "t", "")
	s.Delta(0, "", "", `{"a":1}`)
	ends := s.FinishToolCalls()
	assert.Len(t, ends, 1)
	assert.Equal(t, compat.EventToolCallEnd, ends[0].Type)
	assert.Equal(t, `{"a":1}`, ends[0].Arguments)
}

func TestItemIDFullCycle(t *testing.T) {
	s := NewItemID()
	s.Start("item_1", "call_1", "t")
	s.Delta("item_1", `{"a":1}`)
	ev, ok := s.Done("item_1")
	assert.True(t, ok)
	assert.Equal(t, `{"a":1}`, ev.Arguments)
	assert.True(t, s.FinishedWithToolCalls())
}

func TestItemIDNoToolCallsWhenNeverStarted(t *testing.T) {
	s := NewItemID()
	assert.False(t, s.FinishedWithToolCalls())
}
