package budget

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestConsumeWithinCapSucceeds(t *testing.T) {
	b := New(3)
	assert.True(t, b.Consume(2))
	assert.Equal(t, 2, b.UsedCalls())
	assert.Equal(t, 1, b.Remaining())
	assert.False(t, b.Exhausted())
}

func TestConsumeRejectsOverCap(t *testing.T) {
	b := New(3)
	assert.True(t, b.Consume(3))
	assert.True(t, b.Exhausted())
	assert.False(t, b.Consume(1))
	assert.Equal(t, 3, b.UsedCalls(), "used counter must not rewind on rejection")
}

func TestUnboundedNeverExhausts(t *testing.T) {
	b := New(Unbounded)
	assert.True(t, b.Consume(1000))
	assert.False(t, b.Exhausted())
	assert.Equal(t, Unbounded, b.Remaining())
}

func TestNewClampsNegativeCap(t *testing.T) {
	b := New(-5)
	assert.Equal(t, 0, b.MaxCalls())
	assert.True(t, b.Exhausted())
	assert.False(t, b.Consume(1))
}

func TestCountdownTextFormat(t *testing.T) {
	b := New(10)
	b.Consume(3)
	assert.Equal(t, "Tool calls used 3 of 10 - 7 remaining.", CountdownText(b))
}

func TestProgressForUnboundedIsNotBounded(t *testing.T) {
	b := New(Unbounded)
	p := ProgressFor(b, 1, 1)
	assert.False(t, p.Bounded)
}

func TestProgressForMarksFinalCall(t *testing.T) {
	b := New(2)
	b.Consume(1)
	p := ProgressFor(b, 1, 1)
	assert.True(t, p.Bounded)
	assert.Equal(t, 2, p.ToolCallNumber)
	assert.Equal(t, 0, p.ToolCallsRemaining)
	assert.True(t, p.FinalToolCall)
}
