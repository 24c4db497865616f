package sanitize

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestToolNameReplacesDisallowedChars(t *testing.T) {
	assert.Equal(t, "a_b_c", ToolName("a.b c"))
	assert.Equal(t, "foo-bar_1", ToolName("foo-bar_1"))
}

func TestToolNameEmptyBecomesTool(t *testing.T) {
	assert.Equal(t, "tool", ToolName(""))
}

func TestToolNameTruncatesTo64(t *testing.T) {
	long := strings.Repeat("a", 100)
	got := ToolName(long)
	assert.Len(t, got, 64)
}

func TestToolNameIdempotent(t *testing.T) {
	names := []string{"", "weird name!!", "already_ok-1", strings.Repeat("x", 90)}
	for _, n := range names {
		once := ToolName(n)
		twice := ToolName(once)
		assert.Equal(t, once, twice, "sanitize should be idempotent for %q", n)
	}
}

func TestAliasMapFirstRegistrationWins(t *testing.T) {
	m := NewAliasMap()
	s1 := m.Add("weather.lookup")
	s2 := m.Add("weather!lookup")

	assert.Equal(t, s1, s2)
	original, ok := m.Resolve(s1)
	assert.True(t, ok)
	assert.Equal(t, "weather.lookup", original)
	assert.Equal(t, 1, m.Len())
}

func TestAliasMapResolveMissing(t *testing.T) {
	m := NewAliasMap()
	_, ok := m.Resolve("nope")
	assert.False(t, ok)
}

func TestHeadersRedactsSensitiveKeysCaseInsensitive(t *testing.T) {
	in := map[string]string{
		"Authorization": "Bearer secret",
		"X-Api-Key":     "sk-123",
		"Content-Type":  "application/json",
	}
	out := Headers(in)

	assert.Equal(t, redactedValue, out["Authorization"])
	assert.Equal(t, redactedValue, out["X-Api-Key"])
	assert.Equal(t, "application/json", out["Content-Type"])
}

func TestHeadersNilInput(t *testing.T) {
	assert.Nil(t, Headers(nil))
}
