package ttlcache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCache_SetAndGet(t *testing.T) {
	c := New[string, string](5*time.Minute, 0)
	defer c.Close()

	c.Set("key", "value")
	got, ok := c.Get("key")
	require.True(t, ok)
	assert.Equal(t, "value", got)
}

func TestCache_GetMissing(t *testing.T) {
	c := New[string, int](time.Minute, 0)
	defer c.Close()

	_, ok := c.Get("absent")
	assert.False(t, ok)
}

func TestCache_Expiry(t *testing.T) {
	c := New[string, string](10*time.Millisecond, 0)
	defer c.Close()

	c.Set("key", "value")
	_, ok := c.Get("key")
	require.True(t, ok, "should exist before expiry")

	time.Sleep(30 * time.Millisecond)
	_, ok = c.Get("key")
	assert.False(t, ok, "should be expired")
}

func TestCache_Delete(t *testing.T) {
	c := New[string, int](time.Minute, 0)
	defer c.Close()

	c.Set("key", 1)
	c.Delete("key")
	_, ok := c.Get("key")
	assert.False(t, ok)
}

func TestCache_Sweep(t *testing.T) {
	c := New[string, int](10*time.Millisecond, 15*time.Millisecond)
	defer c.Close()

	c.Set("key", 1)
	time.Sleep(60 * time.Millisecond)

	assert.Equal(t, 0, c.Len(), "background sweep should have removed expired entry")
}

func TestCache_MaxKeysEvictsOldest(t *testing.T) {
	c := New[string, int](time.Minute, 0).WithMaxKeys(2)
	defer c.Close()

	c.Set("a", 1)
	time.Sleep(time.Millisecond)
	c.Set("b", 2)
	time.Sleep(time.Millisecond)
	c.Set("c", 3) // should evict "a", the oldest

	_, aOK := c.Get("a")
	_, bOK := c.Get("b")
	_, cOK := c.Get("c")
	assert.False(t, aOK, "oldest entry should have been evicted")
	assert.True(t, bOK)
	assert.True(t, cOK)
	assert.Equal(t, 2, c.Len())
}

func TestCache_Len(t *testing.T) {
	c := New[string, int](time.Minute, 0)
	defer c.Close()

	assert.Equal(t, 0, c.Len())
	c.Set("a", 1)
	c.Set("b", 2)
	assert.Equal(t, 2, c.Len())
}
