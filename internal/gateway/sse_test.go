package gateway

import (
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSSEWriter_WriteEventFraming(t *testing.T) {
	rec := httptest.NewRecorder()
	w := newSSEWriter(rec)
	require.NoError(t, w.writeEvent(map[string]string{"type": "delta", "text": "hi"}))

	body := rec.Body.String()
	assert.True(t, strings.HasPrefix(body, "data: "))
	assert.True(t, strings.HasSuffix(body, "\n\n"))
	assert.Contains(t, body, `"type":"delta"`)
	assert.Equal(t, "text/event-stream", rec.Header().Get("Content-Type"))
}

func TestSSEWriter_WriteTerminalError(t *testing.T) {
	rec := httptest.NewRecorder()
	w := newSSEWriter(rec)
	w.writeTerminalError("stream_idle_timeout", "no event received")

	assert.Contains(t, rec.Body.String(), `"code":"stream_idle_timeout"`)
	assert.Contains(t, rec.Body.String(), `"type":"error"`)
}

func TestPump_RelaysUntilSourceCloses(t *testing.T) {
	rec := httptest.NewRecorder()
	w := newSSEWriter(rec)
	src := make(chan string, 2)
	src <- "a"
	src <- "b"
	close(src)

	var cancelled atomic.Bool
	pump(w, src, make(chan struct{}), time.Second, time.Now().Add(time.Second),
		func(s string) (any, bool) { return map[string]string{"text": s}, true },
		func() { cancelled.Store(true) })

	body := rec.Body.String()
	assert.Contains(t, body, `"text":"a"`)
	assert.Contains(t, body, `"text":"b"`)
	assert.False(t, cancelled.Load())
}

func TestPump_IdleTimeoutEmitsTerminalErrorAndCancels(t *testing.T) {
	rec := httptest.NewRecorder()
	w := newSSEWriter(rec)
	src := make(chan string)

	cancelled := make(chan struct{})
	pump(w, src, make(chan struct{}), 10*time.Millisecond, time.Now().Add(time.Second),
		func(s string) (any, bool) { return s, true },
		func() { close(cancelled) })

	assert.Contains(t, rec.Body.String(), `"stream_idle_timeout"`)
	select {
	case <-cancelled:
	case <-time.After(time.Second):
		t.Fatal("cancel was never invoked")
	}
}

func TestPump_ClientDisconnectCancelsWithoutTerminalError(t *testing.T) {
	rec := httptest.NewRecorder()
	w := newSSEWriter(rec)
	src := make(chan string)
	done := make(chan struct{})
	close(done)

	cancelled := make(chan struct{})
	pump(w, src, done, time.Second, time.Now().Add(time.Second),
		func(s string) (any, bool) { return s, true },
		func() { close(cancelled) })

	assert.NotContains(t, rec.Body.String(), "error")
	select {
	case <-cancelled:
	case <-time.After(time.Second):
		t.Fatal("cancel was never invoked")
	}
}

func TestPump_TranslateCanSuppressEvents(t *testing.T) {
	rec := httptest.NewRecorder()
	w := newSSEWriter(rec)
	src := make(chan string, 1)
	src <- "done"
	close(src)

	pump(w, src, make(chan struct{}), time.Second, time.Now().Add(time.Second),
		func(s string) (any, bool) { return nil, false },
		func() {})

	assert.Empty(t, rec.Body.String())
}
