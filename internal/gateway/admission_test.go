package gateway

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/compresr/llm-gateway/internal/config"
)

func TestLimiter_AcquireRelease(t *testing.T) {
	l := newLimiter("test", 1, 0, 50*time.Millisecond)
	release, err := l.acquire(context.Background())
	require.NoError(t, err)
	require.NotNil(t, release)
	release()

	release2, err := l.acquire(context.Background())
	require.NoError(t, err)
	release2()
}

func TestLimiter_QueueFullRejectsImmediately(t *testing.T) {
	l := newLimiter("test", 1, 0, time.Second)
	release, err := l.acquire(context.Background())
	require.NoError(t, err)
	defer release()

	_, err = l.acquire(context.Background())
	require.Error(t, err)
	var admitErr *AdmissionError
	require.ErrorAs(t, err, &admitErr)
	assert.Equal(t, "test", admitErr.Limiter)
}

func TestLimiter_QueueTimeout(t *testing.T) {
	l := newLimiter("test", 1, 1, 20*time.Millisecond)
	release, err := l.acquire(context.Background())
	require.NoError(t, err)
	defer release()

	start := time.Now()
	_, err = l.acquire(context.Background())
	require.Error(t, err)
	assert.GreaterOrEqual(t, time.Since(start), 20*time.Millisecond)
}

func TestLimiter_CtxCancelWhileQueued(t *testing.T) {
	l := newLimiter("test", 1, 1, time.Second)
	release, err := l.acquire(context.Background())
	require.NoError(t, err)
	defer release()

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	_, err = l.acquire(ctx)
	require.Error(t, err)
}

func TestNewAdmission_WiresAllFiveLimiters(t *testing.T) {
	a := newAdmission(config.AdmissionConfig{
		LLMRunConcurrency: 1, LLMStreamConcurrency: 1, VectorRunConcurrency: 1,
		VectorStreamConcurrency: 1, EmbeddingRunConcurrency: 1,
		QueueSize: 0, QueueTimeout: time.Second,
	})
	require.NotNil(t, a.llmRun)
	require.NotNil(t, a.llmStream)
	require.NotNil(t, a.vectorRun)
	require.NotNil(t, a.vectorStream)
	require.NotNil(t, a.embeddingRun)
}

func TestRunDeferred_ReturnsResultOnSuccess(t *testing.T) {
	var released atomic.Bool
	result, err := runDeferred(context.Background(), func() { released.Store(true) }, time.Second,
		func(ctx context.Context) (int, error) { return 42, nil })
	require.NoError(t, err)
	assert.Equal(t, 42, result)
	assert.True(t, released.Load())
}

func TestRunDeferred_CallerCtxDoneReturnsEarlyButReleasesLater(t *testing.T) {
	released := make(chan struct{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	start := make(chan struct{})
	_, err := runDeferred(ctx, func() { close(released) }, time.Second,
		func(bgCtx context.Context) (int, error) {
			<-start
			return 1, nil
		})
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.Canceled))

	close(start)
	select {
	case <-released:
	case <-time.After(time.Second):
		t.Fatal("release was never called for the background work")
	}
}

func TestRunDeferred_BackgroundWorkBoundedByMaxRunTime(t *testing.T) {
	result, err := runDeferred(context.Background(), func() {}, 10*time.Millisecond,
		func(bgCtx context.Context) (int, error) {
			<-bgCtx.Done()
			return 0, bgCtx.Err()
		})
	require.Error(t, err)
	assert.Equal(t, 0, result)
}
