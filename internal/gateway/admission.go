package gateway

import (
	"context"
	"fmt"
	"time"

	"github.com/compresr/llm-gateway/internal/config"
)

// AdmissionError is returned when a limiter's queue is full or a caller
// waited longer than queueTimeout for a token (spec.md §4.12 step 6,
// "Admission-limiter exit codes (HTTP): 429 queue full or rate-limited").
type AdmissionError struct {
	Limiter string
	Reason  string
}

func (e *AdmissionError) Error() string {
	return fmt.Sprintf("admission: %s: %s", e.Limiter, e.Reason)
}

// limiter is one named bounded-concurrency, bounded-queue gatekeeper
// (spec.md §4.12 step 6). sem bounds how many callers may hold a token at
// once; waiting is itself bounded by queueSize (callers beyond that are
// rejected immediately with queue-full) and by queueTimeout (callers that
// wait longer than that are rejected with queue-timeout).
type limiter struct {
	name         string
	sem          chan struct{}
	queueTimeout time.Duration
	waiting      chan struct{} // bounds token holders plus queued callers to concurrency+queueSize
}

func newLimiter(name string, concurrency, queueSize int, queueTimeout time.Duration) *limiter {
	if concurrency <= 0 {
		concurrency = 1
	}
	return &limiter{
		name:         name,
		sem:          make(chan struct{}, concurrency),
		queueTimeout: queueTimeout,
		waiting:      make(chan struct{}, concurrency+queueSize),
	}
}

// acquire blocks until a token is available, ctx is done, or queueTimeout
// elapses, whichever comes first. The returned release func MUST be
// called exactly once, even when the caller later abandons the request —
// spec.md §4.12's "deferred token release on timeout" means the release
// happens when the underlying work actually finishes, not when the HTTP
// handler stops waiting on it.
func (l *limiter) acquire(ctx context.Context) (func(), error) {
	select {
	case l.waiting <- struct{}{}:
	default:
		return nil, &AdmissionError{Limiter: l.name, Reason: "queue full"}
	}

	timer := time.NewTimer(l.queueTimeout)
	defer timer.Stop()

	select {
	case l.sem <- struct{}{}:
		return func() { <-l.sem; <-l.waiting }, nil
	case <-timer.C:
		<-l.waiting
		return nil, &AdmissionError{Limiter: l.name, Reason: "queue timeout"}
	case <-ctx.Done():
		<-l.waiting
		return nil, &AdmissionError{Limiter: l.name, Reason: ctx.Err().Error()}
	}
}

// admission holds the five named limiters spec.md §4.12 step 6 names.
type admission struct {
	llmRun       *limiter
	llmStream    *limiter
	vectorRun    *limiter
	vectorStream *limiter
	embeddingRun *limiter
}

func newAdmission(cfg config.AdmissionConfig) *admission {
	return &admission{
		llmRun:       newLimiter("llmRun", cfg.LLMRunConcurrency, cfg.QueueSize, cfg.QueueTimeout),
		llmStream:    newLimiter("llmStream", cfg.LLMStreamConcurrency, cfg.QueueSize, cfg.QueueTimeout),
		vectorRun:    newLimiter("vectorRun", cfg.VectorRunConcurrency, cfg.QueueSize, cfg.QueueTimeout),
		vectorStream: newLimiter("vectorStream", cfg.VectorStreamConcurrency, cfg.QueueSize, cfg.QueueTimeout),
		embeddingRun: newLimiter("embeddingRun", cfg.EmbeddingRunConcurrency, cfg.QueueSize, cfg.QueueTimeout),
	}
}

// runDeferred executes work under token, releasing token when work
// finishes. If ctx is done before work completes, runDeferred returns
// ctx.Err() immediately while work keeps running in the background — on a
// context detached from ctx but still bounded by maxRunTime — to natural
// completion; its result is discarded and token is released only then
// (spec.md §4.12 step 6, §5 "deferred token release on timeout": this
// prevents a slow provider call from ever holding more than its one
// admission slot, without forcibly aborting an in-flight upstream call).
func runDeferred[T any](ctx context.Context, release func(), maxRunTime time.Duration, work func(context.Context) (T, error)) (T, error) {
	type outcome struct {
		val T
		err error
	}
	done := make(chan outcome, 1)
	bgCtx, cancel := context.WithTimeout(context.Background(), maxRunTime)
	go func() {
		defer cancel()
		v, err := work(bgCtx)
		done <- outcome{v, err}
		release()
	}()

	select {
	case o := <-done:
		return o.val, o.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}
