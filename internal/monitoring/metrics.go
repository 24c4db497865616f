// Package monitoring - metrics.go provides simple counters.
//
// DESIGN: Lightweight in-memory counters for operational metrics
// (SPEC_FULL.md §D.3): request/tool/provider call counts. No /metrics
// HTTP endpoint is exposed — that would add a new external surface
// beyond spec.md §6's endpoint table. For production, export these to
// Prometheus or similar from outside this package.
package monitoring

import (
	"sync/atomic"
	"time"
)

// MetricsCollector collects operational metrics.
type MetricsCollector struct {
	requests      atomic.Int64
	successes     atomic.Int64
	providerCalls atomic.Int64
	rateLimited   atomic.Int64
	toolCalls     atomic.Int64
	toolFailures  atomic.Int64
}

// NewMetricsCollector creates a new metrics collector.
func NewMetricsCollector() *MetricsCollector {
	return &MetricsCollector{}
}

// RecordRequest records a completed HTTP request.
func (mc *MetricsCollector) RecordRequest(success bool, _ time.Duration) {
	mc.requests.Add(1)
	if success {
		mc.successes.Add(1)
	}
}

// RecordProviderCall records a provider manager exchange (spec.md §4.6).
func (mc *MetricsCollector) RecordProviderCall(isRateLimit bool) {
	mc.providerCalls.Add(1)
	if isRateLimit {
		mc.rateLimited.Add(1)
	}
}

// RecordToolCall records a tool dispatch (spec.md §4.8).
func (mc *MetricsCollector) RecordToolCall(success bool) {
	mc.toolCalls.Add(1)
	if !success {
		mc.toolFailures.Add(1)
	}
}

// Stats returns current metrics.
func (mc *MetricsCollector) Stats() map[string]int64 {
	return map[string]int64{
		"requests":       mc.requests.Load(),
		"successes":      mc.successes.Load(),
		"provider_calls": mc.providerCalls.Load(),
		"rate_limited":   mc.rateLimited.Load(),
		"tool_calls":     mc.toolCalls.Load(),
		"tool_failures":  mc.toolFailures.Load(),
	}
}

// Stop is a no-op, kept for interface parity with collectors that own a
// background flush goroutine.
func (mc *MetricsCollector) Stop() {}
