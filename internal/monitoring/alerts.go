// Package monitoring - alerts.go flags anomalies and errors.
//
// DESIGN: AlertManager logs notable events at appropriate levels:
//   - FlagHighLatency:     Warn when request exceeds threshold
//   - FlagProviderError:   Warn on upstream non-2xx responses
//   - FlagRateLimited:     Warn when a provider response classifies as rate-limited
//   - FlagToolBudgetExhausted: Info when a run exhausts its tool-call budget
//   - FlagPanic:           Error on recovered panics
package monitoring

import "time"

// AlertManager flags anomalies and errors.
type AlertManager struct {
	logger               *Logger
	highLatencyThreshold time.Duration
}

// NewAlertManager creates a new alert manager.
func NewAlertManager(logger *Logger, cfg AlertConfig) *AlertManager {
	threshold := cfg.HighLatencyThreshold
	if threshold == 0 {
		threshold = 5 * time.Second
	}
	return &AlertManager{logger: logger, highLatencyThreshold: threshold}
}

// FlagHighLatency logs when request latency exceeds threshold.
func (am *AlertManager) FlagHighLatency(requestID string, latency time.Duration, provider, path string) {
	if latency < am.highLatencyThreshold {
		return
	}
	am.logger.Warn().
		Str("request_id", requestID).
		Dur("latency", latency).
		Str("provider", provider).
		Str("path", path).
		Msg("high_latency")
}

// FlagProviderError logs an upstream provider error (spec.md §7).
func (am *AlertManager) FlagProviderError(requestID, provider string, statusCode int, errorMsg string) {
	am.logger.Warn().
		Str("request_id", requestID).
		Str("provider", provider).
		Int("status", statusCode).
		Str("error", errorMsg).
		Msg("provider_error")
}

// FlagRateLimited logs a provider response classified as rate-limited
// (spec.md §4.6 retryWords classification).
func (am *AlertManager) FlagRateLimited(requestID, provider string) {
	am.logger.Warn().
		Str("request_id", requestID).
		Str("provider", provider).
		Msg("provider_rate_limited")
}

// FlagToolBudgetExhausted logs when a run consumes its entire tool-call
// budget (spec.md §4.9).
func (am *AlertManager) FlagToolBudgetExhausted(requestID string, maxCalls int) {
	am.logger.Info().
		Str("request_id", requestID).
		Int("max_calls", maxCalls).
		Msg("tool_budget_exhausted")
}

// FlagInvalidRequest logs an invalid request (spec.md §7 ValidationError).
func (am *AlertManager) FlagInvalidRequest(requestID, reason string) {
	am.logger.Debug().
		Str("request_id", requestID).
		Str("reason", reason).
		Msg("invalid_request")
}

// FlagPanic logs a recovered panic.
func (am *AlertManager) FlagPanic(requestID string, panicValue interface{}, stack string) {
	am.logger.Error().
		Str("request_id", requestID).
		Interface("panic", panicValue).
		Msg("panic_recovered")
}
