// Package monitoring - types.go defines shared types.
//
// DESIGN: These types are used by both gateway/ and monitoring/ packages.
// Defined here ONCE to avoid duplication and circular imports.
package monitoring

import "time"

// TelemetryConfig contains telemetry configuration.
type TelemetryConfig struct {
	Enabled         bool
	LogDir          string
	MaxFiles        int
	MaxAgeDays      int
	DisableFileLogs bool
	DisableConsole  bool
}

// LoggerConfig contains logging configuration.
type LoggerConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // json, console
	Output string `yaml:"output"` // stdout, stderr, or file path
}

// AlertConfig contains alert thresholds.
type AlertConfig struct {
	HighLatencyThreshold time.Duration `yaml:"high_latency_threshold"`
}

// RequestEvent captures one HTTP request through the gateway façade
// (spec.md §4.12).
type RequestEvent struct {
	RequestID  string    `json:"request_id"`
	Timestamp  time.Time `json:"timestamp"`
	Method     string    `json:"method"`
	Path       string    `json:"path"`
	ClientIP   string    `json:"client_ip"`
	StatusCode int       `json:"status_code"`
	LatencyMs  int64     `json:"latency_ms"`
	Success    bool      `json:"success"`
	Error      string    `json:"error,omitempty"`
}

// ProviderCallEvent captures one provider manager exchange (spec.md
// §4.6 "structured logging").
type ProviderCallEvent struct {
	RequestID        string            `json:"request_id"`
	Timestamp        time.Time         `json:"timestamp"`
	Provider         string            `json:"provider"`
	Model            string            `json:"model"`
	Streaming        bool              `json:"streaming"`
	URL              string            `json:"url"`
	RequestBody      any               `json:"request_body,omitempty"`
	ResponseBody     any               `json:"response_body,omitempty"`
	Headers          map[string]string `json:"headers,omitempty"`
	StatusCode       int               `json:"status_code"`
	LatencyMs        int64             `json:"latency_ms"`
	IsRateLimit      bool              `json:"is_rate_limit,omitempty"`
	Error            string            `json:"error,omitempty"`
	UnconsumedExtras []string          `json:"unconsumed_extras,omitempty"`
}

// ToolCallEvent captures one tool dispatch (spec.md §4.8, §4.9).
type ToolCallEvent struct {
	RequestID  string    `json:"request_id"`
	Timestamp  time.Time `json:"timestamp"`
	Tool       string    `json:"tool"`
	CallID     string    `json:"call_id"`
	Route      string    `json:"route,omitempty"`
	DurationMs int64     `json:"duration_ms"`
	Success    bool      `json:"success"`
	Error      string    `json:"error,omitempty"`
}

// TrajectoryEvent is one entry in a request's append-only trajectory log:
// every provider call, tool invocation, and prune decision made during a
// run/stream (SPEC_FULL.md §D.1).
type TrajectoryEvent struct {
	RequestID string         `json:"request_id"`
	Timestamp time.Time      `json:"timestamp"`
	Kind      string         `json:"kind"` // provider_call | tool_call | prune
	Detail    map[string]any `json:"detail,omitempty"`
}
