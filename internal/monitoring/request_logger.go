// Package monitoring - request_logger.go logs HTTP request lifecycle.
//
// DESIGN: Structured logging for request tracing at DEBUG level:
//   - LogIncoming:  Request received from client
//   - LogOutgoing:  Request forwarded to a provider
//   - LogResponse:  Response sent to client
package monitoring

import (
	"net/http"
	"time"
)

// RequestLogger logs HTTP request lifecycle events.
type RequestLogger struct {
	logger *Logger
}

// NewRequestLogger creates a new request logger.
func NewRequestLogger(logger *Logger) *RequestLogger {
	return &RequestLogger{logger: logger}
}

// RequestInfo contains incoming request information.
type RequestInfo struct {
	RequestID  string
	Method     string
	Path       string
	RemoteAddr string
	BodySize   int
	StartTime  time.Time
}

// NewRequestInfo creates RequestInfo from an HTTP request.
func NewRequestInfo(r *http.Request, requestID string, bodySize int) *RequestInfo {
	return &RequestInfo{
		RequestID:  requestID,
		Method:     r.Method,
		Path:       r.URL.Path,
		RemoteAddr: r.RemoteAddr,
		BodySize:   bodySize,
		StartTime:  time.Now(),
	}
}

// LogIncoming logs an incoming request.
func (rl *RequestLogger) LogIncoming(info *RequestInfo) {
	rl.logger.Debug().
		Str("request_id", info.RequestID).
		Str("method", info.Method).
		Str("path", info.Path).
		Int("body_size", info.BodySize).
		Msg("incoming")
}

// OutgoingRequestInfo contains outgoing provider request information.
type OutgoingRequestInfo struct {
	RequestID string
	Provider  string
	Model     string
	URL       string
	Streaming bool
	BodySize  int
}

// LogOutgoing logs an outgoing provider request.
func (rl *RequestLogger) LogOutgoing(info *OutgoingRequestInfo) {
	rl.logger.Debug().
		Str("request_id", info.RequestID).
		Str("provider", info.Provider).
		Str("model", info.Model).
		Bool("streaming", info.Streaming).
		Int("body_size", info.BodySize).
		Msg("outgoing")
}

// ResponseInfo contains response information.
type ResponseInfo struct {
	RequestID  string
	StatusCode int
	Latency    time.Duration
}

// LogResponse logs a response.
func (rl *RequestLogger) LogResponse(info *ResponseInfo) {
	rl.logger.Debug().
		Str("request_id", info.RequestID).
		Int("status", info.StatusCode).
		Dur("latency", info.Latency).
		Msg("response")
}

// UnconsumedExtrasInfo logs payload-builder extras that neither the
// manifest nor the compat consumed (spec.md §4.3 step 7).
type UnconsumedExtrasInfo struct {
	RequestID string
	Provider  string
	Keys      []string
}

// LogUnconsumedExtras logs leftover provider extras at info level.
func (rl *RequestLogger) LogUnconsumedExtras(info *UnconsumedExtrasInfo) {
	if len(info.Keys) == 0 {
		return
	}
	rl.logger.Info().
		Str("request_id", info.RequestID).
		Str("provider", info.Provider).
		Strs("keys", info.Keys).
		Msg("unconsumed_extras")
}
