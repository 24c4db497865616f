// Package gateway implements component C12, the HTTP façade: the request
// pipeline of spec.md §4.12 (security headers, CORS, auth, per-key rate
// limiting, admission control, body limits, spec validation, dispatch to
// the coordinator, SSE streaming) in front of /run, /stream, /vector/run,
// /vector/stream, /vector/embeddings/run, and /healthz.
//
// DESIGN: the middleware chain, responseWriter wrapper, token-bucket rate
// limiter, and SSRF-hardened getClientIP/isAllowedHost are the teacher's
// internal/gateway middleware almost unchanged (see middleware.go); New/
// Start/Shutdown and the route handlers are new, generalized from the
// teacher's fixed three-provider Gateway.Run into the fully dynamic
// per-request coordinator.Coordinator this spec requires.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/compresr/llm-gateway/internal/config"
	"github.com/compresr/llm-gateway/internal/coordinator"
	"github.com/compresr/llm-gateway/internal/monitoring"
	"github.com/compresr/llm-gateway/internal/providermanager"
	"github.com/compresr/llm-gateway/internal/registry"
	"github.com/compresr/llm-gateway/internal/retrieval"
)

const (
	// MaxRateLimitBuckets bounds the per-IP token-bucket map (memory
	// exhaustion guard for the rate limiter, spec.md §4.12 step 4).
	MaxRateLimitBuckets = 10_000

	// HeaderRequestID is the header carrying (or, if absent, receiving) the
	// per-request correlation id (spec.md §4.12, §6).
	HeaderRequestID = "X-Request-ID"
)

// allowedHosts is the SSRF allowlist consulted by isAllowedHost for any
// outbound URL the façade itself would dial directly (it does not gate
// provider/tool URLs, which are operator-configured manifests, not
// request-controlled). Empty: this gateway makes no outbound calls to a
// request-supplied host today; kept so a future such endpoint has
// somewhere to register against.
var allowedHosts = map[string]bool{}

// Gateway wires the HTTP façade to the shared, process-lifetime
// collaborators: the manifest registry, provider transport, retrieval
// layer, and telemetry/monitoring stack (spec.md §5 "Shared resources").
type Gateway struct {
	cfg *config.Config

	registry  *registry.Registry
	providers *providermanager.Manager
	retrieval *retrieval.Service

	tracker       *monitoring.Tracker
	logger        *monitoring.Logger
	requestLogger *monitoring.RequestLogger
	alerts        *monitoring.AlertManager
	metrics       *monitoring.MetricsCollector

	rateLimiter *rateLimiter
	admission   *admission

	httpClient *http.Client
	httpServer *http.Server
}

// New wires a Gateway from cfg. It does not start listening; call Start.
func New(cfg *config.Config) (*Gateway, error) {
	tracker, err := monitoring.NewTracker(monitoring.TelemetryConfig{
		Enabled:         cfg.Telemetry.Enabled,
		LogDir:          cfg.Telemetry.LogDir,
		MaxFiles:        cfg.Telemetry.MaxFiles,
		MaxAgeDays:      cfg.Telemetry.MaxAgeDays,
		DisableFileLogs: cfg.Telemetry.DisableFileLogs,
		DisableConsole:  cfg.Telemetry.DisableConsole,
	})
	if err != nil {
		return nil, fmt.Errorf("gateway: starting telemetry tracker: %w", err)
	}

	logger := monitoring.New(monitoring.LoggerConfig{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Output: cfg.Logging.Output,
	})
	monitoring.Global(monitoring.LoggerConfig{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Output: cfg.Logging.Output,
	})

	requestLogger := monitoring.NewRequestLogger(logger)
	alerts := monitoring.NewAlertManager(logger, monitoring.AlertConfig{HighLatencyThreshold: 5 * time.Second})
	metrics := monitoring.NewMetricsCollector()

	reg := registry.New(cfg.Registry.PluginsDir)

	httpClient := &http.Client{Timeout: cfg.Server.RequestTimeout}

	providers := providermanager.New(
		providermanager.WithHTTPClient(httpClient),
		providermanager.WithBedrockSigner(providermanager.NewBedrockSigner()),
		providermanager.WithTelemetry(tracker, requestLogger, alerts, metrics),
	)

	retrievalSvc := retrieval.NewService(reg, httpClient)

	gw := &Gateway{
		cfg:           cfg,
		registry:      reg,
		providers:     providers,
		retrieval:     retrievalSvc,
		tracker:       tracker,
		logger:        logger,
		requestLogger: requestLogger,
		alerts:        alerts,
		metrics:       metrics,
		rateLimiter:   newRateLimiter(cfg.RateLimit.RequestsPerSec),
		admission:     newAdmission(cfg.Admission),
		httpClient:    httpClient,
	}

	gw.httpServer = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      gw.routes(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}
	return gw, nil
}

// routes assembles the mux and applies the middleware chain in the order
// middleware.go documents: panicRecovery -> authMiddleware -> rateLimit ->
// loggingMiddleware -> security, outermost to innermost.
func (g *Gateway) routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", g.handleHealthz)
	mux.HandleFunc("/run", g.handleRun)
	mux.HandleFunc("/stream", g.handleStream)
	mux.HandleFunc("/vector/run", g.handleVectorRun)
	mux.HandleFunc("/vector/stream", g.handleVectorStream)
	mux.HandleFunc("/vector/embeddings/run", g.handleEmbeddingsRun)

	var h http.Handler = mux
	h = g.security(h)
	h = g.loggingMiddleware(h)
	h = g.rateLimit(h)
	h = g.authMiddleware(h)
	h = g.panicRecovery(h)
	return h
}

// Start begins serving until the process is asked to stop. It blocks
// until the listener closes (by Shutdown or a fatal accept error).
func (g *Gateway) Start() error {
	g.logger.Info().Str("addr", g.httpServer.Addr).Msg("gateway listening")
	if err := g.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown drains in-flight requests (bounded by ctx) and releases the
// process-lifetime collaborators: the retrieval layer's MCP subprocess
// pool and vector stores, and the telemetry tracker's open log files.
//
// Per-request coordinator.Coordinator values never own these — each
// request is handed the shared registry/providers/retrieval directly
// (the retrieval field wrapped in retrieval.Scoped, which is not an
// io.Closer) and the façade never calls Coordinator.Close, precisely so a
// single request's completion cannot tear down state every other
// in-flight request still depends on. Shutdown is the only place these
// are closed, once, for the whole process.
func (g *Gateway) Shutdown(ctx context.Context) error {
	var errs []error
	if err := g.httpServer.Shutdown(ctx); err != nil {
		errs = append(errs, err)
	}
	if err := g.retrieval.Close(); err != nil {
		errs = append(errs, err)
	}
	if err := g.tracker.Close(); err != nil {
		errs = append(errs, err)
	}
	g.metrics.Stop()
	return errors.Join(errs...)
}

// buildCoordinator assembles a fresh, cheap Coordinator value for one
// request. All of its fields are shared pointers; nothing here is
// request-owned except the retrieval.Scoped wrapper (see Shutdown).
func (g *Gateway) buildCoordinator() *coordinator.Coordinator {
	return &coordinator.Coordinator{
		Registry:      g.registry,
		Providers:     g.providers,
		Modules:       nil,
		Retrieval:     retrieval.NewScoped(g.retrieval),
		HTTPClient:    g.httpClient,
		Tracker:       g.tracker,
		RequestLogger: g.requestLogger,
		Alerts:        g.alerts,
		Metrics:       g.metrics,
	}
}

// writeError writes a plain-text error response and mirrors it into the
// structured response log.
func (g *Gateway) writeError(w http.ResponseWriter, msg string, status int) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(status)
	fmt.Fprintln(w, msg)
}
