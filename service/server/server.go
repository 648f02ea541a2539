package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/brojonat/suilyzer/service/analyzer"
	"github.com/brojonat/suilyzer/service/cache"
	"github.com/brojonat/suilyzer/service/config"
	"github.com/brojonat/suilyzer/service/db"
	"github.com/brojonat/suilyzer/service/metrics"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"
)

// RequestIDHeader carries the id assigned to every request.
const RequestIDHeader = "X-Request-ID"

// AnalysisService is the orchestrator surface the HTTP layer needs.
type AnalysisService interface {
	Analyze(ctx context.Context, digest string) (*analyzer.Result, error)
	Invalidate(digest string) bool
	ClearCache() int
	CacheStats() cache.Stats
}

// AnalysisJournal reads previously computed analyses.
type AnalysisJournal interface {
	GetAnalysis(ctx context.Context, digest string) (*db.Analysis, error)
	ListRecentAnalyses(ctx context.Context, params db.ListAnalysesParams) ([]*db.Analysis, error)
}

// Server represents the HTTP server for the analysis service.
type Server struct {
	addr     string
	cfg      *config.Config
	service  AnalysisService
	journal  AnalysisJournal
	streamer *SSEPublisher
	metrics  *metrics.Metrics
	logger   *slog.Logger
	server   *http.Server
}

// New creates a new HTTP server with the given dependencies.
// The journal is optional - if nil, the analysis history endpoints won't be available.
// The streamer is optional - if nil, the SSE endpoint won't be available.
// The metrics is optional - if nil, metrics endpoints won't be available.
func New(cfg *config.Config, service AnalysisService, journal AnalysisJournal, streamer *SSEPublisher, m *metrics.Metrics, logger *slog.Logger) *Server {
	return &Server{
		addr:     cfg.ServerAddr(),
		cfg:      cfg,
		service:  service,
		journal:  journal,
		streamer: streamer,
		metrics:  m,
		logger:   logger,
	}
}

// Handler builds the routed handler with all middleware applied.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	route := func(pattern, name string, h http.Handler) {
		mux.Handle(pattern, metrics.HTTPMetricsMiddleware(s.metrics, name)(h))
	}

	// Analysis routes
	route("POST /api/v1/analyze", "/api/v1/analyze", handleAnalyze(s.service, s.logger))
	route("GET /api/v1/analyze/{digest}", "/api/v1/analyze/{digest}", handleAnalyzeDigest(s.service, s.logger))

	// Cache administration
	route("DELETE /api/v1/cache/{digest}", "/api/v1/cache/{digest}", handleInvalidate(s.service, s.logger))
	route("DELETE /api/v1/cache", "/api/v1/cache", handleClearCache(s.service, s.logger))

	// Analysis history (if the journal is configured)
	if s.journal != nil {
		route("GET /api/v1/analyses", "/api/v1/analyses", handleListAnalyses(s.journal, s.logger))
		route("GET /api/v1/analyses/{digest}", "/api/v1/analyses/{digest}", handleGetAnalysis(s.journal, s.logger))
	} else {
		s.logger.Warn("analysis journal not configured, history endpoints disabled")
	}

	// SSE streaming endpoint (if the stream is configured)
	if s.streamer != nil {
		mux.Handle("GET /api/v1/stream/analyses", handleStreamAnalyses(s.streamer, s.logger))
		s.logger.Info("SSE streaming endpoint enabled")
	}

	route("GET /health", "/health", handleHealth(s.service, s.cfg.SuiRPCURL))

	// Prometheus metrics endpoint (if metrics collector is configured)
	if s.metrics != nil {
		mux.Handle("GET /metrics", promhttp.Handler())
	}

	return requestIDMiddleware(corsMiddleware(s.cfg.CORSAllowedOrigins)(mux))
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:        s.addr,
		Handler:     s.Handler(),
		ReadTimeout: 15 * time.Second,
		// Analyses may wait on the RPC and the summarizer.
		WriteTimeout: s.cfg.AnalysisTimeout + 15*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	s.logger.Info("starting HTTP server", "addr", s.addr)
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server failed: %w", err)
	}

	return nil
}

// Shutdown gracefully shuts down the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down HTTP server")

	// Close the stream first (disconnects all SSE clients)
	if s.streamer != nil {
		s.streamer.Close()
	}

	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}

// corsMiddleware adds CORS headers to all responses and handles OPTIONS preflight requests.
func corsMiddleware(allowedOrigins []string) func(http.Handler) http.Handler {
	if len(allowedOrigins) == 0 {
		allowedOrigins = []string{"*"}
	}
	c := cors.New(cors.Options{
		AllowedOrigins: allowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type", "Authorization", RequestIDHeader},
		ExposedHeaders: []string{RequestIDHeader},
		MaxAge:         3600,
	})
	return c.Handler
}

// requestIDMiddleware propagates the caller's request id or assigns a new one.
func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(RequestIDHeader)
		if id == "" {
			id = uuid.New().String()
			r.Header.Set(RequestIDHeader, id)
		}
		w.Header().Set(RequestIDHeader, id)
		next.ServeHTTP(w, r)
	})
}
