package main

import (
	"context"
	"log/slog"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/brojonat/suilyzer/service/analyzer"
	"github.com/brojonat/suilyzer/service/cache"
	"github.com/brojonat/suilyzer/service/config"
	"github.com/brojonat/suilyzer/service/db"
	"github.com/brojonat/suilyzer/service/metrics"
	natspkg "github.com/brojonat/suilyzer/service/nats"
	"github.com/brojonat/suilyzer/service/server"
	"github.com/brojonat/suilyzer/service/sui"
	"github.com/brojonat/suilyzer/service/summarizer"
	"github.com/jackc/pgx/v5/pgxpool"
)

func main() {
	// Load and validate configuration from environment
	// This fails fast if any value is invalid
	cfg := config.MustLoad()

	logger := setupLogger(cfg.LogLevel)
	logger.Info("starting server",
		"addr", cfg.ServerAddr(),
		"log_level", cfg.LogLevel,
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	m := metrics.NewMetrics(nil)

	// Sui fullnode client
	// Note: For premium RPC endpoints, include API key in the URL
	suiClient := sui.NewClient(
		sui.NewRPCCaller(cfg.SuiRPCURL, cfg.RPCTimeout),
		endpointLabel(cfg.SuiRPCURL),
		sui.ClientOptions{
			MaxRetries: cfg.RPCMaxRetries,
			RateLimit:  cfg.RPCRateLimit,
		},
		m,
		logger,
	)
	logger.Info("initialized sui RPC client", "url", cfg.SuiRPCURL)

	gemini, err := summarizer.NewGeminiClient(ctx, cfg.GeminiAPIKey, cfg.GeminiModel, cfg.GeminiAPIURL, cfg.SummarizerTimeout, logger)
	if err != nil {
		logger.Error("failed to initialize summarizer", "error", err)
		os.Exit(1)
	}
	if cfg.GeminiAPIKey == "" {
		logger.Warn("GEMINI_API_KEY not set, every analysis will use the templated summary")
	}

	results := cache.New[*analyzer.Result](cache.Options{
		DefaultTTL: cfg.CacheTTL,
		MaxEntries: cfg.CacheMaxEntries,
		OnEvict: func(_ string, reason cache.EvictReason) {
			m.RecordCacheEviction(string(reason))
		},
	})

	opts := analyzer.Options{
		AnalysisTimeout:   cfg.AnalysisTimeout,
		SummarizerTimeout: cfg.SummarizerTimeout,
	}

	// Optional analysis journal
	var journal server.AnalysisJournal
	if cfg.DatabaseURL != "" {
		dbPool, err := pgxpool.New(ctx, cfg.DatabaseURL)
		if err != nil {
			logger.Error("failed to connect to database", "error", err)
			os.Exit(1)
		}
		defer dbPool.Close()

		store := db.NewStore(dbPool, m)
		if err := store.Ping(ctx); err != nil {
			logger.Error("failed to ping database", "error", err)
			os.Exit(1)
		}

		if err := store.EnsureSchema(ctx); err != nil {
			logger.Error("failed to apply database schema", "error", err)
			os.Exit(1)
		}
		opts.Journal = store
		journal = store
		logger.Info("connected to database, analysis journal enabled")
	} else {
		logger.Info("DATABASE_URL not set, analysis journal disabled")
	}

	// Optional analysis events
	var streamer *server.SSEPublisher
	if cfg.NATSURL != "" {
		publisher, err := natspkg.NewPublisher(cfg.NATSURL, m, logger)
		if err != nil {
			logger.Error("failed to initialize NATS publisher", "error", err)
			os.Exit(1)
		}
		defer publisher.Close()
		opts.Publisher = publisher

		streamer, err = server.NewSSEPublisher(cfg.NATSURL, logger)
		if err != nil {
			logger.Error("failed to initialize SSE publisher", "error", err)
			os.Exit(1)
		}
	} else {
		logger.Info("NATS_URL not set, analysis events disabled")
	}

	svc := analyzer.New(suiClient, gemini, results, opts, m, logger)

	// Drops expired entries that are never read again.
	if cfg.CacheSweepInterval > 0 {
		go results.Run(ctx, cfg.CacheSweepInterval)
	}
	go reportCacheSize(ctx, svc, m, time.Minute)

	httpServer := server.New(cfg, svc, journal, streamer, m, logger)

	logger.Info("server initialized, all dependencies ready",
		"sui_rpc", cfg.SuiRPCURL,
		"cache_ttl", cfg.CacheTTL,
		"cache_max_entries", cfg.CacheMaxEntries,
		"journal", journal != nil,
		"nats", cfg.NATSURL != "",
	)

	serverErrors := make(chan error, 1)
	go func() {
		serverErrors <- httpServer.Start()
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		logger.Error("server error", "error", err)
		os.Exit(1)
	case sig := <-shutdown:
		logger.Info("shutdown signal received", "signal", sig.String())

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer shutdownCancel()

		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("failed to shutdown server gracefully", "error", err)
			os.Exit(1)
		}

		logger.Info("server shutdown complete")
	}
}

// reportCacheSize keeps the cache size gauge current between requests.
func reportCacheSize(ctx context.Context, svc *analyzer.Analyzer, m *metrics.Metrics, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.SetCacheEntries(svc.CacheStats().Count)
		}
	}
}

// endpointLabel reduces an RPC URL to its host so that API keys embedded in
// the URL never reach metric labels.
func endpointLabel(rpcURL string) string {
	u, err := url.Parse(rpcURL)
	if err != nil || u.Host == "" {
		return "unknown"
	}
	return u.Hostname()
}

// setupLogger creates a structured logger with the given log level.
func setupLogger(levelStr string) *slog.Logger {
	var level slog.Level
	switch levelStr {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{
		Level: level,
	}

	return slog.New(slog.NewJSONHandler(os.Stderr, opts))
}
