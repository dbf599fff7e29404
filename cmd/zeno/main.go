package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/boddenberg/zeno-insights-bfa-go/internal/config"
	"github.com/boddenberg/zeno-insights-bfa-go/internal/handler"
	"github.com/boddenberg/zeno-insights-bfa-go/internal/infra/cache"
	"github.com/boddenberg/zeno-insights-bfa-go/internal/infra/observability"
	"github.com/boddenberg/zeno-insights-bfa-go/internal/infra/postgres"
	"github.com/boddenberg/zeno-insights-bfa-go/internal/infra/resilience"
	"github.com/boddenberg/zeno-insights-bfa-go/internal/infra/supabase"
	"github.com/boddenberg/zeno-insights-bfa-go/internal/port"
	"github.com/boddenberg/zeno-insights-bfa-go/internal/scheduler"
	"github.com/boddenberg/zeno-insights-bfa-go/internal/service"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"
)

func main() {
	// --- Load .env file (for local development) ---
	if err := config.LoadDotEnv(".env"); err != nil {
		fmt.Fprintf(os.Stderr, "warning: %v\n", err)
	}

	// --- Config ---
	cfg := config.Load()

	// --- Logger ---
	logger := observability.NewLogger(cfg.LogLevel)
	defer logger.Sync()

	logger.Info("configuration loaded",
		zap.Int("port", cfg.Port),
		zap.String("log_level", cfg.LogLevel),
		zap.String("data_backend", cfg.DataBackend),
		zap.Duration("http_timeout", cfg.HTTPTimeout),
		zap.Duration("cache_ttl", cfg.CacheTTL),
		zap.Int("max_retries", cfg.MaxRetries),
		zap.Duration("initial_backoff", cfg.InitialBackoff),
		zap.Duration("insight_cooldown", cfg.InsightCooldown),
		zap.String("insight_refresh_cron", cfg.InsightRefreshCron),
	)

	// --- Tracing ---
	shutdown, err := observability.InitTracer(cfg.OTLPEndpoint, "zeno-insights-bfa")
	if err != nil {
		logger.Fatal("failed to init tracer", zap.Error(err))
	}
	defer shutdown(context.Background())

	// --- Metrics ---
	metrics := observability.NewMetrics()

	// --- Cache ---
	lastRun := cache.New[time.Time](cfg.CacheTTL)
	defer lastRun.Close()

	// --- Resilience ---
	resilienceCfg := resilience.Config{
		MaxRetries:     cfg.MaxRetries,
		InitialBackoff: cfg.InitialBackoff,
		MaxConcurrency: cfg.MaxConcurrency,
	}
	cb := resilience.NewCircuitBreaker(cfg.DataBackend)

	// --- Store ---
	store, closeStore := openStore(cfg, cb, resilienceCfg, logger)
	defer closeStore()

	// --- Services ---
	insightSvc := service.NewInsightService(store, store, lastRun, metrics, logger, cfg.InsightCooldown)

	// --- Scheduled refresh ---
	var refresher *scheduler.Refresher
	if cfg.InsightRefreshCron != "" {
		refresher = scheduler.NewRefresher(store, insightSvc, cfg.MaxConcurrency, metrics, logger)
		if err := refresher.Start(cfg.InsightRefreshCron); err != nil {
			logger.Fatal("failed to schedule insight refresh", zap.Error(err))
		}
	} else {
		logger.Info("scheduled insight refresh disabled")
	}

	// --- Router ---
	router := handler.NewRouter(insightSvc, store, handler.NewTokenValidator(cfg.JWTSecret), metrics, logger, handler.Options{
		AllowedOrigins: cfg.CORSAllowedOrigins,
		Backend:        cfg.DataBackend,
	})

	// --- Server ---
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// --- Graceful shutdown ---
	go func() {
		logger.Info("server starting", zap.Int("port", cfg.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server failed", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("server shutting down...")
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if refresher != nil {
		if err := refresher.Stop(ctx); err != nil {
			logger.Warn("insight refresh did not stop in time", zap.Error(err))
		}
	}
	if err := srv.Shutdown(ctx); err != nil {
		logger.Fatal("server forced shutdown", zap.Error(err))
	}

	logger.Info("server stopped")
}

// openStore builds the configured data backend. The returned func releases
// its resources.
func openStore(cfg *config.Config, cb *gobreaker.CircuitBreaker, rcfg resilience.Config, logger *zap.Logger) (port.Store, func()) {
	switch cfg.DataBackend {
	case config.BackendPostgres:
		if cfg.DatabaseURL == "" {
			logger.Fatal("DATABASE_URL is required for the postgres backend")
		}
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		db, err := postgres.Open(ctx, cfg.DatabaseURL)
		if err != nil {
			logger.Fatal("failed to connect to postgres", zap.Error(err))
		}
		store := postgres.NewStore(db, cb, rcfg, logger)
		if err := store.Migrate(ctx); err != nil {
			logger.Fatal("failed to apply schema", zap.Error(err))
		}
		logger.Info("using Postgres as data backend")
		return store, func() { db.Close() }

	case config.BackendSupabase:
		if cfg.SupabaseURL == "" {
			logger.Fatal("SUPABASE_URL is required for the supabase backend")
		}
		logger.Info("using Supabase as data backend", zap.String("supabase_url", cfg.SupabaseURL))
		httpClient := &http.Client{Timeout: cfg.HTTPTimeout}
		store := supabase.NewClient(httpClient, cfg.SupabaseURL, cfg.SupabaseAnonKey, cfg.SupabaseServiceKey, cb, rcfg, logger)
		return store, func() {}

	default:
		logger.Fatal("unknown DATA_BACKEND", zap.String("data_backend", cfg.DataBackend))
		return nil, nil
	}
}
