package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/boddenberg/zeno-insights-bfa-go/internal/domain"
	"github.com/boddenberg/zeno-insights-bfa-go/internal/infra/observability"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"
)

var tracer = otel.Tracer("handler")

// InsightAPI is the service surface the HTTP layer needs.
type InsightAPI interface {
	ComputeSnapshot(ctx context.Context, userID string) (*domain.FinancialSnapshot, error)
	GenerateAndSave(ctx context.Context, userID string) (*domain.Insight, error)
	ListInsights(ctx context.Context, userID string, limit int) ([]domain.Insight, error)
	GetInsight(ctx context.Context, userID, insightID string) (*domain.Insight, error)
	ListActions(ctx context.Context, userID, status string, limit int) (*domain.ActionList, error)
	UpdateActionStatus(ctx context.Context, userID, actionID, status string) (*domain.Action, error)
}

// Pinger probes a backing store for /healthz.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Options configures NewRouter.
type Options struct {
	AllowedOrigins []string
	// Backend names the data backend in health reports.
	Backend string
}

// NewRouter creates the HTTP router with all routes and middleware.
// store may be nil, in which case /healthz only reports the API itself.
func NewRouter(svc InsightAPI, store Pinger, tokens *TokenValidator, metrics *observability.Metrics, logger *zap.Logger, opts Options) http.Handler {
	r := chi.NewRouter()

	// --- Middleware ---
	r.Use(RequestIDMiddleware)
	r.Use(middleware.RealIP)
	r.Use(observability.ZapLoggerMiddleware(logger))
	r.Use(observability.TracingMiddleware)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Heartbeat("/ping"))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   opts.AllowedOrigins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPatch, http.MethodOptions},
		AllowedHeaders:   []string{"Authorization", "Content-Type", "X-Request-Id"},
		ExposedHeaders:   []string{"Retry-After", "X-Request-Id"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	// --- Operational endpoints ---
	r.Get("/healthz", healthzHandler(store, opts.Backend, logger))
	r.Get("/readyz", readyzHandler())
	r.Handle("/metrics", promhttp.HandlerFor(metrics.Registry, promhttp.HandlerOpts{}))

	// --- API v1 ---
	r.Route("/v1", func(r chi.Router) {
		r.Get("/metrics/insights", insightMetricsHandler(metrics))

		r.Group(func(r chi.Router) {
			r.Use(JWTAuthMiddleware(tokens, logger))

			r.Get("/snapshot", snapshotHandler(svc, logger))

			r.Get("/insights", listInsightsHandler(svc, logger))
			r.Post("/insights", createInsightHandler(svc, logger))
			r.Get("/insights/{insightId}", getInsightHandler(svc, logger))

			r.Get("/actions", listActionsHandler(svc, logger))
			r.Patch("/actions/{actionId}", updateActionHandler(svc, logger))
		})
	})

	return r
}

// ============================================================
// Metrics & Health
// ============================================================

func healthzHandler(store Pinger, backend string, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		now := time.Now().Format(time.RFC3339)

		services := []domain.ServiceHealth{
			{Name: "zeno-bfa", Status: "healthy", LatencyMs: 0, LastChecked: now},
		}

		if store != nil {
			ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
			defer cancel()

			start := time.Now()
			err := store.Ping(ctx)
			status := "healthy"
			if err != nil {
				logger.Warn("health check failed", zap.String("backend", backend), zap.Error(err))
				status = "degraded"
			}
			services = append(services, domain.ServiceHealth{
				Name: backend, Status: status, LatencyMs: time.Since(start).Milliseconds(), LastChecked: now,
			})
		}

		overallStatus := "healthy"
		for _, s := range services {
			if s.Status == "unhealthy" {
				overallStatus = "unhealthy"
				break
			}
			if s.Status == "degraded" {
				overallStatus = "degraded"
			}
		}

		writeJSON(w, http.StatusOK, domain.HealthStatus{
			Status:   overallStatus,
			Services: services,
		})
	}
}

func readyzHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
	}
}

func insightMetricsHandler(metrics *observability.Metrics) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, metrics.InsightSnapshot())
	}
}
