package observability

import (
	"math"
	"strconv"
	"time"

	"github.com/boddenberg/zeno-insights-bfa-go/internal/domain"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	dto "github.com/prometheus/client_model/go"
)

// Cache names used as metric labels.
const (
	CacheLastInsight = "last_insight"
)

// Metrics holds all Prometheus metrics for the BFA.
type Metrics struct {
	// Registry is the Prometheus registry that owns these metrics.
	// Exposed so the /metrics endpoint can use it.
	Registry *prometheus.Registry

	operationDuration *prometheus.HistogramVec
	storeErrors       *prometheus.CounterVec
	cacheHits         *prometheus.CounterVec
	cacheMisses       *prometheus.CounterVec
	insights          *prometheus.CounterVec
	actionsGenerated  *prometheus.CounterVec
	refreshRuns       *prometheus.CounterVec
}

// NewMetrics creates a dedicated Prometheus registry and registers all
// application metrics in it. A private registry lets tests call
// NewMetrics repeatedly.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		Registry: reg,

		operationDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "zeno_operation_duration_seconds",
				Help:    "Duration of service operations.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
		storeErrors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "zeno_store_errors_total",
				Help: "Total errors returned by the data backend.",
			},
			[]string{"operation"},
		),
		cacheHits: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "zeno_cache_hits_total",
				Help: "Total cache hits.",
			},
			[]string{"cache"},
		),
		cacheMisses: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "zeno_cache_misses_total",
				Help: "Total cache misses.",
			},
			[]string{"cache"},
		),
		insights: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "zeno_insights_total",
				Help: "Insight generation attempts by outcome.",
			},
			[]string{"outcome"},
		),
		actionsGenerated: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "zeno_actions_generated_total",
				Help: "Actions persisted with new insights, by priority.",
			},
			[]string{"priority"},
		),
		refreshRuns: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "zeno_refresh_users_total",
				Help: "Users processed by the scheduled insight refresh, by outcome.",
			},
			[]string{"outcome"},
		),
	}
}

// Insight generation outcomes.
const (
	OutcomeGenerated   = "generated"
	OutcomeError       = "error"
	OutcomeRateLimited = "rate_limited"
)

// RecordDuration records the duration of an operation.
func (m *Metrics) RecordDuration(operation string, d time.Duration) {
	m.operationDuration.WithLabelValues(operation).Observe(d.Seconds())
}

// IncrStoreError increments the store error counter.
func (m *Metrics) IncrStoreError(operation string) {
	m.storeErrors.WithLabelValues(operation).Inc()
}

// IncrCacheHit increments the cache hit counter.
func (m *Metrics) IncrCacheHit(cache string) {
	m.cacheHits.WithLabelValues(cache).Inc()
}

// IncrCacheMiss increments the cache miss counter.
func (m *Metrics) IncrCacheMiss(cache string) {
	m.cacheMisses.WithLabelValues(cache).Inc()
}

// IncrInsight counts one generation attempt with the given outcome.
func (m *Metrics) IncrInsight(outcome string) {
	m.insights.WithLabelValues(outcome).Inc()
}

// RecordActions counts persisted actions by priority.
func (m *Metrics) RecordActions(actions []domain.Action) {
	for _, a := range actions {
		m.actionsGenerated.WithLabelValues(strconv.Itoa(a.Priority)).Inc()
	}
}

// IncrRefresh counts one user processed by the scheduled refresh.
func (m *Metrics) IncrRefresh(outcome string) {
	m.refreshRuns.WithLabelValues(outcome).Inc()
}

// InsightSnapshot returns the counters behind GET /v1/metrics/insights.
func (m *Metrics) InsightSnapshot() *domain.InsightMetrics {
	hits := getCounterValue(m.cacheHits, CacheLastInsight)
	misses := getCounterValue(m.cacheMisses, CacheLastInsight)

	hitRate := float64(0)
	if hits+misses > 0 {
		hitRate = hits / (hits + misses)
	}

	byPriority := make(map[string]float64)
	for p := 1; p <= 5; p++ {
		label := strconv.Itoa(p)
		if v := getCounterValue(m.actionsGenerated, label); v > 0 {
			byPriority[label] = v
		}
	}

	return &domain.InsightMetrics{
		InsightsGenerated: getCounterValue(m.insights, OutcomeGenerated),
		GenerationErrors:  getCounterValue(m.insights, OutcomeError),
		RateLimited:       getCounterValue(m.insights, OutcomeRateLimited),
		ActionsByPriority: byPriority,
		CacheHitRate:      math.Round(hitRate*1000) / 1000,
		Period:            "all_time",
	}
}

// getCounterValue extracts the current float64 value from a CounterVec for a given label.
func getCounterValue(cv *prometheus.CounterVec, label string) float64 {
	counter := cv.WithLabelValues(label)
	m := &dto.Metric{}
	if err := counter.(prometheus.Metric).Write(m); err != nil {
		return 0
	}
	if m.Counter != nil && m.Counter.Value != nil {
		return *m.Counter.Value
	}
	return 0
}
