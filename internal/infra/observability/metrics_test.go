package observability_test

import (
	"testing"
	"time"

	"github.com/boddenberg/zeno-insights-bfa-go/internal/domain"
	"github.com/boddenberg/zeno-insights-bfa-go/internal/infra/observability"
)

func TestMetrics_InsightSnapshot(t *testing.T) {
	m := observability.NewMetrics()

	m.IncrInsight(observability.OutcomeGenerated)
	m.IncrInsight(observability.OutcomeGenerated)
	m.IncrInsight(observability.OutcomeRateLimited)
	m.IncrInsight(observability.OutcomeError)
	m.RecordActions([]domain.Action{{Priority: 1}, {Priority: 3}, {Priority: 3}})
	m.IncrCacheHit(observability.CacheLastInsight)
	m.IncrCacheMiss(observability.CacheLastInsight)
	m.IncrCacheMiss(observability.CacheLastInsight)
	m.RecordDuration("generate_and_save", 20*time.Millisecond)

	snap := m.InsightSnapshot()

	if snap.InsightsGenerated != 2 {
		t.Errorf("expected 2 generated, got %v", snap.InsightsGenerated)
	}
	if snap.RateLimited != 1 || snap.GenerationErrors != 1 {
		t.Errorf("unexpected rate limited/errors: %v/%v", snap.RateLimited, snap.GenerationErrors)
	}
	if snap.ActionsByPriority["1"] != 1 || snap.ActionsByPriority["3"] != 2 {
		t.Errorf("unexpected actions by priority: %v", snap.ActionsByPriority)
	}
	if _, ok := snap.ActionsByPriority["2"]; ok {
		t.Error("expected priorities with no actions to be omitted")
	}
	if snap.CacheHitRate != 0.333 {
		t.Errorf("expected hit rate 0.333, got %v", snap.CacheHitRate)
	}
	if snap.Period != "all_time" {
		t.Errorf("unexpected period %s", snap.Period)
	}
}

func TestMetrics_IndependentRegistries(t *testing.T) {
	a := observability.NewMetrics()
	b := observability.NewMetrics()

	a.IncrInsight(observability.OutcomeGenerated)

	if got := b.InsightSnapshot().InsightsGenerated; got != 0 {
		t.Errorf("expected registries to be independent, got %v", got)
	}
}

func TestMetrics_RegistryGathers(t *testing.T) {
	m := observability.NewMetrics()
	m.IncrStoreError("list_accounts")

	families, err := m.Registry.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}

	found := false
	for _, f := range families {
		if f.GetName() == "zeno_store_errors_total" {
			found = true
		}
	}
	if !found {
		t.Error("expected zeno_store_errors_total to be registered")
	}
}
