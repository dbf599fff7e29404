package service

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/boddenberg/zeno-insights-bfa-go/internal/domain"
	"github.com/boddenberg/zeno-insights-bfa-go/internal/engine"
	"github.com/boddenberg/zeno-insights-bfa-go/internal/infra/observability"
	"github.com/boddenberg/zeno-insights-bfa-go/internal/port"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

var tracer = otel.Tracer("service/insights")

// List limits.
const (
	DefaultListLimit = 10
	MaxListLimit     = 50
)

// InsightService computes snapshots, generates insights and manages the
// stored insights and actions of a user.
type InsightService struct {
	reader   port.FinanceReader
	store    port.InsightStore
	lastRun  port.Cache[time.Time]
	metrics  *observability.Metrics
	logger   *zap.Logger
	cooldown time.Duration
	now      func() time.Time

	// users with a generation in flight
	inflight sync.Map
}

// NewInsightService creates the insight service with all dependencies injected.
// lastRun caches the newest generation time per user for the cooldown check.
func NewInsightService(
	reader port.FinanceReader,
	store port.InsightStore,
	lastRun port.Cache[time.Time],
	metrics *observability.Metrics,
	logger *zap.Logger,
	cooldown time.Duration,
) *InsightService {
	return &InsightService{
		reader:   reader,
		store:    store,
		lastRun:  lastRun,
		metrics:  metrics,
		logger:   logger,
		cooldown: cooldown,
		now:      time.Now,
	}
}

// WithClock replaces the time source. Used by tests.
func (s *InsightService) WithClock(now func() time.Time) *InsightService {
	s.now = now
	return s
}

// ComputeSnapshot reads the user's records concurrently and reduces them
// to a snapshot. Any failed read fails the whole call.
func (s *InsightService) ComputeSnapshot(ctx context.Context, userID string) (*domain.FinancialSnapshot, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	ctx, span := tracer.Start(ctx, "InsightService.ComputeSnapshot")
	defer span.End()
	span.SetAttributes(attribute.String("user.id", userID))

	start := time.Now()
	defer func() {
		s.metrics.RecordDuration("compute_snapshot", time.Since(start))
	}()

	now := s.now()
	var rec domain.FinancialRecords

	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		accounts, err := s.reader.ListAccounts(gCtx, userID)
		if err != nil {
			return s.readFailed("accounts", userID, err)
		}
		rec.Accounts = accounts
		return nil
	})

	g.Go(func() error {
		txs, err := s.reader.ListTransactionsSince(gCtx, userID, now.Add(-engine.CashFlowWindow))
		if err != nil {
			return s.readFailed("transactions", userID, err)
		}
		rec.Transactions = txs
		return nil
	})

	g.Go(func() error {
		debts, err := s.reader.ListOpenDebts(gCtx, userID)
		if err != nil {
			return s.readFailed("debts", userID, err)
		}
		rec.Debts = debts
		return nil
	})

	g.Go(func() error {
		bills, err := s.reader.ListActiveBills(gCtx, userID)
		if err != nil {
			return s.readFailed("bills", userID, err)
		}
		rec.Bills = bills
		return nil
	})

	g.Go(func() error {
		goals, err := s.reader.ListActiveGoals(gCtx, userID)
		if err != nil {
			return s.readFailed("goals", userID, err)
		}
		rec.Goals = goals
		return nil
	})

	if err := g.Wait(); err != nil {
		span.RecordError(err)
		return nil, err
	}

	snap := engine.BuildSnapshot(rec, now)
	return &snap, nil
}

func (s *InsightService) readFailed(what, userID string, err error) error {
	s.logger.Error("failed to read "+what,
		zap.String("user_id", userID),
		zap.Error(err),
	)
	s.metrics.IncrStoreError("list_" + what)
	return fmt.Errorf("%s fetch: %w", what, err)
}

// GenerateAndSave generates a new insight for the user and stores it with
// one PENDING action per suggestion. It fails with domain.ErrRateLimited
// when the previous insight is younger than the cooldown.
func (s *InsightService) GenerateAndSave(ctx context.Context, userID string) (*domain.Insight, error) {
	ctx, span := tracer.Start(ctx, "InsightService.GenerateAndSave")
	defer span.End()
	span.SetAttributes(attribute.String("user.id", userID))

	start := time.Now()
	defer func() {
		s.metrics.RecordDuration("generate_and_save", time.Since(start))
	}()

	if _, busy := s.inflight.LoadOrStore(userID, struct{}{}); busy {
		s.metrics.IncrInsight(observability.OutcomeRateLimited)
		return nil, &domain.ErrRateLimited{RetryAfter: s.cooldown}
	}
	defer s.inflight.Delete(userID)

	if err := s.checkCooldown(ctx, userID); err != nil {
		return nil, err
	}

	snap, err := s.ComputeSnapshot(ctx, userID)
	if err != nil {
		s.metrics.IncrInsight(observability.OutcomeError)
		return nil, fmt.Errorf("compute snapshot: %w", err)
	}

	out := engine.GenerateInsight(*snap)

	raw, err := json.Marshal(snap)
	if err != nil {
		s.metrics.IncrInsight(observability.OutcomeError)
		return nil, fmt.Errorf("encode snapshot: %w", err)
	}

	insight := &domain.Insight{
		UserID:       userID,
		Summary:      out.Summary,
		WatchOuts:    out.WatchOuts,
		WeekPlan:     out.WeekPlan,
		DataSnapshot: raw,
		Confidence:   out.Confidence,
		Actions:      make([]domain.Action, 0, len(out.Actions)),
	}
	for _, a := range out.Actions {
		insight.Actions = append(insight.Actions, domain.Action{
			UserID:          userID,
			Title:           a.Title,
			Description:     a.Description,
			WhyItMatters:    a.WhyItMatters,
			EstimatedImpact: a.EstimatedImpact,
			Difficulty:      a.Difficulty,
			TimeToComplete:  a.TimeToComplete,
			Status:          domain.ActionPending,
			Priority:        a.Priority,
		})
	}

	saved, err := s.store.CreateInsight(ctx, insight)
	if err != nil {
		s.logger.Error("failed to save insight",
			zap.String("user_id", userID),
			zap.Error(err),
		)
		s.metrics.IncrStoreError("create_insight")
		s.metrics.IncrInsight(observability.OutcomeError)
		return nil, fmt.Errorf("save insight: %w", err)
	}

	createdAt := saved.CreatedAt
	if createdAt.IsZero() {
		createdAt = s.now()
	}
	s.lastRun.Set(userID, createdAt)

	s.metrics.IncrInsight(observability.OutcomeGenerated)
	s.metrics.RecordActions(saved.Actions)

	s.logger.Info("insight generated",
		zap.String("user_id", userID),
		zap.String("insight_id", saved.ID),
		zap.Int("actions", len(saved.Actions)),
		zap.Float64("confidence", saved.Confidence),
	)

	return saved, nil
}

func (s *InsightService) checkCooldown(ctx context.Context, userID string) error {
	last, ok := s.lastRun.Get(userID)
	if ok {
		s.metrics.IncrCacheHit(observability.CacheLastInsight)
	} else {
		s.metrics.IncrCacheMiss(observability.CacheLastInsight)

		at, err := s.store.LastInsightAt(ctx, userID)
		if err != nil {
			s.metrics.IncrStoreError("last_insight_at")
			s.metrics.IncrInsight(observability.OutcomeError)
			return fmt.Errorf("last insight lookup: %w", err)
		}
		if at == nil {
			return nil
		}
		last = *at
		s.lastRun.Set(userID, last)
	}

	if elapsed := s.now().Sub(last); elapsed < s.cooldown {
		s.metrics.IncrInsight(observability.OutcomeRateLimited)
		s.logger.Debug("insight generation rate limited",
			zap.String("user_id", userID),
			zap.Duration("elapsed", elapsed),
		)
		return &domain.ErrRateLimited{RetryAfter: s.cooldown - elapsed}
	}
	return nil
}

// ListInsights returns the user's newest insights.
func (s *InsightService) ListInsights(ctx context.Context, userID string, limit int) ([]domain.Insight, error) {
	ctx, span := tracer.Start(ctx, "InsightService.ListInsights")
	defer span.End()

	insights, err := s.store.ListInsights(ctx, userID, clampLimit(limit))
	if err != nil {
		s.metrics.IncrStoreError("list_insights")
		return nil, fmt.Errorf("list insights: %w", err)
	}
	if insights == nil {
		insights = []domain.Insight{}
	}
	return insights, nil
}

// GetInsight returns one insight owned by the user.
func (s *InsightService) GetInsight(ctx context.Context, userID, insightID string) (*domain.Insight, error) {
	ctx, span := tracer.Start(ctx, "InsightService.GetInsight")
	defer span.End()
	span.SetAttributes(attribute.String("insight.id", insightID))

	if insightID == "" {
		return nil, &domain.ErrValidation{Field: "insightId", Message: "required"}
	}
	return s.store.GetInsight(ctx, userID, insightID)
}

// ListActions returns the user's actions, optionally filtered by status,
// with per-status counts over all of them.
func (s *InsightService) ListActions(ctx context.Context, userID, status string, limit int) (*domain.ActionList, error) {
	ctx, span := tracer.Start(ctx, "InsightService.ListActions")
	defer span.End()

	if status != "" && !domain.ValidActionStatus(status) {
		return nil, &domain.ErrValidation{Field: "status", Message: "unknown action status: " + status}
	}

	var (
		actions []domain.Action
		counts  map[string]int
	)

	g, gCtx := errgroup.WithContext(ctx)
	g.Go(func() error {
		a, err := s.store.ListActions(gCtx, userID, status, clampLimit(limit))
		if err != nil {
			s.metrics.IncrStoreError("list_actions")
			return fmt.Errorf("list actions: %w", err)
		}
		actions = a
		return nil
	})
	g.Go(func() error {
		c, err := s.store.CountActionsByStatus(gCtx, userID)
		if err != nil {
			s.metrics.IncrStoreError("count_actions")
			return fmt.Errorf("count actions: %w", err)
		}
		counts = c
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	if actions == nil {
		actions = []domain.Action{}
	}
	full := map[string]int{
		domain.ActionPending:    0,
		domain.ActionInProgress: 0,
		domain.ActionCompleted:  0,
		domain.ActionDismissed:  0,
		domain.ActionExpired:    0,
	}
	for k, v := range counts {
		full[k] = v
	}

	return &domain.ActionList{Actions: actions, Counts: full}, nil
}

// UpdateActionStatus moves an action to a new status. Entering COMPLETED
// stamps CompletedAt and entering DISMISSED stamps DismissedAt.
func (s *InsightService) UpdateActionStatus(ctx context.Context, userID, actionID, status string) (*domain.Action, error) {
	ctx, span := tracer.Start(ctx, "InsightService.UpdateActionStatus")
	defer span.End()
	span.SetAttributes(
		attribute.String("action.id", actionID),
		attribute.String("action.status", status),
	)

	if !domain.ValidActionStatus(status) {
		return nil, &domain.ErrValidation{Field: "status", Message: "must be one of PENDING, IN_PROGRESS, COMPLETED, DISMISSED, EXPIRED"}
	}

	action, err := s.store.GetAction(ctx, userID, actionID)
	if err != nil {
		return nil, err
	}

	now := s.now()
	if status == domain.ActionCompleted && action.Status != domain.ActionCompleted {
		action.CompletedAt = &now
	}
	if status == domain.ActionDismissed && action.Status != domain.ActionDismissed {
		action.DismissedAt = &now
	}
	action.Status = status

	updated, err := s.store.UpdateAction(ctx, action)
	if err != nil {
		s.metrics.IncrStoreError("update_action")
		return nil, fmt.Errorf("update action: %w", err)
	}

	s.logger.Info("action status updated",
		zap.String("user_id", userID),
		zap.String("action_id", actionID),
		zap.String("status", status),
	)
	return updated, nil
}

func clampLimit(limit int) int {
	switch {
	case limit <= 0:
		return DefaultListLimit
	case limit > MaxListLimit:
		return MaxListLimit
	}
	return limit
}
