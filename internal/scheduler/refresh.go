// Package scheduler runs the periodic insight refresh for every active user.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/boddenberg/zeno-insights-bfa-go/internal/domain"
	"github.com/boddenberg/zeno-insights-bfa-go/internal/infra/observability"
	"github.com/boddenberg/zeno-insights-bfa-go/internal/infra/resilience"
	"github.com/boddenberg/zeno-insights-bfa-go/internal/port"

	"github.com/robfig/cron/v3"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

var tracer = otel.Tracer("scheduler")

// Generator produces and stores a fresh insight for one user.
type Generator interface {
	GenerateAndSave(ctx context.Context, userID string) (*domain.Insight, error)
}

// Result summarises one refresh run.
type Result struct {
	Users       int
	Generated   int
	RateLimited int
	Failed      int
}

// Refresher generates insights for all active users on a cron schedule.
type Refresher struct {
	users    port.UserLister
	gen      Generator
	bulkhead *resilience.Bulkhead
	metrics  *observability.Metrics
	logger   *zap.Logger

	mu     sync.Mutex
	cron   *cron.Cron
	cancel context.CancelFunc
}

// NewRefresher creates a refresher that runs at most maxConcurrency
// generations at a time.
func NewRefresher(users port.UserLister, gen Generator, maxConcurrency int, metrics *observability.Metrics, logger *zap.Logger) *Refresher {
	return &Refresher{
		users:    users,
		gen:      gen,
		bulkhead: resilience.NewBulkhead(maxConcurrency),
		metrics:  metrics,
		logger:   logger,
	}
}

// Start schedules RunOnce with a standard five-field cron expression
// (descriptors like @daily are accepted too). A run still in progress
// when the next tick fires makes that tick a no-op.
func (r *Refresher) Start(expr string) error {
	schedule, err := cron.ParseStandard(expr)
	if err != nil {
		return &domain.ErrValidation{Field: "INSIGHT_REFRESH_CRON", Message: err.Error()}
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.cron != nil {
		return fmt.Errorf("refresher already started")
	}

	ctx, cancel := context.WithCancel(context.Background())
	logger := cronLogger{r.logger}
	c := cron.New(cron.WithChain(cron.Recover(logger), cron.SkipIfStillRunning(logger)), cron.WithLogger(logger))
	c.Schedule(schedule, cron.FuncJob(func() {
		if _, err := r.RunOnce(ctx); err != nil && !errors.Is(err, context.Canceled) {
			r.logger.Error("insight refresh failed", zap.Error(err))
		}
	}))
	c.Start()

	r.cron, r.cancel = c, cancel
	r.logger.Info("insight refresh scheduled", zap.String("cron", expr),
		zap.Time("next_run", schedule.Next(time.Now())))
	return nil
}

// Stop cancels an in-flight run and waits for it to return, or for ctx.
func (r *Refresher) Stop(ctx context.Context) error {
	r.mu.Lock()
	c, cancel := r.cron, r.cancel
	r.cron, r.cancel = nil, nil
	r.mu.Unlock()

	if c == nil {
		return nil
	}
	cancel()
	select {
	case <-c.Stop().Done():
		r.logger.Info("insight refresh stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// RunOnce generates an insight for every active user. Users still inside
// their cooldown are skipped; other per-user failures are logged and
// counted without stopping the batch.
func (r *Refresher) RunOnce(ctx context.Context) (Result, error) {
	ctx, span := tracer.Start(ctx, "Refresher.RunOnce")
	defer span.End()

	start := time.Now()
	userIDs, err := r.users.ListActiveUserIDs(ctx)
	if err != nil {
		return Result{}, fmt.Errorf("list active users: %w", err)
	}
	span.SetAttributes(attribute.Int("refresh.users", len(userIDs)))

	var generated, rateLimited, failed atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	for _, userID := range userIDs {
		if err := r.bulkhead.Acquire(gctx); err != nil {
			break
		}
		userID := userID
		g.Go(func() error {
			defer r.bulkhead.Release()

			_, err := r.gen.GenerateAndSave(gctx, userID)
			var limited *domain.ErrRateLimited
			switch {
			case err == nil:
				generated.Add(1)
				r.metrics.IncrRefresh(observability.OutcomeGenerated)
			case errors.As(err, &limited):
				rateLimited.Add(1)
				r.metrics.IncrRefresh(observability.OutcomeRateLimited)
				r.logger.Debug("refresh skipped, cooldown active",
					zap.String("user_id", userID), zap.Duration("retry_after", limited.RetryAfter))
			default:
				failed.Add(1)
				r.metrics.IncrRefresh(observability.OutcomeError)
				r.logger.Warn("refresh failed for user", zap.String("user_id", userID), zap.Error(err))
			}
			return nil
		})
	}
	g.Wait()

	res := Result{
		Users:       len(userIDs),
		Generated:   int(generated.Load()),
		RateLimited: int(rateLimited.Load()),
		Failed:      int(failed.Load()),
	}
	r.metrics.RecordDuration("scheduler.refresh", time.Since(start))
	r.logger.Info("insight refresh finished",
		zap.Int("users", res.Users),
		zap.Int("generated", res.Generated),
		zap.Int("rate_limited", res.RateLimited),
		zap.Int("failed", res.Failed),
		zap.Duration("duration", time.Since(start)),
	)
	return res, ctx.Err()
}

// cronLogger adapts zap to cron.Logger.
type cronLogger struct{ l *zap.Logger }

func (c cronLogger) Info(msg string, keysAndValues ...any) {
	c.l.Sugar().Debugw("cron: "+msg, keysAndValues...)
}

func (c cronLogger) Error(err error, msg string, keysAndValues ...any) {
	c.l.Sugar().Errorw("cron: "+msg, append(keysAndValues, "error", err)...)
}
