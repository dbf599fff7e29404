// Package port defines the interfaces (ports) for external dependencies.
// Following hexagonal architecture, these ports decouple the engine and
// service layers from concrete storage implementations.
package port

import (
	"context"
	"time"

	"github.com/boddenberg/zeno-insights-bfa-go/internal/domain"
)

// FinanceReader reads the records the snapshot aggregator reduces.
// Every method returns only rows owned by userID.
type FinanceReader interface {
	ListAccounts(ctx context.Context, userID string) ([]domain.Account, error)
	ListTransactionsSince(ctx context.Context, userID string, since time.Time) ([]domain.Transaction, error)
	// ListOpenDebts excludes debts marked paid off.
	ListOpenDebts(ctx context.Context, userID string) ([]domain.Debt, error)
	ListActiveBills(ctx context.Context, userID string) ([]domain.Bill, error)
	// ListActiveGoals orders by status asc, priority asc, created_at desc.
	ListActiveGoals(ctx context.Context, userID string) ([]domain.Goal, error)
}

// InsightStore persists generated insights and their actions.
type InsightStore interface {
	// LastInsightAt returns the creation time of the newest insight, or
	// nil when the user has none.
	LastInsightAt(ctx context.Context, userID string) (*time.Time, error)
	// CreateInsight stores the insight and its actions and returns them
	// with ids and timestamps assigned.
	CreateInsight(ctx context.Context, insight *domain.Insight) (*domain.Insight, error)
	// ListInsights returns newest first, each with actions by priority.
	ListInsights(ctx context.Context, userID string, limit int) ([]domain.Insight, error)
	GetInsight(ctx context.Context, userID, insightID string) (*domain.Insight, error)

	// ListActions orders by priority asc then created_at desc. An empty
	// status matches every status.
	ListActions(ctx context.Context, userID, status string, limit int) ([]domain.Action, error)
	CountActionsByStatus(ctx context.Context, userID string) (map[string]int, error)
	GetAction(ctx context.Context, userID, actionID string) (*domain.Action, error)
	UpdateAction(ctx context.Context, action *domain.Action) (*domain.Action, error)
}

// UserLister enumerates users for scheduled jobs.
type UserLister interface {
	ListActiveUserIDs(ctx context.Context) ([]string, error)
}

// Store is the full persistence surface a backend provides.
type Store interface {
	FinanceReader
	InsightStore
	UserLister
	Ping(ctx context.Context) error
}

// Cache provides generic caching with TTL.
type Cache[T any] interface {
	Get(key string) (T, bool)
	Set(key string, value T)
	Delete(key string)
}
