package supabase

import (
	"context"
	"net/url"
	"time"

	"github.com/boddenberg/zeno-insights-bfa-go/internal/domain"

	"go.opentelemetry.io/otel/attribute"
)

// ============================================================
// Financial records (implements port.FinanceReader)
// ============================================================

func (c *Client) ListAccounts(ctx context.Context, userID string) ([]domain.Account, error) {
	ctx, span := tracer.Start(ctx, "Supabase.ListAccounts")
	defer span.End()
	span.SetAttributes(attribute.String("user.id", userID))

	q := url.Values{}
	q.Set("user_id", eq(userID))
	q.Set("order", "created_at.asc")

	rows := []domain.Account{}
	if err := c.getJSON(ctx, "accounts", q, &rows); err != nil {
		return nil, err
	}
	return rows, nil
}

func (c *Client) ListTransactionsSince(ctx context.Context, userID string, since time.Time) ([]domain.Transaction, error) {
	ctx, span := tracer.Start(ctx, "Supabase.ListTransactionsSince")
	defer span.End()
	span.SetAttributes(attribute.String("user.id", userID))

	q := url.Values{}
	q.Set("user_id", eq(userID))
	q.Set("date", "gte."+since.UTC().Format(time.RFC3339))
	q.Set("order", "date.desc")

	rows := []domain.Transaction{}
	if err := c.getJSON(ctx, "transactions", q, &rows); err != nil {
		return nil, err
	}
	return rows, nil
}

func (c *Client) ListOpenDebts(ctx context.Context, userID string) ([]domain.Debt, error) {
	ctx, span := tracer.Start(ctx, "Supabase.ListOpenDebts")
	defer span.End()

	q := url.Values{}
	q.Set("user_id", eq(userID))
	q.Set("is_paid_off", "eq.false")

	rows := []domain.Debt{}
	if err := c.getJSON(ctx, "debts", q, &rows); err != nil {
		return nil, err
	}
	return rows, nil
}

func (c *Client) ListActiveBills(ctx context.Context, userID string) ([]domain.Bill, error) {
	ctx, span := tracer.Start(ctx, "Supabase.ListActiveBills")
	defer span.End()

	q := url.Values{}
	q.Set("user_id", eq(userID))
	q.Set("is_active", "eq.true")

	rows := []domain.Bill{}
	if err := c.getJSON(ctx, "bills", q, &rows); err != nil {
		return nil, err
	}
	return rows, nil
}

func (c *Client) ListActiveGoals(ctx context.Context, userID string) ([]domain.Goal, error) {
	ctx, span := tracer.Start(ctx, "Supabase.ListActiveGoals")
	defer span.End()

	q := url.Values{}
	q.Set("user_id", eq(userID))
	q.Set("status", eq(domain.GoalStatusActive))
	q.Set("order", "status.asc,priority.asc,created_at.desc")

	rows := []domain.Goal{}
	if err := c.getJSON(ctx, "goals", q, &rows); err != nil {
		return nil, err
	}
	return rows, nil
}

// ListActiveUserIDs implements port.UserLister.
func (c *Client) ListActiveUserIDs(ctx context.Context) ([]string, error) {
	ctx, span := tracer.Start(ctx, "Supabase.ListActiveUserIDs")
	defer span.End()

	q := url.Values{}
	q.Set("select", "id")
	q.Set("order", "created_at.asc")

	var rows []struct {
		ID string `json:"id"`
	}
	if err := c.getJSON(ctx, "users", q, &rows); err != nil {
		return nil, err
	}

	ids := make([]string, 0, len(rows))
	for _, r := range rows {
		ids = append(ids, r.ID)
	}
	return ids, nil
}
