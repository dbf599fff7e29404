package postgres

import (
	"context"
	"database/sql"
	"time"

	"github.com/boddenberg/zeno-insights-bfa-go/internal/domain"
)

// ListAccounts retrieves all accounts of a user
func (s *Store) ListAccounts(ctx context.Context, userID string) ([]domain.Account, error) {
	ctx, span := tracer.Start(ctx, "Postgres.ListAccounts")
	defer span.End()

	query := `
		SELECT id, user_id, name, type, current_balance, institution, include_in_net_worth, created_at
		FROM accounts
		WHERE user_id = $1
		ORDER BY created_at`

	var out []domain.Account
	err := s.read(ctx, "accounts", func() error {
		out = []domain.Account{}
		rows, err := s.db.QueryContext(ctx, query, userID)
		if err != nil {
			return err
		}
		defer rows.Close()

		for rows.Next() {
			var a domain.Account
			var institution sql.NullString
			if err := rows.Scan(&a.ID, &a.UserID, &a.Name, &a.Type, &a.CurrentBalance, &institution, &a.IncludeInNetWorth, &a.CreatedAt); err != nil {
				return err
			}
			if institution.Valid {
				a.Institution = &institution.String
			}
			out = append(out, a)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// ListTransactionsSince retrieves transactions dated at or after since
func (s *Store) ListTransactionsSince(ctx context.Context, userID string, since time.Time) ([]domain.Transaction, error) {
	ctx, span := tracer.Start(ctx, "Postgres.ListTransactionsSince")
	defer span.End()

	query := `
		SELECT id, user_id, COALESCE(account_id, ''), date, amount, category, description
		FROM transactions
		WHERE user_id = $1 AND date >= $2
		ORDER BY date DESC`

	var out []domain.Transaction
	err := s.read(ctx, "transactions", func() error {
		out = []domain.Transaction{}
		rows, err := s.db.QueryContext(ctx, query, userID, since)
		if err != nil {
			return err
		}
		defer rows.Close()

		for rows.Next() {
			var t domain.Transaction
			if err := rows.Scan(&t.ID, &t.UserID, &t.AccountID, &t.Date, &t.Amount, &t.Category, &t.Description); err != nil {
				return err
			}
			out = append(out, t)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// ListOpenDebts retrieves debts not yet paid off
func (s *Store) ListOpenDebts(ctx context.Context, userID string) ([]domain.Debt, error) {
	ctx, span := tracer.Start(ctx, "Postgres.ListOpenDebts")
	defer span.End()

	query := `
		SELECT id, user_id, name, type, current_balance, minimum_payment, interest_rate, is_paid_off
		FROM debts
		WHERE user_id = $1 AND NOT is_paid_off`

	var out []domain.Debt
	err := s.read(ctx, "debts", func() error {
		out = []domain.Debt{}
		rows, err := s.db.QueryContext(ctx, query, userID)
		if err != nil {
			return err
		}
		defer rows.Close()

		for rows.Next() {
			var d domain.Debt
			if err := rows.Scan(&d.ID, &d.UserID, &d.Name, &d.Type, &d.CurrentBalance, &d.MinimumPayment, &d.InterestRate, &d.IsPaidOff); err != nil {
				return err
			}
			out = append(out, d)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// ListActiveBills retrieves active bills
func (s *Store) ListActiveBills(ctx context.Context, userID string) ([]domain.Bill, error) {
	ctx, span := tracer.Start(ctx, "Postgres.ListActiveBills")
	defer span.End()

	query := `
		SELECT id, user_id, name, amount, next_due_date, is_active
		FROM bills
		WHERE user_id = $1 AND is_active`

	var out []domain.Bill
	err := s.read(ctx, "bills", func() error {
		out = []domain.Bill{}
		rows, err := s.db.QueryContext(ctx, query, userID)
		if err != nil {
			return err
		}
		defer rows.Close()

		for rows.Next() {
			var b domain.Bill
			var due sql.NullTime
			if err := rows.Scan(&b.ID, &b.UserID, &b.Name, &b.Amount, &due, &b.IsActive); err != nil {
				return err
			}
			if due.Valid {
				b.NextDueDate = &due.Time
			}
			out = append(out, b)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// ListActiveGoals retrieves active goals in display order
func (s *Store) ListActiveGoals(ctx context.Context, userID string) ([]domain.Goal, error) {
	ctx, span := tracer.Start(ctx, "Postgres.ListActiveGoals")
	defer span.End()

	query := `
		SELECT id, user_id, name, type, current_amount, target_amount, status, priority, created_at
		FROM goals
		WHERE user_id = $1 AND status = $2
		ORDER BY status ASC, priority ASC, created_at DESC`

	var out []domain.Goal
	err := s.read(ctx, "goals", func() error {
		out = []domain.Goal{}
		rows, err := s.db.QueryContext(ctx, query, userID, domain.GoalStatusActive)
		if err != nil {
			return err
		}
		defer rows.Close()

		for rows.Next() {
			var g domain.Goal
			if err := rows.Scan(&g.ID, &g.UserID, &g.Name, &g.Type, &g.CurrentAmount, &g.TargetAmount, &g.Status, &g.Priority, &g.CreatedAt); err != nil {
				return err
			}
			out = append(out, g)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// ListActiveUserIDs retrieves the ids of every user
func (s *Store) ListActiveUserIDs(ctx context.Context) ([]string, error) {
	ctx, span := tracer.Start(ctx, "Postgres.ListActiveUserIDs")
	defer span.End()

	var out []string
	err := s.read(ctx, "users", func() error {
		out = []string{}
		rows, err := s.db.QueryContext(ctx, `SELECT id FROM users ORDER BY created_at`)
		if err != nil {
			return err
		}
		defer rows.Close()

		for rows.Next() {
			var id string
			if err := rows.Scan(&id); err != nil {
				return err
			}
			out = append(out, id)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}
