package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/boddenberg/zeno-insights-bfa-go/internal/domain"

	"github.com/lib/pq"
	"go.opentelemetry.io/otel/attribute"
)

const actionColumns = `id, user_id, insight_id, title, description, why_it_matters, estimated_impact,
		difficulty, time_to_complete, status, priority, completed_at, dismissed_at, created_at`

type scanner interface {
	Scan(dest ...any) error
}

func scanAction(row scanner) (domain.Action, error) {
	var a domain.Action
	var completed, dismissed sql.NullTime
	err := row.Scan(&a.ID, &a.UserID, &a.InsightID, &a.Title, &a.Description, &a.WhyItMatters, &a.EstimatedImpact,
		&a.Difficulty, &a.TimeToComplete, &a.Status, &a.Priority, &completed, &dismissed, &a.CreatedAt)
	if err != nil {
		return a, err
	}
	if completed.Valid {
		a.CompletedAt = &completed.Time
	}
	if dismissed.Valid {
		a.DismissedAt = &dismissed.Time
	}
	return a, nil
}

func scanInsight(row scanner) (domain.Insight, error) {
	var in domain.Insight
	var watchOuts pq.StringArray
	var weekPlan []byte
	var snapshot []byte
	err := row.Scan(&in.ID, &in.UserID, &in.Summary, &watchOuts, &weekPlan, &snapshot, &in.Confidence, &in.CreatedAt)
	if err != nil {
		return in, err
	}
	in.WatchOuts = []string(watchOuts)
	if in.WatchOuts == nil {
		in.WatchOuts = []string{}
	}
	if len(weekPlan) > 0 {
		if err := json.Unmarshal(weekPlan, &in.WeekPlan); err != nil {
			return in, fmt.Errorf("decode week plan: %w", err)
		}
	}
	if len(snapshot) > 0 {
		in.DataSnapshot = json.RawMessage(snapshot)
	}
	return in, nil
}

// LastInsightAt returns the creation time of the user's newest insight
func (s *Store) LastInsightAt(ctx context.Context, userID string) (*time.Time, error) {
	ctx, span := tracer.Start(ctx, "Postgres.LastInsightAt")
	defer span.End()

	var last sql.NullTime
	err := s.read(ctx, "insights", func() error {
		return s.db.QueryRowContext(ctx, `SELECT MAX(created_at) FROM insights WHERE user_id = $1`, userID).Scan(&last)
	})
	if err != nil {
		return nil, err
	}
	if !last.Valid {
		return nil, nil
	}
	return &last.Time, nil
}

// CreateInsight stores an insight and its actions in one transaction
func (s *Store) CreateInsight(ctx context.Context, insight *domain.Insight) (*domain.Insight, error) {
	ctx, span := tracer.Start(ctx, "Postgres.CreateInsight")
	defer span.End()
	span.SetAttributes(attribute.String("user.id", insight.UserID))

	weekPlan, err := json.Marshal(insight.WeekPlan)
	if err != nil {
		return nil, fmt.Errorf("encode week plan: %w", err)
	}
	var snapshot any
	if len(insight.DataSnapshot) > 0 {
		snapshot = []byte(insight.DataSnapshot)
	}

	out := *insight
	out.ID = s.newID()
	out.Actions = make([]domain.Action, 0, len(insight.Actions))

	err = s.write(ctx, "insights", func() error {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return err
		}
		defer tx.Rollback()

		err = tx.QueryRowContext(ctx, `
			INSERT INTO insights (id, user_id, summary, watch_outs, week_plan, data_snapshot, confidence)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
			RETURNING created_at`,
			out.ID, out.UserID, out.Summary, pq.Array(out.WatchOuts), weekPlan, snapshot, out.Confidence,
		).Scan(&out.CreatedAt)
		if err != nil {
			return fmt.Errorf("insert insight: %w", err)
		}

		for _, a := range insight.Actions {
			a.ID = s.newID()
			a.InsightID = out.ID
			err = tx.QueryRowContext(ctx, `
				INSERT INTO actions (id, user_id, insight_id, title, description, why_it_matters,
					estimated_impact, difficulty, time_to_complete, status, priority)
				VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
				RETURNING created_at`,
				a.ID, a.UserID, a.InsightID, a.Title, a.Description, a.WhyItMatters,
				a.EstimatedImpact, a.Difficulty, a.TimeToComplete, a.Status, a.Priority,
			).Scan(&a.CreatedAt)
			if err != nil {
				return fmt.Errorf("insert action: %w", err)
			}
			out.Actions = append(out.Actions, a)
		}

		return tx.Commit()
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// ListInsights returns the newest insights of a user with their actions
func (s *Store) ListInsights(ctx context.Context, userID string, limit int) ([]domain.Insight, error) {
	ctx, span := tracer.Start(ctx, "Postgres.ListInsights")
	defer span.End()

	var out []domain.Insight
	err := s.read(ctx, "insights", func() error {
		out = []domain.Insight{}
		rows, err := s.db.QueryContext(ctx, `
			SELECT id, user_id, summary, watch_outs, week_plan, data_snapshot, confidence, created_at
			FROM insights
			WHERE user_id = $1
			ORDER BY created_at DESC
			LIMIT $2`, userID, limit)
		if err != nil {
			return err
		}
		defer rows.Close()

		for rows.Next() {
			in, err := scanInsight(rows)
			if err != nil {
				return err
			}
			out = append(out, in)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, err
	}

	for i := range out {
		actions, err := s.actionsOf(ctx, out[i].ID)
		if err != nil {
			return nil, err
		}
		out[i].Actions = actions
	}
	return out, nil
}

// GetInsight returns one insight owned by the user
func (s *Store) GetInsight(ctx context.Context, userID, insightID string) (*domain.Insight, error) {
	ctx, span := tracer.Start(ctx, "Postgres.GetInsight")
	defer span.End()

	var in domain.Insight
	err := s.read(ctx, "insights", func() error {
		row := s.db.QueryRowContext(ctx, `
			SELECT id, user_id, summary, watch_outs, week_plan, data_snapshot, confidence, created_at
			FROM insights
			WHERE id = $1 AND user_id = $2`, insightID, userID)
		var err error
		in, err = scanInsight(row)
		if err == sql.ErrNoRows {
			return &domain.ErrNotFound{Resource: "insight", ID: insightID}
		}
		return err
	})
	if err != nil {
		return nil, err
	}

	in.Actions, err = s.actionsOf(ctx, in.ID)
	if err != nil {
		return nil, err
	}
	return &in, nil
}

func (s *Store) actionsOf(ctx context.Context, insightID string) ([]domain.Action, error) {
	var out []domain.Action
	err := s.read(ctx, "actions", func() error {
		out = []domain.Action{}
		rows, err := s.db.QueryContext(ctx,
			`SELECT `+actionColumns+` FROM actions WHERE insight_id = $1 ORDER BY priority ASC`, insightID)
		if err != nil {
			return err
		}
		defer rows.Close()

		for rows.Next() {
			a, err := scanAction(rows)
			if err != nil {
				return err
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

// ListActions returns a user's actions, optionally filtered by status
func (s *Store) ListActions(ctx context.Context, userID, status string, limit int) ([]domain.Action, error) {
	ctx, span := tracer.Start(ctx, "Postgres.ListActions")
	defer span.End()

	var out []domain.Action
	err := s.read(ctx, "actions", func() error {
		out = []domain.Action{}
		rows, err := s.db.QueryContext(ctx, `
			SELECT `+actionColumns+`
			FROM actions
			WHERE user_id = $1 AND ($2 = '' OR status = $2)
			ORDER BY priority ASC, created_at DESC
			LIMIT $3`, userID, status, limit)
		if err != nil {
			return err
		}
		defer rows.Close()

		for rows.Next() {
			a, err := scanAction(rows)
			if err != nil {
				return err
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

// CountActionsByStatus groups a user's actions by status
func (s *Store) CountActionsByStatus(ctx context.Context, userID string) (map[string]int, error) {
	ctx, span := tracer.Start(ctx, "Postgres.CountActionsByStatus")
	defer span.End()

	counts := make(map[string]int)
	err := s.read(ctx, "actions", func() error {
		rows, err := s.db.QueryContext(ctx,
			`SELECT status, COUNT(*) FROM actions WHERE user_id = $1 GROUP BY status`, userID)
		if err != nil {
			return err
		}
		defer rows.Close()

		for rows.Next() {
			var status string
			var n int
			if err := rows.Scan(&status, &n); err != nil {
				return err
			}
			counts[status] = n
		}
		return rows.Err()
	})
	if err != nil {
		return nil, err
	}
	return counts, nil
}

// GetAction returns one action owned by the user
func (s *Store) GetAction(ctx context.Context, userID, actionID string) (*domain.Action, error) {
	ctx, span := tracer.Start(ctx, "Postgres.GetAction")
	defer span.End()

	var a domain.Action
	err := s.read(ctx, "actions", func() error {
		var err error
		a, err = scanAction(s.db.QueryRowContext(ctx,
			`SELECT `+actionColumns+` FROM actions WHERE id = $1 AND user_id = $2`, actionID, userID))
		if err == sql.ErrNoRows {
			return &domain.ErrNotFound{Resource: "action", ID: actionID}
		}
		return err
	})
	if err != nil {
		return nil, err
	}
	return &a, nil
}

// UpdateAction writes status and the completion/dismissal timestamps
func (s *Store) UpdateAction(ctx context.Context, action *domain.Action) (*domain.Action, error) {
	ctx, span := tracer.Start(ctx, "Postgres.UpdateAction")
	defer span.End()
	span.SetAttributes(attribute.String("action.id", action.ID))

	var a domain.Action
	err := s.write(ctx, "actions", func() error {
		var err error
		a, err = scanAction(s.db.QueryRowContext(ctx, `
			UPDATE actions
			SET status = $3, completed_at = $4, dismissed_at = $5
			WHERE id = $1 AND user_id = $2
			RETURNING `+actionColumns,
			action.ID, action.UserID, action.Status, nullTime(action.CompletedAt), nullTime(action.DismissedAt)))
		if err == sql.ErrNoRows {
			return &domain.ErrNotFound{Resource: "action", ID: action.ID}
		}
		return err
	})
	if err != nil {
		return nil, err
	}
	return &a, nil
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}
