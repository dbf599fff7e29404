package supabase

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"time"

	"github.com/boddenberg/zeno-insights-bfa-go/internal/domain"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// ============================================================
// Insights and actions (implements port.InsightStore)
// ============================================================

type insightRow struct {
	ID           string                `json:"id,omitempty"`
	UserID       string                `json:"user_id"`
	Summary      string                `json:"summary"`
	WatchOuts    []string              `json:"watch_outs"`
	WeekPlan     []domain.WeekPlanItem `json:"week_plan"`
	DataSnapshot json.RawMessage       `json:"data_snapshot,omitempty"`
	Confidence   float64               `json:"confidence"`
	CreatedAt    *time.Time            `json:"created_at,omitempty"`
	Actions      []actionRow           `json:"actions,omitempty"`
}

type actionRow struct {
	ID              string     `json:"id,omitempty"`
	UserID          string     `json:"user_id"`
	InsightID       string     `json:"insight_id"`
	Title           string     `json:"title"`
	Description     string     `json:"description"`
	WhyItMatters    string     `json:"why_it_matters"`
	EstimatedImpact string     `json:"estimated_impact"`
	Difficulty      string     `json:"difficulty"`
	TimeToComplete  string     `json:"time_to_complete"`
	Status          string     `json:"status"`
	Priority        int        `json:"priority"`
	CompletedAt     *time.Time `json:"completed_at,omitempty"`
	DismissedAt     *time.Time `json:"dismissed_at,omitempty"`
	CreatedAt       *time.Time `json:"created_at,omitempty"`
}

func (r insightRow) toDomain() domain.Insight {
	in := domain.Insight{
		ID:           r.ID,
		UserID:       r.UserID,
		Summary:      r.Summary,
		WatchOuts:    r.WatchOuts,
		WeekPlan:     r.WeekPlan,
		DataSnapshot: r.DataSnapshot,
		Confidence:   r.Confidence,
		Actions:      make([]domain.Action, 0, len(r.Actions)),
	}
	if r.CreatedAt != nil {
		in.CreatedAt = *r.CreatedAt
	}
	for _, a := range r.Actions {
		in.Actions = append(in.Actions, a.toDomain())
	}
	return in
}

func (r actionRow) toDomain() domain.Action {
	a := domain.Action{
		ID:              r.ID,
		UserID:          r.UserID,
		InsightID:       r.InsightID,
		Title:           r.Title,
		Description:     r.Description,
		WhyItMatters:    r.WhyItMatters,
		EstimatedImpact: r.EstimatedImpact,
		Difficulty:      r.Difficulty,
		TimeToComplete:  r.TimeToComplete,
		Status:          r.Status,
		Priority:        r.Priority,
		CompletedAt:     r.CompletedAt,
		DismissedAt:     r.DismissedAt,
	}
	if r.CreatedAt != nil {
		a.CreatedAt = *r.CreatedAt
	}
	return a
}

func actionToRow(a domain.Action) actionRow {
	return actionRow{
		UserID:          a.UserID,
		InsightID:       a.InsightID,
		Title:           a.Title,
		Description:     a.Description,
		WhyItMatters:    a.WhyItMatters,
		EstimatedImpact: a.EstimatedImpact,
		Difficulty:      a.Difficulty,
		TimeToComplete:  a.TimeToComplete,
		Status:          a.Status,
		Priority:        a.Priority,
	}
}

const insightSelect = "*,actions(*)"

func (c *Client) LastInsightAt(ctx context.Context, userID string) (*time.Time, error) {
	ctx, span := tracer.Start(ctx, "Supabase.LastInsightAt")
	defer span.End()

	q := url.Values{}
	q.Set("select", "created_at")
	q.Set("user_id", eq(userID))
	q.Set("order", "created_at.desc")
	q.Set("limit", "1")

	var rows []struct {
		CreatedAt time.Time `json:"created_at"`
	}
	if err := c.getJSON(ctx, "insights", q, &rows); err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return &rows[0].CreatedAt, nil
}

// CreateInsight inserts the insight, then its actions in one batch. If the
// action insert fails the insight row is deleted again.
func (c *Client) CreateInsight(ctx context.Context, insight *domain.Insight) (*domain.Insight, error) {
	ctx, span := tracer.Start(ctx, "Supabase.CreateInsight")
	defer span.End()
	span.SetAttributes(attribute.String("user.id", insight.UserID))

	var created insightRow
	err := c.write(ctx, "insights", func() error {
		body, err := c.doPost(ctx, "insights", insightRow{
			UserID:       insight.UserID,
			Summary:      insight.Summary,
			WatchOuts:    insight.WatchOuts,
			WeekPlan:     insight.WeekPlan,
			DataSnapshot: insight.DataSnapshot,
			Confidence:   insight.Confidence,
		})
		if err != nil {
			return err
		}
		var rows []insightRow
		if err := json.Unmarshal(body, &rows); err != nil {
			return fmt.Errorf("decode insight: %w", err)
		}
		if len(rows) == 0 {
			return fmt.Errorf("insert returned no insight row")
		}
		created = rows[0]
		return nil
	})
	if err != nil {
		return nil, err
	}

	if len(insight.Actions) > 0 {
		rows := make([]actionRow, 0, len(insight.Actions))
		for _, a := range insight.Actions {
			r := actionToRow(a)
			r.InsightID = created.ID
			rows = append(rows, r)
		}

		err = c.write(ctx, "actions", func() error {
			body, err := c.doPost(ctx, "actions", rows)
			if err != nil {
				return err
			}
			return json.Unmarshal(body, &created.Actions)
		})
		if err != nil {
			if delErr := c.doDelete(ctx, "insights?id="+url.QueryEscape(eq(created.ID))); delErr != nil {
				c.logger.Error("supabase: failed to roll back insight",
					zap.String("insight_id", created.ID),
					zap.Error(delErr),
				)
			}
			return nil, err
		}
	}

	out := created.toDomain()
	return &out, nil
}

func (c *Client) ListInsights(ctx context.Context, userID string, limit int) ([]domain.Insight, error) {
	ctx, span := tracer.Start(ctx, "Supabase.ListInsights")
	defer span.End()

	q := url.Values{}
	q.Set("select", insightSelect)
	q.Set("user_id", eq(userID))
	q.Set("order", "created_at.desc")
	q.Set("limit", strconv.Itoa(limit))
	q.Set("actions.order", "priority.asc")

	var rows []insightRow
	if err := c.getJSON(ctx, "insights", q, &rows); err != nil {
		return nil, err
	}

	out := make([]domain.Insight, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.toDomain())
	}
	return out, nil
}

func (c *Client) GetInsight(ctx context.Context, userID, insightID string) (*domain.Insight, error) {
	ctx, span := tracer.Start(ctx, "Supabase.GetInsight")
	defer span.End()

	q := url.Values{}
	q.Set("select", insightSelect)
	q.Set("id", eq(insightID))
	q.Set("user_id", eq(userID))
	q.Set("limit", "1")
	q.Set("actions.order", "priority.asc")

	var rows []insightRow
	if err := c.getJSON(ctx, "insights", q, &rows); err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, &domain.ErrNotFound{Resource: "insight", ID: insightID}
	}
	out := rows[0].toDomain()
	return &out, nil
}

func (c *Client) ListActions(ctx context.Context, userID, status string, limit int) ([]domain.Action, error) {
	ctx, span := tracer.Start(ctx, "Supabase.ListActions")
	defer span.End()

	q := url.Values{}
	q.Set("user_id", eq(userID))
	if status != "" {
		q.Set("status", eq(status))
	}
	q.Set("order", "priority.asc,created_at.desc")
	q.Set("limit", strconv.Itoa(limit))

	var rows []actionRow
	if err := c.getJSON(ctx, "actions", q, &rows); err != nil {
		return nil, err
	}

	out := make([]domain.Action, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.toDomain())
	}
	return out, nil
}

func (c *Client) CountActionsByStatus(ctx context.Context, userID string) (map[string]int, error) {
	ctx, span := tracer.Start(ctx, "Supabase.CountActionsByStatus")
	defer span.End()

	q := url.Values{}
	q.Set("select", "status")
	q.Set("user_id", eq(userID))

	var rows []struct {
		Status string `json:"status"`
	}
	if err := c.getJSON(ctx, "actions", q, &rows); err != nil {
		return nil, err
	}

	counts := make(map[string]int)
	for _, r := range rows {
		counts[r.Status]++
	}
	return counts, nil
}

func (c *Client) GetAction(ctx context.Context, userID, actionID string) (*domain.Action, error) {
	ctx, span := tracer.Start(ctx, "Supabase.GetAction")
	defer span.End()

	q := url.Values{}
	q.Set("id", eq(actionID))
	q.Set("user_id", eq(userID))
	q.Set("limit", "1")

	var rows []actionRow
	if err := c.getJSON(ctx, "actions", q, &rows); err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, &domain.ErrNotFound{Resource: "action", ID: actionID}
	}
	out := rows[0].toDomain()
	return &out, nil
}

// UpdateAction writes status and the completion/dismissal timestamps.
func (c *Client) UpdateAction(ctx context.Context, action *domain.Action) (*domain.Action, error) {
	ctx, span := tracer.Start(ctx, "Supabase.UpdateAction")
	defer span.End()
	span.SetAttributes(attribute.String("action.id", action.ID))

	q := url.Values{}
	q.Set("id", eq(action.ID))
	q.Set("user_id", eq(action.UserID))

	var rows []actionRow
	err := c.write(ctx, "actions", func() error {
		body, err := c.doPatch(ctx, "actions?"+q.Encode(), map[string]any{
			"status":       action.Status,
			"completed_at": action.CompletedAt,
			"dismissed_at": action.DismissedAt,
		})
		if err != nil {
			return err
		}
		return json.Unmarshal(body, &rows)
	})
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, &domain.ErrNotFound{Resource: "action", ID: action.ID}
	}
	out := rows[0].toDomain()
	return &out, nil
}
