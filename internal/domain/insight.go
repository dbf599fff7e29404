package domain

import (
	"encoding/json"
	"time"
)

// ============================================================
// Insight generator output
// ============================================================

// Action impact levels.
const (
	ImpactLow      = "LOW"
	ImpactMedium   = "MEDIUM"
	ImpactHigh     = "HIGH"
	ImpactCritical = "CRITICAL"
)

// Action difficulty levels.
const (
	DifficultyEasy   = "EASY"
	DifficultyMedium = "MEDIUM"
	DifficultyHard   = "HARD"
)

// InsightOutput is the result of one generation run.
type InsightOutput struct {
	Summary    string             `json:"summary"`
	WatchOuts  []string           `json:"watchOuts"`
	WeekPlan   []WeekPlanItem     `json:"weekPlan"`
	Actions    []ActionSuggestion `json:"actions"`
	Confidence float64            `json:"confidence"`
}

// WeekPlanItem is one day of the weekly plan.
type WeekPlanItem struct {
	Day    string `json:"day"`
	Action string `json:"action"`
}

// ActionSuggestion is a recommended next step. Priority 1 is the highest.
type ActionSuggestion struct {
	Title           string `json:"title"`
	Description     string `json:"description"`
	WhyItMatters    string `json:"whyItMatters"`
	EstimatedImpact string `json:"estimatedImpact"`
	Difficulty      string `json:"difficulty"`
	TimeToComplete  string `json:"timeToComplete"`
	Priority        int    `json:"priority"`
}

// ============================================================
// Persisted insights and actions
// ============================================================

// Action statuses.
const (
	ActionPending    = "PENDING"
	ActionInProgress = "IN_PROGRESS"
	ActionCompleted  = "COMPLETED"
	ActionDismissed  = "DISMISSED"
	ActionExpired    = "EXPIRED"
)

// ValidActionStatus reports whether s is a known action status.
func ValidActionStatus(s string) bool {
	switch s {
	case ActionPending, ActionInProgress, ActionCompleted, ActionDismissed, ActionExpired:
		return true
	}
	return false
}

// Insight is a stored generation result together with the snapshot it
// was derived from.
type Insight struct {
	ID           string          `json:"id"`
	UserID       string          `json:"userId"`
	Summary      string          `json:"summary"`
	WatchOuts    []string        `json:"watchOuts"`
	WeekPlan     []WeekPlanItem  `json:"weekPlan"`
	DataSnapshot json.RawMessage `json:"dataSnapshot,omitempty"`
	Confidence   float64         `json:"confidence"`
	CreatedAt    time.Time       `json:"createdAt"`
	Actions      []Action        `json:"actions"`
}

// Action is a stored suggestion the user can act on.
type Action struct {
	ID              string     `json:"id"`
	UserID          string     `json:"userId"`
	InsightID       string     `json:"insightId"`
	Title           string     `json:"title"`
	Description     string     `json:"description"`
	WhyItMatters    string     `json:"whyItMatters"`
	EstimatedImpact string     `json:"estimatedImpact"`
	Difficulty      string     `json:"difficulty"`
	TimeToComplete  string     `json:"timeToComplete"`
	Status          string     `json:"status"`
	Priority        int        `json:"priority"`
	CompletedAt     *time.Time `json:"completedAt,omitempty"`
	DismissedAt     *time.Time `json:"dismissedAt,omitempty"`
	CreatedAt       time.Time  `json:"createdAt"`
}

// ActionList is returned by GET /v1/actions.
type ActionList struct {
	Actions []Action       `json:"actions"`
	Counts  map[string]int `json:"counts"`
}

// InsightMetrics is returned by GET /v1/metrics/insights.
type InsightMetrics struct {
	InsightsGenerated float64            `json:"insightsGenerated"`
	GenerationErrors  float64            `json:"generationErrors"`
	RateLimited       float64            `json:"rateLimited"`
	ActionsByPriority map[string]float64 `json:"actionsByPriority"`
	CacheHitRate      float64            `json:"cacheHitRate"`
	Period            string             `json:"period"`
}
