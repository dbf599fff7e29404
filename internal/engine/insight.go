package engine

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/boddenberg/zeno-insights-bfa-go/internal/domain"
)

const (
	maxWatchOuts = 2
	maxActions   = 3

	baseConfidence = 0.60
	maxConfidence  = 0.95

	highInterestRate   = 0.15
	urgentInterestRate = 0.20
	minEmergencyFund   = 500.0
)

// GenerateInsight derives narrative, warnings, actions, a week plan and a
// confidence score from a snapshot. Same snapshot, same output.
func GenerateInsight(s domain.FinancialSnapshot) domain.InsightOutput {
	return domain.InsightOutput{
		Summary:    Summary(s),
		WatchOuts:  WatchOuts(s),
		WeekPlan:   WeekPlan(),
		Actions:    Actions(s),
		Confidence: Confidence(s),
	}
}

// ============================================================
// Summary
// ============================================================

type clauseRule func(s domain.FinancialSnapshot) (string, bool)

// At most one clause per category, in this order.
var summaryRules = []clauseRule{
	netWorthClause,
	cashFlowClause,
	debtClause,
	goalClause,
}

// Summary joins the clauses that apply with single spaces.
func Summary(s domain.FinancialSnapshot) string {
	parts := make([]string, 0, len(summaryRules))
	for _, rule := range summaryRules {
		if clause, ok := rule(s); ok {
			parts = append(parts, clause)
		}
	}
	return strings.Join(parts, " ")
}

func netWorthClause(s domain.FinancialSnapshot) (string, bool) {
	if s.NetWorth > 0 {
		return fmt.Sprintf("Your net worth is %s, which is a solid foundation.", FormatCurrency(s.NetWorth)), true
	}
	return fmt.Sprintf("Your current net worth is %s. Building positive equity should be a priority.", FormatCurrency(s.NetWorth)), true
}

func cashFlowClause(s domain.FinancialSnapshot) (string, bool) {
	rate := s.CashFlow.SavingsRate
	switch {
	case rate >= 0.20:
		return fmt.Sprintf("You're saving %s of your income, which is excellent.", FormatPercent(rate)), true
	case rate >= 0.10:
		return fmt.Sprintf("You're saving %s of your income. Consider increasing to 20%% if possible.", FormatPercent(rate)), true
	case rate > 0:
		return fmt.Sprintf("You're saving %s of your income. Finding ways to increase this will help build security.", FormatPercent(rate)), true
	default:
		return "You're currently spending more than you earn. Identifying areas to cut back will help stabilize your finances.", true
	}
}

func debtClause(s domain.FinancialSnapshot) (string, bool) {
	d := s.DebtSummary
	if d.TotalDebt <= 0 {
		return "", false
	}
	if d.HighestInterestRate > highInterestRate {
		return fmt.Sprintf("You have high-interest debt at %s APR. Prioritizing this can save significant money.", FormatPercent(d.HighestInterestRate)), true
	}
	return fmt.Sprintf("Your debt levels are manageable with a total of %s.", FormatCurrency(d.TotalDebt)), true
}

func goalClause(s domain.FinancialSnapshot) (string, bool) {
	if len(s.GoalProgress) == 0 {
		return "", false
	}
	top := s.GoalProgress[0]
	pct := int(math.Round(top.Progress))
	switch {
	case top.Progress >= 75:
		return fmt.Sprintf("You're %d%% towards your \"%s\" goal - almost there!", pct, top.Name), true
	case top.Progress >= 25:
		return fmt.Sprintf("Good progress on your \"%s\" goal at %d%%.", top.Name, pct), true
	}
	return "", false
}

// ============================================================
// Watch-outs
// ============================================================

var watchOutRules = []clauseRule{
	overspendingWarning,
	highInterestWarning,
	billsDueSoonWarning,
	emergencyFundWarning,
}

// WatchOuts returns up to two warnings in rule order.
func WatchOuts(s domain.FinancialSnapshot) []string {
	out := make([]string, 0, maxWatchOuts)
	for _, rule := range watchOutRules {
		if len(out) == maxWatchOuts {
			break
		}
		if w, ok := rule(s); ok {
			out = append(out, w)
		}
	}
	return out
}

func overspendingWarning(s domain.FinancialSnapshot) (string, bool) {
	if s.CashFlow.SavingsRate < 0 {
		return "You spent more than you earned this month. Review recent expenses for opportunities to cut back.", true
	}
	return "", false
}

func highInterestWarning(s domain.FinancialSnapshot) (string, bool) {
	rate := s.DebtSummary.HighestInterestRate
	if rate > urgentInterestRate {
		return fmt.Sprintf("You have debt at %s APR. Paying this off quickly should be a priority.", FormatPercent(rate)), true
	}
	return "", false
}

func billsDueSoonWarning(s domain.FinancialSnapshot) (string, bool) {
	var count int
	var total float64
	for _, b := range s.UpcomingBills {
		if b.DueIn <= 5 {
			count++
			total += b.Amount
		}
	}
	if count == 0 {
		return "", false
	}
	return fmt.Sprintf("%d bill(s) totaling %s due within 5 days.", count, FormatCurrency(total)), true
}

func emergencyFundWarning(s domain.FinancialSnapshot) (string, bool) {
	g, ok := emergencyGoal(s)
	if !ok || g.Current < minEmergencyFund {
		return "Consider building an emergency fund to cover unexpected expenses.", true
	}
	return "", false
}

func emergencyGoal(s domain.FinancialSnapshot) (domain.GoalSummary, bool) {
	for _, g := range s.GoalProgress {
		if g.Type == domain.GoalEmergencyFund {
			return g, true
		}
	}
	return domain.GoalSummary{}, false
}

// ============================================================
// Actions
// ============================================================

type actionRule func(s domain.FinancialSnapshot) (domain.ActionSuggestion, bool)

var actionRules = []actionRule{
	payBillAction,
	extraDebtPaymentAction,
	emergencyFundGoalAction,
	reviewSubscriptionsAction,
	automateSavingsAction,
}

// Actions returns at most three suggestions, lowest priority number first.
func Actions(s domain.FinancialSnapshot) []domain.ActionSuggestion {
	out := make([]domain.ActionSuggestion, 0, len(actionRules))
	for _, rule := range actionRules {
		if a, ok := rule(s); ok {
			out = append(out, a)
		}
	}

	sort.SliceStable(out, func(i, j int) bool { return out[i].Priority < out[j].Priority })
	if len(out) > maxActions {
		out = out[:maxActions]
	}
	return out
}

// payBillAction names the soonest bill due in 1 to 7 days. Bills are
// already sorted by DueIn.
func payBillAction(s domain.FinancialSnapshot) (domain.ActionSuggestion, bool) {
	for _, b := range s.UpcomingBills {
		if b.DueIn > 0 && b.DueIn <= 7 {
			return domain.ActionSuggestion{
				Title:           fmt.Sprintf("Pay %s bill", b.Name),
				Description:     fmt.Sprintf("Due in %d days. Amount: %s", b.DueIn, FormatCurrency(b.Amount)),
				WhyItMatters:    "Paying on time avoids late fees and maintains good credit.",
				EstimatedImpact: domain.ImpactHigh,
				Difficulty:      domain.DifficultyEasy,
				TimeToComplete:  "5 min",
				Priority:        1,
			}, true
		}
	}
	return domain.ActionSuggestion{}, false
}

func extraDebtPaymentAction(s domain.FinancialSnapshot) (domain.ActionSuggestion, bool) {
	for _, d := range s.DebtSummary.Debts {
		if d.Rate > highInterestRate {
			return domain.ActionSuggestion{
				Title:           fmt.Sprintf("Make extra payment on %s", d.Name),
				Description:     fmt.Sprintf("Balance: %s at %s APR", FormatCurrency(d.Balance), FormatPercent(d.Rate)),
				WhyItMatters:    "Extra payments save money on interest and accelerate payoff.",
				EstimatedImpact: domain.ImpactHigh,
				Difficulty:      domain.DifficultyMedium,
				TimeToComplete:  "10 min",
				Priority:        2,
			}, true
		}
	}
	return domain.ActionSuggestion{}, false
}

func emergencyFundGoalAction(s domain.FinancialSnapshot) (domain.ActionSuggestion, bool) {
	if _, ok := emergencyGoal(s); ok {
		return domain.ActionSuggestion{}, false
	}
	return domain.ActionSuggestion{
		Title:           "Create an emergency fund goal",
		Description:     "Start with a goal of $1,000 to cover unexpected expenses.",
		WhyItMatters:    "An emergency fund prevents debt when surprises happen.",
		EstimatedImpact: domain.ImpactHigh,
		Difficulty:      domain.DifficultyEasy,
		TimeToComplete:  "2 min",
		Priority:        3,
	}, true
}

func reviewSubscriptionsAction(s domain.FinancialSnapshot) (domain.ActionSuggestion, bool) {
	if s.CashFlow.Expenses <= s.CashFlow.Income*0.8 {
		return domain.ActionSuggestion{}, false
	}
	return domain.ActionSuggestion{
		Title:           "Review recurring subscriptions",
		Description:     "Look for subscriptions you may not be using regularly.",
		WhyItMatters:    "Cutting unused subscriptions frees up money for goals.",
		EstimatedImpact: domain.ImpactMedium,
		Difficulty:      domain.DifficultyEasy,
		TimeToComplete:  "15 min",
		Priority:        4,
	}, true
}

func automateSavingsAction(s domain.FinancialSnapshot) (domain.ActionSuggestion, bool) {
	rate := s.CashFlow.SavingsRate
	if rate < 0 || rate >= 0.10 {
		return domain.ActionSuggestion{}, false
	}
	return domain.ActionSuggestion{
		Title:           "Set up automatic savings transfer",
		Description:     "Automate a weekly transfer to savings, even $25 helps.",
		WhyItMatters:    "Automating savings makes it consistent and effortless.",
		EstimatedImpact: domain.ImpactMedium,
		Difficulty:      domain.DifficultyEasy,
		TimeToComplete:  "10 min",
		Priority:        5,
	}, true
}

// ============================================================
// Week plan
// ============================================================

// TODO: derive the plan from the snapshot once the product defines what
// each day should hold; clients currently rely on this fixed rotation.
var weekPlan = [7]domain.WeekPlanItem{
	{Day: "Monday", Action: "Review your pending actions in Zeno"},
	{Day: "Tuesday", Action: "Check account balances"},
	{Day: "Wednesday", Action: "Log any cash transactions"},
	{Day: "Thursday", Action: "Review recent spending"},
	{Day: "Friday", Action: "Check for any upcoming bills"},
	{Day: "Saturday", Action: "Review progress on goals"},
	{Day: "Sunday", Action: "Plan finances for next week"},
}

// WeekPlan returns the generic Monday to Sunday plan.
func WeekPlan() []domain.WeekPlanItem {
	out := make([]domain.WeekPlanItem, len(weekPlan))
	copy(out, weekPlan[:])
	return out
}

// ============================================================
// Confidence
// ============================================================

// Confidence scores how much data backed the insight, in [0.70, 0.95].
// The recent-transactions bonus is always applied.
func Confidence(s domain.FinancialSnapshot) float64 {
	c := baseConfidence
	if len(s.Accounts) >= 2 {
		c += 0.10
	}
	if len(s.Accounts) >= 4 {
		c += 0.05
	}
	if len(s.GoalProgress) > 0 {
		c += 0.10
	}
	c += 0.10

	// Hundredths keep 0.6+0.1+0.1 reading as 0.8.
	c = math.Round(c*100) / 100
	return math.Min(c, maxConfidence)
}
