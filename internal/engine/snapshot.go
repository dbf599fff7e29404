// Package engine holds the pure financial insight pipeline: reducing a
// user's records into a snapshot and deriving narrative, warnings and
// prioritized actions from it. Nothing here performs I/O.
package engine

import (
	"math"
	"sort"
	"time"

	"github.com/boddenberg/zeno-insights-bfa-go/internal/domain"
)

const (
	// CashFlowWindow is how far back transactions count towards cash flow.
	CashFlowWindow = 30 * 24 * time.Hour

	billHorizonDays  = 30
	maxUpcomingBills = 10
)

// BuildSnapshot reduces a user's records into a FinancialSnapshot as of now.
// Records are trusted to belong to one user and to be pre-filtered by the
// store (open debts, active bills, active goals in priority order).
func BuildSnapshot(rec domain.FinancialRecords, now time.Time) domain.FinancialSnapshot {
	assets, liabilities := netWorthTotals(rec.Accounts)

	return domain.FinancialSnapshot{
		NetWorth:         assets - liabilities,
		TotalAssets:      assets,
		TotalLiabilities: liabilities,
		CashFlow:         cashFlow(rec.Transactions),
		Accounts:         summarizeAccounts(rec.Accounts),
		UpcomingBills:    upcomingBills(rec.Bills, now),
		DebtSummary:      summarizeDebts(rec.Debts),
		GoalProgress:     summarizeGoals(rec.Goals),
	}
}

// netWorthTotals sums positive and negative balances of accounts flagged
// for net worth. Zero balances count towards neither side.
func netWorthTotals(accounts []domain.Account) (assets, liabilities float64) {
	for _, a := range accounts {
		if !a.IncludeInNetWorth {
			continue
		}
		switch {
		case a.CurrentBalance > 0:
			assets += a.CurrentBalance
		case a.CurrentBalance < 0:
			liabilities += math.Abs(a.CurrentBalance)
		}
	}
	return assets, liabilities
}

func cashFlow(txs []domain.Transaction) domain.CashFlow {
	var income, expenses float64
	for _, t := range txs {
		switch {
		case t.Amount > 0:
			income += t.Amount
		case t.Amount < 0:
			expenses += math.Abs(t.Amount)
		}
	}

	savings := income - expenses
	rate := float64(0)
	if income > 0 {
		rate = savings / income
	}

	return domain.CashFlow{
		Income:      income,
		Expenses:    expenses,
		Savings:     savings,
		SavingsRate: rate,
	}
}

func summarizeAccounts(accounts []domain.Account) []domain.AccountSummary {
	out := make([]domain.AccountSummary, 0, len(accounts))
	for _, a := range accounts {
		s := domain.AccountSummary{
			ID:      a.ID,
			Name:    a.Name,
			Type:    a.Type,
			Balance: a.CurrentBalance,
		}
		if a.Institution != nil {
			s.Institution = *a.Institution
		}
		out = append(out, s)
	}
	return out
}

func summarizeDebts(debts []domain.Debt) domain.DebtSummary {
	sum := domain.DebtSummary{Debts: make([]domain.DebtItem, 0, len(debts))}
	for i, d := range debts {
		sum.TotalDebt += d.CurrentBalance
		sum.TotalMinimumPayment += d.MinimumPayment
		if i == 0 || d.InterestRate > sum.HighestInterestRate {
			sum.HighestInterestRate = d.InterestRate
		}
		sum.Debts = append(sum.Debts, domain.DebtItem{
			ID:      d.ID,
			Name:    d.Name,
			Balance: d.CurrentBalance,
			Rate:    d.InterestRate,
		})
	}
	return sum
}

// DaysUntil returns the whole days from now until due, rounded up.
// Anything due later today, or less than a day ago, yields 0.
func DaysUntil(due, now time.Time) int {
	return int(math.Ceil(float64(due.Sub(now)) / float64(24*time.Hour)))
}

func upcomingBills(bills []domain.Bill, now time.Time) []domain.BillSummary {
	out := make([]domain.BillSummary, 0, len(bills))
	for _, b := range bills {
		if b.NextDueDate == nil {
			continue
		}
		dueIn := DaysUntil(*b.NextDueDate, now)
		if dueIn < 0 || dueIn > billHorizonDays {
			continue
		}
		out = append(out, domain.BillSummary{
			ID:     b.ID,
			Name:   b.Name,
			Amount: b.Amount,
			DueIn:  dueIn,
		})
	}

	sort.SliceStable(out, func(i, j int) bool { return out[i].DueIn < out[j].DueIn })
	if len(out) > maxUpcomingBills {
		out = out[:maxUpcomingBills]
	}
	return out
}

// summarizeGoals keeps the store's order; the generator reads the first
// goal as the user's top priority.
func summarizeGoals(goals []domain.Goal) []domain.GoalSummary {
	out := make([]domain.GoalSummary, 0, len(goals))
	for _, g := range goals {
		progress := float64(0)
		if g.TargetAmount > 0 {
			progress = g.CurrentAmount / g.TargetAmount * 100
		}
		out = append(out, domain.GoalSummary{
			ID:       g.ID,
			Name:     g.Name,
			Type:     g.Type,
			Current:  g.CurrentAmount,
			Target:   g.TargetAmount,
			Progress: progress,
		})
	}
	return out
}
