package domain

// ============================================================
// Financial snapshot (computed per request, never stored as an entity)
// ============================================================

// FinancialSnapshot summarises a user's position at computation time.
type FinancialSnapshot struct {
	NetWorth         float64          `json:"netWorth"`
	TotalAssets      float64          `json:"totalAssets"`
	TotalLiabilities float64          `json:"totalLiabilities"`
	CashFlow         CashFlow         `json:"cashFlow"`
	Accounts         []AccountSummary `json:"accounts"`
	UpcomingBills    []BillSummary    `json:"upcomingBills"`
	DebtSummary      DebtSummary      `json:"debtSummary"`
	GoalProgress     []GoalSummary    `json:"goalProgress"`
}

// CashFlow covers the trailing 30-day transaction window.
type CashFlow struct {
	Income      float64 `json:"income"`
	Expenses    float64 `json:"expenses"`
	Savings     float64 `json:"savings"`
	SavingsRate float64 `json:"savingsRate"`
}

// AccountSummary is the snapshot view of an account.
type AccountSummary struct {
	ID          string  `json:"id"`
	Name        string  `json:"name"`
	Type        string  `json:"type"`
	Balance     float64 `json:"balance"`
	Institution string  `json:"institution,omitempty"`
}

// BillSummary is a bill due within the next 30 days.
type BillSummary struct {
	ID     string  `json:"id"`
	Name   string  `json:"name"`
	Amount float64 `json:"amount"`
	DueIn  int     `json:"dueIn"` // whole days
	IsPaid bool    `json:"isPaid"`
}

// DebtSummary aggregates all open debts.
type DebtSummary struct {
	TotalDebt           float64    `json:"totalDebt"`
	TotalMinimumPayment float64    `json:"totalMinimumPayment"`
	HighestInterestRate float64    `json:"highestInterestRate"`
	Debts               []DebtItem `json:"debts"`
}

// DebtItem is a single debt inside DebtSummary.
type DebtItem struct {
	ID      string  `json:"id"`
	Name    string  `json:"name"`
	Balance float64 `json:"balance"`
	Rate    float64 `json:"rate"`
}

// GoalSummary reports progress as a percentage of the target.
type GoalSummary struct {
	ID       string  `json:"id"`
	Name     string  `json:"name"`
	Type     string  `json:"type"`
	Current  float64 `json:"current"`
	Target   float64 `json:"target"`
	Progress float64 `json:"progress"`
}
