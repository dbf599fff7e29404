// Package domain defines the core entities of the Zeno insights BFA.
// Records mirror the rows owned by the storage layer; the snapshot and
// insight types are the values computed and served by this service.
package domain

import "time"

// ============================================================
// Stored records (read by the snapshot aggregator)
// ============================================================

// Account types.
const (
	AccountChecking   = "CHECKING"
	AccountSavings    = "SAVINGS"
	AccountCreditCard = "CREDIT_CARD"
	AccountInvestment = "INVESTMENT"
	AccountLoan       = "LOAN"
	AccountOther      = "OTHER"
)

// Account is a user-owned account. Liabilities carry negative balances.
type Account struct {
	ID                string    `json:"id"`
	UserID            string    `json:"user_id"`
	Name              string    `json:"name"`
	Type              string    `json:"type"`
	CurrentBalance    float64   `json:"current_balance"`
	Institution       *string   `json:"institution"`
	IncludeInNetWorth bool      `json:"include_in_net_worth"`
	CreatedAt         time.Time `json:"created_at"`
}

// Transaction is a single signed cash movement: positive is income,
// negative is an expense.
type Transaction struct {
	ID          string    `json:"id"`
	UserID      string    `json:"user_id"`
	AccountID   string    `json:"account_id,omitempty"`
	Date        time.Time `json:"date"`
	Amount      float64   `json:"amount"`
	Category    string    `json:"category,omitempty"`
	Description string    `json:"description,omitempty"`
}

// Debt is an open liability tracked by the user.
type Debt struct {
	ID             string  `json:"id"`
	UserID         string  `json:"user_id"`
	Name           string  `json:"name"`
	Type           string  `json:"type,omitempty"`
	CurrentBalance float64 `json:"current_balance"`
	MinimumPayment float64 `json:"minimum_payment"`
	InterestRate   float64 `json:"interest_rate"` // fraction, 0.1999 = 19.99% APR
	IsPaidOff      bool    `json:"is_paid_off"`
}

// Bill is a recurring payment. NextDueDate may be unknown.
type Bill struct {
	ID          string     `json:"id"`
	UserID      string     `json:"user_id"`
	Name        string     `json:"name"`
	Amount      float64    `json:"amount"`
	NextDueDate *time.Time `json:"next_due_date"`
	IsActive    bool       `json:"is_active"`
}

// Goal types and statuses.
const (
	GoalEmergencyFund = "EMERGENCY_FUND"
	GoalDebtPayoff    = "DEBT_PAYOFF"
	GoalSavings       = "SAVINGS"
	GoalInvestment    = "INVESTMENT"
	GoalPurchase      = "PURCHASE"
	GoalRetirement    = "RETIREMENT"
	GoalEducation     = "EDUCATION"
	GoalTravel        = "TRAVEL"
	GoalOther         = "OTHER"

	GoalStatusActive = "ACTIVE"
)

// Goal is a savings target. Stores return active goals ordered by
// status ascending, priority ascending, then most recently created first.
type Goal struct {
	ID            string    `json:"id"`
	UserID        string    `json:"user_id"`
	Name          string    `json:"name"`
	Type          string    `json:"type"`
	CurrentAmount float64   `json:"current_amount"`
	TargetAmount  float64   `json:"target_amount"`
	Status        string    `json:"status"`
	Priority      int       `json:"priority"`
	CreatedAt     time.Time `json:"created_at"`
}

// FinancialRecords is everything the aggregator reads for one user.
type FinancialRecords struct {
	Accounts     []Account
	Transactions []Transaction
	Debts        []Debt
	Bills        []Bill
	Goals        []Goal
}
