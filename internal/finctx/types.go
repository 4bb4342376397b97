// Package finctx defines the user financial snapshot consumed by the
// rule engine, the freshness evaluator and the tool dispatcher, and
// the Builder boundary through which the snapshot is assembled.
package finctx

import (
	"context"
	"time"
)

// Account type tags.
const (
	AccountInvestment = "investment"
	AccountCash       = "cash"
	AccountDebt       = "debt"
)

// Builder assembles a user's current financial snapshot. The caller is
// assumed to be authenticated and scoped to the user already.
type Builder interface {
	Build(ctx context.Context, userID string) (*Snapshot, error)
}

// Snapshot is a point-in-time view of a user's finances. Pointer
// fields on Profile are nil when the user never provided the value;
// the rule engine degrades those to assumptions rather than failing.
type Snapshot struct {
	UserID             string        `json:"user_id"`
	Profile            Profile       `json:"profile"`
	Accounts           AccountGroups `json:"accounts"`
	Holdings           []Holding     `json:"holdings"`
	RecentTransactions []Transaction `json:"recent_transactions"`
	DataFreshness      DataFreshness `json:"data_freshness"`
}

// Profile holds user-declared financial memory fields.
type Profile struct {
	Age                       *int     `json:"age,omitempty"`
	MonthlyIncome             *float64 `json:"monthly_income,omitempty"`
	MonthlyExpenses           *float64 `json:"monthly_expenses,omitempty"`
	HousingCost               *float64 `json:"housing_cost,omitempty"`
	MonthlySavings            *float64 `json:"monthly_savings,omitempty"`
	MonthlyDebtPayments       *float64 `json:"monthly_debt_payments,omitempty"`
	RetirementContribution    *float64 `json:"retirement_contribution,omitempty"`
	SavingsRateTarget         *float64 `json:"savings_rate_target,omitempty"`
	EmergencyFundTargetMonths *int     `json:"emergency_fund_target_months,omitempty"`
	RiskTolerance             string   `json:"risk_tolerance,omitempty"`
	FilingStatus              string   `json:"filing_status,omitempty"`
	Dependents                *int     `json:"dependents,omitempty"`
}

// AccountGroups buckets accounts by kind.
type AccountGroups struct {
	Investment []Account `json:"investment"`
	Cash       []Account `json:"cash"`
	Debt       []Account `json:"debt"`
}

// Account is one linked financial account. Balance is positive for
// assets and positive-owed for debt accounts.
type Account struct {
	ID            string   `json:"id"`
	Name          string   `json:"name"`
	Type          string   `json:"type"`
	Balance       float64  `json:"balance"`
	InterestRate  *float64 `json:"interest_rate,omitempty"`
	TaxAdvantaged bool     `json:"tax_advantaged,omitempty"`
}

// Holding is one position in an investment account.
type Holding struct {
	Symbol    string  `json:"symbol"`
	Name      string  `json:"name"`
	AssetType string  `json:"asset_type"`
	Quantity  float64 `json:"quantity"`
	Value     float64 `json:"value"`
}

// Transaction is one recent account transaction.
type Transaction struct {
	ID          string    `json:"id"`
	AccountID   string    `json:"account_id"`
	Description string    `json:"description"`
	Category    string    `json:"category"`
	Amount      float64   `json:"amount"`
	PostedAt    time.Time `json:"posted_at"`
}

// DataFreshness records when linked account data was last synced.
type DataFreshness struct {
	LastSync *time.Time `json:"last_sync"`
	Provider string     `json:"provider,omitempty"`
}

// TotalCash sums cash account balances.
func (s *Snapshot) TotalCash() float64 {
	return sumBalances(s.Accounts.Cash)
}

// TotalInvestments sums investment account balances.
func (s *Snapshot) TotalInvestments() float64 {
	return sumBalances(s.Accounts.Investment)
}

// TotalDebt sums debt account balances (amount owed).
func (s *Snapshot) TotalDebt() float64 {
	return sumBalances(s.Accounts.Debt)
}

// NetWorth is assets minus debts.
func (s *Snapshot) NetWorth() float64 {
	return s.TotalCash() + s.TotalInvestments() - s.TotalDebt()
}

func sumBalances(accounts []Account) float64 {
	var total float64
	for _, a := range accounts {
		total += a.Balance
	}
	return total
}
