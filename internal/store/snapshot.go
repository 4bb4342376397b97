package store

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/jackc/pgx/v5"

	"github.com/meridianfi/meridian/internal/finctx"
)

// recentTransactionLimit bounds the snapshot's transaction window.
const recentTransactionLimit = 20

// Build assembles the user's financial snapshot from accounts,
// holdings, recent transactions, memory fields and sync status. It
// implements finctx.Builder.
func (s *Store) Build(ctx context.Context, userID string) (*finctx.Snapshot, error) {
	snap := &finctx.Snapshot{UserID: userID}

	mem, err := s.GetOrCreateMemory(ctx, userID)
	if err != nil {
		return nil, err
	}
	snap.Profile = profileFromMemory(mem)

	if err := s.loadAccounts(ctx, userID, snap); err != nil {
		return nil, err
	}
	if err := s.loadHoldings(ctx, userID, snap); err != nil {
		return nil, err
	}
	if err := s.loadTransactions(ctx, userID, snap); err != nil {
		return nil, err
	}

	err = s.db.QueryRow(ctx, `
		SELECT provider, last_sync FROM sync_status WHERE user_id = $1`, userID,
	).Scan(&snap.DataFreshness.Provider, &snap.DataFreshness.LastSync)
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("get sync status: %w", err)
	}

	return snap, nil
}

func (s *Store) loadAccounts(ctx context.Context, userID string, snap *finctx.Snapshot) error {
	rows, err := s.db.Query(ctx, `
		SELECT id, name, type, balance, interest_rate, tax_advantaged
		FROM accounts WHERE user_id = $1
		ORDER BY name ASC`, userID)
	if err != nil {
		return fmt.Errorf("get accounts: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var a finctx.Account
		if err := rows.Scan(&a.ID, &a.Name, &a.Type, &a.Balance, &a.InterestRate, &a.TaxAdvantaged); err != nil {
			return fmt.Errorf("scan account: %w", err)
		}
		switch a.Type {
		case finctx.AccountInvestment:
			snap.Accounts.Investment = append(snap.Accounts.Investment, a)
		case finctx.AccountCash:
			snap.Accounts.Cash = append(snap.Accounts.Cash, a)
		case finctx.AccountDebt:
			snap.Accounts.Debt = append(snap.Accounts.Debt, a)
		}
	}
	return rows.Err()
}

func (s *Store) loadHoldings(ctx context.Context, userID string, snap *finctx.Snapshot) error {
	rows, err := s.db.Query(ctx, `
		SELECT symbol, name, asset_type, quantity, value
		FROM holdings WHERE user_id = $1
		ORDER BY value DESC`, userID)
	if err != nil {
		return fmt.Errorf("get holdings: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var h finctx.Holding
		if err := rows.Scan(&h.Symbol, &h.Name, &h.AssetType, &h.Quantity, &h.Value); err != nil {
			return fmt.Errorf("scan holding: %w", err)
		}
		snap.Holdings = append(snap.Holdings, h)
	}
	return rows.Err()
}

func (s *Store) loadTransactions(ctx context.Context, userID string, snap *finctx.Snapshot) error {
	rows, err := s.db.Query(ctx, `
		SELECT id, account_id, description, category, amount, posted_at
		FROM transactions WHERE user_id = $1
		ORDER BY posted_at DESC
		LIMIT $2`, userID, recentTransactionLimit)
	if err != nil {
		return fmt.Errorf("get transactions: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var t finctx.Transaction
		if err := rows.Scan(&t.ID, &t.AccountID, &t.Description, &t.Category, &t.Amount, &t.PostedAt); err != nil {
			return fmt.Errorf("scan transaction: %w", err)
		}
		snap.RecentTransactions = append(snap.RecentTransactions, t)
	}
	return rows.Err()
}

// profileFromMemory parses stored memory field strings into the typed
// profile. Unparseable values are left nil; the rule engine treats nil
// as a missing input.
func profileFromMemory(mem map[string]string) finctx.Profile {
	var p finctx.Profile
	p.Age = intField(mem, "age")
	p.Dependents = intField(mem, "dependents")
	p.EmergencyFundTargetMonths = intField(mem, "emergency_fund_target_months")
	p.MonthlyIncome = floatField(mem, "monthly_income")
	p.MonthlyExpenses = floatField(mem, "monthly_expenses")
	p.HousingCost = floatField(mem, "housing_cost")
	p.MonthlySavings = floatField(mem, "monthly_savings")
	p.MonthlyDebtPayments = floatField(mem, "monthly_debt_payments")
	p.RetirementContribution = floatField(mem, "retirement_contribution")
	p.SavingsRateTarget = floatField(mem, "savings_rate_target")
	p.RiskTolerance = mem["risk_tolerance"]
	p.FilingStatus = mem["filing_status"]
	return p
}

func intField(mem map[string]string, key string) *int {
	raw, ok := mem[key]
	if !ok {
		return nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return nil
	}
	return &n
}

func floatField(mem map[string]string, key string) *float64 {
	raw, ok := mem[key]
	if !ok {
		return nil
	}
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return nil
	}
	return &f
}
