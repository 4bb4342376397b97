package rules

import (
	"testing"

	"github.com/meridianfi/meridian/internal/finctx"
)

func f(v float64) *float64 { return &v }
func i(v int) *int         { return &v }

// fullSnapshot has every input present so all nine checks run.
func fullSnapshot() *finctx.Snapshot {
	return &finctx.Snapshot{
		UserID: "u1",
		Profile: finctx.Profile{
			MonthlyIncome:             f(8000),
			MonthlyExpenses:           f(5000),
			HousingCost:               f(2000),
			MonthlySavings:            f(1600),
			MonthlyDebtPayments:       f(1000),
			RetirementContribution:    f(900),
			SavingsRateTarget:         f(20),
			EmergencyFundTargetMonths: i(3),
		},
		Accounts: finctx.AccountGroups{
			Cash: []finctx.Account{
				{ID: "c1", Name: "Checking", Type: finctx.AccountCash, Balance: 18000},
			},
			Investment: []finctx.Account{
				{ID: "i1", Name: "401k", Type: finctx.AccountInvestment, Balance: 60000, TaxAdvantaged: true},
				{ID: "i2", Name: "Brokerage", Type: finctx.AccountInvestment, Balance: 40000},
			},
			Debt: []finctx.Account{
				{ID: "d1", Name: "Car loan", Type: finctx.AccountDebt, Balance: 12000, InterestRate: f(5.5)},
			},
		},
		Holdings: []finctx.Holding{
			{Symbol: "VTI", Value: 50000},
			{Symbol: "BND", Value: 30000},
			{Symbol: "VXUS", Value: 20000},
		},
	}
}

func checkByName(ev Evaluation, name string) (RuleCheck, bool) {
	for _, c := range ev.RulesApplied {
		if c.Name == name {
			return c, true
		}
	}
	return RuleCheck{}, false
}

func TestEvaluateAllChecksRun(t *testing.T) {
	ev := Evaluate(fullSnapshot())

	if len(ev.RulesApplied) != 9 {
		t.Fatalf("got %d checks, want 9: %+v", len(ev.RulesApplied), ev.RulesApplied)
	}
	if len(ev.Assumptions) != 0 {
		t.Errorf("got assumptions %v, want none", ev.Assumptions)
	}

	wantPassed := map[string]bool{
		"emergency_fund_runway":   true,  // 3.6 months vs 3 target
		"high_interest_debt":      true,  // 5.5% below 8%
		"debt_to_income":          true,  // 12.5% vs 36%
		"retirement_savings_rate": true,  // 11.25% vs 10%
		"savings_rate_vs_target":  true,  // 20% vs 20%
		"portfolio_concentration": false, // VTI is 50% of portfolio
		"tax_advantaged_mix":      true,  // 60% vs 50%
		"housing_cost_ratio":      true,  // 25% vs 30%
		"negative_net_worth":      true,
	}
	for name, want := range wantPassed {
		c, ok := checkByName(ev, name)
		if !ok {
			t.Errorf("check %s missing", name)
			continue
		}
		if c.Passed != want {
			t.Errorf("check %s: got passed=%v, want %v (%s)", name, c.Passed, want, c.Detail)
		}
	}
}

func TestEvaluateConcentrationInsight(t *testing.T) {
	ev := Evaluate(fullSnapshot())
	found := false
	for _, ins := range ev.Insights {
		if len(ins) > 0 {
			found = true
		}
	}
	if !found {
		t.Error("expected an insight for the concentrated position")
	}
}

func TestEvaluateMissingInputsBecomeAssumptions(t *testing.T) {
	snap := &finctx.Snapshot{UserID: "u1"}
	ev := Evaluate(snap)

	// With an empty profile and no accounts, only the vacuous
	// no-debt check runs; everything else degrades to assumptions.
	if len(ev.RulesApplied) != 1 {
		t.Errorf("got %d checks, want 1: %+v", len(ev.RulesApplied), ev.RulesApplied)
	}
	if c, ok := checkByName(ev, "high_interest_debt"); !ok || !c.Passed {
		t.Errorf("expected passing high_interest_debt check, got %+v", ev.RulesApplied)
	}
	if len(ev.Assumptions) == 0 {
		t.Fatal("expected assumptions for missing inputs")
	}
}

func TestEvaluateHighInterestDebtFlagged(t *testing.T) {
	snap := fullSnapshot()
	snap.Accounts.Debt = append(snap.Accounts.Debt, finctx.Account{
		ID: "d2", Name: "Credit card", Type: finctx.AccountDebt, Balance: 4000, InterestRate: f(22.9),
	})
	ev := Evaluate(snap)

	c, ok := checkByName(ev, "high_interest_debt")
	if !ok {
		t.Fatal("high_interest_debt check missing")
	}
	if c.Passed {
		t.Errorf("expected 22.9%% APR to fail the check: %s", c.Detail)
	}
}

func TestEvaluateDebtWithoutRatesIsAssumption(t *testing.T) {
	snap := fullSnapshot()
	snap.Accounts.Debt = []finctx.Account{
		{ID: "d1", Name: "Loan", Type: finctx.AccountDebt, Balance: 5000},
	}
	ev := Evaluate(snap)

	if _, ok := checkByName(ev, "high_interest_debt"); ok {
		t.Error("expected no high_interest_debt check when rates are unknown")
	}
	if len(ev.Assumptions) == 0 {
		t.Error("expected an assumption about unknown rates")
	}
}

func TestEvaluateNegativeNetWorth(t *testing.T) {
	snap := fullSnapshot()
	snap.Accounts.Debt[0].Balance = 200000
	ev := Evaluate(snap)

	c, ok := checkByName(ev, "negative_net_worth")
	if !ok {
		t.Fatal("negative_net_worth check missing")
	}
	if c.Passed {
		t.Errorf("expected negative net worth to fail: %s", c.Detail)
	}
}

func TestEvaluateNilSnapshot(t *testing.T) {
	ev := Evaluate(nil)
	if len(ev.RulesApplied) != 0 || len(ev.Assumptions) != 1 {
		t.Errorf("got %d checks and %d assumptions, want 0 and 1", len(ev.RulesApplied), len(ev.Assumptions))
	}
}
