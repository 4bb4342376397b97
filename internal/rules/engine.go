// Package rules runs the deterministic financial-health checks and the
// data-freshness evaluation that back every advisory decision trace.
// Everything here is a pure function over a finctx.Snapshot: a check
// whose inputs are missing degrades to an assumption, never an error.
package rules

import (
	"fmt"

	"github.com/meridianfi/meridian/internal/finctx"
)

// RuleCheck is the recorded outcome of one health check.
type RuleCheck struct {
	Name   string `json:"name"`
	Passed bool   `json:"passed"`
	Detail string `json:"detail"`
}

// Evaluation is the combined output of one rule-engine run.
type Evaluation struct {
	RulesApplied []RuleCheck `json:"rules_applied"`
	Insights     []string    `json:"insights"`
	Assumptions  []string    `json:"assumptions"`
}

// Thresholds the checks compare against.
const (
	emergencyFundDefaultMonths = 3
	highInterestRateThreshold  = 8.0  // percent APR
	debtToIncomeMax            = 0.36 // front+back end blended ceiling
	retirementRateMin          = 0.10
	concentrationMax           = 0.25 // share of portfolio in one position
	taxAdvantagedMixMin        = 0.50
	housingRatioMax            = 0.30
)

// Evaluate runs the full battery of checks against the snapshot.
func Evaluate(snap *finctx.Snapshot) Evaluation {
	var ev Evaluation
	if snap == nil {
		ev.Assumptions = append(ev.Assumptions, "no financial snapshot available; all checks skipped")
		return ev
	}

	checks := []func(*finctx.Snapshot, *Evaluation){
		checkEmergencyFund,
		checkHighInterestDebt,
		checkDebtToIncome,
		checkRetirementRate,
		checkSavingsRate,
		checkConcentration,
		checkTaxAdvantagedMix,
		checkHousingRatio,
		checkNetWorth,
	}
	for _, check := range checks {
		check(snap, &ev)
	}
	return ev
}

func checkEmergencyFund(snap *finctx.Snapshot, ev *Evaluation) {
	if snap.Profile.MonthlyExpenses == nil || *snap.Profile.MonthlyExpenses <= 0 {
		ev.Assumptions = append(ev.Assumptions, "monthly expenses unknown; emergency fund runway not assessed")
		return
	}
	target := emergencyFundDefaultMonths
	if snap.Profile.EmergencyFundTargetMonths != nil && *snap.Profile.EmergencyFundTargetMonths > 0 {
		target = *snap.Profile.EmergencyFundTargetMonths
	}
	runway := snap.TotalCash() / *snap.Profile.MonthlyExpenses
	passed := runway >= float64(target)
	ev.RulesApplied = append(ev.RulesApplied, RuleCheck{
		Name:   "emergency_fund_runway",
		Passed: passed,
		Detail: fmt.Sprintf("%.1f months of expenses in cash (target %d)", runway, target),
	})
	if !passed {
		ev.Insights = append(ev.Insights,
			fmt.Sprintf("Emergency fund covers %.1f months of expenses; aim for at least %d.", runway, target))
	}
}

func checkHighInterestDebt(snap *finctx.Snapshot, ev *Evaluation) {
	if len(snap.Accounts.Debt) == 0 {
		ev.RulesApplied = append(ev.RulesApplied, RuleCheck{
			Name:   "high_interest_debt",
			Passed: true,
			Detail: "no debt accounts linked",
		})
		return
	}
	rated := false
	var worst finctx.Account
	for _, a := range snap.Accounts.Debt {
		if a.InterestRate == nil {
			continue
		}
		rated = true
		if worst.InterestRate == nil || *a.InterestRate > *worst.InterestRate {
			worst = a
		}
	}
	if !rated {
		ev.Assumptions = append(ev.Assumptions, "debt interest rates unknown; high-interest debt not assessed")
		return
	}
	flagged := *worst.InterestRate > highInterestRateThreshold
	ev.RulesApplied = append(ev.RulesApplied, RuleCheck{
		Name:   "high_interest_debt",
		Passed: !flagged,
		Detail: fmt.Sprintf("highest debt APR %.1f%% (%s)", *worst.InterestRate, worst.Name),
	})
	if flagged {
		ev.Insights = append(ev.Insights,
			fmt.Sprintf("%s carries %.1f%% APR; paying it down likely beats most investment returns.", worst.Name, *worst.InterestRate))
	}
}

func checkDebtToIncome(snap *finctx.Snapshot, ev *Evaluation) {
	if snap.Profile.MonthlyIncome == nil || *snap.Profile.MonthlyIncome <= 0 ||
		snap.Profile.MonthlyDebtPayments == nil {
		ev.Assumptions = append(ev.Assumptions, "income or debt payments unknown; debt-to-income ratio not assessed")
		return
	}
	ratio := *snap.Profile.MonthlyDebtPayments / *snap.Profile.MonthlyIncome
	passed := ratio <= debtToIncomeMax
	ev.RulesApplied = append(ev.RulesApplied, RuleCheck{
		Name:   "debt_to_income",
		Passed: passed,
		Detail: fmt.Sprintf("DTI %.0f%% (ceiling %.0f%%)", ratio*100, debtToIncomeMax*100),
	})
	if !passed {
		ev.Insights = append(ev.Insights,
			fmt.Sprintf("Debt payments consume %.0f%% of income, above the %.0f%% guideline.", ratio*100, debtToIncomeMax*100))
	}
}

func checkRetirementRate(snap *finctx.Snapshot, ev *Evaluation) {
	if snap.Profile.MonthlyIncome == nil || *snap.Profile.MonthlyIncome <= 0 ||
		snap.Profile.RetirementContribution == nil {
		ev.Assumptions = append(ev.Assumptions, "retirement contribution unknown; retirement savings rate not assessed")
		return
	}
	rate := *snap.Profile.RetirementContribution / *snap.Profile.MonthlyIncome
	passed := rate >= retirementRateMin
	ev.RulesApplied = append(ev.RulesApplied, RuleCheck{
		Name:   "retirement_savings_rate",
		Passed: passed,
		Detail: fmt.Sprintf("%.0f%% of income toward retirement (floor %.0f%%)", rate*100, retirementRateMin*100),
	})
	if !passed {
		ev.Insights = append(ev.Insights,
			fmt.Sprintf("Retirement savings rate is %.0f%%; the common guideline is at least %.0f%% of income.", rate*100, retirementRateMin*100))
	}
}

func checkSavingsRate(snap *finctx.Snapshot, ev *Evaluation) {
	if snap.Profile.MonthlyIncome == nil || *snap.Profile.MonthlyIncome <= 0 ||
		snap.Profile.MonthlySavings == nil || snap.Profile.SavingsRateTarget == nil {
		ev.Assumptions = append(ev.Assumptions, "savings amount or target unknown; savings rate vs target not assessed")
		return
	}
	rate := *snap.Profile.MonthlySavings / *snap.Profile.MonthlyIncome * 100
	target := *snap.Profile.SavingsRateTarget
	passed := rate >= target
	ev.RulesApplied = append(ev.RulesApplied, RuleCheck{
		Name:   "savings_rate_vs_target",
		Passed: passed,
		Detail: fmt.Sprintf("saving %.0f%% of income against a %.0f%% target", rate, target),
	})
	if !passed {
		ev.Insights = append(ev.Insights,
			fmt.Sprintf("Current savings rate %.0f%% is below the stated %.0f%% target.", rate, target))
	}
}

func checkConcentration(snap *finctx.Snapshot, ev *Evaluation) {
	if len(snap.Holdings) == 0 {
		ev.Assumptions = append(ev.Assumptions, "no holdings synced; portfolio concentration not assessed")
		return
	}
	var total float64
	top := snap.Holdings[0]
	for _, h := range snap.Holdings {
		total += h.Value
		if h.Value > top.Value {
			top = h
		}
	}
	if total <= 0 {
		ev.Assumptions = append(ev.Assumptions, "holdings have no market value; portfolio concentration not assessed")
		return
	}
	share := top.Value / total
	passed := share <= concentrationMax
	ev.RulesApplied = append(ev.RulesApplied, RuleCheck{
		Name:   "portfolio_concentration",
		Passed: passed,
		Detail: fmt.Sprintf("largest position %s is %.0f%% of portfolio (ceiling %.0f%%)", top.Symbol, share*100, concentrationMax*100),
	})
	if !passed {
		ev.Insights = append(ev.Insights,
			fmt.Sprintf("%s makes up %.0f%% of the portfolio; consider diversifying.", top.Symbol, share*100))
	}
}

func checkTaxAdvantagedMix(snap *finctx.Snapshot, ev *Evaluation) {
	total := snap.TotalInvestments()
	if total <= 0 {
		ev.Assumptions = append(ev.Assumptions, "no investment balances; tax-advantaged mix not assessed")
		return
	}
	var advantaged float64
	for _, a := range snap.Accounts.Investment {
		if a.TaxAdvantaged {
			advantaged += a.Balance
		}
	}
	share := advantaged / total
	passed := share >= taxAdvantagedMixMin
	ev.RulesApplied = append(ev.RulesApplied, RuleCheck{
		Name:   "tax_advantaged_mix",
		Passed: passed,
		Detail: fmt.Sprintf("%.0f%% of investments in tax-advantaged accounts (floor %.0f%%)", share*100, taxAdvantagedMixMin*100),
	})
	if !passed {
		ev.Insights = append(ev.Insights,
			fmt.Sprintf("Only %.0f%% of investments sit in tax-advantaged accounts; prioritize 401(k)/IRA space.", share*100))
	}
}

func checkHousingRatio(snap *finctx.Snapshot, ev *Evaluation) {
	if snap.Profile.MonthlyIncome == nil || *snap.Profile.MonthlyIncome <= 0 ||
		snap.Profile.HousingCost == nil {
		ev.Assumptions = append(ev.Assumptions, "housing cost or income unknown; housing ratio not assessed")
		return
	}
	ratio := *snap.Profile.HousingCost / *snap.Profile.MonthlyIncome
	passed := ratio <= housingRatioMax
	ev.RulesApplied = append(ev.RulesApplied, RuleCheck{
		Name:   "housing_cost_ratio",
		Passed: passed,
		Detail: fmt.Sprintf("housing is %.0f%% of income (ceiling %.0f%%)", ratio*100, housingRatioMax*100),
	})
	if !passed {
		ev.Insights = append(ev.Insights,
			fmt.Sprintf("Housing costs take %.0f%% of income, above the %.0f%% guideline.", ratio*100, housingRatioMax*100))
	}
}

func checkNetWorth(snap *finctx.Snapshot, ev *Evaluation) {
	if len(snap.Accounts.Cash)+len(snap.Accounts.Investment)+len(snap.Accounts.Debt) == 0 {
		ev.Assumptions = append(ev.Assumptions, "no accounts linked; net worth not assessed")
		return
	}
	nw := snap.NetWorth()
	passed := nw >= 0
	ev.RulesApplied = append(ev.RulesApplied, RuleCheck{
		Name:   "negative_net_worth",
		Passed: passed,
		Detail: fmt.Sprintf("net worth $%.0f", nw),
	})
	if !passed {
		ev.Insights = append(ev.Insights,
			"Net worth is negative; focus on debt reduction before discretionary investing.")
	}
}
