// Package calc implements the deterministic financial calculators
// exposed through the calculate tool.
package calc

import (
	"fmt"
	"math"
)

// Calculator names.
const (
	CompoundGrowth = "compound_growth"
	LoanPayment    = "loan_payment"
	RetirementGap  = "retirement_gap"
	SavingsGoal    = "savings_goal"
)

// savingsGoalMaxMonths caps the savings-goal simulation so it always
// terminates even when contributions can never reach the goal.
const savingsGoalMaxMonths = 600

// InputError reports a bad calculator name or invalid numeric input.
// The dispatcher returns it inside the tool result so the model can
// self-correct.
type InputError struct {
	Msg string
}

func (e *InputError) Error() string { return e.Msg }

// Run executes the named calculator with named numeric inputs.
func Run(name string, inputs map[string]float64) (map[string]any, error) {
	switch name {
	case CompoundGrowth:
		return compoundGrowth(inputs)
	case LoanPayment:
		return loanPayment(inputs)
	case RetirementGap:
		return retirementGap(inputs)
	case SavingsGoal:
		return savingsGoal(inputs)
	default:
		return nil, &InputError{Msg: fmt.Sprintf("unknown calculator %q; expected one of %s, %s, %s, %s",
			name, CompoundGrowth, LoanPayment, RetirementGap, SavingsGoal)}
	}
}

func require(inputs map[string]float64, keys ...string) error {
	for _, k := range keys {
		if _, ok := inputs[k]; !ok {
			return &InputError{Msg: "missing required input " + k}
		}
	}
	return nil
}

func nonNegative(inputs map[string]float64, keys ...string) error {
	for _, k := range keys {
		if v, ok := inputs[k]; ok && v < 0 {
			return &InputError{Msg: fmt.Sprintf("input %s must not be negative, got %v", k, v)}
		}
	}
	return nil
}

func compoundGrowth(inputs map[string]float64) (map[string]any, error) {
	if err := require(inputs, "principal", "monthly_contribution", "annual_rate", "years"); err != nil {
		return nil, err
	}
	if err := nonNegative(inputs, "principal", "monthly_contribution", "annual_rate"); err != nil {
		return nil, err
	}
	years := inputs["years"]
	if years <= 0 {
		return nil, &InputError{Msg: "input years must be positive"}
	}

	monthlyRate := inputs["annual_rate"] / 100 / 12
	months := int(math.Round(years * 12))
	balance := inputs["principal"]
	for m := 0; m < months; m++ {
		balance = balance*(1+monthlyRate) + inputs["monthly_contribution"]
	}
	contributions := inputs["principal"] + inputs["monthly_contribution"]*float64(months)
	return map[string]any{
		"future_value":        round2(balance),
		"total_contributions": round2(contributions),
		"total_growth":        round2(balance - contributions),
		"months":              months,
	}, nil
}

func loanPayment(inputs map[string]float64) (map[string]any, error) {
	if err := require(inputs, "principal", "annual_rate", "years"); err != nil {
		return nil, err
	}
	if err := nonNegative(inputs, "annual_rate"); err != nil {
		return nil, err
	}
	principal := inputs["principal"]
	years := inputs["years"]
	if principal <= 0 || years <= 0 {
		return nil, &InputError{Msg: "principal and years must be positive"}
	}

	months := years * 12
	monthlyRate := inputs["annual_rate"] / 100 / 12
	var payment float64
	if monthlyRate == 0 {
		payment = principal / months
	} else {
		factor := math.Pow(1+monthlyRate, months)
		payment = principal * monthlyRate * factor / (factor - 1)
	}
	total := payment * months
	return map[string]any{
		"monthly_payment": round2(payment),
		"total_paid":      round2(total),
		"total_interest":  round2(total - principal),
	}, nil
}

func retirementGap(inputs map[string]float64) (map[string]any, error) {
	if err := require(inputs, "current_savings", "monthly_contribution", "annual_rate", "years_to_retirement", "target"); err != nil {
		return nil, err
	}
	if err := nonNegative(inputs, "current_savings", "monthly_contribution", "annual_rate", "years_to_retirement", "target"); err != nil {
		return nil, err
	}

	monthlyRate := inputs["annual_rate"] / 100 / 12
	months := int(math.Round(inputs["years_to_retirement"] * 12))
	balance := inputs["current_savings"]
	for m := 0; m < months; m++ {
		balance = balance*(1+monthlyRate) + inputs["monthly_contribution"]
	}
	gap := inputs["target"] - balance
	if gap < 0 {
		gap = 0
	}
	return map[string]any{
		"projected_savings": round2(balance),
		"target":            inputs["target"],
		"gap":               round2(gap),
		"on_track":          gap == 0,
	}, nil
}

func savingsGoal(inputs map[string]float64) (map[string]any, error) {
	if err := require(inputs, "goal", "current", "monthly_contribution", "annual_rate"); err != nil {
		return nil, err
	}
	if err := nonNegative(inputs, "goal", "current", "monthly_contribution", "annual_rate"); err != nil {
		return nil, err
	}
	goal := inputs["goal"]
	if goal <= 0 {
		return nil, &InputError{Msg: "input goal must be positive"}
	}

	monthlyRate := inputs["annual_rate"] / 100 / 12
	balance := inputs["current"]
	if balance >= goal {
		return map[string]any{
			"months_to_goal": 0,
			"reachable":      true,
			"final_balance":  round2(balance),
		}, nil
	}
	for month := 1; month <= savingsGoalMaxMonths; month++ {
		balance = balance*(1+monthlyRate) + inputs["monthly_contribution"]
		if balance >= goal {
			return map[string]any{
				"months_to_goal": month,
				"reachable":      true,
				"final_balance":  round2(balance),
			}, nil
		}
	}
	return map[string]any{
		"months_to_goal": nil,
		"reachable":      false,
		"final_balance":  round2(balance),
	}, nil
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
