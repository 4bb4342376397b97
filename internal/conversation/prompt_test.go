package conversation

import (
	"strings"
	"testing"
)

func TestKnownSkill(t *testing.T) {
	for _, skill := range []string{"retirement", "debt_paydown", "tax_planning", "budgeting"} {
		if !KnownSkill(skill) {
			t.Errorf("skill %s not known", skill)
		}
	}
	if KnownSkill("day_trading") {
		t.Error("day_trading should not be a known skill")
	}
	if KnownSkill("") {
		t.Error("empty skill should not be known")
	}
}

func TestSystemPromptIncludesSkillFragment(t *testing.T) {
	plain := SystemPrompt("")
	skilled := SystemPrompt("debt_paydown")

	if !strings.HasPrefix(skilled, plain) {
		t.Error("skill prompt should extend the base prompt")
	}
	if !strings.Contains(skilled, "loan_payment") {
		t.Error("debt_paydown prompt should mention the loan_payment calculator")
	}
	if strings.Contains(plain, "loan_payment") {
		t.Error("base prompt should not carry skill fragments")
	}
}

func TestSkillsListsAll(t *testing.T) {
	skills := Skills()
	if len(skills) != 4 {
		t.Fatalf("got %d skills, want 4", len(skills))
	}
	for _, s := range skills {
		if !KnownSkill(s) {
			t.Errorf("listed skill %s not known", s)
		}
	}
}
