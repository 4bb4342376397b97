package conversation

import "strings"

const basePrompt = `You are Meridian, a careful financial advisory assistant.
You have tools for reading the user's financial context, updating their
financial memory, running calculators, computing portfolio metrics,
creating recommendations, and asking clarifying questions.
Ground every figure in tool output; never invent account data.
Propose consequential financial actions only through create_recommendation
so they pass the user's action policy.`

// skillPrompts customize the system prompt per session skill tag.
var skillPrompts = map[string]string{
	"retirement": "Focus on retirement readiness: contribution rates, tax-advantaged space, and the retirement_gap calculator.",
	"debt_paydown": "Focus on debt elimination: interest rates, payoff ordering, and the loan_payment calculator. " +
		"Flag high-interest balances before discussing investments.",
	"tax_planning": "Focus on tax posture: filing status, tax-advantaged account mix, and contribution headroom.",
	"budgeting": "Focus on cash flow: income versus expenses, savings rate against target, and emergency fund runway. " +
		"Use the savings_goal calculator for targets.",
}

// KnownSkill reports whether the skill tag has a behavioral profile.
func KnownSkill(skill string) bool {
	_, ok := skillPrompts[skill]
	return ok
}

// Skills lists the available skill tags.
func Skills() []string {
	out := make([]string, 0, len(skillPrompts))
	for name := range skillPrompts {
		out = append(out, name)
	}
	return out
}

// SystemPrompt composes the system prompt for a session.
func SystemPrompt(skill string) string {
	var b strings.Builder
	b.WriteString(basePrompt)
	if fragment, ok := skillPrompts[skill]; ok {
		b.WriteString("\n\n")
		b.WriteString(fragment)
	}
	return b.String()
}
