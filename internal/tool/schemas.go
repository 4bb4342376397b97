package tool

import (
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v6"

	"github.com/meridianfi/meridian/internal/memory"
	"github.com/meridianfi/meridian/internal/model"
)

// Name identifies one of the fixed tools. The dispatcher switches over
// this closed set exhaustively; a name outside it is a model error
// reported in-band.
type Name string

const (
	NameGetFinancialContext  Name = "get_financial_context"
	NameUpdateMemory         Name = "update_memory"
	NameCreateRecommendation Name = "create_recommendation"
	NameGetPortfolioMetrics  Name = "get_portfolio_metrics"
	NameCalculate            Name = "calculate"
	NameAskUser              Name = "ask_user"
)

// definitions is the tool schema contract between the dispatcher and
// the model. Names and input keys are fixed protocol; do not rename.
func definitions() []model.ToolSchema {
	return []model.ToolSchema{
		{
			Name:        string(NameGetFinancialContext),
			Description: "Get the user's current financial context snapshot: profile, accounts, holdings, recent transactions, and data freshness.",
			InputSchema: map[string]any{
				"type":       "object",
				"properties": map[string]any{},
			},
		},
		{
			Name:        string(NameUpdateMemory),
			Description: fmt.Sprintf("Update one field of the user's financial memory. Writable fields: %v.", memory.FieldNames()),
			InputSchema: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"field_name": map[string]any{"type": "string", "description": "Memory field to update"},
					"value":      map[string]any{"type": "string", "description": "New value, as a string"},
					"reason":     map[string]any{"type": "string", "description": "Why the field is being updated"},
				},
				"required": []any{"field_name", "value", "reason"},
			},
		},
		{
			Name:        string(NameCreateRecommendation),
			Description: "Create a recommendation for the user. If details embed an action with a type and amount, it is validated against the user's action policy first.",
			InputSchema: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"title":   map[string]any{"type": "string"},
					"summary": map[string]any{"type": "string"},
					"details": map[string]any{"type": "object", "description": "Structured details; may embed {action: {type, amount, ...}}"},
					"rationale": map[string]any{
						"type":  "array",
						"items": map[string]any{"type": "string"},
					},
					"data_used": map[string]any{
						"type":  "array",
						"items": map[string]any{"type": "string"},
					},
					"freshness_summary": map[string]any{"type": "string"},
					"warnings": map[string]any{
						"type":  "array",
						"items": map[string]any{"type": "string"},
					},
					"trace": map[string]any{
						"type": "array",
						"items": map[string]any{
							"type": "object",
							"properties": map[string]any{
								"step":   map[string]any{"type": "string"},
								"detail": map[string]any{"type": "string"},
							},
							"required": []any{"step"},
						},
					},
					"confidence": map[string]any{"type": "string"},
				},
				"required": []any{"title", "summary"},
			},
		},
		{
			Name:        string(NameGetPortfolioMetrics),
			Description: "Compute portfolio metrics from current holdings: net worth, allocation by asset type, and top holdings.",
			InputSchema: map[string]any{
				"type":       "object",
				"properties": map[string]any{},
			},
		},
		{
			Name:        string(NameCalculate),
			Description: "Run a deterministic financial calculator: compound_growth, loan_payment, retirement_gap, or savings_goal.",
			InputSchema: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"calculator": map[string]any{"type": "string", "description": "Calculator name"},
					"inputs": map[string]any{
						"type":                 "object",
						"additionalProperties": map[string]any{"type": "number"},
						"description":          "Named numeric inputs for the calculator",
					},
				},
				"required": []any{"calculator", "inputs"},
			},
		},
		{
			Name:        string(NameAskUser),
			Description: "Ask the user a clarifying question. Has no side effect.",
			InputSchema: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"question": map[string]any{"type": "string"},
					"options": map[string]any{
						"type":  "array",
						"items": map[string]any{"type": "string"},
					},
				},
				"required": []any{"question"},
			},
		},
	}
}

// compileSchemas compiles every tool's input schema once at
// construction so each dispatch validates against a prebuilt schema.
func compileSchemas(defs []model.ToolSchema) (map[Name]*jsonschema.Schema, error) {
	out := make(map[Name]*jsonschema.Schema, len(defs))
	for _, def := range defs {
		c := jsonschema.NewCompiler()
		url := def.Name + ".json"
		if err := c.AddResource(url, def.InputSchema); err != nil {
			return nil, fmt.Errorf("add schema %s: %w", def.Name, err)
		}
		sch, err := c.Compile(url)
		if err != nil {
			return nil, fmt.Errorf("compile schema %s: %w", def.Name, err)
		}
		out[Name(def.Name)] = sch
	}
	return out, nil
}
