// Package tool routes tool invocations from the model to their
// handlers. The tool set is closed: six named tools with strict input
// contracts, validated against compiled JSON Schemas before dispatch.
// Validation and policy failures are returned inside the tool result
// so the model can see them and self-correct; only infrastructure
// failures propagate as errors.
package tool

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/santhosh-tekuri/jsonschema/v6"
	"go.uber.org/zap"

	"github.com/meridianfi/meridian/internal/calc"
	"github.com/meridianfi/meridian/internal/finctx"
	"github.com/meridianfi/meridian/internal/memory"
	"github.com/meridianfi/meridian/internal/model"
	"github.com/meridianfi/meridian/internal/policy"
	"github.com/meridianfi/meridian/internal/recommend"
	"github.com/meridianfi/meridian/internal/rules"
	"github.com/meridianfi/meridian/internal/trace"
)

// Outcome is the result of one tool dispatch. Result is the JSON
// payload placed in the tool_result block.
type Outcome struct {
	Result                string
	IsError               bool
	RecommendationCreated bool
}

// Dispatcher composes the policy gate, trace recorder, rule engine and
// freshness evaluator behind the tool contract.
type Dispatcher struct {
	builder         finctx.Builder
	memory          *memory.Service
	recs            recommend.Store
	gate            *policy.Gate
	recorder        *trace.Recorder
	freshnessMaxAge time.Duration
	schemas         map[Name]*jsonschema.Schema
	defs            []model.ToolSchema
	logger          *zap.Logger
}

// NewDispatcher wires the dispatcher and compiles all tool input
// schemas.
func NewDispatcher(
	builder finctx.Builder,
	mem *memory.Service,
	recs recommend.Store,
	gate *policy.Gate,
	recorder *trace.Recorder,
	freshnessMaxAge time.Duration,
	logger *zap.Logger,
) (*Dispatcher, error) {
	defs := definitions()
	schemas, err := compileSchemas(defs)
	if err != nil {
		return nil, fmt.Errorf("compile tool schemas: %w", err)
	}
	return &Dispatcher{
		builder:         builder,
		memory:          mem,
		recs:            recs,
		gate:            gate,
		recorder:        recorder,
		freshnessMaxAge: freshnessMaxAge,
		schemas:         schemas,
		defs:            defs,
		logger:          logger,
	}, nil
}

// Definitions returns the tool schemas offered to the model.
func (d *Dispatcher) Definitions() []model.ToolSchema { return d.defs }

// Dispatch executes one tool_use block. A returned error is an
// infrastructure failure; everything the model did wrong comes back
// in-band in the Outcome.
func (d *Dispatcher) Dispatch(ctx context.Context, userID, sessionID, skill string, block model.ContentBlock) (*Outcome, error) {
	name := Name(block.Name)
	input := block.Input
	if len(input) == 0 {
		input = json.RawMessage(`{}`)
	}

	sch, known := d.schemas[name]
	if !known {
		return inBandError("validation_error", fmt.Sprintf("unknown tool %q", block.Name), ""), nil
	}
	var parsed any
	if err := json.Unmarshal(input, &parsed); err != nil {
		return inBandError("validation_error", "tool input is not valid JSON: "+err.Error(), ""), nil
	}
	if err := sch.Validate(parsed); err != nil {
		return inBandError("validation_error", fmt.Sprintf("invalid input for %s: %v", name, err), ""), nil
	}

	switch name {
	case NameGetFinancialContext:
		return d.getFinancialContext(ctx, userID)
	case NameUpdateMemory:
		return d.updateMemory(ctx, userID, input)
	case NameCreateRecommendation:
		return d.createRecommendation(ctx, userID, sessionID, skill, input)
	case NameGetPortfolioMetrics:
		return d.getPortfolioMetrics(ctx, userID)
	case NameCalculate:
		return d.calculate(input)
	case NameAskUser:
		return d.askUser(input)
	}
	// Unreachable: every schema key is matched above.
	return inBandError("validation_error", fmt.Sprintf("unknown tool %q", block.Name), ""), nil
}

func (d *Dispatcher) getFinancialContext(ctx context.Context, userID string) (*Outcome, error) {
	snap, err := d.builder.Build(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("build context: %w", err)
	}
	return jsonOutcome(snap)
}

func (d *Dispatcher) updateMemory(ctx context.Context, userID string, input json.RawMessage) (*Outcome, error) {
	var in struct {
		FieldName string `json:"field_name"`
		Value     string `json:"value"`
		Reason    string `json:"reason"`
	}
	if err := json.Unmarshal(input, &in); err != nil {
		return inBandError("validation_error", "parse update_memory input: "+err.Error(), ""), nil
	}
	res, err := d.memory.Update(ctx, userID, in.FieldName, in.Value, in.Reason)
	if err != nil {
		var fe *memory.FieldError
		if errors.As(err, &fe) {
			return inBandError("validation_error", fe.Error(), ""), nil
		}
		return nil, err
	}
	return jsonOutcome(res)
}

func (d *Dispatcher) createRecommendation(ctx context.Context, userID, sessionID, skill string, input json.RawMessage) (*Outcome, error) {
	var in struct {
		Title            string                `json:"title"`
		Summary          string                `json:"summary"`
		Details          map[string]any        `json:"details"`
		Rationale        []string              `json:"rationale"`
		DataUsed         []string              `json:"data_used"`
		FreshnessSummary string                `json:"freshness_summary"`
		Warnings         []string              `json:"warnings"`
		Trace            []trace.ReasoningStep `json:"trace"`
		Confidence       string                `json:"confidence"`
	}
	if err := json.Unmarshal(input, &in); err != nil {
		return inBandError("validation_error", "parse create_recommendation input: "+err.Error(), ""), nil
	}

	// Gate any embedded action before anything is persisted.
	if actionType, amount, payload, ok := embeddedAction(in.Details); ok {
		if err := d.gate.ValidateAction(ctx, userID, actionType, amount, payload); err != nil {
			var v *policy.Violation
			if errors.As(err, &v) {
				return inBandError("policy_violation", v.Message, v.ApprovalID), nil
			}
			return nil, err
		}
	}

	snap, err := d.builder.Build(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("build context: %w", err)
	}
	fres := rules.EvaluateFreshness(snap, d.freshnessMaxAge, time.Now())

	var details json.RawMessage
	if in.Details != nil {
		details, err = json.Marshal(in.Details)
		if err != nil {
			return nil, fmt.Errorf("marshal details: %w", err)
		}
	}
	rec := &recommend.Recommendation{
		ID:        uuid.New().String(),
		SessionID: sessionID,
		UserID:    userID,
		Skill:     skill,
		Title:     in.Title,
		Summary:   in.Summary,
		Details:   details,
		Status:    recommend.StatusPending,
		CreatedAt: time.Now().UTC(),
	}
	if err := d.recs.InsertRecommendation(ctx, rec); err != nil {
		return nil, fmt.Errorf("insert recommendation: %w", err)
	}

	// Trace payload defaults fill in only where the model didn't
	// already supply a value; explicit values always win.
	steps := in.Trace
	if len(steps) == 0 {
		steps = []trace.ReasoningStep{
			{Step: "evaluated_context", Detail: "built financial snapshot"},
			{Step: "created_recommendation", Detail: in.Title},
		}
	}
	dataUsed := in.DataUsed
	if len(dataUsed) == 0 {
		dataUsed = []string{"profile", "accounts", "holdings"}
	}
	freshnessSummary := in.FreshnessSummary
	if freshnessSummary == "" {
		if fres.IsFresh {
			freshnessSummary = "account data is within the freshness threshold"
		} else {
			freshnessSummary = fres.Warning
		}
	}
	warnings := in.Warnings
	if len(warnings) == 0 && fres.Warning != "" {
		warnings = []string{fres.Warning}
	}

	inputSnapshot, err := json.Marshal(snap)
	if err != nil {
		return nil, fmt.Errorf("marshal snapshot: %w", err)
	}
	outputs, err := json.Marshal(map[string]any{
		"recommendation_id": rec.ID,
		"title":             in.Title,
		"summary":           in.Summary,
		"confidence":        in.Confidence,
		"rationale":         in.Rationale,
		"data_used":         dataUsed,
		"freshness_summary": freshnessSummary,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal outputs: %w", err)
	}
	traceID, err := d.recorder.Record(ctx, &trace.DecisionTrace{
		SessionID:        sessionID,
		UserID:           userID,
		RecommendationID: &rec.ID,
		Type:             trace.TypeRecommendation,
		InputSnapshot:    inputSnapshot,
		ReasoningSteps:   steps,
		Outputs:          outputs,
		Freshness:        &fres,
		Warnings:         warnings,
		Source:           "create_recommendation",
	})
	if err != nil {
		return nil, err
	}

	out, err := jsonOutcome(map[string]any{
		"recommendation_id": rec.ID,
		"trace_id":          traceID,
		"status":            rec.Status,
	})
	if err != nil {
		return nil, err
	}
	out.RecommendationCreated = true
	return out, nil
}

func (d *Dispatcher) getPortfolioMetrics(ctx context.Context, userID string) (*Outcome, error) {
	snap, err := d.builder.Build(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("build context: %w", err)
	}

	var total float64
	for _, h := range snap.Holdings {
		total += h.Value
	}
	allocation := make(map[string]float64)
	if total > 0 {
		for _, h := range snap.Holdings {
			allocation[h.AssetType] += h.Value / total * 100
		}
	}
	sorted := make([]finctx.Holding, len(snap.Holdings))
	copy(sorted, snap.Holdings)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Value > sorted[j].Value })
	if len(sorted) > 5 {
		sorted = sorted[:5]
	}
	type topHolding struct {
		Symbol string  `json:"symbol"`
		Value  float64 `json:"value"`
		Share  float64 `json:"share_pct"`
	}
	top := make([]topHolding, 0, len(sorted))
	for _, h := range sorted {
		share := 0.0
		if total > 0 {
			share = h.Value / total * 100
		}
		top = append(top, topHolding{Symbol: h.Symbol, Value: h.Value, Share: share})
	}
	return jsonOutcome(map[string]any{
		"net_worth":          snap.NetWorth(),
		"total_investments":  snap.TotalInvestments(),
		"allocation_by_type": allocation,
		"top_holdings":       top,
	})
}

func (d *Dispatcher) calculate(input json.RawMessage) (*Outcome, error) {
	var in struct {
		Calculator string             `json:"calculator"`
		Inputs     map[string]float64 `json:"inputs"`
	}
	if err := json.Unmarshal(input, &in); err != nil {
		return inBandError("validation_error", "parse calculate input: "+err.Error(), ""), nil
	}
	result, err := calc.Run(in.Calculator, in.Inputs)
	if err != nil {
		var ie *calc.InputError
		if errors.As(err, &ie) {
			return inBandError("validation_error", ie.Error(), ""), nil
		}
		return nil, err
	}
	return jsonOutcome(map[string]any{
		"calculator": in.Calculator,
		"result":     result,
	})
}

func (d *Dispatcher) askUser(input json.RawMessage) (*Outcome, error) {
	var in struct {
		Question string   `json:"question"`
		Options  []string `json:"options"`
	}
	if err := json.Unmarshal(input, &in); err != nil {
		return inBandError("validation_error", "parse ask_user input: "+err.Error(), ""), nil
	}
	return jsonOutcome(map[string]any{
		"type":     "clarifying_question",
		"question": in.Question,
		"options":  in.Options,
	})
}

// embeddedAction extracts an action sub-object from recommendation
// details: {action: {type, amount, ...}}.
func embeddedAction(details map[string]any) (actionType string, amount float64, payload json.RawMessage, ok bool) {
	if details == nil {
		return "", 0, nil, false
	}
	raw, ok := details["action"].(map[string]any)
	if !ok {
		return "", 0, nil, false
	}
	actionType, ok = raw["type"].(string)
	if !ok || actionType == "" {
		return "", 0, nil, false
	}
	if v, isNum := raw["amount"].(float64); isNum {
		amount = v
	}
	payload, _ = json.Marshal(raw)
	return actionType, amount, payload, true
}

func jsonOutcome(v any) (*Outcome, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("marshal tool result: %w", err)
	}
	return &Outcome{Result: string(b)}, nil
}

func inBandError(code, msg, approvalID string) *Outcome {
	payload := map[string]any{
		"error": msg,
		"code":  code,
	}
	if approvalID != "" {
		payload["approval_id"] = approvalID
	}
	b, _ := json.Marshal(payload)
	return &Outcome{Result: string(b), IsError: true}
}
