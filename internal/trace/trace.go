// Package trace records immutable decision traces: one audit record
// per significant conversational outcome. Records are insert-only;
// nothing in this package or its stores can modify a trace after
// creation.
package trace

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/meridianfi/meridian/internal/rules"
)

// Trace types.
const (
	TypeRecommendation = "recommendation"
	TypeAnalysis       = "analysis"
	TypeAction         = "action"
)

// ReasoningStep is one ordered entry in a trace's reasoning chain.
type ReasoningStep struct {
	Step   string `json:"step"`
	Detail string `json:"detail,omitempty"`
}

// DecisionTrace is the immutable audit record.
type DecisionTrace struct {
	ID               string                 `json:"id"`
	SessionID        string                 `json:"session_id"`
	UserID           string                 `json:"user_id"`
	RecommendationID *string                `json:"recommendation_id,omitempty"`
	Type             string                 `json:"trace_type"`
	InputSnapshot    json.RawMessage        `json:"input_snapshot,omitempty"`
	ReasoningSteps   []ReasoningStep        `json:"reasoning_steps"`
	Outputs          json.RawMessage        `json:"outputs,omitempty"`
	Freshness        *rules.FreshnessResult `json:"freshness,omitempty"`
	Warnings         []string               `json:"warnings,omitempty"`
	Source           string                 `json:"source"`
	CreatedAt        time.Time              `json:"created_at"`
}

// Store persists traces. Implementations must be insert-only.
type Store interface {
	InsertTrace(ctx context.Context, t *DecisionTrace) error
}

// Recorder assigns identity to traces and writes them through the
// store exactly once.
type Recorder struct {
	store  Store
	logger *zap.Logger
}

// NewRecorder creates a Recorder.
func NewRecorder(store Store, logger *zap.Logger) *Recorder {
	return &Recorder{store: store, logger: logger}
}

// Record persists one trace and returns its id. The trace must never
// be updated afterward.
func (r *Recorder) Record(ctx context.Context, t *DecisionTrace) (string, error) {
	if t.ID == "" {
		t.ID = uuid.New().String()
	}
	t.CreatedAt = time.Now().UTC()
	if err := r.store.InsertTrace(ctx, t); err != nil {
		return "", fmt.Errorf("record decision trace: %w", err)
	}
	r.logger.Info("decision trace recorded",
		zap.String("id", t.ID),
		zap.String("type", t.Type),
		zap.String("session", t.SessionID))
	return t.ID, nil
}
