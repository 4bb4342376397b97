package store

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/meridianfi/meridian/internal/trace"
)

// InsertTrace writes one decision trace. Traces are append-only: the
// table carries a trigger rejecting UPDATE and DELETE, and this store
// exposes no mutation path.
func (s *Store) InsertTrace(ctx context.Context, t *trace.DecisionTrace) error {
	steps, err := json.Marshal(t.ReasoningSteps)
	if err != nil {
		return fmt.Errorf("marshal reasoning steps: %w", err)
	}
	var freshness []byte
	if t.Freshness != nil {
		freshness, err = json.Marshal(t.Freshness)
		if err != nil {
			return fmt.Errorf("marshal freshness: %w", err)
		}
	}
	var warnings []byte
	if len(t.Warnings) > 0 {
		warnings, err = json.Marshal(t.Warnings)
		if err != nil {
			return fmt.Errorf("marshal warnings: %w", err)
		}
	}
	_, err = s.db.Exec(ctx, `
		INSERT INTO decision_traces
			(id, session_id, user_id, recommendation_id, trace_type,
			 input_snapshot, reasoning_steps, outputs, freshness, warnings, source, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		t.ID, t.SessionID, t.UserID, t.RecommendationID, t.Type,
		[]byte(t.InputSnapshot), steps, []byte(t.Outputs), freshness, warnings, t.Source, t.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert decision trace: %w", err)
	}
	return nil
}

// ListTraces returns a session's traces, oldest first.
func (s *Store) ListTraces(ctx context.Context, sessionID string) ([]trace.DecisionTrace, error) {
	rows, err := s.db.Query(ctx, `
		SELECT id, session_id, user_id, recommendation_id, trace_type,
		       input_snapshot, reasoning_steps, outputs, freshness, warnings, source, created_at
		FROM decision_traces
		WHERE session_id = $1
		ORDER BY created_at ASC`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("list traces: %w", err)
	}
	defer rows.Close()

	var traces []trace.DecisionTrace
	for rows.Next() {
		var t trace.DecisionTrace
		var steps, freshness, warnings []byte
		var input, outputs []byte
		if err := rows.Scan(&t.ID, &t.SessionID, &t.UserID, &t.RecommendationID, &t.Type,
			&input, &steps, &outputs, &freshness, &warnings, &t.Source, &t.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan trace: %w", err)
		}
		t.InputSnapshot = input
		t.Outputs = outputs
		if len(steps) > 0 {
			if err := json.Unmarshal(steps, &t.ReasoningSteps); err != nil {
				return nil, fmt.Errorf("decode reasoning steps: %w", err)
			}
		}
		if len(freshness) > 0 {
			if err := json.Unmarshal(freshness, &t.Freshness); err != nil {
				return nil, fmt.Errorf("decode freshness: %w", err)
			}
		}
		if len(warnings) > 0 {
			if err := json.Unmarshal(warnings, &t.Warnings); err != nil {
				return nil, fmt.Errorf("decode warnings: %w", err)
			}
		}
		traces = append(traces, t)
	}
	return traces, rows.Err()
}
