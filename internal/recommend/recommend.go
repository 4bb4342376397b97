// Package recommend defines proposed courses of action produced by
// the create_recommendation tool. Status transitions happen later,
// through the execution surface, never inside the conversation loop.
package recommend

import (
	"context"
	"encoding/json"
	"time"
)

// Statuses.
const (
	StatusPending   = "pending"
	StatusAccepted  = "accepted"
	StatusDismissed = "dismissed"
)

// Recommendation is one proposed course of action. Details may embed
// an action sub-object (type + amount + payload) that was validated by
// the policy gate before the row was written.
type Recommendation struct {
	ID        string          `json:"id"`
	SessionID string          `json:"session_id"`
	UserID    string          `json:"user_id"`
	Skill     string          `json:"skill,omitempty"`
	Title     string          `json:"title"`
	Summary   string          `json:"summary"`
	Details   json.RawMessage `json:"details,omitempty"`
	Status    string          `json:"status"`
	CreatedAt time.Time       `json:"created_at"`
}

// Store persists recommendations.
type Store interface {
	InsertRecommendation(ctx context.Context, r *Recommendation) error
}
