// Package policy enforces per-user guardrails on proposed financial
// actions. A validation either hard-denies, soft-blocks behind a
// pending human approval, or allows the action.
package policy

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Violation codes.
const (
	CodeNoPolicyConfigured = "no_policy_configured"
	CodeActionNotAllowed   = "action_not_allowed"
	CodeAmountExceedsLimit = "amount_exceeds_limit"
	CodeApprovalRequired   = "approval_required"
)

// Statuses.
const (
	PolicyActive   = "active"
	PolicyInactive = "inactive"

	ApprovalPending  = "pending"
	ApprovalApproved = "approved"
	ApprovalRejected = "rejected"
)

// ActionPolicy is a user's guardrail configuration.
type ActionPolicy struct {
	UserID              string    `json:"user_id"`
	AllowedActionTypes  []string  `json:"allowed_action_types"`
	MaxAmount           *float64  `json:"max_amount,omitempty"`
	RequireConfirmation bool      `json:"require_confirmation"`
	Status              string    `json:"status"`
	UpdatedAt           time.Time `json:"updated_at"`
}

// Allows reports whether actionType is on the policy's allow-list.
func (p *ActionPolicy) Allows(actionType string) bool {
	for _, t := range p.AllowedActionTypes {
		if t == actionType {
			return true
		}
	}
	return false
}

// ActionApproval is a pending human sign-off created by a soft block.
// It transitions to a terminal state only through Approve or Reject.
type ActionApproval struct {
	ID         string          `json:"id"`
	UserID     string          `json:"user_id"`
	ActionType string          `json:"action_type"`
	Amount     float64         `json:"amount"`
	Payload    json.RawMessage `json:"payload,omitempty"`
	Status     string          `json:"status"`
	CreatedAt  time.Time       `json:"created_at"`
	ResolvedAt *time.Time      `json:"resolved_at,omitempty"`
}

// Violation is the domain error for a gated action. SoftBlock
// distinguishes approval-required (resolvable by a human) from the
// hard denials.
type Violation struct {
	Code       string `json:"code"`
	Message    string `json:"message"`
	ApprovalID string `json:"approval_id,omitempty"`
}

func (v *Violation) Error() string {
	return fmt.Sprintf("policy violation (%s): %s", v.Code, v.Message)
}

// SoftBlock reports whether the violation is pending approval rather
// than a permanent denial.
func (v *Violation) SoftBlock() bool { return v.Code == CodeApprovalRequired }

// Store is the persistence boundary for policies and approvals.
type Store interface {
	// ActivePolicy returns the user's active policy, or (nil, nil)
	// when none is configured.
	ActivePolicy(ctx context.Context, userID string) (*ActionPolicy, error)
	CreateApproval(ctx context.Context, a *ActionApproval) error
	GetApproval(ctx context.Context, id string) (*ActionApproval, error)
	// ResolveApproval moves a pending approval to a terminal status.
	ResolveApproval(ctx context.Context, id, status string) error
}

// Notifier announces newly created pending approvals to a human
// channel. Failures are logged, never propagated.
type Notifier interface {
	NotifyPendingApproval(ctx context.Context, a *ActionApproval) error
}

// Gate validates proposed actions against the owner's policy.
type Gate struct {
	store    Store
	notifier Notifier
	logger   *zap.Logger
}

// NewGate creates a Gate. notifier may be nil.
func NewGate(store Store, notifier Notifier, logger *zap.Logger) *Gate {
	return &Gate{store: store, notifier: notifier, logger: logger}
}

// ValidateAction checks one proposed action. It returns nil when the
// action may proceed and a *Violation otherwise. Only the
// approval-required path creates state: a pending ActionApproval whose
// id rides on the violation.
func (g *Gate) ValidateAction(ctx context.Context, userID, actionType string, amount float64, payload json.RawMessage) error {
	pol, err := g.store.ActivePolicy(ctx, userID)
	if err != nil {
		return fmt.Errorf("load policy: %w", err)
	}
	if pol == nil {
		return &Violation{
			Code:    CodeNoPolicyConfigured,
			Message: "no active action policy is configured; set one up before proposing actions",
		}
	}
	if !pol.Allows(actionType) {
		return &Violation{
			Code:    CodeActionNotAllowed,
			Message: fmt.Sprintf("action type %q is not on the allowed list", actionType),
		}
	}
	if pol.MaxAmount != nil && amount > *pol.MaxAmount {
		return &Violation{
			Code:    CodeAmountExceedsLimit,
			Message: fmt.Sprintf("amount %.2f exceeds the configured limit %.2f", amount, *pol.MaxAmount),
		}
	}
	if pol.RequireConfirmation {
		approval := &ActionApproval{
			ID:         uuid.New().String(),
			UserID:     userID,
			ActionType: actionType,
			Amount:     amount,
			Payload:    payload,
			Status:     ApprovalPending,
			CreatedAt:  time.Now().UTC(),
		}
		if err := g.store.CreateApproval(ctx, approval); err != nil {
			return fmt.Errorf("create approval: %w", err)
		}
		g.logger.Info("action soft-blocked pending approval",
			zap.String("user", userID),
			zap.String("action_type", actionType),
			zap.String("approval", approval.ID))
		if g.notifier != nil {
			if nerr := g.notifier.NotifyPendingApproval(ctx, approval); nerr != nil {
				g.logger.Warn("approval notification failed", zap.Error(nerr))
			}
		}
		return &Violation{
			Code:       CodeApprovalRequired,
			Message:    fmt.Sprintf("action %q requires confirmation; approval %s is pending", actionType, approval.ID),
			ApprovalID: approval.ID,
		}
	}
	return nil
}

// ErrNotPending is returned when resolving an approval that already
// reached a terminal state.
var ErrNotPending = fmt.Errorf("approval is not pending")

// Approve resolves a pending approval to approved.
func (g *Gate) Approve(ctx context.Context, approvalID string) error {
	return g.resolve(ctx, approvalID, ApprovalApproved)
}

// Reject resolves a pending approval to rejected.
func (g *Gate) Reject(ctx context.Context, approvalID string) error {
	return g.resolve(ctx, approvalID, ApprovalRejected)
}

func (g *Gate) resolve(ctx context.Context, approvalID, status string) error {
	a, err := g.store.GetApproval(ctx, approvalID)
	if err != nil {
		return fmt.Errorf("load approval: %w", err)
	}
	if a.Status != ApprovalPending {
		return ErrNotPending
	}
	if err := g.store.ResolveApproval(ctx, approvalID, status); err != nil {
		return fmt.Errorf("resolve approval: %w", err)
	}
	g.logger.Info("approval resolved",
		zap.String("approval", approvalID),
		zap.String("status", status))
	return nil
}
