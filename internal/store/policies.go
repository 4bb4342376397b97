package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/meridianfi/meridian/internal/policy"
)

// ErrApprovalNotFound is returned for unknown approval ids.
var ErrApprovalNotFound = errors.New("approval not found")

// ActivePolicy returns the user's active policy, or (nil, nil) when no
// active policy is configured.
func (s *Store) ActivePolicy(ctx context.Context, userID string) (*policy.ActionPolicy, error) {
	var p policy.ActionPolicy
	var allowed []byte
	err := s.db.QueryRow(ctx, `
		SELECT user_id, allowed_action_types, max_amount, require_confirmation, status, updated_at
		FROM action_policies
		WHERE user_id = $1 AND status = $2`,
		userID, policy.PolicyActive,
	).Scan(&p.UserID, &allowed, &p.MaxAmount, &p.RequireConfirmation, &p.Status, &p.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get active policy: %w", err)
	}
	if len(allowed) > 0 {
		if err := json.Unmarshal(allowed, &p.AllowedActionTypes); err != nil {
			return nil, fmt.Errorf("decode allowed action types: %w", err)
		}
	}
	return &p, nil
}

// UpsertPolicy writes the user's policy configuration.
func (s *Store) UpsertPolicy(ctx context.Context, p *policy.ActionPolicy) error {
	allowed, err := json.Marshal(p.AllowedActionTypes)
	if err != nil {
		return fmt.Errorf("marshal allowed action types: %w", err)
	}
	p.UpdatedAt = time.Now().UTC()
	_, err = s.db.Exec(ctx, `
		INSERT INTO action_policies (user_id, allowed_action_types, max_amount, require_confirmation, status, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (user_id)
		DO UPDATE SET allowed_action_types = $2, max_amount = $3,
		              require_confirmation = $4, status = $5, updated_at = $6`,
		p.UserID, allowed, p.MaxAmount, p.RequireConfirmation, p.Status, p.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("upsert policy: %w", err)
	}
	return nil
}

// CreateApproval inserts one pending approval.
func (s *Store) CreateApproval(ctx context.Context, a *policy.ActionApproval) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO action_approvals (id, user_id, action_type, amount, payload, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		a.ID, a.UserID, a.ActionType, a.Amount, []byte(a.Payload), a.Status, a.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("create approval: %w", err)
	}
	return nil
}

// GetApproval loads one approval by id.
func (s *Store) GetApproval(ctx context.Context, id string) (*policy.ActionApproval, error) {
	var a policy.ActionApproval
	var payload []byte
	err := s.db.QueryRow(ctx, `
		SELECT id, user_id, action_type, amount, payload, status, created_at, resolved_at
		FROM action_approvals WHERE id = $1`, id,
	).Scan(&a.ID, &a.UserID, &a.ActionType, &a.Amount, &payload, &a.Status, &a.CreatedAt, &a.ResolvedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrApprovalNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get approval: %w", err)
	}
	a.Payload = payload
	return &a, nil
}

// ResolveApproval moves a pending approval to a terminal status.
func (s *Store) ResolveApproval(ctx context.Context, id, status string) error {
	tag, err := s.db.Exec(ctx, `
		UPDATE action_approvals
		SET status = $2, resolved_at = now()
		WHERE id = $1 AND status = $3`,
		id, status, policy.ApprovalPending,
	)
	if err != nil {
		return fmt.Errorf("resolve approval: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrApprovalNotFound
	}
	return nil
}

// ListPendingApprovals returns a user's pending approvals, oldest first.
func (s *Store) ListPendingApprovals(ctx context.Context, userID string) ([]policy.ActionApproval, error) {
	rows, err := s.db.Query(ctx, `
		SELECT id, user_id, action_type, amount, payload, status, created_at, resolved_at
		FROM action_approvals
		WHERE user_id = $1 AND status = $2
		ORDER BY created_at ASC`,
		userID, policy.ApprovalPending)
	if err != nil {
		return nil, fmt.Errorf("list pending approvals: %w", err)
	}
	defer rows.Close()

	var approvals []policy.ActionApproval
	for rows.Next() {
		var a policy.ActionApproval
		var payload []byte
		if err := rows.Scan(&a.ID, &a.UserID, &a.ActionType, &a.Amount,
			&payload, &a.Status, &a.CreatedAt, &a.ResolvedAt); err != nil {
			return nil, fmt.Errorf("scan approval: %w", err)
		}
		a.Payload = payload
		approvals = append(approvals, a)
	}
	return approvals, rows.Err()
}
