package store

import (
	"context"
	"fmt"

	"github.com/meridianfi/meridian/internal/memory"
)

// GetOrCreateMemory returns all memory fields for the user, creating
// the memory record on first access.
func (s *Store) GetOrCreateMemory(ctx context.Context, userID string) (map[string]string, error) {
	_, err := s.db.Exec(ctx, `
		INSERT INTO memory_records (user_id) VALUES ($1)
		ON CONFLICT (user_id) DO NOTHING`, userID)
	if err != nil {
		return nil, fmt.Errorf("create memory record: %w", err)
	}

	rows, err := s.db.Query(ctx, `
		SELECT field, value FROM memory_fields WHERE user_id = $1`, userID)
	if err != nil {
		return nil, fmt.Errorf("get memory fields: %w", err)
	}
	defer rows.Close()

	out := make(map[string]string)
	for rows.Next() {
		var field, value string
		if err := rows.Scan(&field, &value); err != nil {
			return nil, fmt.Errorf("scan memory field: %w", err)
		}
		out[field] = value
	}
	return out, rows.Err()
}

// UpsertMemoryField writes one memory field value.
func (s *Store) UpsertMemoryField(ctx context.Context, userID, field, value string) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO memory_fields (user_id, field, value, updated_at)
		VALUES ($1, $2, $3, now())
		ON CONFLICT (user_id, field)
		DO UPDATE SET value = $3, updated_at = now()`,
		userID, field, value,
	)
	if err != nil {
		return fmt.Errorf("upsert memory field: %w", err)
	}
	return nil
}

// InsertAuditEvent records one memory change.
func (s *Store) InsertAuditEvent(ctx context.Context, ev *memory.AuditEvent) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO memory_audit_events (id, user_id, field, old_value, new_value, reason, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		ev.ID, ev.UserID, ev.Field, ev.OldValue, ev.NewValue, ev.Reason, ev.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert audit event: %w", err)
	}
	return nil
}

// ListAuditEvents returns a user's memory audit log, newest first.
func (s *Store) ListAuditEvents(ctx context.Context, userID string, limit int) ([]memory.AuditEvent, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.Query(ctx, `
		SELECT id, user_id, field, old_value, new_value, reason, created_at
		FROM memory_audit_events
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT $2`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("list audit events: %w", err)
	}
	defer rows.Close()

	var events []memory.AuditEvent
	for rows.Next() {
		var ev memory.AuditEvent
		if err := rows.Scan(&ev.ID, &ev.UserID, &ev.Field, &ev.OldValue,
			&ev.NewValue, &ev.Reason, &ev.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan audit event: %w", err)
		}
		events = append(events, ev)
	}
	return events, rows.Err()
}
