package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/meridianfi/meridian/internal/conversation"
	"github.com/meridianfi/meridian/internal/model"
)

// ErrSessionNotFound is returned when a session id doesn't exist.
var ErrSessionNotFound = errors.New("session not found")

// CreateSession inserts a new session row.
func (s *Store) CreateSession(ctx context.Context, sess *conversation.Session) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO sessions (id, user_id, skill, status, created_at)
		VALUES ($1, $2, $3, $4, $5)`,
		sess.ID, sess.UserID, sess.Skill, sess.Status, sess.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("create session: %w", err)
	}
	return nil
}

// GetSession loads one session by id.
func (s *Store) GetSession(ctx context.Context, id string) (*conversation.Session, error) {
	var sess conversation.Session
	err := s.db.QueryRow(ctx, `
		SELECT id, user_id, skill, status, created_at
		FROM sessions WHERE id = $1`, id,
	).Scan(&sess.ID, &sess.UserID, &sess.Skill, &sess.Status, &sess.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get session: %w", err)
	}
	return &sess, nil
}

// SetSessionStatus updates a session's status.
func (s *Store) SetSessionStatus(ctx context.Context, id, status string) error {
	tag, err := s.db.Exec(ctx, `UPDATE sessions SET status = $2 WHERE id = $1`, id, status)
	if err != nil {
		return fmt.Errorf("set session status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrSessionNotFound
	}
	return nil
}

// GetTranscript returns a session's messages in order.
func (s *Store) GetTranscript(ctx context.Context, sessionID string) ([]model.Message, error) {
	rows, err := s.db.Query(ctx, `
		SELECT role, content
		FROM messages
		WHERE session_id = $1
		ORDER BY seq ASC`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("get transcript: %w", err)
	}
	defer rows.Close()

	var msgs []model.Message
	for rows.Next() {
		var msg model.Message
		var content []byte
		if err := rows.Scan(&msg.Role, &content); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		if err := json.Unmarshal(content, &msg.Content); err != nil {
			return nil, fmt.Errorf("decode message content: %w", err)
		}
		msgs = append(msgs, msg)
	}
	return msgs, rows.Err()
}

// AppendTranscript writes all of a turn's messages in one transaction
// so a turn is persisted atomically or not at all.
func (s *Store) AppendTranscript(ctx context.Context, sessionID string, msgs []model.Message) error {
	if len(msgs) == 0 {
		return nil
	}
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transcript tx: %w", err)
	}
	defer tx.Rollback(ctx)

	for _, msg := range msgs {
		content, err := json.Marshal(msg.Content)
		if err != nil {
			return fmt.Errorf("marshal message content: %w", err)
		}
		if _, err := tx.Exec(ctx, `
			INSERT INTO messages (id, session_id, role, content)
			VALUES (gen_random_uuid(), $1, $2, $3)`,
			sessionID, msg.Role, content,
		); err != nil {
			return fmt.Errorf("append message: %w", err)
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit transcript: %w", err)
	}
	return nil
}
