package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/meridianfi/meridian/internal/recommend"
)

// ErrRecommendationNotFound is returned for unknown recommendation ids.
var ErrRecommendationNotFound = errors.New("recommendation not found")

// InsertRecommendation writes one recommendation row.
func (s *Store) InsertRecommendation(ctx context.Context, r *recommend.Recommendation) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO recommendations (id, session_id, user_id, skill, title, summary, details, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		r.ID, r.SessionID, r.UserID, r.Skill, r.Title, r.Summary, []byte(r.Details), r.Status, r.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert recommendation: %w", err)
	}
	return nil
}

// ListRecommendations returns a user's recommendations, newest first.
func (s *Store) ListRecommendations(ctx context.Context, userID string) ([]recommend.Recommendation, error) {
	rows, err := s.db.Query(ctx, `
		SELECT id, session_id, user_id, skill, title, summary, details, status, created_at
		FROM recommendations
		WHERE user_id = $1
		ORDER BY created_at DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("list recommendations: %w", err)
	}
	defer rows.Close()

	var recs []recommend.Recommendation
	for rows.Next() {
		var r recommend.Recommendation
		var details []byte
		if err := rows.Scan(&r.ID, &r.SessionID, &r.UserID, &r.Skill,
			&r.Title, &r.Summary, &details, &r.Status, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan recommendation: %w", err)
		}
		r.Details = details
		recs = append(recs, r)
	}
	return recs, rows.Err()
}

// SetRecommendationStatus transitions a recommendation's status. Used
// by the execution surface, never by the conversation loop.
func (s *Store) SetRecommendationStatus(ctx context.Context, id, status string) error {
	tag, err := s.db.Exec(ctx, `
		UPDATE recommendations SET status = $2 WHERE id = $1`, id, status)
	if err != nil {
		return fmt.Errorf("set recommendation status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrRecommendationNotFound
	}
	return nil
}
