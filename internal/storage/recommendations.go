package storage

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	"neovest/internal/core"
)

const recommendationColumns = `id, user_id, title, description, confidence, priority,
	action_required, payload, is_read, expires_at, created_at`

// SaveRecommendation stores rec for its user and returns the new id. The
// payload is kept in its tagged {"type","data"} form.
func (r *SQLiteRepository) SaveRecommendation(ctx context.Context, rec core.Recommendation) (string, error) {
	if err := rec.Validate(); err != nil {
		return "", err
	}
	payload, err := core.MarshalPayload(rec.Payload)
	if err != nil {
		return "", err
	}
	id, err := uuid.NewV7()
	if err != nil {
		return "", fmt.Errorf("generate id: %w", err)
	}

	var expires sql.NullString
	if rec.ExpiresAt != nil {
		expires = sql.NullString{String: formatTime(*rec.ExpiresAt), Valid: true}
	}
	_, err = r.db.ExecContext(ctx, `INSERT INTO recommendations (`+recommendationColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		id.String(), rec.UserID, rec.Title, rec.Description, rec.Confidence, string(rec.Priority),
		rec.ActionRequired, string(payload), rec.IsRead, expires, formatTime(r.now()))
	if err != nil {
		return "", fmt.Errorf("insert recommendation: %w", err)
	}
	return id.String(), nil
}

// Recommendations returns the user's unexpired recommendations, newest first.
func (r *SQLiteRepository) Recommendations(ctx context.Context, userID string, limit int) ([]core.Recommendation, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.db.QueryContext(ctx, `SELECT `+recommendationColumns+` FROM recommendations
		WHERE user_id = ? AND (expires_at IS NULL OR expires_at > ?)
		ORDER BY created_at DESC, id DESC
		LIMIT ?`, userID, formatTime(r.now()), limit)
	if err != nil {
		return nil, fmt.Errorf("query recommendations: %w", err)
	}
	defer rows.Close()

	var out []core.Recommendation
	for rows.Next() {
		var (
			rec               core.Recommendation
			priority, payload string
			created           string
			expires           sql.NullString
		)
		if err := rows.Scan(&rec.ID, &rec.UserID, &rec.Title, &rec.Description, &rec.Confidence, &priority,
			&rec.ActionRequired, &payload, &rec.IsRead, &expires, &created); err != nil {
			return nil, fmt.Errorf("scan recommendation: %w", err)
		}
		rec.Priority = core.Priority(priority)
		if rec.Payload, err = core.UnmarshalPayload([]byte(payload)); err != nil {
			return nil, fmt.Errorf("recommendation %s: %w", rec.ID, err)
		}
		if rec.CreatedAt, err = parseTime(created); err != nil {
			return nil, fmt.Errorf("parse created_at: %w", err)
		}
		if expires.Valid {
			t, err := parseTime(expires.String)
			if err != nil {
				return nil, fmt.Errorf("parse expires_at: %w", err)
			}
			rec.ExpiresAt = &t
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}
