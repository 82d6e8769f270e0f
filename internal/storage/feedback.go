package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/KaijieWen/Feedback-Forensics-Lab/internal/core/domain"
	coreerrors "github.com/KaijieWen/Feedback-Forensics-Lab/internal/core/errors"
)

// InsertFeedback stores a new feedback row. Re-inserting an existing id is a no-op.
func (db *DB) InsertFeedback(ctx context.Context, fb *domain.Feedback) error {
	id := toUUID(fb.ID)
	if !id.Valid {
		return fmt.Errorf("insert feedback: %w: %q", coreerrors.ErrInvalidID, fb.ID)
	}

	_, err := db.Pool.Exec(ctx, `
		INSERT INTO feedback (id, source, title, snippet, evidence_ref, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, COALESCE($7::timestamptz, now()))
		ON CONFLICT (id) DO NOTHING
	`, id, SanitizeUTF8(fb.Source), toText(fb.Title), SanitizeUTF8(fb.Snippet), toText(fb.EvidenceRef),
		string(fb.Status), toTimestamptz(fb.CreatedAt))
	if err != nil {
		return fmt.Errorf("insert feedback: %w", err)
	}

	return nil
}

// GetFeedback loads one feedback row.
func (db *DB) GetFeedback(ctx context.Context, feedbackID string) (*domain.Feedback, error) {
	id := toUUID(feedbackID)
	if !id.Valid {
		return nil, coreerrors.ErrFeedbackNotFound
	}

	var (
		fb           domain.Feedback
		rowID        pgtype.UUID
		title        pgtype.Text
		evidenceRef  pgtype.Text
		status       string
		errorCode    pgtype.Text
		errorMessage pgtype.Text
		createdAt    pgtype.Timestamptz
	)

	err := db.Pool.QueryRow(ctx, `
		SELECT id, source, title, snippet, evidence_ref, status, error_code, error_message, created_at
		FROM feedback
		WHERE id = $1
	`, id).Scan(&rowID, &fb.Source, &title, &fb.Snippet, &evidenceRef, &status, &errorCode, &errorMessage, &createdAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, coreerrors.ErrFeedbackNotFound
		}

		return nil, fmt.Errorf("get feedback: %w", err)
	}

	fb.ID = fromUUID(rowID)
	fb.Title = fromText(title)
	fb.EvidenceRef = fromText(evidenceRef)
	fb.Status = domain.FeedbackStatus(status)
	fb.ErrorCode = fromText(errorCode)
	fb.ErrorMessage = fromText(errorMessage)
	fb.CreatedAt = fromTimestamptz(createdAt)

	return &fb, nil
}

// UpdateFeedbackStatus sets the status and error fields. Empty code and message clear them.
func (db *DB) UpdateFeedbackStatus(ctx context.Context, feedbackID string, status domain.FeedbackStatus, errorCode, errorMessage string) error {
	_, err := db.Pool.Exec(ctx, `
		UPDATE feedback
		SET status = $2,
			error_code = $3,
			error_message = $4,
			updated_at = now()
		WHERE id = $1
	`, toUUID(feedbackID), string(status), toText(errorCode), toText(errorMessage))
	if err != nil {
		return fmt.Errorf("update feedback status: %w", err)
	}

	return nil
}
