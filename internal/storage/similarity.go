package db

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgtype"
	"github.com/pgvector/pgvector-go"

	"github.com/KaijieWen/Feedback-Forensics-Lab/internal/core/domain"
)

// UpsertFeedbackEmbedding stores the vector used to find a feedback item later.
func (db *DB) UpsertFeedbackEmbedding(ctx context.Context, feedbackID string, embedding []float32, model string) error {
	_, err := db.Pool.Exec(ctx, `
		INSERT INTO feedback_embeddings (feedback_id, embedding, model)
		VALUES ($1, $2, $3)
		ON CONFLICT (feedback_id) DO UPDATE SET
			embedding = EXCLUDED.embedding,
			model = EXCLUDED.model,
			updated_at = now()
	`, toUUID(feedbackID), pgvector.NewVector(embedding), model)
	if err != nil {
		return fmt.Errorf("upsert feedback embedding: %w", err)
	}

	return nil
}

// FindSimilarFeedback returns up to limit indexed feedback items nearest to the
// embedding by cosine distance, with similarity = 1 - distance, skipping those
// below minScore.
func (db *DB) FindSimilarFeedback(ctx context.Context, embedding []float32, limit int, minScore float64) ([]domain.SimilarityMatch, error) {
	rows, err := db.Pool.Query(ctx, `
		SELECT feedback_id, similarity
		FROM (
			SELECT e.feedback_id,
			       1 - (e.embedding <=> $1::vector) AS similarity
			FROM feedback_embeddings e
			ORDER BY e.embedding <=> $1::vector
			LIMIT $2
		) nearest
		WHERE similarity >= $3
		ORDER BY similarity DESC
	`, pgvector.NewVector(embedding), limit, minScore)
	if err != nil {
		return nil, fmt.Errorf("find similar feedback: %w", err)
	}
	defer rows.Close()

	matches := []domain.SimilarityMatch{}

	for rows.Next() {
		var (
			id    pgtype.UUID
			score float64
		)

		if err := rows.Scan(&id, &score); err != nil {
			return nil, fmt.Errorf("scan similar feedback: %w", err)
		}

		matches = append(matches, domain.SimilarityMatch{ID: fromUUID(id), Score: domain.Float64Ptr(score)})
	}

	if rows.Err() != nil {
		return nil, fmt.Errorf("iterate similar feedback: %w", rows.Err())
	}

	return matches, nil
}
