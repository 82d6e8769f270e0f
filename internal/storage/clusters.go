package db

import (
	"context"
	"fmt"

	coreerrors "github.com/KaijieWen/Feedback-Forensics-Lab/internal/core/errors"
)

// EnsureCluster returns existingID when it is set. Otherwise it creates the
// cluster seedID with the given label, or refreshes it if a previous attempt
// already created it, and returns seedID.
func (db *DB) EnsureCluster(ctx context.Context, label, existingID, seedID string) (string, error) {
	if existingID != "" {
		if _, err := db.Pool.Exec(ctx, `
			UPDATE clusters SET updated_at = now() WHERE id = $1
		`, toUUID(existingID)); err != nil {
			return "", fmt.Errorf("touch cluster: %w", err)
		}

		return existingID, nil
	}

	id := toUUID(seedID)
	if !id.Valid {
		return "", fmt.Errorf("ensure cluster: %w: %q", coreerrors.ErrInvalidID, seedID)
	}

	_, err := db.Pool.Exec(ctx, `
		INSERT INTO clusters (id, label)
		VALUES ($1, $2)
		ON CONFLICT (id) DO UPDATE SET
			label = EXCLUDED.label,
			updated_at = now()
	`, id, SanitizeUTF8(label))
	if err != nil {
		return "", fmt.Errorf("ensure cluster: %w", err)
	}

	return seedID, nil
}

// UpsertClusterMember assigns a feedback item to a cluster, replacing any
// previous assignment.
func (db *DB) UpsertClusterMember(ctx context.Context, clusterID, feedbackID string, similarity *float64) error {
	_, err := db.Pool.Exec(ctx, `
		INSERT INTO cluster_members (cluster_id, feedback_id, similarity)
		VALUES ($1, $2, $3)
		ON CONFLICT (feedback_id) DO UPDATE SET
			cluster_id = EXCLUDED.cluster_id,
			similarity = EXCLUDED.similarity
	`, toUUID(clusterID), toUUID(feedbackID), toFloat8Ptr(similarity))
	if err != nil {
		return fmt.Errorf("upsert cluster member: %w", err)
	}

	return nil
}

// UpsertSimilarityEdge records that feedbackID resembles similarID.
func (db *DB) UpsertSimilarityEdge(ctx context.Context, feedbackID, similarID string, score *float64) error {
	_, err := db.Pool.Exec(ctx, `
		INSERT INTO similarity_edges (feedback_id, similar_feedback_id, score)
		VALUES ($1, $2, $3)
		ON CONFLICT (feedback_id, similar_feedback_id) DO UPDATE SET
			score = EXCLUDED.score
	`, toUUID(feedbackID), toUUID(similarID), toFloat8Ptr(score))
	if err != nil {
		return fmt.Errorf("upsert similarity edge: %w", err)
	}

	return nil
}
