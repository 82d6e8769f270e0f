package db

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/KaijieWen/Feedback-Forensics-Lab/internal/core/domain"
	coreerrors "github.com/KaijieWen/Feedback-Forensics-Lab/internal/core/errors"
)

// PutEvidence stores an evidence payload under key. Payloads are immutable, so
// a second write for the same key keeps the first.
func (db *DB) PutEvidence(ctx context.Context, key string, evidence domain.Evidence) error {
	payload, err := json.Marshal(evidence)
	if err != nil {
		return fmt.Errorf("marshal evidence: %w", err)
	}

	_, err = db.Pool.Exec(ctx, `
		INSERT INTO evidence_objects (key, payload)
		VALUES ($1, $2)
		ON CONFLICT (key) DO NOTHING
	`, key, payload)
	if err != nil {
		return fmt.Errorf("put evidence: %w", err)
	}

	return nil
}

// GetEvidence loads the payload stored under key.
func (db *DB) GetEvidence(ctx context.Context, key string) (domain.Evidence, error) {
	var payload []byte

	err := db.Pool.QueryRow(ctx, `
		SELECT payload FROM evidence_objects WHERE key = $1
	`, key).Scan(&payload)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Evidence{}, fmt.Errorf("%w: %s", coreerrors.ErrEvidenceNotFound, key)
		}

		return domain.Evidence{}, fmt.Errorf("get evidence: %w", err)
	}

	var evidence domain.Evidence
	if err := json.Unmarshal(payload, &evidence); err != nil {
		return domain.Evidence{}, fmt.Errorf("%w: %w", coreerrors.ErrEvidenceCorrupt, err)
	}

	return evidence, nil
}
