package db

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
)

// PipelineRun is one durable request to run the analysis pipeline.
type PipelineRun struct {
	ID           string
	FeedbackID   string
	AttemptCount int
}

// EnqueueRun schedules a pipeline run for a feedback item and returns the run id.
func (db *DB) EnqueueRun(ctx context.Context, feedbackID string) (string, error) {
	runID := uuid.New()

	_, err := db.Pool.Exec(ctx, `
		INSERT INTO pipeline_runs (id, feedback_id, status)
		VALUES ($1, $2, $3)
	`, runID, toUUID(feedbackID), RunStatusPending)
	if err != nil {
		return "", fmt.Errorf("enqueue run: %w", err)
	}

	return runID.String(), nil
}

// ClaimNextRun marks the oldest due pending run as running and returns it.
// Concurrent workers never claim the same run. Returns nil when nothing is due.
func (db *DB) ClaimNextRun(ctx context.Context) (*PipelineRun, error) {
	var (
		run        PipelineRun
		runID      pgtype.UUID
		feedbackID pgtype.UUID
	)

	err := db.Pool.QueryRow(ctx, `
		WITH picked AS (
			SELECT id
			FROM pipeline_runs
			WHERE status = $1
			  AND (next_retry_at IS NULL OR next_retry_at <= now())
			ORDER BY created_at
			LIMIT 1
			FOR UPDATE SKIP LOCKED
		)
		UPDATE pipeline_runs pr
		SET status = $2,
			attempt_count = pr.attempt_count + 1,
			updated_at = now()
		FROM picked
		WHERE pr.id = picked.id
		RETURNING pr.id, pr.feedback_id, pr.attempt_count
	`, RunStatusPending, RunStatusRunning).Scan(&runID, &feedbackID, &run.AttemptCount)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil //nolint:nilnil // nil,nil indicates no pending run available
		}

		return nil, fmt.Errorf("claim next run: %w", err)
	}

	run.ID = fromUUID(runID)
	run.FeedbackID = fromUUID(feedbackID)

	return &run, nil
}

// CompleteRun marks a run as done.
func (db *DB) CompleteRun(ctx context.Context, runID string) error {
	_, err := db.Pool.Exec(ctx, `
		UPDATE pipeline_runs
		SET status = $2,
			error_message = NULL,
			next_retry_at = NULL,
			updated_at = now()
		WHERE id = $1
	`, toUUID(runID), RunStatusDone)
	if err != nil {
		return fmt.Errorf("complete run: %w", err)
	}

	return nil
}

// RetryRun puts a run back in the queue, due at retryAt.
func (db *DB) RetryRun(ctx context.Context, runID, errMsg string, retryAt time.Time) error {
	_, err := db.Pool.Exec(ctx, `
		UPDATE pipeline_runs
		SET status = $2,
			error_message = $3,
			next_retry_at = $4,
			updated_at = now()
		WHERE id = $1
	`, toUUID(runID), RunStatusPending, toText(errMsg), toTimestamptz(retryAt))
	if err != nil {
		return fmt.Errorf("retry run: %w", err)
	}

	return nil
}

// FailRun marks a run as permanently failed.
func (db *DB) FailRun(ctx context.Context, runID, errMsg string) error {
	_, err := db.Pool.Exec(ctx, `
		UPDATE pipeline_runs
		SET status = $2,
			error_message = $3,
			next_retry_at = NULL,
			updated_at = now()
		WHERE id = $1
	`, toUUID(runID), RunStatusFailed, toText(errMsg))
	if err != nil {
		return fmt.Errorf("fail run: %w", err)
	}

	return nil
}

// RecoverStuckRuns returns runs left running longer than stuckThreshold, for
// example by a crashed worker, to the queue. Their checkpoints are kept.
func (db *DB) RecoverStuckRuns(ctx context.Context, stuckThreshold time.Duration) (int64, error) {
	tag, err := db.Pool.Exec(ctx, `
		UPDATE pipeline_runs
		SET status = $1,
			updated_at = now()
		WHERE status = $2
		  AND updated_at < $3
	`, RunStatusPending, RunStatusRunning, toTimestamptz(time.Now().Add(-stuckThreshold)))
	if err != nil {
		return 0, fmt.Errorf("recover stuck runs: %w", err)
	}

	return tag.RowsAffected(), nil
}

// CountPendingRuns returns the number of runs waiting in the queue.
func (db *DB) CountPendingRuns(ctx context.Context) (int, error) {
	var count int

	err := db.Pool.QueryRow(ctx, `
		SELECT COUNT(*)
		FROM pipeline_runs
		WHERE status = $1
	`, RunStatusPending).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count pending runs: %w", err)
	}

	return count, nil
}

// LoadSteps returns the checkpointed step results of a run.
func (db *DB) LoadSteps(ctx context.Context, runID string) (map[string]json.RawMessage, error) {
	rows, err := db.Pool.Query(ctx, `
		SELECT step_name, result
		FROM pipeline_steps
		WHERE run_id = $1
	`, toUUID(runID))
	if err != nil {
		return nil, fmt.Errorf("load steps: %w", err)
	}
	defer rows.Close()

	steps := make(map[string]json.RawMessage)

	for rows.Next() {
		var (
			name   string
			result []byte
		)

		if err := rows.Scan(&name, &result); err != nil {
			return nil, fmt.Errorf("scan step: %w", err)
		}

		steps[name] = json.RawMessage(result)
	}

	if rows.Err() != nil {
		return nil, fmt.Errorf("iterate steps: %w", rows.Err())
	}

	return steps, nil
}

// SaveStep checkpoints a step result. The first result saved for a step wins.
func (db *DB) SaveStep(ctx context.Context, runID, stepName string, result json.RawMessage) error {
	_, err := db.Pool.Exec(ctx, `
		INSERT INTO pipeline_steps (run_id, step_name, result)
		VALUES ($1, $2, $3)
		ON CONFLICT (run_id, step_name) DO NOTHING
	`, toUUID(runID), stepName, []byte(result))
	if err != nil {
		return fmt.Errorf("save step: %w", err)
	}

	return nil
}
