// Package workflow runs named, checkpointed steps. A completed step's JSON
// result is written to a step log; when the same run is replayed the stored
// result is returned instead of executing the step again. Steps therefore run
// at least once and their side effects must be idempotent.
package workflow

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/sethvargo/go-retry"

	coreerrors "github.com/KaijieWen/Feedback-Forensics-Lab/internal/core/errors"
	"github.com/KaijieWen/Feedback-Forensics-Lab/internal/core/ports"
	"github.com/KaijieWen/Feedback-Forensics-Lab/internal/platform/observability"
)

const (
	defaultMaxAttempts = 3
	defaultBaseDelay   = 500 * time.Millisecond
	defaultMaxDelay    = 10 * time.Second
)

// RetryPolicy bounds step-level retries.
type RetryPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
}

// DefaultRetryPolicy returns the policy used when none is configured.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: defaultMaxAttempts,
		BaseDelay:   defaultBaseDelay,
		MaxDelay:    defaultMaxDelay,
	}
}

func (p RetryPolicy) backoff() retry.Backoff {
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = defaultMaxAttempts
	}

	if p.BaseDelay <= 0 {
		p.BaseDelay = defaultBaseDelay
	}

	if p.MaxDelay <= 0 {
		p.MaxDelay = defaultMaxDelay
	}

	b := retry.NewExponential(p.BaseDelay)
	b = retry.WithCappedDuration(p.MaxDelay, b)

	return retry.WithMaxRetries(uint64(p.MaxAttempts-1), b) //nolint:gosec // MaxAttempts >= 1
}

// Run is one execution (or replay) of a step sequence.
type Run struct {
	id     string
	log    ports.StepLog
	policy RetryPolicy
	logger *zerolog.Logger

	mu        sync.Mutex
	completed map[string]json.RawMessage
}

// Start loads the completed steps of runID and returns a Run ready to execute.
func Start(ctx context.Context, log ports.StepLog, runID string, policy RetryPolicy, logger *zerolog.Logger) (*Run, error) {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}

	completed, err := log.LoadSteps(ctx, runID)
	if err != nil {
		return nil, fmt.Errorf("loading steps for run %s: %w", runID, err)
	}

	if completed == nil {
		completed = make(map[string]json.RawMessage)
	}

	return &Run{
		id:        runID,
		log:       log,
		policy:    policy,
		logger:    logger,
		completed: completed,
	}, nil
}

// ID returns the run identifier.
func (r *Run) ID() string {
	return r.id
}

// Completed reports whether a step already has a stored result.
func (r *Run) Completed(name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	_, ok := r.completed[name]

	return ok
}

// permanentError marks an error that retrying cannot fix.
type permanentError struct {
	err error
}

func (e *permanentError) Error() string { return e.err.Error() }

func (e *permanentError) Unwrap() error { return e.err }

// Permanent wraps err so Do fails the step without retrying.
func Permanent(err error) error {
	if err == nil {
		return nil
	}

	return &permanentError{err: err}
}

// IsPermanent reports whether err was marked with Permanent.
func IsPermanent(err error) bool {
	var pe *permanentError

	return errors.As(err, &pe)
}

// Do executes the named step once per run. A stored result is decoded and
// returned without calling fn. Otherwise fn is retried with exponential
// backoff until it succeeds, returns a Permanent error, or the policy is
// exhausted; a successful result is checkpointed before Do returns.
func Do[T any](ctx context.Context, r *Run, name string, fn func(ctx context.Context) (T, error)) (T, error) {
	var zero T

	r.mu.Lock()
	stored, ok := r.completed[name]
	r.mu.Unlock()

	if ok {
		var out T
		if err := json.Unmarshal(stored, &out); err != nil {
			return zero, fmt.Errorf("%w: %s: decoding checkpoint: %w", coreerrors.ErrStepFailed, name, err)
		}

		observability.PipelineStepsReplayed.WithLabelValues(name).Inc()
		r.logger.Debug().Str(logKeyRunID, r.id).Str(logKeyStep, name).Msg("step replayed from checkpoint")

		return out, nil
	}

	var (
		result  T
		attempt int
	)

	start := time.Now()

	err := retry.Do(ctx, r.policy.backoff(), func(ctx context.Context) error {
		attempt++

		if attempt > 1 {
			observability.PipelineStepRetries.WithLabelValues(name).Inc()
		}

		out, err := fn(ctx)
		if err == nil {
			result = out
			return nil
		}

		if IsPermanent(err) {
			return err
		}

		r.logger.Warn().Err(err).Str(logKeyRunID, r.id).Str(logKeyStep, name).Int(logKeyAttempt, attempt).Msg("step attempt failed")

		return retry.RetryableError(err)
	})

	observability.PipelineStepDuration.WithLabelValues(name).Observe(time.Since(start).Seconds())

	if err != nil {
		return zero, fmt.Errorf("%w: %s: %w", coreerrors.ErrStepFailed, name, err)
	}

	encoded, err := json.Marshal(result)
	if err != nil {
		return zero, fmt.Errorf("%w: %s: encoding checkpoint: %w", coreerrors.ErrStepFailed, name, err)
	}

	if err := r.log.SaveStep(ctx, r.id, name, encoded); err != nil {
		return zero, fmt.Errorf("%w: %s: saving checkpoint: %w", coreerrors.ErrStepFailed, name, err)
	}

	r.mu.Lock()
	r.completed[name] = encoded
	r.mu.Unlock()

	return result, nil
}

// Log keys.
const (
	logKeyRunID   = "run_id"
	logKeyStep    = "step"
	logKeyAttempt = "attempt"
)
