// Package dispatch starts pipeline runs. Ingestion hands feedback ids to a
// Dispatcher, which records a durable run for the worker pool; when the queue
// cannot take the run, the pipeline executes inline instead.
package dispatch

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	coreerrors "github.com/KaijieWen/Feedback-Forensics-Lab/internal/core/errors"
	"github.com/KaijieWen/Feedback-Forensics-Lab/internal/core/ports"
	"github.com/KaijieWen/Feedback-Forensics-Lab/internal/platform/observability"
	"github.com/KaijieWen/Feedback-Forensics-Lab/internal/platform/workflow"
)

const (
	logKeyFeedbackID = "feedback_id"
	logKeyRunID      = "run_id"
	logKeyAttempt    = "attempt"

	inlineRunPrefix = "inline-"
)

// DefaultInlineTimeout bounds an inline run. It covers every step's retries
// and the generation attempts.
const DefaultInlineTimeout = 2 * time.Minute

// Runner executes one pipeline run.
type Runner interface {
	Run(ctx context.Context, stepLog ports.StepLog, runID, feedbackID string) error
}

// Dispatcher triggers pipeline runs.
type Dispatcher struct {
	queue         ports.RunQueue
	runner        Runner
	inlineTimeout time.Duration
	logger        *zerolog.Logger
}

// NewDispatcher creates a dispatcher. A nil queue makes every trigger inline.
func NewDispatcher(queue ports.RunQueue, runner Runner, logger *zerolog.Logger) *Dispatcher {
	if logger == nil {
		nopLogger := zerolog.Nop()
		logger = &nopLogger
	}

	return &Dispatcher{queue: queue, runner: runner, inlineTimeout: DefaultInlineTimeout, logger: logger}
}

// Trigger schedules a run for feedbackID. If scheduling fails the run happens
// synchronously with an in-memory step log. The inline run is detached from
// ctx cancellation, since no durable run exists to recover it if the caller
// goes away, and is bounded by the inline timeout instead. The returned error
// wraps ErrSchedulingFailed and means neither path produced a recorded outcome.
func (d *Dispatcher) Trigger(ctx context.Context, feedbackID string) error {
	if d.queue != nil {
		runID, err := d.queue.EnqueueRun(ctx, feedbackID)
		if err == nil {
			d.logger.Debug().Str(logKeyFeedbackID, feedbackID).Str(logKeyRunID, runID).Msg("pipeline run enqueued")
			return nil
		}

		d.logger.Warn().Err(err).Str(logKeyFeedbackID, feedbackID).Msg("enqueue failed, running pipeline inline")
	}

	observability.DispatchFallbacks.Inc()

	inlineCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), d.inlineTimeout)
	defer cancel()

	runID := inlineRunPrefix + uuid.NewString()
	if err := d.runner.Run(inlineCtx, workflow.NewMemoryLog(), runID, feedbackID); err != nil {
		return fmt.Errorf("%w: %w", coreerrors.ErrSchedulingFailed, err)
	}

	return nil
}
