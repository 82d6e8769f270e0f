package dispatch

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/KaijieWen/Feedback-Forensics-Lab/internal/core/ports"
	"github.com/KaijieWen/Feedback-Forensics-Lab/internal/platform/observability"
	"github.com/KaijieWen/Feedback-Forensics-Lab/internal/platform/worker"
	db "github.com/KaijieWen/Feedback-Forensics-Lab/internal/storage"
)

// Worker defaults.
const (
	DefaultConcurrency      = 4
	DefaultBatchSize        = 10
	DefaultPollInterval     = 2 * time.Second
	DefaultMaxAttempts      = 5
	DefaultRetryBase        = 30 * time.Second
	DefaultStuckThreshold   = 10 * time.Minute
	DefaultRecoveryInterval = time.Minute
	DefaultBacklogInterval  = 30 * time.Second

	maxRetryDelay = 30 * time.Minute
	workerName    = "pipeline"
)

// Queue is the durable run queue the worker consumes.
type Queue interface {
	ports.StepLog
	ClaimNextRun(ctx context.Context) (*db.PipelineRun, error)
	CompleteRun(ctx context.Context, runID string) error
	RetryRun(ctx context.Context, runID, errMsg string, retryAt time.Time) error
	FailRun(ctx context.Context, runID, errMsg string) error
	RecoverStuckRuns(ctx context.Context, stuckThreshold time.Duration) (int64, error)
	CountPendingRuns(ctx context.Context) (int, error)
}

var _ Queue = (*db.DB)(nil)

// WorkerConfig tunes the worker pool.
type WorkerConfig struct {
	Concurrency      int
	BatchSize        int
	PollInterval     time.Duration
	MaxAttempts      int
	RetryBase        time.Duration
	StuckThreshold   time.Duration
	RecoveryInterval time.Duration
}

func (c WorkerConfig) withDefaults() WorkerConfig {
	if c.Concurrency <= 0 {
		c.Concurrency = DefaultConcurrency
	}

	if c.BatchSize <= 0 {
		c.BatchSize = DefaultBatchSize
	}

	if c.PollInterval <= 0 {
		c.PollInterval = DefaultPollInterval
	}

	if c.MaxAttempts <= 0 {
		c.MaxAttempts = DefaultMaxAttempts
	}

	if c.RetryBase <= 0 {
		c.RetryBase = DefaultRetryBase
	}

	if c.StuckThreshold <= 0 {
		c.StuckThreshold = DefaultStuckThreshold
	}

	if c.RecoveryInterval <= 0 {
		c.RecoveryInterval = DefaultRecoveryInterval
	}

	return c
}

// Worker claims queued runs and executes them on a bounded pool. Runs for
// different feedback items proceed in parallel with no shared lock.
type Worker struct {
	queue  Queue
	runner Runner
	cfg    WorkerConfig
	logger *zerolog.Logger
	now    func() time.Time
}

// NewWorker creates a worker.
func NewWorker(queue Queue, runner Runner, cfg WorkerConfig, logger *zerolog.Logger) *Worker {
	if logger == nil {
		nopLogger := zerolog.Nop()
		logger = &nopLogger
	}

	return &Worker{queue: queue, runner: runner, cfg: cfg.withDefaults(), logger: logger, now: time.Now}
}

// Run polls the queue until ctx is canceled.
func (w *Worker) Run(ctx context.Context) error {
	return worker.Loop(ctx, worker.Config{
		Name:         workerName,
		PollInterval: w.cfg.PollInterval,
		Process:      w.ProcessBatch,
		PeriodicTasks: []worker.PeriodicTask{
			{Name: "recover_stuck_runs", Interval: w.cfg.RecoveryInterval, Run: w.recoverStuck},
			{Name: "queue_backlog", Interval: DefaultBacklogInterval, Run: w.reportBacklog},
		},
		Logger: w.logger,
	})
}

// ProcessBatch claims up to BatchSize runs and executes them, at most
// Concurrency at a time. It returns once every claimed run has finished.
func (w *Worker) ProcessBatch(ctx context.Context) error {
	var g errgroup.Group

	g.SetLimit(w.cfg.Concurrency)

	var claimErr error

	for i := 0; i < w.cfg.BatchSize; i++ {
		run, err := w.queue.ClaimNextRun(ctx)
		if err != nil {
			claimErr = err
			break
		}

		if run == nil {
			break
		}

		g.Go(func() error {
			w.execute(ctx, run)
			return nil
		})
	}

	_ = g.Wait() //nolint:errcheck // execute never returns an error

	return claimErr
}

func (w *Worker) execute(ctx context.Context, run *db.PipelineRun) {
	logger := w.logger.With().
		Str(logKeyRunID, run.ID).
		Str(logKeyFeedbackID, run.FeedbackID).
		Int(logKeyAttempt, run.AttemptCount).
		Logger()

	err := w.runSafely(ctx, run, &logger)
	if err == nil {
		if cerr := w.queue.CompleteRun(ctx, run.ID); cerr != nil {
			logger.Warn().Err(cerr).Msg("failed to mark run done")
		}

		return
	}

	if run.AttemptCount >= w.cfg.MaxAttempts {
		logger.Error().Err(err).Msg("pipeline run gave up")

		if ferr := w.queue.FailRun(ctx, run.ID, err.Error()); ferr != nil {
			logger.Warn().Err(ferr).Msg("failed to mark run failed")
		}

		return
	}

	retryAt := w.now().Add(RetryDelay(w.cfg.RetryBase, run.AttemptCount))
	logger.Warn().Err(err).Time("retry_at", retryAt).Msg("pipeline run will be retried")

	if rerr := w.queue.RetryRun(ctx, run.ID, err.Error(), retryAt); rerr != nil {
		logger.Warn().Err(rerr).Msg("failed to reschedule run")
	}
}

func (w *Worker) runSafely(ctx context.Context, run *db.PipelineRun, logger *zerolog.Logger) (err error) {
	defer worker.Recover(logger, "pipeline run", &err)

	return w.runner.Run(ctx, w.queue, run.ID, run.FeedbackID)
}

func (w *Worker) recoverStuck(ctx context.Context) {
	n, err := w.queue.RecoverStuckRuns(ctx, w.cfg.StuckThreshold)
	if err != nil {
		w.logger.Warn().Err(err).Msg("failed to recover stuck runs")
		return
	}

	if n > 0 {
		observability.RunsRecovered.Add(float64(n))
		w.logger.Info().Int64("recovered", n).Msg("requeued stuck pipeline runs")
	}
}

func (w *Worker) reportBacklog(ctx context.Context) {
	n, err := w.queue.CountPendingRuns(ctx)
	if err != nil {
		w.logger.Warn().Err(err).Msg("failed to count pending runs")
		return
	}

	observability.RunQueueBacklog.Set(float64(n))
}

// RetryDelay doubles base for every attempt after the first, up to 30 minutes.
func RetryDelay(base time.Duration, attempt int) time.Duration {
	d := base

	for i := 1; i < attempt; i++ {
		d *= 2
		if d >= maxRetryDelay {
			return maxRetryDelay
		}
	}

	return d
}
