// Package app provides the main application bootstrap and runtime orchestration.
//
// The App type wires together all dependencies and exposes methods to run
// different operational modes:
//
//   - API mode: ingestion and retry endpoints
//   - Worker mode: the pipeline worker pool consuming the run queue
//   - All mode: both of the above in one process
//
// Every mode also serves /healthz, /readyz and /metrics on the health port.
package app

import (
	"context"
	"fmt"
	"io"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/KaijieWen/Feedback-Forensics-Lab/internal/api"
	"github.com/KaijieWen/Feedback-Forensics-Lab/internal/core/embeddings"
	"github.com/KaijieWen/Feedback-Forensics-Lab/internal/core/llm"
	"github.com/KaijieWen/Feedback-Forensics-Lab/internal/core/ports"
	"github.com/KaijieWen/Feedback-Forensics-Lab/internal/evidencestore"
	"github.com/KaijieWen/Feedback-Forensics-Lab/internal/platform/config"
	"github.com/KaijieWen/Feedback-Forensics-Lab/internal/platform/observability"
	"github.com/KaijieWen/Feedback-Forensics-Lab/internal/platform/workflow"
	"github.com/KaijieWen/Feedback-Forensics-Lab/internal/process/casefile"
	"github.com/KaijieWen/Feedback-Forensics-Lab/internal/process/clustering"
	"github.com/KaijieWen/Feedback-Forensics-Lab/internal/process/dispatch"
	"github.com/KaijieWen/Feedback-Forensics-Lab/internal/process/pipeline"
	"github.com/KaijieWen/Feedback-Forensics-Lab/internal/similarity"
	db "github.com/KaijieWen/Feedback-Forensics-Lab/internal/storage"
)

// Modes accepted by Run.
const (
	ModeAPI    = "api"
	ModeWorker = "worker"
	ModeAll    = "all"
)

const (
	logFieldComponent = "component"
	logFieldBackend   = "backend"
	logFieldMode      = "mode"
)

// App holds the application dependencies and provides methods to run different modes.
type App struct {
	cfg      *config.Config
	database *db.DB
	logger   *zerolog.Logger
}

// New creates a new App instance with the given dependencies.
func New(cfg *config.Config, database *db.DB, logger *zerolog.Logger) *App {
	return &App{
		cfg:      cfg,
		database: database,
		logger:   logger,
	}
}

// Run starts the given mode and blocks until ctx is canceled or a component fails.
func (a *App) Run(ctx context.Context, mode string) error {
	switch mode {
	case ModeAPI, ModeWorker, ModeAll:
	default:
		return fmt.Errorf("%w: %q", ErrUnknownMode, mode)
	}

	a.logger.Info().Str(logFieldMode, mode).Msg("Starting application")

	evidence, closer, err := a.newEvidenceStore(ctx)
	if err != nil {
		return err
	}
	defer closer.Close() //nolint:errcheck // best-effort on shutdown

	generation := a.newLLMClient(ctx)
	runner := a.newPipeline(ctx, evidence, generation)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error { return a.StartHealthServer(gctx, generation) })

	if mode == ModeAPI || mode == ModeAll {
		g.Go(func() error { return a.runAPI(gctx, evidence, runner) })
	}

	if mode == ModeWorker || mode == ModeAll {
		g.Go(func() error { return a.runWorker(gctx, runner) })
	}

	if err := g.Wait(); err != nil {
		return fmt.Errorf("%s mode: %w", mode, err)
	}

	return nil
}

// StartHealthServer starts the health check and metrics server. Reporters are
// listed on /readyz.
func (a *App) StartHealthServer(ctx context.Context, reporters ...observability.StatusReporter) error {
	srv := observability.NewServer(a.database, a.cfg.HealthPort, a.logger, reporters...)

	if err := srv.Start(ctx); err != nil {
		return fmt.Errorf("health server start: %w", err)
	}

	return nil
}

func (a *App) runAPI(ctx context.Context, evidence ports.EvidenceStore, runner dispatch.Runner) error {
	logger := a.logger.With().Str(logFieldComponent, "api").Logger()

	srv := api.NewServer(api.Deps{
		Feedback: a.database,
		Evidence: evidence,
		Trigger:  dispatch.NewDispatcher(a.database, runner, &logger),
		AdminKey: a.cfg.AdminAPIKey,
		Logger:   &logger,
	}, a.cfg.HTTPPort)

	return srv.Start(ctx)
}

func (a *App) runWorker(ctx context.Context, runner dispatch.Runner) error {
	logger := a.logger.With().Str(logFieldComponent, "worker").Logger()

	w := dispatch.NewWorker(a.database, runner, dispatch.WorkerConfig{
		Concurrency:      a.cfg.WorkerConcurrency,
		BatchSize:        a.cfg.WorkerBatchSize,
		PollInterval:     a.cfg.WorkerPollInterval,
		MaxAttempts:      a.cfg.RunMaxAttempts,
		RetryBase:        a.cfg.RunRetryBase,
		StuckThreshold:   a.cfg.StuckRunThreshold,
		RecoveryInterval: a.cfg.RunRecoveryInterval,
	}, &logger)

	return w.Run(ctx)
}

func (a *App) newPipeline(ctx context.Context, evidence ports.EvidenceStore, generation llm.Client) *pipeline.Pipeline {
	logger := a.logger.With().Str(logFieldComponent, "pipeline").Logger()

	deps := pipeline.Deps{
		Gateway:   a.database,
		Evidence:  evidence,
		Generator: a.newGenerator(generation),
		Resolver:  clustering.New(a.database, &logger),
	}

	if a.cfg.SimilarityEnabled {
		search := similarity.New(a.newEmbeddingClient(ctx), a.database, similarity.Config{
			MinScore: a.cfg.SimilarityMinScore,
			Timeout:  a.cfg.SimilarityTimeout,
		}, &logger)

		deps.Search = search
		deps.Indexer = search
	}

	return pipeline.New(deps, pipeline.Config{
		SimilarityLimit: a.cfg.SimilarityLimit,
		StepPolicy: workflow.RetryPolicy{
			MaxAttempts: a.cfg.StepMaxAttempts,
			BaseDelay:   a.cfg.StepRetryBase,
			MaxDelay:    a.cfg.StepRetryMaxDelay,
		},
	}, &logger)
}

func (a *App) newGenerator(generation llm.Client) *casefile.Generator {
	logger := a.logger.With().Str(logFieldComponent, "casefile").Logger()

	return casefile.New(generation, casefile.Config{
		Model:     a.cfg.LLMModel,
		MaxTokens: a.cfg.LLMMaxTokens,
		Attempts:  a.cfg.GenerationAttempts,
		Timeout:   a.cfg.GenerationTimeout,
	}, &logger)
}

// newEvidenceStore returns the configured evidence backend and a closer for it.
func (a *App) newEvidenceStore(ctx context.Context) (ports.EvidenceStore, io.Closer, error) {
	a.logger.Info().Str(logFieldBackend, a.cfg.EvidenceBackend).Msg("Evidence store selected")

	if a.cfg.EvidenceBackend != config.EvidenceBackendRedis {
		return a.database, nopCloser{}, nil
	}

	logger := a.logger.With().Str(logFieldComponent, "evidence").Logger()

	store, err := evidencestore.NewRedis(ctx, a.cfg.RedisURL, &logger)
	if err != nil {
		return nil, nil, fmt.Errorf("evidence store init: %w", err)
	}

	return store, store, nil
}

func (a *App) newLLMClient(ctx context.Context) *llm.Registry {
	logger := a.logger.With().Str(logFieldComponent, "llm").Logger()

	return llm.New(ctx, a.cfg, &logger)
}

func (a *App) newEmbeddingClient(ctx context.Context) embeddings.Client {
	logger := a.logger.With().Str(logFieldComponent, "embeddings").Logger()

	return embeddings.NewClient(ctx, embeddings.Config{
		OpenAIAPIKey:     a.cfg.LLMAPIKey,
		OpenAIModel:      a.cfg.EmbeddingModel,
		OpenAIDimensions: a.cfg.EmbeddingDimensions,
		OpenAIRateLimit:  a.cfg.RateLimitRPS,
		GoogleAPIKey:     a.cfg.GoogleAPIKey,
		GoogleModel:      a.cfg.GoogleEmbedModel,
		GoogleRateLimit:  a.cfg.RateLimitRPS,
		ProviderOrder:    a.cfg.EmbeddingProvider,
		CircuitBreakerConfig: embeddings.CircuitBreakerConfig{
			Threshold:  a.cfg.CircuitBreakerThreshold,
			ResetAfter: a.cfg.CircuitBreakerTimeout,
		},
		TargetDimensions: a.cfg.EmbeddingDimensions,
	}, &logger)
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
