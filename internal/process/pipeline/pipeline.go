// Package pipeline turns one feedback item into a case file and a cluster
// assignment through six checkpointed steps:
//
//	markProcessing -> loadEvidence -> similaritySearch -> generateCaseFile
//	-> assignCluster -> persistResults
//
// Failures never escape Run as long as the failed status can be recorded.
package pipeline

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/KaijieWen/Feedback-Forensics-Lab/internal/core/domain"
	coreerrors "github.com/KaijieWen/Feedback-Forensics-Lab/internal/core/errors"
	"github.com/KaijieWen/Feedback-Forensics-Lab/internal/core/ports"
	"github.com/KaijieWen/Feedback-Forensics-Lab/internal/platform/observability"
	"github.com/KaijieWen/Feedback-Forensics-Lab/internal/platform/workflow"
	"github.com/KaijieWen/Feedback-Forensics-Lab/internal/process/clustering"
)

// CaseFileGenerator produces a valid case file and never fails.
type CaseFileGenerator interface {
	Generate(ctx context.Context, evidence domain.Evidence, matchCount int) domain.CaseFile
}

// ClusterResolver picks the cluster for a feedback item.
type ClusterResolver interface {
	Resolve(ctx context.Context, feedbackID string, caseFile domain.CaseFile, matches []domain.SimilarityMatch) (string, clustering.Assignment, error)
}

// Deps are the pipeline's collaborators. Search and Indexer may be nil.
type Deps struct {
	Gateway   ports.Gateway
	Evidence  ports.EvidenceStore
	Search    ports.SimilaritySearch
	Indexer   ports.SimilarityIndexer
	Generator CaseFileGenerator
	Resolver  ClusterResolver
}

// Config tunes the pipeline.
type Config struct {
	SimilarityLimit int
	StepPolicy      workflow.RetryPolicy
}

// Pipeline runs the analysis steps for one feedback item at a time. It is safe
// for concurrent use by runs for different feedback items.
type Pipeline struct {
	deps   Deps
	cfg    Config
	logger *zerolog.Logger
}

// New creates a pipeline.
func New(deps Deps, cfg Config, logger *zerolog.Logger) *Pipeline {
	if logger == nil {
		nopLogger := zerolog.Nop()
		logger = &nopLogger
	}

	if cfg.SimilarityLimit <= 0 {
		cfg.SimilarityLimit = DefaultSimilarityLimit
	}

	return &Pipeline{deps: deps, cfg: cfg, logger: logger}
}

type assignment struct {
	ClusterID string                `json:"cluster_id"`
	Kind      clustering.Assignment `json:"kind"`
}

// Run executes (or resumes) run runID for feedbackID, checkpointing each step
// in stepLog. Step failures are recorded on the feedback row as status failed
// and Run returns nil; Run returns an error only when that status could not be
// written or ctx ended mid-run, so the caller can try the run again later.
func (p *Pipeline) Run(ctx context.Context, stepLog ports.StepLog, runID, feedbackID string) error {
	logger := p.logger.With().Str(LogFieldRunID, runID).Str(LogFieldFeedbackID, feedbackID).Logger()

	run, err := workflow.Start(ctx, stepLog, runID, p.cfg.StepPolicy, &logger)
	if err == nil {
		err = p.execute(ctx, run, feedbackID, &logger)
	}

	if err != nil {
		if ctx.Err() != nil {
			// Shutdown: leave the run claimed so stuck-run recovery requeues it.
			return fmt.Errorf("pipeline run interrupted: %w", err)
		}

		return p.fail(ctx, feedbackID, err, &logger)
	}

	observability.PipelineRuns.WithLabelValues(string(domain.StatusReady)).Inc()

	return nil
}

func (p *Pipeline) execute(ctx context.Context, run *workflow.Run, feedbackID string, logger *zerolog.Logger) error {
	if _, err := workflow.Do(ctx, run, StepMarkProcessing, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, p.deps.Gateway.UpdateFeedbackStatus(ctx, feedbackID, domain.StatusProcessing, "", "")
	}); err != nil {
		return err
	}

	evidence, err := workflow.Do(ctx, run, StepLoadEvidence, func(ctx context.Context) (domain.Evidence, error) {
		return p.loadEvidence(ctx, feedbackID)
	})
	if err != nil {
		if !isEvidenceError(err) {
			err = fmt.Errorf("%w: %w", coreerrors.ErrEvidenceUnavailable, err)
		}

		return err
	}

	matches, err := workflow.Do(ctx, run, StepSimilaritySearch, func(ctx context.Context) ([]domain.SimilarityMatch, error) {
		return p.similar(ctx, feedbackID, evidence.Text, logger), nil
	})
	if err != nil {
		return err
	}

	caseFile, err := workflow.Do(ctx, run, StepGenerateCaseFile, func(ctx context.Context) (domain.CaseFile, error) {
		return p.deps.Generator.Generate(ctx, evidence, len(matches)), nil
	})
	if err != nil {
		return err
	}

	assigned, err := workflow.Do(ctx, run, StepAssignCluster, func(ctx context.Context) (assignment, error) {
		clusterID, kind, err := p.deps.Resolver.Resolve(ctx, feedbackID, caseFile, matches)
		if err != nil {
			return assignment{}, err
		}

		observability.ClusterAssignments.WithLabelValues(string(kind)).Inc()

		return assignment{ClusterID: clusterID, Kind: kind}, nil
	})
	if err != nil {
		return err
	}

	if _, err := workflow.Do(ctx, run, StepPersistResults, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, p.persist(ctx, feedbackID, evidence.Text, caseFile, assigned.ClusterID, matches, logger)
	}); err != nil {
		return err
	}

	logger.Info().
		Str(LogFieldClusterID, assigned.ClusterID).
		Str(LogFieldCategory, string(caseFile.Category)).
		Int(LogFieldScore, caseFile.PriorityScore).
		Int(LogFieldMatches, len(matches)).
		Msg("feedback analyzed")

	return nil
}

func (p *Pipeline) loadEvidence(ctx context.Context, feedbackID string) (domain.Evidence, error) {
	fb, err := p.deps.Gateway.GetFeedback(ctx, feedbackID)
	if err != nil {
		if errors.Is(err, coreerrors.ErrFeedbackNotFound) {
			return domain.Evidence{}, workflow.Permanent(fmt.Errorf("%w: %w", coreerrors.ErrEvidenceMissing, err))
		}

		return domain.Evidence{}, err
	}

	if fb.EvidenceRef == "" {
		return domain.Evidence{}, workflow.Permanent(coreerrors.ErrEvidenceMissing)
	}

	evidence, err := p.deps.Evidence.GetEvidence(ctx, fb.EvidenceRef)
	if err != nil {
		if isEvidenceError(err) {
			return domain.Evidence{}, workflow.Permanent(err)
		}

		return domain.Evidence{}, err
	}

	return evidence, nil
}

// similar returns matches for text other than the feedback item itself.
// Provider errors and timeouts degrade to no matches.
func (p *Pipeline) similar(ctx context.Context, feedbackID, text string, logger *zerolog.Logger) []domain.SimilarityMatch {
	matches := []domain.SimilarityMatch{}

	if p.deps.Search == nil {
		return matches
	}

	// One extra so a previously indexed copy of this item does not cost a slot.
	found, err := p.deps.Search.Query(ctx, text, p.cfg.SimilarityLimit+1)
	if err != nil {
		logger.Warn().Err(err).Msg("similarity search failed, continuing without matches")
		return matches
	}

	for _, m := range found {
		if m.ID == "" || m.ID == feedbackID {
			continue
		}

		matches = append(matches, m)

		if len(matches) == p.cfg.SimilarityLimit {
			break
		}
	}

	return matches
}

func (p *Pipeline) persist(ctx context.Context, feedbackID, text string, caseFile domain.CaseFile, clusterID string, matches []domain.SimilarityMatch, logger *zerolog.Logger) error {
	gw := p.deps.Gateway

	for _, m := range matches {
		if err := gw.UpsertSimilarityEdge(ctx, feedbackID, m.ID, m.Score); err != nil {
			return err
		}
	}

	if err := gw.UpsertCaseFile(ctx, feedbackID, caseFile, clusterID); err != nil {
		return err
	}

	if err := gw.UpsertClusterMember(ctx, clusterID, feedbackID, domain.TopScore(clustering.SortMatches(matches))); err != nil {
		return err
	}

	if p.deps.Indexer != nil {
		if err := p.deps.Indexer.Index(ctx, feedbackID, text); err != nil {
			logger.Warn().Err(err).Msg("failed to index feedback for similarity search")
		}
	}

	return gw.UpdateFeedbackStatus(ctx, feedbackID, domain.StatusReady, "", "")
}

func (p *Pipeline) fail(ctx context.Context, feedbackID string, cause error, logger *zerolog.Logger) error {
	code := ErrorCode(cause)

	observability.PipelineRuns.WithLabelValues(string(domain.StatusFailed)).Inc()
	logger.Error().Err(cause).Str(LogFieldErrorCode, code).Msg("pipeline run failed")

	if err := p.deps.Gateway.UpdateFeedbackStatus(ctx, feedbackID, domain.StatusFailed, code, cause.Error()); err != nil {
		return fmt.Errorf("record failed status: %w", errors.Join(err, cause))
	}

	return nil
}

// ErrorCode maps a run failure to the code stored on the feedback row.
func ErrorCode(err error) string {
	if isEvidenceError(err) || errors.Is(err, coreerrors.ErrEvidenceUnavailable) {
		return domain.ErrorCodeEvidenceMissing
	}

	return domain.ErrorCodeWorkflowError
}

func isEvidenceError(err error) bool {
	return errors.Is(err, coreerrors.ErrEvidenceMissing) ||
		errors.Is(err, coreerrors.ErrEvidenceNotFound) ||
		errors.Is(err, coreerrors.ErrEvidenceCorrupt)
}
