// Package casefile turns evidence into a validated case file using the
// generation service, falling back to a deterministic case file when the
// service is unavailable or keeps returning output that does not validate.
package casefile

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/KaijieWen/Feedback-Forensics-Lab/internal/core/domain"
	coreerrors "github.com/KaijieWen/Feedback-Forensics-Lab/internal/core/errors"
	"github.com/KaijieWen/Feedback-Forensics-Lab/internal/core/llm"
	"github.com/KaijieWen/Feedback-Forensics-Lab/internal/platform/observability"
	"github.com/KaijieWen/Feedback-Forensics-Lab/internal/process/scoring"
)

// Defaults used when Config leaves a field zero.
const (
	DefaultAttempts  = 3
	DefaultMaxTokens = 700
	DefaultTimeout   = 20 * time.Second
)

// Fallback case file values.
const (
	FallbackProductArea = "unknown"
	FallbackClusterHint = "general"
	FallbackUrgency     = 3
	fallbackQuestionFmt = "Can you share more detail? (%s)"
)

const (
	outcomeValid   = "valid"
	outcomeInvalid = "invalid"
	outcomeError   = "error"
	outcomeTimeout = "timeout"
	logKeyAttempt  = "attempt"
	logKeyProvider = "provider"
	logKeyReason   = "reason"
	unknownFailure = "unknown error"
)

// Config controls the generation loop.
type Config struct {
	Model     string
	MaxTokens int
	Attempts  int
	Timeout   time.Duration
}

// Generator produces case files. It never returns an error.
type Generator struct {
	client llm.Client
	cfg    Config
	logger *zerolog.Logger
}

// New creates a generator. A nil client makes every attempt fail, so every
// call yields the fallback case file.
func New(client llm.Client, cfg Config, logger *zerolog.Logger) *Generator {
	if logger == nil {
		nopLogger := zerolog.Nop()
		logger = &nopLogger
	}

	if cfg.Attempts <= 0 {
		cfg.Attempts = DefaultAttempts
	}

	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = DefaultMaxTokens
	}

	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}

	return &Generator{client: client, cfg: cfg, logger: logger}
}

// Generate returns a valid case file for the evidence. matchCount is the number
// of similar feedback items and feeds the priority score.
func (g *Generator) Generate(ctx context.Context, evidence domain.Evidence, matchCount int) domain.CaseFile {
	messages, err := BuildMessages(evidence)
	if err != nil {
		return g.fallback(evidence, matchCount, err)
	}

	var lastErr error

	for attempt := 1; attempt <= g.cfg.Attempts; attempt++ {
		cf, err := g.attempt(ctx, messages, matchCount)
		if err == nil {
			observability.CaseFileAttempts.WithLabelValues(outcomeValid).Inc()
			observability.PriorityScore.Observe(float64(cf.PriorityScore))

			return cf
		}

		observability.CaseFileAttempts.WithLabelValues(attemptOutcome(err)).Inc()
		g.logger.Warn().Err(err).Int(logKeyAttempt, attempt).Msg("case file attempt failed")

		lastErr = err

		if ctx.Err() != nil {
			break
		}
	}

	return g.fallback(evidence, matchCount, lastErr)
}

func (g *Generator) attempt(ctx context.Context, messages []llm.Message, matchCount int) (domain.CaseFile, error) {
	if g.client == nil {
		return domain.CaseFile{}, coreerrors.ErrClientNotInitialized
	}

	attemptCtx, cancel := context.WithTimeout(ctx, g.cfg.Timeout)
	defer cancel()

	resp, err := g.client.Run(attemptCtx, g.cfg.Model, llm.Request{
		Messages:  messages,
		MaxTokens: g.cfg.MaxTokens,
	})
	if err != nil {
		return domain.CaseFile{}, fmt.Errorf("generate case file: %w", err)
	}

	cf, err := Parse(resp.Text, matchCount)
	if err != nil {
		g.logger.Debug().Str(logKeyProvider, string(resp.Provider)).Err(err).Msg("generation output rejected")

		return domain.CaseFile{}, err
	}

	return cf, nil
}

func (g *Generator) fallback(evidence domain.Evidence, matchCount int, reason error) domain.CaseFile {
	observability.CaseFileFallbacks.Inc()

	cf := Fallback(evidence, matchCount, failureReason(reason))
	observability.PriorityScore.Observe(float64(cf.PriorityScore))

	g.logger.Warn().Str(logKeyReason, failureReason(reason)).Msg("using fallback case file")

	return cf
}

// Fallback builds the deterministic case file used when generation gives up.
func Fallback(evidence domain.Evidence, matchCount int, reason string) domain.CaseFile {
	jurors := domain.DefaultJurors()

	return domain.CaseFile{
		Summary:            truncateRunes(evidence.Text, domain.MaxSummaryLength),
		Category:           domain.CategoryOther,
		Sentiment:          0,
		Urgency:            FallbackUrgency,
		ProductArea:        FallbackProductArea,
		ReproStepsMarkdown: "",
		ClarifyingQuestion: fmt.Sprintf(fallbackQuestionFmt, reason),
		Jurors:             jurors,
		Keywords:           []string{},
		ClusterHint:        FallbackClusterHint,
		PriorityScore:      scoring.PriorityScore(FallbackUrgency, 0, jurors, matchCount),
	}
}

// failureReason is the text shown to the reporter. Validation failures collapse
// to the schema message; the detail stays in the logs.
func failureReason(err error) string {
	switch {
	case err == nil:
		return unknownFailure
	case errors.Is(err, coreerrors.ErrSchemaMismatch):
		return coreerrors.ErrSchemaMismatch.Error()
	default:
		return err.Error()
	}
}

func attemptOutcome(err error) string {
	switch {
	case errors.Is(err, coreerrors.ErrSchemaMismatch):
		return outcomeInvalid
	case errors.Is(err, context.DeadlineExceeded):
		return outcomeTimeout
	default:
		return outcomeError
	}
}
