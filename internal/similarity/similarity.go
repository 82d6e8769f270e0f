// Package similarity finds earlier feedback that resembles new evidence by
// embedding the text and querying a vector index.
package similarity

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/KaijieWen/Feedback-Forensics-Lab/internal/core/domain"
	"github.com/KaijieWen/Feedback-Forensics-Lab/internal/core/embeddings"
	"github.com/KaijieWen/Feedback-Forensics-Lab/internal/core/ports"
	"github.com/KaijieWen/Feedback-Forensics-Lab/internal/platform/observability"
)

// Defaults used when Config leaves a field zero.
const (
	DefaultTimeout = 10 * time.Second
	DefaultLimit   = 5

	opQuery = "query"
	opIndex = "index"
)

// Index stores feedback vectors and answers nearest-neighbour queries.
type Index interface {
	UpsertFeedbackEmbedding(ctx context.Context, feedbackID string, embedding []float32, model string) error
	FindSimilarFeedback(ctx context.Context, embedding []float32, limit int, minScore float64) ([]domain.SimilarityMatch, error)
}

// Config controls querying.
type Config struct {
	MinScore float64
	Timeout  time.Duration
}

// Service implements both the search and the indexing side.
type Service struct {
	embedder embeddings.Client
	index    Index
	cfg      Config
	logger   *zerolog.Logger
}

var (
	_ ports.SimilaritySearch  = (*Service)(nil)
	_ ports.SimilarityIndexer = (*Service)(nil)
)

// New creates a similarity service.
func New(embedder embeddings.Client, index Index, cfg Config, logger *zerolog.Logger) *Service {
	if logger == nil {
		nopLogger := zerolog.Nop()
		logger = &nopLogger
	}

	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}

	return &Service{embedder: embedder, index: index, cfg: cfg, logger: logger}
}

// Query returns up to limit matches for text, best first. Every call is
// bounded by the configured timeout.
func (s *Service) Query(ctx context.Context, text string, limit int) ([]domain.SimilarityMatch, error) {
	if strings.TrimSpace(text) == "" {
		return []domain.SimilarityMatch{}, nil
	}

	if limit <= 0 {
		limit = DefaultLimit
	}

	ctx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
	defer cancel()

	emb, err := s.embedder.GetEmbeddingWithMetadata(ctx, text)
	if err != nil {
		observability.SimilarityErrors.WithLabelValues(opQuery).Inc()
		return nil, fmt.Errorf("embed query: %w", err)
	}

	matches, err := s.index.FindSimilarFeedback(ctx, emb.Vector, limit, s.cfg.MinScore)
	if err != nil {
		observability.SimilarityErrors.WithLabelValues(opQuery).Inc()
		return nil, fmt.Errorf("search index: %w", err)
	}

	observability.SimilarityMatches.Observe(float64(len(matches)))

	return matches, nil
}

// Index embeds text and stores it under feedbackID, replacing any earlier vector.
func (s *Service) Index(ctx context.Context, feedbackID, text string) error {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
	defer cancel()

	emb, err := s.embedder.GetEmbeddingWithMetadata(ctx, text)
	if err != nil {
		observability.SimilarityErrors.WithLabelValues(opIndex).Inc()
		return fmt.Errorf("embed feedback: %w", err)
	}

	if err := s.index.UpsertFeedbackEmbedding(ctx, feedbackID, emb.Vector, emb.Model); err != nil {
		observability.SimilarityErrors.WithLabelValues(opIndex).Inc()
		return fmt.Errorf("store embedding: %w", err)
	}

	s.logger.Debug().
		Str("feedback_id", feedbackID).
		Str("provider", string(emb.Provider)).
		Msg("feedback indexed")

	return nil
}
