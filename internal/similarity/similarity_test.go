package similarity

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/KaijieWen/Feedback-Forensics-Lab/internal/core/domain"
	"github.com/KaijieWen/Feedback-Forensics-Lab/internal/core/embeddings"
)

func newMockEmbedder() embeddings.Client {
	return embeddings.NewClient(context.Background(), embeddings.Config{
		ProviderOrder:    "mock",
		TargetDimensions: 256,
	}, nil)
}

func TestService_IndexThenQuery(t *testing.T) {
	ctx := context.Background()
	index := NewMemoryIndex()
	svc := New(newMockEmbedder(), index, Config{MinScore: 0.3}, nil)

	require.NoError(t, svc.Index(ctx, "a", "Login button does nothing on Safari"))
	require.NoError(t, svc.Index(ctx, "b", "Love the new dark mode theme"))
	assert.Equal(t, 2, index.Len())

	matches, err := svc.Query(ctx, "login button broken on safari", 5)
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, "a", matches[0].ID)
	require.NotNil(t, matches[0].Score)
	assert.Greater(t, *matches[0].Score, 0.3)
}

func TestService_QueryRespectsLimitAndOrder(t *testing.T) {
	ctx := context.Background()
	svc := New(newMockEmbedder(), NewMemoryIndex(), Config{}, nil)

	require.NoError(t, svc.Index(ctx, "exact", "cache purge is slow"))
	require.NoError(t, svc.Index(ctx, "close", "cache purge is slow today again"))
	require.NoError(t, svc.Index(ctx, "other", "billing page shows wrong currency"))

	matches, err := svc.Query(ctx, "cache purge is slow", 2)
	require.NoError(t, err)
	require.Len(t, matches, 2)
	assert.Equal(t, "exact", matches[0].ID)
	assert.Equal(t, "close", matches[1].ID)
}

func TestService_EmptyText(t *testing.T) {
	svc := New(newMockEmbedder(), NewMemoryIndex(), Config{}, nil)

	matches, err := svc.Query(context.Background(), "   ", 5)
	require.NoError(t, err)
	assert.Empty(t, matches)
}

type failingEmbedder struct{ err error }

func (f failingEmbedder) GetEmbeddingWithMetadata(context.Context, string) (embeddings.EmbeddingResult, error) {
	return embeddings.EmbeddingResult{}, f.err
}

type slowIndex struct{ *MemoryIndex }

func (s slowIndex) FindSimilarFeedback(ctx context.Context, _ []float32, _ int, _ float64) ([]domain.SimilarityMatch, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func TestService_Errors(t *testing.T) {
	boom := errors.New("quota exceeded")
	svc := New(failingEmbedder{err: boom}, NewMemoryIndex(), Config{}, nil)

	_, err := svc.Query(context.Background(), "text", 5)
	require.ErrorIs(t, err, boom)

	require.ErrorIs(t, svc.Index(context.Background(), "id", "text"), boom)
}

func TestService_QueryTimeout(t *testing.T) {
	svc := New(newMockEmbedder(), slowIndex{NewMemoryIndex()}, Config{Timeout: 10 * time.Millisecond}, nil)

	_, err := svc.Query(context.Background(), "text", 5)
	require.ErrorIs(t, err, context.DeadlineExceeded)
}
