package embeddings

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errProviderDown = errors.New("provider down")

type stubProvider struct {
	name     ProviderName
	priority int
	vec      []float32
	err      error
	calls    int
}

func (s *stubProvider) Name() ProviderName { return s.name }
func (s *stubProvider) Model() string      { return "stub-" + string(s.name) }
func (s *stubProvider) IsAvailable() bool  { return true }
func (s *stubProvider) Priority() int      { return s.priority }
func (s *stubProvider) Dimensions() int    { return len(s.vec) }

func (s *stubProvider) GetEmbedding(context.Context, string) (EmbeddingResult, error) {
	s.calls++
	if s.err != nil {
		return EmbeddingResult{}, s.err
	}

	return EmbeddingResult{Vector: s.vec, Dimensions: len(s.vec), Provider: s.name}, nil
}

func newTestRegistry(dims int) *Registry {
	logger := zerolog.Nop()
	return NewRegistry(dims, &logger)
}

func TestRegistry_FallsBackToNextProvider(t *testing.T) {
	reg := newTestRegistry(4)
	primary := &stubProvider{name: ProviderOpenAI, priority: PriorityPrimary, err: errProviderDown}
	fallback := &stubProvider{name: ProviderGoogle, priority: PriorityFallback, vec: []float32{1, 0}}

	reg.Register(fallback, DefaultCircuitBreakerConfig())
	reg.Register(primary, DefaultCircuitBreakerConfig())

	assert.Equal(t, []ProviderName{ProviderOpenAI, ProviderGoogle}, reg.ProviderNames())

	res, err := reg.GetEmbeddingWithMetadata(context.Background(), "login fails")
	require.NoError(t, err)
	assert.Equal(t, ProviderGoogle, res.Provider)
	assert.Equal(t, "stub-google", res.Model)
	assert.Equal(t, []float32{1, 0, 0, 0}, res.Vector)
	assert.Equal(t, 1, primary.calls)
}

func TestRegistry_SkipsOpenCircuit(t *testing.T) {
	reg := newTestRegistry(2)
	primary := &stubProvider{name: ProviderOpenAI, priority: PriorityPrimary, err: errProviderDown}
	fallback := &stubProvider{name: ProviderMock, priority: PriorityMock, vec: []float32{0, 1}}

	cb := CircuitBreakerConfig{Threshold: 1, ResetAfter: time.Hour}
	reg.Register(primary, cb)
	reg.Register(fallback, cb)

	for i := 0; i < 3; i++ {
		_, err := reg.GetEmbedding(context.Background(), "text")
		require.NoError(t, err)
	}

	assert.Equal(t, 1, primary.calls, "open circuit must not be retried")
	assert.Equal(t, 3, fallback.calls)
}

func TestRegistry_AllProvidersFailed(t *testing.T) {
	reg := newTestRegistry(2)
	reg.Register(&stubProvider{name: ProviderOpenAI, priority: PriorityPrimary, err: errProviderDown}, DefaultCircuitBreakerConfig())

	_, err := reg.GetEmbedding(context.Background(), "text")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrAllProvidersFailed)
	assert.ErrorIs(t, err, errProviderDown)
}

func TestRegistry_NoProviders(t *testing.T) {
	_, err := newTestRegistry(2).GetEmbedding(context.Background(), "text")
	assert.ErrorIs(t, err, ErrNoProvidersAvailable)
}

func TestNewClient_DefaultsToMock(t *testing.T) {
	logger := zerolog.Nop()
	reg := NewClient(context.Background(), Config{}, &logger)

	assert.Equal(t, []ProviderName{ProviderMock}, reg.ProviderNames())

	res, err := reg.GetEmbeddingWithMetadata(context.Background(), "hello")
	require.NoError(t, err)
	assert.Len(t, res.Vector, DefaultDimensions)
	assert.Equal(t, MockModel, res.Model)
}

func TestCircuitBreaker_OpensAndResets(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	cb := NewCircuitBreaker(CircuitBreakerConfig{Threshold: 2, ResetAfter: time.Minute}, nil)
	cb.now = func() time.Time { return now }

	assert.False(t, cb.RecordFailure("p"))
	assert.True(t, cb.CanAttempt())
	assert.True(t, cb.RecordFailure("p"))
	assert.True(t, cb.IsOpen())
	assert.Error(t, cb.CheckCircuit())

	now = now.Add(time.Minute)
	assert.True(t, cb.CanAttempt())

	cb.Reset()
	assert.NoError(t, cb.CheckCircuit())
}
