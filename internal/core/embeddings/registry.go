package embeddings

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Registry errors.
var (
	ErrNoProvidersAvailable = errors.New("no embedding providers available")
	ErrAllProvidersFailed   = errors.New("all embedding providers failed")
)

const logKeyProvider = "provider"

// Registry manages embedding providers with fallback support.
type Registry struct {
	mu              sync.RWMutex
	providers       map[ProviderName]Provider
	order           []ProviderName // Priority order (highest first)
	circuitBreakers map[ProviderName]*CircuitBreaker
	targetDimension int
	logger          *zerolog.Logger
}

// NewRegistry creates a new provider registry.
func NewRegistry(targetDimension int, logger *zerolog.Logger) *Registry {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}

	return &Registry{
		providers:       make(map[ProviderName]Provider),
		order:           make([]ProviderName, 0),
		circuitBreakers: make(map[ProviderName]*CircuitBreaker),
		targetDimension: targetDimension,
		logger:          logger,
	}
}

// Register adds a provider to the registry.
func (r *Registry) Register(p Provider, cfg CircuitBreakerConfig) {
	r.mu.Lock()
	defer r.mu.Unlock()

	name := p.Name()
	if _, exists := r.providers[name]; !exists {
		r.order = append(r.order, name)
	}

	r.providers[name] = p
	r.circuitBreakers[name] = NewCircuitBreaker(cfg, r.logger)

	sort.SliceStable(r.order, func(i, j int) bool {
		return r.providers[r.order[i]].Priority() > r.providers[r.order[j]].Priority()
	})

	SetEmbeddingProviderAvailable(string(name), p.IsAvailable())

	r.logger.Info().
		Str(logKeyProvider, string(name)).
		Int("priority", p.Priority()).
		Int("dimensions", p.Dimensions()).
		Msg("registered embedding provider")
}

// GetEmbedding returns a vector padded or truncated to the target dimension.
func (r *Registry) GetEmbedding(ctx context.Context, text string) ([]float32, error) {
	result, err := r.GetEmbeddingWithMetadata(ctx, text)
	if err != nil {
		return nil, err
	}

	return result.Vector, nil
}

// GetEmbeddingWithMetadata tries providers in priority order, skipping open
// circuits, and returns the first successful result.
func (r *Registry) GetEmbeddingWithMetadata(ctx context.Context, text string) (EmbeddingResult, error) {
	r.mu.RLock()
	providers := r.getActiveProviders()

	primaryProvider := ""
	if len(r.order) > 0 {
		primaryProvider = string(r.order[0])
	}

	r.mu.RUnlock()

	if len(providers) == 0 {
		return EmbeddingResult{}, ErrNoProvidersAvailable
	}

	var lastErr error

	for _, p := range providers {
		cb := r.getCircuitBreaker(p.Name())
		providerName := string(p.Name())

		if !cb.CanAttempt() {
			r.logger.Debug().
				Str(logKeyProvider, providerName).
				Msg("skipping provider - circuit breaker open")
			SetEmbeddingProviderAvailable(providerName, false)

			continue
		}

		start := time.Now()
		result, err := p.GetEmbedding(ctx, text)
		RecordEmbeddingLatency(providerName, p.Model(), time.Since(start))

		if err != nil {
			cb.RecordFailure(providerName)
			RecordEmbeddingRequest(providerName, p.Model(), false)

			lastErr = err

			r.logger.Warn().
				Err(err).
				Str(logKeyProvider, providerName).
				Msg("embedding provider failed, trying fallback")

			continue
		}

		cb.RecordSuccess()
		RecordEmbeddingRequest(providerName, p.Model(), true)
		SetEmbeddingProviderAvailable(providerName, true)

		if primaryProvider != "" && providerName != primaryProvider {
			RecordEmbeddingFallback(primaryProvider, providerName)
			r.logger.Info().
				Str(logKeyProvider, providerName).
				Str("from_provider", primaryProvider).
				Msg("used fallback embedding provider")
		}

		if result.Model == "" {
			result.Model = p.Model()
		}

		result.Vector = PadToTargetDimensions(result.Vector, r.targetDimension)
		result.Dimensions = len(result.Vector)

		return result, nil
	}

	if lastErr != nil {
		return EmbeddingResult{}, errors.Join(ErrAllProvidersFailed, lastErr)
	}

	return EmbeddingResult{}, ErrNoProvidersAvailable
}

// ProviderCount returns the number of registered providers.
func (r *Registry) ProviderCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.providers)
}

// ProviderNames returns the names of all registered providers in priority order.
func (r *Registry) ProviderNames() []ProviderName {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]ProviderName, len(r.order))
	copy(names, r.order)

	return names
}

// getActiveProviders returns providers that are available (not checking circuit breaker).
func (r *Registry) getActiveProviders() []Provider {
	active := make([]Provider, 0, len(r.providers))

	for _, name := range r.order {
		p := r.providers[name]
		if p.IsAvailable() {
			active = append(active, p)
		}
	}

	return active
}

func (r *Registry) getCircuitBreaker(name ProviderName) *CircuitBreaker {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return r.circuitBreakers[name]
}
