// Package embeddings provides text embedding generation with multi-provider support.
//
// Providers are tried in priority order with automatic fallback:
//   - OpenAI text-embedding-3-small / text-embedding-3-large
//   - Google text-embedding-004
//   - a local feature-hashing provider when nothing else is configured
//
// Each provider sits behind its own circuit breaker and every vector is
// padded or truncated to the index dimension.
package embeddings

import (
	"context"
	"strings"

	"github.com/rs/zerolog"
)

// Client defines the interface for embedding operations.
type Client interface {
	// GetEmbeddingWithMetadata returns a vector with consistent dimensions plus
	// the provider and model that produced it.
	GetEmbeddingWithMetadata(ctx context.Context, text string) (EmbeddingResult, error)
}

var _ Client = (*Registry)(nil)

// Config holds configuration for creating an embedding client.
type Config struct {
	OpenAIAPIKey     string
	OpenAIModel      string
	OpenAIDimensions int
	OpenAIRateLimit  int

	GoogleAPIKey    string
	GoogleModel     string
	GoogleRateLimit int

	// Provider order (comma-separated: "openai,google"); "mock" forces the local provider.
	ProviderOrder string

	CircuitBreakerConfig CircuitBreakerConfig

	// Target dimensions for output vectors
	TargetDimensions int
}

// NewClient creates a new embedding client with configured providers.
func NewClient(ctx context.Context, cfg Config, logger *zerolog.Logger) *Registry {
	if cfg.TargetDimensions == 0 {
		cfg.TargetDimensions = DefaultDimensions
	}

	registry := NewRegistry(cfg.TargetDimensions, logger)

	for _, provider := range parseProviderOrder(cfg.ProviderOrder) {
		switch provider {
		case string(ProviderOpenAI):
			registerOpenAI(registry, cfg)
		case string(ProviderGoogle):
			registerGoogle(ctx, registry, cfg, registry.logger)
		case string(ProviderMock):
			registry.Register(NewMockProviderWithDimensions(cfg.TargetDimensions), cfg.CircuitBreakerConfig)
		}
	}

	if registry.ProviderCount() == 0 {
		registry.logger.Warn().Msg("no embedding providers configured, using mock provider")
		registry.Register(NewMockProviderWithDimensions(cfg.TargetDimensions), cfg.CircuitBreakerConfig)
	}

	return registry
}

// parseProviderOrder parses the provider order string into a list.
func parseProviderOrder(order string) []string {
	if order == "" {
		return []string{string(ProviderOpenAI), string(ProviderGoogle)}
	}

	var providers []string

	for _, p := range strings.Split(order, ",") {
		p = strings.TrimSpace(p)
		if p != "" {
			providers = append(providers, strings.ToLower(p))
		}
	}

	return providers
}

func registerOpenAI(registry *Registry, cfg Config) {
	if cfg.OpenAIAPIKey == "" || cfg.OpenAIAPIKey == mockAPIKey {
		return
	}

	registry.Register(NewOpenAIProvider(OpenAIConfig{
		APIKey:     cfg.OpenAIAPIKey,
		Model:      cfg.OpenAIModel,
		Dimensions: cfg.OpenAIDimensions,
		RateLimit:  cfg.OpenAIRateLimit,
	}), cfg.CircuitBreakerConfig)
}

func registerGoogle(ctx context.Context, registry *Registry, cfg Config, logger *zerolog.Logger) {
	if cfg.GoogleAPIKey == "" {
		return
	}

	googleProvider, err := NewGoogleProvider(ctx, GoogleConfig{
		APIKey:    cfg.GoogleAPIKey,
		Model:     cfg.GoogleModel,
		RateLimit: cfg.GoogleRateLimit,
	})
	if err != nil {
		logger.Error().Err(err).Msg("failed to create Google embedding provider")
		return
	}

	if googleProvider.IsAvailable() {
		registry.Register(googleProvider, cfg.CircuitBreakerConfig)
	}
}
