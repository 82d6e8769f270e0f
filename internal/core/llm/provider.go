package llm

import "context"

// ProviderName identifies an LLM provider.
type ProviderName string

// Provider name constants.
const (
	ProviderOpenAI    ProviderName = "openai"
	ProviderAnthropic ProviderName = "anthropic"
	ProviderGoogle    ProviderName = "google"
	ProviderMock      ProviderName = "mock"
)

// Priority constants for provider ordering.
const (
	PriorityPrimary        = 100 // Primary provider (OpenAI)
	PriorityFallback       = 50  // First fallback (Anthropic)
	PrioritySecondFallback = 25  // Second fallback (Google)
	PriorityMock           = 0   // Local heuristic provider
)

// Provider defines the interface for LLM providers.
type Provider interface {
	// Name returns the provider identifier.
	Name() ProviderName

	// IsAvailable returns true if the provider is configured and available.
	IsAvailable() bool

	// Priority returns the provider priority (higher = preferred).
	Priority() int

	// Run executes one chat request. The model is a hint: providers map a
	// foreign model id onto their own default.
	Run(ctx context.Context, model string, req Request) (Response, error)
}
