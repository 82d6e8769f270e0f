// Package llm runs chat-style generation requests against the configured
// providers, falling back from one to the next when a provider fails.
// Output text is untrusted and must be validated by the caller.
package llm

import (
	"context"
	"strings"

	"github.com/rs/zerolog"

	"github.com/KaijieWen/Feedback-Forensics-Lab/internal/core/embeddings"
	coreerrors "github.com/KaijieWen/Feedback-Forensics-Lab/internal/core/errors"
	"github.com/KaijieWen/Feedback-Forensics-Lab/internal/platform/config"
)

// Role is the author of a chat message.
type Role string

// Role constants.
const (
	RoleSystem Role = "system"
	RoleUser   Role = "user"
)

// Message is one chat turn.
type Message struct {
	Role    Role
	Content string
}

// Request is a generation call.
type Request struct {
	Messages  []Message
	MaxTokens int
}

// Response carries the raw generated text and where it came from.
type Response struct {
	Text     string
	Provider ProviderName
	Model    string
}

// Client runs generation requests.
type Client interface {
	Run(ctx context.Context, model string, req Request) (Response, error)
}

// buildCircuitConfig creates a CircuitBreakerConfig with defaults applied.
func buildCircuitConfig(cfg *config.Config) embeddings.CircuitBreakerConfig {
	circuitCfg := embeddings.CircuitBreakerConfig{
		Threshold:  cfg.CircuitBreakerThreshold,
		ResetAfter: cfg.CircuitBreakerTimeout,
	}

	if circuitCfg.Threshold == 0 {
		circuitCfg.Threshold = defaultCircuitThreshold
	}

	if circuitCfg.ResetAfter == 0 {
		circuitCfg.ResetAfter = defaultCircuitTimeout
	}

	return circuitCfg
}

// registerProviders registers all configured providers with the registry.
func registerProviders(ctx context.Context, registry *Registry, cfg *config.Config, logger *zerolog.Logger, circuitCfg embeddings.CircuitBreakerConfig) {
	if cfg.LLMAPIKey != "" && cfg.LLMAPIKey != llmAPIKeyMock {
		registry.Register(NewOpenAIProvider(cfg), circuitCfg)
	}

	if cfg.AnthropicAPIKey != "" {
		registry.Register(NewAnthropicProvider(cfg), circuitCfg)
	}

	if cfg.GoogleAPIKey != "" {
		googleProvider, err := NewGoogleProvider(ctx, cfg)
		if err != nil {
			logger.Warn().Err(err).Msg("failed to create Google LLM provider")
		} else {
			registry.Register(googleProvider, circuitCfg)
		}
	}

	if cfg.LLMMockEnabled || cfg.LLMAPIKey == llmAPIKeyMock {
		registry.Register(NewMockProvider(), circuitCfg)
	}

	if registry.ProviderCount() == 0 {
		logger.Warn().Msg("no LLM providers configured, case files will use the fallback template")
	}
}

// New creates a generation client with multi-provider fallback support.
// Providers are tried in priority order: OpenAI, Anthropic, Google, then the
// local heuristic provider when LLM_MOCK_ENABLED is set. With nothing
// configured the registry is empty and Run returns ErrNoProvidersAvailable.
func New(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) *Registry {
	if logger == nil {
		nopLogger := zerolog.Nop()
		logger = &nopLogger
	}

	registry := NewRegistry(logger)
	registerProviders(ctx, registry, cfg, logger, buildCircuitConfig(cfg))

	return registry
}

// ExtractJSONObject returns the substring from the first '{' to the last '}'.
func ExtractJSONObject(text string) (string, error) {
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")

	if start == -1 || end == -1 || end < start {
		return "", coreerrors.ErrNoJSONObject
	}

	return text[start : end+1], nil
}

func splitMessages(msgs []Message) (system string, user []Message) {
	var sys []string

	for _, m := range msgs {
		if m.Role == RoleSystem {
			sys = append(sys, m.Content)
			continue
		}

		user = append(user, m)
	}

	return strings.Join(sys, "\n\n"), user
}

func maxTokensOrDefault(n int) int {
	if n <= 0 {
		return defaultMaxTokens
	}

	return n
}
