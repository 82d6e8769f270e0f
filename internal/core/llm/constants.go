package llm

import "time"

// Error message templates
const (
	errRateLimiter           = "rate limiter error: %w"
	errOpenAIChatCompletion  = "openai chat completion error: %w"
	errAnthropicCompletion   = "anthropic completion error: %w"
	errGoogleGenAICompletion = "google genai completion: %w"
)

// Model mapping strings
const (
	modelPrefixGPT    = "gpt-"
	modelPrefixO      = "o"
	modelPrefixClaude = "claude"
	modelPrefixGemini = "gemini"
	llmAPIKeyMock     = "mock"
)

// Default models per provider.
const (
	defaultOpenAIModel    = "gpt-4o-mini"
	defaultAnthropicModel = "claude-3-5-haiku-latest"
	defaultGoogleModel    = "gemini-1.5-flash"
)

// Default output budget when a request does not set one.
const defaultMaxTokens = 700

const rateLimiterBurst = 5

const contentTypeText = "text"

// Circuit breaker defaults
const (
	defaultCircuitThreshold = 5
	defaultCircuitTimeout   = time.Minute
)

// Readiness report labels.
const (
	readinessPrefix      = "llm"
	readinessNoProviders = "no providers configured"
	readinessUnavailable = "unavailable"
	readinessCircuitOpen = "circuit open"
)

const logMsgCircuitBreakerOpen = "skipping provider - circuit breaker open"

// Log field keys
const (
	logKeyProvider = "provider"
	logKeyModel    = "model"
)

// Request status for metrics.
const (
	StatusSuccess = "success"
	StatusError   = "error"
)

// Metric gauge values.
const (
	MetricValueAvailable   = 1.0
	MetricValueUnavailable = 0.0
	MetricValueCBOpen      = 1.0 // Circuit breaker is open (blocking requests)
	MetricValueCBClosed    = 0.0 // Circuit breaker is closed (allowing requests)
)
