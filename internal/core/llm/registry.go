package llm

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/KaijieWen/Feedback-Forensics-Lab/internal/core/embeddings"
	"github.com/KaijieWen/Feedback-Forensics-Lab/internal/platform/observability"
)

// Registry errors.
var (
	ErrNoProvidersAvailable = errors.New("no LLM providers available")
	ErrAllProvidersFailed   = errors.New("all LLM providers failed")
)

// Registry manages LLM providers with fallback support.
type Registry struct {
	mu              sync.RWMutex
	providers       map[ProviderName]Provider
	order           []ProviderName // Priority order (highest first)
	circuitBreakers map[ProviderName]*embeddings.CircuitBreaker
	logger          *zerolog.Logger
}

// NewRegistry creates a new provider registry.
func NewRegistry(logger *zerolog.Logger) *Registry {
	if logger == nil {
		nopLogger := zerolog.Nop()
		logger = &nopLogger
	}

	return &Registry{
		providers:       make(map[ProviderName]Provider),
		order:           make([]ProviderName, 0),
		circuitBreakers: make(map[ProviderName]*embeddings.CircuitBreaker),
		logger:          logger,
	}
}

// Register adds a provider to the registry.
func (r *Registry) Register(p Provider, cfg embeddings.CircuitBreakerConfig) {
	r.mu.Lock()
	defer r.mu.Unlock()

	name := p.Name()
	if _, exists := r.providers[name]; !exists {
		r.order = append(r.order, name)
	}

	r.providers[name] = p
	r.circuitBreakers[name] = embeddings.NewCircuitBreaker(cfg, r.logger)

	r.sortProvidersByPriority()

	available := MetricValueUnavailable
	if p.IsAvailable() {
		available = MetricValueAvailable
	}

	observability.LLMProviderAvailable.WithLabelValues(string(name)).Set(available)

	r.logger.Info().
		Str(logKeyProvider, string(name)).
		Int("priority", p.Priority()).
		Msg("registered LLM provider")
}

// ProviderCount returns the number of registered providers.
func (r *Registry) ProviderCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.providers)
}

// Run implements Client with provider fallback.
func (r *Registry) Run(ctx context.Context, model string, req Request) (Response, error) {
	return executeWithFallback(r, model, func(p Provider, m string) (Response, error) {
		return p.Run(ctx, m, req)
	})
}

// executeWithFallback tries each registered provider in priority order until one succeeds.
func executeWithFallback[T any](r *Registry, model string, fn func(Provider, string) (T, error)) (T, error) {
	r.mu.RLock()
	order := append([]ProviderName(nil), r.order...)
	r.mu.RUnlock()

	var zero T

	if len(order) == 0 {
		return zero, ErrNoProvidersAvailable
	}

	var (
		lastErr     error
		firstFailed ProviderName
	)

	for _, name := range order {
		result, attempted, err := tryProviderExec(r, name, model, fn)
		if !attempted {
			continue
		}

		if err != nil {
			lastErr = err

			if firstFailed == "" {
				firstFailed = name
			}

			continue
		}

		if firstFailed != "" {
			observability.LLMFallbacks.WithLabelValues(string(firstFailed), string(name)).Inc()

			r.logger.Info().
				Str(logKeyProvider, string(name)).
				Str("from_provider", string(firstFailed)).
				Msg("used fallback LLM provider")
		}

		return result, nil
	}

	if lastErr != nil {
		return zero, errors.Join(ErrAllProvidersFailed, lastErr)
	}

	return zero, ErrNoProvidersAvailable
}

// tryProviderExec attempts one provider. attempted is false when the provider
// was skipped without a call (unavailable or circuit open).
func tryProviderExec[T any](r *Registry, name ProviderName, model string, fn func(Provider, string) (T, error)) (result T, attempted bool, err error) {
	r.mu.RLock()
	p, exists := r.providers[name]
	cb := r.circuitBreakers[name]
	r.mu.RUnlock()

	if !exists || !p.IsAvailable() {
		return result, false, nil
	}

	if !cb.CanAttempt() {
		observability.LLMCircuitBreakerState.WithLabelValues(string(name)).Set(MetricValueCBOpen)
		observability.LLMProviderAvailable.WithLabelValues(string(name)).Set(MetricValueUnavailable)

		r.logger.Debug().
			Str(logKeyProvider, string(name)).
			Msg(logMsgCircuitBreakerOpen)

		return result, false, nil
	}

	start := time.Now()
	result, err = fn(p, model)
	duration := time.Since(start)

	observability.LLMRequestLatency.WithLabelValues(string(name), model).Observe(duration.Seconds())

	if err != nil {
		if cb.RecordFailure(string(name)) {
			observability.LLMCircuitBreakerOpens.WithLabelValues(string(name)).Inc()
			observability.LLMCircuitBreakerState.WithLabelValues(string(name)).Set(MetricValueCBOpen)
			observability.LLMProviderAvailable.WithLabelValues(string(name)).Set(MetricValueUnavailable)
		}

		r.logger.Warn().
			Err(err).
			Str(logKeyProvider, string(name)).
			Str(logKeyModel, model).
			Float64("duration_seconds", duration.Seconds()).
			Msg("LLM provider failed, trying fallback")

		return result, true, err
	}

	cb.RecordSuccess()

	observability.LLMCircuitBreakerState.WithLabelValues(string(name)).Set(MetricValueCBClosed)
	observability.LLMProviderAvailable.WithLabelValues(string(name)).Set(MetricValueAvailable)

	return result, true, nil
}

// sortProvidersByPriority sorts providers by priority in descending order.
func (r *Registry) sortProvidersByPriority() {
	sort.SliceStable(r.order, func(i, j int) bool {
		return r.providers[r.order[i]].Priority() > r.providers[r.order[j]].Priority()
	})
}

// ProviderStatus holds status information for a provider.
type ProviderStatus struct {
	Name             ProviderName
	Priority         int
	Available        bool
	CircuitBreakerOK bool
}

// GetProviderStatuses returns status information for all registered providers.
func (r *Registry) GetProviderStatuses() []ProviderStatus {
	r.mu.RLock()
	defer r.mu.RUnlock()

	statuses := make([]ProviderStatus, 0, len(r.order))

	for _, name := range r.order {
		p := r.providers[name]

		statuses = append(statuses, ProviderStatus{
			Name:             name,
			Priority:         p.Priority(),
			Available:        p.IsAvailable(),
			CircuitBreakerOK: r.circuitBreakers[name].CanAttempt(),
		})
	}

	return statuses
}

// DependencyStatuses reports each provider for /readyz. An empty registry is
// reported as one degraded entry since every case file will be a fallback.
func (r *Registry) DependencyStatuses() []observability.DependencyStatus {
	statuses := r.GetProviderStatuses()
	if len(statuses) == 0 {
		return []observability.DependencyStatus{{Name: readinessPrefix, Detail: readinessNoProviders}}
	}

	out := make([]observability.DependencyStatus, 0, len(statuses))

	for _, st := range statuses {
		ds := observability.DependencyStatus{
			Name: readinessPrefix + ":" + string(st.Name),
			OK:   st.Available && st.CircuitBreakerOK,
		}

		switch {
		case !st.Available:
			ds.Detail = readinessUnavailable
		case !st.CircuitBreakerOK:
			ds.Detail = readinessCircuitOpen
		}

		out = append(out, ds)
	}

	return out
}

// recordTokenUsage records request and token metrics for one provider call.
func recordTokenUsage(provider ProviderName, model string, promptTokens, completionTokens int, success bool) {
	status := StatusSuccess
	if !success {
		status = StatusError
	}

	observability.LLMRequests.WithLabelValues(string(provider), model, status).Inc()

	if promptTokens > 0 {
		observability.LLMTokensPrompt.WithLabelValues(string(provider), model).Add(float64(promptTokens))
	}

	if completionTokens > 0 {
		observability.LLMTokensCompletion.WithLabelValues(string(provider), model).Add(float64(completionTokens))
	}
}

var _ Client = (*Registry)(nil)
