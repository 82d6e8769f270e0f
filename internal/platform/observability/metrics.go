package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	FeedbackIngested = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ffl_feedback_ingested_total",
		Help: "The total number of feedback items accepted at ingestion",
	}, []string{"source"})

	IngestRejected = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ffl_ingest_rejected_total",
		Help: "The total number of ingestion requests rejected by reason",
	}, []string{"reason"})

	PipelineRuns = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ffl_pipeline_runs_total",
		Help: "The total number of pipeline runs by final feedback status",
	}, []string{"status"})

	PipelineStepDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "ffl_pipeline_step_duration_seconds",
		Help:    "Duration of executed (non-replayed) pipeline steps",
		Buckets: prometheus.DefBuckets,
	}, []string{"step"})

	PipelineStepsReplayed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ffl_pipeline_steps_replayed_total",
		Help: "Steps served from the checkpoint log instead of executing",
	}, []string{"step"})

	PipelineStepRetries = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ffl_pipeline_step_retries_total",
		Help: "Step-level retry attempts",
	}, []string{"step"})

	RunQueueBacklog = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "ffl_run_queue_backlog",
		Help: "Number of pending pipeline runs",
	})

	RunsRecovered = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ffl_runs_recovered_total",
		Help: "Pipeline runs reset after being stuck in running state",
	})

	DispatchFallbacks = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ffl_dispatch_inline_fallbacks_total",
		Help: "Pipeline runs executed inline because enqueueing failed",
	})

	CaseFileAttempts = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ffl_casefile_attempts_total",
		Help: "Case file generation attempts by outcome",
	}, []string{"outcome"})

	CaseFileFallbacks = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ffl_casefile_fallbacks_total",
		Help: "Case files produced by the deterministic fallback",
	})

	PriorityScore = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "ffl_priority_score",
		Help:    "Distribution of computed priority scores",
		Buckets: []float64{10, 20, 30, 40, 50, 60, 70, 80, 90, 100},
	})

	SimilarityMatches = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "ffl_similarity_matches",
		Help:    "Number of similarity matches per query",
		Buckets: []float64{0, 1, 2, 3, 4, 5},
	})

	SimilarityErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ffl_similarity_errors_total",
		Help: "Similarity queries or index writes that failed",
	}, []string{"op"})

	ClusterAssignments = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ffl_cluster_assignments_total",
		Help: "Cluster assignments by kind (joined, created)",
	}, []string{"kind"})

	// LLM request metrics
	LLMRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ffl_llm_requests_total",
		Help: "Total number of LLM requests",
	}, []string{"provider", "model", "status"})

	LLMRequestLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "ffl_llm_request_latency_seconds",
		Help:    "Latency of LLM requests by provider",
		Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 20, 30, 60},
	}, []string{"provider", "model"})

	LLMTokensPrompt = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ffl_llm_tokens_prompt_total",
		Help: "Prompt tokens reported by LLM providers",
	}, []string{"provider", "model"})

	LLMTokensCompletion = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ffl_llm_tokens_completion_total",
		Help: "Completion tokens reported by LLM providers",
	}, []string{"provider", "model"})

	// LLM fallback and circuit breaker metrics
	LLMFallbacks = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ffl_llm_fallbacks_total",
		Help: "Total number of LLM fallback events",
	}, []string{"from_provider", "to_provider"})

	LLMCircuitBreakerOpens = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ffl_llm_circuit_breaker_opens_total",
		Help: "Total number of times LLM circuit breaker opened",
	}, []string{"provider"})

	LLMCircuitBreakerState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "ffl_llm_circuit_breaker_state",
		Help: "Current state of LLM circuit breaker (0=closed, 1=open)",
	}, []string{"provider"})

	LLMProviderAvailable = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "ffl_llm_provider_available",
		Help: "Whether LLM provider is currently available (0=no, 1=yes)",
	}, []string{"provider"})

	// Embedding metrics
	EmbeddingRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ffl_embedding_requests_total",
		Help: "Total number of embedding requests",
	}, []string{"provider", "model", "status"})

	EmbeddingLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "ffl_embedding_latency_seconds",
		Help:    "Latency of embedding requests",
		Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5},
	}, []string{"provider", "model"})

	EmbeddingProviderAvailable = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "ffl_embedding_provider_available",
		Help: "Whether embedding provider is currently available (0=no, 1=yes)",
	}, []string{"provider"})

	EmbeddingFallbacks = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ffl_embedding_fallbacks_total",
		Help: "Total number of embedding fallback events",
	}, []string{"from_provider", "to_provider"})
)
