package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Evidence store backends.
const (
	EvidenceBackendPostgres = "postgres"
	EvidenceBackendRedis    = "redis"
)

type Config struct {
	AppEnv      string `env:"APP_ENV" envDefault:"local"`
	PostgresDSN string `env:"POSTGRES_DSN,required"`
	HTTPPort    int    `env:"HTTP_PORT" envDefault:"8787"`
	HealthPort  int    `env:"HEALTH_PORT" envDefault:"8080"`
	AdminAPIKey string `env:"ADMIN_API_KEY"`

	// Database pool
	DBMaxConnections    int32         `env:"DB_MAX_CONNECTIONS" envDefault:"25"`
	DBMinConnections    int32         `env:"DB_MIN_CONNECTIONS" envDefault:"2"`
	DBMaxConnIdleTime   time.Duration `env:"DB_MAX_CONN_IDLE_TIME" envDefault:"30m"`
	DBMaxConnLifetime   time.Duration `env:"DB_MAX_CONN_LIFETIME" envDefault:"1h"`
	DBHealthCheckPeriod time.Duration `env:"DB_HEALTH_CHECK_PERIOD" envDefault:"1m"`

	// Generation providers
	LLMAPIKey          string        `env:"LLM_API_KEY"`
	LLMModel           string        `env:"LLM_MODEL" envDefault:"gpt-4o-mini"`
	AnthropicAPIKey    string        `env:"ANTHROPIC_API_KEY"`
	AnthropicModel     string        `env:"ANTHROPIC_MODEL" envDefault:"claude-3-5-haiku-latest"`
	GoogleAPIKey       string        `env:"GOOGLE_API_KEY"`
	GoogleModel        string        `env:"GOOGLE_MODEL" envDefault:"gemini-1.5-flash"`
	LLMMaxTokens       int           `env:"LLM_MAX_TOKENS" envDefault:"700"`
	LLMMockEnabled     bool          `env:"LLM_MOCK_ENABLED" envDefault:"false"`
	GenerationTimeout  time.Duration `env:"GENERATION_TIMEOUT" envDefault:"20s"`
	GenerationAttempts int           `env:"GENERATION_ATTEMPTS" envDefault:"3"`
	RateLimitRPS       int           `env:"RATE_LIMIT_RPS" envDefault:"1"`

	// Circuit breaker, shared by generation and embedding providers
	CircuitBreakerThreshold int           `env:"CIRCUIT_BREAKER_THRESHOLD" envDefault:"5"`
	CircuitBreakerTimeout   time.Duration `env:"CIRCUIT_BREAKER_TIMEOUT" envDefault:"1m"`

	// Embeddings and similarity
	EmbeddingProvider   string        `env:"EMBEDDING_PROVIDER" envDefault:"openai"`
	EmbeddingModel      string        `env:"EMBEDDING_MODEL" envDefault:"text-embedding-3-small"`
	GoogleEmbedModel    string        `env:"GOOGLE_EMBEDDING_MODEL" envDefault:"text-embedding-004"`
	EmbeddingDimensions int           `env:"EMBEDDING_DIMENSIONS" envDefault:"1536"`
	SimilarityEnabled   bool          `env:"SIMILARITY_ENABLED" envDefault:"true"`
	SimilarityLimit     int           `env:"SIMILARITY_LIMIT" envDefault:"5"`
	SimilarityMinScore  float64       `env:"SIMILARITY_MIN_SCORE" envDefault:"0.5"`
	SimilarityTimeout   time.Duration `env:"SIMILARITY_TIMEOUT" envDefault:"10s"`

	// Evidence storage
	EvidenceBackend string `env:"EVIDENCE_BACKEND" envDefault:"postgres"`
	RedisURL        string `env:"REDIS_URL" envDefault:"redis://localhost:6379/0"`

	// Run queue and workers
	WorkerConcurrency   int           `env:"WORKER_CONCURRENCY" envDefault:"4"`
	WorkerBatchSize     int           `env:"WORKER_BATCH_SIZE" envDefault:"10"`
	WorkerPollInterval  time.Duration `env:"WORKER_POLL_INTERVAL" envDefault:"2s"`
	RunMaxAttempts      int           `env:"RUN_MAX_ATTEMPTS" envDefault:"5"`
	RunRetryBase        time.Duration `env:"RUN_RETRY_BASE" envDefault:"30s"`
	RunRecoveryInterval time.Duration `env:"RUN_RECOVERY_INTERVAL" envDefault:"1m"`
	StepMaxAttempts     int           `env:"STEP_MAX_ATTEMPTS" envDefault:"3"`
	StepRetryBase       time.Duration `env:"STEP_RETRY_BASE" envDefault:"500ms"`
	StepRetryMaxDelay   time.Duration `env:"STEP_RETRY_MAX_DELAY" envDefault:"10s"`
	StuckRunThreshold   time.Duration `env:"STUCK_RUN_THRESHOLD" envDefault:"10m"`
}

func Load() (*Config, error) {
	_ = godotenv.Load() //nolint:errcheck // .env file is optional, error is expected when not present

	applyAliases()

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parsing environment config: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) validate() error {
	switch c.EvidenceBackend {
	case EvidenceBackendPostgres, EvidenceBackendRedis:
	default:
		return fmt.Errorf("%w: EVIDENCE_BACKEND=%q", errInvalidValue, c.EvidenceBackend)
	}

	if c.GenerationAttempts < 1 {
		return fmt.Errorf("%w: GENERATION_ATTEMPTS must be at least 1", errInvalidValue)
	}

	if c.WorkerConcurrency < 1 {
		return fmt.Errorf("%w: WORKER_CONCURRENCY must be at least 1", errInvalidValue)
	}

	return nil
}

// IsLocal reports whether the process runs in a developer environment.
func (c *Config) IsLocal() bool {
	return c.AppEnv == "local"
}

// applyAliases maps alternative variable names onto the canonical ones when the
// canonical name is unset.
func applyAliases() {
	aliases := map[string]string{
		"LLM_API_KEY":   "OPENAI_API_KEY",
		"ADMIN_API_KEY": "FFL_ADMIN_KEY",
		"POSTGRES_DSN":  "DATABASE_URL",
	}

	for canonical, alias := range aliases {
		if hasEnv(canonical) {
			continue
		}

		val, ok := os.LookupEnv(alias)
		if !ok || strings.TrimSpace(val) == "" {
			continue
		}

		_ = os.Setenv(canonical, strings.TrimSpace(val))
	}
}

func hasEnv(key string) bool {
	_, ok := os.LookupEnv(key)
	return ok
}
