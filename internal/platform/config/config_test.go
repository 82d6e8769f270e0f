package config

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testEnvPostgresDSN = "POSTGRES_DSN"
	testPostgresDSN    = "postgres://localhost/test"
)

func setRequiredEnvVars(t *testing.T) {
	t.Helper()

	t.Setenv(testEnvPostgresDSN, testPostgresDSN)
}

func TestLoad_MissingRequired(t *testing.T) {
	t.Setenv(testEnvPostgresDSN, "")
	os.Unsetenv(testEnvPostgresDSN)
	t.Setenv("DATABASE_URL", "")

	_, err := Load()
	assert.Error(t, err)
}

func TestLoad_Defaults(t *testing.T) {
	setRequiredEnvVars(t)

	for _, key := range []string{
		"APP_ENV", "LLM_MODEL", "LLM_MAX_TOKENS", "GENERATION_ATTEMPTS", "GENERATION_TIMEOUT",
		"SIMILARITY_LIMIT", "EVIDENCE_BACKEND", "WORKER_CONCURRENCY", "ADMIN_API_KEY", "FFL_ADMIN_KEY",
		"RUN_RETRY_BASE", "RUN_RECOVERY_INTERVAL", "STEP_RETRY_BASE", "STEP_RETRY_MAX_DELAY", "LLM_MOCK_ENABLED",
	} {
		t.Setenv(key, "")
		os.Unsetenv(key)
	}

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "local", cfg.AppEnv)
	assert.True(t, cfg.IsLocal())
	assert.Equal(t, "gpt-4o-mini", cfg.LLMModel)
	assert.Equal(t, 700, cfg.LLMMaxTokens)
	assert.Equal(t, 3, cfg.GenerationAttempts)
	assert.Equal(t, 20*time.Second, cfg.GenerationTimeout)
	assert.Equal(t, 5, cfg.SimilarityLimit)
	assert.Equal(t, EvidenceBackendPostgres, cfg.EvidenceBackend)
	assert.Equal(t, 4, cfg.WorkerConcurrency)
	assert.Empty(t, cfg.AdminAPIKey)
	assert.False(t, cfg.LLMMockEnabled)
	assert.Equal(t, 30*time.Second, cfg.RunRetryBase)
	assert.Equal(t, time.Minute, cfg.RunRecoveryInterval)
	assert.Equal(t, 500*time.Millisecond, cfg.StepRetryBase)
	assert.Equal(t, 10*time.Second, cfg.StepRetryMaxDelay)
}

func TestLoad_RetryOverrides(t *testing.T) {
	setRequiredEnvVars(t)
	t.Setenv("RUN_RETRY_BASE", "5s")
	t.Setenv("RUN_RECOVERY_INTERVAL", "15s")
	t.Setenv("STEP_RETRY_MAX_DELAY", "2s")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 5*time.Second, cfg.RunRetryBase)
	assert.Equal(t, 15*time.Second, cfg.RunRecoveryInterval)
	assert.Equal(t, 2*time.Second, cfg.StepRetryMaxDelay)
}

func TestLoad_Aliases(t *testing.T) {
	setRequiredEnvVars(t)
	t.Setenv("LLM_API_KEY", "")
	os.Unsetenv("LLM_API_KEY")
	t.Setenv("OPENAI_API_KEY", "sk-alias")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "sk-alias", cfg.LLMAPIKey)
}

func TestLoad_InvalidValues(t *testing.T) {
	tests := []struct {
		name  string
		key   string
		value string
	}{
		{name: "unknown evidence backend", key: "EVIDENCE_BACKEND", value: "s3"},
		{name: "zero generation attempts", key: "GENERATION_ATTEMPTS", value: "0"},
		{name: "non-numeric concurrency", key: "WORKER_CONCURRENCY", value: "many"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			setRequiredEnvVars(t)
			t.Setenv(tt.key, tt.value)

			_, err := Load()
			assert.Error(t, err)
		})
	}
}
