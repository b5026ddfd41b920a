package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/pepe57/OpenGateLLM/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const minimalConfig = `
server:
  master_key: master-secret
models:
  - name: llama
    type: text-generation
    aliases:
      - llama-large
    providers:
      - type: openai
        model_name: gpt-4o-mini
dependencies:
  postgres:
    host: localhost
    database: gateway
  redis:
    url: redis://localhost:6379/0
`

func TestParseAppliesDefaults(t *testing.T) {
	cfg, err := Parse([]byte(minimalConfig))
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Server.Port)
	assert.Equal(t, "development", cfg.Server.Environment)
	assert.Equal(t, 3, cfg.Settings.RoutingMaxRetries)
	assert.Equal(t, 3, cfg.Settings.RoutingRetrySeconds)
	assert.Equal(t, 120000, cfg.Settings.MetricsRetentionMS)
	assert.Equal(t, 4, cfg.Settings.QueueMaxPriority)
	assert.Equal(t, "fixed_window", cfg.Settings.RateLimitStrategy)
	assert.Equal(t, "cl100k_base", cfg.Settings.TokenizerEncoding)
	assert.Equal(t, "ogl", cfg.Settings.VectorStoreIndexPrefix)

	require.Len(t, cfg.Models, 1)
	model := cfg.Models[0]
	assert.Equal(t, models.StrategyShuffle, model.LoadBalancingStrategy)
	require.Len(t, model.Providers, 1)
	assert.Equal(t, "https://api.openai.com/", model.Providers[0].URL)
	assert.Equal(t, 300, model.Providers[0].TimeoutSeconds)
}

func TestParseSubstitutesEnvVars(t *testing.T) {
	t.Setenv("TEST_GATEWAY_PORT", "9999")

	cfg, err := Parse([]byte(`
server:
  port: "${TEST_GATEWAY_PORT}"
  log_level: "${TEST_GATEWAY_LOG_LEVEL:-debug}"
models:
  - name: llama
    type: text-generation
    providers:
      - type: openai
        model_name: gpt-4o-mini
dependencies:
  postgres:
    host: localhost
    database: gateway
  redis:
    host: localhost
    port: 6379
`))
	require.NoError(t, err)
	assert.Equal(t, "9999", cfg.Server.Port)
	assert.Equal(t, "debug", cfg.Server.LogLevel)
}

func TestParseRejectsMissingPostgres(t *testing.T) {
	_, err := Parse([]byte(`
models: []
dependencies:
  redis:
    host: localhost
`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "postgres")
}

func TestParseRejectsDuplicateNames(t *testing.T) {
	_, err := Parse([]byte(`
models:
  - name: llama
    type: text-generation
    providers:
      - type: openai
        model_name: gpt-4o-mini
  - name: mistral
    type: text-generation
    aliases:
      - llama
    providers:
      - type: openai
        model_name: gpt-4o
dependencies:
  postgres:
    host: localhost
    database: gateway
  redis:
    host: localhost
`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), `"llama"`)
}

func TestParseRejectsWrongProviderType(t *testing.T) {
	_, err := Parse([]byte(`
models:
  - name: embedder
    type: text-embeddings-inference
    providers:
      - type: anthropic
        model_name: whatever
dependencies:
  postgres:
    host: localhost
    database: gateway
  redis:
    host: localhost
`))
	require.Error(t, err)
}

func TestParseReadsLoadBalancingStrategyKey(t *testing.T) {
	cfg, err := Parse([]byte(`
models:
  - name: llama
    type: text-generation
    load_balancing_strategy: least_busy
    providers:
      - type: openai
        model_name: gpt-4o-mini
dependencies:
  postgres:
    host: localhost
    database: gateway
  redis:
    host: localhost
`))
	require.NoError(t, err)
	assert.Equal(t, models.StrategyLeastBusy, cfg.Models[0].LoadBalancingStrategy)
}

func TestParseRejectsProviderWithoutURL(t *testing.T) {
	// vllm has no built-in default URL, unlike openai and albert.
	_, err := Parse([]byte(`
models:
  - name: llama
    type: text-generation
    providers:
      - type: vllm
        model_name: m
dependencies:
  postgres:
    host: localhost
    database: gateway
  redis:
    host: localhost
`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "url is required")
}

func TestParseRejectsHalfQoSPolicy(t *testing.T) {
	_, err := Parse([]byte(`
models:
  - name: llama
    type: text-generation
    providers:
      - type: vllm
        url: http://vllm:8000
        model_name: m
        qos_metric: ttft
dependencies:
  postgres:
    host: localhost
    database: gateway
  redis:
    host: localhost
`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "qos_metric and qos_limit")
}

func TestParseRejectsBraveWithoutKey(t *testing.T) {
	_, err := Parse([]byte(`
models: []
dependencies:
  postgres:
    host: localhost
    database: gateway
  redis:
    host: localhost
  websearch:
    engine: brave
`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "brave")
}

func TestLoadEnvFilesSkipsMissingAndLoadsExisting(t *testing.T) {
	dir := t.TempDir()
	envFile := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(envFile, []byte("OGL_TEST_ENV_VALUE=from-env-file\n"), 0o600))
	t.Cleanup(func() { _ = os.Unsetenv("OGL_TEST_ENV_VALUE") })

	LoadEnvFiles([]string{filepath.Join(dir, ".env.local"), envFile})
	assert.Equal(t, "from-env-file", os.Getenv("OGL_TEST_ENV_VALUE"))
}

func TestLoadFromFileRejectsTraversal(t *testing.T) {
	_, err := LoadFromFile("../../etc/passwd.yaml")
	require.Error(t, err)
}

func TestLoadFromFileRejectsNonYAML(t *testing.T) {
	_, err := LoadFromFile("config.json")
	require.Error(t, err)
}
