package config

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// clearEnvVars clears all Birvanoio-related environment variables.
func clearEnvVars() {
	envVars := []string{
		"APP_ENV", "LOG_LEVEL", "LOG_FORMAT", "BIRVANOIO_USER_ID",
		"DATABASE_URL", "DATABASE_DRIVER", "SQLITE_PATH",
		"CREDIT_STORE", "REDIS_URL", "RABBITMQ_URL",
		"OUTBOX_POLL_INTERVAL", "OUTBOX_BATCH_SIZE", "OUTBOX_MAX_RETRIES",
		"OUTBOX_STATS_INTERVAL", "OUTBOX_RETENTION_DAYS", "OUTBOX_CLEANUP_INTERVAL",
		"API_ADDR", "WORKER_HEALTH_ADDR", "MCP_ADDR", "MCP_AUTH_TOKEN",
		"ENRICH_PROVIDERS", "ENRICH_PROVIDER_TIMEOUT", "ENRICH_MAX_ATTEMPTS",
		"ENRICH_BASE_DELAY", "ENRICH_BREAKER_FAILURES", "ENRICH_BREAKER_TIMEOUT",
		"ENRICH_PROVIDER_APOLLO_URL", "ENRICH_PROVIDER_APOLLO_API_KEY",
		"ENRICH_PROVIDER_PEOPLE_DATA_URL", "ENRICH_PROVIDER_PEOPLE_DATA_API_KEY",
		"ENRICH_PROVIDER_PEOPLE_DATA_TOKEN_URL", "ENRICH_PROVIDER_PEOPLE_DATA_CLIENT_ID",
		"ENRICH_PROVIDER_PEOPLE_DATA_CLIENT_SECRET", "ENRICH_PROVIDER_PEOPLE_DATA_SCOPES",
	}
	for _, v := range envVars {
		os.Unsetenv(v)
	}
}

func TestLoad_DefaultValues(t *testing.T) {
	clearEnvVars()
	defer clearEnvVars()

	cfg, err := Load()
	require.NoError(t, err)
	require.NotNil(t, cfg)

	assert.Equal(t, "development", cfg.AppEnv)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "00000000-0000-0000-0000-000000000001", cfg.UserID)

	// Local mode is enabled by default when no DATABASE_URL is set
	assert.True(t, cfg.LocalMode)
	assert.Equal(t, "sqlite", cfg.DatabaseDriver)
	assert.Equal(t, "sql", cfg.CreditStore)
	assert.False(t, cfg.UsesRedisCredits())

	assert.Equal(t, 100, cfg.OutboxBatchSize)
	assert.Equal(t, 5, cfg.OutboxMaxRetries)
	assert.Equal(t, 14, cfg.OutboxRetentionDays)

	assert.Equal(t, "0.0.0.0:8080", cfg.APIAddr)
	assert.Equal(t, 3, cfg.EnrichMaxAttempts)
	assert.Equal(t, 500*time.Millisecond, cfg.EnrichBaseDelay)
	assert.Equal(t, 10*time.Second, cfg.EnrichProviderTimeout)
	assert.Empty(t, cfg.EnrichProviders)
}

func TestLoad_PostgresWhenURLSet(t *testing.T) {
	clearEnvVars()
	defer clearEnvVars()

	os.Setenv("DATABASE_URL", "postgres://birvanoio@localhost:5432/birvanoio")
	os.Setenv("CREDIT_STORE", "Redis")

	cfg, err := Load()
	require.NoError(t, err)

	assert.False(t, cfg.LocalMode)
	assert.Equal(t, "postgres", cfg.DatabaseDriver)
	assert.True(t, cfg.UsesRedisCredits())
}

func TestLoad_ProvidersKeepOrderAndCredentials(t *testing.T) {
	clearEnvVars()
	defer clearEnvVars()

	os.Setenv("ENRICH_PROVIDERS", "apollo, people-data")
	os.Setenv("ENRICH_PROVIDER_APOLLO_URL", "https://apollo.example/enrich")
	os.Setenv("ENRICH_PROVIDER_APOLLO_API_KEY", "k1")
	os.Setenv("ENRICH_PROVIDER_PEOPLE_DATA_URL", "https://pdl.example/enrich")

	cfg, err := Load()
	require.NoError(t, err)

	require.Len(t, cfg.EnrichProviders, 2)
	assert.Equal(t, ProviderConfig{Name: "apollo", URL: "https://apollo.example/enrich", APIKey: "k1"}, cfg.EnrichProviders[0])
	assert.Equal(t, "people-data", cfg.EnrichProviders[1].Name)
	assert.Empty(t, cfg.EnrichProviders[1].APIKey)
}

func TestLoad_ProviderClientCredentials(t *testing.T) {
	clearEnvVars()
	defer clearEnvVars()

	os.Setenv("ENRICH_PROVIDERS", "people-data")
	os.Setenv("ENRICH_PROVIDER_PEOPLE_DATA_URL", "https://pdl.example/enrich")
	os.Setenv("ENRICH_PROVIDER_PEOPLE_DATA_TOKEN_URL", "https://pdl.example/oauth/token")
	os.Setenv("ENRICH_PROVIDER_PEOPLE_DATA_CLIENT_ID", "id")
	os.Setenv("ENRICH_PROVIDER_PEOPLE_DATA_CLIENT_SECRET", "secret")
	os.Setenv("ENRICH_PROVIDER_PEOPLE_DATA_SCOPES", "enrich, people")

	cfg, err := Load()
	require.NoError(t, err)

	require.Len(t, cfg.EnrichProviders, 1)
	p := cfg.EnrichProviders[0]
	assert.Equal(t, "https://pdl.example/oauth/token", p.TokenURL)
	assert.Equal(t, "id", p.ClientID)
	assert.Equal(t, "secret", p.ClientSecret)
	assert.Equal(t, []string{"enrich", "people"}, p.Scopes)
	assert.Empty(t, p.APIKey)
}

func TestLoad_InvalidNumbersFallBack(t *testing.T) {
	clearEnvVars()
	defer clearEnvVars()

	os.Setenv("ENRICH_MAX_ATTEMPTS", "three")
	os.Setenv("ENRICH_BASE_DELAY", "soon")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 3, cfg.EnrichMaxAttempts)
	assert.Equal(t, 500*time.Millisecond, cfg.EnrichBaseDelay)
}
