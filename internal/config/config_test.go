package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("GROQ_API_KEY", "gsk-test")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "3000", cfg.Port)
	assert.Equal(t, ProviderGroq, cfg.LLM.Primary)
	assert.Equal(t, ProviderGemini, cfg.LLM.Fallback)
	assert.Equal(t, 20*time.Second, cfg.LLM.Timeout)
	assert.Equal(t, 3, cfg.LLM.MaxAttempts)
	assert.Equal(t, 8*time.Second, cfg.LLM.MaxBackoff)
	assert.Equal(t, 15, cfg.LLM.RequestsPerMinute)
	assert.Equal(t, 8, cfg.HistoryWindow)
	assert.Equal(t, 5*time.Minute, cfg.CatalogDigestTTL)
	assert.Equal(t, "@every 60m", cfg.SyncSchedule)
	assert.False(t, cfg.IsProduction())
}

func TestLoad_EnvironmentOverrides(t *testing.T) {
	t.Setenv("LLM_PRIMARY", "Anthropic")
	t.Setenv("LLM_FALLBACK", "groq")
	t.Setenv("ANTHROPIC_API_KEY", "sk-ant")
	t.Setenv("LLM_TIMEOUT", "5s")
	t.Setenv("LLM_REQUESTS_PER_MINUTE", "0")
	t.Setenv("HISTORY_WINDOW", "4")
	t.Setenv("SESSION_TTL", "not-a-duration")
	t.Setenv("ENVIRONMENT", "production")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, ProviderAnthropic, cfg.LLM.Primary)
	assert.Equal(t, 5*time.Second, cfg.LLM.Timeout)
	assert.Equal(t, 0, cfg.LLM.RequestsPerMinute)
	assert.Equal(t, 4, cfg.HistoryWindow)
	assert.Equal(t, 24*time.Hour, cfg.SessionTTL)
	assert.True(t, cfg.IsProduction())
}

func TestLoad_RequiresPrimaryKey(t *testing.T) {
	t.Setenv("LLM_PRIMARY", "gemini")
	t.Setenv("GEMINI_API_KEY", "")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "GEMINI_API_KEY")
}

func TestLoad_RejectsUnknownProvider(t *testing.T) {
	t.Setenv("GROQ_API_KEY", "gsk-test")
	t.Setenv("LLM_FALLBACK", "mistral")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "LLM_FALLBACK")
}

func TestRead_SkipsValidation(t *testing.T) {
	t.Setenv("GROQ_API_KEY", "")
	t.Setenv("SHOPIFY_STORE", "crook.myshopify.com")

	cfg := Read()
	assert.Equal(t, "crook.myshopify.com", cfg.Shopify.ShopDomain)
	assert.Error(t, cfg.Validate())
}

func TestNewLogger(t *testing.T) {
	cfg := &Config{Environment: "production", LogLevel: "warn"}
	logger, err := cfg.NewLogger()
	require.NoError(t, err)
	assert.False(t, logger.Core().Enabled(zap.InfoLevel))
	assert.True(t, logger.Core().Enabled(zap.WarnLevel))

	cfg.LogLevel = "chatty"
	_, err = cfg.NewLogger()
	assert.Error(t, err)
}
