package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	// Service configuration
	Port        string
	Environment string
	LogLevel    string

	// Session storage; empty RedisURL keeps sessions in memory
	RedisURL   string
	SessionTTL time.Duration

	// Catalog
	CatalogDSN       string
	CatalogDigestTTL time.Duration
	SyncSchedule     string
	Shopify          ShopifyConfig

	// NATS configuration; empty NatsURL disables the transport
	NatsURL     string
	NatsSubject string
	NatsTimeout time.Duration

	// Language model gateway
	LLM LLMConfig

	HistoryWindow int
}

type ShopifyConfig struct {
	ShopDomain  string
	AccessToken string
	APIVersion  string
}

type LLMConfig struct {
	Primary           string
	Fallback          string
	Timeout           time.Duration
	MaxAttempts       int
	MaxBackoff        time.Duration
	RequestsPerMinute int

	GroqAPIKey      string
	GroqModel       string
	GroqBaseURL     string
	GeminiAPIKey    string
	GeminiModel     string
	AnthropicAPIKey string
	AnthropicModel  string
}

// Provider names accepted by LLM_PRIMARY and LLM_FALLBACK
const (
	ProviderGroq      = "groq"
	ProviderGemini    = "gemini"
	ProviderAnthropic = "anthropic"
)

// Load reads the configuration and validates it for the chat server
func Load() (*Config, error) {
	cfg := Read()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Read reads the configuration without validating the LLM settings
func Read() *Config {
	v := viper.New()

	v.SetDefault("PORT", "3000")
	v.SetDefault("ENVIRONMENT", "development")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("SESSION_TTL", "24h")
	v.SetDefault("CATALOG_DSN", "file:catalog.db?_busy_timeout=5000")
	v.SetDefault("CATALOG_DIGEST_TTL", "5m")
	v.SetDefault("CATALOG_SYNC_SCHEDULE", "@every 60m")
	v.SetDefault("SHOPIFY_API_VERSION", "2024-01")
	v.SetDefault("NATS_SUBJECT", "chat")
	v.SetDefault("NATS_TIMEOUT", "30s")
	v.SetDefault("LLM_PRIMARY", ProviderGroq)
	v.SetDefault("LLM_FALLBACK", ProviderGemini)
	v.SetDefault("LLM_TIMEOUT", "20s")
	v.SetDefault("LLM_MAX_ATTEMPTS", 3)
	v.SetDefault("LLM_MAX_BACKOFF", "8s")
	v.SetDefault("LLM_REQUESTS_PER_MINUTE", 15)
	v.SetDefault("HISTORY_WINDOW", 8)

	// Read from environment variables
	v.AutomaticEnv()

	return &Config{
		Port:        getEnv(v, "PORT"),
		Environment: getEnv(v, "ENVIRONMENT"),
		LogLevel:    getEnv(v, "LOG_LEVEL"),

		RedisURL:   getEnv(v, "REDIS_URL"),
		SessionTTL: getDurationEnv(v, "SESSION_TTL", 24*time.Hour),

		CatalogDSN:       getEnv(v, "CATALOG_DSN"),
		CatalogDigestTTL: getDurationEnv(v, "CATALOG_DIGEST_TTL", 5*time.Minute),
		SyncSchedule:     getEnv(v, "CATALOG_SYNC_SCHEDULE"),
		Shopify: ShopifyConfig{
			ShopDomain:  getEnv(v, "SHOPIFY_STORE"),
			AccessToken: getEnv(v, "SHOPIFY_ACCESS_TOKEN"),
			APIVersion:  getEnv(v, "SHOPIFY_API_VERSION"),
		},

		NatsURL:     getEnv(v, "NATS_URL"),
		NatsSubject: getEnv(v, "NATS_SUBJECT"),
		NatsTimeout: getDurationEnv(v, "NATS_TIMEOUT", 30*time.Second),

		LLM: LLMConfig{
			Primary:           strings.ToLower(getEnv(v, "LLM_PRIMARY")),
			Fallback:          strings.ToLower(getEnv(v, "LLM_FALLBACK")),
			Timeout:           getDurationEnv(v, "LLM_TIMEOUT", 20*time.Second),
			MaxAttempts:       v.GetInt("LLM_MAX_ATTEMPTS"),
			MaxBackoff:        getDurationEnv(v, "LLM_MAX_BACKOFF", 8*time.Second),
			RequestsPerMinute: v.GetInt("LLM_REQUESTS_PER_MINUTE"),

			GroqAPIKey:      getEnv(v, "GROQ_API_KEY"),
			GroqModel:       getEnv(v, "GROQ_MODEL"),
			GroqBaseURL:     getEnv(v, "GROQ_BASE_URL"),
			GeminiAPIKey:    getEnv(v, "GEMINI_API_KEY"),
			GeminiModel:     getEnv(v, "GEMINI_MODEL"),
			AnthropicAPIKey: getEnv(v, "ANTHROPIC_API_KEY"),
			AnthropicModel:  getEnv(v, "ANTHROPIC_MODEL"),
		},

		HistoryWindow: v.GetInt("HISTORY_WINDOW"),
	}
}

// Validate checks that the primary provider is usable
func (c *Config) Validate() error {
	key, err := c.LLM.APIKey(c.LLM.Primary)
	if err != nil {
		return fmt.Errorf("LLM_PRIMARY: %w", err)
	}
	if key == "" {
		return fmt.Errorf("%s_API_KEY is required for the primary provider", strings.ToUpper(c.LLM.Primary))
	}
	if c.LLM.Fallback != "" {
		if _, err := c.LLM.APIKey(c.LLM.Fallback); err != nil {
			return fmt.Errorf("LLM_FALLBACK: %w", err)
		}
	}
	if c.HistoryWindow < 0 {
		return fmt.Errorf("HISTORY_WINDOW must not be negative")
	}
	return nil
}

// APIKey returns the key configured for provider
func (c LLMConfig) APIKey(provider string) (string, error) {
	switch provider {
	case ProviderGroq:
		return c.GroqAPIKey, nil
	case ProviderGemini:
		return c.GeminiAPIKey, nil
	case ProviderAnthropic:
		return c.AnthropicAPIKey, nil
	}
	return "", fmt.Errorf("unknown provider %q", provider)
}

// IsProduction reports whether ENVIRONMENT is production
func (c *Config) IsProduction() bool {
	return strings.EqualFold(c.Environment, "production")
}

func getEnv(v *viper.Viper, key string) string {
	return strings.TrimSpace(v.GetString(key))
}

func getDurationEnv(v *viper.Viper, key string, defaultValue time.Duration) time.Duration {
	if value := getEnv(v, key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
