package internal

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/DukeRupert/magicsocial/internal/ai"
	"github.com/DukeRupert/magicsocial/internal/ai/anthropic"
	"github.com/DukeRupert/magicsocial/internal/domain"
)

type Config struct {
	Env         string
	Port        int
	LogLevel    string
	DatabaseUrl string

	// Frontend origin, used to build checkout and portal return URLs
	BaseURL string

	// Supabase access tokens are HS256 signed with the project's JWT secret
	SupabaseJWTSecret string

	// Stripe Billing Configuration
	// Billing endpoints answer 501 when the secret key is empty.
	StripeSecretKey     string // sk_test_... or sk_live_...
	StripeWebhookSecret string // whsec_...

	// Comma separated so test and live ids can coexist
	StripeProPriceIDs      []string
	StripeUltimatePriceIDs []string

	// Daily generation quotas per tier
	FreeDailyLimit     int
	ProDailyLimit      int
	UltimateDailyLimit int

	// AI Provider Configuration
	AIProvider       string // "openai", "anthropic" or "mock"
	OpenAIAPIKey     string
	OpenAIBaseURL    string // Optional, for proxies
	AnthropicAPIKey  string
	DefaultModel     string
	AllowedModels    []string
	AIMaxRetries     int
	AIRetryBaseDelay time.Duration
	AIRequestTimeout time.Duration
	GenerateTimeout  time.Duration

	WebhookTimeout time.Duration

	// Per-client API rate limit
	RateLimitRequests int
	RateLimitWindow   time.Duration

	// Proxies whose X-Forwarded-For / X-Real-IP headers are believed (CIDRs or
	// addresses). Empty means client IPs come from the socket peer.
	TrustedProxies []string

	// Metrics endpoint authentication
	// If both are empty, the /metrics endpoint will be unprotected (not recommended).
	// The password may be a bcrypt hash.
	MetricsUsername string
	MetricsPassword string
}

func NewConfig() (*Config, error) {
	// Load .env file if it exists (ignored in production)
	_ = godotenv.Load()

	cfg := &Config{
		Env:      getEnv("ENV", "development"),
		Port:     getEnvInt("PORT", 8080),
		LogLevel: getEnv("LOG_LEVEL", "debug"),

		BaseURL: getEnv("BASE_URL", "http://localhost:3000"),

		StripeSecretKey:        getEnv("STRIPE_SECRET_KEY", ""),
		StripeWebhookSecret:    getEnv("STRIPE_WEBHOOK_SECRET", ""),
		StripeProPriceIDs:      getEnvList("STRIPE_PRO_PRICE_IDS"),
		StripeUltimatePriceIDs: getEnvList("STRIPE_ULTIMATE_PRICE_IDS"),

		FreeDailyLimit:     getEnvInt("FREE_DAILY_LIMIT", domain.DefaultFreeQuota),
		ProDailyLimit:      getEnvInt("PRO_DAILY_LIMIT", domain.DefaultProQuota),
		UltimateDailyLimit: getEnvInt("ULTIMATE_DAILY_LIMIT", domain.DefaultUltimateQuota),

		AIProvider:       getEnv("AI_PROVIDER", "openai"),
		OpenAIAPIKey:     getEnv("OPENAI_API_KEY", ""),
		OpenAIBaseURL:    getEnv("OPENAI_BASE_URL", ""),
		AnthropicAPIKey:  getEnv("ANTHROPIC_API_KEY", ""),
		DefaultModel:     getEnv("AI_DEFAULT_MODEL", ""),
		AllowedModels:    getEnvList("AI_ALLOWED_MODELS"),
		AIMaxRetries:     getEnvInt("AI_MAX_RETRIES", 3),
		AIRetryBaseDelay: getEnvDuration("AI_RETRY_BASE_DELAY", 1*time.Second),
		AIRequestTimeout: getEnvDuration("AI_REQUEST_TIMEOUT", 60*time.Second),
		GenerateTimeout:  getEnvDuration("GENERATE_TIMEOUT", 30*time.Second),

		WebhookTimeout: getEnvDuration("WEBHOOK_TIMEOUT", 10*time.Second),

		RateLimitRequests: getEnvInt("RATE_LIMIT_REQUESTS", 60),
		RateLimitWindow:   getEnvDuration("RATE_LIMIT_WINDOW", time.Minute),
		TrustedProxies:    getEnvList("TRUSTED_PROXIES"),

		MetricsUsername: getEnv("METRICS_USERNAME", ""),
		MetricsPassword: getEnv("METRICS_PASSWORD", ""),
	}

	// Required
	cfg.DatabaseUrl = os.Getenv("DATABASE_URL")
	if cfg.DatabaseUrl == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}
	cfg.SupabaseJWTSecret = os.Getenv("SUPABASE_JWT_SECRET")
	if cfg.SupabaseJWTSecret == "" {
		return nil, fmt.Errorf("SUPABASE_JWT_SECRET is required")
	}

	// Validate AI provider configuration
	switch cfg.AIProvider {
	case "openai":
		if cfg.OpenAIAPIKey == "" {
			return nil, fmt.Errorf("OPENAI_API_KEY is required when AI_PROVIDER is 'openai'")
		}
		if cfg.DefaultModel == "" {
			cfg.DefaultModel = ai.DefaultModel
		}
	case "anthropic":
		if cfg.AnthropicAPIKey == "" {
			return nil, fmt.Errorf("ANTHROPIC_API_KEY is required when AI_PROVIDER is 'anthropic'")
		}
		if cfg.DefaultModel == "" {
			cfg.DefaultModel = anthropic.DefaultModel
		}
	case "mock":
		if cfg.DefaultModel == "" {
			cfg.DefaultModel = ai.DefaultModel
		}
	default:
		return nil, fmt.Errorf("AI_PROVIDER must be one of 'openai', 'anthropic' or 'mock', got: %s", cfg.AIProvider)
	}

	// Validate billing configuration
	if cfg.StripeSecretKey != "" && cfg.StripeWebhookSecret == "" {
		return nil, fmt.Errorf("STRIPE_WEBHOOK_SECRET is required when STRIPE_SECRET_KEY is set")
	}

	for name, v := range map[string]int{
		"FREE_DAILY_LIMIT":     cfg.FreeDailyLimit,
		"PRO_DAILY_LIMIT":      cfg.ProDailyLimit,
		"ULTIMATE_DAILY_LIMIT": cfg.UltimateDailyLimit,
	} {
		if v < 0 {
			return nil, fmt.Errorf("%s must not be negative, got: %d", name, v)
		}
	}

	return cfg, nil
}

// BillingEnabled reports whether Stripe credentials are configured.
func (c *Config) BillingEnabled() bool {
	return c.StripeSecretKey != ""
}

// PlanCatalog builds the price and quota tables.
func (c *Config) PlanCatalog() domain.PlanCatalog {
	prices := make(map[string]domain.PlanTier, len(c.StripeProPriceIDs)+len(c.StripeUltimatePriceIDs))
	for _, id := range c.StripeProPriceIDs {
		prices[id] = domain.PlanPro
	}
	for _, id := range c.StripeUltimatePriceIDs {
		prices[id] = domain.PlanUltimate
	}
	return domain.NewPlanCatalog(prices, map[domain.PlanTier]int{
		domain.PlanFree:     c.FreeDailyLimit,
		domain.PlanPro:      c.ProDailyLimit,
		domain.PlanUltimate: c.UltimateDailyLimit,
	})
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return fallback
}

// getEnvList splits a comma separated variable, dropping blanks.
func getEnvList(key string) []string {
	var out []string
	for _, part := range strings.Split(os.Getenv(key), ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
