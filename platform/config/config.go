// Package config provides application configuration loading.
// This is part of the platform layer and contains no business logic.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// =============================================================================
// Module-Specific Config Interfaces (Principle of Least Privilege)
// =============================================================================

// DatabaseConfig provides database connection settings.
type DatabaseConfig interface {
	GetDatabaseURL() string
}

// MigrationConfig controls startup migrations.
type MigrationConfig interface {
	GetMigrationsEnabled() bool
}

// JWTConfig provides JWT validation settings for the admin middleware.
type JWTConfig interface {
	GetJWTAccessSecret() string
}

// HTTPConfig provides settings for the HTTP server.
type HTTPConfig interface {
	GetHTTPAddr() string
	GetCORSAllowAll() bool
	GetCORSOrigins() []string
}

// WebhookConfig provides settings for the inbound webhook endpoints.
type WebhookConfig interface {
	GetWebhookSecret() string
	GetWebhookRateLimit() float64
	GetWebhookRateBurst() int
}

// SchedulerConfig provides settings for the asynq queue.
type SchedulerConfig interface {
	GetRedisURL() string
	GetRedisTLSInsecure() bool
	GetAsynqQueueName() string
	GetAsynqConcurrency() int
}

// CRMConfig provides settings for the LeadConnector client.
type CRMConfig interface {
	GetCRMBaseURL() string
	GetCRMTimeout() time.Duration
	GetCRMRateLimit() float64
	GetCRMMaxAttempts() int
}

// GenerationConfig provides settings for the reply generation agent.
type GenerationConfig interface {
	GetLLMProvider() string
	GetGeminiAPIKey() string
	GetGeminiModel() string
	GetOpenAIAPIKey() string
	GetOpenAIModel() string
	GetOpenAIBaseURL() string
	GetGenerationTimeout() time.Duration
	IsGenerationEnabled() bool
}

// PipelineConfig provides the tunables of the per-message pipeline.
type PipelineConfig interface {
	GetPipelineMode() string
	GetHandoffCooldown() time.Duration
	GetFastReplyWindow() time.Duration
	GetDedupeTTL() time.Duration
	GetLockTTL() time.Duration
	GetLockWait() time.Duration
	GetDefaultBookingLink() string
	GetBookingURLMarkers() []string
	GetHistoryLimit() int
}

// CampusConfig points at the location registry file.
type CampusConfig interface {
	GetCampusConfigPath() string
}

// TracingConfig toggles span export.
type TracingConfig interface {
	GetServiceName() string
	IsTracingEnabled() bool
}

// =============================================================================
// Main Config Struct
// =============================================================================

const (
	PipelineModeInline = "inline"
	PipelineModeQueue  = "queue"

	LLMProviderGoogle = "google"
	LLMProviderOpenAI = "openai"
)

// Config holds all application configuration values.
type Config struct {
	Env                string
	ServiceName        string
	HTTPAddr           string
	DatabaseURL        string
	MigrationsEnabled  bool
	JWTAccessSecret    string
	CORSAllowAll       bool
	CORSOrigins        []string
	WebhookSecret      string
	WebhookRateLimit   float64
	WebhookRateBurst   int
	RedisURL           string
	RedisTLSInsecure   bool
	AsynqQueueName     string
	AsynqConcurrency   int
	CRMBaseURL         string
	CRMTimeout         time.Duration
	CRMRateLimit       float64
	CRMMaxAttempts     int
	LLMProvider        string
	GeminiAPIKey       string
	GeminiModel        string
	OpenAIAPIKey       string
	OpenAIModel        string
	OpenAIBaseURL      string
	GenerationTimeout  time.Duration
	PipelineMode       string
	HandoffCooldown    time.Duration
	FastReplyWindow    time.Duration
	DedupeTTL          time.Duration
	LockTTL            time.Duration
	LockWait           time.Duration
	DefaultBookingLink string
	BookingURLMarkers  []string
	HistoryLimit       int
	CampusConfigPath   string
	ScraperToken       string
	TracingEnabled     bool
}

// =============================================================================
// Interface Implementations
// =============================================================================

// DatabaseConfig implementation
func (c *Config) GetDatabaseURL() string     { return c.DatabaseURL }
func (c *Config) GetMigrationsEnabled() bool { return c.MigrationsEnabled }

// JWTConfig implementation
func (c *Config) GetJWTAccessSecret() string { return c.JWTAccessSecret }

// HTTPConfig implementation
func (c *Config) GetHTTPAddr() string      { return c.HTTPAddr }
func (c *Config) GetCORSAllowAll() bool    { return c.CORSAllowAll }
func (c *Config) GetCORSOrigins() []string { return c.CORSOrigins }

// WebhookConfig implementation
func (c *Config) GetWebhookSecret() string     { return c.WebhookSecret }
func (c *Config) GetWebhookRateLimit() float64 { return c.WebhookRateLimit }
func (c *Config) GetWebhookRateBurst() int     { return c.WebhookRateBurst }

// SchedulerConfig implementation
func (c *Config) GetRedisURL() string       { return c.RedisURL }
func (c *Config) GetRedisTLSInsecure() bool { return c.RedisTLSInsecure }
func (c *Config) GetAsynqQueueName() string { return c.AsynqQueueName }
func (c *Config) GetAsynqConcurrency() int  { return c.AsynqConcurrency }

// CRMConfig implementation
func (c *Config) GetCRMBaseURL() string        { return c.CRMBaseURL }
func (c *Config) GetCRMTimeout() time.Duration { return c.CRMTimeout }
func (c *Config) GetCRMRateLimit() float64     { return c.CRMRateLimit }
func (c *Config) GetCRMMaxAttempts() int       { return c.CRMMaxAttempts }

// GenerationConfig implementation
func (c *Config) GetLLMProvider() string              { return c.LLMProvider }
func (c *Config) GetGeminiAPIKey() string             { return c.GeminiAPIKey }
func (c *Config) GetGeminiModel() string              { return c.GeminiModel }
func (c *Config) GetOpenAIAPIKey() string             { return c.OpenAIAPIKey }
func (c *Config) GetOpenAIModel() string              { return c.OpenAIModel }
func (c *Config) GetOpenAIBaseURL() string            { return c.OpenAIBaseURL }
func (c *Config) GetGenerationTimeout() time.Duration { return c.GenerationTimeout }

func (c *Config) IsGenerationEnabled() bool {
	if c.LLMProvider == LLMProviderOpenAI {
		return c.OpenAIAPIKey != ""
	}
	return c.GeminiAPIKey != ""
}

// PipelineConfig implementation
func (c *Config) GetPipelineMode() string           { return c.PipelineMode }
func (c *Config) GetHandoffCooldown() time.Duration { return c.HandoffCooldown }
func (c *Config) GetFastReplyWindow() time.Duration { return c.FastReplyWindow }
func (c *Config) GetDedupeTTL() time.Duration       { return c.DedupeTTL }
func (c *Config) GetLockTTL() time.Duration         { return c.LockTTL }
func (c *Config) GetLockWait() time.Duration        { return c.LockWait }
func (c *Config) GetDefaultBookingLink() string     { return c.DefaultBookingLink }
func (c *Config) GetBookingURLMarkers() []string    { return c.BookingURLMarkers }
func (c *Config) GetHistoryLimit() int              { return c.HistoryLimit }

// CampusConfig implementation
func (c *Config) GetCampusConfigPath() string { return c.CampusConfigPath }

// TracingConfig implementation
func (c *Config) GetServiceName() string { return c.ServiceName }
func (c *Config) IsTracingEnabled() bool  { return c.TracingEnabled }

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	_ = godotenv.Load()

	corsOrigins := splitCSV(getEnv("CORS_ORIGINS", "http://localhost:4200"))
	corsAllowAll := strings.EqualFold(getEnv("CORS_ALLOW_ALL", "false"), "true")
	if containsWildcard(corsOrigins) {
		corsAllowAll = true
	}

	cfg := &Config{
		Env:                getEnv("APP_ENV", "development"),
		ServiceName:        getEnv("SERVICE_NAME", "leadfunnel"),
		HTTPAddr:           getEnv("HTTP_ADDR", ":8080"),
		DatabaseURL:        getEnv("DATABASE_URL", ""),
		MigrationsEnabled:  strings.EqualFold(getEnv("MIGRATIONS_ENABLED", "true"), "true"),
		JWTAccessSecret:    getEnv("JWT_ACCESS_SECRET", ""),
		CORSAllowAll:       corsAllowAll,
		CORSOrigins:        corsOrigins,
		WebhookSecret:      getEnv("WEBHOOK_SECRET", ""),
		WebhookRateLimit:   mustFloat(getEnv("WEBHOOK_RATE_LIMIT_PER_SEC", "20")),
		WebhookRateBurst:   mustInt(getEnv("WEBHOOK_RATE_BURST", "40")),
		RedisURL:           getEnv("REDIS_URL", ""),
		RedisTLSInsecure:   strings.EqualFold(getEnv("REDIS_TLS_INSECURE", "false"), "true"),
		AsynqQueueName:     getEnv("ASYNQ_QUEUE", "funnel"),
		AsynqConcurrency:   mustInt(getEnv("ASYNQ_CONCURRENCY", "10")),
		CRMBaseURL:         getEnv("CRM_BASE_URL", "https://services.leadconnectorhq.com"),
		CRMTimeout:         mustDuration(getEnv("CRM_TIMEOUT", "10s")),
		CRMRateLimit:       mustFloat(getEnv("CRM_RATE_LIMIT_PER_SEC", "8")),
		CRMMaxAttempts:     mustInt(getEnv("CRM_MAX_ATTEMPTS", "3")),
		LLMProvider:        strings.ToLower(getEnv("LLM_PROVIDER", LLMProviderGoogle)),
		GeminiAPIKey:       getEnv("GOOGLE_API_KEY", getEnv("GEMINI_API_KEY", "")),
		GeminiModel:        getEnv("GEMINI_MODEL", "gemini-2.0-flash"),
		OpenAIAPIKey:       getEnv("OPENAI_API_KEY", ""),
		OpenAIModel:        getEnv("OPENAI_MODEL", "gpt-5-mini"),
		OpenAIBaseURL:      getEnv("OPENAI_BASE_URL", "https://api.openai.com/v1"),
		GenerationTimeout:  mustDuration(getEnv("GENERATION_TIMEOUT", "25s")),
		PipelineMode:       strings.ToLower(getEnv("PIPELINE_MODE", PipelineModeInline)),
		HandoffCooldown:    mustDuration(getEnv("HANDOFF_COOLDOWN", "30m")),
		FastReplyWindow:    mustDuration(getEnv("FAST_REPLY_WINDOW", "5m")),
		DedupeTTL:          mustDuration(getEnv("DEDUPE_TTL", "24h")),
		LockTTL:            mustDuration(getEnv("LOCK_TTL", "90s")),
		LockWait:           mustDuration(getEnv("LOCK_WAIT", "60s")),
		DefaultBookingLink: getEnv("DEFAULT_BOOKING_LINK", "https://link.superleads.mx/widget/booking/o33ctHxdbcr7Q7wmarJY"),
		BookingURLMarkers:  splitCSV(getEnv("BOOKING_URL_MARKERS", "link.superleads.mx/widget/booking")),
		HistoryLimit:       mustInt(getEnv("HISTORY_LIMIT", "20")),
		CampusConfigPath:   getEnv("CAMPUS_CONFIG_PATH", "config/campuses.yaml"),
		ScraperToken:       getEnv("SCRAPER_TOKEN", ""),
		TracingEnabled:     strings.EqualFold(getEnv("OTEL_TRACES_ENABLED", "false"), "true"),
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}
	if cfg.PipelineMode != PipelineModeInline && cfg.PipelineMode != PipelineModeQueue {
		return nil, fmt.Errorf("PIPELINE_MODE must be %q or %q", PipelineModeInline, PipelineModeQueue)
	}
	if cfg.PipelineMode == PipelineModeQueue && cfg.RedisURL == "" {
		return nil, fmt.Errorf("REDIS_URL is required when PIPELINE_MODE is queue")
	}
	if cfg.HandoffCooldown <= 0 {
		return nil, fmt.Errorf("HANDOFF_COOLDOWN must be a positive duration")
	}
	if cfg.LLMProvider != LLMProviderGoogle && cfg.LLMProvider != LLMProviderOpenAI {
		return nil, fmt.Errorf("LLM_PROVIDER must be %q or %q", LLMProviderGoogle, LLMProviderOpenAI)
	}
	if cfg.GenerationTimeout <= 0 {
		return nil, fmt.Errorf("GENERATION_TIMEOUT must be a positive duration")
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if val, ok := os.LookupEnv(key); ok {
		return val
	}
	return fallback
}

func mustDuration(value string) time.Duration {
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0
	}
	return d
}

func mustInt(value string) int {
	result, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return 0
	}
	return result
}

func mustFloat(value string) float64 {
	result, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
	if err != nil {
		return 0
	}
	return result
}

func splitCSV(value string) []string {
	parts := strings.Split(value, ",")
	results := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			results = append(results, trimmed)
		}
	}
	return results
}

func containsWildcard(values []string) bool {
	for _, value := range values {
		if value == "*" {
			return true
		}
	}
	return false
}
