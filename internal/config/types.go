package config

import (
	"fmt"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration wraps time.Duration to support string based YAML decoding.
type Duration struct {
	time.Duration
}

// UnmarshalYAML parses duration values expressed as Go-style strings or numbers interpreted as seconds.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	switch value.Kind {
	case yaml.ScalarNode:
		raw := strings.TrimSpace(value.Value)
		if raw == "" {
			d.Duration = 0
			return nil
		}
		parsed, err := time.ParseDuration(raw)
		if err == nil {
			d.Duration = parsed
			return nil
		}
		secs, convErr := time.ParseDuration(fmt.Sprintf("%ss", raw))
		if convErr == nil {
			d.Duration = secs
			return nil
		}
		return fmt.Errorf("invalid duration value %q: %w", raw, err)
	default:
		return fmt.Errorf("unsupported duration node kind: %v", value.Kind)
	}
}

// MarshalYAML renders the duration as a string to keep config edits human-friendly.
func (d Duration) MarshalYAML() (interface{}, error) {
	return d.Duration.String(), nil
}

// Config holds application level configuration aggregated from file and environment variables.
type Config struct {
	Server         ServerConfig         `yaml:"server"`
	Logging        LoggingConfig        `yaml:"logging"`
	Gateway        GatewayConfig        `yaml:"gateway"`
	Verification   VerificationConfig   `yaml:"verification"`
	Storage        StorageConfig        `yaml:"storage"`
	Audit          AuditConfig          `yaml:"audit"`
	Catalog        CatalogConfig        `yaml:"catalog"`
	RateLimit      RateLimitConfig      `yaml:"rate_limit"`
	CircuitBreaker CircuitBreakerConfig `yaml:"circuit_breaker"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Address            string   `yaml:"address"`
	ReadTimeout        Duration `yaml:"read_timeout"`
	WriteTimeout       Duration `yaml:"write_timeout"`
	IdleTimeout        Duration `yaml:"idle_timeout"`
	CORSAllowedOrigins []string `yaml:"cors_allowed_origins"`
	RoutePrefix        string   `yaml:"route_prefix"`          // Optional prefix for all routes (e.g., "/api")
	AdminMetricsAPIKey string   `yaml:"admin_metrics_api_key"` // Optional API key to protect /metrics (empty disables protection)
}

// LoggingConfig holds structured logging configuration.
type LoggingConfig struct {
	Level       string `yaml:"level"`       // debug, info, warn, error (default: info)
	Format      string `yaml:"format"`      // json, console (default: json)
	Environment string `yaml:"environment"` // production, staging, development
}

// GatewayConfig holds external payment gateway configuration.
type GatewayConfig struct {
	BaseURL   string   `yaml:"base_url"`   // Gateway REST API base URL
	KeyID     string   `yaml:"key_id"`     // API key identifier (basic auth user)
	KeySecret string   `yaml:"key_secret"` // Shared secret; also keys callback signature HMACs
	Timeout   Duration `yaml:"timeout"`    // Per-request timeout (default: 10s)
}

// VerificationConfig holds verification orchestrator configuration.
type VerificationConfig struct {
	TokenTTL   Duration `yaml:"token_ttl"`   // Success token time-to-live (default: 5m)
	SuccessURL string   `yaml:"success_url"` // Redirect target after a valid callback; token appended as query param
	FailureURL string   `yaml:"failure_url"` // Redirect target after a rejected/errored callback
	MintTokens bool     `yaml:"mint_tokens"` // Mint success tokens on callback success (default: true)
}

// StorageConfig holds ledger storage backend configuration.
type StorageConfig struct {
	Backend           string             `yaml:"backend"`            // "memory", "postgres", or "mongodb"
	PostgresURL       string             `yaml:"postgres_url"`       // PostgreSQL connection string
	MongoDBURL        string             `yaml:"mongodb_url"`        // MongoDB connection string
	MongoDBDatabase   string             `yaml:"mongodb_database"`   // MongoDB database name
	PostgresPool      PostgresPoolConfig `yaml:"postgres_pool"`      // PostgreSQL connection pool settings
	TransactionsTable string             `yaml:"transactions_table"` // Custom table name (default: "transactions")
}

// PostgresPoolConfig holds PostgreSQL connection pool settings.
type PostgresPoolConfig struct {
	MaxOpenConns    int      `yaml:"max_open_conns"`    // Maximum number of open connections (default: 25)
	MaxIdleConns    int      `yaml:"max_idle_conns"`    // Maximum number of idle connections (default: 5)
	ConnMaxLifetime Duration `yaml:"conn_max_lifetime"` // Maximum lifetime of connections (default: 5m)
}

// AuditConfig holds audit sink configuration.
// The audit trail is best-effort: sink failures never change a verdict.
type AuditConfig struct {
	Sink              string   `yaml:"sink"`               // "log" (default), "kafka", or "mongodb"
	KafkaBrokers      []string `yaml:"kafka_brokers"`      // Kafka broker addresses
	KafkaTopic        string   `yaml:"kafka_topic"`        // Topic for attempt rows (default: "payment-verification-attempts")
	MongoDBURL        string   `yaml:"mongodb_url"`        // MongoDB connection string
	MongoDBDatabase   string   `yaml:"mongodb_database"`   // MongoDB database name
	MongoDBCollection string   `yaml:"mongodb_collection"` // Collection name (default: "verification_attempts")
}

// CatalogConfig holds the static course catalog.
type CatalogConfig struct {
	Path    string            `yaml:"path"`    // Optional standalone catalog YAML file
	Courses map[string]Course `yaml:"courses"` // Inline catalog; ignored when Path is set
}

// Course defines a purchasable course with pricing in minor currency units.
type Course struct {
	Name     string `yaml:"name"`
	Amount   int64  `yaml:"amount"` // Minor units (e.g. paise, cents)
	Currency string `yaml:"currency"`
}

// RateLimitConfig holds rate limiting configuration.
type RateLimitConfig struct {
	GlobalEnabled bool     `yaml:"global_enabled"` // Enable global rate limiting
	GlobalLimit   int      `yaml:"global_limit"`   // Requests allowed per global window
	GlobalWindow  Duration `yaml:"global_window"`  // Time window for global limit

	PerIPEnabled bool     `yaml:"per_ip_enabled"` // Enable per-IP rate limiting
	PerIPLimit   int      `yaml:"per_ip_limit"`   // Requests allowed per IP per window
	PerIPWindow  Duration `yaml:"per_ip_window"`  // Time window for per-IP limit
}

// CircuitBreakerConfig holds circuit breaker configuration for external services.
// Prevents cascading failures by failing fast when external services are degraded.
type CircuitBreakerConfig struct {
	Enabled bool                 `yaml:"enabled"` // Enable circuit breakers (default: true)
	Gateway BreakerServiceConfig `yaml:"gateway"` // Payment gateway circuit breaker
	Audit   BreakerServiceConfig `yaml:"audit"`   // Audit sink circuit breaker
}

// BreakerServiceConfig configures a circuit breaker for a specific external service.
type BreakerServiceConfig struct {
	MaxRequests         uint32   `yaml:"max_requests"`         // Max requests in half-open state (default: 3)
	Interval            Duration `yaml:"interval"`             // Stats reset interval in closed state (default: 60s)
	Timeout             Duration `yaml:"timeout"`              // Open state timeout before half-open (default: 30s)
	ConsecutiveFailures uint32   `yaml:"consecutive_failures"` // Consecutive failures to trip (default: 5)
	FailureRatio        float64  `yaml:"failure_ratio"`        // Failure ratio to trip 0.0-1.0 (default: 0.5)
	MinRequests         uint32   `yaml:"min_requests"`         // Minimum requests before checking ratio (default: 10)
}
