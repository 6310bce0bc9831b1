package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// applyEnvOverrides applies environment variable overrides to the config.
// Environment variables take precedence over YAML configuration.
// All env vars use COURSEPAY_ prefix for namespace isolation.
func (c *Config) applyEnvOverrides() {
	// Server config
	setIfEnv(&c.Server.Address, "COURSEPAY_SERVER_ADDRESS")
	setIfEnv(&c.Server.RoutePrefix, "COURSEPAY_ROUTE_PREFIX")
	setIfEnv(&c.Server.AdminMetricsAPIKey, "COURSEPAY_ADMIN_METRICS_API_KEY")

	// Normalize route prefix: ensure it starts with / and doesn't end with /
	if c.Server.RoutePrefix != "" {
		c.Server.RoutePrefix = normalizeRoutePrefix(c.Server.RoutePrefix)
	}

	// Logging config
	setIfEnv(&c.Logging.Level, "COURSEPAY_LOG_LEVEL")
	setIfEnv(&c.Logging.Format, "COURSEPAY_LOG_FORMAT")
	setIfEnv(&c.Logging.Environment, "COURSEPAY_ENVIRONMENT")

	// Gateway config
	setIfEnv(&c.Gateway.BaseURL, "COURSEPAY_GATEWAY_BASE_URL")
	setIfEnv(&c.Gateway.KeyID, "COURSEPAY_GATEWAY_KEY_ID")
	setIfEnv(&c.Gateway.KeySecret, "COURSEPAY_GATEWAY_KEY_SECRET")
	setDurationIfEnv(&c.Gateway.Timeout, "COURSEPAY_GATEWAY_TIMEOUT")

	// Verification config
	setDurationIfEnv(&c.Verification.TokenTTL, "COURSEPAY_TOKEN_TTL")
	setIfEnv(&c.Verification.SuccessURL, "COURSEPAY_SUCCESS_URL")
	setIfEnv(&c.Verification.FailureURL, "COURSEPAY_FAILURE_URL")
	setBoolIfEnv(&c.Verification.MintTokens, "COURSEPAY_MINT_TOKENS")

	// Storage config
	setIfEnv(&c.Storage.Backend, "COURSEPAY_STORAGE_BACKEND")
	setIfEnv(&c.Storage.PostgresURL, "COURSEPAY_POSTGRES_URL")
	setIfEnv(&c.Storage.MongoDBURL, "COURSEPAY_MONGODB_URL")
	setIfEnv(&c.Storage.MongoDBDatabase, "COURSEPAY_MONGODB_DATABASE")

	// Audit config
	setIfEnv(&c.Audit.Sink, "COURSEPAY_AUDIT_SINK")
	if v := os.Getenv("COURSEPAY_AUDIT_KAFKA_BROKERS"); v != "" {
		c.Audit.KafkaBrokers = splitAndTrim(v)
	}
	setIfEnv(&c.Audit.KafkaTopic, "COURSEPAY_AUDIT_KAFKA_TOPIC")
	setIfEnv(&c.Audit.MongoDBURL, "COURSEPAY_AUDIT_MONGODB_URL")
	setIfEnv(&c.Audit.MongoDBDatabase, "COURSEPAY_AUDIT_MONGODB_DATABASE")

	// Catalog config
	setIfEnv(&c.Catalog.Path, "COURSEPAY_CATALOG_PATH")

	// Rate limit config
	setBoolIfEnv(&c.RateLimit.GlobalEnabled, "COURSEPAY_RATE_LIMIT_GLOBAL_ENABLED")
	setIntIfEnv(&c.RateLimit.GlobalLimit, "COURSEPAY_RATE_LIMIT_GLOBAL_LIMIT")
	setBoolIfEnv(&c.RateLimit.PerIPEnabled, "COURSEPAY_RATE_LIMIT_PER_IP_ENABLED")
	setIntIfEnv(&c.RateLimit.PerIPLimit, "COURSEPAY_RATE_LIMIT_PER_IP_LIMIT")

	// Circuit breaker config
	setBoolIfEnv(&c.CircuitBreaker.Enabled, "COURSEPAY_CIRCUIT_BREAKER_ENABLED")
}

// setIfEnv assigns the environment variable value if it is non-empty.
func setIfEnv(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

// setBoolIfEnv assigns a parsed boolean environment value if present.
func setBoolIfEnv(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if parsed, err := strconv.ParseBool(v); err == nil {
			*dst = parsed
		}
	}
}

// setIntIfEnv assigns a parsed integer environment value if present.
func setIntIfEnv(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			*dst = parsed
		}
	}
}

// setDurationIfEnv assigns a parsed duration environment value if present.
func setDurationIfEnv(dst *Duration, key string) {
	if v := os.Getenv(key); v != "" {
		if parsed, err := time.ParseDuration(v); err == nil {
			dst.Duration = parsed
		}
	}
}

// splitAndTrim splits a comma-separated list and trims whitespace around entries.
func splitAndTrim(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

// normalizeRoutePrefix ensures the prefix has a leading slash and no trailing slash.
func normalizeRoutePrefix(prefix string) string {
	prefix = strings.TrimSpace(prefix)
	if prefix == "" || prefix == "/" {
		return ""
	}
	if !strings.HasPrefix(prefix, "/") {
		prefix = "/" + prefix
	}
	return strings.TrimRight(prefix, "/")
}
