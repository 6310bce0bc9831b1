package ratelimit

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/httprate"

	"github.com/coursepay/server/internal/config"
	"github.com/coursepay/server/internal/metrics"
)

// Limits holds the effective rate limiting settings.
type Limits struct {
	GlobalEnabled bool
	GlobalLimit   int
	GlobalWindow  time.Duration

	PerIPEnabled bool
	PerIPLimit   int
	PerIPWindow  time.Duration

	Metrics *metrics.Metrics
}

// FromConfig converts application config into Limits.
func FromConfig(cfg config.RateLimitConfig, metricsCollector *metrics.Metrics) Limits {
	return Limits{
		GlobalEnabled: cfg.GlobalEnabled,
		GlobalLimit:   cfg.GlobalLimit,
		GlobalWindow:  cfg.GlobalWindow.Duration,
		PerIPEnabled:  cfg.PerIPEnabled,
		PerIPLimit:    cfg.PerIPLimit,
		PerIPWindow:   cfg.PerIPWindow.Duration,
		Metrics:       metricsCollector,
	}
}

// rateLimitResponse is the JSON body returned on 429.
type rateLimitResponse struct {
	Error             string `json:"error"`
	Message           string `json:"message"`
	RetryAfterSeconds int    `json:"retry_after_seconds"`
}

// limitHandler builds the 429 handler shared by both limiters.
func limitHandler(limitType, message string, windowSeconds int, metricsCollector *metrics.Metrics) func(http.ResponseWriter, *http.Request) {
	return func(w http.ResponseWriter, r *http.Request) {
		if metricsCollector != nil {
			metricsCollector.ObserveRateLimit(limitType)
		}

		response := rateLimitResponse{
			Error:             "rate_limit_exceeded",
			Message:           message,
			RetryAfterSeconds: windowSeconds,
		}

		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Retry-After", fmt.Sprintf("%d", windowSeconds))
		w.WriteHeader(http.StatusTooManyRequests)
		json.NewEncoder(w).Encode(response)
	}
}

// passthrough returns a middleware that does nothing.
func passthrough(next http.Handler) http.Handler {
	return next
}

// GlobalLimiter limits the total request rate across all clients. Gateway
// callbacks share this budget, so the default is deliberately generous.
func GlobalLimiter(limits Limits) func(http.Handler) http.Handler {
	if !limits.GlobalEnabled {
		return passthrough
	}

	return httprate.Limit(
		limits.GlobalLimit,
		limits.GlobalWindow,
		httprate.WithLimitHandler(limitHandler(
			"global",
			"Rate limit exceeded. Please try again later.",
			int(limits.GlobalWindow.Seconds()),
			limits.Metrics,
		)),
	)
}

// IPLimiter limits the request rate per client IP.
func IPLimiter(limits Limits) func(http.Handler) http.Handler {
	if !limits.PerIPEnabled {
		return passthrough
	}

	return httprate.Limit(
		limits.PerIPLimit,
		limits.PerIPWindow,
		httprate.WithKeyByIP(),
		httprate.WithLimitHandler(limitHandler(
			"per_ip",
			"IP rate limit exceeded. Please try again later.",
			int(limits.PerIPWindow.Seconds()),
			limits.Metrics,
		)),
	)
}
