package circuitbreaker

import (
	"time"

	"github.com/sony/gobreaker"

	"github.com/coursepay/server/internal/config"
)

// ServiceType identifies different external services for circuit breaker isolation.
type ServiceType string

const (
	ServiceGateway ServiceType = "payment_gateway"
	ServiceAudit   ServiceType = "audit_sink"
)

// Manager manages circuit breakers for different external services.
// Each service has its own breaker so a degraded audit sink cannot trip the
// gateway path and vice versa.
type Manager struct {
	breakers map[ServiceType]*gobreaker.CircuitBreaker
	enabled  bool
}

// NewManagerFromConfig creates a circuit breaker manager from application config.
func NewManagerFromConfig(cfg config.CircuitBreakerConfig) *Manager {
	m := &Manager{
		breakers: make(map[ServiceType]*gobreaker.CircuitBreaker),
		enabled:  cfg.Enabled,
	}

	if !cfg.Enabled {
		// Pass-through manager with no breakers
		return m
	}

	m.breakers[ServiceGateway] = gobreaker.NewCircuitBreaker(toSettings(string(ServiceGateway), cfg.Gateway))
	m.breakers[ServiceAudit] = gobreaker.NewCircuitBreaker(toSettings(string(ServiceAudit), cfg.Audit))

	return m
}

// Execute wraps a function call with circuit breaker protection.
// If circuit breakers are disabled or no breaker exists for the service, the
// function executes directly.
func (m *Manager) Execute(service ServiceType, fn func() (interface{}, error)) (interface{}, error) {
	if !m.enabled {
		return fn()
	}

	breaker, ok := m.breakers[service]
	if !ok {
		return fn()
	}

	return breaker.Execute(fn)
}

// State returns the current state of a circuit breaker.
// Returns "disabled" if circuit breakers are not enabled or service not found.
func (m *Manager) State(service ServiceType) string {
	if !m.enabled {
		return "disabled"
	}

	breaker, ok := m.breakers[service]
	if !ok {
		return "disabled"
	}

	return breaker.State().String()
}

// IsOpen reports whether err is a circuit breaker rejection.
func IsOpen(err error) bool {
	return err == gobreaker.ErrOpenState || err == gobreaker.ErrTooManyRequests
}

// toSettings converts service config to gobreaker settings.
func toSettings(name string, cfg config.BreakerServiceConfig) gobreaker.Settings {
	maxRequests := cfg.MaxRequests
	if maxRequests == 0 {
		maxRequests = 1
	}
	interval := cfg.Interval.Duration
	if interval <= 0 {
		interval = 60 * time.Second
	}
	timeout := cfg.Timeout.Duration
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	consecutive := cfg.ConsecutiveFailures
	if consecutive == 0 {
		consecutive = 5
	}
	ratio := cfg.FailureRatio
	if ratio <= 0 {
		ratio = 0.5
	}
	minRequests := cfg.MinRequests
	if minRequests == 0 {
		minRequests = 10
	}

	return gobreaker.Settings{
		Name:        name,
		MaxRequests: maxRequests,
		Interval:    interval,
		Timeout:     timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.ConsecutiveFailures >= consecutive {
				return true
			}
			if counts.Requests >= minRequests {
				failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
				return failureRatio >= ratio
			}
			return false
		},
	}
}
