package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for CoursePay.
type Metrics struct {
	// Verification metrics
	VerificationsTotal   *prometheus.CounterVec
	VerificationDuration *prometheus.HistogramVec

	// Gateway call metrics
	GatewayCallsTotal   *prometheus.CounterVec
	GatewayCallDuration *prometheus.HistogramVec
	GatewayErrorsTotal  *prometheus.CounterVec

	// Ledger metrics
	LedgerConflictsTotal prometheus.Counter
	DBQueryDuration      *prometheus.HistogramVec

	// Audit sink metrics
	AuditAppendsTotal  *prometheus.CounterVec
	AuditFailuresTotal prometheus.Counter

	// Success token metrics
	TokensMintedTotal   prometheus.Counter
	TokensRedeemedTotal *prometheus.CounterVec

	// Order metrics
	OrdersCreatedTotal *prometheus.CounterVec

	// Rate limiting metrics
	RateLimitHitsTotal *prometheus.CounterVec
}

// New creates and registers all Prometheus metrics.
func New(registry prometheus.Registerer) *Metrics {
	if registry == nil {
		registry = prometheus.DefaultRegisterer
	}

	factory := promauto.With(registry)

	return &Metrics{
		VerificationsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "coursepay_verifications_total",
				Help: "Total number of verification attempts by entry point and verdict",
			},
			[]string{"entry", "verdict"},
		),
		VerificationDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "coursepay_verification_duration_seconds",
				Help:    "Time taken to run the full verification state machine",
				Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
			},
			[]string{"entry"},
		),

		GatewayCallsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "coursepay_gateway_calls_total",
				Help: "Total number of calls to the payment gateway",
			},
			[]string{"operation"},
		),
		GatewayCallDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "coursepay_gateway_call_duration_seconds",
				Help:    "Duration of payment gateway calls",
				Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
			},
			[]string{"operation"},
		),
		GatewayErrorsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "coursepay_gateway_errors_total",
				Help: "Total number of payment gateway errors",
			},
			[]string{"operation", "error_type"},
		),

		LedgerConflictsTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "coursepay_ledger_conflicts_total",
				Help: "Total number of success commits lost to a concurrent attempt",
			},
		),
		DBQueryDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "coursepay_db_query_duration_seconds",
				Help:    "Ledger query duration",
				Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.5, 1, 2},
			},
			[]string{"operation", "backend"},
		),

		AuditAppendsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "coursepay_audit_appends_total",
				Help: "Total number of audit rows appended by verdict",
			},
			[]string{"verdict"},
		),
		AuditFailuresTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "coursepay_audit_failures_total",
				Help: "Total number of audit sink failures (swallowed, never fatal)",
			},
		),

		TokensMintedTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "coursepay_tokens_minted_total",
				Help: "Total number of success tokens minted",
			},
		),
		TokensRedeemedTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "coursepay_tokens_redeemed_total",
				Help: "Total number of success token redemptions by outcome",
			},
			[]string{"outcome"},
		),

		OrdersCreatedTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "coursepay_orders_created_total",
				Help: "Total number of payment orders created by course",
			},
			[]string{"course"},
		),

		RateLimitHitsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "coursepay_rate_limit_hits_total",
				Help: "Total number of rate limit hits",
			},
			[]string{"limit_type"},
		),
	}
}

// ObserveVerification records a verification attempt and its verdict.
func (m *Metrics) ObserveVerification(entry, verdict string, duration time.Duration) {
	m.VerificationsTotal.WithLabelValues(entry, verdict).Inc()
	m.VerificationDuration.WithLabelValues(entry).Observe(duration.Seconds())
}

// ObserveGatewayCall records a gateway call with duration and optional error classification.
func (m *Metrics) ObserveGatewayCall(operation string, duration time.Duration, errType string) {
	m.GatewayCallsTotal.WithLabelValues(operation).Inc()
	m.GatewayCallDuration.WithLabelValues(operation).Observe(duration.Seconds())
	if errType != "" {
		m.GatewayErrorsTotal.WithLabelValues(operation, errType).Inc()
	}
}

// ObserveLedgerConflict records a commit lost to a concurrent attempt.
func (m *Metrics) ObserveLedgerConflict() {
	m.LedgerConflictsTotal.Inc()
}

// ObserveDBQuery records a ledger query.
func (m *Metrics) ObserveDBQuery(operation, backend string, duration time.Duration) {
	m.DBQueryDuration.WithLabelValues(operation, backend).Observe(duration.Seconds())
}

// ObserveAudit records an audit append attempt.
func (m *Metrics) ObserveAudit(verdict string, err error) {
	m.AuditAppendsTotal.WithLabelValues(verdict).Inc()
	if err != nil {
		m.AuditFailuresTotal.Inc()
	}
}

// ObserveTokenMinted records a minted success token.
func (m *Metrics) ObserveTokenMinted() {
	m.TokensMintedTotal.Inc()
}

// ObserveTokenRedeemed records a token redemption outcome ("ok" or "not_found";
// expired tokens are indistinguishable from unknown ones and count as not_found).
func (m *Metrics) ObserveTokenRedeemed(outcome string) {
	m.TokensRedeemedTotal.WithLabelValues(outcome).Inc()
}

// ObserveOrderCreated records a created order.
func (m *Metrics) ObserveOrderCreated(course string) {
	m.OrdersCreatedTotal.WithLabelValues(course).Inc()
}

// ObserveRateLimit records a rate limit hit.
func (m *Metrics) ObserveRateLimit(limitType string) {
	m.RateLimitHitsTotal.WithLabelValues(limitType).Inc()
}
