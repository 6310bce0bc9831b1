// Package audit records every verification attempt for later inspection.
// The trail is best-effort: a sink failure is logged and counted but never
// changes the verdict of the attempt it describes.
package audit

import (
	"context"
	"fmt"
	"time"

	"github.com/coursepay/server/internal/circuitbreaker"
	"github.com/coursepay/server/internal/config"
	"github.com/coursepay/server/internal/logger"
	"github.com/coursepay/server/internal/metrics"
)

// Attempt is one row of the verification audit trail.
type Attempt struct {
	ID                string    `json:"id" bson:"_id"`
	OrderID           string    `json:"order_id" bson:"order_id"`
	PaymentID         string    `json:"payment_id" bson:"payment_id"`
	Entry             string    `json:"entry" bson:"entry"` // "verify" or "callback"
	ReceivedSignature string    `json:"received_signature,omitempty" bson:"received_signature,omitempty"`
	ComputedSignature string    `json:"computed_signature,omitempty" bson:"computed_signature,omitempty"`
	SignatureMatched  bool      `json:"signature_matched" bson:"signature_matched"`
	GatewayStatus     string    `json:"gateway_status,omitempty" bson:"gateway_status,omitempty"`
	Verdict           string    `json:"verdict" bson:"verdict"`
	Reason            string    `json:"reason,omitempty" bson:"reason,omitempty"`
	CreatedAt         time.Time `json:"created_at" bson:"created_at"`
}

// Sink persists attempt rows.
type Sink interface {
	Append(ctx context.Context, attempt Attempt) error
	Close() error
}

// NewSink creates a Sink based on the provided configuration.
func NewSink(cfg config.AuditConfig) (Sink, error) {
	switch cfg.Sink {
	case "", "log":
		return &LogSink{}, nil
	case "kafka":
		return NewKafkaSink(cfg.KafkaBrokers, cfg.KafkaTopic)
	case "mongodb":
		return NewMongoSink(cfg.MongoDBURL, cfg.MongoDBDatabase, cfg.MongoDBCollection)
	default:
		return nil, fmt.Errorf("unknown audit sink: %s", cfg.Sink)
	}
}

// Recorder wraps a Sink with the audit circuit breaker and metrics, and
// downgrades every failure to a warning log entry.
type Recorder struct {
	sink     Sink
	breakers *circuitbreaker.Manager
	metrics  *metrics.Metrics
}

// NewRecorder creates a Recorder around the given sink.
func NewRecorder(sink Sink, breakers *circuitbreaker.Manager, metricsCollector *metrics.Metrics) *Recorder {
	return &Recorder{sink: sink, breakers: breakers, metrics: metricsCollector}
}

// Record appends the attempt, swallowing any sink error.
func (r *Recorder) Record(ctx context.Context, attempt Attempt) {
	if attempt.CreatedAt.IsZero() {
		attempt.CreatedAt = time.Now().UTC()
	}

	err := r.append(ctx, attempt)
	if r.metrics != nil {
		r.metrics.ObserveAudit(attempt.Verdict, err)
	}
	if err != nil {
		logger.FromContext(ctx).Warn().
			Err(err).
			Str("order_id", attempt.OrderID).
			Str("payment_id", attempt.PaymentID).
			Str("verdict", attempt.Verdict).
			Msg("audit.append_failed")
	}
}

func (r *Recorder) append(ctx context.Context, attempt Attempt) error {
	if r.breakers == nil {
		return r.sink.Append(ctx, attempt)
	}
	_, err := r.breakers.Execute(circuitbreaker.ServiceAudit, func() (any, error) {
		return nil, r.sink.Append(ctx, attempt)
	})
	return err
}

// Close closes the underlying sink.
func (r *Recorder) Close() error {
	return r.sink.Close()
}
