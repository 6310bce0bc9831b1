package audit

import (
	"context"

	"github.com/coursepay/server/internal/logger"
)

// LogSink writes attempt rows to the structured log. It is the default sink
// and the fallback for deployments without a broker or document store.
type LogSink struct{}

// Append logs the attempt at info level.
func (s *LogSink) Append(ctx context.Context, attempt Attempt) error {
	logger.FromContext(ctx).Info().
		Str("attempt_id", attempt.ID).
		Str("order_id", attempt.OrderID).
		Str("payment_id", attempt.PaymentID).
		Str("entry", attempt.Entry).
		Str("received_signature", logger.TruncateSignature(attempt.ReceivedSignature)).
		Bool("signature_matched", attempt.SignatureMatched).
		Str("gateway_status", attempt.GatewayStatus).
		Str("verdict", attempt.Verdict).
		Str("reason", attempt.Reason).
		Msg("verification.attempt")
	return nil
}

// Close implements the Sink interface.
func (s *LogSink) Close() error {
	return nil
}
