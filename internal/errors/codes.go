package errors

// ErrorCode represents a machine-readable error identifier for frontend error handling.
type ErrorCode string

// Payment verification errors
const (
	// Signature recomputed from order/payment IDs does not match the one supplied.
	// Indicates tampering or an integration bug, never user-correctable.
	ErrCodeSignatureMismatch ErrorCode = "signature_mismatch"

	// Gateway reports the payment in a state other than captured.
	ErrCodePaymentNotCaptured ErrorCode = "payment_not_captured"

	// Gateway status inquiry failed at the transport level (retryable).
	ErrCodeGatewayUnavailable ErrorCode = "gateway_unavailable"

	// Gateway returned a non-2xx response to an otherwise well-formed request.
	ErrCodeGatewayError ErrorCode = "gateway_error"

	// Another delivery of the same callback is being processed right now.
	ErrCodeVerificationInFlight ErrorCode = "verification_in_flight"

	// A SUCCESS transaction already exists for this (order, payment) pair.
	ErrCodeAlreadyProcessed ErrorCode = "already_processed"

	// A concurrent commit for the same pair won the race.
	ErrCodeLedgerConflict ErrorCode = "ledger_conflict"

	// Durable write of the SUCCESS transaction failed.
	ErrCodeLedgerWriteFailed ErrorCode = "ledger_write_failed"
)

// Success token errors
const (
	ErrCodeTokenNotFound ErrorCode = "token_not_found"
)

// Validation errors (request input validation)
const (
	ErrCodeMissingField ErrorCode = "missing_field"
	ErrCodeInvalidField ErrorCode = "invalid_field"
)

// Resource errors
const (
	ErrCodeCourseNotFound ErrorCode = "course_not_found"
	ErrCodeOrderNotFound  ErrorCode = "order_not_found"
)

// Internal/system errors
const (
	ErrCodeInternalError ErrorCode = "internal_error"
	ErrCodeDatabaseError ErrorCode = "database_error"
	ErrCodeConfigError   ErrorCode = "config_error"
)

// IsRetryable returns whether an error code represents a retryable error.
// Only transport-level gateway failures and durable-write failures are worth
// retrying; a retry re-runs the whole verification, which is safe because no
// state was committed on these paths.
func (e ErrorCode) IsRetryable() bool {
	switch e {
	case ErrCodeGatewayUnavailable,
		ErrCodeGatewayError,
		ErrCodeLedgerWriteFailed:
		return true

	// Verdicts, validation failures, and duplicates are NOT retryable
	default:
		return false
	}
}

// HTTPStatus returns the appropriate HTTP status code for this error.
func (e ErrorCode) HTTPStatus() int {
	switch e {
	// 400 Bad Request - client validation errors
	case ErrCodeMissingField,
		ErrCodeInvalidField:
		return 400

	// 402 Payment Required - verification rejected
	case ErrCodeSignatureMismatch,
		ErrCodePaymentNotCaptured:
		return 402

	// 404 Not Found
	case ErrCodeTokenNotFound,
		ErrCodeCourseNotFound,
		ErrCodeOrderNotFound:
		return 404

	// 409 Conflict - duplicate deliveries are not failures, but the caller
	// should stop retrying
	case ErrCodeVerificationInFlight,
		ErrCodeAlreadyProcessed,
		ErrCodeLedgerConflict:
		return 409

	// 502 Bad Gateway - upstream gateway errors
	case ErrCodeGatewayUnavailable,
		ErrCodeGatewayError:
		return 502

	// 500 Internal Server Error - system/internal errors
	default:
		return 500
	}
}
