package gateway

import (
	"errors"
	"fmt"
)

// ErrUnavailable is returned when the gateway could not be reached at all
// (connection refused, timeout, circuit breaker open). Safe to retry: the
// verification that triggered the call committed no state.
var ErrUnavailable = errors.New("gateway: unavailable")

// UpstreamError is returned when the gateway answered with a non-2xx status.
// Distinguished from ErrUnavailable so callers can treat it as a definitive
// upstream failure rather than a transport blip.
type UpstreamError struct {
	StatusCode int
	Body       string
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("gateway: upstream error (status %d)", e.StatusCode)
}

// IsUnavailable reports whether err represents a transport-level failure.
func IsUnavailable(err error) bool {
	return errors.Is(err, ErrUnavailable)
}

// AsUpstreamError unwraps an UpstreamError if err carries one.
func AsUpstreamError(err error) (*UpstreamError, bool) {
	var ue *UpstreamError
	if errors.As(err, &ue) {
		return ue, true
	}
	return nil, false
}
