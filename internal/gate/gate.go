// Package gate provides a process-local try-lock keyed by payment ID.
// It short-circuits concurrent verification attempts for the same payment
// before any gateway or ledger work happens. The ledger's unique constraint
// remains the cross-process correctness guarantee.
package gate

import "sync"

// Gate tracks payments with a verification attempt in flight.
type Gate struct {
	mu       sync.Mutex
	inFlight map[string]struct{}
}

// New constructs an empty Gate.
func New() *Gate {
	return &Gate{
		inFlight: make(map[string]struct{}),
	}
}

// Acquire attempts to take the lock for the payment. It never blocks; a false
// return means another attempt holds it and the caller should report an
// in-flight duplicate.
func (g *Gate) Acquire(paymentID string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	if _, held := g.inFlight[paymentID]; held {
		return false
	}
	g.inFlight[paymentID] = struct{}{}
	return true
}

// Release frees the lock for the payment. Releasing an unheld lock is a no-op.
func (g *Gate) Release(paymentID string) {
	g.mu.Lock()
	defer g.mu.Unlock()

	delete(g.inFlight, paymentID)
}

// InFlight returns the number of payments currently locked.
func (g *Gate) InFlight() int {
	g.mu.Lock()
	defer g.mu.Unlock()

	return len(g.inFlight)
}
