package metrics

import (
	"time"
)

// MeasureDBQuery times a ledger operation. Call sites defer the returned
// function:
//
//	defer metrics.MeasureDBQuery(m, "commit_success", "postgres")()
func MeasureDBQuery(m *Metrics, operation, backend string) func() {
	if m == nil {
		return func() {}
	}
	start := time.Now()
	return func() {
		m.ObserveDBQuery(operation, backend, time.Since(start))
	}
}
