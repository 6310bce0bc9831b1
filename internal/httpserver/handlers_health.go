package httpserver

import (
	"net/http"
	"time"

	"github.com/coursepay/server/internal/circuitbreaker"
	"github.com/coursepay/server/pkg/responders"
)

// health reports liveness, basic process information, and the state of the
// external-service circuit breakers.
func (h handlers) health(w http.ResponseWriter, r *http.Request) {
	body := map[string]any{
		"status":         "ok",
		"service":        "coursepay",
		"uptime_seconds": int64(time.Since(serverStartTime).Seconds()),
	}
	if h.breakers != nil {
		body["circuit_breakers"] = map[string]string{
			"payment_gateway": h.breakers.State(circuitbreaker.ServiceGateway),
			"audit_sink":      h.breakers.State(circuitbreaker.ServiceAudit),
		}
	}
	responders.JSON(w, http.StatusOK, body)
}
