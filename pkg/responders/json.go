package responders

import (
	"encoding/json"
	"net/http"
)

// JSON renders payload as an application/json response. HTML escaping is
// disabled so redirect URLs inside verdict payloads survive intact.
func JSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	_ = enc.Encode(payload)
}
