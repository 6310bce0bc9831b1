package ratelimit

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func TestGlobalLimiter_Disabled(t *testing.T) {
	handler := GlobalLimiter(Limits{GlobalEnabled: false})(okHandler())

	for i := 0; i < 50; i++ {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
		if rec.Code != http.StatusOK {
			t.Fatalf("request %d: status = %d, want 200", i, rec.Code)
		}
	}
}

func TestGlobalLimiter_Enforced(t *testing.T) {
	handler := GlobalLimiter(Limits{
		GlobalEnabled: true,
		GlobalLimit:   3,
		GlobalWindow:  time.Minute,
	})(okHandler())

	var limited int
	for i := 0; i < 10; i++ {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
		if rec.Code == http.StatusTooManyRequests {
			limited++

			var body rateLimitResponse
			if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
				t.Fatalf("invalid 429 body: %v", err)
			}
			if body.Error != "rate_limit_exceeded" {
				t.Errorf("body.Error = %s", body.Error)
			}
			if rec.Header().Get("Retry-After") == "" {
				t.Error("missing Retry-After header")
			}
		}
	}

	if limited != 7 {
		t.Errorf("limited = %d, want 7", limited)
	}
}

func TestIPLimiter_SeparatesClients(t *testing.T) {
	handler := IPLimiter(Limits{
		PerIPEnabled: true,
		PerIPLimit:   2,
		PerIPWindow:  time.Minute,
	})(okHandler())

	send := func(addr string) int {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.RemoteAddr = addr
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		return rec.Code
	}

	for i := 0; i < 2; i++ {
		if code := send("10.0.0.1:1234"); code != http.StatusOK {
			t.Fatalf("request %d: status = %d", i, code)
		}
	}
	if code := send("10.0.0.1:1234"); code != http.StatusTooManyRequests {
		t.Errorf("third request from same IP: status = %d, want 429", code)
	}
	// A different client is unaffected
	if code := send("10.0.0.2:1234"); code != http.StatusOK {
		t.Errorf("first request from other IP: status = %d, want 200", code)
	}
}
