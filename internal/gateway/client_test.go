package gateway

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/coursepay/server/internal/config"
)

func testClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	c := NewClient(config.GatewayConfig{
		BaseURL:   srv.URL,
		KeyID:     "key_test",
		KeySecret: "s3cret",
	}, nil, nil)
	// No backoff in tests
	c.retry = retryConfig{maxRetries: 0}
	return c
}

func TestFetchPayment_Captured(t *testing.T) {
	client := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/payments/pay_1" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if user, _, ok := r.BasicAuth(); !ok || user != "key_test" {
			t.Error("missing basic auth")
		}
		w.Write([]byte(`{"id":"pay_1","order_id":"order_1","status":"captured","amount":49900,"currency":"INR","method":"upi"}`))
	})

	payment, err := client.FetchPayment(context.Background(), "pay_1")
	if err != nil {
		t.Fatalf("FetchPayment() error = %v", err)
	}
	if !payment.Captured() {
		t.Errorf("Captured() = false, want true (status %q)", payment.Status)
	}
	if payment.Amount != 49900 {
		t.Errorf("Amount = %d, want 49900", payment.Amount)
	}
	if len(payment.Raw) == 0 {
		t.Error("Raw payload not preserved")
	}
}

func TestFetchPayment_NotCaptured(t *testing.T) {
	client := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"id":"pay_1","order_id":"order_1","status":"authorized","amount":49900,"currency":"INR"}`))
	})

	payment, err := client.FetchPayment(context.Background(), "pay_1")
	if err != nil {
		t.Fatalf("FetchPayment() error = %v", err)
	}
	if payment.Captured() {
		t.Error("Captured() = true for authorized payment")
	}
}

func TestFetchPayment_UpstreamError(t *testing.T) {
	client := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"payment not found"}`, http.StatusBadRequest)
	})

	_, err := client.FetchPayment(context.Background(), "pay_unknown")
	if err == nil {
		t.Fatal("FetchPayment() error = nil, want upstream error")
	}
	ue, ok := AsUpstreamError(err)
	if !ok {
		t.Fatalf("error %v is not an UpstreamError", err)
	}
	if ue.StatusCode != http.StatusBadRequest {
		t.Errorf("StatusCode = %d, want 400", ue.StatusCode)
	}
	if IsUnavailable(err) {
		t.Error("upstream error misclassified as unavailable")
	}
}

func TestFetchPayment_Unavailable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close() // Connection refused from here on

	client := NewClient(config.GatewayConfig{
		BaseURL:   srv.URL,
		KeyID:     "key_test",
		KeySecret: "s3cret",
	}, nil, nil)
	client.retry = retryConfig{maxRetries: 0}

	_, err := client.FetchPayment(context.Background(), "pay_1")
	if !IsUnavailable(err) {
		t.Errorf("FetchPayment() error = %v, want unavailable", err)
	}
}

func TestCreateOrder(t *testing.T) {
	client := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/v1/orders" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		w.Write([]byte(`{"id":"order_1","amount":49900,"currency":"INR","receipt":"rcpt_1","status":"created"}`))
	})

	order, err := client.CreateOrder(context.Background(), 49900, "INR", "rcpt_1")
	if err != nil {
		t.Fatalf("CreateOrder() error = %v", err)
	}
	if order.ID != "order_1" {
		t.Errorf("order.ID = %s, want order_1", order.ID)
	}
}
