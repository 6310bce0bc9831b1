// Package gateway is the REST client for the external payment gateway. The
// gateway owns orders and payments; this server only references them by ID.
// The status inquiry is the authoritative answer to "was money captured" - a
// matching callback signature alone never authorizes crediting funds.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/coursepay/server/internal/circuitbreaker"
	"github.com/coursepay/server/internal/config"
	"github.com/coursepay/server/internal/metrics"
)

// Payment status values reported by the gateway.
const (
	StatusCreated    = "created"
	StatusAuthorized = "authorized"
	StatusCaptured   = "captured"
	StatusRefunded   = "refunded"
	StatusFailed     = "failed"
)

// Order is a payment order registered with the gateway.
type Order struct {
	ID       string `json:"id"`
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
	Receipt  string `json:"receipt"`
	Status   string `json:"status"`
}

// Payment is the gateway's authoritative record of a payment attempt.
type Payment struct {
	ID       string          `json:"id"`
	OrderID  string          `json:"order_id"`
	Status   string          `json:"status"`
	Amount   int64           `json:"amount"`
	Currency string          `json:"currency"`
	Method   string          `json:"method"`
	Raw      json.RawMessage `json:"-"` // Full response body, preserved for the audit trail
}

// Captured reports whether the gateway has actually collected the funds.
// Authorized-but-not-captured payments must not be credited.
func (p Payment) Captured() bool {
	return p.Status == StatusCaptured
}

// Client talks to the payment gateway REST API.
type Client struct {
	baseURL    string
	keyID      string
	keySecret  string
	httpClient *http.Client
	breakers   *circuitbreaker.Manager
	metrics    *metrics.Metrics
	retry      retryConfig
}

// NewClient constructs a gateway client from configuration.
func NewClient(cfg config.GatewayConfig, breakers *circuitbreaker.Manager, metricsCollector *metrics.Metrics) *Client {
	timeout := cfg.Timeout.Duration
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		keyID:      cfg.KeyID,
		keySecret:  cfg.KeySecret,
		httpClient: &http.Client{Timeout: timeout},
		breakers:   breakers,
		metrics:    metricsCollector,
		retry:      defaultRetryConfig(),
	}
}

// CreateOrder registers a new payment order with the gateway.
func (c *Client) CreateOrder(ctx context.Context, amount int64, currency, receipt string) (Order, error) {
	payload, err := json.Marshal(map[string]any{
		"amount":   amount,
		"currency": currency,
		"receipt":  receipt,
	})
	if err != nil {
		return Order{}, fmt.Errorf("marshal order request: %w", err)
	}

	body, err := c.do(ctx, "create_order", http.MethodPost, "/v1/orders", payload)
	if err != nil {
		return Order{}, err
	}

	var order Order
	if err := json.Unmarshal(body, &order); err != nil {
		return Order{}, fmt.Errorf("decode order response: %w", err)
	}
	return order, nil
}

// FetchPayment queries the gateway's payment-status endpoint.
// This is the single source of truth for whether funds were captured.
func (c *Client) FetchPayment(ctx context.Context, paymentID string) (Payment, error) {
	if paymentID == "" {
		return Payment{}, fmt.Errorf("gateway: payment id required")
	}

	body, err := c.do(ctx, "fetch_payment", http.MethodGet, "/v1/payments/"+paymentID, nil)
	if err != nil {
		return Payment{}, err
	}

	var payment Payment
	if err := json.Unmarshal(body, &payment); err != nil {
		return Payment{}, fmt.Errorf("decode payment response: %w", err)
	}
	payment.Raw = json.RawMessage(body)
	return payment, nil
}

// do executes one HTTP call wrapped in retry and circuit breaker, returning
// the response body on 2xx.
func (c *Client) do(ctx context.Context, operation, method, path string, payload []byte) ([]byte, error) {
	return withRetry(ctx, c.retry, func() ([]byte, error) {
		start := time.Now()
		body, err := c.doOnce(ctx, method, path, payload)
		if c.metrics != nil {
			c.metrics.ObserveGatewayCall(operation, time.Since(start), classifyError(err))
		}
		return body, err
	})
}

func (c *Client) doOnce(ctx context.Context, method, path string, payload []byte) ([]byte, error) {
	call := func() (interface{}, error) {
		var reader io.Reader
		if payload != nil {
			reader = bytes.NewReader(payload)
		}

		req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
		if err != nil {
			return nil, fmt.Errorf("build gateway request: %w", err)
		}
		req.SetBasicAuth(c.keyID, c.keySecret)
		if payload != nil {
			req.Header.Set("Content-Type", "application/json")
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
		defer resp.Body.Close()

		body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
		if err != nil {
			return nil, fmt.Errorf("%w: read response: %v", ErrUnavailable, err)
		}

		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			return nil, &UpstreamError{StatusCode: resp.StatusCode, Body: string(body)}
		}

		return body, nil
	}

	var result interface{}
	var err error
	if c.breakers != nil {
		result, err = c.breakers.Execute(circuitbreaker.ServiceGateway, call)
		if circuitbreaker.IsOpen(err) {
			// Breaker rejections look like transport failures to callers
			err = fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
	} else {
		result, err = call()
	}
	if err != nil {
		return nil, err
	}

	body, _ := result.([]byte)
	return body, nil
}

// classifyError maps gateway errors to a metrics label.
func classifyError(err error) string {
	switch {
	case err == nil:
		return ""
	case IsUnavailable(err):
		return "unavailable"
	default:
		if _, ok := AsUpstreamError(err); ok {
			return "upstream"
		}
		return "other"
	}
}
