package httpserver

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/coursepay/server/internal/audit"
	"github.com/coursepay/server/internal/catalog"
	"github.com/coursepay/server/internal/circuitbreaker"
	"github.com/coursepay/server/internal/config"
	"github.com/coursepay/server/internal/gate"
	"github.com/coursepay/server/internal/gateway"
	"github.com/coursepay/server/internal/ledger"
	"github.com/coursepay/server/internal/orders"
	"github.com/coursepay/server/internal/signature"
	"github.com/coursepay/server/internal/token"
	"github.com/coursepay/server/internal/verify"
)

const testSecret = "s3cret"

// stubGateway serves the two gateway endpoints the server calls.
func stubGateway(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1/orders", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"id":"order_1","amount":49900,"currency":"INR","receipt":"rcpt_1","status":"created"}`))
	})
	mux.HandleFunc("GET /v1/payments/", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"id":"pay_1","order_id":"order_1","status":"captured","amount":49900,"currency":"INR","method":"upi"}`))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func newTestServer(t *testing.T, mutate func(*config.Config)) http.Handler {
	t.Helper()

	gw := stubGateway(t)

	cfg := &config.Config{
		Server: config.ServerConfig{Address: ":0"},
		Gateway: config.GatewayConfig{
			BaseURL:   gw.URL,
			KeyID:     "key_test",
			KeySecret: testSecret,
		},
		Verification: config.VerificationConfig{
			TokenTTL:   config.Duration{Duration: 5 * time.Minute},
			MintTokens: true,
		},
		Catalog: config.CatalogConfig{
			Courses: map[string]config.Course{
				"go-101": {Name: "Go Fundamentals", Amount: 49900, Currency: "INR"},
			},
		},
	}
	if mutate != nil {
		mutate(cfg)
	}

	catalogRepo, err := catalog.NewRepository(cfg.Catalog)
	if err != nil {
		t.Fatal(err)
	}

	client := gateway.NewClient(cfg.Gateway, nil, nil)
	tokens := token.NewStore(cfg.Verification.TokenTTL.Duration)
	t.Cleanup(tokens.Stop)

	verifier := verify.NewService(
		cfg.Gateway.KeySecret,
		client,
		ledger.NewMemoryStore(),
		gate.New(),
		tokens,
		audit.NewRecorder(&audit.LogSink{}, nil, nil),
		nil,
		cfg.Verification.MintTokens,
	)
	orderSvc := orders.NewService(catalogRepo, client, cfg.Gateway.KeyID, nil)
	breakers := circuitbreaker.NewManagerFromConfig(config.CircuitBreakerConfig{Enabled: true})

	srv := New(cfg, orderSvc, catalogRepo, verifier, breakers, nil, zerolog.Nop())
	return srv.httpServer.Handler
}

func signedForm(orderID, paymentID string) url.Values {
	return url.Values{
		"order_id":   {orderID},
		"payment_id": {paymentID},
		"signature":  {signature.Compute(orderID, paymentID, testSecret)},
	}
}

func TestHealthEndpoint(t *testing.T) {
	router := newTestServer(t, nil)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if rec.Header().Get("X-Content-Type-Options") != "nosniff" {
		t.Error("security headers missing")
	}

	var body struct {
		Status   string            `json:"status"`
		Breakers map[string]string `json:"circuit_breakers"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatal(err)
	}
	if body.Status != "ok" {
		t.Errorf("status = %q", body.Status)
	}
	if body.Breakers["payment_gateway"] != "closed" || body.Breakers["audit_sink"] != "closed" {
		t.Errorf("circuit_breakers = %v, want both closed", body.Breakers)
	}
}

func TestListCoursesEndpoint(t *testing.T) {
	router := newTestServer(t, nil)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/courses", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	var body struct {
		Courses []catalog.Course `json:"courses"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatal(err)
	}
	if len(body.Courses) != 1 || body.Courses[0].ID != "go-101" {
		t.Errorf("courses = %+v", body.Courses)
	}
}

func TestCreateOrderEndpoint(t *testing.T) {
	router := newTestServer(t, nil)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/orders", strings.NewReader(`{"course_id":"go-101"}`))
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201: %s", rec.Code, rec.Body.String())
	}

	var order orders.Order
	if err := json.Unmarshal(rec.Body.Bytes(), &order); err != nil {
		t.Fatal(err)
	}
	if order.ID != "order_1" || order.Amount != 49900 || order.KeyID != "key_test" {
		t.Errorf("order = %+v", order)
	}
}

func TestCreateOrderEndpoint_Validation(t *testing.T) {
	router := newTestServer(t, nil)

	tests := []struct {
		name       string
		body       string
		wantStatus int
	}{
		{name: "missing course_id", body: `{}`, wantStatus: http.StatusBadRequest},
		{name: "unknown course", body: `{"course_id":"nope"}`, wantStatus: http.StatusNotFound},
		{name: "invalid json", body: `{`, wantStatus: http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/orders", strings.NewReader(tt.body)))
			if rec.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d: %s", rec.Code, tt.wantStatus, rec.Body.String())
			}
		})
	}
}

func TestVerifyEndpoint_Committed(t *testing.T) {
	router := newTestServer(t, nil)

	payload := `{"order_id":"order_1","payment_id":"pay_1","signature":"` +
		signature.Compute("order_1", "pay_1", testSecret) + `"}`

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/payments/verify", strings.NewReader(payload)))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body.String())
	}

	var body struct {
		Success     bool `json:"success"`
		Transaction struct {
			Amount int64 `json:"amount"`
		} `json:"transaction"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatal(err)
	}
	if !body.Success || body.Transaction.Amount != 49900 {
		t.Errorf("body = %s", rec.Body.String())
	}
}

func TestVerifyEndpoint_SignatureMismatch(t *testing.T) {
	router := newTestServer(t, nil)

	payload := `{"order_id":"order_1","payment_id":"pay_1","signature":"deadbeef"}`
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/payments/verify", strings.NewReader(payload)))
	if rec.Code != http.StatusPaymentRequired {
		t.Fatalf("status = %d, want 402: %s", rec.Code, rec.Body.String())
	}
	if !strings.Contains(rec.Body.String(), "signature_mismatch") {
		t.Errorf("body = %s", rec.Body.String())
	}
}

func TestVerifyEndpoint_MissingFields(t *testing.T) {
	router := newTestServer(t, nil)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/payments/verify",
		strings.NewReader(`{"order_id":"order_1"}`)))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "payment_id") {
		t.Errorf("body = %s", rec.Body.String())
	}
}

func TestCallbackEndpoint_RedirectWithToken(t *testing.T) {
	router := newTestServer(t, func(cfg *config.Config) {
		cfg.Verification.SuccessURL = "https://courses.example.com/payment/success"
		cfg.Verification.FailureURL = "https://courses.example.com/payment/failure"
	})

	form := signedForm("order_1", "pay_1")
	req := httptest.NewRequest(http.MethodPost, "/api/v1/payments/callback", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusFound {
		t.Fatalf("status = %d, want 302: %s", rec.Code, rec.Body.String())
	}
	location, err := url.Parse(rec.Header().Get("Location"))
	if err != nil {
		t.Fatal(err)
	}
	tok := location.Query().Get("token")
	if tok == "" {
		t.Fatalf("redirect %q carries no token", location)
	}
	// The redirect never leaks payment identifiers
	if strings.Contains(location.String(), "pay_1") || strings.Contains(location.String(), "order_1") {
		t.Errorf("redirect %q leaks identifiers", location)
	}

	// Redeem the token via the confirm endpoint
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/payments/confirm?token="+tok, nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("confirm status = %d: %s", rec.Code, rec.Body.String())
	}
	var grant struct {
		OrderID   string `json:"order_id"`
		PaymentID string `json:"payment_id"`
		Amount    int64  `json:"amount"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &grant); err != nil {
		t.Fatal(err)
	}
	if grant.OrderID != "order_1" || grant.PaymentID != "pay_1" || grant.Amount != 49900 {
		t.Errorf("grant = %+v", grant)
	}

	// Second redemption fails
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/payments/confirm?token="+tok, nil))
	if rec.Code != http.StatusNotFound {
		t.Errorf("second confirm status = %d, want 404", rec.Code)
	}
}

func TestCallbackEndpoint_QueryParams(t *testing.T) {
	router := newTestServer(t, nil)

	// Callbacks may arrive as a GET with query parameters
	target := "/api/v1/payments/callback?" + signedForm("order_1", "pay_1").Encode()
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))

	// No redirect URLs configured, so the verdict comes back as JSON
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}
	if !strings.Contains(rec.Body.String(), `"verdict":"committed"`) {
		t.Errorf("body = %s", rec.Body.String())
	}
}

func TestCallbackEndpoint_FailureRedirect(t *testing.T) {
	router := newTestServer(t, func(cfg *config.Config) {
		cfg.Verification.SuccessURL = "https://courses.example.com/payment/success"
		cfg.Verification.FailureURL = "https://courses.example.com/payment/failure"
	})

	form := signedForm("order_1", "pay_1")
	form.Set("signature", "deadbeef")
	req := httptest.NewRequest(http.MethodPost, "/api/v1/payments/callback", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusFound {
		t.Fatalf("status = %d, want 302", rec.Code)
	}
	if got := rec.Header().Get("Location"); got != "https://courses.example.com/payment/failure" {
		t.Errorf("Location = %s", got)
	}
}

func TestConfirmEndpoint_UnknownToken(t *testing.T) {
	router := newTestServer(t, nil)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/payments/confirm?token=deadbeef", nil))
	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}
}

func TestMetricsEndpoint_AdminAuth(t *testing.T) {
	router := newTestServer(t, func(cfg *config.Config) {
		cfg.Server.AdminMetricsAPIKey = "admin_key"
	})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("unauthenticated status = %d, want 401", rec.Code)
	}

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	req.Header.Set("Authorization", "Bearer admin_key")
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Errorf("authenticated status = %d, want 200", rec.Code)
	}
}
