package httpserver

import (
	"errors"
	"net/http"
	"net/url"

	apierrors "github.com/coursepay/server/internal/errors"
	"github.com/coursepay/server/internal/token"
	"github.com/coursepay/server/internal/verify"
	"github.com/coursepay/server/pkg/responders"
)

type verifyRequest struct {
	OrderID   string `json:"order_id"`
	PaymentID string `json:"payment_id"`
	Signature string `json:"signature"`
}

func (req verifyRequest) validate(w http.ResponseWriter) bool {
	fields := []struct {
		name  string
		value string
	}{
		{"order_id", req.OrderID},
		{"payment_id", req.PaymentID},
		{"signature", req.Signature},
	}
	for _, f := range fields {
		if f.value == "" {
			apierrors.WriteError(w, apierrors.ErrCodeMissingField, f.name+" is required", map[string]interface{}{
				"field": f.name,
			})
			return false
		}
	}
	return true
}

// transactionView is the subset of a ledger transaction exposed to clients.
type transactionView struct {
	ID        string `json:"id"`
	OrderID   string `json:"order_id"`
	PaymentID string `json:"payment_id"`
	Amount    int64  `json:"amount"`
	Currency  string `json:"currency"`
	Method    string `json:"method,omitempty"`
}

// verifyPayment is the synchronous entry point for internal callers.
func (h handlers) verifyPayment(w http.ResponseWriter, r *http.Request) {
	var req verifyRequest
	if err := decodeJSON(r.Body, &req); err != nil {
		apierrors.WriteSimpleError(w, apierrors.ErrCodeInvalidField, "Invalid JSON body")
		return
	}
	if !req.validate(w) {
		return
	}

	res := h.verifier.Verify(r.Context(), verify.Request{
		OrderID:   req.OrderID,
		PaymentID: req.PaymentID,
		Signature: req.Signature,
	})
	h.writeVerdict(w, res)
}

// paymentCallback is the asynchronous entry point for gateway-delivered
// callbacks. The gateway sends the payload as a form POST or as query
// parameters; ParseForm folds both into one view. When redirect targets are
// configured the response is a 302, otherwise the verdict is returned as JSON.
func (h handlers) paymentCallback(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		apierrors.WriteSimpleError(w, apierrors.ErrCodeInvalidField, "Malformed callback payload")
		return
	}

	req := verifyRequest{
		OrderID:   r.Form.Get("order_id"),
		PaymentID: r.Form.Get("payment_id"),
		Signature: r.Form.Get("signature"),
	}
	if !req.validate(w) {
		return
	}

	res := h.verifier.ProcessCallback(r.Context(), verify.Request{
		OrderID:   req.OrderID,
		PaymentID: req.PaymentID,
		Signature: req.Signature,
	})

	successURL := h.cfg.Verification.SuccessURL
	failureURL := h.cfg.Verification.FailureURL

	switch res.Verdict {
	case verify.VerdictCommitted, verify.VerdictDuplicate:
		if successURL != "" && res.Token != "" {
			// The redirect carries only the opaque single-use token, never
			// payment identifiers or amounts.
			http.Redirect(w, r, appendQuery(successURL, "token", res.Token), http.StatusFound)
			return
		}
	default:
		if failureURL != "" {
			http.Redirect(w, r, failureURL, http.StatusFound)
			return
		}
	}

	h.writeVerdict(w, res)
}

// confirmPayment redeems a success token minted by the callback path.
func (h handlers) confirmPayment(w http.ResponseWriter, r *http.Request) {
	tok := r.URL.Query().Get("token")
	if tok == "" {
		apierrors.WriteError(w, apierrors.ErrCodeMissingField, "token is required", map[string]interface{}{
			"field": "token",
		})
		return
	}

	grant, err := h.verifier.Redeem(tok)
	if errors.Is(err, token.ErrNotFound) {
		apierrors.WriteSimpleError(w, apierrors.ErrCodeTokenNotFound, "Token unknown, expired, or already redeemed")
		return
	}
	if err != nil {
		apierrors.WriteSimpleError(w, apierrors.ErrCodeInternalError, "Failed to redeem token")
		return
	}

	responders.JSON(w, http.StatusOK, map[string]any{
		"order_id":       grant.OrderID,
		"payment_id":     grant.PaymentID,
		"transaction_id": grant.TransactionID,
		"amount":         grant.Amount,
		"currency":       grant.Currency,
	})
}

// writeVerdict renders a verification result. Committed verdicts are 200s;
// everything else uses the error envelope with the verdict attached.
func (h handlers) writeVerdict(w http.ResponseWriter, res verify.Result) {
	if res.Verdict == verify.VerdictCommitted {
		body := map[string]any{
			"success":     true,
			"verdict":     string(res.Verdict),
			"transaction": toTransactionView(res),
		}
		responders.JSON(w, http.StatusOK, body)
		return
	}

	details := map[string]interface{}{"verdict": string(res.Verdict)}
	if res.Transaction.ID != "" {
		details["transaction"] = toTransactionView(res)
	}
	apierrors.WriteError(w, res.Code, verdictMessage(res.Code), details)
}

func toTransactionView(res verify.Result) transactionView {
	return transactionView{
		ID:        res.Transaction.ID,
		OrderID:   res.Transaction.OrderID,
		PaymentID: res.Transaction.PaymentID,
		Amount:    res.Transaction.Amount,
		Currency:  res.Transaction.Currency,
		Method:    res.Transaction.Method,
	}
}

func verdictMessage(code apierrors.ErrorCode) string {
	switch code {
	case apierrors.ErrCodeSignatureMismatch:
		return "Payment signature verification failed"
	case apierrors.ErrCodePaymentNotCaptured:
		return "Payment has not been captured"
	case apierrors.ErrCodeGatewayUnavailable:
		return "Payment gateway unavailable, please retry"
	case apierrors.ErrCodeGatewayError:
		return "Payment gateway returned an error"
	case apierrors.ErrCodeVerificationInFlight:
		return "Another verification for this payment is in progress"
	case apierrors.ErrCodeAlreadyProcessed, apierrors.ErrCodeLedgerConflict:
		return "Payment already verified"
	case apierrors.ErrCodeLedgerWriteFailed, apierrors.ErrCodeDatabaseError:
		return "Failed to record transaction, please retry"
	default:
		return "Verification failed"
	}
}

// appendQuery adds a query parameter to a URL, tolerating existing queries.
func appendQuery(rawURL, key, value string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return rawURL
	}
	q := u.Query()
	q.Set(key, value)
	u.RawQuery = q.Encode()
	return u.String()
}
