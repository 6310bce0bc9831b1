// Package verify implements the payment verification state machine shared by
// the direct-verify and callback entry points. Every attempt runs the same
// decision procedure: take the per-payment gate, check the ledger for a prior
// success, verify the callback signature, confirm capture with the gateway,
// then commit atomically. Each attempt leaves an audit row whatever the
// outcome.
package verify

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/coursepay/server/internal/audit"
	apperrors "github.com/coursepay/server/internal/errors"
	"github.com/coursepay/server/internal/gate"
	"github.com/coursepay/server/internal/gateway"
	"github.com/coursepay/server/internal/ledger"
	"github.com/coursepay/server/internal/logger"
	"github.com/coursepay/server/internal/metrics"
	"github.com/coursepay/server/internal/signature"
	"github.com/coursepay/server/internal/token"
)

// Verdict is the terminal outcome of a verification attempt.
type Verdict string

const (
	VerdictCommitted Verdict = "committed"
	VerdictDuplicate Verdict = "duplicate"
	VerdictRejected  Verdict = "rejected"
	VerdictErrored   Verdict = "errored"
)

// Entry point labels for metrics and audit rows.
const (
	EntryVerify   = "verify"
	EntryCallback = "callback"
)

// attemptTimeout bounds a detached verification attempt. It leaves room for
// the gateway client's full retry schedule plus the ledger commit.
const attemptTimeout = 60 * time.Second

// Request carries the identifiers of one verification attempt. Both entry
// points normalize their transport (JSON body, form POST, query parameters)
// into this struct before the state machine runs.
type Request struct {
	OrderID   string
	PaymentID string
	Signature string
}

// Result is the outcome returned to the entry point.
type Result struct {
	Verdict     Verdict
	Code        apperrors.ErrorCode // Set for every non-committed verdict
	Transaction ledger.Transaction  // Populated on committed and already-processed duplicates
	Token       string              // Minted on the callback path only
}

// PaymentFetcher is the slice of the gateway client the orchestrator needs.
type PaymentFetcher interface {
	FetchPayment(ctx context.Context, paymentID string) (gateway.Payment, error)
}

// Service runs verification attempts.
type Service struct {
	secret     string
	gateway    PaymentFetcher
	ledger     ledger.Store
	gate       *gate.Gate
	tokens     *token.Store
	recorder   *audit.Recorder
	metrics    *metrics.Metrics
	mintTokens bool
}

// NewService constructs the orchestrator. All mutable state (gate, token
// store) is injected; the service itself is stateless and safe for concurrent
// use.
func NewService(
	secret string,
	paymentFetcher PaymentFetcher,
	ledgerStore ledger.Store,
	paymentGate *gate.Gate,
	tokenStore *token.Store,
	recorder *audit.Recorder,
	metricsCollector *metrics.Metrics,
	mintTokens bool,
) *Service {
	return &Service{
		secret:     secret,
		gateway:    paymentFetcher,
		ledger:     ledgerStore,
		gate:       paymentGate,
		tokens:     tokenStore,
		recorder:   recorder,
		metrics:    metricsCollector,
		mintTokens: mintTokens,
	}
}

// Verify runs a synchronous verification for an internal caller.
func (s *Service) Verify(ctx context.Context, req Request) Result {
	return s.run(ctx, EntryVerify, req)
}

// ProcessCallback runs verification for a gateway-delivered callback and, on
// a committed or already-processed outcome, mints a single-use success token
// for the follow-up confirmation redirect.
func (s *Service) ProcessCallback(ctx context.Context, req Request) Result {
	res := s.run(ctx, EntryCallback, req)

	if s.mintTokens && s.tokens != nil && res.Transaction.ID != "" {
		tok, err := s.tokens.Mint(token.Grant{
			OrderID:       res.Transaction.OrderID,
			PaymentID:     res.Transaction.PaymentID,
			TransactionID: res.Transaction.ID,
			Amount:        res.Transaction.Amount,
			Currency:      res.Transaction.Currency,
		})
		if err != nil {
			// The verdict stands; the user just loses the confirmation page.
			logger.FromContext(ctx).Warn().Err(err).
				Str("payment_id", req.PaymentID).
				Msg("verification.token_mint_failed")
		} else {
			res.Token = tok
			if s.metrics != nil {
				s.metrics.ObserveTokenMinted()
			}
		}
	}

	return res
}

func (s *Service) run(ctx context.Context, entry string, req Request) Result {
	// Once an attempt starts it runs to a terminal verdict: a client
	// disconnect or route timeout must not abort the ledger commit or the
	// audit append mid-flight. Request-scoped values (logger, request ID)
	// survive the detach; the fresh deadline keeps a wedged backend from
	// pinning the goroutine.
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), attemptTimeout)
	defer cancel()

	start := time.Now()
	res := s.attempt(ctx, entry, req)
	if s.metrics != nil {
		s.metrics.ObserveVerification(entry, string(res.Verdict), time.Since(start))
	}

	logger.FromContext(ctx).Info().
		Str("entry", entry).
		Str("order_id", req.OrderID).
		Str("payment_id", req.PaymentID).
		Str("verdict", string(res.Verdict)).
		Str("code", string(res.Code)).
		Dur("duration", time.Since(start)).
		Msg("verification.completed")

	return res
}

// attempt is the state machine proper. The gate is released on every exit
// path except a failed acquire, where the other in-flight attempt still holds
// it.
func (s *Service) attempt(ctx context.Context, entry string, req Request) Result {
	row := audit.Attempt{
		ID:                fmt.Sprintf("att_%s", uuid.NewString()),
		OrderID:           req.OrderID,
		PaymentID:         req.PaymentID,
		Entry:             entry,
		ReceivedSignature: req.Signature,
	}

	if !s.gate.Acquire(req.PaymentID) {
		return s.finish(ctx, row, Result{
			Verdict: VerdictDuplicate,
			Code:    apperrors.ErrCodeVerificationInFlight,
		})
	}
	defer s.gate.Release(req.PaymentID)

	// Durable duplicate check. The gate only covers this process; the ledger
	// covers restarts and horizontal replicas.
	processed, err := s.ledger.AlreadyProcessed(ctx, req.OrderID, req.PaymentID)
	if err != nil {
		return s.finish(ctx, row, Result{
			Verdict: VerdictErrored,
			Code:    apperrors.ErrCodeDatabaseError,
		})
	}
	if processed {
		res := Result{Verdict: VerdictDuplicate, Code: apperrors.ErrCodeAlreadyProcessed}
		if tx, err := s.ledger.GetSuccess(ctx, req.OrderID, req.PaymentID); err == nil {
			res.Transaction = tx
		}
		return s.finish(ctx, row, res)
	}

	row.ComputedSignature = signature.Compute(req.OrderID, req.PaymentID, s.secret)
	row.SignatureMatched = signature.Verify(req.OrderID, req.PaymentID, req.Signature, s.secret)
	if !row.SignatureMatched {
		s.recordFailure(ctx, req, "", nil)
		return s.finish(ctx, row, Result{
			Verdict: VerdictRejected,
			Code:    apperrors.ErrCodeSignatureMismatch,
		})
	}

	// Authoritative capture check. A valid signature alone never credits funds.
	payment, err := s.gateway.FetchPayment(ctx, req.PaymentID)
	if err != nil {
		code := apperrors.ErrCodeGatewayError
		if gateway.IsUnavailable(err) {
			code = apperrors.ErrCodeGatewayUnavailable
		}
		// No state is written here, so a later retry with the same inputs can
		// still succeed once the gateway recovers.
		return s.finish(ctx, row, Result{Verdict: VerdictErrored, Code: code})
	}
	row.GatewayStatus = payment.Status

	if !payment.Captured() {
		s.recordFailure(ctx, req, payment.Method, payment.Raw)
		return s.finish(ctx, row, Result{
			Verdict: VerdictRejected,
			Code:    apperrors.ErrCodePaymentNotCaptured,
		})
	}

	tx := ledger.Transaction{
		ID:          fmt.Sprintf("txn_%s", uuid.NewString()),
		OrderID:     req.OrderID,
		PaymentID:   req.PaymentID,
		Status:      ledger.StatusSuccess,
		Amount:      payment.Amount,
		Currency:    payment.Currency,
		Method:      payment.Method,
		RawResponse: payment.Raw,
		CreatedAt:   time.Now().UTC(),
	}

	switch err := s.ledger.CommitSuccess(ctx, tx); {
	case err == nil:
		return s.finish(ctx, row, Result{Verdict: VerdictCommitted, Transaction: tx})
	case errors.Is(err, ledger.ErrAlreadyCommitted):
		// Another attempt won the race between our duplicate check and commit.
		res := Result{Verdict: VerdictDuplicate, Code: apperrors.ErrCodeLedgerConflict}
		if winner, err := s.ledger.GetSuccess(ctx, req.OrderID, req.PaymentID); err == nil {
			res.Transaction = winner
		}
		return s.finish(ctx, row, res)
	default:
		// A durable write failure must never be reported as success.
		logger.FromContext(ctx).Error().Err(err).
			Str("order_id", req.OrderID).
			Str("payment_id", req.PaymentID).
			Msg("verification.ledger_commit_failed")
		return s.finish(ctx, row, Result{
			Verdict: VerdictErrored,
			Code:    apperrors.ErrCodeLedgerWriteFailed,
		})
	}
}

// finish stamps the audit row with the outcome and appends it. The append is
// best-effort and cannot change the verdict.
func (s *Service) finish(ctx context.Context, row audit.Attempt, res Result) Result {
	row.Verdict = string(res.Verdict)
	row.Reason = string(res.Code)
	if s.recorder != nil {
		s.recorder.Record(ctx, row)
	}
	return res
}

// recordFailure appends a FAILED ledger row for a final negative verdict.
// These rows have no uniqueness constraint and never block a later retry.
func (s *Service) recordFailure(ctx context.Context, req Request, method string, raw []byte) {
	tx := ledger.Transaction{
		ID:          fmt.Sprintf("txn_%s", uuid.NewString()),
		OrderID:     req.OrderID,
		PaymentID:   req.PaymentID,
		Status:      ledger.StatusFailed,
		Method:      method,
		RawResponse: raw,
		CreatedAt:   time.Now().UTC(),
	}
	if err := s.ledger.RecordFailure(ctx, tx); err != nil {
		logger.FromContext(ctx).Warn().Err(err).
			Str("payment_id", req.PaymentID).
			Msg("verification.record_failure_failed")
	}
}

// Redeem exchanges a success token for its grant, consuming it.
func (s *Service) Redeem(tok string) (token.Grant, error) {
	if s.tokens == nil {
		return token.Grant{}, token.ErrNotFound
	}
	grant, err := s.tokens.Redeem(tok)
	if s.metrics != nil {
		outcome := "ok"
		if err != nil {
			outcome = "not_found"
		}
		s.metrics.ObserveTokenRedeemed(outcome)
	}
	return grant, err
}
