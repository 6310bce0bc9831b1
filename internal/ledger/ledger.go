// Package ledger is the durable record of completed transactions and the
// system's idempotency boundary: at most one SUCCESS transaction may ever
// exist for a given (order_id, payment_id) pair, enforced by an atomic commit
// rather than a check-then-act sequence. The in-process concurrency gate is a
// fast-path optimization; this store is the real correctness backstop.
package ledger

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/coursepay/server/internal/config"
	"github.com/coursepay/server/internal/metrics"
)

// ErrNotFound is returned when a requested transaction is missing from the store.
var ErrNotFound = errors.New("ledger: not found")

// ErrAlreadyCommitted is returned when a SUCCESS commit loses the race to a
// concurrent attempt for the same (order, payment) pair. Callers demote the
// verdict to duplicate, never to failure.
var ErrAlreadyCommitted = errors.New("ledger: success already committed")

// Status is the terminal state of a recorded transaction.
type Status string

const (
	StatusSuccess Status = "SUCCESS"
	StatusFailed  Status = "FAILED"
)

// Transaction is an immutable record of a verification outcome.
// SUCCESS rows are unique per (order_id, payment_id); FAILED rows may repeat
// for audit completeness.
type Transaction struct {
	ID          string          // Server-generated identifier
	OrderID     string          // Gateway order identifier
	PaymentID   string          // Gateway payment identifier
	Status      Status          // SUCCESS or FAILED
	Amount      int64           // Amount in minor currency units
	Currency    string
	Method      string          // Payment method reported by the gateway
	RawResponse json.RawMessage // Gateway payment payload as received
	CreatedAt   time.Time
}

// Store captures the persistence requirements of the idempotency ledger.
type Store interface {
	// AlreadyProcessed reports whether a SUCCESS transaction exists for the pair.
	// Checked before any side-effecting work; crediting never proceeds past it.
	AlreadyProcessed(ctx context.Context, orderID, paymentID string) (bool, error)

	// CommitSuccess atomically inserts a SUCCESS transaction. Returns
	// ErrAlreadyCommitted when a concurrent commit for the same pair won the
	// race. The atomicity lives in the storage layer (unique constraint or
	// single-writer map), not in a prior duplicate check.
	CommitSuccess(ctx context.Context, tx Transaction) error

	// RecordFailure appends a FAILED transaction. No uniqueness constraint;
	// repeated failures for the same pair are expected.
	RecordFailure(ctx context.Context, tx Transaction) error

	// GetSuccess retrieves the SUCCESS transaction for the pair, or ErrNotFound.
	GetSuccess(ctx context.Context, orderID, paymentID string) (Transaction, error)

	Close() error
}

// StoreConfig holds ledger backend configuration.
type StoreConfig struct {
	Backend           string // "memory", "postgres", or "mongodb"
	PostgresURL       string
	MongoDBURL        string
	MongoDBDatabase   string
	PostgresPool      config.PostgresPoolConfig
	TransactionsTable string // Default: "transactions"
}

// NewStore creates a Store instance based on the provided configuration.
func NewStore(cfg StoreConfig, metricsCollector *metrics.Metrics) (Store, error) {
	switch cfg.Backend {
	case "", "memory":
		// Memory backend loses the idempotency ledger on restart - development only
		return NewMemoryStore(), nil
	case "postgres":
		if cfg.PostgresURL == "" {
			return nil, fmt.Errorf("postgres backend requires postgres_url")
		}
		return NewPostgresStore(cfg.PostgresURL, cfg.PostgresPool, cfg.TransactionsTable, metricsCollector)
	case "mongodb":
		if cfg.MongoDBURL == "" {
			return nil, fmt.Errorf("mongodb backend requires mongodb_url")
		}
		if cfg.MongoDBDatabase == "" {
			return nil, fmt.Errorf("mongodb backend requires mongodb_database")
		}
		return NewMongoStore(cfg.MongoDBURL, cfg.MongoDBDatabase, cfg.TransactionsTable, metricsCollector)
	default:
		return nil, fmt.Errorf("unknown ledger backend: %s", cfg.Backend)
	}
}

// pairKey builds the map key for a (order, payment) pair.
func pairKey(orderID, paymentID string) string {
	return orderID + "|" + paymentID
}

// MemoryStore is an in-memory Store implementation suitable for tests and
// single-instance development deployments.
type MemoryStore struct {
	mu        sync.RWMutex
	successes map[string]Transaction // pairKey -> SUCCESS transaction
	failures  []Transaction
}

// NewMemoryStore constructs an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		successes: make(map[string]Transaction),
	}
}

// AlreadyProcessed reports whether a SUCCESS transaction exists for the pair.
func (m *MemoryStore) AlreadyProcessed(_ context.Context, orderID, paymentID string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	_, exists := m.successes[pairKey(orderID, paymentID)]
	return exists, nil
}

// CommitSuccess inserts a SUCCESS transaction; the map write under the lock is
// the atomic commit point.
func (m *MemoryStore) CommitSuccess(_ context.Context, tx Transaction) error {
	if tx.Status != StatusSuccess {
		return fmt.Errorf("ledger: commit requires SUCCESS status, got %s", tx.Status)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	key := pairKey(tx.OrderID, tx.PaymentID)
	if _, exists := m.successes[key]; exists {
		return ErrAlreadyCommitted
	}
	m.successes[key] = tx
	return nil
}

// RecordFailure appends a FAILED transaction.
func (m *MemoryStore) RecordFailure(_ context.Context, tx Transaction) error {
	if tx.Status != StatusFailed {
		tx.Status = StatusFailed
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.failures = append(m.failures, tx)
	return nil
}

// GetSuccess retrieves the SUCCESS transaction for the pair.
func (m *MemoryStore) GetSuccess(_ context.Context, orderID, paymentID string) (Transaction, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	tx, ok := m.successes[pairKey(orderID, paymentID)]
	if !ok {
		return Transaction{}, ErrNotFound
	}
	return tx, nil
}

// FailureCount returns the number of FAILED rows recorded (test helper).
func (m *MemoryStore) FailureCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.failures)
}

// Close implements the Store interface.
func (m *MemoryStore) Close() error {
	return nil
}

const (
	// defaultQueryTimeout is the maximum time allowed for ledger queries.
	defaultQueryTimeout = 5 * time.Second
)

// withQueryTimeout wraps the context with a query timeout if one isn't already set.
func withQueryTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if _, hasDeadline := ctx.Deadline(); hasDeadline {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, defaultQueryTimeout)
}

// nullableRaw converts raw JSON to a driver-friendly value, mapping empty to NULL.
func nullableRaw(raw json.RawMessage) any {
	if len(raw) == 0 {
		return nil
	}
	return []byte(raw)
}

// scanRaw converts a nullable column back to raw JSON.
func scanRaw(b sql.NullString) json.RawMessage {
	if !b.Valid || b.String == "" {
		return nil
	}
	return json.RawMessage(b.String)
}
