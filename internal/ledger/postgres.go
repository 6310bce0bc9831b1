package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/lib/pq"

	"github.com/coursepay/server/internal/config"
	"github.com/coursepay/server/internal/metrics"
)

// PostgresStore implements Store using PostgreSQL.
//
// Idempotency is enforced by a partial unique index over
// (order_id, payment_id) WHERE status = 'SUCCESS': the commit is a plain
// INSERT with ON CONFLICT DO NOTHING, and zero affected rows means a
// concurrent attempt already committed. FAILED rows carry no uniqueness
// constraint so repeated rejections remain visible.
type PostgresStore struct {
	db      *sql.DB
	table   string
	metrics *metrics.Metrics
}

// NewPostgresStore creates a PostgreSQL-backed ledger, ensuring the schema.
func NewPostgresStore(connStr string, pool config.PostgresPoolConfig, tableName string, metricsCollector *metrics.Metrics) (*PostgresStore, error) {
	if tableName == "" {
		tableName = "transactions"
	}

	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	config.ApplyPostgresPoolSettings(db, pool)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	store := &PostgresStore{db: db, table: tableName, metrics: metricsCollector}
	if err := store.ensureSchema(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return store, nil
}

func (s *PostgresStore) ensureSchema(ctx context.Context) error {
	createTable := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			id TEXT PRIMARY KEY,
			order_id TEXT NOT NULL,
			payment_id TEXT NOT NULL,
			status TEXT NOT NULL,
			amount BIGINT NOT NULL DEFAULT 0,
			currency TEXT NOT NULL DEFAULT '',
			method TEXT NOT NULL DEFAULT '',
			raw_response JSONB,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`, s.table)
	if _, err := s.db.ExecContext(ctx, createTable); err != nil {
		return fmt.Errorf("failed to create %s table: %w", s.table, err)
	}

	// Partial index: uniqueness applies to SUCCESS rows only.
	createIndex := fmt.Sprintf(`
		CREATE UNIQUE INDEX IF NOT EXISTS %s_success_pair_idx
		ON %s (order_id, payment_id)
		WHERE status = 'SUCCESS'`, s.table, s.table)
	if _, err := s.db.ExecContext(ctx, createIndex); err != nil {
		return fmt.Errorf("failed to create success index on %s: %w", s.table, err)
	}

	lookupIndex := fmt.Sprintf(`
		CREATE INDEX IF NOT EXISTS %s_pair_idx
		ON %s (order_id, payment_id)`, s.table, s.table)
	if _, err := s.db.ExecContext(ctx, lookupIndex); err != nil {
		return fmt.Errorf("failed to create lookup index on %s: %w", s.table, err)
	}

	return nil
}

// AlreadyProcessed reports whether a SUCCESS transaction exists for the pair.
func (s *PostgresStore) AlreadyProcessed(ctx context.Context, orderID, paymentID string) (bool, error) {
	ctx, cancel := withQueryTimeout(ctx)
	defer cancel()

	defer metrics.MeasureDBQuery(s.metrics, "already_processed", "postgres")()

	query := fmt.Sprintf(`
		SELECT EXISTS (
			SELECT 1 FROM %s
			WHERE order_id = $1 AND payment_id = $2 AND status = 'SUCCESS'
		)`, s.table)

	var exists bool
	if err := s.db.QueryRowContext(ctx, query, orderID, paymentID).Scan(&exists); err != nil {
		return false, fmt.Errorf("failed to check processed state: %w", err)
	}
	return exists, nil
}

// CommitSuccess inserts a SUCCESS row; a conflict on the partial unique index
// means another attempt committed first.
func (s *PostgresStore) CommitSuccess(ctx context.Context, tx Transaction) error {
	if tx.Status != StatusSuccess {
		return fmt.Errorf("ledger: commit requires SUCCESS status, got %s", tx.Status)
	}

	ctx, cancel := withQueryTimeout(ctx)
	defer cancel()

	defer metrics.MeasureDBQuery(s.metrics, "commit_success", "postgres")()

	query := fmt.Sprintf(`
		INSERT INTO %s (id, order_id, payment_id, status, amount, currency, method, raw_response, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (order_id, payment_id) WHERE status = 'SUCCESS' DO NOTHING`, s.table)

	result, err := s.db.ExecContext(ctx, query,
		tx.ID, tx.OrderID, tx.PaymentID, string(tx.Status),
		tx.Amount, tx.Currency, tx.Method, nullableRaw(tx.RawResponse), tx.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if rows == 0 {
		if s.metrics != nil {
			s.metrics.ObserveLedgerConflict()
		}
		return ErrAlreadyCommitted
	}
	return nil
}

// RecordFailure appends a FAILED row.
func (s *PostgresStore) RecordFailure(ctx context.Context, tx Transaction) error {
	tx.Status = StatusFailed

	ctx, cancel := withQueryTimeout(ctx)
	defer cancel()

	defer metrics.MeasureDBQuery(s.metrics, "record_failure", "postgres")()

	query := fmt.Sprintf(`
		INSERT INTO %s (id, order_id, payment_id, status, amount, currency, method, raw_response, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`, s.table)

	_, err := s.db.ExecContext(ctx, query,
		tx.ID, tx.OrderID, tx.PaymentID, string(tx.Status),
		tx.Amount, tx.Currency, tx.Method, nullableRaw(tx.RawResponse), tx.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to record failure: %w", err)
	}
	return nil
}

// GetSuccess retrieves the SUCCESS transaction for the pair.
func (s *PostgresStore) GetSuccess(ctx context.Context, orderID, paymentID string) (Transaction, error) {
	ctx, cancel := withQueryTimeout(ctx)
	defer cancel()

	defer metrics.MeasureDBQuery(s.metrics, "get_success", "postgres")()

	query := fmt.Sprintf(`
		SELECT id, order_id, payment_id, status, amount, currency, method, raw_response, created_at
		FROM %s
		WHERE order_id = $1 AND payment_id = $2 AND status = 'SUCCESS'`, s.table)

	var tx Transaction
	var status string
	var raw sql.NullString
	err := s.db.QueryRowContext(ctx, query, orderID, paymentID).Scan(
		&tx.ID, &tx.OrderID, &tx.PaymentID, &status,
		&tx.Amount, &tx.Currency, &tx.Method, &raw, &tx.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Transaction{}, ErrNotFound
	}
	if err != nil {
		return Transaction{}, fmt.Errorf("failed to get transaction: %w", err)
	}
	tx.Status = Status(status)
	tx.RawResponse = scanRaw(raw)
	return tx, nil
}

// Close closes the database connection.
func (s *PostgresStore) Close() error {
	return s.db.Close()
}
