package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/coursepay/server/internal/metrics"
)

// MongoStore implements Store using MongoDB.
//
// Idempotency uses a unique index with a partialFilterExpression on
// status = SUCCESS; a duplicate key error on insert is the conflict signal.
type MongoStore struct {
	client     *mongo.Client
	collection *mongo.Collection
	metrics    *metrics.Metrics
}

type mongoTransaction struct {
	ID          string    `bson:"_id"`
	OrderID     string    `bson:"order_id"`
	PaymentID   string    `bson:"payment_id"`
	Status      string    `bson:"status"`
	Amount      int64     `bson:"amount"`
	Currency    string    `bson:"currency"`
	Method      string    `bson:"method"`
	RawResponse string    `bson:"raw_response,omitempty"`
	CreatedAt   time.Time `bson:"created_at"`
}

// NewMongoStore creates a MongoDB-backed ledger, ensuring indexes.
func NewMongoStore(uri, database, collectionName string, metricsCollector *metrics.Metrics) (*MongoStore, error) {
	if collectionName == "" {
		collectionName = "transactions"
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to mongodb: %w", err)
	}

	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("failed to ping mongodb: %w", err)
	}

	store := &MongoStore{
		client:     client,
		collection: client.Database(database).Collection(collectionName),
		metrics:    metricsCollector,
	}
	if err := store.ensureIndexes(ctx); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, err
	}
	return store, nil
}

func (s *MongoStore) ensureIndexes(ctx context.Context) error {
	_, err := s.collection.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			// Uniqueness applies to SUCCESS documents only.
			Keys: bson.D{{Key: "order_id", Value: 1}, {Key: "payment_id", Value: 1}},
			Options: options.Index().
				SetName("success_pair_unique").
				SetUnique(true).
				SetPartialFilterExpression(bson.M{"status": string(StatusSuccess)}),
		},
		{
			Keys:    bson.D{{Key: "order_id", Value: 1}, {Key: "payment_id", Value: 1}, {Key: "status", Value: 1}},
			Options: options.Index().SetName("pair_status_lookup"),
		},
	})
	if err != nil {
		return fmt.Errorf("failed to create ledger indexes: %w", err)
	}
	return nil
}

// AlreadyProcessed reports whether a SUCCESS transaction exists for the pair.
func (s *MongoStore) AlreadyProcessed(ctx context.Context, orderID, paymentID string) (bool, error) {
	ctx, cancel := withQueryTimeout(ctx)
	defer cancel()

	defer metrics.MeasureDBQuery(s.metrics, "already_processed", "mongodb")()

	count, err := s.collection.CountDocuments(ctx, bson.M{
		"order_id":   orderID,
		"payment_id": paymentID,
		"status":     string(StatusSuccess),
	}, options.Count().SetLimit(1))
	if err != nil {
		return false, fmt.Errorf("failed to check processed state: %w", err)
	}
	return count > 0, nil
}

// CommitSuccess inserts a SUCCESS document; a duplicate key error means
// another attempt committed first.
func (s *MongoStore) CommitSuccess(ctx context.Context, tx Transaction) error {
	if tx.Status != StatusSuccess {
		return fmt.Errorf("ledger: commit requires SUCCESS status, got %s", tx.Status)
	}

	ctx, cancel := withQueryTimeout(ctx)
	defer cancel()

	defer metrics.MeasureDBQuery(s.metrics, "commit_success", "mongodb")()

	_, err := s.collection.InsertOne(ctx, toMongoTransaction(tx))
	if mongo.IsDuplicateKeyError(err) {
		if s.metrics != nil {
			s.metrics.ObserveLedgerConflict()
		}
		return ErrAlreadyCommitted
	}
	if err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// RecordFailure appends a FAILED document.
func (s *MongoStore) RecordFailure(ctx context.Context, tx Transaction) error {
	tx.Status = StatusFailed

	ctx, cancel := withQueryTimeout(ctx)
	defer cancel()

	defer metrics.MeasureDBQuery(s.metrics, "record_failure", "mongodb")()

	if _, err := s.collection.InsertOne(ctx, toMongoTransaction(tx)); err != nil {
		return fmt.Errorf("failed to record failure: %w", err)
	}
	return nil
}

// GetSuccess retrieves the SUCCESS transaction for the pair.
func (s *MongoStore) GetSuccess(ctx context.Context, orderID, paymentID string) (Transaction, error) {
	ctx, cancel := withQueryTimeout(ctx)
	defer cancel()

	defer metrics.MeasureDBQuery(s.metrics, "get_success", "mongodb")()

	var doc mongoTransaction
	err := s.collection.FindOne(ctx, bson.M{
		"order_id":   orderID,
		"payment_id": paymentID,
		"status":     string(StatusSuccess),
	}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return Transaction{}, ErrNotFound
	}
	if err != nil {
		return Transaction{}, fmt.Errorf("failed to get transaction: %w", err)
	}
	return fromMongoTransaction(doc), nil
}

// Close disconnects from MongoDB.
func (s *MongoStore) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.client.Disconnect(ctx)
}

func toMongoTransaction(tx Transaction) mongoTransaction {
	return mongoTransaction{
		ID:          tx.ID,
		OrderID:     tx.OrderID,
		PaymentID:   tx.PaymentID,
		Status:      string(tx.Status),
		Amount:      tx.Amount,
		Currency:    tx.Currency,
		Method:      tx.Method,
		RawResponse: string(tx.RawResponse),
		CreatedAt:   tx.CreatedAt,
	}
}

func fromMongoTransaction(doc mongoTransaction) Transaction {
	tx := Transaction{
		ID:        doc.ID,
		OrderID:   doc.OrderID,
		PaymentID: doc.PaymentID,
		Status:    Status(doc.Status),
		Amount:    doc.Amount,
		Currency:  doc.Currency,
		Method:    doc.Method,
		CreatedAt: doc.CreatedAt,
	}
	if doc.RawResponse != "" {
		tx.RawResponse = []byte(doc.RawResponse)
	}
	return tx
}
