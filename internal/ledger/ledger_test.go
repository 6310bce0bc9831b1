package ledger

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"
)

func sampleTx(orderID, paymentID string, status Status) Transaction {
	return Transaction{
		ID:        fmt.Sprintf("txn_%s_%s_%d", orderID, paymentID, time.Now().UnixNano()),
		OrderID:   orderID,
		PaymentID: paymentID,
		Status:    status,
		Amount:    49900,
		Currency:  "INR",
		Method:    "upi",
		CreatedAt: time.Now().UTC(),
	}
}

func TestMemoryStore_CommitThenDuplicate(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	if err := store.CommitSuccess(ctx, sampleTx("order_1", "pay_1", StatusSuccess)); err != nil {
		t.Fatalf("first CommitSuccess() error = %v", err)
	}

	err := store.CommitSuccess(ctx, sampleTx("order_1", "pay_1", StatusSuccess))
	if !errors.Is(err, ErrAlreadyCommitted) {
		t.Fatalf("second CommitSuccess() error = %v, want ErrAlreadyCommitted", err)
	}

	processed, err := store.AlreadyProcessed(ctx, "order_1", "pay_1")
	if err != nil {
		t.Fatalf("AlreadyProcessed() error = %v", err)
	}
	if !processed {
		t.Error("AlreadyProcessed() = false after commit")
	}
}

func TestMemoryStore_PairIsolation(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	if err := store.CommitSuccess(ctx, sampleTx("order_1", "pay_1", StatusSuccess)); err != nil {
		t.Fatalf("CommitSuccess() error = %v", err)
	}

	// Same order, different payment attempt: a distinct pair, not a duplicate.
	if err := store.CommitSuccess(ctx, sampleTx("order_1", "pay_2", StatusSuccess)); err != nil {
		t.Errorf("CommitSuccess() for distinct pair error = %v", err)
	}

	processed, _ := store.AlreadyProcessed(ctx, "order_2", "pay_1")
	if processed {
		t.Error("AlreadyProcessed() = true for unseen pair")
	}
}

func TestMemoryStore_CommitRejectsFailedStatus(t *testing.T) {
	store := NewMemoryStore()

	err := store.CommitSuccess(context.Background(), sampleTx("order_1", "pay_1", StatusFailed))
	if err == nil {
		t.Fatal("CommitSuccess() accepted a FAILED transaction")
	}
}

func TestMemoryStore_FailuresAccumulate(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if err := store.RecordFailure(ctx, sampleTx("order_1", "pay_1", StatusFailed)); err != nil {
			t.Fatalf("RecordFailure() error = %v", err)
		}
	}
	if got := store.FailureCount(); got != 3 {
		t.Errorf("FailureCount() = %d, want 3", got)
	}

	// Failures never make the pair look processed.
	processed, _ := store.AlreadyProcessed(ctx, "order_1", "pay_1")
	if processed {
		t.Error("AlreadyProcessed() = true after failures only")
	}
}

func TestMemoryStore_GetSuccess(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	_, err := store.GetSuccess(ctx, "order_1", "pay_1")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("GetSuccess() before commit error = %v, want ErrNotFound", err)
	}

	want := sampleTx("order_1", "pay_1", StatusSuccess)
	if err := store.CommitSuccess(ctx, want); err != nil {
		t.Fatalf("CommitSuccess() error = %v", err)
	}

	got, err := store.GetSuccess(ctx, "order_1", "pay_1")
	if err != nil {
		t.Fatalf("GetSuccess() error = %v", err)
	}
	if got.ID != want.ID || got.Amount != want.Amount {
		t.Errorf("GetSuccess() = %+v, want %+v", got, want)
	}
}

func TestMemoryStore_ConcurrentCommits(t *testing.T) {
	for _, n := range []int{2, 10, 100} {
		t.Run(fmt.Sprintf("goroutines_%d", n), func(t *testing.T) {
			store := NewMemoryStore()
			ctx := context.Background()

			var wg sync.WaitGroup
			var mu sync.Mutex
			committed := 0
			conflicts := 0

			for i := 0; i < n; i++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					err := store.CommitSuccess(ctx, sampleTx("order_1", "pay_1", StatusSuccess))
					mu.Lock()
					defer mu.Unlock()
					switch {
					case err == nil:
						committed++
					case errors.Is(err, ErrAlreadyCommitted):
						conflicts++
					default:
						t.Errorf("CommitSuccess() unexpected error = %v", err)
					}
				}()
			}
			wg.Wait()

			if committed != 1 {
				t.Errorf("committed = %d, want exactly 1", committed)
			}
			if conflicts != n-1 {
				t.Errorf("conflicts = %d, want %d", conflicts, n-1)
			}
		})
	}
}

func TestNewStore_Backends(t *testing.T) {
	tests := []struct {
		name    string
		cfg     StoreConfig
		wantErr bool
	}{
		{name: "default is memory", cfg: StoreConfig{}, wantErr: false},
		{name: "memory", cfg: StoreConfig{Backend: "memory"}, wantErr: false},
		{name: "postgres without url", cfg: StoreConfig{Backend: "postgres"}, wantErr: true},
		{name: "mongodb without url", cfg: StoreConfig{Backend: "mongodb"}, wantErr: true},
		{name: "mongodb without database", cfg: StoreConfig{Backend: "mongodb", MongoDBURL: "mongodb://localhost"}, wantErr: true},
		{name: "unknown backend", cfg: StoreConfig{Backend: "dynamo"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store, err := NewStore(tt.cfg, nil)
			if (err != nil) != tt.wantErr {
				t.Fatalf("NewStore() error = %v, wantErr %v", err, tt.wantErr)
			}
			if store != nil {
				store.Close()
			}
		})
	}
}
