package audit

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/coursepay/server/internal/config"
)

type captureSink struct {
	mu       sync.Mutex
	attempts []Attempt
	err      error
}

func (s *captureSink) Append(_ context.Context, attempt Attempt) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.attempts = append(s.attempts, attempt)
	return nil
}

func (s *captureSink) Close() error { return nil }

func TestRecorder_AppendsAttempt(t *testing.T) {
	sink := &captureSink{}
	recorder := NewRecorder(sink, nil, nil)

	recorder.Record(context.Background(), Attempt{
		ID:        "att_1",
		OrderID:   "order_1",
		PaymentID: "pay_1",
		Entry:     "callback",
		Verdict:   "committed",
	})

	if len(sink.attempts) != 1 {
		t.Fatalf("appended %d attempts, want 1", len(sink.attempts))
	}
	if sink.attempts[0].CreatedAt.IsZero() {
		t.Error("CreatedAt not stamped on append")
	}
}

func TestRecorder_SwallowsSinkFailure(t *testing.T) {
	sink := &captureSink{err: errors.New("broker down")}
	recorder := NewRecorder(sink, nil, nil)

	// Must not panic or propagate; the verdict path never sees sink errors.
	recorder.Record(context.Background(), Attempt{ID: "att_1", Verdict: "committed"})
}

func TestNewSink(t *testing.T) {
	tests := []struct {
		name    string
		cfg     config.AuditConfig
		wantErr bool
	}{
		{name: "default is log", cfg: config.AuditConfig{}, wantErr: false},
		{name: "log", cfg: config.AuditConfig{Sink: "log"}, wantErr: false},
		{name: "unknown", cfg: config.AuditConfig{Sink: "s3"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sink, err := NewSink(tt.cfg)
			if (err != nil) != tt.wantErr {
				t.Fatalf("NewSink() error = %v, wantErr %v", err, tt.wantErr)
			}
			if sink != nil {
				sink.Close()
			}
		})
	}
}
