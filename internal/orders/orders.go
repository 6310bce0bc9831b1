// Package orders creates payment orders at the gateway for catalog courses.
package orders

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/coursepay/server/internal/catalog"
	"github.com/coursepay/server/internal/gateway"
	"github.com/coursepay/server/internal/logger"
	"github.com/coursepay/server/internal/metrics"
)

// Order is a created payment order ready for checkout.
type Order struct {
	ID        string    `json:"id"`
	CourseID  string    `json:"course_id"`
	Amount    int64     `json:"amount"`
	Currency  string    `json:"currency"`
	Receipt   string    `json:"receipt"`
	KeyID     string    `json:"key_id"` // Public gateway key for the checkout widget
	CreatedAt time.Time `json:"created_at"`
}

// GatewayClient is the slice of the gateway client the order service needs.
type GatewayClient interface {
	CreateOrder(ctx context.Context, amount int64, currency, receipt string) (gateway.Order, error)
}

// Service creates orders for catalog courses.
type Service struct {
	catalog *catalog.Repository
	gateway GatewayClient
	keyID   string
	metrics *metrics.Metrics
}

// NewService constructs an order service.
func NewService(catalogRepo *catalog.Repository, gatewayClient GatewayClient, keyID string, metricsCollector *metrics.Metrics) *Service {
	return &Service{
		catalog: catalogRepo,
		gateway: gatewayClient,
		keyID:   keyID,
		metrics: metricsCollector,
	}
}

// Create resolves the course and creates an order at the gateway. Pricing
// always comes from the catalog; client-supplied amounts are never trusted.
func (s *Service) Create(ctx context.Context, courseID string) (Order, error) {
	course, err := s.catalog.Get(courseID)
	if err != nil {
		return Order{}, err
	}

	receipt := fmt.Sprintf("rcpt_%s", uuid.NewString())

	gwOrder, err := s.gateway.CreateOrder(ctx, course.Amount, course.Currency, receipt)
	if err != nil {
		return Order{}, fmt.Errorf("failed to create gateway order: %w", err)
	}

	if s.metrics != nil {
		s.metrics.ObserveOrderCreated(courseID)
	}
	logger.FromContext(ctx).Info().
		Str("order_id", gwOrder.ID).
		Str("course_id", courseID).
		Int64("amount", course.Amount).
		Str("currency", course.Currency).
		Msg("order.created")

	return Order{
		ID:        gwOrder.ID,
		CourseID:  courseID,
		Amount:    course.Amount,
		Currency:  course.Currency,
		Receipt:   receipt,
		KeyID:     s.keyID,
		CreatedAt: time.Now().UTC(),
	}, nil
}
