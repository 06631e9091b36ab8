package payment

import (
	"context"
	"time"

	"storefront/internal/domain"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// SimulatedGateway approves every charge and refund. It is the default
// provider for local development and tests.
type SimulatedGateway struct {
	logger *zap.Logger
	now    func() time.Time
}

// NewSimulatedGateway creates a new SimulatedGateway
func NewSimulatedGateway(logger *zap.Logger) *SimulatedGateway {
	return &SimulatedGateway{
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// Charge approves the full order total
func (g *SimulatedGateway) Charge(ctx context.Context, order *domain.Order, method string, attempt int) (*domain.PaymentResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	result := &domain.PaymentResult{
		Success:       true,
		TransactionID: "sim_" + uuid.NewString(),
		Amount:        order.Total(),
		Timestamp:     g.now(),
	}
	g.logger.Debug("Simulated charge",
		zap.String("order_id", order.ID.String()),
		zap.String("method", method),
		zap.Int("attempt", attempt),
		zap.String("transaction_id", result.TransactionID),
	)
	return result, nil
}

// Refund approves amount
func (g *SimulatedGateway) Refund(ctx context.Context, order *domain.Order, amount domain.Money) (*domain.PaymentResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	result := &domain.PaymentResult{
		Success:       true,
		TransactionID: "sim_" + uuid.NewString(),
		Amount:        amount,
		Timestamp:     g.now(),
	}
	g.logger.Debug("Simulated refund",
		zap.String("order_id", order.ID.String()),
		zap.String("amount", amount.String()),
	)
	return result, nil
}
