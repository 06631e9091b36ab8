package service

import (
	"context"
	"fmt"

	"storefront/internal/domain"
)

// PaymentGateway talks to the external payment provider. attempt numbers the
// charges of one order from 1; providers key their idempotency on it.
type PaymentGateway interface {
	Charge(ctx context.Context, order *domain.Order, method string, attempt int) (*domain.PaymentResult, error)
	Refund(ctx context.Context, order *domain.Order, amount domain.Money) (*domain.PaymentResult, error)
}

// PaymentService validates charges and refunds against an order's state and total.
// It never changes the order's status; the caller does that once a charge succeeded.
type PaymentService interface {
	ValidatePayment(order *domain.Order, amount domain.Money) error
	ProcessPayment(ctx context.Context, order *domain.Order, method string, attempt int) (*domain.PaymentResult, error)
	ValidateRefund(order *domain.Order, amount domain.Money) error
	RefundPayment(ctx context.Context, order *domain.Order, amount domain.Money) (*domain.PaymentResult, error)
}

type paymentService struct {
	gateway PaymentGateway
}

// NewPaymentService creates a new instance of PaymentService
func NewPaymentService(gateway PaymentGateway) PaymentService {
	return &paymentService{gateway: gateway}
}

// ValidatePayment requires a pending order and an amount exactly equal to its total
func (s *paymentService) ValidatePayment(order *domain.Order, amount domain.Money) error {
	if order == nil {
		return domain.ErrOrderNotFound
	}
	if order.Status() != domain.OrderStatusPending {
		return fmt.Errorf("%w: order is %s", domain.ErrInvalidOrderState, order.Status())
	}
	if !amount.Equals(order.Total()) {
		return domain.ErrAmountMismatch
	}
	return nil
}

// ProcessPayment charges the order total through the gateway
func (s *paymentService) ProcessPayment(ctx context.Context, order *domain.Order, method string, attempt int) (*domain.PaymentResult, error) {
	if order == nil {
		return nil, domain.ErrOrderNotFound
	}
	if err := s.ValidatePayment(order, order.Total()); err != nil {
		return nil, err
	}
	if attempt < 1 {
		return nil, fmt.Errorf("invalid charge attempt %d", attempt)
	}

	result, err := s.gateway.Charge(ctx, order, method, attempt)
	if err != nil {
		return nil, fmt.Errorf("failed to charge order %s: %w", order.ID, err)
	}
	return result, nil
}

// ValidateRefund requires a paid order and an amount no larger than its total
func (s *paymentService) ValidateRefund(order *domain.Order, amount domain.Money) error {
	if order == nil {
		return domain.ErrOrderNotFound
	}
	if order.Status() != domain.OrderStatusPaid {
		return fmt.Errorf("%w: order is %s", domain.ErrInvalidOrderState, order.Status())
	}
	if amount.Currency() != order.Total().Currency() {
		return domain.ErrCurrencyMismatch
	}
	if amount.IsZero() {
		return domain.ErrInvalidAmount
	}
	if amount.GreaterThan(order.Total()) {
		return domain.ErrRefundExceedsTotal
	}
	return nil
}

// RefundPayment returns amount through the gateway; the order total is left unchanged
func (s *paymentService) RefundPayment(ctx context.Context, order *domain.Order, amount domain.Money) (*domain.PaymentResult, error) {
	if err := s.ValidateRefund(order, amount); err != nil {
		return nil, err
	}

	result, err := s.gateway.Refund(ctx, order, amount)
	if err != nil {
		return nil, fmt.Errorf("failed to refund order %s: %w", order.ID, err)
	}
	return result, nil
}
