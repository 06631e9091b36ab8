package payment

import (
	"context"
	"fmt"

	"storefront/internal/config"
	"storefront/internal/domain"
	"storefront/internal/service"

	"go.uber.org/zap"
)

const (
	ProviderSimulated = "simulated"
	ProviderStripe    = "stripe"
)

// NewGateway builds the gateway named by cfg.Provider. When cfg.Currency is
// set, orders in any other currency are refused before reaching the provider.
func NewGateway(cfg config.PaymentConfig, logger *zap.Logger) (service.PaymentGateway, error) {
	var gateway service.PaymentGateway
	switch cfg.Provider {
	case "", ProviderSimulated:
		gateway = NewSimulatedGateway(logger)
	case ProviderStripe:
		if cfg.StripeKey == "" {
			return nil, fmt.Errorf("payment provider %q requires STRIPE_SECRET_KEY", cfg.Provider)
		}
		gateway = NewStripeGateway(cfg.StripeKey, nil, logger)
	default:
		return nil, fmt.Errorf("unknown payment provider %q", cfg.Provider)
	}

	if cfg.Currency == "" {
		return gateway, nil
	}
	return &settlementCurrency{next: gateway, currency: cfg.Currency}, nil
}

// settlementCurrency limits a gateway to the currency the merchant account settles in
type settlementCurrency struct {
	next     service.PaymentGateway
	currency string
}

func (g *settlementCurrency) check(m domain.Money) error {
	if m.Currency() != g.currency {
		return fmt.Errorf("%w: gateway settles in %s, got %s", domain.ErrCurrencyMismatch, g.currency, m.Currency())
	}
	return nil
}

func (g *settlementCurrency) Charge(ctx context.Context, order *domain.Order, method string, attempt int) (*domain.PaymentResult, error) {
	if err := g.check(order.Total()); err != nil {
		return nil, err
	}
	return g.next.Charge(ctx, order, method, attempt)
}

func (g *settlementCurrency) Refund(ctx context.Context, order *domain.Order, amount domain.Money) (*domain.PaymentResult, error) {
	if err := g.check(amount); err != nil {
		return nil, err
	}
	return g.next.Refund(ctx, order, amount)
}
