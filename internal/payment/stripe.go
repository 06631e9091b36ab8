package payment

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"storefront/internal/domain"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stripe/stripe-go/v81"
	"github.com/stripe/stripe-go/v81/client"
	"go.uber.org/zap"
)

var ErrMissingPaymentReference = errors.New("order has no payment reference to refund")

// zeroDecimalCurrencies are charged in whole units by Stripe
var zeroDecimalCurrencies = map[string]bool{
	"BIF": true, "CLP": true, "DJF": true, "GNF": true, "JPY": true, "KMF": true,
	"KRW": true, "MGA": true, "PYG": true, "RWF": true, "UGX": true, "VND": true,
	"VUV": true, "XAF": true, "XOF": true, "XPF": true,
}

// StripeGateway charges orders with confirmed PaymentIntents and refunds
// against the intent stored as the order's payment reference
type StripeGateway struct {
	api    *client.API
	logger *zap.Logger
	now    func() time.Time
}

// NewStripeGateway creates a gateway for secretKey. A nil backends uses Stripe's API.
func NewStripeGateway(secretKey string, backends *stripe.Backends, logger *zap.Logger) *StripeGateway {
	return &StripeGateway{
		api:    client.New(secretKey, backends),
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// ToMinorUnits converts m into the integer amount Stripe expects
func ToMinorUnits(m domain.Money) (int64, error) {
	places := int32(2)
	if zeroDecimalCurrencies[m.Currency()] {
		places = 0
	}
	shifted := m.Amount().Shift(places)
	if !shifted.Equal(shifted.Truncate(0)) {
		return 0, fmt.Errorf("%w: %s has more precision than %s allows", domain.ErrInvalidAmount, m, m.Currency())
	}
	return shifted.IntPart(), nil
}

func fromMinorUnits(amount int64, currency string) (domain.Money, error) {
	places := int32(2)
	if zeroDecimalCurrencies[strings.ToUpper(currency)] {
		places = 0
	}
	return domain.NewMoney(decimal.New(amount, -places), currency)
}

// ChargeIdempotencyKey identifies one charge attempt of an order. Network
// retries of that attempt reuse it; the next attempt after a decline does not.
func ChargeIdempotencyKey(orderID uuid.UUID, attempt int) string {
	return fmt.Sprintf("charge-%s-%d", orderID, attempt)
}

// Charge creates and confirms a PaymentIntent for the order total.
// A card decline is reported as an unsuccessful result, not an error.
func (g *StripeGateway) Charge(ctx context.Context, order *domain.Order, method string, attempt int) (*domain.PaymentResult, error) {
	amount, err := ToMinorUnits(order.Total())
	if err != nil {
		return nil, err
	}

	params := &stripe.PaymentIntentParams{
		Amount:        stripe.Int64(amount),
		Currency:      stripe.String(strings.ToLower(order.Total().Currency())),
		PaymentMethod: stripe.String(method),
		Confirm:       stripe.Bool(true),
		AutomaticPaymentMethods: &stripe.PaymentIntentAutomaticPaymentMethodsParams{
			Enabled:        stripe.Bool(true),
			AllowRedirects: stripe.String("never"),
		},
	}
	params.Context = ctx
	params.SetIdempotencyKey(ChargeIdempotencyKey(order.ID, attempt))
	params.AddMetadata("order_id", order.ID.String())
	params.AddMetadata("user_id", order.UserID.String())

	intent, err := g.api.PaymentIntents.New(params)
	if err != nil {
		if declined(err) {
			g.logger.Info("Stripe declined charge",
				zap.String("order_id", order.ID.String()),
				zap.Int("attempt", attempt),
				zap.Error(err),
			)
			return &domain.PaymentResult{Success: false, Amount: order.Total(), Timestamp: g.now()}, nil
		}
		return nil, fmt.Errorf("failed to create payment intent: %w", err)
	}

	charged, err := fromMinorUnits(intent.Amount, string(intent.Currency))
	if err != nil {
		return nil, err
	}
	return &domain.PaymentResult{
		Success:       intent.Status == stripe.PaymentIntentStatusSucceeded,
		TransactionID: intent.ID,
		Amount:        charged,
		Timestamp:     g.now(),
	}, nil
}

// Refund refunds amount of the order's PaymentIntent
func (g *StripeGateway) Refund(ctx context.Context, order *domain.Order, amount domain.Money) (*domain.PaymentResult, error) {
	if order.PaymentReference == "" {
		return nil, ErrMissingPaymentReference
	}
	minor, err := ToMinorUnits(amount)
	if err != nil {
		return nil, err
	}

	params := &stripe.RefundParams{
		PaymentIntent: stripe.String(order.PaymentReference),
		Amount:        stripe.Int64(minor),
	}
	params.Context = ctx
	params.AddMetadata("order_id", order.ID.String())

	refund, err := g.api.Refunds.New(params)
	if err != nil {
		return nil, fmt.Errorf("failed to create refund: %w", err)
	}

	return &domain.PaymentResult{
		Success:       refund.Status == stripe.RefundStatusSucceeded || refund.Status == stripe.RefundStatusPending,
		TransactionID: refund.ID,
		Amount:        amount,
		Timestamp:     g.now(),
	}, nil
}

func declined(err error) bool {
	var stripeErr *stripe.Error
	return errors.As(err, &stripeErr) && stripeErr.Type == stripe.ErrorTypeCard
}
