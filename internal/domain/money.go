package domain

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// DefaultCurrency is used when a price is created without a currency tag.
const DefaultCurrency = "USD"

// Money is an immutable non-negative amount tagged with a currency.
// Money values of different currencies are never converted into each other.
type Money struct {
	amount   decimal.Decimal
	currency string
}

// NewMoney creates a Money value, rejecting negative amounts
func NewMoney(amount decimal.Decimal, currency string) (Money, error) {
	if amount.IsNegative() {
		return Money{}, ErrInvalidAmount
	}
	return Money{amount: amount, currency: normalizeCurrency(currency)}, nil
}

// ParseMoney creates a Money value from a decimal string such as "19.99"
func ParseMoney(amount string, currency string) (Money, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(amount))
	if err != nil {
		return Money{}, fmt.Errorf("failed to parse amount %q: %w", amount, err)
	}
	return NewMoney(d, currency)
}

// Zero returns a zero amount in the given currency
func Zero(currency string) Money {
	return Money{amount: decimal.Zero, currency: normalizeCurrency(currency)}
}

func normalizeCurrency(currency string) string {
	currency = strings.ToUpper(strings.TrimSpace(currency))
	if currency == "" {
		return DefaultCurrency
	}
	return currency
}

func (m Money) Amount() decimal.Decimal {
	return m.amount
}

func (m Money) Currency() string {
	if m.currency == "" {
		return DefaultCurrency
	}
	return m.currency
}

func (m Money) IsZero() bool {
	return m.amount.IsZero()
}

// Add returns the sum of both amounts
func (m Money) Add(other Money) (Money, error) {
	if m.Currency() != other.Currency() {
		return Money{}, ErrCurrencyMismatch
	}
	return NewMoney(m.amount.Add(other.amount), m.Currency())
}

// Subtract returns m - other, failing if the result would go below zero
func (m Money) Subtract(other Money) (Money, error) {
	if m.Currency() != other.Currency() {
		return Money{}, ErrCurrencyMismatch
	}
	if m.amount.LessThan(other.amount) {
		return Money{}, ErrNegativeResult
	}
	return NewMoney(m.amount.Sub(other.amount), m.Currency())
}

// Multiply scales the amount, typically unit price by quantity
func (m Money) Multiply(scalar decimal.Decimal) (Money, error) {
	if scalar.IsNegative() {
		return Money{}, ErrInvalidAmount
	}
	return NewMoney(m.amount.Mul(scalar), m.Currency())
}

// Equals compares amount and currency; 10 and 10.00 are equal
func (m Money) Equals(other Money) bool {
	return m.Currency() == other.Currency() && m.amount.Equal(other.amount)
}

// GreaterThan compares amounts only; callers check currencies first.
func (m Money) GreaterThan(other Money) bool {
	return m.amount.GreaterThan(other.amount)
}

func (m Money) String() string {
	return fmt.Sprintf("%s %s", m.Currency(), m.amount.StringFixed(2))
}

type moneyJSON struct {
	Amount   decimal.Decimal `json:"amount"`
	Currency string          `json:"currency"`
}

func (m Money) MarshalJSON() ([]byte, error) {
	return json.Marshal(moneyJSON{Amount: m.amount.Round(2), Currency: m.Currency()})
}

func (m *Money) UnmarshalJSON(data []byte) error {
	var raw moneyJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	parsed, err := NewMoney(raw.Amount, raw.Currency)
	if err != nil {
		return err
	}
	*m = parsed
	return nil
}
