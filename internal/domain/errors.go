package domain

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
)

var (
	// * Validation errors.
	ErrInvalidAmount      = errors.New("amount cannot be negative")
	ErrCurrencyMismatch   = errors.New("cannot combine money with different currencies")
	ErrNegativeResult     = errors.New("result cannot be negative")
	ErrInvalidQuantity    = errors.New("quantity must be greater than 0")
	ErrNegativeStock      = errors.New("stock cannot be negative")
	ErrItemNotFound       = errors.New("cart item not found")
	ErrEmptyCart          = errors.New("cart is empty")
	ErrInsufficientStock  = errors.New("insufficient stock")
	ErrAmountMismatch     = errors.New("payment amount does not match order total")
	ErrRefundExceedsTotal = errors.New("refund amount exceeds order total")
	ErrInvalidOrderState  = errors.New("order status does not allow this operation")

	// * Authorization errors.
	ErrUnauthenticated = errors.New("user is not authenticated")
	ErrForbidden       = errors.New("user is forbidden to access the resource")

	// * Not-found errors.
	ErrOrderNotFound   = errors.New("order not found")
	ErrCartNotFound    = errors.New("cart not found")
	ErrProductNotFound = errors.New("product not found")

	// * Payment errors.
	ErrPaymentFailed = errors.New("payment was not successful")
)

// InsufficientStockError identifies the product whose stock cannot cover a request.
type InsufficientStockError struct {
	ProductID uuid.UUID
	Requested int
	Available int
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for product %s: requested %d, available %d",
		e.ProductID, e.Requested, e.Available)
}

func (e *InsufficientStockError) Unwrap() error {
	return ErrInsufficientStock
}

// InvalidTransitionError is returned when an order is moved along an edge the status machine does not have.
type InvalidTransitionError struct {
	From OrderStatus
	To   OrderStatus
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("invalid status transition: cannot transition from %s to %s", e.From, e.To)
}

func (e *InvalidTransitionError) Unwrap() error {
	return ErrInvalidOrderState
}
