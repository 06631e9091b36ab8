package domain

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type OrderStatus string

const (
	OrderStatusPending   OrderStatus = "pending"
	OrderStatusPaid      OrderStatus = "paid"
	OrderStatusShipped   OrderStatus = "shipped"
	OrderStatusDelivered OrderStatus = "delivered"
	OrderStatusCancelled OrderStatus = "cancelled"
)

var orderTransitions = map[OrderStatus][]OrderStatus{
	OrderStatusPending: {OrderStatusPaid, OrderStatusCancelled},
	OrderStatusPaid:    {OrderStatusShipped, OrderStatusCancelled},
	OrderStatusShipped: {OrderStatusDelivered},
}

// ParseOrderStatus converts a stored status string
func ParseOrderStatus(s string) (OrderStatus, error) {
	status := OrderStatus(s)
	switch status {
	case OrderStatusPending, OrderStatusPaid, OrderStatusShipped, OrderStatusDelivered, OrderStatusCancelled:
		return status, nil
	}
	return "", fmt.Errorf("unknown order status %q", s)
}

// CanTransitionTo reports whether the status machine has an edge s -> to
func (s OrderStatus) CanTransitionTo(to OrderStatus) bool {
	for _, next := range orderTransitions[s] {
		if next == to {
			return true
		}
	}
	return false
}

func (s OrderStatus) IsTerminal() bool {
	return len(orderTransitions[s]) == 0
}

// OrderItem freezes the unit price at the time the order was created.
// Price must never be re-derived from Product.Price.
type OrderItem struct {
	ID          uuid.UUID
	Product     *Product
	ProductID   uuid.UUID
	ProductName string
	Quantity    int
	Price       Money
}

// Total is the frozen unit price times quantity
func (i OrderItem) Total() (Money, error) {
	return i.Price.Multiply(decimal.NewFromInt(int64(i.Quantity)))
}

// Order is a price snapshot of a cart with a lifecycle status.
// Its total is fixed at creation; refunds are recorded separately.
type Order struct {
	ID               uuid.UUID
	UserID           uuid.UUID
	Items            []OrderItem
	status           OrderStatus
	total            Money
	PaymentReference string
	TrackingNumber   string
	IdempotencyKey   string
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// SumItems totals price x quantity over items
func SumItems(items []OrderItem) (Money, error) {
	if len(items) == 0 {
		return Zero(DefaultCurrency), nil
	}
	total := Zero(items[0].Price.Currency())
	for _, item := range items {
		itemTotal, err := item.Total()
		if err != nil {
			return Money{}, err
		}
		total, err = total.Add(itemTotal)
		if err != nil {
			return Money{}, err
		}
	}
	return total, nil
}

// NewOrder creates a pending order. total must equal the sum of the items.
func NewOrder(userID uuid.UUID, items []OrderItem, total Money, createdAt time.Time) (*Order, error) {
	if len(items) == 0 {
		return nil, ErrEmptyCart
	}
	for _, item := range items {
		if item.Quantity <= 0 {
			return nil, ErrInvalidQuantity
		}
	}

	sum, err := SumItems(items)
	if err != nil {
		return nil, err
	}
	if !sum.Equals(total) {
		return nil, fmt.Errorf("order total %s does not match item sum %s", total, sum)
	}

	order := &Order{
		ID:        uuid.New(),
		UserID:    userID,
		Items:     make([]OrderItem, len(items)),
		status:    OrderStatusPending,
		total:     total,
		CreatedAt: createdAt,
		UpdatedAt: createdAt,
	}
	for i, item := range items {
		if item.ID == uuid.Nil {
			item.ID = uuid.New()
		}
		order.Items[i] = item
	}
	return order, nil
}

// RestoreOrder rebuilds an order from persisted state
func RestoreOrder(id, userID uuid.UUID, items []OrderItem, status OrderStatus, total Money, createdAt, updatedAt time.Time) *Order {
	return &Order{
		ID:        id,
		UserID:    userID,
		Items:     items,
		status:    status,
		total:     total,
		CreatedAt: createdAt,
		UpdatedAt: updatedAt,
	}
}

func (o *Order) Status() OrderStatus {
	return o.status
}

func (o *Order) Total() Money {
	return o.total
}

// TransitionTo moves the order along the status machine
func (o *Order) TransitionTo(to OrderStatus, at time.Time) error {
	if !o.status.CanTransitionTo(to) {
		return &InvalidTransitionError{From: o.status, To: to}
	}
	o.status = to
	o.UpdatedAt = at
	return nil
}

// MarkPaid records the gateway reference of the successful charge
func (o *Order) MarkPaid(paymentReference string, at time.Time) error {
	if err := o.TransitionTo(OrderStatusPaid, at); err != nil {
		return err
	}
	o.PaymentReference = paymentReference
	return nil
}

func (o *Order) Ship(trackingNumber string, at time.Time) error {
	if err := o.TransitionTo(OrderStatusShipped, at); err != nil {
		return err
	}
	o.TrackingNumber = trackingNumber
	return nil
}

func (o *Order) Deliver(at time.Time) error {
	return o.TransitionTo(OrderStatusDelivered, at)
}

// Cancel applies the cancellation edge. Whether cancelling is allowed
// for the user is a service-level policy decision made before this call.
func (o *Order) Cancel(at time.Time) error {
	return o.TransitionTo(OrderStatusCancelled, at)
}

// OrderHistoryEntry records one status the order entered
type OrderHistoryEntry struct {
	ID        uuid.UUID   `json:"id"`
	OrderID   uuid.UUID   `json:"order_id"`
	Status    OrderStatus `json:"status"`
	Comment   string      `json:"comment,omitempty"`
	CreatedAt time.Time   `json:"created_at"`
}
