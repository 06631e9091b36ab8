package domain

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

const (
	EventOrderCreated      = "order.created"
	EventOrderPaid         = "order.paid"
	EventOrderShipped      = "order.shipped"
	EventOrderDelivered    = "order.delivered"
	EventOrderCancelled    = "order.cancelled"
	EventPaymentRefunded   = "payment.refunded"
	EventInventoryReserved = "inventory.reserved"
	EventInventoryReleased = "inventory.released"
)

// Event is a domain fact queued in the outbox and relayed to subscribers
type Event struct {
	ID          uuid.UUID       `json:"event_id"`
	Type        string          `json:"type"`
	AggregateID uuid.UUID       `json:"aggregate_id"`
	Payload     json.RawMessage `json:"payload"`
	CreatedAt   time.Time       `json:"created_at"`
	SentAt      *time.Time      `json:"sent_at,omitempty"`
}

// NewEvent serializes payload into a new event
func NewEvent(eventType string, aggregateID uuid.UUID, payload any) (*Event, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s payload: %w", eventType, err)
	}
	return &Event{
		ID:          uuid.New(),
		Type:        eventType,
		AggregateID: aggregateID,
		Payload:     data,
		CreatedAt:   time.Now().UTC(),
	}, nil
}

// OrderEventPayload is the payload of every order.* event
type OrderEventPayload struct {
	OrderID uuid.UUID   `json:"order_id"`
	UserID  uuid.UUID   `json:"user_id"`
	Status  OrderStatus `json:"status"`
	Total   Money       `json:"total"`
}

// StockEventPayload lists per-product quantities moved by inventory.* events
type StockEventPayload struct {
	OrderID uuid.UUID         `json:"order_id"`
	Items   map[uuid.UUID]int `json:"items"`
}

// RefundEventPayload is the payload of payment.refunded
type RefundEventPayload struct {
	OrderID       uuid.UUID `json:"order_id"`
	TransactionID string    `json:"transaction_id"`
	Amount        Money     `json:"amount"`
}

func NewOrderEvent(eventType string, order *Order) (*Event, error) {
	return NewEvent(eventType, order.ID, OrderEventPayload{
		OrderID: order.ID,
		UserID:  order.UserID,
		Status:  order.Status(),
		Total:   order.Total(),
	})
}

func NewStockEvent(eventType string, order *Order) (*Event, error) {
	items := make(map[uuid.UUID]int, len(order.Items))
	for _, item := range order.Items {
		items[item.ProductID] += item.Quantity
	}
	return NewEvent(eventType, order.ID, StockEventPayload{OrderID: order.ID, Items: items})
}
