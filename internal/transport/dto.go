package transport

import (
	"time"

	"storefront/internal/domain"
)

// AddItemRequest represents the add-to-cart request payload
type AddItemRequest struct {
	ProductID string `json:"product_id" validate:"required,uuid"`
	Quantity  int    `json:"quantity" validate:"required,gt=0,lte=1000"`
}

// UpdateItemRequest represents the cart quantity update payload
type UpdateItemRequest struct {
	Quantity int `json:"quantity" validate:"required,gt=0,lte=1000"`
}

// PlaceOrderRequest represents the checkout payload. The body is optional.
type PlaceOrderRequest struct {
	PaymentMethod string `json:"payment_method" validate:"omitempty,max=255"`
}

// PayOrderRequest represents the payment payload
type PayOrderRequest struct {
	PaymentMethod string `json:"payment_method" validate:"required,max=255"`
}

// RefundRequest represents a partial or full refund
type RefundRequest struct {
	Amount   string `json:"amount" validate:"required,numeric"`
	Currency string `json:"currency" validate:"required,len=3,alpha"`
}

// ShipRequest represents the ship payload
type ShipRequest struct {
	TrackingNumber string `json:"tracking_number" validate:"required,max=100"`
}

// RestockRequest replaces a product's stock count
type RestockRequest struct {
	Stock *int `json:"stock" validate:"required,gte=0"`
}

// PaymentCallbackRequest is sent by the payment gateway once a charge settles
type PaymentCallbackRequest struct {
	OrderID       string `json:"order_id" validate:"required,uuid"`
	TransactionID string `json:"transaction_id" validate:"required,max=255"`
	Amount        string `json:"amount" validate:"required,numeric"`
	Currency      string `json:"currency" validate:"required,len=3,alpha"`
	Status        string `json:"status" validate:"required,oneof=succeeded failed"`
}

// CartItemResponse is one cart line
type CartItemResponse struct {
	ProductID string       `json:"product_id"`
	Name      string       `json:"name"`
	Price     domain.Money `json:"price"`
	Quantity  int          `json:"quantity"`
	Stock     int          `json:"stock"`
	Total     domain.Money `json:"total"`
}

// CartResponse represents a cart with its recomputed total
type CartResponse struct {
	ID        string             `json:"id"`
	UserID    string             `json:"user_id"`
	Items     []CartItemResponse `json:"items"`
	Total     domain.Money       `json:"total"`
	UpdatedAt time.Time          `json:"updated_at"`
}

// OrderItemResponse is one order line with its frozen price
type OrderItemResponse struct {
	ProductID   string       `json:"product_id"`
	ProductName string       `json:"product_name"`
	Price       domain.Money `json:"price"`
	Quantity    int          `json:"quantity"`
	Total       domain.Money `json:"total"`
}

// OrderResponse represents an order
type OrderResponse struct {
	ID               string              `json:"id"`
	UserID           string              `json:"user_id"`
	Status           domain.OrderStatus  `json:"status"`
	Items            []OrderItemResponse `json:"items"`
	Total            domain.Money        `json:"total"`
	PaymentReference string              `json:"payment_reference,omitempty"`
	TrackingNumber   string              `json:"tracking_number,omitempty"`
	CreatedAt        time.Time           `json:"created_at"`
	UpdatedAt        time.Time           `json:"updated_at"`
}

// PaymentResponse represents a recorded charge or refund
type PaymentResponse struct {
	ID            string             `json:"id"`
	Kind          domain.PaymentKind `json:"kind"`
	Method        string             `json:"method,omitempty"`
	TransactionID string             `json:"transaction_id"`
	Amount        domain.Money       `json:"amount"`
	Success       bool               `json:"success"`
	CreatedAt     time.Time          `json:"created_at"`
}

// ProductStockResponse reports a product's stock after a restock
type ProductStockResponse struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Stock int    `json:"stock"`
}

func toCartResponse(cart *domain.Cart) (CartResponse, error) {
	total, err := cart.Total()
	if err != nil {
		return CartResponse{}, err
	}

	items := make([]CartItemResponse, 0, len(cart.Items()))
	for _, item := range cart.Items() {
		itemTotal, err := item.Total()
		if err != nil {
			return CartResponse{}, err
		}
		items = append(items, CartItemResponse{
			ProductID: item.Product.ID.String(),
			Name:      item.Product.Name,
			Price:     item.Product.Price,
			Quantity:  item.Quantity,
			Stock:     item.Product.Stock,
			Total:     itemTotal,
		})
	}

	return CartResponse{
		ID:        cart.ID.String(),
		UserID:    cart.UserID.String(),
		Items:     items,
		Total:     total,
		UpdatedAt: cart.UpdatedAt,
	}, nil
}

func toOrderResponse(order *domain.Order) (OrderResponse, error) {
	items := make([]OrderItemResponse, 0, len(order.Items))
	for _, item := range order.Items {
		itemTotal, err := item.Total()
		if err != nil {
			return OrderResponse{}, err
		}
		items = append(items, OrderItemResponse{
			ProductID:   item.ProductID.String(),
			ProductName: item.ProductName,
			Price:       item.Price,
			Quantity:    item.Quantity,
			Total:       itemTotal,
		})
	}

	return OrderResponse{
		ID:               order.ID.String(),
		UserID:           order.UserID.String(),
		Status:           order.Status(),
		Items:            items,
		Total:            order.Total(),
		PaymentReference: order.PaymentReference,
		TrackingNumber:   order.TrackingNumber,
		CreatedAt:        order.CreatedAt,
		UpdatedAt:        order.UpdatedAt,
	}, nil
}

func toPaymentResponse(tx *domain.PaymentTransaction) PaymentResponse {
	return PaymentResponse{
		ID:            tx.ID.String(),
		Kind:          tx.Kind,
		Method:        tx.Method,
		TransactionID: tx.TransactionID,
		Amount:        tx.Amount,
		Success:       tx.Success,
		CreatedAt:     tx.CreatedAt,
	}
}
