package service

import (
	"time"

	"storefront/internal/domain"
)

// CancellationPolicy decides whether an order may still be cancelled
type CancellationPolicy func(order *domain.Order) bool

// DefaultCancellationPolicy allows cancellation until the order ships.
// Shipped and delivered orders are never cancellable, even with a refund.
func DefaultCancellationPolicy(order *domain.Order) bool {
	switch order.Status() {
	case domain.OrderStatusPending, domain.OrderStatusPaid:
		return true
	default:
		return false
	}
}

// OrderService turns carts into orders. It performs no I/O.
type OrderService interface {
	ValidateOrderCreation(cart *domain.Cart, user *domain.User) error
	CalculateOrderTotal(cart *domain.Cart) (domain.Money, error)
	CreateOrderFromCart(cart *domain.Cart, user *domain.User) (*domain.Order, error)
	CanBeCancelled(order *domain.Order) bool
}

type orderService struct {
	policy CancellationPolicy
	now    func() time.Time
}

// NewOrderService creates a new instance of OrderService
func NewOrderService(policy CancellationPolicy) OrderService {
	if policy == nil {
		policy = DefaultCancellationPolicy
	}
	return &orderService{
		policy: policy,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// ValidateOrderCreation re-checks every item against the product's current stock,
// since time may have passed since the item was added to the cart
func (s *orderService) ValidateOrderCreation(cart *domain.Cart, user *domain.User) error {
	if cart == nil {
		return domain.ErrCartNotFound
	}
	if cart.IsEmpty() {
		return domain.ErrEmptyCart
	}
	if user == nil {
		return domain.ErrUnauthenticated
	}
	if cart.UserID != user.ID {
		return domain.ErrForbidden
	}

	for _, item := range cart.Items() {
		if !item.Product.HasStock(item.Quantity) {
			return &domain.InsufficientStockError{
				ProductID: item.Product.ID,
				Requested: item.Quantity,
				Available: item.Product.Stock,
			}
		}
	}
	return nil
}

// CalculateOrderTotal is the single place the order total is computed
func (s *orderService) CalculateOrderTotal(cart *domain.Cart) (domain.Money, error) {
	return cart.Total()
}

// CreateOrderFromCart snapshots the cart into a pending order without persisting it
func (s *orderService) CreateOrderFromCart(cart *domain.Cart, user *domain.User) (*domain.Order, error) {
	if err := s.ValidateOrderCreation(cart, user); err != nil {
		return nil, err
	}

	total, err := s.CalculateOrderTotal(cart)
	if err != nil {
		return nil, err
	}

	cartItems := cart.Items()
	items := make([]domain.OrderItem, 0, len(cartItems))
	for _, item := range cartItems {
		items = append(items, domain.OrderItem{
			Product:     item.Product,
			ProductID:   item.Product.ID,
			ProductName: item.Product.Name,
			Quantity:    item.Quantity,
			Price:       item.Product.Price,
		})
	}

	return domain.NewOrder(user.ID, items, total, s.now())
}

func (s *orderService) CanBeCancelled(order *domain.Order) bool {
	return order != nil && s.policy(order)
}
