package checkout

import (
	"context"
	"fmt"
	"time"

	"storefront/internal/domain"
	"storefront/internal/repository"
	"storefront/internal/service"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// PlaceOrderInput carries the optional parts of a checkout request
type PlaceOrderInput struct {
	IdempotencyKey string
	PaymentMethod  string
}

// PlaceOrderResult is the order a checkout produced. Replayed is set when
// the idempotency key matched an earlier checkout and no new order was made.
type PlaceOrderResult struct {
	Order           *domain.Order
	Replayed        bool
	PaymentDeclined bool
}

// Service composes the domain services with the repositories. It is the
// only layer that writes through the repositories.
type Service interface {
	GetCart(ctx context.Context, user *domain.User) (*domain.Cart, error)
	AddToCart(ctx context.Context, user *domain.User, productID uuid.UUID, quantity int) (*domain.Cart, error)
	UpdateCartItem(ctx context.Context, user *domain.User, productID uuid.UUID, quantity int) (*domain.Cart, error)
	RemoveCartItem(ctx context.Context, user *domain.User, productID uuid.UUID) (*domain.Cart, error)
	ClearCart(ctx context.Context, user *domain.User) error

	PlaceOrder(ctx context.Context, user *domain.User, in PlaceOrderInput) (*PlaceOrderResult, error)
	PayOrder(ctx context.Context, user *domain.User, orderID uuid.UUID, method string) (*domain.Order, error)
	ConfirmPayment(ctx context.Context, orderID uuid.UUID, transactionID string, amount domain.Money) (*domain.Order, error)
	CancelOrder(ctx context.Context, user *domain.User, orderID uuid.UUID) (*domain.Order, error)
	RefundOrder(ctx context.Context, user *domain.User, orderID uuid.UUID, amount domain.Money) (*domain.PaymentTransaction, error)
	ShipOrder(ctx context.Context, user *domain.User, orderID uuid.UUID, trackingNumber string) (*domain.Order, error)
	DeliverOrder(ctx context.Context, user *domain.User, orderID uuid.UUID) (*domain.Order, error)

	GetOrder(ctx context.Context, user *domain.User, orderID uuid.UUID) (*domain.Order, error)
	ListOrders(ctx context.Context, user *domain.User, limit, offset uint64) ([]*domain.Order, error)
	OrderHistory(ctx context.Context, user *domain.User, orderID uuid.UUID) ([]domain.OrderHistoryEntry, error)
	Payments(ctx context.Context, user *domain.User, orderID uuid.UUID) ([]*domain.PaymentTransaction, error)

	RestockProduct(ctx context.Context, user *domain.User, productID uuid.UUID, stock int) (*domain.Product, error)
}

// Metrics receives checkout outcomes
type Metrics interface {
	OrderPlaced(total domain.Money)
	OrderTransitioned(to domain.OrderStatus)
	PaymentProcessed(kind domain.PaymentKind, success bool)
	StockConflict()
}

type nopMetrics struct{}

func (nopMetrics) OrderPlaced(domain.Money)                  {}
func (nopMetrics) OrderTransitioned(domain.OrderStatus)      {}
func (nopMetrics) PaymentProcessed(domain.PaymentKind, bool) {}
func (nopMetrics) StockConflict()                            {}

// Dependencies are the collaborators of the checkout service.
// Metrics may be nil.
type Dependencies struct {
	Store     repository.Store
	Orders    service.OrderService
	Inventory service.InventoryService
	Payments  service.PaymentService
	Users     service.UserService
	Metrics   Metrics
	Logger    *zap.Logger
}

type checkoutService struct {
	store     repository.Store
	orders    service.OrderService
	inventory service.InventoryService
	payments  service.PaymentService
	users     service.UserService
	metrics   Metrics
	logger    *zap.Logger
	now       func() time.Time
}

// NewService creates a new instance of Service
func NewService(deps Dependencies) Service {
	metrics := deps.Metrics
	if metrics == nil {
		metrics = nopMetrics{}
	}
	return &checkoutService{
		store:     deps.Store,
		orders:    deps.Orders,
		inventory: deps.Inventory,
		payments:  deps.Payments,
		users:     deps.Users,
		metrics:   metrics,
		logger:    deps.Logger,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// authorizeRead lets admins see every order and users only their own
func (s *checkoutService) authorizeRead(user *domain.User, order *domain.Order) error {
	if user.IsAdmin() {
		return nil
	}
	return s.users.ValidateUserOrderAccess(user, order)
}

func requireAdmin(user *domain.User) error {
	if user == nil {
		return domain.ErrUnauthenticated
	}
	if !user.IsAdmin() {
		return domain.ErrForbidden
	}
	return nil
}

// orderProductIDs lists the distinct products of order
func orderProductIDs(order *domain.Order) []uuid.UUID {
	seen := make(map[uuid.UUID]bool, len(order.Items))
	ids := make([]uuid.UUID, 0, len(order.Items))
	for _, item := range order.Items {
		if !seen[item.ProductID] {
			seen[item.ProductID] = true
			ids = append(ids, item.ProductID)
		}
	}
	return ids
}

// attachProducts points every order item at its loaded product
func attachProducts(order *domain.Order, products map[uuid.UUID]*domain.Product) error {
	for i := range order.Items {
		product, ok := products[order.Items[i].ProductID]
		if !ok {
			return fmt.Errorf("%w: %s", domain.ErrProductNotFound, order.Items[i].ProductID)
		}
		order.Items[i].Product = product
	}
	return nil
}

// newEvents builds one order event per type, plus stock events for the inventory types
func newEvents(order *domain.Order, types ...string) ([]*domain.Event, error) {
	events := make([]*domain.Event, 0, len(types))
	for _, eventType := range types {
		var (
			event *domain.Event
			err   error
		)
		switch eventType {
		case domain.EventInventoryReserved, domain.EventInventoryReleased:
			event, err = domain.NewStockEvent(eventType, order)
		default:
			event, err = domain.NewOrderEvent(eventType, order)
		}
		if err != nil {
			return nil, err
		}
		events = append(events, event)
	}
	return events, nil
}
