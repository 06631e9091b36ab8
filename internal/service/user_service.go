package service

import (
	"fmt"
	"time"

	"storefront/internal/domain"
)

// UserService is the authorization gate for cart and order operations
// and applies the cancellation policy
type UserService interface {
	ValidateUserOrderAccess(user *domain.User, order *domain.Order) error
	ValidateUserCartAccess(user *domain.User, cart *domain.Cart) error
	CanCancelOrder(user *domain.User, order *domain.Order) (bool, error)
	CancelOrder(user *domain.User, order *domain.Order) error
}

type userService struct {
	orders OrderService
	now    func() time.Time
}

// NewUserService creates a new instance of UserService
func NewUserService(orders OrderService) UserService {
	return &userService{
		orders: orders,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// ValidateUserOrderAccess confirms user owns order
func (s *userService) ValidateUserOrderAccess(user *domain.User, order *domain.Order) error {
	if user == nil {
		return domain.ErrUnauthenticated
	}
	if order == nil {
		return domain.ErrOrderNotFound
	}
	if user.ID != order.UserID {
		return domain.ErrForbidden
	}
	return nil
}

// ValidateUserCartAccess confirms user owns cart
func (s *userService) ValidateUserCartAccess(user *domain.User, cart *domain.Cart) error {
	if user == nil {
		return domain.ErrUnauthenticated
	}
	if cart == nil {
		return domain.ErrCartNotFound
	}
	if user.ID != cart.UserID {
		return domain.ErrForbidden
	}
	return nil
}

func (s *userService) CanCancelOrder(user *domain.User, order *domain.Order) (bool, error) {
	if err := s.ValidateUserOrderAccess(user, order); err != nil {
		return false, err
	}
	return s.orders.CanBeCancelled(order), nil
}

// CancelOrder transitions order to cancelled. The caller must follow up with
// exactly one InventoryService.UpdateStockAfterCancellation.
func (s *userService) CancelOrder(user *domain.User, order *domain.Order) error {
	ok, err := s.CanCancelOrder(user, order)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: %s orders cannot be cancelled", domain.ErrInvalidOrderState, order.Status())
	}
	return order.Cancel(s.now())
}
