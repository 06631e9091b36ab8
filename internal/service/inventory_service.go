package service

import (
	"fmt"

	"storefront/internal/domain"

	"github.com/google/uuid"
)

// InventoryService applies an order's stock side effects to its products.
// It mutates the in-memory products only; persisting the counts is the caller's job.
type InventoryService interface {
	ValidateStockAvailability(order *domain.Order) error
	ReserveStock(order *domain.Order) error
	ReleaseStock(order *domain.Order) error
	UpdateStockAfterCancellation(order *domain.Order) error
}

type inventoryService struct{}

// NewInventoryService creates a new instance of InventoryService
func NewInventoryService() InventoryService {
	return &inventoryService{}
}

// ValidateStockAvailability checks demand per product, so two lines for the
// same product are counted together
func (s *inventoryService) ValidateStockAvailability(order *domain.Order) error {
	if order == nil {
		return domain.ErrOrderNotFound
	}

	demand := make(map[uuid.UUID]int, len(order.Items))
	for _, item := range order.Items {
		if item.Product == nil {
			return fmt.Errorf("%w: %s", domain.ErrProductNotFound, item.ProductID)
		}
		demand[item.Product.ID] += item.Quantity
		if !item.Product.HasStock(demand[item.Product.ID]) {
			return &domain.InsufficientStockError{
				ProductID: item.Product.ID,
				Requested: demand[item.Product.ID],
				Available: item.Product.Stock,
			}
		}
	}
	return nil
}

// ReserveStock validates every item before decrementing any
func (s *inventoryService) ReserveStock(order *domain.Order) error {
	if err := s.ValidateStockAvailability(order); err != nil {
		return err
	}

	for _, item := range order.Items {
		if err := item.Product.UpdateStock(item.Product.Stock - item.Quantity); err != nil {
			return err
		}
	}
	return nil
}

// ReleaseStock gives the ordered quantities back
func (s *inventoryService) ReleaseStock(order *domain.Order) error {
	if order == nil {
		return domain.ErrOrderNotFound
	}

	for _, item := range order.Items {
		if item.Product == nil {
			return fmt.Errorf("%w: %s", domain.ErrProductNotFound, item.ProductID)
		}
	}
	for _, item := range order.Items {
		if err := item.Product.UpdateStock(item.Product.Stock + item.Quantity); err != nil {
			return err
		}
	}
	return nil
}

// UpdateStockAfterCancellation releases stock only for cancelled orders.
// Callers must invoke it once per transition into cancelled.
func (s *inventoryService) UpdateStockAfterCancellation(order *domain.Order) error {
	if order == nil {
		return domain.ErrOrderNotFound
	}
	if order.Status() != domain.OrderStatusCancelled {
		return nil
	}
	return s.ReleaseStock(order)
}
