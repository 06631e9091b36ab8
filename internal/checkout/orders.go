package checkout

import (
	"context"
	"errors"
	"fmt"

	"storefront/internal/domain"
	"storefront/internal/repository"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// PlaceOrder turns the user's cart into an order in one transaction: the
// cart and its products are locked, stock is decremented conditionally,
// the order is stored and the cart deleted. With a payment method the
// order is charged before commit.
//
// A repeated idempotency key returns the order the first request created.
func (s *checkoutService) PlaceOrder(ctx context.Context, user *domain.User, in PlaceOrderInput) (*PlaceOrderResult, error) {
	if user == nil {
		return nil, domain.ErrUnauthenticated
	}
	if in.IdempotencyKey != "" {
		if existing, err := s.replay(ctx, user, in.IdempotencyKey); err != nil || existing != nil {
			return existing, err
		}
	}

	var (
		order    *domain.Order
		charge   *domain.PaymentResult
		declined bool
	)
	err := s.store.WithTx(ctx, func(repos repository.Repositories) error {
		cart, err := repos.Carts.FindByUserIDForUpdate(ctx, user.ID)
		if err != nil {
			return err
		}
		if err := s.users.ValidateUserCartAccess(user, cart); err != nil {
			return err
		}
		if cart.IsEmpty() {
			return domain.ErrEmptyCart
		}

		products, err := repos.Products.FindByIDsForUpdate(ctx, cart.ProductIDs())
		if err != nil {
			return err
		}
		if err := cart.RefreshProducts(products); err != nil {
			return err
		}

		order, err = s.orders.CreateOrderFromCart(cart, user)
		if err != nil {
			return err
		}
		order.IdempotencyKey = in.IdempotencyKey

		if err := s.inventory.ReserveStock(order); err != nil {
			return err
		}
		for _, item := range order.Items {
			if err := repos.Products.DecrementStock(ctx, item.ProductID, item.Quantity); err != nil {
				return err
			}
		}
		if err := repos.Orders.Create(ctx, order); err != nil {
			return err
		}

		eventTypes := []string{domain.EventOrderCreated, domain.EventInventoryReserved}
		if in.PaymentMethod != "" {
			charge, err = s.payments.ProcessPayment(ctx, order, in.PaymentMethod, 1)
			if err != nil {
				return err
			}
			declined = !charge.Success
			if err := s.recordPayment(ctx, repos, order, domain.PaymentKindCharge, in.PaymentMethod, charge); err != nil {
				return err
			}
			if charge.Success {
				if err := order.MarkPaid(charge.TransactionID, s.now()); err != nil {
					return err
				}
				if err := repos.Orders.UpdateStatus(ctx, order, domain.OrderStatusPending, "payment captured"); err != nil {
					return err
				}
				eventTypes = append(eventTypes, domain.EventOrderPaid)
			}
		}

		if err := repos.Carts.Delete(ctx, cart.ID); err != nil {
			return err
		}
		return s.publish(ctx, repos, order, eventTypes...)
	})
	if err != nil {
		if charge != nil && charge.Success {
			s.compensateCharge(ctx, order, charge)
		}
		if errors.Is(err, repository.ErrDuplicateIdempotencyKey) {
			existing, replayErr := s.replay(ctx, user, in.IdempotencyKey)
			if replayErr != nil {
				return nil, replayErr
			}
			if existing != nil {
				return existing, nil
			}
		}
		if errors.Is(err, domain.ErrInsufficientStock) {
			s.metrics.StockConflict()
		}
		return nil, err
	}

	s.metrics.OrderPlaced(order.Total())
	if charge != nil {
		s.metrics.PaymentProcessed(domain.PaymentKindCharge, charge.Success)
	}
	s.logger.Info("Order placed",
		zap.String("order_id", order.ID.String()),
		zap.String("user_id", user.ID.String()),
		zap.String("total", order.Total().String()),
		zap.String("status", string(order.Status())),
	)
	return &PlaceOrderResult{Order: order, PaymentDeclined: declined}, nil
}

// replay returns the earlier result for key, or nil if there is none
func (s *checkoutService) replay(ctx context.Context, user *domain.User, key string) (*PlaceOrderResult, error) {
	existing, err := s.store.Repositories().Orders.FindByIdempotencyKey(ctx, user.ID, key)
	if errors.Is(err, domain.ErrOrderNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	s.logger.Info("Replaying checkout",
		zap.String("order_id", existing.ID.String()),
		zap.String("idempotency_key", key),
	)
	return &PlaceOrderResult{Order: existing, Replayed: true}, nil
}

// compensateCharge refunds a successful charge whose order was rolled back
func (s *checkoutService) compensateCharge(ctx context.Context, order *domain.Order, charge *domain.PaymentResult) {
	ctx = context.WithoutCancel(ctx)
	if order.Status() == domain.OrderStatusPending {
		// the rolled back order never reached paid; refunds need a paid order
		if err := order.MarkPaid(charge.TransactionID, s.now()); err != nil {
			s.logger.Error("Failed to prepare compensating refund", zap.Error(err))
			return
		}
	}
	if _, err := s.payments.RefundPayment(ctx, order, charge.Amount); err != nil {
		s.logger.Error("Failed to refund charge of rolled back order",
			zap.String("order_id", order.ID.String()),
			zap.String("transaction_id", charge.TransactionID),
			zap.Error(err),
		)
		return
	}
	s.logger.Warn("Refunded charge of rolled back order",
		zap.String("order_id", order.ID.String()),
		zap.String("transaction_id", charge.TransactionID),
	)
}

// PayOrder charges a pending order. A declined charge is recorded and
// reported as domain.ErrPaymentFailed; the order stays pending.
func (s *checkoutService) PayOrder(ctx context.Context, user *domain.User, orderID uuid.UUID, method string) (*domain.Order, error) {
	var (
		order  *domain.Order
		charge *domain.PaymentResult
	)
	err := s.store.WithTx(ctx, func(repos repository.Repositories) error {
		var err error
		order, err = repos.Orders.FindByIDForUpdate(ctx, orderID)
		if err != nil {
			return err
		}
		if err := s.users.ValidateUserOrderAccess(user, order); err != nil {
			return err
		}

		// the order row is locked, so the attempt count cannot race
		transactions, err := repos.Payments.FindByOrderID(ctx, order.ID)
		if err != nil {
			return err
		}
		charge, err = s.payments.ProcessPayment(ctx, order, method, domain.ChargeAttempts(transactions)+1)
		if err != nil {
			return err
		}
		if err := s.recordPayment(ctx, repos, order, domain.PaymentKindCharge, method, charge); err != nil {
			return err
		}
		if !charge.Success {
			return nil
		}
		return s.transition(ctx, repos, order, "payment captured", func() error {
			return order.MarkPaid(charge.TransactionID, s.now())
		}, domain.EventOrderPaid)
	})
	if err != nil {
		if charge != nil && charge.Success {
			s.compensateCharge(ctx, order, charge)
		}
		return nil, err
	}

	s.metrics.PaymentProcessed(domain.PaymentKindCharge, charge.Success)
	if !charge.Success {
		return nil, domain.ErrPaymentFailed
	}
	s.metrics.OrderTransitioned(domain.OrderStatusPaid)
	return order, nil
}

// ConfirmPayment applies a gateway's asynchronous confirmation. Repeating
// a confirmation for the same transaction returns the paid order unchanged.
// A confirmation the order can no longer accept is logged at error level:
// the gateway holds money that needs a manual refund.
func (s *checkoutService) ConfirmPayment(ctx context.Context, orderID uuid.UUID, transactionID string, amount domain.Money) (*domain.Order, error) {
	var (
		order     *domain.Order
		duplicate bool
	)
	err := s.store.WithTx(ctx, func(repos repository.Repositories) error {
		var err error
		order, err = repos.Orders.FindByIDForUpdate(ctx, orderID)
		if err != nil {
			return err
		}
		if order.Status() == domain.OrderStatusPaid && order.PaymentReference == transactionID {
			duplicate = true
			return nil
		}
		if err := s.payments.ValidatePayment(order, amount); err != nil {
			return err
		}

		result := &domain.PaymentResult{
			Success:       true,
			TransactionID: transactionID,
			Amount:        amount,
			Timestamp:     s.now(),
		}
		if err := s.recordPayment(ctx, repos, order, domain.PaymentKindCharge, "callback", result); err != nil {
			return err
		}
		return s.transition(ctx, repos, order, "payment confirmed by gateway", func() error {
			return order.MarkPaid(transactionID, s.now())
		}, domain.EventOrderPaid)
	})
	if err != nil {
		if errors.Is(err, domain.ErrInvalidOrderState) && order != nil {
			s.logger.Error("Captured payment cannot be applied, needs reconciliation",
				zap.String("order_id", order.ID.String()),
				zap.String("status", string(order.Status())),
				zap.String("payment_reference", order.PaymentReference),
				zap.String("transaction_id", transactionID),
				zap.String("amount", amount.String()),
			)
		}
		return nil, err
	}

	if duplicate {
		s.logger.Info("Ignoring duplicate payment confirmation",
			zap.String("order_id", order.ID.String()),
			zap.String("transaction_id", transactionID),
		)
		return order, nil
	}
	s.metrics.PaymentProcessed(domain.PaymentKindCharge, true)
	s.metrics.OrderTransitioned(domain.OrderStatusPaid)
	return order, nil
}

// CancelOrder cancels a pending or paid order. A paid order is first
// refunded whatever has not been refunded yet. Stock is released exactly
// once, in the same transaction as the status change.
func (s *checkoutService) CancelOrder(ctx context.Context, user *domain.User, orderID uuid.UUID) (*domain.Order, error) {
	var (
		order  *domain.Order
		refund *domain.PaymentResult
	)
	err := s.store.WithTx(ctx, func(repos repository.Repositories) error {
		var err error
		order, err = repos.Orders.FindByIDForUpdate(ctx, orderID)
		if err != nil {
			return err
		}
		ok, err := s.users.CanCancelOrder(user, order)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("%w: %s orders cannot be cancelled", domain.ErrInvalidOrderState, order.Status())
		}

		products, err := repos.Products.FindByIDsForUpdate(ctx, orderProductIDs(order))
		if err != nil {
			return err
		}
		if err := attachProducts(order, products); err != nil {
			return err
		}

		eventTypes := []string{domain.EventOrderCancelled, domain.EventInventoryReleased}
		if order.Status() == domain.OrderStatusPaid {
			refund, err = s.refundRemainder(ctx, repos, order)
			if err != nil {
				return err
			}
		}

		from := order.Status()
		if err := s.users.CancelOrder(user, order); err != nil {
			return err
		}
		if err := repos.Orders.UpdateStatus(ctx, order, from, "cancelled by user"); err != nil {
			return err
		}
		if err := s.inventory.UpdateStockAfterCancellation(order); err != nil {
			return err
		}
		for _, item := range order.Items {
			if err := repos.Products.IncrementStock(ctx, item.ProductID, item.Quantity); err != nil {
				return err
			}
		}
		return s.publish(ctx, repos, order, eventTypes...)
	})
	if err != nil {
		if refund != nil && refund.Success {
			s.logger.Error("Refund issued but cancellation rolled back",
				zap.String("order_id", orderID.String()),
				zap.String("transaction_id", refund.TransactionID),
				zap.Error(err),
			)
		}
		return nil, err
	}

	if refund != nil {
		s.metrics.PaymentProcessed(domain.PaymentKindRefund, refund.Success)
	}
	s.metrics.OrderTransitioned(domain.OrderStatusCancelled)
	s.logger.Info("Order cancelled",
		zap.String("order_id", order.ID.String()),
		zap.String("user_id", user.ID.String()),
	)
	return order, nil
}

// refundRemainder refunds the part of a paid order's total not refunded yet.
// It returns nil if nothing is left to refund.
func (s *checkoutService) refundRemainder(ctx context.Context, repos repository.Repositories, order *domain.Order) (*domain.PaymentResult, error) {
	transactions, err := repos.Payments.FindByOrderID(ctx, order.ID)
	if err != nil {
		return nil, err
	}
	refunded, err := domain.RefundedTotal(transactions, order.Total().Currency())
	if err != nil {
		return nil, err
	}
	remaining, err := order.Total().Subtract(refunded)
	if err != nil {
		return nil, err
	}
	if remaining.IsZero() {
		return nil, nil
	}

	result, err := s.payments.RefundPayment(ctx, order, remaining)
	if err != nil {
		return nil, err
	}
	if !result.Success {
		return nil, domain.ErrPaymentFailed
	}
	if err := s.recordPayment(ctx, repos, order, domain.PaymentKindRefund, chargeMethod(transactions), result); err != nil {
		return nil, err
	}
	if err := s.publishRefund(ctx, repos, order, result); err != nil {
		return nil, err
	}
	return result, nil
}

// RefundOrder refunds part of a paid order. Refunds accumulate and may
// never exceed the order total; the order keeps its status.
func (s *checkoutService) RefundOrder(ctx context.Context, user *domain.User, orderID uuid.UUID, amount domain.Money) (*domain.PaymentTransaction, error) {
	var record *domain.PaymentTransaction
	err := s.store.WithTx(ctx, func(repos repository.Repositories) error {
		order, err := repos.Orders.FindByIDForUpdate(ctx, orderID)
		if err != nil {
			return err
		}
		if err := s.authorizeRead(user, order); err != nil {
			return err
		}
		if err := s.payments.ValidateRefund(order, amount); err != nil {
			return err
		}

		transactions, err := repos.Payments.FindByOrderID(ctx, order.ID)
		if err != nil {
			return err
		}
		refunded, err := domain.RefundedTotal(transactions, order.Total().Currency())
		if err != nil {
			return err
		}
		after, err := refunded.Add(amount)
		if err != nil {
			return err
		}
		if after.GreaterThan(order.Total()) {
			return domain.ErrRefundExceedsTotal
		}

		result, err := s.payments.RefundPayment(ctx, order, amount)
		if err != nil {
			return err
		}
		record = domain.NewPaymentTransaction(order.ID, domain.PaymentKindRefund, chargeMethod(transactions), result)
		if err := repos.Payments.Create(ctx, record); err != nil {
			return err
		}
		if !result.Success {
			return nil
		}
		return s.publishRefund(ctx, repos, order, result)
	})
	if err != nil {
		return nil, err
	}

	s.metrics.PaymentProcessed(domain.PaymentKindRefund, record.Success)
	if !record.Success {
		return nil, domain.ErrPaymentFailed
	}
	return record, nil
}

// ShipOrder moves a paid order to shipped. Admin only.
func (s *checkoutService) ShipOrder(ctx context.Context, user *domain.User, orderID uuid.UUID, trackingNumber string) (*domain.Order, error) {
	return s.adminTransition(ctx, user, orderID, "shipped", func(order *domain.Order) error {
		return order.Ship(trackingNumber, s.now())
	}, domain.EventOrderShipped)
}

// DeliverOrder moves a shipped order to delivered. Admin only.
func (s *checkoutService) DeliverOrder(ctx context.Context, user *domain.User, orderID uuid.UUID) (*domain.Order, error) {
	return s.adminTransition(ctx, user, orderID, "delivered", func(order *domain.Order) error {
		return order.Deliver(s.now())
	}, domain.EventOrderDelivered)
}

func (s *checkoutService) adminTransition(ctx context.Context, user *domain.User, orderID uuid.UUID, comment string, apply func(*domain.Order) error, eventType string) (*domain.Order, error) {
	if err := requireAdmin(user); err != nil {
		return nil, err
	}

	var order *domain.Order
	err := s.store.WithTx(ctx, func(repos repository.Repositories) error {
		var err error
		order, err = repos.Orders.FindByIDForUpdate(ctx, orderID)
		if err != nil {
			return err
		}
		return s.transition(ctx, repos, order, comment, func() error { return apply(order) }, eventType)
	})
	if err != nil {
		return nil, err
	}

	s.metrics.OrderTransitioned(order.Status())
	return order, nil
}

// transition applies a status change in memory, then persists it with a
// compare-and-swap on the previous status and queues eventType
func (s *checkoutService) transition(ctx context.Context, repos repository.Repositories, order *domain.Order, comment string, apply func() error, eventType string) error {
	from := order.Status()
	if err := apply(); err != nil {
		return err
	}
	if err := repos.Orders.UpdateStatus(ctx, order, from, comment); err != nil {
		return err
	}
	return s.publish(ctx, repos, order, eventType)
}

// GetOrder returns an order its owner or an admin may see
func (s *checkoutService) GetOrder(ctx context.Context, user *domain.User, orderID uuid.UUID) (*domain.Order, error) {
	order, err := s.store.Repositories().Orders.FindByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if err := s.authorizeRead(user, order); err != nil {
		return nil, err
	}
	return order, nil
}

// ListOrders pages through the user's orders, newest first
func (s *checkoutService) ListOrders(ctx context.Context, user *domain.User, limit, offset uint64) ([]*domain.Order, error) {
	if user == nil {
		return nil, domain.ErrUnauthenticated
	}
	if user.IsAdmin() {
		return s.store.Repositories().Orders.List(ctx, limit, offset)
	}
	return s.store.Repositories().Orders.FindByUserID(ctx, user.ID, limit, offset)
}

// OrderHistory lists the statuses an order went through, oldest first
func (s *checkoutService) OrderHistory(ctx context.Context, user *domain.User, orderID uuid.UUID) ([]domain.OrderHistoryEntry, error) {
	if _, err := s.GetOrder(ctx, user, orderID); err != nil {
		return nil, err
	}
	return s.store.Repositories().Orders.History(ctx, orderID)
}

// Payments lists the charges and refunds recorded against an order
func (s *checkoutService) Payments(ctx context.Context, user *domain.User, orderID uuid.UUID) ([]*domain.PaymentTransaction, error) {
	if _, err := s.GetOrder(ctx, user, orderID); err != nil {
		return nil, err
	}
	return s.store.Repositories().Payments.FindByOrderID(ctx, orderID)
}

// RestockProduct replaces a product's stock count. Admin only.
func (s *checkoutService) RestockProduct(ctx context.Context, user *domain.User, productID uuid.UUID, stock int) (*domain.Product, error) {
	if err := requireAdmin(user); err != nil {
		return nil, err
	}

	var product *domain.Product
	err := s.store.WithTx(ctx, func(repos repository.Repositories) error {
		products, err := repos.Products.FindByIDsForUpdate(ctx, []uuid.UUID{productID})
		if err != nil {
			return err
		}
		var ok bool
		if product, ok = products[productID]; !ok {
			return domain.ErrProductNotFound
		}
		if err := product.UpdateStock(stock); err != nil {
			return err
		}
		return repos.Products.Update(ctx, product)
	})
	if err != nil {
		return nil, err
	}
	return product, nil
}

func (s *checkoutService) recordPayment(ctx context.Context, repos repository.Repositories, order *domain.Order, kind domain.PaymentKind, method string, result *domain.PaymentResult) error {
	return repos.Payments.Create(ctx, domain.NewPaymentTransaction(order.ID, kind, method, result))
}

func (s *checkoutService) publish(ctx context.Context, repos repository.Repositories, order *domain.Order, eventTypes ...string) error {
	events, err := newEvents(order, eventTypes...)
	if err != nil {
		return err
	}
	return repos.Outbox.Insert(ctx, events...)
}

func (s *checkoutService) publishRefund(ctx context.Context, repos repository.Repositories, order *domain.Order, result *domain.PaymentResult) error {
	event, err := domain.NewEvent(domain.EventPaymentRefunded, order.ID, domain.RefundEventPayload{
		OrderID:       order.ID,
		TransactionID: result.TransactionID,
		Amount:        result.Amount,
	})
	if err != nil {
		return err
	}
	return repos.Outbox.Insert(ctx, event)
}

// chargeMethod is the method of the last successful charge
func chargeMethod(transactions []*domain.PaymentTransaction) string {
	method := ""
	for _, tx := range transactions {
		if tx.Kind == domain.PaymentKindCharge && tx.Success {
			method = tx.Method
		}
	}
	return method
}
