package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"storefront/internal/domain"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const idempotencyConstraint = "uq_orders_idempotency_key"

// OrderRepository persists orders, their items and their status history.
// Loaded items carry no Product; callers attach locked products when they need stock.
type OrderRepository interface {
	Create(ctx context.Context, order *domain.Order) error
	FindByID(ctx context.Context, id uuid.UUID) (*domain.Order, error)
	FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*domain.Order, error)
	FindByUserID(ctx context.Context, userID uuid.UUID, limit, offset uint64) ([]*domain.Order, error)
	List(ctx context.Context, limit, offset uint64) ([]*domain.Order, error)
	FindByIdempotencyKey(ctx context.Context, userID uuid.UUID, key string) (*domain.Order, error)
	UpdateStatus(ctx context.Context, order *domain.Order, from domain.OrderStatus, comment string) error
	History(ctx context.Context, orderID uuid.UUID) ([]domain.OrderHistoryEntry, error)
}

type orderRepository struct {
	db DBTX
}

// NewOrderRepository creates a new instance of OrderRepository
func NewOrderRepository(db DBTX) OrderRepository {
	return &orderRepository{db: db}
}

var orderColumns = []string{
	"id", "user_id", "status", "total", "currency", "payment_reference",
	"tracking_number", "idempotency_key", "created_at", "updated_at",
}

// Create inserts the order, its items and the first history entry. Call it inside a transaction.
func (r *orderRepository) Create(ctx context.Context, order *domain.Order) error {
	key := sql.NullString{String: order.IdempotencyKey, Valid: order.IdempotencyKey != ""}

	_, err := exec(ctx, r.db, psql.Insert("orders").
		Columns(orderColumns...).
		Values(order.ID, order.UserID, string(order.Status()), order.Total().Amount(), order.Total().Currency(),
			order.PaymentReference, order.TrackingNumber, key, order.CreatedAt, order.UpdatedAt))
	if err != nil {
		if isUniqueViolation(err, idempotencyConstraint) {
			return ErrDuplicateIdempotencyKey
		}
		return fmt.Errorf("failed to create order: %w", err)
	}

	insert := psql.Insert("order_items").
		Columns("id", "order_id", "product_id", "product_name", "quantity", "price", "currency", "position")
	for i, item := range order.Items {
		insert = insert.Values(item.ID, order.ID, item.ProductID, item.ProductName, item.Quantity,
			item.Price.Amount(), item.Price.Currency(), i)
	}
	if _, err := exec(ctx, r.db, insert); err != nil {
		return fmt.Errorf("failed to create order items: %w", err)
	}

	return r.appendHistory(ctx, order.ID, order.Status(), "order created", order.CreatedAt)
}

// FindByID retrieves an order with its items
func (r *orderRepository) FindByID(ctx context.Context, id uuid.UUID) (*domain.Order, error) {
	return r.findOne(ctx, sq.Eq{"id": id}, false)
}

// FindByIDForUpdate locks the order row for the rest of the transaction
func (r *orderRepository) FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*domain.Order, error) {
	return r.findOne(ctx, sq.Eq{"id": id}, true)
}

func (r *orderRepository) FindByIdempotencyKey(ctx context.Context, userID uuid.UUID, key string) (*domain.Order, error) {
	return r.findOne(ctx, sq.Eq{"user_id": userID, "idempotency_key": key}, false)
}

// FindByUserID lists the user's orders, newest first
func (r *orderRepository) FindByUserID(ctx context.Context, userID uuid.UUID, limit, offset uint64) ([]*domain.Order, error) {
	return r.list(ctx, sq.Eq{"user_id": userID}, limit, offset)
}

// List pages through every order, newest first
func (r *orderRepository) List(ctx context.Context, limit, offset uint64) ([]*domain.Order, error) {
	return r.list(ctx, nil, limit, offset)
}

func (r *orderRepository) list(ctx context.Context, where sq.Sqlizer, limit, offset uint64) ([]*domain.Order, error) {
	rows, err := query(ctx, r.db, psql.Select(orderColumns...).
		From("orders").
		Where(where).
		OrderBy("created_at DESC", "id").
		Limit(limit).
		Offset(offset))
	if err != nil {
		return nil, fmt.Errorf("failed to list orders: %w", err)
	}
	defer rows.Close()

	orders := []*domain.Order{}
	byID := map[uuid.UUID]*domain.Order{}
	for rows.Next() {
		order, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan order: %w", err)
		}
		orders = append(orders, order)
		byID[order.ID] = order
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating orders: %w", err)
	}

	if err := r.attachItems(ctx, byID); err != nil {
		return nil, err
	}
	return orders, nil
}

func (r *orderRepository) findOne(ctx context.Context, where sq.Eq, lock bool) (*domain.Order, error) {
	b := psql.Select(orderColumns...).From("orders").Where(where)
	if lock {
		b = b.Suffix("FOR UPDATE")
	}

	row, err := queryRow(ctx, r.db, b)
	if err != nil {
		return nil, err
	}

	order, err := scanOrder(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrOrderNotFound
		}
		return nil, fmt.Errorf("failed to find order: %w", err)
	}

	if err := r.attachItems(ctx, map[uuid.UUID]*domain.Order{order.ID: order}); err != nil {
		return nil, err
	}
	return order, nil
}

func scanOrder(row rowScanner) (*domain.Order, error) {
	var (
		id, userID           uuid.UUID
		status, currency     string
		total                decimal.Decimal
		paymentRef, tracking string
		key                  sql.NullString
		createdAt, updatedAt time.Time
	)
	if err := row.Scan(&id, &userID, &status, &total, &currency, &paymentRef, &tracking, &key, &createdAt, &updatedAt); err != nil {
		return nil, err
	}

	orderStatus, err := domain.ParseOrderStatus(status)
	if err != nil {
		return nil, err
	}
	money, err := domain.NewMoney(total, currency)
	if err != nil {
		return nil, err
	}

	order := domain.RestoreOrder(id, userID, nil, orderStatus, money, createdAt, updatedAt)
	order.PaymentReference = paymentRef
	order.TrackingNumber = tracking
	order.IdempotencyKey = key.String
	return order, nil
}

func (r *orderRepository) attachItems(ctx context.Context, orders map[uuid.UUID]*domain.Order) error {
	if len(orders) == 0 {
		return nil
	}
	ids := make([]uuid.UUID, 0, len(orders))
	for id := range orders {
		ids = append(ids, id)
	}

	rows, err := query(ctx, r.db, psql.Select("id", "order_id", "product_id", "product_name", "quantity", "price", "currency").
		From("order_items").
		Where(sq.Eq{"order_id": ids}).
		OrderBy("order_id", "position"))
	if err != nil {
		return fmt.Errorf("failed to load order items: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			item     domain.OrderItem
			orderID  uuid.UUID
			price    decimal.Decimal
			currency string
		)
		if err := rows.Scan(&item.ID, &orderID, &item.ProductID, &item.ProductName, &item.Quantity, &price, &currency); err != nil {
			return fmt.Errorf("failed to scan order item: %w", err)
		}
		if item.Price, err = domain.NewMoney(price, currency); err != nil {
			return err
		}
		order := orders[orderID]
		order.Items = append(order.Items, item)
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("error iterating order items: %w", err)
	}
	return nil
}

// UpdateStatus writes order's new status only if the stored status is still from,
// then records the transition. A lost race surfaces as ErrInvalidOrderState.
func (r *orderRepository) UpdateStatus(ctx context.Context, order *domain.Order, from domain.OrderStatus, comment string) error {
	result, err := exec(ctx, r.db, psql.Update("orders").
		Set("status", string(order.Status())).
		Set("payment_reference", order.PaymentReference).
		Set("tracking_number", order.TrackingNumber).
		Set("updated_at", order.UpdatedAt).
		Where(sq.Eq{"id": order.ID, "status": string(from)}))
	if err != nil {
		return fmt.Errorf("failed to update order status: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("%w: order %s is no longer %s", domain.ErrInvalidOrderState, order.ID, from)
	}

	return r.appendHistory(ctx, order.ID, order.Status(), comment, order.UpdatedAt)
}

func (r *orderRepository) appendHistory(ctx context.Context, orderID uuid.UUID, status domain.OrderStatus, comment string, at time.Time) error {
	_, err := exec(ctx, r.db, psql.Insert("order_status_history").
		Columns("id", "order_id", "status", "comment", "created_at").
		Values(uuid.New(), orderID, string(status), comment, at))
	if err != nil {
		return fmt.Errorf("failed to record order history: %w", err)
	}
	return nil
}

// History lists the statuses the order went through, oldest first
func (r *orderRepository) History(ctx context.Context, orderID uuid.UUID) ([]domain.OrderHistoryEntry, error) {
	rows, err := query(ctx, r.db, psql.Select("id", "order_id", "status", "comment", "created_at").
		From("order_status_history").
		Where(sq.Eq{"order_id": orderID}).
		OrderBy("created_at", "id"))
	if err != nil {
		return nil, fmt.Errorf("failed to load order history: %w", err)
	}
	defer rows.Close()

	entries := []domain.OrderHistoryEntry{}
	for rows.Next() {
		var entry domain.OrderHistoryEntry
		var status string
		if err := rows.Scan(&entry.ID, &entry.OrderID, &status, &entry.Comment, &entry.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan order history: %w", err)
		}
		entry.Status = domain.OrderStatus(status)
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating order history: %w", err)
	}
	return entries, nil
}
