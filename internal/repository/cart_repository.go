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
)

// CartRepository persists one cart per user together with its items
type CartRepository interface {
	FindByID(ctx context.Context, id uuid.UUID) (*domain.Cart, error)
	FindByUserID(ctx context.Context, userID uuid.UUID) (*domain.Cart, error)
	FindByUserIDForUpdate(ctx context.Context, userID uuid.UUID) (*domain.Cart, error)
	FindOrCreateForUpdate(ctx context.Context, userID uuid.UUID) (*domain.Cart, error)
	Save(ctx context.Context, cart *domain.Cart) error
	Delete(ctx context.Context, cartID uuid.UUID) error
}

type cartRepository struct {
	db DBTX
}

// NewCartRepository creates a new instance of CartRepository
func NewCartRepository(db DBTX) CartRepository {
	return &cartRepository{db: db}
}

func (r *cartRepository) FindByID(ctx context.Context, id uuid.UUID) (*domain.Cart, error) {
	return r.find(ctx, sq.Eq{"id": id}, false)
}

// FindByUserID loads the user's cart with its items and their current products
func (r *cartRepository) FindByUserID(ctx context.Context, userID uuid.UUID) (*domain.Cart, error) {
	return r.find(ctx, sq.Eq{"user_id": userID}, false)
}

// FindByUserIDForUpdate is FindByUserID plus a row lock on the cart,
// serializing concurrent mutations of the same cart
func (r *cartRepository) FindByUserIDForUpdate(ctx context.Context, userID uuid.UUID) (*domain.Cart, error) {
	return r.find(ctx, sq.Eq{"user_id": userID}, true)
}

// FindOrCreateForUpdate creates an empty cart if the user has none and locks it
func (r *cartRepository) FindOrCreateForUpdate(ctx context.Context, userID uuid.UUID) (*domain.Cart, error) {
	now := time.Now().UTC()
	_, err := exec(ctx, r.db, psql.Insert("carts").
		Columns("id", "user_id", "created_at", "updated_at").
		Values(uuid.New(), userID, now, now).
		Suffix("ON CONFLICT (user_id) DO NOTHING"))
	if err != nil {
		return nil, fmt.Errorf("failed to create cart: %w", err)
	}
	return r.find(ctx, sq.Eq{"user_id": userID}, true)
}

func (r *cartRepository) find(ctx context.Context, where sq.Eq, lock bool) (*domain.Cart, error) {
	b := psql.Select("id", "user_id", "created_at", "updated_at").
		From("carts").
		Where(where)
	if lock {
		b = b.Suffix("FOR UPDATE")
	}

	row, err := queryRow(ctx, r.db, b)
	if err != nil {
		return nil, err
	}

	var (
		id, owner            uuid.UUID
		createdAt, updatedAt time.Time
	)
	if err := row.Scan(&id, &owner, &createdAt, &updatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrCartNotFound
		}
		return nil, fmt.Errorf("failed to find cart: %w", err)
	}

	items, err := r.items(ctx, id)
	if err != nil {
		return nil, err
	}
	return domain.RestoreCart(id, owner, items, createdAt, updatedAt), nil
}

func (r *cartRepository) items(ctx context.Context, cartID uuid.UUID) ([]*domain.CartItem, error) {
	rows, err := query(ctx, r.db, psql.Select(append(productColumns, "ci.quantity")...).
		From("cart_items ci").
		Join("products p ON p.id = ci.product_id").
		Where(sq.Eq{"ci.cart_id": cartID}).
		OrderBy("ci.position"))
	if err != nil {
		return nil, fmt.Errorf("failed to load cart items: %w", err)
	}
	defer rows.Close()

	var items []*domain.CartItem
	for rows.Next() {
		var quantity int
		product, err := scanProduct(rows, &quantity)
		if err != nil {
			return nil, fmt.Errorf("failed to scan cart item: %w", err)
		}
		items = append(items, &domain.CartItem{Product: product, Quantity: quantity})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating cart items: %w", err)
	}
	return items, nil
}

// Save upserts the cart row and replaces its items. Call it inside a transaction.
func (r *cartRepository) Save(ctx context.Context, cart *domain.Cart) error {
	_, err := exec(ctx, r.db, psql.Insert("carts").
		Columns("id", "user_id", "created_at", "updated_at").
		Values(cart.ID, cart.UserID, cart.CreatedAt, cart.UpdatedAt).
		Suffix("ON CONFLICT (id) DO UPDATE SET updated_at = EXCLUDED.updated_at"))
	if err != nil {
		return fmt.Errorf("failed to save cart: %w", err)
	}

	if _, err := exec(ctx, r.db, psql.Delete("cart_items").Where(sq.Eq{"cart_id": cart.ID})); err != nil {
		return fmt.Errorf("failed to clear cart items: %w", err)
	}

	items := cart.Items()
	if len(items) == 0 {
		return nil
	}

	insert := psql.Insert("cart_items").Columns("cart_id", "product_id", "quantity", "position")
	for i, item := range items {
		insert = insert.Values(cart.ID, item.Product.ID, item.Quantity, i)
	}
	if _, err := exec(ctx, r.db, insert); err != nil {
		return fmt.Errorf("failed to save cart items: %w", err)
	}
	return nil
}

// Delete removes the cart; items go with it
func (r *cartRepository) Delete(ctx context.Context, cartID uuid.UUID) error {
	result, err := exec(ctx, r.db, psql.Delete("carts").Where(sq.Eq{"id": cartID}))
	if err != nil {
		return fmt.Errorf("failed to delete cart: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return domain.ErrCartNotFound
	}
	return nil
}
