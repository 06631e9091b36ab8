package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"storefront/internal/domain"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ProductRepository is the stock surface of the catalog
type ProductRepository interface {
	Create(ctx context.Context, product *domain.Product) error
	FindByID(ctx context.Context, id uuid.UUID) (*domain.Product, error)
	FindByIDs(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]*domain.Product, error)
	FindByIDsForUpdate(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]*domain.Product, error)
	Update(ctx context.Context, product *domain.Product) error
	DecrementStock(ctx context.Context, id uuid.UUID, quantity int) error
	IncrementStock(ctx context.Context, id uuid.UUID, quantity int) error
}

type productRepository struct {
	db DBTX
}

// NewProductRepository creates a new instance of ProductRepository
func NewProductRepository(db DBTX) ProductRepository {
	return &productRepository{db: db}
}

var productColumns = []string{
	"p.id", "p.name", "p.description", "p.price", "p.currency", "p.images",
	"p.category_id", "p.stock", "p.created_at", "p.updated_at",
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

// scanProduct reads productColumns plus any extra trailing destinations
func scanProduct(row rowScanner, extra ...interface{}) (*domain.Product, error) {
	var (
		product    domain.Product
		price      decimal.Decimal
		currency   string
		images     []byte
		categoryID uuid.NullUUID
		updatedAt  sql.NullTime
	)

	dest := []interface{}{
		&product.ID, &product.Name, &product.Description, &price, &currency, &images,
		&categoryID, &product.Stock, &product.CreatedAt, &updatedAt,
	}
	if err := row.Scan(append(dest, extra...)...); err != nil {
		return nil, err
	}

	money, err := domain.NewMoney(price, currency)
	if err != nil {
		return nil, fmt.Errorf("invalid price for product %s: %w", product.ID, err)
	}
	product.Price = money

	if len(images) > 0 {
		if err := json.Unmarshal(images, &product.Images); err != nil {
			return nil, fmt.Errorf("invalid images for product %s: %w", product.ID, err)
		}
	}
	if categoryID.Valid {
		product.CategoryID = categoryID.UUID
	}
	if updatedAt.Valid {
		t := updatedAt.Time
		product.UpdatedAt = &t
	}
	return &product, nil
}

// Create inserts a new product
func (r *productRepository) Create(ctx context.Context, product *domain.Product) error {
	images, err := json.Marshal(product.Images)
	if err != nil {
		return fmt.Errorf("failed to encode product images: %w", err)
	}
	if product.Images == nil {
		images = []byte("[]")
	}

	categoryID := uuid.NullUUID{UUID: product.CategoryID, Valid: product.CategoryID != uuid.Nil}

	_, err = exec(ctx, r.db, psql.Insert("products").
		Columns("id", "name", "description", "price", "currency", "images", "category_id", "stock", "created_at", "updated_at").
		Values(product.ID, product.Name, product.Description, product.Price.Amount(), product.Price.Currency(),
			string(images), categoryID, product.Stock, product.CreatedAt, product.UpdatedAt))
	if err != nil {
		return fmt.Errorf("failed to create product: %w", err)
	}
	return nil
}

// Update writes the product's price, stock and descriptive fields
func (r *productRepository) Update(ctx context.Context, product *domain.Product) error {
	images, err := json.Marshal(product.Images)
	if err != nil {
		return fmt.Errorf("failed to encode product images: %w", err)
	}
	if product.Images == nil {
		images = []byte("[]")
	}

	result, err := exec(ctx, r.db, psql.Update("products").
		Set("name", product.Name).
		Set("description", product.Description).
		Set("price", product.Price.Amount()).
		Set("currency", product.Price.Currency()).
		Set("images", string(images)).
		Set("stock", product.Stock).
		Set("updated_at", product.UpdatedAt).
		Where(sq.Eq{"id": product.ID}))
	if err != nil {
		if isCheckViolation(err, "products_stock_check") {
			return domain.ErrNegativeStock
		}
		return fmt.Errorf("failed to update product: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return domain.ErrProductNotFound
	}
	return nil
}

// FindByID retrieves a product by ID
func (r *productRepository) FindByID(ctx context.Context, id uuid.UUID) (*domain.Product, error) {
	row, err := queryRow(ctx, r.db, psql.Select(productColumns...).
		From("products p").
		Where(sq.Eq{"p.id": id}))
	if err != nil {
		return nil, err
	}

	product, err := scanProduct(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrProductNotFound
		}
		return nil, fmt.Errorf("failed to find product by ID: %w", err)
	}
	return product, nil
}

// FindByIDs loads the given products; missing ids are simply absent from the map
func (r *productRepository) FindByIDs(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]*domain.Product, error) {
	return r.findMany(ctx, ids, false)
}

// FindByIDsForUpdate row-locks the products in id order so concurrent
// checkouts over overlapping products cannot deadlock
func (r *productRepository) FindByIDsForUpdate(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]*domain.Product, error) {
	return r.findMany(ctx, ids, true)
}

func (r *productRepository) findMany(ctx context.Context, ids []uuid.UUID, lock bool) (map[uuid.UUID]*domain.Product, error) {
	products := make(map[uuid.UUID]*domain.Product, len(ids))
	if len(ids) == 0 {
		return products, nil
	}

	sorted := append([]uuid.UUID(nil), ids...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].String() < sorted[j].String() })

	b := psql.Select(productColumns...).
		From("products p").
		Where(sq.Eq{"p.id": sorted}).
		OrderBy("p.id")
	if lock {
		b = b.Suffix("FOR UPDATE")
	}

	rows, err := query(ctx, r.db, b)
	if err != nil {
		return nil, fmt.Errorf("failed to load products: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		product, err := scanProduct(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan product: %w", err)
		}
		products[product.ID] = product
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating products: %w", err)
	}
	return products, nil
}

// DecrementStock subtracts quantity only if enough stock remains.
// The check and the write are one statement, so concurrent orders cannot oversell.
func (r *productRepository) DecrementStock(ctx context.Context, id uuid.UUID, quantity int) error {
	if quantity <= 0 {
		return domain.ErrInvalidQuantity
	}

	result, err := exec(ctx, r.db, psql.Update("products").
		Set("stock", sq.Expr("stock - ?", quantity)).
		Set("updated_at", time.Now().UTC()).
		Where(sq.Eq{"id": id}).
		Where(sq.GtOrEq{"stock": quantity}))
	if err != nil {
		return fmt.Errorf("failed to decrement stock: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 1 {
		return nil
	}

	product, err := r.FindByID(ctx, id)
	if err != nil {
		return err
	}
	return &domain.InsufficientStockError{ProductID: id, Requested: quantity, Available: product.Stock}
}

// IncrementStock returns quantity to the product
func (r *productRepository) IncrementStock(ctx context.Context, id uuid.UUID, quantity int) error {
	if quantity <= 0 {
		return domain.ErrInvalidQuantity
	}

	result, err := exec(ctx, r.db, psql.Update("products").
		Set("stock", sq.Expr("stock + ?", quantity)).
		Set("updated_at", time.Now().UTC()).
		Where(sq.Eq{"id": id}))
	if err != nil {
		return fmt.Errorf("failed to increment stock: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return domain.ErrProductNotFound
	}
	return nil
}
