package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// CartItem is a product and the quantity the user wants of it
type CartItem struct {
	Product  *Product
	Quantity int
}

// NewCartItem validates quantity against the product's stock at this moment
func NewCartItem(product *Product, quantity int) (*CartItem, error) {
	if err := checkQuantity(product, quantity); err != nil {
		return nil, err
	}
	return &CartItem{Product: product, Quantity: quantity}, nil
}

func checkQuantity(product *Product, quantity int) error {
	if product == nil {
		return ErrProductNotFound
	}
	if quantity <= 0 {
		return ErrInvalidQuantity
	}
	if !product.HasStock(quantity) {
		return &InsufficientStockError{ProductID: product.ID, Requested: quantity, Available: product.Stock}
	}
	return nil
}

// Total is unit price times quantity
func (i *CartItem) Total() (Money, error) {
	return i.Product.Price.Multiply(decimal.NewFromInt(int64(i.Quantity)))
}

func (i *CartItem) updateQuantity(quantity int) error {
	if err := checkQuantity(i.Product, quantity); err != nil {
		return err
	}
	i.Quantity = quantity
	return nil
}

// Cart is a user's mutable pre-purchase staging list.
// It holds at most one item per product.
type Cart struct {
	ID        uuid.UUID
	UserID    uuid.UUID
	items     []*CartItem
	CreatedAt time.Time
	UpdatedAt time.Time
}

// NewCart creates an empty cart for the user
func NewCart(userID uuid.UUID) *Cart {
	now := time.Now().UTC()
	return &Cart{
		ID:        uuid.New(),
		UserID:    userID,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// RestoreCart rebuilds a cart from persisted state without re-validating stock
func RestoreCart(id, userID uuid.UUID, items []*CartItem, createdAt, updatedAt time.Time) *Cart {
	return &Cart{
		ID:        id,
		UserID:    userID,
		items:     append([]*CartItem(nil), items...),
		CreatedAt: createdAt,
		UpdatedAt: updatedAt,
	}
}

// Items returns a copy of the item list
func (c *Cart) Items() []*CartItem {
	return append([]*CartItem(nil), c.items...)
}

func (c *Cart) IsEmpty() bool {
	return len(c.items) == 0
}

// ProductIDs lists the distinct products in the cart, in item order
func (c *Cart) ProductIDs() []uuid.UUID {
	ids := make([]uuid.UUID, 0, len(c.items))
	for _, item := range c.items {
		ids = append(ids, item.Product.ID)
	}
	return ids
}

func (c *Cart) find(productID uuid.UUID) (int, *CartItem) {
	for i, item := range c.items {
		if item.Product.ID == productID {
			return i, item
		}
	}
	return -1, nil
}

// AddItem adds quantity of product, merging with an existing line.
// Stock is checked against the merged quantity; on failure the cart is unchanged.
func (c *Cart) AddItem(product *Product, quantity int) error {
	if product == nil {
		return ErrProductNotFound
	}
	if quantity <= 0 {
		return ErrInvalidQuantity
	}

	if _, existing := c.find(product.ID); existing != nil {
		merged := existing.Quantity + quantity
		if err := checkQuantity(product, merged); err != nil {
			return err
		}
		existing.Product = product
		existing.Quantity = merged
	} else {
		item, err := NewCartItem(product, quantity)
		if err != nil {
			return err
		}
		c.items = append(c.items, item)
	}

	c.touch()
	return nil
}

// RemoveItem drops the line for productID; absent products are ignored
func (c *Cart) RemoveItem(productID uuid.UUID) {
	i, item := c.find(productID)
	if item == nil {
		return
	}
	c.items = append(c.items[:i], c.items[i+1:]...)
	c.touch()
}

// UpdateItemQuantity replaces the quantity of an existing line
func (c *Cart) UpdateItemQuantity(productID uuid.UUID, quantity int) error {
	_, item := c.find(productID)
	if item == nil {
		return ErrItemNotFound
	}
	if err := item.updateQuantity(quantity); err != nil {
		return err
	}
	c.touch()
	return nil
}

// RefreshProducts swaps item products for freshly loaded ones so later
// stock checks see current counts. Missing products fail with ErrProductNotFound.
func (c *Cart) RefreshProducts(products map[uuid.UUID]*Product) error {
	for _, item := range c.items {
		fresh, ok := products[item.Product.ID]
		if !ok {
			return ErrProductNotFound
		}
		item.Product = fresh
	}
	return nil
}

// Clear empties the cart
func (c *Cart) Clear() {
	c.items = nil
	c.touch()
}

// Total sums item totals. It is recomputed on every call.
func (c *Cart) Total() (Money, error) {
	if len(c.items) == 0 {
		return Zero(DefaultCurrency), nil
	}

	total := Zero(c.items[0].Product.Price.Currency())
	for _, item := range c.items {
		itemTotal, err := item.Total()
		if err != nil {
			return Money{}, err
		}
		total, err = total.Add(itemTotal)
		if err != nil {
			return Money{}, err
		}
	}
	return total, nil
}

func (c *Cart) touch() {
	c.UpdatedAt = time.Now().UTC()
}
