package domain

import (
	"time"

	"github.com/google/uuid"
)

// Product represents a product in the catalog
type Product struct {
	ID          uuid.UUID  `json:"id"`
	Name        string     `json:"name"`
	Description string     `json:"description"`
	Price       Money      `json:"price"`
	Images      []string   `json:"images"`
	CategoryID  uuid.UUID  `json:"category_id"`
	Stock       int        `json:"stock"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   *time.Time `json:"updated_at,omitempty"`
}

// HasStock reports whether the current stock covers quantity
func (p *Product) HasStock(quantity int) bool {
	return p.Stock >= quantity
}

// UpdateStock replaces the stock count
func (p *Product) UpdateStock(stock int) error {
	if stock < 0 {
		return ErrNegativeStock
	}
	now := time.Now().UTC()
	p.Stock = stock
	p.UpdatedAt = &now
	return nil
}
