package models

import (
	"time"

	"github.com/lib/pq"
	"github.com/shopspring/decimal"
)

// Product represents a sellable catalog entry
type Product struct {
	ID          string          `db:"id" json:"id"`
	Name        string          `db:"name" json:"name"`
	Description string          `db:"description" json:"description"`
	Price       decimal.Decimal `db:"price" json:"price"`
	Image       string          `db:"image" json:"image"`
	Images      pq.StringArray  `db:"images" json:"images"`
	Category    string          `db:"category" json:"category"`
	Brand       string          `db:"brand" json:"brand"`
	Stock       int             `db:"stock" json:"stock"`
	Available   bool            `db:"available" json:"available"`
	CreatedAt   time.Time       `db:"created_at" json:"createdAt"`
	UpdatedAt   time.Time       `db:"updated_at" json:"updatedAt"`
}

// SetStock clamps stock at zero and recomputes availability from it.
func (p *Product) SetStock(stock int) {
	if stock < 0 {
		stock = 0
	}
	p.Stock = stock
	p.Available = stock > 0
}

// Purchasable reports whether the product can be put in a cart.
func (p *Product) Purchasable() bool {
	return p.Available && p.Stock > 0
}

// IsLowStock reports whether stock is at or below the given threshold.
func (p *Product) IsLowStock(threshold int) bool {
	return p.Stock <= threshold
}

// ProductPatch carries the fields of a partial product update; nil means unchanged
type ProductPatch struct {
	Name        *string          `json:"name"`
	Description *string          `json:"description"`
	Price       *decimal.Decimal `json:"price"`
	Image       *string          `json:"image"`
	Images      *[]string        `json:"images"`
	Category    *string          `json:"category"`
	Brand       *string          `json:"brand"`
	Stock       *int             `json:"stock"`
	Available   *bool            `json:"available"`
}

// Empty reports whether the patch changes nothing.
func (p ProductPatch) Empty() bool {
	return p.Name == nil && p.Description == nil && p.Price == nil && p.Image == nil &&
		p.Images == nil && p.Category == nil && p.Brand == nil && p.Stock == nil && p.Available == nil
}

// ProductFilter narrows a product listing
type ProductFilter struct {
	Category  string
	Brand     string
	Available *bool
}

// Category is a product grouping whose id is the slug of its label
type Category struct {
	ID        string    `db:"id" json:"id"`
	Label     string    `db:"label" json:"label"`
	CreatedAt time.Time `db:"created_at" json:"createdAt"`
	UpdatedAt time.Time `db:"updated_at" json:"updatedAt"`
}

// Brand is a product manufacturer
type Brand struct {
	ID        string    `db:"id" json:"id"`
	Name      string    `db:"name" json:"name"`
	CreatedAt time.Time `db:"created_at" json:"createdAt"`
	UpdatedAt time.Time `db:"updated_at" json:"updatedAt"`
}
