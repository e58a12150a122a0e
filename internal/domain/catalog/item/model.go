// Package item provides the stocked item catalog.
package item

import (
	"context"
	"time"

	"larder/internal/core/apperror"
	"larder/internal/core/id"
	"larder/internal/core/types"
)

// Item represents a stocked good.
//
// Quantity is a denormalized cache of the ledger-derived total across all
// locations, rounded to 2 decimal places. It is written only by the
// transaction coordinator from a post-write aggregate recomputation; it is
// never an independent source of truth.
type Item struct {
	ID       id.ID  `db:"id" json:"id"`
	Name     string `db:"name" json:"name"`
	Category string `db:"category" json:"category,omitempty"`
	Unit     string `db:"unit" json:"unit,omitempty"`
	Supplier string `db:"supplier" json:"supplier,omitempty"`

	Quantity types.Quantity `db:"quantity" json:"quantity"`
	MinStock types.Quantity `db:"min_stock" json:"minStock"`

	LastRestocked *time.Time `db:"last_restocked" json:"lastRestocked,omitempty"`
	CreatedAt     time.Time  `db:"created_at" json:"createdAt"`
	UpdatedAt     time.Time  `db:"updated_at" json:"updatedAt"`
}

// NewItem creates a new catalog item.
func NewItem(name, unit string) *Item {
	now := time.Now().UTC()
	return &Item{
		ID:        id.New(),
		Name:      name,
		Unit:      unit,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Validate checks required fields.
func (i *Item) Validate(ctx context.Context) error {
	if i.Name == "" {
		return apperror.NewValidation("item name is required").
			WithDetail("field", "name")
	}
	if i.Quantity.IsNegative() {
		return apperror.NewValidation("item quantity cannot be negative").
			WithDetail("field", "quantity")
	}
	if i.MinStock.IsNegative() {
		return apperror.NewValidation("min stock cannot be negative").
			WithDetail("field", "minStock")
	}
	return nil
}
