package item

import (
	"context"
	"time"

	"larder/internal/core/id"
	"larder/internal/core/types"
)

// Repository defines persistence operations for the item catalog.
type Repository interface {
	Create(ctx context.Context, it *Item) error

	GetByID(ctx context.Context, itemID id.ID) (*Item, error)

	// GetForUpdate returns the item with a row lock. The coordinator holds
	// this lock for the read-recompute-write sequence so two concurrent
	// writers cannot both act on a stale current quantity.
	GetForUpdate(ctx context.Context, itemID id.ID) (*Item, error)

	List(ctx context.Context, filter ListFilter) ([]*Item, error)

	// UpdateCachedQuantity persists the recomputed ledger aggregate.
	// restockedAt is set only for genuine receipts.
	UpdateCachedQuantity(ctx context.Context, itemID id.ID, qty types.Quantity, restockedAt *time.Time) error
}

// ListFilter narrows item listings.
type ListFilter struct {
	IDs      []id.ID
	Category string
	Name     string // substring match
	Limit    int
	Offset   int
}
