// Package reorder provides per (item, location) reorder thresholds and the
// low-stock monitor.
package reorder

import (
	"context"
	"time"

	"larder/internal/core/apperror"
	"larder/internal/core/id"
	"larder/internal/core/types"
)

// Setting holds the reorder parameters for one (item, location) pair.
// Unique on (item, location); mutated administratively.
type Setting struct {
	ID         id.ID `db:"id" json:"id"`
	ItemID     id.ID `db:"item_id" json:"itemId"`
	LocationID id.ID `db:"location_id" json:"locationId"`

	ReorderPoint      types.Quantity `db:"reorder_point" json:"reorderPoint"`
	ReorderQty        types.Quantity `db:"reorder_qty" json:"reorderQty"`
	LeadTimeDays      int            `db:"lead_time_days" json:"leadTimeDays"`
	LowStockThreshold types.Quantity `db:"low_stock_threshold" json:"lowStockThreshold"`

	CreatedAt time.Time `db:"created_at" json:"createdAt"`
	UpdatedAt time.Time `db:"updated_at" json:"updatedAt"`
}

// NewSetting creates a reorder setting for an item at a location.
func NewSetting(itemID, locationID id.ID) *Setting {
	now := time.Now().UTC()
	return &Setting{
		ID:         id.New(),
		ItemID:     itemID,
		LocationID: locationID,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}

// Validate checks required fields.
func (s *Setting) Validate(ctx context.Context) error {
	if id.IsNil(s.ItemID) {
		return apperror.NewValidation("item is required").WithDetail("field", "itemId")
	}
	if id.IsNil(s.LocationID) {
		return apperror.NewValidation("location is required").WithDetail("field", "locationId")
	}
	if s.ReorderPoint.IsNegative() || s.LowStockThreshold.IsNegative() {
		return apperror.NewValidation("thresholds cannot be negative")
	}
	if s.LeadTimeDays < 0 {
		return apperror.NewValidation("lead time cannot be negative").
			WithDetail("field", "leadTimeDays")
	}
	return nil
}

// Repository defines persistence operations for reorder settings.
type Repository interface {
	// Upsert inserts or replaces the setting for (item, location).
	Upsert(ctx context.Context, s *Setting) error

	Get(ctx context.Context, itemID, locationID id.ID) (*Setting, error)

	// List returns settings, optionally filtered to the given items.
	List(ctx context.Context, itemIDs []id.ID) ([]*Setting, error)

	// TrackedItemIDs returns the distinct item ids that have any setting.
	TrackedItemIDs(ctx context.Context) ([]id.ID, error)
}
