// Package batch provides the batch catalog: receivable lots of an item.
// Batches are created at receipt time and never mutated afterwards; their
// remaining quantity is derived from the ledger, not stored.
package batch

import (
	"context"
	"time"

	"larder/internal/core/apperror"
	"larder/internal/core/id"
	"larder/internal/core/types"
)

// Batch represents one receivable lot of an item.
type Batch struct {
	ID     id.ID `db:"id" json:"id"`
	ItemID id.ID `db:"item_id" json:"itemId"`

	LotCode    string       `db:"lot_code" json:"lotCode,omitempty"`
	ExpiryDate *time.Time   `db:"expiry_date" json:"expiryDate,omitempty"`
	ReceivedAt *time.Time   `db:"received_at" json:"receivedAt,omitempty"`
	Supplier   string       `db:"supplier" json:"supplier,omitempty"`
	UnitCost   *types.Money `db:"unit_cost" json:"unitCost,omitempty"`

	CreatedAt time.Time `db:"created_at" json:"createdAt"`
}

// Payload carries batch attributes supplied with a receipt when no existing
// batch is referenced; the coordinator synthesizes a Batch from it.
type Payload struct {
	LotCode    string       `json:"lotCode,omitempty"`
	ExpiryDate *time.Time   `json:"expiryDate,omitempty"`
	ReceivedAt *time.Time   `json:"receivedAt,omitempty"`
	Supplier   string       `json:"supplier,omitempty"`
	UnitCost   *types.Money `json:"unitCost,omitempty"`
}

// NewFromPayload builds a batch for an item from a receipt payload.
// A missing received timestamp defaults to the operation time.
func NewFromPayload(itemID id.ID, p Payload, now time.Time) *Batch {
	receivedAt := p.ReceivedAt
	if receivedAt == nil {
		t := now
		receivedAt = &t
	}
	return &Batch{
		ID:         id.New(),
		ItemID:     itemID,
		LotCode:    p.LotCode,
		ExpiryDate: p.ExpiryDate,
		ReceivedAt: receivedAt,
		Supplier:   p.Supplier,
		UnitCost:   p.UnitCost,
		CreatedAt:  now,
	}
}

// Validate checks required fields.
func (b *Batch) Validate(ctx context.Context) error {
	if id.IsNil(b.ItemID) {
		return apperror.NewValidation("batch item is required").
			WithDetail("field", "itemId")
	}
	if b.UnitCost != nil && b.UnitCost.IsNegative() {
		return apperror.NewValidation("unit cost cannot be negative").
			WithDetail("field", "unitCost")
	}
	return nil
}
