// Package ledger provides the append-only movement ledger: the single
// source of truth for stock quantities. Every quantity change is an
// immutable signed movement; current stock is the sum of movements.
package ledger

import (
	"time"

	"larder/internal/core/id"
	"larder/internal/core/types"
)

// Kind classifies a stock movement.
type Kind string

const (
	KindReceipt     Kind = "RECEIPT"
	KindSale        Kind = "SALE"
	KindAdjustment  Kind = "ADJUSTMENT"
	KindWaste       Kind = "WASTE"
	KindTransferIn  Kind = "TRANSFER_IN"
	KindTransferOut Kind = "TRANSFER_OUT"
	KindReturn      Kind = "RETURN"
)

// ValidKind reports whether k is a known movement kind.
func ValidKind(k Kind) bool {
	switch k {
	case KindReceipt, KindSale, KindAdjustment, KindWaste,
		KindTransferIn, KindTransferOut, KindReturn:
		return true
	}
	return false
}

// Movement is one immutable signed quantity event.
//
// Movements are created once by the transaction coordinator and never
// updated or deleted. Qty is signed and never zero. EffectiveAt is the
// business date (may be backdated); RecordedAt is the wall-clock insertion
// time, monotonic with respect to insertion order.
type Movement struct {
	ID id.ID `db:"id" json:"id"`

	// OperationID groups the movements written by one coordinator call
	// (e.g. the OUT/IN pairs of a transfer, the per-batch rows of a
	// consumption). Idempotent replays resolve the operation through it.
	OperationID id.ID `db:"operation_id" json:"operationId"`

	ItemID     id.ID  `db:"item_id" json:"itemId"`
	LocationID id.ID  `db:"location_id" json:"locationId"`
	BatchID    *id.ID `db:"batch_id" json:"batchId,omitempty"` // nil = unbatched stock

	Kind Kind           `db:"kind" json:"kind"`
	Qty  types.Quantity `db:"qty" json:"qty"`

	EffectiveAt time.Time `db:"effective_at" json:"effectiveAt"`
	RecordedAt  time.Time `db:"recorded_at" json:"recordedAt"`

	ActorID *id.ID `db:"actor_id" json:"actorId,omitempty"`

	ReferenceKind string `db:"reference_kind" json:"referenceKind,omitempty"`
	ReferenceID   string `db:"reference_id" json:"referenceId,omitempty"`
	Reason        string `db:"reason" json:"reason,omitempty"`

	// IdempotencyKey is set on the lead movement of an operation when the
	// caller supplied one; unique when present.
	IdempotencyKey *string `db:"idempotency_key" json:"idempotencyKey,omitempty"`
}
