package inventory

import (
	"context"
	"time"

	"larder/internal/core/id"
	"larder/internal/core/types"
)

// Action classifies a coordinator mutation for the audit trail.
type Action string

const (
	ActionReceive  Action = "receive"
	ActionConsume  Action = "consume"
	ActionAdjust   Action = "adjust"
	ActionTransfer Action = "transfer"
)

// Activity is one audit-trail entry describing a coordinator mutation:
// what changed, by how much, and what the cached quantity was before and
// after. Recorded inside the inventory transaction; a recording failure is
// logged and never fails the operation.
type Activity struct {
	ID          id.ID          `db:"id"`
	ItemID      id.ID          `db:"item_id"`
	OperationID id.ID          `db:"operation_id"`
	Action      Action         `db:"action"`
	QtyChange   types.Quantity `db:"qty_change"`
	PreviousQty types.Quantity `db:"previous_qty"`
	NewQty      types.Quantity `db:"new_qty"`
	Reason      string         `db:"reason"`
	ActorID     *id.ID         `db:"actor_id"`
	Metadata    map[string]any `db:"-"`
	CreatedAt   time.Time      `db:"created_at"`
}

// ActivityRecorder persists audit-trail entries.
type ActivityRecorder interface {
	Record(ctx context.Context, entry Activity) error
}

// NopActivityRecorder discards entries. Used when no trail is configured.
type NopActivityRecorder struct{}

// Record implements ActivityRecorder.
func (NopActivityRecorder) Record(ctx context.Context, entry Activity) error { return nil }
