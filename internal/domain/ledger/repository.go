package ledger

import (
	"context"
	"time"

	"larder/internal/core/id"
	"larder/internal/core/types"
)

// Page limits protecting callers of the query surface.
const (
	LedgerMaxRows       = 1000
	ExpiringMaxRows     = 500
	ActivityDefaultPage = 50
	ActivityMaxPage     = 200
)

// Repository defines operations against the movement store.
// The table is append-only: no update or delete is ever exposed.
type Repository interface {
	// Append batch-inserts movements. Must be called inside a transaction.
	Append(ctx context.Context, movements []*Movement) error

	// SumByItem sums movement quantities per item.
	SumByItem(ctx context.Context, filter SumFilter) (map[id.ID]types.Quantity, error)

	// SumByBatch sums movement quantities per batch for one item.
	// Movements with a nil batch are excluded.
	SumByBatch(ctx context.Context, itemID id.ID, locationID *id.ID, asOf *time.Time) (map[id.ID]types.Quantity, error)

	// GetByIdempotencyKey returns the lead movement recorded under key,
	// or a NotFound error.
	GetByIdempotencyKey(ctx context.Context, key string) (*Movement, error)

	// GetByOperationID returns every movement of one coordinator call,
	// ordered by recorded time then id.
	GetByOperationID(ctx context.Context, opID id.ID) ([]*Movement, error)

	// ListLedger returns an item's movements ordered by effective time,
	// recorded time, id, capped at LedgerMaxRows.
	ListLedger(ctx context.Context, filter LedgerFilter) ([]*Movement, error)

	// ListRecent returns a reverse-chronological feed ordered by recorded
	// time desc, id desc.
	ListRecent(ctx context.Context, filter ActivityFilter) ([]*Movement, error)

	// Turnover computes opening balance, receipts and expenses for a period.
	Turnover(ctx context.Context, filter TurnoverFilter) (Turnover, error)

	// LastUpdate returns the effective and recorded timestamps of the most
	// recently recorded movement, or a NotFound error when none exists.
	LastUpdate(ctx context.Context, itemID id.ID, locationID *id.ID) (*StockTimestamps, error)
}

// SumFilter narrows aggregation queries. The as-of cutoff is inclusive and
// applies to the effective timestamp.
type SumFilter struct {
	ItemIDs    []id.ID
	LocationID *id.ID
	AsOf       *time.Time
}

// LedgerFilter bounds a stock-ledger history query.
type LedgerFilter struct {
	ItemID     id.ID
	DateFrom   *time.Time
	DateTo     *time.Time
	LocationID *id.ID
}

// ActivityFilter bounds the recent-activity feed.
type ActivityFilter struct {
	ItemID     *id.ID
	LocationID *id.ID
	Kinds      []Kind
	Since      *time.Time
	Page       int
	Limit      int
}

// TurnoverFilter bounds a turnover report. FromDate is inclusive,
// ToDate exclusive.
type TurnoverFilter struct {
	ItemID     id.ID
	LocationID *id.ID
	FromDate   time.Time
	ToDate     time.Time
}

// Turnover represents receipt/expense totals for a period.
type Turnover struct {
	ItemID         id.ID          `json:"itemId"`
	LocationID     *id.ID         `json:"locationId,omitempty"`
	OpeningBalance types.Quantity `json:"openingBalance"`
	Receipts       types.Quantity `json:"receipts"`
	Expenses       types.Quantity `json:"expenses"`
	ClosingBalance types.Quantity `json:"closingBalance"`
}

// StockTimestamps carries the effective/recorded timestamps of a movement.
type StockTimestamps struct {
	EffectiveAt time.Time `json:"effectiveAt"`
	RecordedAt  time.Time `json:"recordedAt"`
}
