package ledger

import (
	"context"
	"fmt"
	"time"

	"larder/internal/core/apperror"
	"larder/internal/core/id"

	"larder/internal/domain/catalog/batch"
)

// Query is the read-only reporting surface over the ledger and batch catalog.
type Query struct {
	repo    Repository
	batches batch.Repository
}

// NewQuery creates a new ledger query service.
func NewQuery(repo Repository, batches batch.Repository) *Query {
	return &Query{repo: repo, batches: batches}
}

// StockLedger returns an item's movement history, optionally bounded by an
// effective-time window and a location, ordered by effective time, recorded
// time, then id. The result is capped at LedgerMaxRows; callers wanting
// more should narrow the window.
func (q *Query) StockLedger(ctx context.Context, filter LedgerFilter) ([]*Movement, error) {
	if id.IsNil(filter.ItemID) {
		return nil, apperror.NewValidation("item id is required").
			WithDetail("field", "itemId")
	}
	return q.repo.ListLedger(ctx, filter)
}

// ExpiringBatches returns batches whose expiry date falls within the given
// number of days from now, ordered by expiry date then received timestamp.
// When locationID is set, only batches that still have positive stock at
// that location are included. The result is capped at ExpiringMaxRows.
func (q *Query) ExpiringBatches(ctx context.Context, withinDays int, itemIDs []id.ID, locationID *id.ID) ([]*batch.Batch, error) {
	if withinDays < 0 {
		withinDays = 0
	}
	cutoff := time.Now().UTC().AddDate(0, 0, withinDays)

	batches, err := q.batches.ListExpiring(ctx, batch.ExpiryFilter{
		Cutoff:     cutoff,
		ItemIDs:    itemIDs,
		LocationID: locationID,
		Limit:      ExpiringMaxRows,
	})
	if err != nil {
		return nil, fmt.Errorf("list expiring batches: %w", err)
	}
	return batches, nil
}

// RecentActivity returns a paginated reverse-chronological movement feed.
// Page numbers start at 1; the limit is clamped to 1..ActivityMaxPage and
// defaults to ActivityDefaultPage.
func (q *Query) RecentActivity(ctx context.Context, filter ActivityFilter) ([]*Movement, error) {
	if filter.Page < 1 {
		filter.Page = 1
	}
	if filter.Limit < 1 {
		filter.Limit = ActivityDefaultPage
	}
	if filter.Limit > ActivityMaxPage {
		filter.Limit = ActivityMaxPage
	}

	for _, k := range filter.Kinds {
		if !ValidKind(k) {
			return nil, apperror.NewValidation("unknown movement kind").
				WithDetail("kind", string(k))
		}
	}

	return q.repo.ListRecent(ctx, filter)
}

// Turnover reports opening balance, receipts, expenses and closing balance
// for an item over a period, optionally scoped to a location.
func (q *Query) Turnover(ctx context.Context, filter TurnoverFilter) (Turnover, error) {
	if id.IsNil(filter.ItemID) {
		return Turnover{}, apperror.NewValidation("item id is required").
			WithDetail("field", "itemId")
	}
	if !filter.ToDate.After(filter.FromDate) {
		return Turnover{}, apperror.NewValidation("period end must be after period start")
	}
	return q.repo.Turnover(ctx, filter)
}

// LastStockUpdate returns the effective and recorded timestamps of the most
// recent movement for an item, optionally scoped to a location. Returns nil
// without error when the item has no movements.
func (q *Query) LastStockUpdate(ctx context.Context, itemID id.ID, locationID *id.ID) (*StockTimestamps, error) {
	ts, err := q.repo.LastUpdate(ctx, itemID, locationID)
	if err != nil {
		if apperror.IsNotFound(err) {
			return nil, nil
		}
		return nil, err
	}
	return ts, nil
}
