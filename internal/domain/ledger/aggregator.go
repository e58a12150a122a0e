package ledger

import (
	"context"
	"fmt"
	"time"

	"larder/internal/core/id"
	"larder/internal/core/types"
)

// Aggregator derives stock quantities authoritatively from the ledger.
// It has no side effects and is safe for concurrent readers.
type Aggregator struct {
	repo Repository
}

// NewAggregator creates a new stock aggregator.
func NewAggregator(repo Repository) *Aggregator {
	return &Aggregator{repo: repo}
}

// CurrentStock sums movement quantities per item, optionally filtered by an
// item set, a single location, and an inclusive as-of cutoff on the
// effective timestamp. Items with no movements sum to zero: requested ids
// are always present in the result.
func (a *Aggregator) CurrentStock(ctx context.Context, itemIDs []id.ID, locationID *id.ID, asOf *time.Time) (map[id.ID]types.Quantity, error) {
	totals, err := a.repo.SumByItem(ctx, SumFilter{
		ItemIDs:    itemIDs,
		LocationID: locationID,
		AsOf:       asOf,
	})
	if err != nil {
		return nil, fmt.Errorf("sum movements: %w", err)
	}

	for _, itemID := range itemIDs {
		if _, ok := totals[itemID]; !ok {
			totals[itemID] = 0
		}
	}

	return totals, nil
}

// ItemStock is a convenience wrapper returning the quantity for one item.
func (a *Aggregator) ItemStock(ctx context.Context, itemID id.ID, locationID *id.ID, asOf *time.Time) (types.Quantity, error) {
	totals, err := a.CurrentStock(ctx, []id.ID{itemID}, locationID, asOf)
	if err != nil {
		return 0, err
	}
	return totals[itemID], nil
}

// BatchStock sums movement quantities per batch for one item. Movements
// with a nil batch represent unbatched stock and are not attributable to a
// lot, so they are excluded.
func (a *Aggregator) BatchStock(ctx context.Context, itemID id.ID, locationID *id.ID, asOf *time.Time) (map[id.ID]types.Quantity, error) {
	perBatch, err := a.repo.SumByBatch(ctx, itemID, locationID, asOf)
	if err != nil {
		return nil, fmt.Errorf("sum movements by batch: %w", err)
	}
	return perBatch, nil
}
