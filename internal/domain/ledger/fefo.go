package ledger

import (
	"context"
	"fmt"
	"sort"

	"larder/internal/core/id"
	"larder/internal/core/types"

	"larder/internal/domain/catalog/batch"
)

// BatchAvailability pairs a batch with its remaining quantity at a location.
type BatchAvailability struct {
	Batch     *batch.Batch
	Available types.Quantity
}

// FEFOSelector orders batches for depletion: first expired, first out.
type FEFOSelector struct {
	aggregator *Aggregator
	batches    batch.Repository
}

// NewFEFOSelector creates a new FEFO batch selector.
func NewFEFOSelector(aggregator *Aggregator, batches batch.Repository) *FEFOSelector {
	return &FEFOSelector{aggregator: aggregator, batches: batches}
}

// AvailableBatchesFEFO computes per-batch availability for an item at a
// location and returns the positive-availability batches in depletion
// order: expiry date ascending (nil sorts last), received timestamp
// ascending (nil sorts last), batch id ascending. The ordering is total,
// so repeated calls over the same ledger state always deplete identically.
func (s *FEFOSelector) AvailableBatchesFEFO(ctx context.Context, itemID, locationID id.ID) ([]BatchAvailability, error) {
	perBatch, err := s.aggregator.BatchStock(ctx, itemID, &locationID, nil)
	if err != nil {
		return nil, err
	}
	if len(perBatch) == 0 {
		return nil, nil
	}

	batchIDs := make([]id.ID, 0, len(perBatch))
	for batchID, avail := range perBatch {
		if avail.IsPositive() {
			batchIDs = append(batchIDs, batchID)
		}
	}
	if len(batchIDs) == 0 {
		return nil, nil
	}

	byID, err := s.batches.GetByIDs(ctx, batchIDs)
	if err != nil {
		return nil, fmt.Errorf("load batches: %w", err)
	}

	ordered := make([]BatchAvailability, 0, len(batchIDs))
	for _, batchID := range batchIDs {
		b, ok := byID[batchID]
		if !ok {
			// Movement references a batch the catalog no longer knows;
			// treat it as unbatched rather than blocking depletion.
			continue
		}
		ordered = append(ordered, BatchAvailability{Batch: b, Available: perBatch[batchID]})
	}

	sort.Slice(ordered, func(i, j int) bool {
		return fefoLess(ordered[i].Batch, ordered[j].Batch)
	})

	return ordered, nil
}

// fefoLess is the FEFO ordering predicate. Nil expiry and nil received
// timestamps sort as "infinite" (last within their tier); the batch id is
// the final deterministic tie-break.
func fefoLess(a, b *batch.Batch) bool {
	switch {
	case a.ExpiryDate == nil && b.ExpiryDate != nil:
		return false
	case a.ExpiryDate != nil && b.ExpiryDate == nil:
		return true
	case a.ExpiryDate != nil && b.ExpiryDate != nil && !a.ExpiryDate.Equal(*b.ExpiryDate):
		return a.ExpiryDate.Before(*b.ExpiryDate)
	}

	switch {
	case a.ReceivedAt == nil && b.ReceivedAt != nil:
		return false
	case a.ReceivedAt != nil && b.ReceivedAt == nil:
		return true
	case a.ReceivedAt != nil && b.ReceivedAt != nil && !a.ReceivedAt.Equal(*b.ReceivedAt):
		return a.ReceivedAt.Before(*b.ReceivedAt)
	}

	return a.ID.String() < b.ID.String()
}
