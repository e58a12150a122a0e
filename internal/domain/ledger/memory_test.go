package ledger

import (
	"context"
	"sort"
	"time"

	"larder/internal/core/apperror"
	"larder/internal/core/id"
	"larder/internal/core/types"

	"larder/internal/domain/catalog/batch"
)

// memRepo is an in-memory movement store used by the tests in this package.
type memRepo struct {
	movements []*Movement
}

func (r *memRepo) Append(ctx context.Context, movements []*Movement) error {
	r.movements = append(r.movements, movements...)
	return nil
}

func (r *memRepo) SumByItem(ctx context.Context, filter SumFilter) (map[id.ID]types.Quantity, error) {
	wanted := make(map[id.ID]bool, len(filter.ItemIDs))
	for _, itemID := range filter.ItemIDs {
		wanted[itemID] = true
	}

	totals := make(map[id.ID]types.Quantity)
	for _, m := range r.movements {
		if len(wanted) > 0 && !wanted[m.ItemID] {
			continue
		}
		if filter.LocationID != nil && m.LocationID != *filter.LocationID {
			continue
		}
		if filter.AsOf != nil && m.EffectiveAt.After(*filter.AsOf) {
			continue
		}
		totals[m.ItemID] += m.Qty
	}
	return totals, nil
}

func (r *memRepo) SumByBatch(ctx context.Context, itemID id.ID, locationID *id.ID, asOf *time.Time) (map[id.ID]types.Quantity, error) {
	totals := make(map[id.ID]types.Quantity)
	for _, m := range r.movements {
		if m.ItemID != itemID || m.BatchID == nil {
			continue
		}
		if locationID != nil && m.LocationID != *locationID {
			continue
		}
		if asOf != nil && m.EffectiveAt.After(*asOf) {
			continue
		}
		totals[*m.BatchID] += m.Qty
	}
	return totals, nil
}

func (r *memRepo) GetByIdempotencyKey(ctx context.Context, key string) (*Movement, error) {
	for _, m := range r.movements {
		if m.IdempotencyKey != nil && *m.IdempotencyKey == key {
			return m, nil
		}
	}
	return nil, apperror.NewNotFound("movement", key)
}

func (r *memRepo) GetByOperationID(ctx context.Context, opID id.ID) ([]*Movement, error) {
	var out []*Movement
	for _, m := range r.movements {
		if m.OperationID == opID {
			out = append(out, m)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].RecordedAt.Equal(out[j].RecordedAt) {
			return out[i].RecordedAt.Before(out[j].RecordedAt)
		}
		return out[i].ID.String() < out[j].ID.String()
	})
	return out, nil
}

func (r *memRepo) ListLedger(ctx context.Context, filter LedgerFilter) ([]*Movement, error) {
	var out []*Movement
	for _, m := range r.movements {
		if m.ItemID != filter.ItemID {
			continue
		}
		if filter.LocationID != nil && m.LocationID != *filter.LocationID {
			continue
		}
		if filter.DateFrom != nil && m.EffectiveAt.Before(*filter.DateFrom) {
			continue
		}
		if filter.DateTo != nil && m.EffectiveAt.After(*filter.DateTo) {
			continue
		}
		out = append(out, m)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].EffectiveAt.Equal(out[j].EffectiveAt) {
			return out[i].EffectiveAt.Before(out[j].EffectiveAt)
		}
		if !out[i].RecordedAt.Equal(out[j].RecordedAt) {
			return out[i].RecordedAt.Before(out[j].RecordedAt)
		}
		return out[i].ID.String() < out[j].ID.String()
	})
	if len(out) > LedgerMaxRows {
		out = out[:LedgerMaxRows]
	}
	return out, nil
}

func (r *memRepo) ListRecent(ctx context.Context, filter ActivityFilter) ([]*Movement, error) {
	kinds := make(map[Kind]bool, len(filter.Kinds))
	for _, k := range filter.Kinds {
		kinds[k] = true
	}

	var out []*Movement
	for _, m := range r.movements {
		if filter.ItemID != nil && m.ItemID != *filter.ItemID {
			continue
		}
		if filter.LocationID != nil && m.LocationID != *filter.LocationID {
			continue
		}
		if len(kinds) > 0 && !kinds[m.Kind] {
			continue
		}
		if filter.Since != nil && m.RecordedAt.Before(*filter.Since) {
			continue
		}
		out = append(out, m)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].RecordedAt.Equal(out[j].RecordedAt) {
			return out[i].RecordedAt.After(out[j].RecordedAt)
		}
		return out[i].ID.String() > out[j].ID.String()
	})

	start := (filter.Page - 1) * filter.Limit
	if start >= len(out) {
		return nil, nil
	}
	end := start + filter.Limit
	if end > len(out) {
		end = len(out)
	}
	return out[start:end], nil
}

func (r *memRepo) Turnover(ctx context.Context, filter TurnoverFilter) (Turnover, error) {
	result := Turnover{ItemID: filter.ItemID, LocationID: filter.LocationID}
	for _, m := range r.movements {
		if m.ItemID != filter.ItemID {
			continue
		}
		if filter.LocationID != nil && m.LocationID != *filter.LocationID {
			continue
		}
		switch {
		case m.EffectiveAt.Before(filter.FromDate):
			result.OpeningBalance += m.Qty
		case m.EffectiveAt.Before(filter.ToDate):
			if m.Qty.IsPositive() {
				result.Receipts += m.Qty
			} else {
				result.Expenses += m.Qty.Neg()
			}
		}
	}
	result.ClosingBalance = result.OpeningBalance + result.Receipts - result.Expenses
	return result, nil
}

func (r *memRepo) LastUpdate(ctx context.Context, itemID id.ID, locationID *id.ID) (*StockTimestamps, error) {
	var last *Movement
	for _, m := range r.movements {
		if m.ItemID != itemID {
			continue
		}
		if locationID != nil && m.LocationID != *locationID {
			continue
		}
		if last == nil || m.RecordedAt.After(last.RecordedAt) {
			last = m
		}
	}
	if last == nil {
		return nil, apperror.NewNotFound("movement", itemID.String())
	}
	return &StockTimestamps{EffectiveAt: last.EffectiveAt, RecordedAt: last.RecordedAt}, nil
}

var _ Repository = (*memRepo)(nil)

// memBatchRepo is an in-memory batch catalog.
type memBatchRepo struct {
	batches map[id.ID]*batch.Batch
}

func newMemBatchRepo() *memBatchRepo {
	return &memBatchRepo{batches: make(map[id.ID]*batch.Batch)}
}

func (r *memBatchRepo) Create(ctx context.Context, b *batch.Batch) error {
	r.batches[b.ID] = b
	return nil
}

func (r *memBatchRepo) GetByID(ctx context.Context, batchID id.ID) (*batch.Batch, error) {
	b, ok := r.batches[batchID]
	if !ok {
		return nil, apperror.NewNotFound("batch", batchID.String())
	}
	return b, nil
}

func (r *memBatchRepo) GetByIDs(ctx context.Context, batchIDs []id.ID) (map[id.ID]*batch.Batch, error) {
	out := make(map[id.ID]*batch.Batch, len(batchIDs))
	for _, batchID := range batchIDs {
		if b, ok := r.batches[batchID]; ok {
			out[batchID] = b
		}
	}
	return out, nil
}

func (r *memBatchRepo) ListExpiring(ctx context.Context, filter batch.ExpiryFilter) ([]*batch.Batch, error) {
	wanted := make(map[id.ID]bool, len(filter.ItemIDs))
	for _, itemID := range filter.ItemIDs {
		wanted[itemID] = true
	}

	var out []*batch.Batch
	for _, b := range r.batches {
		if b.ExpiryDate == nil || b.ExpiryDate.After(filter.Cutoff) {
			continue
		}
		if len(wanted) > 0 && !wanted[b.ItemID] {
			continue
		}
		out = append(out, b)
	}
	sort.SliceStable(out, func(i, j int) bool {
		return fefoLess(out[i], out[j])
	})
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

var _ batch.Repository = (*memBatchRepo)(nil)
