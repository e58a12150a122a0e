package ledger

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"larder/internal/core/apperror"
	"larder/internal/core/id"
	"larder/internal/core/types"
)

func movementAt(itemID, locationID id.ID, kind Kind, qty string, effective time.Time) *Movement {
	return &Movement{
		ID:          id.New(),
		OperationID: id.New(),
		ItemID:      itemID,
		LocationID:  locationID,
		Kind:        kind,
		Qty:         types.MustQuantity(qty),
		EffectiveAt: effective,
		RecordedAt:  effective,
	}
}

func TestStockLedger_RequiresItem(t *testing.T) {
	q := NewQuery(&memRepo{}, newMemBatchRepo())

	_, err := q.StockLedger(context.Background(), LedgerFilter{})
	require.Error(t, err)
	assert.True(t, apperror.IsCode(err, apperror.CodeValidation))
}

func TestStockLedger_EffectiveOrder(t *testing.T) {
	ctx := context.Background()
	itemID := id.New()
	locID := id.New()
	repo := &memRepo{}
	q := NewQuery(repo, newMemBatchRepo())

	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	late := movementAt(itemID, locID, KindSale, "-2", base.Add(48*time.Hour))
	early := movementAt(itemID, locID, KindReceipt, "10", base)
	mid := movementAt(itemID, locID, KindAdjustment, "-1", base.Add(24*time.Hour))
	require.NoError(t, repo.Append(ctx, []*Movement{late, early, mid}))

	out, err := q.StockLedger(ctx, LedgerFilter{ItemID: itemID})
	require.NoError(t, err)
	require.Len(t, out, 3)
	assert.Equal(t, early.ID, out[0].ID)
	assert.Equal(t, mid.ID, out[1].ID)
	assert.Equal(t, late.ID, out[2].ID)

	// Window narrows the result.
	from := base.Add(12 * time.Hour)
	out, err = q.StockLedger(ctx, LedgerFilter{ItemID: itemID, DateFrom: &from})
	require.NoError(t, err)
	require.Len(t, out, 2)
}

func TestExpiringBatches_CutoffAndOrder(t *testing.T) {
	ctx := context.Background()
	itemID := id.New()
	repo := newMemBatchRepo()
	q := NewQuery(&memRepo{}, repo)

	soon := time.Now().UTC().AddDate(0, 0, 3)
	later := time.Now().UTC().AddDate(0, 0, 5)
	far := time.Now().UTC().AddDate(0, 2, 0)
	b1 := addBatch(repo, itemID, &later, nil)
	b2 := addBatch(repo, itemID, &soon, nil)
	addBatch(repo, itemID, &far, nil)
	addBatch(repo, itemID, nil, nil) // no expiry, never reported

	out, err := q.ExpiringBatches(ctx, 7, []id.ID{itemID}, nil)
	require.NoError(t, err)
	require.Len(t, out, 2)
	assert.Equal(t, b2.ID, out[0].ID, "soonest expiry first")
	assert.Equal(t, b1.ID, out[1].ID)

	// Negative windows mean "already expired as of now".
	out, err = q.ExpiringBatches(ctx, -5, []id.ID{itemID}, nil)
	require.NoError(t, err)
	assert.Empty(t, out)
}

func TestRecentActivity_ClampsAndValidates(t *testing.T) {
	ctx := context.Background()
	itemID := id.New()
	locID := id.New()
	repo := &memRepo{}
	q := NewQuery(repo, newMemBatchRepo())

	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 60; i++ {
		require.NoError(t, repo.Append(ctx, []*Movement{
			movementAt(itemID, locID, KindReceipt, "1", base.Add(time.Duration(i)*time.Minute)),
		}))
	}

	// Defaults: page 1, limit 50.
	out, err := q.RecentActivity(ctx, ActivityFilter{})
	require.NoError(t, err)
	assert.Len(t, out, ActivityDefaultPage)

	// Newest first.
	assert.Equal(t, base.Add(59*time.Minute), out[0].RecordedAt)

	// Page 2 holds the remainder.
	out, err = q.RecentActivity(ctx, ActivityFilter{Page: 2})
	require.NoError(t, err)
	assert.Len(t, out, 10)

	// Limit above the cap clamps.
	out, err = q.RecentActivity(ctx, ActivityFilter{Limit: 10_000})
	require.NoError(t, err)
	assert.Len(t, out, 60)

	// Unknown kind is rejected.
	_, err = q.RecentActivity(ctx, ActivityFilter{Kinds: []Kind{"TELEPORT"}})
	require.Error(t, err)
	assert.True(t, apperror.IsCode(err, apperror.CodeValidation))
}

func TestTurnover(t *testing.T) {
	ctx := context.Background()
	itemID := id.New()
	locID := id.New()
	repo := &memRepo{}
	q := NewQuery(repo, newMemBatchRepo())

	jan := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	feb := time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)
	mar := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

	require.NoError(t, repo.Append(ctx, []*Movement{
		movementAt(itemID, locID, KindReceipt, "100", jan),       // before period
		movementAt(itemID, locID, KindSale, "-20", jan),          // before period
		movementAt(itemID, locID, KindReceipt, "50", feb),        // in period
		movementAt(itemID, locID, KindSale, "-30", feb.AddDate(0, 0, 10)), // in period
		movementAt(itemID, locID, KindReceipt, "999", mar),       // after period
	}))

	result, err := q.Turnover(ctx, TurnoverFilter{ItemID: itemID, FromDate: feb, ToDate: mar})
	require.NoError(t, err)
	assert.Equal(t, types.MustQuantity("80"), result.OpeningBalance)
	assert.Equal(t, types.MustQuantity("50"), result.Receipts)
	assert.Equal(t, types.MustQuantity("30"), result.Expenses)
	assert.Equal(t, types.MustQuantity("100"), result.ClosingBalance)

	// Degenerate period is rejected.
	_, err = q.Turnover(ctx, TurnoverFilter{ItemID: itemID, FromDate: mar, ToDate: feb})
	require.Error(t, err)
	assert.True(t, apperror.IsCode(err, apperror.CodeValidation))

	_, err = q.Turnover(ctx, TurnoverFilter{FromDate: feb, ToDate: mar})
	require.Error(t, err)
	assert.True(t, apperror.IsCode(err, apperror.CodeValidation))
}

func TestLastStockUpdate(t *testing.T) {
	ctx := context.Background()
	itemID := id.New()
	locID := id.New()
	repo := &memRepo{}
	q := NewQuery(repo, newMemBatchRepo())

	// No movements: nil result, no error.
	ts, err := q.LastStockUpdate(ctx, itemID, nil)
	require.NoError(t, err)
	assert.Nil(t, ts)

	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, repo.Append(ctx, []*Movement{
		movementAt(itemID, locID, KindReceipt, "5", base),
		movementAt(itemID, locID, KindSale, "-1", base.Add(time.Hour)),
	}))

	ts, err = q.LastStockUpdate(ctx, itemID, nil)
	require.NoError(t, err)
	require.NotNil(t, ts)
	assert.Equal(t, base.Add(time.Hour), ts.RecordedAt)
}

func TestCurrentStock_FillsZeroForRequestedItems(t *testing.T) {
	ctx := context.Background()
	tracked := id.New()
	silent := id.New()
	locID := id.New()
	repo := &memRepo{}
	agg := NewAggregator(repo)

	require.NoError(t, repo.Append(ctx, []*Movement{
		movementAt(tracked, locID, KindReceipt, "4", time.Now().UTC()),
	}))

	totals, err := agg.CurrentStock(ctx, []id.ID{tracked, silent}, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, types.MustQuantity("4"), totals[tracked])

	qty, ok := totals[silent]
	assert.True(t, ok, "items with no movements are present")
	assert.True(t, qty.IsZero())
}
