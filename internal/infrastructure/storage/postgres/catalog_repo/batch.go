package catalog_repo

import (
	"context"
	"fmt"

	"github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"

	"larder/internal/core/apperror"
	"larder/internal/core/id"
	"larder/internal/domain/catalog/batch"
	"larder/internal/infrastructure/storage/postgres"
)

const batchTable = "inv_batches"

// BatchRepo implements batch.Repository.
type BatchRepo struct {
	txm        *postgres.TxManager
	selectCols []string
}

// NewBatchRepo creates a new batch repository.
func NewBatchRepo(txm *postgres.TxManager) *BatchRepo {
	return &BatchRepo{
		txm:        txm,
		selectCols: postgres.ExtractDBColumns[batch.Batch](),
	}
}

func (r *BatchRepo) baseSelect() squirrel.SelectBuilder {
	return builder().Select(r.selectCols...).From(batchTable)
}

// Create inserts a new batch.
func (r *BatchRepo) Create(ctx context.Context, b *batch.Batch) error {
	q := builder().
		Insert(batchTable).
		SetMap(postgres.StructToMap(b))

	sql, args, err := q.ToSql()
	if err != nil {
		return fmt.Errorf("build insert: %w", err)
	}

	querier := r.txm.GetQuerier(ctx)
	if _, err := querier.Exec(ctx, sql, args...); err != nil {
		if isForeignKeyViolation(err) {
			return apperror.NewNotFound("item", b.ItemID.String())
		}
		return fmt.Errorf("insert batch: %w", err)
	}

	return nil
}

// GetByID retrieves a batch by ID.
func (r *BatchRepo) GetByID(ctx context.Context, batchID id.ID) (*batch.Batch, error) {
	q := r.baseSelect().
		Where(squirrel.Eq{"id": batchID}).
		Limit(1)

	sql, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var b batch.Batch
	querier := r.txm.GetQuerier(ctx)
	if err := pgxscan.Get(ctx, querier, &b, sql, args...); err != nil {
		if pgxscan.NotFound(err) {
			return nil, apperror.NewNotFound("batch", batchID.String())
		}
		return nil, fmt.Errorf("get batch: %w", err)
	}

	return &b, nil
}

// GetByIDs retrieves batches keyed by id. Missing ids are absent from
// the result.
func (r *BatchRepo) GetByIDs(ctx context.Context, batchIDs []id.ID) (map[id.ID]*batch.Batch, error) {
	result := make(map[id.ID]*batch.Batch, len(batchIDs))
	if len(batchIDs) == 0 {
		return result, nil
	}

	q := r.baseSelect().Where(squirrel.Eq{"id": batchIDs})

	sql, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var batches []*batch.Batch
	querier := r.txm.GetQuerier(ctx)
	if err := pgxscan.Select(ctx, querier, &batches, sql, args...); err != nil {
		return nil, fmt.Errorf("get batches: %w", err)
	}

	for _, b := range batches {
		result[b.ID] = b
	}
	return result, nil
}

// ListExpiring retrieves batches whose expiry falls on or before the cutoff,
// soonest first. When a location is given, only batches with positive ledger
// stock at that location qualify.
func (r *BatchRepo) ListExpiring(ctx context.Context, filter batch.ExpiryFilter) ([]*batch.Batch, error) {
	q := r.baseSelect().
		Where(squirrel.NotEq{"expiry_date": nil}).
		Where(squirrel.LtOrEq{"expiry_date": filter.Cutoff})

	if len(filter.ItemIDs) > 0 {
		q = q.Where(squirrel.Eq{"item_id": filter.ItemIDs})
	}

	if filter.LocationID != nil {
		q = q.Where(squirrel.Expr(`id IN (
			SELECT batch_id FROM inv_stock_movements
			WHERE location_id = ? AND batch_id IS NOT NULL
			GROUP BY batch_id
			HAVING SUM(qty) > 0
		)`, *filter.LocationID))
	}

	q = q.OrderBy("expiry_date ASC", "received_at ASC NULLS LAST", "id ASC")

	if filter.Limit > 0 {
		q = q.Limit(uint64(filter.Limit))
	}

	sql, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var batches []*batch.Batch
	querier := r.txm.GetQuerier(ctx)
	if err := pgxscan.Select(ctx, querier, &batches, sql, args...); err != nil {
		return nil, fmt.Errorf("list expiring batches: %w", err)
	}

	return batches, nil
}

// Ensure interface compliance.
var _ batch.Repository = (*BatchRepo)(nil)
