package catalog_repo

import (
	"context"
	"fmt"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"

	"larder/internal/core/apperror"
	"larder/internal/core/id"
	"larder/internal/core/types"
	"larder/internal/domain/catalog/item"
	"larder/internal/infrastructure/storage/postgres"
)

const itemTable = "inv_items"

// ItemRepo implements item.Repository.
type ItemRepo struct {
	txm        *postgres.TxManager
	selectCols []string
}

// NewItemRepo creates a new item repository.
func NewItemRepo(txm *postgres.TxManager) *ItemRepo {
	return &ItemRepo{
		txm:        txm,
		selectCols: postgres.ExtractDBColumns[item.Item](),
	}
}

func (r *ItemRepo) baseSelect() squirrel.SelectBuilder {
	return builder().Select(r.selectCols...).From(itemTable)
}

// Create inserts a new item.
func (r *ItemRepo) Create(ctx context.Context, it *item.Item) error {
	q := builder().
		Insert(itemTable).
		SetMap(postgres.StructToMap(it))

	sql, args, err := q.ToSql()
	if err != nil {
		return fmt.Errorf("build insert: %w", err)
	}

	querier := r.txm.GetQuerier(ctx)
	if _, err := querier.Exec(ctx, sql, args...); err != nil {
		if isUniqueViolation(err) {
			return apperror.NewDuplicate("item", "id", it.ID.String()).WithCause(err)
		}
		return fmt.Errorf("insert item: %w", err)
	}

	return nil
}

// GetByID retrieves an item by ID.
func (r *ItemRepo) GetByID(ctx context.Context, itemID id.ID) (*item.Item, error) {
	q := r.baseSelect().
		Where(squirrel.Eq{"id": itemID}).
		Limit(1)

	sql, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var it item.Item
	querier := r.txm.GetQuerier(ctx)
	if err := pgxscan.Get(ctx, querier, &it, sql, args...); err != nil {
		if pgxscan.NotFound(err) {
			return nil, apperror.NewNotFound("item", itemID.String())
		}
		return nil, fmt.Errorf("get item: %w", err)
	}

	return &it, nil
}

// GetForUpdate retrieves an item with a row lock. The lock serializes the
// read-recompute-write sequence of concurrent stock writers.
func (r *ItemRepo) GetForUpdate(ctx context.Context, itemID id.ID) (*item.Item, error) {
	q := r.baseSelect().
		Where(squirrel.Eq{"id": itemID}).
		Suffix("FOR UPDATE")

	sql, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var it item.Item
	querier := r.txm.GetQuerier(ctx)
	if err := pgxscan.Get(ctx, querier, &it, sql, args...); err != nil {
		if pgxscan.NotFound(err) {
			return nil, apperror.NewNotFound("item", itemID.String())
		}
		return nil, fmt.Errorf("get item for update: %w", err)
	}

	return &it, nil
}

// List retrieves items matching the filter, ordered by name.
func (r *ItemRepo) List(ctx context.Context, filter item.ListFilter) ([]*item.Item, error) {
	q := r.baseSelect()

	if len(filter.IDs) > 0 {
		q = q.Where(squirrel.Eq{"id": filter.IDs})
	}
	if filter.Category != "" {
		q = q.Where(squirrel.Eq{"category": filter.Category})
	}
	if filter.Name != "" {
		q = q.Where(squirrel.ILike{"name": "%" + filter.Name + "%"})
	}

	q = q.OrderBy("name ASC", "id ASC")

	if filter.Limit > 0 {
		q = q.Limit(uint64(filter.Limit))
	}
	if filter.Offset > 0 {
		q = q.Offset(uint64(filter.Offset))
	}

	sql, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var items []*item.Item
	querier := r.txm.GetQuerier(ctx)
	if err := pgxscan.Select(ctx, querier, &items, sql, args...); err != nil {
		return nil, fmt.Errorf("list items: %w", err)
	}

	return items, nil
}

// UpdateCachedQuantity persists the recomputed ledger aggregate for an item.
// restockedAt updates last_restocked only when set.
func (r *ItemRepo) UpdateCachedQuantity(ctx context.Context, itemID id.ID, qty types.Quantity, restockedAt *time.Time) error {
	q := builder().
		Update(itemTable).
		Set("quantity", qty).
		Set("updated_at", time.Now().UTC()).
		Where(squirrel.Eq{"id": itemID})

	if restockedAt != nil {
		q = q.Set("last_restocked", *restockedAt)
	}

	sql, args, err := q.ToSql()
	if err != nil {
		return fmt.Errorf("build update: %w", err)
	}

	querier := r.txm.GetQuerier(ctx)
	result, err := querier.Exec(ctx, sql, args...)
	if err != nil {
		return fmt.Errorf("update cached quantity: %w", err)
	}
	if result.RowsAffected() == 0 {
		return apperror.NewNotFound("item", itemID.String())
	}

	return nil
}

// Ensure interface compliance.
var _ item.Repository = (*ItemRepo)(nil)
