// Package reorder_repo provides the PostgreSQL implementation of the
// reorder settings repository.
package reorder_repo

import (
	"context"
	"fmt"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"

	"larder/internal/core/apperror"
	"larder/internal/core/id"
	"larder/internal/domain/reorder"
	"larder/internal/infrastructure/storage/postgres"
)

const settingsTable = "inv_reorder_settings"

// SettingRepo implements reorder.Repository.
type SettingRepo struct {
	txm        *postgres.TxManager
	selectCols []string
}

// NewSettingRepo creates a new reorder settings repository.
func NewSettingRepo(txm *postgres.TxManager) *SettingRepo {
	return &SettingRepo{
		txm:        txm,
		selectCols: postgres.ExtractDBColumns[reorder.Setting](),
	}
}

func (r *SettingRepo) baseSelect() squirrel.SelectBuilder {
	return squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar).
		Select(r.selectCols...).
		From(settingsTable)
}

// Upsert inserts or replaces the setting for (item, location).
func (r *SettingRepo) Upsert(ctx context.Context, s *reorder.Setting) error {
	q := squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar).
		Insert(settingsTable).
		SetMap(postgres.StructToMap(s)).
		Suffix(`ON CONFLICT (item_id, location_id) DO UPDATE SET
			reorder_point = EXCLUDED.reorder_point,
			reorder_qty = EXCLUDED.reorder_qty,
			lead_time_days = EXCLUDED.lead_time_days,
			low_stock_threshold = EXCLUDED.low_stock_threshold,
			updated_at = ?`, time.Now().UTC())

	sql, args, err := q.ToSql()
	if err != nil {
		return fmt.Errorf("build upsert: %w", err)
	}

	querier := r.txm.GetQuerier(ctx)
	if _, err := querier.Exec(ctx, sql, args...); err != nil {
		return fmt.Errorf("upsert reorder setting: %w", err)
	}

	return nil
}

// Get retrieves the setting for (item, location).
func (r *SettingRepo) Get(ctx context.Context, itemID, locationID id.ID) (*reorder.Setting, error) {
	q := r.baseSelect().
		Where(squirrel.Eq{"item_id": itemID, "location_id": locationID}).
		Limit(1)

	sql, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var s reorder.Setting
	querier := r.txm.GetQuerier(ctx)
	if err := pgxscan.Get(ctx, querier, &s, sql, args...); err != nil {
		if pgxscan.NotFound(err) {
			return nil, apperror.NewNotFound("reorder setting", itemID.String())
		}
		return nil, fmt.Errorf("get reorder setting: %w", err)
	}

	return &s, nil
}

// List retrieves settings, optionally filtered to the given items.
func (r *SettingRepo) List(ctx context.Context, itemIDs []id.ID) ([]*reorder.Setting, error) {
	q := r.baseSelect().OrderBy("item_id ASC", "location_id ASC")

	if len(itemIDs) > 0 {
		q = q.Where(squirrel.Eq{"item_id": itemIDs})
	}

	sql, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var settings []*reorder.Setting
	querier := r.txm.GetQuerier(ctx)
	if err := pgxscan.Select(ctx, querier, &settings, sql, args...); err != nil {
		return nil, fmt.Errorf("list reorder settings: %w", err)
	}

	return settings, nil
}

// TrackedItemIDs returns the distinct item ids that have any setting.
func (r *SettingRepo) TrackedItemIDs(ctx context.Context) ([]id.ID, error) {
	q := squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar).
		Select("DISTINCT item_id").
		From(settingsTable).
		OrderBy("item_id ASC")

	sql, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	querier := r.txm.GetQuerier(ctx)
	rows, err := querier.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("tracked items: %w", err)
	}
	defer rows.Close()

	var ids []id.ID
	for rows.Next() {
		var itemID id.ID
		if err := rows.Scan(&itemID); err != nil {
			return nil, fmt.Errorf("scan item id: %w", err)
		}
		ids = append(ids, itemID)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("tracked items: %w", err)
	}

	return ids, nil
}

// Ensure interface compliance.
var _ reorder.Repository = (*SettingRepo)(nil)
