// Package ledger_repo provides the PostgreSQL implementation of the
// movement store. The backing table is append-only.
package ledger_repo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"larder/internal/core/apperror"
	"larder/internal/core/id"
	"larder/internal/core/types"
	"larder/internal/domain/ledger"
	"larder/internal/infrastructure/storage/postgres"
)

const movementsTable = "inv_stock_movements"

// movementColumns is the canonical column order shared by COPY and SELECT.
var movementColumns = []string{
	"id", "operation_id", "item_id", "location_id", "batch_id",
	"kind", "qty", "effective_at", "recorded_at",
	"actor_id", "reference_kind", "reference_id", "reason",
	"idempotency_key",
}

// MovementRepo implements ledger.Repository.
type MovementRepo struct {
	txm     *postgres.TxManager
	builder squirrel.StatementBuilderType
}

// NewMovementRepo creates a new movement repository.
func NewMovementRepo(txm *postgres.TxManager) *MovementRepo {
	return &MovementRepo{
		txm:     txm,
		builder: squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
	}
}

// Append batch-inserts movements using the COPY protocol. The coordinator
// always calls this inside its transaction; refusing to run outside one
// keeps the ledger write atomic with the cached-quantity refresh.
func (r *MovementRepo) Append(ctx context.Context, movements []*ledger.Movement) error {
	if len(movements) == 0 {
		return nil
	}

	if r.txm.GetTx(ctx) == nil {
		return fmt.Errorf("append movements requires transaction context")
	}

	rows := make([][]any, 0, len(movements))
	for _, m := range movements {
		rows = append(rows, []any{
			m.ID, m.OperationID, m.ItemID, m.LocationID, m.BatchID,
			m.Kind, m.Qty, m.EffectiveAt, m.RecordedAt,
			m.ActorID, m.ReferenceKind, m.ReferenceID, m.Reason,
			m.IdempotencyKey,
		})
	}

	inserter := postgres.NewBatchInserter(r.txm)
	if _, err := inserter.CopyFromSlice(ctx, movementsTable, movementColumns, rows); err != nil {
		// The only unique index on the table is the partial one over
		// idempotency_key. Hitting it means a concurrent request with
		// the same key committed first; surface that as a retryable
		// conflict rather than a raw driver error.
		if isIdempotencyKeyViolation(err) {
			return apperror.NewConflict("operation with this idempotency key is already being processed").
				WithCause(err)
		}
		return fmt.Errorf("copy movements: %w", err)
	}

	return nil
}

// isIdempotencyKeyViolation reports whether err is a unique violation (23505)
// of the idempotency key index on the movements table.
func isIdempotencyKeyViolation(err error) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) || pgErr.Code != "23505" {
		return false
	}
	return pgErr.ConstraintName == "" || pgErr.ConstraintName == "uq_movements_idempotency_key"
}

// SumByItem sums movement quantities per item.
func (r *MovementRepo) SumByItem(ctx context.Context, filter ledger.SumFilter) (map[id.ID]types.Quantity, error) {
	q := r.builder.
		Select("item_id", "COALESCE(SUM(qty), 0)").
		From(movementsTable).
		GroupBy("item_id")

	if len(filter.ItemIDs) > 0 {
		q = q.Where(squirrel.Eq{"item_id": filter.ItemIDs})
	}
	if filter.LocationID != nil {
		q = q.Where(squirrel.Eq{"location_id": *filter.LocationID})
	}
	if filter.AsOf != nil {
		q = q.Where(squirrel.LtOrEq{"effective_at": *filter.AsOf})
	}

	sql, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	querier := r.txm.GetQuerier(ctx)
	rows, err := querier.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("sum by item: %w", err)
	}
	defer rows.Close()

	result := make(map[id.ID]types.Quantity)
	for rows.Next() {
		var itemID id.ID
		var sumScaled int64
		if err := rows.Scan(&itemID, &sumScaled); err != nil {
			return nil, fmt.Errorf("scan sum: %w", err)
		}
		result[itemID] = types.NewQuantityFromInt64Scaled(sumScaled)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sum by item: %w", err)
	}

	return result, nil
}

// SumByBatch sums movement quantities per batch for one item. Unbatched
// movements are excluded.
func (r *MovementRepo) SumByBatch(ctx context.Context, itemID id.ID, locationID *id.ID, asOf *time.Time) (map[id.ID]types.Quantity, error) {
	q := r.builder.
		Select("batch_id", "COALESCE(SUM(qty), 0)").
		From(movementsTable).
		Where(squirrel.Eq{"item_id": itemID}).
		Where(squirrel.NotEq{"batch_id": nil}).
		GroupBy("batch_id")

	if locationID != nil {
		q = q.Where(squirrel.Eq{"location_id": *locationID})
	}
	if asOf != nil {
		q = q.Where(squirrel.LtOrEq{"effective_at": *asOf})
	}

	sql, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	querier := r.txm.GetQuerier(ctx)
	rows, err := querier.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("sum by batch: %w", err)
	}
	defer rows.Close()

	result := make(map[id.ID]types.Quantity)
	for rows.Next() {
		var batchID id.ID
		var sumScaled int64
		if err := rows.Scan(&batchID, &sumScaled); err != nil {
			return nil, fmt.Errorf("scan sum: %w", err)
		}
		result[batchID] = types.NewQuantityFromInt64Scaled(sumScaled)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sum by batch: %w", err)
	}

	return result, nil
}

// GetByIdempotencyKey returns the lead movement recorded under key.
func (r *MovementRepo) GetByIdempotencyKey(ctx context.Context, key string) (*ledger.Movement, error) {
	q := r.builder.
		Select(movementColumns...).
		From(movementsTable).
		Where(squirrel.Eq{"idempotency_key": key}).
		Limit(1)

	sql, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var m ledger.Movement
	querier := r.txm.GetQuerier(ctx)
	if err := pgxscan.Get(ctx, querier, &m, sql, args...); err != nil {
		if pgxscan.NotFound(err) {
			return nil, apperror.NewNotFound("movement", key)
		}
		return nil, fmt.Errorf("get by idempotency key: %w", err)
	}

	return &m, nil
}

// GetByOperationID returns every movement of one coordinator call.
func (r *MovementRepo) GetByOperationID(ctx context.Context, opID id.ID) ([]*ledger.Movement, error) {
	q := r.builder.
		Select(movementColumns...).
		From(movementsTable).
		Where(squirrel.Eq{"operation_id": opID}).
		OrderBy("recorded_at ASC", "id ASC")

	sql, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var movements []*ledger.Movement
	querier := r.txm.GetQuerier(ctx)
	if err := pgxscan.Select(ctx, querier, &movements, sql, args...); err != nil {
		return nil, fmt.Errorf("get by operation: %w", err)
	}

	return movements, nil
}

// ListLedger returns an item's movement history in effective order.
func (r *MovementRepo) ListLedger(ctx context.Context, filter ledger.LedgerFilter) ([]*ledger.Movement, error) {
	q := r.builder.
		Select(movementColumns...).
		From(movementsTable).
		Where(squirrel.Eq{"item_id": filter.ItemID})

	if filter.LocationID != nil {
		q = q.Where(squirrel.Eq{"location_id": *filter.LocationID})
	}
	if filter.DateFrom != nil {
		q = q.Where(squirrel.GtOrEq{"effective_at": *filter.DateFrom})
	}
	if filter.DateTo != nil {
		q = q.Where(squirrel.LtOrEq{"effective_at": *filter.DateTo})
	}

	q = q.OrderBy("effective_at ASC", "recorded_at ASC", "id ASC").
		Limit(uint64(ledger.LedgerMaxRows))

	sql, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var movements []*ledger.Movement
	querier := r.txm.GetQuerier(ctx)
	if err := pgxscan.Select(ctx, querier, &movements, sql, args...); err != nil {
		return nil, fmt.Errorf("list ledger: %w", err)
	}

	return movements, nil
}

// ListRecent returns a reverse-chronological activity feed.
func (r *MovementRepo) ListRecent(ctx context.Context, filter ledger.ActivityFilter) ([]*ledger.Movement, error) {
	q := r.builder.
		Select(movementColumns...).
		From(movementsTable)

	if filter.ItemID != nil {
		q = q.Where(squirrel.Eq{"item_id": *filter.ItemID})
	}
	if filter.LocationID != nil {
		q = q.Where(squirrel.Eq{"location_id": *filter.LocationID})
	}
	if len(filter.Kinds) > 0 {
		q = q.Where(squirrel.Eq{"kind": filter.Kinds})
	}
	if filter.Since != nil {
		q = q.Where(squirrel.GtOrEq{"recorded_at": *filter.Since})
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = ledger.ActivityDefaultPage
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}

	q = q.OrderBy("recorded_at DESC", "id DESC").
		Limit(uint64(limit)).
		Offset(uint64((page - 1) * limit))

	sql, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var movements []*ledger.Movement
	querier := r.txm.GetQuerier(ctx)
	if err := pgxscan.Select(ctx, querier, &movements, sql, args...); err != nil {
		return nil, fmt.Errorf("list recent: %w", err)
	}

	return movements, nil
}

// Turnover computes opening balance, receipts and expenses for a period.
// FromDate is inclusive, ToDate exclusive.
func (r *MovementRepo) Turnover(ctx context.Context, filter ledger.TurnoverFilter) (ledger.Turnover, error) {
	result := ledger.Turnover{
		ItemID:     filter.ItemID,
		LocationID: filter.LocationID,
	}

	args := []any{filter.ItemID, filter.FromDate, filter.ToDate}
	conditions := "item_id = $1 AND effective_at >= $2 AND effective_at < $3"
	if filter.LocationID != nil {
		conditions += " AND location_id = $4"
		args = append(args, *filter.LocationID)
	}

	periodSQL := fmt.Sprintf(`
		SELECT
			COALESCE(SUM(CASE WHEN qty > 0 THEN qty ELSE 0 END), 0) AS receipts,
			COALESCE(SUM(CASE WHEN qty < 0 THEN -qty ELSE 0 END), 0) AS expenses
		FROM %s
		WHERE %s
	`, movementsTable, conditions)

	querier := r.txm.GetQuerier(ctx)
	var receiptsScaled, expensesScaled int64
	err := querier.QueryRow(ctx, periodSQL, args...).Scan(&receiptsScaled, &expensesScaled)
	if err != nil && err != pgx.ErrNoRows {
		return result, fmt.Errorf("calculate turnover: %w", err)
	}
	result.Receipts = types.NewQuantityFromInt64Scaled(receiptsScaled)
	result.Expenses = types.NewQuantityFromInt64Scaled(expensesScaled)

	openingArgs := []any{filter.ItemID, filter.FromDate}
	openingConditions := "item_id = $1 AND effective_at < $2"
	if filter.LocationID != nil {
		openingConditions += " AND location_id = $3"
		openingArgs = append(openingArgs, *filter.LocationID)
	}

	openingSQL := fmt.Sprintf(`
		SELECT COALESCE(SUM(qty), 0)
		FROM %s
		WHERE %s
	`, movementsTable, openingConditions)

	var openingScaled int64
	err = querier.QueryRow(ctx, openingSQL, openingArgs...).Scan(&openingScaled)
	if err != nil && err != pgx.ErrNoRows {
		return result, fmt.Errorf("calculate opening balance: %w", err)
	}
	result.OpeningBalance = types.NewQuantityFromInt64Scaled(openingScaled)
	result.ClosingBalance = result.OpeningBalance + result.Receipts - result.Expenses

	return result, nil
}

// LastUpdate returns the timestamps of the most recently recorded movement.
func (r *MovementRepo) LastUpdate(ctx context.Context, itemID id.ID, locationID *id.ID) (*ledger.StockTimestamps, error) {
	q := r.builder.
		Select("effective_at", "recorded_at").
		From(movementsTable).
		Where(squirrel.Eq{"item_id": itemID}).
		OrderBy("recorded_at DESC", "id DESC").
		Limit(1)

	if locationID != nil {
		q = q.Where(squirrel.Eq{"location_id": *locationID})
	}

	sql, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var ts ledger.StockTimestamps
	querier := r.txm.GetQuerier(ctx)
	if err := pgxscan.Get(ctx, querier, &ts, sql, args...); err != nil {
		if pgxscan.NotFound(err) {
			return nil, apperror.NewNotFound("movement", itemID.String())
		}
		return nil, fmt.Errorf("last update: %w", err)
	}

	return &ts, nil
}

// Ensure interface compliance.
var _ ledger.Repository = (*MovementRepo)(nil)
