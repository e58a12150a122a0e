package catalog_repo

import (
	"context"
	"fmt"

	"github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"

	"larder/internal/core/apperror"
	"larder/internal/core/id"
	"larder/internal/domain/catalog/location"
	"larder/internal/infrastructure/storage/postgres"
)

const locationTable = "inv_locations"

// LocationRepo implements location.Repository.
type LocationRepo struct {
	txm        *postgres.TxManager
	selectCols []string
}

// NewLocationRepo creates a new location repository.
func NewLocationRepo(txm *postgres.TxManager) *LocationRepo {
	return &LocationRepo{
		txm:        txm,
		selectCols: postgres.ExtractDBColumns[location.Location](),
	}
}

func (r *LocationRepo) baseSelect() squirrel.SelectBuilder {
	return builder().Select(r.selectCols...).From(locationTable)
}

// Create inserts a new location. A code collision maps to a duplicate error
// so lazy creation can fall back to re-reading.
func (r *LocationRepo) Create(ctx context.Context, loc *location.Location) error {
	q := builder().
		Insert(locationTable).
		SetMap(postgres.StructToMap(loc))

	sql, args, err := q.ToSql()
	if err != nil {
		return fmt.Errorf("build insert: %w", err)
	}

	querier := r.txm.GetQuerier(ctx)
	if _, err := querier.Exec(ctx, sql, args...); err != nil {
		if isUniqueViolation(err) {
			return apperror.NewDuplicate("location", "code", loc.Code).WithCause(err)
		}
		return fmt.Errorf("insert location: %w", err)
	}

	return nil
}

// GetByID retrieves a location by ID.
func (r *LocationRepo) GetByID(ctx context.Context, locID id.ID) (*location.Location, error) {
	q := r.baseSelect().
		Where(squirrel.Eq{"id": locID}).
		Limit(1)

	sql, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var loc location.Location
	querier := r.txm.GetQuerier(ctx)
	if err := pgxscan.Get(ctx, querier, &loc, sql, args...); err != nil {
		if pgxscan.NotFound(err) {
			return nil, apperror.NewNotFound("location", locID.String())
		}
		return nil, fmt.Errorf("get location: %w", err)
	}

	return &loc, nil
}

// GetByCode retrieves a location by its normalized code.
func (r *LocationRepo) GetByCode(ctx context.Context, code string) (*location.Location, error) {
	q := r.baseSelect().
		Where(squirrel.Eq{"code": code}).
		Limit(1)

	sql, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var loc location.Location
	querier := r.txm.GetQuerier(ctx)
	if err := pgxscan.Get(ctx, querier, &loc, sql, args...); err != nil {
		if pgxscan.NotFound(err) {
			return nil, apperror.NewNotFound("location", code)
		}
		return nil, fmt.Errorf("get location by code: %w", err)
	}

	return &loc, nil
}

// List retrieves all locations ordered by code.
func (r *LocationRepo) List(ctx context.Context) ([]*location.Location, error) {
	q := r.baseSelect().OrderBy("code ASC")

	sql, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var locations []*location.Location
	querier := r.txm.GetQuerier(ctx)
	if err := pgxscan.Select(ctx, querier, &locations, sql, args...); err != nil {
		return nil, fmt.Errorf("list locations: %w", err)
	}

	return locations, nil
}

// Ensure interface compliance.
var _ location.Repository = (*LocationRepo)(nil)
