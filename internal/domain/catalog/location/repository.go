package location

import (
	"context"

	"larder/internal/core/id"
)

// Repository defines persistence operations for the location registry.
type Repository interface {
	Create(ctx context.Context, loc *Location) error
	GetByID(ctx context.Context, locID id.ID) (*Location, error)
	GetByCode(ctx context.Context, code string) (*Location, error)
	List(ctx context.Context) ([]*Location, error)
}
