package batch

import (
	"context"
	"time"

	"larder/internal/core/id"
)

// Repository defines persistence operations for the batch catalog.
type Repository interface {
	Create(ctx context.Context, b *Batch) error
	GetByID(ctx context.Context, batchID id.ID) (*Batch, error)

	// GetByIDs returns the batches for the given ids, keyed by id.
	// Missing ids are simply absent from the result.
	GetByIDs(ctx context.Context, batchIDs []id.ID) (map[id.ID]*Batch, error)

	// ListExpiring returns batches whose expiry date falls on or before the
	// cutoff, ordered by expiry date then received timestamp. When
	// LocationID is set, only batches with positive ledger stock at that
	// location are returned.
	ListExpiring(ctx context.Context, filter ExpiryFilter) ([]*Batch, error)
}

// ExpiryFilter narrows expiring-batch queries.
type ExpiryFilter struct {
	Cutoff     time.Time
	ItemIDs    []id.ID
	LocationID *id.ID
	Limit      int
}
