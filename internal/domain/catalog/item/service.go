package item

import (
	"context"
	"fmt"

	"larder/internal/core/id"
	"larder/pkg/logger"
)

// Service provides administrative operations for the item catalog.
// Quantity mutation is deliberately absent here: only the transaction
// coordinator writes the cached quantity.
type Service struct {
	repo Repository
}

// NewService creates a new item catalog service.
func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// Create registers a new item.
func (s *Service) Create(ctx context.Context, it *Item) error {
	if err := it.Validate(ctx); err != nil {
		return err
	}
	if id.IsNil(it.ID) {
		it.ID = id.New()
	}

	if err := s.repo.Create(ctx, it); err != nil {
		return fmt.Errorf("create item: %w", err)
	}

	logger.Info(ctx, "item created", "id", it.ID, "name", it.Name)
	return nil
}

// GetByID retrieves an item.
func (s *Service) GetByID(ctx context.Context, itemID id.ID) (*Item, error) {
	return s.repo.GetByID(ctx, itemID)
}

// List retrieves items with filtering.
func (s *Service) List(ctx context.Context, filter ListFilter) ([]*Item, error) {
	return s.repo.List(ctx, filter)
}
