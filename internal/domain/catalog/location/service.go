package location

import (
	"context"
	"fmt"

	"larder/internal/core/apperror"
	"larder/internal/core/id"
	"larder/pkg/logger"
)

// Service provides operations for the location registry.
type Service struct {
	repo Repository
}

// NewService creates a new location service.
func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// Create registers a location administratively.
func (s *Service) Create(ctx context.Context, loc *Location) error {
	loc.Code = NormalizeCode(loc.Code)
	if err := loc.Validate(ctx); err != nil {
		return err
	}
	if id.IsNil(loc.ID) {
		loc.ID = id.New()
	}

	if err := s.repo.Create(ctx, loc); err != nil {
		return fmt.Errorf("create location: %w", err)
	}

	logger.Info(ctx, "location created", "id", loc.ID, "code", loc.Code)
	return nil
}

// EnsureByCode returns the location with the given code, creating it lazily
// on first reference. A concurrent create surfacing as a duplicate is
// resolved by re-reading.
func (s *Service) EnsureByCode(ctx context.Context, code string) (*Location, error) {
	code = NormalizeCode(code)
	if code == "" {
		return nil, apperror.NewValidation("location code is required").
			WithDetail("field", "code")
	}

	loc, err := s.repo.GetByCode(ctx, code)
	if err == nil {
		return loc, nil
	}
	if !apperror.IsNotFound(err) {
		return nil, err
	}

	loc = NewLocation(code, code)
	if err := s.repo.Create(ctx, loc); err != nil {
		if apperror.IsCode(err, apperror.CodeDuplicate) {
			return s.repo.GetByCode(ctx, code)
		}
		return nil, fmt.Errorf("create location %s: %w", code, err)
	}

	logger.Info(ctx, "location created lazily", "id", loc.ID, "code", loc.Code)
	return loc, nil
}

// GetByID retrieves a location.
func (s *Service) GetByID(ctx context.Context, locID id.ID) (*Location, error) {
	return s.repo.GetByID(ctx, locID)
}

// List retrieves all locations.
func (s *Service) List(ctx context.Context) ([]*Location, error) {
	return s.repo.List(ctx)
}
