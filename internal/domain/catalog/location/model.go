// Package location provides the stock location registry.
// Locations are named stock sites (warehouse, counter) and are effectively
// immutable once movements reference them.
package location

import (
	"context"
	"strings"
	"time"

	"larder/internal/core/apperror"
	"larder/internal/core/id"
)

// Location represents a named stock site.
type Location struct {
	ID        id.ID     `db:"id" json:"id"`
	Code      string    `db:"code" json:"code"`
	Name      string    `db:"name" json:"name"`
	CreatedAt time.Time `db:"created_at" json:"createdAt"`
	UpdatedAt time.Time `db:"updated_at" json:"updatedAt"`
}

// NewLocation creates a location with a normalized code.
func NewLocation(code, name string) *Location {
	code = NormalizeCode(code)
	if name == "" {
		name = code
	}
	now := time.Now().UTC()
	return &Location{
		ID:        id.New(),
		Code:      code,
		Name:      name,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// NormalizeCode upper-cases and trims a location code.
func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// Validate checks required fields.
func (l *Location) Validate(ctx context.Context) error {
	if l.Code == "" {
		return apperror.NewValidation("location code is required").
			WithDetail("field", "code")
	}
	return nil
}
