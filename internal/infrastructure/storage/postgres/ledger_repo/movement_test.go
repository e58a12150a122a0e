package ledger_repo

import (
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"

	"larder/internal/domain/ledger"
	"larder/internal/infrastructure/storage/postgres"
)

// The COPY column list and the struct db tags must describe the same set:
// a drift between them silently writes values into the wrong columns.
func TestMovementColumns_MatchStructTags(t *testing.T) {
	tagged := postgres.ExtractDBColumns[ledger.Movement]()
	assert.ElementsMatch(t, tagged, movementColumns)
}

func TestMovementColumns_RowOrder(t *testing.T) {
	// Append builds COPY rows positionally; the canonical order is part of
	// the repository contract.
	expected := []string{
		"id", "operation_id", "item_id", "location_id", "batch_id",
		"kind", "qty", "effective_at", "recorded_at",
		"actor_id", "reference_kind", "reference_id", "reason",
		"idempotency_key",
	}
	assert.Equal(t, expected, movementColumns)
}

// A concurrent writer holding the same idempotency key commits first and the
// loser's COPY fails on the partial unique index. That failure must be
// recognized through driver wrapping so Append can report a conflict.
func TestIsIdempotencyKeyViolation(t *testing.T) {
	dup := &pgconn.PgError{Code: "23505", ConstraintName: "uq_movements_idempotency_key"}

	assert.True(t, isIdempotencyKeyViolation(dup))
	assert.True(t, isIdempotencyKeyViolation(fmt.Errorf("copy movements: %w", dup)))
	assert.True(t, isIdempotencyKeyViolation(&pgconn.PgError{Code: "23505"}))

	assert.False(t, isIdempotencyKeyViolation(&pgconn.PgError{Code: "23503"}))
	assert.False(t, isIdempotencyKeyViolation(errors.New("connection reset")))
	assert.False(t, isIdempotencyKeyViolation(nil))
}
