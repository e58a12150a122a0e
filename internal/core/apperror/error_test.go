package apperror

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsCode_SeesThroughWrapping(t *testing.T) {
	base := NewNotFound("item", "abc")
	wrapped := fmt.Errorf("load item: %w", base)
	doubly := fmt.Errorf("receive: %w", wrapped)

	assert.True(t, IsNotFound(wrapped))
	assert.True(t, IsCode(doubly, CodeNotFound))
	assert.False(t, IsCode(doubly, CodeValidation))
	assert.False(t, IsNotFound(errors.New("plain")))
	assert.False(t, IsNotFound(nil))
}

func TestWithDetailAndCause(t *testing.T) {
	cause := errors.New("duplicate key value violates unique constraint")
	err := NewDuplicate("location", "code", "MAIN").WithCause(cause).
		WithDetail("constraint", "uq_locations_code")

	assert.Equal(t, CodeDuplicate, err.Code)
	assert.Equal(t, "MAIN", err.Details["value"])
	assert.Equal(t, "uq_locations_code", err.Details["constraint"])
	assert.ErrorIs(t, err, cause, "the cause stays reachable via Unwrap")
	assert.Contains(t, err.Error(), "caused by")
}

func TestGetHTTPStatus(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"validation", NewValidation("bad input"), http.StatusBadRequest},
		{"not found", NewNotFound("item", "x"), http.StatusNotFound},
		{"insufficient stock", NewInsufficientStock("x", "5", "3"), http.StatusUnprocessableEntity},
		{"negative stock", NewNegativeStock("x", "2", "-3"), http.StatusUnprocessableEntity},
		{"idempotency", NewIdempotencyMismatch("key-1"), http.StatusConflict},
		{"duplicate", NewDuplicate("item", "id", "x"), http.StatusConflict},
		{"wrapped", fmt.Errorf("op: %w", NewConflict("busy")), http.StatusConflict},
		{"plain error", errors.New("boom"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, GetHTTPStatus(tt.err))
		})
	}
}

func TestInsufficientStockDetails(t *testing.T) {
	err := NewInsufficientStock("item-1", "7.5", "3.25")
	assert.Equal(t, "7.5", err.Details["requested"])
	assert.Equal(t, "3.25", err.Details["available"])
	assert.Equal(t, "item-1", err.Details["item_id"])
}
