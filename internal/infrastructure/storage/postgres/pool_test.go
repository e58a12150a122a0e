package postgres

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPoolStatsSaturated(t *testing.T) {
	assert.False(t, PoolStats{MaxConns: 16, AcquiredConns: 15}.Saturated())
	assert.True(t, PoolStats{MaxConns: 16, AcquiredConns: 16}.Saturated())
	assert.False(t, PoolStats{}.Saturated(), "zero-value stats are not saturated")
}
