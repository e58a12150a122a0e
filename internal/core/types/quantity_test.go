package types

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseQuantityString(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    int64 // scaled
		wantErr bool
	}{
		{name: "integer", input: "100", want: 1_000_000},
		{name: "two decimals", input: "2.50", want: 25_000},
		{name: "four decimals", input: "0.0001", want: 1},
		{name: "extra digits truncated", input: "1.23456", want: 12_345},
		{name: "negative", input: "-5.25", want: -52_500},
		{name: "leading plus", input: "+3", want: 30_000},
		{name: "bare fraction", input: ".5", want: 5_000},
		{name: "whitespace", input: " 7 ", want: 70_000},
		{name: "exponent form", input: "1e2", want: 1_000_000},
		{name: "empty", input: "", wantErr: true},
		{name: "garbage", input: "abc", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := NewQuantityFromString(tt.input)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got.Int64Scaled())
		})
	}
}

func TestQuantityRound2(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{name: "exact", input: "2.50", want: "2.5000"},
		{name: "round down", input: "2.5049", want: "2.5000"},
		{name: "half away from zero", input: "2.505", want: "2.5100"},
		{name: "round up", input: "2.5051", want: "2.5100"},
		{name: "negative half away from zero", input: "-2.505", want: "-2.5100"},
		{name: "negative round down", input: "-2.5049", want: "-2.5000"},
		{name: "zero", input: "0", want: "0.0000"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := MustQuantity(tt.input).Round2()
			assert.Equal(t, tt.want, got.String())
		})
	}
}

func TestQuantityString(t *testing.T) {
	assert.Equal(t, "1.2345", MustQuantity("1.2345").String())
	assert.Equal(t, "-0.5000", MustQuantity("-0.5").String())
	assert.Equal(t, "0.0000", Quantity(0).String())
}

func TestQuantityJSONRoundTrip(t *testing.T) {
	q := MustQuantity("12.3456")

	data, err := json.Marshal(q)
	require.NoError(t, err)
	assert.Equal(t, "12.3456", string(data))

	var back Quantity
	require.NoError(t, json.Unmarshal(data, &back))
	assert.Equal(t, q, back)

	// String form is accepted too.
	require.NoError(t, json.Unmarshal([]byte(`"-3.25"`), &back))
	assert.Equal(t, MustQuantity("-3.25"), back)

	require.NoError(t, json.Unmarshal([]byte(`null`), &back))
	assert.True(t, back.IsZero())
}

func TestQuantityHelpers(t *testing.T) {
	assert.True(t, MustQuantity("1").IsPositive())
	assert.True(t, MustQuantity("-1").IsNegative())
	assert.Equal(t, MustQuantity("1"), MustQuantity("-1").Abs())
	assert.Equal(t, MustQuantity("-1"), MustQuantity("1").Neg())
	assert.Equal(t, MustQuantity("2"), MustQuantity("2").Min(MustQuantity("3")))
	assert.Equal(t, MustQuantity("2"), MustQuantity("3").Min(MustQuantity("2")))
}

func TestQuantitySumsAreExact(t *testing.T) {
	// 0.1 repeated: int64 addition has no float drift.
	var total Quantity
	for i := 0; i < 1000; i++ {
		total += MustQuantity("0.1")
	}
	assert.Equal(t, MustQuantity("100"), total)
}
