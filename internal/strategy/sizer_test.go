package strategy

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQuantityPrecision(t *testing.T) {
	tests := []struct {
		minQty string
		want   int32
	}{
		{"0.0010", 3},
		{"0.001", 3},
		{"0.00100000", 3},
		{"0.10000000", 1},
		{"0.00000100", 6},
		{"1", 0},
		{"1.00000000", 0},
		{"10.5", 1},
		{"0", 0},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, QuantityPrecision(tt.minQty), tt.minQty)
	}
}

func TestNewTradingRule(t *testing.T) {
	rule, err := NewTradingRule("BTCUSDT", "0.00001000", "0.00001000")
	require.NoError(t, err)
	assert.Equal(t, int32(5), rule.QuantityPrecision)
	assert.Equal(t, "0.00001", rule.MinQuantity.String())
	assert.Equal(t, "0.00001", rule.StepSize.String())

	_, err = NewTradingRule("BTCUSDT", "abc", "")
	assert.Error(t, err)
	_, err = NewTradingRule("BTCUSDT", "-1", "")
	assert.Error(t, err)
}

func TestSize_BelowMinimumAfterRounding(t *testing.T) {
	rule, err := NewTradingRule("BTCUSDT", "0.001", "")
	require.NoError(t, err)

	_, err = Size("BTCUSDT", 20, 50000, rule)
	require.ErrorIs(t, err, ErrUnfillable)
}

func TestSize_UnfillableBoundary(t *testing.T) {
	rule, err := NewTradingRule("ETHUSDT", "0.001", "0.001")
	require.NoError(t, err)

	// rounds to exactly the minimum
	_, err = Size("ETHUSDT", 1.2, 1000, rule)
	assert.ErrorIs(t, err, ErrUnfillable)
	_, err = Size("ETHUSDT", 1.0, 1000, rule)
	assert.ErrorIs(t, err, ErrUnfillable)

	// rounds to one step above it
	req, err := Size("ETHUSDT", 1.6, 1000, rule)
	require.NoError(t, err)
	assert.Equal(t, "0.002", req.Quantity.String())
	assert.Equal(t, 1000.0, req.ImpliedPrice)
	assert.Equal(t, 1.6, req.TargetSpend)
	assert.Equal(t, "ETHUSDT", req.Symbol)
}

func TestSize_RoundsHalfAwayFromZero(t *testing.T) {
	rule, err := NewTradingRule("ETHUSDT", "0.001", "")
	require.NoError(t, err)

	req, err := Size("ETHUSDT", 1.5, 1000, rule)
	require.NoError(t, err)
	assert.Equal(t, "0.002", req.Quantity.String())
}

func TestSize_WholeUnits(t *testing.T) {
	rule, err := NewTradingRule("DOGEUSDT", "1.00000000", "1.00000000")
	require.NoError(t, err)
	assert.Equal(t, int32(0), rule.QuantityPrecision)

	req, err := Size("DOGEUSDT", 100, 0.16, rule)
	require.NoError(t, err)
	assert.Equal(t, "625", req.Quantity.String())

	_, err = Size("DOGEUSDT", 0.2, 0.16, rule)
	assert.ErrorIs(t, err, ErrUnfillable)
}

func TestSize_Idempotent(t *testing.T) {
	rule, err := NewTradingRule("SOLUSDT", "0.01", "0.01")
	require.NoError(t, err)

	a, errA := Size("SOLUSDT", 37.77, 143.21, rule)
	b, errB := Size("SOLUSDT", 37.77, 143.21, rule)
	require.NoError(t, errA)
	require.NoError(t, errB)
	assert.True(t, a.Quantity.Equal(b.Quantity))
	assert.Equal(t, a, b)
	assert.Equal(t, "0.26", a.Quantity.String())
}

func TestSize_InvalidInputs(t *testing.T) {
	rule, err := NewTradingRule("BTCUSDT", "0.001", "")
	require.NoError(t, err)

	_, err = Size("BTCUSDT", 10, 0, rule)
	assert.ErrorIs(t, err, ErrInvalidPrice)
	_, err = Size("BTCUSDT", 10, -3, rule)
	assert.ErrorIs(t, err, ErrInvalidPrice)
	_, err = Size("BTCUSDT", 0, 100, rule)
	assert.ErrorIs(t, err, ErrInvalidSpend)
}
