package formulas

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCalculateSMA(t *testing.T) {
	closes := []float64{1, 2, 3, 4, 5}

	sma := CalculateSMA(closes, 5)
	require.NotNil(t, sma)
	assert.InDelta(t, 3.0, *sma, 1e-9)

	sma = CalculateSMA(closes, 3)
	require.NotNil(t, sma)
	assert.InDelta(t, 4.0, *sma, 1e-9)

	assert.Nil(t, CalculateSMA(closes, 6), "insufficient data")
}

func TestCalculateRSI(t *testing.T) {
	// Monotonically rising closes push RSI to 100
	closes := make([]float64, 30)
	for i := range closes {
		closes[i] = 100 + float64(i)
	}

	rsi := CalculateRSI(closes, 14)
	require.NotNil(t, rsi)
	assert.InDelta(t, 100.0, *rsi, 1e-6)

	assert.Nil(t, CalculateRSI(closes[:10], 14), "insufficient data")
}
