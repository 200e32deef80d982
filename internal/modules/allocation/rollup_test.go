package allocation

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildRollups_AggregatesByCategoryAndCountry(t *testing.T) {
	results := []HoldingResult{
		{Symbol: "AAPL", Category: "tech", Country: "US", CurrentValue: 600, TargetWeightPct: 40, TargetValue: 400},
		{Symbol: "MSFT", Category: "tech", Country: "US", CurrentValue: 200, TargetWeightPct: 30, TargetValue: 300},
		{Symbol: "SAP", Category: "software", Country: "DE", CurrentValue: 200, TargetWeightPct: 30, TargetValue: 300},
	}

	categories, countries, total := buildRollups(results, 1000)

	assert.InDelta(t, 1000.0, total, 1e-9)

	require.Len(t, categories, 2)
	// sorted by name: software, tech
	assert.Equal(t, "software", categories[0].Name)
	assert.InDelta(t, 200.0, categories[0].CurrentValue, 1e-9)
	assert.InDelta(t, 20.0, categories[0].CurrentPct, 1e-9)
	assert.InDelta(t, 300.0, categories[0].TargetValue, 1e-9)
	assert.InDelta(t, 30.0, categories[0].TargetPct, 1e-9)

	assert.Equal(t, "tech", categories[1].Name)
	assert.InDelta(t, 800.0, categories[1].CurrentValue, 1e-9)
	assert.InDelta(t, 80.0, categories[1].CurrentPct, 1e-9)
	assert.InDelta(t, 700.0, categories[1].TargetValue, 1e-9)
	assert.InDelta(t, 70.0, categories[1].TargetPct, 1e-9)

	require.Len(t, countries, 2)
	assert.Equal(t, "DE", countries[0].Name)
	assert.Equal(t, "US", countries[1].Name)
	assert.InDelta(t, 800.0, countries[1].CurrentValue, 1e-9)
}

func TestBuildRollups_SkipsEmptyKeys(t *testing.T) {
	results := []HoldingResult{
		{Symbol: "VWCE", Category: "", Country: "", CurrentValue: 500, TargetWeightPct: 50, TargetValue: 500},
		{Symbol: "AAPL", Category: "tech", Country: "US", CurrentValue: 500, TargetWeightPct: 50, TargetValue: 500},
	}

	categories, countries, total := buildRollups(results, 1000)

	assert.InDelta(t, 1000.0, total, 1e-9)
	require.Len(t, categories, 1)
	assert.Equal(t, "tech", categories[0].Name)
	require.Len(t, countries, 1)
	assert.Equal(t, "US", countries[0].Name)
}

func TestBuildRollups_ZeroCurrentValue(t *testing.T) {
	results := []HoldingResult{
		{Symbol: "NEW", Category: "tech", Country: "US", CurrentValue: 0, TargetWeightPct: 100, TargetValue: 1000},
	}

	categories, _, total := buildRollups(results, 1000)

	assert.InDelta(t, 0.0, total, 1e-9)
	require.Len(t, categories, 1)
	assert.InDelta(t, 0.0, categories[0].CurrentPct, 1e-9)
	assert.InDelta(t, 100.0, categories[0].TargetPct, 1e-9)
}
