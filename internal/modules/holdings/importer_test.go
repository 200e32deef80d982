package holdings

import (
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/rebalancer/internal/apperrors"
	"github.com/aristath/rebalancer/internal/domain"
)

func TestParsePlaceholder(t *testing.T) {
	tests := []struct {
		displayName string
		wantCount   int
		wantOK      bool
	}{
		{"12 remaining positions", 12, true},
		{"1 remaining positions", 1, true},
		{"12 Remaining Positions", 12, true},
		{"AAPL", 0, false},
		{"remaining positions", 0, false},
		{"twelve remaining positions", 0, false},
		{"12 remaining stocks", 0, false},
	}

	for _, tt := range tests {
		count, ok := parsePlaceholder(tt.displayName)
		assert.Equal(t, tt.wantOK, ok, "display name %q", tt.displayName)
		assert.Equal(t, tt.wantCount, count, "display name %q", tt.displayName)
	}
}

func TestParseInstrumentType(t *testing.T) {
	assert.Equal(t, domain.InstrumentStock, parseInstrumentType(""))
	assert.Equal(t, domain.InstrumentStock, parseInstrumentType("Stock"))
	assert.Equal(t, domain.InstrumentStock, parseInstrumentType("equity"))
	assert.Equal(t, domain.InstrumentETF, parseInstrumentType("ETF"))
	assert.Equal(t, domain.InstrumentETF, parseInstrumentType("fund"))
	assert.Equal(t, domain.InstrumentOther, parseInstrumentType("bond"))
}

func TestParseDecimal(t *testing.T) {
	tests := []struct {
		in      string
		want    float64
		wantErr bool
	}{
		{"1234.56", 1234.56, false},
		{"1,234.56", 1234.56, false},
		{"0", 0, false},
		{"-12.5", -12.5, false},
		{"abc", 0, true},
		{"", 0, true},
	}

	for _, tt := range tests {
		got, err := parseDecimal(tt.in)
		if tt.wantErr {
			assert.Error(t, err, "input %q", tt.in)
			continue
		}
		require.NoError(t, err, "input %q", tt.in)
		assert.InDelta(t, tt.want, got, 1e-9, "input %q", tt.in)
	}
}

func TestImporter_ParseRow(t *testing.T) {
	im := &Importer{}
	cols := map[string]int{
		"symbol":            0,
		"display_name":      1,
		"instrument_type":   2,
		"category":          3,
		"country":           4,
		"shares":            5,
		"current_value":     6,
		"target_weight_pct": 7,
	}

	h, err := im.parseRow("acct-1", cols, []string{
		"AAPL.US", "Apple Inc", "stock", "tech", "US", "10", "1,750.00", "3%",
	})
	require.NoError(t, err)

	assert.Equal(t, "acct-1", h.AccountID)
	assert.Equal(t, "AAPL.US", h.Symbol)
	assert.Equal(t, "Apple Inc", h.DisplayName)
	assert.Equal(t, domain.InstrumentStock, h.InstrumentType)
	assert.Equal(t, "tech", h.Category)
	assert.Equal(t, "US", h.Country)
	assert.InDelta(t, 10.0, h.Shares, 1e-9)
	assert.InDelta(t, 1750.0, h.CurrentValue, 1e-9)
	require.NotNil(t, h.TargetWeightPct)
	assert.InDelta(t, 3.0, *h.TargetWeightPct, 1e-9)
	assert.False(t, h.IsPlaceholder)
}

func TestImporter_ParseRowPlaceholder(t *testing.T) {
	im := &Importer{}
	cols := map[string]int{
		"symbol":        0,
		"display_name":  1,
		"current_value": 2,
	}

	h, err := im.parseRow("acct-1", cols, []string{"_REST", "4 remaining positions", "0"})
	require.NoError(t, err)

	assert.True(t, h.IsPlaceholder)
	assert.InDelta(t, 25.0, h.PlaceholderWeightPct, 1e-9)
}

func TestImporter_ParseRowRejectsBadData(t *testing.T) {
	im := &Importer{}
	cols := map[string]int{"symbol": 0, "current_value": 1}

	_, err := im.parseRow("acct-1", cols, []string{"", "100"})
	assert.Error(t, err, "empty symbol")

	_, err = im.parseRow("acct-1", cols, []string{"AAPL", "not-a-number"})
	assert.Error(t, err, "bad value")
}

func TestImporter_RejectsMissingHeaders(t *testing.T) {
	im := NewImporter(nil, zerolog.Nop())

	_, err := im.Import("acct-1", strings.NewReader("foo,bar\nx,y\n"))
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrInvalidCSVHeaders)

	// A value column alone is not enough either
	_, err = im.Import("acct-1", strings.NewReader("value\n100\n"))
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrInvalidCSVHeaders)
}

func TestImporter_HeaderMapping(t *testing.T) {
	// Alias headers from different brokerage exports map onto the same
	// logical columns.
	for header, logical := range map[string]string{
		"ticker":       "symbol",
		"description":  "display_name",
		"quantity":     "shares",
		"market_value": "current_value",
		"sector":       "category",
	} {
		assert.Equal(t, logical, columnAliases[header], "header %q", header)
	}
}
