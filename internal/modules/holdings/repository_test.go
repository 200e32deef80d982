package holdings

import (
	"database/sql"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"

	"github.com/aristath/rebalancer/internal/apperrors"
	"github.com/aristath/rebalancer/internal/domain"
)

func setupTestDB(t *testing.T) *sql.DB {
	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)

	_, err = db.Exec(`
		CREATE TABLE holdings (
			id TEXT PRIMARY KEY,
			account_id TEXT NOT NULL,
			symbol TEXT NOT NULL,
			display_name TEXT NOT NULL DEFAULT '',
			instrument_type TEXT NOT NULL DEFAULT 'stock',
			category TEXT NOT NULL DEFAULT '',
			country TEXT NOT NULL DEFAULT '',
			shares REAL NOT NULL DEFAULT 0,
			current_value REAL NOT NULL DEFAULT 0,
			target_weight_pct REAL,
			is_placeholder INTEGER NOT NULL DEFAULT 0,
			placeholder_weight_pct REAL NOT NULL DEFAULT 0,
			last_updated TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
			UNIQUE(account_id, symbol)
		)
	`)
	require.NoError(t, err)

	return db
}

func testHolding(symbol string) domain.Holding {
	return domain.Holding{
		AccountID:      "acct-1",
		Symbol:         symbol,
		DisplayName:    symbol,
		InstrumentType: domain.InstrumentStock,
		Category:       "tech",
		Country:        "US",
		Shares:         10,
		CurrentValue:   1000,
	}
}

func TestRepository_CreateAndGet(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	repo := NewRepository(db, zerolog.Nop())

	created, err := repo.Create(testHolding("AAPL.US"))
	require.NoError(t, err)
	assert.NotEmpty(t, created.ID)

	got, err := repo.Get(created.ID)
	require.NoError(t, err)
	assert.Equal(t, "AAPL.US", got.Symbol)
	assert.Nil(t, got.TargetWeightPct)
}

func TestRepository_TargetWeightRoundtrip(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	repo := NewRepository(db, zerolog.Nop())

	h := testHolding("VWCE.DE")
	weight := 15.0
	h.TargetWeightPct = &weight

	created, err := repo.Create(h)
	require.NoError(t, err)

	got, err := repo.Get(created.ID)
	require.NoError(t, err)
	require.NotNil(t, got.TargetWeightPct)
	assert.InDelta(t, 15.0, *got.TargetWeightPct, 1e-9)
}

func TestRepository_GetAllScopedToAccount(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	repo := NewRepository(db, zerolog.Nop())

	_, err := repo.Create(testHolding("AAPL.US"))
	require.NoError(t, err)

	other := testHolding("MSFT.US")
	other.AccountID = "acct-2"
	_, err = repo.Create(other)
	require.NoError(t, err)

	holdings, err := repo.GetAll("acct-1")
	require.NoError(t, err)
	require.Len(t, holdings, 1)
	assert.Equal(t, "AAPL.US", holdings[0].Symbol)
}

func TestRepository_Update(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	repo := NewRepository(db, zerolog.Nop())

	created, err := repo.Create(testHolding("AAPL.US"))
	require.NoError(t, err)

	created.Shares = 20
	created.CurrentValue = 3500
	updated, err := repo.Update(*created)
	require.NoError(t, err)
	assert.InDelta(t, 20.0, updated.Shares, 1e-9)

	got, err := repo.Get(created.ID)
	require.NoError(t, err)
	assert.InDelta(t, 3500.0, got.CurrentValue, 1e-9)
}

func TestRepository_UpdateWrongAccountFails(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	repo := NewRepository(db, zerolog.Nop())

	created, err := repo.Create(testHolding("AAPL.US"))
	require.NoError(t, err)

	created.AccountID = "acct-2"
	_, err = repo.Update(*created)
	assert.ErrorIs(t, err, apperrors.ErrHoldingNotFound)
}

func TestRepository_UpsertIsIdempotentBySymbol(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	repo := NewRepository(db, zerolog.Nop())

	h := testHolding("AAPL.US")
	require.NoError(t, repo.Upsert(h))

	h.CurrentValue = 2000
	require.NoError(t, repo.Upsert(h))

	holdings, err := repo.GetAll("acct-1")
	require.NoError(t, err)
	require.Len(t, holdings, 1)
	assert.InDelta(t, 2000.0, holdings[0].CurrentValue, 1e-9)
}

func TestRepository_Delete(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	repo := NewRepository(db, zerolog.Nop())

	created, err := repo.Create(testHolding("AAPL.US"))
	require.NoError(t, err)

	require.NoError(t, repo.Delete("acct-1", created.ID))
	assert.ErrorIs(t, repo.Delete("acct-1", created.ID), apperrors.ErrHoldingNotFound)
}

func TestRepository_SymbolFor(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	repo := NewRepository(db, zerolog.Nop())

	created, err := repo.Create(testHolding("SAP.DE"))
	require.NoError(t, err)

	symbol, err := repo.SymbolFor(created.ID)
	require.NoError(t, err)
	assert.Equal(t, "SAP.DE", symbol)

	_, err = repo.SymbolFor("missing")
	assert.ErrorIs(t, err, apperrors.ErrHoldingNotFound)
}

func TestRepository_ValidationRejectsBadRows(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	repo := NewRepository(db, zerolog.Nop())

	tests := []struct {
		name   string
		mutate func(*domain.Holding)
	}{
		{"empty account", func(h *domain.Holding) { h.AccountID = "" }},
		{"empty symbol", func(h *domain.Holding) { h.Symbol = "" }},
		{"bad instrument type", func(h *domain.Holding) { h.InstrumentType = "crypto" }},
		{"negative shares", func(h *domain.Holding) { h.Shares = -1 }},
		{"negative value", func(h *domain.Holding) { h.CurrentValue = -100 }},
		{"weight above 100", func(h *domain.Holding) { w := 150.0; h.TargetWeightPct = &w }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := testHolding("TEST")
			tt.mutate(&h)
			_, err := repo.Create(h)
			require.Error(t, err)
			assert.True(t, apperrors.IsValidation(err))
		})
	}
}

func TestImporter_ImportUpsertsRows(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	repo := NewRepository(db, zerolog.Nop())
	im := NewImporter(repo, zerolog.Nop())

	csvData := strings.Join([]string{
		"symbol,name,type,category,country,shares,value,target_weight",
		"AAPL.US,Apple Inc,stock,tech,US,10,1750.00,",
		"VWCE.DE,Vanguard FTSE All-World,etf,world,,5,550.00,20",
		"_REST,4 remaining positions,stock,growth,,0,0,",
		",missing symbol,stock,tech,US,1,100,",
	}, "\n")

	result, err := im.Import("acct-1", strings.NewReader(csvData))
	require.NoError(t, err)
	assert.Equal(t, 3, result.Imported)
	assert.Equal(t, 1, result.Skipped)
	require.Len(t, result.Errors, 1)

	holdings, err := repo.GetAll("acct-1")
	require.NoError(t, err)
	require.Len(t, holdings, 3)

	// Re-import with updated values keeps one row per symbol
	result, err = im.Import("acct-1", strings.NewReader(
		"symbol,value\nAAPL.US,1800.00\n"))
	require.NoError(t, err)
	assert.Equal(t, 1, result.Imported)

	holdings, err = repo.GetAll("acct-1")
	require.NoError(t, err)
	assert.Len(t, holdings, 3)

	for _, h := range holdings {
		if h.Symbol == "AAPL.US" {
			assert.InDelta(t, 1800.0, h.CurrentValue, 1e-9)
		}
		if h.Symbol == "_REST" {
			assert.True(t, h.IsPlaceholder)
			assert.InDelta(t, 25.0, h.PlaceholderWeightPct, 1e-9)
		}
	}
}
