package rules

import (
	"database/sql"
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
		CREATE TABLE rule_sets (
			account_id TEXT PRIMARY KEY,
			max_per_stock_pct REAL NOT NULL DEFAULT 2.0,
			max_per_etf_pct REAL NOT NULL DEFAULT 5.0,
			max_per_category_pct REAL,
			max_per_country_pct REAL,
			updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
		)
	`)
	require.NoError(t, err)

	return db
}

func floatPtr(v float64) *float64 {
	return &v
}

func TestRepository_GetReturnsDefaultsWhenUnset(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	repo := NewRepository(db, zerolog.Nop())

	rs, err := repo.Get("acct-1")
	require.NoError(t, err)

	assert.Equal(t, "acct-1", rs.AccountID)
	assert.InDelta(t, domain.DefaultMaxPerStockPct, rs.MaxPerStockPct, 1e-9)
	assert.InDelta(t, domain.DefaultMaxPerEtfPct, rs.MaxPerEtfPct, 1e-9)
	assert.Nil(t, rs.MaxPerCategoryPct)
	assert.Nil(t, rs.MaxPerCountryPct)
}

func TestRepository_SaveAndGetRoundtrip(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	repo := NewRepository(db, zerolog.Nop())

	saved, err := repo.Save(domain.RuleSet{
		AccountID:         "acct-1",
		MaxPerStockPct:    3,
		MaxPerEtfPct:      8,
		MaxPerCategoryPct: floatPtr(25),
	})
	require.NoError(t, err)
	assert.False(t, saved.UpdatedAt.IsZero())

	got, err := repo.Get("acct-1")
	require.NoError(t, err)
	assert.InDelta(t, 3.0, got.MaxPerStockPct, 1e-9)
	assert.InDelta(t, 8.0, got.MaxPerEtfPct, 1e-9)
	require.NotNil(t, got.MaxPerCategoryPct)
	assert.InDelta(t, 25.0, *got.MaxPerCategoryPct, 1e-9)
	assert.Nil(t, got.MaxPerCountryPct)
}

func TestRepository_SaveIsUpsert(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	repo := NewRepository(db, zerolog.Nop())

	_, err := repo.Save(domain.RuleSet{AccountID: "acct-1", MaxPerStockPct: 2, MaxPerEtfPct: 5})
	require.NoError(t, err)

	_, err = repo.Save(domain.RuleSet{AccountID: "acct-1", MaxPerStockPct: 4, MaxPerEtfPct: 10})
	require.NoError(t, err)

	got, err := repo.Get("acct-1")
	require.NoError(t, err)
	assert.InDelta(t, 4.0, got.MaxPerStockPct, 1e-9)
	assert.InDelta(t, 10.0, got.MaxPerEtfPct, 1e-9)
}

func TestRepository_SaveValidatesCaps(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	repo := NewRepository(db, zerolog.Nop())

	tests := []struct {
		name string
		rs   domain.RuleSet
	}{
		{"negative stock cap", domain.RuleSet{AccountID: "a", MaxPerStockPct: -1, MaxPerEtfPct: 5}},
		{"etf cap above 100", domain.RuleSet{AccountID: "a", MaxPerStockPct: 2, MaxPerEtfPct: 120}},
		{"bad category cap", domain.RuleSet{AccountID: "a", MaxPerStockPct: 2, MaxPerEtfPct: 5, MaxPerCategoryPct: floatPtr(101)}},
		{"bad country cap", domain.RuleSet{AccountID: "a", MaxPerStockPct: 2, MaxPerEtfPct: 5, MaxPerCountryPct: floatPtr(-5)}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := repo.Save(tt.rs)
			require.Error(t, err)
			assert.True(t, apperrors.IsValidation(err))
		})
	}
}
