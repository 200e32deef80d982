package prices

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"

	"github.com/aristath/rebalancer/internal/clients/yahoo"
)

func setupTestDB(t *testing.T) *sql.DB {
	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)

	_, err = db.Exec(`
		CREATE TABLE price_cache (
			symbol TEXT PRIMARY KEY,
			price REAL NOT NULL,
			currency TEXT NOT NULL DEFAULT 'EUR',
			fetched_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
		);
		CREATE TABLE holdings (
			id TEXT PRIMARY KEY,
			account_id TEXT NOT NULL,
			symbol TEXT NOT NULL,
			is_placeholder INTEGER NOT NULL DEFAULT 0
		);
	`)
	require.NoError(t, err)

	return db
}

func quoteServer(t *testing.T, price float64, calls *int64) *httptest.Server {
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls != nil {
			atomic.AddInt64(calls, 1)
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"quoteResponse":{"result":[{"regularMarketPrice":%f}],"error":null}}`, price)
	}))
}

func TestService_GetPriceFetchesAndCaches(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	var calls int64
	server := quoteServer(t, 101.5, &calls)
	defer server.Close()

	client := yahoo.NewClient(server.URL, zerolog.Nop())
	svc := NewService(db, client, time.Hour, zerolog.Nop())

	p, err := svc.GetPrice("AAPL")
	require.NoError(t, err)
	assert.InDelta(t, 101.5, p.Price, 1e-9)
	assert.Equal(t, int64(1), atomic.LoadInt64(&calls))

	// Second call inside max age is served from the cache
	p, err = svc.GetPrice("AAPL")
	require.NoError(t, err)
	assert.InDelta(t, 101.5, p.Price, 1e-9)
	assert.Equal(t, int64(1), atomic.LoadInt64(&calls))
}

func TestService_GetPriceRefetchesStaleEntry(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	var calls int64
	server := quoteServer(t, 200.0, &calls)
	defer server.Close()

	client := yahoo.NewClient(server.URL, zerolog.Nop())
	svc := NewService(db, client, time.Minute, zerolog.Nop())

	// Seed a stale cache entry
	stale := time.Now().UTC().Add(-2 * time.Hour)
	_, err := db.Exec(`INSERT INTO price_cache (symbol, price, currency, fetched_at) VALUES (?, ?, ?, ?)`,
		"AAPL", 100.0, "EUR", stale)
	require.NoError(t, err)

	p, err := svc.GetPrice("AAPL")
	require.NoError(t, err)
	assert.InDelta(t, 200.0, p.Price, 1e-9)
	assert.Equal(t, int64(1), atomic.LoadInt64(&calls))
}

func TestService_GetPriceServesStaleOnFetchFailure(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	client := yahoo.NewClient(server.URL, zerolog.Nop())
	svc := NewService(db, client, time.Minute, zerolog.Nop())

	stale := time.Now().UTC().Add(-2 * time.Hour)
	_, err := db.Exec(`INSERT INTO price_cache (symbol, price, currency, fetched_at) VALUES (?, ?, ?, ?)`,
		"AAPL", 99.0, "EUR", stale)
	require.NoError(t, err)

	p, err := svc.GetPrice("AAPL")
	require.NoError(t, err)
	assert.InDelta(t, 99.0, p.Price, 1e-9)
}

func TestService_GetCached(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	svc := NewService(db, nil, time.Hour, zerolog.Nop())

	_, ok := svc.GetCached("MISSING")
	assert.False(t, ok)

	_, err := db.Exec(`INSERT INTO price_cache (symbol, price, currency, fetched_at) VALUES (?, ?, ?, ?)`,
		"SAP.DE", 150.25, "EUR", time.Now().UTC())
	require.NoError(t, err)

	p, ok := svc.GetCached("SAP.DE")
	require.True(t, ok)
	assert.InDelta(t, 150.25, p.Price, 1e-9)
	assert.Equal(t, "EUR", p.Currency)
}

func TestService_RefreshAll(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	var calls int64
	server := quoteServer(t, 42.0, &calls)
	defer server.Close()

	client := yahoo.NewClient(server.URL, zerolog.Nop())
	svc := NewService(db, client, time.Hour, zerolog.Nop())

	for i, symbol := range []string{"AAPL", "MSFT", "SAP.DE"} {
		_, err := db.Exec(`INSERT INTO holdings (id, account_id, symbol) VALUES (?, ?, ?)`,
			fmt.Sprintf("h%d", i), "acct-1", symbol)
		require.NoError(t, err)
	}
	// Placeholders are never fetched
	_, err := db.Exec(`INSERT INTO holdings (id, account_id, symbol, is_placeholder) VALUES (?, ?, ?, 1)`,
		"ph", "acct-1", "_REST")
	require.NoError(t, err)

	count, err := svc.RefreshAll(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, count)
	assert.Equal(t, int64(3), atomic.LoadInt64(&calls))

	p, ok := svc.GetCached("MSFT")
	require.True(t, ok)
	assert.InDelta(t, 42.0, p.Price, 1e-9)
}

func TestService_RefreshAllContinuesPastFailingSymbol(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	// One symbol always errors; every other symbol must still refresh.
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("symbols") == "DELISTED" {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"quoteResponse":{"result":[{"regularMarketPrice":10.0}],"error":null}}`)
	}))
	defer server.Close()

	client := yahoo.NewClient(server.URL, zerolog.Nop())
	svc := NewService(db, client, time.Hour, zerolog.Nop())

	symbols := []string{"A1", "A2", "DELISTED", "A3", "A4", "A5", "A6", "A7", "A8"}
	for i, symbol := range symbols {
		_, err := db.Exec(`INSERT INTO holdings (id, account_id, symbol) VALUES (?, ?, ?)`,
			fmt.Sprintf("h%d", i), "acct-1", symbol)
		require.NoError(t, err)
	}

	count, err := svc.RefreshAll(context.Background())

	require.Error(t, err)
	assert.Contains(t, err.Error(), "DELISTED")
	assert.Equal(t, len(symbols)-1, count, "good symbols behind the failing one must still be fetched")

	for _, symbol := range symbols {
		_, ok := svc.GetCached(symbol)
		if symbol == "DELISTED" {
			assert.False(t, ok)
		} else {
			assert.True(t, ok, "symbol %s", symbol)
		}
	}
}
