package prices

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/aristath/rebalancer/internal/apperrors"
	"github.com/aristath/rebalancer/internal/clients/yahoo"
	"github.com/aristath/rebalancer/internal/domain"
)

// maxConcurrentFetches bounds parallel Yahoo requests during a batch
// refresh so a large portfolio does not hammer the API.
const maxConcurrentFetches = 4

// Service provides market prices through a read-through cache backed by
// the price_cache table.
type Service struct {
	db     *sql.DB
	client *yahoo.Client
	maxAge time.Duration
	log    zerolog.Logger
}

// NewService creates a new price service. maxAge controls how long a
// cached price is served before a fresh fetch.
func NewService(db *sql.DB, client *yahoo.Client, maxAge time.Duration, log zerolog.Logger) *Service {
	return &Service{
		db:     db,
		client: client,
		maxAge: maxAge,
		log:    log.With().Str("service", "prices").Logger(),
	}
}

// GetCached returns the cached price for a symbol regardless of age.
// Used for valuing holdings without forcing a network fetch.
func (s *Service) GetCached(symbol string) (*domain.PricePoint, bool) {
	var p domain.PricePoint
	err := s.db.QueryRow(`
		SELECT symbol, price, currency, fetched_at
		FROM price_cache
		WHERE symbol = ?
	`, symbol).Scan(&p.Symbol, &p.Price, &p.Currency, &p.FetchedAt)
	if err != nil {
		return nil, false
	}
	return &p, true
}

// GetPrice returns the price for a symbol, fetching from Yahoo when the
// cached entry is missing or older than the configured max age.
func (s *Service) GetPrice(symbol string) (*domain.PricePoint, error) {
	if cached, ok := s.GetCached(symbol); ok && time.Since(cached.FetchedAt) < s.maxAge {
		return cached, nil
	}

	price, err := s.client.GetCurrentPrice(symbol, nil, 0)
	if err != nil {
		// A stale cached price beats an error for display purposes
		if cached, ok := s.GetCached(symbol); ok {
			s.log.Warn().Err(err).Str("symbol", symbol).Msg("Fetch failed, serving stale price")
			return cached, nil
		}
		return nil, fmt.Errorf("%w: %s", apperrors.ErrPriceNotFound, symbol)
	}

	p := &domain.PricePoint{
		Symbol:    symbol,
		Price:     *price,
		Currency:  "EUR",
		FetchedAt: time.Now().UTC(),
	}
	if err := s.store(p); err != nil {
		return nil, err
	}

	return p, nil
}

// RefreshAll fetches fresh prices for every distinct non-placeholder
// symbol in the holdings table. Failures are per-symbol: one delisted
// or unreachable symbol never blocks the others, and the first error
// is returned only after every fetch has run. Cancelling ctx aborts
// the symbols still queued.
func (s *Service) RefreshAll(ctx context.Context) (int, error) {
	symbols, err := s.listSymbols()
	if err != nil {
		return 0, err
	}

	// A plain Group, not WithContext: a failed symbol must not cancel
	// its siblings.
	var g errgroup.Group
	g.SetLimit(maxConcurrentFetches)

	refreshed := make(chan string, len(symbols))
	for _, symbol := range symbols {
		symbol := symbol
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			price, err := s.client.GetCurrentPrice(symbol, nil, 0)
			if err != nil {
				s.log.Warn().Err(err).Str("symbol", symbol).Msg("Price refresh failed for symbol")
				return fmt.Errorf("refresh %s: %w", symbol, err)
			}
			if err := s.store(&domain.PricePoint{
				Symbol:    symbol,
				Price:     *price,
				Currency:  "EUR",
				FetchedAt: time.Now().UTC(),
			}); err != nil {
				return err
			}
			refreshed <- symbol
			return nil
		})
	}

	err = g.Wait()
	close(refreshed)
	count := len(refreshed)

	s.log.Info().Int("refreshed", count).Int("total", len(symbols)).Msg("Price refresh finished")

	return count, err
}

// GetHistory returns historical closes for a symbol over a Yahoo period
// string such as "6mo" or "1y".
func (s *Service) GetHistory(symbol, period string) ([]yahoo.HistoricalPrice, error) {
	history, err := s.client.GetHistoricalPrices(symbol, nil, period)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", apperrors.ErrPriceNotFound, symbol)
	}
	if len(history) == 0 {
		return nil, fmt.Errorf("%w: %s", apperrors.ErrPriceNotFound, symbol)
	}
	return history, nil
}

func (s *Service) store(p *domain.PricePoint) error {
	_, err := s.db.Exec(`
		INSERT INTO price_cache (symbol, price, currency, fetched_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(symbol) DO UPDATE SET
			price = excluded.price,
			currency = excluded.currency,
			fetched_at = excluded.fetched_at
	`, p.Symbol, p.Price, p.Currency, p.FetchedAt)
	if err != nil {
		return fmt.Errorf("failed to store price: %w", err)
	}
	return nil
}

func (s *Service) listSymbols() ([]string, error) {
	rows, err := s.db.Query(`
		SELECT DISTINCT symbol FROM holdings WHERE is_placeholder = 0
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list symbols: %w", err)
	}
	defer rows.Close()

	var symbols []string
	for rows.Next() {
		var symbol string
		if err := rows.Scan(&symbol); err != nil {
			return nil, fmt.Errorf("failed to scan symbol: %w", err)
		}
		symbols = append(symbols, symbol)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating symbols: %w", err)
	}

	return symbols, nil
}
