package holdings

import (
	"fmt"

	"github.com/rs/zerolog"

	"github.com/aristath/rebalancer/internal/domain"
)

// PriceLookup provides cached market prices. Implemented by the prices
// module; declared here so holdings does not depend on it.
type PriceLookup interface {
	GetCached(symbol string) (*domain.PricePoint, bool)
}

// Service layers current-value maintenance on top of the repository.
type Service struct {
	repo   *Repository
	prices PriceLookup
	log    zerolog.Logger
}

// NewService creates a new holdings service
func NewService(repo *Repository, prices PriceLookup, log zerolog.Logger) *Service {
	return &Service{
		repo:   repo,
		prices: prices,
		log:    log.With().Str("service", "holdings").Logger(),
	}
}

// GetAll returns the account's holdings with current values refreshed
// from the price cache where a cached price exists. The stored value is
// kept for holdings without shares or without a cached price, so
// manually entered values survive.
func (s *Service) GetAll(accountID string) ([]domain.Holding, error) {
	holdings, err := s.repo.GetAll(accountID)
	if err != nil {
		return nil, err
	}

	for i := range holdings {
		h := &holdings[i]
		if h.IsPlaceholder || h.Shares <= 0 {
			continue
		}

		price, ok := s.prices.GetCached(h.Symbol)
		if !ok {
			continue
		}

		value := h.Shares * price.Price
		if value == h.CurrentValue {
			continue
		}

		h.CurrentValue = value
		if err := s.repo.UpdateValue(h.ID, value); err != nil {
			return nil, fmt.Errorf("failed to refresh value for %s: %w", h.Symbol, err)
		}
	}

	return holdings, nil
}
