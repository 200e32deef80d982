package prices

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/aristath/rebalancer/internal/apperrors"
	"github.com/aristath/rebalancer/internal/clients/yahoo"
	"github.com/aristath/rebalancer/pkg/formulas"
)

// Trend indicator windows, in trading days.
const (
	smaShortPeriod = 20
	smaLongPeriod  = 50
	rsiPeriod      = 14
)

// HoldingLookup resolves a holding ID to its symbol. Implemented by the
// holdings repository.
type HoldingLookup interface {
	SymbolFor(holdingID string) (string, error)
}

// Handler handles price HTTP requests
type Handler struct {
	service  *Service
	holdings HoldingLookup
	log      zerolog.Logger
}

// NewHandler creates a new prices handler
func NewHandler(service *Service, holdings HoldingLookup, log zerolog.Logger) *Handler {
	return &Handler{
		service:  service,
		holdings: holdings,
		log:      log.With().Str("handler", "prices").Logger(),
	}
}

// trendSummary carries the latest indicator readings over the requested
// history window.
type trendSummary struct {
	Sma20 *float64 `json:"sma_20"`
	Sma50 *float64 `json:"sma_50"`
	Rsi14 *float64 `json:"rsi_14"`

	// DailyVolatilityPct is the standard deviation of daily returns over
	// the window, in percent.
	DailyVolatilityPct *float64 `json:"daily_volatility_pct"`

	Direction string `json:"direction"` // "up", "down", "flat"
}

type historyResponse struct {
	Symbol  string                  `json:"symbol"`
	Period  string                  `json:"period"`
	History []yahoo.HistoricalPrice `json:"history"`
	Trend   trendSummary            `json:"trend"`
}

// HandleGetHistory returns historical prices for a holding plus an
// SMA/RSI trend summary
func (h *Handler) HandleGetHistory(w http.ResponseWriter, r *http.Request) {
	holdingID := chi.URLParam(r, "holdingID")

	symbol, err := h.holdings.SymbolFor(holdingID)
	if err != nil {
		h.writeError(w, statusFor(err), err.Error())
		return
	}

	period := r.URL.Query().Get("period")
	if period == "" {
		period = "6mo"
	}

	history, err := h.service.GetHistory(symbol, period)
	if err != nil {
		h.writeError(w, statusFor(err), err.Error())
		return
	}

	closes := make([]float64, len(history))
	for i, p := range history {
		closes[i] = p.Close
	}

	h.writeJSON(w, http.StatusOK, historyResponse{
		Symbol:  symbol,
		Period:  period,
		History: history,
		Trend:   buildTrend(closes),
	})
}

// HandleGetPrice returns the current (possibly cached) price for a holding
func (h *Handler) HandleGetPrice(w http.ResponseWriter, r *http.Request) {
	holdingID := chi.URLParam(r, "holdingID")

	symbol, err := h.holdings.SymbolFor(holdingID)
	if err != nil {
		h.writeError(w, statusFor(err), err.Error())
		return
	}

	price, err := h.service.GetPrice(symbol)
	if err != nil {
		h.writeError(w, statusFor(err), err.Error())
		return
	}

	h.writeJSON(w, http.StatusOK, price)
}

func buildTrend(closes []float64) trendSummary {
	trend := trendSummary{
		Sma20:     formulas.CalculateSMA(closes, smaShortPeriod),
		Sma50:     formulas.CalculateSMA(closes, smaLongPeriod),
		Rsi14:     formulas.CalculateRSI(closes, rsiPeriod),
		Direction: "flat",
	}

	if returns := formulas.CalculateReturns(closes); len(returns) >= 2 {
		vol := formulas.StdDev(returns) * 100
		trend.DailyVolatilityPct = &vol
	}

	// Short SMA above long SMA reads as an uptrend
	if trend.Sma20 != nil && trend.Sma50 != nil {
		switch {
		case *trend.Sma20 > *trend.Sma50:
			trend.Direction = "up"
		case *trend.Sma20 < *trend.Sma50:
			trend.Direction = "down"
		}
	}

	return trend
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, apperrors.ErrHoldingNotFound), errors.Is(err, apperrors.ErrPriceNotFound):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.log.Error().Err(err).Msg("Failed to encode JSON response")
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{"error": message})
}
