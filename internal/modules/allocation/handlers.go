package allocation

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/aristath/rebalancer/internal/apperrors"
	"github.com/aristath/rebalancer/internal/domain"
	"github.com/aristath/rebalancer/internal/events"
)

// HoldingSource provides an account's holdings with refreshed values.
type HoldingSource interface {
	GetAll(accountID string) ([]domain.Holding, error)
}

// RuleSource provides an account's rule set, defaults included.
type RuleSource interface {
	Get(accountID string) (domain.RuleSet, error)
}

// Handler handles allocation HTTP requests. It only formats what the
// engine returns; targets are never recomputed here.
type Handler struct {
	holdings HoldingSource
	rules    RuleSource
	engine   *Engine
	events   *events.Manager
	log      zerolog.Logger
}

// NewHandler creates a new allocation handler
func NewHandler(
	holdings HoldingSource,
	rules RuleSource,
	engine *Engine,
	eventManager *events.Manager,
	log zerolog.Logger,
) *Handler {
	return &Handler{
		holdings: holdings,
		rules:    rules,
		engine:   engine,
		events:   eventManager,
		log:      log.With().Str("handler", "allocation").Logger(),
	}
}

type computeRequest struct {
	InvestableAmount float64 `json:"investable_amount"`
	Mode             string  `json:"mode"`
}

// HandleCompute runs the allocation engine for an account.
//
// Saturation is not an error: the response still carries status 200
// with saturated=true and the unallocated percentage.
func (h *Handler) HandleCompute(w http.ResponseWriter, r *http.Request) {
	accountID := chi.URLParam(r, "accountID")

	var req computeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Mode == "" {
		req.Mode = string(ModeProportional)
	}

	mode, err := ParseMode(req.Mode)
	if err != nil {
		h.writeError(w, statusFor(err), err.Error())
		return
	}

	result, err := h.compute(accountID, req.InvestableAmount, mode)
	if err != nil {
		h.writeError(w, statusFor(err), err.Error())
		return
	}

	h.events.Emit(events.AllocationComputed, "allocation", map[string]interface{}{
		"account_id":      accountID,
		"mode":            string(mode),
		"rounds":          result.Rounds,
		"saturated":       result.Saturated,
		"unallocated_pct": result.UnallocatedPct,
	})

	h.writeJSON(w, http.StatusOK, result)
}

// HandleDrift compares current portfolio weights to engine targets.
// Optional query params: mode (default proportional) and amount
// (default the portfolio's total current value).
func (h *Handler) HandleDrift(w http.ResponseWriter, r *http.Request) {
	accountID := chi.URLParam(r, "accountID")

	modeParam := r.URL.Query().Get("mode")
	if modeParam == "" {
		modeParam = string(ModeProportional)
	}
	mode, err := ParseMode(modeParam)
	if err != nil {
		h.writeError(w, statusFor(err), err.Error())
		return
	}

	amount := 0.0
	if amountParam := r.URL.Query().Get("amount"); amountParam != "" {
		amount, err = strconv.ParseFloat(amountParam, 64)
		if err != nil {
			h.writeError(w, http.StatusBadRequest, "amount must be a number")
			return
		}
		if amount < 0 {
			h.writeError(w, http.StatusBadRequest, "amount must not be negative")
			return
		}
	}

	result, err := h.computeWithDefaultAmount(accountID, amount, mode)
	if err != nil {
		h.writeError(w, statusFor(err), err.Error())
		return
	}

	h.writeJSON(w, http.StatusOK, BuildDriftReport(result))
}

func (h *Handler) compute(accountID string, amount float64, mode Mode) (*Result, error) {
	holdings, err := h.holdings.GetAll(accountID)
	if err != nil {
		return nil, err
	}

	rules, err := h.rules.Get(accountID)
	if err != nil {
		return nil, err
	}

	return h.engine.Compute(holdings, rules, amount, mode)
}

// computeWithDefaultAmount substitutes the portfolio's total current
// value when the caller did not specify an amount.
func (h *Handler) computeWithDefaultAmount(accountID string, amount float64, mode Mode) (*Result, error) {
	holdings, err := h.holdings.GetAll(accountID)
	if err != nil {
		return nil, err
	}

	rules, err := h.rules.Get(accountID)
	if err != nil {
		return nil, err
	}

	if amount <= 0 {
		for _, hld := range holdings {
			if !hld.IsPlaceholder {
				amount += hld.CurrentValue
			}
		}
	}

	return h.engine.Compute(holdings, rules, amount, mode)
}

func statusFor(err error) int {
	switch {
	case apperrors.IsValidation(err), errors.Is(err, apperrors.ErrInvalidMode):
		return http.StatusBadRequest
	case errors.Is(err, apperrors.ErrAccountNotFound):
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
