package rules

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/aristath/rebalancer/internal/apperrors"
	"github.com/aristath/rebalancer/internal/domain"
	"github.com/aristath/rebalancer/internal/events"
)

// Handler handles rule set HTTP requests
type Handler struct {
	repo   *Repository
	events *events.Manager
	log    zerolog.Logger
}

// NewHandler creates a new rules handler
func NewHandler(repo *Repository, eventManager *events.Manager, log zerolog.Logger) *Handler {
	return &Handler{
		repo:   repo,
		events: eventManager,
		log:    log.With().Str("handler", "rules").Logger(),
	}
}

// HandleGet returns the rule set for an account, defaults included
func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	rs, err := h.repo.Get(chi.URLParam(r, "accountID"))
	if err != nil {
		h.writeError(w, statusFor(err), err.Error())
		return
	}

	h.writeJSON(w, http.StatusOK, rs)
}

type ruleSetRequest struct {
	MaxPerStockPct    float64  `json:"max_per_stock_pct"`
	MaxPerEtfPct      float64  `json:"max_per_etf_pct"`
	MaxPerCategoryPct *float64 `json:"max_per_category_pct"`
	MaxPerCountryPct  *float64 `json:"max_per_country_pct"`
}

// HandlePut replaces the rule set for an account
func (h *Handler) HandlePut(w http.ResponseWriter, r *http.Request) {
	accountID := chi.URLParam(r, "accountID")

	var req ruleSetRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	rs, err := h.repo.Save(domain.RuleSet{
		AccountID:         accountID,
		MaxPerStockPct:    req.MaxPerStockPct,
		MaxPerEtfPct:      req.MaxPerEtfPct,
		MaxPerCategoryPct: req.MaxPerCategoryPct,
		MaxPerCountryPct:  req.MaxPerCountryPct,
	})
	if err != nil {
		h.writeError(w, statusFor(err), err.Error())
		return
	}

	h.events.Emit(events.RulesUpdated, "rules", map[string]interface{}{
		"account_id": accountID,
	})

	h.writeJSON(w, http.StatusOK, rs)
}

func statusFor(err error) int {
	switch {
	case apperrors.IsValidation(err):
		return http.StatusBadRequest
	case errors.Is(err, apperrors.ErrRuleSetNotFound):
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
