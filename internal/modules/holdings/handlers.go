package holdings

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

// Handler handles holdings HTTP requests
type Handler struct {
	repo     *Repository
	service  *Service
	importer *Importer
	events   *events.Manager
	log      zerolog.Logger
}

// NewHandler creates a new holdings handler
func NewHandler(
	repo *Repository,
	service *Service,
	importer *Importer,
	eventManager *events.Manager,
	log zerolog.Logger,
) *Handler {
	return &Handler{
		repo:     repo,
		service:  service,
		importer: importer,
		events:   eventManager,
		log:      log.With().Str("handler", "holdings").Logger(),
	}
}

// HandleList returns all holdings in an account with refreshed values
func (h *Handler) HandleList(w http.ResponseWriter, r *http.Request) {
	holdings, err := h.service.GetAll(chi.URLParam(r, "accountID"))
	if err != nil {
		h.writeError(w, statusFor(err), err.Error())
		return
	}

	h.writeJSON(w, http.StatusOK, holdings)
}

type holdingRequest struct {
	Symbol               string   `json:"symbol"`
	DisplayName          string   `json:"display_name"`
	InstrumentType       string   `json:"instrument_type"`
	Category             string   `json:"category"`
	Country              string   `json:"country"`
	Shares               float64  `json:"shares"`
	CurrentValue         float64  `json:"current_value"`
	TargetWeightPct      *float64 `json:"target_weight_pct"`
	IsPlaceholder        bool     `json:"is_placeholder"`
	PlaceholderWeightPct float64  `json:"placeholder_weight_pct"`
}

func (req holdingRequest) toDomain(accountID string) domain.Holding {
	instrumentType := domain.InstrumentType(req.InstrumentType)
	if req.InstrumentType == "" {
		instrumentType = domain.InstrumentStock
	}
	displayName := req.DisplayName
	if displayName == "" {
		displayName = req.Symbol
	}
	return domain.Holding{
		AccountID:            accountID,
		Symbol:               req.Symbol,
		DisplayName:          displayName,
		InstrumentType:       instrumentType,
		Category:             req.Category,
		Country:              req.Country,
		Shares:               req.Shares,
		CurrentValue:         req.CurrentValue,
		TargetWeightPct:      req.TargetWeightPct,
		IsPlaceholder:        req.IsPlaceholder,
		PlaceholderWeightPct: req.PlaceholderWeightPct,
	}
}

// HandleCreate adds a holding to an account
func (h *Handler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	accountID := chi.URLParam(r, "accountID")

	var req holdingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	holding, err := h.repo.Create(req.toDomain(accountID))
	if err != nil {
		h.writeError(w, statusFor(err), err.Error())
		return
	}

	h.events.Emit(events.HoldingUpdated, "holdings", map[string]interface{}{
		"account_id": accountID,
		"holding_id": holding.ID,
		"symbol":     holding.Symbol,
	})

	h.writeJSON(w, http.StatusCreated, holding)
}

// HandleUpdate replaces a holding's mutable fields
func (h *Handler) HandleUpdate(w http.ResponseWriter, r *http.Request) {
	accountID := chi.URLParam(r, "accountID")
	holdingID := chi.URLParam(r, "holdingID")

	var req holdingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	holding := req.toDomain(accountID)
	holding.ID = holdingID

	updated, err := h.repo.Update(holding)
	if err != nil {
		h.writeError(w, statusFor(err), err.Error())
		return
	}

	h.events.Emit(events.HoldingUpdated, "holdings", map[string]interface{}{
		"account_id": accountID,
		"holding_id": holdingID,
		"symbol":     updated.Symbol,
	})

	h.writeJSON(w, http.StatusOK, updated)
}

// HandleDelete removes a holding
func (h *Handler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	accountID := chi.URLParam(r, "accountID")
	holdingID := chi.URLParam(r, "holdingID")

	if err := h.repo.Delete(accountID, holdingID); err != nil {
		h.writeError(w, statusFor(err), err.Error())
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// HandleImport ingests a brokerage CSV export into an account
func (h *Handler) HandleImport(w http.ResponseWriter, r *http.Request) {
	accountID := chi.URLParam(r, "accountID")

	// Accept both raw CSV bodies and multipart uploads with a "file" field
	body := r.Body
	if err := r.ParseMultipartForm(10 << 20); err == nil {
		if file, _, err := r.FormFile("file"); err == nil {
			defer file.Close()
			body = file
		}
	}

	result, err := h.importer.Import(accountID, body)
	if err != nil {
		h.writeError(w, statusFor(err), err.Error())
		return
	}

	h.events.Emit(events.HoldingsImported, "holdings", map[string]interface{}{
		"account_id": accountID,
		"imported":   result.Imported,
		"skipped":    result.Skipped,
	})

	h.writeJSON(w, http.StatusOK, result)
}

func statusFor(err error) int {
	switch {
	case apperrors.IsValidation(err):
		return http.StatusBadRequest
	case errors.Is(err, apperrors.ErrInvalidCSVHeaders):
		return http.StatusBadRequest
	case errors.Is(err, apperrors.ErrHoldingNotFound), errors.Is(err, apperrors.ErrAccountNotFound):
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
