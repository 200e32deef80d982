package accounts

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/aristath/rebalancer/internal/apperrors"
	"github.com/aristath/rebalancer/internal/events"
)

// Handler handles account HTTP requests
type Handler struct {
	repo   *Repository
	events *events.Manager
	log    zerolog.Logger
}

// NewHandler creates a new account handler
func NewHandler(repo *Repository, eventManager *events.Manager, log zerolog.Logger) *Handler {
	return &Handler{
		repo:   repo,
		events: eventManager,
		log:    log.With().Str("handler", "accounts").Logger(),
	}
}

type accountRequest struct {
	Name         string `json:"name"`
	BaseCurrency string `json:"base_currency"`
}

// HandleList returns all accounts
func (h *Handler) HandleList(w http.ResponseWriter, r *http.Request) {
	accounts, err := h.repo.GetAll()
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	h.writeJSON(w, http.StatusOK, accounts)
}

// HandleGet returns one account
func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	account, err := h.repo.Get(chi.URLParam(r, "accountID"))
	if err != nil {
		h.writeError(w, statusFor(err), err.Error())
		return
	}

	h.writeJSON(w, http.StatusOK, account)
}

// HandleCreate creates a new account
func (h *Handler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	var req accountRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	account, err := h.repo.Create(req.Name, req.BaseCurrency)
	if err != nil {
		h.writeError(w, statusFor(err), err.Error())
		return
	}

	h.events.Emit(events.AccountCreated, "accounts", map[string]interface{}{
		"account_id": account.ID,
		"name":       account.Name,
	})

	h.writeJSON(w, http.StatusCreated, account)
}

// HandleUpdate renames an account
func (h *Handler) HandleUpdate(w http.ResponseWriter, r *http.Request) {
	var req accountRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	account, err := h.repo.Rename(chi.URLParam(r, "accountID"), req.Name)
	if err != nil {
		h.writeError(w, statusFor(err), err.Error())
		return
	}

	h.writeJSON(w, http.StatusOK, account)
}

// HandleDelete removes an account and everything under it
func (h *Handler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	if err := h.repo.Delete(chi.URLParam(r, "accountID")); err != nil {
		h.writeError(w, statusFor(err), err.Error())
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func statusFor(err error) int {
	switch {
	case apperrors.IsValidation(err):
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
