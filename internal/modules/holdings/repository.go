package holdings

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/aristath/rebalancer/internal/apperrors"
	"github.com/aristath/rebalancer/internal/domain"
)

// Repository handles holding database operations
type Repository struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewRepository creates a new holdings repository
func NewRepository(db *sql.DB, log zerolog.Logger) *Repository {
	return &Repository{
		db:  db,
		log: log.With().Str("repo", "holdings").Logger(),
	}
}

const holdingColumns = `id, account_id, symbol, display_name, instrument_type, category, country,
	shares, current_value, target_weight_pct, is_placeholder, placeholder_weight_pct, last_updated`

// GetAll returns every holding in an account, placeholders included.
func (r *Repository) GetAll(accountID string) ([]domain.Holding, error) {
	rows, err := r.db.Query(`
		SELECT `+holdingColumns+`
		FROM holdings
		WHERE account_id = ?
		ORDER BY symbol
	`, accountID)
	if err != nil {
		return nil, fmt.Errorf("failed to query holdings: %w", err)
	}
	defer rows.Close()

	holdings := []domain.Holding{}
	for rows.Next() {
		h, err := scanHolding(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan holding: %w", err)
		}
		holdings = append(holdings, h)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating holdings: %w", err)
	}

	return holdings, nil
}

// Get returns one holding by ID.
func (r *Repository) Get(holdingID string) (*domain.Holding, error) {
	row := r.db.QueryRow(`
		SELECT `+holdingColumns+`
		FROM holdings
		WHERE id = ?
	`, holdingID)

	h, err := scanHolding(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperrors.ErrHoldingNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query holding: %w", err)
	}

	return &h, nil
}

// SymbolFor resolves a holding ID to its symbol.
func (r *Repository) SymbolFor(holdingID string) (string, error) {
	var symbol string
	err := r.db.QueryRow(`SELECT symbol FROM holdings WHERE id = ?`, holdingID).Scan(&symbol)
	if errors.Is(err, sql.ErrNoRows) {
		return "", apperrors.ErrHoldingNotFound
	}
	if err != nil {
		return "", fmt.Errorf("failed to query holding symbol: %w", err)
	}
	return symbol, nil
}

// Create inserts a new holding with a generated ID.
func (r *Repository) Create(h domain.Holding) (*domain.Holding, error) {
	if err := validateHolding(h); err != nil {
		return nil, err
	}

	h.ID = uuid.NewString()
	h.LastUpdated = time.Now().UTC()

	_, err := r.db.Exec(`
		INSERT INTO holdings (id, account_id, symbol, display_name, instrument_type, category, country,
		                      shares, current_value, target_weight_pct, is_placeholder, placeholder_weight_pct, last_updated)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, h.ID, h.AccountID, h.Symbol, h.DisplayName, h.InstrumentType, h.Category, h.Country,
		h.Shares, h.CurrentValue, h.TargetWeightPct, h.IsPlaceholder, h.PlaceholderWeightPct, h.LastUpdated)
	if err != nil {
		return nil, fmt.Errorf("failed to insert holding: %w", err)
	}

	return &h, nil
}

// Update replaces the mutable fields of an existing holding.
func (r *Repository) Update(h domain.Holding) (*domain.Holding, error) {
	if err := validateHolding(h); err != nil {
		return nil, err
	}

	h.LastUpdated = time.Now().UTC()

	res, err := r.db.Exec(`
		UPDATE holdings
		SET symbol = ?, display_name = ?, instrument_type = ?, category = ?, country = ?,
		    shares = ?, current_value = ?, target_weight_pct = ?,
		    is_placeholder = ?, placeholder_weight_pct = ?, last_updated = ?
		WHERE id = ? AND account_id = ?
	`, h.Symbol, h.DisplayName, h.InstrumentType, h.Category, h.Country,
		h.Shares, h.CurrentValue, h.TargetWeightPct,
		h.IsPlaceholder, h.PlaceholderWeightPct, h.LastUpdated,
		h.ID, h.AccountID)
	if err != nil {
		return nil, fmt.Errorf("failed to update holding: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("failed to check update result: %w", err)
	}
	if affected == 0 {
		return nil, apperrors.ErrHoldingNotFound
	}

	return &h, nil
}

// Upsert inserts a holding or, when the account already has the symbol,
// updates it in place. Used by the CSV importer.
func (r *Repository) Upsert(h domain.Holding) error {
	if err := validateHolding(h); err != nil {
		return err
	}

	if h.ID == "" {
		h.ID = uuid.NewString()
	}
	h.LastUpdated = time.Now().UTC()

	_, err := r.db.Exec(`
		INSERT INTO holdings (id, account_id, symbol, display_name, instrument_type, category, country,
		                      shares, current_value, target_weight_pct, is_placeholder, placeholder_weight_pct, last_updated)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(account_id, symbol) DO UPDATE SET
			display_name = excluded.display_name,
			instrument_type = excluded.instrument_type,
			category = excluded.category,
			country = excluded.country,
			shares = excluded.shares,
			current_value = excluded.current_value,
			target_weight_pct = excluded.target_weight_pct,
			is_placeholder = excluded.is_placeholder,
			placeholder_weight_pct = excluded.placeholder_weight_pct,
			last_updated = excluded.last_updated
	`, h.ID, h.AccountID, h.Symbol, h.DisplayName, h.InstrumentType, h.Category, h.Country,
		h.Shares, h.CurrentValue, h.TargetWeightPct, h.IsPlaceholder, h.PlaceholderWeightPct, h.LastUpdated)
	if err != nil {
		return fmt.Errorf("failed to upsert holding: %w", err)
	}

	return nil
}

// Delete removes a holding from an account.
func (r *Repository) Delete(accountID, holdingID string) error {
	res, err := r.db.Exec(`DELETE FROM holdings WHERE id = ? AND account_id = ?`, holdingID, accountID)
	if err != nil {
		return fmt.Errorf("failed to delete holding: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check delete result: %w", err)
	}
	if affected == 0 {
		return apperrors.ErrHoldingNotFound
	}

	return nil
}

// UpdateValue refreshes one holding's current value after a price sync.
func (r *Repository) UpdateValue(holdingID string, currentValue float64) error {
	_, err := r.db.Exec(`
		UPDATE holdings SET current_value = ?, last_updated = ? WHERE id = ?
	`, currentValue, time.Now().UTC(), holdingID)
	if err != nil {
		return fmt.Errorf("failed to update holding value: %w", err)
	}
	return nil
}

// validateHolding enforces construction-time invariants so malformed
// rows never reach the engine.
func validateHolding(h domain.Holding) error {
	if h.AccountID == "" {
		return apperrors.NewValidation("account_id", "must not be empty")
	}
	if h.Symbol == "" {
		return apperrors.NewValidation("symbol", "must not be empty")
	}
	switch h.InstrumentType {
	case domain.InstrumentStock, domain.InstrumentETF, domain.InstrumentOther:
	default:
		return apperrors.NewValidation("instrument_type", "must be one of stock, etf, other")
	}
	if h.Shares < 0 {
		return apperrors.NewValidation("shares", "must not be negative")
	}
	if h.CurrentValue < 0 {
		return apperrors.NewValidation("current_value", "must not be negative")
	}
	if h.TargetWeightPct != nil && (*h.TargetWeightPct < 0 || *h.TargetWeightPct > 100) {
		return apperrors.NewValidation("target_weight_pct", "must be between 0 and 100")
	}
	if h.IsPlaceholder && h.PlaceholderWeightPct < 0 {
		return apperrors.NewValidation("placeholder_weight_pct", "must not be negative")
	}
	return nil
}

// scanner covers both *sql.Row and *sql.Rows
type scanner interface {
	Scan(dest ...interface{}) error
}

func scanHolding(s scanner) (domain.Holding, error) {
	var h domain.Holding
	var targetWeight sql.NullFloat64

	err := s.Scan(
		&h.ID, &h.AccountID, &h.Symbol, &h.DisplayName, &h.InstrumentType,
		&h.Category, &h.Country, &h.Shares, &h.CurrentValue,
		&targetWeight, &h.IsPlaceholder, &h.PlaceholderWeightPct, &h.LastUpdated,
	)
	if err != nil {
		return domain.Holding{}, err
	}

	if targetWeight.Valid {
		h.TargetWeightPct = &targetWeight.Float64
	}

	return h, nil
}
