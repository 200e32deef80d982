package rules

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/rebalancer/internal/apperrors"
	"github.com/aristath/rebalancer/internal/domain"
)

// Repository handles rule set database operations. Each account has at
// most one row; accounts without a row fall back to defaults.
type Repository struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewRepository creates a new rule set repository
func NewRepository(db *sql.DB, log zerolog.Logger) *Repository {
	return &Repository{
		db:  db,
		log: log.With().Str("repo", "rules").Logger(),
	}
}

// Get returns the rule set for an account, or the default rule set when
// none has been saved yet.
func (r *Repository) Get(accountID string) (domain.RuleSet, error) {
	var rs domain.RuleSet
	err := r.db.QueryRow(`
		SELECT account_id, max_per_stock_pct, max_per_etf_pct,
		       max_per_category_pct, max_per_country_pct, updated_at
		FROM rule_sets
		WHERE account_id = ?
	`, accountID).Scan(
		&rs.AccountID,
		&rs.MaxPerStockPct,
		&rs.MaxPerEtfPct,
		&rs.MaxPerCategoryPct,
		&rs.MaxPerCountryPct,
		&rs.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.DefaultRuleSet(accountID), nil
	}
	if err != nil {
		return domain.RuleSet{}, fmt.Errorf("failed to query rule set: %w", err)
	}

	return rs, nil
}

// Save upserts the rule set for an account.
func (r *Repository) Save(rs domain.RuleSet) (domain.RuleSet, error) {
	if err := validate(rs); err != nil {
		return domain.RuleSet{}, err
	}

	rs.UpdatedAt = time.Now().UTC()

	_, err := r.db.Exec(`
		INSERT INTO rule_sets (account_id, max_per_stock_pct, max_per_etf_pct,
		                       max_per_category_pct, max_per_country_pct, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(account_id) DO UPDATE SET
			max_per_stock_pct = excluded.max_per_stock_pct,
			max_per_etf_pct = excluded.max_per_etf_pct,
			max_per_category_pct = excluded.max_per_category_pct,
			max_per_country_pct = excluded.max_per_country_pct,
			updated_at = excluded.updated_at
	`, rs.AccountID, rs.MaxPerStockPct, rs.MaxPerEtfPct, rs.MaxPerCategoryPct, rs.MaxPerCountryPct, rs.UpdatedAt)
	if err != nil {
		return domain.RuleSet{}, fmt.Errorf("failed to save rule set: %w", err)
	}

	return rs, nil
}

func validate(rs domain.RuleSet) error {
	if rs.MaxPerStockPct < 0 || rs.MaxPerStockPct > 100 {
		return apperrors.NewValidation("max_per_stock_pct", "must be between 0 and 100")
	}
	if rs.MaxPerEtfPct < 0 || rs.MaxPerEtfPct > 100 {
		return apperrors.NewValidation("max_per_etf_pct", "must be between 0 and 100")
	}
	if rs.MaxPerCategoryPct != nil && (*rs.MaxPerCategoryPct < 0 || *rs.MaxPerCategoryPct > 100) {
		return apperrors.NewValidation("max_per_category_pct", "must be between 0 and 100")
	}
	if rs.MaxPerCountryPct != nil && (*rs.MaxPerCountryPct < 0 || *rs.MaxPerCountryPct > 100) {
		return apperrors.NewValidation("max_per_country_pct", "must be between 0 and 100")
	}
	return nil
}
