package accounts

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

// Repository handles account database operations
type Repository struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewRepository creates a new account repository
func NewRepository(db *sql.DB, log zerolog.Logger) *Repository {
	return &Repository{
		db:  db,
		log: log.With().Str("repo", "accounts").Logger(),
	}
}

// Create inserts a new account and returns it with a generated ID.
func (r *Repository) Create(name, baseCurrency string) (*domain.Account, error) {
	if name == "" {
		return nil, apperrors.NewValidation("name", "must not be empty")
	}
	if baseCurrency == "" {
		baseCurrency = "EUR"
	}

	now := time.Now().UTC()
	account := &domain.Account{
		ID:           uuid.NewString(),
		Name:         name,
		BaseCurrency: baseCurrency,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	_, err := r.db.Exec(`
		INSERT INTO accounts (id, name, base_currency, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)
	`, account.ID, account.Name, account.BaseCurrency, account.CreatedAt, account.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to insert account: %w", err)
	}

	return account, nil
}

// Get returns one account by ID.
func (r *Repository) Get(accountID string) (*domain.Account, error) {
	var account domain.Account
	err := r.db.QueryRow(`
		SELECT id, name, base_currency, created_at, updated_at
		FROM accounts
		WHERE id = ?
	`, accountID).Scan(&account.ID, &account.Name, &account.BaseCurrency, &account.CreatedAt, &account.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperrors.ErrAccountNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query account: %w", err)
	}

	return &account, nil
}

// GetAll returns all accounts ordered by creation time.
func (r *Repository) GetAll() ([]domain.Account, error) {
	rows, err := r.db.Query(`
		SELECT id, name, base_currency, created_at, updated_at
		FROM accounts
		ORDER BY created_at
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query accounts: %w", err)
	}
	defer rows.Close()

	accounts := []domain.Account{}
	for rows.Next() {
		var account domain.Account
		if err := rows.Scan(&account.ID, &account.Name, &account.BaseCurrency, &account.CreatedAt, &account.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan account: %w", err)
		}
		accounts = append(accounts, account)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating accounts: %w", err)
	}

	return accounts, nil
}

// Rename updates an account's name.
func (r *Repository) Rename(accountID, name string) (*domain.Account, error) {
	if name == "" {
		return nil, apperrors.NewValidation("name", "must not be empty")
	}

	res, err := r.db.Exec(`
		UPDATE accounts SET name = ?, updated_at = ? WHERE id = ?
	`, name, time.Now().UTC(), accountID)
	if err != nil {
		return nil, fmt.Errorf("failed to update account: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("failed to check update result: %w", err)
	}
	if affected == 0 {
		return nil, apperrors.ErrAccountNotFound
	}

	return r.Get(accountID)
}

// Delete removes an account. Holdings and rule sets cascade via foreign keys.
func (r *Repository) Delete(accountID string) error {
	res, err := r.db.Exec(`DELETE FROM accounts WHERE id = ?`, accountID)
	if err != nil {
		return fmt.Errorf("failed to delete account: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check delete result: %w", err)
	}
	if affected == 0 {
		return apperrors.ErrAccountNotFound
	}

	return nil
}
