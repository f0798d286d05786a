// Package persistence provides database adapters implementing outbound ports.
package persistence

import (
	"database/sql"
	"fmt"
	"time"

	"mail_server/core/domain"
	"mail_server/core/port/out"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

// AccountAdapter implements out.AccountRepository using PostgreSQL.
type AccountAdapter struct {
	db *sqlx.DB
}

// NewAccountAdapter creates a new AccountAdapter.
func NewAccountAdapter(db *sqlx.DB) *AccountAdapter {
	return &AccountAdapter{db: db}
}

// accountRow represents the database row for accounts.
type accountRow struct {
	ID               int64         `db:"id"`
	OwnerID          uuid.UUID     `db:"owner_id"`
	EmailAddress     string        `db:"email_address"`
	FromName         string        `db:"from_name"`
	Label            string        `db:"label"`
	IsAuthorized     bool          `db:"is_authorized"`
	HistoryID        sql.NullInt64 `db:"history_id"`
	CompleteDownload bool          `db:"complete_download"`
	IsDeleted        bool          `db:"is_deleted"`
	CreatedAt        time.Time     `db:"created_at"`
	UpdatedAt        time.Time     `db:"updated_at"`
}

func (r *accountRow) toEntity() *domain.Account {
	account := &domain.Account{
		ID:               r.ID,
		OwnerID:          r.OwnerID,
		EmailAddress:     r.EmailAddress,
		FromName:         r.FromName,
		Label:            r.Label,
		IsAuthorized:     r.IsAuthorized,
		CompleteDownload: r.CompleteDownload,
		IsDeleted:        r.IsDeleted,
		CreatedAt:        r.CreatedAt,
		UpdatedAt:        r.UpdatedAt,
	}
	if r.HistoryID.Valid {
		historyID := uint64(r.HistoryID.Int64)
		account.HistoryID = &historyID
	}
	return account
}

// GetByID retrieves an account by its ID.
func (a *AccountAdapter) GetByID(id int64) (*domain.Account, error) {
	var row accountRow
	query := `SELECT * FROM accounts WHERE id = $1`

	if err := a.db.Get(&row, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get account: %w", err)
	}

	return row.toEntity(), nil
}

// GetByEmail retrieves an account by its email address.
func (a *AccountAdapter) GetByEmail(email string) (*domain.Account, error) {
	var row accountRow
	query := `SELECT * FROM accounts WHERE email_address = $1`

	if err := a.db.Get(&row, query, email); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get account: %w", err)
	}

	return row.toEntity(), nil
}

// ListActive retrieves authorized, non-deleted accounts.
func (a *AccountAdapter) ListActive() ([]*domain.Account, error) {
	var rows []accountRow
	query := `SELECT * FROM accounts WHERE is_authorized = true AND is_deleted = false ORDER BY id`

	if err := a.db.Select(&rows, query); err != nil {
		return nil, fmt.Errorf("failed to list accounts: %w", err)
	}

	accounts := make([]*domain.Account, len(rows))
	for i, row := range rows {
		accounts[i] = row.toEntity()
	}
	return accounts, nil
}

// GetOrCreate resolves an account by email for an owner, creating the
// row on first authorization.
func (a *AccountAdapter) GetOrCreate(ownerID uuid.UUID, email string) (*domain.Account, error) {
	if account, err := a.GetByEmail(email); err != nil || account != nil {
		return account, err
	}

	var row accountRow
	query := `
		INSERT INTO accounts (owner_id, email_address, created_at, updated_at)
		VALUES ($1, $2, NOW(), NOW())
		ON CONFLICT (email_address) DO UPDATE SET updated_at = NOW()
		RETURNING *`

	if err := a.db.Get(&row, query, ownerID, email); err != nil {
		return nil, fmt.Errorf("failed to create account: %w", err)
	}
	return row.toEntity(), nil
}

// UpdateHistoryID persists the watermark; a smaller value than the
// stored one is a no-op.
func (a *AccountAdapter) UpdateHistoryID(id int64, historyID uint64) error {
	query := `
		UPDATE accounts
		SET history_id = $2, updated_at = NOW()
		WHERE id = $1 AND (history_id IS NULL OR history_id < $2)`

	if _, err := a.db.Exec(query, id, int64(historyID)); err != nil {
		return fmt.Errorf("failed to update history id: %w", err)
	}
	return nil
}

// SetCompleteDownload flips the initial-download flag.
func (a *AccountAdapter) SetCompleteDownload(id int64, complete bool) error {
	query := `UPDATE accounts SET complete_download = $2, updated_at = NOW() WHERE id = $1`
	if _, err := a.db.Exec(query, id, complete); err != nil {
		return fmt.Errorf("failed to update complete_download: %w", err)
	}
	return nil
}

// SetAuthorized flips the authorization flag.
func (a *AccountAdapter) SetAuthorized(id int64, authorized bool) error {
	query := `UPDATE accounts SET is_authorized = $2, updated_at = NOW() WHERE id = $1`
	if _, err := a.db.Exec(query, id, authorized); err != nil {
		return fmt.Errorf("failed to update is_authorized: %w", err)
	}
	return nil
}

// SetFromName updates the display name used when sending.
func (a *AccountAdapter) SetFromName(id int64, fromName string) error {
	query := `UPDATE accounts SET from_name = $2, updated_at = NOW() WHERE id = $1`
	if _, err := a.db.Exec(query, id, fromName); err != nil {
		return fmt.Errorf("failed to update from_name: %w", err)
	}
	return nil
}

// SoftDelete marks the account deleted without dropping its replica.
func (a *AccountAdapter) SoftDelete(id int64) error {
	query := `UPDATE accounts SET is_deleted = true, is_authorized = false, updated_at = NOW() WHERE id = $1`
	if _, err := a.db.Exec(query, id); err != nil {
		return fmt.Errorf("failed to soft-delete account: %w", err)
	}
	return nil
}

// Ensure AccountAdapter implements out.AccountRepository
var _ out.AccountRepository = (*AccountAdapter)(nil)
