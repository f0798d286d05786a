package persistence

import (
	"database/sql"
	"fmt"
	"time"

	"mail_server/core/domain"
	"mail_server/core/port/out"

	"github.com/jmoiron/sqlx"
)

// OAuthAdapter implements out.OAuthRepository using PostgreSQL.
type OAuthAdapter struct {
	db *sqlx.DB
}

// NewOAuthAdapter creates a new OAuthAdapter.
func NewOAuthAdapter(db *sqlx.DB) *OAuthAdapter {
	return &OAuthAdapter{db: db}
}

// credentialsRow represents the database row for stored credentials.
type credentialsRow struct {
	AccountID    int64     `db:"account_id"`
	AccessToken  string    `db:"access_token"`
	RefreshToken string    `db:"refresh_token"`
	TokenType    string    `db:"token_type"`
	Expiry       time.Time `db:"expiry"`
	Scopes       string    `db:"scopes"`
	CreatedAt    time.Time `db:"created_at"`
	UpdatedAt    time.Time `db:"updated_at"`
}

func (r *credentialsRow) toEntity() *domain.Credentials {
	return &domain.Credentials{
		AccountID:    r.AccountID,
		AccessToken:  r.AccessToken,
		RefreshToken: r.RefreshToken,
		TokenType:    r.TokenType,
		Expiry:       r.Expiry,
		Scopes:       r.Scopes,
	}
}

// GetByAccount retrieves the credentials of an account.
func (a *OAuthAdapter) GetByAccount(accountID int64) (*domain.Credentials, error) {
	var row credentialsRow
	query := `SELECT * FROM credentials WHERE account_id = $1`

	if err := a.db.Get(&row, query, accountID); err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("no credentials for account %d", accountID)
		}
		return nil, fmt.Errorf("failed to get credentials: %w", err)
	}

	return row.toEntity(), nil
}

// Upsert stores the credentials, replacing any previous grant. A fresh
// consent always wins over whatever was stored before.
func (a *OAuthAdapter) Upsert(credentials *domain.Credentials) error {
	query := `
		INSERT INTO credentials (account_id, access_token, refresh_token, token_type, expiry, scopes, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, NOW(), NOW())
		ON CONFLICT (account_id) DO UPDATE SET
			access_token = EXCLUDED.access_token,
			refresh_token = EXCLUDED.refresh_token,
			token_type = EXCLUDED.token_type,
			expiry = EXCLUDED.expiry,
			scopes = EXCLUDED.scopes,
			updated_at = NOW()`

	_, err := a.db.Exec(query,
		credentials.AccountID,
		credentials.AccessToken,
		credentials.RefreshToken,
		credentials.TokenType,
		credentials.Expiry,
		credentials.Scopes,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert credentials: %w", err)
	}
	return nil
}

// UpdateToken persists a refreshed token pair.
func (a *OAuthAdapter) UpdateToken(accountID int64, credentials *domain.Credentials) error {
	query := `
		UPDATE credentials
		SET access_token = $2, refresh_token = $3, expiry = $4, updated_at = NOW()
		WHERE account_id = $1`

	_, err := a.db.Exec(query, accountID, credentials.AccessToken, credentials.RefreshToken, credentials.Expiry)
	if err != nil {
		return fmt.Errorf("failed to update token: %w", err)
	}
	return nil
}

// Delete removes the stored grant.
func (a *OAuthAdapter) Delete(accountID int64) error {
	if _, err := a.db.Exec(`DELETE FROM credentials WHERE account_id = $1`, accountID); err != nil {
		return fmt.Errorf("failed to delete credentials: %w", err)
	}
	return nil
}

// Ensure OAuthAdapter implements out.OAuthRepository
var _ out.OAuthRepository = (*OAuthAdapter)(nil)
