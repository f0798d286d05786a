package out

import "mail_server/core/domain"

// OAuthRepository persists the one-to-one credential rows.
type OAuthRepository interface {
	GetByAccount(accountID int64) (*domain.Credentials, error)
	Upsert(credentials *domain.Credentials) error
	UpdateToken(accountID int64, credentials *domain.Credentials) error
	Delete(accountID int64) error
}
