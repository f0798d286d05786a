package domain

import (
	"time"

	"github.com/google/uuid"
)

// Account is a Gmail mailbox bound to a local user. Many accounts may
// belong to one user. history_id is the last successfully processed
// remote change watermark; nil means no watermark has been recorded yet.
type Account struct {
	ID               int64      `json:"id"`
	OwnerID          uuid.UUID  `json:"owner_id"`
	EmailAddress     string     `json:"email_address"`
	FromName         string     `json:"from_name"`
	Label            string     `json:"label"`
	IsAuthorized     bool       `json:"is_authorized"`
	HistoryID        *uint64    `json:"history_id,omitempty"`
	CompleteDownload bool       `json:"complete_download"`
	IsDeleted        bool       `json:"is_deleted"`
	CreatedAt        time.Time  `json:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at"`
	DeletedAt        *time.Time `json:"deleted_at,omitempty"`
}

// Active reports whether the account should be picked up by the sync
// scheduler.
func (a *Account) Active() bool {
	return a.IsAuthorized && !a.IsDeleted
}

// Credentials is the OAuth2 token set stored one-to-one with an Account.
// The connector mutates it in place on refresh.
type Credentials struct {
	ID           int64     `json:"id"`
	AccountID    int64     `json:"account_id"`
	AccessToken  string    `json:"-"`
	RefreshToken string    `json:"-"`
	TokenType    string    `json:"token_type"`
	Expiry       time.Time `json:"expiry"`
	Scopes       string    `json:"scopes"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Expired reports whether the access token needs a refresh before use.
func (c *Credentials) Expired() bool {
	return !c.Expiry.IsZero() && time.Until(c.Expiry) < 5*time.Minute
}
