// Package provider wires connector construction to the credential
// lifecycle.
package provider

import (
	"context"

	"mail_server/adapter/out/provider/gmail"
	"mail_server/core/domain"
	"mail_server/core/port/in"
	"mail_server/core/port/out"
	"mail_server/pkg/apperr"
)

// GmailFactory builds a per-account connector from stored credentials.
type GmailFactory struct {
	oauth     in.OAuthService
	chunkSize int64
}

func NewGmailFactory(oauth in.OAuthService, chunkSize int64) *GmailFactory {
	return &GmailFactory{
		oauth:     oauth,
		chunkSize: chunkSize,
	}
}

// ForAccount returns a connector for the account. Token refresh failures
// surface as invalid-credentials errors and leave the account
// unauthorized.
func (f *GmailFactory) ForAccount(ctx context.Context, account *domain.Account) (out.EmailProvider, error) {
	if !account.IsAuthorized {
		return nil, apperr.InvalidCredentials(account.ID, nil)
	}

	token, err := f.oauth.GetOAuth2Token(ctx, account.ID)
	if err != nil {
		return nil, err
	}

	client := f.oauth.Config().Client(ctx, token)
	return gmail.NewConnector(ctx, account.ID, client, f.chunkSize)
}

// Ensure GmailFactory implements out.ProviderFactory
var _ out.ProviderFactory = (*GmailFactory)(nil)
