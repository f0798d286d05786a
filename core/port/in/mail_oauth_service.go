package in

import (
	"context"

	"mail_server/core/domain"

	"github.com/google/uuid"
	"golang.org/x/oauth2"
)

// OAuthService owns the Google OAuth2 flow and token lifecycle.
type OAuthService interface {
	// AuthURL returns the consent redirect with a signed state token
	// bound to the user.
	AuthURL(userID uuid.UUID) (string, error)

	// ValidateState verifies a callback state token and returns the user
	// it was issued for.
	ValidateState(state string) (uuid.UUID, error)

	// HandleCallback exchanges the authorization code, learns the email
	// address, upserts the account and credentials, marks it authorized
	// and enqueues the initial sync.
	HandleCallback(ctx context.Context, userID uuid.UUID, code string) (*domain.Account, error)

	// GetOAuth2Token returns a valid token for the account, refreshing
	// and persisting when close to expiry. A refresh rejection marks the
	// account unauthorized and returns an invalid-credentials error.
	GetOAuth2Token(ctx context.Context, accountID int64) (*oauth2.Token, error)

	// Config exposes the oauth2 client configuration for provider
	// construction.
	Config() *oauth2.Config
}
