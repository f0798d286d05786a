// Package auth owns the Google OAuth2 flow and token lifecycle.
package auth

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"mail_server/config"
	"mail_server/core/domain"
	"mail_server/core/port/out"
	"mail_server/pkg/apperr"
	"mail_server/pkg/logger"

	"github.com/goccy/go-json"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
)

const (
	gmailScope       = "https://mail.google.com/"
	userinfoEndpoint = "https://www.googleapis.com/oauth2/v2/userinfo"
	stateLifetime    = 10 * time.Minute

	// refreshLeeway refreshes tokens slightly before actual expiry so a
	// long API call does not start with a token about to die.
	refreshLeeway = 5 * time.Minute
)

// OAuthService implements in.OAuthService.
type OAuthService struct {
	googleConfig *oauth2.Config
	stateSecret  []byte
	accounts     out.AccountRepository
	tokens       out.OAuthRepository
	producer     out.TaskProducer
}

func NewOAuthService(
	cfg *config.Config,
	accounts out.AccountRepository,
	tokens out.OAuthRepository,
	producer out.TaskProducer,
) *OAuthService {
	return &OAuthService{
		googleConfig: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.CallbackURL,
			Scopes:       []string{gmailScope},
			Endpoint:     google.Endpoint,
		},
		stateSecret: []byte(cfg.StateSecret),
		accounts:    accounts,
		tokens:      tokens,
		producer:    producer,
	}
}

// Config exposes the oauth2 client configuration.
func (s *OAuthService) Config() *oauth2.Config {
	return s.googleConfig
}

type stateClaims struct {
	jwt.RegisteredClaims
}

// AuthURL returns the Google consent URL with a signed state token bound
// to the user.
func (s *OAuthService) AuthURL(userID uuid.UUID) (string, error) {
	claims := stateClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID.String(),
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(stateLifetime)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
	}

	state, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.stateSecret)
	if err != nil {
		return "", fmt.Errorf("failed to sign state token: %w", err)
	}

	return s.googleConfig.AuthCodeURL(state, oauth2.AccessTypeOffline, oauth2.ApprovalForce), nil
}

// ValidateState verifies the callback state token and returns the user
// it was issued for.
func (s *OAuthService) ValidateState(state string) (uuid.UUID, error) {
	var claims stateClaims
	token, err := jwt.ParseWithClaims(state, &claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return s.stateSecret, nil
	})
	if err != nil || !token.Valid {
		return uuid.Nil, apperr.InvalidToken("invalid state token").WithError(err)
	}

	userID, err := uuid.Parse(claims.Subject)
	if err != nil {
		return uuid.Nil, apperr.InvalidToken("state token carries no user")
	}
	return userID, nil
}

// HandleCallback exchanges the authorization code, learns the mailbox
// address, upserts the account and credentials, and kicks off the first
// sync.
func (s *OAuthService) HandleCallback(ctx context.Context, userID uuid.UUID, code string) (*domain.Account, error) {
	token, err := s.googleConfig.Exchange(ctx, code)
	if err != nil {
		return nil, apperr.OAuthFailed("google", err)
	}

	email, err := s.fetchEmailAddress(ctx, token)
	if err != nil {
		return nil, apperr.OAuthFailed("google", err)
	}

	account, err := s.accounts.GetOrCreate(userID, email)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve account: %w", err)
	}

	if err := s.tokens.Upsert(tokenToCredentials(account.ID, token)); err != nil {
		return nil, fmt.Errorf("failed to store credentials: %w", err)
	}

	if err := s.accounts.SetAuthorized(account.ID, true); err != nil {
		return nil, fmt.Errorf("failed to authorize account: %w", err)
	}
	account.IsAuthorized = true

	if err := s.producer.EnqueueSyncAccount(ctx, account.ID); err != nil {
		logger.WithAccount(account.ID).Warn("failed to enqueue initial sync: %v", err)
	}

	return account, nil
}

// GetOAuth2Token returns a valid token for the account, refreshing and
// persisting it when close to expiry.
func (s *OAuthService) GetOAuth2Token(ctx context.Context, accountID int64) (*oauth2.Token, error) {
	creds, err := s.tokens.GetByAccount(accountID)
	if err != nil {
		return nil, apperr.InvalidCredentials(accountID, err)
	}

	token := &oauth2.Token{
		AccessToken:  creds.AccessToken,
		RefreshToken: creds.RefreshToken,
		TokenType:    creds.TokenType,
		Expiry:       creds.Expiry,
	}

	if !creds.Expired() {
		return token, nil
	}

	refreshed, err := s.googleConfig.TokenSource(ctx, token).Token()
	if err != nil {
		if isTokenRevokedError(err) {
			if markErr := s.accounts.SetAuthorized(accountID, false); markErr != nil {
				logger.WithAccount(accountID).Error("failed to mark account unauthorized: %v", markErr)
			}
			return nil, apperr.InvalidCredentials(accountID, err)
		}
		return nil, apperr.ConnectorError("refresh token", err)
	}

	// Google may omit the refresh token on renewal; keep the stored one.
	if refreshed.RefreshToken == "" {
		refreshed.RefreshToken = creds.RefreshToken
	}

	if err := s.tokens.UpdateToken(accountID, tokenToCredentials(accountID, refreshed)); err != nil {
		logger.WithAccount(accountID).Warn("failed to persist refreshed token: %v", err)
	}

	return refreshed, nil
}

// isTokenRevokedError detects refresh rejections that mean the grant is
// gone for good, as opposed to transient transport failures.
func isTokenRevokedError(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "invalid_grant") ||
		strings.Contains(msg, "invalid_client") ||
		strings.Contains(msg, "revoked")
}

func tokenToCredentials(accountID int64, token *oauth2.Token) *domain.Credentials {
	return &domain.Credentials{
		AccountID:    accountID,
		AccessToken:  token.AccessToken,
		RefreshToken: token.RefreshToken,
		TokenType:    token.TokenType,
		Expiry:       token.Expiry,
		Scopes:       gmailScope,
	}
}

// fetchEmailAddress asks the userinfo endpoint who the token belongs to.
func (s *OAuthService) fetchEmailAddress(ctx context.Context, token *oauth2.Token) (string, error) {
	client := s.googleConfig.Client(ctx, token)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, userinfoEndpoint, nil)
	if err != nil {
		return "", err
	}

	resp, err := client.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to fetch userinfo: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("userinfo returned %d: %s", resp.StatusCode, string(body))
	}

	var info struct {
		Email string `json:"email"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		return "", fmt.Errorf("failed to decode userinfo: %w", err)
	}
	if info.Email == "" {
		return "", fmt.Errorf("userinfo returned no email address")
	}

	return info.Email, nil
}
