package http

import (
	"mail_server/config"
	"mail_server/core/port/in"
	"mail_server/pkg/logger"

	"github.com/gofiber/fiber/v2"
)

type OAuthHandler struct {
	oauthService in.OAuthService
	cfg          *config.Config
}

func NewOAuthHandler(oauthService in.OAuthService, cfg *config.Config) *OAuthHandler {
	return &OAuthHandler{
		oauthService: oauthService,
		cfg:          cfg,
	}
}

func (h *OAuthHandler) Register(app fiber.Router) {
	oauth := app.Group("/oauth")
	oauth.Get("/setup", h.Setup)
	oauth.Get("/callback", h.Callback)
}

// Setup redirects the user to the Google consent screen. The state
// parameter is a signed token bound to the user, verified on callback.
func (h *OAuthHandler) Setup(c *fiber.Ctx) error {
	userID, err := GetUserID(c)
	if err != nil {
		return ErrorResponse(c, 401, "unauthorized")
	}

	authURL, err := h.oauthService.AuthURL(userID)
	if err != nil {
		logger.WithError(err).Error("[OAuth Setup] failed to build auth URL")
		return InternalErrorResponse(c, err, "oauth setup")
	}

	return c.Redirect(authURL, fiber.StatusTemporaryRedirect)
}

// Callback finishes the flow: the state token identifies the user, the
// code is exchanged and the account is created and queued for its first
// sync.
func (h *OAuthHandler) Callback(c *fiber.Ctx) error {
	if errParam := c.Query("error"); errParam != "" {
		logger.Warn("[OAuth Callback] consent denied: %s", errParam)
		return ErrorResponse(c, 400, "consent denied: "+errParam)
	}

	state := c.Query("state")
	code := c.Query("code")
	if state == "" || code == "" {
		return ErrorResponse(c, 400, "missing state or code")
	}

	userID, err := h.oauthService.ValidateState(state)
	if err != nil {
		logger.WithError(err).Warn("[OAuth Callback] invalid state token")
		return ErrorResponse(c, 400, "invalid state")
	}

	account, err := h.oauthService.HandleCallback(c.Context(), userID, code)
	if err != nil {
		logger.WithError(err).Error("[OAuth Callback] authorization failed")
		return AppErrorResponse(c, err)
	}

	logger.WithAccount(account.ID).Info("[OAuth Callback] account authorized: %s", account.EmailAddress)
	return c.Redirect(h.cfg.RedirectURL, fiber.StatusTemporaryRedirect)
}
