package bootstrap

import (
	"github.com/goccy/go-json"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"

	handlers "mail_server/adapter/in/http"
)

// NewAPI builds the fiber app serving the OAuth flow, the attachment
// proxy and health endpoints.
func NewAPI(deps *Dependencies) *fiber.App {
	app := fiber.New(fiber.Config{
		DisableStartupMessage: deps.Config.IsProduction(),
		JSONEncoder:           json.Marshal,
		JSONDecoder:           json.Unmarshal,
		BodyLimit:             10 * 1024 * 1024,
	})

	app.Use(recover.New())

	handlers.NewHealthHandler(deps.SQLDB, deps.Redis).Register(app)
	handlers.NewOAuthHandler(deps.OAuthService, deps.Config).Register(app)
	handlers.NewAttachmentHandler(deps.AttachmentRepo, deps.Storage).Register(app)

	return app
}
