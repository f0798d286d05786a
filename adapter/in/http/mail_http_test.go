package http

import (
	"context"
	"errors"
	"io"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"

	"mail_server/config"
	"mail_server/core/domain"
)

type stubOAuthService struct {
	authURL     string
	authErr     error
	stateUser   uuid.UUID
	stateErr    error
	account     *domain.Account
	callbackErr error
}

func (s *stubOAuthService) AuthURL(uuid.UUID) (string, error) {
	return s.authURL, s.authErr
}

func (s *stubOAuthService) ValidateState(string) (uuid.UUID, error) {
	return s.stateUser, s.stateErr
}

func (s *stubOAuthService) HandleCallback(context.Context, uuid.UUID, string) (*domain.Account, error) {
	return s.account, s.callbackErr
}

func (s *stubOAuthService) GetOAuth2Token(context.Context, int64) (*oauth2.Token, error) {
	return nil, errors.New("not implemented")
}

func (s *stubOAuthService) Config() *oauth2.Config { return nil }

type stubAttachments struct {
	byID map[int64]*domain.Attachment
}

func (s *stubAttachments) GetByID(id int64) (*domain.Attachment, error) {
	return s.byID[id], nil
}

func (s *stubAttachments) ListByMessage(int64) ([]*domain.Attachment, error) { return nil, nil }
func (s *stubAttachments) ListByIDs([]int64) ([]*domain.Attachment, error)   { return nil, nil }
func (s *stubAttachments) Create(*domain.Attachment) error                   { return nil }
func (s *stubAttachments) CountByMessage(int64) (int, error)                 { return 0, nil }

type stubStorage struct {
	blobs map[string][]byte
}

func (s *stubStorage) Save(path string, data []byte) error {
	s.blobs[path] = data
	return nil
}

func (s *stubStorage) Open(path string) ([]byte, error) {
	data, ok := s.blobs[path]
	if !ok {
		return nil, errors.New("blob not found")
	}
	return data, nil
}

func oauthApp(svc *stubOAuthService) *fiber.App {
	app := fiber.New()
	NewOAuthHandler(svc, &config.Config{RedirectURL: "https://app.example.com/done"}).Register(app)
	return app
}

func TestOAuthSetupRedirectsToConsent(t *testing.T) {
	app := oauthApp(&stubOAuthService{authURL: "https://accounts.google.com/o/oauth2/auth?x=1"})

	req := httptest.NewRequest("GET", "/oauth/setup", nil)
	req.Header.Set("X-User-ID", uuid.New().String())
	resp, err := app.Test(req)
	require.NoError(t, err)

	assert.Equal(t, fiber.StatusTemporaryRedirect, resp.StatusCode)
	assert.Equal(t, "https://accounts.google.com/o/oauth2/auth?x=1", resp.Header.Get("Location"))
}

func TestOAuthSetupRequiresUser(t *testing.T) {
	app := oauthApp(&stubOAuthService{authURL: "https://example.com"})

	resp, err := app.Test(httptest.NewRequest("GET", "/oauth/setup", nil))
	require.NoError(t, err)
	assert.Equal(t, 401, resp.StatusCode)
}

func TestOAuthCallbackRejectsBadState(t *testing.T) {
	app := oauthApp(&stubOAuthService{stateErr: errors.New("signature mismatch")})

	resp, err := app.Test(httptest.NewRequest("GET", "/oauth/callback?state=tampered&code=abc", nil))
	require.NoError(t, err)
	assert.Equal(t, 400, resp.StatusCode)
}

func TestOAuthCallbackRejectsMissingCode(t *testing.T) {
	app := oauthApp(&stubOAuthService{stateUser: uuid.New()})

	resp, err := app.Test(httptest.NewRequest("GET", "/oauth/callback?state=ok", nil))
	require.NoError(t, err)
	assert.Equal(t, 400, resp.StatusCode)
}

func TestOAuthCallbackRedirectsOnSuccess(t *testing.T) {
	app := oauthApp(&stubOAuthService{
		stateUser: uuid.New(),
		account:   &domain.Account{ID: 1, EmailAddress: "user@example.com"},
	})

	resp, err := app.Test(httptest.NewRequest("GET", "/oauth/callback?state=ok&code=abc", nil))
	require.NoError(t, err)

	assert.Equal(t, fiber.StatusTemporaryRedirect, resp.StatusCode)
	assert.Equal(t, "https://app.example.com/done", resp.Header.Get("Location"))
}

func attachmentApp() (*fiber.App, *stubAttachments, *stubStorage) {
	attachments := &stubAttachments{byID: make(map[int64]*domain.Attachment)}
	storage := &stubStorage{blobs: make(map[string][]byte)}
	app := fiber.New()
	NewAttachmentHandler(attachments, storage).Register(app)
	return app, attachments, storage
}

func TestAttachmentDownload(t *testing.T) {
	app, attachments, storage := attachmentApp()
	attachments.byID[5] = &domain.Attachment{
		ID:          5,
		MessageID:   12,
		Filename:    "report.pdf",
		Path:        "downloads/attachments/12/report.pdf",
		ContentType: "application/pdf",
	}
	storage.blobs["downloads/attachments/12/report.pdf"] = []byte("pdf-bytes")

	resp, err := app.Test(httptest.NewRequest("GET", "/messages/12/attachments/5", nil))
	require.NoError(t, err)
	require.Equal(t, 200, resp.StatusCode)

	assert.Equal(t, "application/pdf", resp.Header.Get("Content-Type"))
	assert.Equal(t, `attachment; filename="report.pdf"`, resp.Header.Get("Content-Disposition"))

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, []byte("pdf-bytes"), body)
}

func TestAttachmentInlineDisposition(t *testing.T) {
	app, attachments, storage := attachmentApp()
	attachments.byID[6] = &domain.Attachment{
		ID:          6,
		MessageID:   12,
		Filename:    "logo.png",
		Path:        "downloads/attachments/12/logo.png",
		ContentType: "image/png",
		Inline:      true,
	}
	storage.blobs["downloads/attachments/12/logo.png"] = []byte{0x89, 0x50}

	resp, err := app.Test(httptest.NewRequest("GET", "/messages/12/attachments/6", nil))
	require.NoError(t, err)
	require.Equal(t, 200, resp.StatusCode)
	assert.Equal(t, `inline; filename="logo.png"`, resp.Header.Get("Content-Disposition"))
}

func TestAttachmentWrongMessageIs404(t *testing.T) {
	app, attachments, _ := attachmentApp()
	attachments.byID[5] = &domain.Attachment{ID: 5, MessageID: 99, Filename: "a.pdf", Path: "p"}

	resp, err := app.Test(httptest.NewRequest("GET", "/messages/12/attachments/5", nil))
	require.NoError(t, err)
	assert.Equal(t, 404, resp.StatusCode)
}

func TestAttachmentUnknownIDIs404(t *testing.T) {
	app, _, _ := attachmentApp()

	resp, err := app.Test(httptest.NewRequest("GET", "/messages/12/attachments/77", nil))
	require.NoError(t, err)
	assert.Equal(t, 404, resp.StatusCode)
}
