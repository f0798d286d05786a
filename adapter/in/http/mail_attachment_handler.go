package http

import (
	"fmt"
	"strconv"

	"mail_server/core/port/out"
	"mail_server/pkg/logger"

	"github.com/gofiber/fiber/v2"
)

// AttachmentHandler proxies stored attachment bytes. Metadata lives in
// the database, bytes in the blob store.
type AttachmentHandler struct {
	attachments out.AttachmentRepository
	storage     out.BlobStorage
}

func NewAttachmentHandler(attachments out.AttachmentRepository, storage out.BlobStorage) *AttachmentHandler {
	return &AttachmentHandler{
		attachments: attachments,
		storage:     storage,
	}
}

func (h *AttachmentHandler) Register(app fiber.Router) {
	app.Get("/messages/:id/attachments/:attachmentID", h.Download)
}

func (h *AttachmentHandler) Download(c *fiber.Ctx) error {
	messageID, err := strconv.ParseInt(c.Params("id"), 10, 64)
	if err != nil {
		return ErrorResponse(c, 400, "invalid message id")
	}
	attachmentID, err := strconv.ParseInt(c.Params("attachmentID"), 10, 64)
	if err != nil {
		return ErrorResponse(c, 400, "invalid attachment id")
	}

	attachment, err := h.attachments.GetByID(attachmentID)
	if err != nil {
		return InternalErrorResponse(c, err, "attachment lookup")
	}
	if attachment == nil || attachment.MessageID != messageID {
		return ErrorResponse(c, 404, "attachment not found")
	}

	data, err := h.storage.Open(attachment.Path)
	if err != nil {
		logger.WithError(err).Error("[Attachment] blob missing for attachment %d", attachment.ID)
		return ErrorResponse(c, 404, "attachment data not found")
	}

	disposition := "attachment"
	if attachment.Inline {
		disposition = "inline"
	}

	contentType := attachment.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	c.Set(fiber.HeaderContentType, contentType)
	c.Set(fiber.HeaderContentDisposition, fmt.Sprintf("%s; filename=%q", disposition, attachment.Filename))
	return c.Send(data)
}
