package out

import "mail_server/core/domain"

// OutboxRepository persists composed-but-unsent messages, their staged
// attachments, and compose templates.
type OutboxRepository interface {
	GetByID(id int64) (*domain.OutboxMessage, error)
	Create(outbox *domain.OutboxMessage) error
	Delete(id int64) error

	ListAttachments(outboxID int64) ([]*domain.OutboxAttachment, error)
	CreateAttachment(attachment *domain.OutboxAttachment) error

	GetTemplate(id int64) (*domain.Template, error)
	ListTemplateAttachments(ids []int64) ([]*domain.TemplateAttachment, error)
}
