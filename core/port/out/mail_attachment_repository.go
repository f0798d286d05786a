package out

import "mail_server/core/domain"

// AttachmentRepository persists attachment metadata; the bytes live in
// the blob store.
type AttachmentRepository interface {
	GetByID(id int64) (*domain.Attachment, error)
	ListByMessage(messageID int64) ([]*domain.Attachment, error)
	ListByIDs(ids []int64) ([]*domain.Attachment, error)
	Create(attachment *domain.Attachment) error
	CountByMessage(messageID int64) (int, error)
}
