package out

import "mail_server/core/domain"

// LabelRepository persists per-account labels and their unread counters.
type LabelRepository interface {
	GetByID(id int64) (*domain.Label, error)
	GetByRemoteID(accountID int64, labelID string) (*domain.Label, error)
	ListByAccount(accountID int64) ([]*domain.Label, error)
	Create(label *domain.Label) error
	UpdateName(id int64, name string) error
	Delete(id int64) error

	// RecomputeUnread sets unread to the count of the label's messages
	// with read=false.
	RecomputeUnread(id int64) error
}
