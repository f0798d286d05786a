package out

import (
	"time"

	"mail_server/core/domain"
)

// MessageRepository persists the message replica, including headers,
// recipient links and label associations.
type MessageRepository interface {
	GetByID(id int64) (*domain.Message, error)
	GetByRemoteID(accountID int64, messageID string) (*domain.Message, error)

	// GetOrCreate resolves a message row by (account, remote id),
	// creating a stub with the given sent date when absent.
	GetOrCreate(accountID int64, messageID string, sentDate time.Time) (*domain.Message, error)

	// ListDownloadedIDs returns the remote ids already downloaded for an
	// account, used to compute the bootstrap candidate set.
	ListDownloadedIDs(accountID int64) (map[string]struct{}, error)

	// CountUndownloaded returns how many rows still await a full fetch.
	CountUndownloaded(accountID int64) (int, error)

	Update(message *domain.Message) error
	SetRead(id int64, read bool) error
	DeleteByRemoteID(accountID int64, messageID string) error

	// Label associations. Attach is a no-op on duplicates.
	ClearLabels(messageID int64) error
	AttachLabel(messageID, labelID int64) error
	DetachLabel(messageID, labelID int64) error
	GetLabels(messageID int64) ([]*domain.Label, error)

	// Headers, deduplicated by (message, name, value hash).
	AddHeader(header *domain.Header) error

	// Recipients. GetOrCreateRecipient resolves the shared (name, email)
	// row; Link attaches it to a message in the given role, ignoring
	// duplicates. SetSender overwrites the message's sender.
	GetOrCreateRecipient(name, email string) (*domain.Recipient, error)
	LinkRecipient(messageID, recipientID int64, kind domain.RecipientKind) error
	SetSender(messageID, recipientID int64) error
}
