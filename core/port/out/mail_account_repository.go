package out

import (
	"mail_server/core/domain"

	"github.com/google/uuid"
)

// AccountRepository persists mailbox accounts.
type AccountRepository interface {
	GetByID(id int64) (*domain.Account, error)
	GetByEmail(email string) (*domain.Account, error)

	// ListActive returns authorized, non-deleted accounts for the
	// scheduler fan-out.
	ListActive() ([]*domain.Account, error)

	// GetOrCreate resolves an account by email address for an owner,
	// creating the row on first authorization.
	GetOrCreate(ownerID uuid.UUID, email string) (*domain.Account, error)

	// UpdateHistoryID persists the watermark. Implementations must keep
	// it monotonic: a smaller value than the stored one is a no-op.
	UpdateHistoryID(id int64, historyID uint64) error

	SetCompleteDownload(id int64, complete bool) error
	SetAuthorized(id int64, authorized bool) error
	SetFromName(id int64, fromName string) error
	SoftDelete(id int64) error
}
