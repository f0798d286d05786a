// Package out defines outbound ports for the sync core.
package out

import (
	"context"

	"mail_server/core/domain"

	"google.golang.org/api/gmail/v1"
)

// EmailProvider is a per-account Gmail client. Implementations carry the
// account's credentials and centralize retry, backoff and error
// classification; callers never see transient 429/5xx responses.
type EmailProvider interface {
	// GetProfile returns the remote mailbox profile (email address,
	// current history id).
	GetProfile(ctx context.Context) (*gmail.Profile, error)

	// GetAllMessageIDs pages through every message id in the mailbox,
	// skipping chats. Results carry only Id and ThreadId.
	GetAllMessageIDs(ctx context.Context) ([]*gmail.Message, error)

	// GetHistory pages through the history feed starting after
	// startHistoryID. The provider's watermark advances to the last
	// item's id when it is greater; an empty feed leaves it untouched.
	GetHistory(ctx context.Context, startHistoryID uint64) ([]*gmail.History, error)

	// GetMessageInfo fetches the full payload.
	GetMessageInfo(ctx context.Context, messageID string) (*gmail.Message, error)

	// GetMinimalMessageInfo fetches ids, labels and headers only.
	GetMinimalMessageInfo(ctx context.Context, messageID string) (*gmail.Message, error)

	GetLabelInfo(ctx context.Context, labelID string) (*gmail.Label, error)

	GetAttachment(ctx context.Context, messageID, attachmentID string) (*gmail.MessagePartBody, error)

	// UpdateLabels applies a combined add/remove label modification.
	UpdateLabels(ctx context.Context, messageID string, add, remove []string) (*gmail.Message, error)

	// GetMessageLabelList returns just the label ids of a message.
	GetMessageLabelList(ctx context.Context, messageID string) ([]string, error)

	TrashMessage(ctx context.Context, messageID string) (*gmail.Message, error)
	DeleteMessage(ctx context.Context, messageID string) error

	// SendMessage uploads an RFC-822 message. threadID, when non-empty,
	// threads the sent copy onto an existing conversation.
	SendMessage(ctx context.Context, raw []byte, threadID string) (*gmail.Message, error)

	// HistoryID exposes the mutable watermark maintained by GetHistory.
	HistoryID() uint64
	SetHistoryID(id uint64)
}

// ProviderFactory builds a connector for one account. Construction fails
// with an invalid-credentials error when the stored tokens cannot be
// refreshed.
type ProviderFactory interface {
	ForAccount(ctx context.Context, account *domain.Account) (EmailProvider, error)
}
