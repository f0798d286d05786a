package out

import (
	"context"

	"google.golang.org/api/gmail/v1"
)

// TaskProducer enqueues work on the task broker. Every method is fire
// and forget; delivery is at-least-once and handlers are idempotent.
type TaskProducer interface {
	EnqueueSyncAccount(ctx context.Context, accountID int64) error
	EnqueueSyncAllMessages(ctx context.Context, accountID int64) error
	EnqueueSyncLabelsForAllMessages(ctx context.Context, accountID int64) error
	EnqueueFinishSyncAllMessages(ctx context.Context, accountID int64) error

	// EnqueueSyncMessage routes to the bootstrap queue when firstSync is
	// set, so initial downloads do not starve incremental traffic.
	EnqueueSyncMessage(ctx context.Context, accountID int64, messageID string, firstSync bool) error

	EnqueueSyncHistoryItem(ctx context.Context, accountID int64, item *gmail.History) error

	EnqueueToggleRead(ctx context.Context, messageID int64, read bool) error
	EnqueueArchive(ctx context.Context, messageID int64) error
	EnqueueTrash(ctx context.Context, messageID int64) error
	EnqueueDelete(ctx context.Context, messageID int64) error
	EnqueueSend(ctx context.Context, outboxID int64) error
}
