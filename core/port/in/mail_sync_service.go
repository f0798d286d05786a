// Package in defines inbound ports driven by workers, HTTP handlers and
// the CLI.
package in

import (
	"context"

	"google.golang.org/api/gmail/v1"
)

// SyncService is the per-account reconciliation engine.
type SyncService interface {
	// Synchronize takes the incremental path once the initial download
	// finished, the bootstrap path otherwise.
	Synchronize(ctx context.Context, accountID int64) error

	// SyncAllMessages fans out per-message downloads for everything not
	// yet downloaded, guarded by the completion barrier.
	SyncAllMessages(ctx context.Context, accountID int64) error

	// SyncLabelsForAllMessages re-enqueues a per-message sync for every
	// remote id to refresh labels mailbox-wide.
	SyncLabelsForAllMessages(ctx context.Context, accountID int64) error

	// FinishSyncAllMessages is the barrier callback; it re-runs
	// SyncAllMessages until no undownloaded messages remain.
	FinishSyncAllMessages(ctx context.Context, accountID int64) error

	SyncMessage(ctx context.Context, accountID int64, messageID string) error
	SyncHistoryItem(ctx context.Context, accountID int64, item *gmail.History) error
}
