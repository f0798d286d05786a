package in

import "context"

// MailboxService is the user-initiated mutation pipeline. Every method
// issues the remote call first and mirrors the result locally.
type MailboxService interface {
	ToggleRead(ctx context.Context, messageID int64, read bool) error
	Archive(ctx context.Context, messageID int64) error
	Trash(ctx context.Context, messageID int64) error
	Delete(ctx context.Context, messageID int64) error
}

// OutboxService sends composed messages.
type OutboxService interface {
	// Send assembles and uploads the outbox message, enqueues a sync for
	// the sent copy, and deletes the outbox row on success.
	Send(ctx context.Context, outboxID int64) error
}
