// Package worker consumes queued jobs and drives the core services.
package worker

import (
	"context"
	"fmt"

	"github.com/goccy/go-json"

	"mail_server/adapter/out/messaging"
	"mail_server/internal/stream"
	"mail_server/pkg/logger"
)

// Handler routes decoded jobs to their processors.
type Handler struct {
	syncProcessor    *SyncProcessor
	mailboxProcessor *MailboxProcessor
	sendProcessor    *SendProcessor
}

func NewHandler(
	syncProcessor *SyncProcessor,
	mailboxProcessor *MailboxProcessor,
	sendProcessor *SendProcessor,
) *Handler {
	return &Handler{
		syncProcessor:    syncProcessor,
		mailboxProcessor: mailboxProcessor,
		sendProcessor:    sendProcessor,
	}
}

// Handle decodes a raw stream entry and dispatches it.
func (h *Handler) Handle(ctx context.Context, _ string, data []byte) error {
	var job stream.Job
	if err := json.Unmarshal(data, &job); err != nil {
		return fmt.Errorf("failed to decode job: %w", err)
	}
	return h.Process(ctx, &job)
}

func (h *Handler) Process(ctx context.Context, job *stream.Job) error {
	logger.Debug("Processing job: %s", job.Type)

	switch job.Type {
	// Sync jobs
	case stream.JobSyncAccount:
		return h.syncProcessor.ProcessSyncAccount(ctx, job)
	case stream.JobSyncAllMessages:
		return h.syncProcessor.ProcessSyncAllMessages(ctx, job)
	case stream.JobSyncLabels:
		return h.syncProcessor.ProcessSyncLabels(ctx, job)
	case stream.JobFinishSync:
		return h.syncProcessor.ProcessFinishSync(ctx, job)
	case stream.JobSyncMessage:
		return h.syncProcessor.ProcessSyncMessage(ctx, job)
	case stream.JobSyncHistoryItem:
		return h.syncProcessor.ProcessHistoryItem(ctx, job)

	// Mailbox jobs
	case stream.JobToggleRead:
		return h.mailboxProcessor.ProcessToggleRead(ctx, job)
	case stream.JobArchive:
		return h.mailboxProcessor.ProcessArchive(ctx, job)
	case stream.JobTrash:
		return h.mailboxProcessor.ProcessTrash(ctx, job)
	case stream.JobDelete:
		return h.mailboxProcessor.ProcessDelete(ctx, job)

	// Outbox jobs
	case stream.JobSend:
		return h.sendProcessor.ProcessSend(ctx, job)

	default:
		logger.Warn("Unknown job type: %s", job.Type)
		return nil
	}
}

// Ensure Handler implements messaging.JobHandler
var _ messaging.JobHandler = (*Handler)(nil)
