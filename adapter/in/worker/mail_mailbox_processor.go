package worker

import (
	"context"
	"fmt"

	"mail_server/core/port/in"
	"mail_server/internal/stream"
)

// MailboxProcessor handles user-initiated mutation jobs.
type MailboxProcessor struct {
	mailboxService in.MailboxService
}

// NewMailboxProcessor creates a new mailbox processor.
func NewMailboxProcessor(mailboxService in.MailboxService) *MailboxProcessor {
	return &MailboxProcessor{mailboxService: mailboxService}
}

// ProcessToggleRead flips a message's read state.
func (p *MailboxProcessor) ProcessToggleRead(ctx context.Context, job *stream.Job) error {
	payload, err := stream.ParsePayload[stream.ToggleReadPayload](job)
	if err != nil {
		return fmt.Errorf("failed to parse payload: %w", err)
	}
	return p.mailboxService.ToggleRead(ctx, payload.MessageID, payload.Read)
}

// ProcessArchive removes all labels from a message.
func (p *MailboxProcessor) ProcessArchive(ctx context.Context, job *stream.Job) error {
	payload, err := stream.ParsePayload[stream.MessageActionPayload](job)
	if err != nil {
		return fmt.Errorf("failed to parse payload: %w", err)
	}
	return p.mailboxService.Archive(ctx, payload.MessageID)
}

// ProcessTrash moves a message to the trash.
func (p *MailboxProcessor) ProcessTrash(ctx context.Context, job *stream.Job) error {
	payload, err := stream.ParsePayload[stream.MessageActionPayload](job)
	if err != nil {
		return fmt.Errorf("failed to parse payload: %w", err)
	}
	return p.mailboxService.Trash(ctx, payload.MessageID)
}

// ProcessDelete permanently deletes a message.
func (p *MailboxProcessor) ProcessDelete(ctx context.Context, job *stream.Job) error {
	payload, err := stream.ParsePayload[stream.MessageActionPayload](job)
	if err != nil {
		return fmt.Errorf("failed to parse payload: %w", err)
	}
	return p.mailboxService.Delete(ctx, payload.MessageID)
}
