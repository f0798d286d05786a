package outbox

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"mail_server/core/domain"
	"mail_server/core/port/in"
	"mail_server/core/port/out"
	"mail_server/pkg/apperr"
	"mail_server/pkg/logger"
)

// Sender implements in.OutboxService: it stages attachments, assembles
// the raw message, uploads it and hands the sent copy back to the sync
// pipeline.
type Sender struct {
	accounts    out.AccountRepository
	messages    out.MessageRepository
	attachments out.AttachmentRepository
	outbox      out.OutboxRepository
	storage     out.BlobStorage
	factory     out.ProviderFactory
	producer    out.TaskProducer
	builder     *Builder
}

func NewSender(
	accounts out.AccountRepository,
	messages out.MessageRepository,
	attachments out.AttachmentRepository,
	outbox out.OutboxRepository,
	storage out.BlobStorage,
	factory out.ProviderFactory,
	producer out.TaskProducer,
) *Sender {
	return &Sender{
		accounts:    accounts,
		messages:    messages,
		attachments: attachments,
		outbox:      outbox,
		storage:     storage,
		factory:     factory,
		producer:    producer,
		builder:     NewBuilder(storage),
	}
}

// Send assembles and uploads one outbox message. On success the outbox
// row is deleted and a sync for the sent copy is enqueued. A message
// for an unauthorized account is dropped, not retried; retrying cannot
// fix missing credentials.
func (s *Sender) Send(ctx context.Context, outboxID int64) error {
	ob, err := s.outbox.GetByID(outboxID)
	if err != nil {
		return fmt.Errorf("failed to load outbox message: %w", err)
	}
	if ob == nil {
		return apperr.NotFound("outbox message")
	}

	account, err := s.accounts.GetByID(ob.AccountID)
	if err != nil {
		return fmt.Errorf("failed to load account: %w", err)
	}
	if account == nil || !account.Active() {
		logger.WithAccount(ob.AccountID).Error("dropping outbox message %d, account not authorized", ob.ID)
		return nil
	}

	provider, err := s.factory.ForAccount(ctx, account)
	if err != nil {
		return err
	}

	if err := s.stageTemplateAttachments(ob); err != nil {
		return err
	}
	if err := s.stageOriginalAttachments(ob); err != nil {
		return err
	}

	staged, err := s.outbox.ListAttachments(ob.ID)
	if err != nil {
		return fmt.Errorf("failed to list staged attachments: %w", err)
	}

	raw, err := s.builder.Build(ob, account, staged)
	if err != nil {
		return err
	}

	sent, err := provider.SendMessage(ctx, raw, s.resolveThreadID(ob))
	if err != nil {
		return err
	}

	if err := s.producer.EnqueueSyncMessage(ctx, account.ID, sent.Id, false); err != nil {
		logger.WithAccount(account.ID).WithMessage(sent.Id).Warn("failed to enqueue sync of sent copy: %v", err)
	}

	if err := s.outbox.Delete(ob.ID); err != nil {
		return fmt.Errorf("failed to delete sent outbox row: %w", err)
	}
	return nil
}

// resolveThreadID returns the thread to attach the send to. Replies
// thread only onto messages of the same account; a reply composed
// against another account's message goes out unthreaded.
func (s *Sender) resolveThreadID(ob *domain.OutboxMessage) string {
	if ob.OriginalMessageID == nil {
		return ""
	}

	original, err := s.messages.GetByID(*ob.OriginalMessageID)
	if err != nil || original == nil {
		return ""
	}
	if original.AccountID != ob.AccountID {
		return ""
	}
	return original.ThreadID
}

// stageTemplateAttachments copies the template's attachments into the
// outbox staging area.
func (s *Sender) stageTemplateAttachments(ob *domain.OutboxMessage) error {
	ids := parseIDList(ob.TemplateAttachmentIDs)
	if len(ids) == 0 {
		return nil
	}

	attachments, err := s.outbox.ListTemplateAttachments(ids)
	if err != nil {
		return fmt.Errorf("failed to load template attachments: %w", err)
	}

	for _, att := range attachments {
		if err := s.stage(ob, att.Filename, att.Path, att.ContentType, att.Inline, att.CID); err != nil {
			return err
		}
	}
	return nil
}

// stageOriginalAttachments copies attachments carried over from the
// message being replied to or forwarded.
func (s *Sender) stageOriginalAttachments(ob *domain.OutboxMessage) error {
	ids := parseIDList(ob.OriginalAttachmentIDs)
	if len(ids) == 0 {
		return nil
	}

	attachments, err := s.attachments.ListByIDs(ids)
	if err != nil {
		return fmt.Errorf("failed to load original attachments: %w", err)
	}

	for _, att := range attachments {
		if err := s.stage(ob, att.Filename, att.Path, att.ContentType, att.Inline, att.CID); err != nil {
			return err
		}
	}
	return nil
}

// stage copies one attachment's bytes into the outbox staging area and
// records the staged row.
func (s *Sender) stage(ob *domain.OutboxMessage, filename, sourcePath, contentType string, inline bool, cid string) error {
	data, err := s.storage.Open(sourcePath)
	if err != nil {
		return fmt.Errorf("failed to read attachment %q: %w", filename, err)
	}

	path := fmt.Sprintf("outbox/attachments/%d/%s", ob.ID, filename)
	if err := s.storage.Save(path, data); err != nil {
		return fmt.Errorf("failed to stage attachment %q: %w", filename, err)
	}

	return s.outbox.CreateAttachment(&domain.OutboxAttachment{
		OutboxID:    ob.ID,
		Filename:    filename,
		Path:        path,
		Size:        int64(len(data)),
		ContentType: contentType,
		Inline:      inline,
		CID:         cid,
	})
}

// parseIDList splits a comma-separated id list, ignoring blanks and
// junk.
func parseIDList(encoded string) []int64 {
	var ids []int64
	for _, field := range strings.Split(encoded, ",") {
		field = strings.TrimSpace(field)
		if field == "" {
			continue
		}
		if id, err := strconv.ParseInt(field, 10, 64); err == nil {
			ids = append(ids, id)
		}
	}
	return ids
}

// Ensure Sender implements in.OutboxService
var _ in.OutboxService = (*Sender)(nil)
