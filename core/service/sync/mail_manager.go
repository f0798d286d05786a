package sync

import (
	"context"
	"fmt"
	"time"

	"mail_server/config"
	"mail_server/core/domain"
	"mail_server/core/port/in"
	"mail_server/core/port/out"
	"mail_server/pkg/apperr"
	"mail_server/pkg/locker"
	"mail_server/pkg/logger"

	"google.golang.org/api/gmail/v1"
)

// Manager orchestrates per-account synchronization and mailbox
// mutations. One call handles one account; accounts never share state,
// so any number of managers can run concurrently.
type Manager struct {
	cfg      *config.Config
	accounts out.AccountRepository
	messages out.MessageRepository
	labels   out.LabelRepository
	bodies   out.BodyRepository
	factory  out.ProviderFactory
	producer out.TaskProducer
	lock     out.SyncLock
	builder  *MessageBuilder
}

func NewManager(
	cfg *config.Config,
	accounts out.AccountRepository,
	messages out.MessageRepository,
	labels out.LabelRepository,
	attachments out.AttachmentRepository,
	bodies out.BodyRepository,
	storage out.BlobStorage,
	factory out.ProviderFactory,
	producer out.TaskProducer,
	lock out.SyncLock,
) *Manager {
	m := &Manager{
		cfg:      cfg,
		accounts: accounts,
		messages: messages,
		labels:   labels,
		bodies:   bodies,
		factory:  factory,
		producer: producer,
		lock:     lock,
	}
	m.builder = newMessageBuilder(cfg, messages, attachments, bodies, storage, m)
	return m
}

// Builder exposes the payload translator for callers that already hold
// a provider, such as the trash pipeline.
func (m *Manager) Builder() *MessageBuilder {
	return m.builder
}

// Synchronize runs one sync pass: history-based once the initial
// download finished, bootstrap otherwise. Inactive accounts are
// skipped, not failed, so a revoked mailbox does not poison the
// scheduler fan-out.
func (m *Manager) Synchronize(ctx context.Context, accountID int64) error {
	account, provider, err := m.resolveAccount(ctx, accountID)
	if err != nil {
		return err
	}
	if account == nil {
		return nil
	}

	if account.CompleteDownload {
		return m.syncByHistory(ctx, provider, account)
	}
	return m.bootstrap(ctx, provider, account)
}

// bootstrap seeds the history watermark from the profile on the very
// first pass, then starts the initial download unless another worker
// already holds the first-sync lock.
func (m *Manager) bootstrap(ctx context.Context, provider out.EmailProvider, account *domain.Account) error {
	if account.HistoryID == nil {
		profile, err := provider.GetProfile(ctx)
		if err != nil {
			return err
		}
		if err := m.accounts.UpdateHistoryID(account.ID, profile.HistoryId); err != nil {
			return fmt.Errorf("failed to seed history id: %w", err)
		}
		historyID := profile.HistoryId
		account.HistoryID = &historyID
	}

	held, err := m.lock.IsSet(ctx, locker.FirstSyncKey(account.ID))
	if err != nil {
		return fmt.Errorf("failed to check first-sync lock: %w", err)
	}
	if held {
		logger.WithAccount(account.ID).Debug("initial download already running, skipping")
		return nil
	}

	if err := m.lock.Acquire(ctx, locker.FirstSyncKey(account.ID), m.cfg.WorkerID, m.lockTTL()); err != nil {
		return fmt.Errorf("failed to acquire first-sync lock: %w", err)
	}

	return m.syncAllMessages(ctx, provider, account)
}

// SyncAllMessages fans out downloads for every remote message not yet
// in the replica.
func (m *Manager) SyncAllMessages(ctx context.Context, accountID int64) error {
	account, provider, err := m.resolveAccount(ctx, accountID)
	if err != nil || account == nil {
		return err
	}
	return m.syncAllMessages(ctx, provider, account)
}

// FinishSyncAllMessages is the fan-out completion callback. It re-runs
// the candidate scan: either more messages arrived meanwhile and a new
// round starts, or nothing is left and the download is marked complete.
func (m *Manager) FinishSyncAllMessages(ctx context.Context, accountID int64) error {
	account, provider, err := m.resolveAccount(ctx, accountID)
	if err != nil || account == nil {
		return err
	}
	return m.syncAllMessages(ctx, provider, account)
}

func (m *Manager) syncAllMessages(ctx context.Context, provider out.EmailProvider, account *domain.Account) error {
	remote, err := provider.GetAllMessageIDs(ctx)
	if err != nil {
		return err
	}

	downloaded, err := m.messages.ListDownloadedIDs(account.ID)
	if err != nil {
		return fmt.Errorf("failed to list downloaded messages: %w", err)
	}

	var pending []string
	for _, msg := range remote {
		if _, ok := downloaded[msg.Id]; !ok {
			pending = append(pending, msg.Id)
		}
	}

	if len(pending) == 0 {
		if err := m.accounts.SetCompleteDownload(account.ID, true); err != nil {
			return fmt.Errorf("failed to mark download complete: %w", err)
		}
		if err := m.lock.Release(ctx, locker.FirstSyncKey(account.ID)); err != nil {
			logger.WithAccount(account.ID).Warn("failed to release first-sync lock: %v", err)
		}
		logger.WithAccount(account.ID).Info("initial download complete, %d messages in replica", len(remote))
		return nil
	}

	if err := m.lock.InitCounter(ctx, locker.BarrierKey(account.ID), int64(len(pending)), m.lockTTL()); err != nil {
		return fmt.Errorf("failed to seed completion barrier: %w", err)
	}

	logger.WithAccount(account.ID).Info("fanning out %d message downloads", len(pending))
	for _, id := range pending {
		if err := m.producer.EnqueueSyncMessage(ctx, account.ID, id, true); err != nil {
			logger.WithAccount(account.ID).WithMessage(id).Warn("failed to enqueue download: %v", err)
			// Keep the barrier honest for the task that will never run.
			if _, derr := m.lock.Decrement(ctx, locker.BarrierKey(account.ID)); derr != nil {
				logger.WithAccount(account.ID).Warn("failed to adjust barrier: %v", derr)
			}
		}
	}

	return nil
}

// SyncLabelsForAllMessages re-enqueues a per-message sync for every
// remote id, refreshing labels mailbox-wide.
func (m *Manager) SyncLabelsForAllMessages(ctx context.Context, accountID int64) error {
	account, provider, err := m.resolveAccount(ctx, accountID)
	if err != nil || account == nil {
		return err
	}

	remote, err := provider.GetAllMessageIDs(ctx)
	if err != nil {
		return err
	}

	for _, msg := range remote {
		if err := m.producer.EnqueueSyncMessage(ctx, account.ID, msg.Id, false); err != nil {
			logger.WithAccount(account.ID).WithMessage(msg.Id).Warn("failed to enqueue label refresh: %v", err)
		}
	}
	return nil
}

// SyncMessage downloads one message: the full payload when the replica
// has not seen it, a minimal label refresh when it has.
func (m *Manager) SyncMessage(ctx context.Context, accountID int64, messageID string) error {
	account, provider, err := m.resolveAccount(ctx, accountID)
	if err != nil || account == nil {
		return err
	}

	msg, err := m.messages.GetByRemoteID(account.ID, messageID)
	if err != nil {
		return fmt.Errorf("failed to load message: %w", err)
	}

	if msg == nil || !msg.IsDownloaded {
		payload, err := provider.GetMessageInfo(ctx, messageID)
		if err != nil {
			return err
		}
		return m.builder.StoreMessageInfo(ctx, provider, account, payload)
	}

	payload, err := provider.GetMinimalMessageInfo(ctx, messageID)
	if err != nil {
		return err
	}
	return m.builder.UpdateMessage(ctx, provider, account, payload)
}

// syncByHistory replays the history feed since the stored watermark,
// fanning each item out as its own task, and persists the advanced
// watermark afterwards. An empty feed leaves the watermark untouched.
func (m *Manager) syncByHistory(ctx context.Context, provider out.EmailProvider, account *domain.Account) error {
	var start uint64
	if account.HistoryID != nil {
		start = *account.HistoryID
	}
	provider.SetHistoryID(start)

	items, err := provider.GetHistory(ctx, start)
	if err != nil {
		return err
	}

	for _, item := range items {
		if err := m.producer.EnqueueSyncHistoryItem(ctx, account.ID, item); err != nil {
			logger.WithAccount(account.ID).Warn("failed to enqueue history item %d: %v", item.Id, err)
		}
	}

	if provider.HistoryID() > start {
		if err := m.accounts.UpdateHistoryID(account.ID, provider.HistoryID()); err != nil {
			return fmt.Errorf("failed to advance history id: %w", err)
		}
	}

	return nil
}

// SyncHistoryItem applies one history record to the replica. Additions
// are re-enqueued as message syncs; label changes on messages the
// replica has not seen yet fall back to a message sync too.
func (m *Manager) SyncHistoryItem(ctx context.Context, accountID int64, item *gmail.History) error {
	account, provider, err := m.resolveAccount(ctx, accountID)
	if err != nil || account == nil {
		return err
	}
	if item == nil {
		return nil
	}

	for _, added := range item.MessagesAdded {
		if added.Message == nil {
			continue
		}
		if err := m.producer.EnqueueSyncMessage(ctx, account.ID, added.Message.Id, false); err != nil {
			logger.WithAccount(account.ID).WithMessage(added.Message.Id).Warn("failed to enqueue added message: %v", err)
		}
	}

	for _, deleted := range item.MessagesDeleted {
		if deleted.Message == nil {
			continue
		}
		if err := m.deleteLocal(ctx, account, deleted.Message.Id); err != nil {
			return err
		}
	}

	labelsChanged := false
	for _, change := range item.LabelsAdded {
		if change.Message == nil {
			continue
		}
		changed, err := m.applyLabelChange(ctx, provider, account, change.Message.Id, change.LabelIds, true)
		if err != nil {
			return err
		}
		labelsChanged = labelsChanged || changed
	}
	for _, change := range item.LabelsRemoved {
		if change.Message == nil {
			continue
		}
		changed, err := m.applyLabelChange(ctx, provider, account, change.Message.Id, change.LabelIds, false)
		if err != nil {
			return err
		}
		labelsChanged = labelsChanged || changed
	}

	if labelsChanged || len(item.MessagesDeleted) > 0 {
		m.recountUnread(account)
	}
	return nil
}

// applyLabelChange mirrors one add/remove set onto a local message.
// Returns whether local label state changed.
func (m *Manager) applyLabelChange(ctx context.Context, provider out.EmailProvider, account *domain.Account, remoteID string, labelIDs []string, added bool) (bool, error) {
	msg, err := m.messages.GetByRemoteID(account.ID, remoteID)
	if err != nil {
		return false, fmt.Errorf("failed to load message: %w", err)
	}
	if msg == nil {
		// Never seen this message, a full sync beats patching nothing.
		return false, m.producer.EnqueueSyncMessage(ctx, account.ID, remoteID, false)
	}

	changed := false
	for _, labelID := range labelIDs {
		if labelID == m.cfg.UnreadLabel {
			if err := m.messages.SetRead(msg.ID, !added); err != nil {
				return changed, fmt.Errorf("failed to set read flag: %w", err)
			}
			changed = true
			continue
		}

		label, err := m.GetLabel(ctx, provider, account, labelID)
		if err != nil {
			return changed, err
		}
		if added {
			err = m.messages.AttachLabel(msg.ID, label.ID)
		} else {
			err = m.messages.DetachLabel(msg.ID, label.ID)
		}
		if err != nil {
			return changed, fmt.Errorf("failed to update label %s: %w", labelID, err)
		}
		changed = true
	}
	return changed, nil
}

// GetLabel resolves a label row by remote id, creating it from the API
// on first sight. A lost create race falls back to the winner's row
// and refreshes its name.
func (m *Manager) GetLabel(ctx context.Context, provider out.EmailProvider, account *domain.Account, labelID string) (*domain.Label, error) {
	label, err := m.labels.GetByRemoteID(account.ID, labelID)
	if err != nil {
		return nil, fmt.Errorf("failed to load label: %w", err)
	}
	if label != nil {
		return label, nil
	}

	info, err := provider.GetLabelInfo(ctx, labelID)
	if err != nil {
		return nil, err
	}

	label = &domain.Label{
		AccountID: account.ID,
		LabelID:   labelID,
		Name:      info.Name,
		Type:      domain.ParseLabelType(info.Type),
	}
	if createErr := m.labels.Create(label); createErr != nil {
		existing, err := m.labels.GetByRemoteID(account.ID, labelID)
		if err != nil || existing == nil {
			return nil, fmt.Errorf("failed to create label %s: %w", labelID, createErr)
		}
		if existing.Name != info.Name {
			if err := m.labels.UpdateName(existing.ID, info.Name); err == nil {
				existing.Name = info.Name
			}
		}
		return existing, nil
	}

	return label, nil
}

// deleteLocal removes a message row and its body document.
func (m *Manager) deleteLocal(ctx context.Context, account *domain.Account, remoteID string) error {
	if err := m.messages.DeleteByRemoteID(account.ID, remoteID); err != nil {
		return fmt.Errorf("failed to delete message: %w", err)
	}
	if err := m.bodies.Delete(ctx, account.ID, remoteID); err != nil {
		logger.WithAccount(account.ID).WithMessage(remoteID).Warn("failed to delete body document: %v", err)
	}
	return nil
}

// recountUnread refreshes the unread counter of every label of the
// account. Failures only log; a stale counter heals on the next pass.
func (m *Manager) recountUnread(account *domain.Account) {
	labels, err := m.labels.ListByAccount(account.ID)
	if err != nil {
		logger.WithAccount(account.ID).Warn("failed to list labels for unread recount: %v", err)
		return
	}
	for _, label := range labels {
		if err := m.labels.RecomputeUnread(label.ID); err != nil {
			logger.WithAccount(account.ID).Warn("failed to recount unread for label %s: %v", label.LabelID, err)
		}
	}
}

// resolveAccount loads the account and builds its provider. A nil
// account with nil error means the account is inactive and the caller
// should skip quietly.
func (m *Manager) resolveAccount(ctx context.Context, accountID int64) (*domain.Account, out.EmailProvider, error) {
	account, err := m.accounts.GetByID(accountID)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load account: %w", err)
	}
	if account == nil {
		return nil, nil, apperr.NotFound("account")
	}
	if !account.Active() {
		logger.WithAccount(accountID).Debug("account inactive, skipping")
		return nil, nil, nil
	}

	provider, err := m.factory.ForAccount(ctx, account)
	if err != nil {
		return nil, nil, err
	}
	return account, provider, nil
}

func (m *Manager) lockTTL() time.Duration {
	return time.Duration(m.cfg.SyncLockLifetime) * time.Second
}

// Ensure Manager implements in.SyncService
var _ in.SyncService = (*Manager)(nil)
