package worker

import (
	"context"
	"fmt"

	"mail_server/core/port/in"
	"mail_server/core/port/out"
	"mail_server/internal/stream"
	"mail_server/pkg/locker"
	"mail_server/pkg/logger"
)

// SyncProcessor handles synchronization jobs.
type SyncProcessor struct {
	syncService in.SyncService
	producer    out.TaskProducer
	lock        out.SyncLock
}

// NewSyncProcessor creates a new sync processor.
func NewSyncProcessor(syncService in.SyncService, producer out.TaskProducer, lock out.SyncLock) *SyncProcessor {
	return &SyncProcessor{
		syncService: syncService,
		producer:    producer,
		lock:        lock,
	}
}

// ProcessSyncAccount runs a full reconciliation pass for one account.
func (p *SyncProcessor) ProcessSyncAccount(ctx context.Context, job *stream.Job) error {
	payload, err := stream.ParsePayload[stream.SyncAccountPayload](job)
	if err != nil {
		return fmt.Errorf("failed to parse payload: %w", err)
	}

	logger.WithAccount(payload.AccountID).Debug("[SyncProcessor.ProcessSyncAccount] starting")
	return p.syncService.Synchronize(ctx, payload.AccountID)
}

// ProcessSyncAllMessages fans out per-message downloads.
func (p *SyncProcessor) ProcessSyncAllMessages(ctx context.Context, job *stream.Job) error {
	payload, err := stream.ParsePayload[stream.SyncAccountPayload](job)
	if err != nil {
		return fmt.Errorf("failed to parse payload: %w", err)
	}
	return p.syncService.SyncAllMessages(ctx, payload.AccountID)
}

// ProcessSyncLabels refreshes labels across the whole mailbox.
func (p *SyncProcessor) ProcessSyncLabels(ctx context.Context, job *stream.Job) error {
	payload, err := stream.ParsePayload[stream.SyncAccountPayload](job)
	if err != nil {
		return fmt.Errorf("failed to parse payload: %w", err)
	}
	return p.syncService.SyncLabelsForAllMessages(ctx, payload.AccountID)
}

// ProcessFinishSync is the barrier completion callback. It re-runs the
// candidate scan until nothing is left to download.
func (p *SyncProcessor) ProcessFinishSync(ctx context.Context, job *stream.Job) error {
	payload, err := stream.ParsePayload[stream.SyncAccountPayload](job)
	if err != nil {
		return fmt.Errorf("failed to parse payload: %w", err)
	}

	logger.WithAccount(payload.AccountID).Info("[SyncProcessor.ProcessFinishSync] fan-out batch complete")
	return p.syncService.FinishSyncAllMessages(ctx, payload.AccountID)
}

// ProcessSyncMessage downloads one message. First-sync jobs decrement
// the fan-out barrier whether the download succeeded or not; the owner
// of the zero crossing enqueues the completion callback.
func (p *SyncProcessor) ProcessSyncMessage(ctx context.Context, job *stream.Job) error {
	payload, err := stream.ParsePayload[stream.SyncMessagePayload](job)
	if err != nil {
		return fmt.Errorf("failed to parse payload: %w", err)
	}

	syncErr := p.syncService.SyncMessage(ctx, payload.AccountID, payload.MessageID)

	if payload.FirstSync {
		p.arriveAtBarrier(ctx, payload.AccountID)
	}

	return syncErr
}

// arriveAtBarrier records one first-sync arrival. A failed download
// still counts: the next candidate scan picks the message up again.
func (p *SyncProcessor) arriveAtBarrier(ctx context.Context, accountID int64) {
	remaining, err := p.lock.Decrement(ctx, locker.BarrierKey(accountID))
	if err != nil {
		logger.WithAccount(accountID).WithError(err).Error("[SyncProcessor] failed to decrement barrier")
		return
	}
	if remaining > 0 {
		return
	}

	logger.WithAccount(accountID).Info("[SyncProcessor] barrier reached zero, scheduling finish")
	if err := p.producer.EnqueueFinishSyncAllMessages(ctx, accountID); err != nil {
		logger.WithAccount(accountID).WithError(err).Error("[SyncProcessor] failed to enqueue finish job")
	}
}

// ProcessHistoryItem replays one incremental history record.
func (p *SyncProcessor) ProcessHistoryItem(ctx context.Context, job *stream.Job) error {
	payload, err := stream.ParsePayload[stream.HistoryItemPayload](job)
	if err != nil {
		return fmt.Errorf("failed to parse payload: %w", err)
	}
	if payload.Item == nil {
		logger.WithAccount(payload.AccountID).Warn("[SyncProcessor.ProcessHistoryItem] empty history item")
		return nil
	}
	return p.syncService.SyncHistoryItem(ctx, payload.AccountID, payload.Item)
}
