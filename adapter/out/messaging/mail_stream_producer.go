// Package messaging provides message queue adapters.
package messaging

import (
	"context"
	"fmt"

	"github.com/goccy/go-json"

	"mail_server/core/port/out"
	"mail_server/internal/stream"

	"github.com/redis/go-redis/v9"
	"google.golang.org/api/gmail/v1"
)

// RedisProducer implements out.TaskProducer using Redis Streams.
type RedisProducer struct {
	client *redis.Client
}

// NewRedisProducer creates a new RedisProducer.
func NewRedisProducer(client *redis.Client) *RedisProducer {
	return &RedisProducer{client: client}
}

// EnqueueSyncAccount enqueues a full sync pass for an account.
func (p *RedisProducer) EnqueueSyncAccount(ctx context.Context, accountID int64) error {
	return p.publish(ctx, stream.StreamSyncAccount,
		stream.NewJob(stream.JobSyncAccount, map[string]any{"account_id": accountID}))
}

// EnqueueSyncAllMessages enqueues a bootstrap candidate scan.
func (p *RedisProducer) EnqueueSyncAllMessages(ctx context.Context, accountID int64) error {
	return p.publish(ctx, stream.StreamSyncAccount,
		stream.NewJob(stream.JobSyncAllMessages, map[string]any{"account_id": accountID}))
}

// EnqueueSyncLabelsForAllMessages enqueues a mailbox-wide label refresh.
func (p *RedisProducer) EnqueueSyncLabelsForAllMessages(ctx context.Context, accountID int64) error {
	return p.publish(ctx, stream.StreamSyncAccount,
		stream.NewJob(stream.JobSyncLabels, map[string]any{"account_id": accountID}))
}

// EnqueueFinishSyncAllMessages enqueues the fan-out completion callback.
func (p *RedisProducer) EnqueueFinishSyncAllMessages(ctx context.Context, accountID int64) error {
	return p.publish(ctx, stream.StreamSyncAccount,
		stream.NewJob(stream.JobFinishSync, map[string]any{"account_id": accountID}))
}

// EnqueueSyncMessage enqueues a per-message download. First-sync
// downloads go to their own stream.
func (p *RedisProducer) EnqueueSyncMessage(ctx context.Context, accountID int64, messageID string, firstSync bool) error {
	target := stream.StreamSyncMessage
	if firstSync {
		target = stream.StreamFirstSync
	}
	return p.publish(ctx, target, stream.NewJob(stream.JobSyncMessage, map[string]any{
		"account_id": accountID,
		"message_id": messageID,
		"first_sync": firstSync,
	}))
}

// EnqueueSyncHistoryItem enqueues one history record for replay.
func (p *RedisProducer) EnqueueSyncHistoryItem(ctx context.Context, accountID int64, item *gmail.History) error {
	return p.publish(ctx, stream.StreamHistory, stream.NewJob(stream.JobSyncHistoryItem, map[string]any{
		"account_id": accountID,
		"item":       item,
	}))
}

// EnqueueToggleRead enqueues a read-state flip.
func (p *RedisProducer) EnqueueToggleRead(ctx context.Context, messageID int64, read bool) error {
	return p.publish(ctx, stream.StreamEditLabels, stream.NewJob(stream.JobToggleRead, map[string]any{
		"message_id": messageID,
		"read":       read,
	}))
}

// EnqueueArchive enqueues an archive.
func (p *RedisProducer) EnqueueArchive(ctx context.Context, messageID int64) error {
	return p.publish(ctx, stream.StreamEditLabels,
		stream.NewJob(stream.JobArchive, map[string]any{"message_id": messageID}))
}

// EnqueueTrash enqueues a move to trash.
func (p *RedisProducer) EnqueueTrash(ctx context.Context, messageID int64) error {
	return p.publish(ctx, stream.StreamTrash,
		stream.NewJob(stream.JobTrash, map[string]any{"message_id": messageID}))
}

// EnqueueDelete enqueues a permanent delete.
func (p *RedisProducer) EnqueueDelete(ctx context.Context, messageID int64) error {
	return p.publish(ctx, stream.StreamDelete,
		stream.NewJob(stream.JobDelete, map[string]any{"message_id": messageID}))
}

// EnqueueSend enqueues an outbox send.
func (p *RedisProducer) EnqueueSend(ctx context.Context, outboxID int64) error {
	return p.publish(ctx, stream.StreamSend,
		stream.NewJob(stream.JobSend, map[string]any{"outbox_id": outboxID}))
}

// publish publishes a job to a stream using go-redis.
func (p *RedisProducer) publish(ctx context.Context, target string, job *stream.Job) error {
	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("failed to marshal job: %w", err)
	}

	err = p.client.XAdd(ctx, &redis.XAddArgs{
		Stream: target,
		ID:     "*",
		Values: map[string]interface{}{
			"data": string(data),
		},
	}).Err()
	if err != nil {
		return fmt.Errorf("failed to publish to %s: %w", target, err)
	}

	return nil
}

// Ensure RedisProducer implements out.TaskProducer
var _ out.TaskProducer = (*RedisProducer)(nil)
