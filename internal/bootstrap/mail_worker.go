package bootstrap

import (
	"context"
	"os"
	"time"

	"github.com/rs/zerolog"

	"mail_server/adapter/in/worker"
	"mail_server/adapter/out/messaging"
	"mail_server/internal/stream"
	"mail_server/pkg/logger"
)

const consumerGroup = "mail-workers"

// Worker runs the stream consumer and the periodic sync scheduler.
type Worker struct {
	consumer  *messaging.Consumer
	scheduler *worker.Scheduler
	cancel    context.CancelFunc
}

// NewWorker wires the job handler and the consumer over every stream.
func NewWorker(deps *Dependencies) *Worker {
	cfg := deps.Config

	zlog := zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).
		With().Timestamp().Str("component", "worker").Logger()

	handler := worker.NewHandler(
		worker.NewSyncProcessor(deps.SyncManager, deps.Producer, deps.Lock),
		worker.NewMailboxProcessor(deps.SyncManager),
		worker.NewSendProcessor(deps.OutboxSender),
	)

	consumer := messaging.NewConsumer(deps.Redis, &messaging.ConsumerConfig{
		Group:                consumerGroup,
		Consumer:             cfg.WorkerID,
		Streams:              stream.AllStreams(),
		Handler:              handler,
		Logger:               zlog,
		PendingCheckInterval: time.Duration(cfg.ConsumerPendingCheckSec) * time.Second,
		PendingIdleTime:      cfg.TaskRetryDelay,
		MaxRetries:           cfg.TaskMaxRetries,
	})

	w := &Worker{consumer: consumer}
	if cfg.SchedulerEnabled {
		w.scheduler = worker.NewScheduler(deps.AccountRepo, deps.Producer, cfg.SchedulerInterval)
	}

	return w
}

// Run starts the scheduler and blocks consuming streams until ctx is
// cancelled.
func (w *Worker) Run(ctx context.Context) error {
	ctx, w.cancel = context.WithCancel(ctx)

	if w.scheduler != nil {
		if err := w.scheduler.Start(); err != nil {
			return err
		}
	}

	err := w.consumer.Run(ctx)
	if err != nil && err != context.Canceled {
		return err
	}
	return nil
}

// Stop cancels consumption and stops the scheduler.
func (w *Worker) Stop() {
	logger.Info("stopping worker")
	if w.cancel != nil {
		w.cancel()
	}
	if w.scheduler != nil {
		w.scheduler.Stop()
	}
}
