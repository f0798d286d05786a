package worker

import (
	"context"
	"fmt"
	"time"

	"mail_server/core/port/out"
	"mail_server/pkg/logger"

	"github.com/robfig/cron/v3"
)

// Scheduler periodically enqueues a sync pass for every active account.
// Downstream locks keep overlapping passes harmless, so the interval can
// be short.
type Scheduler struct {
	accounts out.AccountRepository
	producer out.TaskProducer
	interval time.Duration
	cron     *cron.Cron
}

// NewScheduler creates a new Scheduler.
func NewScheduler(accounts out.AccountRepository, producer out.TaskProducer, interval time.Duration) *Scheduler {
	return &Scheduler{
		accounts: accounts,
		producer: producer,
		interval: interval,
		cron:     cron.New(),
	}
}

// Start registers the fan-out entry and starts the cron loop.
func (s *Scheduler) Start() error {
	spec := fmt.Sprintf("@every %s", s.interval)
	if _, err := s.cron.AddFunc(spec, s.fanOut); err != nil {
		return fmt.Errorf("failed to schedule sync fan-out: %w", err)
	}

	logger.Info("[Scheduler] starting, interval=%s", s.interval)
	s.cron.Start()
	return nil
}

// Stop stops the cron loop and waits for running entries to finish.
func (s *Scheduler) Stop() {
	logger.Info("[Scheduler] stopping")
	<-s.cron.Stop().Done()
}

// fanOut enqueues one sync job per active account.
func (s *Scheduler) fanOut() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	accounts, err := s.accounts.ListActive()
	if err != nil {
		logger.WithError(err).Error("[Scheduler] failed to list active accounts")
		return
	}
	if len(accounts) == 0 {
		return
	}

	logger.Debug("[Scheduler] enqueueing sync for %d accounts", len(accounts))
	for _, account := range accounts {
		if err := s.producer.EnqueueSyncAccount(ctx, account.ID); err != nil {
			logger.WithAccount(account.ID).WithError(err).Error("[Scheduler] failed to enqueue sync")
		}
	}
}
