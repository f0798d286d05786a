package worker

import (
	"context"
	"fmt"

	"mail_server/core/port/in"
	"mail_server/internal/stream"
	"mail_server/pkg/logger"
)

// SendProcessor handles outbox send jobs.
type SendProcessor struct {
	outboxService in.OutboxService
}

// NewSendProcessor creates a new send processor.
func NewSendProcessor(outboxService in.OutboxService) *SendProcessor {
	return &SendProcessor{outboxService: outboxService}
}

// ProcessSend assembles and uploads one outbox message.
func (p *SendProcessor) ProcessSend(ctx context.Context, job *stream.Job) error {
	payload, err := stream.ParsePayload[stream.SendPayload](job)
	if err != nil {
		return fmt.Errorf("failed to parse payload: %w", err)
	}

	logger.Info("[SendProcessor.ProcessSend] outbox=%d", payload.OutboxID)
	return p.outboxService.Send(ctx, payload.OutboxID)
}
