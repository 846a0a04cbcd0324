package kafka

import (
	"context"
	"fmt"

	"github.com/IBM/sarama"
	"go.uber.org/zap"

	"github.com/arklim/realm-auth-service/internal/core/domain"
)

// NotificationDeliverer delivers one notification job.
type NotificationDeliverer interface {
	Deliver(ctx context.Context, job domain.NotificationJob) error
}

// NotificationConsumer hands queued notification jobs to a deliverer.
type NotificationConsumer struct {
	deliver NotificationDeliverer
	logger  *zap.Logger
}

func NewNotificationConsumer(deliver NotificationDeliverer, logger *zap.Logger) *NotificationConsumer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &NotificationConsumer{deliver: deliver, logger: logger}
}

// HandleMessage decodes a job and delivers it.
func (c *NotificationConsumer) HandleMessage(ctx context.Context, msg *sarama.ConsumerMessage) error {
	if msg == nil {
		return fmt.Errorf("message is nil")
	}

	var job domain.NotificationJob
	if _, err := decodeEnvelope(msg.Value, eventNotificationRequested, &job); err != nil {
		return err
	}

	if err := c.deliver.Deliver(ctx, job); err != nil {
		return fmt.Errorf("deliver %s job %s: %w", job.Kind, job.ID, err)
	}
	c.logger.Debug("notification delivered", zap.String("job_id", job.ID), zap.String("kind", string(job.Kind)))
	return nil
}

var _ MessageHandler = (*NotificationConsumer)(nil)
