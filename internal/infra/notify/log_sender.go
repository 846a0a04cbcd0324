package notify

import (
	"context"

	"go.uber.org/zap"

	"github.com/arklim/realm-auth-service/internal/core/domain"
	"github.com/arklim/realm-auth-service/internal/infra/logger"
)

// LogSender writes jobs to the log instead of delivering them.
type LogSender struct {
	channel string
	logger  *zap.Logger
}

// NewLogSender creates a logging sender for channel.
func NewLogSender(channel string, log *zap.Logger) *LogSender {
	if log == nil {
		log = zap.NewNop()
	}
	return &LogSender{channel: channel, logger: log}
}

func (s *LogSender) Name() string {
	return "log-" + s.channel
}

func (s *LogSender) Send(_ context.Context, job domain.NotificationJob) error {
	to := logger.MaskEmail(job.To)
	if job.Kind == domain.NotificationKindSMS {
		to = logger.MaskPhone(job.To)
	}
	s.logger.Info("notification delivered to log",
		zap.String("job_id", job.ID),
		zap.String("realm", job.Realm),
		zap.String("kind", string(job.Kind)),
		zap.String("to", to),
		zap.String("subject", job.Subject),
		zap.Int("body_bytes", len(job.Body)),
	)
	return nil
}
