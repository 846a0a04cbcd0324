package kafka

import (
	"context"
	"fmt"
	"time"

	"github.com/IBM/sarama"
	"go.uber.org/zap"

	"github.com/arklim/realm-auth-service/internal/core/domain"
	"github.com/arklim/realm-auth-service/internal/infra/logger"
)

// RevocationSink applies a revocation broadcast by another instance.
type RevocationSink interface {
	AcceptRemote(ctx context.Context, event domain.TokenRevokedEvent) error
}

// RevocationConsumer feeds auth.token.revoked events into the local blacklist filter.
type RevocationConsumer struct {
	sink        RevocationSink
	logger      *zap.Logger
	maxEventLag time.Duration
	now         func() time.Time
}

// NewRevocationConsumer constructs a consumer that keeps the local filter convergent.
// Events older than maxEventLag are still applied but logged.
func NewRevocationConsumer(sink RevocationSink, maxEventLag time.Duration, logger *zap.Logger) *RevocationConsumer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RevocationConsumer{
		sink:        sink,
		logger:      logger,
		maxEventLag: maxEventLag,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// WithClock overrides the consumer clock for deterministic testing.
func (c *RevocationConsumer) WithClock(clock func() time.Time) *RevocationConsumer {
	if clock != nil {
		c.now = clock
	}
	return c
}

// HandleMessage decodes a Kafka message prior to processing.
func (c *RevocationConsumer) HandleMessage(ctx context.Context, msg *sarama.ConsumerMessage) error {
	if msg == nil {
		return fmt.Errorf("message is nil")
	}

	var payload struct {
		JTI       string    `json:"jti"`
		RevokedAt time.Time `json:"revoked_at"`
		ExpiresAt time.Time `json:"expires_at"`
	}
	env, err := decodeEnvelope(msg.Value, eventTokenRevoked, &payload)
	if err != nil {
		return err
	}

	return c.HandleEvent(ctx, domain.TokenRevokedEvent{
		EventID:   env.EventID,
		JTI:       payload.JTI,
		RevokedAt: payload.RevokedAt,
		ExpiresAt: payload.ExpiresAt,
	})
}

// HandleEvent applies the revocation to the local filter.
func (c *RevocationConsumer) HandleEvent(ctx context.Context, event domain.TokenRevokedEvent) error {
	if !event.RevokedAt.IsZero() && c.maxEventLag > 0 {
		lag := c.now().Sub(event.RevokedAt)
		if lag > c.maxEventLag {
			c.logger.Warn("token revocation event lag exceeds threshold",
				zap.Duration("lag", lag),
				zap.Duration("threshold", c.maxEventLag),
				zap.String("jti", logger.MaskToken(event.JTI)),
			)
		}
	}

	if err := c.sink.AcceptRemote(ctx, event); err != nil {
		return fmt.Errorf("apply revocation: %w", err)
	}
	return nil
}

var _ MessageHandler = (*RevocationConsumer)(nil)
