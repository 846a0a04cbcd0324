package kafka

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/arklim/realm-auth-service/internal/core/domain"
	"github.com/arklim/realm-auth-service/internal/core/port"
	"github.com/arklim/realm-auth-service/internal/infra/logger"
)

// StubPublisher logs revocation broadcasts instead of sending them to Kafka.
// A single instance without brokers has no peers to notify.
type StubPublisher struct {
	logger *zap.Logger
}

// NewStubPublisher constructs a development-friendly event publisher.
func NewStubPublisher(logger *zap.Logger) *StubPublisher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StubPublisher{logger: logger}
}

// PublishTokenRevoked logs auth.token.revoked events.
func (p *StubPublisher) PublishTokenRevoked(_ context.Context, event domain.TokenRevokedEvent) error {
	at := event.RevokedAt
	if at.IsZero() {
		at = time.Now().UTC()
	}

	p.logger.Debug("Stub event published",
		zap.String("event_type", eventTokenRevoked),
		zap.String("jti", logger.MaskToken(event.JTI)),
		zap.Time("timestamp", at.UTC()),
		zap.Time("expires_at", event.ExpiresAt.UTC()),
	)
	return nil
}

var _ port.RevocationPublisher = (*StubPublisher)(nil)
