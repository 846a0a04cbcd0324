package port

import (
	"context"

	"github.com/arklim/realm-auth-service/internal/core/domain"
)

// NotificationQueue hands notification jobs to asynchronous delivery.
type NotificationQueue interface {
	Enqueue(ctx context.Context, job domain.NotificationJob) error
}

// RevocationPublisher broadcasts token revocations to other instances.
type RevocationPublisher interface {
	PublishTokenRevoked(ctx context.Context, event domain.TokenRevokedEvent) error
}
