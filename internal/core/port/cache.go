package port

import (
	"context"
	"time"

	"github.com/arklim/realm-auth-service/internal/core/domain"
)

// UserCache holds time-bound copies of user records, keyed by id and by email.
// A miss is reported as repository.ErrNotFound.
type UserCache interface {
	GetByID(ctx context.Context, id string) (*domain.User, error)
	GetByEmail(ctx context.Context, email string) (*domain.User, error)
	SetByID(ctx context.Context, user domain.User, ttl time.Duration) error
	SetByEmail(ctx context.Context, user domain.User, ttl time.Duration) error
	Invalidate(ctx context.Context, id, email string) error
}

// RevocationStore records revoked token identifiers for a bounded time.
type RevocationStore interface {
	MarkRevoked(ctx context.Context, jti string, ttl time.Duration) error
	IsRevoked(ctx context.Context, jti string) (bool, error)
}

// RateLimitStore keeps sliding window attempt counters.
type RateLimitStore interface {
	TrimWindow(ctx context.Context, key string, window time.Duration, now time.Time) error
	CountAttempts(ctx context.Context, key string, window time.Duration, now time.Time) (int, error)
	RecordAttempt(ctx context.Context, key string, now time.Time) error
	OldestAttempt(ctx context.Context, key string, window time.Duration, now time.Time) (time.Time, bool, error)
}
