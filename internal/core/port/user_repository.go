package port

import (
	"context"

	"github.com/arklim/realm-auth-service/internal/core/domain"
)

// UserRepository is the authoritative credential store of a single realm.
type UserRepository interface {
	Insert(ctx context.Context, user domain.User) error
	FindByID(ctx context.Context, id string) (*domain.User, error)
	FindByEmail(ctx context.Context, email string) (*domain.User, error)
	UpdateVerified(ctx context.Context, id string, verified bool) error
	UpdatePassword(ctx context.Context, id string, passwordHash string) error
	Delete(ctx context.Context, id string) error
}
