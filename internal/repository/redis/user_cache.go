package redis

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	red "github.com/redis/go-redis/v9"

	"github.com/arklim/realm-auth-service/internal/core/domain"
	"github.com/arklim/realm-auth-service/internal/core/port"
	"github.com/arklim/realm-auth-service/internal/repository"
)

// UserCache stores encrypted user records under a realm namespace.
// Keys: <namespace>:id:<id> and <namespace>:email:<normalized email>.
type UserCache struct {
	client    *red.Client
	namespace string
	cipher    port.Cipher
}

var _ port.UserCache = (*UserCache)(nil)

// NewUserCache wires a realm-scoped user cache.
func NewUserCache(client *red.Client, namespace string, cipher port.Cipher) *UserCache {
	return &UserCache{client: client, namespace: namespace, cipher: cipher}
}

// IDKey returns the cache key of the id-keyed entry.
func (c *UserCache) IDKey(id string) string {
	return fmt.Sprintf("%s:id:%s", c.namespace, id)
}

// EmailKey returns the cache key of the email-keyed entry.
func (c *UserCache) EmailKey(email string) string {
	return fmt.Sprintf("%s:email:%s", c.namespace, domain.NormalizeEmail(email))
}

// GetByID returns repository.ErrNotFound on a miss.
func (c *UserCache) GetByID(ctx context.Context, id string) (*domain.User, error) {
	return c.get(ctx, c.IDKey(id))
}

// GetByEmail returns repository.ErrNotFound on a miss.
func (c *UserCache) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	return c.get(ctx, c.EmailKey(email))
}

// SetByID caches user under its id for ttl.
func (c *UserCache) SetByID(ctx context.Context, user domain.User, ttl time.Duration) error {
	return c.set(ctx, c.IDKey(user.ID), user, ttl)
}

// SetByEmail caches user under its email for ttl.
func (c *UserCache) SetByEmail(ctx context.Context, user domain.User, ttl time.Duration) error {
	return c.set(ctx, c.EmailKey(user.Email), user, ttl)
}

// Invalidate removes both entries of a user in one round trip. Empty keys are skipped.
func (c *UserCache) Invalidate(ctx context.Context, id, email string) error {
	keys := make([]string, 0, 2)
	if id != "" {
		keys = append(keys, c.IDKey(id))
	}
	if email != "" {
		keys = append(keys, c.EmailKey(email))
	}
	if len(keys) == 0 {
		return nil
	}
	if err := c.client.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("redis del user cache: %w", err)
	}
	return nil
}

func (c *UserCache) get(ctx context.Context, key string) (*domain.User, error) {
	raw, err := c.client.Get(ctx, key).Result()
	if err != nil {
		if errors.Is(err, red.Nil) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("redis get user cache: %w", err)
	}

	user, err := c.decode(raw)
	if err != nil {
		// A stale or foreign entry is dropped so the next read repopulates it.
		_ = c.client.Del(ctx, key).Err()
		return nil, fmt.Errorf("%w: %v", repository.ErrCorruptEntry, err)
	}
	return user, nil
}

func (c *UserCache) set(ctx context.Context, key string, user domain.User, ttl time.Duration) error {
	if ttl <= 0 {
		return errors.New("ttl must be positive")
	}

	plain, err := json.Marshal(user)
	if err != nil {
		return fmt.Errorf("encode cached user: %w", err)
	}
	sealed, err := c.cipher.Encrypt(plain)
	if err != nil {
		return fmt.Errorf("encrypt cached user: %w", err)
	}

	if err := c.client.Set(ctx, key, base64.StdEncoding.EncodeToString(sealed), ttl).Err(); err != nil {
		return fmt.Errorf("redis set user cache: %w", err)
	}
	return nil
}

func (c *UserCache) decode(raw string) (*domain.User, error) {
	sealed, err := base64.StdEncoding.DecodeString(raw)
	if err != nil {
		return nil, err
	}
	plain, err := c.cipher.Decrypt(sealed)
	if err != nil {
		return nil, err
	}
	var user domain.User
	if err := json.Unmarshal(plain, &user); err != nil {
		return nil, err
	}
	return &user, nil
}
