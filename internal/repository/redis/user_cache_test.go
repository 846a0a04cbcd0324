package redis

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/arklim/realm-auth-service/internal/core/domain"
	"github.com/arklim/realm-auth-service/internal/infra/security"
	"github.com/arklim/realm-auth-service/internal/repository"
)

func newTestUserCache(t *testing.T, namespace string) (*UserCache, func(string) (string, error)) {
	t.Helper()
	client, server := newTestRedis(t)
	cipher, err := security.NewAESCipher("cache-secret")
	if err != nil {
		t.Fatalf("NewAESCipher returned error: %v", err)
	}
	return NewUserCache(client, namespace, cipher), server.Get
}

func sampleUser() domain.User {
	return domain.User{
		ID:           "Ab3dE5f",
		FirstName:    "Alice",
		LastName:     "Liddell",
		Email:        "alice@example.com",
		Phone:        "5551234567",
		CountryCode:  "1",
		Country:      "United States",
		PasswordHash: "argon2id$...",
	}
}

func TestUserCache_SetAndGetBothKeys(t *testing.T) {
	cache, _ := newTestUserCache(t, "user1")
	ctx := context.Background()
	user := sampleUser()

	if err := cache.SetByID(ctx, user, time.Hour); err != nil {
		t.Fatalf("SetByID returned error: %v", err)
	}
	if err := cache.SetByEmail(ctx, user, time.Hour); err != nil {
		t.Fatalf("SetByEmail returned error: %v", err)
	}

	byID, err := cache.GetByID(ctx, user.ID)
	if err != nil {
		t.Fatalf("GetByID returned error: %v", err)
	}
	byEmail, err := cache.GetByEmail(ctx, "ALICE@example.com")
	if err != nil {
		t.Fatalf("GetByEmail returned error: %v", err)
	}
	if byID.Email != user.Email || byEmail.ID != user.ID || byEmail.Country != "United States" {
		t.Fatalf("unexpected cached records: %+v %+v", byID, byEmail)
	}
}

func TestUserCache_ValuesAreEncrypted(t *testing.T) {
	cache, get := newTestUserCache(t, "user1")
	ctx := context.Background()

	if err := cache.SetByID(ctx, sampleUser(), time.Hour); err != nil {
		t.Fatalf("SetByID returned error: %v", err)
	}
	raw, err := get("user1:id:Ab3dE5f")
	if err != nil {
		t.Fatalf("miniredis get: %v", err)
	}
	if strings.Contains(raw, "alice@example.com") {
		t.Fatalf("cached value stored in plain text")
	}
}

func TestUserCache_MissAndInvalidate(t *testing.T) {
	cache, _ := newTestUserCache(t, "user2")
	ctx := context.Background()
	user := sampleUser()

	if _, err := cache.GetByID(ctx, user.ID); !errors.Is(err, repository.ErrNotFound) {
		t.Fatalf("expected ErrNotFound on miss, got %v", err)
	}

	_ = cache.SetByID(ctx, user, time.Hour)
	_ = cache.SetByEmail(ctx, user, time.Hour)
	if err := cache.Invalidate(ctx, user.ID, user.Email); err != nil {
		t.Fatalf("Invalidate returned error: %v", err)
	}

	if _, err := cache.GetByID(ctx, user.ID); !errors.Is(err, repository.ErrNotFound) {
		t.Fatalf("expected id entry to be removed, got %v", err)
	}
	if _, err := cache.GetByEmail(ctx, user.Email); !errors.Is(err, repository.ErrNotFound) {
		t.Fatalf("expected email entry to be removed, got %v", err)
	}
}

func TestUserCache_RealmNamespacesAreIsolated(t *testing.T) {
	client, _ := newTestRedis(t)
	cipher, _ := security.NewAESCipher("cache-secret")
	realm1 := NewUserCache(client, "user1", cipher)
	realm2 := NewUserCache(client, "user2", cipher)
	ctx := context.Background()

	_ = realm1.SetByID(ctx, sampleUser(), time.Hour)
	if _, err := realm2.GetByID(ctx, "Ab3dE5f"); !errors.Is(err, repository.ErrNotFound) {
		t.Fatalf("expected realm2 miss, got %v", err)
	}
}

func TestUserCache_CorruptEntryIsDropped(t *testing.T) {
	client, server := newTestRedis(t)
	cipher, _ := security.NewAESCipher("cache-secret")
	cache := NewUserCache(client, "user1", cipher)
	ctx := context.Background()

	if err := server.Set("user1:id:Ab3dE5f", "not-base64!"); err != nil {
		t.Fatalf("miniredis set: %v", err)
	}

	if _, err := cache.GetByID(ctx, "Ab3dE5f"); !errors.Is(err, repository.ErrCorruptEntry) {
		t.Fatalf("expected ErrCorruptEntry, got %v", err)
	}
	if server.Exists("user1:id:Ab3dE5f") {
		t.Fatalf("expected corrupt entry to be deleted")
	}
}

func TestUserCache_TTLApplied(t *testing.T) {
	client, server := newTestRedis(t)
	cipher, _ := security.NewAESCipher("cache-secret")
	cache := NewUserCache(client, "user1", cipher)

	if err := cache.SetByEmail(context.Background(), sampleUser(), 3600*time.Second); err != nil {
		t.Fatalf("SetByEmail returned error: %v", err)
	}
	if ttl := server.TTL("user1:email:alice@example.com"); ttl != 3600*time.Second {
		t.Fatalf("unexpected ttl %v", ttl)
	}
	if err := cache.SetByEmail(context.Background(), sampleUser(), 0); err == nil {
		t.Fatalf("expected error for non-positive ttl")
	}
}
