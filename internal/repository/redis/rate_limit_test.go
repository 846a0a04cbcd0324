package redis

import (
	"context"
	"testing"
	"time"
)

func TestRateLimitRepository_CountsWithinWindow(t *testing.T) {
	client, server := newTestRedis(t)
	repo := NewRateLimitRepository(client, SlidingWindowConfig{KeyPrefix: "rl", TTL: time.Hour})
	ctx := context.Background()

	base := time.Unix(1_700_000_000, 0)
	for i := 0; i < 3; i++ {
		if err := repo.RecordAttempt(ctx, "10.0.0.1", base); err != nil {
			t.Fatalf("RecordAttempt returned error: %v", err)
		}
	}

	count, err := repo.CountAttempts(ctx, "10.0.0.1", time.Minute, base.Add(time.Second))
	if err != nil {
		t.Fatalf("CountAttempts returned error: %v", err)
	}
	if count != 3 {
		t.Fatalf("expected simultaneous attempts to be counted separately, got %d", count)
	}

	if ttl := server.TTL("rl:10.0.0.1"); ttl != time.Hour {
		t.Fatalf("unexpected ttl %v", ttl)
	}

	oldest, ok, err := repo.OldestAttempt(ctx, "10.0.0.1", time.Minute, base.Add(time.Second))
	if err != nil || !ok {
		t.Fatalf("OldestAttempt returned ok=%v err=%v", ok, err)
	}
	if !oldest.Equal(base) {
		t.Fatalf("unexpected oldest attempt %v", oldest)
	}
}

func TestRateLimitRepository_TrimWindow(t *testing.T) {
	client, _ := newTestRedis(t)
	repo := NewRateLimitRepository(client, SlidingWindowConfig{KeyPrefix: "rl"})
	ctx := context.Background()

	base := time.Unix(1_700_000_000, 0)
	_ = repo.RecordAttempt(ctx, "ip", base)
	_ = repo.RecordAttempt(ctx, "ip", base.Add(2*time.Minute))

	now := base.Add(150 * time.Second)
	if err := repo.TrimWindow(ctx, "ip", time.Minute, now); err != nil {
		t.Fatalf("TrimWindow returned error: %v", err)
	}

	count, err := repo.CountAttempts(ctx, "ip", time.Hour, now)
	if err != nil {
		t.Fatalf("CountAttempts returned error: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected 1 attempt after trim, got %d", count)
	}
}

func TestRateLimitRepository_RejectsNonPositiveWindow(t *testing.T) {
	client, _ := newTestRedis(t)
	repo := NewRateLimitRepository(client, SlidingWindowConfig{})

	if _, err := repo.CountAttempts(context.Background(), "ip", 0, time.Now()); err == nil {
		t.Fatalf("expected error for zero window")
	}
	if err := repo.TrimWindow(context.Background(), "ip", -time.Second, time.Now()); err == nil {
		t.Fatalf("expected error for negative window")
	}
}
