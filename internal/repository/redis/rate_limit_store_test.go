package redis

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"

	"otp-auth-service/internal/client"
	"otp-auth-service/internal/models"
	"otp-auth-service/internal/repository"
)

func newTestStore(t *testing.T) (*miniredis.Miniredis, *RateLimitStore) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis.Run failed: %v", err)
	}
	t.Cleanup(mr.Close)

	rdb := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	return mr, NewRateLimitStore(client.WrapRedisClient(rdb), time.Hour)
}

func TestGetMissingWindow(t *testing.T) {
	_, store := newTestStore(t)

	_, err := store.Get(context.Background(), "user@example.com", models.RateLimitTypeEmail)
	if !errors.Is(err, repository.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestIncrementCreatesWindowOnce(t *testing.T) {
	_, store := newTestStore(t)
	ctx := context.Background()

	start := time.Date(2026, 8, 1, 10, 0, 0, 0, time.UTC)

	count, err := store.Increment(ctx, "user@example.com", models.RateLimitTypeEmail, start)
	if err != nil {
		t.Fatalf("Increment failed: %v", err)
	}
	if count != 1 {
		t.Fatalf("first increment returned %d, want 1", count)
	}

	// Later increments bump the counter but never move the window start.
	count, err = store.Increment(ctx, "user@example.com", models.RateLimitTypeEmail, start.Add(30*time.Minute))
	if err != nil {
		t.Fatalf("Increment failed: %v", err)
	}
	if count != 2 {
		t.Fatalf("second increment returned %d, want 2", count)
	}

	window, err := store.Get(ctx, "user@example.com", models.RateLimitTypeEmail)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if window.Count != 2 {
		t.Fatalf("window count = %d, want 2", window.Count)
	}
	if !window.WindowStart.Equal(start) {
		t.Fatalf("window start = %v, want %v", window.WindowStart, start)
	}
}

func TestWindowsAreIndependentPerTypeAndIdentifier(t *testing.T) {
	_, store := newTestStore(t)
	ctx := context.Background()
	now := time.Now()

	if _, err := store.Increment(ctx, "user@example.com", models.RateLimitTypeEmail, now); err != nil {
		t.Fatalf("Increment failed: %v", err)
	}

	if _, err := store.Get(ctx, "user@example.com", models.RateLimitTypeIP); !errors.Is(err, repository.ErrNotFound) {
		t.Fatalf("ip window unexpectedly shares state with email window: %v", err)
	}
	if _, err := store.Get(ctx, "other@example.com", models.RateLimitTypeEmail); !errors.Is(err, repository.ErrNotFound) {
		t.Fatalf("windows leak across identifiers: %v", err)
	}
}

func TestDelete(t *testing.T) {
	_, store := newTestStore(t)
	ctx := context.Background()

	if _, err := store.Increment(ctx, "user@example.com", models.RateLimitTypeEmail, time.Now()); err != nil {
		t.Fatalf("Increment failed: %v", err)
	}
	if err := store.Delete(ctx, "user@example.com", models.RateLimitTypeEmail); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if _, err := store.Get(ctx, "user@example.com", models.RateLimitTypeEmail); !errors.Is(err, repository.ErrNotFound) {
		t.Fatalf("expected ErrNotFound after delete, got %v", err)
	}
}
