package redis

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"go.uber.org/zap"

	"otp-auth-service/internal/client"
	"otp-auth-service/internal/models"
	"otp-auth-service/internal/repository"
	"otp-auth-service/internal/util"
)

const rateLimitPrefix = "rate_limit:"

// RateLimitStore keeps one hash per (identifier, type) with explicit count
// and window_start fields. Staleness is judged against window_start by the
// limiter, not by key TTL; the TTL only garbage-collects windows nobody
// touches again.
type RateLimitStore struct {
	client *client.RedisClient
	gcTTL  time.Duration
}

var _ repository.RateLimitRepository = (*RateLimitStore)(nil)

func NewRateLimitStore(rc *client.RedisClient, window time.Duration) *RateLimitStore {
	return &RateLimitStore{
		client: rc,
		gcTTL:  2 * window,
	}
}

func rateLimitKey(identifier, windowType string) string {
	return fmt.Sprintf("%s%s:%s", rateLimitPrefix, windowType, identifier)
}

func (s *RateLimitStore) Get(ctx context.Context, identifier, windowType string) (*models.RateLimitWindow, error) {
	key := rateLimitKey(identifier, windowType)

	fields, err := s.client.HGetAll(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("failed to read rate limit window: %w", err)
	}
	if len(fields) == 0 {
		return nil, repository.ErrNotFound
	}

	count, err := strconv.Atoi(fields["count"])
	if err != nil {
		util.Error("Invalid rate limit counter format",
			zap.String("key", key),
			zap.String("count", fields["count"]))
		return nil, fmt.Errorf("invalid rate limit counter format: %w", err)
	}

	startUnix, err := strconv.ParseInt(fields["window_start"], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid rate limit window start: %w", err)
	}

	return &models.RateLimitWindow{
		Identifier:  identifier,
		WindowType:  windowType,
		Count:       count,
		WindowStart: time.Unix(startUnix, 0).UTC(),
	}, nil
}

func (s *RateLimitStore) Delete(ctx context.Context, identifier, windowType string) error {
	key := rateLimitKey(identifier, windowType)

	if err := s.client.Del(ctx, key); err != nil {
		util.Error("Failed to delete rate limit window",
			zap.String("key", key),
			zap.Error(err))
		return fmt.Errorf("failed to delete rate limit window: %w", err)
	}

	util.Debug("Rate limit window deleted", zap.String("key", key))
	return nil
}

func (s *RateLimitStore) Increment(ctx context.Context, identifier, windowType string, now time.Time) (int, error) {
	key := rateLimitKey(identifier, windowType)

	// window_start is written only on first touch; the counter and TTL move
	// on every attempt.
	pipe := s.client.Client.TxPipeline()
	pipe.HSetNX(ctx, key, "window_start", now.UTC().Unix())
	incrCmd := pipe.HIncrBy(ctx, key, "count", 1)
	pipe.Expire(ctx, key, s.gcTTL)

	if _, err := pipe.Exec(ctx); err != nil {
		util.Error("Failed to increment rate limit window",
			zap.String("key", key),
			zap.Error(err))
		return 0, fmt.Errorf("failed to increment rate limit window: %w", err)
	}

	return int(incrCmd.Val()), nil
}
