package ratelimit

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"otp-auth-service/internal/repository"
	"otp-auth-service/internal/util"
)

// Limiter gates OTP issuance per identifier (email or IP) with a rolling
// window. Denial is a normal outcome, not an internal error: callers surface
// it as "too many attempts, retry after the window".
type Limiter struct {
	store       repository.RateLimitRepository
	maxAttempts int
	window      time.Duration
	now         func() time.Time
}

func NewLimiter(store repository.RateLimitRepository, maxAttempts int, window time.Duration) *Limiter {
	return &Limiter{
		store:       store,
		maxAttempts: maxAttempts,
		window:      window,
		now:         time.Now,
	}
}

// WithClock overrides the time source; tests use it to step past windows
// without sleeping.
func (l *Limiter) WithClock(now func() time.Time) *Limiter {
	l.now = now
	return l
}

// Allow reports whether another issuance attempt for identifier may proceed.
// A window older than the window length is stale: it is deleted and the
// attempt allowed, so counting restarts cleanly on the next RecordAttempt.
func (l *Limiter) Allow(ctx context.Context, identifier, windowType string) (bool, error) {
	window, err := l.store.Get(ctx, identifier, windowType)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return true, nil
		}
		return false, err
	}

	if l.now().Sub(window.WindowStart) >= l.window {
		if err := l.store.Delete(ctx, identifier, windowType); err != nil {
			return false, err
		}
		return true, nil
	}

	if window.Count >= l.maxAttempts {
		util.Warn("Rate limit exceeded",
			zap.String("window_type", windowType),
			zap.Int("count", window.Count),
			zap.Time("window_start", window.WindowStart))
		return false, nil
	}

	return true, nil
}

// RecordAttempt consumes one slot in the identifier's window, creating the
// window when absent. It is called on every issuance attempt, allowed or
// denied downstream.
func (l *Limiter) RecordAttempt(ctx context.Context, identifier, windowType string) error {
	_, err := l.store.Increment(ctx, identifier, windowType, l.now())
	return err
}
