package repository

import (
	"context"
	"errors"
	"time"

	"otp-auth-service/internal/models"
)

// ErrNotFound is returned by lookups that match no row.
var ErrNotFound = errors.New("record not found")

// OTPRepository persists issued codes. One typed interface per entity keeps
// field access compile-checked instead of going through a generic table
// accessor.
type OTPRepository interface {
	// Insert stores a freshly issued record.
	Insert(ctx context.Context, rec *models.OTPRecord) error

	// LatestUnverified returns the most recently created unverified record
	// for (email, requestID), or ErrNotFound.
	LatestUnverified(ctx context.Context, email, requestID string) (*models.OTPRecord, error)

	// DeleteUnverified removes every unverified record for email. Called at
	// issuance so at most one active code exists per email.
	DeleteUnverified(ctx context.Context, email string) error

	// UpdateAttempts persists a new attempt count for rec.
	UpdateAttempts(ctx context.Context, rec *models.OTPRecord, attempts int) error

	// MarkVerified flips rec to its terminal verified state.
	MarkVerified(ctx context.Context, rec *models.OTPRecord, at time.Time) error
}

// TrustedDeviceRepository persists remembered (user, fingerprint) pairings.
type TrustedDeviceRepository interface {
	// Get returns the pairing or ErrNotFound.
	Get(ctx context.Context, userID, deviceFingerprint string) (*models.TrustedDevice, error)

	// Upsert writes the pairing; at most one row per (user, fingerprint).
	Upsert(ctx context.Context, device *models.TrustedDevice) error

	// UpdateLastUsed touches an existing pairing after a successful login.
	UpdateLastUsed(ctx context.Context, userID, deviceFingerprint string, at time.Time) error

	// ListForUser returns every pairing for a user.
	ListForUser(ctx context.Context, userID string) ([]*models.TrustedDevice, error)
}

// SecurityEventRepository is the append-only audit trail.
type SecurityEventRepository interface {
	Append(ctx context.Context, event *models.SecurityEvent) error
}

// RateLimitRepository tracks issuance attempt windows per identifier.
type RateLimitRepository interface {
	// Get returns the current window or ErrNotFound.
	Get(ctx context.Context, identifier, windowType string) (*models.RateLimitWindow, error)

	// Delete discards a stale window.
	Delete(ctx context.Context, identifier, windowType string) error

	// Increment bumps the window counter, creating the window with
	// windowStart=now when absent, and returns the new count.
	Increment(ctx context.Context, identifier, windowType string, now time.Time) (int, error)
}
