package models

import "time"

// Security event types emitted by the OTP flows.
const (
	EventOTPRequested          = "otp_requested"
	EventOTPVerified           = "otp_verified"
	EventOTPVerificationFailed = "otp_verification_failed"
)

// SecurityEvent is one append-only audit trail entry. Rows are never mutated
// or deleted by this service.
type SecurityEvent struct {
	EventBucket       int       `db:"event_bucket"`
	EventID           string    `db:"event_id"`
	Email             string    `db:"email"`
	EventType         string    `db:"event_type"`
	RequestID         string    `db:"request_id"`
	DeviceFingerprint string    `db:"device_fingerprint"`
	Metadata          string    `db:"metadata"`
	CreatedAt         time.Time `db:"created_at"`
}
