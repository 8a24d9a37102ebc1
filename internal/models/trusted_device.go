package models

import "time"

// TrustedDevice is a remembered (user, fingerprint) pairing. At most one row
// exists per pair; repeat logins from the same fingerprint update LastUsedAt
// instead of inserting a duplicate.
type TrustedDevice struct {
	UserID            string    `db:"user_id"`
	DeviceFingerprint string    `db:"device_fingerprint"`
	DeviceName        string    `db:"device_name"`
	UserAgent         string    `db:"user_agent"`
	IPAddress         string    `db:"ip_address"`
	CreatedAt         time.Time `db:"created_at"`
	LastUsedAt        time.Time `db:"last_used_at"`
}
