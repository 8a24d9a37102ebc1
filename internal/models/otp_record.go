package models

import "time"

// OTPRecord is one issued login code. The plaintext code is never stored;
// only the salted hash survives issuance. (email, request_id) is the logical
// key: a verify call must present the same correlation id the code was
// issued under.
type OTPRecord struct {
	EmailBucket       int        `db:"email_bucket"`
	Email             string     `db:"email"`
	RequestID         string     `db:"request_id"`
	CodeHash          string     `db:"code_hash"`
	Salt              string     `db:"salt"`
	HashAlgorithm     string     `db:"hash_algorithm"`
	ExpiresAt         time.Time  `db:"expires_at"`
	Attempts          int        `db:"attempts"`
	Verified          bool       `db:"verified"`
	VerifiedAt        *time.Time `db:"verified_at"`
	DeviceFingerprint string     `db:"device_fingerprint"`
	UserAgent         string     `db:"user_agent"`
	IPAddress         string     `db:"ip_address"`
	CreatedAt         time.Time  `db:"created_at"`
}
