package models

import "time"

// Window identifier types.
const (
	RateLimitTypeEmail = "email"
	RateLimitTypeIP    = "ip"
)

// RateLimitWindow counts issuance attempts for one identifier within a
// rolling one-hour window. A window whose WindowStart is more than the
// window length in the past is stale and gets deleted lazily on next touch.
type RateLimitWindow struct {
	Identifier  string    `db:"identifier"`
	WindowType  string    `db:"window_type"`
	Count       int       `db:"count"`
	WindowStart time.Time `db:"window_start"`
}
