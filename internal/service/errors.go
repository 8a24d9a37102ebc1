package service

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidInput     = errors.New("invalid input")
	ErrRateLimited      = errors.New("too many attempts, please try again later")
	ErrInvalidOrExpired = errors.New("invalid or expired code")
	ErrExpired          = errors.New("code has expired, please request a new one")
	ErrTooManyAttempts  = errors.New("too many verification attempts, please request a new code")
	ErrDeliveryFailed   = errors.New("failed to deliver verification code")
)

// IncorrectCodeError reports a wrong code together with how many tries are
// left. Exposing the count is a UX decision, not a leak: the caller already
// knows they submitted a code for this email.
type IncorrectCodeError struct {
	AttemptsRemaining int
}

func (e *IncorrectCodeError) Error() string {
	return fmt.Sprintf("incorrect code, %d attempts remaining", e.AttemptsRemaining)
}
