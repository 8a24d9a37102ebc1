package identity

import (
	"context"
	"errors"
	"time"
)

var ErrUserNotFound = errors.New("user not found")

// User is the slice of the identity provider's account record this service
// cares about.
type User struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	CreatedAt time.Time `json:"created_at"`
}

// Provider is the external identity backend. The service treats it as a
// black box that owns accounts and mints one-time session links.
type Provider interface {
	// FindUserByEmail returns the account for email or ErrUserNotFound.
	FindUserByEmail(ctx context.Context, email string) (*User, error)

	// CreateUser provisions an account with the email already confirmed.
	// OTP verification doubles as the signup path, so the provider must not
	// send its own confirmation mail.
	CreateUser(ctx context.Context, email string) (*User, error)

	// CreateMagicLink mints a one-time login URL for an existing account.
	CreateMagicLink(ctx context.Context, email string) (string, error)

	// CreateRecoveryLink mints a one-time password-reset URL.
	CreateRecoveryLink(ctx context.Context, email string) (string, error)
}
