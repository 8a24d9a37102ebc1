package email

import (
	"context"
	"errors"
)

var (
	ErrInvalidConfig     = errors.New("invalid email configuration")
	ErrFailedToSendEmail = errors.New("failed to send email")
)

// Sender delivers a single transactional message. Implementations do not
// retry; a failed send surfaces immediately to the caller.
type Sender interface {
	Send(ctx context.Context, msg Message) error
}

// Message is one transactional email.
type Message struct {
	To       string
	Subject  string
	BodyHTML string
	Tag      string
}
