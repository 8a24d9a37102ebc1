package email

import (
	"context"

	"go.uber.org/zap"

	"otp-auth-service/internal/util"
)

// devSender logs messages instead of delivering them; used when no provider
// is configured. The full body lands in the log so a developer can grab the
// code during local testing.
type devSender struct {
	logger *zap.Logger
}

func NewDevSender(logger *zap.Logger) Sender {
	return &devSender{logger: logger}
}

func (s *devSender) Send(ctx context.Context, msg Message) error {
	s.logger.Info("Email delivery (dev mode, not sent)",
		util.String("to", msg.To),
		util.String("subject", msg.Subject),
		util.String("tag", msg.Tag),
		util.String("body_html", msg.BodyHTML),
	)
	return nil
}
