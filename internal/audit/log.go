package audit

import (
	"context"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"otp-auth-service/internal/models"
	"otp-auth-service/internal/repository"
	"otp-auth-service/internal/util"
)

// Publisher fans events out to a message bus for downstream consumers.
type Publisher interface {
	PublishJSON(ctx context.Context, key string, payload interface{}) error
}

// Log is the security audit trail. Every authentication attempt writes a row
// to the event table; when a publisher is configured the event is also
// pushed to the audit topic. The table write is authoritative, the publish
// is best effort.
type Log struct {
	events    repository.SecurityEventRepository
	publisher Publisher
	logger    *zap.Logger
	now       func() time.Time
}

func NewLog(events repository.SecurityEventRepository, publisher Publisher, logger *zap.Logger) *Log {
	return &Log{
		events:    events,
		publisher: publisher,
		logger:    logger,
		now:       time.Now,
	}
}

// Record appends a security event. The table append and the bus publish run
// concurrently; only the table append can fail the call.
func (l *Log) Record(ctx context.Context, event *models.SecurityEvent) error {
	if event.CreatedAt.IsZero() {
		event.CreatedAt = l.now().UTC()
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return l.events.Append(gctx, event)
	})

	if l.publisher != nil {
		g.Go(func() error {
			if err := l.publisher.PublishJSON(gctx, event.Email, event); err != nil {
				l.logger.Warn("Failed to publish security event",
					util.String("event_type", event.EventType),
					util.ErrorField(err))
			}
			return nil
		})
	}

	return g.Wait()
}
