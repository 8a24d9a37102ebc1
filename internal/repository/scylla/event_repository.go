package scylla

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"otp-auth-service/internal/bucketing"
	"otp-auth-service/internal/models"
	"otp-auth-service/internal/repository"
	"otp-auth-service/internal/util"
)

// SecurityEventRepository appends audit rows to the security_events table.
// Rows are never updated or deleted here; retention is a table-level TTL
// concern.
type SecurityEventRepository struct {
	client    *ScyllaClient
	bucketing *bucketing.Manager
}

var _ repository.SecurityEventRepository = (*SecurityEventRepository)(nil)

func NewSecurityEventRepository(client *ScyllaClient, bucketing *bucketing.Manager) *SecurityEventRepository {
	return &SecurityEventRepository{
		client:    client,
		bucketing: bucketing,
	}
}

func (r *SecurityEventRepository) Append(ctx context.Context, event *models.SecurityEvent) error {
	event.EventBucket = r.bucketing.EventBucket(event.Email)
	if event.EventID == "" {
		event.EventID = uuid.New().String()
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now().UTC()
	}

	query := r.client.Prepared.InsertSecurityEvent.Bind(
		event.EventBucket, event.Email, event.CreatedAt, event.EventID,
		event.EventType, event.RequestID, event.DeviceFingerprint, event.Metadata,
	).WithContext(ctx)

	if err := r.client.ExecuteWithRetry(query, 2); err != nil {
		util.Error("Failed to append security event",
			zap.String("event_type", event.EventType),
			zap.Error(err))
		return fmt.Errorf("failed to append security event: %w", err)
	}

	return nil
}
