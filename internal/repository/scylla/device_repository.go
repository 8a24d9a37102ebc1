package scylla

import (
	"context"
	"fmt"
	"time"

	"github.com/gocql/gocql"
	"go.uber.org/zap"

	"otp-auth-service/internal/models"
	"otp-auth-service/internal/repository"
	"otp-auth-service/internal/util"
)

// TrustedDeviceRepository stores remembered device pairings in the
// trusted_devices table, keyed by (user_id, device_fingerprint). The insert
// is an upsert under Scylla semantics, which gives the at-most-one-row
// invariant for free.
type TrustedDeviceRepository struct {
	client *ScyllaClient
}

var _ repository.TrustedDeviceRepository = (*TrustedDeviceRepository)(nil)

func NewTrustedDeviceRepository(client *ScyllaClient) *TrustedDeviceRepository {
	return &TrustedDeviceRepository{client: client}
}

func (r *TrustedDeviceRepository) Get(ctx context.Context, userID, deviceFingerprint string) (*models.TrustedDevice, error) {
	device := &models.TrustedDevice{}

	query := r.client.Prepared.SelectDevice.Bind(userID, deviceFingerprint).WithContext(ctx)
	err := query.Scan(
		&device.UserID, &device.DeviceFingerprint, &device.DeviceName,
		&device.UserAgent, &device.IPAddress, &device.CreatedAt, &device.LastUsedAt,
	)
	if err != nil {
		if err == gocql.ErrNotFound {
			return nil, repository.ErrNotFound
		}
		util.Error("Failed to get trusted device",
			zap.String("user_id", userID),
			zap.Error(err))
		return nil, fmt.Errorf("failed to get trusted device: %w", err)
	}

	return device, nil
}

func (r *TrustedDeviceRepository) Upsert(ctx context.Context, device *models.TrustedDevice) error {
	now := time.Now().UTC()
	if device.CreatedAt.IsZero() {
		device.CreatedAt = now
	}
	if device.LastUsedAt.IsZero() {
		device.LastUsedAt = now
	}

	query := r.client.Prepared.UpsertDevice.Bind(
		device.UserID, device.DeviceFingerprint, device.DeviceName,
		device.UserAgent, device.IPAddress, device.CreatedAt, device.LastUsedAt,
	).WithContext(ctx)

	if err := r.client.ExecuteWithRetry(query, 2); err != nil {
		util.Error("Failed to upsert trusted device",
			zap.String("user_id", device.UserID),
			zap.Error(err))
		return fmt.Errorf("failed to upsert trusted device: %w", err)
	}

	util.Debug("Trusted device upserted",
		zap.String("user_id", device.UserID),
		zap.String("device_fingerprint", device.DeviceFingerprint))

	return nil
}

func (r *TrustedDeviceRepository) UpdateLastUsed(ctx context.Context, userID, deviceFingerprint string, at time.Time) error {
	query := r.client.Prepared.TouchDevice.Bind(at, userID, deviceFingerprint).WithContext(ctx)

	if err := r.client.ExecuteWithRetry(query, 2); err != nil {
		util.Error("Failed to update device last_used_at",
			zap.String("user_id", userID),
			zap.Error(err))
		return fmt.Errorf("failed to update device last_used_at: %w", err)
	}

	return nil
}

// ListForUser returns every trusted device for a user, for the account
// security screen.
func (r *TrustedDeviceRepository) ListForUser(ctx context.Context, userID string) ([]*models.TrustedDevice, error) {
	iter := r.client.Prepared.SelectDevicesFor.Bind(userID).WithContext(ctx).Iter()

	var devices []*models.TrustedDevice
	var d models.TrustedDevice
	for iter.Scan(
		&d.UserID, &d.DeviceFingerprint, &d.DeviceName,
		&d.UserAgent, &d.IPAddress, &d.CreatedAt, &d.LastUsedAt,
	) {
		device := d
		devices = append(devices, &device)
	}

	if err := iter.Close(); err != nil {
		return nil, fmt.Errorf("failed to list trusted devices: %w", err)
	}
	return devices, nil
}
