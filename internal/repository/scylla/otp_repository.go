package scylla

import (
	"context"
	"fmt"
	"time"

	"github.com/gocql/gocql"
	"go.uber.org/zap"

	"otp-auth-service/internal/bucketing"
	"otp-auth-service/internal/models"
	"otp-auth-service/internal/repository"
	"otp-auth-service/internal/util"
)

// OTPRepository stores issued codes in the otp_codes table, partitioned by
// (email_bucket, email) and clustered by created_at DESC so the newest
// record for an email comes back first.
type OTPRepository struct {
	client    *ScyllaClient
	bucketing *bucketing.Manager
}

var _ repository.OTPRepository = (*OTPRepository)(nil)

func NewOTPRepository(client *ScyllaClient, bucketing *bucketing.Manager) *OTPRepository {
	return &OTPRepository{
		client:    client,
		bucketing: bucketing,
	}
}

func (r *OTPRepository) Insert(ctx context.Context, rec *models.OTPRecord) error {
	rec.EmailBucket = r.bucketing.EmailBucket(rec.Email)
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}

	query := r.client.Prepared.InsertOTP.Bind(
		rec.EmailBucket, rec.Email, rec.CreatedAt, rec.RequestID, rec.CodeHash,
		rec.Salt, rec.HashAlgorithm, rec.ExpiresAt, rec.Attempts, rec.Verified,
		rec.VerifiedAt, rec.DeviceFingerprint, rec.UserAgent, rec.IPAddress,
	).WithContext(ctx)

	if err := r.client.ExecuteWithRetry(query, 2); err != nil {
		util.Error("Failed to insert OTP record",
			zap.String("request_id", rec.RequestID),
			zap.Error(err))
		return fmt.Errorf("failed to insert OTP record: %w", err)
	}

	util.Debug("OTP record inserted",
		zap.String("request_id", rec.RequestID),
		zap.Time("expires_at", rec.ExpiresAt))

	return nil
}

func (r *OTPRepository) LatestUnverified(ctx context.Context, email, requestID string) (*models.OTPRecord, error) {
	bucket := r.bucketing.EmailBucket(email)

	// An email has at most a handful of live rows; scan the partition
	// newest-first and match in code.
	iter := r.client.Prepared.SelectOTPByEmail.Bind(bucket, email).WithContext(ctx).Iter()

	var rec models.OTPRecord
	for r.scanRecord(iter, &rec) {
		if rec.RequestID == requestID && !rec.Verified {
			found := rec
			if err := iter.Close(); err != nil {
				return nil, fmt.Errorf("failed to read OTP records: %w", err)
			}
			return &found, nil
		}
	}

	if err := iter.Close(); err != nil {
		return nil, fmt.Errorf("failed to read OTP records: %w", err)
	}
	return nil, repository.ErrNotFound
}

func (r *OTPRepository) DeleteUnverified(ctx context.Context, email string) error {
	bucket := r.bucketing.EmailBucket(email)

	iter := r.client.Prepared.SelectOTPByEmail.Bind(bucket, email).WithContext(ctx).Iter()

	batch := r.client.Batch(gocql.UnloggedBatch)
	batch.WithContext(ctx)
	deleted := 0

	var rec models.OTPRecord
	for r.scanRecord(iter, &rec) {
		if rec.Verified {
			continue
		}
		batch.Query(`DELETE FROM otp_codes WHERE email_bucket = ? AND email = ? AND created_at = ? AND request_id = ?`,
			rec.EmailBucket, rec.Email, rec.CreatedAt, rec.RequestID)
		deleted++
	}

	if err := iter.Close(); err != nil {
		return fmt.Errorf("failed to scan OTP records for delete: %w", err)
	}

	if deleted == 0 {
		return nil
	}

	if err := r.client.ExecuteBatch(batch); err != nil {
		util.Error("Failed to delete unverified OTP records", zap.Error(err))
		return fmt.Errorf("failed to delete unverified OTP records: %w", err)
	}

	util.Debug("Unverified OTP records deleted", zap.Int("count", deleted))
	return nil
}

func (r *OTPRepository) UpdateAttempts(ctx context.Context, rec *models.OTPRecord, attempts int) error {
	query := r.client.Prepared.UpdateOTPAttempts.Bind(
		attempts, rec.EmailBucket, rec.Email, rec.CreatedAt, rec.RequestID,
	).WithContext(ctx)

	if err := r.client.ExecuteWithRetry(query, 2); err != nil {
		util.Error("Failed to update OTP attempts",
			zap.String("request_id", rec.RequestID),
			zap.Error(err))
		return fmt.Errorf("failed to update OTP attempts: %w", err)
	}

	rec.Attempts = attempts
	return nil
}

func (r *OTPRepository) MarkVerified(ctx context.Context, rec *models.OTPRecord, at time.Time) error {
	query := r.client.Prepared.MarkOTPVerified.Bind(
		at, rec.EmailBucket, rec.Email, rec.CreatedAt, rec.RequestID,
	).WithContext(ctx)

	if err := r.client.ExecuteWithRetry(query, 2); err != nil {
		util.Error("Failed to mark OTP verified",
			zap.String("request_id", rec.RequestID),
			zap.Error(err))
		return fmt.Errorf("failed to mark OTP verified: %w", err)
	}

	rec.Verified = true
	rec.VerifiedAt = &at
	return nil
}

func (r *OTPRepository) scanRecord(iter *gocql.Iter, rec *models.OTPRecord) bool {
	return iter.Scan(
		&rec.EmailBucket, &rec.Email, &rec.CreatedAt, &rec.RequestID,
		&rec.CodeHash, &rec.Salt, &rec.HashAlgorithm, &rec.ExpiresAt,
		&rec.Attempts, &rec.Verified, &rec.VerifiedAt,
		&rec.DeviceFingerprint, &rec.UserAgent, &rec.IPAddress,
	)
}
