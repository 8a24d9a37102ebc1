package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"otp-auth-service/internal/config"
	"otp-auth-service/internal/email"
	"otp-auth-service/internal/identity"
	"otp-auth-service/internal/models"
	"otp-auth-service/internal/repository"
	"otp-auth-service/internal/util"
)

// AccountService covers the account flows around the OTP core: existence
// checks, password reset mail and trusted device management.
type AccountService struct {
	deviceRepo repository.TrustedDeviceRepository
	sender     email.Sender
	identity   identity.Provider
	logger     *zap.Logger
	appName    string
	now        func() time.Time
}

type RegisterDeviceRequest struct {
	Email             string `json:"email"`
	DeviceFingerprint string `json:"deviceFingerprint"`
	DeviceName        string `json:"deviceName,omitempty"`
	UserAgent         string `json:"userAgent,omitempty"`
	IPAddress         string `json:"ipAddress,omitempty"`
}

func NewAccountService(
	deviceRepo repository.TrustedDeviceRepository,
	sender email.Sender,
	identityProvider identity.Provider,
	cfg *config.Config,
	logger *zap.Logger,
) *AccountService {
	return &AccountService{
		deviceRepo: deviceRepo,
		sender:     sender,
		identity:   identityProvider,
		logger:     logger,
		appName:    cfg.Email.SenderName,
		now:        time.Now,
	}
}

// CheckEmail reports whether an account exists for the address. Used by the
// login UI to route between signup and login; the response is intentionally
// boolean-only.
func (s *AccountService) CheckEmail(ctx context.Context, emailAddr string) (bool, error) {
	if !util.IsValidEmail(emailAddr) {
		return false, fmt.Errorf("%w: malformed email address", ErrInvalidInput)
	}

	_, err := s.identity.FindUserByEmail(ctx, emailAddr)
	if err != nil {
		if errors.Is(err, identity.ErrUserNotFound) {
			return false, nil
		}
		return false, fmt.Errorf("failed to check email: %w", err)
	}
	return true, nil
}

// SendPasswordReset emails a recovery link when the account exists. The
// outcome is identical either way: callers always see success, so the
// endpoint cannot be used to enumerate registered addresses. This asymmetry
// with OTP verification (which does report wrong-code detail) is deliberate.
func (s *AccountService) SendPasswordReset(ctx context.Context, emailAddr string) error {
	if !util.IsValidEmail(emailAddr) {
		return fmt.Errorf("%w: malformed email address", ErrInvalidInput)
	}

	_, err := s.identity.FindUserByEmail(ctx, emailAddr)
	if err != nil {
		if !errors.Is(err, identity.ErrUserNotFound) {
			s.logger.Error("Password reset lookup failed", util.ErrorField(err))
		}
		return nil
	}

	resetURL, err := s.identity.CreateRecoveryLink(ctx, emailAddr)
	if err != nil {
		s.logger.Error("Failed to create recovery link", util.ErrorField(err))
		return nil
	}

	msg, err := email.RenderPasswordReset(s.appName, emailAddr, resetURL)
	if err != nil {
		s.logger.Error("Failed to render password reset email", util.ErrorField(err))
		return nil
	}

	if err := s.sender.Send(ctx, msg); err != nil {
		s.logger.Error("Failed to send password reset email", util.ErrorField(err))
		return nil
	}

	s.logger.Info("Password reset email sent")
	return nil
}

// RegisterDevice records a trusted (user, fingerprint) pairing. This is the
// explicit first-time registration step; the verify path only refreshes
// pairings that already exist.
func (s *AccountService) RegisterDevice(ctx context.Context, req *RegisterDeviceRequest) (*models.TrustedDevice, error) {
	if req.Email == "" || req.DeviceFingerprint == "" {
		return nil, fmt.Errorf("%w: email and deviceFingerprint are required", ErrInvalidInput)
	}

	user, err := s.identity.FindUserByEmail(ctx, req.Email)
	if err != nil {
		if errors.Is(err, identity.ErrUserNotFound) {
			return nil, fmt.Errorf("%w: no account for email", ErrInvalidInput)
		}
		return nil, fmt.Errorf("failed to resolve user: %w", err)
	}

	now := s.now().UTC()

	// Re-registration of a known device keeps its original CreatedAt.
	existing, err := s.deviceRepo.Get(ctx, user.ID, req.DeviceFingerprint)
	if err != nil && !errors.Is(err, repository.ErrNotFound) {
		return nil, fmt.Errorf("failed to look up device: %w", err)
	}

	device := &models.TrustedDevice{
		UserID:            user.ID,
		DeviceFingerprint: req.DeviceFingerprint,
		DeviceName:        req.DeviceName,
		UserAgent:         req.UserAgent,
		IPAddress:         req.IPAddress,
		CreatedAt:         now,
		LastUsedAt:        now,
	}
	if existing != nil {
		device.CreatedAt = existing.CreatedAt
		if device.DeviceName == "" {
			device.DeviceName = existing.DeviceName
		}
	}

	if err := s.deviceRepo.Upsert(ctx, device); err != nil {
		return nil, fmt.Errorf("failed to register device: %w", err)
	}

	s.logger.Info("Trusted device registered",
		util.String("user_id", user.ID),
		util.String("device_fingerprint", req.DeviceFingerprint))

	return device, nil
}

// ListDevices returns the trusted devices for an account.
func (s *AccountService) ListDevices(ctx context.Context, emailAddr string) ([]*models.TrustedDevice, error) {
	if !util.IsValidEmail(emailAddr) {
		return nil, fmt.Errorf("%w: malformed email address", ErrInvalidInput)
	}

	user, err := s.identity.FindUserByEmail(ctx, emailAddr)
	if err != nil {
		if errors.Is(err, identity.ErrUserNotFound) {
			return []*models.TrustedDevice{}, nil
		}
		return nil, fmt.Errorf("failed to resolve user: %w", err)
	}

	return s.deviceRepo.ListForUser(ctx, user.ID)
}
