package service

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"time"

	"go.uber.org/zap"

	"otp-auth-service/internal/audit"
	"otp-auth-service/internal/config"
	"otp-auth-service/internal/email"
	"otp-auth-service/internal/hashing"
	"otp-auth-service/internal/identity"
	"otp-auth-service/internal/models"
	"otp-auth-service/internal/ratelimit"
	"otp-auth-service/internal/repository"
	"otp-auth-service/internal/util"
)

// OTPService orchestrates code issuance and verification. Every invocation
// is an independent request-response unit: all shared state lives in the
// repositories, none in the service itself.
type OTPService struct {
	otpRepo    repository.OTPRepository
	deviceRepo repository.TrustedDeviceRepository
	auditLog   *audit.Log
	limiter    *ratelimit.Limiter
	hasher     *hashing.Hasher
	sender     email.Sender
	identity   identity.Provider
	logger     *zap.Logger

	appName     string
	codeTTL     time.Duration
	maxAttempts int
	now         func() time.Time
}

// IssueRequest carries all request context explicitly; nothing is read from
// ambient state, which keeps the service testable without an HTTP harness.
type IssueRequest struct {
	Email             string `json:"email"`
	RequestID         string `json:"requestId"`
	DeviceFingerprint string `json:"deviceFingerprint,omitempty"`
	UserAgent         string `json:"userAgent,omitempty"`
	IPAddress         string `json:"ipAddress,omitempty"`
}

type IssueResult struct {
	ExpiresAt time.Time `json:"expiresAt"`
}

type VerifyRequest struct {
	Email             string `json:"email"`
	Code              string `json:"code"`
	RequestID         string `json:"requestId"`
	DeviceFingerprint string `json:"deviceFingerprint,omitempty"`
}

type VerifyResult struct {
	UserID     string `json:"userId"`
	SessionURL string `json:"sessionUrl"`
}

func NewOTPService(
	otpRepo repository.OTPRepository,
	deviceRepo repository.TrustedDeviceRepository,
	auditLog *audit.Log,
	limiter *ratelimit.Limiter,
	hasher *hashing.Hasher,
	sender email.Sender,
	identityProvider identity.Provider,
	cfg *config.Config,
	logger *zap.Logger,
) *OTPService {
	return &OTPService{
		otpRepo:     otpRepo,
		deviceRepo:  deviceRepo,
		auditLog:    auditLog,
		limiter:     limiter,
		hasher:      hasher,
		sender:      sender,
		identity:    identityProvider,
		logger:      logger,
		appName:     cfg.Email.SenderName,
		codeTTL:     cfg.OTP.CodeTTL,
		maxAttempts: cfg.OTP.MaxVerifyAttempts,
		now:         time.Now,
	}
}

// WithClock overrides the time source for tests.
func (s *OTPService) WithClock(now func() time.Time) *OTPService {
	s.now = now
	return s
}

// Issue rate-limits, generates, stores and emails a fresh code. Any pending
// unverified code for the email is invalidated first, so at most one code is
// active per email at a time.
func (s *OTPService) Issue(ctx context.Context, req *IssueRequest) (*IssueResult, error) {
	if req.Email == "" || req.RequestID == "" {
		return nil, fmt.Errorf("%w: email and requestId are required", ErrInvalidInput)
	}
	if !util.IsValidEmail(req.Email) {
		return nil, fmt.Errorf("%w: malformed email address", ErrInvalidInput)
	}

	// Email and IP windows are independent: one attacker IP cannot starve a
	// victim email and a single email cannot be hammered from rotating IPs.
	allowed, err := s.limiter.Allow(ctx, req.Email, models.RateLimitTypeEmail)
	if err != nil {
		return nil, fmt.Errorf("rate limit check failed: %w", err)
	}
	if !allowed {
		return nil, ErrRateLimited
	}

	if req.IPAddress != "" {
		allowed, err := s.limiter.Allow(ctx, req.IPAddress, models.RateLimitTypeIP)
		if err != nil {
			return nil, fmt.Errorf("rate limit check failed: %w", err)
		}
		if !allowed {
			return nil, ErrRateLimited
		}
	}

	// Invalidate any still-pending code. Not wrapped in a transaction with
	// the insert below: two racing issuances interleave as "latest call
	// wins", which is user-recoverable and deliberately left as is.
	if err := s.otpRepo.DeleteUnverified(ctx, req.Email); err != nil {
		return nil, fmt.Errorf("failed to invalidate prior codes: %w", err)
	}

	code, err := generateCode()
	if err != nil {
		return nil, fmt.Errorf("failed to generate code: %w", err)
	}
	salt, err := s.hasher.NewSalt()
	if err != nil {
		return nil, fmt.Errorf("failed to generate salt: %w", err)
	}
	codeHash, err := s.hasher.Hash(code, salt)
	if err != nil {
		return nil, fmt.Errorf("failed to hash code: %w", err)
	}

	now := s.now().UTC()
	expiresAt := now.Add(s.codeTTL)

	event := &models.SecurityEvent{
		Email:             req.Email,
		EventType:         models.EventOTPRequested,
		RequestID:         req.RequestID,
		DeviceFingerprint: req.DeviceFingerprint,
		CreatedAt:         now,
	}
	if err := s.auditLog.Record(ctx, event); err != nil {
		return nil, fmt.Errorf("failed to record security event: %w", err)
	}

	rec := &models.OTPRecord{
		Email:             req.Email,
		RequestID:         req.RequestID,
		CodeHash:          codeHash,
		Salt:              salt,
		HashAlgorithm:     s.hasher.Algorithm(),
		ExpiresAt:         expiresAt,
		Attempts:          0,
		Verified:          false,
		DeviceFingerprint: req.DeviceFingerprint,
		UserAgent:         req.UserAgent,
		IPAddress:         req.IPAddress,
		CreatedAt:         now,
	}
	if err := s.otpRepo.Insert(ctx, rec); err != nil {
		return nil, fmt.Errorf("failed to store code: %w", err)
	}

	if err := s.limiter.RecordAttempt(ctx, req.Email, models.RateLimitTypeEmail); err != nil {
		return nil, fmt.Errorf("failed to record rate limit attempt: %w", err)
	}
	if req.IPAddress != "" {
		if err := s.limiter.RecordAttempt(ctx, req.IPAddress, models.RateLimitTypeIP); err != nil {
			return nil, fmt.Errorf("failed to record rate limit attempt: %w", err)
		}
	}

	msg, err := email.RenderOTP(s.appName, req.Email, code, s.codeTTL)
	if err != nil {
		return nil, fmt.Errorf("failed to render code email: %w", err)
	}
	if err := s.sender.Send(ctx, msg); err != nil {
		// The stored code stays valid; the caller can retry delivery through
		// a fresh issuance.
		s.logger.Error("OTP delivery failed",
			util.String("request_id", req.RequestID),
			util.ErrorField(err))
		return nil, fmt.Errorf("%w: %v", ErrDeliveryFailed, err)
	}

	s.logger.Info("OTP issued",
		util.String("request_id", req.RequestID),
		util.Time("expires_at", expiresAt))

	return &IssueResult{ExpiresAt: expiresAt}, nil
}

// Verify walks the record's state machine: Active, then terminally Verified,
// Expired or Exhausted. On success it resolves (or provisions) the account
// and returns a one-time session link.
func (s *OTPService) Verify(ctx context.Context, req *VerifyRequest) (*VerifyResult, error) {
	if req.Email == "" || req.Code == "" || req.RequestID == "" {
		return nil, fmt.Errorf("%w: email, code and requestId are required", ErrInvalidInput)
	}

	rec, err := s.otpRepo.LatestUnverified(ctx, req.Email, req.RequestID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			// Covers never-issued, already-verified and wrong requestId;
			// callers cannot tell which, on purpose.
			s.recordFailure(ctx, req, "otp_not_found", 0)
			return nil, ErrInvalidOrExpired
		}
		return nil, fmt.Errorf("failed to look up code: %w", err)
	}

	now := s.now().UTC()

	if now.After(rec.ExpiresAt) {
		s.recordFailure(ctx, req, "expired", rec.Attempts)
		return nil, ErrExpired
	}

	if rec.Attempts >= s.maxAttempts {
		s.recordFailure(ctx, req, "too_many_attempts", rec.Attempts)
		return nil, ErrTooManyAttempts
	}

	match, err := s.hasher.Verify(req.Code, rec.Salt, rec.HashAlgorithm, rec.CodeHash)
	if err != nil {
		return nil, fmt.Errorf("failed to verify code: %w", err)
	}

	if !match {
		attempts := rec.Attempts + 1
		if err := s.otpRepo.UpdateAttempts(ctx, rec, attempts); err != nil {
			return nil, fmt.Errorf("failed to update attempts: %w", err)
		}
		s.recordFailure(ctx, req, "invalid_code", attempts)
		// Even when this increment exhausts the budget the caller still gets
		// an incorrect-code answer; the next call reports exhaustion.
		return nil, &IncorrectCodeError{AttemptsRemaining: s.maxAttempts - attempts}
	}

	if err := s.otpRepo.MarkVerified(ctx, rec, now); err != nil {
		return nil, fmt.Errorf("failed to mark code verified: %w", err)
	}

	if err := s.auditLog.Record(ctx, &models.SecurityEvent{
		Email:             req.Email,
		EventType:         models.EventOTPVerified,
		RequestID:         req.RequestID,
		DeviceFingerprint: req.DeviceFingerprint,
		CreatedAt:         now,
	}); err != nil {
		s.logger.Warn("Failed to record verification event", util.ErrorField(err))
	}

	user, err := s.resolveUser(ctx, req.Email)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve user identity: %w", err)
	}

	// Known devices get their last-used timestamp refreshed. First-time
	// registration is a separate, explicitly invoked operation.
	if req.DeviceFingerprint != "" {
		s.touchTrustedDevice(ctx, user.ID, req.DeviceFingerprint, now)
	}

	sessionURL, err := s.identity.CreateMagicLink(ctx, req.Email)
	if err != nil {
		return nil, fmt.Errorf("failed to create session link: %w", err)
	}

	s.logger.Info("OTP verified",
		util.String("request_id", req.RequestID),
		util.String("user_id", user.ID))

	return &VerifyResult{
		UserID:     user.ID,
		SessionURL: sessionURL,
	}, nil
}

// resolveUser finds the account for email or provisions one with the email
// pre-confirmed; verification doubles as signup.
func (s *OTPService) resolveUser(ctx context.Context, emailAddr string) (*identity.User, error) {
	user, err := s.identity.FindUserByEmail(ctx, emailAddr)
	if err == nil {
		return user, nil
	}
	if !errors.Is(err, identity.ErrUserNotFound) {
		return nil, err
	}
	return s.identity.CreateUser(ctx, emailAddr)
}

func (s *OTPService) touchTrustedDevice(ctx context.Context, userID, deviceFingerprint string, now time.Time) {
	_, err := s.deviceRepo.Get(ctx, userID, deviceFingerprint)
	if err != nil {
		if !errors.Is(err, repository.ErrNotFound) {
			s.logger.Warn("Trusted device lookup failed", util.ErrorField(err))
		}
		return
	}
	if err := s.deviceRepo.UpdateLastUsed(ctx, userID, deviceFingerprint, now); err != nil {
		s.logger.Warn("Failed to update trusted device", util.ErrorField(err))
	}
}

func (s *OTPService) recordFailure(ctx context.Context, req *VerifyRequest, reason string, attempts int) {
	metadata := fmt.Sprintf(`{"reason":%q,"attempts":%d}`, reason, attempts)
	err := s.auditLog.Record(ctx, &models.SecurityEvent{
		Email:             req.Email,
		EventType:         models.EventOTPVerificationFailed,
		RequestID:         req.RequestID,
		DeviceFingerprint: req.DeviceFingerprint,
		Metadata:          metadata,
		CreatedAt:         s.now().UTC(),
	})
	if err != nil {
		s.logger.Warn("Failed to record verification failure event",
			util.String("reason", reason),
			util.ErrorField(err))
	}
}

// generateCode draws a 6-digit decimal code uniformly from
// [100000, 999999].
func generateCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(900000))
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%06d", n.Int64()+100000), nil
}
