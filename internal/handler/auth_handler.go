package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"otp-auth-service/internal/service"
	"otp-auth-service/internal/util"
)

// AuthHandler handles the OTP login and account HTTP endpoints.
type AuthHandler struct {
	otpService     *service.OTPService
	accountService *service.AccountService
	logger         *zap.Logger
}

func NewAuthHandler(otpService *service.OTPService, accountService *service.AccountService, logger *zap.Logger) *AuthHandler {
	return &AuthHandler{
		otpService:     otpService,
		accountService: accountService,
		logger:         logger,
	}
}

// Response is the standard API envelope. Success responses carry success and
// message plus operation-specific fields; error responses carry error only.
type Response struct {
	Success           bool        `json:"success,omitempty"`
	Message           string      `json:"message,omitempty"`
	Error             string      `json:"error,omitempty"`
	ExpiresAt         *time.Time  `json:"expiresAt,omitempty"`
	UserID            string      `json:"userId,omitempty"`
	SessionURL        string      `json:"sessionUrl,omitempty"`
	AttemptsRemaining *int        `json:"attemptsRemaining,omitempty"`
	Exists            *bool       `json:"exists,omitempty"`
	Data              interface{} `json:"data,omitempty"`
}

// RegisterRoutes registers all auth routes.
func (h *AuthHandler) RegisterRoutes(router chi.Router) {
	router.Post("/send-otp", h.SendOTP)
	router.Post("/verify-otp", h.VerifyOTP)
	router.Post("/check-email", h.CheckEmail)
	router.Post("/send-password-reset", h.SendPasswordReset)
	router.Route("/devices", func(r chi.Router) {
		r.Post("/register", h.RegisterDevice)
		r.Get("/", h.ListDevices)
	})
}

// SendOTP issues and emails a fresh login code.
func (h *AuthHandler) SendOTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	startTime := time.Now()

	var req service.IssueRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondWithError(w, http.StatusBadRequest, errors.New("invalid request body"))
		return
	}
	if req.IPAddress == "" {
		req.IPAddress = r.RemoteAddr
	}
	if req.UserAgent == "" {
		req.UserAgent = r.UserAgent()
	}

	result, err := h.otpService.Issue(ctx, &req)
	if err != nil {
		h.respondWithError(w, h.getStatusCode(err), err)
		return
	}

	h.respondWithJSON(w, http.StatusOK, Response{
		Success:   true,
		Message:   "Verification code sent",
		ExpiresAt: &result.ExpiresAt,
	})
	h.logger.Info("OTP issued via HTTP",
		util.String("request_id", req.RequestID),
		util.Duration("duration", time.Since(startTime)),
	)
}

// VerifyOTP checks a submitted code and, on success, returns the user id and
// a one-time session link.
func (h *AuthHandler) VerifyOTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	startTime := time.Now()

	var req service.VerifyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondWithError(w, http.StatusBadRequest, errors.New("invalid request body"))
		return
	}

	result, err := h.otpService.Verify(ctx, &req)
	if err != nil {
		var incorrect *service.IncorrectCodeError
		if errors.As(err, &incorrect) {
			h.respondWithJSON(w, http.StatusBadRequest, Response{
				Error:             incorrect.Error(),
				AttemptsRemaining: &incorrect.AttemptsRemaining,
			})
			return
		}
		h.respondWithError(w, h.getStatusCode(err), err)
		return
	}

	h.respondWithJSON(w, http.StatusOK, Response{
		Success:    true,
		Message:    "Code verified",
		UserID:     result.UserID,
		SessionURL: result.SessionURL,
	})
	h.logger.Info("OTP verified via HTTP",
		util.String("request_id", req.RequestID),
		util.Duration("duration", time.Since(startTime)),
	)
}

// CheckEmail reports whether an account exists for the address.
func (h *AuthHandler) CheckEmail(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req struct {
		Email string `json:"email"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondWithError(w, http.StatusBadRequest, errors.New("invalid request body"))
		return
	}

	exists, err := h.accountService.CheckEmail(ctx, req.Email)
	if err != nil {
		h.respondWithError(w, h.getStatusCode(err), err)
		return
	}

	h.respondWithJSON(w, http.StatusOK, Response{
		Success: true,
		Exists:  &exists,
	})
}

// SendPasswordReset emails a reset link when the account exists. The response
// is the same either way so the endpoint cannot be used to probe for
// registered addresses.
func (h *AuthHandler) SendPasswordReset(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req struct {
		Email string `json:"email"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondWithError(w, http.StatusBadRequest, errors.New("invalid request body"))
		return
	}

	if err := h.accountService.SendPasswordReset(ctx, req.Email); err != nil {
		h.respondWithError(w, h.getStatusCode(err), err)
		return
	}

	h.respondWithJSON(w, http.StatusOK, Response{
		Success: true,
		Message: "If an account exists for this email, a reset link has been sent",
	})
}

// RegisterDevice records a trusted device pairing for an account.
func (h *AuthHandler) RegisterDevice(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req service.RegisterDeviceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondWithError(w, http.StatusBadRequest, errors.New("invalid request body"))
		return
	}
	if req.UserAgent == "" {
		req.UserAgent = r.UserAgent()
	}
	if req.IPAddress == "" {
		req.IPAddress = r.RemoteAddr
	}

	device, err := h.accountService.RegisterDevice(ctx, &req)
	if err != nil {
		h.respondWithError(w, h.getStatusCode(err), err)
		return
	}

	h.respondWithJSON(w, http.StatusOK, Response{
		Success: true,
		Message: "Device registered",
		Data:    device,
	})
}

// ListDevices returns the trusted devices for an account.
func (h *AuthHandler) ListDevices(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	emailAddr := r.URL.Query().Get("email")
	devices, err := h.accountService.ListDevices(ctx, emailAddr)
	if err != nil {
		h.respondWithError(w, h.getStatusCode(err), err)
		return
	}

	h.respondWithJSON(w, http.StatusOK, Response{
		Success: true,
		Data:    devices,
	})
}

func (h *AuthHandler) respondWithJSON(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("Failed to encode JSON response", util.ErrorField(err))
	}
}

func (h *AuthHandler) respondWithError(w http.ResponseWriter, statusCode int, err error) {
	h.logger.Warn("HTTP error response",
		util.ErrorField(err),
		util.Int("status_code", statusCode),
	)
	h.respondWithJSON(w, statusCode, Response{Error: err.Error()})
}

// getStatusCode maps service errors to HTTP status codes. Not-found, expired
// and wrong-code all map to 400 so the wire response does not reveal which
// case applied beyond what the error taxonomy allows.
func (h *AuthHandler) getStatusCode(err error) int {
	switch {
	case errors.Is(err, service.ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, service.ErrInvalidOrExpired), errors.Is(err, service.ErrExpired):
		return http.StatusBadRequest
	case errors.Is(err, service.ErrRateLimited), errors.Is(err, service.ErrTooManyAttempts):
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}
