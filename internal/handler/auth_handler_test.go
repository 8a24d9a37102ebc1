package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"regexp"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"otp-auth-service/internal/audit"
	"otp-auth-service/internal/client"
	"otp-auth-service/internal/config"
	"otp-auth-service/internal/email"
	"otp-auth-service/internal/hashing"
	"otp-auth-service/internal/identity"
	"otp-auth-service/internal/models"
	"otp-auth-service/internal/ratelimit"
	"otp-auth-service/internal/repository"
	redisrepo "otp-auth-service/internal/repository/redis"
	"otp-auth-service/internal/service"
)

// Minimal in-memory backends for wiring real services under httptest.

type memOTPRepo struct {
	mu      sync.Mutex
	records []*models.OTPRecord
}

func (m *memOTPRepo) Insert(_ context.Context, rec *models.OTPRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *rec
	m.records = append(m.records, &cp)
	return nil
}

func (m *memOTPRepo) LatestUnverified(_ context.Context, emailAddr, requestID string) (*models.OTPRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var latest *models.OTPRecord
	for _, r := range m.records {
		if r.Email == emailAddr && r.RequestID == requestID && !r.Verified {
			if latest == nil || r.CreatedAt.After(latest.CreatedAt) {
				latest = r
			}
		}
	}
	if latest == nil {
		return nil, repository.ErrNotFound
	}
	cp := *latest
	return &cp, nil
}

func (m *memOTPRepo) DeleteUnverified(_ context.Context, emailAddr string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	kept := m.records[:0]
	for _, r := range m.records {
		if !(r.Email == emailAddr && !r.Verified) {
			kept = append(kept, r)
		}
	}
	m.records = kept
	return nil
}

func (m *memOTPRepo) UpdateAttempts(_ context.Context, rec *models.OTPRecord, attempts int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.records {
		if r.Email == rec.Email && r.RequestID == rec.RequestID && r.CreatedAt.Equal(rec.CreatedAt) {
			r.Attempts = attempts
		}
	}
	return nil
}

func (m *memOTPRepo) MarkVerified(_ context.Context, rec *models.OTPRecord, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.records {
		if r.Email == rec.Email && r.RequestID == rec.RequestID && r.CreatedAt.Equal(rec.CreatedAt) {
			r.Verified = true
			verifiedAt := at
			r.VerifiedAt = &verifiedAt
		}
	}
	return nil
}

type memDeviceRepo struct {
	mu      sync.Mutex
	devices map[string]*models.TrustedDevice
}

func newMemDeviceRepo() *memDeviceRepo {
	return &memDeviceRepo{devices: make(map[string]*models.TrustedDevice)}
}

func (m *memDeviceRepo) key(userID, fp string) string { return userID + "|" + fp }

func (m *memDeviceRepo) Get(_ context.Context, userID, fp string) (*models.TrustedDevice, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.devices[m.key(userID, fp)]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *d
	return &cp, nil
}

func (m *memDeviceRepo) Upsert(_ context.Context, device *models.TrustedDevice) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *device
	m.devices[m.key(device.UserID, device.DeviceFingerprint)] = &cp
	return nil
}

func (m *memDeviceRepo) UpdateLastUsed(_ context.Context, userID, fp string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if d, ok := m.devices[m.key(userID, fp)]; ok {
		d.LastUsedAt = at
	}
	return nil
}

func (m *memDeviceRepo) ListForUser(_ context.Context, userID string) ([]*models.TrustedDevice, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []*models.TrustedDevice{}
	for _, d := range m.devices {
		if d.UserID == userID {
			cp := *d
			out = append(out, &cp)
		}
	}
	return out, nil
}

type memEventRepo struct {
	mu     sync.Mutex
	events []*models.SecurityEvent
}

func (m *memEventRepo) Append(_ context.Context, event *models.SecurityEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *event
	m.events = append(m.events, &cp)
	return nil
}

type memSender struct {
	mu       sync.Mutex
	messages []email.Message
}

func (m *memSender) Send(_ context.Context, msg email.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.messages = append(m.messages, msg)
	return nil
}

type memIdentity struct {
	mu      sync.Mutex
	users   map[string]*identity.User
	created int
}

func newMemIdentity() *memIdentity {
	return &memIdentity{users: make(map[string]*identity.User)}
}

func (m *memIdentity) FindUserByEmail(_ context.Context, emailAddr string) (*identity.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[emailAddr]
	if !ok {
		return nil, identity.ErrUserNotFound
	}
	cp := *u
	return &cp, nil
}

func (m *memIdentity) CreateUser(_ context.Context, emailAddr string) (*identity.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.created++
	u := &identity.User{ID: fmt.Sprintf("user-%d", m.created), Email: emailAddr}
	m.users[emailAddr] = u
	cp := *u
	return &cp, nil
}

func (m *memIdentity) CreateMagicLink(_ context.Context, emailAddr string) (string, error) {
	return "https://identity.local/magic?email=" + emailAddr, nil
}

func (m *memIdentity) CreateRecoveryLink(_ context.Context, emailAddr string) (string, error) {
	return "https://identity.local/recovery?email=" + emailAddr, nil
}

type apiHarness struct {
	server *httptest.Server
	sender *memSender
	idp    *memIdentity
}

func newAPIHarness(t *testing.T) *apiHarness {
	t.Helper()

	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)
	rdb := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})

	cfg := &config.Config{
		Email: config.EmailConfig{SenderName: "Finance Tracker"},
		OTP: config.OTPConfig{
			CodeTTL:           10 * time.Minute,
			MaxVerifyAttempts: 5,
			HashAlgorithm:     hashing.AlgorithmSHA256,
		},
		RateLimit: config.RateLimitConfig{MaxAttempts: 5, Window: time.Hour},
	}

	sender := &memSender{}
	idp := newMemIdentity()
	hasher, err := hashing.NewHasher(cfg.OTP.HashAlgorithm)
	require.NoError(t, err)

	store := redisrepo.NewRateLimitStore(client.WrapRedisClient(rdb), cfg.RateLimit.Window)
	limiter := ratelimit.NewLimiter(store, cfg.RateLimit.MaxAttempts, cfg.RateLimit.Window)
	auditLog := audit.NewLog(&memEventRepo{}, nil, zap.NewNop())
	devices := newMemDeviceRepo()

	otpService := service.NewOTPService(
		&memOTPRepo{}, devices, auditLog, limiter, hasher, sender, idp, cfg, zap.NewNop(),
	)
	accountService := service.NewAccountService(devices, sender, idp, cfg, zap.NewNop())

	router := NewRouter(NewAuthHandler(otpService, accountService, zap.NewNop()), zap.NewNop())
	server := httptest.NewServer(router)
	t.Cleanup(server.Close)

	return &apiHarness{server: server, sender: sender, idp: idp}
}

func (h *apiHarness) post(t *testing.T, path string, body interface{}) (*http.Response, map[string]interface{}) {
	t.Helper()

	raw, err := json.Marshal(body)
	require.NoError(t, err)

	resp, err := http.Post(h.server.URL+path, "application/json", bytes.NewReader(raw))
	require.NoError(t, err)
	defer resp.Body.Close()

	var decoded map[string]interface{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&decoded))
	return resp, decoded
}

func (h *apiHarness) lastCode(t *testing.T) string {
	t.Helper()
	h.sender.mu.Lock()
	defer h.sender.mu.Unlock()
	require.NotEmpty(t, h.sender.messages, "no email was sent")
	subject := h.sender.messages[len(h.sender.messages)-1].Subject
	code := regexp.MustCompile(`\d{6}`).FindString(subject)
	require.NotEmpty(t, code, "no code in subject %q", subject)
	return code
}

func TestSendOTPMissingFields(t *testing.T) {
	h := newAPIHarness(t)

	resp, body := h.post(t, "/api/v1/send-otp", map[string]string{"email": "user@example.com"})
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	require.NotEmpty(t, body["error"])
	require.Nil(t, body["success"])
}

func TestSendOTPSuccess(t *testing.T) {
	h := newAPIHarness(t)

	resp, body := h.post(t, "/api/v1/send-otp", map[string]string{
		"email":     "user@example.com",
		"requestId": "req-1",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, true, body["success"])
	require.NotEmpty(t, body["expiresAt"])
	h.lastCode(t)
}

func TestSendOTPRateLimited(t *testing.T) {
	h := newAPIHarness(t)

	for i := 0; i < 5; i++ {
		resp, _ := h.post(t, "/api/v1/send-otp", map[string]string{
			"email":     "user@example.com",
			"requestId": fmt.Sprintf("req-%d", i),
		})
		require.Equal(t, http.StatusOK, resp.StatusCode)
	}

	resp, body := h.post(t, "/api/v1/send-otp", map[string]string{
		"email":     "user@example.com",
		"requestId": "req-6",
	})
	require.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
	require.NotEmpty(t, body["error"])
}

func TestVerifyOTPRoundtrip(t *testing.T) {
	h := newAPIHarness(t)

	resp, _ := h.post(t, "/api/v1/send-otp", map[string]string{
		"email":     "user@example.com",
		"requestId": "req-1",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	code := h.lastCode(t)

	resp, body := h.post(t, "/api/v1/verify-otp", map[string]string{
		"email":     "user@example.com",
		"code":      code,
		"requestId": "req-1",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, true, body["success"])
	require.NotEmpty(t, body["userId"])
	require.Contains(t, body["sessionUrl"], "https://identity.local/magic")
}

func TestVerifyOTPWrongCodeReturnsAttemptsRemaining(t *testing.T) {
	h := newAPIHarness(t)

	resp, _ := h.post(t, "/api/v1/send-otp", map[string]string{
		"email":     "user@example.com",
		"requestId": "req-1",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	code := h.lastCode(t)

	wrong := "000000"
	if wrong == code {
		wrong = "000001"
	}
	resp, body := h.post(t, "/api/v1/verify-otp", map[string]string{
		"email":     "user@example.com",
		"code":      wrong,
		"requestId": "req-1",
	})
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	require.NotEmpty(t, body["error"])
	require.Equal(t, float64(4), body["attemptsRemaining"])
}

func TestCheckEmail(t *testing.T) {
	h := newAPIHarness(t)

	resp, body := h.post(t, "/api/v1/check-email", map[string]string{"email": "user@example.com"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, false, body["exists"])

	h.idp.CreateUser(context.Background(), "user@example.com")

	resp, body = h.post(t, "/api/v1/check-email", map[string]string{"email": "user@example.com"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, true, body["exists"])
}

func TestSendPasswordResetUniformResponse(t *testing.T) {
	h := newAPIHarness(t)

	resp, body := h.post(t, "/api/v1/send-password-reset", map[string]string{"email": "ghost@example.com"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, true, body["success"])

	h.idp.CreateUser(context.Background(), "user@example.com")
	resp, known := h.post(t, "/api/v1/send-password-reset", map[string]string{"email": "user@example.com"})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	// Same body either way.
	require.Equal(t, body["message"], known["message"])
	require.Len(t, h.sender.messages, 1)
}

func TestRegisterDeviceEndpoint(t *testing.T) {
	h := newAPIHarness(t)
	h.idp.CreateUser(context.Background(), "user@example.com")

	resp, body := h.post(t, "/api/v1/devices/register", map[string]string{
		"email":             "user@example.com",
		"deviceFingerprint": "fp-1",
		"deviceName":        "Work laptop",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, true, body["success"])
}

func TestCORSPreflight(t *testing.T) {
	h := newAPIHarness(t)

	req, err := http.NewRequest(http.MethodOptions, h.server.URL+"/api/v1/send-otp", nil)
	require.NoError(t, err)
	req.Header.Set("Origin", "https://app.example.com")
	req.Header.Set("Access-Control-Request-Method", "POST")
	req.Header.Set("Access-Control-Request-Headers", "authorization, x-client-info, apikey, content-type")

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Less(t, resp.StatusCode, 300)
	require.Equal(t, "*", resp.Header.Get("Access-Control-Allow-Origin"))
	require.Contains(t, resp.Header.Get("Access-Control-Allow-Headers"), "Authorization")
}

func TestHealth(t *testing.T) {
	h := newAPIHarness(t)

	resp, err := http.Get(h.server.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
}
