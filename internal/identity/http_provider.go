package identity

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"go.uber.org/zap"

	"otp-auth-service/internal/config"
	"otp-auth-service/internal/util"
)

// HTTPProvider talks to a GoTrue-compatible admin API with a service-role
// key. Timeouts are enforced on the HTTP client; this layer never retries.
type HTTPProvider struct {
	baseURL     string
	serviceKey  string
	redirectURL string
	httpClient  *http.Client
	logger      *zap.Logger
}

func NewHTTPProvider(cfg config.IdentityConfig, logger *zap.Logger) *HTTPProvider {
	return &HTTPProvider{
		baseURL:     cfg.BaseURL,
		serviceKey:  cfg.ServiceKey,
		redirectURL: cfg.RedirectURL,
		httpClient:  &http.Client{Timeout: cfg.Timeout},
		logger:      logger,
	}
}

func (p *HTTPProvider) FindUserByEmail(ctx context.Context, email string) (*User, error) {
	endpoint := fmt.Sprintf("%s/admin/users?email=%s", p.baseURL, url.QueryEscape(email))

	var result struct {
		Users []User `json:"users"`
	}
	if err := p.doJSON(ctx, http.MethodGet, endpoint, nil, &result); err != nil {
		return nil, err
	}

	for i := range result.Users {
		if result.Users[i].Email == email {
			return &result.Users[i], nil
		}
	}
	return nil, ErrUserNotFound
}

func (p *HTTPProvider) CreateUser(ctx context.Context, email string) (*User, error) {
	endpoint := p.baseURL + "/admin/users"
	body := map[string]interface{}{
		"email":         email,
		"email_confirm": true,
	}

	var user User
	if err := p.doJSON(ctx, http.MethodPost, endpoint, body, &user); err != nil {
		return nil, err
	}

	p.logger.Info("Identity provider user created",
		util.String("user_id", user.ID))

	return &user, nil
}

func (p *HTTPProvider) CreateMagicLink(ctx context.Context, email string) (string, error) {
	return p.generateLink(ctx, "magiclink", email)
}

func (p *HTTPProvider) CreateRecoveryLink(ctx context.Context, email string) (string, error) {
	return p.generateLink(ctx, "recovery", email)
}

func (p *HTTPProvider) generateLink(ctx context.Context, linkType, email string) (string, error) {
	endpoint := p.baseURL + "/admin/generate_link"
	body := map[string]interface{}{
		"type":        linkType,
		"email":       email,
		"redirect_to": p.redirectURL,
	}

	var result struct {
		ActionLink string `json:"action_link"`
	}
	if err := p.doJSON(ctx, http.MethodPost, endpoint, body, &result); err != nil {
		return "", err
	}
	if result.ActionLink == "" {
		return "", fmt.Errorf("identity provider returned empty %s link", linkType)
	}
	return result.ActionLink, nil
}

func (p *HTTPProvider) doJSON(ctx context.Context, method, endpoint string, body, out interface{}) error {
	var reqBody io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal identity request: %w", err)
		}
		reqBody = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reqBody)
	if err != nil {
		return fmt.Errorf("failed to build identity request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+p.serviceKey)
	req.Header.Set("apikey", p.serviceKey)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("identity provider request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return ErrUserNotFound
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("identity provider returned %d: %s", resp.StatusCode, string(raw))
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("failed to decode identity response: %w", err)
		}
	}
	return nil
}
