package streetstream

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/courierhub/dispatch/pkg/courier"
)

// Authenticator acquires Street Stream session tokens via credentialed
// login. The session manager owns caching, coalescing, and retry.
type Authenticator struct {
	baseURL    string
	email      string
	password   string
	httpClient *http.Client
}

// NewAuthenticator creates an authenticator for the configured credentials.
func NewAuthenticator(cfg Config) *Authenticator {
	return &Authenticator{
		baseURL:    cfg.BaseURL,
		email:      cfg.Email,
		password:   cfg.Password,
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
}

// Provider returns the provider name.
func (a *Authenticator) Provider() string {
	return providerName
}

// Login performs the session login.
// POST /api/session/login
func (a *Authenticator) Login(ctx context.Context) (courier.Credential, error) {
	body, err := json.Marshal(map[string]string{
		"email":    a.email,
		"password": a.password,
	})
	if err != nil {
		return courier.Credential{}, fmt.Errorf("failed to marshal login request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL+"/api/session/login",
		bytes.NewReader(body))
	if err != nil {
		return courier.Credential{}, fmt.Errorf("failed to create login request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return courier.Credential{}, fmt.Errorf("login request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return courier.Credential{}, courier.NewError(providerName, courier.KindAuth,
			fmt.Sprintf("HTTP_%d", resp.StatusCode), string(respBody))
	}

	var session struct {
		Token     string `json:"token"`
		ExpiresAt string `json:"expiresAt,omitempty"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&session); err != nil {
		return courier.Credential{}, fmt.Errorf("failed to decode login response: %w", err)
	}

	cred := courier.Credential{
		Token:      session.Token,
		AcquiredAt: time.Now(),
	}
	if t, err := time.Parse(time.RFC3339, session.ExpiresAt); err == nil {
		cred.ExpiresAt = t
	}
	return cred, nil
}

var _ courier.Authenticator = (*Authenticator)(nil)
