package stuart

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/courierhub/dispatch/pkg/courier"
)

// Authenticator acquires Stuart bearer tokens via the OAuth2
// client-credentials grant. Refresh timing, coalescing, and the single
// retry live in the session manager; this type only knows how to log in.
type Authenticator struct {
	baseURL      string
	clientID     string
	clientSecret string
	httpClient   *http.Client
}

// NewAuthenticator creates an authenticator for the configured credentials.
func NewAuthenticator(cfg Config) *Authenticator {
	return &Authenticator{
		baseURL:      cfg.BaseURL,
		clientID:     cfg.ClientID,
		clientSecret: cfg.ClientSecret,
		httpClient:   &http.Client{Timeout: 10 * time.Second},
	}
}

// Provider returns the provider name.
func (a *Authenticator) Provider() string {
	return providerName
}

// Login performs the client-credentials token exchange.
// POST /oauth/token
func (a *Authenticator) Login(ctx context.Context) (courier.Credential, error) {
	form := url.Values{
		"grant_type":    {"client_credentials"},
		"client_id":     {a.clientID},
		"client_secret": {a.clientSecret},
		"scope":         {"api"},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL+"/oauth/token",
		strings.NewReader(form.Encode()))
	if err != nil {
		return courier.Credential{}, fmt.Errorf("failed to create token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return courier.Credential{}, fmt.Errorf("token request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return courier.Credential{}, courier.NewError(providerName, courier.KindAuth,
			fmt.Sprintf("HTTP_%d", resp.StatusCode), string(body))
	}

	var token struct {
		AccessToken string `json:"access_token"`
		TokenType   string `json:"token_type"`
		ExpiresIn   int64  `json:"expires_in"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&token); err != nil {
		return courier.Credential{}, fmt.Errorf("failed to decode token response: %w", err)
	}

	now := time.Now()
	cred := courier.Credential{
		Token:      token.AccessToken,
		AcquiredAt: now,
	}
	if token.ExpiresIn > 0 {
		cred.ExpiresAt = now.Add(time.Duration(token.ExpiresIn) * time.Second)
	}
	return cred, nil
}

var _ courier.Authenticator = (*Authenticator)(nil)
