package courier

import (
	"context"
	"net/http"
	"time"
)

// Credential is a provider bearer credential, cached process-wide by the
// session manager and externalized for reuse across restarts.
type Credential struct {
	Token      string    `json:"token"`
	AcquiredAt time.Time `json:"acquired_at"`
	ExpiresAt  time.Time `json:"expires_at,omitempty"`
}

// Valid reports whether the credential is usable: a token is present and,
// when the provider communicated an expiry, at least leeway remains.
func (c Credential) Valid(leeway time.Duration) bool {
	if c.Token == "" {
		return false
	}
	if c.ExpiresAt.IsZero() {
		return true
	}
	return time.Now().Add(leeway).Before(c.ExpiresAt)
}

// Authenticator acquires a fresh credential from a provider's auth endpoint.
// Implemented per provider: OAuth2 client-credentials for stuart,
// session-token login for streetstream.
type Authenticator interface {
	// Provider returns the provider the credential belongs to.
	Provider() string

	// Login acquires a fresh credential.
	Login(ctx context.Context) (Credential, error)
}

// Doer executes an HTTP request. *http.Client satisfies it; the session
// manager provides per-provider implementations that attach the cached
// bearer token and handle refresh-and-retry on 401/403.
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}
