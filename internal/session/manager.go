// Package session owns provider credentials: acquisition, process-wide
// caching, coalesced refresh, and the single retry after a 401/403.
// Adapters never see tokens; they are handed a courier.Doer that carries
// the session.
package session

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/uptrace/opentelemetry-go-extra/otelzap"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/courierhub/dispatch/internal/telemetry"
	"github.com/courierhub/dispatch/pkg/courier"
)

// Options tunes the session manager.
type Options struct {
	// Leeway is how long before expiry a cached token is treated as stale.
	Leeway time.Duration

	// SaveDebounce is how long after the last refresh a credential is
	// persisted. Bursts of refreshes collapse into one store write.
	SaveDebounce time.Duration

	// HTTPClient executes provider requests. Defaults to a 15s-timeout client.
	HTTPClient *http.Client

	// Metrics counts credential refreshes when set.
	Metrics *telemetry.Metrics
}

// Manager caches one credential per provider and serves per-provider Doers.
// Concurrent refreshes for the same provider are coalesced: a burst of
// expired-token failures produces exactly one login call.
type Manager struct {
	store  CredentialStore
	logger *otelzap.Logger

	leeway       time.Duration
	saveDebounce time.Duration
	httpClient   *http.Client
	metrics      *telemetry.Metrics

	mu        sync.RWMutex
	auths     map[string]courier.Authenticator
	creds     map[string]courier.Credential
	dirty     map[string]struct{}
	saveTimer *time.Timer

	refresh singleflight.Group
}

// NewManager creates a session manager backed by the given credential store.
func NewManager(store CredentialStore, logger *otelzap.Logger, opts Options) *Manager {
	if opts.Leeway == 0 {
		opts.Leeway = 30 * time.Second
	}
	if opts.SaveDebounce == 0 {
		opts.SaveDebounce = 2 * time.Second
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = &http.Client{Timeout: 15 * time.Second}
	}
	return &Manager{
		store:        store,
		logger:       logger,
		leeway:       opts.Leeway,
		saveDebounce: opts.SaveDebounce,
		httpClient:   opts.HTTPClient,
		metrics:      opts.Metrics,
		auths:        make(map[string]courier.Authenticator),
		creds:        make(map[string]courier.Credential),
		dirty:        make(map[string]struct{}),
	}
}

// Register adds a provider authenticator. Must be called before ClientFor
// for the same provider.
func (m *Manager) Register(auth courier.Authenticator) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.auths[auth.Provider()] = auth
}

// ClientFor returns the Doer that carries the provider's session. Requests
// get the cached bearer token attached; a 401/403 response triggers one
// coalesced refresh and one retry, after which the failure is surfaced.
func (m *Manager) ClientFor(provider string) courier.Doer {
	return &sessionDoer{manager: m, provider: provider}
}

// Token returns a valid token for the provider, acquiring one if needed.
func (m *Manager) Token(ctx context.Context, provider string) (string, error) {
	m.mu.RLock()
	cred, ok := m.creds[provider]
	m.mu.RUnlock()
	if ok && cred.Valid(m.leeway) {
		return cred.Token, nil
	}

	cred, err := m.acquire(ctx, provider)
	if err != nil {
		return "", err
	}
	return cred.Token, nil
}

// acquire produces a valid credential, preferring the external store over a
// fresh login. Coalesced per provider.
func (m *Manager) acquire(ctx context.Context, provider string) (courier.Credential, error) {
	v, err, _ := m.refresh.Do("acquire:"+provider, func() (interface{}, error) {
		m.mu.RLock()
		cred, ok := m.creds[provider]
		m.mu.RUnlock()
		if ok && cred.Valid(m.leeway) {
			return cred, nil
		}

		if stored, ok, err := m.store.Load(ctx, provider); err != nil {
			m.logger.Warn("Failed to load stored credential",
				zap.String("provider", provider), zap.Error(err))
		} else if ok && stored.Valid(m.leeway) {
			m.setCredential(provider, stored, false)
			return stored, nil
		}

		return m.login(ctx, provider)
	})
	if err != nil {
		return courier.Credential{}, err
	}
	return v.(courier.Credential), nil
}

// invalidateAndRefresh discards the token a 401/403 arrived with and acquires
// a fresh one. When another goroutine already replaced the token, the
// replacement is returned without a new login.
func (m *Manager) invalidateAndRefresh(ctx context.Context, provider, usedToken string) (courier.Credential, error) {
	v, err, _ := m.refresh.Do("refresh:"+provider, func() (interface{}, error) {
		m.mu.RLock()
		cred, ok := m.creds[provider]
		m.mu.RUnlock()
		if ok && cred.Token != usedToken && cred.Valid(m.leeway) {
			return cred, nil
		}
		return m.login(ctx, provider)
	})
	if err != nil {
		return courier.Credential{}, err
	}
	return v.(courier.Credential), nil
}

func (m *Manager) login(ctx context.Context, provider string) (courier.Credential, error) {
	m.mu.RLock()
	auth, ok := m.auths[provider]
	m.mu.RUnlock()
	if !ok {
		return courier.Credential{}, fmt.Errorf("%w: no authenticator for %s", courier.ErrAuthFailed, provider)
	}

	m.logger.Info("Acquiring provider credential", zap.String("provider", provider))
	cred, err := auth.Login(ctx)
	if err != nil {
		m.logger.Error("Provider login failed", zap.String("provider", provider), zap.Error(err))
		if m.metrics != nil {
			m.metrics.RecordSessionRefresh(provider, "error")
		}
		return courier.Credential{}, fmt.Errorf("%w: %s: %v", courier.ErrAuthFailed, provider, err)
	}

	if m.metrics != nil {
		m.metrics.RecordSessionRefresh(provider, "ok")
	}
	m.setCredential(provider, cred, true)
	return cred, nil
}

// setCredential caches the credential and, when it came from a fresh login,
// marks it dirty and arms the shared flush timer. Refresh bursts across all
// providers collapse into one batched store write after the quiescence
// window.
func (m *Manager) setCredential(provider string, cred courier.Credential, persist bool) {
	m.mu.Lock()
	m.creds[provider] = cred
	if persist {
		m.dirty[provider] = struct{}{}
		if m.saveTimer == nil {
			m.saveTimer = time.AfterFunc(m.saveDebounce, m.flushCredentials)
		} else {
			m.saveTimer.Reset(m.saveDebounce)
		}
	}
	m.mu.Unlock()
}

// flushCredentials persists every dirty credential in one batched write.
func (m *Manager) flushCredentials() {
	m.mu.Lock()
	if len(m.dirty) == 0 {
		m.mu.Unlock()
		return
	}
	batch := make(map[string]courier.Credential, len(m.dirty))
	for provider := range m.dirty {
		if cred, ok := m.creds[provider]; ok {
			batch[provider] = cred
		}
	}
	m.dirty = make(map[string]struct{})
	m.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := m.store.SaveAll(ctx, batch); err != nil {
		m.logger.Warn("Failed to persist credentials",
			zap.Int("count", len(batch)), zap.Error(err))
	}
}

// sessionDoer is the per-provider Doer handed to adapters.
type sessionDoer struct {
	manager  *Manager
	provider string
}

// Do executes the request with the provider's bearer token. On 401/403 the
// token is refreshed once and the request retried once.
func (d *sessionDoer) Do(req *http.Request) (*http.Response, error) {
	token, err := d.manager.Token(req.Context(), d.provider)
	if err != nil {
		return nil, err
	}

	first := req.Clone(req.Context())
	first.Header.Set("Authorization", "Bearer "+token)
	if req.GetBody != nil {
		if first.Body, err = req.GetBody(); err != nil {
			return nil, err
		}
	}

	resp, err := d.manager.httpClient.Do(first)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusUnauthorized && resp.StatusCode != http.StatusForbidden {
		return resp, nil
	}
	resp.Body.Close()

	cred, err := d.manager.invalidateAndRefresh(req.Context(), d.provider, token)
	if err != nil {
		return nil, err
	}

	retry := req.Clone(req.Context())
	retry.Header.Set("Authorization", "Bearer "+cred.Token)
	if req.GetBody != nil {
		if retry.Body, err = req.GetBody(); err != nil {
			return nil, err
		}
	}
	return d.manager.httpClient.Do(retry)
}

var _ courier.Doer = (*sessionDoer)(nil)
