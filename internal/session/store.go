package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/courierhub/dispatch/pkg/courier"
)

// CredentialStore externalizes provider credentials so a fresh process can
// reuse a still-valid token instead of logging in again.
type CredentialStore interface {
	// Load returns the stored credential for a provider. The second return
	// is false when none is stored.
	Load(ctx context.Context, provider string) (courier.Credential, bool, error)

	// Save stores the credential for a provider.
	Save(ctx context.Context, provider string, cred courier.Credential) error

	// SaveAll stores a batch of credentials in one write. The session
	// manager's debounced flush goes through here.
	SaveAll(ctx context.Context, creds map[string]courier.Credential) error
}

// MemoryCredentialStore is an in-process CredentialStore for tests and
// single-instance deployments.
type MemoryCredentialStore struct {
	mu    sync.RWMutex
	creds map[string]courier.Credential
}

// NewMemoryCredentialStore creates an empty in-memory credential store.
func NewMemoryCredentialStore() *MemoryCredentialStore {
	return &MemoryCredentialStore{creds: make(map[string]courier.Credential)}
}

// Load returns the stored credential for a provider.
func (s *MemoryCredentialStore) Load(ctx context.Context, provider string) (courier.Credential, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	cred, ok := s.creds[provider]
	return cred, ok, nil
}

// Save stores the credential for a provider.
func (s *MemoryCredentialStore) Save(ctx context.Context, provider string, cred courier.Credential) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.creds[provider] = cred
	return nil
}

// SaveAll stores a batch of credentials under one lock acquisition.
func (s *MemoryCredentialStore) SaveAll(ctx context.Context, creds map[string]courier.Credential) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for provider, cred := range creds {
		s.creds[provider] = cred
	}
	return nil
}

// RedisCredentialStore stores credentials in Redis so all instances share
// one session per provider.
type RedisCredentialStore struct {
	client *redis.Client
	prefix string
}

// NewRedisCredentialStore creates a Redis-backed credential store.
func NewRedisCredentialStore(client *redis.Client) *RedisCredentialStore {
	return &RedisCredentialStore{client: client, prefix: "session:cred:"}
}

// Load returns the stored credential for a provider.
func (s *RedisCredentialStore) Load(ctx context.Context, provider string) (courier.Credential, bool, error) {
	data, err := s.client.Get(ctx, s.prefix+provider).Bytes()
	if errors.Is(err, redis.Nil) {
		return courier.Credential{}, false, nil
	}
	if err != nil {
		return courier.Credential{}, false, fmt.Errorf("failed to load credential: %w", err)
	}

	var cred courier.Credential
	if err := json.Unmarshal(data, &cred); err != nil {
		return courier.Credential{}, false, fmt.Errorf("failed to decode credential: %w", err)
	}
	return cred, true, nil
}

// Save stores the credential for a provider. Expiring credentials carry a
// matching Redis TTL so stale tokens age out on their own.
func (s *RedisCredentialStore) Save(ctx context.Context, provider string, cred courier.Credential) error {
	data, err := json.Marshal(cred)
	if err != nil {
		return fmt.Errorf("failed to encode credential: %w", err)
	}

	var ttl time.Duration
	if !cred.ExpiresAt.IsZero() {
		ttl = time.Until(cred.ExpiresAt)
		if ttl <= 0 {
			return nil
		}
	}
	if err := s.client.Set(ctx, s.prefix+provider, data, ttl).Err(); err != nil {
		return fmt.Errorf("failed to save credential: %w", err)
	}
	return nil
}

// SaveAll stores a batch of credentials in one pipelined round trip.
func (s *RedisCredentialStore) SaveAll(ctx context.Context, creds map[string]courier.Credential) error {
	_, err := s.client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		for provider, cred := range creds {
			data, err := json.Marshal(cred)
			if err != nil {
				return fmt.Errorf("failed to encode credential for %s: %w", provider, err)
			}

			var ttl time.Duration
			if !cred.ExpiresAt.IsZero() {
				ttl = time.Until(cred.ExpiresAt)
				if ttl <= 0 {
					continue
				}
			}
			pipe.Set(ctx, s.prefix+provider, data, ttl)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to save credentials: %w", err)
	}
	return nil
}

var (
	_ CredentialStore = (*MemoryCredentialStore)(nil)
	_ CredentialStore = (*RedisCredentialStore)(nil)
)
