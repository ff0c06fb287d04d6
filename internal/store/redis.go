package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/courierhub/dispatch/pkg/courier"
)

const (
	jobKeyPrefix  = "dispatch:job:"
	corrKeyPrefix = "dispatch:corr:"
)

// RedisJobStore is a Redis-backed JobStore. Jobs are stored as JSON under
// their broker id; correlation keys are stored as plain pointers to the id.
// Optimistic concurrency uses WATCH on the job key.
type RedisJobStore struct {
	client *redis.Client
}

// NewRedisJobStore creates a Redis-backed job store.
func NewRedisJobStore(client *redis.Client) *RedisJobStore {
	return &RedisJobStore{client: client}
}

// Create persists a new job and indexes its correlation keys atomically.
func (s *RedisJobStore) Create(ctx context.Context, job *courier.Job, correlationKeys []string) error {
	job.Version = 1
	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("failed to encode job: %w", err)
	}

	key := jobKeyPrefix + job.ID
	ok, err := s.client.SetNX(ctx, key, data, 0).Result()
	if err != nil {
		return fmt.Errorf("failed to create job: %w", err)
	}
	if !ok {
		return fmt.Errorf("job %s already exists", job.ID)
	}

	pipe := s.client.Pipeline()
	for _, ck := range correlationKeys {
		pipe.Set(ctx, corrKeyPrefix+ck, job.ID, 0)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to index correlation keys: %w", err)
	}
	return nil
}

// FindByID returns the job with the given broker id.
func (s *RedisJobStore) FindByID(ctx context.Context, id string) (*courier.Job, error) {
	data, err := s.client.Get(ctx, jobKeyPrefix+id).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("%w: %s", courier.ErrJobNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load job: %w", err)
	}

	var job courier.Job
	if err := json.Unmarshal(data, &job); err != nil {
		return nil, fmt.Errorf("failed to decode job: %w", err)
	}
	return &job, nil
}

// FindByCorrelationKey resolves a correlation key to its job.
func (s *RedisJobStore) FindByCorrelationKey(ctx context.Context, key string) (*courier.Job, error) {
	id, err := s.client.Get(ctx, corrKeyPrefix+key).Result()
	if errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("%w: %s", courier.ErrJobNotFound, key)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to resolve correlation key: %w", err)
	}
	return s.FindByID(ctx, id)
}

// Update persists a mutated job. WATCH guards the job key: when another
// writer commits between our read and our write, the transaction aborts and
// ErrVersionConflict is returned.
func (s *RedisJobStore) Update(ctx context.Context, job *courier.Job) error {
	key := jobKeyPrefix + job.ID

	err := s.client.Watch(ctx, func(tx *redis.Tx) error {
		data, err := tx.Get(ctx, key).Bytes()
		if errors.Is(err, redis.Nil) {
			return fmt.Errorf("%w: %s", courier.ErrJobNotFound, job.ID)
		}
		if err != nil {
			return fmt.Errorf("failed to load job: %w", err)
		}

		var current courier.Job
		if err := json.Unmarshal(data, &current); err != nil {
			return fmt.Errorf("failed to decode job: %w", err)
		}
		if current.Version != job.Version {
			return fmt.Errorf("%w: job %s", ErrVersionConflict, job.ID)
		}

		job.Version++
		encoded, err := json.Marshal(job)
		if err != nil {
			job.Version--
			return fmt.Errorf("failed to encode job: %w", err)
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, encoded, 0)
			return nil
		})
		return err
	}, key)

	if errors.Is(err, redis.TxFailedErr) {
		return fmt.Errorf("%w: job %s", ErrVersionConflict, job.ID)
	}
	return err
}

var _ JobStore = (*RedisJobStore)(nil)
