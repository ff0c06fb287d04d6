package store

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/courierhub/dispatch/pkg/courier"
)

// MemoryJobStore is an in-process JobStore for tests and development.
type MemoryJobStore struct {
	mu    sync.RWMutex
	jobs  map[string][]byte // job id -> encoded job
	index map[string]string // correlation key -> job id
}

// NewMemoryJobStore creates an empty in-memory job store.
func NewMemoryJobStore() *MemoryJobStore {
	return &MemoryJobStore{
		jobs:  make(map[string][]byte),
		index: make(map[string]string),
	}
}

// Create persists a new job and indexes its correlation keys.
func (s *MemoryJobStore) Create(ctx context.Context, job *courier.Job, correlationKeys []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.jobs[job.ID]; exists {
		return fmt.Errorf("job %s already exists", job.ID)
	}

	job.Version = 1
	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("failed to encode job: %w", err)
	}
	s.jobs[job.ID] = data
	for _, key := range correlationKeys {
		s.index[key] = job.ID
	}
	return nil
}

// FindByID returns the job with the given broker id.
func (s *MemoryJobStore) FindByID(ctx context.Context, id string) (*courier.Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.decode(id)
}

// FindByCorrelationKey resolves a correlation key to its job.
func (s *MemoryJobStore) FindByCorrelationKey(ctx context.Context, key string) (*courier.Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.index[key]
	if !ok {
		return nil, fmt.Errorf("%w: %s", courier.ErrJobNotFound, key)
	}
	return s.decode(id)
}

// Update persists a mutated job under optimistic concurrency.
func (s *MemoryJobStore) Update(ctx context.Context, job *courier.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, err := s.decode(job.ID)
	if err != nil {
		return err
	}
	if current.Version != job.Version {
		return fmt.Errorf("%w: job %s", ErrVersionConflict, job.ID)
	}

	job.Version++
	data, err := json.Marshal(job)
	if err != nil {
		job.Version--
		return fmt.Errorf("failed to encode job: %w", err)
	}
	s.jobs[job.ID] = data
	return nil
}

// decode is called with the lock held.
func (s *MemoryJobStore) decode(id string) (*courier.Job, error) {
	data, ok := s.jobs[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", courier.ErrJobNotFound, id)
	}
	var job courier.Job
	if err := json.Unmarshal(data, &job); err != nil {
		return nil, fmt.Errorf("failed to decode job: %w", err)
	}
	return &job, nil
}

var _ JobStore = (*MemoryJobStore)(nil)
