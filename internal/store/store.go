// Package store persists brokered jobs and the correlation index webhooks
// resolve through. Updates use optimistic concurrency: every job carries a
// version token and a stale write loses.
package store

import (
	"context"
	"errors"

	"github.com/courierhub/dispatch/pkg/courier"
)

// ErrVersionConflict indicates the job changed since it was read. The caller
// re-reads and re-applies.
var ErrVersionConflict = errors.New("job version conflict")

// JobStore is the persistence contract for brokered jobs.
type JobStore interface {
	// Create persists a new job and indexes it under every correlation key.
	Create(ctx context.Context, job *courier.Job, correlationKeys []string) error

	// FindByID returns the job with the given broker id.
	// Returns courier.ErrJobNotFound when no such job exists.
	FindByID(ctx context.Context, id string) (*courier.Job, error)

	// FindByCorrelationKey resolves a provider correlation key to its job.
	// Returns courier.ErrJobNotFound when the key is not indexed.
	FindByCorrelationKey(ctx context.Context, key string) (*courier.Job, error)

	// Update persists a mutated job. The job's Version must match the stored
	// one; on success the stored version advances. Returns ErrVersionConflict
	// on a stale write.
	Update(ctx context.Context, job *courier.Job) error
}
