package courier

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

// Registry manages registered courier providers.
type Registry struct {
	couriers map[string]Courier
	mu       sync.RWMutex
}

// NewRegistry creates a new courier registry.
func NewRegistry() *Registry {
	return &Registry{
		couriers: make(map[string]Courier),
	}
}

// Register adds a courier to the registry.
func (r *Registry) Register(c Courier) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.couriers[c.Name()] = c
}

// Get returns a courier by name.
func (r *Registry) Get(name string) (Courier, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if c, ok := r.couriers[name]; ok {
		return c, nil
	}
	return nil, fmt.Errorf("%w: %s", ErrProviderNotFound, name)
}

// All returns all registered couriers.
func (r *Registry) All() []Courier {
	r.mu.RLock()
	defer r.mu.RUnlock()
	result := make([]Courier, 0, len(r.couriers))
	for _, c := range r.couriers {
		result = append(result, c)
	}
	return result
}

// Names returns the names of all registered couriers.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.couriers))
	for name := range r.couriers {
		names = append(names, name)
	}
	return names
}

// Count returns the number of registered couriers.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.couriers)
}

// QuoteAll fans out to the given providers concurrently and collects the
// quotes that arrive. Each provider call runs under its own timeout; a
// provider that errors or times out is excluded from the result and its
// error collected, never failing the aggregation. An empty provider list
// fans out to every registered courier. The result may be empty.
func (r *Registry) QuoteAll(ctx context.Context, req *QuoteRequest, providers []string, timeout time.Duration) ([]Quote, []error) {
	couriers := make([]Courier, 0, len(providers))
	var errs []error
	if len(providers) == 0 {
		couriers = r.All()
	} else {
		for _, name := range providers {
			c, err := r.Get(name)
			if err != nil {
				errs = append(errs, err)
				continue
			}
			couriers = append(couriers, c)
		}
	}

	quotes := make([]Quote, 0, len(couriers))
	mu := &sync.Mutex{}

	// Plain group, not WithContext: one provider failing must never cancel
	// the siblings.
	g := &errgroup.Group{}

	for _, c := range couriers {
		c := c
		g.Go(func() error {
			callCtx, cancel := context.WithTimeout(ctx, timeout)
			defer cancel()

			quote, err := c.Quote(callCtx, req)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", c.Name(), err))
				return nil
			}
			quotes = append(quotes, *quote)
			return nil
		})
	}

	g.Wait()
	return quotes, errs
}
