// Package courier provides an abstraction layer for on-demand courier providers.
package courier

import (
	"context"
)

// Courier defines the interface that all courier providers must implement.
type Courier interface {
	// Name returns the provider identifier (e.g., "stuart", "gophr", "streetstream").
	Name() string

	// Quote returns a normalized price/ETA quote for a delivery request.
	Quote(ctx context.Context, req *QuoteRequest) (*Quote, error)

	// CreateJob submits a single-drop job to the provider.
	CreateJob(ctx context.Context, req *CreateJobRequest) (*CreateJobResponse, error)

	// CancelJob cancels a previously submitted job.
	CancelJob(ctx context.Context, req *CancelJobRequest) (*CancelJobResponse, error)

	// Statuses returns the provider's status mapping table.
	Statuses() StatusTable

	// VerifyWebhook authenticates an inbound webhook against the provider's
	// shared secret. A mismatch must be rejected with no side effects.
	VerifyWebhook(w *InboundWebhook) error

	// DecodeWebhook parses an authenticated inbound webhook into a
	// canonical event.
	DecodeWebhook(w *InboundWebhook) (*WebhookEvent, error)
}

// MultiDropCourier is implemented by providers that accept several dropoffs
// in one submission.
type MultiDropCourier interface {
	Courier

	// CreateMultiDropJob submits a job with multiple dropoffs to the provider.
	CreateMultiDropJob(ctx context.Context, req *CreateJobRequest) (*CreateJobResponse, error)
}
