// Package mock provides a mock courier implementation for testing.
package mock

import (
	"context"
	"fmt"
	"time"

	"github.com/courierhub/dispatch/pkg/courier"
)

// Client is a mock courier for testing. Zero value behavior returns canned
// quotes and job acceptances; the On* hooks and failure knobs override it.
type Client struct {
	name string

	// QuoteErr, when set, is returned from every Quote call.
	QuoteErr error

	// QuoteDelay delays Quote until the duration elapses or the context
	// expires, for exercising per-provider timeouts.
	QuoteDelay time.Duration

	// Price overrides the canned quote price when non-zero.
	Price float64

	// DropoffETA overrides the canned dropoff ETA when non-zero.
	DropoffETA time.Time

	OnCreateJob func(ctx context.Context, req *courier.CreateJobRequest) (*courier.CreateJobResponse, error)
	OnCancelJob func(ctx context.Context, req *courier.CancelJobRequest) (*courier.CancelJobResponse, error)

	// VerifyErr, when set, is returned from every VerifyWebhook call.
	VerifyErr error

	// OnDecodeWebhook overrides webhook decoding.
	OnDecodeWebhook func(w *courier.InboundWebhook) (*courier.WebhookEvent, error)

	Table courier.StatusTable
}

// New creates a new mock courier.
func New(name string) *Client {
	return &Client{name: name}
}

// Name returns the provider name.
func (c *Client) Name() string {
	return c.name
}

// Quote returns a mock quote.
func (c *Client) Quote(ctx context.Context, req *courier.QuoteRequest) (*courier.Quote, error) {
	if c.QuoteDelay > 0 {
		select {
		case <-time.After(c.QuoteDelay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if c.QuoteErr != nil {
		return nil, c.QuoteErr
	}

	now := time.Now()
	price := c.Price
	if price == 0 {
		price = 9.50
	}
	dropoffETA := c.DropoffETA
	if dropoffETA.IsZero() {
		dropoffETA = now.Add(45 * time.Minute)
	}

	return &courier.Quote{
		ID:         fmt.Sprintf("%s-quote-%d", c.name, now.UnixNano()),
		ProviderID: c.name,
		Price:      courier.Money{Amount: price, Currency: "GBP"},
		PickupETA:  now.Add(15 * time.Minute),
		DropoffETA: dropoffETA,
		ExpiresAt:  now.Add(5 * time.Minute),
	}, nil
}

// CreateJob creates a mock job.
func (c *Client) CreateJob(ctx context.Context, req *courier.CreateJobRequest) (*courier.CreateJobResponse, error) {
	if c.OnCreateJob != nil {
		return c.OnCreateJob(ctx, req)
	}

	now := time.Now()
	jobID := fmt.Sprintf("%s-job-%d", c.name, now.UnixNano())
	deliveries := make([]courier.Delivery, 0, len(req.Spec.Dropoffs))
	for i, d := range req.Spec.Dropoffs {
		deliveries = append(deliveries, courier.Delivery{
			ProviderDeliveryID: fmt.Sprintf("%s-d%d", jobID, i),
			Reference:          d.Reference,
			Window:             d.Window,
			TrackingURL:        fmt.Sprintf("https://track.%s.mock/%s-d%d", c.name, jobID, i),
			Status:             courier.StatusPending,
		})
	}

	return &courier.CreateJobResponse{
		ProviderJobID: jobID,
		Deliveries:    deliveries,
		Fee:           &courier.Money{Amount: 9.50, Currency: "GBP"},
		TrackingURL:   fmt.Sprintf("https://track.%s.mock/%s", c.name, jobID),
	}, nil
}

// CreateMultiDropJob creates a mock multi-drop job.
func (c *Client) CreateMultiDropJob(ctx context.Context, req *courier.CreateJobRequest) (*courier.CreateJobResponse, error) {
	return c.CreateJob(ctx, req)
}

// CancelJob cancels a mock job.
func (c *Client) CancelJob(ctx context.Context, req *courier.CancelJobRequest) (*courier.CancelJobResponse, error) {
	if c.OnCancelJob != nil {
		return c.OnCancelJob(ctx, req)
	}
	return &courier.CancelJobResponse{
		ProviderJobID: req.ProviderJobID,
		Status:        courier.StatusCancelled,
	}, nil
}

// Statuses returns the configured status table, defaulting to a minimal
// identity-style table.
func (c *Client) Statuses() courier.StatusTable {
	if c.Table.Job != nil || c.Table.Delivery != nil {
		return c.Table
	}
	return courier.StatusTable{
		Job: map[string]courier.Mapping{
			"pending":    {Canonical: courier.StatusPending},
			"delivering": {Canonical: courier.StatusEnRoute, Ecommerce: courier.EcommerceShipped},
			"delivered":  {Canonical: courier.StatusCompleted, Ecommerce: courier.EcommerceCompleted},
			"canceled":   {Canonical: courier.StatusCancelled, Ecommerce: courier.EcommerceCancelled},
		},
	}
}

// VerifyWebhook accepts every webhook unless VerifyErr is set.
func (c *Client) VerifyWebhook(w *courier.InboundWebhook) error {
	return c.VerifyErr
}

// DecodeWebhook delegates to OnDecodeWebhook.
func (c *Client) DecodeWebhook(w *courier.InboundWebhook) (*courier.WebhookEvent, error) {
	if c.OnDecodeWebhook != nil {
		return c.OnDecodeWebhook(w)
	}
	return nil, courier.NewError(c.name, courier.KindValidation, "UNSUPPORTED", "mock courier does not decode webhooks")
}

var _ courier.MultiDropCourier = (*Client)(nil)
