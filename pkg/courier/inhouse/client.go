// Package inhouse provides the private-driver variant of the courier
// interface. Jobs assigned to the tenant's own fleet are accepted locally
// with a flat configured fee; no external API is involved and no webhooks
// arrive — status updates come from tenant-side operations instead.
package inhouse

import (
	"context"
	"fmt"
	"time"

	"github.com/courierhub/dispatch/pkg/courier"
	"github.com/google/uuid"
	"github.com/uptrace/opentelemetry-go-extra/otelzap"
	"go.uber.org/zap"
)

const providerName = "inhouse"

// Config holds private-driver configuration.
type Config struct {
	FlatFee         float64
	Currency        string
	PickupLeadTime  time.Duration // assumed time to reach pickup
	DropoffLeadTime time.Duration // assumed time per dropoff
}

// Client is the private-driver courier client.
type Client struct {
	config Config
	logger *otelzap.Logger
}

// New creates a new private-driver client.
func New(cfg Config, logger *otelzap.Logger) *Client {
	if cfg.Currency == "" {
		cfg.Currency = "GBP"
	}
	if cfg.PickupLeadTime == 0 {
		cfg.PickupLeadTime = 20 * time.Minute
	}
	if cfg.DropoffLeadTime == 0 {
		cfg.DropoffLeadTime = 30 * time.Minute
	}
	return &Client{config: cfg, logger: logger}
}

// Name returns the provider name.
func (c *Client) Name() string {
	return providerName
}

// Statuses returns an empty table: the private fleet emits no webhooks.
func (c *Client) Statuses() courier.StatusTable {
	return courier.StatusTable{}
}

// Quote returns the flat-fee quote. The private fleet never declines.
func (c *Client) Quote(ctx context.Context, req *courier.QuoteRequest) (*courier.Quote, error) {
	now := time.Now()
	return &courier.Quote{
		ID:         "inhouse-" + uuid.New().String()[:8],
		ProviderID: providerName,
		Price:      courier.Money{Amount: c.config.FlatFee, Currency: c.config.Currency},
		PickupETA:  now.Add(c.config.PickupLeadTime),
		DropoffETA: now.Add(c.config.PickupLeadTime + time.Duration(len(req.Spec.Dropoffs))*c.config.DropoffLeadTime),
		ExpiresAt:  now.Add(time.Hour),
	}, nil
}

// CreateJob accepts the job locally.
func (c *Client) CreateJob(ctx context.Context, req *courier.CreateJobRequest) (*courier.CreateJobResponse, error) {
	return c.accept(req)
}

// CreateMultiDropJob accepts the multi-drop job locally.
func (c *Client) CreateMultiDropJob(ctx context.Context, req *courier.CreateJobRequest) (*courier.CreateJobResponse, error) {
	return c.accept(req)
}

func (c *Client) accept(req *courier.CreateJobRequest) (*courier.CreateJobResponse, error) {
	jobID := "inh-" + uuid.New().String()[:12]
	c.logger.Info("Assigning job to private fleet",
		zap.String("job_id", jobID),
		zap.Int("dropoff_count", len(req.Spec.Dropoffs)),
	)

	resp := &courier.CreateJobResponse{
		ProviderJobID: jobID,
		Fee:           &courier.Money{Amount: c.config.FlatFee, Currency: c.config.Currency},
	}
	for i, d := range req.Spec.Dropoffs {
		resp.Deliveries = append(resp.Deliveries, courier.Delivery{
			ProviderDeliveryID: fmt.Sprintf("%s-d%d", jobID, i),
			Reference:          d.Reference,
			Window:             d.Window,
			Status:             courier.StatusPending,
		})
	}
	return resp, nil
}

// CancelJob cancels the local assignment.
func (c *Client) CancelJob(ctx context.Context, req *courier.CancelJobRequest) (*courier.CancelJobResponse, error) {
	return &courier.CancelJobResponse{
		ProviderJobID: req.ProviderJobID,
		Status:        courier.StatusCancelled,
	}, nil
}

// VerifyWebhook rejects all webhooks: the private fleet has no callback source.
func (c *Client) VerifyWebhook(w *courier.InboundWebhook) error {
	return courier.ErrWebhookAuth
}

// DecodeWebhook is unsupported for the private fleet.
func (c *Client) DecodeWebhook(w *courier.InboundWebhook) (*courier.WebhookEvent, error) {
	return nil, courier.NewError(providerName, courier.KindValidation, "UNSUPPORTED",
		"private fleet emits no webhooks")
}

var _ courier.MultiDropCourier = (*Client)(nil)
