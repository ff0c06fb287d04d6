// Package stuart provides integration with the Stuart on-demand courier API.
package stuart

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/courierhub/dispatch/pkg/courier"
	"github.com/uptrace/opentelemetry-go-extra/otelzap"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

const providerName = "stuart"

// Config holds Stuart configuration.
type Config struct {
	BaseURL       string
	ClientID      string
	ClientSecret  string
	WebhookSecret string // shared secret carried in the X-Webhook-Token header
	UseMock       bool   // when true, uses a mock API client
}

// Client is the Stuart courier client.
// It implements the courier.Courier interface and delegates API calls to
// the underlying APIClient (mock or HTTP).
type Client struct {
	config    Config
	apiClient APIClient
	logger    *otelzap.Logger
	tracer    trace.Tracer
}

// New creates a new Stuart client. The doer should be the session manager's
// per-provider client so OAuth2 bearer handling stays outside the adapter.
func New(cfg Config, doer courier.Doer, logger *otelzap.Logger, tracer trace.Tracer) *Client {
	var apiClient APIClient

	if cfg.UseMock {
		apiClient = NewMockAPIClient()
	} else {
		apiClient = NewHTTPAPIClient(HTTPAPIClientConfig{
			BaseURL: cfg.BaseURL,
			Doer:    doer,
			Timeout: 15 * time.Second,
		})
	}

	return &Client{
		config:    cfg,
		apiClient: apiClient,
		logger:    logger,
		tracer:    tracer,
	}
}

// NewWithAPIClient creates a new Stuart client with a custom API client.
// This is useful for injecting mock clients in tests.
func NewWithAPIClient(cfg Config, apiClient APIClient, logger *otelzap.Logger, tracer trace.Tracer) *Client {
	return &Client{
		config:    cfg,
		apiClient: apiClient,
		logger:    logger,
		tracer:    tracer,
	}
}

// Name returns the provider name.
func (c *Client) Name() string {
	return providerName
}

// Statuses returns Stuart's status mapping table.
func (c *Client) Statuses() courier.StatusTable {
	return statusTable
}

// Quote returns a price/ETA quote from Stuart.
func (c *Client) Quote(ctx context.Context, req *courier.QuoteRequest) (*courier.Quote, error) {
	c.logger.Info("Getting Stuart quote",
		zap.String("pickup_city", req.Spec.Pickup.City),
		zap.Int("dropoff_count", len(req.Spec.Dropoffs)),
	)

	apiReq := &PricingRequest{Job: specToPayload(req.Spec)}

	apiResp, err := c.apiClient.GetPricing(ctx, apiReq)
	if err != nil {
		c.logger.Error("Stuart API error", zap.Error(err))
		return nil, c.translateError(err)
	}

	return pricingToQuote(apiResp), nil
}

// CreateJob submits a single-drop job to Stuart.
func (c *Client) CreateJob(ctx context.Context, req *courier.CreateJobRequest) (*courier.CreateJobResponse, error) {
	return c.createJob(ctx, req)
}

// CreateMultiDropJob submits a multi-drop job to Stuart. Stuart accepts any
// number of dropoffs on the same payload shape.
func (c *Client) CreateMultiDropJob(ctx context.Context, req *courier.CreateJobRequest) (*courier.CreateJobResponse, error) {
	return c.createJob(ctx, req)
}

func (c *Client) createJob(ctx context.Context, req *courier.CreateJobRequest) (*courier.CreateJobResponse, error) {
	c.logger.Info("Creating Stuart job",
		zap.String("reference", req.Reference),
		zap.Int("dropoff_count", len(req.Spec.Dropoffs)),
	)

	payload := specToPayload(req.Spec)
	payload.AssignmentCode = req.Reference

	apiResp, err := c.apiClient.CreateJob(ctx, &JobRequest{Job: payload})
	if err != nil {
		c.logger.Error("Stuart API error", zap.Error(err))
		return nil, c.translateError(err)
	}

	return jobResponseToCanonical(apiResp), nil
}

// CancelJob cancels a job with Stuart.
func (c *Client) CancelJob(ctx context.Context, req *courier.CancelJobRequest) (*courier.CancelJobResponse, error) {
	c.logger.Info("Cancelling Stuart job",
		zap.String("job_id", req.ProviderJobID),
		zap.String("reason", req.Reason),
	)

	apiResp, err := c.apiClient.CancelJob(ctx, req.ProviderJobID, req.Reason)
	if err != nil {
		c.logger.Error("Stuart API error", zap.Error(err))
		return nil, c.translateError(err)
	}

	status := courier.StatusCancelled
	if m, ok := statusTable.Map(courier.LevelJob, apiResp.Status); ok {
		status = m.Canonical
	}
	return &courier.CancelJobResponse{
		ProviderJobID: req.ProviderJobID,
		Status:        status,
	}, nil
}

// ============================================================================
// Conversion helpers: canonical models -> API models
// ============================================================================

func specToPayload(spec courier.JobSpec) JobPayload {
	payload := JobPayload{
		TransportType: string(spec.Vehicle),
		Pickups: []Pickup{
			{
				Address: formatAddress(spec.Pickup),
				Comment: spec.Pickup.Instructions,
				Contact: locationContact(spec.Pickup),
			},
		},
	}
	if !spec.PickupWindow.Start.IsZero() {
		payload.PickupAt = spec.PickupWindow.Start.Format(time.RFC3339)
	}

	for _, d := range spec.Dropoffs {
		dropoff := Dropoff{
			Address:            formatAddress(d.Location),
			Comment:            d.Location.Instructions,
			PackageDescription: d.Parcel.Description,
			ClientReference:    d.Reference,
			Contact:            locationContact(d.Location),
		}
		if !d.Window.Start.IsZero() {
			dropoff.EndCustomerTimeWindowStart = d.Window.Start.Format(time.RFC3339)
		}
		if !d.Window.End.IsZero() {
			dropoff.EndCustomerTimeWindowEnd = d.Window.End.Format(time.RFC3339)
		}
		payload.Dropoffs = append(payload.Dropoffs, dropoff)
	}
	return payload
}

func formatAddress(loc courier.Location) string {
	parts := make([]string, 0, 4)
	for _, p := range []string{loc.Line1, loc.Line2, loc.City, loc.PostalCode} {
		if p != "" {
			parts = append(parts, p)
		}
	}
	return strings.Join(parts, ", ")
}

func locationContact(loc courier.Location) *Contact {
	if loc.Name == "" && loc.Phone == "" {
		return nil
	}
	return &Contact{
		FirstName: loc.Name,
		Company:   loc.Company,
		Phone:     loc.Phone,
		Email:     loc.Email,
	}
}

// ============================================================================
// Conversion helpers: API models -> canonical models
// ============================================================================

func pricingToQuote(resp *PricingResponse) *courier.Quote {
	quote := &courier.Quote{
		ID:         fmt.Sprintf("%s-%d", providerName, time.Now().UnixNano()),
		ProviderID: providerName,
		Price:      courier.Money{Amount: resp.Amount, Currency: resp.Currency},
	}
	if t, err := time.Parse(time.RFC3339, resp.PickupAt); err == nil {
		quote.PickupETA = t
	}
	if t, err := time.Parse(time.RFC3339, resp.DropoffAt); err == nil {
		quote.DropoffETA = t
	}
	if t, err := time.Parse(time.RFC3339, resp.ExpiresAt); err == nil {
		quote.ExpiresAt = t
	}
	return quote
}

func jobResponseToCanonical(resp *JobResponse) *courier.CreateJobResponse {
	out := &courier.CreateJobResponse{
		ProviderJobID: strconv.FormatInt(resp.ID, 10),
		Fee:           &courier.Money{Amount: resp.PriceTaxIncluded, Currency: resp.Currency},
	}
	for _, d := range resp.Deliveries {
		status := courier.StatusPending
		if m, ok := statusTable.Map(courier.LevelDelivery, d.Status); ok {
			status = m.Canonical
		}
		delivery := courier.Delivery{
			ProviderDeliveryID: strconv.FormatInt(d.ID, 10),
			Reference:          d.ClientReference,
			TrackingURL:        d.TrackingURL,
			Status:             status,
		}
		if t, err := time.Parse(time.RFC3339, d.EtaToDestination); err == nil {
			delivery.Window.End = t
		}
		out.Deliveries = append(out.Deliveries, delivery)
		if out.TrackingURL == "" {
			out.TrackingURL = d.TrackingURL
		}
	}
	return out
}

// translateError maps Stuart API failures into the fixed error taxonomy.
func (c *Client) translateError(err error) error {
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		if errors.Is(err, context.DeadlineExceeded) {
			return courier.NewError(providerName, courier.KindTransient, "TIMEOUT", "request timed out").WithCause(err)
		}
		return courier.NewError(providerName, courier.KindTransient, "UNREACHABLE", "provider unreachable").WithCause(err)
	}

	kind := courier.KindRejected
	switch {
	case apiErr.ErrorCode == "OUT_OF_RANGE", apiErr.ErrorCode == "JOB_DISTANCE_NOT_ALLOWED":
		kind = courier.KindSoftDecline
	case apiErr.ErrorCode == "OUT_OF_BUSINESS_HOURS":
		kind = courier.KindSoftDecline
	case apiErr.ErrorCode == "RECORD_INVALID", apiErr.statusCode == http.StatusUnprocessableEntity:
		kind = courier.KindValidation
	case apiErr.statusCode == http.StatusUnauthorized, apiErr.statusCode == http.StatusForbidden:
		kind = courier.KindAuth
	case apiErr.statusCode >= http.StatusInternalServerError:
		kind = courier.KindTransient
	}

	return courier.NewError(providerName, kind, apiErr.ErrorCode, apiErr.Message).
		WithStatusCode(apiErr.statusCode).
		WithCause(err)
}

var _ courier.MultiDropCourier = (*Client)(nil)
