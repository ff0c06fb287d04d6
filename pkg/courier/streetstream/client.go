// Package streetstream provides integration with the Street Stream courier API.
package streetstream

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/courierhub/dispatch/pkg/courier"
	"github.com/uptrace/opentelemetry-go-extra/otelzap"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

const providerName = "streetstream"

// Config holds Street Stream configuration.
type Config struct {
	BaseURL       string
	Email         string
	Password      string
	WebhookSecret string // shared secret carried in the webhook body
	UseMock       bool
}

// Client is the Street Stream courier client.
type Client struct {
	config    Config
	apiClient APIClient
	logger    *otelzap.Logger
	tracer    trace.Tracer
}

// New creates a new Street Stream client. The doer should be the session
// manager's per-provider client holding the login session token.
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

// NewWithAPIClient creates a new Street Stream client with a custom API client.
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

// Statuses returns Street Stream's status mapping table.
func (c *Client) Statuses() courier.StatusTable {
	return statusTable
}

// Quote returns a quote from Street Stream.
func (c *Client) Quote(ctx context.Context, req *courier.QuoteRequest) (*courier.Quote, error) {
	c.logger.Info("Getting Street Stream quote",
		zap.String("pickup_postcode", req.Spec.Pickup.PostalCode),
		zap.Int("dropoff_count", len(req.Spec.Dropoffs)),
	)

	apiReq := &QuoteRequest{
		TransportType: vehicleToAPI(req.Spec.Vehicle),
		PickUp:        locationToStop(req.Spec.Pickup, req.Spec.PickupWindow, ""),
	}
	for _, d := range req.Spec.Dropoffs {
		apiReq.DropOffs = append(apiReq.DropOffs, locationToStop(d.Location, d.Window, d.Reference))
	}

	apiResp, err := c.apiClient.GetQuote(ctx, apiReq)
	if err != nil {
		c.logger.Error("Street Stream API error", zap.Error(err))
		return nil, c.translateError(err)
	}

	return quoteToCanonical(apiResp), nil
}

// CreateJob books a point-to-point job with Street Stream.
func (c *Client) CreateJob(ctx context.Context, req *courier.CreateJobRequest) (*courier.CreateJobResponse, error) {
	return c.createJob(ctx, req)
}

// CreateMultiDropJob books a multi-drop job with Street Stream.
func (c *Client) CreateMultiDropJob(ctx context.Context, req *courier.CreateJobRequest) (*courier.CreateJobResponse, error) {
	return c.createJob(ctx, req)
}

func (c *Client) createJob(ctx context.Context, req *courier.CreateJobRequest) (*courier.CreateJobResponse, error) {
	c.logger.Info("Creating Street Stream job",
		zap.String("estimate_id", req.QuoteID),
		zap.Int("dropoff_count", len(req.Spec.Dropoffs)),
	)

	apiReq := &JobRequest{
		EstimateID:    req.QuoteID,
		TransportType: vehicleToAPI(req.Spec.Vehicle),
		PickUp:        locationToStop(req.Spec.Pickup, req.Spec.PickupWindow, ""),
		ClientTag:     req.Reference,
	}
	for _, d := range req.Spec.Dropoffs {
		apiReq.DropOffs = append(apiReq.DropOffs, locationToStop(d.Location, d.Window, d.Reference))
	}

	apiResp, err := c.apiClient.CreateJob(ctx, apiReq)
	if err != nil {
		c.logger.Error("Street Stream API error", zap.Error(err))
		return nil, c.translateError(err)
	}

	return jobToCanonical(apiResp), nil
}

// CancelJob cancels a job with Street Stream.
func (c *Client) CancelJob(ctx context.Context, req *courier.CancelJobRequest) (*courier.CancelJobResponse, error) {
	c.logger.Info("Cancelling Street Stream job", zap.String("job_id", req.ProviderJobID))

	apiResp, err := c.apiClient.CancelJob(ctx, req.ProviderJobID)
	if err != nil {
		c.logger.Error("Street Stream API error", zap.Error(err))
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
// Conversion helpers
// ============================================================================

func vehicleToAPI(v courier.VehicleType) string {
	switch v {
	case courier.VehicleBike:
		return "BICYCLE"
	case courier.VehicleMotorbike:
		return "MOTORBIKE"
	case courier.VehicleVan:
		return "VAN"
	default:
		return "CAR"
	}
}

func locationToStop(loc courier.Location, window courier.TimeWindow, reference string) StopPayload {
	stop := StopPayload{
		ContactName:   loc.Name,
		ContactNumber: loc.Phone,
		AddressLine1:  loc.Line1,
		AddressLine2:  loc.Line2,
		City:          loc.City,
		Postcode:      loc.PostalCode,
		Reference:     reference,
		DeliveryNotes: loc.Instructions,
	}
	if !window.Start.IsZero() {
		stop.WindowStart = window.Start.Format(time.RFC3339)
	}
	if !window.End.IsZero() {
		stop.WindowEnd = window.End.Format(time.RFC3339)
	}
	return stop
}

func quoteToCanonical(resp *QuoteResponse) *courier.Quote {
	quote := &courier.Quote{
		ID:         resp.EstimateID,
		ProviderID: providerName,
		Price:      courier.Money{Amount: resp.PriceIncVAT, Currency: resp.CurrencyCode},
	}
	if t, err := time.Parse(time.RFC3339, resp.PickupBy); err == nil {
		quote.PickupETA = t
	}
	if t, err := time.Parse(time.RFC3339, resp.DeliveredBy); err == nil {
		quote.DropoffETA = t
	}
	if t, err := time.Parse(time.RFC3339, resp.OfferValidUntil); err == nil {
		quote.ExpiresAt = t
	}
	return quote
}

func jobToCanonical(resp *JobResponse) *courier.CreateJobResponse {
	status := courier.StatusPending
	if m, ok := statusTable.Map(courier.LevelJob, resp.Status); ok {
		status = m.Canonical
	}

	out := &courier.CreateJobResponse{
		ProviderJobID: resp.JobID,
		Fee:           &courier.Money{Amount: resp.PriceIncVAT, Currency: resp.CurrencyCode},
		TrackingURL:   resp.TrackingURL,
	}
	for _, d := range resp.DropOffs {
		delivery := courier.Delivery{
			ProviderDeliveryID: d.DropOffID,
			Reference:          d.ClientTag,
			TrackingURL:        d.TrackingURL,
			Status:             status,
		}
		if t, err := time.Parse(time.RFC3339, d.WindowStart); err == nil {
			delivery.Window.Start = t
		}
		if t, err := time.Parse(time.RFC3339, d.WindowEnd); err == nil {
			delivery.Window.End = t
		}
		out.Deliveries = append(out.Deliveries, delivery)
	}
	return out
}

// translateError maps Street Stream API failures into the fixed error taxonomy.
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
	case strings.HasPrefix(apiErr.Code, "OUT_OF_"), apiErr.Code == "NO_COURIERS_AVAILABLE":
		kind = courier.KindSoftDecline
	case apiErr.Code == "VALIDATION_FAILED", apiErr.statusCode == http.StatusBadRequest:
		kind = courier.KindValidation
	case apiErr.statusCode == http.StatusUnauthorized, apiErr.statusCode == http.StatusForbidden:
		kind = courier.KindAuth
	case apiErr.statusCode >= http.StatusInternalServerError:
		kind = courier.KindTransient
	}

	return courier.NewError(providerName, kind, apiErr.Code, apiErr.Message).
		WithStatusCode(apiErr.statusCode).
		WithCause(err)
}

var _ courier.MultiDropCourier = (*Client)(nil)
