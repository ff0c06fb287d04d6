// Package gophr provides integration with the Gophr same-day courier API.
package gophr

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/courierhub/dispatch/pkg/courier"
	"github.com/uptrace/opentelemetry-go-extra/otelzap"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

const providerName = "gophr"

// Config holds Gophr configuration.
type Config struct {
	APIKey        string
	BaseURL       string
	WebhookSecret string // shared secret carried in the "key" query parameter
	UseMock       bool
}

// Client is the Gophr courier client. Gophr is single-drop only: multi-drop
// jobs are split upstream by the dispatcher's batch policy.
type Client struct {
	config    Config
	apiClient APIClient
	logger    *otelzap.Logger
	tracer    trace.Tracer
}

// New creates a new Gophr client.
func New(cfg Config, logger *otelzap.Logger, tracer trace.Tracer) *Client {
	var apiClient APIClient

	if cfg.UseMock {
		apiClient = NewMockAPIClient()
	} else {
		apiClient = NewHTTPAPIClient(HTTPAPIClientConfig{
			BaseURL: cfg.BaseURL,
			APIKey:  cfg.APIKey,
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

// NewWithAPIClient creates a new Gophr client with a custom API client.
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

// Statuses returns Gophr's status mapping table.
func (c *Client) Statuses() courier.StatusTable {
	return statusTable
}

// Quote returns a quote from Gophr.
func (c *Client) Quote(ctx context.Context, req *courier.QuoteRequest) (*courier.Quote, error) {
	c.logger.Info("Getting Gophr quote",
		zap.String("pickup_postcode", req.Spec.Pickup.PostalCode),
		zap.Int("dropoff_count", len(req.Spec.Dropoffs)),
	)

	if len(req.Spec.Dropoffs) != 1 {
		return nil, courier.NewError(providerName, courier.KindSoftDecline, "MULTI_DROP_UNSUPPORTED",
			"gophr quotes a single dropoff per job")
	}
	dropoff := req.Spec.Dropoffs[0]

	apiReq := &QuoteRequest{
		PickupAddress:   locationToAddress(req.Spec.Pickup),
		DeliveryAddress: locationToAddress(dropoff.Location),
		WeightKG:        dropoff.Parcel.WeightKG,
		VehicleType:     vehicleToAPI(req.Spec.Vehicle),
	}
	if !req.Spec.PickupWindow.Start.IsZero() {
		apiReq.EarliestPickup = req.Spec.PickupWindow.Start.Format(time.RFC3339)
	}

	apiResp, err := c.apiClient.GetQuote(ctx, apiReq)
	if err != nil {
		c.logger.Error("Gophr API error", zap.Error(err))
		return nil, c.translateError(err)
	}

	return quoteDataToCanonical(&apiResp.Data), nil
}

// CreateJob books a delivery with Gophr.
func (c *Client) CreateJob(ctx context.Context, req *courier.CreateJobRequest) (*courier.CreateJobResponse, error) {
	c.logger.Info("Creating Gophr job",
		zap.String("quote_id", req.QuoteID),
		zap.String("reference", req.Reference),
	)

	if len(req.Spec.Dropoffs) != 1 {
		return nil, courier.NewError(providerName, courier.KindValidation, "MULTI_DROP_UNSUPPORTED",
			"gophr accepts a single dropoff per job")
	}
	dropoff := req.Spec.Dropoffs[0]

	apiReq := &JobRequest{
		QuoteID:           req.QuoteID,
		PickupAddress:     locationToAddress(req.Spec.Pickup),
		DeliveryAddress:   locationToAddress(dropoff.Location),
		ExternalReference: req.Reference,
		WeightKG:          dropoff.Parcel.WeightKG,
		VehicleType:       vehicleToAPI(req.Spec.Vehicle),
	}

	apiResp, err := c.apiClient.CreateJob(ctx, apiReq)
	if err != nil {
		c.logger.Error("Gophr API error", zap.Error(err))
		return nil, c.translateError(err)
	}

	return jobDataToCanonical(&apiResp.Data, dropoff), nil
}

// CancelJob cancels a delivery with Gophr.
func (c *Client) CancelJob(ctx context.Context, req *courier.CancelJobRequest) (*courier.CancelJobResponse, error) {
	c.logger.Info("Cancelling Gophr job", zap.String("job_id", req.ProviderJobID))

	if _, err := c.apiClient.CancelJob(ctx, req.ProviderJobID); err != nil {
		c.logger.Error("Gophr API error", zap.Error(err))
		return nil, c.translateError(err)
	}

	return &courier.CancelJobResponse{
		ProviderJobID: req.ProviderJobID,
		Status:        courier.StatusCancelled,
	}, nil
}

// ============================================================================
// Conversion helpers
// ============================================================================

func locationToAddress(loc courier.Location) AddressPayload {
	return AddressPayload{
		AddressLine1: loc.Line1,
		AddressLine2: loc.Line2,
		City:         loc.City,
		Postcode:     loc.PostalCode,
		CountryCode:  loc.CountryCode,
		PersonName:   loc.Name,
		CompanyName:  loc.Company,
		PhoneNumber:  loc.Phone,
		Email:        loc.Email,
		Instructions: loc.Instructions,
	}
}

func vehicleToAPI(v courier.VehicleType) int {
	switch v {
	case courier.VehicleBike:
		return 10
	case courier.VehicleMotorbike:
		return 20
	case courier.VehicleCar:
		return 30
	case courier.VehicleVan:
		return 40
	default:
		return 0
	}
}

func quoteDataToCanonical(data *QuoteData) *courier.Quote {
	quote := &courier.Quote{
		ID:         data.QuoteID,
		ProviderID: providerName,
		Price:      courier.Money{Amount: data.PriceGross, Currency: data.Currency},
	}
	if t, err := time.Parse(time.RFC3339, data.PickupEta); err == nil {
		quote.PickupETA = t
	}
	if t, err := time.Parse(time.RFC3339, data.DeliveryEta); err == nil {
		quote.DropoffETA = t
	}
	if t, err := time.Parse(time.RFC3339, data.QuoteExpiresAt); err == nil {
		quote.ExpiresAt = t
	}
	return quote
}

func jobDataToCanonical(data *JobData, dropoff courier.DropoffSpec) *courier.CreateJobResponse {
	status := courier.StatusPending
	if m, ok := statusTable.Map(courier.LevelJob, data.Status); ok {
		status = m.Canonical
	}

	delivery := courier.Delivery{
		ProviderDeliveryID: data.JobID, // Gophr has no separate delivery id
		Reference:          dropoff.Reference,
		Window:             dropoff.Window,
		TrackingURL:        data.TrackingURL,
		Status:             status,
	}
	if t, err := time.Parse(time.RFC3339, data.DeliveryEta); err == nil {
		delivery.Window.End = t
	}

	return &courier.CreateJobResponse{
		ProviderJobID: data.JobID,
		Deliveries:    []courier.Delivery{delivery},
		Fee:           &courier.Money{Amount: data.PriceGross, Currency: data.Currency},
		TrackingURL:   data.TrackingURL,
	}
}

// translateError maps Gophr API failures into the fixed error taxonomy.
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
	case apiErr.Code == "DISTANCE_TOO_LARGE", apiErr.Code == "OUTSIDE_OPERATING_HOURS", apiErr.Code == "NO_COVERAGE":
		kind = courier.KindSoftDecline
	case apiErr.Code == "INVALID_ADDRESS", apiErr.Code == "INVALID_PHONE", apiErr.statusCode == http.StatusBadRequest:
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

var _ courier.Courier = (*Client)(nil)
