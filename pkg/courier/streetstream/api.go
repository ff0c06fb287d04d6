package streetstream

import (
	"context"
	"fmt"
)

// APIClient defines the interface for Street Stream API operations.
type APIClient interface {
	// GetQuote fetches an optimised-route quote for a job
	GetQuote(ctx context.Context, req *QuoteRequest) (*QuoteResponse, error)

	// CreateJob books a courier job (point-to-point or multi-drop)
	CreateJob(ctx context.Context, req *JobRequest) (*JobResponse, error)

	// CancelJob cancels a booked job
	CancelJob(ctx context.Context, jobID string) (*CancelResponse, error)
}

// ============================================================================
// API Request/Response Types (match Street Stream REST API structure)
// ============================================================================

// QuoteRequest represents a Street Stream quote request.
// POST /api/estimate
type QuoteRequest struct {
	TransportType string      `json:"transportType"` // "BICYCLE", "MOTORBIKE", "CAR", "VAN"
	PickUp        StopPayload `json:"pickUp"`
	DropOffs      []StopPayload `json:"dropOffs"`
}

// StopPayload represents a pickup or dropoff stop.
type StopPayload struct {
	ContactName   string `json:"contactName,omitempty"`
	ContactNumber string `json:"contactNumber,omitempty"`
	AddressLine1  string `json:"addressLine1"`
	AddressLine2  string `json:"addressLine2,omitempty"`
	City          string `json:"city"`
	Postcode      string `json:"postcode"`
	Reference     string `json:"clientTag,omitempty"`
	DeliveryNotes string `json:"deliveryNotes,omitempty"`
	WindowStart   string `json:"timeWindowStart,omitempty"` // RFC3339
	WindowEnd     string `json:"timeWindowEnd,omitempty"`   // RFC3339
}

// QuoteResponse represents the Street Stream quote response.
type QuoteResponse struct {
	EstimateID     string  `json:"estimateId"`
	PriceExVAT     float64 `json:"netPrice"`
	PriceIncVAT    float64 `json:"grossPrice"`
	CurrencyCode   string  `json:"currencyCode"`
	PickupBy       string  `json:"estimatedPickupTime,omitempty"`   // RFC3339
	DeliveredBy    string  `json:"estimatedDeliveryTime,omitempty"` // RFC3339
	OfferValidUntil string `json:"offerValidUntil,omitempty"`       // RFC3339
}

// JobRequest represents a Street Stream booking request.
// POST /api/job/pointtopoint or /api/job/multidrop
type JobRequest struct {
	EstimateID    string        `json:"estimateId,omitempty"`
	TransportType string        `json:"transportType"`
	PickUp        StopPayload   `json:"pickUp"`
	DropOffs      []StopPayload `json:"dropOffs"`
	ClientTag     string        `json:"clientTag,omitempty"`
}

// JobResponse represents the Street Stream booking response.
type JobResponse struct {
	JobID        string           `json:"jobId"`
	Status       string           `json:"status"`
	PriceIncVAT  float64          `json:"grossPrice"`
	CurrencyCode string           `json:"currencyCode"`
	TrackingURL  string           `json:"trackingUrl,omitempty"`
	DropOffs     []DropOffResult  `json:"dropOffs,omitempty"`
}

// DropOffResult is one booked dropoff.
type DropOffResult struct {
	DropOffID   string `json:"dropOffId"`
	ClientTag   string `json:"clientTag,omitempty"`
	TrackingURL string `json:"trackingUrl,omitempty"`
	WindowStart string `json:"timeWindowStart,omitempty"`
	WindowEnd   string `json:"timeWindowEnd,omitempty"`
}

// CancelResponse represents the Street Stream cancellation response.
// DELETE /api/job/{id}
type CancelResponse struct {
	JobID  string `json:"jobId"`
	Status string `json:"status"`
}

// WebhookPayload is the payload Street Stream posts to the webhook
// endpoint. The shared secret travels inside the body. Street Stream
// reports job-level status changes only.
type WebhookPayload struct {
	APIKey       string `json:"apiKey"`
	JobID        string `json:"jobId"`
	ClientTag    string `json:"clientTag,omitempty"`
	JobStatus    string `json:"jobStatus"`
	CourierName  string `json:"courierName,omitempty"`
	CourierPhone string `json:"courierPhoneNumber,omitempty"`
	OccurredAt   string `json:"occurredAt,omitempty"` // RFC3339
}

// APIError represents an error from the Street Stream API.
type APIError struct {
	Code    string `json:"errorCode"`
	Message string `json:"errorMessage"`

	statusCode int
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}
