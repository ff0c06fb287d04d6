package stuart

import (
	"context"
	"fmt"
)

// APIClient defines the interface for Stuart API operations.
// This abstraction allows for mock implementations during testing
// and real implementations in production.
type APIClient interface {
	// GetPricing fetches a price/ETA quote for a job
	GetPricing(ctx context.Context, req *PricingRequest) (*PricingResponse, error)

	// CreateJob submits a new job (single or multi-drop)
	CreateJob(ctx context.Context, req *JobRequest) (*JobResponse, error)

	// CancelJob cancels an existing job
	CancelJob(ctx context.Context, jobID string, reason string) (*CancelResponse, error)
}

// ============================================================================
// API Request/Response Types (match Stuart REST API v2 structure)
// ============================================================================

// PricingRequest represents a Stuart pricing request.
// POST /v2/jobs/pricing
type PricingRequest struct {
	Job JobPayload `json:"job"`
}

// JobRequest represents a Stuart job creation request.
// POST /v2/jobs
type JobRequest struct {
	Job JobPayload `json:"job"`
}

// JobPayload is the job description shared by pricing and creation calls.
type JobPayload struct {
	AssignmentCode string    `json:"assignment_code,omitempty"`
	TransportType  string    `json:"transport_type,omitempty"` // "bike", "motorbike", "car", "van"
	PickupAt       string    `json:"pickup_at,omitempty"`      // RFC3339
	Pickups        []Pickup  `json:"pickups"`
	Dropoffs       []Dropoff `json:"dropoffs"`
}

// Pickup represents the job pickup point.
type Pickup struct {
	Address string   `json:"address"`
	Comment string   `json:"comment,omitempty"`
	Contact *Contact `json:"contact,omitempty"`
}

// Dropoff represents one job dropoff point.
type Dropoff struct {
	Address           string   `json:"address"`
	Comment           string   `json:"comment,omitempty"`
	PackageType       string   `json:"package_type,omitempty"`
	PackageDescription string  `json:"package_description,omitempty"`
	ClientReference   string   `json:"client_reference,omitempty"`
	Contact           *Contact `json:"contact,omitempty"`
	EndCustomerTimeWindowStart string `json:"end_customer_time_window_start,omitempty"`
	EndCustomerTimeWindowEnd   string `json:"end_customer_time_window_end,omitempty"`
}

// Contact represents pickup/dropoff contact info.
type Contact struct {
	FirstName string `json:"firstname,omitempty"`
	LastName  string `json:"lastname,omitempty"`
	Company   string `json:"company,omitempty"`
	Phone     string `json:"phone,omitempty"`
	Email     string `json:"email,omitempty"`
}

// PricingResponse represents the Stuart pricing response.
type PricingResponse struct {
	Amount    float64 `json:"amount"`
	Currency  string  `json:"currency"`
	PickupAt  string  `json:"pickup_at,omitempty"`  // RFC3339
	DropoffAt string  `json:"dropoff_at,omitempty"` // RFC3339
	ExpiresAt string  `json:"expires_at,omitempty"` // RFC3339
}

// JobResponse represents the Stuart job creation response.
// POST /v2/jobs
type JobResponse struct {
	ID            int64              `json:"id"`
	Status        string             `json:"status"`
	TransportType string             `json:"transport_type,omitempty"`
	PriceTaxIncluded float64         `json:"price_tax_included"`
	Currency      string             `json:"currency"`
	Deliveries    []DeliveryResponse `json:"deliveries"`
}

// DeliveryResponse is one delivery of a created job.
type DeliveryResponse struct {
	ID              int64  `json:"id"`
	Status          string `json:"status"`
	ClientReference string `json:"client_reference,omitempty"`
	TrackingURL     string `json:"tracking_url,omitempty"`
	EtaToDestination string `json:"eta_to_destination,omitempty"` // RFC3339
}

// CancelResponse represents the Stuart cancellation response.
// POST /v2/jobs/{id}/cancel
type CancelResponse struct {
	ID     int64  `json:"id"`
	Status string `json:"status"`
}

// WebhookEnvelope is the payload Stuart delivers to the webhook endpoint.
// The event field distinguishes job-level from delivery-level updates.
type WebhookEnvelope struct {
	Event string      `json:"event"` // "job" or "delivery"
	Type  string      `json:"type"`  // "create" or "update"
	Data  WebhookData `json:"data"`
}

// WebhookData carries the identifiers and status of one event.
type WebhookData struct {
	ID            int64          `json:"id"`
	JobID         int64          `json:"job_id,omitempty"` // set on delivery-level events
	Status        string         `json:"status"`
	TrackingURL   string         `json:"tracking_url,omitempty"`
	UpdatedAt     string         `json:"updated_at,omitempty"` // RFC3339
	Driver        *WebhookDriver `json:"driver,omitempty"`
}

// WebhookDriver is the courier driver block of an event.
type WebhookDriver struct {
	DisplayName   string `json:"display_name"`
	Phone         string `json:"phone,omitempty"`
	TransportType string `json:"transport_type,omitempty"`
}

// APIError represents an error from the Stuart API.
type APIError struct {
	ErrorCode string            `json:"error"`
	Message   string            `json:"message"`
	Data      map[string]string `json:"data,omitempty"` // field-level errors

	statusCode int
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s: %s", e.ErrorCode, e.Message)
}

// StatusCode returns the HTTP status the error arrived with, 0 when unknown.
func (e *APIError) StatusCode() int {
	return e.statusCode
}
