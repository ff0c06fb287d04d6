package gophr

import (
	"context"
	"fmt"
)

// APIClient defines the interface for Gophr API operations.
type APIClient interface {
	// GetQuote fetches a delivery quote
	GetQuote(ctx context.Context, req *QuoteRequest) (*QuoteResponse, error)

	// CreateJob books a delivery job
	CreateJob(ctx context.Context, req *JobRequest) (*JobResponse, error)

	// CancelJob cancels a booked job
	CancelJob(ctx context.Context, jobID string) (*CancelResponse, error)
}

// ============================================================================
// API Request/Response Types (match Gophr REST API v1 structure)
// ============================================================================

// QuoteRequest represents a Gophr quote request.
// POST /v1/commercial-api/get-a-quote
type QuoteRequest struct {
	PickupAddress   AddressPayload `json:"pickup_address"`
	DeliveryAddress AddressPayload `json:"delivery_address"`
	SizeX           float64        `json:"size_x,omitempty"`
	SizeY           float64        `json:"size_y,omitempty"`
	SizeZ           float64        `json:"size_z,omitempty"`
	WeightKG        float64        `json:"weight,omitempty"`
	VehicleType     int            `json:"vehicle_type,omitempty"` // 10=bike 20=motorbike 30=car 40=van
	EarliestPickup  string         `json:"earliest_pickup_time,omitempty"` // RFC3339
}

// AddressPayload represents a pickup or delivery address.
type AddressPayload struct {
	AddressLine1 string `json:"address_line_1"`
	AddressLine2 string `json:"address_line_2,omitempty"`
	City         string `json:"city"`
	Postcode     string `json:"postcode"`
	CountryCode  string `json:"country_code"`
	PersonName   string `json:"person_name,omitempty"`
	CompanyName  string `json:"company_name,omitempty"`
	PhoneNumber  string `json:"phone_number,omitempty"`
	Email        string `json:"email,omitempty"`
	Instructions string `json:"delivery_instructions,omitempty"`
}

// QuoteResponse represents the Gophr quote response.
type QuoteResponse struct {
	Success bool      `json:"success"`
	Data    QuoteData `json:"data"`
	Error   *APIError `json:"error,omitempty"`
}

// QuoteData is the quote body.
type QuoteData struct {
	QuoteID          string  `json:"quote_id"`
	PriceNet         float64 `json:"price_net"`
	PriceGross       float64 `json:"price_gross"`
	Currency         string  `json:"currency"`
	PickupEta        string  `json:"pickup_eta"`   // RFC3339
	DeliveryEta      string  `json:"delivery_eta"` // RFC3339
	QuoteExpiresAt   string  `json:"quote_expires_at"`
	MinRequiredAge   int     `json:"min_required_age,omitempty"`
}

// JobRequest represents a Gophr booking request.
// POST /v1/commercial-api/create-confirm-job
type JobRequest struct {
	QuoteID           string         `json:"quote_id,omitempty"`
	PickupAddress     AddressPayload `json:"pickup_address"`
	DeliveryAddress   AddressPayload `json:"delivery_address"`
	ExternalReference string         `json:"external_id,omitempty"`
	WeightKG          float64        `json:"weight,omitempty"`
	VehicleType       int            `json:"vehicle_type,omitempty"`
}

// JobResponse represents the Gophr booking response.
type JobResponse struct {
	Success bool      `json:"success"`
	Data    JobData   `json:"data"`
	Error   *APIError `json:"error,omitempty"`
}

// JobData is the booking body.
type JobData struct {
	JobID          string  `json:"job_id"`
	Status         string  `json:"status"`
	PriceGross     float64 `json:"price_gross"`
	Currency       string  `json:"currency"`
	TrackingURL    string  `json:"public_tracker_url"`
	PickupEta      string  `json:"pickup_eta,omitempty"`
	DeliveryEta    string  `json:"delivery_eta,omitempty"`
}

// CancelResponse represents the Gophr cancellation response.
// POST /v1/commercial-api/cancel-job
type CancelResponse struct {
	Success bool      `json:"success"`
	Error   *APIError `json:"error,omitempty"`
}

// WebhookPayload is the flat payload Gophr posts to the webhook endpoint.
// Gophr only reports job-level status changes.
type WebhookPayload struct {
	JobID       string `json:"job_id"`
	ExternalID  string `json:"external_id,omitempty"`
	Status      string `json:"status"`
	CourierName string `json:"courier_name,omitempty"`
	CourierPhone string `json:"courier_phone,omitempty"`
	TrackingURL string `json:"public_tracker_url,omitempty"`
	UpdatedAt   string `json:"updated_at,omitempty"` // RFC3339
}

// APIError represents an error from the Gophr API.
type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`

	statusCode int
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}
