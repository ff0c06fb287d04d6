package courier

import (
	"net/http"
	"net/url"
	"time"
)

// JobStatus represents the canonical lifecycle status of a job, independent
// of any provider's vocabulary.
type JobStatus string

const (
	StatusNew         JobStatus = "NEW"
	StatusPending     JobStatus = "PENDING"
	StatusDispatching JobStatus = "DISPATCHING"
	StatusEnRoute     JobStatus = "EN_ROUTE"
	StatusCompleted   JobStatus = "COMPLETED"
	StatusCancelled   JobStatus = "CANCELLED"
	StatusExpired     JobStatus = "EXPIRED"
)

// Terminal reports whether the status is absorbing: no further transitions
// are applied once a job reaches it.
func (s JobStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusCancelled
}

// EcommerceStatus is the translated status forwarded to a linked
// e-commerce order.
type EcommerceStatus string

const (
	EcommerceAwaitingShipment EcommerceStatus = "AWAITING_SHIPMENT"
	EcommerceShipped          EcommerceStatus = "SHIPPED"
	EcommerceCompleted        EcommerceStatus = "COMPLETED"
	EcommerceCancelled        EcommerceStatus = "CANCELLED"
)

// VehicleType represents the vehicle class requested for a job.
type VehicleType string

const (
	VehicleBike      VehicleType = "bike"
	VehicleMotorbike VehicleType = "motorbike"
	VehicleCar       VehicleType = "car"
	VehicleVan       VehicleType = "van"
)

// Money represents a monetary amount.
type Money struct {
	Amount   float64
	Currency string
}

// Location represents a pickup or dropoff address.
type Location struct {
	Name         string
	Company      string
	Line1        string
	Line2        string
	City         string
	PostalCode   string
	CountryCode  string // ISO 3166-1 alpha-2
	Phone        string
	Email        string
	Instructions string
	Latitude     float64
	Longitude    float64
}

// TimeWindow represents a pickup or dropoff time window.
type TimeWindow struct {
	Start time.Time
	End   time.Time
}

// Parcel describes what is being carried on one dropoff.
type Parcel struct {
	Description   string
	WeightKG      float64
	DeclaredValue Money
}

// DropoffSpec is one dropoff of a job.
type DropoffSpec struct {
	Location  Location
	Window    TimeWindow
	Parcel    Parcel
	Reference string // client reference, carried to the provider
}

// JobSpec is the canonical delivery request: one pickup, one or more dropoffs.
type JobSpec struct {
	Pickup       Location
	PickupWindow TimeWindow
	Dropoffs     []DropoffSpec
	Vehicle      VehicleType
}

// Quote is a normalized price/ETA offer from one provider for one request.
// Quotes are never mutated after creation.
type Quote struct {
	ID         string
	ProviderID string
	Price      Money
	PickupETA  time.Time
	DropoffETA time.Time
	ExpiresAt  time.Time
}

// Driver holds courier driver details reported by the provider.
type Driver struct {
	Name    string
	Phone   string
	Vehicle VehicleType
}

// Delivery is one dropoff of a dispatched job, carrying the
// provider-assigned identifiers. Owned exclusively by its Job.
type Delivery struct {
	ProviderDeliveryID string
	Reference          string
	Window             TimeWindow
	TrackingURL        string
	Status             JobStatus
}

// TrackingEntry is one accepted status transition in a job's history.
type TrackingEntry struct {
	Timestamp time.Time
	Status    JobStatus
	Source    string // originating event, e.g. "stuart:delivery.update"
}

// SelectedConfig records the winning provider assignment of a job,
// including the full quote list for historical record.
type SelectedConfig struct {
	ProviderID  string
	QuoteID     string
	DeliveryFee *Money // nil when dispatched via manual override without a quote
	Quotes      []Quote
}

// Job is the root entity: one brokered courier job for one tenant client.
// It is created by the dispatcher after a provider accepts the request and
// mutated only through status reconciliation or tenant cancel/update.
type Job struct {
	ID                string
	ClientID          string
	Spec              JobSpec
	Selected          SelectedConfig
	ProviderJobID     string
	Status            JobStatus
	Tracking          []TrackingEntry
	Deliveries        []Delivery
	Driver            *Driver
	Vehicle           VehicleType
	CommissionCharged bool
	EcommerceOrderID  string // empty when not linked to an e-commerce order
	DeliveryEventSeen bool   // delivery-level events take precedence once observed
	CreatedAt         time.Time
	UpdatedAt         time.Time
	Version           int64 // optimistic concurrency token, owned by the Job Store
}

// EventLevel distinguishes job-level from delivery-level provider events.
type EventLevel string

const (
	LevelJob      EventLevel = "job"
	LevelDelivery EventLevel = "delivery"
)

// InboundWebhook is the raw material of one provider callback, captured
// before any decoding so the body can be inspected more than once.
type InboundWebhook struct {
	Provider string
	Header   http.Header
	Query    url.Values
	Body     []byte
}

// WebhookEvent is a decoded provider callback, normalized enough to resolve
// the target job but still carrying the provider's own status vocabulary.
type WebhookEvent struct {
	Provider       string
	CorrelationKey string // provider-scoped key the job was indexed under
	Level          EventLevel
	ExternalStatus string
	DeliveryID     string // set for delivery-level events
	TrackingURL    string
	Driver         *Driver
	OccurredAt     time.Time
}

// ============================================================================
// Request/Response Types
// ============================================================================

// QuoteRequest is the request for a price/ETA quote.
type QuoteRequest struct {
	ClientID string
	Spec     JobSpec
}

// CreateJobRequest is the request for submitting a job to a provider.
type CreateJobRequest struct {
	ClientID  string
	Spec      JobSpec
	QuoteID   string // provider quote being exercised; may be empty on override
	Reference string
}

// CreateJobResponse is the provider's acceptance of a job.
type CreateJobResponse struct {
	ProviderJobID string
	Deliveries    []Delivery
	Fee           *Money
	TrackingURL   string
}

// CancelJobRequest is the request for cancelling a submitted job.
type CancelJobRequest struct {
	ProviderJobID string
	Reason        string
}

// CancelJobResponse is the provider's cancellation confirmation.
type CancelJobResponse struct {
	ProviderJobID string
	Status        JobStatus
}
