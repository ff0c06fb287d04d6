package stuart

import (
	"context"
	"strconv"
	"time"
)

// MockAPIClient is a mock implementation of APIClient for testing.
type MockAPIClient struct {
	SimulateErrors  bool
	SimulateLatency time.Duration

	OnGetPricing func(ctx context.Context, req *PricingRequest) (*PricingResponse, error)
	OnCreateJob  func(ctx context.Context, req *JobRequest) (*JobResponse, error)
	OnCancelJob  func(ctx context.Context, jobID string, reason string) (*CancelResponse, error)
}

// NewMockAPIClient creates a new mock API client with default behavior.
func NewMockAPIClient() *MockAPIClient {
	return &MockAPIClient{}
}

// GetPricing returns a mock quote.
func (m *MockAPIClient) GetPricing(ctx context.Context, req *PricingRequest) (*PricingResponse, error) {
	if m.SimulateLatency > 0 {
		time.Sleep(m.SimulateLatency)
	}
	if m.SimulateErrors {
		return nil, &APIError{ErrorCode: "MOCK_ERROR", Message: "Simulated API error"}
	}
	if m.OnGetPricing != nil {
		return m.OnGetPricing(ctx, req)
	}

	now := time.Now()
	return &PricingResponse{
		Amount:    11.50,
		Currency:  "GBP",
		PickupAt:  now.Add(12 * time.Minute).Format(time.RFC3339),
		DropoffAt: now.Add(38 * time.Minute).Format(time.RFC3339),
		ExpiresAt: now.Add(5 * time.Minute).Format(time.RFC3339),
	}, nil
}

// CreateJob returns a mock job acceptance.
func (m *MockAPIClient) CreateJob(ctx context.Context, req *JobRequest) (*JobResponse, error) {
	if m.SimulateLatency > 0 {
		time.Sleep(m.SimulateLatency)
	}
	if m.SimulateErrors {
		return nil, &APIError{ErrorCode: "MOCK_ERROR", Message: "Simulated API error"}
	}
	if m.OnCreateJob != nil {
		return m.OnCreateJob(ctx, req)
	}

	jobID := time.Now().UnixNano() % 1_000_000
	resp := &JobResponse{
		ID:               jobID,
		Status:           "new",
		TransportType:    req.Job.TransportType,
		PriceTaxIncluded: 11.50,
		Currency:         "GBP",
	}
	for i, d := range req.Job.Dropoffs {
		deliveryID := jobID*10 + int64(i)
		resp.Deliveries = append(resp.Deliveries, DeliveryResponse{
			ID:              deliveryID,
			Status:          "pending",
			ClientReference: d.ClientReference,
			TrackingURL:     "https://stuart.mock/track/" + strconv.FormatInt(deliveryID, 10),
		})
	}
	return resp, nil
}

// CancelJob returns a mock cancellation.
func (m *MockAPIClient) CancelJob(ctx context.Context, jobID string, reason string) (*CancelResponse, error) {
	if m.SimulateErrors {
		return nil, &APIError{ErrorCode: "MOCK_ERROR", Message: "Simulated API error"}
	}
	if m.OnCancelJob != nil {
		return m.OnCancelJob(ctx, jobID, reason)
	}
	id, _ := strconv.ParseInt(jobID, 10, 64)
	return &CancelResponse{ID: id, Status: "canceled"}, nil
}

// Ensure MockAPIClient implements APIClient interface
var _ APIClient = (*MockAPIClient)(nil)
