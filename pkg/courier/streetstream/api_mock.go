package streetstream

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// MockAPIClient is a mock implementation of APIClient for testing.
type MockAPIClient struct {
	SimulateErrors  bool
	SimulateLatency time.Duration

	OnGetQuote  func(ctx context.Context, req *QuoteRequest) (*QuoteResponse, error)
	OnCreateJob func(ctx context.Context, req *JobRequest) (*JobResponse, error)
	OnCancelJob func(ctx context.Context, jobID string) (*CancelResponse, error)
}

// NewMockAPIClient creates a new mock API client with default behavior.
func NewMockAPIClient() *MockAPIClient {
	return &MockAPIClient{}
}

// GetQuote returns a mock estimate.
func (m *MockAPIClient) GetQuote(ctx context.Context, req *QuoteRequest) (*QuoteResponse, error) {
	if m.SimulateLatency > 0 {
		time.Sleep(m.SimulateLatency)
	}
	if m.SimulateErrors {
		return nil, &APIError{Code: "MOCK_ERROR", Message: "Simulated API error"}
	}
	if m.OnGetQuote != nil {
		return m.OnGetQuote(ctx, req)
	}

	now := time.Now()
	return &QuoteResponse{
		EstimateID:      "ss-est-" + uuid.New().String()[:8],
		PriceExVAT:      8.20,
		PriceIncVAT:     9.84,
		CurrencyCode:    "GBP",
		PickupBy:        now.Add(20 * time.Minute).Format(time.RFC3339),
		DeliveredBy:     now.Add(55 * time.Minute).Format(time.RFC3339),
		OfferValidUntil: now.Add(15 * time.Minute).Format(time.RFC3339),
	}, nil
}

// CreateJob returns a mock booking.
func (m *MockAPIClient) CreateJob(ctx context.Context, req *JobRequest) (*JobResponse, error) {
	if m.SimulateLatency > 0 {
		time.Sleep(m.SimulateLatency)
	}
	if m.SimulateErrors {
		return nil, &APIError{Code: "MOCK_ERROR", Message: "Simulated API error"}
	}
	if m.OnCreateJob != nil {
		return m.OnCreateJob(ctx, req)
	}

	jobID := "ss-job-" + uuid.New().String()[:8]
	resp := &JobResponse{
		JobID:        jobID,
		Status:       "OFFERS_RECEIVED",
		PriceIncVAT:  9.84,
		CurrencyCode: "GBP",
		TrackingURL:  fmt.Sprintf("https://streetstream.mock/track/%s", jobID),
	}
	for i, d := range req.DropOffs {
		resp.DropOffs = append(resp.DropOffs, DropOffResult{
			DropOffID:   fmt.Sprintf("%s-d%d", jobID, i),
			ClientTag:   d.Reference,
			TrackingURL: fmt.Sprintf("https://streetstream.mock/track/%s/%d", jobID, i),
			WindowStart: d.WindowStart,
			WindowEnd:   d.WindowEnd,
		})
	}
	return resp, nil
}

// CancelJob returns a mock cancellation.
func (m *MockAPIClient) CancelJob(ctx context.Context, jobID string) (*CancelResponse, error) {
	if m.SimulateErrors {
		return nil, &APIError{Code: "MOCK_ERROR", Message: "Simulated API error"}
	}
	if m.OnCancelJob != nil {
		return m.OnCancelJob(ctx, jobID)
	}
	return &CancelResponse{JobID: jobID, Status: "ADMIN_CANCELLED"}, nil
}

// Ensure MockAPIClient implements APIClient interface
var _ APIClient = (*MockAPIClient)(nil)
