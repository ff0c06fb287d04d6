package gophr

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

// GetQuote returns a mock quote.
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
		Success: true,
		Data: QuoteData{
			QuoteID:        "gq-" + uuid.New().String()[:8],
			PriceNet:       7.90,
			PriceGross:     9.48,
			Currency:       "GBP",
			PickupEta:      now.Add(18 * time.Minute).Format(time.RFC3339),
			DeliveryEta:    now.Add(52 * time.Minute).Format(time.RFC3339),
			QuoteExpiresAt: now.Add(10 * time.Minute).Format(time.RFC3339),
		},
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

	jobID := "gj-" + uuid.New().String()[:8]
	now := time.Now()
	return &JobResponse{
		Success: true,
		Data: JobData{
			JobID:       jobID,
			Status:      "CREATED",
			PriceGross:  9.48,
			Currency:    "GBP",
			TrackingURL: fmt.Sprintf("https://gophr.mock/track/%s", jobID),
			DeliveryEta: now.Add(52 * time.Minute).Format(time.RFC3339),
		},
	}, nil
}

// CancelJob returns a mock cancellation.
func (m *MockAPIClient) CancelJob(ctx context.Context, jobID string) (*CancelResponse, error) {
	if m.SimulateErrors {
		return nil, &APIError{Code: "MOCK_ERROR", Message: "Simulated API error"}
	}
	if m.OnCancelJob != nil {
		return m.OnCancelJob(ctx, jobID)
	}
	return &CancelResponse{Success: true}, nil
}

// Ensure MockAPIClient implements APIClient interface
var _ APIClient = (*MockAPIClient)(nil)
