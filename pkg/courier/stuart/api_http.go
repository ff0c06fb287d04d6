package stuart

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/courierhub/dispatch/pkg/courier"
)

// HTTPAPIClient is the production implementation of APIClient using HTTP.
// Requests are executed through the injected Doer, normally the session
// manager's per-provider client, which owns the bearer token and the
// refresh-and-retry behavior.
type HTTPAPIClient struct {
	baseURL string
	doer    courier.Doer
}

// HTTPAPIClientConfig holds configuration for the HTTP client.
type HTTPAPIClientConfig struct {
	BaseURL string
	Doer    courier.Doer
	Timeout time.Duration // used only when no Doer is injected
}

// NewHTTPAPIClient creates a new HTTP-based API client for production use.
func NewHTTPAPIClient(cfg HTTPAPIClientConfig) *HTTPAPIClient {
	doer := cfg.Doer
	if doer == nil {
		timeout := cfg.Timeout
		if timeout == 0 {
			timeout = 15 * time.Second
		}
		doer = &http.Client{Timeout: timeout}
	}

	return &HTTPAPIClient{
		baseURL: cfg.BaseURL,
		doer:    doer,
	}
}

// GetPricing fetches a price/ETA quote from the Stuart API.
// POST /v2/jobs/pricing
func (c *HTTPAPIClient) GetPricing(ctx context.Context, req *PricingRequest) (*PricingResponse, error) {
	resp, err := c.doRequest(ctx, http.MethodPost, "/v2/jobs/pricing", req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, c.parseError(resp)
	}

	var result PricingResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("failed to decode pricing response: %w", err)
	}
	return &result, nil
}

// CreateJob submits a new job via the Stuart API.
// POST /v2/jobs
func (c *HTTPAPIClient) CreateJob(ctx context.Context, req *JobRequest) (*JobResponse, error) {
	resp, err := c.doRequest(ctx, http.MethodPost, "/v2/jobs", req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return nil, c.parseError(resp)
	}

	var result JobResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("failed to decode job response: %w", err)
	}
	return &result, nil
}

// CancelJob cancels a job via the Stuart API.
// POST /v2/jobs/{id}/cancel
func (c *HTTPAPIClient) CancelJob(ctx context.Context, jobID string, reason string) (*CancelResponse, error) {
	path := fmt.Sprintf("/v2/jobs/%s/cancel", jobID)
	body := map[string]string{}
	if reason != "" {
		body["public_reason_key"] = reason
	}

	resp, err := c.doRequest(ctx, http.MethodPost, path, body)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusNoContent {
		return nil, c.parseError(resp)
	}

	if resp.StatusCode == http.StatusNoContent {
		return &CancelResponse{Status: "canceled"}, nil
	}

	var result CancelResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return &CancelResponse{Status: "canceled"}, nil
	}
	return &result, nil
}

// doRequest performs an HTTP request with proper headers. Authentication is
// the Doer's concern.
func (c *HTTPAPIClient) doRequest(ctx context.Context, method, path string, body interface{}) (*http.Response, error) {
	url := c.baseURL + path

	var bodyReader io.Reader
	if body != nil {
		jsonBody, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request body: %w", err)
		}
		bodyReader = bytes.NewReader(jsonBody)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", "courierhub-dispatch/1.0")

	return c.doer.Do(req)
}

// parseError extracts error information from an HTTP response.
func (c *HTTPAPIClient) parseError(resp *http.Response) error {
	body, _ := io.ReadAll(resp.Body)

	var apiErr APIError
	if err := json.Unmarshal(body, &apiErr); err == nil && apiErr.ErrorCode != "" {
		apiErr.statusCode = resp.StatusCode
		return &apiErr
	}

	return &APIError{
		ErrorCode:  fmt.Sprintf("HTTP_%d", resp.StatusCode),
		Message:    string(body),
		statusCode: resp.StatusCode,
	}
}

// Ensure HTTPAPIClient implements APIClient interface
var _ APIClient = (*HTTPAPIClient)(nil)
