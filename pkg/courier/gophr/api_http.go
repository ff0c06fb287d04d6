package gophr

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// HTTPAPIClient is the production implementation of APIClient using HTTP.
// Gophr authenticates with a static API key header, so no session manager
// is involved.
type HTTPAPIClient struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// HTTPAPIClientConfig holds configuration for the HTTP client.
type HTTPAPIClientConfig struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
}

// NewHTTPAPIClient creates a new HTTP-based API client for production use.
func NewHTTPAPIClient(cfg HTTPAPIClientConfig) *HTTPAPIClient {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 15 * time.Second
	}

	return &HTTPAPIClient{
		baseURL: cfg.BaseURL,
		apiKey:  cfg.APIKey,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// GetQuote fetches a delivery quote from the Gophr API.
// POST /v1/commercial-api/get-a-quote
func (c *HTTPAPIClient) GetQuote(ctx context.Context, req *QuoteRequest) (*QuoteResponse, error) {
	resp, err := c.doRequest(ctx, http.MethodPost, "/v1/commercial-api/get-a-quote", req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var result QuoteResponse
	if err := c.decode(resp, &result, result.errorOf); err != nil {
		return nil, err
	}
	return &result, nil
}

// CreateJob books a delivery via the Gophr API.
// POST /v1/commercial-api/create-confirm-job
func (c *HTTPAPIClient) CreateJob(ctx context.Context, req *JobRequest) (*JobResponse, error) {
	resp, err := c.doRequest(ctx, http.MethodPost, "/v1/commercial-api/create-confirm-job", req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var result JobResponse
	if err := c.decode(resp, &result, result.errorOf); err != nil {
		return nil, err
	}
	return &result, nil
}

// CancelJob cancels a booked delivery via the Gophr API.
// POST /v1/commercial-api/cancel-job
func (c *HTTPAPIClient) CancelJob(ctx context.Context, jobID string) (*CancelResponse, error) {
	body := map[string]string{"job_id": jobID}
	resp, err := c.doRequest(ctx, http.MethodPost, "/v1/commercial-api/cancel-job", body)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var result CancelResponse
	if err := c.decode(resp, &result, result.errorOf); err != nil {
		return nil, err
	}
	return &result, nil
}

func (r *QuoteResponse) errorOf() (*APIError, bool) { return r.Error, r.Success }
func (r *JobResponse) errorOf() (*APIError, bool)   { return r.Error, r.Success }
func (r *CancelResponse) errorOf() (*APIError, bool) { return r.Error, r.Success }

// decode parses a Gophr envelope response. Gophr reports business failures
// inside a success:false envelope even on HTTP 200.
func (c *HTTPAPIClient) decode(resp *http.Response, out interface{}, errorOf func() (*APIError, bool)) error {
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response body: %w", err)
	}

	if err := json.Unmarshal(body, out); err != nil {
		return &APIError{
			Code:       fmt.Sprintf("HTTP_%d", resp.StatusCode),
			Message:    string(body),
			statusCode: resp.StatusCode,
		}
	}

	apiErr, success := errorOf()
	if resp.StatusCode != http.StatusOK || !success {
		if apiErr != nil {
			apiErr.statusCode = resp.StatusCode
			return apiErr
		}
		return &APIError{
			Code:       fmt.Sprintf("HTTP_%d", resp.StatusCode),
			Message:    "request rejected",
			statusCode: resp.StatusCode,
		}
	}
	return nil
}

// doRequest performs an HTTP request with proper headers and authentication.
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
	req.Header.Set("X-API-Key", c.apiKey)
	req.Header.Set("User-Agent", "courierhub-dispatch/1.0")

	return c.httpClient.Do(req)
}

// Ensure HTTPAPIClient implements APIClient interface
var _ APIClient = (*HTTPAPIClient)(nil)
