package server_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/opentelemetry-go-extra/otelzap"
	"go.uber.org/zap"

	"github.com/courierhub/dispatch/internal/dispatch"
	"github.com/courierhub/dispatch/internal/notify"
	"github.com/courierhub/dispatch/internal/reconcile"
	"github.com/courierhub/dispatch/internal/server"
	"github.com/courierhub/dispatch/internal/store"
	"github.com/courierhub/dispatch/internal/telemetry"
	"github.com/courierhub/dispatch/pkg/courier"
	"github.com/courierhub/dispatch/pkg/courier/mock"
)

// Registered once: prometheus collectors cannot be registered twice in one
// test binary.
var testMetrics = telemetry.NewMetrics()

type fixture struct {
	srv     *server.Server
	handler http.Handler
	jobs    *store.MemoryJobStore
	courier *mock.Client
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	m := mock.New("mock")
	registry := courier.NewRegistry()
	registry.Register(m)

	jobs := store.NewMemoryJobStore()
	logger := otelzap.New(zap.NewNop())
	runner := notify.NewRunner(logger)

	dispatcher := dispatch.NewService(dispatch.Config{
		Strategy:     courier.StrategyPrice,
		QuoteTimeout: time.Second,
	}, registry, jobs, logger, testMetrics, nil)

	reconciler := reconcile.New(registry, jobs, runner, reconcile.Notifiers{}, logger, testMetrics, nil)

	srv := server.New(server.Config{Port: 0}, dispatcher, reconciler, jobs, logger)
	return &fixture{srv: srv, handler: srv.Handler(), jobs: jobs, courier: m}
}

func (f *fixture) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, bytes.NewReader([]byte(body)))
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	return rec
}

func (f *fixture) seedJob(t *testing.T, status courier.JobStatus) *courier.Job {
	t.Helper()
	now := time.Now()
	job := &courier.Job{
		ID:            "job-1",
		ClientID:      "client-1",
		ProviderJobID: "m-1",
		Status:        status,
		Selected:      courier.SelectedConfig{ProviderID: "mock"},
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	require.NoError(t, f.jobs.Create(context.Background(), job,
		[]string{courier.JobKey("mock", "m-1")}))
	return job
}

func TestHealth(t *testing.T) {
	f := newFixture(t)
	rec := f.do(t, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", rec.Body.String())
}

func TestMetricsEndpoint(t *testing.T) {
	f := newFixture(t)
	rec := f.do(t, http.MethodGet, "/metrics", "")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestQuotes(t *testing.T) {
	f := newFixture(t)
	f.courier.Price = 7.25

	rec := f.do(t, http.MethodPost, "/api/quotes", `{
		"ClientID": "client-1",
		"Spec": {"Dropoffs": [{}]}
	}`)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp struct {
		Quotes []courier.Quote `json:"quotes"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Quotes, 1)
	assert.Equal(t, "mock", resp.Quotes[0].ProviderID)
	assert.Equal(t, 7.25, resp.Quotes[0].Price.Amount)
}

func TestQuotes_InvalidJSON(t *testing.T) {
	f := newFixture(t)
	rec := f.do(t, http.MethodPost, "/api/quotes", `{not json`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestDispatch(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodPost, "/api/jobs", `{
		"ClientID": "client-1",
		"Spec": {"Dropoffs": [{}]}
	}`)

	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var job courier.Job
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &job))
	assert.NotEmpty(t, job.ID)
	assert.Equal(t, "mock", job.Selected.ProviderID)
	assert.Equal(t, courier.StatusPending, job.Status)

	stored, err := f.jobs.FindByID(context.Background(), job.ID)
	require.NoError(t, err)
	assert.Equal(t, job.ProviderJobID, stored.ProviderJobID)
}

func TestDispatch_NoQuotes(t *testing.T) {
	f := newFixture(t)
	f.courier.QuoteErr = courier.NewError("mock", courier.KindSoftDecline, "OUT_OF_RANGE", "too far")

	rec := f.do(t, http.MethodPost, "/api/jobs", `{
		"ClientID": "client-1",
		"Spec": {"Dropoffs": [{}]}
	}`)

	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestDispatch_ProviderRejection(t *testing.T) {
	f := newFixture(t)
	f.courier.OnCreateJob = func(ctx context.Context, req *courier.CreateJobRequest) (*courier.CreateJobResponse, error) {
		return nil, courier.NewError("mock", courier.KindValidation, "RECORD_INVALID", "bad address")
	}

	rec := f.do(t, http.MethodPost, "/api/jobs", `{
		"ClientID": "client-1",
		"Spec": {"Dropoffs": [{}]}
	}`)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "validation")
}

func TestGetJob(t *testing.T) {
	f := newFixture(t)
	f.seedJob(t, courier.StatusEnRoute)

	rec := f.do(t, http.MethodGet, "/api/jobs/job-1", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var job courier.Job
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &job))
	assert.Equal(t, courier.StatusEnRoute, job.Status)
}

func TestGetJob_NotFound(t *testing.T) {
	f := newFixture(t)
	rec := f.do(t, http.MethodGet, "/api/jobs/nope", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCancel(t *testing.T) {
	f := newFixture(t)
	f.seedJob(t, courier.StatusPending)

	rec := f.do(t, http.MethodPost, "/api/jobs/job-1/cancel", `{"reason": "customer request"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var job courier.Job
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &job))
	assert.Equal(t, courier.StatusCancelled, job.Status)
}

func TestCancel_EmptyBody(t *testing.T) {
	f := newFixture(t)
	f.seedJob(t, courier.StatusPending)

	rec := f.do(t, http.MethodPost, "/api/jobs/job-1/cancel", "")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestCancel_NotFound(t *testing.T) {
	f := newFixture(t)
	rec := f.do(t, http.MethodPost, "/api/jobs/nope/cancel", "{}")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestWebhook_Applied(t *testing.T) {
	f := newFixture(t)
	f.seedJob(t, courier.StatusPending)
	f.courier.OnDecodeWebhook = func(w *courier.InboundWebhook) (*courier.WebhookEvent, error) {
		return &courier.WebhookEvent{
			Provider:       "mock",
			Level:          courier.LevelJob,
			ExternalStatus: "delivering",
			CorrelationKey: courier.JobKey("mock", "m-1"),
		}, nil
	}

	rec := f.do(t, http.MethodPost, "/webhooks/mock", `{"status": "delivering"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"success":true`)
	assert.Contains(t, rec.Body.String(), `"applied"`)

	job, err := f.jobs.FindByID(context.Background(), "job-1")
	require.NoError(t, err)
	assert.Equal(t, courier.StatusEnRoute, job.Status)
}

func TestWebhook_UnknownJobAcknowledged(t *testing.T) {
	f := newFixture(t)
	f.courier.OnDecodeWebhook = func(w *courier.InboundWebhook) (*courier.WebhookEvent, error) {
		return &courier.WebhookEvent{
			Provider:       "mock",
			Level:          courier.LevelJob,
			ExternalStatus: "delivering",
			CorrelationKey: courier.JobKey("mock", "ghost"),
		}, nil
	}

	rec := f.do(t, http.MethodPost, "/webhooks/mock", `{}`)
	require.Equal(t, http.StatusOK, rec.Code, "unknown jobs are acknowledged, never a hard failure")
	assert.Contains(t, rec.Body.String(), `"success":false`)
	assert.Contains(t, rec.Body.String(), `"unknown_job"`)
}

func TestWebhook_AuthFailure(t *testing.T) {
	f := newFixture(t)
	f.courier.VerifyErr = courier.ErrWebhookAuth

	rec := f.do(t, http.MethodPost, "/webhooks/mock", `{}`)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Body.String(), `"success":false`)
}

func TestWebhook_UndecodableBody(t *testing.T) {
	f := newFixture(t)

	// The mock's default decoder rejects every payload as a validation error.
	rec := f.do(t, http.MethodPost, "/webhooks/mock", `garbage`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestWebhook_UnknownProvider(t *testing.T) {
	f := newFixture(t)
	rec := f.do(t, http.MethodPost, "/webhooks/ufo", `{}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestWebhook_QueryAndHeadersForwarded(t *testing.T) {
	f := newFixture(t)
	f.seedJob(t, courier.StatusPending)

	var seen *courier.InboundWebhook
	f.courier.OnDecodeWebhook = func(w *courier.InboundWebhook) (*courier.WebhookEvent, error) {
		seen = w
		return &courier.WebhookEvent{
			Provider:       "mock",
			Level:          courier.LevelJob,
			ExternalStatus: "pending",
			CorrelationKey: courier.JobKey("mock", "m-1"),
		}, nil
	}

	req := httptest.NewRequest(http.MethodPost, "/webhooks/mock?key=s3cret", strings.NewReader(`{"a":1}`))
	req.Header.Set("X-Webhook-Token", "tok")
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.NotNil(t, seen)
	assert.Equal(t, "mock", seen.Provider)
	assert.Equal(t, "s3cret", seen.Query.Get("key"))
	assert.Equal(t, "tok", seen.Header.Get("X-Webhook-Token"))
	assert.JSONEq(t, `{"a":1}`, string(seen.Body))
}
