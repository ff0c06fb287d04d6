package reconcile_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/opentelemetry-go-extra/otelzap"
	"go.uber.org/zap"

	"github.com/courierhub/dispatch/internal/notify"
	"github.com/courierhub/dispatch/internal/reconcile"
	"github.com/courierhub/dispatch/internal/store"
	"github.com/courierhub/dispatch/internal/telemetry"
	"github.com/courierhub/dispatch/pkg/courier"
	"github.com/courierhub/dispatch/pkg/courier/mock"
)

// Registered once: prometheus collectors cannot be registered twice in one
// test binary.
var testMetrics = telemetry.NewMetrics()

type recorder struct {
	mu       sync.Mutex
	sms      []string
	emails   []string
	pushes   []string
	forwards []courier.EcommerceStatus
}

func (r *recorder) SendSMS(ctx context.Context, phone, message string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sms = append(r.sms, phone)
	return nil
}

func (r *recorder) SendEmail(ctx context.Context, to, subject, body string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.emails = append(r.emails, to)
	return nil
}

func (r *recorder) SendPush(ctx context.Context, clientID, title, body string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.pushes = append(r.pushes, title)
	return nil
}

func (r *recorder) ForwardStatus(ctx context.Context, orderID string, status courier.EcommerceStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.forwards = append(r.forwards, status)
	return nil
}

func (r *recorder) counts() (sms, emails, pushes, forwards int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sms), len(r.emails), len(r.pushes), len(r.forwards)
}

type fixture struct {
	reconciler *reconcile.Reconciler
	jobs       *store.MemoryJobStore
	courier    *mock.Client
	runner     *notify.Runner
	rec        *recorder
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	m := mock.New("mock")
	registry := courier.NewRegistry()
	registry.Register(m)

	jobs := store.NewMemoryJobStore()
	logger := otelzap.New(zap.NewNop())
	runner := notify.NewRunner(logger)
	rec := &recorder{}

	reconciler := reconcile.New(registry, jobs, runner, reconcile.Notifiers{
		SMS:       rec,
		Email:     rec,
		Push:      rec,
		Ecommerce: rec,
	}, logger, testMetrics, nil)

	return &fixture{reconciler: reconciler, jobs: jobs, courier: m, runner: runner, rec: rec}
}

// seedJob persists a job indexed under mock correlation keys.
func (f *fixture) seedJob(t *testing.T, status courier.JobStatus) *courier.Job {
	t.Helper()
	now := time.Now()
	job := &courier.Job{
		ID:               "job-1",
		ClientID:         "client-1",
		ProviderJobID:    "m-1",
		Status:           status,
		Selected:         courier.SelectedConfig{ProviderID: "mock"},
		EcommerceOrderID: "order-77",
		Spec: courier.JobSpec{
			Dropoffs: []courier.DropoffSpec{
				{Location: courier.Location{Phone: "+447700900123", Email: "customer@example.test"}},
			},
		},
		Deliveries: []courier.Delivery{
			{ProviderDeliveryID: "d-1", Status: status},
		},
		CreatedAt: now,
		UpdatedAt: now,
	}
	keys := []string{
		courier.JobKey("mock", "m-1"),
		courier.DeliveryKey("mock", "d-1"),
	}
	require.NoError(t, f.jobs.Create(context.Background(), job, keys))
	return job
}

// stubEvent makes the mock courier decode every webhook into the given event.
func (f *fixture) stubEvent(event *courier.WebhookEvent) {
	f.courier.OnDecodeWebhook = func(w *courier.InboundWebhook) (*courier.WebhookEvent, error) {
		return event, nil
	}
}

func jobEvent(external string) *courier.WebhookEvent {
	return &courier.WebhookEvent{
		Provider:       "mock",
		CorrelationKey: courier.JobKey("mock", "m-1"),
		Level:          courier.LevelJob,
		ExternalStatus: external,
		OccurredAt:     time.Now(),
	}
}

func deliveryEvent(external string) *courier.WebhookEvent {
	event := jobEvent(external)
	event.Level = courier.LevelDelivery
	event.DeliveryID = "d-1"
	return event
}

func (f *fixture) handle(t *testing.T) (reconcile.Outcome, error) {
	t.Helper()
	return f.reconciler.HandleWebhook(context.Background(), &courier.InboundWebhook{Provider: "mock"})
}

func TestHandleWebhook_AppliesTransition(t *testing.T) {
	f := newFixture(t)
	f.seedJob(t, courier.StatusPending)
	f.stubEvent(jobEvent("delivering")) // EN_ROUTE / SHIPPED in the mock table

	outcome, err := f.handle(t)

	require.NoError(t, err)
	assert.Equal(t, reconcile.OutcomeApplied, outcome)

	job, err := f.jobs.FindByID(context.Background(), "job-1")
	require.NoError(t, err)
	assert.Equal(t, courier.StatusEnRoute, job.Status)
	require.Len(t, job.Tracking, 1)
	assert.Equal(t, courier.StatusEnRoute, job.Tracking[0].Status)
	assert.Equal(t, "mock:job.delivering", job.Tracking[0].Source)
}

func TestHandleWebhook_EnRouteFiresSMSAndForward(t *testing.T) {
	f := newFixture(t)
	f.seedJob(t, courier.StatusPending)
	f.stubEvent(jobEvent("delivering"))

	_, err := f.handle(t)
	require.NoError(t, err)
	f.runner.Wait()

	sms, emails, pushes, forwards := f.rec.counts()
	assert.Equal(t, 1, sms)
	assert.Equal(t, 0, emails)
	assert.Equal(t, 0, pushes)
	assert.Equal(t, 1, forwards, "linked order gets the translated status")
	assert.Equal(t, courier.EcommerceShipped, f.rec.forwards[0])
}

func TestHandleWebhook_DuplicateIsNoOp(t *testing.T) {
	f := newFixture(t)
	f.seedJob(t, courier.StatusPending)
	f.stubEvent(jobEvent("delivering"))

	outcome, err := f.handle(t)
	require.NoError(t, err)
	assert.Equal(t, reconcile.OutcomeApplied, outcome)

	// Same webhook delivered again.
	outcome, err = f.handle(t)
	require.NoError(t, err)
	assert.Equal(t, reconcile.OutcomeNoOp, outcome)

	f.runner.Wait()
	job, err := f.jobs.FindByID(context.Background(), "job-1")
	require.NoError(t, err)
	assert.Len(t, job.Tracking, 1, "a duplicate must not append a second tracking entry")

	sms, _, _, forwards := f.rec.counts()
	assert.Equal(t, 1, sms, "a duplicate must not notify twice")
	assert.Equal(t, 1, forwards)
}

func TestHandleWebhook_DeliveryEventAtSameStatusDoesNotNotify(t *testing.T) {
	f := newFixture(t)
	f.seedJob(t, courier.StatusPending)
	f.courier.Table = courier.StatusTable{
		Job: map[string]courier.Mapping{
			"delivering": {Canonical: courier.StatusEnRoute, Ecommerce: courier.EcommerceShipped},
		},
		Delivery: map[string]courier.Mapping{
			"delivering": {Canonical: courier.StatusEnRoute, Ecommerce: courier.EcommerceShipped},
		},
	}

	// Job-level event moves the job to EN_ROUTE and notifies once.
	f.stubEvent(jobEvent("delivering"))
	outcome, err := f.handle(t)
	require.NoError(t, err)
	assert.Equal(t, reconcile.OutcomeApplied, outcome)

	// The delivery-level echo of the same status records delivery detail but
	// must not notify again.
	f.stubEvent(deliveryEvent("delivering"))
	outcome, err = f.handle(t)
	require.NoError(t, err)
	assert.Equal(t, reconcile.OutcomeApplied, outcome, "first delivery-level observation is persisted")

	f.runner.Wait()
	job, err := f.jobs.FindByID(context.Background(), "job-1")
	require.NoError(t, err)
	assert.True(t, job.DeliveryEventSeen)
	assert.Len(t, job.Tracking, 1, "an unchanged status appends no tracking entry")

	sms, _, _, forwards := f.rec.counts()
	assert.Equal(t, 1, sms, "a same-status delivery event must not re-send SMS")
	assert.Equal(t, 1, forwards, "a same-status delivery event must not re-forward")
}

func TestHandleWebhook_DriverChangeAtSameStatusDoesNotNotify(t *testing.T) {
	f := newFixture(t)
	f.seedJob(t, courier.StatusPending)

	event := jobEvent("delivering")
	event.Driver = &courier.Driver{Name: "Sam", Phone: "+447700900456"}
	f.stubEvent(event)
	_, err := f.handle(t)
	require.NoError(t, err)

	// Reassignment arrives with the status unchanged.
	reassigned := jobEvent("delivering")
	reassigned.Driver = &courier.Driver{Name: "Alex", Phone: "+447700900789"}
	f.stubEvent(reassigned)
	outcome, err := f.handle(t)
	require.NoError(t, err)
	assert.Equal(t, reconcile.OutcomeApplied, outcome)

	f.runner.Wait()
	job, err := f.jobs.FindByID(context.Background(), "job-1")
	require.NoError(t, err)
	require.NotNil(t, job.Driver)
	assert.Equal(t, "Alex", job.Driver.Name)
	assert.Len(t, job.Tracking, 1)

	sms, _, _, forwards := f.rec.counts()
	assert.Equal(t, 1, sms, "a driver reassignment must not re-send SMS")
	assert.Equal(t, 1, forwards)
}

func TestHandleWebhook_JobLevelTransitionCarriesDeliveries(t *testing.T) {
	f := newFixture(t)
	f.seedJob(t, courier.StatusPending)
	f.stubEvent(jobEvent("delivered"))

	outcome, err := f.handle(t)
	require.NoError(t, err)
	assert.Equal(t, reconcile.OutcomeApplied, outcome)

	job, err := f.jobs.FindByID(context.Background(), "job-1")
	require.NoError(t, err)
	assert.Equal(t, courier.StatusCompleted, job.Status)
	require.Len(t, job.Deliveries, 1)
	assert.Equal(t, courier.StatusCompleted, job.Deliveries[0].Status,
		"job-level providers never address deliveries individually, so the job carries them")
}

func TestHandleWebhook_TerminalAbsorbs(t *testing.T) {
	f := newFixture(t)
	f.seedJob(t, courier.StatusCompleted)
	f.stubEvent(jobEvent("canceled"))

	outcome, err := f.handle(t)

	require.NoError(t, err)
	assert.Equal(t, reconcile.OutcomeNoOp, outcome)

	job, err := f.jobs.FindByID(context.Background(), "job-1")
	require.NoError(t, err)
	assert.Equal(t, courier.StatusCompleted, job.Status, "terminal state absorbs later events")
}

func TestHandleWebhook_EnRouteToCancelledFanOut(t *testing.T) {
	f := newFixture(t)
	f.seedJob(t, courier.StatusEnRoute)
	f.stubEvent(jobEvent("canceled"))

	outcome, err := f.handle(t)
	require.NoError(t, err)
	assert.Equal(t, reconcile.OutcomeApplied, outcome)
	f.runner.Wait()

	_, emails, pushes, forwards := f.rec.counts()
	assert.Equal(t, 1, emails)
	assert.Equal(t, 1, pushes)
	assert.Equal(t, 1, forwards)
	assert.Equal(t, courier.EcommerceCancelled, f.rec.forwards[0])
}

func TestHandleWebhook_CompletedChargesCommission(t *testing.T) {
	f := newFixture(t)
	f.seedJob(t, courier.StatusEnRoute)
	f.stubEvent(jobEvent("delivered"))

	outcome, err := f.handle(t)
	require.NoError(t, err)
	assert.Equal(t, reconcile.OutcomeApplied, outcome)

	job, err := f.jobs.FindByID(context.Background(), "job-1")
	require.NoError(t, err)
	assert.Equal(t, courier.StatusCompleted, job.Status)
	assert.True(t, job.CommissionCharged)
}

func TestHandleWebhook_DeliveryLevelPrecedence(t *testing.T) {
	f := newFixture(t)
	f.seedJob(t, courier.StatusPending)
	f.courier.Table = courier.StatusTable{
		Job: map[string]courier.Mapping{
			"pending":    {Canonical: courier.StatusPending},
			"delivering": {Canonical: courier.StatusEnRoute, Ecommerce: courier.EcommerceShipped},
			"canceled":   {Canonical: courier.StatusCancelled, Ecommerce: courier.EcommerceCancelled},
		},
		Delivery: map[string]courier.Mapping{
			"delivering": {Canonical: courier.StatusEnRoute, Ecommerce: courier.EcommerceShipped},
		},
	}

	// Delivery-level event arrives first.
	f.stubEvent(deliveryEvent("delivering"))
	outcome, err := f.handle(t)
	require.NoError(t, err)
	assert.Equal(t, reconcile.OutcomeApplied, outcome)

	job, err := f.jobs.FindByID(context.Background(), "job-1")
	require.NoError(t, err)
	assert.True(t, job.DeliveryEventSeen)
	assert.Equal(t, courier.StatusEnRoute, job.Deliveries[0].Status)

	// A stale job-level event claiming the job is still pending loses.
	f.stubEvent(jobEvent("pending"))
	outcome, err = f.handle(t)
	require.NoError(t, err)
	assert.Equal(t, reconcile.OutcomeNoOp, outcome)

	job, err = f.jobs.FindByID(context.Background(), "job-1")
	require.NoError(t, err)
	assert.Equal(t, courier.StatusEnRoute, job.Status)

	// A terminal job-level event still lands.
	f.stubEvent(jobEvent("canceled"))
	outcome, err = f.handle(t)
	require.NoError(t, err)
	assert.Equal(t, reconcile.OutcomeApplied, outcome)

	job, err = f.jobs.FindByID(context.Background(), "job-1")
	require.NoError(t, err)
	assert.Equal(t, courier.StatusCancelled, job.Status)
	assert.Equal(t, courier.StatusEnRoute, job.Deliveries[0].Status,
		"after a delivery-level event the delivery keeps its own status")
}

func TestHandleWebhook_DriverAssignment(t *testing.T) {
	f := newFixture(t)
	f.seedJob(t, courier.StatusPending)

	event := jobEvent("delivering")
	event.Driver = &courier.Driver{Name: "Sam", Phone: "+447700900456"}
	f.stubEvent(event)

	_, err := f.handle(t)
	require.NoError(t, err)

	job, err := f.jobs.FindByID(context.Background(), "job-1")
	require.NoError(t, err)
	require.NotNil(t, job.Driver)
	assert.Equal(t, "Sam", job.Driver.Name)
}

func TestHandleWebhook_UnknownJob(t *testing.T) {
	f := newFixture(t)
	event := jobEvent("delivering")
	event.CorrelationKey = courier.JobKey("mock", "never-dispatched")
	f.stubEvent(event)

	outcome, err := f.handle(t)

	require.NoError(t, err, "unknown jobs are acknowledged, not errored")
	assert.Equal(t, reconcile.OutcomeUnknownJob, outcome)
}

func TestHandleWebhook_UnmappedStatus(t *testing.T) {
	f := newFixture(t)
	f.seedJob(t, courier.StatusPending)
	f.stubEvent(jobEvent("some_future_status"))

	outcome, err := f.handle(t)

	require.NoError(t, err, "unmapped statuses are ignored, not errored")
	assert.Equal(t, reconcile.OutcomeUnmappedStatus, outcome)

	job, err := f.jobs.FindByID(context.Background(), "job-1")
	require.NoError(t, err)
	assert.Equal(t, courier.StatusPending, job.Status)
}

func TestHandleWebhook_AuthFailure(t *testing.T) {
	f := newFixture(t)
	f.courier.VerifyErr = courier.ErrWebhookAuth

	_, err := f.handle(t)
	assert.ErrorIs(t, err, courier.ErrWebhookAuth)
}

func TestHandleWebhook_UndecodablePayload(t *testing.T) {
	f := newFixture(t)
	f.courier.OnDecodeWebhook = func(w *courier.InboundWebhook) (*courier.WebhookEvent, error) {
		return nil, courier.NewError("mock", courier.KindValidation, "BAD_PAYLOAD", "undecodable")
	}

	_, err := f.handle(t)
	require.Error(t, err)
	assert.Equal(t, courier.KindValidation, courier.KindOf(err))
}

func TestHandleWebhook_UnknownProvider(t *testing.T) {
	f := newFixture(t)

	_, err := f.reconciler.HandleWebhook(context.Background(),
		&courier.InboundWebhook{Provider: "nonexistent"})
	assert.ErrorIs(t, err, courier.ErrProviderNotFound)
}
