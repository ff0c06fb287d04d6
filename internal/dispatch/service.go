// Package dispatch turns a delivery request into a dispatched job: quote
// fan-out across the enabled providers, strategy-based selection, submission
// through the winning adapter, and persistence of the resulting job.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/opentelemetry-go-extra/otelzap"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/courierhub/dispatch/internal/store"
	"github.com/courierhub/dispatch/internal/telemetry"
	"github.com/courierhub/dispatch/pkg/courier"
)

// Config holds dispatcher configuration.
type Config struct {
	Strategy        courier.SelectionStrategy
	ProviderRanking []string // provider order for the RATING strategy
	QuoteTimeout    time.Duration
	Batch           BatchPolicy
}

// Service is the job dispatcher.
type Service struct {
	config   Config
	registry *courier.Registry
	jobs     store.JobStore
	logger   *otelzap.Logger
	metrics  *telemetry.Metrics
	tracer   trace.Tracer
}

// NewService creates a dispatcher.
func NewService(cfg Config, registry *courier.Registry, jobs store.JobStore,
	logger *otelzap.Logger, metrics *telemetry.Metrics, tracer trace.Tracer) *Service {
	if cfg.Strategy == "" {
		cfg.Strategy = courier.StrategyPrice
	}
	if cfg.QuoteTimeout == 0 {
		cfg.QuoteTimeout = 10 * time.Second
	}
	return &Service{
		config:   cfg,
		registry: registry,
		jobs:     jobs,
		logger:   logger,
		metrics:  metrics,
		tracer:   tracer,
	}
}

// Override pins the dispatch to a provider regardless of quote ranking.
type Override struct {
	ProviderID string
	QuoteID    string // optional; when empty any quote from the provider matches
}

// Request is one delivery request to dispatch.
type Request struct {
	ClientID         string
	Spec             courier.JobSpec
	Providers        []string // empty means all enabled providers
	Reference        string
	EcommerceOrderID string
	Override         *Override
}

// GetQuotes fans out to the enabled providers and returns the quotes that
// arrived in time. Provider failures are logged and counted, never fatal;
// an empty result is valid.
func (s *Service) GetQuotes(ctx context.Context, req *Request) []courier.Quote {
	if s.tracer != nil {
		var span trace.Span
		ctx, span = s.tracer.Start(ctx, "dispatch.GetQuotes")
		defer span.End()
	}

	quotes, errs := s.registry.QuoteAll(ctx, &courier.QuoteRequest{
		ClientID: req.ClientID,
		Spec:     req.Spec,
	}, req.Providers, s.config.QuoteTimeout)

	for _, err := range errs {
		kind := courier.KindOf(err)
		if kind == courier.KindSoftDecline {
			s.logger.Info("Provider declined quote request", zap.Error(err))
		} else {
			s.logger.Warn("Provider quote failed", zap.Error(err))
		}
		s.metrics.RecordError("aggregate", string(kind))
	}
	s.metrics.QuotesReturned.WithLabelValues(string(s.config.Strategy)).Observe(float64(len(quotes)))

	return quotes
}

// Dispatch aggregates quotes, picks the winning provider, submits the job,
// and persists the resulting Job indexed under its correlation keys.
func (s *Service) Dispatch(ctx context.Context, req *Request) (*courier.Job, error) {
	if s.tracer != nil {
		var span trace.Span
		ctx, span = s.tracer.Start(ctx, "dispatch.Dispatch")
		defer span.End()
	}
	start := time.Now()

	quotes := s.GetQuotes(ctx, req)

	selected, err := s.selectConfig(req, quotes)
	if err != nil {
		return nil, err
	}

	provider, err := s.registry.Get(selected.ProviderID)
	if err != nil {
		return nil, err
	}

	resp, err := s.submit(ctx, provider, req, selected.QuoteID)
	if err != nil {
		s.metrics.RecordRequest("dispatch", selected.ProviderID, "error", time.Since(start).Seconds())
		s.metrics.RecordError(selected.ProviderID, string(courier.KindOf(err)))
		return nil, err
	}

	job := s.buildJob(req, selected, resp)
	keys := courier.CorrelationKeys(selected.ProviderID, resp, req.Reference)
	if err := s.jobs.Create(ctx, job, keys); err != nil {
		return nil, fmt.Errorf("failed to persist job: %w", err)
	}

	s.logger.Info("Job dispatched",
		zap.String("job_id", job.ID),
		zap.String("provider", selected.ProviderID),
		zap.String("provider_job_id", job.ProviderJobID),
		zap.Int("quotes_considered", len(quotes)),
	)
	s.metrics.RecordRequest("dispatch", selected.ProviderID, "ok", time.Since(start).Seconds())

	return job, nil
}

// selectConfig resolves the winning provider assignment: the strategy winner,
// or the override's provider when one is given.
func (s *Service) selectConfig(req *Request, quotes []courier.Quote) (courier.SelectedConfig, error) {
	if req.Override != nil {
		return s.overrideConfig(req, quotes), nil
	}

	winner, ok := courier.Select(s.config.Strategy, quotes, s.config.ProviderRanking)
	if !ok {
		return courier.SelectedConfig{}, courier.ErrNoQuotes
	}
	return courier.SelectedConfig{
		ProviderID:  winner.ProviderID,
		QuoteID:     winner.ID,
		DeliveryFee: &winner.Price,
		Quotes:      quotes,
	}, nil
}

// overrideConfig pins the dispatch to the override's provider. When that
// provider produced no matching quote the job proceeds with no fee recorded;
// billing reconciles it from the provider invoice later.
func (s *Service) overrideConfig(req *Request, quotes []courier.Quote) courier.SelectedConfig {
	selected := courier.SelectedConfig{
		ProviderID: req.Override.ProviderID,
		QuoteID:    req.Override.QuoteID,
		Quotes:     quotes,
	}

	for _, q := range quotes {
		if q.ProviderID != req.Override.ProviderID {
			continue
		}
		if req.Override.QuoteID != "" && q.ID != req.Override.QuoteID {
			continue
		}
		price := q.Price
		selected.QuoteID = q.ID
		selected.DeliveryFee = &price
		return selected
	}

	s.logger.Warn("Manual override without a matching quote, dispatching with no fee",
		zap.String("provider", req.Override.ProviderID),
		zap.String("client_id", req.ClientID),
	)
	return selected
}

func (s *Service) submit(ctx context.Context, provider courier.Courier, req *Request, quoteID string) (*courier.CreateJobResponse, error) {
	createReq := &courier.CreateJobRequest{
		ClientID:  req.ClientID,
		Spec:      req.Spec,
		QuoteID:   quoteID,
		Reference: req.Reference,
	}

	if len(req.Spec.Dropoffs) > 1 {
		multi, ok := provider.(courier.MultiDropCourier)
		if !ok {
			return nil, courier.NewError(provider.Name(), courier.KindValidation, "MULTI_DROP_UNSUPPORTED",
				"provider does not accept multi-drop jobs")
		}
		return multi.CreateMultiDropJob(ctx, createReq)
	}
	return provider.CreateJob(ctx, createReq)
}

func (s *Service) buildJob(req *Request, selected courier.SelectedConfig, resp *courier.CreateJobResponse) *courier.Job {
	now := time.Now()

	if selected.DeliveryFee == nil && resp.Fee != nil {
		fee := *resp.Fee
		selected.DeliveryFee = &fee
	}

	job := &courier.Job{
		ID:               uuid.New().String(),
		ClientID:         req.ClientID,
		Spec:             req.Spec,
		Selected:         selected,
		ProviderJobID:    resp.ProviderJobID,
		Status:           courier.StatusPending,
		Deliveries:       resp.Deliveries,
		Vehicle:          req.Spec.Vehicle,
		EcommerceOrderID: req.EcommerceOrderID,
		CreatedAt:        now,
		UpdatedAt:        now,
		Tracking: []courier.TrackingEntry{
			{Timestamp: now, Status: courier.StatusNew, Source: "dispatch"},
			{Timestamp: now, Status: courier.StatusPending, Source: selected.ProviderID + ":accepted"},
		},
	}
	return job
}

// Cancel cancels a job with its provider and records the transition.
// Cancelling a terminal job is a no-op returning the current state.
func (s *Service) Cancel(ctx context.Context, jobID, reason string) (*courier.Job, error) {
	job, err := s.jobs.FindByID(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if job.Status.Terminal() {
		return job, nil
	}

	provider, err := s.registry.Get(job.Selected.ProviderID)
	if err != nil {
		return nil, err
	}

	resp, err := provider.CancelJob(ctx, &courier.CancelJobRequest{
		ProviderJobID: job.ProviderJobID,
		Reason:        reason,
	})
	if err != nil {
		s.metrics.RecordError(job.Selected.ProviderID, string(courier.KindOf(err)))
		return nil, err
	}

	// Re-read and apply under CAS; a concurrent webhook may have moved the job.
	var updateErr error
	for attempt := 0; attempt < 3; attempt++ {
		if job.Status.Terminal() {
			return job, nil
		}
		job.Status = resp.Status
		job.UpdatedAt = time.Now()
		job.Tracking = append(job.Tracking, courier.TrackingEntry{
			Timestamp: job.UpdatedAt,
			Status:    resp.Status,
			Source:    "cancel",
		})
		updateErr = s.jobs.Update(ctx, job)
		if updateErr == nil {
			s.metrics.RecordTransition(job.Selected.ProviderID, string(resp.Status))
			return job, nil
		}
		if !errors.Is(updateErr, store.ErrVersionConflict) {
			return nil, updateErr
		}
		if job, err = s.jobs.FindByID(ctx, jobID); err != nil {
			return nil, err
		}
	}
	return nil, fmt.Errorf("failed to record cancellation for job %s: %w", jobID, updateErr)
}
