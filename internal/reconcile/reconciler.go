// Package reconcile applies provider webhooks to brokered jobs: verify,
// decode, resolve, normalize, and transition — idempotently, because every
// provider delivers at least once and some deliver much more than once.
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/uptrace/opentelemetry-go-extra/otelzap"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/courierhub/dispatch/internal/notify"
	"github.com/courierhub/dispatch/internal/store"
	"github.com/courierhub/dispatch/internal/telemetry"
	"github.com/courierhub/dispatch/pkg/courier"
)

// maxApplyAttempts bounds the CAS retry loop for one webhook.
const maxApplyAttempts = 5

// Outcome classifies how a webhook was absorbed. Every outcome is
// acknowledged success-shaped; only auth and decode failures surface as
// errors.
type Outcome string

const (
	OutcomeApplied        Outcome = "applied"
	OutcomeNoOp           Outcome = "no_op"
	OutcomeUnknownJob     Outcome = "unknown_job"
	OutcomeUnmappedStatus Outcome = "unmapped_status"
)

// Notifiers are the side-effect targets of accepted transitions.
type Notifiers struct {
	SMS       notify.SMSSender
	Email     notify.EmailSender
	Push      notify.PushSender
	Ecommerce notify.EcommerceForwarder
}

// Reconciler absorbs provider webhooks into job state.
type Reconciler struct {
	registry  *courier.Registry
	jobs      store.JobStore
	runner    *notify.Runner
	notifiers Notifiers
	logger    *otelzap.Logger
	metrics   *telemetry.Metrics
	tracer    trace.Tracer
}

// New creates a reconciler.
func New(registry *courier.Registry, jobs store.JobStore, runner *notify.Runner,
	notifiers Notifiers, logger *otelzap.Logger, metrics *telemetry.Metrics, tracer trace.Tracer) *Reconciler {
	return &Reconciler{
		registry:  registry,
		jobs:      jobs,
		runner:    runner,
		notifiers: notifiers,
		logger:    logger,
		metrics:   metrics,
		tracer:    tracer,
	}
}

// HandleWebhook verifies, decodes, and applies one provider callback.
// Business conditions (unknown job, duplicate status, unmapped status) come
// back as outcomes with a nil error: acknowledging them stops provider retry
// storms. The error return is reserved for auth failures, undecodable
// payloads, and unknown providers.
func (r *Reconciler) HandleWebhook(ctx context.Context, w *courier.InboundWebhook) (Outcome, error) {
	if r.tracer != nil {
		var span trace.Span
		ctx, span = r.tracer.Start(ctx, "reconcile.HandleWebhook")
		defer span.End()
	}

	provider, err := r.registry.Get(w.Provider)
	if err != nil {
		return "", err
	}

	if err := provider.VerifyWebhook(w); err != nil {
		r.logger.Warn("Webhook authentication failed", zap.String("provider", w.Provider))
		r.metrics.RecordWebhook(w.Provider, "auth_failed")
		return "", err
	}

	event, err := provider.DecodeWebhook(w)
	if err != nil {
		r.logger.Warn("Undecodable webhook", zap.String("provider", w.Provider), zap.Error(err))
		r.metrics.RecordWebhook(w.Provider, "undecodable")
		return "", err
	}

	outcome, err := r.apply(ctx, provider, event)
	if err != nil {
		r.metrics.RecordWebhook(w.Provider, "error")
		return "", err
	}
	r.metrics.RecordWebhook(w.Provider, string(outcome))
	return outcome, nil
}

// apply resolves the job and applies the normalized transition under the
// store's optimistic concurrency, retrying on conflict.
func (r *Reconciler) apply(ctx context.Context, provider courier.Courier, event *courier.WebhookEvent) (Outcome, error) {
	mapping, ok := provider.Statuses().Map(event.Level, event.ExternalStatus)
	if !ok {
		r.logger.Warn("Unmapped provider status, ignoring",
			zap.String("provider", event.Provider),
			zap.String("level", string(event.Level)),
			zap.String("status", event.ExternalStatus),
		)
		r.metrics.RecordUnmappedStatus(event.Provider, string(event.Level))
		return OutcomeUnmappedStatus, nil
	}

	var lastErr error
	for attempt := 0; attempt < maxApplyAttempts; attempt++ {
		job, err := r.jobs.FindByCorrelationKey(ctx, event.CorrelationKey)
		if errors.Is(err, courier.ErrJobNotFound) {
			r.logger.Warn("Webhook for unknown job",
				zap.String("provider", event.Provider),
				zap.String("correlation_key", event.CorrelationKey),
			)
			return OutcomeUnknownJob, nil
		}
		if err != nil {
			return "", err
		}

		prev := job.Status
		changed := r.transition(job, event, mapping)
		if !changed {
			return OutcomeNoOp, nil
		}

		lastErr = r.jobs.Update(ctx, job)
		if lastErr == nil {
			// Notifications fire only on a real status transition: a persisted
			// detail update (driver change, first delivery-level observation at
			// an unchanged status) must not re-notify.
			if job.Status != prev {
				r.metrics.RecordTransition(event.Provider, string(job.Status))
				r.logger.Info("Status transition applied",
					zap.String("job_id", job.ID),
					zap.String("provider", event.Provider),
					zap.String("status", string(job.Status)),
					zap.String("external_status", event.ExternalStatus),
				)
				r.fanOut(job, mapping)
			} else {
				r.logger.Info("Job detail updated",
					zap.String("job_id", job.ID),
					zap.String("provider", event.Provider),
					zap.String("status", string(job.Status)),
				)
			}
			return OutcomeApplied, nil
		}
		if !errors.Is(lastErr, store.ErrVersionConflict) {
			return "", lastErr
		}
	}
	return "", fmt.Errorf("failed to apply webhook after %d attempts: %w", maxApplyAttempts, lastErr)
}

// transition mutates the job in place and reports whether anything changed.
// Rules, in order: terminal states absorb everything; once a delivery-level
// event has been seen, non-terminal job-level events lose conflicts;
// same-status events are duplicates.
func (r *Reconciler) transition(job *courier.Job, event *courier.WebhookEvent, mapping courier.Mapping) bool {
	if job.Status.Terminal() {
		return false
	}
	if event.Level == courier.LevelJob && job.DeliveryEventSeen &&
		mapping.Canonical != job.Status && !mapping.Canonical.Terminal() {
		return false
	}
	if mapping.Canonical == job.Status && !r.sideEffectsChange(job, event) {
		return false
	}

	now := time.Now()
	if mapping.Canonical != job.Status {
		job.Status = mapping.Canonical
		job.Tracking = append(job.Tracking, courier.TrackingEntry{
			Timestamp: now,
			Status:    mapping.Canonical,
			Source:    fmt.Sprintf("%s:%s.%s", event.Provider, event.Level, event.ExternalStatus),
		})
		if mapping.Canonical == courier.StatusCompleted {
			job.CommissionCharged = true
		}
		// Providers with job-level vocabularies only never address individual
		// deliveries, so a job-level transition carries them along until a
		// delivery-level event claims finer-grained ownership.
		if event.Level == courier.LevelJob && !job.DeliveryEventSeen {
			for i := range job.Deliveries {
				job.Deliveries[i].Status = mapping.Canonical
			}
		}
	}

	if event.Level == courier.LevelDelivery {
		job.DeliveryEventSeen = true
		for i := range job.Deliveries {
			if job.Deliveries[i].ProviderDeliveryID == event.DeliveryID {
				job.Deliveries[i].Status = mapping.Canonical
				if event.TrackingURL != "" {
					job.Deliveries[i].TrackingURL = event.TrackingURL
				}
			}
		}
	}
	if event.Driver != nil {
		job.Driver = event.Driver
	}
	job.UpdatedAt = now
	return true
}

// sideEffectsChange reports whether a same-status event still carries new
// information worth persisting (driver assignment, delivery-level detail).
func (r *Reconciler) sideEffectsChange(job *courier.Job, event *courier.WebhookEvent) bool {
	if event.Driver != nil && (job.Driver == nil || *job.Driver != *event.Driver) {
		return true
	}
	if event.Level == courier.LevelDelivery && !job.DeliveryEventSeen {
		return true
	}
	return false
}

// fanOut fires the best-effort side effects of an accepted transition.
// Everything runs in the background; the webhook response never waits.
func (r *Reconciler) fanOut(job *courier.Job, mapping courier.Mapping) {
	contact := r.recipientContact(job)

	switch job.Status {
	case courier.StatusEnRoute:
		if r.notifiers.SMS != nil && contact.Phone != "" {
			phone := contact.Phone
			r.runner.Submit("sms:en_route", func(ctx context.Context) error {
				return r.notifiers.SMS.SendSMS(ctx, phone, "Your delivery is on its way.")
			})
		}
	case courier.StatusCancelled:
		if r.notifiers.Email != nil && contact.Email != "" {
			email := contact.Email
			r.runner.Submit("email:cancelled", func(ctx context.Context) error {
				return r.notifiers.Email.SendEmail(ctx, email, "Delivery cancelled",
					"Your delivery has been cancelled.")
			})
		}
		if r.notifiers.Push != nil {
			clientID := job.ClientID
			r.runner.Submit("push:cancelled", func(ctx context.Context) error {
				return r.notifiers.Push.SendPush(ctx, clientID, "Delivery cancelled",
					"Your delivery has been cancelled.")
			})
		}
	case courier.StatusCompleted:
		if r.notifiers.Push != nil {
			clientID := job.ClientID
			r.runner.Submit("push:completed", func(ctx context.Context) error {
				return r.notifiers.Push.SendPush(ctx, clientID, "Delivery completed",
					"Your delivery has been completed.")
			})
		}
	}

	if r.notifiers.Ecommerce != nil && job.EcommerceOrderID != "" && mapping.Ecommerce != "" {
		orderID := job.EcommerceOrderID
		status := mapping.Ecommerce
		r.runner.Submit("ecommerce:forward", func(ctx context.Context) error {
			return r.notifiers.Ecommerce.ForwardStatus(ctx, orderID, status)
		})
	}
}

// recipientContact returns the end-customer contact of the job's first
// dropoff.
func (r *Reconciler) recipientContact(job *courier.Job) courier.Location {
	if len(job.Spec.Dropoffs) > 0 {
		return job.Spec.Dropoffs[0].Location
	}
	return courier.Location{}
}
