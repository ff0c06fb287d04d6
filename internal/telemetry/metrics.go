package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the service.
type Metrics struct {
	RequestsTotal    *prometheus.CounterVec
	RequestDuration  *prometheus.HistogramVec
	ProviderErrors   *prometheus.CounterVec
	QuotesReturned   *prometheus.HistogramVec
	WebhooksTotal    *prometheus.CounterVec
	TransitionsTotal *prometheus.CounterVec
	UnmappedStatuses *prometheus.CounterVec
	SessionRefreshes *prometheus.CounterVec
}

// NewMetrics creates and registers Prometheus metrics.
func NewMetrics() *Metrics {
	return &Metrics{
		RequestsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "dispatch_requests_total",
				Help: "Total number of requests by operation, provider, and status",
			},
			[]string{"operation", "provider", "status"},
		),
		RequestDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "dispatch_request_duration_seconds",
				Help:    "Request duration in seconds by operation and provider",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation", "provider"},
		),
		ProviderErrors: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "dispatch_provider_errors_total",
				Help: "Total provider API errors by provider and error kind",
			},
			[]string{"provider", "kind"},
		),
		QuotesReturned: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "dispatch_quotes_returned",
				Help:    "Number of quotes returned per aggregation",
				Buckets: []float64{0, 1, 2, 3, 4, 5},
			},
			[]string{"strategy"},
		),
		WebhooksTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "dispatch_webhooks_total",
				Help: "Total inbound webhooks by provider and outcome",
			},
			[]string{"provider", "outcome"},
		),
		TransitionsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "dispatch_status_transitions_total",
				Help: "Accepted job status transitions by provider and canonical status",
			},
			[]string{"provider", "status"},
		),
		UnmappedStatuses: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "dispatch_unmapped_statuses_total",
				Help: "Webhook statuses with no mapping in the provider's status table",
			},
			[]string{"provider", "level"},
		),
		SessionRefreshes: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "dispatch_session_refreshes_total",
				Help: "Provider credential refreshes by provider and result",
			},
			[]string{"provider", "result"},
		),
	}
}

// RecordRequest records a request metric.
func (m *Metrics) RecordRequest(operation, provider, status string, duration float64) {
	m.RequestsTotal.WithLabelValues(operation, provider, status).Inc()
	m.RequestDuration.WithLabelValues(operation, provider).Observe(duration)
}

// RecordError records a provider error metric.
func (m *Metrics) RecordError(provider, kind string) {
	m.ProviderErrors.WithLabelValues(provider, kind).Inc()
}

// RecordWebhook records an inbound webhook outcome.
func (m *Metrics) RecordWebhook(provider, outcome string) {
	m.WebhooksTotal.WithLabelValues(provider, outcome).Inc()
}

// RecordTransition records an accepted status transition.
func (m *Metrics) RecordTransition(provider, status string) {
	m.TransitionsTotal.WithLabelValues(provider, status).Inc()
}

// RecordSessionRefresh records a provider credential acquisition attempt.
func (m *Metrics) RecordSessionRefresh(provider, result string) {
	m.SessionRefreshes.WithLabelValues(provider, result).Inc()
}

// RecordUnmappedStatus records a webhook status missing from the provider's table.
func (m *Metrics) RecordUnmappedStatus(provider, level string) {
	m.UnmappedStatuses.WithLabelValues(provider, level).Inc()
}
