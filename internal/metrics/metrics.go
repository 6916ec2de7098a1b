// Package metrics exposes Prometheus collectors for the backend.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Registry holds the application-specific Prometheus collectors.
	Registry = prometheus.NewRegistry()

	httpInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "agentspace",
			Subsystem: "http",
			Name:      "inflight_requests",
			Help:      "Current number of in-flight HTTP requests.",
		},
	)

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "agentspace",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests handled.",
		},
		[]string{"method", "path", "status"},
	)

	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "agentspace",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Duration of HTTP requests.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 10),
		},
		[]string{"method", "path"},
	)

	smsSent = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "agentspace",
			Subsystem: "sms",
			Name:      "messages_total",
			Help:      "Total SMS messages by direction and status.",
		},
		[]string{"direction", "status"},
	)

	webhookEvents = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "agentspace",
			Subsystem: "billing",
			Name:      "webhook_events_total",
			Help:      "Total payment-platform webhook events processed.",
		},
		[]string{"type", "outcome"},
	)

	niprJobs = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "agentspace",
			Subsystem: "nipr",
			Name:      "jobs_total",
			Help:      "Total NIPR job state transitions.",
		},
		[]string{"transition"},
	)

	scheduledTierChanges = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "agentspace",
			Subsystem: "billing",
			Name:      "scheduled_tier_changes_applied_total",
			Help:      "Total scheduled tier changes applied by the sweeper.",
		},
	)

	niprStaleReleases = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "agentspace",
			Subsystem: "nipr",
			Name:      "stale_locks_released_total",
			Help:      "Total NIPR jobs reset to pending after lease expiry.",
		},
	)
)

func init() {
	Registry.MustRegister(
		httpInFlight,
		httpRequests,
		httpDuration,
		smsSent,
		webhookEvents,
		scheduledTierChanges,
		niprJobs,
		niprStaleReleases,
	)
}

// Handler serves the registry over HTTP.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}

// IncrementInFlight bumps the in-flight HTTP request gauge.
func IncrementInFlight() { httpInFlight.Inc() }

// DecrementInFlight decrements the in-flight HTTP request gauge.
func DecrementInFlight() { httpInFlight.Dec() }

// RecordHTTPRequest records a handled request.
func RecordHTTPRequest(method, path, status string, duration time.Duration) {
	httpRequests.WithLabelValues(method, path, status).Inc()
	httpDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// RecordSMS records an SMS send or receive.
func RecordSMS(direction, status string) {
	smsSent.WithLabelValues(direction, status).Inc()
}

// RecordWebhookEvent records a processed webhook event.
func RecordWebhookEvent(eventType, outcome string) {
	webhookEvents.WithLabelValues(eventType, outcome).Inc()
}

// RecordScheduledTierChanges adds to the applied tier change counter.
func RecordScheduledTierChanges(n int) {
	scheduledTierChanges.Add(float64(n))
}

// RecordNIPRTransition records a NIPR job state transition.
func RecordNIPRTransition(transition string) {
	niprJobs.WithLabelValues(transition).Inc()
}

// RecordNIPRStaleReleases adds to the stale lock release counter.
func RecordNIPRStaleReleases(n int) {
	niprStaleReleases.Add(float64(n))
}
