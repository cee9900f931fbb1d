// Package metrics defines the Prometheus collectors exported on /metrics.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Event outcomes.
const (
	OutcomeOK       = "ok"
	OutcomeNotFound = "not_found"
	OutcomeFailed   = "failed"
)

var (
	// Buckets for outbound mail calls, 10ms to 30s.
	sendBuckets = []float64{.01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 30}

	// EmailsSent counts mail send attempts by context, provider and result.
	EmailsSent = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bookwell_emails_sent_total",
			Help: "Total number of email send attempts, by context, provider and result.",
		},
		[]string{"context", "provider", "result"},
	)

	// EmailSendDuration measures provider call latency.
	EmailSendDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "bookwell_email_send_duration_seconds",
			Help:    "Histogram of email provider call duration in seconds, by provider and success.",
			Buckets: sendBuckets,
		},
		[]string{"provider", "success"},
	)

	// NotificationsCreated counts notification records written.
	NotificationsCreated = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bookwell_notifications_created_total",
			Help: "Total number of notification records created, by collection and kind.",
		},
		[]string{"collection", "kind"},
	)

	// Events counts orchestration events by outcome.
	Events = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bookwell_events_total",
			Help: "Total number of orchestration events handled, by event and outcome.",
		},
		[]string{"event", "outcome"},
	)

	// TaskFailures counts background tasks that returned an error or panicked.
	TaskFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bookwell_task_failures_total",
			Help: "Total number of failed fire-and-forget tasks, by task name.",
		},
		[]string{"task"},
	)

	// TasksInFlight is the number of running background tasks.
	TasksInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "bookwell_tasks_in_flight",
			Help: "Number of fire-and-forget tasks currently running.",
		},
	)

	// LiveSubscriptions is the number of open live subscriptions by kind.
	LiveSubscriptions = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "bookwell_live_subscriptions",
			Help: "Number of open live subscriptions, by kind.",
		},
		[]string{"kind"},
	)

	// RemindersDispatched counts reminders spawned by the sweep.
	RemindersDispatched = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "bookwell_reminders_dispatched_total",
			Help: "Total number of appointment reminders dispatched by the sweep.",
		},
	)

	// TemplateGaps is the number of catalogue gaps found at startup.
	TemplateGaps = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "bookwell_template_gaps",
			Help: "Number of missing catalogue entries served from the default language.",
		},
	)
)

// Handler returns the HTTP handler for the Prometheus metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveSend records one provider call.
func ObserveSend(provider string, success bool, start time.Time) {
	EmailSendDuration.WithLabelValues(provider, strconv.FormatBool(success)).Observe(time.Since(start).Seconds())
}
