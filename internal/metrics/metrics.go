package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	// Ops API
	HTTPRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "http_requests_total", Help: "Count of HTTP requests."},
		[]string{"handler", "method", "code"},
	)
	HTTPDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Duration of HTTP requests.",
			Buckets: prometheus.ExponentialBuckets(0.005, 2, 12), // 5ms..~10s
		},
		[]string{"handler", "method"},
	)

	// Facade
	ScheduleTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "facade_schedule_total", Help: "Schedule/publish-now requests."},
		[]string{"channel", "result"}, // ok | unsupported_channel | error
	)
	CancelTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "facade_cancel_total", Help: "Cancel outcomes."},
		[]string{"result"}, // ok | rejected | not_found
	)

	// Dispatch
	DispatchTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "dispatch_total", Help: "Dispatch attempt outcomes."},
		[]string{"channel", "outcome"}, // posted | retry | failed | rate_limited | skipped
	)
	DispatchDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "dispatch_duration_seconds",
			Help:    "Adapter call latency.",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 12), // 10ms..~40s
		},
	)
	InFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{Name: "dispatch_inflight", Help: "Dispatches in flight in this process."},
	)
	RateLimitDenied = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "ratelimit_denied_total", Help: "Reservations denied per channel."},
		[]string{"channel"},
	)

	// Scheduler loop
	TickDue = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "scheduler_tick_due_posts",
			Help:    "Due posts found per tick.",
			Buckets: prometheus.LinearBuckets(0, 10, 11), // 0,10,...,100
		},
	)
	TickErrors = prometheus.NewCounter(
		prometheus.CounterOpts{Name: "scheduler_tick_errors_total", Help: "Store errors while selecting due posts."},
	)
)

// Register our collectors; the default registry already carries the Go and
// process collectors.
func MustRegister() {
	prometheus.MustRegister(
		HTTPRequests, HTTPDuration,
		ScheduleTotal, CancelTotal,
		DispatchTotal, DispatchDuration, InFlight, RateLimitDenied,
		TickDue, TickErrors,
	)
}
