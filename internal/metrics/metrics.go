package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Generator metrics

	GeneratorCycleDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "triggerd",
		Name:      "generator_cycle_duration_seconds",
		Help:      "Time taken for one generator hydration cycle.",
		Buckets:   prometheus.DefBuckets,
	})

	HydrationSeedsInsertedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "triggerd",
		Name:      "hydration_seeds_inserted_total",
		Help:      "Total cron event seeds inserted, by trigger name.",
	}, []string{"trigger_name"})

	// Processor metrics

	ProcessorCycleDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "triggerd",
		Name:      "processor_cycle_duration_seconds",
		Help:      "Time taken for one processor cycle (both phases).",
		Buckets:   prometheus.DefBuckets,
	})

	LockedEventsGauge = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "triggerd",
		Name:      "locked_events_gauge",
		Help:      "Number of events currently held locked by this replica.",
	}, []string{"class"})

	WebhookAttemptDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "triggerd",
		Name:      "webhook_attempt_duration_seconds",
		Help:      "Duration of a single webhook invocation attempt.",
		Buckets:   []float64{.01, .05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60, 120},
	}, []string{"class"})

	WebhookOutcomesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "triggerd",
		Name:      "webhook_outcomes_total",
		Help:      "Total webhook invocation outcomes, by class and outcome.",
	}, []string{"class", "outcome"}) // outcome: delivered|retry|error|dead

	// HTTP (admin API) metrics

	HTTPRequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "triggerd",
		Name:      "http_request_duration_seconds",
		Help:      "HTTP request latency.",
		Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
	}, []string{"method", "path", "status"})

	HTTPRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "triggerd",
		Name:      "http_requests_total",
		Help:      "Total HTTP requests.",
	}, []string{"method", "path", "status"})
)

func Register() {
	prometheus.MustRegister(
		GeneratorCycleDuration,
		HydrationSeedsInsertedTotal,
		ProcessorCycleDuration,
		LockedEventsGauge,
		WebhookAttemptDuration,
		WebhookOutcomesTotal,
		HTTPRequestDuration,
		HTTPRequestsTotal,
	)
}

func NewServer(addr string, extra http.Handler) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	if extra != nil {
		mux.Handle("/", extra)
	}
	return &http.Server{Addr: addr, Handler: mux}
}
