package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "roadside_assist"

var (
	MatchesTotal     = promauto.NewCounterVec(prometheus.CounterOpts{Namespace: namespace, Name: "matches_total", Help: "Provider searches by category"}, []string{"category"})
	MatchLatency     = promauto.NewHistogram(prometheus.HistogramOpts{Namespace: namespace, Name: "match_latency_seconds", Help: "Provider search latency seconds"})
	MatchCandidates  = promauto.NewHistogram(prometheus.HistogramOpts{Namespace: namespace, Name: "match_candidates", Help: "Candidates returned per search", Buckets: []float64{0, 1, 2, 5, 10, 20, 50}})
	ProvidersOnline  = promauto.NewGauge(prometheus.GaugeOpts{Namespace: namespace, Name: "providers_online", Help: "Number of online providers seeded or reported"})
	LocationUpdates  = promauto.NewCounter(prometheus.CounterOpts{Namespace: namespace, Name: "provider_location_updates_total", Help: "Provider location reports accepted"})
	BookingsTotal    = promauto.NewCounterVec(prometheus.CounterOpts{Namespace: namespace, Name: "bookings_total", Help: "Booking attempts by outcome"}, []string{"outcome"})
	TransitionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{Namespace: namespace, Name: "transitions_total", Help: "Status transitions applied"}, []string{"status", "source"})
	ActiveRequests   = promauto.NewGauge(prometheus.GaugeOpts{Namespace: namespace, Name: "active_requests", Help: "Requests watched by the scheduler"})
	SchedulerTicks   = promauto.NewCounter(prometheus.CounterOpts{Namespace: namespace, Name: "scheduler_ticks_total", Help: "Scheduler sweeps over watched requests"})
	PaymentsTotal    = promauto.NewCounterVec(prometheus.CounterOpts{Namespace: namespace, Name: "payments_total", Help: "Payment attempts by gateway and outcome"}, []string{"gateway", "outcome"})
	NotifyFailures   = promauto.NewCounterVec(prometheus.CounterOpts{Namespace: namespace, Name: "notify_failures_total", Help: "Push notifications that could not be delivered"}, []string{"kind"})
	EventsPublished  = promauto.NewCounterVec(prometheus.CounterOpts{Namespace: namespace, Name: "events_published_total", Help: "Lifecycle events handed to the event stream"}, []string{"type", "outcome"})

	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: namespace, Name: "http_requests_total", Help: "Total HTTP requests handled"},
		[]string{"method", "path", "status"},
	)
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency distribution",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)
	HTTPRateLimited = promauto.NewCounter(prometheus.CounterOpts{Namespace: namespace, Name: "http_rate_limited_total", Help: "Requests rejected by the rate limiter"})
)
