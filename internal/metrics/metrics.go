package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	RequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "http_requests_total", Help: "Total HTTP requests"},
		[]string{"route", "method", "status"},
	)
	ReqDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Request duration seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"route", "method"},
	)
	InFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{Name: "http_in_flight_requests", Help: "In-flight HTTP requests"},
	)

	AuthAttempts = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "auth_attempts_total", Help: "Sign-in attempts by kind and outcome"},
		[]string{"kind", "success"},
	)
	SyncJobsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "sync_jobs_total", Help: "Sync jobs reaching a terminal status"},
		[]string{"status"},
	)
	SyncPhaseDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "sync_phase_duration_seconds",
			Help:    "Duration of each sync pipeline phase",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 12),
		},
		[]string{"phase"},
	)
)

func MustRegister() {
	prometheus.MustRegister(
		RequestsTotal, ReqDuration, InFlight,
		AuthAttempts, SyncJobsTotal, SyncPhaseDuration,
	)
}
