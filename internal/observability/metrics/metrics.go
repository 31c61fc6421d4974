// Package metrics provides Prometheus instrumentation for attestry.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	enabled     bool
	serviceName string

	// HTTP metrics
	httpRequestsTotal *prometheus.CounterVec
	httpDuration      *prometheus.HistogramVec

	// Verification domain metrics
	verificationTotal *prometheus.CounterVec
	matchStoreTotal   *prometheus.CounterVec
	importTotal       *prometheus.CounterVec

	// Session metrics
	sessionsActive prometheus.GaugeFunc
)

// Init initializes the metrics system.
func Init(enabledFlag bool, svcName string) {
	enabled = enabledFlag
	serviceName = svcName

	if !enabled {
		return
	}

	// HTTP request counter
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	// HTTP request duration histogram
	httpDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	// Verification attempt counter by pathway and outcome
	verificationTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "verification_total",
			Help: "Total number of verification attempts",
		},
		[]string{"pathway", "status"},
	)

	// Persisted match counter
	matchStoreTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "match_store_total",
			Help: "Total number of verified contract writes",
		},
		[]string{"chain_id", "status"},
	)

	// Explorer import counter
	importTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "explorer_import_total",
			Help: "Total number of explorer imports",
		},
		[]string{"chain_id", "status"},
	)

	// Note: Go runtime metrics (goroutines, memory, GC) are automatically
	// collected by prometheus/client_golang - no custom collector needed
}

// RegisterSessionGauge exposes the live session count. The counter function
// is polled at scrape time.
func RegisterSessionGauge(count func() int) {
	if !enabled {
		return
	}
	sessionsActive = promauto.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: "sessions_active",
			Help: "Number of live verification sessions",
		},
		func() float64 { return float64(count()) },
	)
}

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	if !enabled {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusNotFound)
		})
	}
	return promhttp.Handler()
}

// Enabled returns whether metrics are enabled.
func Enabled() bool {
	return enabled
}

// ServiceName returns the configured service name for metric labels.
func ServiceName() string {
	return serviceName
}
