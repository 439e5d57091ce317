package metrics

import (
	"net/http"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	ExportRuns = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "telescribe_export_runs_total",
		Help: "Total per-conversation export runs",
	})
	ExportErrors = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "telescribe_export_errors_total",
		Help: "Total export runs that ended in a stream failure",
	})
	ExportDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "telescribe_export_duration_seconds",
		Help:    "Per-conversation export duration seconds",
		Buckets: prometheus.DefBuckets,
	})
	MessagesExported = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "telescribe_messages_exported_total",
		Help: "Total messages accumulated across exports",
	})
	ThrottleWaits = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "telescribe_throttle_waits_total",
		Help: "Total server-mandated throttle waits",
	}, []string{"op"})
	ThrottleWaitSeconds = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "telescribe_throttle_wait_seconds_total",
		Help: "Total seconds spent in server-mandated throttle waits",
	}, []string{"op"})
	ResolverHits = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "telescribe_resolver_cache_hits_total",
		Help: "User resolutions served from the run cache",
	})
	ResolverMisses = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "telescribe_resolver_cache_misses_total",
		Help: "User resolutions that required a remote call",
	})
)

func init() {
	prometheus.MustRegister(ExportRuns, ExportErrors, ExportDuration, MessagesExported,
		ThrottleWaits, ThrottleWaitSeconds, ResolverHits, ResolverMisses)
}

// StartServer starts a metrics HTTP server on addr (e.g., ":9090").
// With an empty addr it falls back to METRICS_ADDR, and does nothing when
// that is unset too.
func StartServer(addr string) {
	if addr == "" {
		addr = os.Getenv("METRICS_ADDR")
	}
	if addr == "" {
		return
	}
	http.Handle("/metrics", promhttp.Handler())
	http.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })
	go func() { _ = http.ListenAndServe(addr, nil) }()
}

// ObserveExportDuration records one run's duration.
func ObserveExportDuration(start time.Time) {
	ExportDuration.Observe(time.Since(start).Seconds())
}

// ObserveThrottleWait accounts one throttle wait for an operation class.
func ObserveThrottleWait(op string, d time.Duration) {
	ThrottleWaits.WithLabelValues(op).Inc()
	ThrottleWaitSeconds.WithLabelValues(op).Add(d.Seconds())
}
