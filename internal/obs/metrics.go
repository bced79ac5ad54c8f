package obs

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	httpInFlight = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "http_in_flight_requests",
		Help: "In-flight HTTP requests.",
	})

	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"method", "path", "status"},
	)

	httpRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latencies in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)

	ready = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "service_ready",
		Help: "1 when the service considers itself ready.",
	})

	sessionsSwept = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sessions_swept_total",
			Help: "Sessions closed by sweep jobs, labelled by reason.",
		},
		[]string{"reason"},
	)

	staleSessionsDeleted = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "stale_sessions_deleted_total",
		Help: "Closed sessions garbage-collected past the retention window.",
	})

	usersDeactivated = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "users_deactivated_total",
		Help: "Accounts deactivated by the release-date sweep.",
	})

	sweepErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sweep_errors_total",
			Help: "Errors swallowed by sweep jobs, labelled by job.",
		},
		[]string{"job"},
	)
)

// Init registers metrics in the default registry.
func Init() {
	prometheus.MustRegister(
		httpInFlight, httpRequestsTotal, httpRequestDuration, ready,
		sessionsSwept, staleSessionsDeleted, usersDeactivated, sweepErrors,
	)
}

// Handler exposes the Prometheus scrape endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// SetReady flips the readiness gauge.
func SetReady(ok bool) {
	if ok {
		ready.Set(1)
	} else {
		ready.Set(0)
	}
}

// CountSessionsSwept adds n to the sweep counter for the given reason.
func CountSessionsSwept(reason string, n int64) {
	if n > 0 {
		sessionsSwept.WithLabelValues(reason).Add(float64(n))
	}
}

// CountStaleSessionsDeleted adds n to the stale-session deletion counter.
func CountStaleSessionsDeleted(n int64) {
	if n > 0 {
		staleSessionsDeleted.Add(float64(n))
	}
}

// CountUserDeactivated increments the deactivation counter.
func CountUserDeactivated() {
	usersDeactivated.Inc()
}

// CountSweepError increments the swallowed-error counter for a sweep job.
func CountSweepError(job string) {
	sweepErrors.WithLabelValues(job).Inc()
}

// CanonicalPath collapses identifier segments so metric labels stay bounded.
func CanonicalPath(path string) string {
	if path == "" {
		return "/"
	}
	if i := strings.IndexByte(path, '?'); i >= 0 {
		path = path[:i]
	}
	parts := strings.Split(path, "/")
	if len(parts) >= 4 && parts[1] == "v1" && parts[2] == "users" && parts[3] != "" {
		parts[3] = ":id"
		if len(parts) > 5 {
			return path
		}
		return strings.Join(parts, "/")
	}
	return path
}

// Instrument wraps next with request count, latency and in-flight metrics.
func Instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path := CanonicalPath(r.URL.Path)
		method := r.Method

		httpInFlight.Inc()
		start := time.Now()

		sw := &statusWriter{ResponseWriter: w, code: 200}
		next.ServeHTTP(sw, r)

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(sw.code)

		httpRequestDuration.WithLabelValues(method, path, status).Observe(duration)
		httpRequestsTotal.WithLabelValues(method, path, status).Inc()
		httpInFlight.Dec()
	})
}

// statusWriter captures the response code for metric labels.
type statusWriter struct {
	http.ResponseWriter
	code int
}

func (w *statusWriter) WriteHeader(code int) {
	w.code = code
	w.ResponseWriter.WriteHeader(code)
}
