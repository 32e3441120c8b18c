package obs

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "choriad",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total HTTP requests processed.",
		},
		[]string{"method", "route", "code"},
	)
	httpRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "choriad",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request latency in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)

	webhookEventsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "choriad",
			Subsystem: "webhook",
			Name:      "events_total",
			Help:      "Payment webhook deliveries by event type and outcome.",
		},
		[]string{"event", "outcome"},
	)

	workerJobsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "choriad",
			Subsystem: "worker",
			Name:      "jobs_total",
			Help:      "Total outbox worker jobs processed.",
		},
		[]string{"worker", "result"},
	)
	workerJobDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "choriad",
			Subsystem: "worker",
			Name:      "job_duration_seconds",
			Help:      "Outbox worker job duration in seconds.",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2, 5},
		},
		[]string{"worker"},
	)
)

func init() {
	prometheus.MustRegister(httpRequestsTotal, httpRequestDuration, webhookEventsTotal, workerJobsTotal, workerJobDuration)
}

// RecordWebhookEvent counts one webhook delivery. Outcome is the terminal
// disposition: processed, already_processed, not_successful, ignored,
// rejected, or error.
func RecordWebhookEvent(event, outcome string) {
	webhookEventsTotal.WithLabelValues(event, outcome).Inc()
}

func RecordWorkerJob(worker string, start time.Time, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	workerJobsTotal.WithLabelValues(worker, result).Inc()
	workerJobDuration.WithLabelValues(worker).Observe(time.Since(start).Seconds())
}

// MetricsMiddleware records request count and latency per route.
func MetricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, code: http.StatusOK}
		next.ServeHTTP(rec, r)
		route := normalizeRouteLabel(r.URL.Path)
		httpRequestsTotal.WithLabelValues(r.Method, route, strconv.Itoa(rec.code)).Inc()
		httpRequestDuration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
	})
}

type statusRecorder struct {
	http.ResponseWriter
	code int
}

func (r *statusRecorder) WriteHeader(statusCode int) {
	r.code = statusCode
	r.ResponseWriter.WriteHeader(statusCode)
}

// Unwrap lets http.ResponseController reach Flusher/Hijacker on the
// underlying writer through the wrapper.
func (r *statusRecorder) Unwrap() http.ResponseWriter {
	return r.ResponseWriter
}

// normalizeRouteLabel collapses id-bearing paths so metric cardinality stays low.
func normalizeRouteLabel(path string) string {
	p := strings.TrimSpace(path)
	if p == "" {
		return "/"
	}
	if strings.HasPrefix(p, "/api/v1/bookings/") {
		rest := strings.TrimPrefix(p, "/api/v1/bookings/")
		if parts := strings.Split(rest, "/"); len(parts) == 2 && parts[1] == "release" {
			return "/api/v1/bookings/:id/release"
		}
		return "/api/v1/bookings/:id"
	}
	if strings.HasPrefix(p, "/api/v1/notifications/") {
		rest := strings.TrimPrefix(p, "/api/v1/notifications/")
		if rest == "read-all" {
			return p
		}
		if parts := strings.Split(rest, "/"); len(parts) == 2 && parts[1] == "read" {
			return "/api/v1/notifications/:id/read"
		}
		return "/api/v1/notifications/:id"
	}
	return p
}
