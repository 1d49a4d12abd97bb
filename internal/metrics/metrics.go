package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "secondmind_http_requests_total",
			Help: "Total HTTP requests by method, path, and status",
		},
		[]string{"method", "path", "status"},
	)

	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "secondmind_http_request_duration_seconds",
			Help:    "HTTP request latency distribution",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1},
		},
		[]string{"method", "path"},
	)

	notificationsScheduled = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "secondmind_notifications_scheduled_total",
			Help: "Total notifications persisted for delivery, by type",
		},
		[]string{"type"},
	)

	notificationsDelivered = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "secondmind_notifications_delivered_total",
			Help: "Total notifications delivered, by type and channel",
		},
		[]string{"type", "channel"},
	)

	deliveryFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "secondmind_delivery_failures_total",
			Help: "Failed delivery attempts, by channel",
		},
		[]string{"channel"},
	)

	duplicatesSuppressed = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "secondmind_duplicate_sends_suppressed_total",
			Help: "Delivery attempts aborted by the idempotency guards",
		},
	)

	pollTicks = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "secondmind_poll_ticks_total",
			Help: "Poller sweeps executed",
		},
	)

	preciseTimersArmed = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "secondmind_precise_timers_armed_total",
			Help: "In-process precise timers armed for near-term notifications",
		},
	)

	deliveryLatency = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "secondmind_delivery_latency_seconds",
			Help:    "Delay between scheduled time and actual delivery",
			Buckets: []float64{.1, .5, 1, 2, 5, 10, 30, 60},
		},
	)

	generatorRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "secondmind_generator_runs_total",
			Help: "Periodic content generator executions, by kind",
		},
		[]string{"kind"},
	)

	idempotencyHits = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "secondmind_idempotency_hits_total",
			Help: "Requests served from idempotency cache",
		},
	)

	rateLimitRejections = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "secondmind_rate_limit_rejections_total",
			Help: "Requests rejected by rate limiter",
		},
		[]string{"user_id"},
	)
)

// Handler returns the Prometheus metrics HTTP handler
func Handler() http.Handler {
	return promhttp.Handler()
}

// RecordRequest records HTTP request metrics
func RecordRequest(method, path string, status int, duration time.Duration) {
	httpRequestsTotal.WithLabelValues(method, path, strconv.Itoa(status)).Inc()
	httpRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// RecordNotificationScheduled records a successful schedule() persist
func RecordNotificationScheduled(notificationType string) {
	notificationsScheduled.WithLabelValues(notificationType).Inc()
}

// RecordNotificationDelivered records a confirmed delivery
func RecordNotificationDelivered(notificationType, channel string) {
	notificationsDelivered.WithLabelValues(notificationType, channel).Inc()
}

// RecordDeliveryFailure records a failed delivery attempt
func RecordDeliveryFailure(channel string) {
	deliveryFailures.WithLabelValues(channel).Inc()
}

// RecordDuplicateSuppressed records an aborted duplicate delivery attempt
func RecordDuplicateSuppressed() {
	duplicatesSuppressed.Inc()
}

// RecordPollTick records one poller sweep
func RecordPollTick() {
	pollTicks.Inc()
}

// RecordPreciseTimerArmed records a timer armed for a near-term record
func RecordPreciseTimerArmed() {
	preciseTimersArmed.Inc()
}

// RecordDeliveryLatency records how late a notification fired
func RecordDeliveryLatency(latency time.Duration) {
	deliveryLatency.Observe(latency.Seconds())
}

// RecordGeneratorRun records one periodic generator execution
func RecordGeneratorRun(kind string) {
	generatorRuns.WithLabelValues(kind).Inc()
}

// RecordIdempotencyHit records a cache hit for idempotency
func RecordIdempotencyHit() {
	idempotencyHits.Inc()
}

// RecordRateLimitRejection records a rate limit rejection
func RecordRateLimitRejection(userID string) {
	rateLimitRejections.WithLabelValues(userID).Inc()
}

// responseWriter wraps http.ResponseWriter to capture status code
type responseWriter struct {
	http.ResponseWriter
	status int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}

// Middleware returns HTTP middleware that records request metrics
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapped := &responseWriter{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(wrapped, r)

		RecordRequest(r.Method, r.URL.Path, wrapped.status, time.Since(start))
	})
}
