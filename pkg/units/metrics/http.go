package metrics

import (
	"net/http"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// HTTPMetrics instruments HTTP handlers with Prometheus collectors and keeps
// a few atomic totals for quick JSON stats.
type HTTPMetrics struct {
	requests *prometheus.CounterVec
	duration *prometheus.HistogramVec
	inFlight prometheus.Gauge

	requestCount    int64
	errorCount      int64
	pendingRequests int64
	startTime       time.Time
}

// HTTPStats represents current HTTP statistics
type HTTPStats struct {
	RequestCount    int64     `json:"request_count"`
	ErrorCount      int64     `json:"error_count"`
	ErrorRate       float64   `json:"error_rate"`   // Percentage
	RequestRate     float64   `json:"request_rate"` // Per second
	PendingRequests int64     `json:"pending_requests"`
	Timestamp       time.Time `json:"timestamp"`
}

// NewHTTPMetrics creates the collectors and registers them with reg.
func NewHTTPMetrics(reg prometheus.Registerer) *HTTPMetrics {
	h := &HTTPMetrics{
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "HTTP requests served, by handler and status code.",
		}, []string{"handler", "code"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: Namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request latency, by handler.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"handler"}),
		inFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: Namespace,
			Subsystem: "http",
			Name:      "requests_in_flight",
			Help:      "HTTP requests currently being served.",
		}),
		startTime: time.Now(),
	}
	reg.MustRegister(h.requests, h.duration, h.inFlight)
	return h
}

// ResponseWriter wrapper to capture status codes
type responseWriter struct {
	http.ResponseWriter
	statusCode int
	written    bool
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.written = true
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Write(data []byte) (int, error) {
	if !rw.written {
		rw.statusCode = http.StatusOK
		rw.written = true
	}
	return rw.ResponseWriter.Write(data)
}

// Middleware instruments next under the given handler label.
func (h *HTTPMetrics) Middleware(handler string, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		atomic.AddInt64(&h.pendingRequests, 1)
		h.inFlight.Inc()
		defer func() {
			atomic.AddInt64(&h.pendingRequests, -1)
			h.inFlight.Dec()
		}()

		wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		next(wrapped, r)

		h.duration.WithLabelValues(handler).Observe(time.Since(start).Seconds())
		h.requests.WithLabelValues(handler, strconv.Itoa(wrapped.statusCode)).Inc()
		atomic.AddInt64(&h.requestCount, 1)
		if wrapped.statusCode >= 400 {
			atomic.AddInt64(&h.errorCount, 1)
		}
	}
}

// GetStats returns current HTTP statistics
func (h *HTTPMetrics) GetStats() HTTPStats {
	requestCount := atomic.LoadInt64(&h.requestCount)
	errorCount := atomic.LoadInt64(&h.errorCount)

	stats := HTTPStats{
		RequestCount:    requestCount,
		ErrorCount:      errorCount,
		PendingRequests: atomic.LoadInt64(&h.pendingRequests),
		Timestamp:       time.Now(),
	}
	if requestCount > 0 {
		stats.ErrorRate = float64(errorCount) / float64(requestCount) * 100
		if uptime := time.Since(h.startTime); uptime > 0 {
			stats.RequestRate = float64(requestCount) / uptime.Seconds()
		}
	}
	return stats
}
