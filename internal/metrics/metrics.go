// Package metrics provides Prometheus instrumentation for the intelligence core.
package metrics

import (
	"context"
	"runtime"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// HTTPRequestsTotal counts HTTP requests by method, path, and status.
	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "chainsight",
			Name:      "http_requests_total",
			Help:      "Total HTTP requests by method, path pattern, and status code.",
		},
		[]string{"method", "path", "status"},
	)

	// HTTPRequestDuration observes request latency by method and path.
	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "chainsight",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	// FetchAttemptsTotal counts cascade attempts by capability and outcome.
	FetchAttemptsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "chainsight",
			Name:      "fetch_attempts_total",
			Help:      "Cascade fetch attempts by capability and outcome (success, failure, timeout, skipped).",
		},
		[]string{"capability", "outcome"},
	)

	// SyntheticFallbacksTotal counts cascades that exhausted every candidate
	// and fell back to synthesized data.
	SyntheticFallbacksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "chainsight",
			Name:      "synthetic_fallbacks_total",
			Help:      "Cascades resolved with locally synthesized data, by capability.",
		},
		[]string{"capability"},
	)

	// FetchDuration observes end-to-end cascade latency by capability.
	FetchDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "chainsight",
			Name:      "fetch_duration_seconds",
			Help:      "End-to-end cascade duration in seconds, by capability.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 4, 8, 16},
		},
		[]string{"capability"},
	)

	// ActiveSessions tracks investigation sessions currently held in memory.
	ActiveSessions = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "chainsight",
			Name:      "active_sessions",
			Help:      "Number of investigation sessions currently in memory.",
		},
	)

	// SupersededResultsTotal counts late capability results discarded because
	// a newer query replaced their session.
	SupersededResultsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "chainsight",
			Name:      "superseded_results_total",
			Help:      "Late capability results discarded after their session was superseded.",
		},
	)

	// ActiveWebSocketClients tracks connected WebSocket clients.
	ActiveWebSocketClients = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "chainsight",
			Name:      "active_websocket_clients",
			Help:      "Number of currently connected WebSocket clients.",
		},
	)

	// LayoutIterations observes force-layout iteration counts per graph.
	LayoutIterations = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "chainsight",
		Name:      "layout_iterations",
		Help:      "Force-directed layout iterations run before stabilization.",
		Buckets:   []float64{10, 25, 50, 100, 200, 300},
	})

	// GraphNodesRendered observes the size of normalized graphs.
	GraphNodesRendered = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "chainsight",
		Name:      "graph_nodes_rendered",
		Help:      "Node count of normalized graphs handed to the layout engine.",
		Buckets:   []float64{1, 5, 10, 25, 50, 100, 250, 500},
	})

	// GoroutineCount tracks the current number of goroutines.
	GoroutineCount = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "chainsight", Name: "goroutines",
		Help: "Current number of goroutines.",
	})
)

func init() {
	prometheus.MustRegister(
		HTTPRequestsTotal,
		HTTPRequestDuration,
		FetchAttemptsTotal,
		SyntheticFallbacksTotal,
		FetchDuration,
		ActiveSessions,
		SupersededResultsTotal,
		ActiveWebSocketClients,
		LayoutIterations,
		GraphNodesRendered,
		GoroutineCount,
	)
}

// StartRuntimeSampler periodically samples the goroutine count into its
// gauge. Call in a goroutine; exits when ctx is done.
func StartRuntimeSampler(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			GoroutineCount.Set(float64(runtime.NumGoroutine()))
		}
	}
}

// Middleware returns a gin middleware that records request metrics.
func Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		timer := prometheus.NewTimer(HTTPRequestDuration.WithLabelValues(
			c.Request.Method,
			c.FullPath(), // Uses route pattern, not actual path (avoids cardinality explosion)
		))

		c.Next()

		timer.ObserveDuration()
		HTTPRequestsTotal.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
			statusBucket(c.Writer.Status()),
		).Inc()
	}
}

// Handler returns the Prometheus metrics HTTP handler for /metrics endpoint.
func Handler() gin.HandlerFunc {
	h := promhttp.Handler()
	return func(c *gin.Context) {
		h.ServeHTTP(c.Writer, c.Request)
	}
}

// statusBucket groups HTTP status codes into buckets (2xx, 3xx, 4xx, 5xx).
func statusBucket(code int) string {
	switch {
	case code < 200:
		return "1xx"
	case code < 300:
		return "2xx"
	case code < 400:
		return "3xx"
	case code < 500:
		return "4xx"
	default:
		return "5xx"
	}
}
