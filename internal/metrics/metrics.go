// Package metrics provides Prometheus instrumentation for the allocation game.
package metrics

import (
	"bufio"
	"errors"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// TurnsTotal counts simulated turns across all sessions.
	TurnsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "atmx_turns_total",
		Help: "Total number of simulated turns",
	})

	// TurnLatency tracks simulation plus persistence of one turn.
	TurnLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "atmx_turn_latency_seconds",
		Help:    "Turn simulation latency in seconds",
		Buckets: prometheus.DefBuckets,
	})

	// TransactionsTotal counts executed transactions, partitioned by direction.
	TransactionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "atmx_transactions_total",
		Help: "Total number of transactions executed",
	}, []string{"direction"})

	// TransactionRejections counts transactions refused by the ledger or session.
	TransactionRejections = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "atmx_transaction_rejections_total",
		Help: "Transactions rejected, by reason",
	}, []string{"reason"})

	// FeesCollected accumulates transaction fees in currency units.
	FeesCollected = promauto.NewCounter(prometheus.CounterOpts{
		Name: "atmx_fees_collected_total",
		Help: "Cumulative transaction fees",
	})

	// Bankruptcies counts participant bailouts.
	Bankruptcies = promauto.NewCounter(prometheus.CounterOpts{
		Name: "atmx_bankruptcies_total",
		Help: "Participants bailed out after their portfolio reached zero",
	})

	// CorrelationFallbacks counts draws that fell back to independent noise.
	CorrelationFallbacks = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "atmx_correlation_fallbacks_total",
		Help: "Cholesky failures that degraded to uncorrelated draws",
	}, []string{"source"})

	// ProjectionLatency tracks Monte Carlo projection runs.
	ProjectionLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "atmx_projection_latency_seconds",
		Help:    "Monte Carlo projection latency in seconds",
		Buckets: []float64{0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
	})

	// PersistFailures counts store writes that failed after a state change.
	PersistFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "atmx_persist_failures_total",
		Help: "Store writes that failed and evicted a session",
	}, []string{"op"})

	// ActiveSessions tracks the number of sessions in the active state.
	ActiveSessions = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "atmx_active_sessions",
		Help: "Number of currently active sessions",
	})

	// WebSocketClients tracks connected WebSocket clients.
	WebSocketClients = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "atmx_websocket_clients",
		Help: "Number of connected WebSocket clients",
	})

	// HTTPRequestsTotal counts HTTP requests by method, path, and status.
	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "atmx_http_requests_total",
		Help: "Total HTTP requests",
	}, []string{"method", "path", "status"})

	// HTTPRequestDuration tracks request duration by method and path.
	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "atmx_http_request_duration_seconds",
		Help:    "HTTP request duration in seconds",
		Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0},
	}, []string{"method", "path"})
)

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Middleware returns an HTTP middleware that records request metrics.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapped := &statusWriter{ResponseWriter: w, status: 200}
		next.ServeHTTP(wrapped, r)
		duration := time.Since(start).Seconds()

		path := routePattern(r)
		HTTPRequestsTotal.WithLabelValues(r.Method, path, strconv.Itoa(wrapped.status)).Inc()
		HTTPRequestDuration.WithLabelValues(r.Method, path).Observe(duration)
	})
}

// routePattern returns the matched chi pattern (e.g. /api/v1/sessions/{id})
// so session ids do not explode label cardinality.
func routePattern(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		if p := rctx.RoutePattern(); p != "" {
			return p
		}
	}
	return "unmatched"
}

// statusWriter wraps http.ResponseWriter to capture the status code.
type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

func (w *statusWriter) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}

// Hijack passes through to the wrapped writer so WebSocket upgrades work
// behind this middleware.
func (w *statusWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := w.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("metrics: response writer does not support hijacking")
	}
	return h.Hijack()
}
