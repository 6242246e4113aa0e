package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/shopspring/decimal"

	"github.com/parkwise/parkwise/internal/pricing"
)

// Metrics collects the Prometheus metrics of the service.
type Metrics struct {
	registry        *prometheus.Registry
	handler         http.Handler
	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	sessionsOpened  prometheus.Counter
	sessionsClosed  *prometheus.CounterVec
	feesCharged     *prometheus.CounterVec
	feeRuleMissing  *prometheus.CounterVec
	batchRecalcs    *prometheus.CounterVec
}

// NewMetrics initialises the registry with HTTP and domain metrics.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()
	requests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "parkwise_http_requests_total",
		Help: "HTTP requests by route and status.",
	}, []string{"route", "code"})
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "parkwise_http_request_duration_seconds",
		Help:    "HTTP request duration per route.",
		Buckets: prometheus.DefBuckets,
	}, []string{"route"})
	opened := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "parkwise_sessions_opened_total",
		Help: "Parking sessions opened at the gate.",
	})
	closed := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "parkwise_sessions_closed_total",
		Help: "Parking sessions closed by final status.",
	}, []string{"status"})
	charged := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "parkwise_fees_charged_total",
		Help: "Sum of final fees charged by session status.",
	}, []string{"status"})
	missing := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "parkwise_fee_rule_missing_total",
		Help: "Fee quotes without a single-entry pricing rule.",
	}, []string{"key"})
	recalcs := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "parkwise_return_batch_recalculations_total",
		Help: "Return batch recalculations by resulting refund status.",
	}, []string{"refund_status"})
	registry.MustRegister(requests, duration, opened, closed, charged, missing, recalcs,
		collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	return &Metrics{
		registry:        registry,
		handler:         promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		requestsTotal:   requests,
		requestDuration: duration,
		sessionsOpened:  opened,
		sessionsClosed:  closed,
		feesCharged:     charged,
		feeRuleMissing:  missing,
		batchRecalcs:    recalcs,
	}
}

// Handler returns the /metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, http.StatusText(http.StatusServiceUnavailable), http.StatusServiceUnavailable)
		})
	}
	return m.handler
}

// Middleware records metrics for every HTTP request.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	if m == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		recorder := statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(&recorder, r)
		route := routePattern(r)
		m.requestsTotal.WithLabelValues(route, strconv.Itoa(recorder.status)).Inc()
		m.requestDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
	})
}

// Registerer exposes the registry for custom collectors.
func (m *Metrics) Registerer() prometheus.Registerer {
	if m == nil {
		return prometheus.DefaultRegisterer
	}
	return m.registry
}

// SessionOpened counts a gate entry.
func (m *Metrics) SessionOpened() {
	if m == nil {
		return
	}
	m.sessionsOpened.Inc()
}

// SessionClosed counts a closed session and the fee it was charged.
func (m *Metrics) SessionClosed(status string, finalFee decimal.Decimal) {
	if m == nil {
		return
	}
	m.sessionsClosed.WithLabelValues(status).Inc()
	m.feesCharged.WithLabelValues(status).Add(finalFee.InexactFloat64())
}

// FeeRuleMissing counts a fee quote that found no pricing rule.
func (m *Metrics) FeeRuleMissing(key pricing.DimensionKey) {
	if m == nil {
		return
	}
	m.feeRuleMissing.WithLabelValues(key.String()).Inc()
}

// ReturnBatchRecalculated counts a reconciliation run.
func (m *Metrics) ReturnBatchRecalculated(status string) {
	if m == nil {
		return
	}
	m.batchRecalcs.WithLabelValues(status).Inc()
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func routePattern(r *http.Request) string {
	if routeCtx := chi.RouteContext(r.Context()); routeCtx != nil {
		if pattern := routeCtx.RoutePattern(); pattern != "" {
			return pattern
		}
	}
	return "unknown"
}
