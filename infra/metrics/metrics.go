package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "oxipay"

// Metrics holds the reconciliation and HTTP collectors
type Metrics struct {
	// HTTP metrics
	HTTPRequestsTotal    *prometheus.CounterVec
	HTTPRequestDuration  *prometheus.HistogramVec
	HTTPRequestsInFlight prometheus.Gauge

	// Reconciliation metrics
	CallbacksTotal       *prometheus.CounterVec
	OutcomesTotal        *prometheus.CounterVec
	DispatchesTotal      *prometheus.CounterVec
	StockRevertedTotal   prometheus.Counter
	LockWaitDuration     prometheus.Histogram
	SignatureAlertsTotal prometheus.Counter
}

// New registers every collector with reg. A nil reg uses the default registerer.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &Metrics{
		HTTPRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "http",
				Name:      "requests_total",
				Help:      "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "http",
				Name:      "request_duration_seconds",
				Help:      "HTTP request duration in seconds",
				Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
			},
			[]string{"method", "path"},
		),
		HTTPRequestsInFlight: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "http",
				Name:      "requests_in_flight",
				Help:      "Current number of HTTP requests being processed",
			},
		),

		CallbacksTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "reconcile",
				Name:      "callbacks_total",
				Help:      "Callbacks received, by classification verdict",
			},
			[]string{"verdict"},
		),
		OutcomesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "reconcile",
				Name:      "outcomes_total",
				Help:      "Reconciliation results, by operation and outcome",
			},
			[]string{"operation", "outcome"}, // operation: callback, cancel
		),
		DispatchesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "reconcile",
				Name:      "dispatches_total",
				Help:      "Checkout dispatch attempts, by result",
			},
			[]string{"result"}, // dispatched, rejected, error
		),
		StockRevertedTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "reconcile",
				Name:      "stock_reverted_units_total",
				Help:      "Units returned to stock after failed or cancelled payments",
			},
		),
		LockWaitDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "reconcile",
				Name:      "lock_wait_seconds",
				Help:      "Time spent waiting for a per-session lock",
				Buckets:   []float64{.001, .005, .01, .05, .1, .5, 1, 5},
			},
		),
		SignatureAlertsTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "reconcile",
				Name:      "signature_alerts_total",
				Help:      "Inbound requests rejected for a bad signature",
			},
		),
	}
}

// RecordHTTPRequest records an HTTP request
func (m *Metrics) RecordHTTPRequest(method, path string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	m.HTTPRequestsTotal.WithLabelValues(method, path, strconv.Itoa(status)).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// RecordCallback counts a classified callback. Invalid signatures also raise the alert counter.
func (m *Metrics) RecordCallback(verdict string) {
	if m == nil {
		return
	}
	m.CallbacksTotal.WithLabelValues(verdict).Inc()
	if verdict == "invalid" {
		m.SignatureAlertsTotal.Inc()
	}
}

// RecordOutcome counts the result of a callback or cancel
func (m *Metrics) RecordOutcome(operation, outcome string) {
	if m == nil {
		return
	}
	m.OutcomesTotal.WithLabelValues(operation, outcome).Inc()
}

// RecordDispatch counts a checkout start attempt
func (m *Metrics) RecordDispatch(result string) {
	if m == nil {
		return
	}
	m.DispatchesTotal.WithLabelValues(result).Inc()
}

// RecordStockReverted adds units returned to stock
func (m *Metrics) RecordStockReverted(units int) {
	if m == nil || units <= 0 {
		return
	}
	m.StockRevertedTotal.Add(float64(units))
}

// RecordSignatureAlert counts a rejected signature outside callback classification
func (m *Metrics) RecordSignatureAlert() {
	if m == nil {
		return
	}
	m.SignatureAlertsTotal.Inc()
}

// ObserveLockWait records how long a session lock took to acquire
func (m *Metrics) ObserveLockWait(d time.Duration) {
	if m == nil {
		return
	}
	m.LockWaitDuration.Observe(d.Seconds())
}
