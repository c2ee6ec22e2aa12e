// Package metrics holds the service's prometheus collectors.
package metrics

import (
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/congo-pay/congo_ledger/internal/ledger"
)

const namespace = "congo_ledger"

// Metrics implements ledger.Observer, gateway.Recorder and the reconciliation recorder.
type Metrics struct {
	registry *prometheus.Registry

	operationsTotal *prometheus.CounterVec
	transitionTotal *prometheus.CounterVec
	webhookTotal    *prometheus.CounterVec
	gatewayLatency  *prometheus.HistogramVec
	httpReqTotal    *prometheus.CounterVec
	httpLatency     *prometheus.HistogramVec
}

// New registers every collector on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		operationsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ledger",
			Name:      "operations_total",
			Help:      "Ledger operations partitioned by operation and result code.",
		}, []string{"operation", "result"}),
		transitionTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ledger",
			Name:      "transitions_total",
			Help:      "Transaction record status transitions.",
		}, []string{"kind", "from", "to"}),
		webhookTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "reconcile",
			Name:      "events_total",
			Help:      "Gateway webhook events partitioned by event kind and outcome.",
		}, []string{"event", "outcome"}),
		gatewayLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "gateway",
			Name:      "request_duration_seconds",
			Help:      "Outbound gateway call latency.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 15},
		}, []string{"operation", "outcome"}),
		httpReqTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total HTTP requests",
		}, []string{"method", "route", "status"}),
		httpLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Request latency",
			Buckets:   []float64{0.005, 0.01, 0.05, 0.1, 0.5, 1},
		}, []string{"method", "route"}),
	}
}

// OperationCompleted counts an Engine.Execute outcome.
func (m *Metrics) OperationCompleted(op ledger.Operation, code string) {
	m.operationsTotal.WithLabelValues(string(op), code).Inc()
}

// Transitioned counts a committed status transition of one leg.
func (m *Metrics) Transitioned(kind ledger.Kind, from, to ledger.Status) {
	m.transitionTotal.WithLabelValues(string(kind), string(from), string(to)).Inc()
}

// EventHandled counts a webhook event.
func (m *Metrics) EventHandled(event, outcome string) {
	m.webhookTotal.WithLabelValues(event, outcome).Inc()
}

// GatewayCall observes an outbound gateway call.
func (m *Metrics) GatewayCall(operation, outcome string, elapsed time.Duration) {
	m.gatewayLatency.WithLabelValues(operation, outcome).Observe(elapsed.Seconds())
}

// Middleware records request counts and latency by matched route.
func (m *Metrics) Middleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()
		err := c.Next()
		route := c.Route().Path
		status := c.Response().StatusCode()
		if err != nil {
			if fe, ok := err.(*fiber.Error); ok {
				status = fe.Code
			} else if status < fiber.StatusBadRequest {
				status = fiber.StatusInternalServerError
			}
		}
		m.httpReqTotal.WithLabelValues(c.Method(), route, strconv.Itoa(status)).Inc()
		m.httpLatency.WithLabelValues(c.Method(), route).Observe(time.Since(start).Seconds())
		return err
	}
}

// Handler serves the registry in the prometheus exposition format.
func (m *Metrics) Handler() fiber.Handler {
	return adaptor.HTTPHandler(promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{}))
}

// Registry exposes the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

var _ ledger.Observer = (*Metrics)(nil)
