// Package metrics builds the Prometheus metrics every service exposes on
// its /metrics endpoint, grouped the way the teacher groups them: one set
// for inbound HTTP, one for outbound calls to the downstream systems, and
// one for the business events the saga and reactor produce.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// HTTP holds metrics for a service's own inbound HTTP surface.
type HTTP struct {
	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec
}

// NewHTTP creates inbound HTTP metrics for a service.
func NewHTTP(serviceName string) *HTTP {
	return &HTTP{
		RequestsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: serviceName + "_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		RequestDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    serviceName + "_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),
	}
}

// Record observes one HTTP request.
func (m *HTTP) Record(method, path, status string, duration time.Duration) {
	m.RequestsTotal.WithLabelValues(method, path, status).Inc()
	m.RequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// External holds metrics for outbound calls the saga orchestrator makes
// to CMS, WMS, and ROS.
type External struct {
	CallsTotal   *prometheus.CounterVec
	CallDuration *prometheus.HistogramVec
}

// NewExternal creates outbound-call metrics for a service.
func NewExternal(serviceName string) *External {
	return &External{
		CallsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: serviceName + "_external_calls_total",
				Help: "Total number of calls to downstream systems",
			},
			[]string{"system", "operation", "status"},
		),
		CallDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    serviceName + "_external_call_duration_seconds",
				Help:    "Downstream system call duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"system", "operation"},
		),
	}
}

// Record observes one downstream call. system is one of "cms", "wms",
// "ros"; status is "ok" or "error".
func (m *External) Record(system, operation, status string, duration time.Duration) {
	m.CallsTotal.WithLabelValues(system, operation, status).Inc()
	m.CallDuration.WithLabelValues(system, operation).Observe(duration.Seconds())
}

// Business holds counters for the order lifecycle events spec.md's
// saga, reactor, and auto-assigner produce.
type Business struct {
	OrdersCreated       prometheus.Counter
	OrdersCompleted     prometheus.Counter
	SagaStepsFailed     *prometheus.CounterVec
	SagaCompensations   *prometheus.CounterVec
	DeliveryAttempts    prometheus.Counter
	DriverAssignments   *prometheus.CounterVec
	SagaStepDuration    *prometheus.HistogramVec
}

// NewBusiness creates business event counters for a service.
func NewBusiness(serviceName string) *Business {
	return &Business{
		OrdersCreated: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: serviceName + "_orders_created_total",
				Help: "Total number of orders created",
			},
		),
		OrdersCompleted: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: serviceName + "_orders_completed_total",
				Help: "Total number of orders delivered successfully",
			},
		),
		SagaStepsFailed: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: serviceName + "_saga_steps_failed_total",
				Help: "Total number of saga steps that failed",
			},
			[]string{"step"},
		),
		SagaCompensations: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: serviceName + "_saga_compensations_total",
				Help: "Total number of compensating actions executed",
			},
			[]string{"step", "status"},
		),
		DeliveryAttempts: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: serviceName + "_delivery_attempts_total",
				Help: "Total number of delivery attempts recorded",
			},
		),
		DriverAssignments: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: serviceName + "_driver_assignments_total",
				Help: "Total number of driver assignments made",
			},
			[]string{"role"},
		),
		SagaStepDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    serviceName + "_saga_step_duration_seconds",
				Help:    "Duration of each saga step",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"step"},
		),
	}
}
