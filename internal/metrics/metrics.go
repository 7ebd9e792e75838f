package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector holds the scheduling service metrics. A nil *Collector is valid
// and records nothing, so components can be built without metrics in tests.
type Collector struct {
	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec

	BookingsTotal    *prometheus.CounterVec
	TransitionsTotal *prometheus.CounterVec
	LockWait         prometheus.Histogram
	StoreOpDuration  *prometheus.HistogramVec
	EventsDropped    prometheus.Counter
}

func NewCollector(namespace string, reg prometheus.Registerer) *Collector {
	factory := promauto.With(reg)

	return &Collector{
		RequestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests by method, route, and status code.",
		}, []string{"method", "route", "status"}),

		RequestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request latency distribution.",
			Buckets:   []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0},
		}, []string{"method", "route"}),

		BookingsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "scheduling",
			Name:      "operations_total",
			Help:      "Scheduling engine operations by operation and outcome kind.",
		}, []string{"operation", "outcome"}),

		TransitionsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "scheduling",
			Name:      "status_transitions_total",
			Help:      "Committed appointment status transitions by target status.",
		}, []string{"to"}),

		LockWait: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "scheduling",
			Name:      "doctor_lock_wait_seconds",
			Help:      "Time spent waiting for a per-doctor lock.",
			Buckets:   []float64{0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 3},
		}),

		StoreOpDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "store",
			Name:      "operation_duration_seconds",
			Help:      "Appointment store call latency distribution.",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1.0},
		}, []string{"operation"}),

		EventsDropped: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "events",
			Name:      "dropped_total",
			Help:      "Lifecycle events that could not be recorded. Alert if non-zero.",
		}),
	}
}

func (c *Collector) ObserveBooking(operation, outcome string) {
	if c == nil {
		return
	}
	c.BookingsTotal.WithLabelValues(operation, outcome).Inc()
}

func (c *Collector) ObserveTransition(to string) {
	if c == nil {
		return
	}
	c.TransitionsTotal.WithLabelValues(to).Inc()
}

func (c *Collector) ObserveLockWait(d time.Duration) {
	if c == nil {
		return
	}
	c.LockWait.Observe(d.Seconds())
}

func (c *Collector) ObserveStoreOp(operation string, d time.Duration) {
	if c == nil {
		return
	}
	c.StoreOpDuration.WithLabelValues(operation).Observe(d.Seconds())
}

func (c *Collector) ObserveRequest(method, route string, status int, d time.Duration) {
	if c == nil {
		return
	}
	c.RequestsTotal.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	c.RequestDuration.WithLabelValues(method, route).Observe(d.Seconds())
}

func (c *Collector) EventDropped() {
	if c == nil {
		return
	}
	c.EventsDropped.Inc()
}

// Handler serves the given gatherer in the Prometheus text format.
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}
