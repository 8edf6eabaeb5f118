// Package metrics exposes reservation counters to Prometheus
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the service's collectors. A nil *Metrics is valid and
// records nothing.
type Metrics struct {
	registry          *prometheus.Registry
	bookingsCreated   prometheus.Counter
	bookingsConfirmed prometheus.Counter
	bookingsCancelled *prometheus.CounterVec
	seatConflicts     prometheus.Counter
	payments          *prometheus.CounterVec
	discountsApplied  prometheus.Counter
	sweepDuration     *prometheus.HistogramVec
}

// New registers every collector on a fresh registry
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	f := promauto.With(reg)

	return &Metrics{
		registry: reg,
		bookingsCreated: f.NewCounter(prometheus.CounterOpts{
			Namespace: "rail",
			Name:      "bookings_created_total",
			Help:      "PENDING bookings created.",
		}),
		bookingsConfirmed: f.NewCounter(prometheus.CounterOpts{
			Namespace: "rail",
			Name:      "bookings_confirmed_total",
			Help:      "Bookings confirmed by a successful payment.",
		}),
		bookingsCancelled: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "rail",
			Name:      "bookings_cancelled_total",
			Help:      "Cancelled bookings by reason.",
		}, []string{"reason"}),
		seatConflicts: f.NewCounter(prometheus.CounterOpts{
			Namespace: "rail",
			Name:      "seat_conflicts_total",
			Help:      "Reservations rejected because a seat was taken.",
		}),
		payments: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "rail",
			Name:      "payments_total",
			Help:      "Payment attempts by method and result.",
		}, []string{"method", "result"}),
		discountsApplied: f.NewCounter(prometheus.CounterOpts{
			Namespace: "rail",
			Name:      "discounts_committed_total",
			Help:      "Discount uses committed at payment.",
		}),
		sweepDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "rail",
			Name:      "job_duration_seconds",
			Help:      "Background job run time.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"job"}),
	}
}

// Handler serves the registry in the Prometheus text format
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry exposes the underlying registry for tests
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

func (m *Metrics) BookingCreated() {
	if m != nil {
		m.bookingsCreated.Inc()
	}
}

func (m *Metrics) BookingConfirmed() {
	if m != nil {
		m.bookingsConfirmed.Inc()
	}
}

func (m *Metrics) BookingCancelled(reason string) {
	if m != nil {
		m.bookingsCancelled.WithLabelValues(reason).Inc()
	}
}

func (m *Metrics) SeatConflict() {
	if m != nil {
		m.seatConflicts.Inc()
	}
}

func (m *Metrics) Payment(method, result string) {
	if m != nil {
		m.payments.WithLabelValues(method, result).Inc()
	}
}

func (m *Metrics) DiscountCommitted() {
	if m != nil {
		m.discountsApplied.Inc()
	}
}

// ObserveJob records how long a background job run took
func (m *Metrics) ObserveJob(job string, seconds float64) {
	if m != nil {
		m.sweepDuration.WithLabelValues(job).Observe(seconds)
	}
}
