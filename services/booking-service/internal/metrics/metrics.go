// Package metrics exposes booking counters to Prometheus.
package metrics

import (
	"net/http"

	"github.com/joycewetu0805/wigvival/services/booking-service/internal/model"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Booking struct {
	reservations *prometheus.CounterVec
	transitions  *prometheus.CounterVec
	retries      *prometheus.CounterVec
	expired      prometheus.Counter
	webhooks     *prometheus.CounterVec
}

// New registers the booking collectors on reg.
func New(reg prometheus.Registerer) *Booking {
	m := &Booking{
		reservations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "booking",
			Name:      "reservations_total",
			Help:      "Reservation attempts by outcome.",
		}, []string{"outcome"}),
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "booking",
			Name:      "appointment_transitions_total",
			Help:      "Committed appointment status transitions.",
		}, []string{"from", "to"}),
		retries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "booking",
			Name:      "transaction_retries_total",
			Help:      "Transactions re-run after a transient storage failure.",
		}, []string{"op"}),
		expired: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "booking",
			Name:      "expired_appointments_total",
			Help:      "Pending deposit appointments expired by the sweeper.",
		}),
		webhooks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "booking",
			Name:      "payment_webhooks_total",
			Help:      "Payment provider webhooks by event type and result.",
		}, []string{"event_type", "result"}),
	}
	reg.MustRegister(m.reservations, m.transitions, m.retries, m.expired, m.webhooks)
	return m
}

func (m *Booking) Reservation(outcome string) {
	m.reservations.WithLabelValues(outcome).Inc()
}

func (m *Booking) Transition(from, to model.Status) {
	m.transitions.WithLabelValues(string(from), string(to)).Inc()
}

func (m *Booking) Retry(op string) {
	m.retries.WithLabelValues(op).Inc()
}

func (m *Booking) Expired(n int) {
	m.expired.Add(float64(n))
}

func (m *Booking) Webhook(eventType, result string) {
	m.webhooks.WithLabelValues(eventType, result).Inc()
}

// NewRegistry returns a registry preloaded with the Go runtime and process collectors.
func NewRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}

func Handler(reg *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg})
}
