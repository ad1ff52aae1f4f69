package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Operations counts reservation operations by outcome code ("ok" on
	// success).
	Operations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "clinic_reservation_operations_total",
			Help: "Reservation operations by operation and result code",
		},
		[]string{"operation", "result"},
	)

	OperationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "clinic_reservation_operation_duration_seconds",
			Help:    "Reservation operation latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation"},
	)

	// Inconsistencies counts partial failures that left the calendar out
	// of step with the appointments.
	Inconsistencies = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "clinic_reservation_inconsistencies_total",
			Help: "Partial failures that left slots and appointments out of sync",
		},
		[]string{"operation", "step"},
	)

	ReconcileFindings = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "clinic_reconcile_findings",
			Help: "Findings of the last reconciliation run by kind",
		},
		[]string{"kind"},
	)

	SlotsSeeded = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "clinic_slots_seeded_total",
			Help: "Availability slots created by staff seeding",
		},
	)

	EventsPublished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "clinic_events_published_total",
			Help: "Appointment events handed to the broker by status",
		},
		[]string{"type", "status"},
	)

	HTTPRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "clinic_http_requests_total",
			Help: "HTTP requests by route and status code",
		},
		[]string{"method", "route", "code"},
	)
)
