// Package metrics exposes the Prometheus collectors of the service.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics groups the collectors. A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	ordersCreated       *prometheus.CounterVec
	orderTransitions    *prometheus.CounterVec
	inventoryConflicts  *prometheus.CounterVec
	ticketsSold         *prometheus.CounterVec
	waitlistOperations  *prometheus.CounterVec
	webhookDeliveries   *prometheus.CounterVec
	notificationFailure *prometheus.CounterVec
}

// New registers every collector on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		ordersCreated: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "nightlife_orders_created_total",
				Help: "Orders created, by initial status",
			},
			[]string{"status"},
		),
		orderTransitions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "nightlife_order_transitions_total",
				Help: "Order status changes applied",
			},
			[]string{"status"},
		),
		inventoryConflicts: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "nightlife_inventory_conflicts_total",
				Help: "Orders rejected for insufficient inventory",
			},
			[]string{"event_id"},
		),
		ticketsSold: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "nightlife_tickets_reserved_total",
				Help: "Tickets reserved by new orders",
			},
			[]string{"event_id"},
		),
		waitlistOperations: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "nightlife_waitlist_operations_total",
				Help: "Waitlist operations",
			},
			[]string{"operation"},
		),
		webhookDeliveries: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "nightlife_payment_webhooks_total",
				Help: "Payment webhook deliveries by outcome",
			},
			[]string{"outcome"},
		),
		notificationFailure: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "nightlife_notification_failures_total",
				Help: "Notifications that could not be dispatched",
			},
			[]string{"type"},
		),
	}
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// OrderCreated counts a new order and its reserved tickets.
func (m *Metrics) OrderCreated(eventID, status string, tickets int) {
	if m == nil {
		return
	}
	m.ordersCreated.WithLabelValues(status).Inc()
	m.ticketsSold.WithLabelValues(eventID).Add(float64(tickets))
}

// OrderTransition counts an applied status change.
func (m *Metrics) OrderTransition(status string) {
	if m == nil {
		return
	}
	m.orderTransitions.WithLabelValues(status).Inc()
}

// InventoryConflict counts an order rejected for lack of tickets.
func (m *Metrics) InventoryConflict(eventID string) {
	if m == nil {
		return
	}
	m.inventoryConflicts.WithLabelValues(eventID).Inc()
}

// WaitlistOperation counts join, notify, expire, requeue and purchase steps.
func (m *Metrics) WaitlistOperation(op string) {
	if m == nil {
		return
	}
	m.waitlistOperations.WithLabelValues(op).Inc()
}

// WebhookDelivery counts a payment webhook by outcome.
func (m *Metrics) WebhookDelivery(outcome string) {
	if m == nil {
		return
	}
	m.webhookDeliveries.WithLabelValues(outcome).Inc()
}

// NotificationFailed counts a notification the notifier rejected.
func (m *Metrics) NotificationFailed(kind string) {
	if m == nil {
		return
	}
	m.notificationFailure.WithLabelValues(kind).Inc()
}
