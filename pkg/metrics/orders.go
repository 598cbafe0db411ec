package metrics

import "github.com/prometheus/client_golang/prometheus"

// OrderMetrics counts the lifecycle events operators watch on dashboards.
type OrderMetrics struct {
	placed       *prometheus.CounterVec
	transitions  *prometheus.CounterVec
	cancelled    *prometheus.CounterVec
	reservations *prometheus.CounterVec
	payments     *prometheus.CounterVec
	webhooks     *prometheus.CounterVec
}

// NewOrderMetrics registers the order metrics on the provided registerer. A
// nil registerer yields a no-op recorder.
func NewOrderMetrics(reg prometheus.Registerer) *OrderMetrics {
	if reg == nil {
		return &OrderMetrics{}
	}
	placed := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "kartmitra",
		Name:      "orders_placed_total",
		Help:      "Orders placed, by payment mode.",
	}, []string{"payment_mode"})
	transitions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "kartmitra",
		Name:      "order_transitions_total",
		Help:      "Order status transitions.",
	}, []string{"from", "to"})
	cancelled := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "kartmitra",
		Name:      "orders_cancelled_total",
		Help:      "Orders cancelled, by reason bucket.",
	}, []string{"reason"})
	reservations := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "kartmitra",
		Name:      "stock_reservations_total",
		Help:      "Stock reservation outcomes.",
	}, []string{"outcome"})
	payments := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "kartmitra",
		Name:      "payments_total",
		Help:      "Payment state changes.",
	}, []string{"status"})
	webhooks := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "kartmitra",
		Name:      "gateway_webhooks_total",
		Help:      "Gateway webhook deliveries by handling result.",
	}, []string{"result"})
	reg.MustRegister(placed, transitions, cancelled, reservations, payments, webhooks)
	return &OrderMetrics{
		placed:       placed,
		transitions:  transitions,
		cancelled:    cancelled,
		reservations: reservations,
		payments:     payments,
		webhooks:     webhooks,
	}
}

// IncPlaced counts a placed order.
func (m *OrderMetrics) IncPlaced(paymentMode string) {
	if m == nil || m.placed == nil {
		return
	}
	m.placed.WithLabelValues(paymentMode).Inc()
}

// IncTransition counts a lifecycle transition.
func (m *OrderMetrics) IncTransition(from, to string) {
	if m == nil || m.transitions == nil {
		return
	}
	m.transitions.WithLabelValues(from, to).Inc()
}

// IncCancelled counts a cancellation.
func (m *OrderMetrics) IncCancelled(reason string) {
	if m == nil || m.cancelled == nil {
		return
	}
	m.cancelled.WithLabelValues(normalizeLabel(reason)).Inc()
}

// IncReservation counts a reservation outcome (reserved, confirmed,
// released, expired, insufficient_stock).
func (m *OrderMetrics) IncReservation(outcome string) {
	if m == nil || m.reservations == nil {
		return
	}
	m.reservations.WithLabelValues(outcome).Inc()
}

// IncPayment counts a payment state change.
func (m *OrderMetrics) IncPayment(status string) {
	if m == nil || m.payments == nil {
		return
	}
	m.payments.WithLabelValues(status).Inc()
}

// IncWebhook counts a webhook handling result (processed, ignored,
// rejected).
func (m *OrderMetrics) IncWebhook(result string) {
	if m == nil || m.webhooks == nil {
		return
	}
	m.webhooks.WithLabelValues(result).Inc()
}
