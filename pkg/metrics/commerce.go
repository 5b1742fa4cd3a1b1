package metrics

import "github.com/prometheus/client_golang/prometheus"

// CommerceMetrics counts checkout and payment outcomes.
type CommerceMetrics struct {
	checkouts     *prometheus.CounterVec
	webhookEvents *prometheus.CounterVec
	ordersPaid    prometheus.Counter
	oversold      prometheus.Counter
}

// NewCommerceMetrics registers the commerce counters on reg. A nil registerer
// yields a no-op recorder.
func NewCommerceMetrics(reg prometheus.Registerer) *CommerceMetrics {
	if reg == nil {
		return &CommerceMetrics{}
	}
	checkouts := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "marketplace_checkout_sessions_total",
		Help: "Checkout attempts by result.",
	}, []string{"result"})
	webhookEvents := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "marketplace_webhook_events_total",
		Help: "Payment webhook events by type and outcome.",
	}, []string{"type", "outcome"})
	ordersPaid := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "marketplace_orders_paid_total",
		Help: "Orders moved from pending to paid.",
	})
	oversold := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "marketplace_inventory_oversold_total",
		Help: "Order lines whose quantity exceeded remaining stock at payment time.",
	})
	reg.MustRegister(checkouts, webhookEvents, ordersPaid, oversold)
	return &CommerceMetrics{
		checkouts:     checkouts,
		webhookEvents: webhookEvents,
		ordersPaid:    ordersPaid,
		oversold:      oversold,
	}
}

// IncCheckout records a checkout attempt outcome such as "created" or "failed".
func (m *CommerceMetrics) IncCheckout(result string) {
	if m == nil || m.checkouts == nil {
		return
	}
	m.checkouts.WithLabelValues(normalizeLabel(result)).Inc()
}

// IncWebhookEvent records one handled webhook event.
func (m *CommerceMetrics) IncWebhookEvent(eventType, outcome string) {
	if m == nil || m.webhookEvents == nil {
		return
	}
	m.webhookEvents.WithLabelValues(normalizeLabel(eventType), normalizeLabel(outcome)).Inc()
}

// AddOrdersPaid adds n newly paid orders.
func (m *CommerceMetrics) AddOrdersPaid(n int) {
	if m == nil || m.ordersPaid == nil || n <= 0 {
		return
	}
	m.ordersPaid.Add(float64(n))
}

// IncOversold counts one oversold order line.
func (m *CommerceMetrics) IncOversold() {
	if m == nil || m.oversold == nil {
		return
	}
	m.oversold.Inc()
}
