package obs

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	domainOnce sync.Once

	// PromotionEvaluationsTotal counts promotion code evaluations by wire result.
	PromotionEvaluationsTotal *prometheus.CounterVec
	// CheckoutOrdersTotal counts placed orders by initial status.
	CheckoutOrdersTotal *prometheus.CounterVec
	// CheckoutTotalMismatchTotal counts client totals rejected as inconsistent.
	CheckoutTotalMismatchTotal prometheus.Counter
	// PaymentWebhookTotal counts inbound payment webhook processing outcomes.
	PaymentWebhookTotal *prometheus.CounterVec
	// EventPublishTotal counts domain event fan-out outcomes per notifier.
	EventPublishTotal *prometheus.CounterVec
	// WebhookDeliveriesTotal counts outbound event webhook attempts by outcome.
	WebhookDeliveriesTotal *prometheus.CounterVec
	// CheckoutPaidUnplacedTotal counts captured card payments refused an order.
	CheckoutPaidUnplacedTotal *prometheus.CounterVec
)

// MustRegisterDomainMetrics initialises and registers domain-specific Prometheus collectors.
func MustRegisterDomainMetrics(namespace string, reg prometheus.Registerer) {
	domainOnce.Do(func() {
		if reg == nil {
			reg = prometheus.DefaultRegisterer
		}
		PromotionEvaluationsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "promotion_evaluations_total",
			Help:      "Count of promotion code evaluations by result.",
		}, []string{"result"})
		CheckoutOrdersTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "checkout_orders_total",
			Help:      "Count of orders placed by initial status.",
		}, []string{"status"})
		CheckoutTotalMismatchTotal = prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "checkout_total_mismatch_total",
			Help:      "Number of checkouts rejected because the client total differed from the computed one.",
		})
		PaymentWebhookTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "payment_webhook_total",
			Help:      "Count of processed payment webhooks by outcome.",
		}, []string{"provider", "result"})
		EventPublishTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "event_publish_total",
			Help:      "Count of domain event notifications by notifier and outcome.",
		}, []string{"notifier", "result"})

		WebhookDeliveriesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "webhook_deliveries_total",
			Help:      "Outbound event webhook delivery attempts by outcome.",
		}, []string{"result"})

		CheckoutPaidUnplacedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "checkout_paid_unplaced_total",
			Help:      "Captured card payments for which no order could be placed, by reason. Each one needs a manual refund.",
		}, []string{"reason"})

		register(reg, &PromotionEvaluationsTotal)
		register(reg, &CheckoutOrdersTotal)
		register(reg, &CheckoutTotalMismatchTotal)
		register(reg, &PaymentWebhookTotal)
		register(reg, &EventPublishTotal)
		register(reg, &WebhookDeliveriesTotal)
		register(reg, &CheckoutPaidUnplacedTotal)
	})
}

// ObservePromotion records a promotion evaluation outcome. It is a no-op until metrics are registered.
func ObservePromotion(result string) {
	if PromotionEvaluationsTotal != nil {
		PromotionEvaluationsTotal.WithLabelValues(result).Inc()
	}
}

// ObserveOrder records a placed order. It is a no-op until metrics are registered.
func ObserveOrder(status string) {
	if CheckoutOrdersTotal != nil {
		CheckoutOrdersTotal.WithLabelValues(status).Inc()
	}
}

// ObserveTotalMismatch records an inconsistent client total.
func ObserveTotalMismatch() {
	if CheckoutTotalMismatchTotal != nil {
		CheckoutTotalMismatchTotal.Inc()
	}
}

// ObserveWebhook records a payment webhook outcome.
func ObserveWebhook(provider, result string) {
	if PaymentWebhookTotal != nil {
		PaymentWebhookTotal.WithLabelValues(provider, result).Inc()
	}
}

// ObserveWebhookDelivery records an outbound webhook delivery attempt.
func ObserveWebhookDelivery(result string) {
	if WebhookDeliveriesTotal != nil {
		WebhookDeliveriesTotal.WithLabelValues(result).Inc()
	}
}

// ObservePaidUnplaced records a captured payment left without an order.
func ObservePaidUnplaced(reason string) {
	if CheckoutPaidUnplacedTotal != nil {
		CheckoutPaidUnplacedTotal.WithLabelValues(reason).Inc()
	}
}
