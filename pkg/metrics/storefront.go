package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Outcome labels shared by the checkout and webhook counters.
const (
	OutcomeSuccess           = "success"
	OutcomeFailure           = "failure"
	OutcomeEmptyCart         = "empty_cart"
	OutcomeUnavailable       = "product_unavailable"
	OutcomeInsufficientStock = "insufficient_stock"
	OutcomeSettledSuccess    = "settled_success"
	OutcomeSettledFailed     = "settled_failed"
	OutcomeDuplicate         = "duplicate"
	OutcomeUnknownPayment    = "unknown_payment"
	OutcomeInvalid           = "invalid"
	OutcomeBadSignature      = "bad_signature"
)

// StorefrontMetrics tracks checkout, payment initiation and webhook outcomes
// plus gateway latency and the payment status snapshot refreshed by cron.
type StorefrontMetrics struct {
	checkouts     *prometheus.CounterVec
	initiations   *prometheus.CounterVec
	webhooks      *prometheus.CounterVec
	gatewayCalls  *prometheus.HistogramVec
	paymentCounts *prometheus.GaugeVec
	successRate   prometheus.Gauge
}

// NewStorefrontMetrics registers the metrics on reg. A nil registerer yields
// a no-op recorder.
func NewStorefrontMetrics(reg prometheus.Registerer) *StorefrontMetrics {
	if reg == nil {
		return &StorefrontMetrics{}
	}
	m := &StorefrontMetrics{
		checkouts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "storefront_checkouts_total",
			Help: "Checkout attempts by outcome.",
		}, []string{"outcome"}),
		initiations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "storefront_payment_initiations_total",
			Help: "Payment initiation attempts by outcome.",
		}, []string{"outcome"}),
		webhooks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "storefront_payment_webhooks_total",
			Help: "Payment webhook deliveries by outcome.",
		}, []string{"outcome"}),
		gatewayCalls: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "storefront_gateway_call_duration_seconds",
			Help:    "Latency of payment gateway calls.",
			Buckets: prometheus.DefBuckets,
		}, []string{"operation", "result"}),
		paymentCounts: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "storefront_payments",
			Help: "Payments by status at the last refresh.",
		}, []string{"status"}),
		successRate: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "storefront_payment_success_rate",
			Help: "Percentage of payments that succeeded at the last refresh.",
		}),
	}
	reg.MustRegister(m.checkouts, m.initiations, m.webhooks, m.gatewayCalls, m.paymentCounts, m.successRate)
	return m
}

func (m *StorefrontMetrics) Checkout(outcome string) {
	if m == nil || m.checkouts == nil {
		return
	}
	m.checkouts.WithLabelValues(normalizeLabel(outcome)).Inc()
}

func (m *StorefrontMetrics) PaymentInitiation(outcome string) {
	if m == nil || m.initiations == nil {
		return
	}
	m.initiations.WithLabelValues(normalizeLabel(outcome)).Inc()
}

func (m *StorefrontMetrics) Webhook(outcome string) {
	if m == nil || m.webhooks == nil {
		return
	}
	m.webhooks.WithLabelValues(normalizeLabel(outcome)).Inc()
}

// ObserveGatewayCall matches the paymob client observer signature.
func (m *StorefrontMetrics) ObserveGatewayCall(operation string, elapsed time.Duration, err error) {
	if m == nil || m.gatewayCalls == nil {
		return
	}
	result := OutcomeSuccess
	if err != nil {
		result = OutcomeFailure
	}
	m.gatewayCalls.WithLabelValues(normalizeLabel(operation), result).Observe(elapsed.Seconds())
}

// SetPaymentStats publishes the latest payment status snapshot.
func (m *StorefrontMetrics) SetPaymentStats(total, successful, failed, pending int64, successRate float64) {
	if m == nil || m.paymentCounts == nil {
		return
	}
	m.paymentCounts.WithLabelValues("total").Set(float64(total))
	m.paymentCounts.WithLabelValues("successful").Set(float64(successful))
	m.paymentCounts.WithLabelValues("failed").Set(float64(failed))
	m.paymentCounts.WithLabelValues("pending").Set(float64(pending))
	m.successRate.Set(successRate)
}

func normalizeLabel(value string) string {
	if value == "" {
		return "unknown"
	}
	return value
}
