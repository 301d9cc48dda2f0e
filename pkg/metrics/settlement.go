package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// SettlementMetrics records settlement, webhook, and slot-claim outcomes.
type SettlementMetrics struct {
	closeDuration *prometheus.HistogramVec
	captures      *prometheus.CounterVec
	webhookEvents *prometheus.CounterVec
	slotClaims    *prometheus.CounterVec
}

// NewSettlementMetrics registers the settlement metrics on the provided registerer.
func NewSettlementMetrics(reg prometheus.Registerer) *SettlementMetrics {
	if reg == nil {
		return &SettlementMetrics{}
	}
	closeDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "auction_close_duration_seconds",
		Help:    "Duration of auction close runs in seconds.",
		Buckets: prometheus.DefBuckets,
	}, []string{"outcome"})
	captures := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "payment_captures_total",
		Help: "Capture attempts by result.",
	}, []string{"result"})
	webhookEvents := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "webhook_events_total",
		Help: "Gateway webhook deliveries by terminal status.",
	}, []string{"status"})
	slotClaims := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "offer_slot_claims_total",
		Help: "Limited offer slot claims by result.",
	}, []string{"result"})
	reg.MustRegister(closeDuration, captures, webhookEvents, slotClaims)
	return &SettlementMetrics{
		closeDuration: closeDuration,
		captures:      captures,
		webhookEvents: webhookEvents,
		slotClaims:    slotClaims,
	}
}

// ObserveCloseDuration records the duration of one close run.
func (m *SettlementMetrics) ObserveCloseDuration(outcome string, duration time.Duration) {
	if m == nil || m.closeDuration == nil {
		return
	}
	m.closeDuration.WithLabelValues(normalizeLabel(outcome)).Observe(duration.Seconds())
}

// IncCapture counts a capture attempt result (captured, fallback, failed).
func (m *SettlementMetrics) IncCapture(result string) {
	if m == nil || m.captures == nil {
		return
	}
	m.captures.WithLabelValues(normalizeLabel(result)).Inc()
}

// IncWebhookEvent counts a webhook delivery by its terminal ledger status.
func (m *SettlementMetrics) IncWebhookEvent(status string) {
	if m == nil || m.webhookEvents == nil {
		return
	}
	m.webhookEvents.WithLabelValues(normalizeLabel(status)).Inc()
}

// IncSlotClaim counts a slot claim result (claimed, sold_out, expired, inactive).
func (m *SettlementMetrics) IncSlotClaim(result string) {
	if m == nil || m.slotClaims == nil {
		return
	}
	m.slotClaims.WithLabelValues(normalizeLabel(result)).Inc()
}

func normalizeLabel(value string) string {
	if value == "" {
		return "unknown"
	}
	return value
}
