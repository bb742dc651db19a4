package federation

import (
	"strconv"
	"time"

	"plume/pkg/activitypub"
	"plume/pkg/federr"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Skip and failure reasons used as metric labels
const (
	reasonInvalidURL = "invalid_url"
	reasonSignature  = "signature"
	reasonRequest    = "request"
	reasonTransport  = "transport"
	reasonStatus     = "status"
)

// DeliveryMetrics tracks outgoing deliveries and inbound negotiation. A nil
// *DeliveryMetrics records nothing.
type DeliveryMetrics struct {
	// Broadcast metrics
	Broadcasts        prometheus.Counter
	BroadcastFailures *prometheus.CounterVec
	BroadcastLatency  prometheus.Histogram

	// Destination metrics
	Destinations prometheus.Counter
	Skipped      *prometheus.CounterVec

	// Attempt metrics
	Attempts        prometheus.Counter
	AttemptFailures *prometheus.CounterVec
	Responses       *prometheus.CounterVec
	AttemptLatency  prometheus.Histogram

	// Negotiation metrics
	Negotiations *prometheus.CounterVec
}

// NewDeliveryMetrics creates and registers Prometheus metrics
func NewDeliveryMetrics(registry prometheus.Registerer) *DeliveryMetrics {
	if registry == nil {
		registry = prometheus.DefaultRegisterer
	}

	return &DeliveryMetrics{
		Broadcasts: promauto.With(registry).NewCounter(prometheus.CounterOpts{
			Name: "federation_broadcasts_total",
			Help: "Total number of broadcast calls",
		}),
		BroadcastFailures: promauto.With(registry).NewCounterVec(prometheus.CounterOpts{
			Name: "federation_broadcast_failures_total",
			Help: "Broadcasts aborted before any delivery, by error kind",
		}, []string{"kind"}),
		BroadcastLatency: promauto.With(registry).NewHistogram(prometheus.HistogramOpts{
			Name:    "federation_broadcast_duration_seconds",
			Help:    "Time for every attempt of a broadcast to settle",
			Buckets: prometheus.DefBuckets,
		}),

		Destinations: promauto.With(registry).NewCounter(prometheus.CounterOpts{
			Name: "federation_destinations_total",
			Help: "Destination inboxes resolved after deduplication",
		}),
		Skipped: promauto.With(registry).NewCounterVec(prometheus.CounterOpts{
			Name: "federation_destinations_skipped_total",
			Help: "Destinations skipped before dispatch, by reason",
		}, []string{"reason"}),

		Attempts: promauto.With(registry).NewCounter(prometheus.CounterOpts{
			Name: "federation_delivery_attempts_total",
			Help: "Total number of delivery attempts",
		}),
		AttemptFailures: promauto.With(registry).NewCounterVec(prometheus.CounterOpts{
			Name: "federation_delivery_failures_total",
			Help: "Failed delivery attempts, by reason",
		}, []string{"reason"}),
		Responses: promauto.With(registry).NewCounterVec(prometheus.CounterOpts{
			Name: "federation_delivery_responses_total",
			Help: "Responses received from destinations, by status class",
		}, []string{"class"}),
		AttemptLatency: promauto.With(registry).NewHistogram(prometheus.HistogramOpts{
			Name:    "federation_delivery_latency_seconds",
			Help:    "Delivery attempt latency",
			Buckets: prometheus.DefBuckets,
		}),

		Negotiations: promauto.With(registry).NewCounterVec(prometheus.CounterOpts{
			Name: "federation_negotiations_total",
			Help: "Inbound content negotiation outcomes",
		}, []string{"outcome"}),
	}
}

func (m *DeliveryMetrics) broadcastStarted() {
	if m == nil {
		return
	}
	m.Broadcasts.Inc()
}

func (m *DeliveryMetrics) broadcastAborted(err error) {
	if m == nil {
		return
	}
	m.BroadcastFailures.WithLabelValues(federr.KindOf(err).String()).Inc()
}

func (m *DeliveryMetrics) broadcastSettled(d time.Duration) {
	if m == nil {
		return
	}
	m.BroadcastLatency.Observe(d.Seconds())
}

func (m *DeliveryMetrics) resolved(n int) {
	if m == nil {
		return
	}
	m.Destinations.Add(float64(n))
}

func (m *DeliveryMetrics) skipped(reason string) {
	if m == nil {
		return
	}
	m.Skipped.WithLabelValues(reason).Inc()
}

func (m *DeliveryMetrics) attempted() {
	if m == nil {
		return
	}
	m.Attempts.Inc()
}

func (m *DeliveryMetrics) failed(reason string) {
	if m == nil {
		return
	}
	m.AttemptFailures.WithLabelValues(reason).Inc()
}

func (m *DeliveryMetrics) responded(status int, d time.Duration) {
	if m == nil {
		return
	}
	m.Responses.WithLabelValues(statusClass(status)).Inc()
	m.AttemptLatency.Observe(d.Seconds())
}

// ObserveNegotiation counts one negotiation outcome; it fits
// activitypub.Negotiator.Observe
func (m *DeliveryMetrics) ObserveNegotiation(o activitypub.Outcome) {
	if m == nil {
		return
	}
	m.Negotiations.WithLabelValues(o.String()).Inc()
}

func statusClass(status int) string {
	if status < 100 || status > 599 {
		return "other"
	}
	return strconv.Itoa(status/100) + "xx"
}
