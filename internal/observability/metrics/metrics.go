package metrics

import "github.com/prometheus/client_golang/prometheus"

// IntakeMetrics exposes counters/histograms for inbound guest messages,
// store write retries, AI replies and outbound channel sends.
type IntakeMetrics struct {
	inboundTotal  *prometheus.CounterVec
	resolvedTotal *prometheus.CounterVec
	retryTotal    *prometheus.CounterVec
	replyTotal    *prometheus.CounterVec
	outboundTotal *prometheus.CounterVec
	intakeLatency *prometheus.HistogramVec
}

func NewIntakeMetrics(reg prometheus.Registerer) *IntakeMetrics {
	m := &IntakeMetrics{
		inboundTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "guestpilot",
			Subsystem: "intake",
			Name:      "inbound_total",
			Help:      "Total inbound guest messages by source and HTTP status",
		}, []string{"source", "status"}),
		resolvedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "guestpilot",
			Subsystem: "intake",
			Name:      "resolved_total",
			Help:      "Inbound messages by resolution outcome (appended, created, duplicate)",
		}, []string{"outcome"}),
		retryTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "guestpilot",
			Subsystem: "store",
			Name:      "write_retries_total",
			Help:      "Store writes retried after a conflict or transient failure",
		}, []string{"op"}),
		replyTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "guestpilot",
			Subsystem: "reply",
			Name:      "generated_total",
			Help:      "AI reply attempts by outcome",
		}, []string{"outcome"}),
		outboundTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "guestpilot",
			Subsystem: "channel",
			Name:      "outbound_total",
			Help:      "Outbound channel sends by channel and status",
		}, []string{"channel", "status"}),
		intakeLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "guestpilot",
			Subsystem: "intake",
			Name:      "latency_seconds",
			Help:      "Latency of inbound webhook processing",
			Buckets:   prometheus.DefBuckets,
		}, []string{"source"}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.inboundTotal, m.resolvedTotal, m.retryTotal, m.replyTotal, m.outboundTotal, m.intakeLatency)
	return m
}

func (m *IntakeMetrics) ObserveInbound(source string, status int) {
	if m == nil {
		return
	}
	m.inboundTotal.WithLabelValues(source, statusLabel(status)).Inc()
}

func (m *IntakeMetrics) ObserveResolved(outcome string) {
	if m == nil {
		return
	}
	m.resolvedTotal.WithLabelValues(outcome).Inc()
}

func (m *IntakeMetrics) ObserveRetry(op string) {
	if m == nil {
		return
	}
	m.retryTotal.WithLabelValues(op).Inc()
}

func (m *IntakeMetrics) ObserveReply(outcome string) {
	if m == nil {
		return
	}
	m.replyTotal.WithLabelValues(outcome).Inc()
}

func (m *IntakeMetrics) ObserveOutbound(channel, status string) {
	if m == nil {
		return
	}
	m.outboundTotal.WithLabelValues(channel, status).Inc()
}

func (m *IntakeMetrics) ObserveLatency(source string, seconds float64) {
	if m == nil {
		return
	}
	m.intakeLatency.WithLabelValues(source).Observe(seconds)
}

func statusLabel(status int) string {
	switch {
	case status >= 500:
		return "5xx"
	case status >= 400:
		return "4xx"
	default:
		return "2xx"
	}
}
