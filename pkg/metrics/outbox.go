package metrics

import "github.com/prometheus/client_golang/prometheus"

// OutboxMetrics tracks publisher throughput.
type OutboxMetrics struct {
	published prometheus.Counter
	failed    prometheus.Counter
}

// NewOutboxMetrics registers publisher metrics on the provided registerer.
func NewOutboxMetrics(reg prometheus.Registerer) *OutboxMetrics {
	if reg == nil {
		return &OutboxMetrics{}
	}
	published := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "outbox_events_published_total",
		Help: "Outbox events successfully published.",
	})
	failed := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "outbox_events_failed_total",
		Help: "Outbox publish attempts that failed.",
	})
	reg.MustRegister(published, failed)
	return &OutboxMetrics{published: published, failed: failed}
}

// IncPublished increments the published counter.
func (o *OutboxMetrics) IncPublished() {
	if o == nil || o.published == nil {
		return
	}
	o.published.Inc()
}

// IncFailed increments the failed counter.
func (o *OutboxMetrics) IncFailed() {
	if o == nil || o.failed == nil {
		return
	}
	o.failed.Inc()
}
