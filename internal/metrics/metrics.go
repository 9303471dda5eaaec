// Package metrics exposes broadcast progress as Prometheus series.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/LeventeLantos/whatsapp-broadcast/internal/dispatch"
	"github.com/LeventeLantos/whatsapp-broadcast/internal/model"
)

type Metrics struct {
	Messages     *prometheus.CounterVec
	SendLatency  prometheus.Histogram
	Broadcasts   *prometheus.CounterVec
	Active       prometheus.Gauge
	Remaining    prometheus.Gauge
	AuditEntries prometheus.Counter
}

// New registers the broadcast series on reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Messages: f.NewCounterVec(prometheus.CounterOpts{
			Name: "broadcast_messages_total",
			Help: "Dispatch attempts by outcome.",
		}, []string{"status"}),

		SendLatency: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "broadcast_send_duration_seconds",
			Help:    "Time spent handing one message to the send channel.",
			Buckets: prometheus.DefBuckets,
		}),

		Broadcasts: f.NewCounterVec(prometheus.CounterOpts{
			Name: "broadcasts_total",
			Help: "Broadcast runs by final state.",
		}, []string{"state"}),

		Active: f.NewGauge(prometheus.GaugeOpts{
			Name: "broadcast_active",
			Help: "1 while a broadcast is running or paused.",
		}),

		Remaining: f.NewGauge(prometheus.GaugeOpts{
			Name: "broadcast_queue_remaining",
			Help: "Items of the current broadcast not yet dispatched.",
		}),

		AuditEntries: f.NewCounter(prometheus.CounterOpts{
			Name: "broadcast_audit_entries_total",
			Help: "Audit entries written.",
		}),
	}
}

// ObserveAudit counts an entry the audit log has stored.
func (m *Metrics) ObserveAudit(model.LogEntry) {
	m.AuditEntries.Inc()
}

// Observe folds one dispatch event into the series.
func (m *Metrics) Observe(ev dispatch.Event) {
	m.Remaining.Set(float64(ev.Stats.Remaining))

	switch ev.Type {
	case dispatch.EventStarted:
		m.Active.Set(1)
	case dispatch.EventItem:
		if ev.Item != nil {
			m.Messages.WithLabelValues(string(ev.Item.Status)).Inc()
		}
		m.SendLatency.Observe(ev.Elapsed.Seconds())
	case dispatch.EventCompleted, dispatch.EventCancelled:
		m.Active.Set(0)
		m.Broadcasts.WithLabelValues(string(ev.State)).Inc()
		if ev.Type == dispatch.EventCancelled {
			m.Messages.WithLabelValues(string(model.Cancelled)).Add(float64(ev.Stats.Cancelled))
		}
	case dispatch.EventPaused, dispatch.EventResumed:
	}
}
