package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/worklink/offline-sync/internal/domain"
	"github.com/worklink/offline-sync/internal/replay"
)

// Metrics groups all Prometheus instruments used across the application.
// Registered once at startup via New(); passed by pointer wherever needed.
type Metrics struct {
	ActionsQueued    *prometheus.CounterVec
	ActionsReplayed  *prometheus.CounterVec
	ActionsFailed    *prometheus.CounterVec
	ActionsAbandoned *prometheus.CounterVec
	ReplayLatency    *prometheus.HistogramVec
	QueueDepth       *prometheus.GaugeVec
	Connected        prometheus.Gauge
}

// New registers all instruments with the given Prometheus registerer and
// returns the populated Metrics struct.
// Using a custom registry (instead of prometheus.DefaultRegisterer) keeps
// tests isolated and avoids global state.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		ActionsQueued: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "offline_actions_queued_total",
			Help: "Total number of actions durably queued for deferred replay.",
		}, []string{"queue"}),

		ActionsReplayed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "offline_actions_replayed_total",
			Help: "Total number of queued actions successfully delivered on replay.",
		}, []string{"queue"}),

		ActionsFailed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "offline_replay_failures_total",
			Help: "Total number of transient replay failures (record retried later).",
		}, []string{"queue"}),

		ActionsAbandoned: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "offline_actions_abandoned_total",
			Help: "Total number of actions abandoned after exhausting the attempt cap.",
		}, []string{"queue"}),

		ReplayLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "offline_replay_seconds",
			Help:    "Latency of a successful replay network call.",
			Buckets: prometheus.DefBuckets,
		}, []string{"queue"}),

		QueueDepth: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "offline_queue_depth",
			Help: "Current number of pending records per queue.",
		}, []string{"queue"}),

		Connected: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "offline_connected",
			Help: "Combined reachability verdict: 1 when the link is up and the API answers.",
		}),
	}

	reg.MustRegister(
		m.ActionsQueued,
		m.ActionsReplayed,
		m.ActionsFailed,
		m.ActionsAbandoned,
		m.ReplayLatency,
		m.QueueDepth,
		m.Connected,
	)

	return m
}

// ReplayHooks returns the metric callbacks expected by replay.MetricHooks.
// Centralises the prometheus observation calls so the replayer stays
// metrics-agnostic.
func (m *Metrics) ReplayHooks() replay.MetricHooks {
	return replay.MetricHooks{
		OnReplayed: func(q domain.Queue, latency time.Duration) {
			m.ActionsReplayed.WithLabelValues(string(q)).Inc()
			m.ReplayLatency.WithLabelValues(string(q)).Observe(latency.Seconds())
		},
		OnFailed: func(q domain.Queue) {
			m.ActionsFailed.WithLabelValues(string(q)).Inc()
		},
		OnAbandoned: func(q domain.Queue) {
			m.ActionsAbandoned.WithLabelValues(string(q)).Inc()
		},
	}
}

// OnQueued returns the enqueue hook expected by the scheduler.
func (m *Metrics) OnQueued() func(domain.Queue) {
	return func(q domain.Queue) {
		m.ActionsQueued.WithLabelValues(string(q)).Inc()
	}
}

// OnConnectivityChange returns the verdict hook for the connectivity gauge.
func (m *Metrics) OnConnectivityChange() func(bool) {
	return func(connected bool) {
		if connected {
			m.Connected.Set(1)
		} else {
			m.Connected.Set(0)
		}
	}
}

// SetQueueDepths refreshes the per-queue depth gauges.
func (m *Metrics) SetQueueDepths(pending map[domain.Queue]int) {
	for q, n := range pending {
		m.QueueDepth.WithLabelValues(string(q)).Set(float64(n))
	}
}
