// Package metrics holds the Prometheus instruments shared by writers, the
// broadcaster and the reaper.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "chunkcast"

// Metrics holds all Prometheus metrics for chunkcast.
// A nil *Metrics is valid; every method is a no-op on it.
type Metrics struct {
	WritesTotal       *prometheus.CounterVec
	BytesWritten      prometheus.Counter
	WriteErrors       *prometheus.CounterVec
	TransformDuration prometheus.Histogram
	ClosesTotal       *prometheus.CounterVec
	HookMissingTotal  prometheus.Counter
	ActiveWriters     prometheus.Gauge
	Subscribers       *prometheus.GaugeVec
	BroadcastsTotal   *prometheus.CounterVec
	ReapedTotal       prometheus.Counter
}

// NewMetrics creates and registers all metrics with the given registry.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	return &Metrics{
		WritesTotal: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "writer",
				Name:      "writes_total",
				Help:      "Total payload writes accepted by streaming writers",
			},
			[]string{"transformed"}, // transformed=true/false
		),
		BytesWritten: promauto.With(reg).NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "writer",
				Name:      "bytes_written_total",
				Help:      "Total bytes forwarded to transports after transformation",
			},
		),
		WriteErrors: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "writer",
				Name:      "errors_total",
				Help:      "Writer failures by kind",
			},
			[]string{"kind"},
		),
		TransformDuration: promauto.With(reg).NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "writer",
				Name:      "transform_duration_seconds",
				Help:      "Time spent running transform chains",
				Buckets:   prometheus.ExponentialBuckets(0.00001, 4, 10),
			},
		),
		ClosesTotal: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "writer",
				Name:      "closes_total",
				Help:      "Writer closes by reason",
			},
			[]string{"reason"}, // reason=explicit/broadcast/idle/shutdown
		),
		HookMissingTotal: promauto.With(reg).NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "writer",
				Name:      "hook_missing_total",
				Help:      "Closes that found no completion hook to notify",
			},
		),
		ActiveWriters: promauto.With(reg).NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "writer",
				Name:      "active",
				Help:      "Writers created and not yet closed",
			},
		),
		Subscribers: promauto.With(reg).NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "broadcast",
				Name:      "subscribers",
				Help:      "Current subscribers per transport",
			},
			[]string{"transport"},
		),
		BroadcastsTotal: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "broadcast",
				Name:      "deliveries_total",
				Help:      "Broadcast deliveries by result",
			},
			[]string{"result"}, // result=delivered/failed
		),
		ReapedTotal: promauto.With(reg).NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "reaper",
				Name:      "reaped_total",
				Help:      "Writers closed for being idle",
			},
		),
	}
}

func (m *Metrics) WriteAccepted(transformed bool, n int) {
	if m == nil {
		return
	}
	label := "false"
	if transformed {
		label = "true"
	}
	m.WritesTotal.WithLabelValues(label).Inc()
	m.BytesWritten.Add(float64(n))
}

func (m *Metrics) WriteFailed(kind string) {
	if m != nil {
		m.WriteErrors.WithLabelValues(kind).Inc()
	}
}

func (m *Metrics) ObserveTransform(seconds float64) {
	if m != nil {
		m.TransformDuration.Observe(seconds)
	}
}

func (m *Metrics) WriterOpened() {
	if m != nil {
		m.ActiveWriters.Inc()
	}
}

func (m *Metrics) WriterClosed(reason string) {
	if m != nil {
		m.ActiveWriters.Dec()
		m.ClosesTotal.WithLabelValues(reason).Inc()
	}
}

func (m *Metrics) HookMissing() {
	if m != nil {
		m.HookMissingTotal.Inc()
	}
}

func (m *Metrics) SubscriberAdded(transport string) {
	if m != nil {
		m.Subscribers.WithLabelValues(transport).Inc()
	}
}

func (m *Metrics) SubscriberRemoved(transport string) {
	if m != nil {
		m.Subscribers.WithLabelValues(transport).Dec()
	}
}

func (m *Metrics) Delivery(ok bool) {
	if m == nil {
		return
	}
	if ok {
		m.BroadcastsTotal.WithLabelValues("delivered").Inc()
	} else {
		m.BroadcastsTotal.WithLabelValues("failed").Inc()
	}
}

func (m *Metrics) Reaped() {
	if m != nil {
		m.ReapedTotal.Inc()
	}
}
