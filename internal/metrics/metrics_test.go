package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	dto "github.com/prometheus/client_model/go"
)

func TestNewMetrics_RegistersAll(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)

	m.WriteAccepted(true, 10)
	m.WriteAccepted(false, 5)
	m.WriteFailed("write_after_close")
	m.ObserveTransform(0.001)
	m.WriterOpened()
	m.WriterClosed("explicit")
	m.HookMissing()
	m.SubscriberAdded("streaming")
	m.Delivery(true)
	m.Delivery(false)
	m.Reaped()

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("Gather: %v", err)
	}
	names := make(map[string]*dto.MetricFamily, len(families))
	for _, f := range families {
		names[f.GetName()] = f
	}
	for _, want := range []string{
		"chunkcast_writer_writes_total",
		"chunkcast_writer_bytes_written_total",
		"chunkcast_writer_errors_total",
		"chunkcast_writer_transform_duration_seconds",
		"chunkcast_writer_closes_total",
		"chunkcast_writer_hook_missing_total",
		"chunkcast_writer_active",
		"chunkcast_broadcast_subscribers",
		"chunkcast_broadcast_deliveries_total",
		"chunkcast_reaper_reaped_total",
	} {
		if _, ok := names[want]; !ok {
			t.Errorf("metric %s not registered", want)
		}
	}

	if got := testutil.ToFloat64(m.BytesWritten); got != 15 {
		t.Errorf("bytes written = %v, want 15", got)
	}
	if got := testutil.ToFloat64(m.ActiveWriters); got != 0 {
		t.Errorf("active writers = %v, want 0", got)
	}
	if got := testutil.ToFloat64(m.WritesTotal.WithLabelValues("true")); got != 1 {
		t.Errorf("transformed writes = %v, want 1", got)
	}
}

func TestMetrics_NilSafe(t *testing.T) {
	var m *Metrics
	m.WriteAccepted(true, 1)
	m.WriteFailed("x")
	m.ObserveTransform(1)
	m.WriterOpened()
	m.WriterClosed("explicit")
	m.HookMissing()
	m.SubscriberAdded("sse")
	m.SubscriberRemoved("sse")
	m.Delivery(true)
	m.Reaped()
}
