package promsink

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zoobzio/clockz"
	"github.com/zoobzio/spanmetricz"
)

func family(t *testing.T, reg *prometheus.Registry, name string) *dto.MetricFamily {
	t.Helper()
	families, err := reg.Gather()
	require.NoError(t, err)
	for _, f := range families {
		if f.GetName() == name {
			return f
		}
	}
	t.Fatalf("metric family %s not found", name)
	return nil
}

func TestSinkCounter(t *testing.T) {
	reg := prometheus.NewRegistry()
	sink := New(reg)

	sink.IncrementCounter("app_shave", 2)
	sink.IncrementCounter("app_shave", 3)

	assert.Equal(t, 5.0, testutil.ToFloat64(sink.counters["app_shave"]))
	assert.Equal(t, 1, testutil.CollectAndCount(sink.counters["app_shave"]))
	assert.Equal(t, dto.MetricType_COUNTER, family(t, reg, "app_shave_total").GetType())
}

func TestSinkTiming(t *testing.T) {
	reg := prometheus.NewRegistry()
	sink := New(reg)

	sink.RecordTiming("app_shave", 150*time.Nanosecond)
	sink.RecordTiming("app_shave", 2*time.Millisecond)

	f := family(t, reg, "app_shave_ns")
	require.Equal(t, dto.MetricType_HISTOGRAM, f.GetType())
	h := f.GetMetric()[0].GetHistogram()
	assert.Equal(t, uint64(2), h.GetSampleCount())
	assert.Equal(t, float64(150+2_000_000), h.GetSampleSum())
}

func TestSinkValue(t *testing.T) {
	reg := prometheus.NewRegistry()
	sink := New(reg)

	sink.RecordValue("app_shave_enter_count", 4)
	sink.RecordValue("app_shave_enter_count", 1)

	assert.Equal(t, 1.0, testutil.ToFloat64(sink.gauges["app_shave_enter_count"]))
	assert.Equal(t, dto.MetricType_GAUGE, family(t, reg, "app_shave_enter_count").GetType())
}

func TestSinkNamespaceAndBuckets(t *testing.T) {
	reg := prometheus.NewRegistry()
	sink := New(reg, WithNamespace("yak-farm"), WithBuckets([]float64{100, 1000}))

	sink.RecordTiming("shave", 500*time.Nanosecond)

	f := family(t, reg, "yak_farm_shave_ns")
	buckets := f.GetMetric()[0].GetHistogram().GetBucket()
	require.Len(t, buckets, 2)
	assert.Equal(t, uint64(0), buckets[0].GetCumulativeCount())
	assert.Equal(t, uint64(1), buckets[1].GetCumulativeCount())
}

func TestSinkReusesRegisteredCollectors(t *testing.T) {
	reg := prometheus.NewRegistry()
	first := New(reg)
	second := New(reg)

	first.IncrementCounter("shared", 2)
	second.IncrementCounter("shared", 3)

	assert.Equal(t, 5.0, testutil.ToFloat64(first.counters["shared"]))
	assert.Zero(t, second.Errors())
}

func TestSinkRegistrationConflict(t *testing.T) {
	reg := prometheus.NewRegistry()
	require.NoError(t, reg.Register(prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "clash_total",
		Help: "Something else entirely.",
	})))

	sink := New(reg)
	assert.NotPanics(t, func() {
		sink.IncrementCounter("clash", 1)
	})
	assert.Equal(t, uint64(1), sink.Errors())
}

func TestSanitize(t *testing.T) {
	assert.Equal(t, "app_worker_shave", sanitize("app-worker.shave"))
	assert.Equal(t, "_3yaks", sanitize("3yaks"))
	assert.Equal(t, "ok:name_1", sanitize("ok:name_1"))
	assert.Equal(t, "", sanitize(""))
}

func TestSinkBehindBridge(t *testing.T) {
	reg := prometheus.NewRegistry()
	clock := clockz.NewFakeClock()
	bridge := spanmetricz.New(New(reg), spanmetricz.WithClock(clock))

	span := spanmetricz.Start(bridge, &spanmetricz.Metadata{Target: "app", Name: "shave"}, nil)
	span.InScope(func() {
		clock.Advance(150 * time.Nanosecond)
	})
	span.Close()

	assert.Equal(t, uint64(1), family(t, reg, "app_shave_ns").GetMetric()[0].GetHistogram().GetSampleCount())
	assert.Equal(t, 1.0, family(t, reg, "app_shave_total").GetMetric()[0].GetCounter().GetValue())
	assert.Equal(t, 1.0, family(t, reg, "app_shave_enter_count").GetMetric()[0].GetGauge().GetValue())
	assert.Zero(t, bridge.SinkFailures())
}
