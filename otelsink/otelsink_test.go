package otelsink

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zoobzio/clockz"
	"github.com/zoobzio/spanmetricz"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

func newTestSink(t *testing.T) (*Sink, *sdkmetric.ManualReader) {
	t.Helper()
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() {
		_ = provider.Shutdown(context.Background())
	})
	return New(provider.Meter("github.com/zoobzio/spanmetricz")), reader
}

func collect(t *testing.T, reader *sdkmetric.ManualReader) map[string]metricdata.Aggregation {
	t.Helper()
	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))

	out := make(map[string]metricdata.Aggregation)
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			out[m.Name] = m.Data
		}
	}
	return out
}

func TestSinkCounter(t *testing.T) {
	sink, reader := newTestSink(t)

	sink.IncrementCounter("app_shave", 2)
	sink.IncrementCounter("app_shave", 3)

	data := collect(t, reader)
	sum, ok := data["app_shave"].(metricdata.Sum[int64])
	require.True(t, ok, "expected int64 sum, got %T", data["app_shave"])
	require.Len(t, sum.DataPoints, 1)
	assert.Equal(t, int64(5), sum.DataPoints[0].Value)
	assert.True(t, sum.IsMonotonic)
}

func TestSinkTiming(t *testing.T) {
	sink, reader := newTestSink(t)

	sink.RecordTiming("app_shave", 150*time.Nanosecond)
	sink.RecordTiming("app_shave", 50*time.Nanosecond)

	data := collect(t, reader)
	hist, ok := data["app_shave"+DurationSuffix].(metricdata.Histogram[int64])
	require.True(t, ok, "expected int64 histogram, got %T", data["app_shave"+DurationSuffix])
	require.Len(t, hist.DataPoints, 1)
	assert.Equal(t, uint64(2), hist.DataPoints[0].Count)
	assert.Equal(t, int64(200), hist.DataPoints[0].Sum)
}

func TestSinkValue(t *testing.T) {
	sink, reader := newTestSink(t)

	sink.RecordValue("app_shave_enter_count", 4)
	sink.RecordValue("app_shave_enter_count", 1)

	data := collect(t, reader)
	gauge, ok := data["app_shave_enter_count"].(metricdata.Gauge[int64])
	require.True(t, ok, "expected int64 gauge, got %T", data["app_shave_enter_count"])
	require.Len(t, gauge.DataPoints, 1)
	assert.Equal(t, int64(1), gauge.DataPoints[0].Value)
}

func TestSinkCachesInstruments(t *testing.T) {
	sink, _ := newTestSink(t)

	first, ok := sink.counter("cached")
	require.True(t, ok)
	second, ok := sink.counter("cached")
	require.True(t, ok)
	assert.Equal(t, first, second)
	assert.Zero(t, sink.Errors())
}

func TestClamp(t *testing.T) {
	assert.Equal(t, int64(7), clamp(7))
	assert.Equal(t, int64(1<<63-1), clamp(1<<64-1))
}

func TestSinkBehindBridge(t *testing.T) {
	sink, reader := newTestSink(t)
	clock := clockz.NewFakeClock()
	bridge := spanmetricz.New(sink, spanmetricz.WithClock(clock))

	span := spanmetricz.Start(bridge, &spanmetricz.Metadata{Target: "svc::job", Name: "run"}, nil)
	span.InScope(func() {
		clock.Advance(10 * time.Microsecond)
	})
	span.Close()

	data := collect(t, reader)
	assert.Equal(t, int64(1), data["svc_job_run"].(metricdata.Sum[int64]).DataPoints[0].Value)
	assert.Equal(t, int64(10_000), data["svc_job_run"+DurationSuffix].(metricdata.Histogram[int64]).DataPoints[0].Sum)
	assert.Equal(t, int64(1), data["svc_job_run_enter_count"].(metricdata.Gauge[int64]).DataPoints[0].Value)
}
