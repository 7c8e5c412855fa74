package observe

import (
	"context"
	"testing"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

// newTestMetrics returns a Metrics instance backed by a ManualReader for
// programmatic metric inspection.
func newTestMetrics(t *testing.T) (*Metrics, *sdkmetric.ManualReader) {
	t.Helper()
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })

	m, err := NewMetrics(mp)
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}
	return m, reader
}

// collect gathers all metric data from the reader.
func collect(t *testing.T, reader *sdkmetric.ManualReader) metricdata.ResourceMetrics {
	t.Helper()
	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("Collect: %v", err)
	}
	return rm
}

// findMetric searches for a metric by name across all scope metrics.
func findMetric(rm metricdata.ResourceMetrics, name string) *metricdata.Metrics {
	for _, sm := range rm.ScopeMetrics {
		for i := range sm.Metrics {
			if sm.Metrics[i].Name == name {
				return &sm.Metrics[i]
			}
		}
	}
	return nil
}

// sumValue returns the value of the data point carrying key=value.
// sumValue adds up every data point of the named counter carrying key=value.
func sumValue(t *testing.T, rm metricdata.ResourceMetrics, name, key, value string) int64 {
	t.Helper()
	met := findMetric(rm, name)
	if met == nil {
		t.Fatalf("metric %q not found", name)
	}
	sum, ok := met.Data.(metricdata.Sum[int64])
	if !ok {
		t.Fatalf("metric %q is not a sum", name)
	}
	var (
		total int64
		found bool
	)
	for _, dp := range sum.DataPoints {
		if v, ok := dp.Attributes.Value(attribute.Key(key)); ok && v.AsString() == value {
			total += dp.Value
			found = true
		}
	}
	if !found {
		t.Fatalf("metric %q: data point with %s=%s not found", name, key, value)
	}
	return total
}

func TestNewMetrics_CreatesWithoutError(t *testing.T) {
	m, _ := newTestMetrics(t)
	if m == nil {
		t.Fatal("NewMetrics returned nil")
	}
}

func TestHistogramObservation(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	histograms := []struct {
		name string
		h    metric.Float64Histogram
	}{
		{"karaoke.pipeline.stage.duration", m.StageDuration},
		{"karaoke.pipeline.run.duration", m.RunDuration},
		{"karaoke.alignment.score", m.AlignmentScore},
		{"karaoke.http.request.duration", m.HTTPRequestDuration},
	}

	for _, tc := range histograms {
		tc.h.Record(ctx, 0.123)
		tc.h.Record(ctx, 0.456)
	}

	rm := collect(t, reader)

	for _, tc := range histograms {
		t.Run(tc.name, func(t *testing.T) {
			met := findMetric(rm, tc.name)
			if met == nil {
				t.Fatalf("metric %q not found", tc.name)
			}
			hist, ok := met.Data.(metricdata.Histogram[float64])
			if !ok {
				t.Fatalf("metric %q is not a histogram", tc.name)
			}
			if len(hist.DataPoints) == 0 {
				t.Fatalf("metric %q has no data points", tc.name)
			}
			if got := hist.DataPoints[0].Count; got != 2 {
				t.Errorf("sample count = %d, want 2", got)
			}
		})
	}
}

func TestRecordStage(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.RecordStage(ctx, "separating", "ok", 12)
	m.RecordStage(ctx, "transcribing", "ok", 40)
	m.RecordStage(ctx, "transcribing", "error", 1)

	rm := collect(t, reader)
	met := findMetric(rm, "karaoke.pipeline.stage.duration")
	if met == nil {
		t.Fatal("metric not found")
	}
	hist, ok := met.Data.(metricdata.Histogram[float64])
	if !ok {
		t.Fatal("metric is not a histogram")
	}
	if len(hist.DataPoints) != 3 {
		t.Errorf("data points = %d, want 3", len(hist.DataPoints))
	}
}

func TestRecordRun(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.RecordRun(ctx, "ok", "openai", 30)
	m.RecordRun(ctx, "ok", "openai", 45)
	m.RecordRun(ctx, "degraded", "placeholder", 2)

	rm := collect(t, reader)
	if got := sumValue(t, rm, "karaoke.pipeline.runs", "strategy", "openai"); got != 2 {
		t.Errorf("openai runs = %d, want 2", got)
	}
	if got := sumValue(t, rm, "karaoke.pipeline.runs", "status", "degraded"); got != 1 {
		t.Errorf("degraded runs = %d, want 1", got)
	}
	if findMetric(rm, "karaoke.pipeline.run.duration") == nil {
		t.Error("run duration not recorded")
	}
}

func TestCounterIncrement(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.RecordProviderRequest(ctx, "openai", "transcribe", "ok")
	m.RecordProviderRequest(ctx, "openai", "transcribe", "ok")
	m.RecordProviderRequest(ctx, "openai", "transcribe", "error")

	rm := collect(t, reader)
	if got := sumValue(t, rm, "karaoke.provider.requests", "status", "ok"); got != 2 {
		t.Errorf("counter value = %d, want 2", got)
	}
}

func TestToolCallsCounter(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.RecordToolCall(ctx, "align_lyrics", "ok")
	m.RecordToolCall(ctx, "align_lyrics", "error")

	rm := collect(t, reader)
	if got := sumValue(t, rm, "karaoke.tool.calls", "status", "ok"); got != 1 {
		t.Errorf("counter value = %d, want 1", got)
	}
}

func TestProviderErrorsCounter(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.RecordProviderError(ctx, "demucs", "separation")

	rm := collect(t, reader)
	if got := sumValue(t, rm, "karaoke.provider.errors", "provider", "demucs"); got != 1 {
		t.Errorf("counter value = %d, want 1", got)
	}
}

func TestBreakerTransitionsCounter(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.RecordBreakerTransition(ctx, "groq", "open")
	m.RecordBreakerTransition(ctx, "groq", "half-open")
	m.RecordBreakerTransition(ctx, "groq", "open")

	rm := collect(t, reader)
	if got := sumValue(t, rm, "karaoke.provider.breaker.transitions", "state", "open"); got != 2 {
		t.Errorf("open transitions = %d, want 2", got)
	}
	if got := sumValue(t, rm, "karaoke.provider.breaker.transitions", "provider", "groq"); got != 3 {
		t.Errorf("groq transitions = %d, want 3", got)
	}
}

func TestAlignmentScore(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.RecordAlignmentScore(ctx, "paste", 87.5)

	rm := collect(t, reader)
	met := findMetric(rm, "karaoke.alignment.score")
	if met == nil {
		t.Fatal("metric not found")
	}
	hist := met.Data.(metricdata.Histogram[float64])
	if len(hist.DataPoints) != 1 {
		t.Fatalf("data points = %d, want 1", len(hist.DataPoints))
	}
	if got := hist.DataPoints[0].Sum; got != 87.5 {
		t.Errorf("sum = %v, want 87.5", got)
	}
}

func TestGauges(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	// UpDownCounters are additive, so we simulate Set(n) as Add(n).
	m.ActiveSessions.Add(ctx, 1)
	m.ActiveSessions.Add(ctx, 1)
	m.ActiveRuns.Add(ctx, 3)
	m.ActiveRuns.Add(ctx, -1)
	m.ActiveStreams.Add(ctx, 4)
	m.StaleEvents.Add(ctx, 5)
	m.PolishReverted.Add(ctx, 6)

	rm := collect(t, reader)

	gauges := []struct {
		name string
		want int64
	}{
		{"karaoke.active_sessions", 2},
		{"karaoke.active_runs", 2},
		{"karaoke.active_streams", 4},
		{"karaoke.pipeline.stale_events", 5},
		{"karaoke.polish.reverted", 6},
	}

	for _, tc := range gauges {
		t.Run(tc.name, func(t *testing.T) {
			met := findMetric(rm, tc.name)
			if met == nil {
				t.Fatalf("metric %q not found", tc.name)
			}
			sum, ok := met.Data.(metricdata.Sum[int64])
			if !ok {
				t.Fatalf("metric %q is not a sum", tc.name)
			}
			if len(sum.DataPoints) == 0 {
				t.Fatalf("metric %q has no data points", tc.name)
			}
			if got := sum.DataPoints[0].Value; got != tc.want {
				t.Errorf("value = %d, want %d", got, tc.want)
			}
		})
	}
}

func TestDefaultMetrics_ReturnsSameInstance(t *testing.T) {
	// DefaultMetrics uses the global OTel provider so we just check
	// that repeated calls return the same pointer.
	a := DefaultMetrics()
	b := DefaultMetrics()
	if a != b {
		t.Error("DefaultMetrics returned different pointers")
	}
}
