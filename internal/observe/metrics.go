// Package observe provides application-wide observability primitives for the
// karaoke engine: OpenTelemetry metrics, distributed tracing, structured
// logging, and HTTP middleware that ties them together.
//
// Metrics are recorded through the OpenTelemetry Metrics API. A Prometheus
// exporter bridge is available via [InitProvider] so that metrics can be
// scraped via the standard /metrics endpoint. A package-level default
// [Metrics] instance ([DefaultMetrics]) is provided for convenience; tests
// should use [NewMetrics] with a custom [metric.MeterProvider] to avoid
// cross-test pollution.
package observe

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all metrics.
const meterName = "github.com/chetanrakshe2510/karaoke-maker"

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use.
type Metrics struct {
	// --- Pipeline ---

	// StageDuration tracks how long each pipeline stage took. Use with
	// attributes:
	//   attribute.String("stage", ...), attribute.String("status", ...)
	StageDuration metric.Float64Histogram

	// RunDuration tracks end-to-end run time from queued to ready.
	RunDuration metric.Float64Histogram

	// AlignmentScore tracks the share of clean words anchored to transcribed
	// timing, 0–100.
	AlignmentScore metric.Float64Histogram

	// Runs counts finished runs. Use with attributes:
	//   attribute.String("status", ...), attribute.String("strategy", ...)
	Runs metric.Int64Counter

	// StaleEvents counts pipeline events dropped because their run was
	// superseded or reset.
	StaleEvents metric.Int64Counter

	// PolishReverted counts segments reverted by the polish integrity check.
	PolishReverted metric.Int64Counter

	// --- Providers ---

	// ProviderRequests counts provider API calls. Use with attributes:
	//   attribute.String("provider", ...), attribute.String("kind", ...), attribute.String("status", ...)
	ProviderRequests metric.Int64Counter

	// ProviderErrors counts provider errors. Use with attributes:
	//   attribute.String("provider", ...), attribute.String("kind", ...)
	ProviderErrors metric.Int64Counter

	// ToolCalls counts MCP tool invocations. Use with attributes:
	//   attribute.String("tool", ...), attribute.String("status", ...)
	ToolCalls metric.Int64Counter

	// BreakerTransitions counts circuit breaker state changes. Use with
	// attributes:
	//   attribute.String("provider", ...), attribute.String("state", ...)
	BreakerTransitions metric.Int64Counter

	// --- Gauges ---

	// ActiveSessions tracks the number of open sessions.
	ActiveSessions metric.Int64UpDownCounter

	// ActiveRuns tracks the number of runs currently in flight.
	ActiveRuns metric.Int64UpDownCounter

	// ActiveStreams tracks the number of connected event websockets.
	ActiveStreams metric.Int64UpDownCounter

	// --- HTTP middleware ---

	// HTTPRequestDuration tracks HTTP request processing time. Use with attributes:
	//   attribute.String("method", ...), attribute.String("route", ...)
	HTTPRequestDuration metric.Float64Histogram
}

// stageBuckets defines histogram bucket boundaries (in seconds) for pipeline
// stages, which range from instant (synthetic model download) to several
// minutes (queued source separation).
var stageBuckets = []float64{
	0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 300, 600,
}

var scoreBuckets = []float64{10, 20, 30, 40, 50, 60, 70, 80, 90, 95, 100}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	// Histograms.
	if met.StageDuration, err = m.Float64Histogram("karaoke.pipeline.stage.duration",
		metric.WithDescription("Duration of a pipeline stage by stage and status."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(stageBuckets...),
	); err != nil {
		return nil, err
	}
	if met.RunDuration, err = m.Float64Histogram("karaoke.pipeline.run.duration",
		metric.WithDescription("End-to-end duration of a lyric run."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(stageBuckets...),
	); err != nil {
		return nil, err
	}
	if met.AlignmentScore, err = m.Float64Histogram("karaoke.alignment.score",
		metric.WithDescription("Percentage of clean lyric words anchored to transcribed timing."),
		metric.WithUnit("%"),
		metric.WithExplicitBucketBoundaries(scoreBuckets...),
	); err != nil {
		return nil, err
	}

	// Counters.
	if met.Runs, err = m.Int64Counter("karaoke.pipeline.runs",
		metric.WithDescription("Finished lyric runs by status and winning strategy."),
	); err != nil {
		return nil, err
	}
	if met.StaleEvents, err = m.Int64Counter("karaoke.pipeline.stale_events",
		metric.WithDescription("Pipeline events dropped because their run was superseded."),
	); err != nil {
		return nil, err
	}
	if met.PolishReverted, err = m.Int64Counter("karaoke.polish.reverted",
		metric.WithDescription("Segments reverted after polishing changed their word count."),
	); err != nil {
		return nil, err
	}
	if met.ProviderRequests, err = m.Int64Counter("karaoke.provider.requests",
		metric.WithDescription("Total provider API requests by provider, kind, and status."),
	); err != nil {
		return nil, err
	}
	if met.ProviderErrors, err = m.Int64Counter("karaoke.provider.errors",
		metric.WithDescription("Total provider errors by provider and kind."),
	); err != nil {
		return nil, err
	}
	if met.ToolCalls, err = m.Int64Counter("karaoke.tool.calls",
		metric.WithDescription("Total MCP tool invocations by tool name and status."),
	); err != nil {
		return nil, err
	}

	if met.BreakerTransitions, err = m.Int64Counter("karaoke.provider.breaker.transitions",
		metric.WithDescription("Circuit breaker state changes by provider and new state."),
	); err != nil {
		return nil, err
	}

	// Gauges (UpDownCounters).
	if met.ActiveSessions, err = m.Int64UpDownCounter("karaoke.active_sessions",
		metric.WithDescription("Number of open sessions."),
	); err != nil {
		return nil, err
	}
	if met.ActiveRuns, err = m.Int64UpDownCounter("karaoke.active_runs",
		metric.WithDescription("Number of lyric runs in flight."),
	); err != nil {
		return nil, err
	}
	if met.ActiveStreams, err = m.Int64UpDownCounter("karaoke.active_streams",
		metric.WithDescription("Number of connected event streams."),
	); err != nil {
		return nil, err
	}

	// HTTP middleware histogram.
	if met.HTTPRequestDuration, err = m.Float64Histogram("karaoke.http.request.duration",
		metric.WithDescription("HTTP request latency by method and route."),
		metric.WithUnit("s"),
	); err != nil {
		return nil, err
	}

	return met, nil
}

var (
	defaultMetrics     *Metrics
	defaultMetricsOnce sync.Once
)

// DefaultMetrics returns the package-level [Metrics] instance, creating it on
// first call using [otel.GetMeterProvider]. Subsequent calls return the same
// pointer. Panics if instrument creation fails (should not happen with the
// global provider).
func DefaultMetrics() *Metrics {
	defaultMetricsOnce.Do(func() {
		var err error
		defaultMetrics, err = NewMetrics(otel.GetMeterProvider())
		if err != nil {
			panic("observe: failed to create default metrics: " + err.Error())
		}
	})
	return defaultMetrics
}

// Attr is a convenience alias for [attribute.String] to reduce verbosity at
// call sites.
func Attr(key, value string) attribute.KeyValue {
	return attribute.String(key, value)
}

// RecordStage records one completed or failed pipeline stage.
func (m *Metrics) RecordStage(ctx context.Context, stage, status string, seconds float64) {
	m.StageDuration.Record(ctx, seconds,
		metric.WithAttributes(
			attribute.String("stage", stage),
			attribute.String("status", status),
		),
	)
}

// RecordRun records a finished run.
func (m *Metrics) RecordRun(ctx context.Context, status, strategy string, seconds float64) {
	m.Runs.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("status", status),
			attribute.String("strategy", strategy),
		),
	)
	m.RunDuration.Record(ctx, seconds, metric.WithAttributes(attribute.String("status", status)))
}

// RecordAlignmentScore records one alignment score.
func (m *Metrics) RecordAlignmentScore(ctx context.Context, source string, score float64) {
	m.AlignmentScore.Record(ctx, score, metric.WithAttributes(attribute.String("source", source)))
}

// RecordProviderRequest is a convenience method that records a provider
// request counter increment with the standard attribute set.
func (m *Metrics) RecordProviderRequest(ctx context.Context, provider, kind, status string) {
	m.ProviderRequests.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("provider", provider),
			attribute.String("kind", kind),
			attribute.String("status", status),
		),
	)
}

// RecordProviderError is a convenience method that records a provider error
// counter increment.
func (m *Metrics) RecordProviderError(ctx context.Context, provider, kind string) {
	m.ProviderErrors.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("provider", provider),
			attribute.String("kind", kind),
		),
	)
}

// RecordToolCall is a convenience method that records a tool call counter
// increment with the standard attribute set.
func (m *Metrics) RecordToolCall(ctx context.Context, tool, status string) {
	m.ToolCalls.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("tool", tool),
			attribute.String("status", status),
		),
	)
}

// RecordBreakerTransition records a provider's breaker entering state.
func (m *Metrics) RecordBreakerTransition(ctx context.Context, provider, state string) {
	m.BreakerTransitions.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("provider", provider),
			attribute.String("state", state),
		),
	)
}
