package pipeline

import (
	"context"
	"time"

	"github.com/chetanrakshe2510/karaoke-maker/internal/observe"
	"github.com/chetanrakshe2510/karaoke-maker/pkg/types"
)

// Stage and run status labels.
const (
	StatusOK       = "ok"
	StatusError    = "error"
	StatusSkipped  = "skipped"
	StatusDegraded = "degraded"
	StatusFailed   = "failed"
)

// Recorder receives the measurements a run produces. Each stage is recorded
// once, when its work is known complete or failed.
type Recorder interface {
	Stage(ctx context.Context, stage types.Stage, status string, d time.Duration)
	Alignment(ctx context.Context, source types.LyricSource, score float64)
	Provider(ctx context.Context, name, kind string, err error)
	Run(ctx context.Context, status, strategy string, d time.Duration)
	Active(ctx context.Context, delta int64)
	Stale(ctx context.Context)
	Reverted(ctx context.Context, n int)
}

// NopRecorder discards all measurements.
type NopRecorder struct{}

func (NopRecorder) Stage(context.Context, types.Stage, string, time.Duration) {}
func (NopRecorder) Alignment(context.Context, types.LyricSource, float64)     {}
func (NopRecorder) Provider(context.Context, string, string, error)          {}
func (NopRecorder) Run(context.Context, string, string, time.Duration)       {}
func (NopRecorder) Active(context.Context, int64)                            {}
func (NopRecorder) Stale(context.Context)                                    {}
func (NopRecorder) Reverted(context.Context, int)                            {}

// MetricsRecorder records into OpenTelemetry instruments.
type MetricsRecorder struct {
	m *observe.Metrics
}

var _ Recorder = (*MetricsRecorder)(nil)

// NewMetricsRecorder returns a Recorder backed by m.
func NewMetricsRecorder(m *observe.Metrics) *MetricsRecorder {
	return &MetricsRecorder{m: m}
}

func (r *MetricsRecorder) Stage(ctx context.Context, stage types.Stage, status string, d time.Duration) {
	r.m.RecordStage(ctx, string(stage), status, d.Seconds())
}

func (r *MetricsRecorder) Alignment(ctx context.Context, source types.LyricSource, score float64) {
	r.m.RecordAlignmentScore(ctx, string(source), score)
}

func (r *MetricsRecorder) Provider(ctx context.Context, name, kind string, err error) {
	status := StatusOK
	if err != nil {
		status = StatusError
		r.m.RecordProviderError(ctx, name, kind)
	}
	r.m.RecordProviderRequest(ctx, name, kind, status)
}

func (r *MetricsRecorder) Run(ctx context.Context, status, strategy string, d time.Duration) {
	r.m.RecordRun(ctx, status, strategy, d.Seconds())
}

func (r *MetricsRecorder) Active(ctx context.Context, delta int64) {
	r.m.ActiveRuns.Add(ctx, delta)
}

func (r *MetricsRecorder) Stale(ctx context.Context) {
	r.m.StaleEvents.Add(ctx, 1)
}

func (r *MetricsRecorder) Reverted(ctx context.Context, n int) {
	if n > 0 {
		r.m.PolishReverted.Add(ctx, int64(n))
	}
}

// millis converts d to the millisecond representation used in
// [types.PerformanceMetrics].
func millis(d time.Duration) *float64 {
	return types.Ms(float64(d) / float64(time.Millisecond))
}
