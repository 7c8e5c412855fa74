package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/chetanrakshe2510/karaoke-maker/internal/align"
	"github.com/chetanrakshe2510/karaoke-maker/internal/observe"
	"github.com/chetanrakshe2510/karaoke-maker/internal/polish"
	"github.com/chetanrakshe2510/karaoke-maker/pkg/audio"
	"github.com/chetanrakshe2510/karaoke-maker/pkg/provider/separation"
	"github.com/chetanrakshe2510/karaoke-maker/pkg/provider/transcribe"
	"github.com/chetanrakshe2510/karaoke-maker/pkg/provider/transcribe/placeholder"
	"github.com/chetanrakshe2510/karaoke-maker/pkg/types"
)

var (
	// ErrEmptyAudio is returned when a run is started without audio. It is
	// the one terminal run failure.
	ErrEmptyAudio = errors.New("pipeline: no audio")

	// ErrSuperseded is returned when a run was reset or replaced before it
	// finished. Its results were discarded.
	ErrSuperseded = errors.New("pipeline: run superseded")
)

// Input describes one run.
type Input struct {
	Audio    []byte
	Filename string

	// Duration is the playback length in seconds. When zero it is probed
	// from Audio where the container allows.
	Duration float64

	Language string
	Quality  types.Quality

	Source       types.LyricSource
	PastedLyrics string
	Song         types.SongMetadata

	// Polish enables LLM polishing when no clean lyric text was used.
	Polish bool
}

// Recaller fetches known clean lyrics.
type Recaller interface {
	Recall(ctx context.Context, artist, title string) (string, error)
}

// Polisher corrects transcribed text without changing timing.
type Polisher interface {
	PolishWithReport(ctx context.Context, segs []types.LyricSegment) ([]types.LyricSegment, polish.Report, error)
}

// Config holds the collaborators of a [Runner]. Only Strategies is
// typically required; nil fields fall back to safe defaults.
type Config struct {
	// Separator splits audio into stems. Nil means [separation.Passthrough].
	Separator separation.Provider

	// Strategies are tried in order. The placeholder strategy is appended
	// when the list does not already end with one.
	Strategies []Strategy

	// Recaller is used for ai-recall and auto runs with a known title.
	Recaller Recaller

	// Polisher is used when polishing is requested.
	Polisher Polisher

	// Aligner maps clean text onto transcribed timing. Nil means
	// align.New().
	Aligner *align.Aligner

	// Recorder receives measurements. Nil means [NopRecorder].
	Recorder Recorder

	// Now is the clock used for stage timing. Nil means time.Now.
	Now func() time.Time
}

// Runner executes pipeline runs against sessions. A Runner holds no per-run
// state and may drive many sessions concurrently.
type Runner struct {
	separator  separation.Provider
	strategies []Strategy
	recaller   Recaller
	polisher   Polisher
	aligner    *align.Aligner
	rec        Recorder
	now        func() time.Time
}

// NewRunner returns a Runner for cfg.
func NewRunner(cfg Config) *Runner {
	r := &Runner{
		separator:  cfg.Separator,
		strategies: append([]Strategy(nil), cfg.Strategies...),
		recaller:   cfg.Recaller,
		polisher:   cfg.Polisher,
		aligner:    cfg.Aligner,
		rec:        cfg.Recorder,
		now:        cfg.Now,
	}
	if r.separator == nil {
		r.separator = separation.Passthrough{}
	}
	if n := len(r.strategies); n == 0 || r.strategies[n-1].Name() != StrategyPlaceholder {
		r.strategies = append(r.strategies, Placeholder(placeholder.New()))
	}
	if r.aligner == nil {
		r.aligner = align.New()
	}
	if r.rec == nil {
		r.rec = NopRecorder{}
	}
	if r.now == nil {
		r.now = time.Now
	}
	return r
}

// Strategies returns the strategy names in the order they are tried.
func (r *Runner) Strategies() []string {
	names := make([]string, len(r.strategies))
	for i, s := range r.strategies {
		names[i] = s.Name()
	}
	return names
}

// Start begins a run on s and executes it in a new goroutine. It returns the
// run's generation. The run is cancelled when ctx is done or the session is
// reset or restarted.
func (r *Runner) Start(ctx context.Context, s *Session, in Input) uint64 {
	runCtx, gen := s.Begin(ctx)
	go func() {
		_ = r.execute(runCtx, s, gen, in)
	}()
	return gen
}

// Run begins a run on s and blocks until it finished. It returns the final
// state of the run. The error is [ErrEmptyAudio] for a terminal failure,
// [ErrSuperseded] when the run was cancelled or superseded, or nil; provider
// failures never surface here and are reported through State.Error instead.
func (r *Runner) Run(ctx context.Context, s *Session, in Input) (State, error) {
	runCtx, gen := s.Begin(ctx)
	err := r.execute(runCtx, s, gen, in)
	return s.Snapshot(), err
}

// run carries the per-run values shared by the stage helpers.
type run struct {
	*Runner
	s   *Session
	gen uint64
	log *slog.Logger
}

// dispatch forwards ev to the session and counts dropped events.
func (x *run) dispatch(ctx context.Context, ev Event) bool {
	if x.s.Dispatch(x.gen, ev) {
		return true
	}
	x.rec.Stale(context.WithoutCancel(ctx))
	return false
}

func (x *run) stale(ctx context.Context) bool {
	return ctx.Err() != nil || !x.s.Current(x.gen)
}

func (r *Runner) execute(ctx context.Context, s *Session, gen uint64, in Input) error {
	ctx, span := observe.StartSpan(ctx, "pipeline.run")
	defer span.End()
	span.SetAttributes(
		attribute.String("session.id", s.ID()),
		attribute.Int64("run.generation", int64(gen)),
		attribute.String("lyric.source", string(in.Source)),
	)

	x := &run{Runner: r, s: s, gen: gen, log: observe.SessionLogger(ctx, s.ID(), gen)}
	mctx := context.WithoutCancel(ctx)
	start := r.now()

	r.rec.Active(mctx, 1)
	defer r.rec.Active(mctx, -1)

	if len(in.Audio) == 0 {
		x.log.Warn("pipeline: run rejected", "err", ErrEmptyAudio)
		x.dispatch(ctx, ErrorRaised{Message: ErrEmptyAudio.Error(), Terminal: true})
		r.rec.Run(mctx, StatusFailed, "", r.now().Sub(start))
		observe.Fail(span, ErrEmptyAudio)
		return ErrEmptyAudio
	}
	if in.Duration <= 0 {
		if info, err := audio.Probe(in.Audio); err == nil {
			in.Duration = info.Seconds
		}
	}
	x.log.Info("pipeline: run started", "bytes", len(in.Audio), "duration", in.Duration, "source", in.Source)

	stems := x.separate(ctx, in.Audio)
	if x.stale(ctx) {
		return ErrSuperseded
	}
	x.dispatch(ctx, StemsReady{Stems: stems})

	req := transcribe.Request{
		Audio:    stems.Vocals,
		Filename: in.Filename,
		Language: in.Language,
		Quality:  in.Quality,
		Duration: in.Duration,
	}
	out, strategy, tErr := x.transcribe(ctx, req)
	if x.stale(ctx) {
		return ErrSuperseded
	}
	x.dispatch(ctx, SegmentsReady{Segments: out.Segments, Strategy: strategy})
	if tErr != nil {
		x.dispatch(ctx, ErrorRaised{Message: tErr.Error()})
	}

	x.postProcess(ctx, out.Segments, in)
	if x.stale(ctx) {
		return ErrSuperseded
	}

	total := r.now().Sub(start)
	x.dispatch(ctx, MetricsRecorded{Metrics: types.PerformanceMetrics{TotalTime: millis(total)}})
	if !x.dispatch(ctx, Completed{}) {
		return ErrSuperseded
	}

	status := StatusOK
	if tErr != nil {
		status = StatusDegraded
	}
	r.rec.Run(mctx, status, strategy, total)
	span.SetAttributes(attribute.String("run.strategy", strategy), attribute.String("run.status", status))
	x.log.Info("pipeline: run ready", "strategy", strategy, "backend", out.Backend, "segments", len(out.Segments), "status", status, "elapsed", total)
	return nil
}

// separate runs source separation. A failure falls back to the original audio
// for both stems.
func (x *run) separate(ctx context.Context, audio []byte) Stems {
	ctx, span := observe.StartSpan(ctx, "pipeline.separate")
	defer span.End()

	start := x.now()
	l := &separationListener{ctx: ctx, x: x}
	st, err := x.separator.Separate(ctx, audio, l)
	d := x.now().Sub(start)
	mctx := context.WithoutCancel(ctx)

	x.rec.Provider(mctx, "separation", "separation", err)
	x.dispatch(ctx, StageChanged{Stage: types.StageSeparating})
	x.dispatch(ctx, MetricsRecorded{Metrics: types.PerformanceMetrics{SeparationTime: millis(d)}})

	if err != nil || st == nil || len(st.Vocals) == 0 {
		if err == nil {
			err = errors.New("separation returned no vocals")
		}
		x.rec.Stage(mctx, types.StageSeparating, StatusError, d)
		if ctx.Err() == nil {
			x.log.Warn("pipeline: separation failed, using original audio", "err", err)
		}
		observe.Fail(span, err)
		return Stems{Vocals: audio, Instrumental: audio}
	}
	x.rec.Stage(mctx, types.StageSeparating, StatusOK, d)
	inst := st.Instrumental
	if len(inst) == 0 {
		inst = audio
	}
	return Stems{Vocals: st.Vocals, Instrumental: inst}
}

// transcribe tries each strategy in order. The returned error describes the
// failures of the real strategies when the placeholder had to be used; the
// outcome is always usable.
func (x *run) transcribe(ctx context.Context, req transcribe.Request) (Outcome, string, error) {
	ctx, span := observe.StartSpan(ctx, "pipeline.transcribe")
	defer span.End()

	start := x.now()
	mctx := context.WithoutCancel(ctx)
	l := &transcribeListener{ctx: ctx, x: x}
	defer func() {
		x.dispatch(ctx, MetricsRecorded{Metrics: types.PerformanceMetrics{TranscriptionTime: millis(x.now().Sub(start))}})
	}()

	var errs []error
	for _, st := range x.strategies {
		if ctx.Err() != nil {
			break
		}
		name := st.Name()
		if name == StrategyPlaceholder {
			break
		}
		if err := st.Available(ctx); err != nil {
			x.log.Info("pipeline: strategy unavailable", "strategy", name, "err", err)
			if !errors.Is(err, ErrLocalDisabled) {
				errs = append(errs, fmt.Errorf("%s: %w", name, err))
			}
			continue
		}
		out, err := st.Attempt(ctx, req, l)
		x.rec.Provider(mctx, name, "transcribe", err)
		if err == nil && len(out.Segments) == 0 {
			err = transcribe.ErrEmptyResult
		}
		if err != nil {
			if ctx.Err() != nil {
				break
			}
			x.log.Warn("pipeline: strategy failed, trying next", "strategy", name, "err", err)
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
			continue
		}
		x.rec.Stage(mctx, types.StageTranscribing, StatusOK, x.now().Sub(start))
		span.SetAttributes(attribute.String("transcribe.strategy", name))
		return out, name, nil
	}

	if ctx.Err() != nil {
		x.rec.Stage(mctx, types.StageTranscribing, StatusError, x.now().Sub(start))
		return Outcome{}, "", ctx.Err()
	}

	var failure error
	if len(errs) > 0 {
		failure = fmt.Errorf("transcription failed, showing placeholder lyrics: %w", errors.Join(errs...))
		observe.Fail(span, failure)
	}

	ph := x.strategies[len(x.strategies)-1]
	out, err := ph.Attempt(ctx, req, l)
	if err != nil || len(out.Segments) == 0 {
		if ctx.Err() != nil {
			return Outcome{}, "", ctx.Err()
		}
		x.log.Warn("pipeline: placeholder strategy failed, using canonical lines", "err", err)
		d := req.Duration
		if d <= 0 {
			d = placeholder.DefaultDuration
		}
		out = Outcome{Segments: placeholder.Segments(d), Backend: StrategyPlaceholder}
	}
	if failure != nil {
		x.log.Error("pipeline: all transcription strategies failed", "err", failure)
	}
	x.rec.Stage(mctx, types.StageTranscribing, StatusDegraded, x.now().Sub(start))
	span.SetAttributes(attribute.String("transcribe.strategy", StrategyPlaceholder))
	return out, StrategyPlaceholder, failure
}

// separationListener turns separation progress into events.
type separationListener struct {
	ctx context.Context
	x   *run
	pos int
}

func (l *separationListener) QueuePosition(pos int) {
	l.pos = pos
	if pos <= 0 {
		l.x.dispatch(l.ctx, StageChanged{Stage: types.StageSeparating})
	}
	l.x.dispatch(l.ctx, SeparationProgress{QueuePosition: pos})
}

func (l *separationListener) Phase(msg string) {
	l.x.dispatch(l.ctx, SeparationProgress{QueuePosition: l.pos, Phase: msg})
}

// transcribeListener turns transcription progress into events.
type transcribeListener struct {
	ctx context.Context
	x   *run
}

func (l *transcribeListener) ModelProgress(loaded, total int64) {
	l.x.dispatch(l.ctx, StageChanged{Stage: types.StageModelDownload})
	l.x.dispatch(l.ctx, ModelProgress{Loaded: loaded, Total: total})
}

func (l *transcribeListener) TranscribingStarted() {
	l.x.dispatch(l.ctx, StageChanged{Stage: types.StageTranscribing})
}
