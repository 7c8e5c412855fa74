// Package app wires the karaoke subsystems into a running application.
//
// The App struct owns the full lifecycle: New builds the resilience layer,
// pipeline runner and session manager from the config and providers,
// ApplyConfig hot-reloads tuning, and Shutdown tears everything down in
// order.
//
// For testing, inject doubles via functional options (WithMetrics,
// WithSessionIDs, etc.). Providers are always passed in by the caller.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/chetanrakshe2510/karaoke-maker/internal/align"
	"github.com/chetanrakshe2510/karaoke-maker/internal/align/phonetic"
	"github.com/chetanrakshe2510/karaoke-maker/internal/config"
	"github.com/chetanrakshe2510/karaoke-maker/internal/health"
	"github.com/chetanrakshe2510/karaoke-maker/internal/observe"
	"github.com/chetanrakshe2510/karaoke-maker/internal/pipeline"
	"github.com/chetanrakshe2510/karaoke-maker/internal/polish"
	"github.com/chetanrakshe2510/karaoke-maker/internal/recall"
	"github.com/chetanrakshe2510/karaoke-maker/internal/resilience"
	"github.com/chetanrakshe2510/karaoke-maker/pkg/provider/llm"
	"github.com/chetanrakshe2510/karaoke-maker/pkg/provider/separation"
	"github.com/chetanrakshe2510/karaoke-maker/pkg/provider/transcribe"
	"github.com/chetanrakshe2510/karaoke-maker/pkg/provider/transcribe/placeholder"
)

// Provider kinds used in metrics and logs.
const (
	KindSeparation    = "separation"
	KindTranscription = "transcription"
	KindLocal         = "local"
	KindPolish        = "polish"
	KindRecall        = "recall"
)

// Named pairs a provider with the config name it was created from.
type Named[T any] struct {
	Name     string
	Provider T
}

// Providers holds the provider instances. Zero values mean the provider is
// not configured. Populated by main.go via the config registry.
type Providers struct {
	Separation    Named[separation.Provider]
	Transcription []Named[transcribe.Provider]
	Local         Named[transcribe.Provider]
	Polish        Named[llm.Provider]
	Recall        Named[llm.Provider]
}

// App owns all subsystem lifetimes.
type App struct {
	cfg       atomic.Pointer[config.Config]
	providers *Providers
	metrics   *observe.Metrics
	rec       pipeline.Recorder
	newID     func() string

	// Built once in New.
	separator  separation.Provider
	remote     *resilience.TranscribeFallback
	strategies []pipeline.Strategy
	recaller   pipeline.Recaller
	polisher   pipeline.Polisher

	runner   atomic.Pointer[pipeline.Runner]
	sessions *SessionManager
	cancel   context.CancelFunc

	// closers are called in order during Shutdown.
	closers []func() error

	// stopOnce guards the Shutdown path.
	stopOnce sync.Once
}

// Option is a functional option for New.
type Option func(*App)

// WithMetrics records to m instead of [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(a *App) { a.metrics = m }
}

// WithRecorder replaces the pipeline recorder built from the metrics.
func WithRecorder(r pipeline.Recorder) Option {
	return func(a *App) { a.rec = r }
}

// WithSessionIDs replaces the session ID generator.
func WithSessionIDs(gen func() string) Option {
	return func(a *App) { a.newID = gen }
}

// New creates an App by wiring all subsystems together. The providers struct
// comes from main.go (populated via the config registry). Sessions live until
// ctx is done or Shutdown is called.
func New(ctx context.Context, cfg *config.Config, providers *Providers, opts ...Option) (*App, error) {
	if providers == nil {
		providers = &Providers{}
	}
	a := &App{providers: providers}
	for _, o := range opts {
		o(a)
	}
	if a.metrics == nil {
		a.metrics = observe.DefaultMetrics()
	}
	if a.rec == nil {
		a.rec = pipeline.NewMetricsRecorder(a.metrics)
	}
	a.cfg.Store(cfg)

	// ── 1. Resilience layer ──────────────────────────────────────────────
	a.initProviders(cfg)

	// ── 2. Runner ────────────────────────────────────────────────────────
	runner, err := a.buildRunner(cfg)
	if err != nil {
		return nil, fmt.Errorf("app: build runner: %w", err)
	}
	a.runner.Store(runner)

	// ── 3. Sessions ──────────────────────────────────────────────────────
	ctx, a.cancel = context.WithCancel(ctx)
	a.sessions = NewSessionManager(ctx, SessionManagerConfig{
		Runner:       a.Runner,
		Pipeline:     cfg.Pipeline,
		PollInterval: cfg.Playback.PollInterval,
		Metrics:      a.metrics,
		NewID:        a.newID,
	})
	a.closers = append(a.closers, func() error {
		a.sessions.Close()
		return nil
	})
	if c, ok := providers.Local.Provider.(interface{ Close() error }); ok {
		a.closers = append(a.closers, c.Close)
	}

	slog.Info("app ready", "strategies", runner.Strategies())
	return a, nil
}

func (a *App) fallbackConfig(cfg *config.Config, kind string) resilience.FallbackConfig {
	return resilience.FallbackConfig{
		CircuitBreaker: resilience.CircuitBreakerConfig{
			MaxFailures:   cfg.Pipeline.CircuitBreaker.MaxFailures,
			ResetTimeout:  cfg.Pipeline.CircuitBreaker.ResetTimeout,
			OnStateChange: func(name string, to resilience.State) {
				a.metrics.RecordBreakerTransition(context.Background(), name, to.String())
			},
		},
		OnAttempt: func(name string, err error) {
			a.rec.Provider(context.Background(), name, kind, err)
		},
	}
}

// initProviders puts circuit breakers in front of the remote providers.
func (a *App) initProviders(cfg *config.Config) {
	p := a.providers

	if p.Separation.Provider != nil {
		a.separator = resilience.NewSeparationFallback(p.Separation.Provider, p.Separation.Name, a.fallbackConfig(cfg, KindSeparation))
	}

	for i, t := range p.Transcription {
		if i == 0 {
			a.remote = resilience.NewTranscribeFallback(t.Provider, t.Name, a.fallbackConfig(cfg, KindTranscription))
			continue
		}
		a.remote.AddFallback(t.Name, t.Provider)
	}
	if a.remote != nil {
		a.strategies = append(a.strategies, pipeline.Remote(a.remote))
	}
	if p.Local.Provider != nil {
		a.strategies = append(a.strategies, pipeline.Local(p.Local.Provider, cfg.Pipeline.EnableLocal))
	}

	if p.Polish.Provider != nil {
		a.polisher = polish.New(resilience.NewLLMFallback(p.Polish.Provider, p.Polish.Name, a.fallbackConfig(cfg, KindPolish)))
	}
	recallP := p.Recall
	if recallP.Provider == nil {
		recallP = p.Polish
	}
	if recallP.Provider != nil {
		a.recaller = recall.New(resilience.NewLLMFallback(recallP.Provider, recallP.Name, a.fallbackConfig(cfg, KindRecall)))
	}
}

// buildRunner assembles a runner from the shared providers and the tuning
// in cfg. It is called again on hot reload.
func (a *App) buildRunner(cfg *config.Config) (*pipeline.Runner, error) {
	aligner, err := NewAligner(cfg.Alignment)
	if err != nil {
		return nil, err
	}

	var phOpts []placeholder.Option
	if cfg.Pipeline.PlaceholderStep > 0 {
		phOpts = append(phOpts,
			placeholder.WithStepDelay(cfg.Pipeline.PlaceholderStep),
			placeholder.WithSettleDelay(5*cfg.Pipeline.PlaceholderStep),
		)
	}
	if cfg.Pipeline.DefaultDuration > 0 {
		phOpts = append(phOpts, placeholder.WithDefaultDuration(cfg.Pipeline.DefaultDuration))
	}

	strategies := append(append([]pipeline.Strategy(nil), a.strategies...),
		pipeline.Placeholder(placeholder.New(phOpts...)))

	return pipeline.NewRunner(pipeline.Config{
		Separator:  a.separator,
		Strategies: strategies,
		Recaller:   a.recaller,
		Polisher:   a.polisher,
		Aligner:    aligner,
		Recorder:   a.rec,
	}), nil
}

// NewAligner builds an aligner from the alignment config.
func NewAligner(c config.AlignmentConfig) (*align.Aligner, error) {
	var opts []align.Option
	if c.Lookahead > 0 {
		opts = append(opts, align.WithLookahead(c.Lookahead))
	}
	if c.TrailingPad > 0 {
		opts = append(opts, align.WithTrailingPad(c.TrailingPad))
	}
	switch c.Matcher {
	case "", config.MatcherSubstring:
	case config.MatcherPhonetic:
		opts = append(opts, align.WithMatcher(phonetic.New()))
	default:
		return nil, fmt.Errorf("unknown matcher %q", c.Matcher)
	}
	return align.New(opts...), nil
}

// Runner returns the current pipeline runner.
func (a *App) Runner() *pipeline.Runner { return a.runner.Load() }

// Sessions returns the session manager.
func (a *App) Sessions() *SessionManager { return a.sessions }

// Config returns the config currently in effect.
func (a *App) Config() *config.Config { return a.cfg.Load() }

// Checkers returns the readiness checks for the configured providers.
func (a *App) Checkers() []health.Checker {
	checks := []health.Checker{{
		Name: "config",
		Check: func(context.Context) error {
			if a.cfg.Load() == nil {
				return fmt.Errorf("no configuration loaded")
			}
			return nil
		},
	}}
	if a.remote != nil {
		checks = append(checks, health.Breakers(KindTranscription, a.remote.States))
	}
	if c, ok := a.providers.Local.Provider.(transcribe.Checker); ok && a.cfg.Load().Pipeline.EnableLocal {
		checks = append(checks, health.Available(KindLocal, c.Available))
	}
	return checks
}

// ApplyConfig applies the hot-reloadable parts of next. Changes that need a
// restart are logged and otherwise ignored.
func (a *App) ApplyConfig(next *config.Config) {
	prev := a.cfg.Load()
	d := config.Diff(prev, next)
	if !d.Changed() {
		return
	}
	if len(d.RestartRequired) > 0 {
		slog.Warn("config changes require a restart", "sections", d.RestartRequired)
	}

	// Provider and breaker settings stay as they were built.
	applied := *next
	applied.Providers = prev.Providers
	applied.Pipeline.EnableLocal = prev.Pipeline.EnableLocal
	applied.Pipeline.CircuitBreaker = prev.Pipeline.CircuitBreaker

	if d.AlignmentChanged || d.PipelineChanged {
		runner, err := a.buildRunner(&applied)
		if err != nil {
			slog.Error("config reload: keeping previous runner", "err", err)
			applied.Alignment = prev.Alignment
		} else {
			a.runner.Store(runner)
		}
	}
	if d.PipelineChanged {
		a.sessions.SetDefaults(applied.Pipeline)
	}
	if d.PlaybackChanged {
		a.sessions.SetPollInterval(applied.Playback.PollInterval)
	}
	a.cfg.Store(&applied)
	slog.Info("config applied",
		"pipeline", d.PipelineChanged,
		"alignment", d.AlignmentChanged,
		"playback", d.PlaybackChanged,
	)
}

// Shutdown tears down all subsystems. It respects the context deadline: if
// ctx expires before all closers finish, remaining closers are skipped and
// the context error is returned.
func (a *App) Shutdown(ctx context.Context) error {
	var shutdownErr error
	a.stopOnce.Do(func() {
		slog.Info("shutting down", "closers", len(a.closers))
		a.cancel()

		for i, closer := range a.closers {
			select {
			case <-ctx.Done():
				slog.Warn("shutdown deadline exceeded", "remaining", len(a.closers)-i)
				shutdownErr = ctx.Err()
				return
			default:
			}
			if err := closer(); err != nil {
				slog.Warn("closer error", "index", i, "err", err)
			}
		}

		slog.Info("shutdown complete")
	})
	return shutdownErr
}
