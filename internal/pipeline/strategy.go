package pipeline

import (
	"context"
	"fmt"

	"github.com/chetanrakshe2510/karaoke-maker/internal/resilience"
	"github.com/chetanrakshe2510/karaoke-maker/pkg/provider/transcribe"
	"github.com/chetanrakshe2510/karaoke-maker/pkg/types"
)

// Strategy names.
const (
	StrategyRemote      = "remote"
	StrategyLocal       = "local"
	StrategyPlaceholder = "placeholder"
)

// ErrLocalDisabled is returned by the local strategy's Available when local
// inference was not opted into.
var ErrLocalDisabled = fmt.Errorf("%w: local transcription disabled", transcribe.ErrUnavailable)

// Outcome is the product of a successful strategy attempt.
type Outcome struct {
	Segments []types.LyricSegment

	// Backend names the provider inside the strategy that produced the
	// segments. Equal to the strategy name for single-provider strategies.
	Backend string
}

// Strategy is one way of turning vocals into timed segments.
type Strategy interface {
	// Name identifies the strategy in state, logs and metrics.
	Name() string

	// Available returns nil when the strategy can be attempted. It should
	// be cheap.
	Available(ctx context.Context) error

	// Attempt transcribes req, reporting progress to l. It returns a
	// non-empty segment list or an error.
	Attempt(ctx context.Context, req transcribe.Request, l transcribe.Listener) (Outcome, error)
}

// remoteStrategy runs hosted transcription backends behind circuit breakers.
type remoteStrategy struct {
	fb *resilience.TranscribeFallback
}

// Remote returns the fast remote strategy. The backends of fb are tried in
// order. No model is fetched on this path, so download progress is reported
// as complete before recognition starts.
func Remote(fb *resilience.TranscribeFallback) Strategy {
	return &remoteStrategy{fb: fb}
}

func (s *remoteStrategy) Name() string { return StrategyRemote }

func (s *remoteStrategy) Available(ctx context.Context) error {
	if s.fb == nil {
		return fmt.Errorf("%w: no remote transcription configured", transcribe.ErrUnavailable)
	}
	return s.fb.Available(ctx)
}

func (s *remoteStrategy) Attempt(ctx context.Context, req transcribe.Request, l transcribe.Listener) (Outcome, error) {
	l = transcribe.OrDiscard(l)
	l.ModelProgress(100, 100)
	l.TranscribingStarted()
	res, name, err := s.fb.TranscribeNamed(ctx, req, nil)
	if err != nil {
		return Outcome{}, err
	}
	return Outcome{Segments: res.Segments, Backend: name}, nil
}

// providerStrategy adapts a single transcribe.Provider.
type providerStrategy struct {
	name    string
	p       transcribe.Provider
	enabled bool
}

// Local returns the on-device strategy. It is only available when enabled is
// true and p passes its own capability check, if it has one.
func Local(p transcribe.Provider, enabled bool) Strategy {
	return &providerStrategy{name: StrategyLocal, p: p, enabled: enabled}
}

// Placeholder returns the final fallback strategy. It is always available.
func Placeholder(p transcribe.Provider) Strategy {
	return &providerStrategy{name: StrategyPlaceholder, p: p, enabled: true}
}

func (s *providerStrategy) Name() string { return s.name }

func (s *providerStrategy) Available(ctx context.Context) error {
	if !s.enabled {
		return ErrLocalDisabled
	}
	if s.p == nil {
		return fmt.Errorf("%w: %s provider not configured", transcribe.ErrUnavailable, s.name)
	}
	if c, ok := s.p.(transcribe.Checker); ok {
		return c.Available(ctx)
	}
	return nil
}

func (s *providerStrategy) Attempt(ctx context.Context, req transcribe.Request, l transcribe.Listener) (Outcome, error) {
	res, err := s.p.Transcribe(ctx, req, l)
	if err != nil {
		return Outcome{}, err
	}
	if res == nil || len(res.Segments) == 0 {
		return Outcome{}, transcribe.ErrEmptyResult
	}
	return Outcome{Segments: res.Segments, Backend: s.name}, nil
}
