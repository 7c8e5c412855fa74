package resilience

import (
	"context"
	"errors"
	"fmt"

	"github.com/chetanrakshe2510/karaoke-maker/pkg/provider/transcribe"
)

// TranscribeFallback implements [transcribe.Provider] with failover across
// several remote transcription backends, for example Groq first and OpenAI
// second. Each backend has its own circuit breaker.
type TranscribeFallback struct {
	group *FallbackGroup[transcribe.Provider]
}

var (
	_ transcribe.Provider = (*TranscribeFallback)(nil)
	_ transcribe.Checker  = (*TranscribeFallback)(nil)
)

// NewTranscribeFallback creates a [TranscribeFallback] with primary as the
// preferred backend.
func NewTranscribeFallback(primary transcribe.Provider, primaryName string, cfg FallbackConfig) *TranscribeFallback {
	return &TranscribeFallback{
		group: NewFallbackGroup(primary, primaryName, cfg),
	}
}

// AddFallback registers an additional transcription backend.
func (f *TranscribeFallback) AddFallback(name string, provider transcribe.Provider) {
	f.group.AddFallback(name, provider)
}

// Names returns the backend names in try order.
func (f *TranscribeFallback) Names() []string { return f.group.Names() }

// States returns each backend's breaker state keyed by name.
func (f *TranscribeFallback) States() map[string]State { return f.group.States() }

// Transcribe implements transcribe.Provider.
func (f *TranscribeFallback) Transcribe(ctx context.Context, req transcribe.Request, l transcribe.Listener) (*transcribe.Result, error) {
	res, _, err := f.TranscribeNamed(ctx, req, l)
	return res, err
}

// TranscribeNamed is like Transcribe and also returns the name of the backend
// that produced the result. An empty result counts as a failure so the next
// backend gets a chance.
func (f *TranscribeFallback) TranscribeNamed(ctx context.Context, req transcribe.Request, l transcribe.Listener) (*transcribe.Result, string, error) {
	return ExecuteWithResult(ctx, f.group, func(ctx context.Context, p transcribe.Provider) (*transcribe.Result, error) {
		res, err := p.Transcribe(ctx, req, l)
		if err != nil {
			return nil, err
		}
		if res == nil || len(res.Segments) == 0 {
			return nil, transcribe.ErrEmptyResult
		}
		return res, nil
	})
}

// Available implements transcribe.Checker. It succeeds when at least one
// backend with a closed or half-open breaker passes its own check. Backends
// without a check count as available.
func (f *TranscribeFallback) Available(ctx context.Context) error {
	var errs []error
	ok := f.group.Each(func(name string, p transcribe.Provider) bool {
		c, isChecker := p.(transcribe.Checker)
		if !isChecker {
			return true
		}
		if err := c.Available(ctx); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
			return false
		}
		return true
	})
	if ok {
		return nil
	}
	if len(errs) == 0 {
		return fmt.Errorf("%w: all circuit breakers open", transcribe.ErrUnavailable)
	}
	return errors.Join(errs...)
}
