// Package placeholder provides the transcription provider of last resort. It
// never fails: it simulates a model download and returns a fixed set of demo
// lyric lines spread evenly over the song, so a run always reaches the ready
// stage with something to display.
package placeholder

import (
	"context"
	"fmt"
	"time"

	"github.com/chetanrakshe2510/karaoke-maker/pkg/provider/transcribe"
	"github.com/chetanrakshe2510/karaoke-maker/pkg/types"
)

const (
	// Steps is the number of simulated model-download progress reports.
	Steps = 10

	// TotalBytes is the simulated model size.
	TotalBytes int64 = 50_000_000

	// DefaultDuration is the song length assumed when none is known.
	DefaultDuration = 60.0
)

// Lines are the canonical placeholder lyrics.
var Lines = []string{
	"When the stars align tonight",
	"I'll be dancing in the moonlight",
	"Every heartbeat sings your name",
	"Nothing's ever gonna be the same",
	"♪ ♫ ♪ (Instrumental)",
	"Take my hand and hold on tight",
	"We'll chase the shadows through the night",
	"Like a river flowing free",
	"You and I were meant to be",
	"♪ ♫ ♪ (Instrumental)",
	"Every moment feels so right",
	"With you here by my side",
	"Let the music carry us away",
	"Into a brand new day",
}

var _ transcribe.Provider = (*Provider)(nil)

// Provider implements transcribe.Provider with deterministic demo lines.
type Provider struct {
	stepDelay       time.Duration
	settleDelay     time.Duration
	defaultDuration float64
}

// Option configures a Provider.
type Option func(*Provider)

// WithStepDelay sets the pause between simulated progress steps. Zero makes
// the provider return immediately.
func WithStepDelay(d time.Duration) Option {
	return func(p *Provider) { p.stepDelay = d }
}

// WithSettleDelay sets the pause between the last progress step and the
// result.
func WithSettleDelay(d time.Duration) Option {
	return func(p *Provider) { p.settleDelay = d }
}

// WithDefaultDuration sets the song length used when the request carries
// none.
func WithDefaultDuration(seconds float64) Option {
	return func(p *Provider) {
		if seconds > 0 {
			p.defaultDuration = seconds
		}
	}
}

// New returns a Provider with 200 ms progress steps and a one second settle
// delay.
func New(opts ...Option) *Provider {
	p := &Provider{
		stepDelay:       200 * time.Millisecond,
		settleDelay:     time.Second,
		defaultDuration: DefaultDuration,
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

// Transcribe implements transcribe.Provider. It only fails when ctx is
// cancelled.
func (p *Provider) Transcribe(ctx context.Context, req transcribe.Request, l transcribe.Listener) (*transcribe.Result, error) {
	l = transcribe.OrDiscard(l)
	for i := int64(1); i <= Steps; i++ {
		if err := sleep(ctx, p.stepDelay); err != nil {
			return nil, err
		}
		l.ModelProgress(i*TotalBytes/Steps, TotalBytes)
	}
	l.TranscribingStarted()
	if err := sleep(ctx, p.settleDelay); err != nil {
		return nil, err
	}

	duration := req.Duration
	if duration <= 0 {
		duration = p.defaultDuration
	}
	return &transcribe.Result{Segments: Segments(duration)}, nil
}

// Segments spreads [Lines] evenly over duration seconds.
func Segments(duration float64) []types.LyricSegment {
	step := duration / float64(len(Lines))
	out := make([]types.LyricSegment, len(Lines))
	for i, text := range Lines {
		out[i] = types.LyricSegment{
			Text:  text,
			Start: float64(i) * step,
			End:   float64(i+1) * step,
		}
	}
	return out
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("placeholder: %w", err)
		}
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return fmt.Errorf("placeholder: %w", ctx.Err())
	case <-t.C:
		return nil
	}
}
