package resilience

import (
	"context"
	"errors"
	"testing"

	"github.com/chetanrakshe2510/karaoke-maker/pkg/provider/transcribe"
	transcribemock "github.com/chetanrakshe2510/karaoke-maker/pkg/provider/transcribe/mock"
	"github.com/chetanrakshe2510/karaoke-maker/pkg/types"
)

func okResult() *transcribe.Result {
	return &transcribe.Result{Segments: []types.LyricSegment{{Text: "la", Start: 0, End: 1}}}
}

func TestTranscribeFallback_Failover(t *testing.T) {
	t.Parallel()
	primary := &transcribemock.Provider{Err: errors.New("quota exceeded")}
	secondary := &transcribemock.Provider{Result: okResult()}

	fb := NewTranscribeFallback(primary, "groq", FallbackConfig{})
	fb.AddFallback("openai", secondary)

	res, name, err := fb.TranscribeNamed(context.Background(), transcribe.Request{Audio: []byte("x")}, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if name != "openai" || len(res.Segments) != 1 {
		t.Fatalf("winner = %q, segments = %d; want openai with 1 segment", name, len(res.Segments))
	}
	if len(primary.Calls()) != 1 || len(secondary.Calls()) != 1 {
		t.Errorf("calls: primary=%d secondary=%d, want 1 each", len(primary.Calls()), len(secondary.Calls()))
	}
}

func TestTranscribeFallback_EmptyResultFailsOver(t *testing.T) {
	t.Parallel()
	primary := &transcribemock.Provider{Result: &transcribe.Result{}}
	secondary := &transcribemock.Provider{Result: okResult()}

	fb := NewTranscribeFallback(primary, "primary", FallbackConfig{})
	fb.AddFallback("secondary", secondary)

	_, name, err := fb.TranscribeNamed(context.Background(), transcribe.Request{}, nil)
	if err != nil || name != "secondary" {
		t.Fatalf("winner = %q, err = %v; want secondary", name, err)
	}
}

func TestTranscribeFallback_AllFail(t *testing.T) {
	t.Parallel()
	fb := NewTranscribeFallback(&transcribemock.Provider{Result: &transcribe.Result{}}, "only", FallbackConfig{})
	_, err := fb.Transcribe(context.Background(), transcribe.Request{}, nil)
	if !errors.Is(err, ErrAllFailed) || !errors.Is(err, transcribe.ErrEmptyResult) {
		t.Fatalf("err = %v, want ErrAllFailed wrapping ErrEmptyResult", err)
	}
}

func TestTranscribeFallback_Available(t *testing.T) {
	t.Parallel()
	down := &transcribemock.Provider{AvailableErr: transcribe.ErrUnavailable}
	up := &transcribemock.Provider{}

	fb := NewTranscribeFallback(down, "down", FallbackConfig{})
	if err := fb.Available(context.Background()); !errors.Is(err, transcribe.ErrUnavailable) {
		t.Fatalf("Available with only a down backend: err = %v, want ErrUnavailable", err)
	}

	fb.AddFallback("up", up)
	if err := fb.Available(context.Background()); err != nil {
		t.Errorf("Available with one healthy backend: %v", err)
	}
}

func TestTranscribeFallback_NoCheckerCountsAsAvailable(t *testing.T) {
	t.Parallel()
	fn := transcribe.Func(func(context.Context, transcribe.Request, transcribe.Listener) (*transcribe.Result, error) {
		return okResult(), nil
	})
	fb := NewTranscribeFallback(fn, "func", FallbackConfig{})
	if err := fb.Available(context.Background()); err != nil {
		t.Errorf("Available: %v", err)
	}
	if got := fb.Names(); len(got) != 1 || got[0] != "func" {
		t.Errorf("Names() = %v", got)
	}
}
