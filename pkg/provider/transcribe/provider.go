// Package transcribe defines the Provider interface for speech-to-text
// backends that turn a vocals track into timed lyric segments.
//
// A transcription provider wraps a batch recognition service (e.g. Groq's
// hosted Whisper, a local whisper.cpp server, or the in-process whisper.cpp
// bindings) and exposes a uniform, blocking interface. Progress that the UI
// cares about (model download bytes, the moment recognition actually starts)
// is reported through a [Listener] rather than a return value, so a provider
// can surface it while Transcribe is still running.
//
// Implementations must be safe for concurrent use.
package transcribe

import (
	"context"
	"errors"

	"github.com/chetanrakshe2510/karaoke-maker/pkg/types"
)

var (
	// ErrUnavailable is returned (wrapped) when a provider cannot be used in
	// the current environment, e.g. a server is unreachable or a model file is
	// missing and cannot be fetched.
	ErrUnavailable = errors.New("transcribe: provider unavailable")

	// ErrEmptyResult is returned when a provider finished without producing a
	// single non-blank segment.
	ErrEmptyResult = errors.New("transcribe: empty transcription")
)

// Request carries the audio and recognition hints for one transcription.
type Request struct {
	// Audio is the encoded audio file (WAV, MP3, ...). For best results this is
	// the isolated vocals stem.
	Audio []byte

	// Filename is forwarded to upload-based providers so they can infer the
	// container format. Defaults to "audio.wav" when empty.
	Filename string

	// Language is an optional ISO-639-1 hint (e.g. "en"). Empty lets the
	// provider auto-detect.
	Language string

	// Quality selects between a faster and a more accurate model where the
	// provider offers both.
	Quality types.Quality

	// Duration is the playback length in seconds when known, 0 otherwise.
	Duration float64
}

// Name returns r.Filename or the default upload name.
func (r Request) Name() string {
	if r.Filename == "" {
		return "audio.wav"
	}
	return r.Filename
}

// Listener receives progress notifications during Transcribe. Calls happen on
// the provider's goroutine and must not block.
type Listener interface {
	// ModelProgress reports model download progress in bytes. Providers that
	// need no download report a single (total, total) call.
	ModelProgress(loaded, total int64)

	// TranscribingStarted fires once when recognition begins.
	TranscribingStarted()
}

// Result is the outcome of a successful transcription.
type Result struct {
	// Text is the full transcript as returned by the backend.
	Text string

	// Language is the detected or requested language, if known.
	Language string

	// Segments are the timed lines in chronological order. Word timing is
	// present when the backend supports it.
	Segments []types.LyricSegment
}

// Provider is the abstraction over any transcription backend.
type Provider interface {
	// Transcribe runs recognition on req.Audio. l may be nil. The call blocks
	// until the result is available or ctx is cancelled.
	Transcribe(ctx context.Context, req Request, l Listener) (*Result, error)
}

// Checker is optionally implemented by providers with a capability check
// that is cheaper than a full Transcribe call.
type Checker interface {
	// Available returns nil when the provider is ready for use, or an error
	// wrapping [ErrUnavailable] describing what is missing.
	Available(ctx context.Context) error
}

// Func adapts an ordinary function to the [Provider] interface.
type Func func(ctx context.Context, req Request, l Listener) (*Result, error)

// Transcribe calls f.
func (f Func) Transcribe(ctx context.Context, req Request, l Listener) (*Result, error) {
	return f(ctx, req, l)
}

var _ Provider = Func(nil)

// Discard is a Listener that ignores all notifications.
var Discard Listener = discard{}

type discard struct{}

func (discard) ModelProgress(int64, int64) {}
func (discard) TranscribingStarted()       {}

// OrDiscard returns l, or [Discard] when l is nil.
func OrDiscard(l Listener) Listener {
	if l == nil {
		return Discard
	}
	return l
}
