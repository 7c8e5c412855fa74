// Package separation defines the Provider interface for source-separation
// backends that split a song into a vocals stem and an instrumental stem.
//
// Separation is slow and usually runs on a shared GPU service, so providers
// report queue position and coarse phase messages through a [Listener] while
// Separate blocks. The pipeline treats separation as optional: when it fails
// the original audio stands in for both stems.
package separation

import (
	"context"
	"errors"
)

// ErrNoAudio is returned when Separate is called with an empty input.
var ErrNoAudio = errors.New("separation: no audio")

// Stems holds the two tracks produced by separation.
type Stems struct {
	// Vocals is the isolated singing voice. Used for transcription.
	Vocals []byte

	// Instrumental is the accompaniment. Used for karaoke playback.
	Instrumental []byte
}

// Listener receives progress notifications during Separate. Calls happen on
// the provider's goroutine and must not block.
type Listener interface {
	// QueuePosition reports the job's place in the remote queue; 0 means the
	// job is being processed.
	QueuePosition(pos int)

	// Phase reports a short human-readable status line.
	Phase(msg string)
}

// Provider is the abstraction over any separation backend.
type Provider interface {
	// Separate splits audio into stems. l may be nil. The call blocks until
	// the stems are available or ctx is cancelled.
	Separate(ctx context.Context, audio []byte, l Listener) (*Stems, error)
}

// Passthrough returns the input as both stems. It is the provider used when
// no separation service is configured.
type Passthrough struct{}

var _ Provider = Passthrough{}

// Separate implements Provider.
func (Passthrough) Separate(ctx context.Context, audio []byte, l Listener) (*Stems, error) {
	if len(audio) == 0 {
		return nil, ErrNoAudio
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	OrDiscard(l).QueuePosition(0)
	return &Stems{Vocals: audio, Instrumental: audio}, nil
}

// Discard is a Listener that ignores all notifications.
var Discard Listener = discard{}

type discard struct{}

func (discard) QueuePosition(int) {}
func (discard) Phase(string)      {}

// OrDiscard returns l, or [Discard] when l is nil.
func OrDiscard(l Listener) Listener {
	if l == nil {
		return Discard
	}
	return l
}
