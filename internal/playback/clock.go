// Package playback drives the highlight resolver from a live audio clock.
//
// A [Clock] is the boundary to whatever is actually playing the audio. The
// in-process [Transport] is a virtual clock used by the HTTP API and tests.
// A [Loop] polls a Clock while it is playing and hands a resolved
// [highlight.Frame] to a sink on every tick.
package playback

import (
	"sync"
	"time"
)

// Clock is a live audio clock. Implementations must be safe for concurrent
// use.
type Clock interface {
	// CurrentTime returns the playback position in seconds.
	CurrentTime() float64
	// Duration returns the media length in seconds, 0 if unknown.
	Duration() float64
	// Playing reports whether the clock is advancing.
	Playing() bool
	Play()
	Pause()
	// Seek moves the position to t seconds, clamped to [0, Duration].
	Seek(t float64)
}

var _ Clock = (*Transport)(nil)

// Transport is a virtual audio clock. Time advances with its time source
// while playing and stops at the duration.
type Transport struct {
	now func() time.Time

	mu       sync.Mutex
	duration float64
	position float64
	anchor   time.Time
	playing  bool
}

// TransportOption configures a [Transport].
type TransportOption func(*Transport)

// WithTimeSource replaces time.Now.
func WithTimeSource(now func() time.Time) TransportOption {
	return func(t *Transport) {
		if now != nil {
			t.now = now
		}
	}
}

// NewTransport returns a paused Transport at position 0 for media of the given
// length in seconds. A non-positive duration means unbounded.
func NewTransport(duration float64, opts ...TransportOption) *Transport {
	t := &Transport{now: time.Now, duration: max(duration, 0)}
	for _, o := range opts {
		o(t)
	}
	return t
}

// CurrentTime implements Clock.
func (t *Transport) CurrentTime() float64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.positionLocked()
}

// Duration implements Clock.
func (t *Transport) Duration() float64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.duration
}

// SetDuration changes the media length, clamping the position if needed.
func (t *Transport) SetDuration(d float64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.rebaseLocked()
	t.duration = max(d, 0)
	t.position = t.clampLocked(t.position)
}

// Playing implements Clock. A transport that reached its duration reports
// false.
func (t *Transport) Playing() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.playing && !t.endedLocked()
}

// Ended reports whether the position reached the duration.
func (t *Transport) Ended() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.endedLocked()
}

// Play implements Clock. Playing an ended transport restarts from 0.
func (t *Transport) Play() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.playing && !t.endedLocked() {
		return
	}
	if t.endedLocked() {
		t.position = 0
	}
	t.anchor = t.now()
	t.playing = true
}

// Pause implements Clock.
func (t *Transport) Pause() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.rebaseLocked()
	t.playing = false
}

// Seek implements Clock.
func (t *Transport) Seek(pos float64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.position = t.clampLocked(pos)
	t.anchor = t.now()
}

func (t *Transport) positionLocked() float64 {
	if !t.playing {
		return t.position
	}
	return t.clampLocked(t.position + t.now().Sub(t.anchor).Seconds())
}

// rebaseLocked folds elapsed play time into position.
func (t *Transport) rebaseLocked() {
	t.position = t.positionLocked()
	t.anchor = t.now()
}

func (t *Transport) endedLocked() bool {
	return t.duration > 0 && t.positionLocked() >= t.duration
}

func (t *Transport) clampLocked(pos float64) float64 {
	if pos < 0 {
		return 0
	}
	if t.duration > 0 && pos > t.duration {
		return t.duration
	}
	return pos
}
