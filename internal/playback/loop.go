package playback

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/chetanrakshe2510/karaoke-maker/internal/highlight"
	"github.com/chetanrakshe2510/karaoke-maker/pkg/types"
)

// DefaultInterval is the default poll period, roughly one display frame.
const DefaultInterval = 16 * time.Millisecond

// Sink receives resolved frames. It is called from the loop goroutine and
// from Seek, never concurrently.
type Sink func(highlight.Frame)

// SegmentSource returns the segments to resolve against. It is called on
// every tick and must be cheap.
type SegmentSource func() []types.LyricSegment

// LoopOption configures a [Loop].
type LoopOption func(*Loop)

// WithInterval sets the poll period.
func WithInterval(d time.Duration) LoopOption {
	return func(l *Loop) {
		if d > 0 {
			l.interval = d
		}
	}
}

// Loop polls a Clock while it plays. It suspends when the clock is paused or
// ended and resumes on Play.
type Loop struct {
	clock    Clock
	segments SegmentSource
	sink     Sink
	interval time.Duration

	emitMu sync.Mutex
	wake   chan struct{}

	mu      sync.Mutex
	started bool
	cancel  context.CancelFunc
	done    chan struct{}
}

// NewLoop creates a stopped Loop. Call Start to begin polling.
func NewLoop(clock Clock, segments SegmentSource, sink Sink, opts ...LoopOption) *Loop {
	l := &Loop{
		clock:    clock,
		segments: segments,
		sink:     sink,
		interval: DefaultInterval,
		wake:     make(chan struct{}, 1),
	}
	for _, o := range opts {
		o(l)
	}
	return l
}

// Clock returns the clock the loop reads.
func (l *Loop) Clock() Clock { return l.clock }

// Start launches the poll goroutine. It is a no-op if the loop is running.
func (l *Loop) Start(ctx context.Context) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.started {
		return
	}
	ctx, l.cancel = context.WithCancel(ctx)
	l.done = make(chan struct{})
	l.started = true
	go l.run(ctx, l.done)
}

// Stop halts the loop and waits for the goroutine to exit. The clock is
// paused. Stop is idempotent and a stopped loop may be started again.
func (l *Loop) Stop() {
	l.mu.Lock()
	if !l.started {
		l.mu.Unlock()
		l.clock.Pause()
		return
	}
	cancel, done := l.cancel, l.done
	l.started = false
	l.mu.Unlock()

	cancel()
	<-done
	l.clock.Pause()
}

// Play starts the clock and resumes polling.
func (l *Loop) Play() {
	l.clock.Play()
	l.notify()
}

// Pause stops the clock and emits the paused frame.
func (l *Loop) Pause() {
	l.clock.Pause()
	l.emit()
}

// Seek moves the clock and emits the frame for the new position before
// returning.
func (l *Loop) Seek(t float64) {
	l.clock.Seek(t)
	l.emit()
	l.notify()
}

// Frame resolves the frame for the current clock position without
// delivering it.
func (l *Loop) Frame() highlight.Frame {
	return highlight.Resolve(l.segments(), l.clock.CurrentTime())
}

func (l *Loop) notify() {
	select {
	case l.wake <- struct{}{}:
	default:
	}
}

func (l *Loop) emit() {
	l.emitMu.Lock()
	defer l.emitMu.Unlock()
	if l.sink != nil {
		l.sink(l.Frame())
	}
}

func (l *Loop) run(ctx context.Context, done chan struct{}) {
	defer close(done)
	for {
		if !l.clock.Playing() {
			select {
			case <-ctx.Done():
				return
			case <-l.wake:
				continue
			}
		}

		slog.Debug("playback: loop resumed", "time", l.clock.CurrentTime())
		if !l.poll(ctx) {
			return
		}
	}
}

// poll ticks until the clock stops playing. It returns false when ctx is
// done.
func (l *Loop) poll(ctx context.Context) bool {
	ticker := time.NewTicker(l.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return false
		case <-ticker.C:
		}
		l.emit()
		if !l.clock.Playing() {
			slog.Debug("playback: loop suspended", "time", l.clock.CurrentTime())
			return true
		}
	}
}
