package pipeline

import (
	"context"
	"sync"

	"github.com/chetanrakshe2510/karaoke-maker/pkg/types"
)

// DefaultSubscriberBuffer is the channel capacity used by Subscribe when a
// non-positive size is requested.
const DefaultSubscriberBuffer = 32

// Update is delivered to subscribers after every accepted event.
type Update struct {
	// Event is the event that was applied.
	Event Event

	// State is a snapshot of the state after the event.
	State State
}

// Session owns the state of one karaoke session and serialises every change
// to it. A session runs at most one pipeline run at a time: Begin supersedes
// the previous run.
//
// All methods are safe for concurrent use.
type Session struct {
	id string

	mu      sync.Mutex
	state   State
	gen     uint64
	cancel  context.CancelFunc
	hooks   []func()
	subs    map[int]chan Update
	nextSub int
	closed  bool
}

// NewSession returns an idle session.
func NewSession(id string) *Session {
	return &Session{
		id:    id,
		state: State{Stage: types.StageIdle},
		subs:  make(map[int]chan Update),
	}
}

// ID returns the session identifier.
func (s *Session) ID() string { return s.id }

// Generation returns the generation of the current run, or of the last reset.
func (s *Session) Generation() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.gen
}

// Current reports whether gen is the session's current generation.
func (s *Session) Current(gen uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return gen == s.gen && !s.closed
}

// Begin starts a new run. It cancels the context of the previous run, bumps
// the generation and moves the session to queued. The returned context is
// derived from parent and is cancelled when the run is superseded or reset.
func (s *Session) Begin(parent context.Context) (context.Context, uint64) {
	ctx, cancel := context.WithCancel(parent)

	s.mu.Lock()
	if s.cancel != nil {
		s.cancel()
	}
	s.gen++
	gen := s.gen
	s.cancel = cancel
	if s.closed {
		s.mu.Unlock()
		cancel()
		return ctx, gen
	}
	ev := RunStarted{Generation: gen}
	s.state = Reduce(s.state, ev)
	s.publishLocked(ev)
	s.mu.Unlock()

	return ctx, gen
}

// Dispatch applies ev if gen is the current generation and reports whether
// the event was accepted. Events of superseded runs are dropped.
func (s *Session) Dispatch(gen uint64, ev Event) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if gen != s.gen || s.closed {
		return false
	}
	s.state = Reduce(s.state, ev)
	s.publishLocked(ev)
	return true
}

// OnReset registers fn to run synchronously on every Reset, after the state
// became idle. Typical hooks stop a playback loop.
func (s *Session) OnReset(fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.hooks = append(s.hooks, fn)
}

// Reset cancels any in-flight run, returns the session to idle and runs the
// reset hooks. When Reset returns the idle state is already observable.
func (s *Session) Reset() {
	s.mu.Lock()
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
	s.gen++
	ev := Reset{}
	s.state = Reduce(s.state, ev)
	s.state.Generation = s.gen
	s.publishLocked(ev)
	hooks := append([]func(){}, s.hooks...)
	s.mu.Unlock()

	for _, fn := range hooks {
		fn()
	}
}

// Snapshot returns a copy of the current state.
func (s *Session) Snapshot() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.Clone()
}

// Subscribe returns a channel that receives an [Update] after every accepted
// event, and a function that cancels the subscription. Delivery never blocks
// the session: updates are dropped for a subscriber whose buffer is full.
func (s *Session) Subscribe(buffer int) (<-chan Update, func()) {
	if buffer <= 0 {
		buffer = DefaultSubscriberBuffer
	}
	ch := make(chan Update, buffer)

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		close(ch)
		return ch, func() {}
	}
	id := s.nextSub
	s.nextSub++
	s.subs[id] = ch
	s.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			if c, ok := s.subs[id]; ok {
				delete(s.subs, id)
				close(c)
			}
		})
	}
}

// Close resets the session and closes all subscriber channels. Later runs
// are rejected.
func (s *Session) Close() {
	s.Reset()

	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	for id, ch := range s.subs {
		delete(s.subs, id)
		close(ch)
	}
}

func (s *Session) publishLocked(ev Event) {
	if len(s.subs) == 0 {
		return
	}
	u := Update{Event: ev, State: s.state.Clone()}
	for _, ch := range s.subs {
		select {
		case ch <- u:
		default:
		}
	}
}
