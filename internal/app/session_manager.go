package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/chetanrakshe2510/karaoke-maker/internal/config"
	"github.com/chetanrakshe2510/karaoke-maker/internal/highlight"
	"github.com/chetanrakshe2510/karaoke-maker/internal/observe"
	"github.com/chetanrakshe2510/karaoke-maker/internal/pipeline"
	"github.com/chetanrakshe2510/karaoke-maker/internal/playback"
	"github.com/chetanrakshe2510/karaoke-maker/pkg/audio"
	"github.com/chetanrakshe2510/karaoke-maker/pkg/types"
)

var (
	// ErrSessionNotFound is returned for an unknown session ID.
	ErrSessionNotFound = errors.New("app: session not found")

	// ErrClosed is returned once the manager has been closed.
	ErrClosed = errors.New("app: session manager closed")
)

// SessionInfo holds metadata about a session.
type SessionInfo struct {
	// ID is the unique identifier for this session.
	ID string `json:"id"`

	// CreatedAt is when the session was created.
	CreatedAt time.Time `json:"createdAt"`
}

// RunRequest is a run as requested by a client. Zero fields take the
// configured pipeline defaults.
type RunRequest struct {
	pipeline.Input

	// Polish overrides the configured polish default when non-nil.
	Polish *bool
}

// Session is one karaoke session: pipeline state plus a playback clock and
// highlight loop over the session's current segments.
type Session struct {
	info      SessionInfo
	pipe      *pipeline.Session
	transport *playback.Transport
	loop      *playback.Loop

	// follow holds syncMu while it applies an update, and clear holds it while
	// it wipes. An update is applied only if its generation is still current.
	syncMu   sync.Mutex
	segments atomic.Pointer[[]types.LyricSegment]

	mu        sync.Mutex
	frameSubs map[int]chan highlight.Frame
	nextSub   int
	closed    bool
}

// Info returns the session metadata.
func (s *Session) Info() SessionInfo { return s.info }

// Pipeline returns the underlying pipeline session.
func (s *Session) Pipeline() *pipeline.Session { return s.pipe }

// Snapshot returns the current pipeline state.
func (s *Session) Snapshot() pipeline.State { return s.pipe.Snapshot() }

// Segments returns the segments the highlight loop resolves against.
func (s *Session) Segments() []types.LyricSegment {
	if p := s.segments.Load(); p != nil {
		return *p
	}
	return nil
}

// FrameAt resolves the highlight frame at t seconds.
func (s *Session) FrameAt(t float64) highlight.Frame {
	return highlight.Resolve(s.Segments(), t)
}

// Frame resolves the frame at the current playback position.
func (s *Session) Frame() highlight.Frame { return s.loop.Frame() }

// Play starts playback.
func (s *Session) Play() { s.loop.Play() }

// Pause pauses playback.
func (s *Session) Pause() { s.loop.Pause() }

// Seek moves playback to t seconds, clamped to the song.
func (s *Session) Seek(t float64) { s.loop.Seek(t) }

// Playing reports whether playback is running.
func (s *Session) Playing() bool { return s.transport.Playing() }

// Position returns the playback position and duration in seconds.
func (s *Session) Position() (current, duration float64) {
	return s.transport.CurrentTime(), s.transport.Duration()
}

// SubscribeFrames delivers every frame the highlight loop emits. Slow
// subscribers miss frames rather than stalling the loop. The returned
// function unsubscribes.
func (s *Session) SubscribeFrames(buffer int) (<-chan highlight.Frame, func()) {
	if buffer <= 0 {
		buffer = pipeline.DefaultSubscriberBuffer
	}
	ch := make(chan highlight.Frame, buffer)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		close(ch)
		return ch, func() {}
	}
	id := s.nextSub
	s.nextSub++
	s.frameSubs[id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			if c, ok := s.frameSubs[id]; ok {
				delete(s.frameSubs, id)
				close(c)
			}
		})
	}
}

func (s *Session) emit(f highlight.Frame) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, ch := range s.frameSubs {
		select {
		case ch <- f:
		default:
		}
	}
}

// follow keeps the loop's segments and the clock's duration in step with the
// pipeline state until the pipeline session closes.
func (s *Session) follow(updates <-chan pipeline.Update) {
	for u := range updates {
		s.apply(u)
	}
}

func (s *Session) apply(u pipeline.Update) {
	s.syncMu.Lock()
	defer s.syncMu.Unlock()
	// Queued updates of a reset run must not resurrect its segments.
	if u.State.Generation < s.pipe.Generation() {
		return
	}
	segs := u.State.Segments
	s.segments.Store(&segs)

	switch u.Event.(type) {
	case pipeline.RunStarted, pipeline.Reset:
		s.loop.Pause()
		s.loop.Seek(0)
	case pipeline.SegmentsReady:
		if s.transport.Duration() <= 0 && len(segs) > 0 {
			s.transport.SetDuration(segs[len(segs)-1].End)
		}
	}
}

// clear stops playback and drops the segments. It runs inside
// pipeline.Session.Reset, so both are gone when Reset returns.
func (s *Session) clear() {
	s.syncMu.Lock()
	defer s.syncMu.Unlock()
	s.segments.Store(nil)
	s.loop.Pause()
	s.transport.SetDuration(0)
	s.loop.Seek(0)
}

func (s *Session) close() {
	s.loop.Stop()
	s.pipe.Close()

	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	for id, ch := range s.frameSubs {
		delete(s.frameSubs, id)
		close(ch)
	}
}

// SessionManager owns the live sessions. Sessions are independent: each has
// its own pipeline state, run generation and playback clock.
// All exported methods are safe for concurrent use.
type SessionManager struct {
	ctx context.Context

	runner   func() *pipeline.Runner
	defaults atomic.Pointer[config.PipelineConfig]
	interval atomic.Int64
	metrics  *observe.Metrics
	newID    func() string
	now      func() time.Time

	mu       sync.Mutex
	sessions map[string]*Session
	closed   bool
}

// SessionManagerConfig holds all dependencies for a [SessionManager].
type SessionManagerConfig struct {
	// Runner returns the runner used for new runs. It is called per run so
	// a reloaded runner takes effect without restarting sessions.
	Runner func() *pipeline.Runner

	// Pipeline holds the run defaults.
	Pipeline config.PipelineConfig

	// PollInterval is the highlight loop period. Zero uses the loop default.
	PollInterval time.Duration

	// Metrics receives the active session gauge. Nil disables it.
	Metrics *observe.Metrics

	// NewID generates session IDs. Defaults to random UUIDs.
	NewID func() string

	// Now replaces time.Now.
	Now func() time.Time
}

// NewSessionManager creates a SessionManager. Highlight loops run until ctx
// is done or the manager is closed.
func NewSessionManager(ctx context.Context, cfg SessionManagerConfig) *SessionManager {
	sm := &SessionManager{
		ctx:      ctx,
		runner:   cfg.Runner,
		metrics:  cfg.Metrics,
		newID:    cfg.NewID,
		now:      cfg.Now,
		sessions: make(map[string]*Session),
	}
	if sm.newID == nil {
		sm.newID = uuid.NewString
	}
	if sm.now == nil {
		sm.now = time.Now
	}
	defaults := cfg.Pipeline
	sm.defaults.Store(&defaults)
	sm.interval.Store(int64(cfg.PollInterval))
	return sm
}

// SetDefaults replaces the run defaults applied to later runs.
func (sm *SessionManager) SetDefaults(p config.PipelineConfig) {
	sm.defaults.Store(&p)
}

// SetPollInterval changes the highlight period for sessions created later.
func (sm *SessionManager) SetPollInterval(d time.Duration) {
	sm.interval.Store(int64(d))
}

// Create starts a new idle session.
func (sm *SessionManager) Create() (*Session, error) {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	if sm.closed {
		return nil, ErrClosed
	}

	id := sm.newID()
	if _, dup := sm.sessions[id]; dup {
		return nil, fmt.Errorf("app: duplicate session id %q", id)
	}

	s := &Session{
		info:      SessionInfo{ID: id, CreatedAt: sm.now().UTC()},
		pipe:      pipeline.NewSession(id),
		transport: playback.NewTransport(0),
		frameSubs: make(map[int]chan highlight.Frame),
	}
	s.loop = playback.NewLoop(s.transport, s.Segments, s.emit,
		playback.WithInterval(time.Duration(sm.interval.Load())))
	s.pipe.OnReset(s.clear)
	updates, _ := s.pipe.Subscribe(0)
	go s.follow(updates)
	s.loop.Start(sm.ctx)

	sm.sessions[id] = s
	if sm.metrics != nil {
		sm.metrics.ActiveSessions.Add(context.Background(), 1)
	}
	slog.Info("session created", "session_id", id)
	return s, nil
}

// Get returns the session with id.
func (sm *SessionManager) Get(id string) (*Session, error) {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	s, ok := sm.sessions[id]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrSessionNotFound, id)
	}
	return s, nil
}

// List returns the metadata of every session, oldest first.
func (sm *SessionManager) List() []SessionInfo {
	sm.mu.Lock()
	out := make([]SessionInfo, 0, len(sm.sessions))
	for _, s := range sm.sessions {
		out = append(out, s.info)
	}
	sm.mu.Unlock()

	slices.SortFunc(out, func(a, b SessionInfo) int {
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		return strings.Compare(a.ID, b.ID)
	})
	return out
}

// Delete cancels any in-flight run of the session and removes it.
func (sm *SessionManager) Delete(id string) error {
	sm.mu.Lock()
	s, ok := sm.sessions[id]
	delete(sm.sessions, id)
	sm.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %q", ErrSessionNotFound, id)
	}
	s.close()
	if sm.metrics != nil {
		sm.metrics.ActiveSessions.Add(context.Background(), -1)
	}
	slog.Info("session deleted", "session_id", id)
	return nil
}

// StartRun applies the run defaults to req and starts it asynchronously on
// the session, superseding any run in flight. It returns the run's
// generation.
func (sm *SessionManager) StartRun(id string, req RunRequest) (uint64, error) {
	s, err := sm.Get(id)
	if err != nil {
		return 0, err
	}
	in := sm.applyDefaults(req)

	if in.Duration <= 0 {
		if info, err := audio.Probe(in.Audio); err == nil {
			in.Duration = info.Seconds
		}
	}
	s.transport.SetDuration(in.Duration)

	gen := sm.runner().Start(sm.ctx, s.pipe, in)
	observe.SessionLogger(sm.ctx, id, gen).Info("run started",
		"bytes", len(in.Audio),
		"source", in.Source,
		"quality", in.Quality,
		"polish", in.Polish,
	)
	return gen, nil
}

// Reset cancels the session's run and returns it to idle. Playback is paused
// at zero and the segments are cleared before Reset returns.
func (sm *SessionManager) Reset(id string) error {
	s, err := sm.Get(id)
	if err != nil {
		return err
	}
	s.pipe.Reset()
	return nil
}

// Close deletes every session. Later calls to Create fail with [ErrClosed].
func (sm *SessionManager) Close() {
	sm.mu.Lock()
	sm.closed = true
	ids := make([]string, 0, len(sm.sessions))
	for id := range sm.sessions {
		ids = append(ids, id)
	}
	sm.mu.Unlock()

	for _, id := range ids {
		_ = sm.Delete(id)
	}
}

func (sm *SessionManager) applyDefaults(req RunRequest) pipeline.Input {
	d := sm.defaults.Load()
	in := req.Input
	if in.Language == "" {
		in.Language = d.Language
	}
	if in.Quality == "" {
		in.Quality = d.Quality
	}
	if in.Quality == "" {
		in.Quality = types.QualityAccurate
	}
	if in.Source == "" {
		in.Source = d.LyricSource
	}
	if in.Source == "" {
		in.Source = types.SourceAuto
	}
	in.Polish = d.Polish
	if req.Polish != nil {
		in.Polish = *req.Polish
	}
	return in
}
