// Package mock provides test doubles for the transcribe package interfaces.
//
// Use Provider to script a transcription result or error and inspect the
// requests that reached it. Use Listener to capture progress notifications.
//
// Example:
//
//	p := &mock.Provider{Result: &transcribe.Result{Segments: segs}}
//	res, _ := p.Transcribe(ctx, req, nil)
//	_ = p.Calls()[0].Req
package mock

import (
	"context"
	"sync"

	"github.com/chetanrakshe2510/karaoke-maker/pkg/provider/transcribe"
)

// TranscribeCall records a single invocation of Provider.Transcribe.
type TranscribeCall struct {
	// Ctx is the context passed to Transcribe.
	Ctx context.Context
	// Req is the request passed to Transcribe.
	Req transcribe.Request
}

// Provider is a mock implementation of transcribe.Provider and
// transcribe.Checker.
type Provider struct {
	mu sync.Mutex

	// Result is returned by Transcribe when Err is nil.
	Result *transcribe.Result

	// Err, if non-nil, is returned by Transcribe.
	Err error

	// AvailableErr is returned by Available.
	AvailableErr error

	// Progress, when non-empty, is reported to the listener as
	// (loaded, Progress[len-1]) pairs before TranscribingStarted.
	Progress []int64

	// Block, if non-nil, makes Transcribe wait until it is closed or the
	// context is done.
	Block chan struct{}

	// TranscribeCalls records every call to Transcribe.
	TranscribeCalls []TranscribeCall
}

// Transcribe records the call and returns Result, Err.
func (p *Provider) Transcribe(ctx context.Context, req transcribe.Request, l transcribe.Listener) (*transcribe.Result, error) {
	p.mu.Lock()
	p.TranscribeCalls = append(p.TranscribeCalls, TranscribeCall{Ctx: ctx, Req: req})
	progress, block := p.Progress, p.Block
	p.mu.Unlock()

	l = transcribe.OrDiscard(l)
	if n := len(progress); n > 0 {
		total := progress[n-1]
		for _, loaded := range progress {
			l.ModelProgress(loaded, total)
		}
	}
	l.TranscribingStarted()

	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.Err != nil {
		return nil, p.Err
	}
	return p.Result, nil
}

// Available returns AvailableErr.
func (p *Provider) Available(_ context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.AvailableErr
}

// Calls returns a copy of the recorded calls. Thread-safe.
func (p *Provider) Calls() []TranscribeCall {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]TranscribeCall(nil), p.TranscribeCalls...)
}

// Reset clears all recorded calls. Thread-safe.
func (p *Provider) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.TranscribeCalls = nil
}

// Ensure Provider implements the transcribe interfaces at compile time.
var (
	_ transcribe.Provider = (*Provider)(nil)
	_ transcribe.Checker  = (*Provider)(nil)
)

// ProgressCall records a single ModelProgress notification.
type ProgressCall struct {
	Loaded int64
	Total  int64
}

// Listener records transcribe.Listener notifications.
type Listener struct {
	mu       sync.Mutex
	progress []ProgressCall
	started  int
}

// ModelProgress records the call.
func (l *Listener) ModelProgress(loaded, total int64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.progress = append(l.progress, ProgressCall{Loaded: loaded, Total: total})
}

// TranscribingStarted records the call.
func (l *Listener) TranscribingStarted() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.started++
}

// Progress returns a copy of the recorded progress calls.
func (l *Listener) Progress() []ProgressCall {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]ProgressCall(nil), l.progress...)
}

// Started returns how often TranscribingStarted was called.
func (l *Listener) Started() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.started
}

var _ transcribe.Listener = (*Listener)(nil)
