// Package mock provides test doubles for the separation package interfaces.
package mock

import (
	"context"
	"sync"

	"github.com/chetanrakshe2510/karaoke-maker/pkg/provider/separation"
)

// SeparateCall records a single invocation of Provider.Separate.
type SeparateCall struct {
	// Ctx is the context passed to Separate.
	Ctx context.Context
	// Audio is the input passed to Separate.
	Audio []byte
}

// Provider is a mock implementation of separation.Provider.
type Provider struct {
	mu sync.Mutex

	// Stems is returned by Separate when Err is nil. When nil, the input is
	// returned as both stems.
	Stems *separation.Stems

	// Err, if non-nil, is returned by Separate.
	Err error

	// Queue is reported to the listener, in order, before returning.
	Queue []int

	// SeparateCalls records every call to Separate.
	SeparateCalls []SeparateCall
}

// Separate records the call and returns Stems, Err.
func (p *Provider) Separate(ctx context.Context, audio []byte, l separation.Listener) (*separation.Stems, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.SeparateCalls = append(p.SeparateCalls, SeparateCall{Ctx: ctx, Audio: audio})

	l = separation.OrDiscard(l)
	for _, pos := range p.Queue {
		l.QueuePosition(pos)
	}
	if p.Err != nil {
		return nil, p.Err
	}
	if p.Stems != nil {
		return p.Stems, nil
	}
	return &separation.Stems{Vocals: audio, Instrumental: audio}, nil
}

// Calls returns a copy of the recorded calls. Thread-safe.
func (p *Provider) Calls() []SeparateCall {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]SeparateCall(nil), p.SeparateCalls...)
}

var _ separation.Provider = (*Provider)(nil)
