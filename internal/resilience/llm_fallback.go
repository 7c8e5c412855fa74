package resilience

import (
	"context"
	"strings"

	"github.com/chetanrakshe2510/karaoke-maker/pkg/provider/llm"
)

// LLMFallback implements [llm.Provider] over an ordered list of LLM backends,
// each behind its own circuit breaker. A blank reply counts as a failure so
// the next backend is asked.
type LLMFallback struct {
	group *FallbackGroup[llm.Provider]
}

var _ llm.Provider = (*LLMFallback)(nil)

// NewLLMFallback creates an [LLMFallback] that asks primary first.
func NewLLMFallback(primary llm.Provider, primaryName string, cfg FallbackConfig) *LLMFallback {
	return &LLMFallback{group: NewFallbackGroup(primary, primaryName, cfg)}
}

// AddFallback appends a backend to the try order.
func (f *LLMFallback) AddFallback(name string, provider llm.Provider) {
	f.group.AddFallback(name, provider)
}

// States returns each backend's breaker state keyed by name.
func (f *LLMFallback) States() map[string]State { return f.group.States() }

// Complete implements llm.Provider.
func (f *LLMFallback) Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	resp, _, err := f.CompleteNamed(ctx, req)
	return resp, err
}

// CompleteNamed is like Complete and also returns the name of the backend
// that answered.
func (f *LLMFallback) CompleteNamed(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, string, error) {
	return ExecuteWithResult(ctx, f.group, func(ctx context.Context, p llm.Provider) (*llm.CompletionResponse, error) {
		resp, err := p.Complete(ctx, req)
		switch {
		case err != nil:
			return nil, err
		case resp == nil || strings.TrimSpace(resp.Content) == "":
			return nil, llm.ErrEmptyResponse
		}
		return resp, nil
	})
}
