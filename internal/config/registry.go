package config

import (
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/chetanrakshe2510/karaoke-maker/pkg/provider/llm"
	"github.com/chetanrakshe2510/karaoke-maker/pkg/provider/separation"
	"github.com/chetanrakshe2510/karaoke-maker/pkg/provider/transcribe"
)

// ErrProviderNotRegistered is returned by the Create methods when no factory
// is registered under the entry's name.
var ErrProviderNotRegistered = errors.New("config: provider not registered")

// Factory builds a provider from its config entry.
type Factory[T any] func(ProviderEntry) (T, error)

type factories[T any] struct {
	kind string
	m    map[string]Factory[T]
}

func newFactories[T any](kind string) factories[T] {
	return factories[T]{kind: kind, m: make(map[string]Factory[T])}
}

func (f factories[T]) create(entry ProviderEntry) (T, error) {
	var zero T
	factory, ok := f.m[entry.Name]
	if !ok {
		return zero, fmt.Errorf("%w: %s/%q", ErrProviderNotRegistered, f.kind, entry.Name)
	}
	p, err := factory(entry)
	if err != nil {
		return zero, fmt.Errorf("config: create %s/%q: %w", f.kind, entry.Name, err)
	}
	return p, nil
}

func (f factories[T]) names() []string {
	out := make([]string, 0, len(f.m))
	for name := range f.m {
		out = append(out, name)
	}
	slices.Sort(out)
	return out
}

// Registry maps provider names to factories, one namespace per provider
// kind. Registering a name twice replaces the earlier factory. It is safe for
// concurrent use.
type Registry struct {
	mu         sync.RWMutex
	llm        factories[llm.Provider]
	transcribe factories[transcribe.Provider]
	separation factories[separation.Provider]
}

// NewRegistry returns an empty [Registry].
func NewRegistry() *Registry {
	return &Registry{
		llm:        newFactories[llm.Provider]("llm"),
		transcribe: newFactories[transcribe.Provider]("transcribe"),
		separation: newFactories[separation.Provider]("separation"),
	}
}

// RegisterLLM registers an LLM factory, used for polish and recall entries.
func (r *Registry) RegisterLLM(name string, factory Factory[llm.Provider]) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.llm.m[name] = factory
}

// RegisterTranscribe registers a transcription factory, used for both remote
// and local entries.
func (r *Registry) RegisterTranscribe(name string, factory Factory[transcribe.Provider]) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.transcribe.m[name] = factory
}

// RegisterSeparation registers a source separation factory.
func (r *Registry) RegisterSeparation(name string, factory Factory[separation.Provider]) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.separation.m[name] = factory
}

// CreateLLM builds the LLM provider named by entry.
func (r *Registry) CreateLLM(entry ProviderEntry) (llm.Provider, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.llm.create(entry)
}

// CreateTranscribe builds the transcription provider named by entry.
func (r *Registry) CreateTranscribe(entry ProviderEntry) (transcribe.Provider, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.transcribe.create(entry)
}

// CreateSeparation builds the separation provider named by entry.
func (r *Registry) CreateSeparation(entry ProviderEntry) (separation.Provider, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.separation.create(entry)
}

// Registered returns the sorted registered names per kind ("llm",
// "transcribe", "separation").
func (r *Registry) Registered() map[string][]string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return map[string][]string{
		r.llm.kind:        r.llm.names(),
		r.transcribe.kind: r.transcribe.names(),
		r.separation.kind: r.separation.names(),
	}
}
