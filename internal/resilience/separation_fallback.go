package resilience

import (
	"context"

	"github.com/chetanrakshe2510/karaoke-maker/pkg/provider/separation"
)

// SeparationFallback implements [separation.Provider] with failover across
// several source separation services.
type SeparationFallback struct {
	group *FallbackGroup[separation.Provider]
}

var _ separation.Provider = (*SeparationFallback)(nil)

// NewSeparationFallback creates a [SeparationFallback] with primary as the
// preferred service.
func NewSeparationFallback(primary separation.Provider, primaryName string, cfg FallbackConfig) *SeparationFallback {
	return &SeparationFallback{
		group: NewFallbackGroup(primary, primaryName, cfg),
	}
}

// AddFallback registers an additional separation service.
func (f *SeparationFallback) AddFallback(name string, provider separation.Provider) {
	f.group.AddFallback(name, provider)
}

// Separate implements separation.Provider.
func (f *SeparationFallback) Separate(ctx context.Context, audio []byte, l separation.Listener) (*separation.Stems, error) {
	stems, _, err := ExecuteWithResult(ctx, f.group, func(ctx context.Context, p separation.Provider) (*separation.Stems, error) {
		return p.Separate(ctx, audio, l)
	})
	return stems, err
}
