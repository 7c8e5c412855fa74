package config_test

import (
	"slices"
	"testing"
	"time"

	"github.com/chetanrakshe2510/karaoke-maker/internal/config"
	"github.com/chetanrakshe2510/karaoke-maker/pkg/types"
)

func baseConfig() *config.Config {
	return &config.Config{
		Server: config.ServerConfig{ListenAddr: ":8080", LogLevel: config.LogInfo},
		Providers: config.ProvidersConfig{
			Transcription: []config.ProviderEntry{{Name: "groq", Model: "whisper-large-v3"}},
		},
		Pipeline: config.PipelineConfig{
			LyricSource: types.SourceAuto,
			Quality:     types.QualityAccurate,
		},
		Alignment: config.AlignmentConfig{Lookahead: 15},
		Playback:  config.PlaybackConfig{PollInterval: 16 * time.Millisecond},
	}
}

func TestDiff_NoChanges(t *testing.T) {
	t.Parallel()
	d := config.Diff(baseConfig(), baseConfig())
	if d.Changed() {
		t.Errorf("expected no changes, got %+v", d)
	}
}

func TestDiff_HotReloadable(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name   string
		mutate func(*config.Config)
		check  func(config.ConfigDiff) bool
	}{
		{
			name:   "log level",
			mutate: func(c *config.Config) { c.Server.LogLevel = config.LogDebug },
			check:  func(d config.ConfigDiff) bool { return d.LogLevelChanged && d.NewLogLevel == config.LogDebug },
		},
		{
			name:   "polish default",
			mutate: func(c *config.Config) { c.Pipeline.Polish = true },
			check:  func(d config.ConfigDiff) bool { return d.PipelineChanged },
		},
		{
			name:   "placeholder step",
			mutate: func(c *config.Config) { c.Pipeline.PlaceholderStep = time.Second },
			check:  func(d config.ConfigDiff) bool { return d.PipelineChanged },
		},
		{
			name:   "matcher",
			mutate: func(c *config.Config) { c.Alignment.Matcher = config.MatcherPhonetic },
			check:  func(d config.ConfigDiff) bool { return d.AlignmentChanged },
		},
		{
			name:   "poll interval",
			mutate: func(c *config.Config) { c.Playback.PollInterval = 50 * time.Millisecond },
			check:  func(d config.ConfigDiff) bool { return d.PlaybackChanged },
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			updated := baseConfig()
			tc.mutate(updated)
			d := config.Diff(baseConfig(), updated)
			if !tc.check(d) {
				t.Errorf("change not reported: %+v", d)
			}
			if len(d.RestartRequired) != 0 {
				t.Errorf("hot-reloadable change requires restart: %v", d.RestartRequired)
			}
		})
	}
}

func TestDiff_RestartRequired(t *testing.T) {
	t.Parallel()
	updated := baseConfig()
	updated.Server.ListenAddr = ":9090"
	updated.Providers.Transcription[0].Model = "distil-whisper"
	updated.Pipeline.CircuitBreaker.MaxFailures = 10

	d := config.Diff(baseConfig(), updated)
	for _, want := range []string{"server.listen_addr", "providers", "pipeline.circuit_breaker"} {
		if !slices.Contains(d.RestartRequired, want) {
			t.Errorf("RestartRequired %v missing %q", d.RestartRequired, want)
		}
	}
	if d.PipelineChanged {
		t.Error("breaker tuning should not count as a run default change")
	}
}
