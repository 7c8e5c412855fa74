package config

import (
	"reflect"
	"slices"
)

// ConfigDiff describes what changed between two configs.
// Hot-reloadable changes are reported individually; everything else is
// listed in RestartRequired.
type ConfigDiff struct {
	LogLevelChanged bool
	NewLogLevel     LogLevel

	// PipelineChanged is true when run defaults (polish, lyric source,
	// language, quality, placeholder timing) changed. They apply to the
	// next run.
	PipelineChanged bool

	// AlignmentChanged is true when aligner tuning changed.
	AlignmentChanged bool

	// PlaybackChanged is true when the highlight loop interval changed.
	// It applies to loops created afterwards.
	PlaybackChanged bool

	// RestartRequired names the changed sections that only take effect
	// after a restart.
	RestartRequired []string
}

// Changed reports whether d carries any change.
func (d ConfigDiff) Changed() bool {
	return d.LogLevelChanged || d.PipelineChanged || d.AlignmentChanged || d.PlaybackChanged || len(d.RestartRequired) > 0
}

// Diff compares old and new configs and returns what changed.
func Diff(old, new *Config) ConfigDiff {
	d := ConfigDiff{}

	if old.Server.LogLevel != new.Server.LogLevel {
		d.LogLevelChanged = true
		d.NewLogLevel = new.Server.LogLevel
	}

	op, np := old.Pipeline, new.Pipeline
	if op.Polish != np.Polish || op.LyricSource != np.LyricSource || op.Language != np.Language ||
		op.Quality != np.Quality || op.PlaceholderStep != np.PlaceholderStep || op.DefaultDuration != np.DefaultDuration {
		d.PipelineChanged = true
	}
	if op.EnableLocal != np.EnableLocal {
		d.RestartRequired = append(d.RestartRequired, "pipeline.enable_local")
	}
	if op.CircuitBreaker != np.CircuitBreaker {
		d.RestartRequired = append(d.RestartRequired, "pipeline.circuit_breaker")
	}

	d.AlignmentChanged = old.Alignment != new.Alignment
	d.PlaybackChanged = old.Playback != new.Playback

	if old.Server.ListenAddr != new.Server.ListenAddr {
		d.RestartRequired = append(d.RestartRequired, "server.listen_addr")
	}
	if !slices.Equal(old.Server.CORSOrigins, new.Server.CORSOrigins) {
		d.RestartRequired = append(d.RestartRequired, "server.cors_origins")
	}
	if old.Server.MaxUploadMB != new.Server.MaxUploadMB || !reflect.DeepEqual(old.Server.TLS, new.Server.TLS) {
		d.RestartRequired = append(d.RestartRequired, "server")
	}
	if !reflect.DeepEqual(old.Providers, new.Providers) {
		d.RestartRequired = append(d.RestartRequired, "providers")
	}

	return d
}
