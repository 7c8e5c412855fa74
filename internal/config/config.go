// Package config provides the configuration schema, loader, and provider registry
// for the karaoke lyric engine.
package config

import (
	"time"

	"github.com/chetanrakshe2510/karaoke-maker/pkg/types"
)

// LogLevel controls log verbosity for the server.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// Matcher selects how the aligner decides that two words are the same.
type Matcher string

const (
	// MatcherSubstring matches equal words, or long words where one contains
	// the other.
	MatcherSubstring Matcher = "substring"

	// MatcherPhonetic additionally accepts words that sound alike.
	MatcherPhonetic Matcher = "phonetic"
)

// IsValid reports whether m is a recognised matcher.
func (m Matcher) IsValid() bool {
	return m == MatcherSubstring || m == MatcherPhonetic
}

// Config is the root configuration structure.
// It is typically loaded from a YAML file using [Load] or [LoadFromReader].
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Providers ProvidersConfig `yaml:"providers"`
	Pipeline  PipelineConfig  `yaml:"pipeline"`
	Alignment AlignmentConfig `yaml:"alignment"`
	Playback  PlaybackConfig  `yaml:"playback"`
}

// ServerConfig holds network and logging settings.
type ServerConfig struct {
	// ListenAddr is the TCP address the server listens on (e.g., ":8080").
	ListenAddr string `yaml:"listen_addr"`

	// LogLevel controls verbosity.
	LogLevel LogLevel `yaml:"log_level"`

	// CORSOrigins lists the browser origins allowed to call the API. Empty
	// allows any origin.
	CORSOrigins []string `yaml:"cors_origins"`

	// MaxUploadMB caps the size of an uploaded song. Zero means 100 MB.
	MaxUploadMB int `yaml:"max_upload_mb"`

	// TLS configures TLS for the server. When nil, the server runs plain HTTP.
	TLS *TLSConfig `yaml:"tls"`
}

// TLSConfig holds TLS certificate paths for enabling HTTPS.
type TLSConfig struct {
	// CertFile is the path to the PEM-encoded TLS certificate.
	CertFile string `yaml:"cert_file"`

	// KeyFile is the path to the PEM-encoded TLS private key.
	KeyFile string `yaml:"key_file"`
}

// ProvidersConfig declares which provider implementation serves each
// collaborator. Each entry selects a named provider registered in the
// [Registry].
type ProvidersConfig struct {
	// Separation splits songs into vocals and instrumental. Empty passes the
	// original audio through.
	Separation ProviderEntry `yaml:"separation"`

	// Transcription lists the fast remote backends, tried in order behind
	// circuit breakers.
	Transcription []ProviderEntry `yaml:"transcription"`

	// LocalTranscription is the on-device backend used when
	// pipeline.enable_local is set.
	LocalTranscription ProviderEntry `yaml:"local_transcription"`

	// Polish is the LLM used to correct transcribed lyrics.
	Polish ProviderEntry `yaml:"polish"`

	// Recall is the LLM used to look up known lyrics. Defaults to the
	// polish provider when empty.
	Recall ProviderEntry `yaml:"recall"`
}

// ProviderEntry is the common configuration block shared by all provider types.
// The Name field is used to look up the constructor in the [Registry].
type ProviderEntry struct {
	// Name selects the registered provider implementation (e.g., "groq", "whisper").
	Name string `yaml:"name"`

	// APIKey is the authentication key for the provider's API if any.
	APIKey string `yaml:"api_key"`

	// BaseURL overrides the provider's default API endpoint.
	// Leave empty to use the provider's built-in default.
	BaseURL string `yaml:"base_url"`

	// Model selects a specific model within the provider (e.g., "whisper-large-v3").
	Model string `yaml:"model"`

	// Options holds provider-specific configuration values not covered by the
	// standard fields above. Values may be strings, numbers, booleans, or nested maps.
	Options map[string]any `yaml:"options"`
}

// PipelineConfig holds run defaults. Requests may override the per-run
// fields.
type PipelineConfig struct {
	// EnableLocal opts into on-device transcription.
	EnableLocal bool `yaml:"enable_local"`

	// Polish enables LLM polishing by default.
	Polish bool `yaml:"polish"`

	// LyricSource is the default lyric source. Empty means auto.
	LyricSource types.LyricSource `yaml:"lyric_source"`

	// Language is the default ISO-639-1 hint. Empty auto-detects.
	Language string `yaml:"language"`

	// Quality is the default transcription quality. Empty means accurate.
	Quality types.Quality `yaml:"quality"`

	// PlaceholderStep is the delay between simulated download steps of the
	// placeholder strategy. Zero uses the provider default.
	PlaceholderStep time.Duration `yaml:"placeholder_step"`

	// DefaultDuration is the song length in seconds assumed when it cannot
	// be probed. Zero means 60.
	DefaultDuration float64 `yaml:"default_duration"`

	// CircuitBreaker tunes the breakers in front of remote providers.
	CircuitBreaker CircuitBreakerConfig `yaml:"circuit_breaker"`
}

// CircuitBreakerConfig tunes provider circuit breakers. Zero values use the
// breaker defaults.
type CircuitBreakerConfig struct {
	MaxFailures  int           `yaml:"max_failures"`
	ResetTimeout time.Duration `yaml:"reset_timeout"`
}

// AlignmentConfig tunes the lyric aligner. Zero values use the aligner
// defaults.
type AlignmentConfig struct {
	// Lookahead is the number of transcribed words searched per clean word.
	Lookahead int `yaml:"lookahead"`

	// TrailingPad bounds a trailing run of unmatched words, in seconds.
	TrailingPad float64 `yaml:"trailing_pad"`

	// Matcher selects the word matcher. Empty means substring.
	Matcher Matcher `yaml:"matcher"`
}

// PlaybackConfig tunes the highlight loop.
type PlaybackConfig struct {
	// PollInterval is the clock polling period. Zero means 16ms.
	PollInterval time.Duration `yaml:"poll_interval"`
}

// RecallEntry returns the recall provider, falling back to the polish
// provider.
func (p ProvidersConfig) RecallEntry() ProviderEntry {
	if p.Recall.Name != "" {
		return p.Recall
	}
	return p.Polish
}
