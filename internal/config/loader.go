package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"

	"gopkg.in/yaml.v3"

	"github.com/chetanrakshe2510/karaoke-maker/pkg/types"
)

// ValidProviderNames lists known provider names per provider kind.
// Used by [Validate] to warn about unrecognised provider names.
var ValidProviderNames = map[string][]string{
	"separation":    {"demucs", "passthrough"},
	"transcription": {"openai", "groq", "whisper"},
	"local":         {"whisper", "whisper-native"},
	"llm":           {"openai", "groq", "anthropic", "ollama", "gemini", "deepseek", "mistral", "llamacpp", "llamafile"},
}

// Load reads the YAML configuration file at path and returns a validated [Config].
// It is a convenience wrapper around [LoadFromReader] and [Validate].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r and validates the result.
// Useful in tests where configs are constructed from string literals.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	// Server
	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}
	if cfg.Server.MaxUploadMB < 0 {
		errs = append(errs, fmt.Errorf("server.max_upload_mb %d must not be negative", cfg.Server.MaxUploadMB))
	}
	if tls := cfg.Server.TLS; tls != nil && (tls.CertFile == "" || tls.KeyFile == "") {
		errs = append(errs, errors.New("server.tls requires both cert_file and key_file"))
	}

	// Providers
	validateProviderName("separation", cfg.Providers.Separation.Name)
	validateProviderName("local", cfg.Providers.LocalTranscription.Name)
	validateProviderName("llm", cfg.Providers.Polish.Name)
	validateProviderName("llm", cfg.Providers.Recall.Name)

	seen := make(map[string]int, len(cfg.Providers.Transcription))
	for i, e := range cfg.Providers.Transcription {
		prefix := fmt.Sprintf("providers.transcription[%d]", i)
		if e.Name == "" {
			errs = append(errs, fmt.Errorf("%s.name is required", prefix))
			continue
		}
		key := e.Name + "|" + e.BaseURL + "|" + e.Model
		if prev, ok := seen[key]; ok {
			errs = append(errs, fmt.Errorf("%s duplicates providers.transcription[%d]", prefix, prev))
		}
		seen[key] = i
		validateProviderName("transcription", e.Name)
	}

	// Pipeline
	p := cfg.Pipeline
	if p.EnableLocal && cfg.Providers.LocalTranscription.Name == "" {
		errs = append(errs, errors.New("pipeline.enable_local requires providers.local_transcription"))
	}
	if p.LyricSource != "" && !p.LyricSource.IsValid() {
		errs = append(errs, fmt.Errorf("pipeline.lyric_source %q is invalid; valid values: auto, ai-recall, paste", p.LyricSource))
	}
	if p.Quality != "" && !p.Quality.IsValid() {
		errs = append(errs, fmt.Errorf("pipeline.quality %q is invalid; valid values: fast, accurate", p.Quality))
	}
	if p.PlaceholderStep < 0 {
		errs = append(errs, fmt.Errorf("pipeline.placeholder_step %s must not be negative", p.PlaceholderStep))
	}
	if p.DefaultDuration < 0 {
		errs = append(errs, fmt.Errorf("pipeline.default_duration %.1f must not be negative", p.DefaultDuration))
	}
	if p.CircuitBreaker.MaxFailures < 0 || p.CircuitBreaker.ResetTimeout < 0 {
		errs = append(errs, errors.New("pipeline.circuit_breaker values must not be negative"))
	}
	if p.Polish && cfg.Providers.Polish.Name == "" {
		slog.Warn("pipeline.polish is enabled but providers.polish is not configured; polishing will be skipped")
	}
	if p.LyricSource == types.SourceAIRecall && cfg.Providers.RecallEntry().Name == "" {
		slog.Warn("pipeline.lyric_source is ai-recall but no recall or polish provider is configured")
	}
	if len(cfg.Providers.Transcription) == 0 && !p.EnableLocal {
		slog.Warn("no transcription provider configured; runs will produce placeholder lyrics")
	}

	// Alignment
	if cfg.Alignment.Lookahead < 0 {
		errs = append(errs, fmt.Errorf("alignment.lookahead %d must not be negative", cfg.Alignment.Lookahead))
	}
	if cfg.Alignment.TrailingPad < 0 {
		errs = append(errs, fmt.Errorf("alignment.trailing_pad %.1f must not be negative", cfg.Alignment.TrailingPad))
	}
	if cfg.Alignment.Matcher != "" && !cfg.Alignment.Matcher.IsValid() {
		errs = append(errs, fmt.Errorf("alignment.matcher %q is invalid; valid values: substring, phonetic", cfg.Alignment.Matcher))
	}

	// Playback
	if cfg.Playback.PollInterval < 0 {
		errs = append(errs, fmt.Errorf("playback.poll_interval %s must not be negative", cfg.Playback.PollInterval))
	}

	return errors.Join(errs...)
}

// validateProviderName logs a warning if name is non-empty and not found in
// the [ValidProviderNames] list for the given kind.
func validateProviderName(kind, name string) {
	if name == "" {
		return
	}
	known, ok := ValidProviderNames[kind]
	if !ok {
		return
	}
	if slices.Contains(known, name) {
		return
	}
	slog.Warn("unknown provider name, may be a typo or third-party provider",
		"kind", kind,
		"name", name,
		"known", known,
	)
}
