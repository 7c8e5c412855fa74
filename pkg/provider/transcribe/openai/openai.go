// Package openai provides a transcription provider for OpenAI-compatible
// /audio/transcriptions endpoints, including Groq's hosted Whisper models.
//
// Requests ask for verbose_json with segment and word timestamp granularity
// so the pipeline gets word-level timing for karaoke highlighting. Uploads are
// capped at [MaxUploadBytes]; WAV files above the limit are down-mixed and
// resampled to 16 kHz mono before upload.
package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"path"
	"strings"
	"time"

	oai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/chetanrakshe2510/karaoke-maker/pkg/audio"
	"github.com/chetanrakshe2510/karaoke-maker/pkg/provider/transcribe"
	"github.com/chetanrakshe2510/karaoke-maker/pkg/types"
)

const (
	// MaxUploadBytes is the file size limit enforced by Groq.
	MaxUploadBytes = 25 * 1024 * 1024

	// GroqBaseURL is the OpenAI-compatible API root of Groq.
	GroqBaseURL = "https://api.groq.com/openai/v1"

	groqFastModel     = "whisper-large-v3-turbo"
	groqAccurateModel = "whisper-large-v3"
	openAIModel       = "whisper-1"
)

// Compile-time interface assertions.
var (
	_ transcribe.Provider = (*Provider)(nil)
	_ transcribe.Checker  = (*Provider)(nil)
)

// Provider implements transcribe.Provider using an OpenAI-compatible API.
type Provider struct {
	client        oai.Client
	apiKey        string
	fastModel     string
	accurateModel string
	maxUpload     int
}

// config holds optional configuration for the provider.
type config struct {
	baseURL       string
	fastModel     string
	accurateModel string
	timeout       time.Duration
	maxRetries    int
	maxUpload     int
}

// Option is a functional option for Provider.
type Option func(*config)

// WithBaseURL overrides the API base URL.
func WithBaseURL(url string) Option {
	return func(c *config) { c.baseURL = url }
}

// WithModel pins a single model for both quality levels.
func WithModel(model string) Option {
	return func(c *config) {
		c.fastModel = model
		c.accurateModel = model
	}
}

// WithModels sets the models used for [types.QualityFast] and
// [types.QualityAccurate] respectively.
func WithModels(fast, accurate string) Option {
	return func(c *config) {
		c.fastModel = fast
		c.accurateModel = accurate
	}
}

// WithTimeout sets a per-request HTTP timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *config) { c.timeout = d }
}

// WithMaxRetries sets how often the client retries transient failures.
func WithMaxRetries(n int) Option {
	return func(c *config) { c.maxRetries = n }
}

// WithMaxUploadBytes overrides [MaxUploadBytes].
func WithMaxUploadBytes(n int) Option {
	return func(c *config) { c.maxUpload = n }
}

// New constructs a Provider for the OpenAI API. The default model is
// whisper-1, the only OpenAI model that returns word timestamps.
func New(apiKey string, opts ...Option) (*Provider, error) {
	base := []Option{WithModel(openAIModel)}
	return build(apiKey, append(base, opts...)...)
}

// NewGroq constructs a Provider for Groq's Whisper endpoint. Fast quality
// selects whisper-large-v3-turbo; accurate selects whisper-large-v3.
func NewGroq(apiKey string, opts ...Option) (*Provider, error) {
	base := []Option{WithBaseURL(GroqBaseURL), WithModels(groqFastModel, groqAccurateModel)}
	return build(apiKey, append(base, opts...)...)
}

func build(apiKey string, opts ...Option) (*Provider, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("openai: apiKey must not be empty")
	}
	cfg := &config{maxRetries: -1, maxUpload: MaxUploadBytes}
	for _, o := range opts {
		o(cfg)
	}

	reqOpts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if cfg.baseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(cfg.baseURL))
	}
	if cfg.timeout > 0 {
		reqOpts = append(reqOpts, option.WithHTTPClient(&http.Client{Timeout: cfg.timeout}))
	}
	if cfg.maxRetries >= 0 {
		reqOpts = append(reqOpts, option.WithMaxRetries(cfg.maxRetries))
	}

	return &Provider{
		client:        oai.NewClient(reqOpts...),
		apiKey:        apiKey,
		fastModel:     cfg.fastModel,
		accurateModel: cfg.accurateModel,
		maxUpload:     cfg.maxUpload,
	}, nil
}

// Model returns the model used for quality q.
func (p *Provider) Model(q types.Quality) string {
	if q == types.QualityFast {
		return p.fastModel
	}
	return p.accurateModel
}

// Available implements transcribe.Checker. A remote provider is considered
// available once it has credentials; reachability is only known per request.
func (p *Provider) Available(_ context.Context) error {
	if p.apiKey == "" {
		return fmt.Errorf("openai: no api key: %w", transcribe.ErrUnavailable)
	}
	return nil
}

// Transcribe implements transcribe.Provider.
func (p *Provider) Transcribe(ctx context.Context, req transcribe.Request, l transcribe.Listener) (*transcribe.Result, error) {
	data, name, err := p.prepare(req)
	if err != nil {
		return nil, err
	}
	transcribe.OrDiscard(l).TranscribingStarted()

	model := p.Model(req.Quality)
	params := oai.AudioTranscriptionNewParams{
		File:                   oai.File(bytes.NewReader(data), name, contentType(name)),
		Model:                  oai.AudioModel(model),
		ResponseFormat:         oai.AudioResponseFormatVerboseJSON,
		TimestampGranularities: []string{"segment", "word"},
	}
	if req.Language != "" {
		params.Language = oai.String(req.Language)
	}

	slog.Debug("openai: transcription request",
		"model", model,
		"bytes", len(data),
		"language", optLang(req.Language),
	)

	resp, err := p.client.Audio.Transcriptions.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("openai: transcription: %w", err)
	}

	var verbose verboseTranscription
	if raw := resp.RawJSON(); raw != "" {
		if err := json.Unmarshal([]byte(raw), &verbose); err != nil {
			return nil, fmt.Errorf("openai: decode verbose response: %w", err)
		}
	}
	if verbose.Text == "" {
		verbose.Text = resp.Text
	}
	return verbose.result()
}

// prepare enforces the upload limit, compressing oversized WAV input.
func (p *Provider) prepare(req transcribe.Request) ([]byte, string, error) {
	data := req.Audio
	name := req.Name()
	if len(data) == 0 {
		return nil, "", fmt.Errorf("openai: empty audio")
	}
	if p.maxUpload <= 0 || len(data) <= p.maxUpload {
		return data, name, nil
	}
	if audio.IsWAV(data) {
		compressed, err := audio.CompressForSpeech(data)
		if err != nil {
			return nil, "", fmt.Errorf("openai: %w", err)
		}
		slog.Info("openai: compressed upload",
			"from_bytes", len(data),
			"to_bytes", len(compressed),
		)
		data = compressed
		name = strings.TrimSuffix(name, path.Ext(name)) + ".wav"
	}
	if len(data) > p.maxUpload {
		return nil, "", fmt.Errorf("openai: audio file too large (%.1fMB), limit is %dMB",
			float64(len(data))/(1024*1024), p.maxUpload/(1024*1024))
	}
	return data, name, nil
}

// verboseTranscription mirrors the verbose_json response body.
type verboseTranscription struct {
	Text     string  `json:"text"`
	Language string  `json:"language"`
	Duration float64 `json:"duration"`
	Segments []struct {
		Text  string  `json:"text"`
		Start float64 `json:"start"`
		End   float64 `json:"end"`
	} `json:"segments"`
	Words []types.WordTimestamp `json:"words"`
}

func (v verboseTranscription) result() (*transcribe.Result, error) {
	raw := make([]transcribe.RawSegment, len(v.Segments))
	for i, s := range v.Segments {
		raw[i] = transcribe.RawSegment{Text: s.Text, Start: s.Start, End: s.End}
	}
	segs := transcribe.BuildSegments(raw, v.Words, v.Text)
	if len(segs) == 0 {
		return nil, fmt.Errorf("openai: %w", transcribe.ErrEmptyResult)
	}
	return &transcribe.Result{Text: v.Text, Language: v.Language, Segments: segs}, nil
}

func contentType(name string) string {
	switch strings.ToLower(path.Ext(name)) {
	case ".mp3":
		return "audio/mpeg"
	case ".m4a", ".mp4":
		return "audio/mp4"
	case ".ogg":
		return "audio/ogg"
	case ".flac":
		return "audio/flac"
	case ".webm":
		return "audio/webm"
	default:
		return "audio/wav"
	}
}

func optLang(lang string) string {
	if lang == "" {
		return "auto"
	}
	return lang
}
