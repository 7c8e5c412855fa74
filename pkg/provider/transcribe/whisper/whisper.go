// Package whisper provides local whisper.cpp-backed transcription providers.
//
// [Provider] talks to a running whisper-server binary over its REST API
// (POST /inference with response_format=verbose_json). [NativeProvider] links
// whisper.cpp directly through the CGO bindings and loads a ggml model from
// disk; [ModelFetcher] downloads that model on first use and reports byte
// progress so the pipeline can surface a model-download stage.
//
// Usage:
//
//	p, err := whisper.New("http://localhost:8080", whisper.WithLanguage("en"))
//	res, err := p.Transcribe(ctx, transcribe.Request{Audio: vocals}, listener)
package whisper

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/chetanrakshe2510/karaoke-maker/pkg/audio"
	"github.com/chetanrakshe2510/karaoke-maker/pkg/provider/transcribe"
	"github.com/chetanrakshe2510/karaoke-maker/pkg/types"
)

// MissingEndSeconds is the length assumed for a chunk whose end timestamp the
// backend left out.
const MissingEndSeconds = 3.0

// Compile-time interface assertions.
var (
	_ transcribe.Provider = (*Provider)(nil)
	_ transcribe.Checker  = (*Provider)(nil)
)

// Option is a functional option for configuring a Provider.
type Option func(*Provider)

// WithModel sets the model identifier forwarded to the whisper.cpp server
// (e.g., "base.en", "small"). When empty the server uses whichever model it
// was started with; this is the default.
func WithModel(model string) Option {
	return func(p *Provider) { p.model = model }
}

// WithLanguage sets the default language code sent to the server when the
// request carries none. Empty means auto-detect.
func WithLanguage(lang string) Option {
	return func(p *Provider) { p.language = lang }
}

// WithHTTPClient replaces the HTTP client. Useful for custom timeouts.
func WithHTTPClient(c *http.Client) Option {
	return func(p *Provider) { p.httpClient = c }
}

// Provider implements transcribe.Provider backed by a local whisper.cpp HTTP
// server.
type Provider struct {
	serverURL  string
	model      string
	language   string
	httpClient *http.Client
}

// New creates a Provider that connects to the whisper.cpp HTTP server at
// serverURL (e.g., "http://localhost:8080"). serverURL must be non-empty.
func New(serverURL string, opts ...Option) (*Provider, error) {
	if serverURL == "" {
		return nil, errors.New("whisper: serverURL must not be empty")
	}
	p := &Provider{
		serverURL:  strings.TrimRight(serverURL, "/"),
		httpClient: &http.Client{Timeout: 10 * time.Minute},
	}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

// Available implements transcribe.Checker by probing the server root.
func (p *Provider) Available(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.serverURL+"/", nil)
	if err != nil {
		return fmt.Errorf("whisper: %w: %v", transcribe.ErrUnavailable, err)
	}
	resp, err := p.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("whisper: server %s unreachable: %w", p.serverURL, transcribe.ErrUnavailable)
	}
	_ = resp.Body.Close()
	if resp.StatusCode >= http.StatusInternalServerError {
		return fmt.Errorf("whisper: server returned HTTP %d: %w", resp.StatusCode, transcribe.ErrUnavailable)
	}
	return nil
}

// Transcribe implements transcribe.Provider. WAV input is converted to 16 kHz
// mono before upload; other containers are sent unchanged and decoded by the
// server.
func (p *Provider) Transcribe(ctx context.Context, req transcribe.Request, l transcribe.Listener) (*transcribe.Result, error) {
	if len(req.Audio) == 0 {
		return nil, errors.New("whisper: empty audio")
	}
	data := req.Audio
	if audio.IsWAV(data) {
		compressed, err := audio.CompressForSpeech(data)
		if err != nil {
			return nil, fmt.Errorf("whisper: %w", err)
		}
		data = compressed
	}

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)

	fw, err := mw.CreateFormFile("file", req.Name())
	if err != nil {
		return nil, fmt.Errorf("whisper: create form file: %w", err)
	}
	if _, err := fw.Write(data); err != nil {
		return nil, fmt.Errorf("whisper: write audio data: %w", err)
	}

	fields := map[string]string{"response_format": "verbose_json"}
	if lang := firstNonEmpty(req.Language, p.language); lang != "" {
		fields["language"] = lang
	}
	if p.model != "" {
		fields["model"] = p.model
	}
	for k, v := range fields {
		if err := mw.WriteField(k, v); err != nil {
			return nil, fmt.Errorf("whisper: write %s field: %w", k, err)
		}
	}
	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("whisper: close multipart writer: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.serverURL+"/inference", &body)
	if err != nil {
		return nil, fmt.Errorf("whisper: create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", mw.FormDataContentType())

	transcribe.OrDiscard(l).TranscribingStarted()

	resp, err := p.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("whisper: http request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("whisper: server returned HTTP %d", resp.StatusCode)
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("whisper: read response body: %w", err)
	}

	var out serverResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("whisper: parse JSON response: %w", err)
	}
	return out.result()
}

// serverResponse is the verbose_json body of whisper-server. Words may be
// reported per segment or at the top level depending on the server version.
type serverResponse struct {
	Text     string `json:"text"`
	Language string `json:"language"`
	Segments []struct {
		Text  string                `json:"text"`
		Start float64               `json:"start"`
		End   float64               `json:"end"`
		Words []types.WordTimestamp `json:"words"`
	} `json:"segments"`
	Words []types.WordTimestamp `json:"words"`
}

func (r serverResponse) result() (*transcribe.Result, error) {
	raw := make([]transcribe.RawSegment, 0, len(r.Segments))
	words := append([]types.WordTimestamp(nil), r.Words...)
	for _, s := range r.Segments {
		raw = append(raw, transcribe.RawSegment{Text: s.Text, Start: s.Start, End: endOrDefault(s.Start, s.End)})
		for _, w := range s.Words {
			w.End = endOrDefault(w.Start, w.End)
			words = append(words, w)
		}
	}
	segs := transcribe.BuildSegments(raw, words, r.Text)
	if len(segs) == 0 {
		return nil, fmt.Errorf("whisper: %w", transcribe.ErrEmptyResult)
	}
	return &transcribe.Result{Text: strings.TrimSpace(r.Text), Language: r.Language, Segments: segs}, nil
}

// endOrDefault substitutes start+MissingEndSeconds for a missing end.
func endOrDefault(start, end float64) float64 {
	if end <= 0 && start >= 0 {
		return start + MissingEndSeconds
	}
	return end
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
