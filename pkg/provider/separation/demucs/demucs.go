// Package demucs provides a separation provider for an HTTP Demucs service.
//
// The service protocol is job based:
//
//	POST {base}/separate        multipart "audio"   -> {"id": "...", "queue_position": 2}
//	GET  {base}/jobs/{id}                           -> {"status": "queued|processing|done|failed",
//	                                                    "queue_position": 1,
//	                                                    "stems": {"vocals": URL, "instrumental": URL},
//	                                                    "error": "..."}
//
// Stem URLs may be absolute or relative to base. Both stems are downloaded
// concurrently once the job is done.
package demucs

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/chetanrakshe2510/karaoke-maker/pkg/provider/separation"
)

// Job status values reported by the service.
const (
	StatusQueued     = "queued"
	StatusProcessing = "processing"
	StatusDone       = "done"
	StatusFailed     = "failed"
)

var _ separation.Provider = (*Provider)(nil)

// Provider implements separation.Provider against a Demucs HTTP service.
type Provider struct {
	baseURL      string
	apiKey       string
	model        string
	pollInterval time.Duration
	httpClient   *http.Client
}

// Option is a functional option for configuring a Provider.
type Option func(*Provider)

// WithAPIKey sends key as a bearer token.
func WithAPIKey(key string) Option {
	return func(p *Provider) { p.apiKey = key }
}

// WithModel selects the Demucs model (e.g. "htdemucs", "htdemucs_ft").
func WithModel(model string) Option {
	return func(p *Provider) { p.model = model }
}

// WithPollInterval sets how often job status is polled. Defaults to 1 s.
func WithPollInterval(d time.Duration) Option {
	return func(p *Provider) {
		if d > 0 {
			p.pollInterval = d
		}
	}
}

// WithHTTPClient replaces the HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(p *Provider) { p.httpClient = c }
}

// New creates a Provider for the service at baseURL.
func New(baseURL string, opts ...Option) (*Provider, error) {
	if baseURL == "" {
		return nil, errors.New("demucs: baseURL must not be empty")
	}
	if _, err := url.Parse(baseURL); err != nil {
		return nil, fmt.Errorf("demucs: invalid baseURL: %w", err)
	}
	p := &Provider{
		baseURL:      strings.TrimRight(baseURL, "/"),
		pollInterval: time.Second,
		httpClient:   &http.Client{Timeout: 5 * time.Minute},
	}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

type jobResponse struct {
	ID            string `json:"id"`
	Status        string `json:"status"`
	QueuePosition int    `json:"queue_position"`
	Stems         struct {
		Vocals       string `json:"vocals"`
		Instrumental string `json:"instrumental"`
	} `json:"stems"`
	Error string `json:"error"`
}

// Separate implements separation.Provider.
func (p *Provider) Separate(ctx context.Context, audio []byte, l separation.Listener) (*separation.Stems, error) {
	if len(audio) == 0 {
		return nil, separation.ErrNoAudio
	}
	l = separation.OrDiscard(l)

	l.Phase("Submitting audio for source separation...")
	job, err := p.submit(ctx, audio)
	if err != nil {
		return nil, err
	}
	slog.Debug("demucs: job submitted", "id", job.ID, "queue_position", job.QueuePosition)

	lastPos := -1
	ticker := time.NewTicker(p.pollInterval)
	defer ticker.Stop()
	for {
		if job.QueuePosition != lastPos {
			lastPos = job.QueuePosition
			l.QueuePosition(lastPos)
			if lastPos > 0 {
				l.Phase(fmt.Sprintf("Waiting in Queue: Position %d", lastPos))
			} else {
				l.Phase("Extracting vocals and instruments...")
			}
		}

		switch job.Status {
		case StatusDone:
			l.Phase("Downloading separated audio...")
			return p.download(ctx, job)
		case StatusFailed:
			return nil, fmt.Errorf("demucs: job %s failed: %s", job.ID, job.Error)
		}

		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("demucs: %w", ctx.Err())
		case <-ticker.C:
		}

		if job, err = p.status(ctx, job.ID); err != nil {
			return nil, err
		}
	}
}

func (p *Provider) submit(ctx context.Context, audio []byte) (*jobResponse, error) {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	fw, err := mw.CreateFormFile("audio", "audio")
	if err != nil {
		return nil, fmt.Errorf("demucs: create form file: %w", err)
	}
	if _, err := fw.Write(audio); err != nil {
		return nil, fmt.Errorf("demucs: write audio: %w", err)
	}
	if p.model != "" {
		if err := mw.WriteField("model", p.model); err != nil {
			return nil, fmt.Errorf("demucs: write model field: %w", err)
		}
	}
	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("demucs: close multipart writer: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/separate", &body)
	if err != nil {
		return nil, fmt.Errorf("demucs: create request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	var job jobResponse
	if err := p.doJSON(req, &job); err != nil {
		return nil, err
	}
	if job.ID == "" {
		return nil, errors.New("demucs: submit: response carries no job id")
	}
	if job.Status == "" {
		job.Status = StatusQueued
	}
	return &job, nil
}

func (p *Provider) status(ctx context.Context, id string) (*jobResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.baseURL+"/jobs/"+url.PathEscape(id), nil)
	if err != nil {
		return nil, fmt.Errorf("demucs: create request: %w", err)
	}
	var job jobResponse
	if err := p.doJSON(req, &job); err != nil {
		return nil, err
	}
	if job.ID == "" {
		job.ID = id
	}
	return &job, nil
}

func (p *Provider) download(ctx context.Context, job *jobResponse) (*separation.Stems, error) {
	if job.Stems.Vocals == "" || job.Stems.Instrumental == "" {
		return nil, fmt.Errorf("demucs: job %s finished without stems", job.ID)
	}
	var stems separation.Stems
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		data, err := p.fetch(gctx, job.Stems.Vocals)
		stems.Vocals = data
		return err
	})
	g.Go(func() error {
		data, err := p.fetch(gctx, job.Stems.Instrumental)
		stems.Instrumental = data
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return &stems, nil
}

func (p *Provider) fetch(ctx context.Context, ref string) ([]byte, error) {
	target, err := p.resolve(ref)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, fmt.Errorf("demucs: create request: %w", err)
	}
	p.authorize(req)
	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("demucs: download stem: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("demucs: download stem: HTTP %d", resp.StatusCode)
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("demucs: read stem: %w", err)
	}
	return data, nil
}

// resolve turns a possibly relative stem reference into an absolute URL.
func (p *Provider) resolve(ref string) (string, error) {
	base, err := url.Parse(p.baseURL + "/")
	if err != nil {
		return "", fmt.Errorf("demucs: %w", err)
	}
	u, err := url.Parse(ref)
	if err != nil {
		return "", fmt.Errorf("demucs: invalid stem url %q: %w", ref, err)
	}
	return base.ResolveReference(u).String(), nil
}

func (p *Provider) authorize(req *http.Request) {
	if p.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+p.apiKey)
	}
}

func (p *Provider) doJSON(req *http.Request, out any) error {
	p.authorize(req)
	resp, err := p.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("demucs: http request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 != 2 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("demucs: %s %s: HTTP %d: %s", req.Method, req.URL.Path, resp.StatusCode, strings.TrimSpace(string(msg)))
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("demucs: decode response: %w", err)
	}
	return nil
}
