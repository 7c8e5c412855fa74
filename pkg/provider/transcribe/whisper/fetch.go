package whisper

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/chetanrakshe2510/karaoke-maker/pkg/provider/transcribe"
)

// DefaultModelBaseURL hosts the ggml conversions of the Whisper models.
const DefaultModelBaseURL = "https://huggingface.co/ggerganov/whisper.cpp/resolve/main"

// ModelFetcher downloads a ggml model file into a cache directory once and
// reuses it afterwards.
type ModelFetcher struct {
	url        string
	path       string
	httpClient *http.Client
}

// FetchOption configures a ModelFetcher.
type FetchOption func(*ModelFetcher)

// WithFetchClient replaces the HTTP client used for downloads.
func WithFetchClient(c *http.Client) FetchOption {
	return func(f *ModelFetcher) { f.httpClient = c }
}

// WithModelURL overrides the download URL. The default is derived from
// [DefaultModelBaseURL] and the model file name.
func WithModelURL(url string) FetchOption {
	return func(f *ModelFetcher) { f.url = url }
}

// NewModelFetcher returns a fetcher for model (e.g. "base.en" or
// "ggml-base.en.bin") cached under dir.
func NewModelFetcher(dir, model string, opts ...FetchOption) (*ModelFetcher, error) {
	if dir == "" || model == "" {
		return nil, errors.New("whisper: model fetcher needs a cache dir and model name")
	}
	file := model
	if filepath.Ext(file) != ".bin" {
		file = "ggml-" + model + ".bin"
	}
	f := &ModelFetcher{
		url:        DefaultModelBaseURL + "/" + file,
		path:       filepath.Join(dir, file),
		httpClient: &http.Client{Timeout: 30 * time.Minute},
	}
	for _, o := range opts {
		o(f)
	}
	return f, nil
}

// Path returns where the model is (or will be) stored.
func (f *ModelFetcher) Path() string { return f.path }

// Cached reports whether the model file is already on disk.
func (f *ModelFetcher) Cached() bool {
	st, err := os.Stat(f.path)
	return err == nil && st.Size() > 0
}

// Fetch ensures the model is on disk and returns its path. Download progress
// is reported to l; a cache hit reports a single completed call.
func (f *ModelFetcher) Fetch(ctx context.Context, l transcribe.Listener) (string, error) {
	l = transcribe.OrDiscard(l)
	if st, err := os.Stat(f.path); err == nil && st.Size() > 0 {
		l.ModelProgress(st.Size(), st.Size())
		return f.path, nil
	}

	if err := os.MkdirAll(filepath.Dir(f.path), 0o755); err != nil {
		return "", fmt.Errorf("whisper: create model dir: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.url, nil)
	if err != nil {
		return "", fmt.Errorf("whisper: create model request: %w", err)
	}
	resp, err := f.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("whisper: download model: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("whisper: download model: HTTP %d", resp.StatusCode)
	}

	tmp, err := os.CreateTemp(filepath.Dir(f.path), filepath.Base(f.path)+".*.part")
	if err != nil {
		return "", fmt.Errorf("whisper: create temp model file: %w", err)
	}
	defer os.Remove(tmp.Name())

	slog.Info("whisper: downloading model", "url", f.url, "bytes", resp.ContentLength)

	pw := &progressWriter{total: resp.ContentLength, listener: l}
	if _, err := io.Copy(io.MultiWriter(tmp, pw), resp.Body); err != nil {
		tmp.Close()
		return "", fmt.Errorf("whisper: download model: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("whisper: write model: %w", err)
	}
	if pw.total <= 0 {
		l.ModelProgress(pw.loaded, pw.loaded)
	}
	if err := os.Rename(tmp.Name(), f.path); err != nil {
		return "", fmt.Errorf("whisper: install model: %w", err)
	}
	return f.path, nil
}

// progressWriter counts bytes and forwards progress to a listener.
type progressWriter struct {
	loaded   int64
	total    int64
	listener transcribe.Listener
}

func (w *progressWriter) Write(p []byte) (int, error) {
	w.loaded += int64(len(p))
	if w.total > 0 {
		w.listener.ModelProgress(w.loaded, w.total)
	}
	return len(p), nil
}
