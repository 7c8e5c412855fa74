// This file contains the NativeProvider implementation backed by the
// whisper.cpp CGO bindings. The whisper.cpp static library (libwhisper.a)
// and headers (whisper.h) must be available at link time via LIBRARY_PATH
// and C_INCLUDE_PATH environment variables.

package whisper

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"

	whisperlib "github.com/ggerganov/whisper.cpp/bindings/go/pkg/whisper"

	"github.com/chetanrakshe2510/karaoke-maker/pkg/audio"
	"github.com/chetanrakshe2510/karaoke-maker/pkg/provider/transcribe"
	"github.com/chetanrakshe2510/karaoke-maker/pkg/types"
)

// Compile-time interface assertions.
var (
	_ transcribe.Provider = (*NativeProvider)(nil)
	_ transcribe.Checker  = (*NativeProvider)(nil)
)

// NativeProvider implements transcribe.Provider using whisper.cpp Go bindings
// (CGO). The model is loaded lazily on the first Transcribe call, after being
// fetched when a [ModelFetcher] is configured, and then shared by all calls.
type NativeProvider struct {
	modelPath string
	language  string
	threads   uint
	fetcher   *ModelFetcher

	mu    sync.Mutex
	model whisperlib.Model
}

// NativeOption is a functional option for configuring a NativeProvider.
type NativeOption func(*NativeProvider)

// WithNativeLanguage sets the default language code (e.g., "en", "de").
// Empty or "auto" enables auto-detection.
func WithNativeLanguage(lang string) NativeOption {
	return func(p *NativeProvider) { p.language = lang }
}

// WithThreads sets the number of inference threads. Zero keeps the
// whisper.cpp default.
func WithThreads(n uint) NativeOption {
	return func(p *NativeProvider) { p.threads = n }
}

// WithFetcher downloads the model through f when it is not on disk yet. The
// fetcher's path replaces modelPath.
func WithFetcher(f *ModelFetcher) NativeOption {
	return func(p *NativeProvider) {
		p.fetcher = f
		if f != nil {
			p.modelPath = f.Path()
		}
	}
}

// NewNative creates a NativeProvider for the ggml model at modelPath. The
// model is not loaded until first use. The caller must call Close when the
// provider is no longer needed.
func NewNative(modelPath string, opts ...NativeOption) (*NativeProvider, error) {
	p := &NativeProvider{modelPath: modelPath}
	for _, o := range opts {
		o(p)
	}
	if p.modelPath == "" {
		return nil, errors.New("whisper: modelPath must not be empty")
	}
	return p, nil
}

// Available implements transcribe.Checker: the model must be on disk or
// fetchable.
func (p *NativeProvider) Available(_ context.Context) error {
	if p.fetcher != nil {
		return nil
	}
	if _, err := os.Stat(p.modelPath); err != nil {
		return fmt.Errorf("whisper: model %q: %w", p.modelPath, transcribe.ErrUnavailable)
	}
	return nil
}

// Close releases the whisper model.
func (p *NativeProvider) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.model != nil {
		err := p.model.Close()
		p.model = nil
		return err
	}
	return nil
}

// load returns the shared model, fetching and loading it on first use.
func (p *NativeProvider) load(ctx context.Context, l transcribe.Listener) (whisperlib.Model, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.model != nil {
		l.ModelProgress(1, 1)
		return p.model, nil
	}

	path := p.modelPath
	if p.fetcher != nil {
		fetched, err := p.fetcher.Fetch(ctx, l)
		if err != nil {
			return nil, err
		}
		path = fetched
	} else if st, err := os.Stat(path); err == nil {
		l.ModelProgress(st.Size(), st.Size())
	}

	start := time.Now()
	model, err := whisperlib.New(path)
	if err != nil {
		return nil, fmt.Errorf("whisper: load model %q: %w", path, err)
	}
	slog.Info("whisper: model loaded", "path", path, "took", time.Since(start))
	p.model = model
	return model, nil
}

// Transcribe implements transcribe.Provider. The input must be a WAV file; it
// is converted to 16 kHz mono float samples before inference.
func (p *NativeProvider) Transcribe(ctx context.Context, req transcribe.Request, l transcribe.Listener) (*transcribe.Result, error) {
	l = transcribe.OrDiscard(l)

	clip, err := audio.DecodeWAV(req.Audio)
	if err != nil {
		return nil, fmt.Errorf("whisper: %w", err)
	}
	samples := audio.ForSpeech(clip).Samples

	model, err := p.load(ctx, l)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("whisper: %w", err)
	}

	// Each context is NOT thread-safe, but the model can be shared.
	wctx, err := model.NewContext()
	if err != nil {
		return nil, fmt.Errorf("whisper: create context: %w", err)
	}
	lang := firstNonEmpty(req.Language, p.language, "auto")
	if err := wctx.SetLanguage(lang); err != nil {
		slog.Warn("whisper: failed to set language, using default", "language", lang, "err", err)
	}
	if p.threads > 0 {
		wctx.SetThreads(p.threads)
	}
	wctx.SetTokenTimestamps(true)

	l.TranscribingStarted()
	if err := wctx.Process(samples, nil, nil, nil); err != nil {
		return nil, fmt.Errorf("whisper: process audio: %w", err)
	}

	var (
		raw   []transcribe.RawSegment
		words []types.WordTimestamp
		parts []string
	)
	for {
		segment, err := wctx.NextSegment()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("whisper: read segment: %w", err)
		}
		text := strings.TrimSpace(segment.Text)
		if text == "" {
			continue
		}
		start := segment.Start.Seconds()
		raw = append(raw, transcribe.RawSegment{Text: text, Start: start, End: endOrDefault(start, segment.End.Seconds())})
		words = append(words, tokenWords(segment.Tokens)...)
		parts = append(parts, text)
	}

	full := strings.Join(parts, " ")
	segs := transcribe.BuildSegments(raw, words, full)
	if len(segs) == 0 {
		return nil, fmt.Errorf("whisper: %w", transcribe.ErrEmptyResult)
	}
	return &transcribe.Result{Text: full, Language: lang, Segments: segs}, nil
}

// tokenWords merges sub-word tokens into timed words. A token with a leading
// space starts a new word; special tokens such as [_BEG_] are skipped.
func tokenWords(tokens []whisperlib.Token) []types.WordTimestamp {
	var out []types.WordTimestamp
	for _, tok := range tokens {
		if isSpecialToken(tok.Text) {
			continue
		}
		text := tok.Text
		start, end := tok.Start.Seconds(), tok.End.Seconds()
		if strings.HasPrefix(text, " ") || len(out) == 0 {
			word := strings.TrimSpace(text)
			if word == "" {
				continue
			}
			out = append(out, types.WordTimestamp{Word: word, Start: start, End: max(start, end)})
			continue
		}
		last := &out[len(out)-1]
		last.Word += text
		last.End = max(last.End, end)
	}
	return out
}

func isSpecialToken(text string) bool {
	t := strings.TrimSpace(text)
	return strings.HasPrefix(t, "[_") || strings.HasPrefix(t, "<|")
}
