// Package recall fetches the known lyrics of a song by title and artist from
// a language model.
//
// Recalled lyrics are only ever used as the clean text for alignment, so the
// Recaller is strict about what it accepts: the model must explicitly report
// that it knows the song, and section markers such as "[Chorus]" are
// removed before the text is returned.
package recall

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"github.com/chetanrakshe2510/karaoke-maker/pkg/provider/llm"
)

// ErrNotFound is returned when the lyrics are unknown or the reply is
// unusable.
var ErrNotFound = errors.New("recall: lyrics not found")

const defaultTemperature = 0.0

const systemPrompt = `You are a lyrics database for a karaoke application.

Given a song title and optionally an artist, return the complete original lyrics.

Rules:
- Only answer if you know this exact song. Never invent or paraphrase lyrics.
- Put one sung line per line, separated by "\n".
- Do not include section labels, chord names or commentary.

Respond with ONLY a JSON object in this exact format (no markdown, no prose):
{"found": true, "lyrics": "<line 1>\n<line 2>\n..."}

If you do not know the song, respond with {"found": false, "lyrics": ""}.`

type reply struct {
	Found  bool   `json:"found"`
	Lyrics string `json:"lyrics"`
}

// Option is a functional option for configuring a [Recaller].
type Option func(*Recaller)

// WithTemperature sets the LLM sampling temperature. Default: 0.
func WithTemperature(temp float64) Option {
	return func(r *Recaller) {
		r.temperature = temp
	}
}

// WithMinLines sets the minimum number of lines a reply must contain to be
// accepted. Default: 2.
func WithMinLines(n int) Option {
	return func(r *Recaller) {
		if n > 0 {
			r.minLines = n
		}
	}
}

// Recaller looks up lyrics through an [llm.Provider]. It is safe for
// concurrent use.
type Recaller struct {
	llm         llm.Provider
	temperature float64
	minLines    int
}

// New returns a Recaller backed by provider.
func New(provider llm.Provider, opts ...Option) *Recaller {
	r := &Recaller{
		llm:         provider,
		temperature: defaultTemperature,
		minLines:    2,
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// Recall returns the lyrics of title by artist, one line per "\n". artist may
// be empty. It returns an error wrapping [ErrNotFound] when the model does
// not know the song, and the provider error when the call itself fails.
func (r *Recaller) Recall(ctx context.Context, artist, title string) (string, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return "", fmt.Errorf("%w: no title", ErrNotFound)
	}

	user := "Title: " + title
	if artist = strings.TrimSpace(artist); artist != "" {
		user += "\nArtist: " + artist
	}

	resp, err := r.llm.Complete(ctx, llm.CompletionRequest{
		SystemPrompt: systemPrompt,
		Temperature:  r.temperature,
		JSON:         true,
		Messages:     []llm.Message{llm.UserMessage(user)},
	})
	if err != nil {
		return "", fmt.Errorf("recall: complete: %w", err)
	}
	if resp == nil {
		return "", fmt.Errorf("%w: empty reply", ErrNotFound)
	}

	var rep reply
	if err := json.Unmarshal([]byte(stripMarkdown(resp.Content)), &rep); err != nil {
		slog.Warn("recall: unparseable reply", "title", title, "err", err)
		return "", fmt.Errorf("%w: parse reply: %v", ErrNotFound, err)
	}
	if !rep.Found {
		return "", fmt.Errorf("%w: %q", ErrNotFound, title)
	}

	lyrics := Clean(rep.Lyrics)
	if n := strings.Count(lyrics, "\n") + 1; lyrics == "" || n < r.minLines {
		return "", fmt.Errorf("%w: reply too short for %q", ErrNotFound, title)
	}
	return lyrics, nil
}

var sectionMarker = regexp.MustCompile(`^\s*[\[(][^\])]*[\])]\s*$`)

// Clean normalises line endings, drops section markers such as "[Chorus]" or
// "(Verse 2)" and blank lines, and trims each line.
func Clean(lyrics string) string {
	lyrics = strings.ReplaceAll(lyrics, "\r\n", "\n")
	var out []string
	for _, ln := range strings.Split(lyrics, "\n") {
		ln = strings.TrimSpace(ln)
		if ln == "" || sectionMarker.MatchString(ln) {
			continue
		}
		out = append(out, ln)
	}
	return strings.Join(out, "\n")
}

func stripMarkdown(s string) string {
	s = strings.TrimSpace(s)
	for _, prefix := range []string{"```json", "```"} {
		if after, ok := strings.CutPrefix(s, prefix); ok {
			s = after
			break
		}
	}
	if before, ok := strings.CutSuffix(s, "```"); ok {
		s = before
	}
	return strings.TrimSpace(s)
}
