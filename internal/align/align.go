// Package align maps clean, untimed lyric lines onto noisy, timed
// transcription segments.
//
// The algorithm runs in four passes:
//
//  1. Flatten the noisy segments into a single ordered word list. Segments
//     without word timing get synthetic word timestamps proportional to each
//     word's character length.
//  2. Walk the clean words in order and search a bounded window ahead of a
//     monotonic cursor in the noisy list for a match. A match copies the
//     noisy word's timing and moves the cursor past it.
//  3. Every maximal run of unmatched clean words shares the time gap between
//     its resolved neighbours evenly.
//  4. Each clean line becomes one segment spanning its first to last word.
//
// Alignment is pure and deterministic: identical inputs always produce
// identical output.
package align

import (
	"errors"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/chetanrakshe2510/karaoke-maker/pkg/types"
)

const (
	// DefaultLookahead is how many noisy words past the cursor are searched
	// for each clean word.
	DefaultLookahead = 15

	// DefaultTrailingPad is added to the last noisy word's end to bound a
	// trailing run of unmatched words, in seconds.
	DefaultTrailingPad = 5.0

	// minContainLen is the rune length both words must exceed before a
	// substring relation counts as a match.
	minContainLen = 3
)

// ErrNoTiming is returned when there are no noisy segments to take timing
// from.
var ErrNoTiming = errors.New("align: no timed segments to align against")

// Matcher decides whether a clean word and a noisy word are the same word.
// Both arguments are already normalized and non-empty.
type Matcher interface {
	Match(clean, noisy string) bool
}

// MatcherFunc adapts an ordinary function to the [Matcher] interface.
type MatcherFunc func(clean, noisy string) bool

// Match calls f.
func (f MatcherFunc) Match(clean, noisy string) bool { return f(clean, noisy) }

// SubstringMatcher matches equal words, or words that both exceed three runes
// where one contains the other ("love" / "lovely").
var SubstringMatcher Matcher = MatcherFunc(substringMatch)

func substringMatch(a, b string) bool {
	if a == b {
		return true
	}
	if utf8.RuneCountInString(a) > minContainLen && utf8.RuneCountInString(b) > minContainLen {
		return strings.Contains(a, b) || strings.Contains(b, a)
	}
	return false
}

// Option configures an [Aligner].
type Option func(*Aligner)

// WithLookahead sets the search window size. Values below 1 are ignored.
func WithLookahead(n int) Option {
	return func(a *Aligner) {
		if n > 0 {
			a.lookahead = n
		}
	}
}

// WithTrailingPad sets the pad after the last noisy word used to bound a
// trailing unmatched run. Negative values are ignored.
func WithTrailingPad(seconds float64) Option {
	return func(a *Aligner) {
		if seconds >= 0 {
			a.trailingPad = seconds
		}
	}
}

// WithMatcher replaces the word matcher. A nil matcher is ignored.
func WithMatcher(m Matcher) Option {
	return func(a *Aligner) {
		if m != nil {
			a.matcher = m
		}
	}
}

// Aligner holds alignment tuning. The zero value is not usable; construct
// with [New]. An Aligner is immutable and safe for concurrent use.
type Aligner struct {
	lookahead   int
	trailingPad float64
	matcher     Matcher
}

// New returns an Aligner with the default lookahead, pad and matcher.
func New(opts ...Option) *Aligner {
	a := &Aligner{
		lookahead:   DefaultLookahead,
		trailingPad: DefaultTrailingPad,
		matcher:     SubstringMatcher,
	}
	for _, o := range opts {
		o(a)
	}
	return a
}

// Report summarises how much of the clean text was anchored to noisy timing.
type Report struct {
	// Matched is the number of clean words that took timing from a noisy
	// word.
	Matched int `json:"matched"`

	// Total is the number of clean words.
	Total int `json:"total"`

	// Score is Matched/Total scaled to 0–100. Zero when Total is zero.
	Score float64 `json:"score"`
}

var defaultAligner = New()

// Align aligns cleanText against noisy with the default settings.
func Align(noisy []types.LyricSegment, cleanText string) ([]types.LyricSegment, error) {
	return defaultAligner.Align(noisy, cleanText)
}

// Align returns one segment per non-blank line of cleanText, in order, with
// timing taken from noisy. It returns [ErrNoTiming] when noisy is empty.
func (a *Aligner) Align(noisy []types.LyricSegment, cleanText string) ([]types.LyricSegment, error) {
	segs, _, err := a.AlignWithReport(noisy, cleanText)
	return segs, err
}

type cleanWord struct {
	text       string
	norm       string
	start, end float64
	resolved   bool
}

// AlignWithReport is like Align and additionally reports the match ratio.
func (a *Aligner) AlignWithReport(noisy []types.LyricSegment, cleanText string) ([]types.LyricSegment, Report, error) {
	if len(noisy) == 0 {
		return nil, Report{}, ErrNoTiming
	}

	lines := splitLines(cleanText)
	if len(lines) == 0 {
		return []types.LyricSegment{}, Report{}, nil
	}

	flat := Flatten(noisy)
	noisyNorm := make([]string, len(flat))
	for i, w := range flat {
		noisyNorm[i] = Normalize(w.Word)
	}

	// Pass 2: bounded forward scan.
	var words []*cleanWord
	for _, ln := range lines {
		words = append(words, ln.words...)
	}
	var rep Report
	rep.Total = len(words)
	cursor := 0
	for _, w := range words {
		if w.norm == "" {
			continue
		}
		for j := 0; j < a.lookahead && cursor+j < len(flat); j++ {
			n := noisyNorm[cursor+j]
			if n == "" || !a.matcher.Match(w.norm, n) {
				continue
			}
			w.start, w.end = flat[cursor+j].Start, max(flat[cursor+j].End, flat[cursor+j].Start)
			w.resolved = true
			cursor += j + 1
			rep.Matched++
			break
		}
	}

	// Pass 3: interpolate unresolved runs.
	tail := noisy[len(noisy)-1].End
	if len(flat) > 0 {
		tail = flat[len(flat)-1].End
	}
	tail += a.trailingPad
	for i := 0; i < len(words); {
		if words[i].resolved {
			i++
			continue
		}
		j := i
		for j < len(words) && !words[j].resolved {
			j++
		}
		prevEnd := noisy[0].Start
		if i > 0 {
			prevEnd = words[i-1].end
		}
		nextStart := tail
		if j < len(words) {
			nextStart = words[j].start
		}
		step := (nextStart - prevEnd) / float64(j-i)
		if step < 0 {
			step = 0
		}
		for k := i; k < j; k++ {
			words[k].start = prevEnd + float64(k-i)*step
			words[k].end = words[k].start + step
			words[k].resolved = true
		}
		i = j
	}

	// Pass 4: build segments.
	out := make([]types.LyricSegment, 0, len(lines))
	for _, ln := range lines {
		seg := types.LyricSegment{
			Text:  ln.text,
			Start: ln.words[0].start,
			End:   ln.words[len(ln.words)-1].end,
			Words: make([]types.WordTimestamp, len(ln.words)),
		}
		for k, w := range ln.words {
			seg.Words[k] = types.WordTimestamp{Word: w.text, Start: w.start, End: w.end}
		}
		out = append(out, seg)
	}

	if rep.Total > 0 {
		rep.Score = float64(rep.Matched) / float64(rep.Total) * 100
	}
	return out, rep, nil
}

// Flatten returns the words of segs in order. Segments that carry word timing
// contribute those words unchanged. Other segments are split on whitespace
// and each word gets a share of the segment proportional to its rune length.
func Flatten(segs []types.LyricSegment) []types.WordTimestamp {
	var out []types.WordTimestamp
	for _, s := range segs {
		if s.HasWords() {
			out = append(out, s.Words...)
			continue
		}
		n := utf8.RuneCountInString(s.Text)
		if n == 0 {
			continue
		}
		perChar := s.Duration() / float64(n)
		cursor := s.Start
		for _, w := range strings.Fields(s.Text) {
			d := float64(utf8.RuneCountInString(w)) * perChar
			out = append(out, types.WordTimestamp{Word: w, Start: cursor, End: cursor + d})
			cursor += d
		}
	}
	return out
}

// Normalize lower-cases s and keeps only letters, digits and whitespace.
func Normalize(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		switch {
		case unicode.IsLetter(r), unicode.IsDigit(r):
			b.WriteRune(unicode.ToLower(r))
		case unicode.IsSpace(r):
			b.WriteRune(r)
		}
	}
	return strings.TrimSpace(b.String())
}

type cleanLine struct {
	text  string
	words []*cleanWord
}

// splitLines splits text into its non-blank lines. Lines with no words are
// dropped.
func splitLines(text string) []cleanLine {
	var lines []cleanLine
	for _, raw := range strings.Split(text, "\n") {
		fields := strings.Fields(raw)
		if len(fields) == 0 {
			continue
		}
		ln := cleanLine{text: strings.TrimSpace(raw), words: make([]*cleanWord, len(fields))}
		for i, f := range fields {
			ln.words[i] = &cleanWord{text: f, norm: Normalize(f)}
		}
		lines = append(lines, ln)
	}
	return lines
}
