// Package phonetic provides an [align.Matcher] that tolerates the spelling
// drift typical of speech recognition ("gonna" / "gunna", "tonite" /
// "tonight").
//
// Two words match when any of the following holds:
//
//   - the default substring rule of [align.SubstringMatcher] accepts them,
//   - their Double Metaphone codes overlap and their Jaro-Winkler similarity
//     reaches the phonetic threshold (default 0.70),
//   - their Jaro-Winkler similarity alone reaches the fuzzy threshold
//     (default 0.85).
//
// Very short words only match through the substring rule; phonetic codes of
// one or two letter words collide far too often.
package phonetic

import (
	"unicode/utf8"

	"github.com/antzucaro/matchr"

	"github.com/chetanrakshe2510/karaoke-maker/internal/align"
)

const (
	defaultPhoneticThreshold = 0.70
	defaultFuzzyThreshold    = 0.85
	defaultMinLength         = 3
)

var _ align.Matcher = (*Matcher)(nil)

// Option is a functional option for configuring a [Matcher].
type Option func(*Matcher)

// WithPhoneticThreshold sets the minimum Jaro-Winkler score for words whose
// phonetic codes overlap.
func WithPhoneticThreshold(threshold float64) Option {
	return func(m *Matcher) {
		m.phoneticThreshold = threshold
	}
}

// WithFuzzyThreshold sets the minimum Jaro-Winkler score for words without a
// phonetic overlap.
func WithFuzzyThreshold(threshold float64) Option {
	return func(m *Matcher) {
		m.fuzzyThreshold = threshold
	}
}

// WithMinLength sets the rune length both words must reach before phonetic
// or fuzzy matching is attempted.
func WithMinLength(n int) Option {
	return func(m *Matcher) {
		if n > 0 {
			m.minLength = n
		}
	}
}

// Matcher matches words by sound and spelling similarity. It is stateless
// and safe for concurrent use.
type Matcher struct {
	phoneticThreshold float64
	fuzzyThreshold    float64
	minLength         int
}

// New creates a Matcher with default thresholds.
func New(opts ...Option) *Matcher {
	m := &Matcher{
		phoneticThreshold: defaultPhoneticThreshold,
		fuzzyThreshold:    defaultFuzzyThreshold,
		minLength:         defaultMinLength,
	}
	for _, o := range opts {
		o(m)
	}
	return m
}

// Match implements [align.Matcher]. Both words are expected in normalized
// form.
func (m *Matcher) Match(clean, noisy string) bool {
	if align.SubstringMatcher.Match(clean, noisy) {
		return true
	}
	if utf8.RuneCountInString(clean) < m.minLength || utf8.RuneCountInString(noisy) < m.minLength {
		return false
	}
	_, ok := m.Score(clean, noisy)
	return ok
}

// Score returns the Jaro-Winkler similarity of a and b and whether it clears
// the threshold that applies to the pair.
func (m *Matcher) Score(a, b string) (float64, bool) {
	jw := matchr.JaroWinkler(a, b, false)
	if codesOverlap(codes(a), codes(b)) {
		return jw, jw >= m.phoneticThreshold
	}
	return jw, jw >= m.fuzzyThreshold
}

func codes(word string) map[string]struct{} {
	out := make(map[string]struct{}, 2)
	p, s := matchr.DoubleMetaphone(word)
	if p != "" {
		out[p] = struct{}{}
	}
	if s != "" {
		out[s] = struct{}{}
	}
	return out
}

func codesOverlap(a, b map[string]struct{}) bool {
	if len(a) > len(b) {
		a, b = b, a
	}
	for code := range a {
		if _, ok := b[code]; ok {
			return true
		}
	}
	return false
}
