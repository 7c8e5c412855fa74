package transcribe

import (
	"regexp"
	"strings"

	"github.com/chetanrakshe2510/karaoke-maker/pkg/types"
)

const (
	// WordTolerance is the slack in seconds allowed when assigning a word to
	// the segment whose time range contains it.
	WordTolerance = 0.05

	// SentenceSeconds is the synthetic duration given to each sentence when a
	// backend returns plain text without any timing.
	SentenceSeconds = 5.0
)

var sentenceSplit = regexp.MustCompile(`[.!?\n]+`)

// RawSegment is a segment as reported by a Whisper-style backend before word
// assignment.
type RawSegment struct {
	Text  string
	Start float64
	End   float64
}

// BuildSegments turns backend output into lyric segments.
//
// Blank segments are dropped. Each remaining segment receives the words whose
// interval lies within [Start-WordTolerance, End+WordTolerance]; word and
// segment text is trimmed. When no segments are reported but text is, the
// text is split into sentences of [SentenceSeconds] each. The result is nil
// when neither yields a line.
func BuildSegments(raw []RawSegment, words []types.WordTimestamp, text string) []types.LyricSegment {
	var out []types.LyricSegment
	for _, seg := range raw {
		t := strings.TrimSpace(seg.Text)
		if t == "" {
			continue
		}
		ls := types.LyricSegment{Text: t, Start: seg.Start, End: seg.End}
		for _, w := range words {
			if w.Start >= seg.Start-WordTolerance && w.End <= seg.End+WordTolerance {
				ls.Words = append(ls.Words, types.WordTimestamp{
					Word:  strings.TrimSpace(w.Word),
					Start: w.Start,
					End:   w.End,
				})
			}
		}
		out = append(out, ls)
	}
	if len(raw) > 0 {
		return out
	}
	return SplitSentences(text)
}

// SplitSentences splits text on sentence punctuation and newlines, giving each
// non-blank sentence a consecutive [SentenceSeconds] window.
func SplitSentences(text string) []types.LyricSegment {
	var out []types.LyricSegment
	for _, line := range sentenceSplit.Split(text, -1) {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		i := float64(len(out))
		out = append(out, types.LyricSegment{
			Text:  line,
			Start: i * SentenceSeconds,
			End:   (i + 1) * SentenceSeconds,
		})
	}
	return out
}
