package polish

import (
	"strings"

	"github.com/chetanrakshe2510/karaoke-maker/pkg/types"
)

// Report describes what [Enforce] kept.
type Report struct {
	// Reverted lists the indices of segments replaced by their original.
	Reverted []int `json:"reverted,omitempty"`

	// Changed counts accepted segments whose text differs from the original.
	Changed int `json:"changed"`
}

// Enforce merges polished candidates into original segment by segment.
//
// For every index k the result is either the original segment k, unchanged,
// or a segment with the polished text and words and the original's timing.
// The original is kept when the candidate is missing, has blank text, or has
// a different number of words. Only the word count matters: a segment
// without word timing is compared by its whitespace-separated tokens.
//
// The result always has len(original) segments and never aliases either
// input.
func Enforce(original, polished []types.LyricSegment) ([]types.LyricSegment, Report) {
	var rep Report
	out := make([]types.LyricSegment, len(original))
	for k, orig := range original {
		if k >= len(polished) {
			out[k] = orig.Clone()
			rep.Reverted = append(rep.Reverted, k)
			continue
		}
		cand, ok := merge(orig, polished[k])
		if !ok {
			out[k] = orig.Clone()
			rep.Reverted = append(rep.Reverted, k)
			continue
		}
		if !cand.Equal(orig) {
			rep.Changed++
		}
		out[k] = cand
	}
	return out, rep
}

func merge(orig, cand types.LyricSegment) (types.LyricSegment, bool) {
	text := strings.TrimSpace(cand.Text)
	if text == "" {
		return types.LyricSegment{}, false
	}

	words := candidateWords(cand)
	if len(words) != types.WordCount(orig) {
		return types.LyricSegment{}, false
	}
	for _, w := range words {
		if w == "" {
			return types.LyricSegment{}, false
		}
	}

	seg := types.LyricSegment{Text: text, Start: orig.Start, End: orig.End}
	if orig.HasWords() {
		seg.Words = make([]types.WordTimestamp, len(orig.Words))
		for i, w := range orig.Words {
			seg.Words[i] = types.WordTimestamp{Word: words[i], Start: w.Start, End: w.End}
		}
	}
	return seg, true
}

func candidateWords(s types.LyricSegment) []string {
	if !s.HasWords() {
		return strings.Fields(s.Text)
	}
	out := make([]string, len(s.Words))
	for i, w := range s.Words {
		out[i] = strings.TrimSpace(w.Word)
	}
	return out
}
