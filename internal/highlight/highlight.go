// Package highlight turns a timed segment list and a playback position into
// presentation state: which line is active, which lines are on screen, and
// how far each line or word has been sung.
//
// Every function here is pure. Results depend only on the arguments, so they
// may be evaluated at any time in any order, including right after a seek.
package highlight

import (
	"fmt"
	"math"
	"strings"

	"github.com/chetanrakshe2510/karaoke-maker/pkg/types"
)

const (
	// LookBehind is the number of lines shown before the active line.
	LookBehind = 1

	// LookAhead is the number of lines shown after the active line.
	LookAhead = 2
)

// WordState is the highlight state of a single timed word.
type WordState string

const (
	Sung     WordState = "sung"
	Singing  WordState = "singing"
	Upcoming WordState = "upcoming"
)

// ActiveIndex returns the lowest index i with segs[i].Start <= t <
// segs[i].End. At or past the end of the last segment it returns the last
// index. Otherwise, including before the first segment and in gaps between
// segments, it returns 0. An empty list yields -1.
func ActiveIndex(segs []types.LyricSegment, t float64) int {
	if len(segs) == 0 {
		return -1
	}
	for i, s := range segs {
		if t >= s.Start && t < s.End {
			return i
		}
	}
	if t >= segs[len(segs)-1].End {
		return len(segs) - 1
	}
	return 0
}

// VisibleWindow returns the half-open index range [from, to) of lines shown
// around active, clamped to a list of n segments.
func VisibleWindow(active, n int) (from, to int) {
	if n <= 0 {
		return 0, 0
	}
	active = Clamp(active, 0, n-1)
	return max(0, active-LookBehind), min(n, active+LookAhead+1)
}

// StateAt returns the state of a word spanning [start, end) at time t.
func StateAt(start, end, t float64) WordState {
	switch {
	case t >= end:
		return Sung
	case t >= start:
		return Singing
	default:
		return Upcoming
	}
}

// WordStates returns one state per timed word of seg. It returns nil when
// seg has no word timing.
func WordStates(seg types.LyricSegment, t float64) []WordState {
	if !seg.HasWords() {
		return nil
	}
	out := make([]WordState, len(seg.Words))
	for i, w := range seg.Words {
		out[i] = StateAt(w.Start, w.End, t)
	}
	return out
}

// FillRatio returns how much of [start, end] has been sung at time t, in
// percent. It is 0 at or before start, 100 at or after end, and 100 for a
// zero-length span.
func FillRatio(start, end, t float64) float64 {
	if t >= end {
		return 100
	}
	if t <= start {
		return 0
	}
	return Clamp((t-start)/(end-start), 0, 1) * 100
}

// Clamp limits v to [lo, hi].
func Clamp[T int | float64](v, lo, hi T) T {
	return min(max(v, lo), hi)
}

// FormatTime renders seconds as m:ss. Negative and non-finite values render
// as "0:00".
func FormatTime(seconds float64) string {
	if math.IsNaN(seconds) || math.IsInf(seconds, 0) || seconds < 0 {
		return "0:00"
	}
	total := int64(seconds)
	return fmt.Sprintf("%d:%02d", total/60, total%60)
}

// IsInstrumental reports whether a line marks an instrumental break.
func IsInstrumental(text string) bool {
	return strings.Contains(text, "♪") || strings.Contains(strings.ToLower(text), "instrumental")
}
