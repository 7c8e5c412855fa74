// Package types defines the timed-unit model shared by every karaoke-maker
// package: words and lyric lines with timestamps, pipeline stages, and the
// per-run performance metrics.
//
// These types form the lingua franca between transcription providers, the
// alignment algorithm, the pipeline state machine, and the highlight resolver.
// All timestamps are in seconds relative to the start of the audio.
package types

import (
	"errors"
	"fmt"
	"strings"
)

// WordTimestamp is a single word bound to a time interval.
// A valid word satisfies End >= Start.
type WordTimestamp struct {
	Word  string  `json:"word"`
	Start float64 `json:"start"`
	End   float64 `json:"end"`
}

// LyricSegment is a contiguous timed lyric line. When Words is non-empty and
// the segment has passed through alignment, Start equals Words[0].Start and
// End equals the last word's End.
type LyricSegment struct {
	Text  string          `json:"text"`
	Start float64         `json:"start"`
	End   float64         `json:"end"`
	Words []WordTimestamp `json:"words,omitempty"`
}

// Duration returns End - Start.
func (s LyricSegment) Duration() float64 { return s.End - s.Start }

// HasWords reports whether s carries word-level timing.
func (s LyricSegment) HasWords() bool { return len(s.Words) > 0 }

// Clone returns a deep copy of s. The Words slice is never shared.
func (s LyricSegment) Clone() LyricSegment {
	out := s
	if s.Words != nil {
		out.Words = make([]WordTimestamp, len(s.Words))
		copy(out.Words, s.Words)
	}
	return out
}

// Equal reports whether s and o carry identical text, timing and words.
func (s LyricSegment) Equal(o LyricSegment) bool {
	if s.Text != o.Text || s.Start != o.Start || s.End != o.End || len(s.Words) != len(o.Words) {
		return false
	}
	for i := range s.Words {
		if s.Words[i] != o.Words[i] {
			return false
		}
	}
	return true
}

// CloneSegments deep-copies segs. A nil input yields a nil output.
func CloneSegments(segs []LyricSegment) []LyricSegment {
	if segs == nil {
		return nil
	}
	out := make([]LyricSegment, len(segs))
	for i, s := range segs {
		out[i] = s.Clone()
	}
	return out
}

// WordCount returns the number of timed words in s, falling back to the
// whitespace-separated token count of Text when no word timing exists.
func WordCount(s LyricSegment) int {
	if len(s.Words) > 0 {
		return len(s.Words)
	}
	return len(strings.Fields(s.Text))
}

// Validate checks the structural invariants of a segment list: every word has
// End >= Start, every segment has End >= Start, and segments are ordered by
// non-decreasing Start. All violations are reported in a joined error.
func Validate(segs []LyricSegment) error {
	var errs []error
	for i, s := range segs {
		if s.End < s.Start {
			errs = append(errs, fmt.Errorf("segments[%d]: end %.3f before start %.3f", i, s.End, s.Start))
		}
		if i > 0 && s.Start < segs[i-1].Start {
			errs = append(errs, fmt.Errorf("segments[%d]: start %.3f before previous start %.3f", i, s.Start, segs[i-1].Start))
		}
		for j, w := range s.Words {
			if w.End < w.Start {
				errs = append(errs, fmt.Errorf("segments[%d].words[%d] %q: end %.3f before start %.3f", i, j, w.Word, w.End, w.Start))
			}
		}
	}
	return errors.Join(errs...)
}

// Stage is the global progress of a pipeline run. Exactly one stage is active
// at a time.
type Stage string

const (
	StageIdle          Stage = "idle"
	StageQueued        Stage = "queued"
	StageSeparating    Stage = "separating"
	StageModelDownload Stage = "model-download"
	StageTranscribing  Stage = "transcribing"
	StagePolishing     Stage = "polishing"
	StageReady         Stage = "ready"
)

// Order returns the position of s in the forward stage sequence, or -1 for an
// unknown stage.
func (s Stage) Order() int {
	switch s {
	case StageIdle:
		return 0
	case StageQueued:
		return 1
	case StageSeparating:
		return 2
	case StageModelDownload:
		return 3
	case StageTranscribing:
		return 4
	case StagePolishing:
		return 5
	case StageReady:
		return 6
	}
	return -1
}

// IsValid reports whether s is a recognised stage.
func (s Stage) IsValid() bool { return s.Order() >= 0 }

// Busy reports whether a run is in flight in stage s.
func (s Stage) Busy() bool {
	return s != StageIdle && s != StageReady && s.IsValid()
}

// LyricSource governs whether alignment runs and against what clean text.
type LyricSource string

const (
	// SourceAuto relies on transcription, recalling lyrics only when the song
	// title is known.
	SourceAuto LyricSource = "auto"

	// SourceAIRecall fetches known lyrics by title and artist.
	SourceAIRecall LyricSource = "ai-recall"

	// SourcePaste aligns user-supplied clean lyrics.
	SourcePaste LyricSource = "paste"
)

// IsValid reports whether l is a recognised lyric source.
func (l LyricSource) IsValid() bool {
	switch l {
	case SourceAuto, SourceAIRecall, SourcePaste:
		return true
	}
	return false
}

// Quality is the speed/accuracy hint forwarded to transcription providers.
type Quality string

const (
	QualityFast     Quality = "fast"
	QualityAccurate Quality = "accurate"
)

// IsValid reports whether q is a recognised quality hint.
func (q Quality) IsValid() bool { return q == QualityFast || q == QualityAccurate }

// SongMetadata identifies the song for lyric recall.
type SongMetadata struct {
	Title  string `json:"title"`
	Artist string `json:"artist"`
}

// Known reports whether a title is available.
func (m SongMetadata) Known() bool { return strings.TrimSpace(m.Title) != "" }

// PerformanceMetrics accumulates per-run timings in milliseconds. A nil field
// means the corresponding stage has not completed in this run.
type PerformanceMetrics struct {
	SeparationTime    *float64 `json:"separationTime,omitempty"`
	TranscriptionTime *float64 `json:"transcriptionTime,omitempty"`
	PolishingTime     *float64 `json:"polishingTime,omitempty"`

	// AlignmentScore is the percentage (0-100) of clean words anchored to a
	// transcribed word.
	AlignmentScore *float64 `json:"alignmentScore,omitempty"`
	TotalTime      *float64 `json:"totalTime,omitempty"`
}

// Merge adds every non-nil field of p into m. Fields absent in m are created.
func (m PerformanceMetrics) Merge(p PerformanceMetrics) PerformanceMetrics {
	m.SeparationTime = addOpt(m.SeparationTime, p.SeparationTime)
	m.TranscriptionTime = addOpt(m.TranscriptionTime, p.TranscriptionTime)
	m.PolishingTime = addOpt(m.PolishingTime, p.PolishingTime)
	m.AlignmentScore = addOpt(m.AlignmentScore, p.AlignmentScore)
	m.TotalTime = addOpt(m.TotalTime, p.TotalTime)
	return m
}

// Ms returns a pointer to v for building partial PerformanceMetrics literals.
func Ms(v float64) *float64 { return &v }

func addOpt(a, b *float64) *float64 {
	switch {
	case b == nil:
		return a
	case a == nil:
		v := *b
		return &v
	default:
		v := *a + *b
		return &v
	}
}
