// Package pipeline drives one lyric run from uploaded audio to timed segments
// ready for playback.
//
// A run moves through the stages idle → queued → separating →
// (model-download) → transcribing → (polishing) → ready. State lives in a
// [Session] and changes only through [Reduce], a pure function of the
// previous [State] and an [Event]. Every event a run dispatches is tagged
// with the run's generation; events from a superseded or reset run are
// dropped so a late provider reply can never overwrite fresh state.
//
// Transcription tries an ordered list of [Strategy] values. The placeholder
// strategy always runs last, so a run reaches ready even when every real
// provider fails; the failure is still surfaced through [State.Error].
package pipeline

import (
	"github.com/chetanrakshe2510/karaoke-maker/pkg/types"
)

// Progress carries the fine-grained progress of the current stage.
type Progress struct {
	// QueuePosition is the separation job's place in the remote queue.
	QueuePosition int `json:"queuePosition"`

	// Phase is a short human-readable status line.
	Phase string `json:"phase,omitempty"`

	// Loaded and Total report model download progress in bytes.
	Loaded int64 `json:"loaded"`
	Total  int64 `json:"total"`
}

// Stems holds the separated tracks of the current run. The byte slices are
// shared between snapshots and must be treated as read-only.
type Stems struct {
	Vocals       []byte
	Instrumental []byte
}

// State is the observable state of a session.
type State struct {
	// Stage is the active pipeline stage.
	Stage types.Stage `json:"stage"`

	// Generation identifies the run this state belongs to.
	Generation uint64 `json:"generation"`

	Progress Progress `json:"progress"`

	// Segments is the current timed lyric list. Replaced wholesale by each
	// stage that produces segments.
	Segments []types.LyricSegment `json:"segments"`

	// Stems is nil until separation finished.
	Stems *Stems `json:"-"`

	// Strategy names the transcription strategy that produced Segments.
	Strategy string `json:"strategy,omitempty"`

	Metrics types.PerformanceMetrics `json:"metrics"`

	// Error is a user-visible message. It may be set while the run still
	// reaches ready.
	Error string `json:"error,omitempty"`

	// Failed marks a terminal failure. A failed run accepts no further
	// stage changes.
	Failed bool `json:"failed"`
}

// Clone returns a copy of s that shares no segment storage with it.
func (s State) Clone() State {
	s.Segments = types.CloneSegments(s.Segments)
	if s.Stems != nil {
		st := *s.Stems
		s.Stems = &st
	}
	return s
}

// Event is a state transition request. The concrete event types in this
// package are the only implementations.
type Event interface {
	isEvent()
}

// RunStarted begins a new run. All derived data of the previous run is
// cleared and the stage becomes queued.
type RunStarted struct {
	Generation uint64
}

// StageChanged advances the stage. Backward and repeated changes are ignored.
type StageChanged struct {
	Stage types.Stage
}

// SeparationProgress reports separation queue position and phase text.
type SeparationProgress struct {
	QueuePosition int
	Phase         string
}

// ModelProgress reports model download progress.
type ModelProgress struct {
	Loaded, Total int64
}

// StemsReady stores the separated tracks.
type StemsReady struct {
	Stems Stems
}

// SegmentsReady replaces the segment list.
type SegmentsReady struct {
	Segments []types.LyricSegment

	// Strategy, when non-empty, records the transcription strategy that
	// produced the segments.
	Strategy string
}

// MetricsRecorded adds a partial measurement to the run metrics.
type MetricsRecorded struct {
	Metrics types.PerformanceMetrics
}

// ErrorRaised sets the error overlay. Terminal errors also mark the run as
// failed.
type ErrorRaised struct {
	Message  string
	Terminal bool
}

// Completed moves the run to ready.
type Completed struct{}

// Reset returns the session to idle and clears all derived data.
type Reset struct{}

func (RunStarted) isEvent()         {}
func (StageChanged) isEvent()       {}
func (SeparationProgress) isEvent() {}
func (ModelProgress) isEvent()      {}
func (StemsReady) isEvent()         {}
func (SegmentsReady) isEvent()      {}
func (MetricsRecorded) isEvent()    {}
func (ErrorRaised) isEvent()        {}
func (Completed) isEvent()          {}
func (Reset) isEvent()              {}

// Reduce returns the state that results from applying ev to s. It never
// mutates s and never aliases segment storage of ev into the result.
//
// An idle session only accepts RunStarted and Reset. A failed run only
// accepts RunStarted, Reset and further metrics.
func Reduce(s State, ev Event) State {
	switch e := ev.(type) {
	case Reset:
		return State{Stage: types.StageIdle, Generation: s.Generation}
	case RunStarted:
		return State{Stage: types.StageQueued, Generation: e.Generation}
	}

	if s.Stage == types.StageIdle {
		return s
	}
	if s.Failed {
		if e, ok := ev.(MetricsRecorded); ok {
			s.Metrics = s.Metrics.Merge(e.Metrics)
		}
		return s
	}

	switch e := ev.(type) {
	case StageChanged:
		if !e.Stage.IsValid() || e.Stage.Order() <= s.Stage.Order() {
			return s
		}
		s.Stage = e.Stage
		s.Progress = Progress{}
	case SeparationProgress:
		if s.Stage.Order() > types.StageSeparating.Order() {
			return s
		}
		s.Progress.QueuePosition = e.QueuePosition
		if e.Phase != "" {
			s.Progress.Phase = e.Phase
		}
	case ModelProgress:
		if !s.Stage.Busy() || s.Stage.Order() > types.StageTranscribing.Order() {
			return s
		}
		s.Progress.Loaded, s.Progress.Total = e.Loaded, e.Total
	case StemsReady:
		st := e.Stems
		s.Stems = &st
	case SegmentsReady:
		if s.Stage == types.StageReady {
			return s
		}
		s.Segments = types.CloneSegments(e.Segments)
		if s.Segments == nil {
			s.Segments = []types.LyricSegment{}
		}
		if e.Strategy != "" {
			s.Strategy = e.Strategy
		}
	case MetricsRecorded:
		s.Metrics = s.Metrics.Merge(e.Metrics)
	case ErrorRaised:
		s.Error = e.Message
		if e.Terminal {
			s.Failed = true
			s.Progress = Progress{}
		}
	case Completed:
		s.Stage = types.StageReady
		s.Progress = Progress{}
	}
	return s
}
