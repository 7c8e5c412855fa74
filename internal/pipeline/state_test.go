package pipeline

import (
	"testing"

	"github.com/chetanrakshe2510/karaoke-maker/pkg/types"
)

func running(stage types.Stage) State {
	return State{Stage: stage, Generation: 1}
}

func TestReduce_Stages(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		from State
		ev   Event
		want types.Stage
	}{
		{"run starts queued", State{Stage: types.StageIdle}, RunStarted{Generation: 1}, types.StageQueued},
		{"forward", running(types.StageQueued), StageChanged{Stage: types.StageSeparating}, types.StageSeparating},
		{"skip optional stage", running(types.StageSeparating), StageChanged{Stage: types.StageTranscribing}, types.StageTranscribing},
		{"backward ignored", running(types.StageTranscribing), StageChanged{Stage: types.StageModelDownload}, types.StageTranscribing},
		{"repeat ignored", running(types.StageSeparating), StageChanged{Stage: types.StageSeparating}, types.StageSeparating},
		{"invalid ignored", running(types.StageQueued), StageChanged{Stage: "bogus"}, types.StageQueued},
		{"idle ignores stage", State{Stage: types.StageIdle}, StageChanged{Stage: types.StageSeparating}, types.StageIdle},
		{"completed", running(types.StagePolishing), Completed{}, types.StageReady},
		{"reset", running(types.StageTranscribing), Reset{}, types.StageIdle},
		{"failed ignores stage", State{Stage: types.StageQueued, Failed: true}, StageChanged{Stage: types.StageSeparating}, types.StageQueued},
		{"failed ignores completed", State{Stage: types.StageQueued, Failed: true}, Completed{}, types.StageQueued},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := Reduce(tt.from, tt.ev).Stage; got != tt.want {
				t.Errorf("stage = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestReduce_RunStartedClearsDerivedData(t *testing.T) {
	t.Parallel()

	prev := State{
		Stage:      types.StageReady,
		Generation: 1,
		Segments:   []types.LyricSegment{{Text: "a", End: 1}},
		Stems:      &Stems{Vocals: []byte{1}},
		Strategy:   StrategyRemote,
		Metrics:    types.PerformanceMetrics{TotalTime: types.Ms(5)},
		Error:      "boom",
	}
	got := Reduce(prev, RunStarted{Generation: 2})
	if got.Stage != types.StageQueued || got.Generation != 2 {
		t.Fatalf("state = %+v, want queued gen 2", got)
	}
	if got.Segments != nil || got.Stems != nil || got.Error != "" || got.Strategy != "" || got.Metrics.TotalTime != nil {
		t.Errorf("derived data not cleared: %+v", got)
	}
}

func TestReduce_ResetKeepsGeneration(t *testing.T) {
	t.Parallel()
	got := Reduce(State{Stage: types.StageReady, Generation: 7, Error: "x"}, Reset{})
	if got.Stage != types.StageIdle || got.Generation != 7 || got.Error != "" {
		t.Errorf("state = %+v", got)
	}
}

func TestReduce_SegmentsAreCopied(t *testing.T) {
	t.Parallel()

	segs := []types.LyricSegment{{Text: "a b", End: 2, Words: []types.WordTimestamp{{Word: "a", End: 1}, {Word: "b", Start: 1, End: 2}}}}
	got := Reduce(running(types.StageTranscribing), SegmentsReady{Segments: segs, Strategy: StrategyLocal})
	segs[0].Words[0].Word = "z"
	if got.Segments[0].Words[0].Word != "a" {
		t.Error("state aliases event segments")
	}
	if got.Strategy != StrategyLocal {
		t.Errorf("strategy = %q, want local", got.Strategy)
	}

	empty := Reduce(running(types.StageTranscribing), SegmentsReady{})
	if empty.Segments == nil || len(empty.Segments) != 0 {
		t.Errorf("segments = %#v, want empty non-nil", empty.Segments)
	}
}

func TestReduce_Progress(t *testing.T) {
	t.Parallel()

	s := Reduce(running(types.StageQueued), SeparationProgress{QueuePosition: 3, Phase: "Waiting"})
	if s.Progress.QueuePosition != 3 || s.Progress.Phase != "Waiting" {
		t.Fatalf("progress = %+v", s.Progress)
	}
	s = Reduce(s, StageChanged{Stage: types.StageModelDownload})
	if s.Progress != (Progress{}) {
		t.Errorf("progress not cleared on stage change: %+v", s.Progress)
	}
	s = Reduce(s, ModelProgress{Loaded: 5, Total: 10})
	if s.Progress.Loaded != 5 || s.Progress.Total != 10 {
		t.Errorf("progress = %+v, want 5/10", s.Progress)
	}
	s = Reduce(s, SeparationProgress{QueuePosition: 9})
	if s.Progress.QueuePosition != 0 {
		t.Error("separation progress accepted after separation")
	}

	s = Reduce(running(types.StagePolishing), ModelProgress{Loaded: 1, Total: 2})
	if s.Progress.Total != 0 {
		t.Error("model progress accepted while polishing")
	}
}

func TestReduce_ErrorOverlay(t *testing.T) {
	t.Parallel()

	soft := Reduce(running(types.StageTranscribing), ErrorRaised{Message: "remote failed"})
	if soft.Error != "remote failed" || soft.Failed {
		t.Fatalf("soft error = %+v", soft)
	}
	if Reduce(soft, Completed{}).Stage != types.StageReady {
		t.Error("soft error blocked completion")
	}

	hard := Reduce(running(types.StageQueued), ErrorRaised{Message: "no audio", Terminal: true})
	if !hard.Failed {
		t.Fatal("terminal error did not fail the run")
	}
	hard = Reduce(hard, MetricsRecorded{Metrics: types.PerformanceMetrics{TotalTime: types.Ms(3)}})
	if hard.Metrics.TotalTime == nil || *hard.Metrics.TotalTime != 3 {
		t.Error("metrics not recorded on failed run")
	}
}

func TestReduce_MetricsAccumulate(t *testing.T) {
	t.Parallel()

	s := running(types.StageSeparating)
	s = Reduce(s, MetricsRecorded{Metrics: types.PerformanceMetrics{SeparationTime: types.Ms(100)}})
	s = Reduce(s, MetricsRecorded{Metrics: types.PerformanceMetrics{SeparationTime: types.Ms(20), TranscriptionTime: types.Ms(7)}})
	if *s.Metrics.SeparationTime != 120 || *s.Metrics.TranscriptionTime != 7 {
		t.Errorf("metrics = sep %v trans %v", *s.Metrics.SeparationTime, *s.Metrics.TranscriptionTime)
	}
}

func TestReduce_DoesNotMutateInput(t *testing.T) {
	t.Parallel()

	in := State{Stage: types.StageTranscribing, Generation: 1, Segments: []types.LyricSegment{{Text: "keep"}}}
	_ = Reduce(in, SegmentsReady{Segments: []types.LyricSegment{{Text: "new"}}})
	_ = Reduce(in, Completed{})
	if in.Stage != types.StageTranscribing || in.Segments[0].Text != "keep" {
		t.Errorf("input mutated: %+v", in)
	}
}
