package pipeline

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/chetanrakshe2510/karaoke-maker/pkg/types"
)

func TestSession_DispatchDropsStaleGeneration(t *testing.T) {
	t.Parallel()

	s := NewSession("s1")
	_, first := s.Begin(context.Background())
	_, second := s.Begin(context.Background())

	if s.Dispatch(first, StageChanged{Stage: types.StageSeparating}) {
		t.Error("stale dispatch accepted")
	}
	if !s.Dispatch(second, StageChanged{Stage: types.StageSeparating}) {
		t.Error("current dispatch rejected")
	}
	if got := s.Snapshot(); got.Stage != types.StageSeparating || got.Generation != second {
		t.Errorf("state = %+v", got)
	}
}

func TestSession_BeginCancelsPreviousRun(t *testing.T) {
	t.Parallel()

	s := NewSession("s1")
	ctx1, _ := s.Begin(context.Background())
	ctx2, _ := s.Begin(context.Background())

	if !errors.Is(ctx1.Err(), context.Canceled) {
		t.Errorf("first run ctx err = %v, want canceled", ctx1.Err())
	}
	if ctx2.Err() != nil {
		t.Errorf("second run ctx err = %v, want nil", ctx2.Err())
	}
}

func TestSession_ResetIsSynchronous(t *testing.T) {
	t.Parallel()

	s := NewSession("s1")
	var hookSaw types.Stage
	s.OnReset(func() { hookSaw = s.Snapshot().Stage })

	ctx, gen := s.Begin(context.Background())
	s.Dispatch(gen, SegmentsReady{Segments: []types.LyricSegment{{Text: "x", End: 1}}})
	s.Reset()

	if ctx.Err() == nil {
		t.Error("run context not cancelled by reset")
	}
	got := s.Snapshot()
	if got.Stage != types.StageIdle || got.Segments != nil {
		t.Errorf("state after reset = %+v", got)
	}
	if hookSaw != types.StageIdle {
		t.Errorf("hook saw stage %q, want idle", hookSaw)
	}
	if s.Dispatch(gen, Completed{}) {
		t.Error("dispatch from reset run accepted")
	}
	if s.Current(gen) {
		t.Error("reset run still current")
	}
}

func TestSession_SnapshotIsIndependent(t *testing.T) {
	t.Parallel()

	s := NewSession("s1")
	_, gen := s.Begin(context.Background())
	s.Dispatch(gen, SegmentsReady{Segments: []types.LyricSegment{{Text: "a", End: 1, Words: []types.WordTimestamp{{Word: "a", End: 1}}}}})

	snap := s.Snapshot()
	snap.Segments[0].Words[0].Word = "z"
	if s.Snapshot().Segments[0].Words[0].Word != "a" {
		t.Error("snapshot shares storage with session state")
	}
}

func TestSession_Subscribe(t *testing.T) {
	t.Parallel()

	s := NewSession("s1")
	ch, cancel := s.Subscribe(8)
	defer cancel()

	_, gen := s.Begin(context.Background())
	s.Dispatch(gen, StageChanged{Stage: types.StageSeparating})

	for _, want := range []types.Stage{types.StageQueued, types.StageSeparating} {
		select {
		case u := <-ch:
			if u.State.Stage != want {
				t.Errorf("update stage = %s, want %s", u.State.Stage, want)
			}
		case <-time.After(time.Second):
			t.Fatalf("no update for %s", want)
		}
	}
}

func TestSession_SubscribeNeverBlocks(t *testing.T) {
	t.Parallel()

	s := NewSession("s1")
	ch, cancel := s.Subscribe(1)
	defer cancel()

	_, gen := s.Begin(context.Background())
	for range 50 {
		s.Dispatch(gen, ModelProgress{Loaded: 1, Total: 2})
	}
	if len(ch) != 1 {
		t.Errorf("buffered = %d, want 1", len(ch))
	}
}

func TestSession_UnsubscribeAndClose(t *testing.T) {
	t.Parallel()

	s := NewSession("s1")
	ch1, cancel1 := s.Subscribe(4)
	ch2, _ := s.Subscribe(4)

	cancel1()
	cancel1()
	if _, ok := <-ch1; ok {
		t.Error("cancelled subscription still open")
	}

	s.Close()
	for range ch2 {
	}
	ctx, gen := s.Begin(context.Background())
	if ctx.Err() == nil {
		t.Error("closed session accepted a run")
	}
	if s.Dispatch(gen, Completed{}) {
		t.Error("closed session accepted an event")
	}
	late, _ := s.Subscribe(1)
	if _, ok := <-late; ok {
		t.Error("subscription on closed session is open")
	}
}
