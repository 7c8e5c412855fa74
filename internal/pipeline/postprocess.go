package pipeline

import (
	"context"
	"errors"
	"strings"

	"go.opentelemetry.io/otel/attribute"

	"github.com/chetanrakshe2510/karaoke-maker/internal/observe"
	"github.com/chetanrakshe2510/karaoke-maker/internal/recall"
	"github.com/chetanrakshe2510/karaoke-maker/pkg/types"
)

// plan is the post-processing route chosen for a run.
type plan int

const (
	planNone plan = iota
	planPaste
	planRecall
	planPolish
)

// choosePlan picks the first applicable route: pasted text, then recall,
// then polishing. Recall falls through to polishing at run time when no
// lyrics are found.
func (r *Runner) choosePlan(in Input) plan {
	switch {
	case in.Source == types.SourcePaste && strings.TrimSpace(in.PastedLyrics) != "":
		return planPaste
	case r.recaller != nil && (in.Source == types.SourceAIRecall || (in.Source == types.SourceAuto && in.Song.Known())):
		return planRecall
	case in.Polish && r.polisher != nil:
		return planPolish
	}
	return planNone
}

// postProcess applies the chosen route to segs. Failures keep the prior
// segments and never fail the run.
func (x *run) postProcess(ctx context.Context, segs []types.LyricSegment, in Input) {
	p := x.choosePlan(in)
	if p == planNone || len(segs) == 0 {
		return
	}

	ctx, span := observe.StartSpan(ctx, "pipeline.postprocess")
	defer span.End()

	x.dispatch(ctx, StageChanged{Stage: types.StagePolishing})
	start := x.now()
	mctx := context.WithoutCancel(ctx)

	out, status := segs, StatusSkipped
	switch p {
	case planPaste:
		out, status = x.alignTo(ctx, segs, in.PastedLyrics, types.SourcePaste)
	case planRecall:
		text, err := x.recaller.Recall(ctx, in.Song.Artist, in.Song.Title)
		x.rec.Provider(mctx, "recall", "llm", ignoreNotFound(err))
		if err == nil {
			out, status = x.alignTo(ctx, segs, text, in.Source)
			break
		}
		if ctx.Err() != nil {
			break
		}
		x.log.Warn("pipeline: lyric recall failed", "artist", in.Song.Artist, "title", in.Song.Title, "err", err)
		if in.Polish && x.polisher != nil {
			out, status = x.polish(ctx, segs)
		}
	case planPolish:
		out, status = x.polish(ctx, segs)
	}

	d := x.now().Sub(start)
	x.rec.Stage(mctx, types.StagePolishing, status, d)
	span.SetAttributes(attribute.String("postprocess.status", status))
	x.dispatch(ctx, MetricsRecorded{Metrics: types.PerformanceMetrics{PolishingTime: millis(d)}})
	if status == StatusOK {
		x.dispatch(ctx, SegmentsReady{Segments: out})
	}
}

func (x *run) alignTo(ctx context.Context, segs []types.LyricSegment, text string, source types.LyricSource) ([]types.LyricSegment, string) {
	out, rep, err := x.aligner.AlignWithReport(segs, text)
	if err != nil {
		x.log.Warn("pipeline: alignment failed, keeping transcription", "err", err)
		return segs, StatusError
	}
	if len(out) == 0 {
		x.log.Warn("pipeline: clean lyrics had no lines, keeping transcription")
		return segs, StatusSkipped
	}
	x.rec.Alignment(context.WithoutCancel(ctx), source, rep.Score)
	x.dispatch(ctx, MetricsRecorded{Metrics: types.PerformanceMetrics{AlignmentScore: types.Ms(rep.Score)}})
	x.log.Info("pipeline: lyrics aligned", "matched", rep.Matched, "total", rep.Total, "score", rep.Score)
	return out, StatusOK
}

func (x *run) polish(ctx context.Context, segs []types.LyricSegment) ([]types.LyricSegment, string) {
	out, rep, err := x.polisher.PolishWithReport(ctx, segs)
	mctx := context.WithoutCancel(ctx)
	x.rec.Provider(mctx, "polish", "llm", err)
	if err != nil {
		if ctx.Err() == nil {
			x.log.Warn("pipeline: polishing failed, keeping transcription", "err", err)
		}
		return segs, StatusError
	}
	x.rec.Reverted(mctx, len(rep.Reverted))
	return out, StatusOK
}

// ignoreNotFound hides a clean miss from provider error counts.
func ignoreNotFound(err error) error {
	if errors.Is(err, recall.ErrNotFound) {
		return nil
	}
	return err
}
