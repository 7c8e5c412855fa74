package placeholder_test

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/chetanrakshe2510/karaoke-maker/pkg/provider/transcribe"
	"github.com/chetanrakshe2510/karaoke-maker/pkg/provider/transcribe/mock"
	"github.com/chetanrakshe2510/karaoke-maker/pkg/provider/transcribe/placeholder"
)

func TestTranscribe_ProgressAndLines(t *testing.T) {
	t.Parallel()
	p := placeholder.New(placeholder.WithStepDelay(0), placeholder.WithSettleDelay(0))
	l := &mock.Listener{}

	res, err := p.Transcribe(context.Background(), transcribe.Request{Duration: 140}, l)
	if err != nil {
		t.Fatalf("Transcribe: %v", err)
	}

	progress := l.Progress()
	if len(progress) != placeholder.Steps {
		t.Fatalf("progress calls = %d, want %d", len(progress), placeholder.Steps)
	}
	for i, pr := range progress {
		want := int64(i+1) * placeholder.TotalBytes / placeholder.Steps
		if pr.Loaded != want || pr.Total != placeholder.TotalBytes {
			t.Errorf("progress[%d] = %+v, want %d/%d", i, pr, want, placeholder.TotalBytes)
		}
	}
	if l.Started() != 1 {
		t.Errorf("TranscribingStarted = %d, want 1", l.Started())
	}

	if len(res.Segments) != 14 {
		t.Fatalf("segments = %d, want 14", len(res.Segments))
	}
	for i, s := range res.Segments {
		if math.Abs(s.Start-float64(i)*10) > 1e-9 || math.Abs(s.End-float64(i+1)*10) > 1e-9 {
			t.Errorf("segment[%d] = [%v, %v], want [%d, %d]", i, s.Start, s.End, i*10, (i+1)*10)
		}
	}
}

func TestTranscribe_DefaultDuration(t *testing.T) {
	t.Parallel()
	p := placeholder.New(placeholder.WithStepDelay(0), placeholder.WithSettleDelay(0))
	res, err := p.Transcribe(context.Background(), transcribe.Request{}, nil)
	if err != nil {
		t.Fatalf("Transcribe: %v", err)
	}
	if last := res.Segments[len(res.Segments)-1]; math.Abs(last.End-placeholder.DefaultDuration) > 1e-9 {
		t.Errorf("last end = %v, want %v", last.End, placeholder.DefaultDuration)
	}
}

func TestTranscribe_Cancelled(t *testing.T) {
	t.Parallel()
	p := placeholder.New(placeholder.WithStepDelay(time.Hour))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := p.Transcribe(ctx, transcribe.Request{}, nil); !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
}
