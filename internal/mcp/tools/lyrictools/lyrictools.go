// Package lyrictools provides built-in MCP tools over the lyric alignment and
// highlight resolution core.
//
// Four tools are exported via [Tools]:
//   - "align_lyrics"      maps clean lyric text onto timed transcript segments.
//   - "resolve_highlight" computes the highlight frame at a playback time.
//   - "validate_segments" checks the timing invariants of a segment list.
//   - "format_time"       renders seconds as m:ss.
//
// All handlers are pure and safe for concurrent use.
package lyrictools

import (
	"context"
	"errors"
	"fmt"

	"github.com/chetanrakshe2510/karaoke-maker/internal/align"
	"github.com/chetanrakshe2510/karaoke-maker/internal/highlight"
	"github.com/chetanrakshe2510/karaoke-maker/internal/mcp/tools"
	"github.com/chetanrakshe2510/karaoke-maker/pkg/types"
)

const pkg = "lyrictools"

type alignArgs struct {
	Segments []types.LyricSegment `json:"segments"`
	Lyrics   string               `json:"lyrics"`
}

type alignResult struct {
	Segments []types.LyricSegment `json:"segments"`
	Report   align.Report         `json:"report"`
}

type highlightArgs struct {
	Segments []types.LyricSegment `json:"segments"`
	Time     *float64             `json:"time"`
}

type validateResult struct {
	Valid  bool   `json:"valid"`
	Errors string `json:"errors,omitempty"`
}

type formatArgs struct {
	Seconds *float64 `json:"seconds"`
}

type formatResult struct {
	Label string `json:"label"`
}

// segmentSchema is the JSON Schema of a timed lyric line.
var segmentSchema = map[string]any{
	"type": "object",
	"properties": map[string]any{
		"text":  map[string]any{"type": "string"},
		"start": map[string]any{"type": "number"},
		"end":   map[string]any{"type": "number"},
		"words": map[string]any{
			"type": "array",
			"items": map[string]any{
				"type": "object",
				"properties": map[string]any{
					"word":  map[string]any{"type": "string"},
					"start": map[string]any{"type": "number"},
					"end":   map[string]any{"type": "number"},
				},
				"required": []string{"word", "start", "end"},
			},
		},
	},
	"required": []string{"text", "start", "end"},
}

func segmentsProperty(desc string) map[string]any {
	return map[string]any{"type": "array", "description": desc, "items": segmentSchema}
}

// Tools returns the lyric tools. Alignment uses a; nil means align.New().
func Tools(a *align.Aligner) []tools.Tool {
	if a == nil {
		a = align.New()
	}
	return []tools.Tool{
		{
			Name:        "align_lyrics",
			Description: "Align clean lyric text, one line per lyric line, onto timed transcript segments. Returns one timed segment per non-blank line and a match report.",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"segments": segmentsProperty("Timed transcript segments, e.g. from speech recognition."),
					"lyrics":   map[string]any{"type": "string", "description": "Clean lyrics, newline separated."},
				},
				"required": []string{"segments", "lyrics"},
			},
			Handler:     alignHandler(a),
			DeclaredMax: 2000,
		},
		{
			Name:        "resolve_highlight",
			Description: "Compute the karaoke highlight frame for a playback time: active line, visible window and per-word states.",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"segments": segmentsProperty("Timed lyric lines in playback order."),
					"time":     map[string]any{"type": "number", "description": "Playback position in seconds."},
				},
				"required": []string{"segments", "time"},
			},
			Handler:     highlightHandler,
			DeclaredMax: 500,
		},
		{
			Name:        "validate_segments",
			Description: "Check that every segment and word ends after it starts and that segments are ordered by start time.",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"segments": segmentsProperty("Timed lyric lines to check."),
				},
				"required": []string{"segments"},
			},
			Handler:     validateHandler,
			DeclaredMax: 500,
		},
		{
			Name:        "format_time",
			Description: "Render a number of seconds as m:ss.",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"seconds": map[string]any{"type": "number"},
				},
				"required": []string{"seconds"},
			},
			Handler:     formatHandler,
			DeclaredMax: 100,
		},
	}
}

func alignHandler(a *align.Aligner) func(context.Context, string) (string, error) {
	return func(_ context.Context, args string) (string, error) {
		var in alignArgs
		if err := tools.Decode(pkg, args, &in); err != nil {
			return "", err
		}
		if err := types.Validate(in.Segments); err != nil {
			return "", fmt.Errorf("%s: invalid segments: %w", pkg, err)
		}
		segs, rep, err := a.AlignWithReport(in.Segments, in.Lyrics)
		if errors.Is(err, align.ErrNoTiming) {
			return "", fmt.Errorf("%s: segments must not be empty", pkg)
		}
		if err != nil {
			return "", fmt.Errorf("%s: %w", pkg, err)
		}
		return tools.Encode(pkg, alignResult{Segments: segs, Report: rep})
	}
}

func highlightHandler(_ context.Context, args string) (string, error) {
	var in highlightArgs
	if err := tools.Decode(pkg, args, &in); err != nil {
		return "", err
	}
	if in.Time == nil {
		return "", fmt.Errorf("%s: time is required", pkg)
	}
	return tools.Encode(pkg, highlight.Resolve(in.Segments, *in.Time))
}

func validateHandler(_ context.Context, args string) (string, error) {
	var in alignArgs
	if err := tools.Decode(pkg, args, &in); err != nil {
		return "", err
	}
	res := validateResult{Valid: true}
	if err := types.Validate(in.Segments); err != nil {
		res = validateResult{Errors: err.Error()}
	}
	return tools.Encode(pkg, res)
}

func formatHandler(_ context.Context, args string) (string, error) {
	var in formatArgs
	if err := tools.Decode(pkg, args, &in); err != nil {
		return "", err
	}
	if in.Seconds == nil {
		return "", fmt.Errorf("%s: seconds is required", pkg)
	}
	return tools.Encode(pkg, formatResult{Label: highlight.FormatTime(*in.Seconds)})
}
