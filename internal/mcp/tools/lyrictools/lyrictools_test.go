package lyrictools

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/chetanrakshe2510/karaoke-maker/internal/align"
	"github.com/chetanrakshe2510/karaoke-maker/internal/highlight"
	"github.com/chetanrakshe2510/karaoke-maker/internal/mcp/tools"
	"github.com/chetanrakshe2510/karaoke-maker/pkg/types"
)

const noisyJSON = `[
	{"text":"helo wurld","start":1,"end":3,"words":[
		{"word":"helo","start":1,"end":2},{"word":"world","start":2,"end":3}]},
	{"text":"good bye","start":4,"end":6}
]`

func toolByName(t *testing.T, name string) tools.Tool {
	t.Helper()
	for _, tool := range Tools(nil) {
		if tool.Name == name {
			return tool
		}
	}
	t.Fatalf("tool %q not found", name)
	return tools.Tool{}
}

func TestTools_Definitions(t *testing.T) {
	t.Parallel()
	want := []string{"align_lyrics", "resolve_highlight", "validate_segments", "format_time"}
	got := Tools(align.New())
	if len(got) != len(want) {
		t.Fatalf("got %d tools, want %d", len(got), len(want))
	}
	for i, tool := range got {
		if tool.Name != want[i] {
			t.Errorf("tools[%d] = %q, want %q", i, tool.Name, want[i])
		}
		if tool.Handler == nil {
			t.Errorf("%s: nil handler", tool.Name)
		}
		if tool.Parameters["type"] != "object" {
			t.Errorf("%s: schema type = %v, want object", tool.Name, tool.Parameters["type"])
		}
		if tool.DeclaredMax <= 0 {
			t.Errorf("%s: DeclaredMax = %d", tool.Name, tool.DeclaredMax)
		}
	}
}

func TestAlignLyrics(t *testing.T) {
	t.Parallel()
	tool := toolByName(t, "align_lyrics")
	args := `{"segments":` + noisyJSON + `,"lyrics":"Hello world\n\ngood bye"}`

	out, err := tool.Handler(context.Background(), args)
	if err != nil {
		t.Fatalf("align_lyrics: %v", err)
	}
	var res alignResult
	if err := json.Unmarshal([]byte(out), &res); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(res.Segments) != 2 {
		t.Fatalf("got %d segments, want 2", len(res.Segments))
	}
	if res.Segments[0].Text != "Hello world" || res.Segments[0].Start != 1 || res.Segments[0].End != 3 {
		t.Errorf("segments[0] = %+v", res.Segments[0])
	}
	if res.Report.Total != 4 || res.Report.Matched != 3 {
		t.Errorf("report = %+v, want 3 of 4 matched", res.Report)
	}
}

func TestAlignLyrics_Errors(t *testing.T) {
	t.Parallel()
	tool := toolByName(t, "align_lyrics")
	tests := []struct {
		name string
		args string
		want string
	}{
		{"bad json", `{`, "parse arguments"},
		{"no segments", `{"segments":[],"lyrics":"a"}`, "must not be empty"},
		{"invalid timing", `{"segments":[{"text":"a","start":3,"end":1}],"lyrics":"a"}`, "invalid segments"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := tool.Handler(context.Background(), tc.args)
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.HasPrefix(err.Error(), "lyrictools:") || !strings.Contains(err.Error(), tc.want) {
				t.Errorf("error = %q, want prefix lyrictools: and %q", err, tc.want)
			}
		})
	}
}

func TestResolveHighlight(t *testing.T) {
	t.Parallel()
	tool := toolByName(t, "resolve_highlight")

	out, err := tool.Handler(context.Background(), `{"segments":`+noisyJSON+`,"time":4.5}`)
	if err != nil {
		t.Fatalf("resolve_highlight: %v", err)
	}
	var f highlight.Frame
	if err := json.Unmarshal([]byte(out), &f); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if f.Active != 1 || f.TimeLabel != "0:04" {
		t.Errorf("frame = %+v, want active 1 at 0:04", f)
	}

	if _, err := tool.Handler(context.Background(), `{"segments":[]}`); err == nil {
		t.Error("missing time should fail")
	}
}

func TestValidateSegments(t *testing.T) {
	t.Parallel()
	tool := toolByName(t, "validate_segments")
	tests := []struct {
		name      string
		segs      []types.LyricSegment
		wantValid bool
	}{
		{"ordered", []types.LyricSegment{{Text: "a", Start: 0, End: 1}, {Text: "b", Start: 1, End: 2}}, true},
		{"empty", nil, true},
		{"reversed", []types.LyricSegment{{Text: "a", Start: 2, End: 1}}, false},
		{"unordered", []types.LyricSegment{{Text: "a", Start: 3, End: 4}, {Text: "b", Start: 1, End: 2}}, false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			b, _ := json.Marshal(map[string]any{"segments": tc.segs})
			out, err := tool.Handler(context.Background(), string(b))
			if err != nil {
				t.Fatalf("validate_segments: %v", err)
			}
			var res validateResult
			if err := json.Unmarshal([]byte(out), &res); err != nil {
				t.Fatalf("unmarshal: %v", err)
			}
			if res.Valid != tc.wantValid {
				t.Errorf("valid = %v, want %v (%s)", res.Valid, tc.wantValid, res.Errors)
			}
		})
	}
}

func TestFormatTime(t *testing.T) {
	t.Parallel()
	tool := toolByName(t, "format_time")
	tests := []struct {
		args string
		want string
	}{
		{`{"seconds":0}`, "0:00"},
		{`{"seconds":65.9}`, "1:05"},
		{`{"seconds":-3}`, "0:00"},
	}
	for _, tc := range tests {
		out, err := tool.Handler(context.Background(), tc.args)
		if err != nil {
			t.Fatalf("format_time(%s): %v", tc.args, err)
		}
		var res formatResult
		if err := json.Unmarshal([]byte(out), &res); err != nil {
			t.Fatalf("unmarshal: %v", err)
		}
		if res.Label != tc.want {
			t.Errorf("format_time(%s) = %q, want %q", tc.args, res.Label, tc.want)
		}
	}

	if _, err := tool.Handler(context.Background(), `{}`); err == nil {
		t.Error("missing seconds should fail")
	}
}
