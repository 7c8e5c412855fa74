package config_test

import (
	"strings"
	"testing"

	"github.com/chetanrakshe2510/karaoke-maker/internal/config"
)

func TestValidate_Errors(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		yaml string
		want []string
	}{
		{
			name: "invalid log level",
			yaml: "server:\n  log_level: verbose\n",
			want: []string{"log_level"},
		},
		{
			name: "negative upload size",
			yaml: "server:\n  max_upload_mb: -1\n",
			want: []string{"max_upload_mb"},
		},
		{
			name: "incomplete tls",
			yaml: "server:\n  tls:\n    cert_file: cert.pem\n",
			want: []string{"cert_file and key_file"},
		},
		{
			name: "transcription entry without name",
			yaml: "providers:\n  transcription:\n    - model: whisper-1\n",
			want: []string{"providers.transcription[0].name is required"},
		},
		{
			name: "duplicate transcription entry",
			yaml: `
providers:
  transcription:
    - name: groq
      model: whisper-large-v3
    - name: groq
      model: whisper-large-v3
`,
			want: []string{"duplicates"},
		},
		{
			name: "local without provider",
			yaml: "pipeline:\n  enable_local: true\n",
			want: []string{"local_transcription"},
		},
		{
			name: "invalid lyric source",
			yaml: "pipeline:\n  lyric_source: lyricsdb\n",
			want: []string{"lyric_source"},
		},
		{
			name: "invalid quality",
			yaml: "pipeline:\n  quality: best\n",
			want: []string{"quality"},
		},
		{
			name: "negative durations",
			yaml: "pipeline:\n  placeholder_step: -1s\n  default_duration: -5\n",
			want: []string{"placeholder_step", "default_duration"},
		},
		{
			name: "negative breaker",
			yaml: "pipeline:\n  circuit_breaker:\n    max_failures: -2\n",
			want: []string{"circuit_breaker"},
		},
		{
			name: "bad alignment",
			yaml: "alignment:\n  lookahead: -1\n  trailing_pad: -2\n  matcher: fuzzy\n",
			want: []string{"lookahead", "trailing_pad", "matcher"},
		},
		{
			name: "negative poll interval",
			yaml: "playback:\n  poll_interval: -16ms\n",
			want: []string{"poll_interval"},
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			_, err := config.LoadFromReader(strings.NewReader(tc.yaml))
			if err == nil {
				t.Fatal("expected validation error, got nil")
			}
			for _, w := range tc.want {
				if !strings.Contains(err.Error(), w) {
					t.Errorf("error should mention %q, got: %v", w, err)
				}
			}
		})
	}
}

func TestValidate_CollectsAllErrors(t *testing.T) {
	t.Parallel()
	yaml := `
server:
  log_level: loud
pipeline:
  quality: best
alignment:
  matcher: fuzzy
`
	_, err := config.LoadFromReader(strings.NewReader(yaml))
	if err == nil {
		t.Fatal("expected error, got nil")
	}
	if got := strings.Count(err.Error(), "\n") + 1; got != 3 {
		t.Errorf("expected 3 joined errors, got %d: %v", got, err)
	}
}

func TestValidate_UnknownProviderNameIsWarningOnly(t *testing.T) {
	t.Parallel()
	yaml := `
providers:
  separation:
    name: spleeter
  transcription:
    - name: deepgram
  polish:
    name: my-llm
`
	if _, err := config.LoadFromReader(strings.NewReader(yaml)); err != nil {
		t.Fatalf("unknown provider names should only warn, got: %v", err)
	}
}

func TestValidate_DistinctTranscriptionEntries(t *testing.T) {
	t.Parallel()
	yaml := `
providers:
  transcription:
    - name: whisper
      base_url: http://gpu-a:8000
    - name: whisper
      base_url: http://gpu-b:8000
`
	if _, err := config.LoadFromReader(strings.NewReader(yaml)); err != nil {
		t.Fatalf("same provider at different endpoints should be valid, got: %v", err)
	}
}

func TestValidate_PolishWithoutProviderIsWarningOnly(t *testing.T) {
	t.Parallel()
	if _, err := config.LoadFromReader(strings.NewReader("pipeline:\n  polish: true\n  lyric_source: ai-recall\n")); err != nil {
		t.Fatalf("missing llm should only warn, got: %v", err)
	}
}
