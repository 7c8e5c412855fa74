package recall_test

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/chetanrakshe2510/karaoke-maker/internal/recall"
	"github.com/chetanrakshe2510/karaoke-maker/pkg/provider/llm/mock"
)

func TestRecall_Found(t *testing.T) {
	t.Parallel()

	m := mock.Reply("```json\n{\"found\": true, \"lyrics\": \"[Verse 1]\\nLine one\\n\\n  Line two  \\n(Chorus)\\nLine three\"}\n```")
	r := recall.New(m)

	got, err := r.Recall(context.Background(), "Some Artist", "Some Song")
	if err != nil {
		t.Fatalf("Recall: %v", err)
	}
	if want := "Line one\nLine two\nLine three"; got != want {
		t.Errorf("Recall = %q, want %q", got, want)
	}

	calls := m.Calls()
	if len(calls) != 1 {
		t.Fatalf("calls = %d, want 1", len(calls))
	}
	msg := calls[0].Req.Messages[0].Content
	if !strings.Contains(msg, "Title: Some Song") || !strings.Contains(msg, "Artist: Some Artist") {
		t.Errorf("user message = %q, want title and artist", msg)
	}
	if !calls[0].Req.JSON {
		t.Error("request not in JSON mode")
	}
}

func TestRecall_NotFound(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		reply string
		title string
	}{
		{name: "not found", reply: `{"found": false, "lyrics": ""}`, title: "x"},
		{name: "found but empty", reply: `{"found": true, "lyrics": "  "}`, title: "x"},
		{name: "too short", reply: `{"found": true, "lyrics": "only one line"}`, title: "x"},
		{name: "unparseable", reply: `I think the lyrics are...`, title: "x"},
		{name: "no title", reply: `{"found": true, "lyrics": "a\nb"}`, title: "  "},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := recall.New(mock.Reply(tt.reply)).Recall(context.Background(), "", tt.title)
			if !errors.Is(err, recall.ErrNotFound) {
				t.Errorf("err = %v, want ErrNotFound", err)
			}
		})
	}
}

func TestRecall_ProviderError(t *testing.T) {
	t.Parallel()

	boom := errors.New("network down")
	_, err := recall.New(&mock.Provider{CompleteErr: boom}).Recall(context.Background(), "", "Song")
	if !errors.Is(err, boom) {
		t.Fatalf("err = %v, want %v", err, boom)
	}
	if errors.Is(err, recall.ErrNotFound) {
		t.Error("provider failure reported as ErrNotFound")
	}
}

func TestWithMinLines(t *testing.T) {
	t.Parallel()

	r := recall.New(mock.Reply(`{"found": true, "lyrics": "only one line"}`), recall.WithMinLines(1))
	got, err := r.Recall(context.Background(), "", "Song")
	if err != nil || got != "only one line" {
		t.Errorf("Recall = %q, %v; want the single line", got, err)
	}
}

func TestClean(t *testing.T) {
	t.Parallel()

	in := "[Intro]\r\nHello (hello)\r\n\r\n(x2)\r\nGoodbye"
	if got, want := recall.Clean(in), "Hello (hello)\nGoodbye"; got != want {
		t.Errorf("Clean = %q, want %q", got, want)
	}
}
