package resilience

import (
	"context"
	"errors"
	"testing"

	"github.com/chetanrakshe2510/karaoke-maker/pkg/provider/llm"
	llmmock "github.com/chetanrakshe2510/karaoke-maker/pkg/provider/llm/mock"
)

func TestLLMFallback_CompleteNamed(t *testing.T) {
	t.Parallel()
	down := func() *llmmock.Provider { return &llmmock.Provider{CompleteErr: errors.New("503")} }

	tests := []struct {
		name      string
		primary   *llmmock.Provider
		secondary *llmmock.Provider
		wantName  string
		wantText  string
		wantErr   error
		wantCalls [2]int
	}{
		{
			name:      "primary answers",
			primary:   llmmock.Reply(`{"found": true}`),
			secondary: llmmock.Reply("unused"),
			wantName:  "groq",
			wantText:  `{"found": true}`,
			wantCalls: [2]int{1, 0},
		},
		{
			name:      "primary error fails over",
			primary:   down(),
			secondary: llmmock.Reply(`{"segments": []}`),
			wantName:  "ollama",
			wantText:  `{"segments": []}`,
			wantCalls: [2]int{1, 1},
		},
		{
			name:      "blank reply fails over",
			primary:   llmmock.Reply("  \n"),
			secondary: llmmock.Reply("ok"),
			wantName:  "ollama",
			wantText:  "ok",
			wantCalls: [2]int{1, 1},
		},
		{
			name:      "nil reply fails over",
			primary:   &llmmock.Provider{},
			secondary: llmmock.Reply("ok"),
			wantName:  "ollama",
			wantText:  "ok",
			wantCalls: [2]int{1, 1},
		},
		{
			name:      "all fail",
			primary:   down(),
			secondary: llmmock.Reply(""),
			wantErr:   ErrAllFailed,
			wantCalls: [2]int{1, 1},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			fb := NewLLMFallback(tt.primary, "groq", FallbackConfig{})
			fb.AddFallback("ollama", tt.secondary)

			req := llm.CompletionRequest{Messages: []llm.Message{llm.UserMessage("Never Gonna Give You Up")}, JSON: true}
			resp, name, err := fb.CompleteNamed(context.Background(), req)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("err = %v, want %v", err, tt.wantErr)
				}
			} else {
				if err != nil {
					t.Fatalf("CompleteNamed: %v", err)
				}
				if name != tt.wantName || resp.Content != tt.wantText {
					t.Errorf("got (%q, %q), want (%q, %q)", name, resp.Content, tt.wantName, tt.wantText)
				}
			}

			if got := [2]int{len(tt.primary.Calls()), len(tt.secondary.Calls())}; got != tt.wantCalls {
				t.Errorf("calls = %v, want %v", got, tt.wantCalls)
			}
			for _, c := range tt.primary.Calls() {
				if !c.Req.JSON || len(c.Req.Messages) != 1 {
					t.Errorf("request not forwarded unchanged: %+v", c.Req)
				}
			}
		})
	}
}

func TestLLMFallback_OpenBreakerSkipsBackend(t *testing.T) {
	t.Parallel()
	primary := &llmmock.Provider{CompleteErr: errors.New("rate limited")}
	secondary := llmmock.Reply("ok")
	fb := NewLLMFallback(primary, "groq", FallbackConfig{CircuitBreaker: CircuitBreakerConfig{MaxFailures: 1}})
	fb.AddFallback("ollama", secondary)

	for range 3 {
		if _, err := fb.Complete(context.Background(), llm.CompletionRequest{}); err != nil {
			t.Fatalf("Complete: %v", err)
		}
	}
	if n := len(primary.Calls()); n != 1 {
		t.Errorf("primary called %d times, want 1 before its breaker opened", n)
	}
	if got := fb.States()["groq"]; got != StateOpen {
		t.Errorf("groq breaker = %v, want open", got)
	}
}
