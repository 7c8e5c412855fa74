package demucs_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/chetanrakshe2510/karaoke-maker/pkg/provider/separation"
	"github.com/chetanrakshe2510/karaoke-maker/pkg/provider/separation/demucs"
)

type recListener struct {
	mu     sync.Mutex
	queue  []int
	phases []string
}

func (r *recListener) QueuePosition(pos int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.queue = append(r.queue, pos)
}

func (r *recListener) Phase(msg string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.phases = append(r.phases, msg)
}

// newService fakes a Demucs service that needs polls status calls before the
// job completes. Queue positions count down from polls.
func newService(t *testing.T, polls int, finalStatus string) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	var calls atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc("POST /separate", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer secret" {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		if _, _, err := r.FormFile("audio"); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"id": "job1", "status": "queued", "queue_position": polls})
	})
	mux.HandleFunc("GET /jobs/job1", func(w http.ResponseWriter, _ *http.Request) {
		n := int(calls.Add(1))
		resp := map[string]any{"id": "job1", "status": "queued", "queue_position": polls - n}
		if n >= polls {
			resp["status"] = finalStatus
			resp["queue_position"] = 0
			resp["stems"] = map[string]string{"vocals": "/stems/vocals.wav", "instrumental": "stems/inst.wav"}
			resp["error"] = "gpu exploded"
		}
		_ = json.NewEncoder(w).Encode(resp)
	})
	mux.HandleFunc("GET /stems/vocals.wav", func(w http.ResponseWriter, _ *http.Request) { _, _ = w.Write([]byte("VOX")) })
	mux.HandleFunc("GET /stems/inst.wav", func(w http.ResponseWriter, _ *http.Request) { _, _ = w.Write([]byte("INST")) })
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv, &calls
}

func TestSeparate_PollsAndDownloads(t *testing.T) {
	t.Parallel()
	srv, calls := newService(t, 3, demucs.StatusDone)
	p, err := demucs.New(srv.URL, demucs.WithAPIKey("secret"), demucs.WithPollInterval(time.Millisecond))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	l := &recListener{}

	stems, err := p.Separate(context.Background(), []byte("song"), l)
	if err != nil {
		t.Fatalf("Separate: %v", err)
	}
	if string(stems.Vocals) != "VOX" || string(stems.Instrumental) != "INST" {
		t.Errorf("stems = %q / %q", stems.Vocals, stems.Instrumental)
	}
	if calls.Load() != 3 {
		t.Errorf("status polls = %d, want 3", calls.Load())
	}
	want := []int{3, 2, 1, 0}
	if len(l.queue) != len(want) {
		t.Fatalf("queue positions = %v, want %v", l.queue, want)
	}
	for i := range want {
		if l.queue[i] != want[i] {
			t.Errorf("queue[%d] = %d, want %d", i, l.queue[i], want[i])
		}
	}
	if len(l.phases) == 0 {
		t.Error("no phases reported")
	}
}

func TestSeparate_JobFailed(t *testing.T) {
	t.Parallel()
	srv, _ := newService(t, 1, demucs.StatusFailed)
	p, _ := demucs.New(srv.URL, demucs.WithAPIKey("secret"), demucs.WithPollInterval(time.Millisecond))
	if _, err := p.Separate(context.Background(), []byte("song"), nil); err == nil {
		t.Fatal("expected error for failed job")
	}
}

func TestSeparate_Unauthorized(t *testing.T) {
	t.Parallel()
	srv, _ := newService(t, 1, demucs.StatusDone)
	p, _ := demucs.New(srv.URL)
	if _, err := p.Separate(context.Background(), []byte("song"), nil); err == nil {
		t.Fatal("expected error without api key")
	}
}

func TestSeparate_CancelledWhileQueued(t *testing.T) {
	t.Parallel()
	srv, _ := newService(t, 1000, demucs.StatusDone)
	p, _ := demucs.New(srv.URL, demucs.WithAPIKey("secret"), demucs.WithPollInterval(time.Millisecond))
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, err := p.Separate(ctx, []byte("song"), nil); err == nil {
		t.Fatal("expected context error")
	}
}

func TestSeparate_EmptyAudio(t *testing.T) {
	t.Parallel()
	p, _ := demucs.New("http://localhost:1")
	if _, err := p.Separate(context.Background(), nil, nil); err != separation.ErrNoAudio {
		t.Fatalf("err = %v, want ErrNoAudio", err)
	}
}

func TestNew_EmptyBaseURL(t *testing.T) {
	t.Parallel()
	if _, err := demucs.New(""); err == nil {
		t.Fatal("expected error for empty baseURL")
	}
}
