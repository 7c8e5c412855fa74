package api

import (
	"math"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
)

// parseTime reads the t query parameter in seconds.
func parseTime(r *http.Request) (float64, bool, error) {
	v := r.URL.Query().Get("t")
	if v == "" {
		return 0, false, nil
	}
	t, ok := parseSeconds(v)
	if !ok {
		return 0, false, badRequest("t must be a non-negative number of seconds")
	}
	return t, true, nil
}

// parseSeconds accepts finite, non-negative decimal seconds.
func parseSeconds(v string) (float64, bool) {
	f, err := strconv.ParseFloat(v, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) || f < 0 {
		return 0, false
	}
	return f, true
}

// frame resolves the highlight frame at ?t=, or at the playback position
// when t is absent.
func (s *Server) frame(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	t, set, err := parseTime(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if !set {
		writeJSON(w, http.StatusOK, sess.Frame())
		return
	}
	writeJSON(w, http.StatusOK, sess.FrameAt(t))
}

func (s *Server) playback(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	switch action := chi.URLParam(r, "action"); action {
	case "play":
		sess.Play()
	case "pause":
		sess.Pause()
	case "seek":
		t, set, err := parseTime(r)
		if err == nil && !set {
			err = badRequest("seek requires t")
		}
		if err != nil {
			writeError(w, r, err)
			return
		}
		sess.Seek(t)
	default:
		writeError(w, r, &httpError{status: http.StatusNotFound, msg: "unknown playback action " + strconv.Quote(action)})
		return
	}
	writeJSON(w, http.StatusOK, playbackOf(sess))
}
