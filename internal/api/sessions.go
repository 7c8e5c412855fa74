package api

import (
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/chetanrakshe2510/karaoke-maker/internal/app"
	"github.com/chetanrakshe2510/karaoke-maker/internal/pipeline"
	"github.com/chetanrakshe2510/karaoke-maker/pkg/types"
)

// maxMemory is the part of a multipart upload kept in memory; the rest is
// spooled to disk by net/http.
const maxMemory = 32 << 20

type stemInfo struct {
	VocalsBytes       int `json:"vocalsBytes"`
	InstrumentalBytes int `json:"instrumentalBytes"`
}

type playbackInfo struct {
	Position float64 `json:"position"`
	Duration float64 `json:"duration"`
	Playing  bool    `json:"playing"`
}

type sessionResponse struct {
	ID string `json:"id"`
	pipeline.State
	Stems    *stemInfo    `json:"stems,omitempty"`
	Playback playbackInfo `json:"playback"`
}

func newSessionResponse(sess *app.Session) sessionResponse {
	st := sess.Snapshot()
	res := sessionResponse{ID: sess.Info().ID, State: st, Playback: playbackOf(sess)}
	if st.Stems != nil {
		res.Stems = &stemInfo{VocalsBytes: len(st.Stems.Vocals), InstrumentalBytes: len(st.Stems.Instrumental)}
	}
	if res.Segments == nil {
		res.Segments = []types.LyricSegment{}
	}
	return res
}

func playbackOf(sess *app.Session) playbackInfo {
	pos, d := sess.Position()
	return playbackInfo{Position: pos, Duration: d, Playing: sess.Playing()}
}

func (s *Server) createSession(w http.ResponseWriter, r *http.Request) {
	sess, err := s.sessions.Create()
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, sess.Info())
}

func (s *Server) listSessions(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.sessions.List())
}

func (s *Server) getSession(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, newSessionResponse(sess))
}

func (s *Server) deleteSession(w http.ResponseWriter, r *http.Request) {
	if err := s.sessions.Delete(chi.URLParam(r, "id")); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) resetSession(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := s.sessions.Reset(id); err != nil {
		writeError(w, r, err)
		return
	}
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, newSessionResponse(sess))
}

type runResponse struct {
	Session    string `json:"session"`
	Generation uint64 `json:"generation"`
}

// startRun accepts a multipart upload with an "audio" file and optional
// fields language, quality, lyric_source, pasted_lyrics, title, artist,
// polish and duration.
func (s *Server) startRun(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if _, ok := s.session(w, r); !ok {
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, s.maxUpload)
	if err := r.ParseMultipartForm(maxMemory); err != nil {
		writeError(w, r, badRequest("invalid upload: "+err.Error()))
		return
	}
	defer func() { _ = r.MultipartForm.RemoveAll() }()

	req, err := parseRunRequest(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	gen, err := s.sessions.StartRun(id, req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, runResponse{Session: id, Generation: gen})
}

func parseRunRequest(r *http.Request) (app.RunRequest, error) {
	var req app.RunRequest

	f, hdr, err := r.FormFile("audio")
	if err != nil {
		return req, badRequest(`missing "audio" file`)
	}
	defer f.Close()
	data, err := io.ReadAll(f)
	if err != nil {
		return req, badRequest("read audio: " + err.Error())
	}
	req.Audio = data
	req.Filename = hdr.Filename

	req.Language = strings.TrimSpace(r.FormValue("language"))
	if q := types.Quality(r.FormValue("quality")); q != "" {
		if !q.IsValid() {
			return req, badRequest("quality must be fast or accurate")
		}
		req.Quality = q
	}
	if src := types.LyricSource(r.FormValue("lyric_source")); src != "" {
		if !src.IsValid() {
			return req, badRequest("lyric_source must be auto, ai-recall or paste")
		}
		req.Source = src
	}
	req.PastedLyrics = r.FormValue("pasted_lyrics")
	req.Song = types.SongMetadata{
		Title:  strings.TrimSpace(r.FormValue("title")),
		Artist: strings.TrimSpace(r.FormValue("artist")),
	}
	if v := r.FormValue("polish"); v != "" {
		p, err := strconv.ParseBool(v)
		if err != nil {
			return req, badRequest("polish must be a boolean")
		}
		req.Polish = &p
	}
	if v := r.FormValue("duration"); v != "" {
		d, ok := parseSeconds(v)
		if !ok {
			return req, badRequest("duration must be a non-negative number of seconds")
		}
		req.Duration = d
	}
	return req, nil
}
