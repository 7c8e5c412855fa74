// Package api serves the karaoke session API over HTTP.
//
// Routes:
//
//	POST   /sessions                        create a session
//	GET    /sessions                        list sessions
//	GET    /sessions/{id}                   state snapshot
//	DELETE /sessions/{id}                   delete a session
//	POST   /sessions/{id}/runs              start a run (multipart upload)
//	POST   /sessions/{id}/reset             cancel the run, back to idle
//	GET    /sessions/{id}/frame?t=SECONDS   highlight frame
//	POST   /sessions/{id}/playback/{action} play, pause or seek?t=
//	GET    /sessions/{id}/events            websocket of state and frames
//
// plus /healthz, /readyz, /metrics and, when enabled, the MCP endpoint at
// /mcp.
package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/chetanrakshe2510/karaoke-maker/internal/app"
	"github.com/chetanrakshe2510/karaoke-maker/internal/health"
	"github.com/chetanrakshe2510/karaoke-maker/internal/observe"
)

// DefaultMaxUploadMB caps uploads when Config.MaxUploadMB is zero.
const DefaultMaxUploadMB = 100

// Config holds the dependencies of the HTTP API.
type Config struct {
	Sessions *app.SessionManager

	// Health serves /healthz and /readyz. Nil serves liveness only.
	Health *health.Handler

	// Metrics instruments every request. Nil disables instrumentation.
	Metrics *observe.Metrics

	// MetricsHandler serves /metrics. Nil uses the default Prometheus
	// registry.
	MetricsHandler http.Handler

	// CORSOrigins lists allowed browser origins. Empty allows any origin.
	CORSOrigins []string

	// MaxUploadMB caps the request body of a run upload.
	MaxUploadMB int

	// MCP, when set, is mounted at /mcp.
	MCP http.Handler
}

// Server holds the handler state.
type Server struct {
	sessions  *app.SessionManager
	metrics   *observe.Metrics
	origins   []string
	maxUpload int64
}

// NewRouter builds the HTTP handler for cfg.
func NewRouter(cfg Config) http.Handler {
	s := &Server{
		sessions:  cfg.Sessions,
		metrics:   cfg.Metrics,
		origins:   cfg.CORSOrigins,
		maxUpload: int64(cfg.MaxUploadMB) << 20,
	}
	if s.maxUpload <= 0 {
		s.maxUpload = DefaultMaxUploadMB << 20
	}
	origins := cfg.CORSOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}

	r := chi.NewRouter()
	r.Use(chimw.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type", "X-Correlation-ID"},
		ExposedHeaders: []string{"X-Correlation-ID"},
		MaxAge:         300,
	}))
	if cfg.Metrics != nil {
		r.Use(observe.Middleware(cfg.Metrics))
	}

	hh := cfg.Health
	if hh == nil {
		hh = health.New()
	}
	hh.Register(r)

	mh := cfg.MetricsHandler
	if mh == nil {
		mh = promhttp.Handler()
	}
	r.Method(http.MethodGet, "/metrics", mh)
	if cfg.MCP != nil {
		r.Handle("/mcp", cfg.MCP)
	}

	r.Route("/sessions", func(r chi.Router) {
		r.Post("/", s.createSession)
		r.Get("/", s.listSessions)

		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", s.getSession)
			r.Delete("/", s.deleteSession)
			r.Post("/runs", s.startRun)
			r.Post("/reset", s.resetSession)
			r.Get("/frame", s.frame)
			r.Post("/playback/{action}", s.playback)
			r.Get("/events", s.events)
		})
	})

	return r
}

// session resolves the {id} URL parameter, writing a 404 when unknown.
func (s *Server) session(w http.ResponseWriter, r *http.Request) (*app.Session, bool) {
	sess, err := s.sessions.Get(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return nil, false
	}
	return sess, true
}

type errorResponse struct {
	Error string `json:"error"`
}

// writeError maps err to a status code and writes it as JSON.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusInternalServerError
	var he *httpError
	switch {
	case errors.As(err, &he):
		status = he.status
	case errors.Is(err, app.ErrSessionNotFound):
		status = http.StatusNotFound
	case errors.Is(err, app.ErrClosed):
		status = http.StatusServiceUnavailable
	}
	if status >= 500 {
		observe.Logger(r.Context()).Error("api: request failed", "path", r.URL.Path, "err", err)
	}
	writeJSON(w, status, errorResponse{Error: err.Error()})
}

// httpError carries a client-facing status code.
type httpError struct {
	status int
	msg    string
}

func (e *httpError) Error() string { return e.msg }

func badRequest(msg string) error {
	return &httpError{status: http.StatusBadRequest, msg: msg}
}

// writeJSON encodes v as JSON and writes it with the given status code.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("api: encode response", "err", err)
	}
}
