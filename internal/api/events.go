package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/chetanrakshe2510/karaoke-maker/internal/highlight"
	"github.com/chetanrakshe2510/karaoke-maker/internal/observe"
)

// writeTimeout bounds a single websocket write.
const writeTimeout = 5 * time.Second

// Event types sent on the events stream.
const (
	EventState = "state"
	EventFrame = "frame"
)

// event is one message on the events stream. Exactly one of State and Frame
// is set.
type event struct {
	Type  string           `json:"type"`
	State *sessionResponse `json:"state,omitempty"`
	Frame *highlight.Frame `json:"frame,omitempty"`
}

// events streams the session state after every pipeline change and every
// highlight frame while playback runs. The current state is sent first.
func (s *Server) events(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}

	opts := &websocket.AcceptOptions{}
	if len(s.origins) == 0 {
		opts.InsecureSkipVerify = true
	} else {
		opts.OriginPatterns = s.origins
	}
	conn, err := websocket.Accept(w, r, opts)
	if err != nil {
		observe.Logger(r.Context()).Warn("api: websocket accept", "err", err)
		return
	}
	defer conn.CloseNow()

	if s.metrics != nil {
		s.metrics.ActiveStreams.Add(context.Background(), 1)
		defer s.metrics.ActiveStreams.Add(context.Background(), -1)
	}

	updates, unsubState := sess.Pipeline().Subscribe(0)
	defer unsubState()
	frames, unsubFrames := sess.SubscribeFrames(0)
	defer unsubFrames()

	// The client sends nothing; CloseRead handles its close frame.
	ctx := conn.CloseRead(r.Context())
	log := observe.Logger(ctx).With("session_id", sess.Info().ID)

	send := func(ev event) error {
		wctx, cancel := context.WithTimeout(ctx, writeTimeout)
		defer cancel()
		return wsjson.Write(wctx, conn, ev)
	}

	initial := newSessionResponse(sess)
	if err := send(event{Type: EventState, State: &initial}); err != nil {
		return
	}

	for {
		var err error
		select {
		case <-ctx.Done():
			return
		case _, ok := <-updates:
			if !ok {
				conn.Close(websocket.StatusGoingAway, "session closed")
				return
			}
			st := newSessionResponse(sess)
			err = send(event{Type: EventState, State: &st})
		case f, ok := <-frames:
			if !ok {
				conn.Close(websocket.StatusGoingAway, "session closed")
				return
			}
			err = send(event{Type: EventFrame, Frame: &f})
		}
		if err != nil {
			if !errors.Is(err, context.Canceled) {
				log.Debug("api: events stream ended", "err", err)
			}
			return
		}
	}
}
