package httpserver

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/OliveiraNt/kmt/internal/application"
	"github.com/OliveiraNt/kmt/internal/domain"
	"github.com/OliveiraNt/kmt/internal/session"
	"github.com/OliveiraNt/kmt/internal/utils"

	"github.com/go-chi/chi/v5"
)

// sendBody is one message to produce. Repeat sends it that many times
// through the sender's template; zero uses the configured repeat count.
type sendBody struct {
	Key     string          `json:"key"`
	Value   string          `json:"value"`
	Headers []domain.Header `json:"headers,omitempty"`
	Repeat  *int            `json:"repeat,omitempty"`
}

type sendView struct {
	Results []domain.SendResult `json:"results"`
	Error   string              `json:"error,omitempty"`
}

// startedSession answers a start request. A session that failed to start is
// kept and reported with its cause so it can be restarted.
func startedSession(w http.ResponseWriter, r *http.Request, sess session.Session, err error) {
	if sess == nil {
		writeError(w, r, err)
		return
	}
	if err != nil {
		utils.Logger.Warn("session failed to start", "session", sess.ID(), "name", sess.Name(), "err", err)
		writeJSON(w, mapErrorToHTTPStatus(err), sess.Info())
		return
	}
	utils.Logger.Info("session started", "session", sess.ID(), "kind", sess.Kind(), "name", sess.Name())
	writeJSON(w, http.StatusCreated, sess.Info())
}

func (s *Server) apiStartSender(w http.ResponseWriter, r *http.Request) {
	snd, err := s.coord.Sessions.StartSender(r.Context(), chi.URLParam(r, "sender"))
	if snd == nil {
		startedSession(w, r, nil, err)
		return
	}
	startedSession(w, r, snd, err)
}

func (s *Server) apiStartListener(w http.ResponseWriter, r *http.Request) {
	l, err := s.coord.Sessions.StartListener(r.Context(), chi.URLParam(r, "listener"))
	if l == nil {
		startedSession(w, r, nil, err)
		return
	}
	startedSession(w, r, l, err)
}

func (s *Server) apiListSessions(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.coord.Sessions.List())
}

func (s *Server) apiGetSession(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	sess, ok := s.coord.Sessions.Get(id)
	if !ok {
		writeError(w, r, fmt.Errorf("%w: %q", application.ErrSessionNotFound, id))
		return
	}
	writeJSON(w, http.StatusOK, sess.Info())
}

// apiStopSession stops a session; ?remove=true also forgets it.
func (s *Server) apiStopSession(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var err error
	if r.URL.Query().Get("remove") == "true" {
		err = s.coord.Sessions.Remove(r.Context(), id)
	} else {
		err = s.coord.Sessions.Stop(r.Context(), id)
	}
	if err != nil {
		utils.Logger.Warn("api stop session failed", "session", id, "err", err)
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) apiRestartSession(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := s.coord.Sessions.Restart(r.Context(), id); err != nil {
		utils.Logger.Warn("api restart session failed", "session", id, "err", err)
		writeError(w, r, err)
		return
	}
	sess, _ := s.coord.Sessions.Get(id)
	writeJSON(w, http.StatusOK, sess.Info())
}

func (s *Server) apiSendMessage(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var body sendBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil && !errors.Is(err, io.EOF) {
		writeErrorStatus(w, r, http.StatusBadRequest, err)
		return
	}
	msg := domain.OutgoingMessage{Key: body.Key, Value: body.Value, Headers: body.Headers}

	if body.Repeat == nil {
		res, err := s.coord.Sessions.Send(r.Context(), id, msg)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, sendView{Results: []domain.SendResult{res}})
		return
	}

	results, err := s.coord.Sessions.SendRepeated(r.Context(), id, msg, *body.Repeat)
	if results == nil {
		results = []domain.SendResult{}
	}
	if err != nil {
		// Acknowledged sends are still reported.
		if len(results) == 0 {
			writeError(w, r, err)
			return
		}
		writeJSON(w, mapErrorToHTTPStatus(err), sendView{Results: results, Error: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, sendView{Results: results})
}

func (s *Server) apiSessionOutput(w http.ResponseWriter, r *http.Request) {
	out, err := s.coord.Sessions.Output(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	if out == nil {
		out = []domain.Message{}
	}
	writeJSON(w, http.StatusOK, out)
}
