package httpserver

import (
	"context"
	"net/http"
	"time"

	"github.com/OliveiraNt/kmt/internal/utils"
	"github.com/gorilla/websocket"
)

const (
	wsWriteWait  = 5 * time.Second
	wsSubscriber = 256
)

var wsUpgrader = websocket.Upgrader{
	// Local tool; any origin is accepted.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// wsEvents upgrades to WebSocket and streams live events, replaying the
// retained history after ?since first. A slow client drops events rather
// than stalling publishers; the per-connection drop count is logged on close.
func (s *Server) wsEvents(w http.ResponseWriter, r *http.Request) {
	f, err := parseEventFilter(r)
	if err != nil {
		writeErrorStatus(w, r, http.StatusBadRequest, err)
		return
	}

	// Subscribe before replaying so nothing published in between is lost.
	sub := s.coord.Events().Subscribe(wsSubscriber)
	defer sub.Close()

	conn, err := wsUpgrader.Upgrade(w, r, nil)
	if err != nil {
		utils.Logger.Error("websocket upgrade failed", "err", err)
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	conn.SetCloseHandler(func(code int, text string) error {
		utils.Logger.Debug("websocket close handler triggered", "code", code, "text", text)
		cancel()
		return nil
	})

	go func() {
		defer cancel()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				utils.Logger.Info("websocket client disconnected", "err", err)
				return
			}
		}
	}()

	write := func(v any) bool {
		_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
		if err := conn.WriteJSON(v); err != nil {
			utils.Logger.Info("websocket write failed, stopping stream", "err", err)
			return false
		}
		return true
	}

	last := f.since
	for _, ev := range s.coord.Events().History() {
		if !f.match(ev) {
			continue
		}
		if !write(describe(r.Context(), ev)) {
			return
		}
		last = ev.Seq
	}
	f.since = last

	defer func() {
		if n := sub.Dropped(); n > 0 {
			utils.Logger.Warn("websocket subscriber dropped events", "dropped", n)
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-sub.C:
			if !ok {
				_ = conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutting down"),
					time.Now().Add(wsWriteWait))
				return
			}
			if !f.match(ev) {
				continue
			}
			if !write(describe(r.Context(), ev)) {
				return
			}
		}
	}
}
