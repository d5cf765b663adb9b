package httpserver

import (
	"context"
	"net/http"
	"strconv"

	"github.com/OliveiraNt/kmt/internal/domain"
	"github.com/invopop/ctxi18n/i18n"
)

// eventView is an event plus its description in the request's locale.
type eventView struct {
	domain.Event
	Description string `json:"description"`
}

// eventFilter selects events by sequence, session and broker.
type eventFilter struct {
	since   uint64
	session string
	broker  string
}

func parseEventFilter(r *http.Request) (eventFilter, error) {
	q := r.URL.Query()
	f := eventFilter{session: q.Get("session"), broker: q.Get("broker")}
	if v := q.Get("since"); v != "" {
		since, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			return f, err
		}
		f.since = since
	}
	return f, nil
}

func (f eventFilter) match(ev domain.Event) bool {
	if ev.Seq <= f.since {
		return false
	}
	if f.session != "" && ev.Session != f.session {
		return false
	}
	return f.broker == "" || ev.Broker == f.broker
}

func describe(ctx context.Context, ev domain.Event) eventView {
	view := eventView{Event: ev}
	if ev.Key != "" {
		view.Description = i18n.T(ctx, ev.Key, i18n.M(ev.Args))
	}
	return view
}

// apiEvents returns the retained event history. ?since=<seq> skips what the
// caller has already seen.
func (s *Server) apiEvents(w http.ResponseWriter, r *http.Request) {
	f, err := parseEventFilter(r)
	if err != nil {
		writeErrorStatus(w, r, http.StatusBadRequest, err)
		return
	}
	history := s.coord.Events().History()
	out := make([]eventView, 0, len(history))
	for _, ev := range history {
		if f.match(ev) {
			out = append(out, describe(r.Context(), ev))
		}
	}
	writeJSON(w, http.StatusOK, out)
}
