package httpserver

import (
	"net/http"

	"github.com/OliveiraNt/kmt/internal/utils"
	"github.com/go-chi/chi/v5"
)

// StaleHeader is set on consumer group answers served from cache.
const StaleHeader = "X-Stale-Data"

func (s *Server) apiDescribeConsumerGroup(w http.ResponseWriter, r *http.Request) {
	broker := chi.URLParam(r, "broker")
	group := chi.URLParam(r, "group")

	md, err := s.coord.Groups.DescribeConsumerGroup(r.Context(), broker, group)
	if err != nil {
		utils.Logger.Error("api describe consumer group failed", "broker", broker, "group", group, "err", err)
		writeError(w, r, err)
		return
	}
	if md.Stale {
		w.Header().Set(StaleHeader, "true")
	}
	writeJSON(w, http.StatusOK, md)
}
