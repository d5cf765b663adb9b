package httpserver

import (
	"net/http"

	"github.com/OliveiraNt/kmt/internal/domain"
	"github.com/OliveiraNt/kmt/internal/utils"

	"github.com/go-chi/chi/v5"
)

type brokerView struct {
	Name     string `json:"name"`
	Label    string `json:"label"`
	Draft    bool   `json:"draft"`
	Address  string `json:"address"`
	AuthType string `json:"auth_type"`
}

type statusView struct {
	Cluster *domain.Cluster       `json:"cluster"`
	Brokers []domain.BrokerDetail `json:"brokers"`
	Error   string                `json:"error,omitempty"`
}

func (s *Server) apiListBrokers(w http.ResponseWriter, _ *http.Request) {
	brokers := s.coord.Brokers.ListBrokers()
	out := make([]brokerView, 0, len(brokers))
	for _, b := range brokers {
		out = append(out, brokerView{
			Name:     b.Name,
			Label:    b.Label(),
			Draft:    b.Draft,
			Address:  b.Address(),
			AuthType: b.GetAuthType(),
		})
	}
	utils.Logger.Debug("api list brokers", "count", len(out))
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) apiListConnections(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.coord.Brokers.Connections())
}

// apiBrokerStatus answers with the cluster as known from config even when
// the broker is unreachable, alongside the mapped error status.
func (s *Server) apiBrokerStatus(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "broker")
	cluster, details, err := s.coord.Brokers.Status(r.Context(), name)
	if err != nil && cluster == nil {
		writeError(w, r, err)
		return
	}
	view := statusView{Cluster: cluster, Brokers: details}
	status := http.StatusOK
	if err != nil {
		utils.Logger.Warn("api broker status offline", "broker", name, "err", err)
		view.Error = err.Error()
		status = mapErrorToHTTPStatus(err)
	}
	if view.Brokers == nil {
		view.Brokers = []domain.BrokerDetail{}
	}
	writeJSON(w, status, view)
}

func (s *Server) apiDisconnect(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "broker")
	if err := s.coord.Brokers.Disconnect(r.Context(), name); err != nil {
		utils.Logger.Warn("api disconnect failed", "broker", name, "err", err)
		writeError(w, r, err)
		return
	}
	utils.Logger.Info("broker disconnected", "broker", name)
	w.WriteHeader(http.StatusNoContent)
}
