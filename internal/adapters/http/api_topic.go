package httpserver

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sort"

	"github.com/OliveiraNt/kmt/internal/application"
	"github.com/OliveiraNt/kmt/internal/domain"
	"github.com/OliveiraNt/kmt/internal/utils"

	"github.com/go-chi/chi/v5"
)

type topicView struct {
	Name       string            `json:"name"`
	Partitions int               `json:"partitions"`
	State      domain.TopicState `json:"state"`
}

// createTopicBody is either a reference to a topic config or an inline request.
type createTopicBody struct {
	Config string `json:"config,omitempty"`
	domain.CreateTopicRequest
}

func (s *Server) apiListTopics(w http.ResponseWriter, r *http.Request) {
	broker := chi.URLParam(r, "broker")
	showInternal := r.URL.Query().Get("showInternal") == "true"

	topics, err := s.coord.Topics.ListTopics(r.Context(), broker, showInternal)
	if err != nil {
		utils.Logger.Error("api list topics failed", "broker", broker, "err", err)
		writeError(w, r, err)
		return
	}

	out := make([]topicView, 0, len(topics))
	for name, partitions := range topics {
		out = append(out, topicView{Name: name, Partitions: partitions, State: domain.TopicPresent})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) apiCreateTopic(w http.ResponseWriter, r *http.Request) {
	broker := chi.URLParam(r, "broker")

	var body createTopicBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		utils.Logger.Warn("api create topic bad request", "broker", broker, "err", err)
		writeErrorStatus(w, r, http.StatusBadRequest, err)
		return
	}

	name := body.Name
	var err error
	if body.Config != "" {
		tc, ok := s.coord.Config().Topic(body.Config)
		if !ok {
			writeError(w, r, fmt.Errorf("%w: %q", application.ErrTopicConfigNotFound, body.Config))
			return
		}
		if tc.Broker != broker {
			writeErrorStatus(w, r, http.StatusBadRequest, fmt.Errorf("topic config %q belongs to broker %q", tc.Name, tc.Broker))
			return
		}
		name = application.RequestFromConfig(tc).Name
		err = s.coord.Topics.CreateTopicFromConfig(r.Context(), body.Config)
	} else {
		err = s.coord.Topics.CreateTopic(r.Context(), broker, body.CreateTopicRequest)
	}

	state := s.coord.Topics.TopicState(broker, name)
	if err != nil {
		utils.Logger.Error("api create topic failed", "broker", broker, "topic", name, "err", err)
		if errors.Is(err, domain.ErrTimeout) {
			writeJSON(w, http.StatusAccepted, topicView{Name: name, State: state})
			return
		}
		writeError(w, r, err)
		return
	}
	utils.Logger.Info("topic created", "broker", broker, "topic", name)
	writeJSON(w, http.StatusCreated, topicView{Name: name, State: state})
}

func (s *Server) apiDeleteTopic(w http.ResponseWriter, r *http.Request) {
	broker := chi.URLParam(r, "broker")
	topic := chi.URLParam(r, "topic")

	if err := s.coord.Topics.DeleteTopic(r.Context(), broker, topic); err != nil {
		utils.Logger.Error("api delete topic failed", "broker", broker, "topic", topic, "err", err)
		if errors.Is(err, domain.ErrTimeout) {
			writeJSON(w, http.StatusAccepted, topicView{Name: topic, State: s.coord.Topics.TopicState(broker, topic)})
			return
		}
		writeError(w, r, err)
		return
	}
	utils.Logger.Info("topic deleted", "broker", broker, "topic", topic)
	w.WriteHeader(http.StatusNoContent)
}

// apiTopicState returns the locally known state; ?reconcile=true asks the broker.
func (s *Server) apiTopicState(w http.ResponseWriter, r *http.Request) {
	broker := chi.URLParam(r, "broker")
	topic := chi.URLParam(r, "topic")

	if r.URL.Query().Get("reconcile") != "true" {
		writeJSON(w, http.StatusOK, topicView{Name: topic, State: s.coord.Topics.TopicState(broker, topic)})
		return
	}
	state, err := s.coord.Topics.ReconcileTopic(r.Context(), broker, topic)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, topicView{Name: topic, State: state})
}

// apiDescribeTopic returns partitions, config entries and assigned consumers.
func (s *Server) apiDescribeTopic(w http.ResponseWriter, r *http.Request) {
	broker := chi.URLParam(r, "broker")
	topic := chi.URLParam(r, "topic")

	details, err := s.coord.Topics.DescribeTopic(r.Context(), broker, topic)
	if err != nil {
		utils.Logger.Warn("api describe topic failed", "broker", broker, "topic", topic, "err", err)
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, details)
}
