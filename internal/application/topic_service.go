package application

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/OliveiraNt/kmt/internal/config"
	"github.com/OliveiraNt/kmt/internal/domain"
	"github.com/OliveiraNt/kmt/internal/executor"
	"github.com/OliveiraNt/kmt/internal/registry"
	"github.com/OliveiraNt/kmt/internal/utils"
)

// TopicRemovedFunc is told about topics known to be gone from a broker.
type TopicRemovedFunc func(broker, topic string)

type topicKey struct{ broker, topic string }

// TopicService handles topic-related business operations and tracks the
// locally known existence of every topic it touched.
type TopicService struct {
	store     domain.ConfigStore
	conns     Connections
	exec      *executor.Executor
	sink      domain.EventPublisher
	onRemoved TopicRemovedFunc

	mu     sync.Mutex
	states map[topicKey]domain.TopicState
	wg     sync.WaitGroup
}

// NewTopicService creates a new topic service. onRemoved may be nil.
func NewTopicService(store domain.ConfigStore, conns Connections, exec *executor.Executor, sink domain.EventPublisher, onRemoved TopicRemovedFunc) *TopicService {
	return &TopicService{
		store:     store,
		conns:     conns,
		exec:      exec,
		sink:      sink,
		onRemoved: onRemoved,
		states:    make(map[topicKey]domain.TopicState),
	}
}

// ListTopics retrieves all topics of a broker with their partition counts.
func (s *TopicService) ListTopics(ctx context.Context, broker string, showInternal bool) (map[string]int, error) {
	var topics map[string]int
	err := withHandle(ctx, s.store, s.conns, broker, func(h *registry.Handle) error {
		var err error
		topics, err = s.list(ctx, h, showInternal)
		return err
	})
	if err != nil {
		utils.Logger.Error("list topics failed", "broker", broker, "err", err)
		return nil, err
	}

	var gone []string
	s.mu.Lock()
	for k, st := range s.states {
		if k.broker != broker || st != domain.TopicPresent {
			continue
		}
		if !showInternal && strings.HasPrefix(k.topic, "__") {
			continue
		}
		if _, ok := topics[k.topic]; !ok {
			gone = append(gone, k.topic)
		}
	}
	s.mu.Unlock()
	for _, name := range gone {
		utils.Logger.Info("topic gone from broker", "broker", broker, "topic", name)
		s.removed(broker, name)
	}
	for name := range topics {
		s.setState(broker, name, domain.TopicPresent)
	}
	return topics, nil
}

func (s *TopicService) list(ctx context.Context, h *registry.Handle, showInternal bool) (map[string]int, error) {
	return executor.Do(ctx, s.exec, domain.OpListTopics, h, func(ctx context.Context) (map[string]int, error) {
		return h.Client().ListTopics(ctx, showInternal)
	})
}

// CreateTopicFromConfig creates the topic described by the named topic config.
func (s *TopicService) CreateTopicFromConfig(ctx context.Context, name string) error {
	tc, ok := s.store.Topic(name)
	if !ok {
		return fmt.Errorf("%w: %q", ErrTopicConfigNotFound, name)
	}
	return s.CreateTopic(ctx, tc.Broker, RequestFromConfig(tc))
}

// RequestFromConfig builds the create request of a topic config.
func RequestFromConfig(tc config.TopicConfig) domain.CreateTopicRequest {
	tc = tc.WithDefaults()
	req := domain.CreateTopicRequest{
		Name:              tc.Topic,
		NumPartitions:     tc.Partitions,
		ReplicationFactor: tc.ReplicationFactor,
	}
	if len(tc.Entries) > 0 {
		req.Configs = make(map[string]*string, len(tc.Entries))
		for k, v := range tc.Entries {
			req.Configs[k] = &v
		}
	}
	return req
}

// CreateTopic creates a new topic on the broker. A timeout leaves the topic
// state unknown and schedules a follow-up describe.
func (s *TopicService) CreateTopic(ctx context.Context, broker string, req domain.CreateTopicRequest) error {
	if req.Name == "" {
		return ErrInvalidTopicName
	}
	if req.NumPartitions <= 0 {
		return ErrInvalidPartitionCount
	}
	if req.ReplicationFactor <= 0 {
		return ErrInvalidReplicationFactor
	}

	err := withHandle(ctx, s.store, s.conns, broker, func(h *registry.Handle) error {
		_, err := s.exec.Run(ctx, domain.OpCreateTopic, h, func(ctx context.Context) (any, error) {
			return nil, h.Client().CreateTopic(ctx, req)
		})
		return err
	})
	switch {
	case err == nil:
		utils.Logger.Info("topic created", "broker", broker, "topic", req.Name)
		s.setState(broker, req.Name, domain.TopicPresent)
		return nil
	case errors.Is(err, domain.ErrTimeout):
		utils.Logger.Warn("create topic timed out, state unknown", "broker", broker, "topic", req.Name)
		s.setState(broker, req.Name, domain.TopicUnknown)
		s.reconcileLater(broker, req.Name, false)
	default:
		utils.Logger.Error("create topic failed", "broker", broker, "topic", req.Name, "err", err)
	}
	return err
}

// DeleteTopic removes a topic from the broker. On success every listener
// bound to it is failed. A timeout leaves the topic state unknown.
func (s *TopicService) DeleteTopic(ctx context.Context, broker, topic string) error {
	if topic == "" {
		return ErrInvalidTopicName
	}

	err := withHandle(ctx, s.store, s.conns, broker, func(h *registry.Handle) error {
		settings, err := clusterSettings(ctx, s.exec, h)
		if err != nil {
			utils.Logger.Debug("broker configs unavailable, deleting anyway", "broker", broker, "err", err)
		} else if settings != nil && settings.TopicDeletion == domain.SettingDisabled {
			return fmt.Errorf("%w: broker %q", ErrTopicDeletionDisabled, broker)
		}
		_, err = s.exec.Run(ctx, domain.OpDeleteTopic, h, func(ctx context.Context) (any, error) {
			return nil, h.Client().DeleteTopic(ctx, topic)
		})
		return err
	})
	switch {
	case err == nil:
		utils.Logger.Info("topic deleted", "broker", broker, "topic", topic)
		s.removed(broker, topic)
		return nil
	case errors.Is(err, domain.ErrTimeout):
		utils.Logger.Warn("delete topic timed out, state unknown", "broker", broker, "topic", topic)
		s.setState(broker, topic, domain.TopicUnknown)
		s.reconcileLater(broker, topic, true)
	default:
		utils.Logger.Error("delete topic failed", "broker", broker, "topic", topic, "err", err)
	}
	return err
}

// ReconcileTopic describes the topic on the broker and records whether it exists.
func (s *TopicService) ReconcileTopic(ctx context.Context, broker, topic string) (domain.TopicState, error) {
	var exists bool
	err := withHandle(ctx, s.store, s.conns, broker, func(h *registry.Handle) error {
		var err error
		exists, err = executor.Do(ctx, s.exec, domain.OpDescribeTopic, h, func(ctx context.Context) (bool, error) {
			return h.Client().TopicExists(ctx, topic)
		})
		return err
	})
	if err != nil {
		return s.TopicState(broker, topic), err
	}
	if exists {
		s.setState(broker, topic, domain.TopicPresent)
		return domain.TopicPresent, nil
	}
	s.setState(broker, topic, domain.TopicAbsent)
	return domain.TopicAbsent, nil
}

// DescribeTopic returns the partitions, config entries and assigned
// consumers of a topic. A topic found missing that was known present is
// handled as removed.
func (s *TopicService) DescribeTopic(ctx context.Context, broker, topic string) (domain.TopicDetails, error) {
	if topic == "" {
		return domain.TopicDetails{}, ErrInvalidTopicName
	}

	var details domain.TopicDetails
	err := withHandle(ctx, s.store, s.conns, broker, func(h *registry.Handle) error {
		var err error
		details, err = executor.Do(ctx, s.exec, domain.OpDescribeTopic, h, func(ctx context.Context) (domain.TopicDetails, error) {
			return h.Client().DescribeTopic(ctx, topic)
		})
		return err
	})
	switch {
	case err == nil:
		s.setState(broker, topic, domain.TopicPresent)
		details.State = domain.TopicPresent
		return details, nil
	case errors.Is(err, domain.ErrUnknownTopic):
		if s.TopicState(broker, topic) == domain.TopicPresent {
			s.removed(broker, topic)
		} else {
			s.setState(broker, topic, domain.TopicAbsent)
		}
	default:
		utils.Logger.Error("describe topic failed", "broker", broker, "topic", topic, "err", err)
	}
	return domain.TopicDetails{}, err
}

// TopicState is the locally known existence of topic on broker.
func (s *TopicService) TopicState(broker, topic string) domain.TopicState {
	s.mu.Lock()
	defer s.mu.Unlock()
	if st, ok := s.states[topicKey{broker, topic}]; ok {
		return st
	}
	return domain.TopicUnknown
}

// Wait blocks until the scheduled follow-up describes are done.
func (s *TopicService) Wait() { s.wg.Wait() }

func (s *TopicService) reconcileLater(broker, topic string, deleting bool) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		st, err := s.ReconcileTopic(context.Background(), broker, topic)
		if err != nil {
			utils.Logger.Warn("topic reconcile failed", "broker", broker, "topic", topic, "err", err)
			return
		}
		utils.Logger.Info("topic reconciled", "broker", broker, "topic", topic, "state", st)
		if deleting && st == domain.TopicAbsent {
			s.removed(broker, topic)
		}
	}()
}

func (s *TopicService) removed(broker, topic string) {
	s.setState(broker, topic, domain.TopicAbsent)
	if s.onRemoved != nil {
		s.onRemoved(broker, topic)
	}
}

func (s *TopicService) setState(broker, topic string, st domain.TopicState) {
	k := topicKey{broker, topic}
	s.mu.Lock()
	prev, known := s.states[k]
	s.states[k] = st
	s.mu.Unlock()
	if known && prev == st {
		return
	}
	if s.sink != nil {
		s.sink.Publish(domain.Event{
			Type:   domain.EventTopicState,
			Broker: broker,
			Topic:  topic,
			State:  string(st),
			Key:    "events.topic_state",
			Args:   map[string]any{"broker": broker, "topic": topic, "state": string(st)},
		})
	}
}
