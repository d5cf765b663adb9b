package application

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/OliveiraNt/kmt/internal/config"
	"github.com/OliveiraNt/kmt/internal/domain"
	"github.com/OliveiraNt/kmt/internal/executor"
	"github.com/OliveiraNt/kmt/internal/registry"
	"github.com/OliveiraNt/kmt/internal/utils"
)

type groupKey struct{ broker, group string }

// ConsumerGroupsService describes consumer groups and keeps the last
// snapshot of each to answer with when a describe times out.
type ConsumerGroupsService struct {
	store domain.ConfigStore
	conns Connections
	exec  *executor.Executor
	sink  domain.EventPublisher

	mu    sync.Mutex
	cache map[groupKey]domain.GroupMetadata
}

func NewConsumerGroupsService(store domain.ConfigStore, conns Connections, exec *executor.Executor, sink domain.EventPublisher) *ConsumerGroupsService {
	return &ConsumerGroupsService{
		store: store,
		conns: conns,
		exec:  exec,
		sink:  sink,
		cache: make(map[groupKey]domain.GroupMetadata),
	}
}

// DescribeConsumerGroup returns the assignment and offset snapshot of group.
// When the describe times out the last known snapshot, or an empty one, is
// returned flagged stale together with a nil error.
func (s *ConsumerGroupsService) DescribeConsumerGroup(ctx context.Context, broker, group string) (domain.GroupMetadata, error) {
	if group == "" {
		group = config.DefaultConsumerGroup
	}

	var md domain.GroupMetadata
	err := withHandle(ctx, s.store, s.conns, broker, func(h *registry.Handle) error {
		var err error
		md, err = executor.Do(ctx, s.exec, domain.OpDescribeGroup, h, func(ctx context.Context) (domain.GroupMetadata, error) {
			return h.Client().DescribeGroup(ctx, group)
		})
		return err
	})

	k := groupKey{broker, group}
	switch {
	case err == nil:
		s.mu.Lock()
		s.cache[k] = md
		s.mu.Unlock()
		return md, nil
	case errors.Is(err, domain.ErrTimeout):
		stale := s.stale(k)
		utils.Logger.Warn("describe consumer group timed out, serving stale data", "broker", broker, "group", group, "fetched_at", stale.FetchedAt)
		s.publishStale(stale, err)
		return stale, nil
	default:
		utils.Logger.Error("describe consumer group failed", "broker", broker, "group", group, "err", err)
		return domain.GroupMetadata{}, err
	}
}

// Cached returns the last snapshot of group without contacting the broker.
func (s *ConsumerGroupsService) Cached(broker, group string) (domain.GroupMetadata, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	md, ok := s.cache[groupKey{broker, group}]
	return md, ok
}

func (s *ConsumerGroupsService) stale(k groupKey) domain.GroupMetadata {
	s.mu.Lock()
	md, ok := s.cache[k]
	s.mu.Unlock()
	if !ok {
		md = domain.GroupMetadata{
			Broker:     k.broker,
			GroupID:    k.group,
			Members:    []domain.GroupMember{},
			Unassigned: []domain.GroupMember{},
			Offsets:    []domain.PartitionOffset{},
		}
	}
	md.Stale = true
	return md
}

func (s *ConsumerGroupsService) publishStale(md domain.GroupMetadata, cause error) {
	if s.sink == nil {
		return
	}
	since := ""
	if !md.FetchedAt.IsZero() {
		since = md.FetchedAt.Format(time.RFC3339)
	}
	s.sink.Publish(domain.Event{
		Type:   domain.EventStaleData,
		Kind:   domain.OpDescribeGroup,
		Broker: md.Broker,
		Error:  errors.Join(domain.ErrStaleData, cause).Error(),
		Key:    "events.stale_data",
		Args:   map[string]any{"group": md.GroupID, "broker": md.Broker, "since": since},
	})
}
