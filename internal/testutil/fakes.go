package testutil

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/OliveiraNt/kmt/internal/config"
	"github.com/OliveiraNt/kmt/internal/domain"
)

// FakeKafkaClient is a test double implementing domain.KafkaClient with configurable responses.
// The *Fn hooks take precedence over the static fields when set.
type FakeKafkaClient struct {
	Topics  map[string]int
	Cluster *domain.Cluster
	Brokers []domain.BrokerDetail
	Group   domain.GroupMetadata
	PingErr error
	Err     error

	Nodes          domain.NodeConfigs
	TopicConfigs   map[string]map[string]string
	TopicConsumers map[string][]domain.TopicConsumer

	CreateTopicFn   func(ctx context.Context, req domain.CreateTopicRequest) error
	DeleteTopicFn   func(ctx context.Context, topic string) error
	DescribeGroupFn func(ctx context.Context, group string) (domain.GroupMetadata, error)
	ProduceFn       func(ctx context.Context, topic string, msg domain.OutgoingMessage) (domain.SendResult, error)
	NewConsumerFn   func(opts domain.ConsumerOptions) (domain.Consumer, error)
	CloseFn         func()

	mu       sync.Mutex
	produced []domain.OutgoingMessage
	offset   int64
	closed   atomic.Int32
}

func NewFakeKafkaClient() *FakeKafkaClient {
	return &FakeKafkaClient{Topics: map[string]int{}}
}

func (f *FakeKafkaClient) Ping(_ context.Context) error { return f.PingErr }

func (f *FakeKafkaClient) ClusterInfo(_ context.Context) (*domain.Cluster, []domain.BrokerDetail, error) {
	return f.Cluster, f.Brokers, f.Err
}

func (f *FakeKafkaClient) ListTopics(_ context.Context, _ bool) (map[string]int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make(map[string]int, len(f.Topics))
	for k, v := range f.Topics {
		out[k] = v
	}
	return out, f.Err
}

func (f *FakeKafkaClient) BrokerConfigs(_ context.Context) (domain.NodeConfigs, error) {
	return f.Nodes, f.Err
}

func (f *FakeKafkaClient) TopicExists(_ context.Context, topic string) (bool, error) {
	if f.Err != nil {
		return false, f.Err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.Topics[topic]
	return ok, nil
}

func (f *FakeKafkaClient) DescribeTopic(_ context.Context, topic string) (domain.TopicDetails, error) {
	if f.Err != nil {
		return domain.TopicDetails{}, f.Err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	partitions, ok := f.Topics[topic]
	if !ok {
		return domain.TopicDetails{}, fmt.Errorf("describe topic %q: %w", topic, domain.ErrUnknownTopic)
	}
	d := domain.TopicDetails{
		Name:       topic,
		Partitions: partitions,
		Config:     map[string]string{},
		Consumers:  append([]domain.TopicConsumer{}, f.TopicConsumers[topic]...),
	}
	for k, v := range f.TopicConfigs[topic] {
		d.Config[k] = v
	}
	return d, nil
}

func (f *FakeKafkaClient) CreateTopic(ctx context.Context, req domain.CreateTopicRequest) error {
	if f.CreateTopicFn != nil {
		return f.CreateTopicFn(ctx, req)
	}
	if f.Err != nil {
		return f.Err
	}
	f.mu.Lock()
	f.Topics[req.Name] = int(req.NumPartitions)
	f.mu.Unlock()
	return nil
}

func (f *FakeKafkaClient) DeleteTopic(ctx context.Context, topic string) error {
	if f.DeleteTopicFn != nil {
		return f.DeleteTopicFn(ctx, topic)
	}
	if f.Err != nil {
		return f.Err
	}
	f.mu.Lock()
	delete(f.Topics, topic)
	f.mu.Unlock()
	return nil
}

func (f *FakeKafkaClient) DescribeGroup(ctx context.Context, group string) (domain.GroupMetadata, error) {
	if f.DescribeGroupFn != nil {
		return f.DescribeGroupFn(ctx, group)
	}
	md := f.Group
	md.GroupID = group
	return md, f.Err
}

func (f *FakeKafkaClient) Produce(ctx context.Context, topic string, msg domain.OutgoingMessage) (domain.SendResult, error) {
	if f.ProduceFn != nil {
		return f.ProduceFn(ctx, topic, msg)
	}
	if f.Err != nil {
		return domain.SendResult{}, f.Err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.produced = append(f.produced, msg)
	res := domain.SendResult{Topic: topic, Offset: f.offset, Timestamp: time.Now()}
	f.offset++
	return res, nil
}

func (f *FakeKafkaClient) NewConsumer(opts domain.ConsumerOptions) (domain.Consumer, error) {
	if f.NewConsumerFn != nil {
		return f.NewConsumerFn(opts)
	}
	c := NewFakeConsumer()
	c.Opts = opts
	return c, nil
}

func (f *FakeKafkaClient) Close() {
	f.closed.Add(1)
	if f.CloseFn != nil {
		f.CloseFn()
	}
}

// Produced returns the messages accepted by Produce, in order.
func (f *FakeKafkaClient) Produced() []domain.OutgoingMessage {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]domain.OutgoingMessage(nil), f.produced...)
}

// Closed is the number of Close calls.
func (f *FakeKafkaClient) Closed() int { return int(f.closed.Load()) }

// FakeConsumer delivers batches pushed by the test.
type FakeConsumer struct {
	Opts       domain.ConsumerOptions
	CloseBlock chan struct{}

	batches chan []domain.Message
	errs    chan error
	polls   atomic.Int32
	closed  atomic.Bool
}

func NewFakeConsumer() *FakeConsumer {
	return &FakeConsumer{
		batches: make(chan []domain.Message, 16),
		errs:    make(chan error, 4),
	}
}

// Push queues one poll result.
func (c *FakeConsumer) Push(msgs ...domain.Message) { c.batches <- msgs }

// Fail makes the next poll return err.
func (c *FakeConsumer) Fail(err error) { c.errs <- err }

func (c *FakeConsumer) Poll(ctx context.Context) ([]domain.Message, error) {
	c.polls.Add(1)
	select {
	case b := <-c.batches:
		return b, nil
	case err := <-c.errs:
		return nil, err
	case <-ctx.Done():
		return nil, nil
	}
}

func (c *FakeConsumer) Close() {
	if c.CloseBlock != nil {
		<-c.CloseBlock
	}
	c.closed.Store(true)
}

func (c *FakeConsumer) Polls() int     { return int(c.polls.Load()) }
func (c *FakeConsumer) IsClosed() bool { return c.closed.Load() }

// FakeFactory hands out clients and counts connect attempts.
type FakeFactory struct {
	Client   domain.KafkaClient
	ClientFn func(cfg config.BrokerConfig) (domain.KafkaClient, error)
	Err      error
	Delay    time.Duration

	calls atomic.Int32
}

func NewFakeFactory(client domain.KafkaClient) *FakeFactory {
	return &FakeFactory{Client: client}
}

func (f *FakeFactory) CreateClient(cfg config.BrokerConfig) (domain.KafkaClient, error) {
	f.calls.Add(1)
	if f.Delay > 0 {
		time.Sleep(f.Delay)
	}
	if f.Err != nil {
		return nil, f.Err
	}
	if f.ClientFn != nil {
		return f.ClientFn(cfg)
	}
	return f.Client, nil
}

func (f *FakeFactory) Calls() int { return int(f.calls.Load()) }

// FakeProber simulates the reachability probe. Delay honours ctx.
type FakeProber struct {
	Advertised []string
	Err        error
	Delay      time.Duration

	calls atomic.Int32
}

func (p *FakeProber) Probe(ctx context.Context, cfg config.BrokerConfig) ([]string, error) {
	p.calls.Add(1)
	if p.Delay > 0 {
		select {
		case <-time.After(p.Delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if p.Err != nil {
		return nil, p.Err
	}
	if p.Advertised == nil {
		return []string{cfg.Address()}, nil
	}
	return p.Advertised, nil
}

func (p *FakeProber) Calls() int { return int(p.calls.Load()) }

// FakeConfigStore is an in-memory domain.ConfigStore.
type FakeConfigStore struct {
	mu  sync.RWMutex
	Cfg config.FileConfig
}

func NewFakeConfigStore(cfg config.FileConfig) *FakeConfigStore {
	return &FakeConfigStore{Cfg: cfg.WithDefaults()}
}

func (s *FakeConfigStore) Set(cfg config.FileConfig) {
	s.mu.Lock()
	s.Cfg = cfg.WithDefaults()
	s.mu.Unlock()
}

func (s *FakeConfigStore) Brokers() []config.BrokerConfig {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]config.BrokerConfig(nil), s.Cfg.Brokers...)
}

func (s *FakeConfigStore) Broker(name string) (config.BrokerConfig, bool) {
	for _, b := range s.Brokers() {
		if b.Name == name {
			return b, true
		}
	}
	return config.BrokerConfig{}, false
}

func (s *FakeConfigStore) Topics() []config.TopicConfig {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]config.TopicConfig(nil), s.Cfg.Topics...)
}

func (s *FakeConfigStore) Topic(name string) (config.TopicConfig, bool) {
	for _, t := range s.Topics() {
		if t.Name == name {
			return t, true
		}
	}
	return config.TopicConfig{}, false
}

func (s *FakeConfigStore) Senders() []config.SenderConfig {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]config.SenderConfig(nil), s.Cfg.Senders...)
}

func (s *FakeConfigStore) Sender(name string) (config.SenderConfig, bool) {
	for _, c := range s.Senders() {
		if c.Name == name {
			return c, true
		}
	}
	return config.SenderConfig{}, false
}

func (s *FakeConfigStore) Listeners() []config.ListenerConfig {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]config.ListenerConfig(nil), s.Cfg.Listeners...)
}

func (s *FakeConfigStore) Listener(name string) (config.ListenerConfig, bool) {
	for _, c := range s.Listeners() {
		if c.Name == name {
			return c, true
		}
	}
	return config.ListenerConfig{}, false
}

// RecordingSink collects published events.
type RecordingSink struct {
	mu     sync.Mutex
	events []domain.Event
}

func (s *RecordingSink) Publish(ev domain.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ev.Seq = uint64(len(s.events) + 1)
	s.events = append(s.events, ev)
}

func (s *RecordingSink) Events() []domain.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.Event(nil), s.events...)
}

// OfType returns the recorded events of type t.
func (s *RecordingSink) OfType(t domain.EventType) []domain.Event {
	var out []domain.Event
	for _, ev := range s.Events() {
		if ev.Type == t {
			out = append(out, ev)
		}
	}
	return out
}
