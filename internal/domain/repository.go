package domain

import (
	"context"

	"github.com/OliveiraNt/kmt/internal/config"
)

// ConfigStore supplies configuration records. The coordinator only reads them.
type ConfigStore interface {
	Brokers() []config.BrokerConfig
	Broker(name string) (config.BrokerConfig, bool)
	Topics() []config.TopicConfig
	Topic(name string) (config.TopicConfig, bool)
	Senders() []config.SenderConfig
	Sender(name string) (config.SenderConfig, bool)
	Listeners() []config.ListenerConfig
	Listener(name string) (config.ListenerConfig, bool)
}

// ClientFactory creates Kafka clients from configuration.
type ClientFactory interface {
	CreateClient(cfg config.BrokerConfig) (KafkaClient, error)
}

// Prober checks that a broker and its advertised listeners are reachable.
// It returns the reachable advertised addresses.
type Prober interface {
	Probe(ctx context.Context, cfg config.BrokerConfig) ([]string, error)
}

// KafkaClient is the broker protocol boundary. Every method honours ctx.
type KafkaClient interface {
	Ping(ctx context.Context) error
	ClusterInfo(ctx context.Context) (*Cluster, []BrokerDetail, error)
	BrokerConfigs(ctx context.Context) (NodeConfigs, error)
	ListTopics(ctx context.Context, showInternal bool) (map[string]int, error)
	TopicExists(ctx context.Context, topic string) (bool, error)
	DescribeTopic(ctx context.Context, topic string) (TopicDetails, error)
	CreateTopic(ctx context.Context, req CreateTopicRequest) error
	DeleteTopic(ctx context.Context, topic string) error
	DescribeGroup(ctx context.Context, group string) (GroupMetadata, error)
	Produce(ctx context.Context, topic string, msg OutgoingMessage) (SendResult, error)
	NewConsumer(opts ConsumerOptions) (Consumer, error)
	Close()
}

// ConsumerOptions configures a listener's consumer.
type ConsumerOptions struct {
	ClientID    string
	Group       string
	Topic       string
	OffsetReset string
}

// Consumer polls records for one listener session.
type Consumer interface {
	Poll(ctx context.Context) ([]Message, error)
	Close()
}
