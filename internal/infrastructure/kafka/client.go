package kafka

import (
	"context"
	"net"
	"strconv"

	"github.com/OliveiraNt/kmt/internal/config"
	"github.com/OliveiraNt/kmt/internal/domain"
	"github.com/twmb/franz-go/pkg/kadm"
	"github.com/twmb/franz-go/pkg/kgo"
)

// Client implements domain.KafkaClient using franz-go. Deadlines come from
// the caller's context.
type Client struct {
	client *kgo.Client
	admin  *Admin
	config config.BrokerConfig
}

// clientOpts builds the connection options shared by the admin client and
// listener consumers.
func clientOpts(cfg config.BrokerConfig) ([]kgo.Opt, error) {
	opts := []kgo.Opt{kgo.SeedBrokers(cfg.Address())}
	if cfg.ClientID != "" {
		opts = append(opts, kgo.ClientID(cfg.ClientID))
	}
	if cfg.TLS != nil && cfg.TLS.Enabled {
		tlsCfg, err := buildTLSConfig(cfg.TLS)
		if err != nil {
			return nil, err
		}
		opts = append(opts, kgo.DialTLSConfig(tlsCfg))
	}
	if cfg.SASL != nil && cfg.SASL.Mechanism != "" {
		mech, err := buildSASLMechanism(cfg.SASL)
		if err != nil {
			return nil, err
		}
		if mech != nil {
			opts = append(opts, kgo.SASL(mech))
		}
	}
	if cfg.AWS != nil && cfg.AWS.IAM {
		mech, err := buildAWSMechanism(cfg.AWS)
		if err != nil {
			return nil, err
		}
		if mech != nil {
			opts = append(opts, kgo.SASL(mech))
		}
	}
	return opts, nil
}

// NewClient creates a client for one broker config. No connection is made
// until the first request.
func NewClient(cfg config.BrokerConfig) (*Client, error) {
	opts, err := clientOpts(cfg)
	if err != nil {
		return nil, err
	}
	cl, err := kgo.NewClient(opts...)
	if err != nil {
		return nil, err
	}
	return &Client{
		client: cl,
		admin:  NewAdmin(kadm.NewClient(cl), cfg),
		config: cfg,
	}, nil
}

// Ping checks that at least one broker answers.
func (c *Client) Ping(ctx context.Context) error {
	return classify("ping", c.config, c.client.Ping(ctx))
}

// ClusterInfo returns the cluster id, controller and broker list.
func (c *Client) ClusterInfo(ctx context.Context) (*domain.Cluster, []domain.BrokerDetail, error) {
	meta, err := c.admin.BrokerMetadata(ctx)
	if err != nil {
		return nil, nil, err
	}

	cluster := &domain.Cluster{
		ID:         meta.Cluster,
		Name:       c.config.Name,
		Address:    c.config.Address(),
		Controller: meta.Controller,
		IsOnline:   true,
		AuthType:   c.config.GetAuthType(),
	}
	details := make([]domain.BrokerDetail, 0, len(meta.Brokers))
	for _, b := range meta.Brokers {
		cluster.Brokers = append(cluster.Brokers, net.JoinHostPort(b.Host, strconv.Itoa(int(b.Port))))
		rack := ""
		if b.Rack != nil {
			rack = *b.Rack
		}
		details = append(details, domain.BrokerDetail{
			ID:           b.NodeID,
			Host:         b.Host,
			Port:         b.Port,
			Rack:         rack,
			IsController: b.NodeID == meta.Controller,
		})
	}
	return cluster, details, nil
}

func (c *Client) ListTopics(ctx context.Context, showInternal bool) (map[string]int, error) {
	return c.admin.ListTopics(ctx, showInternal)
}

func (c *Client) BrokerConfigs(ctx context.Context) (domain.NodeConfigs, error) {
	return c.admin.BrokerConfigs(ctx)
}

func (c *Client) TopicExists(ctx context.Context, topic string) (bool, error) {
	return c.admin.TopicExists(ctx, topic)
}

func (c *Client) DescribeTopic(ctx context.Context, topic string) (domain.TopicDetails, error) {
	return c.admin.DescribeTopic(ctx, topic)
}

func (c *Client) CreateTopic(ctx context.Context, req domain.CreateTopicRequest) error {
	return c.admin.CreateTopic(ctx, req)
}

func (c *Client) DeleteTopic(ctx context.Context, topic string) error {
	return c.admin.DeleteTopic(ctx, topic)
}

func (c *Client) DescribeGroup(ctx context.Context, group string) (domain.GroupMetadata, error) {
	return c.admin.DescribeGroup(ctx, group)
}

// Produce writes one record and waits for its acknowledgment.
func (c *Client) Produce(ctx context.Context, topic string, msg domain.OutgoingMessage) (domain.SendResult, error) {
	rec := &kgo.Record{
		Topic: topic,
		Key:   []byte(msg.Key),
		Value: []byte(msg.Value),
	}
	for _, h := range msg.Headers {
		rec.Headers = append(rec.Headers, kgo.RecordHeader{Key: h.Key, Value: []byte(h.Value)})
	}

	r, err := c.client.ProduceSync(ctx, rec).First()
	if err != nil {
		return domain.SendResult{}, classify("produce", c.config, err)
	}
	return domain.SendResult{
		Topic:     r.Topic,
		Partition: r.Partition,
		Offset:    r.Offset,
		Timestamp: r.Timestamp,
	}, nil
}

// NewConsumer creates a group consumer on its own client, so that closing a
// listener never disturbs the shared handle.
func (c *Client) NewConsumer(opts domain.ConsumerOptions) (domain.Consumer, error) {
	return NewConsumer(c.config, opts)
}

func (c *Client) Close() {
	if c != nil && c.client != nil {
		c.client.Close()
	}
}

// Config returns the broker configuration.
func (c *Client) Config() config.BrokerConfig {
	return c.config
}
