package config

import "time"

const (
	DefaultHostname       = "localhost"
	DefaultPort           = 9092
	DefaultTopic          = "test"
	DefaultMessageKey     = "kmt-msg-key"
	DefaultConsumerGroup  = "kmt-cg"
	DefaultFetchTimeoutMs = 5000
	DefaultOffsetReset    = "earliest"
	DefaultPartitions     = 1
	DefaultReplication    = 1

	DraftBrokerLabel   = "<new broker config>"
	DraftTopicLabel    = "<new topic config>"
	DraftSenderLabel   = "<new message sender config>"
	DraftListenerLabel = "<new message listener config>"
)

// NewBrokerConfig returns an unnamed draft pointing at localhost:9092.
func NewBrokerConfig() BrokerConfig {
	return BrokerConfig{Draft: true}.WithDefaults()
}

// NewTopicConfig returns an unnamed draft for topic "test" on the given broker.
func NewTopicConfig(broker string) TopicConfig {
	return TopicConfig{Draft: true, Broker: broker}.WithDefaults()
}

// NewSenderConfig returns an unnamed sender draft.
func NewSenderConfig(broker string) SenderConfig {
	return SenderConfig{Draft: true, Broker: broker}.WithDefaults()
}

// NewListenerConfig returns an unnamed listener draft.
func NewListenerConfig(broker string) ListenerConfig {
	return ListenerConfig{Draft: true, Broker: broker}.WithDefaults()
}

func (c BrokerConfig) WithDefaults() BrokerConfig {
	if c.Hostname == "" {
		c.Hostname = DefaultHostname
	}
	if c.Port == 0 {
		c.Port = DefaultPort
	}
	if c.Name == "" {
		c.Draft = true
	}
	return c
}

func (c TopicConfig) WithDefaults() TopicConfig {
	if c.Topic == "" {
		c.Topic = DefaultTopic
	}
	if c.Partitions == 0 {
		c.Partitions = DefaultPartitions
	}
	if c.ReplicationFactor == 0 {
		c.ReplicationFactor = DefaultReplication
	}
	if c.Name == "" {
		c.Draft = true
	}
	return c
}

func (c SenderConfig) WithDefaults() SenderConfig {
	if c.Topic == "" {
		c.Topic = DefaultTopic
	}
	if c.MessageKey == "" {
		c.MessageKey = DefaultMessageKey
	}
	if c.RepeatCount == 0 {
		c.RepeatCount = 1
	}
	if c.Name == "" {
		c.Draft = true
	}
	return c
}

func (c ListenerConfig) WithDefaults() ListenerConfig {
	if c.Topic == "" {
		c.Topic = DefaultTopic
	}
	if c.ConsumerGroup == "" {
		c.ConsumerGroup = DefaultConsumerGroup
	}
	if c.FetchTimeoutMs == 0 {
		c.FetchTimeoutMs = DefaultFetchTimeoutMs
	}
	if c.OffsetReset == "" {
		c.OffsetReset = DefaultOffsetReset
	}
	if c.Name == "" {
		c.Draft = true
	}
	return c
}

// Rename gives the record a real name; an empty name turns it back into a draft.
func (c *BrokerConfig) Rename(name string) { c.Name, c.Draft = name, name == "" }

func (c *TopicConfig) Rename(name string) { c.Name, c.Draft = name, name == "" }

func (c *SenderConfig) Rename(name string) { c.Name, c.Draft = name, name == "" }

func (c *ListenerConfig) Rename(name string) { c.Name, c.Draft = name, name == "" }

// Label is the display name: the placeholder while the record is a draft.
func (c *BrokerConfig) Label() string { return label(c.Name, c.Draft, DraftBrokerLabel) }

func (c *TopicConfig) Label() string { return label(c.Name, c.Draft, DraftTopicLabel) }

func (c *SenderConfig) Label() string { return label(c.Name, c.Draft, DraftSenderLabel) }

func (c *ListenerConfig) Label() string { return label(c.Name, c.Draft, DraftListenerLabel) }

func label(name string, draft bool, placeholder string) string {
	if draft || name == "" {
		return placeholder
	}
	return name
}

// FetchTimeout is the per-poll budget of the listener.
func (c *ListenerConfig) FetchTimeout() time.Duration {
	if c.FetchTimeoutMs <= 0 {
		return DefaultFetchTimeoutMs * time.Millisecond
	}
	return time.Duration(c.FetchTimeoutMs) * time.Millisecond
}
