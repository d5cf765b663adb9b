package kafka

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/OliveiraNt/kmt/internal/config"
	"github.com/OliveiraNt/kmt/internal/domain"
	"github.com/OliveiraNt/kmt/internal/utils"
	"github.com/twmb/franz-go/pkg/kgo"
)

// Consumer is a group consumer backing one listener session.
type Consumer struct {
	client *kgo.Client
	config config.BrokerConfig
	topic  string
}

// NewConsumer joins opts.Group on opts.Topic with auto commit. The client id
// is the listener name so group members are recognizable.
func NewConsumer(cfg config.BrokerConfig, opts domain.ConsumerOptions) (*Consumer, error) {
	base, err := clientOpts(cfg)
	if err != nil {
		return nil, err
	}

	reset := kgo.NewOffset().AtStart()
	if strings.EqualFold(opts.OffsetReset, "latest") {
		reset = kgo.NewOffset().AtEnd()
	}
	base = append(base,
		kgo.ConsumerGroup(opts.Group),
		kgo.ConsumeTopics(opts.Topic),
		kgo.ConsumeResetOffset(reset),
	)
	if opts.ClientID != "" {
		base = append(base, kgo.ClientID(opts.ClientID))
	}

	cl, err := kgo.NewClient(base...)
	if err != nil {
		return nil, err
	}
	return &Consumer{client: cl, config: cfg, topic: opts.Topic}, nil
}

// Poll waits for the next batch until ctx is done. An expired ctx yields an
// empty batch, not an error.
func (c *Consumer) Poll(ctx context.Context) ([]domain.Message, error) {
	fetches := c.client.PollFetches(ctx)
	if fetches.IsClientClosed() {
		return nil, domain.ErrHandleClosed
	}

	var firstErr error
	fetches.EachError(func(t string, p int32, err error) {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return
		}
		utils.Logger.Warn("fetch error", "topic", t, "partition", p, "err", err)
		if firstErr == nil {
			firstErr = fetchError(c.config, t, err)
		}
	})

	var out []domain.Message
	fetches.EachRecord(func(r *kgo.Record) {
		out = append(out, messageFromRecord(r))
	})
	if len(out) == 0 && firstErr != nil {
		return nil, firstErr
	}
	return out, nil
}

// fetchError classifies a partition fetch error. A topic the broker no
// longer knows ends the listener with domain.ErrTopicRemoved.
func fetchError(cfg config.BrokerConfig, topic string, err error) error {
	if isUnknownTopic(err) {
		return fmt.Errorf("fetch %s: %w", topic, domain.ErrTopicRemoved)
	}
	return classify("fetch", cfg, err)
}

func (c *Consumer) Close() {
	c.client.Close()
}

func messageFromRecord(r *kgo.Record) domain.Message {
	m := domain.Message{
		Topic:     r.Topic,
		Partition: r.Partition,
		Offset:    r.Offset,
		Key:       string(r.Key),
		Value:     string(r.Value),
		Timestamp: r.Timestamp,
	}
	for _, h := range r.Headers {
		m.Headers = append(m.Headers, domain.Header{Key: h.Key, Value: string(h.Value)})
	}
	return m
}
