//go:build integration

package kafka

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/OliveiraNt/kmt/internal/domain"
)

func TestIntegration_TopicLifecycleAndExchange(t *testing.T) {
	cfg := getTestBroker(t)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	advertised, err := NewProber().Probe(ctx, cfg)
	if err != nil {
		t.Fatalf("Probe() error = %v", err)
	}
	if len(advertised) == 0 {
		t.Fatal("expected at least one reachable listener")
	}

	client, err := NewClient(cfg)
	if err != nil {
		t.Fatal(err)
	}
	defer client.Close()

	if err := client.Ping(ctx); err != nil {
		t.Fatalf("Ping() error = %v", err)
	}
	cluster, brokers, err := client.ClusterInfo(ctx)
	if err != nil {
		t.Fatalf("ClusterInfo() error = %v", err)
	}
	if cluster.ID == "" || len(brokers) == 0 {
		t.Errorf("unexpected cluster info %+v %+v", cluster, brokers)
	}

	if err := client.CreateTopic(ctx, domain.CreateTopicRequest{Name: "kmt-it", NumPartitions: 2, ReplicationFactor: 1}); err != nil {
		t.Fatalf("CreateTopic() error = %v", err)
	}
	err = client.CreateTopic(ctx, domain.CreateTopicRequest{Name: "kmt-it", NumPartitions: 2, ReplicationFactor: 1})
	if !domain.IsProtocol(err) {
		t.Errorf("duplicate create should be a protocol error, got %v", err)
	}

	topics, err := client.ListTopics(ctx, false)
	if err != nil {
		t.Fatal(err)
	}
	if topics["kmt-it"] != 2 {
		t.Errorf("expected kmt-it with 2 partitions, got %v", topics)
	}

	for _, v := range []string{"one", "two", "three"} {
		if _, err := client.Produce(ctx, "kmt-it", domain.OutgoingMessage{Key: "k", Value: v}); err != nil {
			t.Fatalf("Produce() error = %v", err)
		}
	}

	consumer, err := client.NewConsumer(domain.ConsumerOptions{ClientID: "it-listener", Group: "kmt-cg", Topic: "kmt-it", OffsetReset: "earliest"})
	if err != nil {
		t.Fatal(err)
	}
	var got []string
	for len(got) < 3 && ctx.Err() == nil {
		pollCtx, pollCancel := context.WithTimeout(ctx, 5*time.Second)
		msgs, err := consumer.Poll(pollCtx)
		pollCancel()
		if err != nil {
			t.Fatalf("Poll() error = %v", err)
		}
		for _, m := range msgs {
			got = append(got, m.Value)
		}
	}
	// same key, same partition: order is preserved
	if len(got) != 3 || got[0] != "one" || got[2] != "three" {
		t.Errorf("unexpected messages %v", got)
	}

	md, err := client.DescribeGroup(ctx, "kmt-cg")
	if err != nil {
		t.Fatalf("DescribeGroup() error = %v", err)
	}
	if md.GroupID != "kmt-cg" {
		t.Errorf("unexpected group %+v", md)
	}

	details, err := client.DescribeTopic(ctx, "kmt-it")
	if err != nil {
		t.Fatalf("DescribeTopic() error = %v", err)
	}
	if details.Partitions == 0 || len(details.Config) == 0 {
		t.Errorf("unexpected topic details %+v", details)
	}
	if _, err := client.DescribeTopic(ctx, "kmt-missing"); !errors.Is(err, domain.ErrUnknownTopic) {
		t.Errorf("missing topic error = %v", err)
	}

	nodes, err := client.BrokerConfigs(ctx)
	if err != nil {
		t.Fatalf("BrokerConfigs() error = %v", err)
	}
	if len(nodes) == 0 {
		t.Error("expected at least one broker config")
	}
	consumer.Close()

	if err := client.DeleteTopic(ctx, "kmt-it"); err != nil {
		t.Fatalf("DeleteTopic() error = %v", err)
	}
	exists, err := client.admin.TopicExists(ctx, "kmt-it")
	if err != nil && !errors.Is(err, context.DeadlineExceeded) {
		t.Fatal(err)
	}
	if exists {
		t.Error("topic still listed after delete")
	}
}
