//go:build integration

package kafka

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"testing"

	"github.com/OliveiraNt/kmt/internal/config"
	"github.com/testcontainers/testcontainers-go/modules/kafka"
)

type kafkaContainer struct {
	*kafka.KafkaContainer
	Brokers []string
}

func setupKafka(ctx context.Context) (*kafkaContainer, error) {
	container, err := kafka.Run(ctx,
		"confluentinc/cp-kafka:7.4.0",
		kafka.WithClusterID("test-cluster-id"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to start container: %w", err)
	}

	brokers, err := container.Brokers(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get brokers: %w", err)
	}

	return &kafkaContainer{
		KafkaContainer: container,
		Brokers:        brokers,
	}, nil
}

// getTestBroker starts a container and returns a broker config pointing at it.
func getTestBroker(t *testing.T) config.BrokerConfig {
	t.Helper()
	container, err := setupKafka(context.Background())
	if err != nil {
		t.Fatalf("failed to setup kafka: %v", err)
	}
	t.Cleanup(func() {
		if err := container.Terminate(context.Background()); err != nil {
			t.Errorf("failed to terminate container: %v", err)
		}
	})

	host, portStr, err := net.SplitHostPort(container.Brokers[0])
	if err != nil {
		t.Fatal(err)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		t.Fatal(err)
	}
	return config.BrokerConfig{Name: "it", Hostname: host, Port: port}
}
