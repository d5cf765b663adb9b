package application

import (
	"testing"

	"github.com/OliveiraNt/kmt/internal/domain"
	"github.com/stretchr/testify/require"
)

func TestSummarizeNodeConfigs(t *testing.T) {
	t.Parallel()

	require.Nil(t, summarizeNodeConfigs(nil))

	s := summarizeNodeConfigs(domain.NodeConfigs{
		1: {"broker.id": "1", "delete.topic.enable": "true", "num.partitions": "3", "listener.name.internal.ssl.keystore.type": "JKS"},
		2: {"broker.id": "2", "num.partitions": "3", "listener.name.internal.ssl.keystore.type": "PKCS12"},
	})
	require.Equal(t, domain.SettingEnabled, s.TopicDeletion)
	require.Equal(t, domain.SettingEnabled, s.TopicAutoCreation)
	require.Empty(t, s.Inconsistent)

	s = summarizeNodeConfigs(domain.NodeConfigs{
		1: {"delete.topic.enable": "false", "auto.create.topics.enable": "false", "num.partitions": "3", "log.retention.hours": "168"},
		2: {"delete.topic.enable": "false", "auto.create.topics.enable": "true", "num.partitions": "1", "log.retention.hours": "24"},
	})
	require.Equal(t, domain.SettingDisabled, s.TopicDeletion)
	require.Equal(t, domain.SettingInconsistent, s.TopicAutoCreation)
	require.Equal(t, []string{"auto.create.topics.enable", "log.retention.hours", "num.partitions"}, s.Inconsistent)
}
