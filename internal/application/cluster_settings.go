package application

import (
	"context"
	"sort"
	"strings"

	"github.com/OliveiraNt/kmt/internal/domain"
	"github.com/OliveiraNt/kmt/internal/executor"
	"github.com/OliveiraNt/kmt/internal/registry"
)

const (
	deleteTopicEnable      = "delete.topic.enable"
	autoCreateTopicsEnable = "auto.create.topics.enable"
)

// nodeScoped are broker properties expected to differ from node to node.
var nodeScoped = map[string]bool{
	"broker.id":            true,
	"node.id":              true,
	"broker.rack":          true,
	"listeners":            true,
	"advertised.listeners": true,
	"advertised.host.name": true,
	"advertised.port":      true,
	"host.name":            true,
	"port":                 true,
	"log.dir":              true,
	"log.dirs":             true,
	"metadata.log.dir":     true,
}

// clusterSettings describes the broker configs of every node through h.
func clusterSettings(ctx context.Context, exec *executor.Executor, h *registry.Handle) (*domain.ClusterSettings, error) {
	nodes, err := executor.Do(ctx, exec, domain.OpBrokerConfigs, h, func(ctx context.Context) (domain.NodeConfigs, error) {
		return h.Client().BrokerConfigs(ctx)
	})
	if err != nil {
		return nil, err
	}
	return summarizeNodeConfigs(nodes), nil
}

// summarizeNodeConfigs folds per-node configs into cluster settings. It
// returns nil when no node answered. A boolean setting a node leaves unset
// takes the broker default, which is true for both topic settings.
func summarizeNodeConfigs(nodes domain.NodeConfigs) *domain.ClusterSettings {
	if len(nodes) == 0 {
		return nil
	}
	return &domain.ClusterSettings{
		TopicDeletion:     boolSetting(nodes, deleteTopicEnable),
		TopicAutoCreation: boolSetting(nodes, autoCreateTopicsEnable),
		Inconsistent:      inconsistentProperties(nodes),
	}
}

func boolSetting(nodes domain.NodeConfigs, key string) domain.SettingState {
	var on, off int
	for _, cfg := range nodes {
		v, ok := cfg[key]
		if !ok || strings.EqualFold(strings.TrimSpace(v), "true") {
			on++
		} else {
			off++
		}
	}
	switch {
	case off == 0:
		return domain.SettingEnabled
	case on == 0:
		return domain.SettingDisabled
	default:
		return domain.SettingInconsistent
	}
}

// inconsistentProperties lists, sorted, the cluster-wide properties whose
// value is not the same on every node.
func inconsistentProperties(nodes domain.NodeConfigs) []string {
	values := make(map[string]map[string]struct{})
	for _, cfg := range nodes {
		for k, v := range cfg {
			if nodeScoped[k] || strings.HasPrefix(k, "listener.name.") {
				continue
			}
			if values[k] == nil {
				values[k] = make(map[string]struct{})
			}
			values[k][v] = struct{}{}
		}
	}

	var out []string
	for k, vs := range values {
		if len(vs) > 1 {
			out = append(out, k)
		}
	}
	sort.Strings(out)
	return out
}
