package application

import (
	"context"
	"fmt"

	"github.com/OliveiraNt/kmt/internal/config"
	"github.com/OliveiraNt/kmt/internal/domain"
	"github.com/OliveiraNt/kmt/internal/executor"
	"github.com/OliveiraNt/kmt/internal/registry"
	"github.com/OliveiraNt/kmt/internal/utils"
)

type clusterInfo struct {
	cluster *domain.Cluster
	brokers []domain.BrokerDetail
}

// BrokerService provides operations related to broker configs and their connections.
type BrokerService struct {
	store    domain.ConfigStore
	registry *registry.Registry
	exec     *executor.Executor
}

// NewBrokerService creates a new broker service.
func NewBrokerService(store domain.ConfigStore, reg *registry.Registry, exec *executor.Executor) *BrokerService {
	return &BrokerService{store: store, registry: reg, exec: exec}
}

// ListBrokers lists all broker configs.
func (s *BrokerService) ListBrokers() []config.BrokerConfig {
	return s.store.Brokers()
}

// GetBroker retrieves a broker config by name.
func (s *BrokerService) GetBroker(name string) (config.BrokerConfig, bool) {
	return s.store.Broker(name)
}

// Status connects to the broker and returns the cluster as seen through it.
// The returned cluster is filled from the config even when the broker is
// unreachable, with IsOnline false and the connect error.
func (s *BrokerService) Status(ctx context.Context, name string) (*domain.Cluster, []domain.BrokerDetail, error) {
	cfg, ok := s.store.Broker(name)
	if !ok {
		return nil, nil, fmt.Errorf("%w: %q", ErrBrokerNotFound, name)
	}

	cluster := &domain.Cluster{
		Name:     cfg.Name,
		Address:  cfg.Address(),
		AuthType: cfg.GetAuthType(),
	}
	if cfg.HasCertificate() {
		if certInfo, err := cfg.GetCertificateInfo(); err == nil {
			cluster.CertInfo = certInfo
		} else {
			utils.Logger.Warn("get certificate info failed", "broker", cfg.Name, "err", err)
		}
	}

	var details []domain.BrokerDetail
	err := withHandle(ctx, s.store, s.registry, name, func(h *registry.Handle) error {
		info, err := executor.Do(ctx, s.exec, domain.OpClusterInfo, h, func(ctx context.Context) (clusterInfo, error) {
			c, b, err := h.Client().ClusterInfo(ctx)
			return clusterInfo{cluster: c, brokers: b}, err
		})
		if err != nil {
			return err
		}
		if info.cluster != nil {
			cluster.ID = info.cluster.ID
			cluster.Controller = info.cluster.Controller
			cluster.Brokers = info.cluster.Brokers
		}
		cluster.Advertised = h.Advertised()
		details = info.brokers

		settings, err := clusterSettings(ctx, s.exec, h)
		if err != nil {
			utils.Logger.Warn("broker configs unavailable", "broker", name, "err", err)
			return nil
		}
		if settings != nil && len(settings.Inconsistent) > 0 {
			utils.Logger.Warn("cluster configuration is inconsistent", "broker", name, "properties", settings.Inconsistent)
		}
		cluster.Settings = settings
		return nil
	})
	if err != nil {
		utils.Logger.Warn("broker status unavailable", "broker", name, "err", err)
		return cluster, nil, err
	}
	cluster.IsOnline = true
	return cluster, details, nil
}

// Connections returns the live connection handles.
func (s *BrokerService) Connections() []registry.HandleInfo {
	return s.registry.Handles()
}

// Disconnect force-closes the connection to the broker. Sessions using it fail.
func (s *BrokerService) Disconnect(ctx context.Context, name string) error {
	if _, ok := s.store.Broker(name); !ok {
		return fmt.Errorf("%w: %q", ErrBrokerNotFound, name)
	}
	return s.registry.ForceClose(ctx, name)
}
