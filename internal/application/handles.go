package application

import (
	"context"
	"fmt"

	"github.com/OliveiraNt/kmt/internal/config"
	"github.com/OliveiraNt/kmt/internal/domain"
	"github.com/OliveiraNt/kmt/internal/registry"
)

// Connections is the part of the registry the services use.
type Connections interface {
	Acquire(ctx context.Context, cfg config.BrokerConfig) (*registry.Handle, error)
	Release(h *registry.Handle)
}

// brokerConfig resolves a broker record by name. Drafts cannot connect.
func brokerConfig(store domain.ConfigStore, name string) (config.BrokerConfig, error) {
	cfg, ok := store.Broker(name)
	if !ok {
		return config.BrokerConfig{}, fmt.Errorf("%w: %q", ErrBrokerNotFound, name)
	}
	if cfg.Draft || cfg.Hostname == "" || cfg.Port <= 0 {
		return config.BrokerConfig{}, fmt.Errorf("%w: %q", ErrInvalidBrokerConfig, name)
	}
	return cfg, nil
}

// withHandle runs fn with a referenced handle for broker and releases it
// afterwards. Errors returned by fn are reported to the handle.
func withHandle(ctx context.Context, store domain.ConfigStore, conns Connections, broker string, fn func(h *registry.Handle) error) error {
	cfg, err := brokerConfig(store, broker)
	if err != nil {
		return err
	}
	h, err := conns.Acquire(ctx, cfg)
	if err != nil {
		return err
	}
	defer conns.Release(h)

	if err := fn(h); err != nil {
		h.ReportError(err)
		return err
	}
	return nil
}
