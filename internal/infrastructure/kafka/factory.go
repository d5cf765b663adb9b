package kafka

import (
	"github.com/OliveiraNt/kmt/internal/config"
	"github.com/OliveiraNt/kmt/internal/domain"
)

// DefaultClientID identifies kmt to brokers when a config sets none.
const DefaultClientID = "kmt"

// Factory builds franz-go backed clients.
type Factory struct {
	clientID string
}

func NewFactory() *Factory {
	return &Factory{clientID: DefaultClientID}
}

// CreateClient returns a client for cfg, filling in the default client id.
func (f *Factory) CreateClient(cfg config.BrokerConfig) (domain.KafkaClient, error) {
	if cfg.ClientID == "" {
		cfg.ClientID = f.clientID
	}
	return NewClient(cfg)
}
