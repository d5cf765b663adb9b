// Package application wires the broker operations coordinator: connection
// registry, executor and event sink, plus the services the presentation
// layers call.
package application

import (
	"context"
	"errors"
	"sync"

	"github.com/OliveiraNt/kmt/internal/config"
	"github.com/OliveiraNt/kmt/internal/domain"
	"github.com/OliveiraNt/kmt/internal/events"
	"github.com/OliveiraNt/kmt/internal/executor"
	"github.com/OliveiraNt/kmt/internal/registry"
	"github.com/OliveiraNt/kmt/internal/utils"
)

// Coordinator is the single entry point used by the CLI and the HTTP adapter.
type Coordinator struct {
	Brokers  *BrokerService
	Topics   *TopicService
	Groups   *ConsumerGroupsService
	Sessions *SessionService

	store    domain.ConfigStore
	settings config.Settings
	sink     *events.Sink
	exec     *executor.Executor
	registry *registry.Registry

	closeOnce sync.Once
	closeErr  error
}

// New builds the coordinator. settings are applied with defaults.
func New(store domain.ConfigStore, settings config.Settings, factory domain.ClientFactory, prober domain.Prober) *Coordinator {
	settings = settings.WithDefaults()
	sink := events.NewSink(settings.EventHistory)
	exec := executor.New(settings.Timeouts, settings.Workers, sink)
	reg := registry.New(exec, factory, prober, settings.IdleClose())

	c := &Coordinator{
		store:    store,
		settings: settings,
		sink:     sink,
		exec:     exec,
		registry: reg,
	}
	c.Brokers = NewBrokerService(store, reg, exec)
	c.Groups = NewConsumerGroupsService(store, reg, exec, sink)
	c.Sessions = NewSessionService(store, reg, exec, sink, settings.OutputBuffer)
	c.Topics = NewTopicService(store, reg, exec, sink, func(broker, topic string) {
		c.Sessions.FailListenersForTopic(broker, topic, domain.ErrTopicRemoved)
	})

	utils.Logger.Debug("coordinator ready", "workers", settings.Workers, "idle_close", settings.IdleClose(), "event_history", settings.EventHistory)
	return c
}

// Events is the result/event sink presentation layers subscribe to.
func (c *Coordinator) Events() *events.Sink { return c.sink }

// Executor runs remote calls under the configured budgets.
func (c *Coordinator) Executor() *executor.Executor { return c.exec }

// Config is the store the coordinator reads its records from.
func (c *Coordinator) Config() domain.ConfigStore { return c.store }

// Settings are the effective settings.
func (c *Coordinator) Settings() config.Settings { return c.settings }

// OnConfigChange closes the connections whose broker config changed or was
// removed. Sessions bound to them fail with a closed-handle cause.
func (c *Coordinator) OnConfigChange(cfg config.FileConfig) {
	ctx, cancel := context.WithTimeout(context.Background(), c.exec.Budget(domain.OpClose)*2)
	defer cancel()
	c.registry.Reconcile(ctx, cfg.Brokers)
}

// Close stops every session, closes every connection and the event sink.
func (c *Coordinator) Close(ctx context.Context) error {
	c.closeOnce.Do(func() {
		utils.Logger.Info("coordinator shutting down")
		sessErr := c.Sessions.StopAll(ctx)
		c.Topics.Wait()
		regErr := c.registry.Close(ctx)
		c.sink.Close()
		c.closeErr = errors.Join(sessErr, regErr)
	})
	return c.closeErr
}
