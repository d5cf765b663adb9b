package session

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/OliveiraNt/kmt/internal/config"
	"github.com/OliveiraNt/kmt/internal/domain"
	"github.com/OliveiraNt/kmt/internal/events"
	"github.com/OliveiraNt/kmt/internal/executor"
	"github.com/OliveiraNt/kmt/internal/utils"
)

const pollBackoff = 250 * time.Millisecond

// Listener consumes one topic as a member of the configured consumer group.
// Received messages are kept in a bounded output buffer in arrival order.
type Listener struct {
	base
	cfg       config.ListenerConfig
	brokerCfg config.BrokerConfig
	conns     Connections
	exec      *executor.Executor

	run      *run // guarded by base.mu
	consumer domain.Consumer

	outMu    sync.Mutex
	output   *events.Ring[domain.Message]
	msgs     chan domain.Message
	received atomic.Int64
}

func NewListener(cfg config.ListenerConfig, brokerCfg config.BrokerConfig, conns Connections, exec *executor.Executor, sink domain.EventPublisher, outputSize int) *Listener {
	if outputSize <= 0 {
		outputSize = 1
	}
	return &Listener{
		base:      newBase(KindListener, cfg.Name, brokerCfg.Name, cfg.Topic, sink),
		cfg:       cfg,
		brokerCfg: brokerCfg,
		conns:     conns,
		exec:      exec,
		output:    events.NewRing[domain.Message](outputSize),
		msgs:      make(chan domain.Message, outputSize),
	}
}

func (l *Listener) Config() config.ListenerConfig { return l.cfg }

func (l *Listener) Info() Info { return l.info(l.received.Load()) }

// Output returns the buffered messages, oldest first.
func (l *Listener) Output() []domain.Message {
	l.outMu.Lock()
	defer l.outMu.Unlock()
	return l.output.Snapshot()
}

// Messages streams received messages. Messages are dropped when the reader
// falls behind; Output still has them.
func (l *Listener) Messages() <-chan domain.Message { return l.msgs }

// Done is closed when the current polling loop exits.
func (l *Listener) Done() <-chan struct{} {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.run == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return l.run.done
}

// Start acquires the connection handle, joins the consumer group and begins polling.
func (l *Listener) Start(ctx context.Context) error {
	if err := l.transition(domain.SessionStarting, nil); err != nil {
		return err
	}
	h, err := l.conns.Acquire(ctx, l.brokerCfg)
	if err != nil {
		_ = l.transition(domain.SessionFailed, err)
		return err
	}
	consumer, err := h.Client().NewConsumer(domain.ConsumerOptions{
		ClientID:    l.cfg.Name,
		Group:       l.cfg.ConsumerGroup,
		Topic:       l.cfg.Topic,
		OffsetReset: l.cfg.OffsetReset,
	})
	if err != nil {
		l.conns.Release(h)
		_ = l.transition(domain.SessionFailed, err)
		return err
	}

	r := newRun(h, l.conns)
	l.mu.Lock()
	l.run = r
	l.consumer = consumer
	err = l.transitionLocked(domain.SessionRunning, nil)
	l.mu.Unlock()
	if err != nil {
		r.cancel(err)
		consumer.Close()
		r.release()
		return err
	}

	go l.loop(r, consumer)
	go l.watchHandle(r)
	return nil
}

func (l *Listener) watchHandle(r *run) {
	select {
	case <-r.h.Done():
		l.fail(r, domain.ErrHandleClosed)
	case <-r.done:
	}
}

func (l *Listener) loop(r *run, consumer domain.Consumer) {
	defer close(r.done)
	fetchTimeout := l.cfg.FetchTimeout()

	for r.ctx.Err() == nil {
		pollCtx, cancel := context.WithTimeout(r.ctx, fetchTimeout)
		msgs, err := consumer.Poll(pollCtx)
		cancel()
		if r.ctx.Err() != nil {
			return
		}

		if err != nil {
			if errors.Is(err, domain.ErrTopicRemoved) {
				l.fail(r, err)
				return
			}
			r.h.ReportError(err)
			if !r.h.Healthy() {
				l.fail(r, err)
				return
			}
			utils.Logger.Warn("poll failed", "session", l.name, "topic", l.cfg.Topic, "err", err)
			select {
			case <-time.After(pollBackoff):
			case <-r.ctx.Done():
				return
			}
			continue
		}

		for _, m := range msgs {
			l.deliver(m)
		}
		if l.cfg.MaxMessages > 0 && l.received.Load() >= int64(l.cfg.MaxMessages) {
			utils.Logger.Info("listener reached max messages", "session", l.name, "max", l.cfg.MaxMessages)
			go func() { _ = l.Stop(context.Background()) }()
			return
		}
	}
}

func (l *Listener) deliver(m domain.Message) {
	l.outMu.Lock()
	l.output.Push(m)
	l.outMu.Unlock()
	l.received.Add(1)

	select {
	case l.msgs <- m:
	default:
	}

	if l.sink != nil {
		msg := m
		l.sink.Publish(domain.Event{
			Type:    domain.EventMessage,
			Session: l.name,
			Broker:  l.broker,
			Topic:   m.Topic,
			Message: &msg,
			Key:     "events.message",
			Args:    map[string]any{"topic": m.Topic, "partition": m.Partition, "offset": m.Offset, "key": m.Key},
		})
	}
}

// Stop requests cooperative termination of the polling loop and closes the
// consumer, bounded by the close timeout. Exceeding it moves the session to
// Failed. The connection handle is released either way.
func (l *Listener) Stop(ctx context.Context) error {
	l.mu.Lock()
	r, consumer := l.run, l.consumer
	if l.state.Terminal() || l.state == domain.SessionIdle {
		l.mu.Unlock()
		return nil
	}
	if err := l.transitionLocked(domain.SessionStopping, nil); err != nil {
		l.mu.Unlock()
		return err
	}
	l.mu.Unlock()

	r.cancel(ErrStopped)
	_, err := l.exec.Run(ctx, domain.OpStopSession, executor.Broker(l.broker), func(ctx context.Context) (any, error) {
		select {
		case <-r.done:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
		l.closeConsumer(r, consumer)
		return nil, nil
	})
	r.release()

	if err != nil {
		_ = l.transition(domain.SessionFailed, err)
		return err
	}
	if err := l.transition(domain.SessionStopped, nil); err != nil {
		utils.Logger.Debug("listener stop raced with failure", "session", l.name, "err", err)
	}
	return nil
}

// Fail forces the session to Failed with cause. It does not wait for the
// polling loop; the consumer is closed once the loop exits.
func (l *Listener) Fail(cause error) {
	l.mu.Lock()
	r := l.run
	l.mu.Unlock()
	if r != nil {
		l.fail(r, cause)
	}
}

func (l *Listener) fail(r *run, cause error) {
	l.mu.Lock()
	if l.run != r || l.state.Terminal() || l.state == domain.SessionIdle {
		l.mu.Unlock()
		return
	}
	consumer := l.consumer
	err := l.transitionLocked(domain.SessionFailed, cause)
	l.mu.Unlock()
	if err != nil {
		return
	}

	r.cancel(cause)
	r.release()
	go func() {
		<-r.done
		l.closeConsumer(r, consumer)
	}()
}

func (l *Listener) closeConsumer(r *run, consumer domain.Consumer) {
	r.closeOnce.Do(consumer.Close)
}
