// Package session implements sender and listener sessions: long-lived
// message exchanges bound to one broker connection handle.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/OliveiraNt/kmt/internal/config"
	"github.com/OliveiraNt/kmt/internal/domain"
	"github.com/OliveiraNt/kmt/internal/registry"
	"github.com/OliveiraNt/kmt/internal/utils"
	"github.com/google/uuid"
)

// ErrStopped is the cancellation cause of work interrupted by Stop.
var ErrStopped = errors.New("session stopped")

// Kind tells senders and listeners apart.
type Kind string

const (
	KindSender   Kind = "sender"
	KindListener Kind = "listener"
)

// Connections hands out reference-counted broker handles.
type Connections interface {
	Acquire(ctx context.Context, cfg config.BrokerConfig) (*registry.Handle, error)
	Release(h *registry.Handle)
}

// Session is the common surface of senders and listeners.
type Session interface {
	ID() string
	Kind() Kind
	Name() string
	Broker() string
	Topic() string
	State() domain.SessionState
	Cause() error
	Info() Info
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
}

// Info is a snapshot of a session.
type Info struct {
	ID        string              `json:"id"`
	Kind      Kind                `json:"kind"`
	Name      string              `json:"name"`
	Broker    string              `json:"broker"`
	Topic     string              `json:"topic"`
	State     domain.SessionState `json:"state"`
	Error     string              `json:"error,omitempty"`
	StartedAt time.Time           `json:"started_at,omitempty"`
	Count     int64               `json:"count"`
}

// base holds the state machine shared by both session kinds.
type base struct {
	id     string
	kind   Kind
	name   string
	broker string
	topic  string
	sink   domain.EventPublisher

	mu        sync.Mutex
	state     domain.SessionState
	cause     error
	startedAt time.Time
}

func newBase(kind Kind, name, broker, topic string, sink domain.EventPublisher) base {
	return base{
		id:     uuid.NewString(),
		kind:   kind,
		name:   name,
		broker: broker,
		topic:  topic,
		sink:   sink,
		state:  domain.SessionIdle,
	}
}

func (b *base) ID() string     { return b.id }
func (b *base) Kind() Kind     { return b.kind }
func (b *base) Name() string   { return b.name }
func (b *base) Broker() string { return b.broker }
func (b *base) Topic() string  { return b.topic }

func (b *base) State() domain.SessionState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Cause is the reason of the last failure, nil unless the session is Failed.
func (b *base) Cause() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.cause
}

func (b *base) info(count int64) Info {
	b.mu.Lock()
	defer b.mu.Unlock()
	in := Info{
		ID:        b.id,
		Kind:      b.kind,
		Name:      b.name,
		Broker:    b.broker,
		Topic:     b.topic,
		State:     b.state,
		StartedAt: b.startedAt,
		Count:     count,
	}
	if b.cause != nil {
		in.Error = b.cause.Error()
	}
	return in
}

// transition moves the session to next and publishes the change.
func (b *base) transition(next domain.SessionState, cause error) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.transitionLocked(next, cause)
}

func (b *base) transitionLocked(next domain.SessionState, cause error) error {
	if !b.state.CanTransition(next) {
		return fmt.Errorf("%w: %s -> %s", domain.ErrInvalidTransition, b.state, next)
	}
	b.state = next
	switch next {
	case domain.SessionStarting:
		b.cause = nil
		b.startedAt = time.Now()
	case domain.SessionFailed:
		b.cause = cause
	}

	if next == domain.SessionFailed {
		utils.Logger.Warn("session failed", "session", b.name, "kind", b.kind, "broker", b.broker, "err", cause)
	} else {
		utils.Logger.Debug("session state", "session", b.name, "kind", b.kind, "state", next)
	}
	if b.sink != nil {
		b.sink.Publish(domain.SessionStateEvent(b.name, b.broker, b.topic, next, cause))
	}
	return nil
}

// run is the per-start state of a session. A restart gets a fresh run.
type run struct {
	h      *registry.Handle
	ctx    context.Context
	cancel context.CancelCauseFunc
	done   chan struct{}

	releaseOnce sync.Once
	closeOnce   sync.Once
	conns       Connections
}

func newRun(h *registry.Handle, conns Connections) *run {
	ctx, cancel := context.WithCancelCause(context.Background())
	return &run{h: h, ctx: ctx, cancel: cancel, done: make(chan struct{}), conns: conns}
}

func (r *run) release() {
	r.releaseOnce.Do(func() { r.conns.Release(r.h) })
}

// merge returns a context cancelled when either ctx or the run is cancelled.
func (r *run) merge(ctx context.Context) (context.Context, context.CancelFunc) {
	merged, cancel := context.WithCancelCause(ctx)
	stop := context.AfterFunc(r.ctx, func() { cancel(context.Cause(r.ctx)) })
	return merged, func() {
		stop()
		cancel(nil)
	}
}
