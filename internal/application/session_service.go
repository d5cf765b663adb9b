package application

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/OliveiraNt/kmt/internal/domain"
	"github.com/OliveiraNt/kmt/internal/executor"
	"github.com/OliveiraNt/kmt/internal/session"
	"github.com/OliveiraNt/kmt/internal/utils"
)

// SessionService owns the sender and listener sessions started from config records.
type SessionService struct {
	store      domain.ConfigStore
	conns      session.Connections
	exec       *executor.Executor
	sink       domain.EventPublisher
	outputSize int

	mu       sync.RWMutex
	sessions map[string]session.Session
	closed   bool
}

func NewSessionService(store domain.ConfigStore, conns session.Connections, exec *executor.Executor, sink domain.EventPublisher, outputSize int) *SessionService {
	return &SessionService{
		store:      store,
		conns:      conns,
		exec:       exec,
		sink:       sink,
		outputSize: outputSize,
		sessions:   make(map[string]session.Session),
	}
}

// StartSender creates a session from the named sender config and starts it.
// A session that fails to start is kept, Failed, so it can be inspected and
// restarted; it is returned together with the error.
func (s *SessionService) StartSender(ctx context.Context, name string) (*session.Sender, error) {
	cfg, ok := s.store.Sender(name)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrSenderNotFound, name)
	}
	bc, err := brokerConfig(s.store, cfg.Broker)
	if err != nil {
		return nil, err
	}

	snd := session.NewSender(cfg, bc, s.conns, s.exec, s.sink)
	if err := s.add(snd); err != nil {
		return nil, err
	}
	if err := snd.Start(ctx); err != nil {
		utils.Logger.Warn("sender failed to start", "sender", name, "broker", cfg.Broker, "err", err)
		return snd, err
	}
	utils.Logger.Info("sender started", "sender", name, "session", snd.ID())
	return snd, nil
}

// StartListener creates a session from the named listener config and starts it.
func (s *SessionService) StartListener(ctx context.Context, name string) (*session.Listener, error) {
	cfg, ok := s.store.Listener(name)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrListenerNotFound, name)
	}
	bc, err := brokerConfig(s.store, cfg.Broker)
	if err != nil {
		return nil, err
	}

	l := session.NewListener(cfg, bc, s.conns, s.exec, s.sink, s.outputSize)
	if err := s.add(l); err != nil {
		return nil, err
	}
	if err := l.Start(ctx); err != nil {
		utils.Logger.Warn("listener failed to start", "listener", name, "broker", cfg.Broker, "err", err)
		return l, err
	}
	utils.Logger.Info("listener started", "listener", name, "session", l.ID(), "topic", cfg.Topic)
	return l, nil
}

func (s *SessionService) add(sess session.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrCoordinatorClosed
	}
	s.sessions[sess.ID()] = sess
	return nil
}

// Get returns the session with the given id.
func (s *SessionService) Get(id string) (session.Session, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, ok := s.sessions[id]
	return sess, ok
}

func (s *SessionService) sender(id string) (*session.Sender, error) {
	sess, ok := s.Get(id)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrSessionNotFound, id)
	}
	snd, ok := sess.(*session.Sender)
	if !ok {
		return nil, fmt.Errorf("%w: %q is a %s", ErrWrongSessionKind, id, sess.Kind())
	}
	return snd, nil
}

func (s *SessionService) listener(id string) (*session.Listener, error) {
	sess, ok := s.Get(id)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrSessionNotFound, id)
	}
	l, ok := sess.(*session.Listener)
	if !ok {
		return nil, fmt.Errorf("%w: %q is a %s", ErrWrongSessionKind, id, sess.Kind())
	}
	return l, nil
}

// Send produces one message on a sender session.
func (s *SessionService) Send(ctx context.Context, id string, msg domain.OutgoingMessage) (domain.SendResult, error) {
	snd, err := s.sender(id)
	if err != nil {
		return domain.SendResult{}, err
	}
	return snd.Send(ctx, msg)
}

// SendRepeated produces count messages on a sender session. A count of zero
// uses the sender's configured repeat count.
func (s *SessionService) SendRepeated(ctx context.Context, id string, msg domain.OutgoingMessage, count int) ([]domain.SendResult, error) {
	snd, err := s.sender(id)
	if err != nil {
		return nil, err
	}
	return snd.SendRepeated(ctx, msg, count)
}

// Output returns the retained messages of a listener session, oldest first.
func (s *SessionService) Output(id string) ([]domain.Message, error) {
	l, err := s.listener(id)
	if err != nil {
		return nil, err
	}
	return l.Output(), nil
}

// Stop stops a session. Stopping a stopped or failed session is a no-op.
func (s *SessionService) Stop(ctx context.Context, id string) error {
	sess, ok := s.Get(id)
	if !ok {
		return fmt.Errorf("%w: %q", ErrSessionNotFound, id)
	}
	return sess.Stop(ctx)
}

// Restart starts a stopped or failed session again on a fresh connection reference.
func (s *SessionService) Restart(ctx context.Context, id string) error {
	sess, ok := s.Get(id)
	if !ok {
		return fmt.Errorf("%w: %q", ErrSessionNotFound, id)
	}
	return sess.Start(ctx)
}

// Remove stops a session and forgets it.
func (s *SessionService) Remove(ctx context.Context, id string) error {
	sess, ok := s.Get(id)
	if !ok {
		return fmt.Errorf("%w: %q", ErrSessionNotFound, id)
	}
	err := sess.Stop(ctx)
	s.mu.Lock()
	delete(s.sessions, id)
	s.mu.Unlock()
	return err
}

// List returns a snapshot of every session, oldest first.
func (s *SessionService) List() []session.Info {
	s.mu.RLock()
	out := make([]session.Info, 0, len(s.sessions))
	for _, sess := range s.sessions {
		out = append(out, sess.Info())
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if !out[i].StartedAt.Equal(out[j].StartedAt) {
			return out[i].StartedAt.Before(out[j].StartedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// FailListenersForTopic moves every live listener bound to topic on broker
// to Failed with cause and returns how many were failed.
func (s *SessionService) FailListenersForTopic(broker, topic string, cause error) int {
	s.mu.RLock()
	var targets []*session.Listener
	for _, sess := range s.sessions {
		l, ok := sess.(*session.Listener)
		if !ok || l.Broker() != broker || l.Topic() != topic {
			continue
		}
		st := l.State()
		if st.Terminal() || st == domain.SessionIdle {
			continue
		}
		targets = append(targets, l)
	}
	s.mu.RUnlock()

	for _, l := range targets {
		l.Fail(cause)
	}
	if len(targets) > 0 {
		utils.Logger.Info("listeners failed", "broker", broker, "topic", topic, "count", len(targets), "cause", cause)
	}
	return len(targets)
}

// StopAll stops every session concurrently and refuses new ones.
func (s *SessionService) StopAll(ctx context.Context) error {
	s.mu.Lock()
	s.closed = true
	all := make([]session.Session, 0, len(s.sessions))
	for _, sess := range s.sessions {
		all = append(all, sess)
	}
	s.mu.Unlock()

	errs := make([]error, len(all))
	var wg sync.WaitGroup
	for i, sess := range all {
		wg.Go(func() {
			if err := sess.Stop(ctx); err != nil {
				errs[i] = fmt.Errorf("%s %s: %w", sess.Kind(), sess.Name(), err)
			}
		})
	}
	wg.Wait()
	return errors.Join(errs...)
}
