package session

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sort"
	"sync/atomic"
	"text/template"
	"time"

	"github.com/OliveiraNt/kmt/internal/config"
	"github.com/OliveiraNt/kmt/internal/domain"
	"github.com/OliveiraNt/kmt/internal/executor"
	"github.com/OliveiraNt/kmt/internal/utils"
	"golang.org/x/time/rate"
)

// Sender produces messages to one topic. Sends are serialized on a single
// loop so acknowledgments are observed in submission order.
type Sender struct {
	base
	cfg       config.SenderConfig
	brokerCfg config.BrokerConfig
	conns     Connections
	exec      *executor.Executor

	run   *run // guarded by base.mu
	queue chan sendRequest
	sent  atomic.Int64
}

type sendRequest struct {
	ctx   context.Context
	msg   domain.OutgoingMessage
	reply chan sendReply
}

type sendReply struct {
	res domain.SendResult
	err error
}

// TemplateData is what sender content templates are rendered with.
type TemplateData struct {
	Index     int
	Total     int
	Timestamp time.Time
	Key       string
}

func NewSender(cfg config.SenderConfig, brokerCfg config.BrokerConfig, conns Connections, exec *executor.Executor, sink domain.EventPublisher) *Sender {
	return &Sender{
		base:      newBase(KindSender, cfg.Name, brokerCfg.Name, cfg.Topic, sink),
		cfg:       cfg,
		brokerCfg: brokerCfg,
		conns:     conns,
		exec:      exec,
		queue:     make(chan sendRequest, 64),
	}
}

func (s *Sender) Config() config.SenderConfig { return s.cfg }

func (s *Sender) Info() Info { return s.info(s.sent.Load()) }

// Start acquires the connection handle. Failing to acquire it moves the
// session to Failed.
func (s *Sender) Start(ctx context.Context) error {
	if err := s.transition(domain.SessionStarting, nil); err != nil {
		return err
	}
	h, err := s.conns.Acquire(ctx, s.brokerCfg)
	if err != nil {
		_ = s.transition(domain.SessionFailed, err)
		return err
	}

	r := newRun(h, s.conns)
	s.mu.Lock()
	s.run = r
	err = s.transitionLocked(domain.SessionRunning, nil)
	s.mu.Unlock()
	if err != nil {
		r.cancel(err)
		r.release()
		return err
	}

	go s.loop(r)
	go s.watchHandle(r)
	return nil
}

func (s *Sender) current() *run {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.run
}

func (s *Sender) watchHandle(r *run) {
	select {
	case <-r.h.Done():
		s.fail(r, domain.ErrHandleClosed)
	case <-r.done:
	}
}

func (s *Sender) loop(r *run) {
	defer close(r.done)
	for {
		select {
		case req := <-s.queue:
			res, err := s.produce(r, req)
			req.reply <- sendReply{res: res, err: err}
		case <-r.ctx.Done():
			s.drain(r)
			return
		}
	}
}

// drain answers requests queued behind a stop.
func (s *Sender) drain(r *run) {
	for {
		select {
		case req := <-s.queue:
			req.reply <- sendReply{err: fmt.Errorf("%w: %w", domain.ErrSessionNotRunning, context.Cause(r.ctx))}
		default:
			return
		}
	}
}

func (s *Sender) produce(r *run, req sendRequest) (domain.SendResult, error) {
	if s.cfg.Simulate {
		return s.simulate(req.msg), nil
	}

	ctx, cancel := r.merge(req.ctx)
	defer cancel()

	res, err := executor.Do(ctx, s.exec, domain.OpProduce, r.h, func(ctx context.Context) (domain.SendResult, error) {
		return r.h.Client().Produce(ctx, s.cfg.Topic, req.msg)
	})
	if err != nil {
		s.publish(domain.Event{
			Type:  domain.EventSendResult,
			Error: err.Error(),
			Key:   "events.send_failed",
			Args:  map[string]any{"topic": s.cfg.Topic, "error": err.Error()},
		})
		r.h.ReportError(err)
		if !r.h.Healthy() {
			s.fail(r, err)
		}
		return domain.SendResult{}, err
	}

	s.sent.Add(1)
	s.publish(domain.Event{
		Type:   domain.EventSendResult,
		Result: &res,
		Key:    "events.send_result",
		Args:   map[string]any{"topic": res.Topic, "partition": res.Partition, "offset": res.Offset},
	})
	return res, nil
}

// simulate logs a rendered message in place of producing it.
func (s *Sender) simulate(msg domain.OutgoingMessage) domain.SendResult {
	res := domain.SendResult{Topic: s.cfg.Topic, Partition: -1, Offset: -1, Timestamp: time.Now(), Simulated: true}
	utils.Logger.Info("simulated send", "session", s.name, "topic", s.cfg.Topic, "key", msg.Key, "value", msg.Value)
	s.sent.Add(1)
	s.publish(domain.Event{
		Type:   domain.EventSendResult,
		Result: &res,
		Key:    "events.send_simulated",
		Args:   map[string]any{"topic": s.cfg.Topic, "key": msg.Key, "value": msg.Value},
	})
	return res
}

func (s *Sender) publish(ev domain.Event) {
	if s.sink == nil {
		return
	}
	ev.Session = s.name
	ev.Broker = s.broker
	ev.Topic = s.cfg.Topic
	s.sink.Publish(ev)
}

// Compose fills the key, value and headers the caller left empty from the
// sender config. Config headers come first, sorted by key.
func (s *Sender) Compose(msg domain.OutgoingMessage) domain.OutgoingMessage {
	if msg.Key == "" {
		msg.Key = s.cfg.MessageKey
	}
	if msg.Value == "" {
		msg.Value = s.cfg.Content
	}
	if len(s.cfg.Headers) > 0 {
		keys := make([]string, 0, len(s.cfg.Headers))
		for k := range s.cfg.Headers {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		headers := make([]domain.Header, 0, len(keys)+len(msg.Headers))
		for _, k := range keys {
			headers = append(headers, domain.Header{Key: k, Value: s.cfg.Headers[k]})
		}
		msg.Headers = append(headers, msg.Headers...)
	}
	return msg
}

// Send composes msg with the sender defaults, produces it and waits for the
// broker acknowledgment. A failed send leaves the session running unless the
// connection turned unhealthy.
func (s *Sender) Send(ctx context.Context, msg domain.OutgoingMessage) (domain.SendResult, error) {
	return s.send(ctx, s.Compose(msg))
}

func (s *Sender) send(ctx context.Context, msg domain.OutgoingMessage) (domain.SendResult, error) {
	r := s.current()
	if r == nil || s.State() != domain.SessionRunning {
		return domain.SendResult{}, domain.ErrSessionNotRunning
	}

	req := sendRequest{ctx: ctx, msg: msg, reply: make(chan sendReply, 1)}
	select {
	case s.queue <- req:
	case <-r.ctx.Done():
		return domain.SendResult{}, domain.ErrSessionNotRunning
	case <-ctx.Done():
		return domain.SendResult{}, ctx.Err()
	}

	select {
	case rep := <-req.reply:
		return rep.res, rep.err
	case <-r.done:
		select {
		case rep := <-req.reply:
			return rep.res, rep.err
		default:
			return domain.SendResult{}, domain.ErrSessionNotRunning
		}
	case <-ctx.Done():
		return domain.SendResult{}, ctx.Err()
	}
}

// SendRepeated sends count messages rendered from msg.Value as a template,
// paced by the configured rate. It returns the acknowledgments received and
// the joined errors of the failed sends.
func (s *Sender) SendRepeated(ctx context.Context, msg domain.OutgoingMessage, count int) ([]domain.SendResult, error) {
	if count <= 0 {
		count = s.cfg.RepeatCount
	}
	msg = s.Compose(msg)
	tmpl, err := template.New(s.name).Option("missingkey=zero").Parse(msg.Value)
	if err != nil {
		return nil, fmt.Errorf("parse content template: %w", err)
	}

	var limiter *rate.Limiter
	if s.cfg.RatePerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(s.cfg.RatePerSecond), 1)
	}

	var (
		results []domain.SendResult
		errs    []error
	)
	for i := range count {
		if limiter != nil {
			if err := limiter.Wait(ctx); err != nil {
				errs = append(errs, err)
				break
			}
		}
		var buf bytes.Buffer
		data := TemplateData{Index: i + 1, Total: count, Timestamp: time.Now(), Key: msg.Key}
		if err := tmpl.Execute(&buf, data); err != nil {
			errs = append(errs, fmt.Errorf("render message %d: %w", i+1, err))
			continue
		}
		out := msg
		out.Value = buf.String()

		res, err := s.send(ctx, out)
		if err != nil {
			errs = append(errs, fmt.Errorf("message %d: %w", i+1, err))
			if errors.Is(err, domain.ErrSessionNotRunning) || ctx.Err() != nil {
				break
			}
			continue
		}
		results = append(results, res)
	}
	return results, errors.Join(errs...)
}

// Stop ends the session. Queued sends are answered with ErrSessionNotRunning.
// The connection handle is released even when stopping exceeds its budget.
func (s *Sender) Stop(ctx context.Context) error {
	s.mu.Lock()
	r := s.run
	if s.state.Terminal() || s.state == domain.SessionIdle {
		s.mu.Unlock()
		return nil
	}
	if err := s.transitionLocked(domain.SessionStopping, nil); err != nil {
		s.mu.Unlock()
		return err
	}
	s.mu.Unlock()

	r.cancel(ErrStopped)
	_, err := s.exec.Run(ctx, domain.OpStopSession, executor.Broker(s.broker), func(ctx context.Context) (any, error) {
		select {
		case <-r.done:
			return nil, nil
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	})
	r.release()

	if err != nil {
		_ = s.transition(domain.SessionFailed, err)
		return err
	}
	if err := s.transition(domain.SessionStopped, nil); err != nil {
		utils.Logger.Debug("sender stop raced with failure", "session", s.name, "err", err)
	}
	return nil
}

// fail moves a running session to Failed with cause and releases its handle.
func (s *Sender) fail(r *run, cause error) {
	s.mu.Lock()
	if s.run != r || s.state.Terminal() {
		s.mu.Unlock()
		return
	}
	err := s.transitionLocked(domain.SessionFailed, cause)
	s.mu.Unlock()
	if err != nil {
		return
	}
	r.cancel(cause)
	r.release()
}
