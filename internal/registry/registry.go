// Package registry owns the lifecycle of broker connection handles: at most
// one live handle per broker config name, shared and reference counted by
// the sessions and services that use it.
package registry

import (
	"context"
	"errors"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/OliveiraNt/kmt/internal/config"
	"github.com/OliveiraNt/kmt/internal/domain"
	"github.com/OliveiraNt/kmt/internal/executor"
	"github.com/OliveiraNt/kmt/internal/utils"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"
)

// ErrNotConnected is returned by ForceClose when no handle exists for the broker.
var ErrNotConnected = errors.New("broker not connected")

// Handle wraps the live client of one broker config.
type Handle struct {
	cfg        config.BrokerConfig
	client     domain.KafkaClient
	advertised []string
	createdAt  time.Time

	done      chan struct{}
	closeOnce sync.Once
	healthy   atomic.Bool

	// guarded by Registry.mu
	refs int
	idle *time.Timer
}

func newHandle(cfg config.BrokerConfig, client domain.KafkaClient, advertised []string) *Handle {
	h := &Handle{
		cfg:        cfg,
		client:     client,
		advertised: advertised,
		createdAt:  time.Now(),
		done:       make(chan struct{}),
	}
	h.healthy.Store(true)
	return h
}

func (h *Handle) Name() string                { return h.cfg.Name }
func (h *Handle) Config() config.BrokerConfig { return h.cfg }
func (h *Handle) Client() domain.KafkaClient  { return h.client }
func (h *Handle) Advertised() []string        { return append([]string(nil), h.advertised...) }
func (h *Handle) Healthy() bool               { return h.healthy.Load() }

// Done is closed when the handle is torn down.
func (h *Handle) Done() <-chan struct{} { return h.done }

// Closed reports whether the handle was torn down.
func (h *Handle) Closed() bool {
	select {
	case <-h.done:
		return true
	default:
		return false
	}
}

// ReportError marks the handle unhealthy when err shows the broker is unreachable.
func (h *Handle) ReportError(err error) {
	if domain.IsConnectivity(err) && h.healthy.CompareAndSwap(true, false) {
		utils.Logger.Warn("connection marked unhealthy", "broker", h.Name(), "err", err)
	}
}

func (h *Handle) markClosed() {
	h.closeOnce.Do(func() { close(h.done) })
}

// HandleInfo is a snapshot of a live handle.
type HandleInfo struct {
	Broker     string    `json:"broker"`
	Address    string    `json:"address"`
	Refs       int       `json:"refs"`
	Healthy    bool      `json:"healthy"`
	Advertised []string  `json:"advertised"`
	Since      time.Time `json:"since"`
}

// Registry holds the live handles keyed by broker config name.
type Registry struct {
	mu        sync.Mutex
	handles   map[string]*Handle
	group     singleflight.Group
	exec      *executor.Executor
	factory   domain.ClientFactory
	prober    domain.Prober
	idleClose time.Duration
}

// New creates a registry. Handles without references are closed after idleClose.
func New(exec *executor.Executor, factory domain.ClientFactory, prober domain.Prober, idleClose time.Duration) *Registry {
	return &Registry{
		handles:   make(map[string]*Handle),
		exec:      exec,
		factory:   factory,
		prober:    prober,
		idleClose: idleClose,
	}
}

// connection is what the connect unit produces. A connect that resolves
// after its deadline is closed by the executor through Close.
type connection struct {
	client     domain.KafkaClient
	advertised []string
}

func (c *connection) Close() { c.client.Close() }

// Acquire returns the live handle for cfg, creating it if needed, and takes a
// reference on it. Concurrent callers share one connect attempt.
func (r *Registry) Acquire(ctx context.Context, cfg config.BrokerConfig) (*Handle, error) {
	if h := r.ref(cfg.Name, nil); h != nil {
		return h, nil
	}

	ch := r.group.DoChan(cfg.Name, func() (any, error) {
		// A connect that finished between ref and DoChan already registered a handle.
		if h := r.live(cfg.Name); h != nil {
			return h, nil
		}
		return r.connect(context.WithoutCancel(ctx), cfg)
	})
	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		h := res.Val.(*Handle)
		if got := r.ref(cfg.Name, h); got != nil {
			return got, nil
		}
		return nil, &domain.ConnectivityError{Broker: cfg.Name, Address: cfg.Address(), Cause: domain.ErrHandleClosed}
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// ref takes a reference on the registered handle for name. When want is set
// the registered handle must be that one.
func (r *Registry) ref(name string, want *Handle) *Handle {
	r.mu.Lock()
	defer r.mu.Unlock()

	h, ok := r.handles[name]
	if !ok || h.Closed() || (want != nil && h != want) {
		return nil
	}
	if !h.Healthy() && h.refs == 0 && want == nil {
		delete(r.handles, name)
		r.stopIdle(h)
		go r.closeHandle(context.Background(), h)
		return nil
	}
	h.refs++
	r.stopIdle(h)
	return h
}

// live returns the registered handle for name if it can still serve callers.
func (r *Registry) live(name string) *Handle {
	r.mu.Lock()
	defer r.mu.Unlock()
	h, ok := r.handles[name]
	if !ok || h.Closed() || (!h.Healthy() && h.refs == 0) {
		return nil
	}
	return h
}

func (r *Registry) connect(ctx context.Context, cfg config.BrokerConfig) (*Handle, error) {
	utils.Logger.Debug("connecting", "broker", cfg.Name, "address", cfg.Address())
	start := time.Now()

	conn, err := executor.Do(ctx, r.exec, domain.OpConnect, executor.Broker(cfg.Name), func(ctx context.Context) (*connection, error) {
		advertised, err := r.prober.Probe(ctx, cfg)
		if err != nil {
			return nil, err
		}
		client, err := r.factory.CreateClient(cfg)
		if err != nil {
			return nil, err
		}
		if err := client.Ping(ctx); err != nil {
			client.Close()
			return nil, err
		}
		return &connection{client: client, advertised: advertised}, nil
	})
	if err != nil {
		elapsed := time.Since(start)
		utils.Logger.Warn("connect failed", "broker", cfg.Name, "address", cfg.Address(), "elapsed", elapsed, "err", err)
		return nil, &domain.ConnectivityError{Broker: cfg.Name, Address: cfg.Address(), Elapsed: elapsed, Cause: err}
	}

	h := newHandle(cfg, conn.client, conn.advertised)
	r.mu.Lock()
	if cur, ok := r.handles[cfg.Name]; ok && !cur.Closed() && (cur.Healthy() || cur.refs > 0) {
		r.mu.Unlock()
		utils.Logger.Debug("connection already registered, discarding new client", "broker", cfg.Name)
		conn.Close()
		return cur, nil
	}
	if old, ok := r.handles[cfg.Name]; ok && !old.Closed() {
		r.stopIdle(old)
		go r.closeHandle(context.Background(), old)
	}
	r.handles[cfg.Name] = h
	r.armIdle(h)
	r.mu.Unlock()
	utils.Logger.Info("connected", "broker", cfg.Name, "address", cfg.Address(), "advertised", conn.advertised)
	return h, nil
}

// Release drops a reference. The last release schedules an idle close.
func (r *Registry) Release(h *Handle) {
	if h == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	if h.refs > 0 {
		h.refs--
	}
	if h.refs == 0 && r.handles[h.Name()] == h {
		r.armIdle(h)
	}
}

func (r *Registry) armIdle(h *Handle) {
	if h.refs > 0 {
		return
	}
	r.stopIdle(h)
	h.idle = time.AfterFunc(r.idleClose, func() { r.closeIdle(h) })
}

func (r *Registry) stopIdle(h *Handle) {
	if h.idle != nil {
		h.idle.Stop()
		h.idle = nil
	}
}

func (r *Registry) closeIdle(h *Handle) {
	r.mu.Lock()
	if r.handles[h.Name()] != h || h.refs > 0 {
		r.mu.Unlock()
		return
	}
	delete(r.handles, h.Name())
	h.idle = nil
	r.mu.Unlock()

	utils.Logger.Debug("closing idle connection", "broker", h.Name())
	_ = r.closeHandle(context.Background(), h)
}

// ForceClose tears the handle down regardless of references. Pending
// operations on it are cancelled. If the close itself exceeds the close
// timeout the handle is marked unhealthy, still discarded, and the timeout
// is returned.
func (r *Registry) ForceClose(ctx context.Context, name string) error {
	r.mu.Lock()
	h, ok := r.handles[name]
	if ok {
		delete(r.handles, name)
		r.stopIdle(h)
	}
	r.mu.Unlock()

	if !ok {
		return ErrNotConnected
	}
	return r.closeHandle(ctx, h)
}

func (r *Registry) closeHandle(ctx context.Context, h *Handle) error {
	h.markClosed()
	_, err := r.exec.Run(ctx, domain.OpClose, executor.Broker(h.Name()), func(context.Context) (any, error) {
		h.client.Close()
		return nil, nil
	})
	if err != nil {
		h.healthy.Store(false)
		utils.Logger.Error("close connection failed", "broker", h.Name(), "err", err)
		return err
	}
	utils.Logger.Info("connection closed", "broker", h.Name())
	return nil
}

// Reconcile closes handles whose broker config was removed or changed.
func (r *Registry) Reconcile(ctx context.Context, brokers []config.BrokerConfig) {
	byName := make(map[string]config.BrokerConfig, len(brokers))
	for _, b := range brokers {
		byName[b.Name] = b
	}

	r.mu.Lock()
	var stale []string
	for name, h := range r.handles {
		cfg, ok := byName[name]
		if !ok || !brokerConfigEqual(h.cfg, cfg) {
			stale = append(stale, name)
		}
	}
	r.mu.Unlock()

	for _, name := range stale {
		utils.Logger.Info("broker config changed, closing connection", "broker", name)
		if err := r.ForceClose(ctx, name); err != nil && !errors.Is(err, ErrNotConnected) {
			utils.Logger.Warn("reconcile close failed", "broker", name, "err", err)
		}
	}
}

// Get returns the live handle for name without taking a reference.
func (r *Registry) Get(name string) (*Handle, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	h, ok := r.handles[name]
	return h, ok
}

// Handles returns a snapshot of the live handles sorted by broker name.
func (r *Registry) Handles() []HandleInfo {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]HandleInfo, 0, len(r.handles))
	for _, h := range r.handles {
		out = append(out, HandleInfo{
			Broker:     h.Name(),
			Address:    h.cfg.Address(),
			Refs:       h.refs,
			Healthy:    h.Healthy(),
			Advertised: h.Advertised(),
			Since:      h.createdAt,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Broker < out[j].Broker })
	return out
}

// Close tears every handle down.
func (r *Registry) Close(ctx context.Context) error {
	r.mu.Lock()
	handles := make([]*Handle, 0, len(r.handles))
	for name, h := range r.handles {
		delete(r.handles, name)
		r.stopIdle(h)
		handles = append(handles, h)
	}
	r.mu.Unlock()

	var g errgroup.Group
	for _, h := range handles {
		g.Go(func() error { return r.closeHandle(ctx, h) })
	}
	return g.Wait()
}

// brokerConfigEqual compares the fields that require a new connection when changed.
func brokerConfigEqual(a, b config.BrokerConfig) bool {
	if a.Hostname != b.Hostname || a.Port != b.Port || a.ClientID != b.ClientID {
		return false
	}
	if !equalTLS(a.TLS, b.TLS) || !equalSASL(a.SASL, b.SASL) {
		return false
	}
	if !equalAWS(a.AWS, b.AWS) || !equalOptions(a.Options, b.Options) {
		return false
	}
	return true
}

func equalTLS(a, b *config.TLSConfig) bool {
	if a == nil && b == nil {
		return true
	}
	if a == nil || b == nil {
		return false
	}
	return *a == *b
}

func equalSASL(a, b *config.SASLConfig) bool {
	if a == nil && b == nil {
		return true
	}
	if a == nil || b == nil {
		return false
	}
	return *a == *b
}

func equalAWS(a, b *config.AWSConfig) bool {
	if a == nil && b == nil {
		return true
	}
	if a == nil || b == nil {
		return false
	}
	return *a == *b
}

func equalOptions(a, b map[string]string) bool {
	if len(a) != len(b) {
		return false
	}
	for k, v := range a {
		if vb, ok := b[k]; !ok || vb != v {
			return false
		}
	}
	return true
}
