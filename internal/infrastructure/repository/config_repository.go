package repository

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/OliveiraNt/kmt/internal/config"
	"github.com/OliveiraNt/kmt/internal/utils"
	"github.com/fsnotify/fsnotify"
)

// ErrRecordNotFound is returned by Delete when no record has the given name.
var ErrRecordNotFound = errors.New("config record not found")

const debounceDelay = 350 * time.Millisecond

// ConfigRepository is the YAML backed configuration store. It only holds
// records; connections are owned by the coordinator, which is told about
// reloads through OnChange.
type ConfigRepository struct {
	mu         sync.RWMutex
	configData config.FileConfig
	configPath string
	watcher    *fsnotify.Watcher
	listeners  []func(config.FileConfig)
}

// NewConfigRepository creates a repository backed by configPath.
func NewConfigRepository(configPath string) *ConfigRepository {
	return &ConfigRepository{configPath: configPath}
}

// Path is the backing file.
func (r *ConfigRepository) Path() string { return r.configPath }

// LoadFromFile reads and validates the file. An invalid file leaves the
// previous records in place.
func (r *ConfigRepository) LoadFromFile() error {
	cfg, err := config.ReadConfig(r.configPath)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("%s: %w", r.configPath, err)
	}

	r.mu.Lock()
	r.configData = cfg
	listeners := append([]func(config.FileConfig){}, r.listeners...)
	r.mu.Unlock()

	for _, fn := range listeners {
		fn(cfg)
	}
	return nil
}

// OnChange registers fn to run after every successful load.
func (r *ConfigRepository) OnChange(fn func(config.FileConfig)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.listeners = append(r.listeners, fn)
}

// Snapshot returns a copy of the current document.
func (r *ConfigRepository) Snapshot() config.FileConfig {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.configData
}

// Settings returns the coordinator settings with defaults applied.
func (r *ConfigRepository) Settings() config.Settings {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.configData.Settings.WithDefaults()
}

func (r *ConfigRepository) Brokers() []config.BrokerConfig {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]config.BrokerConfig(nil), r.configData.Brokers...)
}

func (r *ConfigRepository) Broker(name string) (config.BrokerConfig, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return find(r.configData.Brokers, name, func(b config.BrokerConfig) string { return b.Name })
}

func (r *ConfigRepository) Topics() []config.TopicConfig {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]config.TopicConfig(nil), r.configData.Topics...)
}

func (r *ConfigRepository) Topic(name string) (config.TopicConfig, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return find(r.configData.Topics, name, func(t config.TopicConfig) string { return t.Name })
}

func (r *ConfigRepository) Senders() []config.SenderConfig {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]config.SenderConfig(nil), r.configData.Senders...)
}

func (r *ConfigRepository) Sender(name string) (config.SenderConfig, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return find(r.configData.Senders, name, func(s config.SenderConfig) string { return s.Name })
}

func (r *ConfigRepository) Listeners() []config.ListenerConfig {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]config.ListenerConfig(nil), r.configData.Listeners...)
}

func (r *ConfigRepository) Listener(name string) (config.ListenerConfig, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return find(r.configData.Listeners, name, func(l config.ListenerConfig) string { return l.Name })
}

// SaveBroker inserts or replaces a broker record and persists the file.
func (r *ConfigRepository) SaveBroker(cfg config.BrokerConfig) error {
	return r.update(func(f *config.FileConfig) error {
		f.Brokers = upsert(f.Brokers, cfg.WithDefaults(), func(b config.BrokerConfig) string { return b.Name })
		return nil
	})
}

// DeleteBroker removes a broker record and persists the file.
func (r *ConfigRepository) DeleteBroker(name string) error {
	return r.update(func(f *config.FileConfig) error {
		out, ok := remove(f.Brokers, name, func(b config.BrokerConfig) string { return b.Name })
		if !ok {
			return fmt.Errorf("%w: broker %q", ErrRecordNotFound, name)
		}
		f.Brokers = out
		return nil
	})
}

// SaveTopic inserts or replaces a topic record and persists the file.
func (r *ConfigRepository) SaveTopic(cfg config.TopicConfig) error {
	return r.update(func(f *config.FileConfig) error {
		f.Topics = upsert(f.Topics, cfg.WithDefaults(), func(t config.TopicConfig) string { return t.Name })
		return nil
	})
}

// SaveSender inserts or replaces a sender record and persists the file.
func (r *ConfigRepository) SaveSender(cfg config.SenderConfig) error {
	return r.update(func(f *config.FileConfig) error {
		f.Senders = upsert(f.Senders, cfg.WithDefaults(), func(s config.SenderConfig) string { return s.Name })
		return nil
	})
}

// SaveListener inserts or replaces a listener record and persists the file.
func (r *ConfigRepository) SaveListener(cfg config.ListenerConfig) error {
	return r.update(func(f *config.FileConfig) error {
		f.Listeners = upsert(f.Listeners, cfg.WithDefaults(), func(l config.ListenerConfig) string { return l.Name })
		return nil
	})
}

// update applies fn to a copy of the document, validates it, persists it
// and only then makes it current.
func (r *ConfigRepository) update(fn func(f *config.FileConfig) error) error {
	r.mu.Lock()
	next := r.configData
	next.Brokers = append([]config.BrokerConfig(nil), next.Brokers...)
	next.Topics = append([]config.TopicConfig(nil), next.Topics...)
	next.Senders = append([]config.SenderConfig(nil), next.Senders...)
	next.Listeners = append([]config.ListenerConfig(nil), next.Listeners...)
	if err := fn(&next); err != nil {
		r.mu.Unlock()
		return err
	}
	if err := next.Validate(); err != nil {
		r.mu.Unlock()
		return err
	}
	if err := r.writeToFile(next); err != nil {
		r.mu.Unlock()
		return err
	}
	r.configData = next
	listeners := append([]func(config.FileConfig){}, r.listeners...)
	r.mu.Unlock()

	for _, l := range listeners {
		l(next)
	}
	return nil
}

// Watch sets a fsnotify watcher on the file for hot reload.
func (r *ConfigRepository) Watch() error {
	abs, err := filepath.Abs(r.configPath)
	if err != nil {
		return err
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	if err := w.Add(filepath.Dir(abs)); err != nil {
		_ = w.Close()
		return err
	}

	r.mu.Lock()
	r.watcher = w
	r.mu.Unlock()

	go r.watchLoop(w, abs)
	return nil
}

func (r *ConfigRepository) watchLoop(w *fsnotify.Watcher, abs string) {
	reload := func() {
		for i := 0; i < 10; i++ {
			if _, err := os.Stat(abs); err == nil {
				break
			}
			time.Sleep(100 * time.Millisecond)
		}

		utils.Logger.Info("config file changed", "path", abs)
		if err := r.LoadFromFile(); err != nil {
			utils.Logger.Error("failed to reload config", "path", abs, "err", err)
		}
	}

	var timer *time.Timer
	for {
		select {
		case ev, ok := <-w.Events:
			if !ok {
				if timer != nil {
					timer.Stop()
				}
				return
			}
			if ev.Name != abs {
				continue
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename|fsnotify.Remove) == 0 {
				continue
			}
			if timer == nil {
				timer = time.AfterFunc(debounceDelay, reload)
			} else {
				timer.Reset(debounceDelay)
			}
		case err, ok := <-w.Errors:
			if !ok {
				return
			}
			utils.Logger.Warn("fsnotify error", "err", err)
		}
	}
}

// Close stops the watcher.
func (r *ConfigRepository) Close() error {
	r.mu.Lock()
	w := r.watcher
	r.watcher = nil
	r.mu.Unlock()
	if w == nil {
		return nil
	}
	return w.Close()
}

func (r *ConfigRepository) writeToFile(cfg config.FileConfig) error {
	if err := os.MkdirAll(filepath.Dir(r.configPath), 0o755); err != nil {
		return err
	}
	return config.WriteConfig(r.configPath, cfg)
}

func find[T any](items []T, name string, key func(T) string) (T, bool) {
	for _, it := range items {
		if key(it) == name {
			return it, true
		}
	}
	var zero T
	return zero, false
}

func upsert[T any](items []T, v T, key func(T) string) []T {
	for i := range items {
		if key(items[i]) == key(v) {
			items[i] = v
			return items
		}
	}
	return append(items, v)
}

func remove[T any](items []T, name string, key func(T) string) ([]T, bool) {
	for i := range items {
		if key(items[i]) == name {
			return append(items[:i], items[i+1:]...), true
		}
	}
	return items, false
}
