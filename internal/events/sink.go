// Package events implements the result/event sink: a single-process fan-out
// of domain events to presentation subscribers plus a bounded history.
package events

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/OliveiraNt/kmt/internal/domain"
	"github.com/OliveiraNt/kmt/internal/utils"
	"github.com/google/uuid"
)

// Sink aggregates operation outcomes into an observable stream.
// Publish never blocks: a subscriber whose buffer is full misses the event.
type Sink struct {
	mu      sync.RWMutex
	subs    map[string]*Subscription
	history *Ring[domain.Event]
	seq     uint64
	closed  bool
	dropped atomic.Uint64
}

// Subscription receives events on C until Close is called or the sink closes.
type Subscription struct {
	ID      string
	C       <-chan domain.Event
	ch      chan domain.Event
	sink    *Sink
	once    sync.Once
	dropped atomic.Uint64
}

// NewSink creates a sink keeping the last historySize events.
func NewSink(historySize int) *Sink {
	return &Sink{
		subs:    make(map[string]*Subscription),
		history: NewRing[domain.Event](historySize),
	}
}

// Publish stamps ev with a sequence number and delivers it to every subscriber.
func (s *Sink) Publish(ev domain.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return
	}
	s.seq++
	ev.Seq = s.seq
	if ev.Time.IsZero() {
		ev.Time = time.Now()
	}
	s.history.Push(ev)

	for _, sub := range s.subs {
		select {
		case sub.ch <- ev:
		default:
			s.dropped.Add(1)
			if sub.dropped.Add(1) == 1 {
				utils.Logger.Warn("event subscriber too slow, dropping events", "subscription", sub.ID)
			}
		}
	}
}

// Subscribe registers a subscriber with the given channel buffer.
func (s *Sink) Subscribe(buffer int) *Subscription {
	if buffer <= 0 {
		buffer = 64
	}
	ch := make(chan domain.Event, buffer)
	sub := &Subscription{ID: uuid.NewString(), C: ch, ch: ch, sink: s}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		sub.once.Do(func() { close(ch) })
		return sub
	}
	s.subs[sub.ID] = sub
	return sub
}

// History returns the retained events, oldest first.
func (s *Sink) History() []domain.Event {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.history.Snapshot()
}

// Dropped is the number of deliveries skipped because a subscriber was full.
func (s *Sink) Dropped() uint64 {
	return s.dropped.Load()
}

// Close stops delivery and closes every subscription channel.
func (s *Sink) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return
	}
	s.closed = true
	for id, sub := range s.subs {
		delete(s.subs, id)
		sub.once.Do(func() { close(sub.ch) })
	}
}

// Close unregisters the subscription and closes C.
func (sub *Subscription) Close() {
	s := sub.sink
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.subs, sub.ID)
	sub.once.Do(func() { close(sub.ch) })
}

// Dropped is the number of events this subscriber missed.
func (sub *Subscription) Dropped() uint64 {
	return sub.dropped.Load()
}
