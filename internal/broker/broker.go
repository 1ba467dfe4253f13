// Package broker fans ingested events out to live subscribers, one topic per
// domain.
package broker

import (
	"sync"

	"footprint/internal/events"
)

// DefaultBuffer is the per-subscriber queue length.
const DefaultBuffer = 64

// Broker is an in-process publish/subscribe hub. Publishing never blocks: a
// subscriber whose queue is full misses the event.
type Broker struct {
	mu      sync.RWMutex
	subs    map[string]map[*subscription]struct{}
	buffer  int
	dropped func(domain string)
	closed  bool
}

type subscription struct {
	ch   chan *events.CanonicalEvent
	once sync.Once
}

// Option configures a Broker.
type Option func(*Broker)

// WithBuffer sets the per-subscriber queue length.
func WithBuffer(n int) Option {
	return func(b *Broker) {
		if n > 0 {
			b.buffer = n
		}
	}
}

// OnDrop registers a callback invoked each time an event is dropped for a
// slow subscriber.
func OnDrop(f func(domain string)) Option {
	return func(b *Broker) { b.dropped = f }
}

func New(opts ...Option) *Broker {
	b := &Broker{
		subs:   make(map[string]map[*subscription]struct{}),
		buffer: DefaultBuffer,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Subscribe returns a channel of events for domain and a cancel func that
// unsubscribes and closes the channel. Cancel is idempotent.
func (b *Broker) Subscribe(domain string) (<-chan *events.CanonicalEvent, func()) {
	sub := &subscription{ch: make(chan *events.CanonicalEvent, b.buffer)}

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		close(sub.ch)
		return sub.ch, func() {}
	}
	if b.subs[domain] == nil {
		b.subs[domain] = make(map[*subscription]struct{})
	}
	b.subs[domain][sub] = struct{}{}
	b.mu.Unlock()

	cancel := func() {
		b.mu.Lock()
		if set, ok := b.subs[domain]; ok {
			delete(set, sub)
			if len(set) == 0 {
				delete(b.subs, domain)
			}
		}
		b.mu.Unlock()
		sub.once.Do(func() { close(sub.ch) })
	}
	return sub.ch, cancel
}

// Publish delivers event to every subscriber of its domain.
func (b *Broker) Publish(event *events.CanonicalEvent) {
	if event == nil {
		return
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	for sub := range b.subs[event.Domain] {
		select {
		case sub.ch <- event:
		default:
			if b.dropped != nil {
				b.dropped(event.Domain)
			}
		}
	}
}

// Subscribers reports how many subscribers domain has.
func (b *Broker) Subscribers(domain string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs[domain])
}

// Close unsubscribes everyone. Later subscriptions receive a closed channel.
func (b *Broker) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for domain, set := range b.subs {
		for sub := range set {
			sub.once.Do(func() { close(sub.ch) })
		}
		delete(b.subs, domain)
	}
}
