package notification

import (
	"context"
	"log/slog"
	"sync"
)

// Broker fans events out to in-process subscribers over buffered channels. A subscriber
// that falls behind loses events rather than blocking publishers.
type Broker struct {
	mu     sync.RWMutex
	subs   map[*Subscription]struct{}
	logger *slog.Logger
	closed bool
}

// Subscription receives the events matched by its filter until closed.
type Subscription struct {
	C      <-chan Event
	ch     chan Event
	match  func(Event) bool
	broker *Broker
	once   sync.Once
}

// NewBroker builds an empty broker.
func NewBroker(logger *slog.Logger) *Broker {
	return &Broker{subs: make(map[*Subscription]struct{}), logger: logger}
}

// Subscribe registers a subscriber. A nil match receives every event.
func (b *Broker) Subscribe(buffer int, match func(Event) bool) *Subscription {
	if buffer <= 0 {
		buffer = 16
	}
	ch := make(chan Event, buffer)
	sub := &Subscription{C: ch, ch: ch, match: match, broker: b}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		close(ch)
		return sub
	}
	b.subs[sub] = struct{}{}
	return sub
}

// Close unregisters the subscription and closes its channel.
func (s *Subscription) Close() {
	s.once.Do(func() {
		b := s.broker
		b.mu.Lock()
		defer b.mu.Unlock()
		if _, ok := b.subs[s]; ok {
			delete(b.subs, s)
			close(s.ch)
		}
	})
}

// Publish delivers the event to every matching subscriber without blocking.
func (b *Broker) Publish(_ context.Context, event Event) error {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for sub := range b.subs {
		if sub.match != nil && !sub.match(event) {
			continue
		}
		select {
		case sub.ch <- event:
		default:
			if b.logger != nil {
				b.logger.Warn("event dropped for slow subscriber", slog.String("type", string(event.Type)), slog.String("event_id", event.ID))
			}
		}
	}
	return nil
}

// Shutdown closes every subscription.
func (b *Broker) Shutdown() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	for sub := range b.subs {
		delete(b.subs, sub)
		close(sub.ch)
	}
}
