// Package bus provides the in-process event bus the supervisor uses to fan
// engine events out to observers: the dashboard hub, the notifier, the
// persistence loop and the Redis stream mirror. Observers are read-only; a
// slow observer loses events rather than stalling the publisher.
package bus

import (
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/DecentralizedMoney/matreshka/internal/domain"
)

// DefaultBuffer is the per-subscriber channel depth used when Subscribe is
// called with a non-positive buffer.
const DefaultBuffer = 256

// Subscription is one observer's view of the bus. Events arrive on C;
// Cancel detaches the subscriber and closes C.
type Subscription struct {
	name    string
	ch      chan domain.Event
	cancel  func()
	dropped atomic.Int64
}

// C returns the event channel. It is closed when the subscription is
// cancelled or the bus shuts down.
func (s *Subscription) C() <-chan domain.Event { return s.ch }

// Cancel detaches the subscriber. Safe to call more than once.
func (s *Subscription) Cancel() { s.cancel() }

// Dropped reports how many events this subscriber has lost to a full buffer.
func (s *Subscription) Dropped() int64 { return s.dropped.Load() }

// Bus is a non-blocking fan-out of domain events.
type Bus struct {
	logger *slog.Logger

	mu     sync.Mutex
	subs   map[int]*Subscription
	nextID int
	closed bool
}

// New creates an empty bus.
func New(logger *slog.Logger) *Bus {
	return &Bus{
		logger: logger.With(slog.String("component", "bus")),
		subs:   make(map[int]*Subscription),
	}
}

// Subscribe registers an observer. name identifies the subscriber in drop
// logs; buffer <= 0 selects DefaultBuffer.
func (b *Bus) Subscribe(name string, buffer int) *Subscription {
	if buffer <= 0 {
		buffer = DefaultBuffer
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	id := b.nextID
	b.nextID++

	sub := &Subscription{
		name: name,
		ch:   make(chan domain.Event, buffer),
	}
	var once sync.Once
	sub.cancel = func() {
		once.Do(func() {
			b.mu.Lock()
			if _, ok := b.subs[id]; ok {
				delete(b.subs, id)
				close(sub.ch)
			}
			b.mu.Unlock()
		})
	}

	if b.closed {
		close(sub.ch)
		return sub
	}
	b.subs[id] = sub
	return sub
}

// Publish delivers ev to every subscriber without blocking. Subscribers
// whose buffer is full lose the event; the drop is counted and logged at
// debug level.
func (b *Bus) Publish(ev domain.Event) {
	b.mu.Lock()
	subs := make([]*Subscription, 0, len(b.subs))
	for _, s := range b.subs {
		subs = append(subs, s)
	}
	b.mu.Unlock()

	for _, s := range subs {
		select {
		case s.ch <- ev:
		default:
			n := s.dropped.Add(1)
			if n == 1 || n%100 == 0 {
				b.logger.Debug("subscriber dropping events",
					slog.String("subscriber", s.name),
					slog.String("kind", string(ev.Kind)),
					slog.Int64("dropped", n),
				)
			}
		}
	}
}

// Close detaches every subscriber and closes their channels. Publishing
// after Close is a no-op.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for id, s := range b.subs {
		delete(b.subs, id)
		close(s.ch)
	}
}
