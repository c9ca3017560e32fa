package events

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
)

// DefaultBufferSize is the Bus queue depth used when none is given.
const DefaultBufferSize = 64

// Bus is a Sink that queues events on a buffered channel and delivers them to
// registered subscribers from a single goroutine started by [Bus.Run].
//
// Subscribers are called in registration order and must return quickly.
type Bus struct {
	queue   chan Event
	dropped atomic.Int64

	mu   sync.RWMutex
	subs []subscriber
	next int
}

type subscriber struct {
	id int
	fn func(Event)
}

// NewBus returns a Bus with the given queue depth. A size < 1 uses
// [DefaultBufferSize].
func NewBus(size int) *Bus {
	if size < 1 {
		size = DefaultBufferSize
	}
	return &Bus{queue: make(chan Event, size)}
}

// Publish enqueues e. When the queue is full e is dropped.
func (b *Bus) Publish(e Event) {
	select {
	case b.queue <- e:
	default:
		if n := b.dropped.Add(1); n == 1 || n%100 == 0 {
			slog.Warn("events: queue full, dropping event", "kind", e.Kind, "dropped", n)
		}
	}
}

// Subscribe registers fn and returns a function that removes it.
func (b *Bus) Subscribe(fn func(Event)) (unsubscribe func()) {
	b.mu.Lock()
	defer b.mu.Unlock()
	id := b.next
	b.next++
	b.subs = append(b.subs, subscriber{id: id, fn: fn})
	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		for i, s := range b.subs {
			if s.id == id {
				b.subs = append(b.subs[:i], b.subs[i+1:]...)
				return
			}
		}
	}
}

// Dropped returns the number of events discarded because the queue was full.
func (b *Bus) Dropped() int64 { return b.dropped.Load() }

// Run delivers queued events until ctx is cancelled. Events still queued at
// cancellation are delivered before Run returns.
func (b *Bus) Run(ctx context.Context) error {
	for {
		select {
		case e := <-b.queue:
			b.deliver(e)
		case <-ctx.Done():
			for {
				select {
				case e := <-b.queue:
					b.deliver(e)
				default:
					return nil
				}
			}
		}
	}
}

func (b *Bus) deliver(e Event) {
	b.mu.RLock()
	subs := make([]subscriber, len(b.subs))
	copy(subs, b.subs)
	b.mu.RUnlock()
	for _, s := range subs {
		s.fn(e)
	}
}

var _ Sink = (*Bus)(nil)
