// Package bus distributes stabilised intent records to consumers.
//
// Delivery is non-blocking: a subscriber that cannot keep up loses
// records rather than stalling the frame pass. Latency beats
// completeness — a pointer stream that lags is worse than one with
// gaps, because the consumer interpolates position anyway.
//
// Subscriptions are explicit handles returned from Subscribe and passed
// back to Unsubscribe; no identity-matched callbacks.
package bus

import (
	"sync"
	"sync/atomic"

	"github.com/handwave-data/handwave/internal/hand"
)

// DefaultBuffer is the per-subscriber channel depth.
const DefaultBuffer = 64

// Subscription is the handle identifying one consumer. Receive from C;
// the channel closes on Unsubscribe or Close.
type Subscription struct {
	id uint64
	C  <-chan hand.Intent

	ch chan hand.Intent
}

// Bus fans intent records out to subscribers.
type Bus struct {
	mu     sync.RWMutex
	subs   map[uint64]*Subscription
	nextID uint64
	closed bool

	// Dropped counts records lost to slow subscribers.
	dropped atomic.Uint64
}

// New creates an empty Bus.
func New() *Bus {
	return &Bus{subs: make(map[uint64]*Subscription)}
}

// Subscribe registers a consumer. buffer <= 0 uses DefaultBuffer.
func (b *Bus) Subscribe(buffer int) *Subscription {
	if buffer <= 0 {
		buffer = DefaultBuffer
	}
	ch := make(chan hand.Intent, buffer)

	b.mu.Lock()
	defer b.mu.Unlock()
	b.nextID++
	sub := &Subscription{id: b.nextID, C: ch, ch: ch}
	if b.closed {
		close(ch)
		return sub
	}
	b.subs[sub.id] = sub
	return sub
}

// Unsubscribe removes a consumer and closes its channel. Unknown or
// already-removed handles are a no-op.
func (b *Bus) Unsubscribe(sub *Subscription) {
	if sub == nil {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.subs[sub.id]; ok {
		delete(b.subs, sub.id)
		close(sub.ch)
	}
}

// Publish delivers one record to every subscriber, dropping it for any
// subscriber whose buffer is full.
func (b *Bus) Publish(ev hand.Intent) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return
	}
	for _, sub := range b.subs {
		select {
		case sub.ch <- ev:
		default:
			b.dropped.Add(1)
		}
	}
}

// Dropped returns the number of records lost to slow subscribers.
func (b *Bus) Dropped() uint64 { return b.dropped.Load() }

// Close shuts the bus down, closing every subscriber channel. Publish
// after Close is a no-op.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for id, sub := range b.subs {
		delete(b.subs, id)
		close(sub.ch)
	}
}
