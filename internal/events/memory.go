package events

import (
	"context"
	"sync"
)

// Sink receives envelopes as they are committed. The Postgres path goes
// through the outbox; the in-memory store publishes straight to a bus.
type Sink interface {
	Publish(ctx context.Context, env Envelope) error
}

// MemoryBus is an in-process sink used with the in-memory appointment store.
type MemoryBus struct {
	mu          sync.RWMutex
	subscribers []chan Envelope
	published   []Envelope
}

func NewMemoryBus() *MemoryBus {
	return &MemoryBus{}
}

// Publish implements Sink. Slow subscribers drop events rather than blocking
// the commit path.
func (b *MemoryBus) Publish(_ context.Context, env Envelope) error {
	b.mu.Lock()
	b.published = append(b.published, env)
	subs := make([]chan Envelope, len(b.subscribers))
	copy(subs, b.subscribers)
	b.mu.Unlock()

	for _, ch := range subs {
		select {
		case ch <- env:
		default:
		}
	}
	return nil
}

// Subscribe returns a buffered channel receiving future envelopes.
func (b *MemoryBus) Subscribe() <-chan Envelope {
	ch := make(chan Envelope, 64)
	b.mu.Lock()
	b.subscribers = append(b.subscribers, ch)
	b.mu.Unlock()
	return ch
}

// Published returns a copy of everything published so far; used by tests.
func (b *MemoryBus) Published() []Envelope {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]Envelope, len(b.published))
	copy(out, b.published)
	return out
}
