package notify

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/hackgods/dental-clinic-engine/internal/metrics"
)

const DefaultBuffer = 64

// Filter selects the events a subscription receives. A nil Filter accepts all.
type Filter func(Event) bool

// TypesFilter accepts only the listed event types; with no types it accepts all.
func TypesFilter(types ...EventType) Filter {
	if len(types) == 0 {
		return nil
	}
	set := make(map[EventType]struct{}, len(types))
	for _, t := range types {
		set[t] = struct{}{}
	}
	return func(ev Event) bool {
		_, ok := set[ev.Type]
		return ok
	}
}

type Subscription struct {
	ID      string
	ch      chan Event
	filter  Filter
	dropped atomic.Int64
}

// Events is closed when the subscription is removed.
func (s *Subscription) Events() <-chan Event { return s.ch }

// Dropped counts events skipped because the buffer was full.
func (s *Subscription) Dropped() int64 { return s.dropped.Load() }

// Broadcaster is the in-process subscriber registry. Its lifetime is the
// server process; there is no package-level instance.
type Broadcaster struct {
	mu      sync.RWMutex
	subs    map[*Subscription]struct{}
	metrics *metrics.Engine
}

func NewBroadcaster(m *metrics.Engine) *Broadcaster {
	return &Broadcaster{
		subs:    make(map[*Subscription]struct{}),
		metrics: m,
	}
}

func (b *Broadcaster) Subscribe(buffer int, filter Filter) *Subscription {
	if buffer <= 0 {
		buffer = DefaultBuffer
	}
	sub := &Subscription{
		ID:     uuid.NewString(),
		ch:     make(chan Event, buffer),
		filter: filter,
	}

	b.mu.Lock()
	b.subs[sub] = struct{}{}
	n := len(b.subs)
	b.mu.Unlock()

	b.metrics.SetSubscribers(n)
	return sub
}

// Unsubscribe removes sub and closes its channel. Calling it twice is harmless.
func (b *Broadcaster) Unsubscribe(sub *Subscription) {
	b.mu.Lock()
	if _, ok := b.subs[sub]; !ok {
		b.mu.Unlock()
		return
	}
	delete(b.subs, sub)
	close(sub.ch)
	n := len(b.subs)
	b.mu.Unlock()

	b.metrics.SetSubscribers(n)
}

// Publish hands ev to every matching subscriber without blocking. A full
// subscriber buffer drops the event for that subscriber only.
func (b *Broadcaster) Publish(_ context.Context, ev Event) error {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for sub := range b.subs {
		if sub.filter != nil && !sub.filter(ev) {
			continue
		}
		select {
		case sub.ch <- ev:
		default:
			sub.dropped.Add(1)
			b.metrics.ObserveDropped()
		}
	}
	return nil
}

func (b *Broadcaster) Count() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

// Close removes every subscriber.
func (b *Broadcaster) Close() {
	b.mu.Lock()
	for sub := range b.subs {
		delete(b.subs, sub)
		close(sub.ch)
	}
	b.mu.Unlock()

	b.metrics.SetSubscribers(0)
}
