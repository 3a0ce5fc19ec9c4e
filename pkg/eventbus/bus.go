// pkg/eventbus/bus.go
//
// Fan-out publish/subscribe with one unbounded mailbox per consumer.
// Publish never blocks and never waits on a slow consumer: a stalled
// renderer cannot delay the log writer or job execution. Channels are not
// used for the queues themselves because a channel's buffer is bounded and
// a full buffer would either block the publisher or drop events; each
// mailbox is a mutex-guarded slice with a wake-up channel instead.

package eventbus

import (
	"context"
	"sync"
)

// Bus multiplexes published events into per-consumer mailboxes.
type Bus struct {
	mu     sync.Mutex
	subs   []*Subscription
	closed bool
	wg     sync.WaitGroup
}

func New() *Bus {
	return &Bus{}
}

// Subscription is one consumer's private queue. Events arrive in publish
// order; no ordering is guaranteed relative to other consumers' queues.
type Subscription struct {
	Name string

	mu     sync.Mutex
	items  []Event
	notify chan struct{}
	closed bool
}

// Subscribe registers a new consumer queue. Events published before
// Subscribe are not delivered.
func (b *Bus) Subscribe(name string) *Subscription {
	sub := &Subscription{
		Name:   name,
		notify: make(chan struct{}, 1),
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.closed {
		b.subs = append(b.subs, sub)
	} else {
		sub.closed = true
	}
	return sub
}

// Publish fans the event out, by copy, to every consumer queue. Never blocks.
func (b *Bus) Publish(ev Event) {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	subs := b.subs
	b.mu.Unlock()

	for _, sub := range subs {
		sub.push(ev)
	}
}

// StartConsumer subscribes a handler and drives it from its own goroutine.
// The goroutine exits once the bus is closed and the queue fully drained.
func (b *Bus) StartConsumer(name string, handler func(Event)) {
	sub := b.Subscribe(name)
	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		for {
			ev, ok := sub.Next(context.Background())
			if !ok {
				return
			}
			handler(ev)
		}
	}()
}

// Shutdown closes the bus and waits for every started consumer to drain.
// No event published before Shutdown is lost.
func (b *Bus) Shutdown() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		b.wg.Wait()
		return
	}
	b.closed = true
	subs := b.subs
	b.mu.Unlock()

	for _, sub := range subs {
		sub.close()
	}
	b.wg.Wait()
}

func (s *Subscription) push(ev Event) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.items = append(s.items, ev)
	s.mu.Unlock()

	select {
	case s.notify <- struct{}{}:
	default:
	}
}

func (s *Subscription) close() {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	select {
	case s.notify <- struct{}{}:
	default:
	}
}

// Next blocks until an event is available, the queue is closed and drained,
// or ctx is done. The second return is false when no more events will come.
func (s *Subscription) Next(ctx context.Context) (Event, bool) {
	for {
		s.mu.Lock()
		if len(s.items) > 0 {
			ev := s.items[0]
			s.items = s.items[1:]
			s.mu.Unlock()
			return ev, true
		}
		closed := s.closed
		s.mu.Unlock()

		if closed {
			return nil, false
		}

		select {
		case <-s.notify:
		case <-ctx.Done():
			return nil, false
		}
	}
}

// Pending reports the number of undelivered events in the queue.
func (s *Subscription) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.items)
}
