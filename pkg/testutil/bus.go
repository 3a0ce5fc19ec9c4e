package testutil

import (
	"sync"
	"testing"

	"github.com/CodeMonkeyCybersecurity/pc-switcher/pkg/eventbus"
)

// BusCapture collects every event a bus publishes after it is attached.
type BusCapture struct {
	mu     sync.Mutex
	events []eventbus.Event
}

// CaptureBus attaches a recording consumer and shuts the bus down at test
// cleanup so the capture is complete before assertions run.
func CaptureBus(t *testing.T, bus *eventbus.Bus) *BusCapture {
	t.Helper()
	c := &BusCapture{}
	bus.StartConsumer("test-capture", func(ev eventbus.Event) {
		c.mu.Lock()
		c.events = append(c.events, ev)
		c.mu.Unlock()
	})
	t.Cleanup(bus.Shutdown)
	return c
}

// Events returns a snapshot of everything captured so far.
func (c *BusCapture) Events() []eventbus.Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]eventbus.Event(nil), c.events...)
}

// LogMessages filters captured LogEvents down to their messages.
func (c *BusCapture) LogMessages() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	var msgs []string
	for _, ev := range c.events {
		if le, ok := ev.(eventbus.LogEvent); ok {
			msgs = append(msgs, le.Message)
		}
	}
	return msgs
}
