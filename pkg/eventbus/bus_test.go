package eventbus_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"

	"github.com/CodeMonkeyCybersecurity/pc-switcher/pkg/eventbus"
)

func logEvent(msg string) eventbus.LogEvent {
	return eventbus.LogEvent{
		Time:    time.Now(),
		Level:   zapcore.InfoLevel,
		Job:     "test-job",
		Host:    eventbus.HostSource,
		Message: msg,
	}
}

func TestBus_FanOutDeliversToEveryConsumer(t *testing.T) {
	bus := eventbus.New()
	a := bus.Subscribe("a")
	b := bus.Subscribe("b")

	for i := 0; i < 100; i++ {
		bus.Publish(logEvent("hello"))
	}

	assert.Equal(t, 100, a.Pending())
	assert.Equal(t, 100, b.Pending())
}

func TestBus_UndrainedConsumerDoesNotBlockPublish(t *testing.T) {
	bus := eventbus.New()
	stalled := bus.Subscribe("stalled")
	active := bus.Subscribe("active")

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 10000; i++ {
			bus.Publish(logEvent("flood"))
		}
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("publish blocked on an undrained consumer")
	}

	// Nothing was dropped on either side.
	assert.Equal(t, 10000, stalled.Pending())
	assert.Equal(t, 10000, active.Pending())
}

func TestBus_PerPublisherOrderPreserved(t *testing.T) {
	bus := eventbus.New()
	sub := bus.Subscribe("ordered")

	const n = 500
	for i := 0; i < n; i++ {
		bus.Publish(eventbus.ProgressEvent{
			Time: time.Now(),
			Job:  "seq",
			Host: eventbus.HostSource,
			Update: eventbus.ProgressUpdate{
				Item: string(rune('a' + i%26)),
			},
		})
	}
	bus.Shutdown()

	ctx := context.Background()
	for i := 0; i < n; i++ {
		ev, ok := sub.Next(ctx)
		require.True(t, ok, "event %d missing", i)
		pe, ok := ev.(eventbus.ProgressEvent)
		require.True(t, ok)
		assert.Equal(t, string(rune('a'+i%26)), pe.Update.Item)
	}
	_, ok := sub.Next(ctx)
	assert.False(t, ok)
}

func TestBus_ShutdownDrainsStartedConsumers(t *testing.T) {
	bus := eventbus.New()

	var mu sync.Mutex
	var got []string
	bus.StartConsumer("collector", func(ev eventbus.Event) {
		le := ev.(eventbus.LogEvent)
		mu.Lock()
		got = append(got, le.Message)
		mu.Unlock()
	})

	for i := 0; i < 1000; i++ {
		bus.Publish(logEvent("drain-me"))
	}
	bus.Shutdown()

	mu.Lock()
	defer mu.Unlock()
	assert.Len(t, got, 1000, "shutdown returned before the queue drained")
}

func TestBus_PublishAfterShutdownIsDropped(t *testing.T) {
	bus := eventbus.New()
	sub := bus.Subscribe("late")
	bus.Shutdown()

	bus.Publish(logEvent("too late"))
	assert.Equal(t, 0, sub.Pending())
}

func TestBus_ConcurrentPublishersAllDelivered(t *testing.T) {
	bus := eventbus.New()
	sub := bus.Subscribe("sink")

	const publishers = 8
	const perPublisher = 250

	var wg sync.WaitGroup
	for p := 0; p < publishers; p++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < perPublisher; i++ {
				bus.Publish(logEvent("concurrent"))
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, publishers*perPublisher, sub.Pending())
}

func TestSubscription_NextHonorsContext(t *testing.T) {
	bus := eventbus.New()
	sub := bus.Subscribe("blocked")

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, ok := sub.Next(ctx)
	assert.False(t, ok)
	assert.Less(t, time.Since(start), 2*time.Second)
}
