package diskwatch_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/CodeMonkeyCybersecurity/pc-switcher/pkg/config"
	"github.com/CodeMonkeyCybersecurity/pc-switcher/pkg/diskwatch"
	"github.com/CodeMonkeyCybersecurity/pc-switcher/pkg/eventbus"
	"github.com/CodeMonkeyCybersecurity/pc-switcher/pkg/job"
)

// scriptedSampler returns canned samples in sequence, repeating the last.
type scriptedSampler struct {
	mu      sync.Mutex
	samples []diskwatch.Sample
	idx     int
}

func (s *scriptedSampler) Sample(_ context.Context, path string) (*diskwatch.Sample, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sample := s.samples[s.idx]
	if s.idx < len(s.samples)-1 {
		s.idx++
	}
	sample.Path = path
	return &sample, nil
}

func testJobLogger(t *testing.T) (*job.JobLogger, *eventbus.Bus) {
	t.Helper()
	bus := eventbus.New()
	t.Cleanup(bus.Shutdown)
	jc := &job.Context{
		Bus:            bus,
		SourceHostname: "sourcepc",
		TargetHostname: "officepc",
	}
	return jc.Logger("disk-watchdog-target", eventbus.HostTarget), bus
}

func mustThreshold(t *testing.T, s string) config.Threshold {
	t.Helper()
	th, err := config.ParseThreshold(s)
	require.NoError(t, err)
	return th
}

// A filesystem draining from 20% free to 12% free crosses the 15% runtime
// minimum; the watchdog reports a breach attributed to its host.
func TestWatchdog_BreachAttribution(t *testing.T) {
	log, _ := testJobLogger(t)
	const total = 1_000_000_000_000

	w := &diskwatch.Watchdog{
		Host:     eventbus.HostTarget,
		Hostname: "officepc",
		Sampler: &scriptedSampler{samples: []diskwatch.Sample{
			{Free: total / 5, Total: total},        // 20%
			{Free: total * 12 / 100, Total: total}, // 12%
		}},
		Paths:    []string{"/home"},
		Min:      mustThreshold(t, "15%"),
		Interval: time.Millisecond,
		Log:      log,
	}

	err := w.Run(context.Background())
	require.Error(t, err)

	var breach *diskwatch.BreachError
	require.True(t, errors.As(err, &breach))
	assert.Equal(t, eventbus.HostTarget, breach.Host)
	assert.Equal(t, "officepc", breach.Hostname)
	assert.Equal(t, uint64(total*12/100), breach.Sample.Free)
	assert.Contains(t, breach.Error(), "officepc")
	assert.Contains(t, breach.Error(), "15%")
}

func TestWatchdog_FirstCheckIsImmediate(t *testing.T) {
	log, _ := testJobLogger(t)

	w := &diskwatch.Watchdog{
		Host:     eventbus.HostSource,
		Hostname: "sourcepc",
		Sampler: &scriptedSampler{samples: []diskwatch.Sample{
			{Free: 1, Total: 1000},
		}},
		Paths: []string{"/"},
		Min:   mustThreshold(t, "15%"),
		// An hour-long interval: only an immediate first check can fail
		// within the test timeout.
		Interval: time.Hour,
		Log:      log,
	}

	done := make(chan error, 1)
	go func() { done <- w.Run(context.Background()) }()

	select {
	case err := <-done:
		var breach *diskwatch.BreachError
		assert.True(t, errors.As(err, &breach))
	case <-time.After(5 * time.Second):
		t.Fatal("watchdog did not check immediately on start")
	}
}

func TestWatchdog_StopsOnCancel(t *testing.T) {
	log, _ := testJobLogger(t)

	w := &diskwatch.Watchdog{
		Host:     eventbus.HostSource,
		Hostname: "sourcepc",
		Sampler: &scriptedSampler{samples: []diskwatch.Sample{
			{Free: 900, Total: 1000},
		}},
		Paths:    []string{"/"},
		Min:      mustThreshold(t, "15%"),
		Interval: time.Millisecond,
		Log:      log,
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(5 * time.Second):
		t.Fatal("watchdog did not stop on cancel")
	}
}

func TestPreflight_BreachNamesHostAndRemediation(t *testing.T) {
	log, _ := testJobLogger(t)

	checks := []diskwatch.Check{
		{
			Host:     eventbus.HostSource,
			Hostname: "sourcepc",
			Sampler:  &scriptedSampler{samples: []diskwatch.Sample{{Free: 900, Total: 1000}}},
			Path:     "/",
		},
		{
			Host:     eventbus.HostTarget,
			Hostname: "officepc",
			Sampler:  &scriptedSampler{samples: []diskwatch.Sample{{Free: 100, Total: 1000}}},
			Path:     "/",
		},
	}

	err := diskwatch.Preflight(context.Background(), checks, mustThreshold(t, "20%"), log)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "officepc")
	assert.Contains(t, err.Error(), "cleanup-snapshots")
}

func TestPreflight_AllClear(t *testing.T) {
	log, _ := testJobLogger(t)

	checks := []diskwatch.Check{
		{
			Host:     eventbus.HostSource,
			Hostname: "sourcepc",
			Sampler:  &scriptedSampler{samples: []diskwatch.Sample{{Free: 500, Total: 1000}}},
			Path:     "/",
		},
	}
	assert.NoError(t, diskwatch.Preflight(context.Background(), checks, mustThreshold(t, "20%"), log))
}
