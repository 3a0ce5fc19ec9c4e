// pkg/diskwatch/watchdog.go
//
// One watchdog per host polls free space while jobs run. Crossing the
// runtime minimum is a fatal condition: the error return makes the
// concurrency group cancel the run, attributed to the breaching host.

package diskwatch

import (
	"context"
	"time"

	"github.com/CodeMonkeyCybersecurity/pc-switcher/pkg/config"
	"github.com/CodeMonkeyCybersecurity/pc-switcher/pkg/eventbus"
	"github.com/CodeMonkeyCybersecurity/pc-switcher/pkg/job"
	cerr "github.com/cockroachdb/errors"
	"go.uber.org/zap"
)

// BreachError reports a runtime threshold crossing, attributed to a host.
type BreachError struct {
	Host     eventbus.HostRole
	Hostname string
	Sample   *Sample
	Min      config.Threshold
}

func (e *BreachError) Error() string {
	return "free disk space on " + e.Hostname + " (" + string(e.Host) + ") fell below the runtime minimum " + e.Min.String()
}

// Watchdog polls one host's filesystem at a fixed interval.
type Watchdog struct {
	Host     eventbus.HostRole
	Hostname string
	Sampler  Sampler
	// Paths are the filesystems to watch; distinct subvolumes may share a
	// filesystem, the redundant samples are cheap.
	Paths    []string
	Min      config.Threshold
	Interval time.Duration
	Log      *job.JobLogger
}

// Run polls until ctx is cancelled or the threshold is breached. The first
// check happens immediately, not one interval in.
func (w *Watchdog) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.Interval)
	defer ticker.Stop()

	for {
		for _, path := range w.Paths {
			sample, err := w.Sampler.Sample(ctx, path)
			if err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				return cerr.Wrapf(err, "disk watchdog on %s cannot sample %s", w.Hostname, path)
			}

			minBytes := w.Min.MinBytes(sample.Total)
			if sample.Free < minBytes {
				breach := &BreachError{Host: w.Host, Hostname: w.Hostname, Sample: sample, Min: w.Min}
				w.Log.Error("Disk space below runtime minimum",
					zap.String("path", path),
					zap.Uint64("free_bytes", sample.Free),
					zap.Uint64("min_bytes", minBytes),
					zap.Float64("free_percent", sample.FreePercent()))
				return breach
			}

			w.Log.Debug("Disk space check passed",
				zap.String("path", path),
				zap.Uint64("free_bytes", sample.Free),
				zap.Float64("free_percent", sample.FreePercent()))
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}
