// pkg/safety/diskwatch_job.go
//
// The runtime disk watchdog as a background job, one instance per host. The
// orchestrator starts both alongside the sequential runner; a breach error
// from either cancels the whole run.

package safety

import (
	"context"
	"fmt"
	"time"

	"github.com/CodeMonkeyCybersecurity/pc-switcher/pkg/config"
	"github.com/CodeMonkeyCybersecurity/pc-switcher/pkg/diskwatch"
	"github.com/CodeMonkeyCybersecurity/pc-switcher/pkg/eventbus"
	"github.com/CodeMonkeyCybersecurity/pc-switcher/pkg/job"
)

// DiskWatchdogJob polls one host's free space for the duration of the run.
type DiskWatchdogJob struct {
	cfg  *config.Config
	host eventbus.HostRole
}

// NewDiskWatchdogJob builds a watchdog for one host role.
func NewDiskWatchdogJob(cfg *config.Config, host eventbus.HostRole) *DiskWatchdogJob {
	return &DiskWatchdogJob{cfg: cfg, host: host}
}

func (j *DiskWatchdogJob) Name() string { return "disk-watchdog-" + string(j.host) }

func (j *DiskWatchdogJob) Kind() job.Kind { return job.KindBackground }

func (j *DiskWatchdogJob) ValidateConfig(cfg *config.Config) []error {
	var errs []error
	if cfg.Disk.PollInterval < time.Second {
		errs = append(errs, fmt.Errorf("disk.poll_interval %s is below the 1s floor", cfg.Disk.PollInterval))
	}
	return errs
}

// Validate samples each watched path once so a misconfigured mount or a
// missing df surfaces before any job mutates state.
func (j *DiskWatchdogJob) Validate(ctx context.Context, jc *job.Context) []error {
	sampler := j.sampler(jc)
	var errs []error
	for _, path := range j.cfg.Snapshots.Subvolumes {
		if _, err := sampler.Sample(ctx, path); err != nil {
			errs = append(errs, err)
		}
	}
	return errs
}

// Execute blocks until the run context is cancelled or the runtime minimum
// is breached.
func (j *DiskWatchdogJob) Execute(ctx context.Context, jc *job.Context) error {
	w := &diskwatch.Watchdog{
		Host:     j.host,
		Hostname: jc.HostnameFor(j.host),
		Sampler:  j.sampler(jc),
		Paths:    j.cfg.Snapshots.Subvolumes,
		Min:      j.cfg.Disk.RuntimeMin,
		Interval: j.cfg.Disk.PollInterval,
		Log:      jc.Logger(j.Name(), j.host),
	}
	return w.Run(ctx)
}

func (j *DiskWatchdogJob) sampler(jc *job.Context) diskwatch.Sampler {
	if j.host == eventbus.HostTarget {
		return diskwatch.RemoteSampler{Exec: jc.Remote}
	}
	return diskwatch.LocalSampler{}
}

// PreflightChecks builds the per-host preflight inputs the orchestrator
// feeds to diskwatch.Preflight before pre-snapshots are taken.
func PreflightChecks(cfg *config.Config, jc *job.Context) []diskwatch.Check {
	var checks []diskwatch.Check
	for _, host := range []eventbus.HostRole{eventbus.HostSource, eventbus.HostTarget} {
		var sampler diskwatch.Sampler = diskwatch.LocalSampler{}
		if host == eventbus.HostTarget {
			sampler = diskwatch.RemoteSampler{Exec: jc.Remote}
		}
		for _, path := range cfg.Snapshots.Subvolumes {
			checks = append(checks, diskwatch.Check{
				Host:     host,
				Hostname: jc.HostnameFor(host),
				Sampler:  sampler,
				Path:     path,
			})
		}
	}
	return checks
}
