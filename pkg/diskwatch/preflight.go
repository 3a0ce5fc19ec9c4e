// pkg/diskwatch/preflight.go

package diskwatch

import (
	"context"
	"fmt"

	"github.com/CodeMonkeyCybersecurity/pc-switcher/pkg/config"
	"github.com/CodeMonkeyCybersecurity/pc-switcher/pkg/eventbus"
	"github.com/CodeMonkeyCybersecurity/pc-switcher/pkg/job"
	"github.com/CodeMonkeyCybersecurity/pc-switcher/pkg/pcs_err"
	"go.uber.org/zap"
)

// Check is one host's preflight input.
type Check struct {
	Host     eventbus.HostRole
	Hostname string
	Sampler  Sampler
	Path     string
}

// Preflight gates run start: every host must clear the preflight minimum,
// which sits above the runtime minimum so a run never starts already close
// to the abort watermark.
func Preflight(ctx context.Context, checks []Check, min config.Threshold, log *job.JobLogger) error {
	for _, check := range checks {
		sample, err := check.Sampler.Sample(ctx, check.Path)
		if err != nil {
			return err
		}

		minBytes := min.MinBytes(sample.Total)
		log.Info("Disk preflight",
			zap.String("hostname", check.Hostname),
			zap.String("path", check.Path),
			zap.Uint64("free_bytes", sample.Free),
			zap.Uint64("min_bytes", minBytes),
			zap.Float64("free_percent", sample.FreePercent()))

		if sample.Free < minBytes {
			return pcs_err.NewValidationError(
				fmt.Sprintf("not enough free disk space on %s: %.1f%% free, preflight minimum is %s",
					check.Hostname, sample.FreePercent(), min.String()),
				"free up disk space or lower disk.preflight_min",
				"run 'pc-switcher cleanup-snapshots' to remove old snapshot sessions")
		}
	}
	return nil
}
