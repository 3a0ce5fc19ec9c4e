// pkg/version/reconcile.go
//
// Both hosts must run the same pc-switcher before any job executes. The
// source binary is authoritative: an older or missing target binary gets
// replaced with a copy of the running executable. A newer target is a hard
// stop; downgrading a peer silently is never safe.

package version

import (
	"context"
	"os"
	"strings"

	cerr "github.com/cockroachdb/errors"
	goversion "github.com/hashicorp/go-version"
	"go.uber.org/zap"

	"github.com/CodeMonkeyCybersecurity/pc-switcher/pkg/execute"
	"github.com/CodeMonkeyCybersecurity/pc-switcher/pkg/pcs_err"
)

// DefaultInstallPath is where the binary lands on the target when no copy
// is already installed.
const DefaultInstallPath = "/usr/local/bin/pc-switcher"

// TargetHost is the slice of the remote executor reconcile needs.
type TargetHost interface {
	execute.Executor
	Upload(ctx context.Context, localPath, remotePath, mode string) error
}

// Reconcile compares the target's pc-switcher against the running binary
// and uploads ours when the target is older or absent. This is the one
// permitted mutation before pre-snapshots exist: replacing the binary is
// idempotent and never touches synced state.
func Reconcile(ctx context.Context, exec TargetHost, log *zap.Logger) error {
	local, err := goversion.NewVersion(Get())
	if err != nil {
		return cerr.Wrapf(err, "local version %q does not parse", Get())
	}

	installPath, remoteRaw, err := probe(ctx, exec)
	if err != nil {
		return err
	}

	if remoteRaw == "" {
		log.Info("pc-switcher not installed on target, uploading",
			zap.String("path", installPath),
			zap.String("version", local.String()))
		return install(ctx, exec, installPath)
	}

	remoteVer, err := goversion.NewVersion(remoteRaw)
	if err != nil {
		log.Warn("Target reports unparseable version, replacing binary",
			zap.String("reported", remoteRaw))
		return install(ctx, exec, installPath)
	}

	switch {
	case remoteVer.Equal(local):
		log.Debug("Target binary is current", zap.String("version", remoteVer.String()))
		return nil
	case remoteVer.GreaterThan(local):
		return pcs_err.NewValidationError(
			"target runs pc-switcher "+remoteVer.String()+", newer than local "+local.String(),
			"upgrade pc-switcher on this machine before syncing")
	default:
		log.Info("Upgrading target binary",
			zap.String("from", remoteVer.String()),
			zap.String("to", local.String()),
			zap.String("path", installPath))
		return install(ctx, exec, installPath)
	}
}

// probe locates the target binary and asks it for its version. A missing
// binary is reported as empty, not as an error.
func probe(ctx context.Context, exec TargetHost) (installPath, version string, err error) {
	res, err := exec.Run(ctx, execute.Options{
		Command: "command",
		Args:    []string{"-v", "pc-switcher"},
	})
	if err != nil {
		return "", "", err
	}
	if !res.Success {
		return DefaultInstallPath, "", nil
	}
	installPath = strings.TrimSpace(res.Stdout)
	if installPath == "" {
		installPath = DefaultInstallPath
	}

	res, err = exec.Run(ctx, execute.Options{
		Command: "pc-switcher",
		Args:    []string{"version", "--short"},
	})
	if err != nil {
		return "", "", err
	}
	if !res.Success {
		// Installed but broken wins a replacement, same as missing.
		return installPath, "", nil
	}
	return installPath, strings.TrimSpace(res.Stdout), nil
}

func install(ctx context.Context, exec TargetHost, installPath string) error {
	self, err := os.Executable()
	if err != nil {
		return cerr.Wrap(err, "cannot locate running executable")
	}
	if err := exec.Upload(ctx, self, installPath, "0755"); err != nil {
		return cerr.Wrapf(err, "failed to install pc-switcher on %s", exec.Hostname())
	}
	return nil
}
