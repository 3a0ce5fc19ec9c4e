// pkg/safety/snapshot_job.go
//
// The snapshot manager as a system job. Two instances run per session, one
// per phase: the pre instance brackets the run before the first mutation,
// the post instance only after every configured job succeeded.

package safety

import (
	"context"
	"strings"

	cerr "github.com/cockroachdb/errors"
	"go.uber.org/zap"

	"github.com/CodeMonkeyCybersecurity/pc-switcher/pkg/btrfs"
	"github.com/CodeMonkeyCybersecurity/pc-switcher/pkg/config"
	"github.com/CodeMonkeyCybersecurity/pc-switcher/pkg/eventbus"
	"github.com/CodeMonkeyCybersecurity/pc-switcher/pkg/job"
	"github.com/CodeMonkeyCybersecurity/pc-switcher/pkg/pcs_err"
)

// SnapshotJob captures every configured subvolume on both hosts.
type SnapshotJob struct {
	cfg   *config.Config
	phase btrfs.Phase

	// Created is filled during Execute; the orchestrator reads it for the
	// final summary and the rollback hint.
	Created []*btrfs.Snapshot
}

func NewSnapshotJob(cfg *config.Config, phase btrfs.Phase) *SnapshotJob {
	return &SnapshotJob{cfg: cfg, phase: phase}
}

func (s *SnapshotJob) Name() string   { return "snapshot-" + string(s.phase) }
func (s *SnapshotJob) Kind() job.Kind { return job.KindSystem }

func (s *SnapshotJob) ValidateConfig(cfg *config.Config) []error {
	var errs []error
	if len(cfg.Snapshots.Subvolumes) == 0 {
		errs = append(errs, pcs_err.NewConfigError("snapshots.subvolumes must not be empty"))
	}
	if !strings.HasPrefix(cfg.Snapshots.Root, "/") {
		errs = append(errs, pcs_err.NewConfigError("snapshots.root must be an absolute path"))
	}
	for _, sub := range cfg.Snapshots.Subvolumes {
		if !strings.HasPrefix(sub, "/") {
			errs = append(errs, pcs_err.NewConfigError("snapshot subvolume "+sub+" must be an absolute path"))
		}
	}
	return errs
}

// Validate proves every configured path is a btrfs subvolume on both hosts
// and that no non-subvolume squats on the snapshot root. Read-only.
func (s *SnapshotJob) Validate(ctx context.Context, jc *job.Context) []error {
	var errs []error
	for _, host := range []eventbus.HostRole{eventbus.HostSource, eventbus.HostTarget} {
		mgr := s.manager(jc, host)
		for _, sub := range s.cfg.Snapshots.Subvolumes {
			isSubvol, err := mgr.IsSubvolume(ctx, sub)
			if err != nil {
				errs = append(errs, err)
				continue
			}
			if !isSubvol {
				errs = append(errs, pcs_err.NewValidationError(
					sub+" on "+jc.HostnameFor(host)+" is not a btrfs subvolume",
					"pc-switcher only supports snapshot-capable filesystems"))
			}
		}
		if err := s.validateRoot(ctx, mgr, jc.HostnameFor(host)); err != nil {
			errs = append(errs, err)
		}
	}
	return errs
}

func (s *SnapshotJob) validateRoot(ctx context.Context, mgr *btrfs.Manager, hostname string) error {
	res, err := mgr.IsSubvolume(ctx, mgr.Root())
	if err != nil {
		return err
	}
	if res {
		return nil
	}
	// Either absent (fine, created on first use) or a plain path (fatal).
	exists, err := mgr.PathExists(ctx, mgr.Root())
	if err != nil {
		return err
	}
	if exists {
		return pcs_err.NewValidationError(
			"snapshot root "+mgr.Root()+" on "+hostname+" exists but is not a btrfs subvolume",
			"move the existing path aside; pc-switcher will create the subvolume itself")
	}
	return nil
}

func (s *SnapshotJob) Execute(ctx context.Context, jc *job.Context) error {
	for _, host := range []eventbus.HostRole{eventbus.HostSource, eventbus.HostTarget} {
		mgr := s.manager(jc, host)
		if err := mgr.EnsureRoot(ctx); err != nil {
			return err
		}

		for _, sub := range s.cfg.Snapshots.Subvolumes {
			if err := ctx.Err(); err != nil {
				return err
			}
			id, err := mgr.SubvolumeID(ctx, sub)
			if err != nil {
				return err
			}
			snap, err := mgr.Create(ctx, sub, id, s.phase, jc.SessionID)
			if err != nil {
				return cerr.Wrapf(err, "%s snapshot of %s on %s failed",
					s.phase, sub, jc.HostnameFor(host))
			}
			s.Created = append(s.Created, snap)

			jc.Logger(s.Name(), host).Info("Snapshot created",
				zap.String("subvolume", snap.Subvolume),
				zap.String("path", snap.Path))
		}
	}
	return nil
}

func (s *SnapshotJob) manager(jc *job.Context, host eventbus.HostRole) *btrfs.Manager {
	return btrfs.NewManager(
		jc.Executor(host),
		host,
		s.cfg.Snapshots.Root,
		eventbus.NewJobLogger(jc.Bus, s.Name(), host, jc.HostnameFor(host)),
	)
}
