// pkg/btrfs/rollback.go

package btrfs

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/CodeMonkeyCybersecurity/pc-switcher/pkg/execute"
	"github.com/CodeMonkeyCybersecurity/pc-switcher/pkg/pcs_err"
	cerr "github.com/cockroachdb/errors"
	"go.uber.org/zap"
)

// RollbackSession restores every subvolume captured in a session's
// pre-snapshots. The live subvolume is moved aside (never deleted) and a
// writable snapshot of the pre-snapshot takes its place. Mounted subvolumes
// pick the restored content up on the next mount/reboot.
func (m *Manager) RollbackSession(ctx context.Context, sessionID string, subvolumePaths map[string]string) error {
	snapshots, err := m.List(ctx)
	if err != nil {
		return err
	}

	var preSnaps []*Snapshot
	for _, snap := range snapshots {
		if snap.SessionID == sessionID && snap.Phase == PhasePre {
			preSnaps = append(preSnaps, snap)
		}
	}
	if len(preSnaps) == 0 {
		return pcs_err.NewUserError("no pre-snapshots found for session %s", sessionID)
	}

	for _, snap := range preSnaps {
		livePath, ok := subvolumePaths[snap.Subvolume]
		if !ok {
			m.log.Warn("Pre-snapshot has no configured subvolume path, skipping",
				zap.String("subvolume", snap.Subvolume))
			continue
		}
		if err := m.rollbackOne(ctx, snap, livePath); err != nil {
			return err
		}
	}
	return nil
}

func (m *Manager) rollbackOne(ctx context.Context, snap *Snapshot, livePath string) error {
	asidePath := filepath.Join(m.root,
		fmt.Sprintf("%s-replaced-%s", snap.Subvolume, time.Now().UTC().Format(nameTimeLayout)))

	m.log.Info("Rolling back subvolume",
		zap.String("subvolume", snap.Subvolume),
		zap.String("live_path", livePath),
		zap.String("from_snapshot", snap.Path),
		zap.String("aside_path", asidePath))

	// The replaced subvolume is kept, not destroyed. An operator can delete
	// it once the rollback is confirmed good.
	res, err := m.exec.Run(ctx, execute.Options{
		Command: "mv",
		Args:    []string{livePath, asidePath},
	})
	if err != nil {
		return err
	}
	if !res.Success {
		return pcs_err.NewUserError(
			"cannot move %s aside (is it mounted or in use?): %s",
			livePath, pcs_err.ExtractSummary(res.Stderr, 2))
	}

	res, err = m.exec.Run(ctx, execute.Options{
		Command: "btrfs",
		Args:    []string{"subvolume", "snapshot", snap.Path, livePath},
	})
	if err != nil {
		return err
	}
	if !res.Success {
		return cerr.Newf("failed to restore %s from %s: %s",
			livePath, snap.Path, pcs_err.ExtractSummary(res.Stderr, 2))
	}
	return nil
}

// SessionsWithPreSnapshots lists restorable sessions, newest first.
func (m *Manager) SessionsWithPreSnapshots(ctx context.Context) ([]*SessionGroup, error) {
	snapshots, err := m.List(ctx)
	if err != nil {
		return nil, err
	}
	var pre []*Snapshot
	for _, snap := range snapshots {
		if snap.Phase == PhasePre {
			pre = append(pre, snap)
		}
	}
	return GroupBySession(pre), nil
}
