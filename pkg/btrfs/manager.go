// pkg/btrfs/manager.go
//
// Snapshot operations driven through an Executor, so the same code manages
// subvolumes on whichever host the executor points at.

package btrfs

import (
	"context"
	"path/filepath"
	"strings"
	"time"

	"github.com/CodeMonkeyCybersecurity/pc-switcher/pkg/eventbus"
	"github.com/CodeMonkeyCybersecurity/pc-switcher/pkg/execute"
	"github.com/CodeMonkeyCybersecurity/pc-switcher/pkg/pcs_err"
	cerr "github.com/cockroachdb/errors"
	"go.uber.org/zap"
)

// Manager handles snapshots inside one host's snapshot-storage subvolume.
type Manager struct {
	exec execute.Executor
	host eventbus.HostRole
	root string
	log  *zap.Logger
}

func NewManager(exec execute.Executor, host eventbus.HostRole, root string, log *zap.Logger) *Manager {
	if log == nil {
		log = zap.NewNop()
	}
	return &Manager{exec: exec, host: host, root: root, log: log}
}

// Root returns the snapshot-storage subvolume path.
func (m *Manager) Root() string { return m.root }

// IsSubvolume reports whether path is a btrfs subvolume.
func (m *Manager) IsSubvolume(ctx context.Context, path string) (bool, error) {
	res, err := m.exec.Run(ctx, execute.Options{
		Command: "btrfs",
		Args:    []string{"subvolume", "show", path},
	})
	if err != nil {
		return false, err
	}
	return res.Success, nil
}

// EnsureRoot creates the snapshot-storage subvolume on first use. A
// same-named path that exists but is not a subvolume is a fatal
// misconfiguration: snapshotting into a plain directory that lives inside a
// snapshotted subvolume would recurse.
func (m *Manager) EnsureRoot(ctx context.Context) error {
	exists, err := m.PathExists(ctx, m.root)
	if err != nil {
		return err
	}
	if exists {
		isSubvol, err := m.IsSubvolume(ctx, m.root)
		if err != nil {
			return err
		}
		if !isSubvol {
			return pcs_err.NewValidationError(
				"snapshot root "+m.root+" on "+m.exec.Hostname()+" exists but is not a btrfs subvolume",
				"move the existing path aside",
				"pc-switcher will create the subvolume on the next run")
		}
		return nil
	}

	m.log.Info("Creating snapshot storage subvolume",
		zap.String("host", m.exec.Hostname()),
		zap.String("path", m.root))

	res, err := m.exec.Run(ctx, execute.Options{
		Command: "btrfs",
		Args:    []string{"subvolume", "create", m.root},
	})
	if err != nil {
		return err
	}
	if !res.Success {
		return cerr.Newf("failed to create snapshot root %s on %s: %s",
			m.root, m.exec.Hostname(), pcs_err.ExtractSummary(res.Stderr, 2))
	}
	return nil
}

// SubvolumeID resolves the btrfs name of a mounted subvolume path, e.g.
// "/home" -> "@home". Used as the subvolume component in snapshot names.
func (m *Manager) SubvolumeID(ctx context.Context, path string) (string, error) {
	res, err := m.exec.Run(ctx, execute.Options{
		Command: "btrfs",
		Args:    []string{"subvolume", "show", path},
	})
	if err != nil {
		return "", err
	}
	if !res.Success {
		return "", pcs_err.NewValidationError(
			path + " on " + m.exec.Hostname() + " is not a btrfs subvolume")
	}
	// First output line is the subvolume path relative to the fs root.
	name := strings.TrimSpace(strings.SplitN(res.Stdout, "\n", 2)[0])
	if name == "" || name == "/" {
		return sanitizeSubvolume(path), nil
	}
	return filepath.Base(name), nil
}

// Create takes one read-only snapshot and verifies it landed.
func (m *Manager) Create(ctx context.Context, sourcePath, subvolumeID string, phase Phase, sessionID string) (*Snapshot, error) {
	ts := time.Now()
	name := SnapshotName(subvolumeID, phase, ts, sessionID)
	dest := filepath.Join(m.root, name)

	exists, err := m.PathExists(ctx, dest)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, cerr.Newf("snapshot destination already exists: %s", dest)
	}

	m.log.Info("Creating snapshot",
		zap.String("host", m.exec.Hostname()),
		zap.String("source", sourcePath),
		zap.String("destination", dest))

	res, err := m.exec.Run(ctx, execute.Options{
		Command: "btrfs",
		Args:    []string{"subvolume", "snapshot", "-r", sourcePath, dest},
	})
	if err != nil {
		return nil, err
	}
	if !res.Success {
		return nil, cerr.Newf("failed to snapshot %s on %s: %s",
			sourcePath, m.exec.Hostname(), pcs_err.ExtractSummary(res.Stderr, 2))
	}

	isSubvol, err := m.IsSubvolume(ctx, dest)
	if err != nil {
		return nil, err
	}
	if !isSubvol {
		return nil, cerr.Newf("snapshot verification failed: %s is not a subvolume", dest)
	}

	return &Snapshot{
		Subvolume: subvolumeID,
		Phase:     phase,
		Timestamp: ts,
		SessionID: sessionID,
		Host:      m.host,
		Path:      dest,
	}, nil
}

// List returns every pc-switcher snapshot in the storage subvolume.
// Foreign entries are ignored.
func (m *Manager) List(ctx context.Context) ([]*Snapshot, error) {
	res, err := m.exec.Run(ctx, execute.Options{
		Command: "ls",
		Args:    []string{"-1", m.root},
	})
	if err != nil {
		return nil, err
	}
	if !res.Success {
		if strings.Contains(res.Stderr, "No such file") {
			return nil, nil
		}
		return nil, cerr.Newf("failed to list %s on %s: %s",
			m.root, m.exec.Hostname(), pcs_err.ExtractSummary(res.Stderr, 2))
	}

	var snapshots []*Snapshot
	for _, line := range strings.Split(res.Stdout, "\n") {
		name := strings.TrimSpace(line)
		if name == "" {
			continue
		}
		snap, err := ParseSnapshotName(name)
		if err != nil {
			m.log.Debug("Ignoring foreign entry in snapshot root", zap.String("name", name))
			continue
		}
		snap.Host = m.host
		snap.Path = filepath.Join(m.root, name)
		snapshots = append(snapshots, snap)
	}
	return snapshots, nil
}

// Delete removes one snapshot.
func (m *Manager) Delete(ctx context.Context, snap *Snapshot) error {
	m.log.Info("Deleting snapshot",
		zap.String("host", m.exec.Hostname()),
		zap.String("path", snap.Path))

	res, err := m.exec.Run(ctx, execute.Options{
		Command: "btrfs",
		Args:    []string{"subvolume", "delete", snap.Path},
	})
	if err != nil {
		return err
	}
	if !res.Success {
		return cerr.Newf("failed to delete snapshot %s: %s",
			snap.Path, pcs_err.ExtractSummary(res.Stderr, 2))
	}
	return nil
}

func (m *Manager) PathExists(ctx context.Context, path string) (bool, error) {
	res, err := m.exec.Run(ctx, execute.Options{
		Command: "test",
		Args:    []string{"-e", path},
	})
	if err != nil {
		return false, err
	}
	return res.Success, nil
}
