// pkg/btrfs/types.go

package btrfs

import (
	"fmt"
	"strings"
	"time"

	"github.com/CodeMonkeyCybersecurity/pc-switcher/pkg/eventbus"
	cerr "github.com/cockroachdb/errors"
)

// Phase distinguishes the snapshot taken before jobs run from the one taken
// after every job succeeded.
type Phase string

const (
	PhasePre  Phase = "pre"
	PhasePost Phase = "post"
)

// Snapshot is one read-only point-in-time capture of a subvolume.
// (Subvolume, Phase, SessionID) is unique per host.
type Snapshot struct {
	Subvolume string
	Phase     Phase
	Timestamp time.Time
	SessionID string
	Host      eventbus.HostRole
	Path      string
}

// Timestamps embedded in snapshot names use the compact ISO-8601 form so
// names stay shell-friendly.
const nameTimeLayout = "20060102T150405Z"

// SnapshotName builds the deterministic name
// {subvolume}-{pre|post}-{ISO8601}-{sessionID}.
func SnapshotName(subvolume string, phase Phase, ts time.Time, sessionID string) string {
	return fmt.Sprintf("%s-%s-%s-%s",
		sanitizeSubvolume(subvolume), phase, ts.UTC().Format(nameTimeLayout), sessionID)
}

// ParseSnapshotName inverts SnapshotName. The subvolume component may itself
// contain dashes, so the fixed fields are taken from the right.
func ParseSnapshotName(name string) (*Snapshot, error) {
	parts := strings.Split(name, "-")
	if len(parts) < 4 {
		return nil, cerr.Newf("%q is not a pc-switcher snapshot name", name)
	}

	sessionID := parts[len(parts)-1]
	tsRaw := parts[len(parts)-2]
	phaseRaw := parts[len(parts)-3]
	subvolume := strings.Join(parts[:len(parts)-3], "-")

	phase := Phase(phaseRaw)
	if phase != PhasePre && phase != PhasePost {
		return nil, cerr.Newf("%q is not a pc-switcher snapshot name: bad phase %q", name, phaseRaw)
	}
	ts, err := time.Parse(nameTimeLayout, tsRaw)
	if err != nil {
		return nil, cerr.Wrapf(err, "%q is not a pc-switcher snapshot name", name)
	}
	if subvolume == "" || sessionID == "" {
		return nil, cerr.Newf("%q is not a pc-switcher snapshot name", name)
	}

	return &Snapshot{
		Subvolume: subvolume,
		Phase:     phase,
		Timestamp: ts,
		SessionID: sessionID,
	}, nil
}

func sanitizeSubvolume(subvolume string) string {
	s := strings.Trim(subvolume, "/")
	if s == "" {
		s = "root"
	}
	return strings.ReplaceAll(s, "/", "_")
}
