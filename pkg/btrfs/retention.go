// pkg/btrfs/retention.go
//
// Retention cleanup groups snapshots by session and deletes whole sessions,
// never individual snapshots: a session with only its pre-snapshots deleted
// would be unrecoverable. Local host only; cleanup never reaches across the
// sync boundary.

package btrfs

import (
	"context"
	"sort"
	"time"

	"go.uber.org/zap"
)

// RetentionPolicy controls which snapshot sessions survive cleanup.
type RetentionPolicy struct {
	// KeepRecent sessions are always preserved, regardless of age.
	KeepRecent int
	// OlderThan gates deletion of the remainder; zero means any age.
	OlderThan time.Duration
	DryRun    bool
}

// SessionGroup is every snapshot of one sync session, newest first overall.
type SessionGroup struct {
	SessionID string
	Newest    time.Time
	Snapshots []*Snapshot
}

// GroupBySession clusters snapshots into sessions, newest session first.
func GroupBySession(snapshots []*Snapshot) []*SessionGroup {
	byID := make(map[string]*SessionGroup)
	for _, snap := range snapshots {
		group, ok := byID[snap.SessionID]
		if !ok {
			group = &SessionGroup{SessionID: snap.SessionID}
			byID[snap.SessionID] = group
		}
		group.Snapshots = append(group.Snapshots, snap)
		if snap.Timestamp.After(group.Newest) {
			group.Newest = snap.Timestamp
		}
	}

	groups := make([]*SessionGroup, 0, len(byID))
	for _, group := range byID {
		groups = append(groups, group)
	}
	sort.Slice(groups, func(i, j int) bool {
		return groups[i].Newest.After(groups[j].Newest)
	})
	return groups
}

// PlanCleanup selects the sessions the policy allows deleting.
func PlanCleanup(snapshots []*Snapshot, policy RetentionPolicy, now time.Time) []*SessionGroup {
	groups := GroupBySession(snapshots)
	if len(groups) <= policy.KeepRecent {
		return nil
	}

	var doomed []*SessionGroup
	for _, group := range groups[policy.KeepRecent:] {
		if policy.OlderThan > 0 && group.Newest.After(now.Add(-policy.OlderThan)) {
			continue
		}
		doomed = append(doomed, group)
	}
	return doomed
}

// Cleanup applies the policy and returns the number of snapshots deleted.
// Idempotent: a second run with identical parameters deletes nothing.
func (m *Manager) Cleanup(ctx context.Context, policy RetentionPolicy) (int, error) {
	snapshots, err := m.List(ctx)
	if err != nil {
		return 0, err
	}

	doomed := PlanCleanup(snapshots, policy, time.Now())
	deleted := 0
	for _, group := range doomed {
		m.log.Info("Removing snapshot session",
			zap.String("session_id", group.SessionID),
			zap.Time("newest", group.Newest),
			zap.Int("snapshots", len(group.Snapshots)),
			zap.Bool("dry_run", policy.DryRun))

		for _, snap := range group.Snapshots {
			if policy.DryRun {
				deleted++
				continue
			}
			if err := m.Delete(ctx, snap); err != nil {
				return deleted, err
			}
			deleted++
		}
	}
	return deleted, nil
}
