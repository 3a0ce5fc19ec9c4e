package safety_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/CodeMonkeyCybersecurity/pc-switcher/pkg/btrfs"
	"github.com/CodeMonkeyCybersecurity/pc-switcher/pkg/config"
	"github.com/CodeMonkeyCybersecurity/pc-switcher/pkg/eventbus"
	"github.com/CodeMonkeyCybersecurity/pc-switcher/pkg/job"
	"github.com/CodeMonkeyCybersecurity/pc-switcher/pkg/safety"
	"github.com/CodeMonkeyCybersecurity/pc-switcher/pkg/testutil"
)

func snapshotConfig() *config.Config {
	cfg := &config.Config{}
	cfg.Snapshots.Subvolumes = []string{"/", "/home"}
	cfg.Snapshots.Root = "/.snapshots-pcswitcher"
	return cfg
}

func snapshotTestContext(t *testing.T) (*job.Context, *testutil.FakeExecutor, *testutil.FakeExecutor) {
	t.Helper()
	bus := eventbus.New()
	t.Cleanup(bus.Shutdown)
	local := testutil.NewFakeExecutor("sourcepc")
	remote := testutil.NewFakeExecutor("officepc")
	return &job.Context{
		SessionID:      "1f3c9a2b",
		Local:          local,
		Remote:         remote,
		Bus:            bus,
		SourceHostname: "sourcepc",
		TargetHostname: "officepc",
	}, local, remote
}

func TestSnapshotJob_Names(t *testing.T) {
	cfg := snapshotConfig()
	assert.Equal(t, "snapshot-pre", safety.NewSnapshotJob(cfg, btrfs.PhasePre).Name())
	assert.Equal(t, "snapshot-post", safety.NewSnapshotJob(cfg, btrfs.PhasePost).Name())
	assert.Equal(t, job.KindSystem, safety.NewSnapshotJob(cfg, btrfs.PhasePre).Kind())
}

func TestSnapshotJob_ValidateConfig(t *testing.T) {
	tests := []struct {
		name       string
		mutate     func(*config.Config)
		wantErrors int
	}{
		{name: "valid", mutate: func(*config.Config) {}, wantErrors: 0},
		{
			name:       "no subvolumes",
			mutate:     func(c *config.Config) { c.Snapshots.Subvolumes = nil },
			wantErrors: 1,
		},
		{
			name:       "relative root",
			mutate:     func(c *config.Config) { c.Snapshots.Root = "snapshots" },
			wantErrors: 1,
		},
		{
			name:       "relative subvolume",
			mutate:     func(c *config.Config) { c.Snapshots.Subvolumes = []string{"home"} },
			wantErrors: 1,
		},
	}

	j := safety.NewSnapshotJob(snapshotConfig(), btrfs.PhasePre)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := snapshotConfig()
			tt.mutate(cfg)
			assert.Len(t, j.ValidateConfig(cfg), tt.wantErrors)
		})
	}
}

func TestSnapshotJob_ValidateRejectsNonSubvolume(t *testing.T) {
	jc, local, _ := snapshotTestContext(t)
	local.StubFail("subvolume show /home", 1, "ERROR: not a subvolume")

	j := safety.NewSnapshotJob(snapshotConfig(), btrfs.PhasePre)
	errs := j.Validate(context.Background(), jc)
	require.Len(t, errs, 1)
	assert.Contains(t, errs[0].Error(), "/home on sourcepc")
}

func TestSnapshotJob_ValidateCleanBothHosts(t *testing.T) {
	jc, _, _ := snapshotTestContext(t)
	j := safety.NewSnapshotJob(snapshotConfig(), btrfs.PhasePre)
	assert.Empty(t, j.Validate(context.Background(), jc))
}

func TestSnapshotJob_ExecuteSnapshotsBothHosts(t *testing.T) {
	jc, local, remote := snapshotTestContext(t)
	for _, exec := range []*testutil.FakeExecutor{local, remote} {
		// Snapshot destinations do not pre-exist.
		exec.StubFail("test -e /.snapshots-pcswitcher/", 1, "")
		exec.StubOutput("subvolume show /home", "@home\n")
		exec.StubOutput("subvolume show /", "@\n")
	}

	j := safety.NewSnapshotJob(snapshotConfig(), btrfs.PhasePre)
	require.NoError(t, j.Execute(context.Background(), jc))

	// Two subvolumes on each of two hosts.
	require.Len(t, j.Created, 4)
	assert.Len(t, local.CallsMatching("subvolume snapshot -r"), 2)
	assert.Len(t, remote.CallsMatching("subvolume snapshot -r"), 2)

	hosts := map[eventbus.HostRole]int{}
	for _, snap := range j.Created {
		hosts[snap.Host]++
		assert.Equal(t, "1f3c9a2b", snap.SessionID)
		assert.Equal(t, btrfs.PhasePre, snap.Phase)
	}
	assert.Equal(t, 2, hosts[eventbus.HostSource])
	assert.Equal(t, 2, hosts[eventbus.HostTarget])
}

func TestSnapshotJob_ExecuteStopsOnFirstFailure(t *testing.T) {
	jc, local, remote := snapshotTestContext(t)
	local.StubFail("test -e /.snapshots-pcswitcher/", 1, "")
	local.StubFail("subvolume snapshot -r", 1, "ERROR: read-only filesystem")

	j := safety.NewSnapshotJob(snapshotConfig(), btrfs.PhasePre)
	err := j.Execute(context.Background(), jc)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "on sourcepc")
	assert.Empty(t, remote.CallsMatching("subvolume snapshot"), "target untouched after source failure")
	assert.Empty(t, j.Created)
}

func TestDiskWatchdogJob_Identity(t *testing.T) {
	cfg := snapshotConfig()
	src := safety.NewDiskWatchdogJob(cfg, eventbus.HostSource)
	tgt := safety.NewDiskWatchdogJob(cfg, eventbus.HostTarget)

	assert.Equal(t, "disk-watchdog-source", src.Name())
	assert.Equal(t, "disk-watchdog-target", tgt.Name())
	assert.Equal(t, job.KindBackground, src.Kind())
}

func TestDiskWatchdogJob_ValidateSamplesTargetPaths(t *testing.T) {
	jc, _, remote := snapshotTestContext(t)
	remote.StubOutput("df -B1 --output=avail,size",
		"Avail Size\n100000 1000000\n")

	cfg := snapshotConfig()
	j := safety.NewDiskWatchdogJob(cfg, eventbus.HostTarget)
	assert.Empty(t, j.Validate(context.Background(), jc))
	assert.Len(t, remote.CallsMatching("df -B1"), len(cfg.Snapshots.Subvolumes))
}

func TestDiskWatchdogJob_ValidateSurfacesBrokenDF(t *testing.T) {
	jc, _, remote := snapshotTestContext(t)
	remote.StubFail("df", 127, "sh: df: command not found")

	j := safety.NewDiskWatchdogJob(snapshotConfig(), eventbus.HostTarget)
	errs := j.Validate(context.Background(), jc)
	assert.NotEmpty(t, errs)
}

func TestPreflightChecks_CoverBothHostsAndAllPaths(t *testing.T) {
	jc, _, _ := snapshotTestContext(t)
	cfg := snapshotConfig()

	checks := safety.PreflightChecks(cfg, jc)
	require.Len(t, checks, 4)

	byHost := map[eventbus.HostRole][]string{}
	for _, c := range checks {
		byHost[c.Host] = append(byHost[c.Host], c.Path)
	}
	assert.ElementsMatch(t, []string{"/", "/home"}, byHost[eventbus.HostSource])
	assert.ElementsMatch(t, []string{"/", "/home"}, byHost[eventbus.HostTarget])
	assert.Equal(t, "sourcepc", checks[0].Hostname)
}
