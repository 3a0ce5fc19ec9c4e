package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/CodeMonkeyCybersecurity/pc-switcher/pkg/config"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))
	return path
}

const minimalConfig = `
target: officepc
snapshots:
  subvolumes: ["/", "/home"]
`

func TestLoad_DefaultsApplied(t *testing.T) {
	cfg, err := config.Load(writeConfig(t, minimalConfig), "")
	require.NoError(t, err)

	assert.Equal(t, "officepc", cfg.Target)
	assert.Equal(t, 22, cfg.SSH.Port)
	assert.Equal(t, int64(8), cfg.SSH.MaxSessions)
	assert.Equal(t, 15*time.Second, cfg.SSH.KeepaliveInterval)
	assert.Equal(t, 3, cfg.SSH.KeepaliveMaxFailures)
	assert.Equal(t, "debug", cfg.LogLevelFile)
	assert.Equal(t, "info", cfg.LogLevelTerminal)
	assert.Equal(t, 10*time.Second, cfg.GracePeriod)
	assert.Equal(t, 30*time.Second, cfg.Disk.PollInterval)
	assert.Equal(t, "/.snapshots-pcswitcher", cfg.Snapshots.Root)
	assert.Equal(t, 3, cfg.Snapshots.Retention.KeepRecent)

	assert.True(t, cfg.Disk.PreflightMin.IsPercent())
	assert.Equal(t, uint64(20), cfg.Disk.PreflightMin.MinBytes(100))
	assert.Equal(t, uint64(15), cfg.Disk.RuntimeMin.MinBytes(100))
}

func TestLoad_TargetOverrideWins(t *testing.T) {
	cfg, err := config.Load(writeConfig(t, minimalConfig), "alice@otherpc:2222")
	require.NoError(t, err)
	assert.Equal(t, "alice@otherpc:2222", cfg.Target)
}

func TestLoad_FullConfig(t *testing.T) {
	cfg, err := config.Load(writeConfig(t, `
target: officepc
ssh:
  user: alice
  port: 2222
  max_sessions: 4
  keepalive_interval: 5s
log_level_file: trace
log_level_terminal: warn
grace_period: 30s
jobs:
  enabled: [dotfiles, packages]
  settings:
    dotfiles:
      paths: ["~/.config"]
disk:
  preflight_min: "25%"
  runtime_min: "10GB"
  poll_interval: 10s
snapshots:
  subvolumes: ["/", "/home"]
  root: /.snap
  retention:
    keep_recent: 5
    max_age: 168h
`), "")
	require.NoError(t, err)

	assert.Equal(t, "alice", cfg.SSH.User)
	assert.Equal(t, 2222, cfg.SSH.Port)
	assert.Equal(t, []string{"dotfiles", "packages"}, cfg.Jobs.Enabled)
	assert.False(t, cfg.Disk.RuntimeMin.IsPercent())
	assert.Equal(t, uint64(10_000_000_000), cfg.Disk.RuntimeMin.MinBytes(0))
	assert.Equal(t, 10*time.Second, cfg.Disk.PollInterval)
	assert.Equal(t, "/.snap", cfg.Snapshots.Root)
	assert.Equal(t, 5, cfg.Snapshots.Retention.KeepRecent)
	assert.Equal(t, 7*24*time.Hour, cfg.Snapshots.Retention.MaxAge)
}

func TestLoad_Rejections(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{
			name: "missing target",
			content: `
snapshots:
  subvolumes: ["/"]
`,
		},
		{
			name: "no subvolumes",
			content: `
target: officepc
`,
		},
		{
			name: "bad log level",
			content: `
target: officepc
log_level_file: verbose
snapshots:
  subvolumes: ["/"]
`,
		},
		{
			name: "runtime above preflight",
			content: `
target: officepc
disk:
  preflight_min: "10%"
  runtime_min: "20%"
snapshots:
  subvolumes: ["/"]
`,
		},
		{
			name: "poll interval below floor",
			content: `
target: officepc
disk:
  poll_interval: 200ms
snapshots:
  subvolumes: ["/"]
`,
		},
		{
			name: "duplicate enabled job",
			content: `
target: officepc
jobs:
  enabled: [dotfiles, dotfiles]
snapshots:
  subvolumes: ["/"]
`,
		},
		{
			name: "invalid threshold",
			content: `
target: officepc
disk:
  preflight_min: "plenty"
snapshots:
  subvolumes: ["/"]
`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := config.Load(writeConfig(t, tt.content), "")
			assert.Error(t, err)
		})
	}
}

func TestDecodeJobSettings(t *testing.T) {
	cfg, err := config.Load(writeConfig(t, `
target: officepc
jobs:
  enabled: [dotfiles]
  settings:
    dotfiles:
      paths: ["~/.config", "~/.local/share"]
      exclude: ["*.cache"]
snapshots:
  subvolumes: ["/"]
`), "")
	require.NoError(t, err)

	var settings struct {
		Paths   []string `yaml:"paths"`
		Exclude []string `yaml:"exclude"`
	}
	require.NoError(t, cfg.DecodeJobSettings("dotfiles", &settings))
	assert.Equal(t, []string{"~/.config", "~/.local/share"}, settings.Paths)
	assert.Equal(t, []string{"*.cache"}, settings.Exclude)

	// Absent block decodes to the zero value, not an error.
	var empty struct {
		Anything string `yaml:"anything"`
	}
	require.NoError(t, cfg.DecodeJobSettings("unknown", &empty))
	assert.Empty(t, empty.Anything)
}
