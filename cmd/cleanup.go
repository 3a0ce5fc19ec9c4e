// cmd/cleanup.go

package cmd

import (
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/CodeMonkeyCybersecurity/pc-switcher/pkg/btrfs"
	"github.com/CodeMonkeyCybersecurity/pc-switcher/pkg/config"
	"github.com/CodeMonkeyCybersecurity/pc-switcher/pkg/eventbus"
	"github.com/CodeMonkeyCybersecurity/pc-switcher/pkg/execute"
	"github.com/CodeMonkeyCybersecurity/pc-switcher/pkg/pcs_cli"
	"github.com/CodeMonkeyCybersecurity/pc-switcher/pkg/pcs_err"
	"github.com/CodeMonkeyCybersecurity/pc-switcher/pkg/pcs_io"
)

var (
	cleanupOlderThan time.Duration
	cleanupDryRun    bool
)

var cleanupCmd = &cobra.Command{
	Use:   "cleanup-snapshots",
	Short: "Delete old pc-switcher snapshot sessions on this machine",
	Long: `Delete old pc-switcher snapshots from the local snapshot root.

Retention keeps the snapshots.retention.keep_recent most recent sessions
unconditionally; older sessions past the age threshold are deleted as whole
sessions, never partially. The operation is idempotent.

Examples:
  pc-switcher cleanup-snapshots
  pc-switcher cleanup-snapshots --older-than 168h
  pc-switcher cleanup-snapshots --dry-run`,
	Args: cobra.NoArgs,
	RunE: pcs_cli.Wrap(func(rc *pcs_io.RuntimeContext, cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(configPath, "")
		if err != nil {
			return pcs_err.NewConfigError(err.Error())
		}

		olderThan := cfg.Snapshots.Retention.MaxAge
		if cmd.Flags().Changed("older-than") {
			olderThan = cleanupOlderThan
		}

		local := execute.NewLocal(rc.Log)
		mgr := btrfs.NewManager(local, eventbus.HostSource, cfg.Snapshots.Root, rc.Log)

		policy := btrfs.RetentionPolicy{
			KeepRecent: cfg.Snapshots.Retention.KeepRecent,
			OlderThan:  olderThan,
			DryRun:     cleanupDryRun,
		}
		deleted, err := mgr.Cleanup(rc.Ctx, policy)
		if err != nil {
			return err
		}

		if cleanupDryRun {
			rc.Log.Info("Dry run, nothing deleted", zap.Int("would_delete", deleted))
		} else {
			rc.Log.Info("Snapshot cleanup finished", zap.Int("deleted", deleted))
		}
		return nil
	}),
}

func init() {
	cleanupCmd.Flags().DurationVar(&cleanupOlderThan, "older-than", 0,
		"delete sessions older than this (overrides snapshots.retention.max_age; 0 means no age gate)")
	cleanupCmd.Flags().BoolVar(&cleanupDryRun, "dry-run", false,
		"report what would be deleted without deleting")
	rootCmd.AddCommand(cleanupCmd)
}
