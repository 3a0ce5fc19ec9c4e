// cmd/rollback.go

package cmd

import (
	"bufio"
	"fmt"
	"os"
	"strings"

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
	rollbackSession string
	rollbackList    bool
	rollbackYes     bool
)

var rollbackCmd = &cobra.Command{
	Use:   "rollback",
	Short: "Restore this machine from a session's pre-sync snapshots",
	Long: `Restore every configured subvolume on this machine from the pre-sync
snapshots of one session. The current subvolumes are moved aside inside
the snapshot root, not destroyed.

Without --session the most recent session with pre-sync snapshots is used.
Rollback mutates live subvolumes, so it asks for confirmation unless --yes
is given.

Examples:
  pc-switcher rollback --list
  pc-switcher rollback --session 1f3c9a2b
  pc-switcher rollback --session 1f3c9a2b --yes`,
	Args: cobra.NoArgs,
	RunE: pcs_cli.Wrap(func(rc *pcs_io.RuntimeContext, cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(configPath, "")
		if err != nil {
			return pcs_err.NewConfigError(err.Error())
		}

		local := execute.NewLocal(rc.Log)
		mgr := btrfs.NewManager(local, eventbus.HostSource, cfg.Snapshots.Root, rc.Log)

		sessions, err := mgr.SessionsWithPreSnapshots(rc.Ctx)
		if err != nil {
			return err
		}

		if rollbackList {
			if len(sessions) == 0 {
				cmd.Println("no sessions with pre-sync snapshots")
				return nil
			}
			for _, s := range sessions {
				cmd.Printf("%s  %s  %d subvolume(s)\n",
					s.SessionID, s.Newest.Format("2006-01-02 15:04:05"), len(s.Snapshots))
			}
			return nil
		}

		if len(sessions) == 0 {
			return pcs_err.NewUserError("no sessions with pre-sync snapshots under %s", cfg.Snapshots.Root)
		}

		sessionID := rollbackSession
		if sessionID == "" {
			sessionID = sessions[0].SessionID
		}

		subvolumePaths := make(map[string]string, len(cfg.Snapshots.Subvolumes))
		for _, path := range cfg.Snapshots.Subvolumes {
			id, err := mgr.SubvolumeID(rc.Ctx, path)
			if err != nil {
				return err
			}
			subvolumePaths[id] = path
		}

		if !rollbackYes && !confirmRollback(sessionID, cfg.Snapshots.Subvolumes) {
			return pcs_err.NewUserError("rollback cancelled")
		}

		rc.Log.Info("Rolling back from pre-sync snapshots",
			zap.String("rollback_session", sessionID),
			zap.Strings("subvolumes", cfg.Snapshots.Subvolumes))

		if err := mgr.RollbackSession(rc.Ctx, sessionID, subvolumePaths); err != nil {
			return err
		}
		rc.Log.Info("Rollback complete; reboot to use the restored subvolumes")
		return nil
	}),
}

func confirmRollback(sessionID string, subvolumes []string) bool {
	fmt.Fprintf(os.Stderr,
		"This replaces %s on this machine with the pre-sync snapshots of session %s.\nType 'yes' to continue: ",
		strings.Join(subvolumes, ", "), sessionID)
	reader := bufio.NewReader(os.Stdin)
	line, err := reader.ReadString('\n')
	if err != nil {
		return false
	}
	return strings.TrimSpace(line) == "yes"
}

func init() {
	rollbackCmd.Flags().StringVar(&rollbackSession, "session", "",
		"session id to restore from (default: most recent)")
	rollbackCmd.Flags().BoolVar(&rollbackList, "list", false,
		"list sessions with pre-sync snapshots and exit")
	rollbackCmd.Flags().BoolVar(&rollbackYes, "yes", false,
		"skip the confirmation prompt")
	rootCmd.AddCommand(rollbackCmd)
}
