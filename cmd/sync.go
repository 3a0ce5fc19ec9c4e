// cmd/sync.go

package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/CodeMonkeyCybersecurity/pc-switcher/pkg/config"
	"github.com/CodeMonkeyCybersecurity/pc-switcher/pkg/job"
	"github.com/CodeMonkeyCybersecurity/pc-switcher/pkg/orchestrator"
	"github.com/CodeMonkeyCybersecurity/pc-switcher/pkg/pcs_cli"
	"github.com/CodeMonkeyCybersecurity/pc-switcher/pkg/pcs_err"
	"github.com/CodeMonkeyCybersecurity/pc-switcher/pkg/pcs_io"
)

var syncListJobs bool

var syncCmd = &cobra.Command{
	Use:   "sync [target]",
	Short: "Run one sync session to the target machine",
	Long: `Run one sync session: lock both hosts, snapshot every configured
subvolume, execute the enabled jobs in order, snapshot again, unlock.

The target argument (hostname or user@host[:port]) overrides the config
file's target. Ctrl-C cancels the run; jobs get grace_period to unwind
before remote sessions are force-terminated. A second Ctrl-C exits
immediately.

Examples:
  pc-switcher sync officepc
  pc-switcher sync alice@officepc:2222
  pc-switcher sync --list-jobs`,
	Args: cobra.MaximumNArgs(1),
	RunE: pcs_cli.Wrap(func(rc *pcs_io.RuntimeContext, cmd *cobra.Command, args []string) error {
		if syncListJobs {
			for _, name := range job.Known() {
				fmt.Fprintln(cmd.OutOrStdout(), name)
			}
			return nil
		}

		target := ""
		if len(args) == 1 {
			target = args[0]
		}
		cfg, err := config.Load(configPath, target)
		if err != nil {
			return pcs_err.NewConfigError(err.Error(),
				"check the config file against 'man pc-switcher' or the shipped example")
		}

		handler := pcs_cli.NewSignalHandler(rc.Ctx, rc.Log)
		defer handler.Stop()

		orch := orchestrator.New(cfg, rc)
		handler.RegisterForce(orch.ForceDisconnect)

		rc.Log.Info("Starting sync",
			zap.String("target", cfg.Target),
			zap.String("session_id", rc.SessionID))

		return orch.Run(handler.Context())
	}),
}

func init() {
	syncCmd.Flags().BoolVar(&syncListJobs, "list-jobs", false,
		"list the registered configurable jobs and exit")
	rootCmd.AddCommand(syncCmd)
}
