// cmd/root.go

package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/CodeMonkeyCybersecurity/pc-switcher/pkg/pcs_err"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "pc-switcher",
	Short: "Migrate a desktop environment between two Linux machines",
	Long: `pc-switcher syncs a desktop environment from this machine to a target
machine over SSH: one orchestrated run bracketed by btrfs snapshots on
both hosts, with disk-space watchdogs and cross-host locking.

Exit codes: 0 success, 1 failure, 130 interrupted.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "",
		"config file (default /etc/pc-switcher/config.yaml)")
}

// Execute runs the CLI and exits with the classified code.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(pcs_err.GetExitCode(err))
	}
}
