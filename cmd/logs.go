// cmd/logs.go

package cmd

import (
	"io"
	"os"

	cerr "github.com/cockroachdb/errors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/CodeMonkeyCybersecurity/pc-switcher/pkg/logger"
	"github.com/CodeMonkeyCybersecurity/pc-switcher/pkg/pcs_cli"
	"github.com/CodeMonkeyCybersecurity/pc-switcher/pkg/pcs_err"
	"github.com/CodeMonkeyCybersecurity/pc-switcher/pkg/pcs_io"
)

var logsLast bool

var logsCmd = &cobra.Command{
	Use:   "logs",
	Short: "Show run logs",
	Long: `Show pc-switcher run logs. Each sync session writes one JSONL file
under ` + "`/var/log/pc-switcher`" + ` (or the user state directory when that is
not writable).

Examples:
  pc-switcher logs --last        # print the most recent run log
  pc-switcher logs               # print the log directory`,
	Args: cobra.NoArgs,
	RunE: pcs_cli.Wrap(func(rc *pcs_io.RuntimeContext, cmd *cobra.Command, args []string) error {
		if !logsLast {
			rc.Log.Info("Run log directory", zap.String("dir", logger.LogDir()))
			cmd.Println(logger.LogDir())
			return nil
		}

		path, err := logger.LatestRunLog()
		if err != nil {
			return cerr.Wrap(err, "cannot list run logs")
		}
		if path == "" {
			return pcs_err.NewUserError("no run logs found in %s", logger.LogDir())
		}

		f, err := os.Open(path)
		if err != nil {
			return cerr.Wrapf(err, "cannot open %s", path)
		}
		defer f.Close()

		_, err = io.Copy(cmd.OutOrStdout(), f)
		return err
	}),
}

func init() {
	logsCmd.Flags().BoolVar(&logsLast, "last", false, "print the most recent run log")
	rootCmd.AddCommand(logsCmd)
}
