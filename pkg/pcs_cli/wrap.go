// pkg/pcs_cli/wrap.go

package pcs_cli

import (
	"context"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"github.com/CodeMonkeyCybersecurity/pc-switcher/pkg/logger"
	"github.com/CodeMonkeyCybersecurity/pc-switcher/pkg/pcs_io"
)

// Wrap adapts a RuntimeContext-style handler to cobra's RunE, providing
// logging setup, tracing, panic recovery and outcome logging for every
// command.
func Wrap(fn func(rc *pcs_io.RuntimeContext, cmd *cobra.Command, args []string) error) func(cmd *cobra.Command, args []string) error {
	return func(cmd *cobra.Command, args []string) (err error) {
		logger.InitializeWithFallback()

		rc := pcs_io.NewContext(context.Background(), cmd.Name())
		defer rc.End(&err)
		defer rc.HandlePanic(&err)

		rc.Log.Debug("Command invoked",
			zap.Strings("args", args),
			zap.Strings("flags", changedFlags(cmd)))

		return fn(rc, cmd, args)
	}
}

// changedFlags renders the flags the user actually set, for the invocation
// log line.
func changedFlags(cmd *cobra.Command) []string {
	var flags []string
	cmd.Flags().Visit(func(f *pflag.Flag) {
		flags = append(flags, "--"+f.Name+"="+f.Value.String())
	})
	return flags
}
