// cmd/version.go

package cmd

import (
	"runtime"

	"github.com/spf13/cobra"

	"github.com/CodeMonkeyCybersecurity/pc-switcher/pkg/version"
)

var versionShort bool

// versionCmd prints the build version. The --short form is machine-read:
// version reconcile runs it over SSH to compare binaries before a sync.
var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the pc-switcher version",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if versionShort {
			cmd.Println(version.Get())
			return nil
		}
		cmd.Printf("pc-switcher %s (%s, %s/%s)\n",
			version.Get(), runtime.Version(), runtime.GOOS, runtime.GOARCH)
		return nil
	},
}

func init() {
	versionCmd.Flags().BoolVar(&versionShort, "short", false, "print the bare version string")
	rootCmd.AddCommand(versionCmd)
}
