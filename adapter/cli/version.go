package cli

import (
	"fmt"
	"runtime"
	"runtime/debug"

	"github.com/spf13/cobra"
)

// Build metadata, set with -ldflags "-X".
var (
	Version = "dev"
	Commit  = "none"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the build version",
	Run: func(cmd *cobra.Command, args []string) {
		version, commit := buildVersion()
		fmt.Fprintf(cmd.OutOrStdout(), "birvanoio %s (%s) %s\n", version, commit, runtime.Version())
	},
}

// buildVersion falls back to the module version and VCS revision recorded
// by go install when no ldflags were given.
func buildVersion() (string, string) {
	version, commit := Version, Commit
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return version, commit
	}
	if version == "dev" && info.Main.Version != "" && info.Main.Version != "(devel)" {
		version = info.Main.Version
	}
	if commit == "none" {
		for _, s := range info.Settings {
			if s.Key == "vcs.revision" && len(s.Value) >= 7 {
				commit = s.Value[:7]
			}
		}
	}
	return version, commit
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
